package pathx

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/trop-dev/trop/internal/trop"
)

// DefaultMaxSymlinkDepth bounds symlink-following depth to avoid spinning
// forever on a cycle that filepath.EvalSymlinks itself might not always
// catch cleanly across platforms.
const DefaultMaxSymlinkDepth = 40

// Canonicalize resolves symlinks at path's last component and at the last
// component of its parent directory, bounding the number of symlink hops
// followed to maxDepth (DefaultMaxSymlinkDepth if maxDepth <= 0) for each of
// the two. Symlinks in higher directories are not resolved. Errors distinguish "not found", "permission denied", and
// "symlink loop" so callers can react differently (prune treats not-found
// as information, reserve treats it as failure).
func Canonicalize(path string, maxDepth int) (string, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxSymlinkDepth
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)

	resolvedDir, err := resolveSymlinks(dir, maxDepth)
	if err != nil {
		return "", err
	}

	full := filepath.Join(resolvedDir, base)
	resolved, err := resolveSymlinks(full, maxDepth)
	if err != nil {
		// full may itself not exist (e.g. a path we're about to create);
		// that's fine as long as its parent resolved cleanly.
		if classifyErr(err) == trop.KindPathNotFound {
			return full, nil
		}
		return "", err
	}
	return resolved, nil
}

// resolveSymlinks follows path's final component while it is a symlink, up
// to maxDepth hops. Symlinks in earlier components are left in the returned
// string as they are.
func resolveSymlinks(path string, maxDepth int) (string, error) {
	hops := 0
	current := path
	for {
		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				return "", trop.Wrap(trop.KindPathNotFound, err, "path not found: %s", current)
			}
			if os.IsPermission(err) {
				return "", trop.Wrap(trop.KindPermissionDenied, err, "permission denied: %s", current)
			}
			return "", trop.Wrap(trop.KindIO, err, "cannot stat %s", current)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return current, nil
		}
		hops++
		if hops > maxDepth {
			return "", trop.New(trop.KindSymlinkLoop, "symlink loop resolving %s: exceeded depth %d", path, maxDepth)
		}
		target, err := os.Readlink(current)
		if err != nil {
			return "", trop.Wrap(trop.KindIO, err, "cannot read symlink %s", current)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(current), target)
		}
		current = target
	}
}

func classifyErr(err error) trop.Kind {
	var te *trop.Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return trop.KindUnknown
}

// Exists reports whether path exists on the filesystem, following
// symlinks. Used by the cleanup engine's prune step.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
