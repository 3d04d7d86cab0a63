// Package pathx implements path normalization, canonicalization, and
// relationship classification for reservation keys.
package pathx

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/trop-dev/trop/internal/trop"
)

// Normalize expands a leading "~", resolves the result against the current
// working directory if still relative, and folds "." / ".." components.
// It never touches the filesystem and is idempotent: Normalize(Normalize(p))
// == Normalize(p).
func Normalize(path string) (string, error) {
	expanded, err := expandTilde(path)
	if err != nil {
		return "", err
	}

	if !filepath.IsAbs(expanded) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", trop.Wrap(trop.KindIO, err, "cannot resolve relative path: getwd failed")
		}
		expanded = filepath.Join(cwd, expanded)
	}

	folded, err := foldComponents(expanded)
	if err != nil {
		return "", err
	}
	return folded, nil
}

// expandTilde expands a leading "~" or "~/" to the current user's home
// directory. "~user/..." forms are rejected: trop only ever runs as the
// invoking user, so there is no meaningful home directory to substitute.
func expandTilde(path string) (string, error) {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", trop.Wrap(trop.KindInvalidPath, err, "cannot expand ~: no home directory")
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", trop.Wrap(trop.KindInvalidPath, err, "cannot expand ~: no home directory")
		}
		return filepath.Join(home, path[2:]), nil
	}
	if strings.HasPrefix(path, "~") {
		return "", trop.New(trop.KindInvalidPath, "invalid path %q: ~user expansion is not supported", path)
	}
	return path, nil
}

// foldComponents drops "." components and pops on "..", failing if a ".."
// would escape the filesystem root.
func foldComponents(absPath string) (string, error) {
	vol := filepath.VolumeName(absPath)
	rest := absPath[len(vol):]
	parts := strings.Split(filepath.ToSlash(rest), "/")

	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", trop.New(trop.KindInvalidPath, "invalid path %q: .. escapes root", absPath)
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, part)
		}
	}

	joined := vol + string(filepath.Separator) + filepath.Join(stack...)
	return filepath.Clean(joined), nil
}
