package inference

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRepo creates a temporary git repository with one commit on a
// named branch, returning the repo root.
func setupTestRepo(t *testing.T, branch string) string {
	t.Helper()
	dir := t.TempDir()

	runTestGit(t, dir, "init", "-b", branch)
	runTestGit(t, dir, "config", "user.email", "test@example.com")
	runTestGit(t, dir, "config", "user.name", "Test User")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# x\n"), 0644))
	runTestGit(t, dir, "add", ".")
	runTestGit(t, dir, "commit", "-m", "initial commit")

	return dir
}

func runTestGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, string(output))
	return string(output)
}

func TestInferUsesRepoBasenameAsProject(t *testing.T) {
	repo := setupTestRepo(t, "main")

	id := Infer(repo)
	assert.Equal(t, filepath.Base(repo), id.Project)
	assert.Equal(t, "main", id.Task)
}

func TestInferSanitizesSlashesInBranchName(t *testing.T) {
	repo := setupTestRepo(t, "feature/ports")

	id := Infer(repo)
	assert.Equal(t, "feature-ports", id.Task)
}

func TestInferFromSubdirectoryFindsRepoRoot(t *testing.T) {
	repo := setupTestRepo(t, "main")
	sub := filepath.Join(repo, "nested")
	require.NoError(t, os.Mkdir(sub, 0755))

	id := Infer(sub)
	assert.Equal(t, filepath.Base(repo), id.Project)
}

func TestInferOutsideRepoReturnsZeroValue(t *testing.T) {
	dir := t.TempDir()
	id := Infer(dir)
	assert.Empty(t, id.Project)
	assert.Empty(t, id.Task)
}

func TestSanitizeBranchNameReplacesSlashes(t *testing.T) {
	assert.Equal(t, "feature-auth", sanitizeBranchName("feature/auth"))
	assert.Equal(t, "main", sanitizeBranchName("main"))
}
