// Package testutil holds git fixtures shared by package tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// RequireGit skips the test when no git executable is on PATH.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available on PATH")
	}
}

// InitRepo creates a repository with a work tree in dir on the given branch.
// The repository serves as a remote for clone and ls-remote.
func InitRepo(t *testing.T, dir, branch string) {
	t.Helper()
	Git(t, "", "init", "-b", branch, dir)
	Git(t, dir, "config", "user.email", "test@test.com")
	Git(t, dir, "config", "user.name", "Test")
	Git(t, dir, "config", "commit.gpgsign", "false")
	// serve --filter requests so clones stay partial
	Git(t, dir, "config", "uploadpack.allowFilter", "true")
}

// CommitFiles writes files (repo-relative path -> content) into the repo and
// commits them. It returns the new HEAD commit.
func CommitFiles(t *testing.T, repoDir string, files map[string]string, msg string) string {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(repoDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	Git(t, repoDir, "add", "-A")
	Git(t, repoDir, "commit", "-m", msg)
	return Head(t, repoDir)
}

// RemoveFiles deletes repo-relative paths and commits the removal.
func RemoveFiles(t *testing.T, repoDir string, names []string, msg string) string {
	t.Helper()
	args := append([]string{"rm", "-q", "--"}, names...)
	Git(t, repoDir, args...)
	Git(t, repoDir, "commit", "-m", msg)
	return Head(t, repoDir)
}

// Head returns the current HEAD commit of repoDir.
func Head(t *testing.T, repoDir string) string {
	t.Helper()
	return strings.TrimSpace(Git(t, repoDir, "rev-parse", "HEAD"))
}

// Git runs git with args (in dir when non-empty) and fails the test on error.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	cmd := exec.Command("git", args...)
	cmd.Env = append(os.Environ(), "GIT_CONFIG_NOSYSTEM=1")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
	return string(out)
}
