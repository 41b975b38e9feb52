//go:build integration

package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const defaultTimeout = 5 * time.Minute

// Harness builds the aftr binary once and runs it against a scratch project,
// a scratch config directory and local git remotes.
type Harness struct {
	t          *testing.T
	binary     string
	ProjectDir string
	ConfigDir  string
	RemotesDir string
}

// NewHarness creates a new test harness with empty working directories
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available on PATH")
	}

	root := t.TempDir()
	h := &Harness{
		t:          t,
		ProjectDir: filepath.Join(root, "project"),
		ConfigDir:  filepath.Join(root, "config"),
		RemotesDir: filepath.Join(root, "remotes"),
	}
	for _, dir := range []string{h.ProjectDir, h.ConfigDir, h.RemotesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return h
}

// Build compiles cmd/aftr into a temporary directory
func (h *Harness) Build(ctx context.Context) error {
	h.t.Helper()

	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("get project root: %w", err)
	}

	h.binary = filepath.Join(h.t.TempDir(), "aftr")
	h.t.Logf("Building %s", h.binary)

	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/aftr")
	cmd.Dir = projectRoot
	cmd.Stdout = &testWriter{t: h.t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[build] "}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	return nil
}

// Exec runs aftr with args inside the project directory. stdin, when
// non-empty, is fed to the process.
func (h *Harness) Exec(ctx context.Context, stdin string, args ...string) (string, string, int, error) {
	h.t.Helper()
	if h.binary == "" {
		return "", "", 0, fmt.Errorf("binary not built")
	}

	execCmd := exec.CommandContext(ctx, h.binary, args...)
	execCmd.Dir = h.ProjectDir
	execCmd.Env = append(os.Environ(),
		"AFTR_CONFIG_DIR="+h.ConfigDir,
		"NO_COLOR=1",
		"GIT_CONFIG_NOSYSTEM=1",
	)
	if stdin != "" {
		execCmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", "", 0, fmt.Errorf("exec failed: %w", err)
		}
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// MustExec runs aftr and fails the test if it returns non-zero
func (h *Harness) MustExec(ctx context.Context, args ...string) string {
	h.t.Helper()
	stdout, stderr, exitCode, err := h.Exec(ctx, "", args...)
	if err != nil {
		h.t.Fatalf("exec failed: %v", err)
	}
	if exitCode != 0 {
		h.t.Fatalf("command failed with exit code %d\nstdout: %s\nstderr: %s\nargs: %v",
			exitCode, stdout, stderr, args)
	}
	return stdout
}

// Git runs git in dir and fails the test on error
func (h *Harness) Git(ctx context.Context, dir string, args ...string) string {
	h.t.Helper()
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	cmd.Env = append(os.Environ(), "GIT_CONFIG_NOSYSTEM=1")
	out, err := cmd.CombinedOutput()
	if err != nil {
		h.t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

// NewRemote initialises a repository under RemotesDir and returns its
// file:// URL and path.
func (h *Harness) NewRemote(ctx context.Context, name string) (string, string) {
	h.t.Helper()
	dir := filepath.Join(h.RemotesDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		h.t.Fatalf("mkdir remote: %v", err)
	}
	h.Git(ctx, dir, "init", "-b", "main")
	h.Git(ctx, dir, "config", "user.email", "test@example.com")
	h.Git(ctx, dir, "config", "user.name", "Test User")
	h.Git(ctx, dir, "config", "commit.gpgsign", "false")
	h.Git(ctx, dir, "config", "uploadpack.allowFilter", "true")
	return "file://" + filepath.ToSlash(dir), dir
}

// Commit writes files into the remote repository and commits them. A nil
// content deletes the file. It returns the new HEAD.
func (h *Harness) Commit(ctx context.Context, repo string, files map[string]*string, msg string) string {
	h.t.Helper()
	for name, content := range files {
		path := filepath.Join(repo, filepath.FromSlash(name))
		if content == nil {
			if err := os.Remove(path); err != nil {
				h.t.Fatalf("remove %s: %v", name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			h.t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(*content), 0644); err != nil {
			h.t.Fatalf("write %s: %v", name, err)
		}
	}
	h.Git(ctx, repo, "add", "-A")
	h.Git(ctx, repo, "commit", "-m", msg)
	return h.Git(ctx, repo, "rev-parse", "HEAD")
}

// ReadFile reads a file relative to the project directory
func (h *Harness) ReadFile(rel string) (string, error) {
	data, err := os.ReadFile(filepath.Join(h.ProjectDir, filepath.FromSlash(rel)))
	return string(data), err
}

// FileExists checks if a path relative to the project directory exists
func (h *Harness) FileExists(rel string) bool {
	_, err := os.Stat(filepath.Join(h.ProjectDir, filepath.FromSlash(rel)))
	return err == nil
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)

// findProjectRoot walks up the directory tree from the current file to find go.mod
func findProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}

	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}
