package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const waitDelay = 5 * time.Second

// ErrRefNotFound is wrapped when ls-remote succeeds but lists no matching ref.
var ErrRefNotFound = errors.New("ref not found on remote")

// Client provides the git operations used by refs sync and the release check
type Client interface {
	// RemoteHead returns the commit a remote branch points at, without cloning
	RemoteHead(ctx context.Context, url, branch string) (string, error)
	// SparseFetch shallow-clones url at branch into destDir with only subPath
	// checked out, and returns the absolute path of subPath inside destDir
	SparseFetch(ctx context.Context, url, branch, subPath, destDir string) (string, error)
	// ListTags returns the tag names published on the remote
	ListTags(ctx context.Context, url string) ([]string, error)
}

// Options configures a ShellClient. Zero timeouts disable the per-command bound.
type Options struct {
	Binary          string
	SSHKeyFile      string
	HTTPSTokenFile  string
	LsRemoteTimeout time.Duration
	CloneTimeout    time.Duration
	CheckoutTimeout time.Duration
}

// ShellClient implements Client by shelling out to the git command
type ShellClient struct {
	opts Options
}

// NewShellClient creates a new git client that uses the git command
func NewShellClient(opts Options) *ShellClient {
	if opts.Binary == "" {
		opts.Binary = "git"
	}
	return &ShellClient{opts: opts}
}

// RemoteHead runs `git ls-remote <url> refs/heads/<branch>` and returns the
// hash preceding the ref name on the first line of output.
func (c *ShellClient) RemoteHead(ctx context.Context, url, branch string) (string, error) {
	out, err := c.run(ctx, c.opts.LsRemoteTimeout, "ls-remote", KindRemote, url,
		"ls-remote", url, "refs/heads/"+branch)
	if err != nil {
		return "", err
	}

	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", &Error{Kind: KindRemote, Op: "ls-remote", Err: fmt.Errorf("%w: refs/heads/%s", ErrRefNotFound, branch)}
	}
	return fields[0], nil
}

// SparseFetch clones with --depth=1 --filter=blob:none --sparse and restricts
// the sparse checkout to subPath.
func (c *ShellClient) SparseFetch(ctx context.Context, url, branch, subPath, destDir string) (string, error) {
	rel, err := CleanSubPath(subPath)
	if err != nil {
		return "", &Error{Kind: KindPathNotFound, Op: "sparse-checkout", Err: err}
	}

	if _, err := c.run(ctx, c.opts.CloneTimeout, "clone", KindClone, url,
		"clone", "--depth=1", "--filter=blob:none", "--sparse", "--branch", branch, "--", url, destDir); err != nil {
		return "", err
	}

	checkoutArgs := []string{"-C", destDir, "sparse-checkout", "set", rel}
	if rel == "." {
		checkoutArgs = []string{"-C", destDir, "sparse-checkout", "disable"}
	}
	// Blobs are fetched lazily from the promisor remote here, so the clone's
	// credentials are needed again.
	if _, err := c.run(ctx, c.opts.CheckoutTimeout, "sparse-checkout", KindCheckout, url, checkoutArgs...); err != nil {
		return "", err
	}

	fetched := filepath.Join(destDir, filepath.FromSlash(rel))
	info, err := os.Stat(fetched)
	if err != nil {
		return "", &Error{Kind: KindPathNotFound, Op: "sparse-checkout", Err: fmt.Errorf("path %q not found in repository", subPath)}
	}
	if !info.IsDir() {
		return "", &Error{Kind: KindPathNotFound, Op: "sparse-checkout", Err: fmt.Errorf("path %q is not a directory", subPath)}
	}

	abs, err := filepath.Abs(fetched)
	if err != nil {
		return "", fmt.Errorf("failed to resolve fetched path: %w", err)
	}
	return abs, nil
}

// ListTags runs `git ls-remote --tags --refs <url>`.
func (c *ShellClient) ListTags(ctx context.Context, url string) ([]string, error) {
	out, err := c.run(ctx, c.opts.LsRemoteTimeout, "ls-remote", KindRemote, url,
		"ls-remote", "--tags", "--refs", url)
	if err != nil {
		return nil, err
	}

	var tags []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if tag, ok := strings.CutPrefix(fields[1], "refs/tags/"); ok {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

// CleanSubPath normalises a repository-relative path and rejects absolute
// paths and paths that escape the repository root.
func CleanSubPath(p string) (string, error) {
	p = strings.TrimSpace(filepath.ToSlash(p))
	if p == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
		return "", fmt.Errorf("path %q must be relative to the repository root", p)
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path %q escapes the repository root", p)
	}
	return clean, nil
}

// run executes git with args, bounded by timeout. Failures are classified as
// kind unless the binary is missing or the timeout expired.
func (c *ShellClient) run(ctx context.Context, timeout time.Duration, op string, kind Kind, url string, args ...string) (string, error) {
	bin, err := exec.LookPath(c.opts.Binary)
	if err != nil {
		return "", &Error{Kind: KindGitMissing, Op: op, Err: err}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	// helpers such as git-remote-https can outlive a killed git and hold the pipes open
	cmd.WaitDelay = waitDelay
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if url != "" {
		if err := c.configureAuth(cmd, url); err != nil {
			return "", &Error{Kind: kind, Op: op, Err: err}
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		output := strings.TrimSpace(stderr.String())
		switch ctxErr := ctx.Err(); {
		case errors.Is(ctxErr, context.DeadlineExceeded):
			return "", &Error{Kind: KindTimeout, Op: op, Output: output, Err: ctxErr}
		case ctxErr != nil:
			return "", &Error{Kind: kind, Op: op, Output: output, Err: ctxErr}
		}
		return "", &Error{Kind: kind, Op: op, Output: output, Err: err}
	}

	return stdout.String(), nil
}

// configureAuth sets up authentication for git operations
func (c *ShellClient) configureAuth(cmd *exec.Cmd, url string) error {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	// SSH authentication
	if c.opts.SSHKeyFile != "" && (strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")) {
		// The path is shell-quoted to prevent injection via crafted filenames.
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.opts.SSHKeyFile))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
		return nil
	}

	// HTTPS authentication with token
	if c.opts.HTTPSTokenFile != "" && strings.HasPrefix(url, "https://") {
		token, err := os.ReadFile(c.opts.HTTPSTokenFile)
		if err != nil {
			return fmt.Errorf("failed to read HTTPS token file: %w", err)
		}

		// The token travels in the environment and is read by an inline
		// credential helper, never interpolated into the command line.
		cmd.Env = append(cmd.Env, "AFTR_GIT_TOKEN="+strings.TrimSpace(string(token)))
		cmd.Args = insertGitFlags(cmd.Args,
			"-c", `credential.helper=!f() { echo "username=x-access-token"; echo "password=$AFTR_GIT_TOKEN"; }; f`,
		)
	}

	return nil
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "clone", "ls-remote").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
