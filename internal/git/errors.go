package git

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a git failure.
type Kind string

const (
	KindGitMissing   Kind = "git_missing"
	KindRemote       Kind = "remote"
	KindClone        Kind = "clone"
	KindCheckout     Kind = "checkout"
	KindPathNotFound Kind = "path_not_found"
	KindTimeout      Kind = "timeout"
)

// Error is returned by every ShellClient operation.
type Error struct {
	Kind   Kind
	Op     string // git subcommand, e.g. "ls-remote"
	Output string // trimmed stderr of the failing command
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "git %s: %s", e.Op, e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Output != "" {
		fmt.Fprintf(&b, ": %s", e.Output)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var gitErr *Error
	if errors.As(err, &gitErr) {
		return gitErr.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
