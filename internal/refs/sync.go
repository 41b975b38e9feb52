package refs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aftr-cli/aftr/internal/git"
)

// Status is the outcome of one sync attempt.
type Status string

const (
	StatusUpToDate Status = "up_to_date"
	StatusUpdated  Status = "updated"
	StatusError    Status = "error"
)

// Result describes one sync attempt. Message is authoritative when Status is
// StatusError; Commit is set for StatusUpToDate and StatusUpdated.
type Result struct {
	Name    string
	Status  Status
	Message string
	Commit  string
	Err     error
}

// ShortCommit returns the first eight characters of Commit.
func (r Result) ShortCommit() string {
	if len(r.Commit) > 8 {
		return r.Commit[:8]
	}
	return r.Commit
}

// Engine syncs sources of one project into their mirror directories.
type Engine struct {
	store   *Store
	git     git.Client
	logger  *slog.Logger
	now     func() time.Time
	tempDir string
}

// NewEngine creates a new sync engine. The store must be backed by the OS
// filesystem because mirrors are written with os calls.
func NewEngine(store *Store, gitClient git.Client, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		git:    gitClient,
		logger: logger,
		now:    time.Now,
	}
}

// Sync brings one source up to date.
//
// The remote head is compared with the recorded last commit. When they match
// and force is false nothing is fetched and the state is untouched. Otherwise
// the sub-path is fetched, the mirror replaced and the new commit recorded.
// Any failure yields StatusError and leaves the recorded state unchanged.
func (e *Engine) Sync(ctx context.Context, src Source, force bool) Result {
	src = src.WithDefaults()
	logger := e.logger.With("source", src.Name)

	// refs.toml may be edited by hand, so it is checked again before anything
	// is fetched or removed.
	if err := src.Validate(); err != nil {
		logger.Warn("refusing to sync invalid source", "error", err)
		return errorResult(src, fmt.Sprintf("Invalid source '%s': %v. Fix it in %s.", src.Name, err, e.store.ConfigPath()), err)
	}

	logger.Debug("checking remote head", "url", src.URL, "branch", src.Branch)
	head, err := e.git.RemoteHead(ctx, src.URL, src.Branch)
	if err != nil {
		logger.Debug("remote head lookup failed", "error", err)
		return errorResult(src, remoteMessage(src, err), err)
	}

	state, err := e.store.LoadState()
	if err != nil {
		logger.Warn("failed to load sync state (will treat as never synced)", "error", err)
	}

	if !force && state.LastCommit(src.Name) == head {
		logger.Debug("already up to date", "commit", head)
		return Result{
			Name:    src.Name,
			Status:  StatusUpToDate,
			Message: "Already up to date.",
			Commit:  head,
		}
	}

	logger.Info("fetching", "commit", head, "path", src.Path, "force", force)
	if err := e.fetch(ctx, src); err != nil {
		logger.Debug("fetch failed", "error", err)
		return errorResult(src, fetchMessage(src, err), err)
	}

	state.Record(src.Name, head, e.now().UTC())
	if err := e.store.SaveState(state); err != nil {
		return errorResult(src, fmt.Sprintf("Mirror updated but sync state could not be saved: %v", err), err)
	}

	logger.Info("source updated", "commit", head, "dest", e.store.MirrorPath(src.LocalDir))
	return Result{
		Name:    src.Name,
		Status:  StatusUpdated,
		Message: "Synced successfully.",
		Commit:  head,
	}
}

// fetch sparse-clones the source into a scratch directory, which is always
// removed, and replaces the mirror with the fetched sub-path.
func (e *Engine) fetch(ctx context.Context, src Source) error {
	scratch, err := os.MkdirTemp(e.tempDir, "aftr-refs-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			e.logger.Warn("failed to remove scratch directory", "path", scratch, "error", err)
		}
	}()

	fetched, err := e.git.SparseFetch(ctx, src.URL, src.Branch, src.Path, scratch)
	if err != nil {
		return err
	}

	return replaceDir(fetched, e.store.MirrorPath(src.LocalDir))
}

func errorResult(src Source, msg string, err error) Result {
	return Result{
		Name:    src.Name,
		Status:  StatusError,
		Message: msg,
		Err:     err,
	}
}

func remoteMessage(src Source, err error) string {
	switch git.KindOf(err) {
	case git.KindGitMissing:
		return gitMissingMessage
	case git.KindTimeout:
		return fmt.Sprintf("Timed out reaching remote '%s' (branch: %s).", src.URL, src.Branch)
	}
	if errors.Is(err, context.Canceled) {
		return "Sync cancelled."
	}
	return fmt.Sprintf("Could not reach remote '%s' (branch: %s). Check the URL, branch name, and your network connection.",
		src.URL, src.Branch)
}

func fetchMessage(src Source, err error) string {
	if errors.Is(err, context.Canceled) {
		return "Sync cancelled."
	}
	var gitErr *git.Error
	if !errors.As(err, &gitErr) {
		return fmt.Sprintf("Failed to update %s: %v", src.LocalDir, err)
	}

	switch gitErr.Kind {
	case git.KindGitMissing:
		return gitMissingMessage
	case git.KindClone:
		return "git clone failed:\n" + diagnostic(gitErr)
	case git.KindCheckout:
		return "git sparse-checkout failed:\n" + diagnostic(gitErr)
	case git.KindPathNotFound:
		return fmt.Sprintf("Path '%s' not found in repository.", src.Path)
	case git.KindTimeout:
		return "git operation timed out."
	default:
		return gitErr.Error()
	}
}

func diagnostic(err *git.Error) string {
	if err.Output != "" {
		return err.Output
	}
	if err.Err != nil {
		return err.Err.Error()
	}
	return string(err.Kind)
}

const gitMissingMessage = "git is required for refs sync. Install git and ensure it is on your PATH."
