package refs

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Batch collects the results of one SyncAll run in source order.
type Batch struct {
	Results []Result
}

// AnyError reports whether at least one source failed.
func (b *Batch) AnyError() bool {
	for _, r := range b.Results {
		if r.Status == StatusError {
			return true
		}
	}
	return false
}

// Counts returns the number of up-to-date, updated and failed sources.
func (b *Batch) Counts() (upToDate, updated, failed int) {
	for _, r := range b.Results {
		switch r.Status {
		case StatusUpToDate:
			upToDate++
		case StatusUpdated:
			updated++
		case StatusError:
			failed++
		}
	}
	return upToDate, updated, failed
}

// Err combines the errors of every failed source, or returns nil.
func (b *Batch) Err() error {
	var err error
	for _, r := range b.Results {
		if r.Status != StatusError {
			continue
		}
		cause := r.Err
		if cause == nil {
			cause = errors.New(r.Message)
		}
		err = multierr.Append(err, fmt.Errorf("%s: %w", r.Name, cause))
	}
	return err
}

// SyncAll syncs sources one after another in the given order. A failing
// source never stops the remaining ones. report, when non-nil, is called with
// each result as soon as it is known. Once ctx is cancelled the remaining
// sources are reported as errors without being attempted.
func (e *Engine) SyncAll(ctx context.Context, sources []Source, force bool, report func(Result)) *Batch {
	for _, c := range LocalDirCollisions(sources) {
		e.logger.Warn("sources share a local directory; the last one synced wins",
			"local_dir", c.LocalDir, "sources", c.Names, "nested", c.Nested)
	}

	batch := &Batch{Results: make([]Result, 0, len(sources))}
	for _, src := range sources {
		var res Result
		if err := ctx.Err(); err != nil {
			res = errorResult(src.WithDefaults(), "Sync cancelled.", err)
		} else {
			res = e.Sync(ctx, src, force)
		}

		batch.Results = append(batch.Results, res)
		if report != nil {
			report(res)
		}
	}

	upToDate, updated, failed := batch.Counts()
	e.logger.Info("sync finished", "up_to_date", upToDate, "updated", updated, "failed", failed)
	return batch
}
