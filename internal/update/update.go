// Package update compares the running aftr version with the releases tagged
// on the project's git remote.
package update

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// TagLister lists the tags of a remote repository.
type TagLister interface {
	ListTags(ctx context.Context, url string) ([]string, error)
}

// Release is the outcome of a release check.
type Release struct {
	Current   string
	Latest    string
	Available bool
}

// Latest returns the highest stable semver tag among tags. Tags that are not
// valid versions or carry a prerelease suffix are ignored. ok is false when
// no tag qualifies.
func Latest(tags []string) (v *semver.Version, tag string, ok bool) {
	for _, t := range tags {
		cand, err := semver.NewVersion(t)
		if err != nil || cand.Prerelease() != "" {
			continue
		}
		if v == nil || cand.GreaterThan(v) {
			v, tag = cand, t
		}
	}
	return v, tag, v != nil
}

// Check lists the tags of repoURL and reports whether a release newer than
// current exists. A development build whose version does not parse never
// reports an update.
func Check(ctx context.Context, lister TagLister, repoURL, current string) (Release, error) {
	rel := Release{Current: current}

	tags, err := lister.ListTags(ctx, repoURL)
	if err != nil {
		return rel, fmt.Errorf("failed to list releases: %w", err)
	}

	latest, tag, ok := Latest(tags)
	if !ok {
		return rel, nil
	}
	rel.Latest = tag

	cur, err := semver.NewVersion(current)
	if err != nil {
		return rel, nil
	}
	rel.Available = latest.GreaterThan(cur)
	return rel, nil
}
