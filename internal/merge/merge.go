package merge

import (
	"context"
	"fmt"

	"github.com/kiproject/ki/internal/vcs"
)

// Policy selects how a pull resolves textual conflicts in the real git
// merge, mirroring the pull operation's documented conflict-resolution
// modes.
type Policy string

const (
	// PolicyDefault leaves conflicts for the user to resolve by hand.
	PolicyDefault Policy = "default"
	// PolicyForceTheirs always takes the remote mirror's side on conflict,
	// the "pull --force-theirs"-style fast path for a user who trusts the
	// collection over local edits.
	PolicyForceTheirs Policy = "force-theirs"
)

// Result is what a Merge call reports back to the sync driver.
type Result struct {
	Commit       string
	HadConflicts bool
}

// Merge merges ref into repo's current branch under policy, returning the
// resulting commit hash. A conflicting merge under PolicyDefault leaves the
// working tree with unresolved conflict markers and returns a non-nil
// error; the caller is expected to surface that to the user rather than
// silently discard one side.
func Merge(ctx context.Context, repo *vcs.Repo, ref, message string, policy Policy) (*Result, error) {
	var strategy vcs.MergeStrategy
	if policy == PolicyForceTheirs {
		strategy = vcs.MergeFavorTheirs
	}

	err := repo.Merge(ctx, ref, message, strategy)
	if err != nil {
		clean, cleanErr := repo.IsClean(ctx)
		if cleanErr == nil && !clean {
			return &Result{HadConflicts: true}, fmt.Errorf("merge left unresolved conflicts: %w", err)
		}
		return nil, err
	}

	commit, err := repo.Head(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{Commit: commit}, nil
}

// ReportConflicts builds a Report per changed note path, for surfacing a
// readable conflict summary alongside git's own markers. contentAt is a
// small seam so callers can source base/ours/theirs content however it fits
// their working-copy layout (already-checked-out ref, vcs.ShowFile, a
// staging mirror, ...).
func ReportConflicts(paths []string, contentAt func(path, side string) []byte) []*Report {
	reports := make([]*Report, 0, len(paths))
	for _, p := range paths {
		base := contentAt(p, "base")
		ours := contentAt(p, "ours")
		theirs := contentAt(p, "theirs")
		reports = append(reports, ComputeReport(p, base, ours, theirs))
	}
	return reports
}
