// Package alloc assigns human-readable sequential display identifiers to
// issues without a central atomic counter, and repairs the collisions that
// concurrent allocation inevitably produces.
//
// The allocator derives "next" from a full-collection scan rather than a
// counter document: the max suffix is recomputed from ground truth on every
// call and never cached, so a stale counter can never hand out a reused
// number. The price is that two callers racing between scan and write can
// compute the same value; RepairDuplicates exists to clean that up after the
// fact. Uniqueness here is eventual, not strict.
package alloc

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/errs"
	"github.com/opsdesk/opsdesk/internal/models"
	"github.com/opsdesk/opsdesk/internal/store"
)

// Allocator computes and repairs display identifiers against a store.
type Allocator struct {
	store store.Store
	audit *audit.Recorder
}

// New returns an Allocator backed by the given store.
func New(s store.Store) *Allocator {
	return &Allocator{store: s, audit: audit.NewRecorder(s)}
}

// displayIDPattern matches "<PREFIX>-<N>" and captures both parts.
var displayIDPattern = regexp.MustCompile(`^([A-Z]+)-([0-9]+)$`)

// ParseDisplayID splits a display identifier into prefix and numeric suffix.
func ParseDisplayID(s string) (prefix string, suffix int, ok bool) {
	m := displayIDPattern.FindStringSubmatch(s)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n <= 0 {
		return "", 0, false
	}
	return m[1], n, true
}

// effectiveDisplayID returns the first parsable identifier on a record,
// checking the current field, the legacy pre-migration field, and finally the
// storage key itself (imports once wrote identifier-shaped keys).
func effectiveDisplayID(issue *models.Issue) (string, bool) {
	for _, candidate := range []string{issue.DisplayID, issue.LegacyIssueID, issue.ID} {
		if _, _, ok := ParseDisplayID(candidate); ok {
			return candidate, true
		}
	}
	return "", false
}

// maxSuffixes computes the maximum observed suffix per prefix over the given
// records. Deleted records count: a suffix that was ever observed is never
// handed out again, even if its issue is gone.
func maxSuffixes(issues []*models.Issue) map[string]int {
	max := make(map[string]int)
	for _, issue := range issues {
		id, ok := effectiveDisplayID(issue)
		if !ok {
			continue
		}
		prefix, n, _ := ParseDisplayID(id)
		if n > max[prefix] {
			max[prefix] = n
		}
	}
	return max
}

// NextID computes the next unused display identifier for a prefix.
//
// The scan is deliberately unfiltered, unordered, and unlimited: an ordering
// or limit clause could exclude older, high-numbered, or field-missing
// records and silently produce a duplicate. The caller writes the returned
// value exactly once; NextID itself never retries or locks, and two
// concurrent calls racing between scan and write are expected to collide.
func (a *Allocator) NextID(ctx context.Context, prefix string) (string, error) {
	max, err := a.MaxSuffix(ctx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d", prefix, max+1), nil
}

// MaxSuffix returns the maximum suffix ever observed for a prefix, via the
// same full-collection scan NextID uses. Bulk import seeds itself with one
// call to this before a batch instead of calling NextID per row.
func (a *Allocator) MaxSuffix(ctx context.Context, prefix string) (int, error) {
	if !KnownPrefix(prefix) {
		return 0, errs.New(errs.InvalidArgument, "unknown prefix: %q", prefix)
	}

	issues, err := a.store.ListAllIssues(ctx)
	if err != nil {
		return 0, fmt.Errorf("scan issues: %w", err)
	}
	return maxSuffixes(issues)[prefix], nil
}

// NextIDForApp is NextID keyed by app rather than prefix.
func (a *Allocator) NextIDForApp(ctx context.Context, app string) (string, error) {
	prefix, err := PrefixFor(app)
	if err != nil {
		return "", err
	}
	return a.NextID(ctx, prefix)
}
