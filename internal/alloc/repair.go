package alloc

import (
	"context"
	"fmt"
	"sort"

	"github.com/opsdesk/opsdesk/internal/authz"
	"github.com/opsdesk/opsdesk/internal/errs"
	"github.com/opsdesk/opsdesk/internal/models"
)

// maxRepairWrites caps the number of reassignments a single repair pass may
// commit. Beyond this the pass aborts with zero writes and asks for manual or
// chunked intervention instead of partially repairing the collection.
const maxRepairWrites = 500

// RepairResult reports what a repair pass did.
type RepairResult struct {
	Fixed int      `json:"fixed"`
	Log   []string `json:"log"`
}

// dupKey groups duplicates by (prefix, suffix). Grouping by bare suffix would
// flag EC-7 and MD-7 as duplicates of each other; the uniqueness invariant is
// per prefix.
type dupKey struct {
	prefix string
	suffix int
}

// RepairDuplicates finds live issues whose display identifiers collide and
// reassigns fresh identifiers to all but the earliest-created member of each
// colliding group.
//
// Replacement numbers are drawn from the per-prefix maximum computed once
// across the whole scan (deleted records included) before any reassignment,
// so reassignments cannot collide with each other or with anything already
// observed. All writes commit as one batch. Re-running with no duplicates
// present performs no writes and reports fixed: 0.
func (a *Allocator) RepairDuplicates(ctx context.Context, actor string) (*RepairResult, error) {
	if err := authz.RequireAdmin(ctx, a.store, actor); err != nil {
		return nil, err
	}

	issues, err := a.store.ListAllIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan issues: %w", err)
	}

	groups := make(map[dupKey][]*models.Issue)
	for _, issue := range issues {
		if issue.Deleted {
			continue
		}
		id, ok := effectiveDisplayID(issue)
		if !ok {
			continue
		}
		prefix, suffix, _ := ParseDisplayID(id)
		key := dupKey{prefix, suffix}
		groups[key] = append(groups[key], issue)
	}

	// Deterministic group order: by prefix, then suffix.
	keys := make([]dupKey, 0, len(groups))
	for key, members := range groups {
		if len(members) > 1 {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].prefix != keys[j].prefix {
			return keys[i].prefix < keys[j].prefix
		}
		return keys[i].suffix < keys[j].suffix
	})

	if len(keys) == 0 {
		return &RepairResult{Fixed: 0, Log: []string{"no duplicates found"}}, nil
	}

	// Global max per prefix, computed once before any reassignment.
	max := maxSuffixes(issues)

	type reassignment struct {
		issue *models.Issue
		oldID string
		newID string
		k     int // duplicate ordinal within its group (1 = first loser)
	}
	var plan []reassignment

	for _, key := range keys {
		members := groups[key]
		sort.Slice(members, func(i, j int) bool {
			if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
				return members[i].CreatedAt.Before(members[j].CreatedAt)
			}
			return members[i].ID < members[j].ID
		})

		// Earliest-created member keeps its identifier.
		for k, issue := range members[1:] {
			oldID, _ := effectiveDisplayID(issue)
			max[key.prefix]++
			plan = append(plan, reassignment{
				issue: issue,
				oldID: oldID,
				newID: fmt.Sprintf("%s-%d", key.prefix, max[key.prefix]),
				k:     k + 1,
			})
		}
	}

	if len(plan) > maxRepairWrites {
		return nil, errs.New(errs.PreconditionFailed,
			"repair requires %d writes, above the %d-write ceiling; chunked or manual intervention required",
			len(plan), maxRepairWrites)
	}

	assignments := make(map[string]string, len(plan))
	for _, r := range plan {
		assignments[r.issue.ID] = r.newID
	}
	if err := a.store.AssignDisplayIDs(ctx, assignments); err != nil {
		return nil, fmt.Errorf("reassign display ids: %w", err)
	}

	result := &RepairResult{Fixed: len(plan), Log: make([]string, 0, len(plan))}
	for _, r := range plan {
		result.Log = append(result.Log, fmt.Sprintf("%s (duplicate #%d) -> %s", r.oldID, r.k, r.newID))
		a.audit.Record(ctx, actor, models.AuditActionRepairDuplicates,
			[]string{r.issue.ID},
			map[string]string{"display_id": r.oldID},
			map[string]string{"display_id": r.newID})
	}
	return result, nil
}
