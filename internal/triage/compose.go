package triage

import (
	"fmt"
	"strings"

	"github.com/opsdesk/opsdesk/internal/models"
)

// AssigneeLookup resolves a user ID to a display label. It returns false when
// the ID cannot be resolved; ResolveAssignee then falls back on the raw value.
type AssigneeLookup func(userID string) (string, bool)

// ComposedItem is one report row with all display fields resolved.
type ComposedItem struct {
	Issue    *models.Issue `json:"issue"`
	Reason   string        `json:"reason"`
	Assignee string        `json:"assignee"`
}

// ComposedReport is the externally consumed report shape: the three ordered
// buckets with resolved assignees, plus the summary.
type ComposedReport struct {
	FixNow  []*ComposedItem `json:"fixNow"`
	FixNext []*ComposedItem `json:"fixNext"`
	Parked  []*ComposedItem `json:"parked"`
	Summary Summary         `json:"summary"`
}

// ResolveAssignee maps a user ID to a display label. Unset IDs show as
// "Unassigned"; unresolvable email-looking IDs pass through raw; anything
// else unresolvable is truncated so opaque auth UIDs don't clutter the
// report.
func ResolveAssignee(userID string, lookup AssigneeLookup) string {
	if userID == "" {
		return "Unassigned"
	}
	if lookup != nil {
		if name, ok := lookup(userID); ok && name != "" {
			return name
		}
	}
	if strings.Contains(userID, "@") {
		return userID
	}
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("Unknown (%s...)", short)
}

// Compose attaches resolved assignees to every classified item.
func Compose(report *Report, lookup AssigneeLookup) *ComposedReport {
	composeBucket := func(items []*Item) []*ComposedItem {
		out := make([]*ComposedItem, 0, len(items))
		for _, item := range items {
			out = append(out, &ComposedItem{
				Issue:    item.Issue,
				Reason:   item.Reason,
				Assignee: ResolveAssignee(item.Issue.UserID, lookup),
			})
		}
		return out
	}

	return &ComposedReport{
		FixNow:  composeBucket(report.FixNow),
		FixNext: composeBucket(report.FixNext),
		Parked:  composeBucket(report.Parked),
		Summary: report.Summary,
	}
}
