// Package health runs read-only integrity checks over the issue collection:
// duplicate display IDs, records missing an ID, and critical issues that have
// sat untouched. It never writes; repair and backfill live in the alloc
// package.
package health

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opsdesk/opsdesk/internal/alloc"
	"github.com/opsdesk/opsdesk/internal/models"
	"github.com/opsdesk/opsdesk/internal/store"
)

// staleCriticalAfter is how long an S1 may stay open before the report
// flags it.
const staleCriticalAfter = 48 * time.Hour

// AppReport summarizes identity integrity for one app namespace.
type AppReport struct {
	App           string
	Prefix        string
	Total         int      // live (non-deleted) records
	Open          int
	CriticalOpen  int      // open S1s
	StaleCritical int      // open S1s older than staleCriticalAfter
	MissingIDs    int      // live records with no display ID and no legacy fallback
	DuplicateIDs  []string // display IDs held by more than one live record
}

// Clean reports whether the namespace needs no maintenance.
func (r *AppReport) Clean() bool {
	return r.MissingIDs == 0 && len(r.DuplicateIDs) == 0
}

// Checker runs integrity checks against a store.
type Checker struct {
	store store.Store
}

// NewChecker returns a Checker backed by s.
func NewChecker(s store.Store) *Checker {
	return &Checker{store: s}
}

// CheckAll produces one report per registered app, in app-key order.
// The single full scan is shared across apps so every namespace sees the
// same snapshot.
func (c *Checker) CheckAll(ctx context.Context) ([]*AppReport, error) {
	issues, err := c.store.ListAllIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}

	reports := make([]*AppReport, 0, len(alloc.KnownApps()))
	for _, app := range alloc.KnownApps() {
		prefix, err := alloc.PrefixFor(app)
		if err != nil {
			return nil, err
		}
		reports = append(reports, buildReport(app, prefix, issues))
	}
	return reports, nil
}

// CheckApp produces a report for a single registered app.
func (c *Checker) CheckApp(ctx context.Context, app string) (*AppReport, error) {
	prefix, err := alloc.PrefixFor(app)
	if err != nil {
		return nil, err
	}
	issues, err := c.store.ListAllIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return buildReport(app, prefix, issues), nil
}

func buildReport(app, prefix string, issues []*models.Issue) *AppReport {
	r := &AppReport{App: app, Prefix: prefix}

	seen := map[string]int{}
	now := time.Now()

	for _, i := range issues {
		if i.App != app || i.Deleted {
			continue
		}
		r.Total++

		if i.Open() {
			r.Open++
			if i.Severity == models.SeverityS1 {
				r.CriticalOpen++
				if now.Sub(i.CreatedAt) > staleCriticalAfter {
					r.StaleCritical++
				}
			}
		}

		if i.DisplayID == "" {
			if i.LegacyIssueID == "" {
				r.MissingIDs++
			}
			continue
		}
		seen[i.DisplayID]++
	}

	for id, n := range seen {
		if n > 1 {
			r.DuplicateIDs = append(r.DuplicateIDs, id)
		}
	}
	sort.Strings(r.DuplicateIDs)

	return r
}
