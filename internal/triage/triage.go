// Package triage classifies open issues into actionable priority buckets and
// derives the aggregate risk summary shown to operators.
//
// Classification is a deterministic ordered rule list, not a dispatch
// hierarchy: rules are evaluated in a strict precedence order and the first
// match wins, so every outcome can be enumerated in tests. The whole package
// is pure; it never touches the store and never fails on malformed records.
package triage

import (
	"fmt"
	"sort"

	"github.com/opsdesk/opsdesk/internal/models"
)

// Item is one classified issue with the human-readable justification for its
// bucket.
type Item struct {
	Issue  *models.Issue `json:"issue"`
	Reason string        `json:"reason"`
}

// Summary carries the executive risk signals over the open set.
type Summary struct {
	SeverityCounts         map[models.Severity]int `json:"severityCounts"`
	CriticalRiskPresent    bool                    `json:"criticalRiskPresent"`
	TesterTrustRiskPresent bool                    `json:"testerTrustRiskPresent"`
}

// Report is the classifier output: three priority buckets plus the summary.
type Report struct {
	FixNow  []*Item `json:"fixNow"`
	FixNext []*Item `json:"fixNext"`
	Parked  []*Item `json:"parked"`
	Summary Summary `json:"summary"`
}

// Missing fields never fail classification; they take these defaults.
func effectiveSeverity(i *models.Issue) models.Severity {
	if !i.Severity.Valid() {
		return models.DefaultSeverity
	}
	return i.Severity
}

func effectiveStatus(i *models.Issue) models.IssueStatus {
	if i.Status == "" {
		return models.IssueStatusNew
	}
	return i.Status
}

func effectiveType(i *models.Issue) models.IssueType {
	if i.Type == "" {
		return models.IssueTypeUnknown
	}
	return i.Type
}

// actionableStatuses are the statuses eligible for Fix-Now: work not yet
// picked up. An issue already in flight stays out of Fix-Now even at S1.
var actionableStatuses = map[models.IssueStatus]bool{
	models.IssueStatusNew:      true,
	models.IssueStatusReviewed: true,
}

// Classify routes each open issue into exactly one bucket.
//
// Precedence per issue, first match wins:
//  1. explicit classification override
//  2. Fix-Now eligibility (S1/S2, actionable status, trust-impacting type)
//  3. severity fallback; an S1 that misses Fix-Now lands in Fix-Next with a
//     status-referencing reason, never dropped
func Classify(openIssues []*models.Issue) *Report {
	report := &Report{
		Summary: Summary{SeverityCounts: make(map[models.Severity]int)},
	}

	for _, issue := range openIssues {
		severity := effectiveSeverity(issue)
		report.Summary.SeverityCounts[severity]++
		if severity == models.SeverityS1 {
			report.Summary.CriticalRiskPresent = true
		}
		if (severity == models.SeverityS1 || severity == models.SeverityS2) && effectiveType(issue).TrustImpacting() {
			report.Summary.TesterTrustRiskPresent = true
		}

		bucket, reason := classifyOne(issue)
		item := &Item{Issue: issue, Reason: reason}
		switch bucket {
		case bucketFixNow:
			report.FixNow = append(report.FixNow, item)
		case bucketFixNext:
			report.FixNext = append(report.FixNext, item)
		case bucketParked:
			report.Parked = append(report.Parked, item)
		}
	}

	sortItems(report.FixNow)
	sortItems(report.FixNext)
	sortItems(report.Parked)
	return report
}

type bucket int

const (
	bucketFixNow bucket = iota
	bucketFixNext
	bucketParked
)

func classifyOne(issue *models.Issue) (bucket, string) {
	severity := effectiveSeverity(issue)
	status := effectiveStatus(issue)
	issueType := effectiveType(issue)

	// Rule 1: explicit override short-circuits all heuristics.
	switch issue.Classification {
	case models.ClassificationBlocking:
		return bucketFixNow, "explicitly classified as blocking"
	case models.ClassificationMisleading, models.ClassificationTrust:
		// Signal/insight issues ride along in Fix-Next for the three-bucket
		// report rather than getting a bucket of their own.
		return bucketFixNext, fmt.Sprintf("explicitly classified as %s signal", issue.Classification)
	case models.ClassificationCosmetic:
		return bucketParked, "explicitly classified as cosmetic"
	}

	// Rule 2: Fix-Now eligibility.
	if (severity == models.SeverityS1 || severity == models.SeverityS2) &&
		actionableStatuses[status] && issueType.TrustImpacting() {
		if severity == models.SeverityS1 {
			return bucketFixNow, "S1 blocks tester trust"
		}
		return bucketFixNow, "S2 visible to users"
	}

	// Rule 3: severity fallback.
	switch severity {
	case models.SeverityS4:
		return bucketParked, "low severity — safe to defer"
	case models.SeverityS1:
		// Never drop an S1: it failed Fix-Now on status or category.
		return bucketFixNext, fmt.Sprintf("S1 outside Fix-Now criteria (status %s) — may already be in progress", status)
	case models.SeverityS2:
		return bucketFixNext, "S2 outside Fix-Now criteria"
	default:
		return bucketFixNext, "S3 — address when Fix-Now is clear"
	}
}

// sortItems orders a bucket: most severe first, oldest first within a
// severity. Stable "oldest most-severe first" suits a work queue.
func sortItems(items []*Item) {
	sort.SliceStable(items, func(i, j int) bool {
		wi := effectiveSeverity(items[i].Issue).Weight()
		wj := effectiveSeverity(items[j].Issue).Weight()
		if wi != wj {
			return wi < wj
		}
		return items[i].Issue.CreatedAt.Before(items[j].Issue.CreatedAt)
	})
}
