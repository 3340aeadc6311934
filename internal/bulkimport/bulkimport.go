// Package bulkimport loads batches of issue rows from CSV or JSON and commits
// them in a single all-or-nothing batch with display identifiers allocated
// from one seed.
package bulkimport

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/opsdesk/opsdesk/internal/alloc"
	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/authz"
	"github.com/opsdesk/opsdesk/internal/errs"
	"github.com/opsdesk/opsdesk/internal/models"
	"github.com/opsdesk/opsdesk/internal/store"
)

// MaxRows caps a single import batch.
const MaxRows = 500

// Row is one incoming issue row. Only Title is required.
type Row struct {
	Title    string `json:"title"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
	Category string `json:"category"`
	Reporter string `json:"reporter"`
}

// Importer commits issue batches against a store.
type Importer struct {
	store store.Store
	alloc *alloc.Allocator
	audit *audit.Recorder
}

// New returns an Importer backed by the given store.
func New(s store.Store) *Importer {
	return &Importer{store: s, alloc: alloc.New(s), audit: audit.NewRecorder(s)}
}

// Import normalizes rows, allocates display identifiers from a single seed,
// and commits everything in one transaction. The allocator scan runs once
// before the batch, not once per row, so rows receive consecutive numbers in
// input order. Returns the created issues.
func (im *Importer) Import(ctx context.Context, actor, app string, rows []Row) ([]*models.Issue, error) {
	if err := authz.RequireAdmin(ctx, im.store, actor); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errs.New(errs.InvalidArgument, "no rows to import")
	}
	if len(rows) > MaxRows {
		return nil, errs.New(errs.InvalidArgument, "%d rows exceeds the %d-row import limit", len(rows), MaxRows)
	}
	for i, row := range rows {
		if strings.TrimSpace(row.Title) == "" {
			return nil, errs.New(errs.InvalidArgument, "row %d has no title", i+1)
		}
	}

	prefix, err := alloc.PrefixFor(app)
	if err != nil {
		return nil, err
	}
	max, err := im.alloc.MaxSuffix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	issues := make([]*models.Issue, 0, len(rows))
	for i, row := range rows {
		issues = append(issues, &models.Issue{
			DisplayID: fmt.Sprintf("%s-%d", prefix, max+1+i),
			App:       app,
			Title:     strings.TrimSpace(row.Title),
			Severity:  normalizeSeverity(row.Severity),
			Status:    normalizeStatus(row.Status),
			Type:      normalizeCategory(row.Category),
			UserID:    strings.TrimSpace(row.Reporter),
		})
	}

	if err := im.store.CreateIssues(ctx, issues); err != nil {
		return nil, fmt.Errorf("import batch: %w", err)
	}

	ids := make([]string, 0, len(issues))
	created := make(map[string]string, len(issues))
	for _, issue := range issues {
		ids = append(ids, issue.ID)
		created[issue.ID] = issue.DisplayID
	}
	im.audit.Record(ctx, actor, models.AuditActionBulkImport, ids, nil, created)

	return issues, nil
}

// normalizeStatus maps free-form input onto the fixed status enum; anything
// unrecognized (or missing) becomes "new".
func normalizeStatus(s string) models.IssueStatus {
	status := models.IssueStatus(strings.ToLower(strings.TrimSpace(s)))
	switch status {
	case models.IssueStatusNew, models.IssueStatusReviewed, models.IssueStatusInProgress,
		models.IssueStatusWorking, models.IssueStatusClosed, models.IssueStatusResolved,
		models.IssueStatusReleased, models.IssueStatusArchived, models.IssueStatusDone:
		return status
	}
	return models.IssueStatusNew
}

func normalizeSeverity(s string) models.Severity {
	severity := models.Severity(strings.ToUpper(strings.TrimSpace(s)))
	if severity.Valid() {
		return severity
	}
	return models.DefaultSeverity
}

func normalizeCategory(s string) models.IssueType {
	category := models.IssueType(strings.ToLower(strings.TrimSpace(s)))
	switch category {
	case models.IssueTypeAuthAccess, models.IssueTypeUXNavigation, models.IssueTypeAssessmentScore,
		models.IssueTypeTutorOutput, models.IssueTypeBilling, models.IssueTypeContent,
		models.IssueTypeCosmetic, models.IssueTypePerformance:
		return category
	}
	return models.IssueTypeUnknown
}

// ParseCSV reads rows from CSV input. The first record is a header; columns
// are matched by name (title, severity, status, category, reporter) in any
// order.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parse csv")
	}
	if len(records) < 2 {
		return nil, errs.New(errs.InvalidArgument, "csv has no data rows")
	}

	col := make(map[string]int)
	for i, name := range records[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["title"]; !ok {
		return nil, errs.New(errs.InvalidArgument, "csv is missing a title column")
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, Row{
			Title:    field(record, "title"),
			Severity: field(record, "severity"),
			Status:   field(record, "status"),
			Category: field(record, "category"),
			Reporter: field(record, "reporter"),
		})
	}
	return rows, nil
}

// ParseJSON reads rows from a JSON array of row objects.
func ParseJSON(r io.Reader) ([]Row, error) {
	var rows []Row
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parse json")
	}
	return rows, nil
}
