package store

import (
	"context"

	"github.com/opsdesk/opsdesk/internal/models"
)

// IssueListFilter specifies filters for the ordered, limited issue list used
// by UI-facing read paths. Maintenance scans must use ListAllIssues instead.
type IssueListFilter struct {
	App      string
	Status   models.IssueStatus
	Severity models.Severity
	OpenOnly bool
	Limit    int
}

// Store defines the persistence interface for opsdesk.
type Store interface {
	// Issues
	CreateIssue(ctx context.Context, issue *models.Issue) error
	CreateIssues(ctx context.Context, issues []*models.Issue) error
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	GetIssueByDisplayID(ctx context.Context, displayID string) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error)

	// ListAllIssues returns every issue record with no filter, ordering, or
	// limit clause, soft-deleted records included. The identifier allocator
	// and collision repairer depend on this read seeing the entire
	// collection; narrowing it can silently produce duplicate display IDs.
	ListAllIssues(ctx context.Context) ([]*models.Issue, error)

	// UpdateIssue applies mutable fields only. The display identifier and
	// its legacy fallback are never part of the UPDATE statement, which is
	// the strip-on-update guard that keeps display IDs write-once.
	UpdateIssue(ctx context.Context, issue *models.Issue) error
	SoftDeleteIssue(ctx context.Context, id string) error

	// AssignDisplayIDs writes display identifiers for the given storage-ID →
	// display-ID pairs in one transaction; all assignments commit or none do.
	// This is the only write path for the display_id column.
	AssignDisplayIDs(ctx context.Context, assignments map[string]string) error

	// Notes
	AppendNote(ctx context.Context, note *models.Note) error
	GetIssueNotes(ctx context.Context, issueID string) ([]*models.Note, error)

	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)

	// Audit
	AppendAudit(ctx context.Context, rec *models.AuditRecord) error
	ListAuditRecords(ctx context.Context, limit int) ([]*models.AuditRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
