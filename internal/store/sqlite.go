package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opsdesk/opsdesk/internal/errs"
	"github.com/opsdesk/opsdesk/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent HTTP requests.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Issues ---

const issueColumns = `id, display_id, app, title, description, severity, status, type, classification, user_id, deleted, legacy_issue_id, created_at, updated_at`

func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	prepareIssueForInsert(issue)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issueInsertArgs(issue)...,
	)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

// CreateIssues inserts a batch of issues in one transaction; all rows commit
// or none do.
func (s *SQLiteStore) CreateIssues(ctx context.Context, issues []*models.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, issue := range issues {
		prepareIssueForInsert(issue)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO issues (`+issueColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			issueInsertArgs(issue)...,
		)
		if err != nil {
			return fmt.Errorf("create issue %q: %w", issue.Title, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func prepareIssueForInsert(issue *models.Issue) {
	if issue.ID == "" {
		issue.ID = newULID()
	}
	if issue.Severity == "" {
		issue.Severity = models.DefaultSeverity
	}
	if issue.Status == "" {
		issue.Status = models.IssueStatusNew
	}
	if issue.Type == "" {
		issue.Type = models.IssueTypeUnknown
	}
	now := time.Now().UTC()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	issue.UpdatedAt = now
}

func issueInsertArgs(issue *models.Issue) []any {
	return []any{
		issue.ID, issue.DisplayID, issue.App, issue.Title, issue.Description,
		string(issue.Severity), string(issue.Status), string(issue.Type),
		string(issue.Classification), issue.UserID, boolToInt(issue.Deleted),
		issue.LegacyIssueID, issue.CreatedAt, issue.UpdatedAt,
	}
}

func scanIssue(scan func(dest ...any) error) (*models.Issue, error) {
	issue := &models.Issue{}
	var severity, status, issueType, classification string

	if err := scan(&issue.ID, &issue.DisplayID, &issue.App, &issue.Title, &issue.Description,
		&severity, &status, &issueType, &classification,
		&issue.UserID, &issue.Deleted, &issue.LegacyIssueID,
		&issue.CreatedAt, &issue.UpdatedAt); err != nil {
		return nil, err
	}

	issue.Severity = models.Severity(severity)
	issue.Status = models.IssueStatus(status)
	issue.Type = models.IssueType(issueType)
	issue.Classification = models.Classification(classification)
	return issue, nil
}

func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)

	issue, err := scanIssue(row.Scan)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.NotFound, "issue not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}

	notes, err := s.GetIssueNotes(ctx, issue.ID)
	if err != nil {
		return nil, err
	}
	issue.Notes = notes
	return issue, nil
}

func (s *SQLiteStore) GetIssueByDisplayID(ctx context.Context, displayID string) (*models.Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE display_id = ? AND deleted = 0`, displayID)

	issue, err := scanIssue(row.Scan)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.NotFound, "issue not found: %s", displayID)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue by display id: %w", err)
	}

	notes, err := s.GetIssueNotes(ctx, issue.ID)
	if err != nil {
		return nil, err
	}
	issue.Notes = notes
	return issue, nil
}

func (s *SQLiteStore) ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE deleted = 0`
	var args []any

	if filter.App != "" {
		query += " AND app = ?"
		args = append(args, filter.App)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	if filter.OpenOnly {
		query += " AND status NOT IN ('closed', 'resolved', 'released', 'archived', 'done')"
	}

	query += ` ORDER BY
		CASE severity WHEN 'S1' THEN 0 WHEN 'S2' THEN 1 WHEN 'S3' THEN 2 WHEN 'S4' THEN 3 ELSE 4 END,
		created_at ASC`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryIssues(ctx, query, args...)
}

func (s *SQLiteStore) ListAllIssues(ctx context.Context) ([]*models.Issue, error) {
	// Deliberately no WHERE, ORDER BY, or LIMIT: allocation scans must see
	// every record, deleted ones included.
	return s.queryIssues(ctx, `SELECT `+issueColumns+` FROM issues`)
}

func (s *SQLiteStore) queryIssues(ctx context.Context, query string, args ...any) ([]*models.Issue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// UpdateIssue writes mutable fields only. display_id and legacy_issue_id are
// intentionally absent from the statement: whatever the caller set on those
// struct fields is dropped here, which keeps display IDs write-once.
func (s *SQLiteStore) UpdateIssue(ctx context.Context, issue *models.Issue) error {
	issue.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE issues SET title=?, description=?, severity=?, status=?, type=?, classification=?, user_id=?, updated_at=?
		WHERE id=?`,
		issue.Title, issue.Description, string(issue.Severity), string(issue.Status),
		string(issue.Type), string(issue.Classification), issue.UserID, issue.UpdatedAt, issue.ID,
	)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return errs.New(errs.NotFound, "issue not found: %s", issue.ID)
	}
	return nil
}

func (s *SQLiteStore) SoftDeleteIssue(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE issues SET deleted = 1, updated_at = ? WHERE id = ?",
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("soft delete issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return errs.New(errs.NotFound, "issue not found: %s", id)
	}
	return nil
}

// AssignDisplayIDs writes display identifiers in one transaction.
func (s *SQLiteStore) AssignDisplayIDs(ctx context.Context, assignments map[string]string) error {
	if len(assignments) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for id, displayID := range assignments {
		result, err := tx.ExecContext(ctx,
			"UPDATE issues SET display_id = ?, updated_at = ? WHERE id = ?",
			displayID, now, id,
		)
		if err != nil {
			return fmt.Errorf("assign display id %s: %w", displayID, err)
		}
		n, _ := result.RowsAffected()
		if n == 0 {
			return errs.New(errs.NotFound, "issue not found: %s", id)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Notes ---

func (s *SQLiteStore) AppendNote(ctx context.Context, note *models.Note) error {
	if note.ID == "" {
		note.ID = newULID()
	}
	note.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (id, issue_id, author, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		note.ID, note.IssueID, note.Author, note.Body, note.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append note: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetIssueNotes(ctx context.Context, issueID string) ([]*models.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, issue_id, author, body, created_at FROM notes
		WHERE issue_id = ? ORDER BY created_at`, issueID)
	if err != nil {
		return nil, fmt.Errorf("get issue notes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notes []*models.Note
	for rows.Next() {
		n := &models.Note{}
		if err := rows.Scan(&n.ID, &n.IssueID, &n.Author, &n.Body, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = newULID()
	}
	u.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, admin, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, boolToInt(u.Admin), u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, admin, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Admin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.NotFound, "user not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, admin, created_at FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Admin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.NotFound, "user not found: %s", email)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, name, admin, created_at FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Admin, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// --- Audit ---

func (s *SQLiteStore) AppendAudit(ctx context.Context, rec *models.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = newULID()
	}
	rec.CreatedAt = time.Now().UTC()

	targetJSON, err := json.Marshal(rec.TargetIDs)
	if err != nil {
		targetJSON = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, actor, action, target_ids, before, after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Actor, rec.Action, string(targetJSON), rec.Before, rec.After, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAuditRecords(ctx context.Context, limit int) ([]*models.AuditRecord, error) {
	query := `SELECT id, actor, action, target_ids, before, after, created_at
		FROM audit_log ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*models.AuditRecord
	for rows.Next() {
		rec := &models.AuditRecord{}
		var targetJSON string
		if err := rows.Scan(&rec.ID, &rec.Actor, &rec.Action, &targetJSON, &rec.Before, &rec.After, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		_ = json.Unmarshal([]byte(targetJSON), &rec.TargetIDs)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Interface guard
var _ Store = (*SQLiteStore)(nil)
