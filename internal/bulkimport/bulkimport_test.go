package bulkimport

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/opsdesk/internal/errs"
	"github.com/opsdesk/opsdesk/internal/models"
	"github.com/opsdesk/opsdesk/internal/store"
)

const adminEmail = "ops@example.com"

func newTestImporter(t *testing.T) (*Importer, store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.CreateUser(context.Background(), &models.User{
		Email: adminEmail,
		Name:  "Ops Admin",
		Admin: true,
	}))

	return New(s), s
}

func TestImport_AssignsSequentialIDsFromSeed(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	require.NoError(t, s.CreateIssue(ctx, &models.Issue{
		DisplayID: "EC-7",
		App:       "examcoach",
		Title:     "existing",
	}))

	rows := []Row{
		{Title: "login button broken", Severity: "S1", Category: "auth_account_access"},
		{Title: "quiz score off by one", Severity: "S2", Status: "reviewed", Category: "assessment_scoring"},
		{Title: "footer typo"},
	}
	issues, err := im.Import(ctx, adminEmail, "examcoach", rows)
	require.NoError(t, err)
	require.Len(t, issues, 3)

	assert.Equal(t, "EC-8", issues[0].DisplayID)
	assert.Equal(t, "EC-9", issues[1].DisplayID)
	assert.Equal(t, "EC-10", issues[2].DisplayID)

	got, err := s.GetIssueByDisplayID(ctx, "EC-9")
	require.NoError(t, err)
	assert.Equal(t, "quiz score off by one", got.Title)
	assert.Equal(t, models.SeverityS2, got.Severity)
	assert.Equal(t, models.IssueStatusReviewed, got.Status)
	assert.Equal(t, models.IssueTypeAssessmentScore, got.Type)
}

func TestImport_NormalizesDefaults(t *testing.T) {
	im, _ := newTestImporter(t)

	issues, err := im.Import(context.Background(), adminEmail, "mathdrills", []Row{
		{Title: "something odd", Severity: "sev-high", Status: "triaged", Category: "widgets"},
	})
	require.NoError(t, err)
	require.Len(t, issues, 1)

	assert.Equal(t, "MD-1", issues[0].DisplayID)
	assert.Equal(t, models.DefaultSeverity, issues[0].Severity)
	assert.Equal(t, models.IssueStatusNew, issues[0].Status)
	assert.Equal(t, models.IssueTypeUnknown, issues[0].Type)
}

func TestImport_RejectsEmptyBatch(t *testing.T) {
	im, _ := newTestImporter(t)

	_, err := im.Import(context.Background(), adminEmail, "examcoach", nil)
	assert.True(t, errs.IsKind(err, errs.InvalidArgument))
}

func TestImport_RejectsOversizedBatch(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	rows := make([]Row, MaxRows+1)
	for i := range rows {
		rows[i] = Row{Title: fmt.Sprintf("issue %d", i)}
	}
	_, err := im.Import(ctx, adminEmail, "examcoach", rows)
	assert.True(t, errs.IsKind(err, errs.InvalidArgument))

	all, err := s.ListAllIssues(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "oversized batch must write nothing")
}

func TestImport_RejectsUntitledRow(t *testing.T) {
	im, _ := newTestImporter(t)

	_, err := im.Import(context.Background(), adminEmail, "examcoach", []Row{
		{Title: "fine"},
		{Title: "   "},
	})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.InvalidArgument))
	assert.Contains(t, err.Error(), "row 2")
}

func TestImport_RejectsUnknownApp(t *testing.T) {
	im, _ := newTestImporter(t)

	_, err := im.Import(context.Background(), adminEmail, "notanapp", []Row{{Title: "x"}})
	assert.True(t, errs.IsKind(err, errs.InvalidArgument))
}

func TestImport_RequiresAdmin(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &models.User{Email: "viewer@example.com", Name: "Viewer"}))

	_, err := im.Import(ctx, "viewer@example.com", "examcoach", []Row{{Title: "x"}})
	assert.True(t, errs.IsKind(err, errs.PermissionDenied))

	_, err = im.Import(ctx, "", "examcoach", []Row{{Title: "x"}})
	assert.True(t, errs.IsKind(err, errs.PermissionDenied))
}

func TestImport_WritesAuditRecord(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	_, err := im.Import(ctx, adminEmail, "writinglab", []Row{{Title: "draft lost on save"}})
	require.NoError(t, err)

	recs, err := s.ListAuditRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.AuditActionBulkImport, recs[0].Action)
	assert.Equal(t, adminEmail, recs[0].Actor)
	assert.Contains(t, recs[0].After, "WL-1")
}

func TestParseCSV(t *testing.T) {
	input := strings.NewReader(
		"title,severity,status,category,reporter\n" +
			"login loop,S1,new,auth_account_access,kim@example.com\n" +
			"slow dashboard,S3,,performance,\n")

	rows, err := ParseCSV(input)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, Row{
		Title:    "login loop",
		Severity: "S1",
		Status:   "new",
		Category: "auth_account_access",
		Reporter: "kim@example.com",
	}, rows[0])
	assert.Equal(t, "slow dashboard", rows[1].Title)
	assert.Empty(t, rows[1].Status)
}

func TestParseCSV_ColumnOrderIndependent(t *testing.T) {
	input := strings.NewReader("severity,title\nS2,reordered columns\n")

	rows, err := ParseCSV(input)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "reordered columns", rows[0].Title)
	assert.Equal(t, "S2", rows[0].Severity)
}

func TestParseCSV_MissingTitleColumn(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("severity,status\nS1,new\n"))
	assert.True(t, errs.IsKind(err, errs.InvalidArgument))
}

func TestParseCSV_NoDataRows(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("title,severity\n"))
	assert.True(t, errs.IsKind(err, errs.InvalidArgument))
}

func TestParseJSON(t *testing.T) {
	input := strings.NewReader(`[{"title":"broken link","severity":"S4","category":"content_typo"}]`)

	rows, err := ParseJSON(input)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "broken link", rows[0].Title)
	assert.Equal(t, "S4", rows[0].Severity)
}

func TestParseJSON_Malformed(t *testing.T) {
	_, err := ParseJSON(strings.NewReader(`{"title":`))
	assert.True(t, errs.IsKind(err, errs.InvalidArgument))
}
