package health

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/opsdesk/internal/models"
	"github.com/opsdesk/opsdesk/internal/store"
)

func newTestChecker(t *testing.T) (*Checker, store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	return NewChecker(s), s
}

func seed(t *testing.T, s store.Store, issue *models.Issue) *models.Issue {
	t.Helper()
	if issue.Title == "" {
		issue.Title = "seeded"
	}
	require.NoError(t, s.CreateIssue(context.Background(), issue))
	return issue
}

func TestCheckApp_Clean(t *testing.T) {
	c, s := newTestChecker(t)
	ctx := context.Background()

	seed(t, s, &models.Issue{App: "examcoach", DisplayID: "EC-1"})
	seed(t, s, &models.Issue{App: "examcoach", DisplayID: "EC-2", Status: models.IssueStatusClosed})

	r, err := c.CheckApp(ctx, "examcoach")
	require.NoError(t, err)

	assert.Equal(t, "EC", r.Prefix)
	assert.Equal(t, 2, r.Total)
	assert.Equal(t, 1, r.Open)
	assert.True(t, r.Clean())
}

func TestCheckApp_Duplicates(t *testing.T) {
	c, s := newTestChecker(t)
	ctx := context.Background()

	seed(t, s, &models.Issue{App: "examcoach", DisplayID: "EC-3"})
	seed(t, s, &models.Issue{App: "examcoach", DisplayID: "EC-3"})
	seed(t, s, &models.Issue{App: "examcoach", DisplayID: "EC-5"})

	r, err := c.CheckApp(ctx, "examcoach")
	require.NoError(t, err)

	assert.Equal(t, []string{"EC-3"}, r.DuplicateIDs)
	assert.False(t, r.Clean())
}

func TestCheckApp_MissingIDs(t *testing.T) {
	c, s := newTestChecker(t)
	ctx := context.Background()

	seed(t, s, &models.Issue{App: "mathdrills"})
	// A legacy fallback counts as identified.
	seed(t, s, &models.Issue{App: "mathdrills", LegacyIssueID: "OLD-7"})

	r, err := c.CheckApp(ctx, "mathdrills")
	require.NoError(t, err)

	assert.Equal(t, 1, r.MissingIDs)
	assert.False(t, r.Clean())
}

func TestCheckApp_DeletedExcluded(t *testing.T) {
	c, s := newTestChecker(t)
	ctx := context.Background()

	a := seed(t, s, &models.Issue{App: "examcoach", DisplayID: "EC-1"})
	seed(t, s, &models.Issue{App: "examcoach", DisplayID: "EC-1"})
	require.NoError(t, s.SoftDeleteIssue(ctx, a.ID))

	r, err := c.CheckApp(ctx, "examcoach")
	require.NoError(t, err)

	// The surviving record holds EC-1 alone.
	assert.Equal(t, 1, r.Total)
	assert.Empty(t, r.DuplicateIDs)
}

func TestCheckApp_StaleCritical(t *testing.T) {
	c, s := newTestChecker(t)
	ctx := context.Background()

	seed(t, s, &models.Issue{
		App:       "writinglab",
		DisplayID: "WL-1",
		Severity:  models.SeverityS1,
		CreatedAt: time.Now().Add(-72 * time.Hour),
	})
	seed(t, s, &models.Issue{
		App:       "writinglab",
		DisplayID: "WL-2",
		Severity:  models.SeverityS1,
	})

	r, err := c.CheckApp(ctx, "writinglab")
	require.NoError(t, err)

	assert.Equal(t, 2, r.CriticalOpen)
	assert.Equal(t, 1, r.StaleCritical)
}

func TestCheckApp_UnknownApp(t *testing.T) {
	c, _ := newTestChecker(t)

	_, err := c.CheckApp(context.Background(), "frobnicator")
	assert.Error(t, err)
}

func TestCheckAll(t *testing.T) {
	c, s := newTestChecker(t)
	ctx := context.Background()

	seed(t, s, &models.Issue{App: "examcoach", DisplayID: "EC-1"})
	seed(t, s, &models.Issue{App: "mathdrills", DisplayID: "MD-1"})
	seed(t, s, &models.Issue{App: "mathdrills", DisplayID: "MD-1"})

	reports, err := c.CheckAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 3)

	byApp := map[string]*AppReport{}
	for _, r := range reports {
		byApp[r.App] = r
	}

	assert.True(t, byApp["examcoach"].Clean())
	assert.Equal(t, []string{"MD-1"}, byApp["mathdrills"].DuplicateIDs)
	assert.Equal(t, 0, byApp["writinglab"].Total)
	assert.True(t, byApp["writinglab"].Clean())
}
