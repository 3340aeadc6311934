package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/opsdesk/internal/models"
	"github.com/opsdesk/opsdesk/internal/store"
	"github.com/opsdesk/opsdesk/internal/triage"
)

const adminEmail = "ops@example.com"

func setupTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.CreateUser(context.Background(), &models.User{
		Email: adminEmail,
		Name:  "Ops Admin",
		Admin: true,
	}))

	srv := NewServer(s, nil)
	return srv, s
}

func doJSON(t *testing.T, router http.Handler, method, path, body, actor string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBufferString("{}")
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor != "" {
		req.Header.Set("X-Actor", actor)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListIssues_Empty(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("GET", "/api/v1/issues", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var issues []*models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issues))
	assert.Nil(t, issues)
}

func TestIssueCRUD_API(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	// Create: display ID allocated server side
	body := `{"App":"examcoach","Title":"login loop","Severity":"S1","Type":"auth_account_access"}`
	w := doJSON(t, router, "POST", "/api/v1/issues", body, adminEmail)
	assert.Equal(t, http.StatusCreated, w.Code)

	var created models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "login loop", created.Title)
	assert.Equal(t, "EC-1", created.DisplayID)
	assert.NotEmpty(t, created.ID)

	// Get by ULID
	req := httptest.NewRequest("GET", "/api/v1/issues/"+created.ID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Get by display ID
	req = httptest.NewRequest("GET", "/api/v1/issues/EC-1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	var byDisplay models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &byDisplay))
	assert.Equal(t, created.ID, byDisplay.ID)

	// Update
	w = doJSON(t, router, "PUT", "/api/v1/issues/EC-1", `{"Status":"reviewed"}`, adminEmail)
	assert.Equal(t, http.StatusOK, w.Code)
	var updated models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, models.IssueStatusReviewed, updated.Status)

	// Delete
	w = doJSON(t, router, "DELETE", "/api/v1/issues/EC-1", "", adminEmail)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest("GET", "/api/v1/issues/EC-1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateIssue_SequentialDisplayIDs(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	for i, want := range []string{"EC-1", "EC-2", "EC-3"} {
		w := doJSON(t, router, "POST", "/api/v1/issues",
			`{"App":"examcoach","Title":"issue"}`, adminEmail)
		require.Equal(t, http.StatusCreated, w.Code, "create %d", i)

		var created models.Issue
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		assert.Equal(t, want, created.DisplayID)
	}
}

func TestCreateIssue_UnknownApp(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, "POST", "/api/v1/issues",
		`{"App":"notanapp","Title":"x"}`, adminEmail)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMutations_RequireActor(t *testing.T) {
	srv, s := setupTestServer(t)
	router := srv.Router()
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &models.User{Email: "viewer@example.com", Name: "Viewer"}))

	// No actor header
	w := doJSON(t, router, "POST", "/api/v1/issues", `{"App":"examcoach","Title":"x"}`, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Non-admin actor
	w = doJSON(t, router, "POST", "/api/v1/issues", `{"App":"examcoach","Title":"x"}`, "viewer@example.com")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Reads stay open
	req := httptest.NewRequest("GET", "/api/v1/issues", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateIssue_CannotChangeDisplayID(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, "POST", "/api/v1/issues",
		`{"App":"examcoach","Title":"pinned"}`, adminEmail)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, "PUT", "/api/v1/issues/EC-1",
		`{"DisplayID":"EC-999","Title":"renamed"}`, adminEmail)
	assert.Equal(t, http.StatusOK, w.Code)

	var updated models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, "EC-1", updated.DisplayID)
}

func TestUpdateIssue_InvalidSeverity(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, "POST", "/api/v1/issues",
		`{"App":"examcoach","Title":"x"}`, adminEmail)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, "PUT", "/api/v1/issues/EC-1", `{"Severity":"S9"}`, adminEmail)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddNote_API(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, "POST", "/api/v1/issues",
		`{"App":"examcoach","Title":"annotated"}`, adminEmail)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, "POST", "/api/v1/issues/EC-1/notes",
		`{"body":"reproduced on staging"}`, adminEmail)
	assert.Equal(t, http.StatusCreated, w.Code)

	req := httptest.NewRequest("GET", "/api/v1/issues/EC-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var issue models.Issue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issue))
	require.Len(t, issue.Notes, 1)
	assert.Equal(t, "reproduced on staging", issue.Notes[0].Body)
	assert.Equal(t, adminEmail, issue.Notes[0].Author)
}

func TestTriageReport_API(t *testing.T) {
	srv, s := setupTestServer(t)
	router := srv.Router()
	ctx := context.Background()

	seed := []*models.Issue{
		{App: "examcoach", Title: "login broken", Severity: models.SeverityS1, Type: models.IssueTypeAuthAccess},
		{App: "examcoach", Title: "slow chart", Severity: models.SeverityS3},
		{App: "examcoach", Title: "typo", Severity: models.SeverityS4},
		{App: "examcoach", Title: "closed out", Severity: models.SeverityS1, Status: models.IssueStatusClosed},
	}
	for _, issue := range seed {
		require.NoError(t, s.CreateIssue(ctx, issue))
	}

	req := httptest.NewRequest("GET", "/api/v1/triage/report", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var report triage.ComposedReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Len(t, report.FixNow, 1)
	assert.Equal(t, "login broken", report.FixNow[0].Issue.Title)
	assert.Equal(t, "Unassigned", report.FixNow[0].Assignee)
	assert.Len(t, report.FixNext, 1)
	assert.Len(t, report.Parked, 1)
	assert.True(t, report.Summary.CriticalRiskPresent)
	assert.True(t, report.Summary.TesterTrustRiskPresent)
}

func TestBulkImport_API(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	body := `{"app":"mathdrills","rows":[{"title":"one"},{"title":"two","severity":"S2"}]}`
	w := doJSON(t, router, "POST", "/api/v1/import", body, adminEmail)
	assert.Equal(t, http.StatusCreated, w.Code)

	var result struct {
		Imported int             `json:"imported"`
		Issues   []*models.Issue `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Imported)
	require.Len(t, result.Issues, 2)
	assert.Equal(t, "MD-1", result.Issues[0].DisplayID)
	assert.Equal(t, "MD-2", result.Issues[1].DisplayID)
}

func TestBulkImport_RequiresAdmin(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, "POST", "/api/v1/import",
		`{"app":"mathdrills","rows":[{"title":"x"}]}`, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRepairDuplicates_API(t *testing.T) {
	srv, s := setupTestServer(t)
	router := srv.Router()
	ctx := context.Background()

	require.NoError(t, s.CreateIssue(ctx, &models.Issue{DisplayID: "EC-1", App: "examcoach", Title: "first"}))
	require.NoError(t, s.CreateIssue(ctx, &models.Issue{DisplayID: "EC-1", App: "examcoach", Title: "colliding"}))

	w := doJSON(t, router, "POST", "/api/v1/maintenance/repair-duplicates", "", adminEmail)
	assert.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Fixed int      `json:"fixed"`
		Log   []string `json:"log"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Fixed)
	require.Len(t, result.Log, 1)
	assert.Contains(t, result.Log[0], "EC-2")
}

func TestBackfillIDs_API(t *testing.T) {
	srv, s := setupTestServer(t)
	router := srv.Router()
	ctx := context.Background()

	require.NoError(t, s.CreateIssue(ctx, &models.Issue{App: "examcoach", Title: "no id"}))

	w := doJSON(t, router, "POST", "/api/v1/maintenance/backfill-ids", "", adminEmail)
	assert.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Assigned int `json:"assigned"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Assigned)
}

func TestMaintenance_RequiresAdmin(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, "POST", "/api/v1/maintenance/repair-duplicates", "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, "POST", "/api/v1/maintenance/backfill-ids", "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMaintenanceStatus_API(t *testing.T) {
	srv, s := setupTestServer(t)
	router := srv.Router()
	ctx := context.Background()

	require.NoError(t, s.CreateIssue(ctx, &models.Issue{DisplayID: "EC-1", App: "examcoach", Title: "first"}))
	require.NoError(t, s.CreateIssue(ctx, &models.Issue{DisplayID: "EC-1", App: "examcoach", Title: "colliding"}))

	req := httptest.NewRequest("GET", "/api/v1/maintenance/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var reports []struct {
		App          string
		Total        int
		DuplicateIDs []string
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reports))
	require.Len(t, reports, 3)
	assert.Equal(t, "examcoach", reports[0].App)
	assert.Equal(t, 2, reports[0].Total)
	assert.Equal(t, []string{"EC-1"}, reports[0].DuplicateIDs)
}

func TestSuggest_UnavailableWithoutLLM(t *testing.T) {
	srv, s := setupTestServer(t)
	router := srv.Router()

	require.NoError(t, s.CreateIssue(context.Background(),
		&models.Issue{DisplayID: "EC-1", App: "examcoach", Title: "x"}))

	w := doJSON(t, router, "POST", "/api/v1/issues/EC-1/suggest", "", adminEmail)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuditTrail_API(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, "POST", "/api/v1/issues",
		`{"App":"examcoach","Title":"tracked"}`, adminEmail)
	require.Equal(t, http.StatusCreated, w.Code)

	req := httptest.NewRequest("GET", "/api/v1/audit", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var recs []*models.AuditRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, models.AuditActionIssueCreate, recs[0].Action)
	assert.Equal(t, adminEmail, recs[0].Actor)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("OPTIONS", "/api/v1/issues", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
