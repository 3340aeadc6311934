package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/opsdesk/opsdesk/internal/alloc"
	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/authz"
	"github.com/opsdesk/opsdesk/internal/bulkimport"
	"github.com/opsdesk/opsdesk/internal/errs"
	"github.com/opsdesk/opsdesk/internal/health"
	"github.com/opsdesk/opsdesk/internal/llm"
	"github.com/opsdesk/opsdesk/internal/models"
	"github.com/opsdesk/opsdesk/internal/store"
	"github.com/opsdesk/opsdesk/internal/triage"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	llm      *llm.Client
	alloc    *alloc.Allocator
	importer *bulkimport.Importer
	audit    *audit.Recorder
	health   *health.Checker
}

// NewServer creates a new API server.
// The llmClient may be nil if no API key is configured.
func NewServer(s store.Store, llmClient *llm.Client) *Server {
	return &Server{
		store:    s,
		llm:      llmClient,
		alloc:    alloc.New(s),
		importer: bulkimport.New(s),
		audit:    audit.NewRecorder(s),
		health:   health.NewChecker(s),
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/issues", s.listIssues)
	mux.HandleFunc("POST /api/v1/issues", s.createIssue)
	mux.HandleFunc("GET /api/v1/issues/{id}", s.getIssue)
	mux.HandleFunc("PUT /api/v1/issues/{id}", s.updateIssue)
	mux.HandleFunc("DELETE /api/v1/issues/{id}", s.deleteIssue)
	mux.HandleFunc("POST /api/v1/issues/{id}/notes", s.addNote)
	mux.HandleFunc("POST /api/v1/issues/{id}/suggest", s.suggestIssue)

	mux.HandleFunc("GET /api/v1/triage/report", s.triageReport)

	mux.HandleFunc("POST /api/v1/import", s.bulkImport)

	mux.HandleFunc("GET /api/v1/maintenance/status", s.maintenanceStatus)
	mux.HandleFunc("POST /api/v1/maintenance/repair-duplicates", s.repairDuplicates)
	mux.HandleFunc("POST /api/v1/maintenance/backfill-ids", s.backfillIDs)

	mux.HandleFunc("GET /api/v1/users", s.listUsers)
	mux.HandleFunc("GET /api/v1/audit", s.listAudit)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Actor")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps an error's kind onto the HTTP status it represents.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.PermissionDenied:
		status = http.StatusForbidden
	case errs.InvalidArgument:
		status = http.StatusBadRequest
	case errs.NotFound:
		status = http.StatusNotFound
	case errs.PreconditionFailed:
		status = http.StatusPreconditionFailed
	}
	writeError(w, status, err.Error())
}

// actor returns the caller identity for mutation auditing.
func actor(r *http.Request) string {
	return r.Header.Get("X-Actor")
}

// patchString applies a string value from a JSON patch map to the target if the key is present and non-empty.
func patchString(patch map[string]any, key string, target *string) {
	if v, ok := patch[key]; ok {
		if str, ok := v.(string); ok && str != "" {
			*target = str
		}
	}
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.IssueListFilter{
		App:      q.Get("app"),
		Status:   models.IssueStatus(q.Get("status")),
		Severity: models.Severity(q.Get("severity")),
		OpenOnly: q.Get("open") == "true",
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	issues, err := s.store.ListIssues(r.Context(), filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	if err := authz.RequireAdmin(r.Context(), s.store, actor(r)); err != nil {
		writeErr(w, err)
		return
	}

	var issue models.Issue
	if err := json.NewDecoder(r.Body).Decode(&issue); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if issue.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	displayID, err := s.alloc.NextIDForApp(r.Context(), issue.App)
	if err != nil {
		writeErr(w, err)
		return
	}
	issue.DisplayID = displayID

	if err := s.store.CreateIssue(r.Context(), &issue); err != nil {
		writeErr(w, err)
		return
	}
	s.audit.Record(r.Context(), actor(r), models.AuditActionIssueCreate, []string{issue.ID}, nil, &issue)
	writeJSON(w, http.StatusCreated, issue)
}

// resolveIssue accepts either a storage ULID or a display ID in the path.
func (s *Server) resolveIssue(r *http.Request) (*models.Issue, error) {
	id := r.PathValue("id")
	if _, _, ok := alloc.ParseDisplayID(id); ok {
		return s.store.GetIssueByDisplayID(r.Context(), id)
	}
	return s.store.GetIssue(r.Context(), id)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.resolveIssue(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	if err := authz.RequireAdmin(r.Context(), s.store, actor(r)); err != nil {
		writeErr(w, err)
		return
	}

	existing, err := s.resolveIssue(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	before := *existing

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// Selectively merge only keys present in the patch with non-empty values.
	// Empty strings are treated as "not provided" to avoid wiping existing data.
	patchString(patch, "Title", &existing.Title)
	patchString(patch, "Description", &existing.Description)
	var severity, status, issueType, classification string
	patchString(patch, "Severity", &severity)
	patchString(patch, "Status", &status)
	patchString(patch, "Type", &issueType)
	patchString(patch, "Classification", &classification)
	patchString(patch, "UserID", &existing.UserID)
	if severity != "" {
		if !models.Severity(severity).Valid() {
			writeError(w, http.StatusBadRequest, "invalid severity: "+severity)
			return
		}
		existing.Severity = models.Severity(severity)
	}
	if status != "" {
		existing.Status = models.IssueStatus(status)
	}
	if issueType != "" {
		existing.Type = models.IssueType(issueType)
	}
	if classification != "" {
		existing.Classification = models.Classification(classification)
	}

	if err := s.store.UpdateIssue(r.Context(), existing); err != nil {
		writeErr(w, err)
		return
	}
	s.audit.Record(r.Context(), actor(r), models.AuditActionIssueUpdate, []string{existing.ID}, &before, existing)
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	if err := authz.RequireAdmin(r.Context(), s.store, actor(r)); err != nil {
		writeErr(w, err)
		return
	}

	issue, err := s.resolveIssue(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.store.SoftDeleteIssue(r.Context(), issue.ID); err != nil {
		writeErr(w, err)
		return
	}
	s.audit.Record(r.Context(), actor(r), models.AuditActionIssueDelete, []string{issue.ID}, issue, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	if err := authz.RequireAdmin(r.Context(), s.store, actor(r)); err != nil {
		writeErr(w, err)
		return
	}

	issue, err := s.resolveIssue(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Body == "" {
		writeError(w, http.StatusBadRequest, "note body is required")
		return
	}

	note := &models.Note{IssueID: issue.ID, Author: actor(r), Body: req.Body}
	if err := s.store.AppendNote(r.Context(), note); err != nil {
		writeErr(w, err)
		return
	}
	s.audit.Record(r.Context(), actor(r), models.AuditActionIssueNote, []string{issue.ID}, nil, note)
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) suggestIssue(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set ANTHROPIC_API_KEY)")
		return
	}

	issue, err := s.resolveIssue(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	suggestion, err := s.llm.Suggest(r.Context(), issue.Title, issue.Description)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

// --- Triage ---

func (s *Server) triageReport(w http.ResponseWriter, r *http.Request) {
	filter := store.IssueListFilter{App: r.URL.Query().Get("app"), OpenOnly: true}
	issues, err := s.store.ListIssues(r.Context(), filter)
	if err != nil {
		writeErr(w, err)
		return
	}

	report := triage.Classify(issues)
	composed := triage.Compose(report, func(userID string) (string, bool) {
		u, err := s.store.GetUser(r.Context(), userID)
		if err != nil {
			return "", false
		}
		return u.Name, true
	})
	writeJSON(w, http.StatusOK, composed)
}

// --- Bulk import ---

func (s *Server) bulkImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		App  string           `json:"app"`
		Rows []bulkimport.Row `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	issues, err := s.importer.Import(r.Context(), actor(r), req.App, req.Rows)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"imported": len(issues),
		"issues":   issues,
	})
}

// --- Maintenance ---

func (s *Server) maintenanceStatus(w http.ResponseWriter, r *http.Request) {
	reports, err := s.health.CheckAll(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) repairDuplicates(w http.ResponseWriter, r *http.Request) {
	result, err := s.alloc.RepairDuplicates(r.Context(), actor(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) backfillIDs(w http.ResponseWriter, r *http.Request) {
	assigned, err := s.alloc.AssignMissing(r.Context(), actor(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"assigned": assigned})
}

// --- Users & audit ---

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}
	recs, err := s.store.ListAuditRecords(r.Context(), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
