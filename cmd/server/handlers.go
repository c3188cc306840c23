package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/brunobiangulo/logsight"
	"github.com/brunobiangulo/logsight/auth"
	"github.com/brunobiangulo/logsight/store"
)

type handler struct {
	engine logsight.Engine
	auth   *auth.Authenticator
	cfg    logsight.Config
}

func newHandler(e logsight.Engine, a *auth.Authenticator, cfg logsight.Config) *handler {
	return &handler{engine: e, auth: a, cfg: cfg}
}

func (h *handler) store() *store.Store { return h.engine.Store() }

// limiters groups the per-route-class rate limiters.
type limiters struct {
	read     *rateLimiter
	mutate   *rateLimiter
	insight  *rateLimiter
	login    *rateLimiter
	register *rateLimiter
}

// routes registers the API surface on mux. Authentication is applied by the
// surrounding middleware chain; here each route only picks its rate class.
func (h *handler) routes(mux *http.ServeMux, rl limiters) {
	mux.HandleFunc("POST /api/v1/auth/register", rl.register.wrap(h.handleRegister))
	mux.HandleFunc("POST /api/v1/auth/login", rl.login.wrap(h.handleLogin))
	mux.HandleFunc("GET /api/v1/auth/me", rl.read.wrap(h.handleMe))

	mux.HandleFunc("POST /api/v1/orgs", rl.mutate.wrap(h.handleCreateOrg))
	mux.HandleFunc("GET /api/v1/orgs", rl.read.wrap(h.handleListOrgs))
	mux.HandleFunc("POST /api/v1/orgs/{org_id}/projects", rl.mutate.wrap(h.handleCreateProject))
	mux.HandleFunc("GET /api/v1/orgs/{org_id}/projects", rl.read.wrap(h.handleListProjects))

	ing := "/api/v1/orgs/{org_id}/projects/{project_id}/ingestions"
	mux.HandleFunc("POST "+ing, rl.mutate.wrap(h.handleCreateIngestion))
	mux.HandleFunc("GET "+ing, rl.read.wrap(h.handleListIngestions))
	mux.HandleFunc("POST "+ing+"/{id}/logs/paste", rl.mutate.wrap(h.handlePaste))
	mux.HandleFunc("POST "+ing+"/{id}/logs/upload", rl.mutate.wrap(h.handleUpload))
	mux.HandleFunc("GET "+ing+"/{id}", rl.read.wrap(h.handleGetIngestion))
	mux.HandleFunc("GET "+ing+"/{id}/overview", rl.read.wrap(h.handleOverview))
	mux.HandleFunc("GET "+ing+"/{id}/events", rl.read.wrap(h.handleEvents))
	mux.HandleFunc("GET "+ing+"/{id}/groups", rl.read.wrap(h.handleGroups))
	mux.HandleFunc("GET "+ing+"/{id}/groups/{fingerprint}", rl.read.wrap(h.handleGroupDetail))
	mux.HandleFunc("GET "+ing+"/{id}/findings", rl.read.wrap(h.handleFindings))
	mux.HandleFunc("GET "+ing+"/{id}/findings/{finding_id}", rl.read.wrap(h.handleFindingDetail))
	mux.HandleFunc("POST "+ing+"/{id}/insights", rl.insight.wrap(h.handleGenerateInsight))
	mux.HandleFunc("DELETE "+ing+"/{id}", rl.mutate.wrap(h.handleDeleteIngestion))
}

// --- Auth ---

// POST /api/v1/auth/register
// Creates the user plus a personal organization they administer.
func (h *handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	ctx := r.Context()
	user, err := h.store().CreateUser(ctx, req.Email, hash, req.Name)
	if err != nil {
		if store.IsUniqueViolation(err) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		h.internalError(w, r, err)
		return
	}

	orgName := req.Name
	if orgName == "" {
		orgName = req.Email
	}
	org, err := h.store().CreateOrganization(ctx, orgName+"'s Organization")
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if _, err := h.store().AddOrgMember(ctx, org.ID, user.ID, "admin"); err != nil {
		h.internalError(w, r, err)
		return
	}

	token, err := h.auth.IssueToken(user.ID, time.Now())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":         user,
		"organization": org,
		"access_token": token,
	})
}

// POST /api/v1/auth/login
func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	user, err := h.store().GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.internalError(w, r, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.auth.IssueToken(user.ID, time.Now())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// GET /api/v1/auth/me
func (h *handler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	user, err := h.store().GetUser(r.Context(), userID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	orgs, err := h.store().ListOrgsForUser(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":          user,
		"organizations": emptyIfNil(orgs),
	})
}

// --- Organizations and projects ---

// POST /api/v1/orgs
func (h *handler) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	userID, _ := userFrom(r.Context())
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	org, err := h.store().CreateOrganization(r.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if _, err := h.store().AddOrgMember(r.Context(), org.ID, userID, "admin"); err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// GET /api/v1/orgs
func (h *handler) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	userID, _ := userFrom(r.Context())
	orgs, err := h.store().ListOrgsForUser(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"organizations": emptyIfNil(orgs)})
}

// POST /api/v1/orgs/{org_id}/projects
func (h *handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.requireMembership(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	project, err := h.store().CreateProject(r.Context(), orgID, strings.TrimSpace(req.Name))
	if err != nil {
		if store.IsUniqueViolation(err) {
			writeError(w, http.StatusConflict, "a project with that name already exists")
			return
		}
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// GET /api/v1/orgs/{org_id}/projects
func (h *handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.requireMembership(w, r)
	if !ok {
		return
	}
	projects, err := h.store().ListProjects(r.Context(), orgID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"projects": emptyIfNil(projects)})
}

// --- Ingestions ---

// POST .../ingestions
func (h *handler) handleCreateIngestion(w http.ResponseWriter, r *http.Request) {
	project, ok := h.scopedProject(w, r)
	if !ok {
		return
	}
	var req struct {
		SourceType string `json:"source_type"`
		Filename   string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ing, err := h.engine.CreateIngestion(r.Context(), project.ID, req.SourceType, req.Filename)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ing)
}

// GET .../ingestions
func (h *handler) handleListIngestions(w http.ResponseWriter, r *http.Request) {
	project, ok := h.scopedProject(w, r)
	if !ok {
		return
	}
	list, err := h.store().ListIngestions(r.Context(), project.ID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ingestions": emptyIfNil(list)})
}

// POST .../ingestions/{id}/logs/paste
func (h *handler) handlePaste(w http.ResponseWriter, r *http.Request) {
	ing, ok := h.scopedIngestion(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	if err := h.engine.SubmitText(r.Context(), ing.ID, req.Text); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ingestion_id": ing.ID,
		"status":       store.StatusPending,
	})
}

// POST .../ingestions/{id}/logs/upload
// Accepts a multipart file which must decode as UTF-8 text.
func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ing, ok := h.scopedIngestion(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(h.cfg.MaxBodyBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload failed")
		return
	}
	if !utf8.Valid(data) {
		writeError(w, http.StatusBadRequest, "file must be UTF-8 text")
		return
	}

	if err := h.engine.SubmitText(r.Context(), ing.ID, string(data)); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ingestion_id": ing.ID,
		"status":       store.StatusPending,
	})
}

// GET .../ingestions/{id}
func (h *handler) handleGetIngestion(w http.ResponseWriter, r *http.Request) {
	ing, ok := h.scopedIngestion(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ing)
}

// GET .../ingestions/{id}/overview
func (h *handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	ing, ok := h.scopedIngestion(w, r)
	if !ok {
		return
	}
	overview, err := h.engine.Overview(r.Context(), ing.ID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// GET .../ingestions/{id}/events
// Cursor pagination: strict seq > cursor, limit in (0,500], with a limit+1
// probe deciding has_more.
func (h *handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ing, ok := h.scopedIngestion(w, r)
	if !ok {
		return
	}

	filter, err := eventFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := filter.Limit
	filter.Limit = limit + 1
	items, err := h.store().ListEvents(r.Context(), ing.ID, filter)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	var nextCursor *int64
	if hasMore && len(items) > 0 {
		c := items[len(items)-1].Seq
		nextCursor = &c
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":       emptyIfNil(items),
		"next_cursor": nextCursor,
		"has_more":    hasMore,
	})
}

// eventFilterFromQuery parses the events listing parameters.
func eventFilterFromQuery(r *http.Request) (store.EventFilter, error) {
	q := r.URL.Query()
	f := store.EventFilter{Limit: 100}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			return f, fmt.Errorf("limit must be between 1 and 500")
		}
		f.Limit = n
	}
	if v := q.Get("cursor"); v != "" {
		c, err := strconv.ParseInt(v, 10, 64)
		if err != nil || c < 0 {
			return f, fmt.Errorf("cursor must be a non-negative integer")
		}
		f.Cursor = c
	}
	if v := q.Get("levels"); v != "" {
		for _, lvl := range strings.Split(v, ",") {
			if lvl = strings.ToUpper(strings.TrimSpace(lvl)); lvl != "" {
				f.Levels = append(f.Levels, lvl)
			}
		}
	}
	f.Service = strings.TrimSpace(q.Get("service"))
	f.Fingerprint = strings.TrimSpace(q.Get("fingerprint"))
	f.Query = q.Get("q")

	for name, dst := range map[string]**time.Time{"ts_from": &f.TSFrom, "ts_to": &f.TSTo} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("%s must be an RFC 3339 timestamp", name)
		}
		*dst = &t
	}
	return f, nil
}

// GET .../ingestions/{id}/groups
func (h *handler) handleGroups(w http.ResponseWriter, r *http.Request) {
	ing, ok := h.scopedIngestion(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	offset, limit := 0, 50
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	groups, err := h.store().TopFingerprints(r.Context(), ing.ID, offset, limit+1)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	hasMore := len(groups) > limit
	if hasMore {
		groups = groups[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":    emptyIfNil(groups),
		"offset":   offset,
		"limit":    limit,
		"has_more": hasMore,
	})
}

// GET .../ingestions/{id}/groups/{fingerprint}
func (h *handler) handleGroupDetail(w http.ResponseWriter, r *http.Request) {
	ing, ok := h.scopedIngestion(w, r)
	if !ok {
		return
	}
	fp := r.PathValue("fingerprint")

	group, err := h.store().GroupOverview(r.Context(), ing.ID, fp)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if group == nil {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}

	insightText, err := h.engine.FindInsight(r.Context(), ing.ID, store.ScopeGroup, fp)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"group":   group,
		"insight": nullableString(insightText),
	})
}

// --- Findings ---

// GET .../ingestions/{id}/findings
func (h *handler) handleFindings(w http.ResponseWriter, r *http.Request) {
	ing, ok := h.scopedIngestion(w, r)
	if !ok {
		return
	}
	list, err := h.store().ListFindings(r.Context(), ing.ID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"finding_status": ing.FindingStatus,
		"findings":       emptyIfNil(list),
	})
}

// evidencePreviewLimit caps how many evidence events a finding detail view
// expands.
const evidencePreviewLimit = 20

// GET .../ingestions/{id}/findings/{finding_id}
func (h *handler) handleFindingDetail(w http.ResponseWriter, r *http.Request) {
	ing, ok := h.scopedIngestion(w, r)
	if !ok {
		return
	}
	findingID := r.PathValue("finding_id")

	finding, err := h.store().GetFinding(r.Context(), ing.ID, findingID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	ids := finding.EvidenceEventIDs
	if len(ids) > evidencePreviewLimit {
		ids = ids[:evidencePreviewLimit]
	}
	evidence, err := h.store().EventsByIDs(r.Context(), ing.ID, ids)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	insightText, err := h.engine.FindInsight(r.Context(), ing.ID, store.ScopeFinding, findingID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"finding":  finding,
		"evidence": emptyIfNil(evidence),
		"insight":  nullableString(insightText),
	})
}

// --- Insights ---

// POST .../ingestions/{id}/insights
func (h *handler) handleGenerateInsight(w http.ResponseWriter, r *http.Request) {
	ing, ok := h.scopedIngestion(w, r)
	if !ok {
		return
	}
	var req struct {
		ScopeType   string `json:"scope_type"`
		Fingerprint string `json:"fingerprint"`
		FindingID   string `json:"finding_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var scopeID string
	switch req.ScopeType {
	case store.ScopeGroup:
		scopeID = req.Fingerprint
	case store.ScopeFinding:
		scopeID = req.FindingID
	default:
		writeError(w, http.StatusBadRequest, "scope_type must be group or finding")
		return
	}
	if scopeID == "" {
		writeError(w, http.StatusBadRequest, "scope id is required")
		return
	}

	result, err := h.engine.GenerateInsight(r.Context(), ing.ID, req.ScopeType, scopeID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"scope_type": req.ScopeType,
		"scope_id":   scopeID,
		"result":     result,
	})
}

// DELETE .../ingestions/{id}
func (h *handler) handleDeleteIngestion(w http.ResponseWriter, r *http.Request) {
	ing, ok := h.scopedIngestion(w, r)
	if !ok {
		return
	}
	if err := h.engine.DeleteIngestion(r.Context(), ing.ID); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Scoping helpers ---

// requireMembership checks the caller belongs to the path's organization.
// Non-members get 403 without revealing whether the org exists.
func (h *handler) requireMembership(w http.ResponseWriter, r *http.Request) (orgID string, ok bool) {
	userID, authed := userFrom(r.Context())
	if !authed {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return "", false
	}
	orgID = r.PathValue("org_id")
	member, err := h.store().IsOrgMember(r.Context(), orgID, userID)
	if err != nil {
		h.internalError(w, r, err)
		return "", false
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a member of this organization")
		return "", false
	}
	return orgID, true
}

// scopedProject resolves the path's project inside the caller's org.
func (h *handler) scopedProject(w http.ResponseWriter, r *http.Request) (*store.Project, bool) {
	orgID, ok := h.requireMembership(w, r)
	if !ok {
		return nil, false
	}
	project, err := h.store().GetProjectInOrg(r.Context(), r.PathValue("project_id"), orgID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return nil, false
	}
	return project, true
}

// scopedIngestion resolves the path's ingestion through the full
// org -> project -> ingestion chain. Any broken link is a 404.
func (h *handler) scopedIngestion(w http.ResponseWriter, r *http.Request) (*store.Ingestion, bool) {
	orgID, ok := h.requireMembership(w, r)
	if !ok {
		return nil, false
	}
	ing, err := h.store().GetIngestionScoped(r.Context(), r.PathValue("id"), r.PathValue("project_id"), orgID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return nil, false
	}
	return ing, true
}

// --- Response helpers ---

// writeEngineError maps pipeline sentinels onto HTTP statuses.
func (h *handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, logsight.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, logsight.ErrIngestionNotFound), errors.Is(err, logsight.ErrNotFound),
		errors.Is(err, logsight.ErrInvalidScope):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, logsight.ErrAlreadyProcessed), errors.Is(err, logsight.ErrConflict),
		errors.Is(err, logsight.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, logsight.ErrLLMUnavailable):
		writeError(w, http.StatusServiceUnavailable, "insight generation is not configured")
	default:
		h.internalError(w, r, err)
	}
}

// writeStoreError treats a missing row as 404.
func (h *handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.internalError(w, r, err)
}

func (h *handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// emptyIfNil keeps empty lists serializing as [] instead of null.
func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// nullableString turns "" into JSON null.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
