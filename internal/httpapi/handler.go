package httpapi

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sabrina-Riya/officecore/internal/authz"
	"github.com/sabrina-Riya/officecore/internal/directory"
	"github.com/sabrina-Riya/officecore/internal/leave"
	"github.com/sabrina-Riya/officecore/internal/models"
	"github.com/sabrina-Riya/officecore/internal/store"
)

const dateLayout = "2006-01-02"

type Handler struct {
	leaves    leave.Service
	directory directory.Service
	sessions  store.SessionStore
	audit     store.AuditStore
}

func NewHandler(leaves leave.Service, dir directory.Service, sessions store.SessionStore, audit store.AuditStore) *Handler {
	return &Handler{
		leaves:    leaves,
		directory: dir,
		sessions:  sessions,
		audit:     audit,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/leaves", h.handleLeaves)
	mux.HandleFunc("/api/leaves/summary", h.handleLeaveSummary)
	mux.HandleFunc("/api/leaves/", h.handleLeaveByID)
	mux.HandleFunc("/api/admin/leaves", h.handleAdminLeaves)
	mux.HandleFunc("/api/admin/leaves/export", h.handleAdminExport)
	mux.HandleFunc("/api/admin/leaves/", h.handleAdminLeaveActions)
	mux.HandleFunc("/api/admin/summary", h.handleAdminSummary)
	mux.HandleFunc("/api/admin/users", h.handleAdminUsers)
	mux.HandleFunc("/api/admin/users/", h.handleAdminUserActions)
	mux.HandleFunc("/api/admin/audit", h.handleAdminAudit)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type registerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	user, err := h.directory.Register(r.Context(), directory.RegisterInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	result, err := h.sessions.Login(r.Context(), store.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     result.Session.SessionID,
		ExpiresAt: result.Session.ExpiresAt,
		User:      result.User,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	if err := h.sessions.DeleteSession(r.Context(), sessionID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type leaveRequestPayload struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
}

func (h *Handler) handleLeaves(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleSubmitLeave(w, r)
	case http.MethodGet:
		h.handleListOwnLeaves(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleSubmitLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	input, ok := decodeLeavePayload(w, r)
	if !ok {
		return
	}

	created, err := h.leaves.Submit(r.Context(), actor, input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListOwnLeaves(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	page, ok := paginationFromQuery(w, r)
	if !ok {
		return
	}

	leaves, err := h.leaves.ListOwn(r.Context(), actor, page)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(leaves))
}

func (h *Handler) handleLeaveSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	summary, err := h.leaves.OwnSummary(r.Context(), actor)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleLeaveByID(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/leaves/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGetLeave(w, r, actor, parts[0])
	case len(parts) == 1 && r.Method == http.MethodPut:
		h.handleEditLeave(w, r, actor, parts[0])
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		h.handleCancelLeave(w, r, actor, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetLeave(w http.ResponseWriter, r *http.Request, actor models.Actor, leaveID string) {
	found, err := h.leaves.Get(r.Context(), actor, leaveID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *Handler) handleEditLeave(w http.ResponseWriter, r *http.Request, actor models.Actor, leaveID string) {
	input, ok := decodeLeavePayload(w, r)
	if !ok {
		return
	}

	updated, err := h.leaves.Edit(r.Context(), actor, leaveID, input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleCancelLeave(w http.ResponseWriter, r *http.Request, actor models.Actor, leaveID string) {
	cancelled, err := h.leaves.Cancel(r.Context(), actor, leaveID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

func (h *Handler) handleAdminLeaves(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	page, ok := paginationFromQuery(w, r)
	if !ok {
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && !validStatusFilter(status) {
		writeError(w, http.StatusBadRequest, "invalid_request", "status must be pending, approved, rejected, or cancelled")
		return
	}

	leaves, err := h.leaves.ListAll(r.Context(), actor, store.LeaveFilter{
		Status: status,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		statusCode, code, msg := mapError(err)
		writeError(w, statusCode, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(leaves))
}

func (h *Handler) handleAdminLeaveActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/admin/leaves/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	leaveID := parts[0]

	switch parts[1] {
	case "approve":
		approved, err := h.leaves.Approve(r.Context(), actor, leaveID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, approved)
	case "reject":
		var payload struct {
			Reason string `json:"reason"`
		}
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		rejected, err := h.leaves.Reject(r.Context(), actor, leaveID, payload.Reason)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, rejected)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	if err := authz.Authorize(actor, authz.OpExportLeaves, ""); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && !validStatusFilter(status) {
		writeError(w, http.StatusBadRequest, "invalid_request", "status must be pending, approved, rejected, or cancelled")
		return
	}

	leaves, err := h.leaves.ListAll(r.Context(), actor, store.LeaveFilter{Status: status, Limit: 200})
	if err != nil {
		statusCode, code, msg := mapError(err)
		writeError(w, statusCode, code, msg)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="leave_requests.csv"`)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"leave_id", "employee", "start_date", "end_date", "reason", "status", "actioned_by", "rejection_reason", "created_at"})
	for _, item := range leaves {
		rejection := ""
		if item.RejectionReason != nil {
			rejection = *item.RejectionReason
		}
		_ = writer.Write([]string{
			item.LeaveID,
			item.EmployeeName,
			item.StartDate.Format(dateLayout),
			item.EndDate.Format(dateLayout),
			item.Reason,
			item.Status,
			item.ActionedByName,
			rejection,
			item.CreatedAt.Format(time.RFC3339),
		})
	}
	writer.Flush()
}

func (h *Handler) handleAdminSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	summary, err := h.leaves.AdminSummary(r.Context(), actor)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	users, err := h.directory.List(r.Context(), actor)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(users))
}

func (h *Handler) handleAdminUserActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/admin/users/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	userID := parts[0]

	var updated models.User
	var err error
	switch parts[1] {
	case "status":
		updated, err = h.directory.ToggleActive(r.Context(), actor, userID)
	case "role":
		updated, err = h.directory.ToggleRole(r.Context(), actor, userID)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	if err := authz.Authorize(actor, authz.OpViewAudit, ""); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	page, ok := paginationFromQuery(w, r)
	if !ok {
		return
	}
	entries, err := h.audit.ListAudit(r.Context(), store.AuditFilter{
		Action:      strings.TrimSpace(r.URL.Query().Get("action")),
		PerformedBy: strings.TrimSpace(r.URL.Query().Get("performed_by")),
		Limit:       page.Limit,
		Offset:      page.Offset,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNilAudit(entries))
}

func decodeLeavePayload(w http.ResponseWriter, r *http.Request) (leave.SubmitInput, bool) {
	var payload leaveRequestPayload
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return leave.SubmitInput{}, false
	}

	payload.StartDate = strings.TrimSpace(payload.StartDate)
	payload.EndDate = strings.TrimSpace(payload.EndDate)
	if payload.StartDate == "" || payload.EndDate == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "start_date and end_date are required")
		return leave.SubmitInput{}, false
	}

	start, err := time.Parse(dateLayout, payload.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "start_date must be YYYY-MM-DD")
		return leave.SubmitInput{}, false
	}
	end, err := time.Parse(dateLayout, payload.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "end_date must be YYYY-MM-DD")
		return leave.SubmitInput{}, false
	}

	return leave.SubmitInput{StartDate: start, EndDate: end, Reason: payload.Reason}, true
}

func paginationFromQuery(w http.ResponseWriter, r *http.Request) (store.Pagination, bool) {
	page := store.Pagination{}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return store.Pagination{}, false
		}
		page.Limit = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "offset must be a non-negative integer")
			return store.Pagination{}, false
		}
		page.Offset = parsed
	}
	return page, true
}

func validStatusFilter(status string) bool {
	switch status {
	case models.StatusPending, models.StatusApproved, models.StatusRejected, models.StatusCancelled:
		return true
	default:
		return false
	}
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func emptyIfNilAudit(items []models.AuditEntry) []models.AuditEntry {
	if items == nil {
		return []models.AuditEntry{}
	}
	return items
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, store.ErrPolicyLimit):
		return http.StatusUnprocessableEntity, "policy_limit", err.Error()
	case errors.Is(err, store.ErrLeaveNotFound):
		return http.StatusNotFound, "leave_not_found", "leave request not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "request state does not allow this action"
	case errors.Is(err, authz.ErrSelfTarget):
		return http.StatusConflict, "self_target", "own account cannot be targeted"
	case errors.Is(err, authz.ErrDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	case errors.Is(err, store.ErrEmailExists):
		return http.StatusConflict, "email_exists", "email is already registered"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case errors.Is(err, store.ErrUserInactive):
		return http.StatusForbidden, "account_inactive", "account is deactivated"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
