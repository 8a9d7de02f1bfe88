package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sabrina-Riya/officecore/internal/authz"
	"github.com/sabrina-Riya/officecore/internal/directory"
	"github.com/sabrina-Riya/officecore/internal/leave"
	"github.com/sabrina-Riya/officecore/internal/models"
	"github.com/sabrina-Riya/officecore/internal/store"
)

type fakeLeaveService struct {
	submitFn  func(ctx context.Context, actor models.Actor, input leave.SubmitInput) (models.LeaveRequest, error)
	editFn    func(ctx context.Context, actor models.Actor, leaveID string, input leave.SubmitInput) (models.LeaveRequest, error)
	cancelFn  func(ctx context.Context, actor models.Actor, leaveID string) (models.LeaveRequest, error)
	approveFn func(ctx context.Context, actor models.Actor, leaveID string) (models.LeaveRequest, error)
	rejectFn  func(ctx context.Context, actor models.Actor, leaveID, reason string) (models.LeaveRequest, error)
	getFn     func(ctx context.Context, actor models.Actor, leaveID string) (models.LeaveRequest, error)
	listOwnFn func(ctx context.Context, actor models.Actor, page store.Pagination) ([]models.LeaveRequest, error)
	listAllFn func(ctx context.Context, actor models.Actor, filter store.LeaveFilter) ([]models.LeaveRequest, error)
}

func (f fakeLeaveService) Submit(ctx context.Context, actor models.Actor, input leave.SubmitInput) (models.LeaveRequest, error) {
	if f.submitFn == nil {
		return models.LeaveRequest{}, nil
	}
	return f.submitFn(ctx, actor, input)
}

func (f fakeLeaveService) Edit(ctx context.Context, actor models.Actor, leaveID string, input leave.SubmitInput) (models.LeaveRequest, error) {
	if f.editFn == nil {
		return models.LeaveRequest{}, nil
	}
	return f.editFn(ctx, actor, leaveID, input)
}

func (f fakeLeaveService) Cancel(ctx context.Context, actor models.Actor, leaveID string) (models.LeaveRequest, error) {
	if f.cancelFn == nil {
		return models.LeaveRequest{}, nil
	}
	return f.cancelFn(ctx, actor, leaveID)
}

func (f fakeLeaveService) Approve(ctx context.Context, actor models.Actor, leaveID string) (models.LeaveRequest, error) {
	if f.approveFn == nil {
		return models.LeaveRequest{}, nil
	}
	return f.approveFn(ctx, actor, leaveID)
}

func (f fakeLeaveService) Reject(ctx context.Context, actor models.Actor, leaveID, reason string) (models.LeaveRequest, error) {
	if f.rejectFn == nil {
		return models.LeaveRequest{}, nil
	}
	return f.rejectFn(ctx, actor, leaveID, reason)
}

func (f fakeLeaveService) Get(ctx context.Context, actor models.Actor, leaveID string) (models.LeaveRequest, error) {
	if f.getFn == nil {
		return models.LeaveRequest{}, store.ErrLeaveNotFound
	}
	return f.getFn(ctx, actor, leaveID)
}

func (f fakeLeaveService) ListOwn(ctx context.Context, actor models.Actor, page store.Pagination) ([]models.LeaveRequest, error) {
	if f.listOwnFn == nil {
		return nil, nil
	}
	return f.listOwnFn(ctx, actor, page)
}

func (f fakeLeaveService) ListAll(ctx context.Context, actor models.Actor, filter store.LeaveFilter) ([]models.LeaveRequest, error) {
	if f.listAllFn == nil {
		return nil, nil
	}
	return f.listAllFn(ctx, actor, filter)
}

func (f fakeLeaveService) OwnSummary(ctx context.Context, actor models.Actor) (store.LeaveSummary, error) {
	return store.LeaveSummary{}, nil
}

func (f fakeLeaveService) AdminSummary(ctx context.Context, actor models.Actor) (leave.AdminSummary, error) {
	return leave.AdminSummary{}, nil
}

type fakeDirectory struct {
	registerFn func(ctx context.Context, input directory.RegisterInput) (models.User, error)
	toggleFn   func(ctx context.Context, actor models.Actor, userID string) (models.User, error)
	roleFn     func(ctx context.Context, actor models.Actor, userID string) (models.User, error)
}

func (f fakeDirectory) Register(ctx context.Context, input directory.RegisterInput) (models.User, error) {
	if f.registerFn == nil {
		return models.User{Role: models.RoleEmployee, Active: true}, nil
	}
	return f.registerFn(ctx, input)
}

func (f fakeDirectory) List(ctx context.Context, actor models.Actor) ([]models.User, error) {
	return nil, nil
}

func (f fakeDirectory) ToggleActive(ctx context.Context, actor models.Actor, userID string) (models.User, error) {
	if f.toggleFn == nil {
		return models.User{}, nil
	}
	return f.toggleFn(ctx, actor, userID)
}

func (f fakeDirectory) ToggleRole(ctx context.Context, actor models.Actor, userID string) (models.User, error) {
	if f.roleFn == nil {
		return models.User{}, nil
	}
	return f.roleFn(ctx, actor, userID)
}

type fakeSessions struct {
	users map[string]models.User
}

func (f fakeSessions) Login(ctx context.Context, input store.LoginInput) (store.LoginResult, error) {
	for token, user := range f.users {
		if user.Email == input.Email {
			return store.LoginResult{
				User:    user,
				Session: models.Session{SessionID: token, UserID: user.UserID, ExpiresAt: time.Now().Add(time.Hour)},
			}, nil
		}
	}
	return store.LoginResult{}, store.ErrInvalidCredentials
}

func (f fakeSessions) GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error) {
	user, ok := f.users[sessionID]
	if !ok {
		return models.Session{}, models.User{}, store.ErrSessionNotFound
	}
	return models.Session{SessionID: sessionID, UserID: user.UserID}, user, nil
}

func (f fakeSessions) DeleteSession(ctx context.Context, sessionID string) error {
	delete(f.users, sessionID)
	return nil
}

type fakeAudit struct {
	listFn func(ctx context.Context, filter store.AuditFilter) ([]models.AuditEntry, error)
}

func (f fakeAudit) InsertAudit(ctx context.Context, entry models.AuditEntry) (string, error) {
	return "audit-1", nil
}

func (f fakeAudit) ListAudit(ctx context.Context, filter store.AuditFilter) ([]models.AuditEntry, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, filter)
}

var (
	employeeUser = models.User{UserID: "emp-1", Name: "Asha", Email: "asha@example.com", Role: models.RoleEmployee, Active: true}
	adminUser    = models.User{UserID: "adm-1", Name: "Root", Email: "root@example.com", Role: models.RoleAdmin, Active: true}
)

func testServer(leaves leave.Service, dir directory.Service, audit store.AuditStore) (http.Handler, fakeSessions) {
	sessions := fakeSessions{users: map[string]models.User{
		"employee-token": employeeUser,
		"admin-token":    adminUser,
	}}
	h := NewHandler(leaves, dir, sessions, audit)
	return AuthMiddleware(sessions, h.Routes()), sessions
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func TestSubmitLeaveRequiresSession(t *testing.T) {
	handler, _ := testServer(fakeLeaveService{}, fakeDirectory{}, fakeAudit{})

	resp := doJSON(t, handler, http.MethodPost, "/api/leaves", "", map[string]string{
		"start_date": "2026-05-05", "end_date": "2026-05-10", "reason": "trip",
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestSubmitLeaveSuccess(t *testing.T) {
	leaves := fakeLeaveService{
		submitFn: func(ctx context.Context, actor models.Actor, input leave.SubmitInput) (models.LeaveRequest, error) {
			if actor.ID != employeeUser.UserID {
				t.Fatalf("wrong actor %+v", actor)
			}
			return models.LeaveRequest{LeaveID: "leave-1", UserID: actor.ID, Status: models.StatusPending}, nil
		},
	}
	handler, _ := testServer(leaves, fakeDirectory{}, fakeAudit{})

	resp := doJSON(t, handler, http.MethodPost, "/api/leaves", "employee-token", map[string]string{
		"start_date": "2026-05-05", "end_date": "2026-05-10", "reason": "trip",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", resp.Code, resp.Body.String())
	}

	var created models.LeaveRequest
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Status != models.StatusPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}
}

func TestSubmitLeaveBadDate(t *testing.T) {
	handler, _ := testServer(fakeLeaveService{}, fakeDirectory{}, fakeAudit{})

	resp := doJSON(t, handler, http.MethodPost, "/api/leaves", "employee-token", map[string]string{
		"start_date": "05/05/2026", "end_date": "2026-05-10", "reason": "trip",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "invalid_request") {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestSubmitLeavePolicyLimit(t *testing.T) {
	leaves := fakeLeaveService{
		submitFn: func(ctx context.Context, actor models.Actor, input leave.SubmitInput) (models.LeaveRequest, error) {
			return models.LeaveRequest{}, fmt.Errorf("%w: a pending request already exists", store.ErrPolicyLimit)
		},
	}
	handler, _ := testServer(leaves, fakeDirectory{}, fakeAudit{})

	resp := doJSON(t, handler, http.MethodPost, "/api/leaves", "employee-token", map[string]string{
		"start_date": "2026-05-05", "end_date": "2026-05-10", "reason": "trip",
	})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "policy_limit") {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestGetForeignLeaveReadsAsNotFound(t *testing.T) {
	leaves := fakeLeaveService{
		getFn: func(ctx context.Context, actor models.Actor, leaveID string) (models.LeaveRequest, error) {
			return models.LeaveRequest{}, store.ErrLeaveNotFound
		},
	}
	handler, _ := testServer(leaves, fakeDirectory{}, fakeAudit{})

	resp := doJSON(t, handler, http.MethodGet, "/api/leaves/leave-2", "employee-token", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestApproveConflictOnNonPending(t *testing.T) {
	leaves := fakeLeaveService{
		approveFn: func(ctx context.Context, actor models.Actor, leaveID string) (models.LeaveRequest, error) {
			return models.LeaveRequest{}, fmt.Errorf("%w: request is cancelled", store.ErrInvalidState)
		},
	}
	handler, _ := testServer(leaves, fakeDirectory{}, fakeAudit{})

	resp := doJSON(t, handler, http.MethodPost, "/api/admin/leaves/leave-1/approve", "admin-token", map[string]string{})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "invalid_state") {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestRejectPassesReason(t *testing.T) {
	var gotReason string
	leaves := fakeLeaveService{
		rejectFn: func(ctx context.Context, actor models.Actor, leaveID, reason string) (models.LeaveRequest, error) {
			gotReason = reason
			return models.LeaveRequest{LeaveID: leaveID, Status: models.StatusRejected}, nil
		},
	}
	handler, _ := testServer(leaves, fakeDirectory{}, fakeAudit{})

	resp := doJSON(t, handler, http.MethodPost, "/api/admin/leaves/leave-1/reject", "admin-token", map[string]string{
		"reason": "short staffed",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", resp.Code, resp.Body.String())
	}
	if gotReason != "short staffed" {
		t.Fatalf("reason not forwarded, got %q", gotReason)
	}
}

func TestToggleSelfMapsToConflict(t *testing.T) {
	dir := fakeDirectory{
		toggleFn: func(ctx context.Context, actor models.Actor, userID string) (models.User, error) {
			return models.User{}, authz.ErrSelfTarget
		},
	}
	handler, _ := testServer(fakeLeaveService{}, dir, fakeAudit{})

	resp := doJSON(t, handler, http.MethodPost, "/api/admin/users/adm-1/status", "admin-token", map[string]string{})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "self_target") {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestDeniedMapsToForbidden(t *testing.T) {
	leaves := fakeLeaveService{
		listAllFn: func(ctx context.Context, actor models.Actor, filter store.LeaveFilter) ([]models.LeaveRequest, error) {
			return nil, authz.ErrDenied
		},
	}
	handler, _ := testServer(leaves, fakeDirectory{}, fakeAudit{})

	resp := doJSON(t, handler, http.MethodGet, "/api/admin/leaves", "employee-token", nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestRegisterIsPublic(t *testing.T) {
	dir := fakeDirectory{
		registerFn: func(ctx context.Context, input directory.RegisterInput) (models.User, error) {
			return models.User{UserID: "u-9", Name: input.Name, Role: models.RoleEmployee, Active: true}, nil
		},
	}
	handler, _ := testServer(fakeLeaveService{}, dir, fakeAudit{})

	resp := doJSON(t, handler, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Asha", "email": "asha@example.com", "password": "secret1", "confirm_password": "secret1",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", resp.Code, resp.Body.String())
	}
}

func TestRegisterDuplicateEmailConflict(t *testing.T) {
	dir := fakeDirectory{
		registerFn: func(ctx context.Context, input directory.RegisterInput) (models.User, error) {
			return models.User{}, store.ErrEmailExists
		},
	}
	handler, _ := testServer(fakeLeaveService{}, dir, fakeAudit{})

	resp := doJSON(t, handler, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Asha", "email": "asha@example.com", "password": "secret1", "confirm_password": "secret1",
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestLoginAndMe(t *testing.T) {
	handler, _ := testServer(fakeLeaveService{}, fakeDirectory{}, fakeAudit{})

	resp := doJSON(t, handler, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "asha@example.com", "password": "secret1",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("login expected 200, got %d body=%s", resp.Code, resp.Body.String())
	}
	var login loginResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.Token == "" {
		t.Fatal("expected session token")
	}

	me := doJSON(t, handler, http.MethodGet, "/api/auth/me", login.Token, nil)
	if me.Code != http.StatusOK {
		t.Fatalf("me expected 200, got %d", me.Code)
	}
	if !strings.Contains(me.Body.String(), employeeUser.Email) {
		t.Fatalf("unexpected me body %s", me.Body.String())
	}
}

func TestLoginBadCredentials(t *testing.T) {
	handler, _ := testServer(fakeLeaveService{}, fakeDirectory{}, fakeAudit{})

	resp := doJSON(t, handler, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "nobody@example.com", "password": "secret1",
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	handler, sessions := testServer(fakeLeaveService{}, fakeDirectory{}, fakeAudit{})

	resp := doJSON(t, handler, http.MethodPost, "/api/auth/logout", "employee-token", nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if _, ok := sessions.users["employee-token"]; ok {
		t.Fatal("session should be deleted")
	}

	me := doJSON(t, handler, http.MethodGet, "/api/auth/me", "employee-token", nil)
	if me.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", me.Code)
	}
}

func TestExportCSV(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	leaves := fakeLeaveService{
		listAllFn: func(ctx context.Context, actor models.Actor, filter store.LeaveFilter) ([]models.LeaveRequest, error) {
			return []models.LeaveRequest{{
				LeaveID:      "leave-1",
				EmployeeName: "Asha",
				StartDate:    now,
				EndDate:      now.Add(48 * time.Hour),
				Reason:       "trip",
				Status:       models.StatusApproved,
				CreatedAt:    now,
			}}, nil
		},
	}
	handler, _ := testServer(leaves, fakeDirectory{}, fakeAudit{})

	resp := doJSON(t, handler, http.MethodGet, "/api/admin/leaves/export", "admin-token", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", resp.Code, resp.Body.String())
	}
	if got := resp.Header().Get("Content-Type"); got != "text/csv" {
		t.Fatalf("expected text/csv, got %s", got)
	}
	body := resp.Body.String()
	if !strings.Contains(body, "leave_id,employee") || !strings.Contains(body, "leave-1,Asha") {
		t.Fatalf("unexpected CSV body:\n%s", body)
	}
}

func TestExportForbiddenForEmployee(t *testing.T) {
	handler, _ := testServer(fakeLeaveService{}, fakeDirectory{}, fakeAudit{})

	resp := doJSON(t, handler, http.MethodGet, "/api/admin/leaves/export", "employee-token", nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuditFilterForwarded(t *testing.T) {
	var gotFilter store.AuditFilter
	audit := fakeAudit{
		listFn: func(ctx context.Context, filter store.AuditFilter) ([]models.AuditEntry, error) {
			gotFilter = filter
			return []models.AuditEntry{{AuditID: "audit-1", Action: models.ActionLeaveApproved}}, nil
		},
	}
	handler, _ := testServer(fakeLeaveService{}, fakeDirectory{}, audit)

	resp := doJSON(t, handler, http.MethodGet, "/api/admin/audit?action=LEAVE_APPROVED&limit=10", "admin-token", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if gotFilter.Action != models.ActionLeaveApproved || gotFilter.Limit != 10 {
		t.Fatalf("filter not forwarded: %+v", gotFilter)
	}
}

func TestAuditForbiddenForEmployee(t *testing.T) {
	handler, _ := testServer(fakeLeaveService{}, fakeDirectory{}, fakeAudit{})

	resp := doJSON(t, handler, http.MethodGet, "/api/admin/audit", "employee-token", nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 60, IPBurst: 2})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := limiter.Middleware(inner)

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		last = recorder.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third request, got %d", last)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	handler, _ := testServer(fakeLeaveService{}, fakeDirectory{}, fakeAudit{})

	resp := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
