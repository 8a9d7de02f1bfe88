package store

import (
	"context"
	"time"

	"github.com/sabrina-Riya/officecore/internal/models"
)

type SubmitLeaveInput struct {
	UserID    string
	StartDate time.Time
	EndDate   time.Time
	Reason    string
	CreatedAt time.Time
}

type EditLeaveInput struct {
	LeaveID   string
	UserID    string
	StartDate time.Time
	EndDate   time.Time
	Reason    string
}

// LeaveActionInput carries a status transition request. ActorID is the admin
// for approve/reject and the owner for cancel; Reason is only used by reject.
type LeaveActionInput struct {
	LeaveID    string
	ActorID    string
	Reason     string
	OccurredAt time.Time
}

type Pagination struct {
	Limit  int
	Offset int
}

type LeaveFilter struct {
	Status string
	Limit  int
	Offset int
}

type LeaveSummary struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// LeaveStore persists leave requests. Approve, Reject, Cancel and UpdateLeave
// are conditional updates: the status check and the write happen in a single
// statement, and a write that matches zero rows reports ErrInvalidState (or
// ErrLeaveNotFound when the row does not exist at all), never silent success.
type LeaveStore interface {
	InsertLeave(ctx context.Context, input SubmitLeaveInput) (models.LeaveRequest, error)
	GetLeave(ctx context.Context, leaveID string) (models.LeaveRequest, error)
	UpdateLeave(ctx context.Context, input EditLeaveInput) (models.LeaveRequest, error)
	ApproveLeave(ctx context.Context, input LeaveActionInput) (models.LeaveRequest, error)
	RejectLeave(ctx context.Context, input LeaveActionInput) (models.LeaveRequest, error)
	CancelLeave(ctx context.Context, input LeaveActionInput) (models.LeaveRequest, error)
	CountLeavesByUser(ctx context.Context, userID, status string) (int, error)
	ListLeavesByUser(ctx context.Context, userID string, page Pagination) ([]models.LeaveRequest, error)
	ListLeaves(ctx context.Context, filter LeaveFilter) ([]models.LeaveRequest, error)
	LeaveSummary(ctx context.Context, userID string) (LeaveSummary, error)
	ListPendingOldest(ctx context.Context, limit int) ([]models.LeaveRequest, error)
}

type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

type UserStore interface {
	CreateUser(ctx context.Context, input CreateUserInput) (models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetUserActive(ctx context.Context, userID string, active bool) (models.User, error)
	SetUserRole(ctx context.Context, userID string, role models.Role) (models.User, error)
	CountUsers(ctx context.Context) (int, error)
}

type LoginInput struct {
	Email    string
	Password string
}

type LoginResult struct {
	User    models.User
	Session models.Session
}

type SessionStore interface {
	Login(ctx context.Context, input LoginInput) (LoginResult, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type AuditFilter struct {
	Action      string
	PerformedBy string
	Limit       int
	Offset      int
}

// AuditStore is append-only; entries are never updated or deleted.
type AuditStore interface {
	InsertAudit(ctx context.Context, entry models.AuditEntry) (string, error)
	ListAudit(ctx context.Context, filter AuditFilter) ([]models.AuditEntry, error)
}
