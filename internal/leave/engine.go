package leave

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sabrina-Riya/officecore/internal/authz"
	"github.com/sabrina-Riya/officecore/internal/models"
	"github.com/sabrina-Riya/officecore/internal/notify"
	"github.com/sabrina-Riya/officecore/internal/store"
)

const dateLayout = "2006-01-02"

type SubmitInput struct {
	StartDate time.Time
	EndDate   time.Time
	Reason    string
}

type AdminSummary struct {
	TotalUsers    int                   `json:"total_users"`
	Leaves        store.LeaveSummary    `json:"leaves"`
	RecentPending []models.LeaveRequest `json:"recent_pending"`
}

// Service is the leave request lifecycle: pending → approved/rejected/cancelled,
// with no way out of a terminal status. Every call takes the acting identity
// explicitly.
type Service interface {
	Submit(ctx context.Context, actor models.Actor, input SubmitInput) (models.LeaveRequest, error)
	Edit(ctx context.Context, actor models.Actor, leaveID string, input SubmitInput) (models.LeaveRequest, error)
	Cancel(ctx context.Context, actor models.Actor, leaveID string) (models.LeaveRequest, error)
	Approve(ctx context.Context, actor models.Actor, leaveID string) (models.LeaveRequest, error)
	Reject(ctx context.Context, actor models.Actor, leaveID, reason string) (models.LeaveRequest, error)
	Get(ctx context.Context, actor models.Actor, leaveID string) (models.LeaveRequest, error)
	ListOwn(ctx context.Context, actor models.Actor, page store.Pagination) ([]models.LeaveRequest, error)
	ListAll(ctx context.Context, actor models.Actor, filter store.LeaveFilter) ([]models.LeaveRequest, error)
	OwnSummary(ctx context.Context, actor models.Actor) (store.LeaveSummary, error)
	AdminSummary(ctx context.Context, actor models.Actor) (AdminSummary, error)
}

type Engine struct {
	leaves        store.LeaveStore
	users         store.UserStore
	audit         store.AuditStore
	notifier      notify.Notifier
	maxRequests   int
	notifyTimeout time.Duration
}

type Options struct {
	// MaxRequestsPerUser caps the total number of requests a user may ever
	// file. Zero applies the default of 20.
	MaxRequestsPerUser int
	NotifyTimeout      time.Duration
}

func NewEngine(leaves store.LeaveStore, users store.UserStore, audit store.AuditStore, notifier notify.Notifier, options Options) *Engine {
	maxRequests := options.MaxRequestsPerUser
	if maxRequests <= 0 {
		maxRequests = 20
	}
	timeout := options.NotifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Engine{
		leaves:        leaves,
		users:         users,
		audit:         audit,
		notifier:      notifier,
		maxRequests:   maxRequests,
		notifyTimeout: timeout,
	}
}

// Submit files a new pending request. Policy: a user may hold at most one
// pending request at a time and at most maxRequests requests in total.
func (e *Engine) Submit(ctx context.Context, actor models.Actor, input SubmitInput) (models.LeaveRequest, error) {
	if err := authz.Authorize(actor, authz.OpSubmitLeave, actor.ID); err != nil {
		return models.LeaveRequest{}, err
	}
	if err := validateDatesAndReason(input); err != nil {
		return models.LeaveRequest{}, err
	}

	total, err := e.leaves.CountLeavesByUser(ctx, actor.ID, "")
	if err != nil {
		return models.LeaveRequest{}, err
	}
	if total >= e.maxRequests {
		return models.LeaveRequest{}, fmt.Errorf("%w: at most %d leave requests per user", store.ErrPolicyLimit, e.maxRequests)
	}
	pending, err := e.leaves.CountLeavesByUser(ctx, actor.ID, models.StatusPending)
	if err != nil {
		return models.LeaveRequest{}, err
	}
	if pending > 0 {
		return models.LeaveRequest{}, fmt.Errorf("%w: a pending request already exists", store.ErrPolicyLimit)
	}

	created, err := e.leaves.InsertLeave(ctx, store.SubmitLeaveInput{
		UserID:    actor.ID,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		Reason:    input.Reason,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return models.LeaveRequest{}, err
	}

	e.recordAudit(ctx, models.AuditEntry{
		Action:      models.ActionLeaveSubmitted,
		PerformedBy: actor.ID,
		EntityKind:  models.EntityLeaveRequest,
		EntityID:    created.LeaveID,
		NewStatus:   models.StatusPending,
	})
	return created, nil
}

// Edit updates dates and reason on the caller's own pending request.
func (e *Engine) Edit(ctx context.Context, actor models.Actor, leaveID string, input SubmitInput) (models.LeaveRequest, error) {
	if err := authz.Authorize(actor, authz.OpEditLeave, actor.ID); err != nil {
		return models.LeaveRequest{}, err
	}
	if err := validateDatesAndReason(input); err != nil {
		return models.LeaveRequest{}, err
	}

	current, err := e.getOwned(ctx, actor, leaveID)
	if err != nil {
		return models.LeaveRequest{}, err
	}
	if !store.ValidTransition("edit", current.Status) {
		return models.LeaveRequest{}, fmt.Errorf("%w: only pending requests can be edited", store.ErrInvalidState)
	}

	updated, err := e.leaves.UpdateLeave(ctx, store.EditLeaveInput{
		LeaveID:   leaveID,
		UserID:    actor.ID,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		Reason:    input.Reason,
	})
	if err != nil {
		return models.LeaveRequest{}, err
	}

	e.recordAudit(ctx, models.AuditEntry{
		Action:      models.ActionLeaveUpdated,
		PerformedBy: actor.ID,
		EntityKind:  models.EntityLeaveRequest,
		EntityID:    leaveID,
		OldStatus:   models.StatusPending,
		NewStatus:   models.StatusPending,
	})
	return updated, nil
}

// Cancel moves the caller's own pending request to cancelled.
func (e *Engine) Cancel(ctx context.Context, actor models.Actor, leaveID string) (models.LeaveRequest, error) {
	if err := authz.Authorize(actor, authz.OpCancelLeave, actor.ID); err != nil {
		return models.LeaveRequest{}, err
	}

	current, err := e.getOwned(ctx, actor, leaveID)
	if err != nil {
		return models.LeaveRequest{}, err
	}
	if !store.ValidTransition("cancel", current.Status) {
		return models.LeaveRequest{}, fmt.Errorf("%w: only pending requests can be cancelled", store.ErrInvalidState)
	}

	cancelled, err := e.leaves.CancelLeave(ctx, store.LeaveActionInput{
		LeaveID:    leaveID,
		ActorID:    actor.ID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return models.LeaveRequest{}, err
	}

	e.recordAudit(ctx, models.AuditEntry{
		Action:      models.ActionLeaveCancelled,
		PerformedBy: actor.ID,
		EntityKind:  models.EntityLeaveRequest,
		EntityID:    leaveID,
		OldStatus:   models.StatusPending,
		NewStatus:   models.StatusCancelled,
	})
	return cancelled, nil
}

// Approve moves a pending request to approved. The status check and the write
// are a single conditional update in the store, so of two racing admin
// actions exactly one wins; the loser gets ErrInvalidState.
func (e *Engine) Approve(ctx context.Context, actor models.Actor, leaveID string) (models.LeaveRequest, error) {
	if err := authz.Authorize(actor, authz.OpApproveLeave, ""); err != nil {
		return models.LeaveRequest{}, err
	}

	current, err := e.leaves.GetLeave(ctx, leaveID)
	if err != nil {
		return models.LeaveRequest{}, err
	}
	if !store.ValidTransition("approve", current.Status) {
		return models.LeaveRequest{}, fmt.Errorf("%w: request is %s", store.ErrInvalidState, current.Status)
	}

	approved, err := e.leaves.ApproveLeave(ctx, store.LeaveActionInput{
		LeaveID:    leaveID,
		ActorID:    actor.ID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return models.LeaveRequest{}, err
	}

	e.recordAudit(ctx, models.AuditEntry{
		Action:      models.ActionLeaveApproved,
		PerformedBy: actor.ID,
		EntityKind:  models.EntityLeaveRequest,
		EntityID:    leaveID,
		OldStatus:   models.StatusPending,
		NewStatus:   models.StatusApproved,
	})
	e.notifyOwner(approved, notify.TemplateLeaveApproved, "")
	return approved, nil
}

// Reject moves a pending request to rejected; a non-empty reason is required.
func (e *Engine) Reject(ctx context.Context, actor models.Actor, leaveID, reason string) (models.LeaveRequest, error) {
	if err := authz.Authorize(actor, authz.OpRejectLeave, ""); err != nil {
		return models.LeaveRequest{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.LeaveRequest{}, fmt.Errorf("%w: rejection reason is required", store.ErrValidation)
	}

	current, err := e.leaves.GetLeave(ctx, leaveID)
	if err != nil {
		return models.LeaveRequest{}, err
	}
	if !store.ValidTransition("reject", current.Status) {
		return models.LeaveRequest{}, fmt.Errorf("%w: request is %s", store.ErrInvalidState, current.Status)
	}

	rejected, err := e.leaves.RejectLeave(ctx, store.LeaveActionInput{
		LeaveID:    leaveID,
		ActorID:    actor.ID,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return models.LeaveRequest{}, err
	}

	e.recordAudit(ctx, models.AuditEntry{
		Action:      models.ActionLeaveRejected,
		PerformedBy: actor.ID,
		EntityKind:  models.EntityLeaveRequest,
		EntityID:    leaveID,
		OldStatus:   models.StatusPending,
		NewStatus:   models.StatusRejected,
		Message:     reason,
	})
	e.notifyOwner(rejected, notify.TemplateLeaveRejected, reason)
	return rejected, nil
}

// Get returns one request: admins may read any, employees only their own.
// Requests owned by someone else read as not found so their existence does
// not leak.
func (e *Engine) Get(ctx context.Context, actor models.Actor, leaveID string) (models.LeaveRequest, error) {
	if actor.Role == models.RoleAdmin {
		return e.leaves.GetLeave(ctx, leaveID)
	}
	return e.getOwned(ctx, actor, leaveID)
}

func (e *Engine) ListOwn(ctx context.Context, actor models.Actor, page store.Pagination) ([]models.LeaveRequest, error) {
	if err := authz.Authorize(actor, authz.OpListOwnLeaves, actor.ID); err != nil {
		return nil, err
	}
	return e.leaves.ListLeavesByUser(ctx, actor.ID, page)
}

func (e *Engine) ListAll(ctx context.Context, actor models.Actor, filter store.LeaveFilter) ([]models.LeaveRequest, error) {
	if err := authz.Authorize(actor, authz.OpViewAllLeaves, ""); err != nil {
		return nil, err
	}
	return e.leaves.ListLeaves(ctx, filter)
}

func (e *Engine) OwnSummary(ctx context.Context, actor models.Actor) (store.LeaveSummary, error) {
	if err := authz.Authorize(actor, authz.OpListOwnLeaves, actor.ID); err != nil {
		return store.LeaveSummary{}, err
	}
	return e.leaves.LeaveSummary(ctx, actor.ID)
}

func (e *Engine) AdminSummary(ctx context.Context, actor models.Actor) (AdminSummary, error) {
	if err := authz.Authorize(actor, authz.OpViewAllLeaves, ""); err != nil {
		return AdminSummary{}, err
	}
	totalUsers, err := e.users.CountUsers(ctx)
	if err != nil {
		return AdminSummary{}, err
	}
	leaves, err := e.leaves.LeaveSummary(ctx, "")
	if err != nil {
		return AdminSummary{}, err
	}
	recent, err := e.leaves.ListPendingOldest(ctx, 5)
	if err != nil {
		return AdminSummary{}, err
	}
	return AdminSummary{TotalUsers: totalUsers, Leaves: leaves, RecentPending: recent}, nil
}

// getOwned fetches a request and conflates "absent" with "owned by someone
// else" into ErrLeaveNotFound.
func (e *Engine) getOwned(ctx context.Context, actor models.Actor, leaveID string) (models.LeaveRequest, error) {
	current, err := e.leaves.GetLeave(ctx, leaveID)
	if err != nil {
		return models.LeaveRequest{}, err
	}
	if current.UserID != actor.ID {
		return models.LeaveRequest{}, store.ErrLeaveNotFound
	}
	return current, nil
}

// recordAudit appends an audit entry for an already-committed mutation. The
// mutation stands even when the audit write fails; the failure is only logged.
func (e *Engine) recordAudit(ctx context.Context, entry models.AuditEntry) {
	if _, err := e.audit.InsertAudit(ctx, entry); err != nil {
		log.Printf("audit write failed action=%s entity=%s/%s: %v", entry.Action, entry.EntityKind, entry.EntityID, err)
	}
}

// notifyOwner delivers the status-change email in the background. Delivery is
// best-effort and detached from the request context so a slow or failing mail
// channel never delays or rolls back the transition.
func (e *Engine) notifyOwner(request models.LeaveRequest, template, reason string) {
	if e.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.notifyTimeout)
		defer cancel()

		owner, err := e.users.GetUser(ctx, request.UserID)
		if err != nil {
			log.Printf("notify skipped leave=%s: owner lookup: %v", request.LeaveID, err)
			return
		}
		data := map[string]string{
			"name":       owner.Name,
			"start_date": request.StartDate.Format(dateLayout),
			"end_date":   request.EndDate.Format(dateLayout),
			"reason":     reason,
		}
		if err := e.notifier.Notify(ctx, owner.Email, template, data); err != nil {
			log.Printf("notify failed leave=%s recipient=%s: %v", request.LeaveID, owner.Email, err)
		}
	}()
}

func validateDatesAndReason(input SubmitInput) error {
	if input.StartDate.IsZero() || input.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", store.ErrValidation)
	}
	if strings.TrimSpace(input.Reason) == "" {
		return fmt.Errorf("%w: reason is required", store.ErrValidation)
	}
	if input.StartDate.After(input.EndDate) {
		return fmt.Errorf("%w: start date cannot be after end date", store.ErrValidation)
	}
	return nil
}
