package directory

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"github.com/sabrina-Riya/officecore/internal/authz"
	"github.com/sabrina-Riya/officecore/internal/models"
	"github.com/sabrina-Riya/officecore/internal/store"
)

const minPasswordLength = 6

type RegisterInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// Service manages the user directory: self-service registration plus the
// admin-only activation and role controls.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (models.User, error)
	List(ctx context.Context, actor models.Actor) ([]models.User, error)
	ToggleActive(ctx context.Context, actor models.Actor, userID string) (models.User, error)
	ToggleRole(ctx context.Context, actor models.Actor, userID string) (models.User, error)
}

type Directory struct {
	users store.UserStore
	audit store.AuditStore
}

func New(users store.UserStore, audit store.AuditStore) *Directory {
	return &Directory{users: users, audit: audit}
}

// Register creates an employee account. Registration never grants admin; role
// elevation goes through ToggleRole afterwards.
func (d *Directory) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if name == "" || email == "" || input.Password == "" {
		return models.User{}, fmt.Errorf("%w: name, email and password are required", store.ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, fmt.Errorf("%w: invalid email address", store.ErrValidation)
	}
	if len(input.Password) < minPasswordLength {
		return models.User{}, fmt.Errorf("%w: password must be at least %d characters", store.ErrValidation, minPasswordLength)
	}
	if input.Password != input.ConfirmPassword {
		return models.User{}, fmt.Errorf("%w: passwords do not match", store.ErrValidation)
	}

	return d.users.CreateUser(ctx, store.CreateUserInput{
		Name:     name,
		Email:    email,
		Password: input.Password,
		Role:     models.RoleEmployee,
	})
}

func (d *Directory) List(ctx context.Context, actor models.Actor) ([]models.User, error) {
	if err := authz.Authorize(actor, authz.OpManageUsers, ""); err != nil {
		return nil, err
	}
	return d.users.ListUsers(ctx)
}

// ToggleActive flips a user's active flag. Admins cannot target themselves.
func (d *Directory) ToggleActive(ctx context.Context, actor models.Actor, userID string) (models.User, error) {
	if err := authz.Authorize(actor, authz.OpToggleActive, userID); err != nil {
		return models.User{}, err
	}

	current, err := d.users.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	updated, err := d.users.SetUserActive(ctx, userID, !current.Active)
	if err != nil {
		return models.User{}, err
	}

	action := models.ActionUserDeactivated
	if updated.Active {
		action = models.ActionUserActivated
	}
	d.recordAudit(ctx, models.AuditEntry{
		Action:      action,
		PerformedBy: actor.ID,
		EntityKind:  models.EntityUser,
		EntityID:    userID,
		OldStatus:   activeLabel(current.Active),
		NewStatus:   activeLabel(updated.Active),
	})
	return updated, nil
}

// ToggleRole flips a user between employee and admin. Admins cannot change
// their own role.
func (d *Directory) ToggleRole(ctx context.Context, actor models.Actor, userID string) (models.User, error) {
	if err := authz.Authorize(actor, authz.OpChangeRole, userID); err != nil {
		return models.User{}, err
	}

	current, err := d.users.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	next := models.RoleAdmin
	if current.Role == models.RoleAdmin {
		next = models.RoleEmployee
	}
	updated, err := d.users.SetUserRole(ctx, userID, next)
	if err != nil {
		return models.User{}, err
	}

	d.recordAudit(ctx, models.AuditEntry{
		Action:      models.ActionRoleChanged,
		PerformedBy: actor.ID,
		EntityKind:  models.EntityUser,
		EntityID:    userID,
		OldStatus:   string(current.Role),
		NewStatus:   string(updated.Role),
	})
	return updated, nil
}

func (d *Directory) recordAudit(ctx context.Context, entry models.AuditEntry) {
	if _, err := d.audit.InsertAudit(ctx, entry); err != nil {
		log.Printf("audit write failed action=%s entity=%s/%s: %v", entry.Action, entry.EntityKind, entry.EntityID, err)
	}
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}
