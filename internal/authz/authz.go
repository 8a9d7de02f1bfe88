package authz

import (
	"errors"

	"github.com/sabrina-Riya/officecore/internal/models"
)

type Operation string

const (
	OpSubmitLeave   Operation = "leave.submit"
	OpEditLeave     Operation = "leave.edit"
	OpCancelLeave   Operation = "leave.cancel"
	OpListOwnLeaves Operation = "leave.list_own"
	OpApproveLeave  Operation = "leave.approve"
	OpRejectLeave   Operation = "leave.reject"
	OpViewAllLeaves Operation = "leave.list_all"
	OpExportLeaves  Operation = "leave.export"
	OpManageUsers   Operation = "user.manage"
	OpToggleActive  Operation = "user.toggle_active"
	OpChangeRole    Operation = "user.change_role"
	OpViewAudit     Operation = "audit.view"
)

var (
	ErrDenied     = errors.New("operation not permitted")
	ErrSelfTarget = errors.New("own account cannot be targeted")
)

var requiredRole = map[Operation]models.Role{
	OpSubmitLeave:   models.RoleEmployee,
	OpEditLeave:     models.RoleEmployee,
	OpCancelLeave:   models.RoleEmployee,
	OpListOwnLeaves: models.RoleEmployee,
	OpApproveLeave:  models.RoleAdmin,
	OpRejectLeave:   models.RoleAdmin,
	OpViewAllLeaves: models.RoleAdmin,
	OpExportLeaves:  models.RoleAdmin,
	OpManageUsers:   models.RoleAdmin,
	OpToggleActive:  models.RoleAdmin,
	OpChangeRole:    models.RoleAdmin,
	OpViewAudit:     models.RoleAdmin,
}

// ownerScoped operations additionally require the actor to own the target
// resource.
var ownerScoped = map[Operation]bool{
	OpSubmitLeave:   true,
	OpEditLeave:     true,
	OpCancelLeave:   true,
	OpListOwnLeaves: true,
}

// selfProtected operations may never target the actor's own account, even for
// admins. An admin locking themselves out or dropping their own role has no
// recovery path inside the application.
var selfProtected = map[Operation]bool{
	OpToggleActive: true,
	OpChangeRole:   true,
}

// Authorize decides whether actor may perform op against the resource owned
// by (or identified as) targetID. targetID is ignored for operations that are
// neither owner-scoped nor self-protected.
func Authorize(actor models.Actor, op Operation, targetID string) error {
	role, ok := requiredRole[op]
	if !ok {
		return ErrDenied
	}
	if actor.ID == "" || actor.Role != role {
		return ErrDenied
	}
	if ownerScoped[op] && actor.ID != targetID {
		return ErrDenied
	}
	if selfProtected[op] && actor.ID == targetID {
		return ErrSelfTarget
	}
	return nil
}
