// Package policy decides which caller may perform which engine operation.
// Identity is established upstream; the engine only sees a user id and the
// roles attached to it.
package policy

import (
	"errors"
	"strings"
)

type Role string

const (
	RoleSuperuser Role = "superuser"
	RoleAdmin     Role = "admin"
	RoleUser      Role = "user"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

type Caller struct {
	UserID string
	Roles  []Role
}

// ParseRoles reads a comma separated role list, ignoring unknown names.
func ParseRoles(raw string) []Role {
	var roles []Role
	for _, part := range strings.Split(raw, ",") {
		switch r := Role(strings.ToLower(strings.TrimSpace(part))); r {
		case RoleSuperuser, RoleAdmin, RoleUser:
			roles = append(roles, r)
		}
	}
	return roles
}

func (c Caller) Authenticated() bool {
	return strings.TrimSpace(c.UserID) != ""
}

func (c Caller) Has(role Role) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Staff reports whether the caller is an admin or a superuser.
func (c Caller) Staff() bool {
	return c.Has(RoleAdmin) || c.Has(RoleSuperuser)
}

type Action string

const (
	ActionCreateTicketType   Action = "ticket_type:create"
	ActionViewInventory      Action = "inventory:view"
	ActionVoidUnit           Action = "unit:void"
	ActionMarkUsed           Action = "unit:mark_used"
	ActionReserve            Action = "registration:reserve"
	ActionViewRegistration   Action = "registration:view"
	ActionCancelRegistration Action = "registration:cancel"
	ActionDeleteRegistration Action = "registration:delete"
	ActionRecordPayment      Action = "payment:record"
	ActionFinalizePayment    Action = "payment:finalize"
)

var staffOnly = map[Action]bool{
	ActionCreateTicketType:   true,
	ActionVoidUnit:           true,
	ActionMarkUsed:           true,
	ActionDeleteRegistration: true,
	ActionFinalizePayment:    true,
}

// Authorize checks whether caller may perform action at all. Actions on a
// specific registration additionally need AuthorizeOwner.
func Authorize(caller Caller, action Action) error {
	if !caller.Authenticated() {
		return ErrUnauthenticated
	}
	if staffOnly[action] && !caller.Staff() {
		return ErrForbidden
	}
	return nil
}

// AuthorizeOwner allows staff, or the user who owns the resource.
func AuthorizeOwner(caller Caller, ownerUserID string) error {
	if !caller.Authenticated() {
		return ErrUnauthenticated
	}
	if caller.Staff() || caller.UserID == ownerUserID {
		return nil
	}
	return ErrForbidden
}
