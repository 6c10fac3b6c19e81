// Package policy decides whether an actor may perform an action on a target.
// Decisions are pure functions of the inputs; callers load the facts.
package policy

import "github.com/google/uuid"

const (
	RoleSuperAdmin = "super-admin"
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleAccountant = "accountant"
	RoleUser       = "user"
)

type RoleRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Level int       `json:"level"`
}

// Actor is the authenticated user with everything the rules need.
type Actor struct {
	UserID      uuid.UUID           `json:"user_id"`
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	Roles       []RoleRef           `json:"roles"`
	Permissions map[string]struct{} `json:"permissions"`
}

func NewActor(userID uuid.UUID, roles []RoleRef, permissions []string) Actor {
	set := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		set[p] = struct{}{}
	}
	return Actor{UserID: userID, Roles: roles, Permissions: set}
}

func (a Actor) HasRole(name string) bool {
	for _, r := range a.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

func (a Actor) HasAnyRole(names ...string) bool {
	for _, n := range names {
		if a.HasRole(n) {
			return true
		}
	}
	return false
}

func (a Actor) HasPermission(name string) bool {
	_, ok := a.Permissions[name]
	return ok
}

func (a Actor) IsSuperAdmin() bool {
	return a.HasRole(RoleSuperAdmin)
}

// MaxLevel is the highest level among the actor's roles, 0 without roles.
func (a Actor) MaxLevel() int {
	max := 0
	for _, r := range a.Roles {
		if r.Level > max {
			max = r.Level
		}
	}
	return max
}

// PermissionList returns the permission names in no particular order.
func (a Actor) PermissionList() []string {
	out := make([]string, 0, len(a.Permissions))
	for p := range a.Permissions {
		out = append(out, p)
	}
	return out
}

// OwnInvoicesOnly is true for plain users, who only see invoices they created.
func (a Actor) OwnInvoicesOnly() bool {
	return a.HasRole(RoleUser) && !a.HasAnyRole(RoleSuperAdmin, RoleAdmin, RoleManager, RoleAccountant)
}
