package policy

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Action string

const (
	InvoiceViewAny Action = "invoice.viewAny"
	InvoiceView    Action = "invoice.view"
	InvoiceCreate  Action = "invoice.create"
	InvoiceUpdate  Action = "invoice.update"
	InvoiceDelete  Action = "invoice.delete"
	InvoiceSend    Action = "invoice.send"

	ClientViewAny     Action = "client.viewAny"
	ClientView        Action = "client.view"
	ClientCreate      Action = "client.create"
	ClientUpdate      Action = "client.update"
	ClientDelete      Action = "client.delete"
	ClientExport      Action = "client.export"
	ClientImport      Action = "client.import"
	ClientBulkDelete  Action = "client.bulkDelete"
	ClientViewNotes   Action = "client.viewNotes"
	ClientManageNotes Action = "client.manageNotes"

	PaymentView   Action = "payment.view"
	PaymentCreate Action = "payment.create"
	PaymentDelete Action = "payment.delete"

	ReportView   Action = "report.view"
	ReportExport Action = "report.export"

	UserViewAny Action = "user.viewAny"
	UserView    Action = "user.view"
	UserCreate  Action = "user.create"
	UserUpdate  Action = "user.update"
	UserDelete  Action = "user.delete"

	RoleViewAny           Action = "role.viewAny"
	RoleView              Action = "role.view"
	RoleCreate            Action = "role.create"
	RoleUpdate            Action = "role.update"
	RoleDelete            Action = "role.delete"
	RoleManagePermissions Action = "role.managePermissions"
	RoleAssign            Action = "role.assign"
	RoleRevoke            Action = "role.revoke"

	AuditView Action = "system.audit"
)

// ErrDenied is wrapped by every denial.
var ErrDenied = errors.New("action denied")

type DeniedError struct {
	Action Action
	Rule   string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s denied: %s", e.Action, e.Rule)
}

func (e *DeniedError) Unwrap() error { return ErrDenied }

// RoleTarget carries the facts about a role being acted on.
type RoleTarget struct {
	ID        uuid.UUID
	Name      string
	Level     int
	IsDefault bool
	UserCount int64
}

// UserTarget is the user being edited, deleted or having roles changed.
type UserTarget struct {
	ID       uuid.UUID
	MaxLevel int
}

type Request struct {
	Actor          Actor
	Role           *RoleTarget
	User           *UserTarget
	InvoiceOwnerID *uuid.UUID
	// AdminCount is the number of users currently holding the admin role.
	AdminCount int64
}

// Rule is one named predicate. A false result denies the action.
type Rule struct {
	Name  string
	Check func(Request) bool
}

// Policy is evaluated in order and stops at the first failing rule.
type Policy []Rule

type Engine struct {
	policies map[Action]Policy
}

func NewEngine(policies map[Action]Policy) *Engine {
	return &Engine{policies: policies}
}

// Default returns the engine with the built-in rule sets.
func Default() *Engine {
	return NewEngine(defaultPolicies())
}

// Authorize returns nil when allowed and a *DeniedError otherwise.
// Super-admins are allowed before any rule runs.
func (e *Engine) Authorize(action Action, req Request) error {
	if req.Actor.IsSuperAdmin() {
		return nil
	}
	p, ok := e.policies[action]
	if !ok {
		return &DeniedError{Action: action, Rule: "unknown action"}
	}
	for _, r := range p {
		if !r.Check(req) {
			return &DeniedError{Action: action, Rule: r.Name}
		}
	}
	return nil
}

func (e *Engine) Allows(action Action, req Request) bool {
	return e.Authorize(action, req) == nil
}

// Actions lists the actions the engine knows about.
func (e *Engine) Actions() []Action {
	out := make([]Action, 0, len(e.policies))
	for a := range e.policies {
		out = append(out, a)
	}
	return out
}
