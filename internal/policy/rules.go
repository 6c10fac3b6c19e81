package policy

import "strings"

func permission(name string) Rule {
	return Rule{
		Name:  "missing permission " + name,
		Check: func(r Request) bool { return r.Actor.HasPermission(name) },
	}
}

func anyPermission(names ...string) Rule {
	return Rule{
		Name: "missing one of " + strings.Join(names, ", "),
		Check: func(r Request) bool {
			for _, n := range names {
				if r.Actor.HasPermission(n) {
					return true
				}
			}
			return false
		},
	}
}

var (
	adminRole = Rule{
		Name:  "requires admin role",
		Check: func(r Request) bool { return r.Actor.HasAnyRole(RoleAdmin, RoleSuperAdmin) },
	}

	targetNotSuperAdmin = Rule{
		Name:  "super-admin role is protected",
		Check: func(r Request) bool { return r.Role != nil && r.Role.Name != RoleSuperAdmin },
	}

	targetBelowActor = Rule{
		Name:  "role level must be below your own",
		Check: func(r Request) bool { return r.Role != nil && r.Role.Level < r.Actor.MaxLevel() },
	}

	targetNotDefault = Rule{
		Name:  "default role cannot be deleted",
		Check: func(r Request) bool { return r.Role != nil && !r.Role.IsDefault },
	}

	targetUnused = Rule{
		Name:  "role is assigned to users",
		Check: func(r Request) bool { return r.Role != nil && r.Role.UserCount == 0 },
	}

	notOwnSuperAdmin = Rule{
		Name: "cannot revoke super-admin from yourself",
		Check: func(r Request) bool {
			return !(isSelf(r) && r.Role != nil && r.Role.Name == RoleSuperAdmin)
		},
	}

	notLastAdmin = Rule{
		Name: "cannot revoke your admin role while you are the only admin",
		Check: func(r Request) bool {
			return !(isSelf(r) && r.Role != nil && r.Role.Name == RoleAdmin && r.AdminCount <= 1)
		},
	}

	targetUserBelowActor = Rule{
		Name: "target user has equal or higher authority",
		Check: func(r Request) bool {
			return r.User != nil && (isSelf(r) || r.User.MaxLevel < r.Actor.MaxLevel())
		},
	}

	userStrictlyBelowActor = Rule{
		Name: "target user has equal or higher authority",
		Check: func(r Request) bool {
			return r.User != nil && !isSelf(r) && r.User.MaxLevel < r.Actor.MaxLevel()
		},
	}

	ownInvoice = Rule{
		Name: "invoice belongs to another user",
		Check: func(r Request) bool {
			if !r.Actor.OwnInvoicesOnly() {
				return true
			}
			return r.InvoiceOwnerID != nil && *r.InvoiceOwnerID == r.Actor.UserID
		},
	}
)

func isSelf(r Request) bool {
	return r.User != nil && r.User.ID == r.Actor.UserID
}

func defaultPolicies() map[Action]Policy {
	assign := Policy{
		targetNotSuperAdmin,
		targetBelowActor,
		anyPermission("user.edit", "user.create"),
	}
	roleUpdate := Policy{
		targetNotSuperAdmin,
		targetBelowActor,
		permission("role.edit"),
		adminRole,
	}

	return map[Action]Policy{
		InvoiceViewAny: {permission("invoice.view")},
		InvoiceView:    {permission("invoice.view"), ownInvoice},
		InvoiceCreate:  {permission("invoice.create")},
		InvoiceUpdate:  {permission("invoice.edit"), ownInvoice},
		InvoiceDelete:  {permission("invoice.delete"), ownInvoice},
		InvoiceSend:    {permission("invoice.send"), ownInvoice},

		ClientViewAny:     {permission("client.view")},
		ClientView:        {permission("client.view")},
		ClientCreate:      {permission("client.create")},
		ClientUpdate:      {permission("client.edit")},
		ClientDelete:      {permission("client.delete")},
		ClientExport:      {permission("client.export")},
		ClientImport:      {permission("client.import")},
		ClientBulkDelete:  {permission("client.bulk_delete")},
		ClientViewNotes:   {permission("client.view_notes")},
		ClientManageNotes: {permission("client.manage_notes")},

		PaymentView:   {permission("payment.view")},
		PaymentCreate: {permission("payment.create")},
		PaymentDelete: {permission("payment.delete")},

		ReportView:   {permission("report.view")},
		ReportExport: {permission("report.export")},

		UserViewAny: {permission("user.view")},
		UserView:    {permission("user.view")},
		UserCreate:  {permission("user.create")},
		UserUpdate:  {permission("user.edit"), targetUserBelowActor},
		UserDelete:  {permission("user.delete"), userStrictlyBelowActor},

		RoleViewAny: {permission("role.view")},
		RoleView:    {permission("role.view"), targetNotSuperAdmin},
		RoleCreate:  {permission("role.create"), adminRole},
		RoleUpdate:  roleUpdate,
		RoleDelete: {
			targetNotSuperAdmin,
			targetNotDefault,
			targetBelowActor,
			targetUnused,
			permission("role.delete"),
			adminRole,
		},
		RoleManagePermissions: roleUpdate,
		RoleAssign:            assign,
		RoleRevoke:            append(Policy{notOwnSuperAdmin, notLastAdmin, targetUserBelowActor}, assign...),

		AuditView: {permission("system.audit")},
	}
}
