package service

import (
	"testing"

	"backoffice/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) role(name string) RoleResponse {
	f.t.Helper()
	roles, _, err := f.roles.List(f.ctx, f.admin, name, 1, 50)
	require.NoError(f.t, err)
	for _, r := range roles {
		if r.Name == name {
			return r
		}
	}
	f.t.Fatalf("role %s not found", name)
	return RoleResponse{}
}

func TestSeedIsIdempotent(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.roles.Seed(f.ctx, &AdminSeed{Name: "Other", Email: "other-root@example.com", Password: "x"}))

	roles, total, err := f.roles.List(f.ctx, f.admin, "", 1, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, roles, 5)

	superAdmin := f.role(policy.RoleSuperAdmin)
	assert.EqualValues(t, 1, superAdmin.UsersCount, "a second seed does not add another super admin")
	assert.True(t, f.role(policy.RoleUser).IsDefault)

	groups, err := f.roles.Permissions(f.ctx, f.admin)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, g := range groups {
		names[g.Group] = true
	}
	assert.True(t, names["invoice"])
	assert.True(t, names["client"])
}

func TestRoleListHidesSuperAdminFromOthers(t *testing.T) {
	f := newFixture(t)
	admin := f.actorWith(policy.RoleAdmin)

	roles, _, err := f.roles.List(f.ctx, admin, "", 1, 50)
	require.NoError(t, err)
	for _, r := range roles {
		assert.NotEqual(t, policy.RoleSuperAdmin, r.Name)
	}

	_, err = f.roles.Get(f.ctx, admin, f.role(policy.RoleSuperAdmin).ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRoleDeleteRequiresPermission(t *testing.T) {
	f := newFixture(t)
	custom, err := f.roles.Create(f.ctx, f.admin, CreateRoleRequest{Name: "auditor", Level: 60, Permissions: []string{"report.view"}})
	require.NoError(t, err)

	manager := f.actorWith(policy.RoleManager)
	assert.ErrorIs(t, f.roles.Delete(f.ctx, manager, custom.ID), ErrForbidden)

	admin := f.actorWith(policy.RoleAdmin)
	require.NoError(t, f.roles.Delete(f.ctx, admin, custom.ID))
	_, err = f.roles.Get(f.ctx, f.admin, custom.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProtectedRolesCannotBeDeleted(t *testing.T) {
	f := newFixture(t)
	admin := f.actorWith(policy.RoleAdmin)

	assert.ErrorIs(t, f.roles.Delete(f.ctx, admin, f.role(policy.RoleSuperAdmin).ID), ErrForbidden)
	assert.ErrorIs(t, f.roles.Delete(f.ctx, admin, f.role(policy.RoleUser).ID), ErrForbidden, "default role")
	assert.ErrorIs(t, f.roles.Delete(f.ctx, admin, f.role(policy.RoleAdmin).ID), ErrForbidden, "same level")

	used, err := f.roles.Create(f.ctx, f.admin, CreateRoleRequest{Name: "in-use", Level: 10})
	require.NoError(t, err)
	member := f.actorWith(policy.RoleUser)
	require.NoError(t, f.roles.Assign(f.ctx, f.admin, used.ID, member.UserID.String()))
	assert.ErrorIs(t, f.roles.Delete(f.ctx, admin, used.ID), ErrForbidden, "role still has users")
}

func TestRoleCreateLevelAndName(t *testing.T) {
	f := newFixture(t)
	admin := f.actorWith(policy.RoleAdmin)

	_, err := f.roles.Create(f.ctx, admin, CreateRoleRequest{Name: "boss", Level: 95})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "level")

	_, err = f.roles.Create(f.ctx, f.admin, CreateRoleRequest{Name: policy.RoleSuperAdmin, Level: 1})
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "name")

	_, err = f.roles.Create(f.ctx, admin, CreateRoleRequest{Name: policy.RoleManager, Level: 10})
	assert.ErrorIs(t, err, ErrConflict)

	created, err := f.roles.Create(f.ctx, admin, CreateRoleRequest{Name: "clerk", Level: 40, Permissions: []string{"invoice.view", "client.view"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"invoice.view", "client.view"}, created.Permissions)
}

func TestSyncPermissionsTakesEffect(t *testing.T) {
	f := newFixture(t)
	clerk, err := f.roles.Create(f.ctx, f.admin, CreateRoleRequest{Name: "clerk", Level: 40, Permissions: []string{"invoice.view"}})
	require.NoError(t, err)
	member := f.actorWith("clerk")
	assert.False(t, member.HasPermission("client.view"))

	resp, err := f.roles.SyncPermissions(f.ctx, f.admin, clerk.ID, SyncPermissionsRequest{Permissions: []string{"invoice.view", "client.view"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"invoice.view", "client.view"}, resp.Permissions)
	assert.True(t, f.load(member.UserID).HasPermission("client.view"))

	_, err = f.roles.SyncPermissions(f.ctx, f.admin, clerk.ID, SyncPermissionsRequest{Permissions: []string{"does.not_exist"}})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestAssignAndRevoke(t *testing.T) {
	f := newFixture(t)
	admin := f.actorWith(policy.RoleAdmin)
	member := f.actorWith(policy.RoleUser)
	accountant := f.role(policy.RoleAccountant)

	require.NoError(t, f.roles.Assign(f.ctx, admin, accountant.ID, member.UserID.String()))
	assert.True(t, f.load(member.UserID).HasRole(policy.RoleAccountant))

	var re *RuleError
	assert.ErrorAs(t, f.roles.Assign(f.ctx, admin, accountant.ID, member.UserID.String()), &re)

	require.NoError(t, f.roles.Revoke(f.ctx, admin, accountant.ID, member.UserID.String()))
	assert.False(t, f.load(member.UserID).HasRole(policy.RoleAccountant))

	assert.ErrorIs(t, f.roles.Assign(f.ctx, admin, f.role(policy.RoleSuperAdmin).ID, member.UserID.String()), ErrForbidden)
}

func TestLastAdminCannotBeRevoked(t *testing.T) {
	f := newFixture(t)
	admin := f.actorWith(policy.RoleAdmin)
	adminRole := f.role(policy.RoleAdmin)

	err := f.roles.Revoke(f.ctx, admin, adminRole.ID, admin.UserID.String())
	assert.ErrorIs(t, err, ErrForbidden)
}
