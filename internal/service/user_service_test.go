package service

import (
	"net/url"
	"testing"

	"backoffice/internal/policy"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginAndRefreshRotation(t *testing.T) {
	f := newFixture(t)

	_, err := f.users.Login(f.ctx, LoginUserRequest{Email: rootEmail, Password: "wrong"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = f.users.Login(f.ctx, LoginUserRequest{Email: "nobody@example.com", Password: rootPassword})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	session, err := f.users.Login(f.ctx, LoginUserRequest{Email: rootEmail, Password: rootPassword})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Contains(t, session.User.Roles, policy.RoleSuperAdmin)

	rotated, err := f.users.Refresh(f.ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, rotated.RefreshToken)

	_, err = f.users.Refresh(f.ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthenticated, "a consumed refresh token is rejected")

	require.NoError(t, f.users.Logout(f.ctx, rotated.RefreshToken))
	_, err = f.users.Refresh(f.ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCreateUserWithoutRolesGetsDefaultRole(t *testing.T) {
	f := newFixture(t)

	u, err := f.users.Create(f.ctx, f.admin, CreateUserRequest{Name: "Plain", Email: "plain@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, []string{policy.RoleUser}, u.Roles)
	assert.Equal(t, "active", u.Status)

	_, err = f.users.Create(f.ctx, f.admin, CreateUserRequest{Name: "Again", Email: "plain@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMeListsEffectivePermissions(t *testing.T) {
	f := newFixture(t)
	accountant := f.actorWith(policy.RoleAccountant)

	me, err := f.users.Me(f.ctx, accountant)
	require.NoError(t, err)
	assert.Contains(t, me.Permissions, "payment.create")
	assert.NotContains(t, me.Permissions, "user.delete")
}

func TestUserCannotDeleteSelf(t *testing.T) {
	f := newFixture(t)

	err := f.users.Delete(f.ctx, f.admin, f.admin.UserID.String())
	assert.ErrorIs(t, err, ErrForbidden)

	other := f.actorWith(policy.RoleManager)
	require.NoError(t, f.users.Delete(f.ctx, f.admin, other.UserID.String()))
	_, err = f.users.Get(f.ctx, f.admin, other.UserID.String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerCannotManageUsers(t *testing.T) {
	f := newFixture(t)
	manager := f.actorWith(policy.RoleManager)
	target := f.actorWith(policy.RoleUser)

	assert.ErrorIs(t, f.users.Delete(f.ctx, manager, target.UserID.String()), ErrForbidden)
	_, err := f.users.Create(f.ctx, manager, CreateUserRequest{Name: "x", Email: "x@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAdminCannotTakeOverHigherAccounts(t *testing.T) {
	f := newFixture(t)
	admin := f.actorWith(policy.RoleAdmin)
	peer := f.actorWith(policy.RoleAdmin)
	manager := f.actorWith(policy.RoleManager)
	password := "taken-over-123"

	_, err := f.users.Update(f.ctx, admin, f.admin.UserID.String(), UpdateUserRequest{Password: &password})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.users.Login(f.ctx, LoginUserRequest{Email: rootEmail, Password: password})
	assert.Error(t, err)
	_, err = f.users.Login(f.ctx, LoginUserRequest{Email: rootEmail, Password: rootPassword})
	assert.NoError(t, err, "root password is unchanged")

	assert.ErrorIs(t, f.users.Delete(f.ctx, admin, f.admin.UserID.String()), ErrForbidden)
	assert.ErrorIs(t, f.users.Delete(f.ctx, admin, peer.UserID.String()), ErrForbidden)
	_, err = f.users.Get(f.ctx, f.admin, f.admin.UserID.String())
	assert.NoError(t, err)

	name := "Renamed"
	_, err = f.users.Update(f.ctx, admin, peer.UserID.String(), UpdateUserRequest{Name: &name})
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := f.users.Update(f.ctx, admin, admin.UserID.String(), UpdateUserRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	require.NoError(t, f.users.Delete(f.ctx, admin, manager.UserID.String()))
}

func TestAdminCannotGrantSuperAdmin(t *testing.T) {
	f := newFixture(t)
	admin := f.actorWith(policy.RoleAdmin)

	_, err := f.users.Create(f.ctx, admin, CreateUserRequest{
		Name:     "Sneaky",
		Email:    "sneaky@example.com",
		Password: "password123",
		Roles:    []string{policy.RoleSuperAdmin},
	})
	assert.ErrorIs(t, err, ErrForbidden)

	u, err := f.users.Create(f.ctx, admin, CreateUserRequest{
		Name:     "Helper",
		Email:    "helper@example.com",
		Password: "password123",
		Roles:    []string{policy.RoleAccountant},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{policy.RoleAccountant}, u.Roles)
}

func TestUpdateUserRoles(t *testing.T) {
	f := newFixture(t)
	target := f.actorWith(policy.RoleUser)

	updated, err := f.users.Update(f.ctx, f.admin, target.UserID.String(), UpdateUserRequest{Roles: []string{policy.RoleManager}})
	require.NoError(t, err)
	assert.Equal(t, []string{policy.RoleManager}, updated.Roles)

	reloaded := f.load(target.UserID)
	assert.True(t, reloaded.HasPermission("invoice.edit"))
	assert.False(t, reloaded.HasRole(policy.RoleUser))
}

func TestInvitationRegistration(t *testing.T) {
	f := newFixture(t)

	inv, err := f.users.Invite(f.ctx, f.admin, InviteUserRequest{Name: "Invitee", Email: "invitee@example.com", Roles: []string{policy.RoleAccountant}})
	require.NoError(t, err)
	assert.Equal(t, "pending", inv.User.Status)

	link, err := url.Parse(inv.RegistrationURL)
	require.NoError(t, err)
	assert.Equal(t, "/register", link.Path)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)

	info, err := f.users.ValidateRegistration(f.ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "invitee@example.com", info.Email)

	session, err := f.users.CompleteRegistration(f.ctx, CompleteRegistrationRequest{
		Token:                token,
		Password:             "new-password",
		PasswordConfirmation: "new-password",
	})
	require.NoError(t, err)
	assert.Equal(t, "active", session.User.Status)

	_, err = f.users.Login(f.ctx, LoginUserRequest{Email: "invitee@example.com", Password: "new-password"})
	require.NoError(t, err)

	_, err = f.users.ResendInvitation(f.ctx, f.admin, session.User.ID)
	var re *RuleError
	assert.ErrorAs(t, err, &re)

	uid := uuid.MustParse(session.User.ID)
	notes, total, err := f.notifier.List(f.ctx, uid, true, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, notes, 1)
	assert.Equal(t, NotificationUserInvitation, notes[0].Type)

	require.NoError(t, f.notifier.MarkRead(f.ctx, uid, notes[0].ID))
	assert.ErrorIs(t, f.notifier.MarkRead(f.ctx, uid, notes[0].ID), ErrNotFound)
}

func TestValidateRegistrationRejectsGarbage(t *testing.T) {
	f := newFixture(t)

	_, err := f.users.ValidateRegistration(f.ctx, "garbage")
	assert.Error(t, err)
}
