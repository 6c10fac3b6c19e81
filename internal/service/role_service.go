package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"backoffice/internal/cache"
	"backoffice/internal/model"
	"backoffice/internal/policy"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required,max=50"`
	Description string   `json:"description" binding:"max=255"`
	Level       int      `json:"level" binding:"min=0,max=100"`
	Permissions []string `json:"permissions"`
}

type UpdateRoleRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=50"`
	Description *string `json:"description" binding:"omitempty,max=255"`
	Level       *int    `json:"level" binding:"omitempty,min=0,max=100"`
}

type SyncPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type RoleResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Level       int      `json:"level"`
	IsDefault   bool     `json:"is_default"`
	UsersCount  int64    `json:"users_count"`
	Permissions []string `json:"permissions"`
	CreatedAt   string   `json:"created_at"`
}

type PermissionResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Group       string `json:"group"`
	Description string `json:"description"`
}

type PermissionGroupResponse struct {
	Group       string               `json:"group"`
	Permissions []PermissionResponse `json:"permissions"`
}

// AdminSeed describes the account created by Seed when none exists yet.
type AdminSeed struct {
	Name     string
	Email    string
	Password string
}

// --- Interface ---

type RoleService interface {
	List(ctx context.Context, actor policy.Actor, search string, page, limit int) ([]RoleResponse, int64, error)
	Get(ctx context.Context, actor policy.Actor, id string) (*RoleResponse, error)
	Create(ctx context.Context, actor policy.Actor, req CreateRoleRequest) (*RoleResponse, error)
	Update(ctx context.Context, actor policy.Actor, id string, req UpdateRoleRequest) (*RoleResponse, error)
	Delete(ctx context.Context, actor policy.Actor, id string) error
	SyncPermissions(ctx context.Context, actor policy.Actor, id string, req SyncPermissionsRequest) (*RoleResponse, error)
	Permissions(ctx context.Context, actor policy.Actor) ([]PermissionGroupResponse, error)
	Assign(ctx context.Context, actor policy.Actor, roleID, userID string) error
	Revoke(ctx context.Context, actor policy.Actor, roleID, userID string) error
	Seed(ctx context.Context, admin *AdminSeed) error
}

type roleService struct {
	repo      repository.RoleRepository
	userRepo  repository.UserRepository
	txManager repository.TransactionManager
	engine    *policy.Engine
	audit     AuditService
	actors    cache.ActorCache
}

func NewRoleService(
	repo repository.RoleRepository,
	userRepo repository.UserRepository,
	txManager repository.TransactionManager,
	engine *policy.Engine,
	audit AuditService,
	actors cache.ActorCache,
) RoleService {
	return &roleService{
		repo:      repo,
		userRepo:  userRepo,
		txManager: txManager,
		engine:    engine,
		audit:     audit,
		actors:    actors,
	}
}

// --- Implementation ---

func (s *roleService) List(ctx context.Context, actor policy.Actor, search string, page, limit int) ([]RoleResponse, int64, error) {
	if err := authorize(s.engine, policy.RoleViewAny, policy.Request{Actor: actor}); err != nil {
		return nil, 0, err
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	roles, total, err := s.repo.List(ctx, repository.RoleListFilter{
		Search:         strings.TrimSpace(search),
		HideSuperAdmin: !actor.IsSuperAdmin(),
		Page:           page,
		Limit:          limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch roles: %w", err)
	}
	counts, err := s.userCounts(ctx, roles)
	if err != nil {
		return nil, 0, err
	}

	res := make([]RoleResponse, 0, len(roles))
	for i := range roles {
		res = append(res, toRoleResponse(&roles[i], counts[roles[i].ID]))
	}
	return res, total, nil
}

func (s *roleService) Get(ctx context.Context, actor policy.Actor, id string) (*RoleResponse, error) {
	role, users, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(s.engine, policy.RoleView, policy.Request{Actor: actor, Role: roleTarget(role, users)}); err != nil {
		return nil, err
	}
	resp := toRoleResponse(role, users)
	return &resp, nil
}

func (s *roleService) Create(ctx context.Context, actor policy.Actor, req CreateRoleRequest) (*RoleResponse, error) {
	if err := authorize(s.engine, policy.RoleCreate, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == policy.RoleSuperAdmin {
		return nil, invalid("name", "is reserved")
	}
	if req.Level >= actor.MaxLevel() && !actor.IsSuperAdmin() {
		return nil, invalid("level", fmt.Sprintf("must be below your own level (%d)", actor.MaxLevel()))
	}

	role := &model.Role{Name: name, Description: req.Description, Level: req.Level}
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureNameFree(txCtx, name); err != nil {
			return err
		}
		if err := s.repo.Create(txCtx, role); err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}
		if len(req.Permissions) > 0 {
			if err := s.replacePermissions(txCtx, role, req.Permissions); err != nil {
				return err
			}
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionRoleCreated,
			SubjectType: "role",
			SubjectID:   role.ID,
			Description: "Role " + role.Name + " created",
			Properties:  map[string]any{"level": role.Level, "permissions": permissionNames(role.Permissions)},
		})
	})
	if err != nil {
		return nil, err
	}
	resp := toRoleResponse(role, 0)
	return &resp, nil
}

func (s *roleService) Update(ctx context.Context, actor policy.Actor, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	var role *model.Role
	var users int64
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		role, users, err = s.load(txCtx, id)
		if err != nil {
			return err
		}
		if err := authorize(s.engine, policy.RoleUpdate, policy.Request{Actor: actor, Role: roleTarget(role, users)}); err != nil {
			return err
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == policy.RoleSuperAdmin {
				return invalid("name", "is reserved")
			}
			if name != role.Name {
				if err := s.ensureNameFree(txCtx, name); err != nil {
					return err
				}
				role.Name = name
			}
		}
		if req.Description != nil {
			role.Description = *req.Description
		}
		if req.Level != nil {
			if *req.Level >= actor.MaxLevel() && !actor.IsSuperAdmin() {
				return invalid("level", fmt.Sprintf("must be below your own level (%d)", actor.MaxLevel()))
			}
			role.Level = *req.Level
		}
		if err := s.repo.Update(txCtx, role); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionRoleUpdated,
			SubjectType: "role",
			SubjectID:   role.ID,
			Description: "Role " + role.Name + " updated",
			Properties:  map[string]any{"level": role.Level},
		})
	})
	if err != nil {
		return nil, err
	}
	s.actors.Clear(ctx)
	resp := toRoleResponse(role, users)
	return &resp, nil
}

// Delete refuses protected, default, equal-or-higher and in-use roles; the
// policy reports the first rule that fails.
func (s *roleService) Delete(ctx context.Context, actor policy.Actor, id string) error {
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		role, users, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		if err := authorize(s.engine, policy.RoleDelete, policy.Request{Actor: actor, Role: roleTarget(role, users)}); err != nil {
			return err
		}
		if err := s.repo.Delete(txCtx, role); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionRoleDeleted,
			SubjectType: "role",
			SubjectID:   role.ID,
			Description: "Role " + role.Name + " deleted",
		})
	})
	if err != nil {
		return err
	}
	s.actors.Clear(ctx)
	return nil
}

func (s *roleService) SyncPermissions(ctx context.Context, actor policy.Actor, id string, req SyncPermissionsRequest) (*RoleResponse, error) {
	var role *model.Role
	var users int64
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		role, users, err = s.load(txCtx, id)
		if err != nil {
			return err
		}
		if err := authorize(s.engine, policy.RoleManagePermissions, policy.Request{Actor: actor, Role: roleTarget(role, users)}); err != nil {
			return err
		}
		before := permissionNames(role.Permissions)
		if err := s.replacePermissions(txCtx, role, req.Permissions); err != nil {
			return err
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionRolePermissionsSet,
			SubjectType: "role",
			SubjectID:   role.ID,
			Description: "Permissions of role " + role.Name + " updated",
			Properties:  map[string]any{"before": before, "after": permissionNames(role.Permissions)},
		})
	})
	if err != nil {
		return nil, err
	}
	s.actors.Clear(ctx)
	resp := toRoleResponse(role, users)
	return &resp, nil
}

// Permissions lists every permission grouped by its name prefix.
func (s *roleService) Permissions(ctx context.Context, actor policy.Actor) ([]PermissionGroupResponse, error) {
	if err := authorize(s.engine, policy.RoleViewAny, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}
	groups := []PermissionGroupResponse{}
	index := map[string]int{}
	for _, p := range perms {
		g := model.PermissionGroup(p.Name)
		i, ok := index[g]
		if !ok {
			i = len(groups)
			index[g] = i
			groups = append(groups, PermissionGroupResponse{Group: g})
		}
		groups[i].Permissions = append(groups[i].Permissions, PermissionResponse{
			ID:          p.ID.String(),
			Name:        p.Name,
			Group:       g,
			Description: p.Description,
		})
	}
	return groups, nil
}

func (s *roleService) Assign(ctx context.Context, actor policy.Actor, roleID, userID string) error {
	return s.changeMembership(ctx, actor, roleID, userID, true)
}

func (s *roleService) Revoke(ctx context.Context, actor policy.Actor, roleID, userID string) error {
	return s.changeMembership(ctx, actor, roleID, userID, false)
}

func (s *roleService) changeMembership(ctx context.Context, actor policy.Actor, roleID, userID string, assign bool) error {
	uid, err := parseID("user id", userID)
	if err != nil {
		return err
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		role, users, err := s.load(txCtx, roleID)
		if err != nil {
			return err
		}
		user, err := s.userRepo.FindByID(txCtx, uid)
		if err != nil {
			return fmt.Errorf("user: %w", err)
		}
		has := false
		for _, r := range user.Roles {
			if r.ID == role.ID {
				has = true
				break
			}
		}

		req := policy.Request{
			Actor: actor,
			Role:  roleTarget(role, users),
			User:  &policy.UserTarget{ID: user.ID, MaxLevel: user.MaxRoleLevel()},
		}
		action, audit := policy.RoleAssign, model.ActionRoleAssigned
		if !assign {
			action, audit = policy.RoleRevoke, model.ActionRoleRevoked
			if req.AdminCount, err = s.userRepo.CountWithRole(txCtx, policy.RoleAdmin); err != nil {
				return fmt.Errorf("failed to count admins: %w", err)
			}
		}
		if err := authorize(s.engine, action, req); err != nil {
			return err
		}

		switch {
		case assign && has:
			return ruleErr("user %s already has role %s", user.Email, role.Name)
		case !assign && !has:
			return ruleErr("user %s does not have role %s", user.Email, role.Name)
		case assign:
			err = s.userRepo.AppendRole(txCtx, user, role)
		default:
			err = s.userRepo.RemoveRole(txCtx, user, role)
		}
		if err != nil {
			return fmt.Errorf("failed to update user roles: %w", err)
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      audit,
			SubjectType: "user",
			SubjectID:   user.ID,
			Description: fmt.Sprintf("Role %s %s user %s", role.Name, map[bool]string{true: "assigned to", false: "revoked from"}[assign], user.Email),
			Properties:  map[string]any{"role": role.Name},
		})
	})
	if err != nil {
		return err
	}
	s.actors.Invalidate(ctx, uid)
	return nil
}

// --- Seeding ---

var defaultPermissions = []model.Permission{
	{Name: "invoice.create", Description: "Create invoices"},
	{Name: "invoice.edit", Description: "Edit invoices"},
	{Name: "invoice.view", Description: "View invoices"},
	{Name: "invoice.delete", Description: "Delete invoices"},
	{Name: "invoice.send", Description: "Send invoices"},
	{Name: "invoice.approve", Description: "Approve invoices"},
	{Name: "client.create", Description: "Create clients"},
	{Name: "client.edit", Description: "Edit clients"},
	{Name: "client.view", Description: "View clients"},
	{Name: "client.delete", Description: "Delete clients"},
	{Name: "client.export", Description: "Export clients"},
	{Name: "client.import", Description: "Import clients"},
	{Name: "client.bulk_delete", Description: "Bulk delete clients"},
	{Name: "client.view_contacts", Description: "View client contacts"},
	{Name: "client.manage_contacts", Description: "Manage client contacts"},
	{Name: "client.view_notes", Description: "View client notes"},
	{Name: "client.manage_notes", Description: "Manage client notes"},
	{Name: "payment.view", Description: "View payments"},
	{Name: "payment.create", Description: "Record payments"},
	{Name: "payment.delete", Description: "Delete payments"},
	{Name: "report.view", Description: "View reports"},
	{Name: "report.export", Description: "Export reports"},
	{Name: "user.view", Description: "View users"},
	{Name: "user.create", Description: "Create users"},
	{Name: "user.edit", Description: "Edit users"},
	{Name: "user.delete", Description: "Delete users"},
	{Name: "user.impersonate", Description: "Impersonate users"},
	{Name: "role.view", Description: "View roles"},
	{Name: "role.create", Description: "Create roles"},
	{Name: "role.edit", Description: "Edit roles"},
	{Name: "role.delete", Description: "Delete roles"},
	{Name: "system.settings", Description: "Manage system settings"},
	{Name: "system.backup", Description: "Perform system backups"},
	{Name: "system.audit", Description: "View audit logs"},
}

type roleSeed struct {
	role  model.Role
	perms func(name string) bool
}

func only(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

var defaultRoles = []roleSeed{
	{
		role:  model.Role{Name: policy.RoleSuperAdmin, Level: 100, Description: "Full access to every feature"},
		perms: func(string) bool { return true },
	},
	{
		role: model.Role{Name: policy.RoleAdmin, Level: 90, Description: "Administrative access"},
		perms: func(name string) bool {
			return name != "system.backup" && name != "user.impersonate"
		},
	},
	{
		role: model.Role{Name: policy.RoleManager, Level: 80, Description: "Management level access for business operations"},
		perms: only(
			"invoice.create", "invoice.edit", "invoice.view", "invoice.send",
			"client.create", "client.edit", "client.view", "client.export",
			"client.view_contacts", "client.manage_contacts", "client.view_notes", "client.manage_notes",
			"payment.view", "payment.create",
			"report.view", "user.view",
		),
	},
	{
		role: model.Role{Name: policy.RoleAccountant, Level: 70, Description: "Financial and reporting access"},
		perms: only(
			"invoice.view", "invoice.approve", "client.view",
			"payment.view", "payment.create", "report.view", "report.export",
		),
	},
	{
		role:  model.Role{Name: policy.RoleUser, Level: 50, IsDefault: true, Description: "Standard user with basic access"},
		perms: only("invoice.view", "invoice.create", "client.view"),
	},
}

// Seed creates the default permissions and roles and is safe to run
// repeatedly. Existing roles get their permission set restored. When admin
// is set and no user holds super-admin, that account is created.
func (s *roleService) Seed(ctx context.Context, admin *AdminSeed) error {
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		all := make([]model.Permission, 0, len(defaultPermissions))
		for _, p := range defaultPermissions {
			p.Group = model.PermissionGroup(p.Name)
			if err := s.repo.FindOrCreatePermission(txCtx, &p); err != nil {
				return fmt.Errorf("failed to seed permission '%s': %w", p.Name, err)
			}
			all = append(all, p)
		}

		var superAdmin model.Role
		for _, def := range defaultRoles {
			role := def.role
			if err := s.repo.FirstOrCreateRole(txCtx, &role); err != nil {
				return fmt.Errorf("failed to seed role '%s': %w", role.Name, err)
			}
			perms := make([]model.Permission, 0, len(all))
			for _, p := range all {
				if def.perms(p.Name) {
					perms = append(perms, p)
				}
			}
			if err := s.repo.ReplacePermissions(txCtx, &role, perms); err != nil {
				return fmt.Errorf("failed to assign permissions to role '%s': %w", role.Name, err)
			}
			if role.Name == policy.RoleSuperAdmin {
				superAdmin = role
			}
		}

		if admin == nil || admin.Email == "" {
			return nil
		}
		return s.seedAdmin(txCtx, admin, &superAdmin)
	})
	if err != nil {
		return err
	}
	s.actors.Clear(ctx)
	return nil
}

func (s *roleService) seedAdmin(ctx context.Context, admin *AdminSeed, role *model.Role) error {
	existing, err := s.userRepo.CountWithRole(ctx, policy.RoleSuperAdmin)
	if err != nil {
		return fmt.Errorf("failed to count super admins: %w", err)
	}
	if existing > 0 {
		return nil
	}
	user, err := s.userRepo.FindByEmail(ctx, admin.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to look up admin: %w", err)
	}
	if user == nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash admin password: %w", err)
		}
		now := time.Now()
		user = &model.User{
			Name:            orDefault(admin.Name, "Administrator"),
			Email:           admin.Email,
			Password:        string(hashed),
			Timezone:        "UTC",
			EmailVerifiedAt: &now,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create admin: %w", err)
		}
	}
	if err := s.userRepo.AppendRole(ctx, user, role); err != nil {
		return fmt.Errorf("failed to grant super-admin: %w", err)
	}
	return nil
}

// --- Helpers ---

func (s *roleService) load(ctx context.Context, id string) (*model.Role, int64, error) {
	roleID, err := parseID("role id", id)
	if err != nil {
		return nil, 0, err
	}
	role, err := s.repo.FindByID(ctx, roleID)
	if err != nil {
		return nil, 0, fmt.Errorf("role: %w", err)
	}
	counts, err := s.userCounts(ctx, []model.Role{*role})
	if err != nil {
		return nil, 0, err
	}
	return role, counts[role.ID], nil
}

func (s *roleService) userCounts(ctx context.Context, roles []model.Role) (map[uuid.UUID]int64, error) {
	ids := make([]uuid.UUID, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	counts, err := s.repo.UserCounts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to count role users: %w", err)
	}
	return counts, nil
}

func (s *roleService) ensureNameFree(ctx context.Context, name string) error {
	_, err := s.repo.FindByName(ctx, name)
	if err == nil {
		return fmt.Errorf("role %s: %w", name, ErrConflict)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to check role name: %w", err)
	}
	return nil
}

func (s *roleService) replacePermissions(ctx context.Context, role *model.Role, names []string) error {
	names = uniqueStrings(names)
	perms, err := s.repo.FindPermissionsByNames(ctx, names)
	if err != nil {
		return fmt.Errorf("failed to fetch permissions: %w", err)
	}
	if len(perms) != len(names) {
		return invalid("permissions", "contains an unknown permission")
	}
	if err := s.repo.ReplacePermissions(ctx, role, perms); err != nil {
		return fmt.Errorf("failed to update permissions: %w", err)
	}
	role.Permissions = perms
	return nil
}

func permissionNames(perms []model.Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.Name)
	}
	sort.Strings(out)
	return out
}

func toRoleResponse(r *model.Role, users int64) RoleResponse {
	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		Level:       r.Level,
		IsDefault:   r.IsDefault,
		UsersCount:  users,
		Permissions: permissionNames(r.Permissions),
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
}
