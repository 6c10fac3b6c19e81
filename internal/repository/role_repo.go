package repository

import (
	"context"

	"backoffice/internal/model"
	"backoffice/internal/policy"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoleListFilter struct {
	Search         string
	HideSuperAdmin bool
	Page           int
	Limit          int
}

type RoleRepository interface {
	Create(ctx context.Context, role *model.Role) error
	Update(ctx context.Context, role *model.Role) error
	Delete(ctx context.Context, role *model.Role) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error)
	FindByName(ctx context.Context, name string) (*model.Role, error)
	FindByNames(ctx context.Context, names []string) ([]model.Role, error)
	List(ctx context.Context, f RoleListFilter) ([]model.Role, int64, error)
	UserCounts(ctx context.Context, roleIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	ListPermissions(ctx context.Context) ([]model.Permission, error)
	FindPermissionsByNames(ctx context.Context, names []string) ([]model.Permission, error)
	ReplacePermissions(ctx context.Context, role *model.Role, perms []model.Permission) error
	FindOrCreatePermission(ctx context.Context, perm *model.Permission) error
	FirstOrCreateRole(ctx context.Context, role *model.Role) error
}

type roleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Omit("Permissions").Create(role).Error
}

func (r *roleRepository) Update(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Omit("Permissions").Save(role).Error
}

// Delete clears the join rows first; roles are not soft-deleted.
func (r *roleRepository) Delete(ctx context.Context, role *model.Role) error {
	db := GetDB(ctx, r.db)
	if err := db.Model(role).Association("Permissions").Clear(); err != nil {
		return err
	}
	return db.Delete(role).Error
}

func (r *roleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).Preload("Permissions", orderPermissions).First(&role, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &role, nil
}

func (r *roleRepository) FindByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).Preload("Permissions", orderPermissions).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, notFound(err)
	}
	return &role, nil
}

func (r *roleRepository) FindByNames(ctx context.Context, names []string) ([]model.Role, error) {
	var roles []model.Role
	if len(names) == 0 {
		return roles, nil
	}
	if err := GetDB(ctx, r.db).Where("name IN ?", names).Order("level DESC").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *roleRepository) List(ctx context.Context, f RoleListFilter) ([]model.Role, int64, error) {
	var roles []model.Role
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		if f.HideSuperAdmin {
			q = q.Where("name <> ?", policy.RoleSuperAdmin)
		}
		if f.Search != "" {
			q = q.Where("LOWER(name) LIKE LOWER(?)", likePattern(f.Search))
		}
		return q
	}

	if err := scope(db.Model(&model.Role{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (f.Page - 1) * f.Limit
	if err := scope(db.Model(&model.Role{})).Preload("Permissions", orderPermissions).
		Order("level DESC, name ASC").Offset(offset).Limit(f.Limit).Find(&roles).Error; err != nil {
		return nil, 0, err
	}
	return roles, total, nil
}

// UserCounts counts live users per role.
func (r *roleRepository) UserCounts(ctx context.Context, roleIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(roleIDs))
	if len(roleIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		RoleID uuid.UUID
		Count  int64
	}
	err := GetDB(ctx, r.db).Table("user_roles").
		Select("user_roles.role_id, COUNT(*) AS count").
		Joins("JOIN users ON users.id = user_roles.user_id AND users.deleted_at IS NULL").
		Where("user_roles.role_id IN ?", roleIDs).
		Group("user_roles.role_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.RoleID] = row.Count
	}
	return out, nil
}

func (r *roleRepository) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	var perms []model.Permission
	if err := orderPermissions(GetDB(ctx, r.db)).Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *roleRepository) FindPermissionsByNames(ctx context.Context, names []string) ([]model.Permission, error) {
	var perms []model.Permission
	if len(names) == 0 {
		return perms, nil
	}
	if err := GetDB(ctx, r.db).Where("name IN ?", names).Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *roleRepository) ReplacePermissions(ctx context.Context, role *model.Role, perms []model.Permission) error {
	return GetDB(ctx, r.db).Model(role).Association("Permissions").Replace(perms)
}

func (r *roleRepository) FindOrCreatePermission(ctx context.Context, perm *model.Permission) error {
	return GetDB(ctx, r.db).
		Where("name = ?", perm.Name).
		Attrs(model.Permission{Group: perm.Group, Description: perm.Description}).
		FirstOrCreate(perm).Error
}

// FirstOrCreateRole looks the role up by name and creates it when missing.
func (r *roleRepository) FirstOrCreateRole(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).
		Where("name = ?", role.Name).
		Attrs(model.Role{Description: role.Description, Level: role.Level, IsDefault: role.IsDefault}).
		FirstOrCreate(role).Error
}

func orderPermissions(db *gorm.DB) *gorm.DB {
	return db.Order("\"group\" ASC, name ASC")
}
