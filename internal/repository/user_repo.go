package repository

import (
	"context"
	"strings"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/policy"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserListFilter struct {
	Search string
	Role   string
	Page   int
	Limit  int
}

type InvitationStats struct {
	Total   int64 `json:"total"`
	Pending int64 `json:"pending"`
	Recent  int64 `json:"recent"`
}

// UserRepository defines the interface for data access of User entities
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context, f UserListFilter) ([]model.User, int64, error)
	InvoiceCounts(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	ReplaceRoles(ctx context.Context, user *model.User, roles []model.Role) error
	AppendRole(ctx context.Context, user *model.User, role *model.Role) error
	RemoveRole(ctx context.Context, user *model.User, role *model.Role) error
	CountWithRole(ctx context.Context, roleName string) (int64, error)
	InvitationStats(ctx context.Context, since time.Time) (InvitationStats, error)
	LoadActor(ctx context.Context, id uuid.UUID) (policy.Actor, error)

	CreateRefreshToken(ctx context.Context, token *model.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
	DeleteRefreshTokensForUser(ctx context.Context, userID uuid.UUID) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Omit("Roles.*").Create(user).Error
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Omit("Roles").Save(user).Error
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.User{}).Error
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).Preload("Roles.Permissions").First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).Preload("Roles").First(&user, "LOWER(email) = ?", strings.ToLower(email)).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, f UserListFilter) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		if f.Search != "" {
			p := strings.ToLower(likePattern(f.Search))
			q = q.Where("LOWER(users.name) LIKE ? OR LOWER(users.email) LIKE ?", p, p)
		}
		if f.Role != "" {
			q = q.Where("users.id IN (?)", db.Table("user_roles").
				Select("user_roles.user_id").
				Joins("JOIN roles ON roles.id = user_roles.role_id").
				Where("roles.name = ?", f.Role))
		}
		return q
	}

	if err := scope(db.Model(&model.User{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	if err := scope(db.Model(&model.User{})).Preload("Roles").
		Order("users.created_at DESC").Offset(offset).Limit(f.Limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *userRepository) InvoiceCounts(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		UserID uuid.UUID
		Count  int64
	}
	err := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Select("user_id, COUNT(*) AS count").
		Where("user_id IN ?", userIDs).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.UserID] = row.Count
	}
	return out, nil
}

func (r *userRepository) ReplaceRoles(ctx context.Context, user *model.User, roles []model.Role) error {
	return GetDB(ctx, r.db).Model(user).Association("Roles").Replace(roles)
}

func (r *userRepository) AppendRole(ctx context.Context, user *model.User, role *model.Role) error {
	return GetDB(ctx, r.db).Model(user).Association("Roles").Append(role)
}

func (r *userRepository) RemoveRole(ctx context.Context, user *model.User, role *model.Role) error {
	return GetDB(ctx, r.db).Model(user).Association("Roles").Delete(role)
}

// CountWithRole counts live users holding the named role.
func (r *userRepository) CountWithRole(ctx context.Context, roleName string) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.User{}).
		Joins("JOIN user_roles ON user_roles.user_id = users.id").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("roles.name = ?", roleName).
		Count(&n).Error
	return n, err
}

func (r *userRepository) InvitationStats(ctx context.Context, since time.Time) (InvitationStats, error) {
	var s InvitationStats
	db := GetDB(ctx, r.db)
	if err := db.Model(&model.User{}).Where("invited_at IS NOT NULL").Count(&s.Total).Error; err != nil {
		return s, err
	}
	if err := db.Model(&model.User{}).Where("invited_at IS NOT NULL AND email_verified_at IS NULL").Count(&s.Pending).Error; err != nil {
		return s, err
	}
	if err := db.Model(&model.User{}).Where("invited_at >= ?", since).Count(&s.Recent).Error; err != nil {
		return s, err
	}
	return s, nil
}

// LoadActor resolves the user's roles and the union of their permissions.
func (r *userRepository) LoadActor(ctx context.Context, id uuid.UUID) (policy.Actor, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return policy.Actor{}, err
	}
	return ActorFromUser(user), nil
}

// ActorFromUser expects Roles.Permissions to be loaded.
func ActorFromUser(user *model.User) policy.Actor {
	roles := make([]policy.RoleRef, 0, len(user.Roles))
	var perms []string
	for _, role := range user.Roles {
		roles = append(roles, policy.RoleRef{ID: role.ID, Name: role.Name, Level: role.Level})
		for _, p := range role.Permissions {
			perms = append(perms, p.Name)
		}
	}
	actor := policy.NewActor(user.ID, roles, perms)
	actor.Name = user.Name
	actor.Email = user.Email
	return actor
}

func (r *userRepository) CreateRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	return GetDB(ctx, r.db).Omit("User").Create(token).Error
}

func (r *userRepository) FindRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	if err := GetDB(ctx, r.db).First(&rt, "token = ?", token).Error; err != nil {
		return nil, notFound(err)
	}
	return &rt, nil
}

func (r *userRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	return GetDB(ctx, r.db).Where("token = ?", token).Delete(&model.RefreshToken{}).Error
}

func (r *userRepository) DeleteRefreshTokensForUser(ctx context.Context, userID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("user_id = ?", userID).Delete(&model.RefreshToken{}).Error
}
