package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"backoffice/internal/cache"
	"backoffice/internal/logger"
	"backoffice/internal/model"
	"backoffice/internal/policy"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// --- DTOs ---

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TokenResponse struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    string       `json:"expires_at"`
	User         UserResponse `json:"user"`
}

type CreateUserRequest struct {
	Name     string   `json:"name" binding:"required,max=255"`
	Email    string   `json:"email" binding:"required,email,max=255"`
	Password string   `json:"password" binding:"required,min=8"`
	Timezone string   `json:"timezone" binding:"max=64"`
	Roles    []string `json:"roles"`
}

type InviteUserRequest struct {
	Name     string   `json:"name" binding:"required,max=255"`
	Email    string   `json:"email" binding:"required,email,max=255"`
	Timezone string   `json:"timezone" binding:"max=64"`
	Roles    []string `json:"roles" binding:"required,min=1"`
}

// UpdateUserRequest leaves nil fields untouched. A non-nil Roles is the
// complete new role set.
type UpdateUserRequest struct {
	Name     *string  `json:"name" binding:"omitempty,max=255"`
	Email    *string  `json:"email" binding:"omitempty,email,max=255"`
	Password *string  `json:"password" binding:"omitempty,min=8"`
	Timezone *string  `json:"timezone" binding:"omitempty,max=64"`
	Roles    []string `json:"roles"`
}

type CompleteRegistrationRequest struct {
	Token                string `json:"token" binding:"required"`
	Password             string `json:"password" binding:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required,eqfield=Password"`
}

type UserFilter struct {
	Search string
	Role   string
	Page   int
	Limit  int
}

type UserResponse struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Email            string   `json:"email"`
	Timezone         string   `json:"timezone"`
	Roles            []string `json:"roles"`
	Permissions      []string `json:"permissions,omitempty"`
	InvoiceCount     *int64   `json:"invoice_count,omitempty"`
	Status           string   `json:"status"`
	InvitedAt        *string  `json:"invited_at"`
	InvitationSentAt *string  `json:"invitation_sent_at"`
	EmailVerifiedAt  *string  `json:"email_verified_at"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
}

type InvitationResponse struct {
	User            UserResponse `json:"user"`
	RegistrationURL string       `json:"registration_url"`
}

type RegistrationInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// --- Interface ---

type UserService interface {
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, actor policy.Actor) (*UserResponse, error)
	List(ctx context.Context, actor policy.Actor, f UserFilter) ([]UserResponse, int64, error)
	Get(ctx context.Context, actor policy.Actor, id string) (*UserResponse, error)
	Create(ctx context.Context, actor policy.Actor, req CreateUserRequest) (*UserResponse, error)
	Invite(ctx context.Context, actor policy.Actor, req InviteUserRequest) (*InvitationResponse, error)
	ResendInvitation(ctx context.Context, actor policy.Actor, id string) (*InvitationResponse, error)
	InvitationStats(ctx context.Context, actor policy.Actor) (*repository.InvitationStats, error)
	Update(ctx context.Context, actor policy.Actor, id string, req UpdateUserRequest) (*UserResponse, error)
	Delete(ctx context.Context, actor policy.Actor, id string) error
	ValidateRegistration(ctx context.Context, token string) (*RegistrationInfo, error)
	CompleteRegistration(ctx context.Context, req CompleteRegistrationRequest) (*TokenResponse, error)
}

type userService struct {
	repo       repository.UserRepository
	roleRepo   repository.RoleRepository
	txManager  repository.TransactionManager
	engine     *policy.Engine
	audit      AuditService
	notifier   Notifier
	actors     cache.ActorCache
	tokens     *Tokens
	refreshTTL time.Duration
	appURL     string
	log        zerolog.Logger
	now        func() time.Time
}

type UserServiceConfig struct {
	Tokens     *Tokens
	RefreshTTL time.Duration
	AppURL     string
}

func NewUserService(
	repo repository.UserRepository,
	roleRepo repository.RoleRepository,
	txManager repository.TransactionManager,
	engine *policy.Engine,
	audit AuditService,
	notifier Notifier,
	actors cache.ActorCache,
	cfg UserServiceConfig,
) UserService {
	return &userService{
		repo:       repo,
		roleRepo:   roleRepo,
		txManager:  txManager,
		engine:     engine,
		audit:      audit,
		notifier:   notifier,
		actors:     actors,
		tokens:     cfg.Tokens,
		refreshTTL: cfg.RefreshTTL,
		appURL:     strings.TrimRight(cfg.AppURL, "/"),
		log:        logger.WithComponent("users"),
		now:        time.Now,
	}
}

// --- Sessions ---

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("invalid email or password: %w", ErrUnauthenticated)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid email or password: %w", ErrUnauthenticated)
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates the refresh token: the presented one is consumed.
func (s *userService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var user *model.User
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		rt, err := s.repo.FindRefreshToken(txCtx, refreshToken)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("unknown refresh token: %w", ErrUnauthenticated)
			}
			return fmt.Errorf("failed to load refresh token: %w", err)
		}
		if err := s.repo.DeleteRefreshToken(txCtx, refreshToken); err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		if s.now().After(rt.ExpiresAt) {
			return nil
		}
		user, err = s.repo.FindByID(txCtx, rt.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("failed to load user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("refresh token expired: %w", ErrUnauthenticated)
	}
	return s.issueSession(ctx, user)
}

func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.repo.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *userService) issueSession(ctx context.Context, user *model.User) (*TokenResponse, error) {
	access, exp, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return nil, err
	}
	rt := &model.RefreshToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.refreshTTL),
	}
	if err := s.repo.CreateRefreshToken(ctx, rt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}
	return &TokenResponse{
		Token:        access,
		RefreshToken: rt.Token,
		ExpiresAt:    exp.Format(time.RFC3339),
		User:         toUserResponse(user),
	}, nil
}

// --- Users ---

func (s *userService) Me(ctx context.Context, actor policy.Actor) (*UserResponse, error) {
	user, err := s.repo.FindByID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	resp := toUserResponse(user)
	resp.Permissions = repository.ActorFromUser(user).PermissionList()
	sort.Strings(resp.Permissions)
	return &resp, nil
}

func (s *userService) List(ctx context.Context, actor policy.Actor, f UserFilter) ([]UserResponse, int64, error) {
	if err := authorize(s.engine, policy.UserViewAny, policy.Request{Actor: actor}); err != nil {
		return nil, 0, err
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	users, total, err := s.repo.List(ctx, repository.UserListFilter{
		Search: strings.TrimSpace(f.Search),
		Role:   f.Role,
		Page:   f.Page,
		Limit:  f.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}
	ids := make([]uuid.UUID, len(users))
	for i := range users {
		ids[i] = users[i].ID
	}
	counts, err := s.repo.InvoiceCounts(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count user invoices: %w", err)
	}

	res := make([]UserResponse, 0, len(users))
	for i := range users {
		r := toUserResponse(&users[i])
		n := counts[users[i].ID]
		r.InvoiceCount = &n
		res = append(res, r)
	}
	return res, total, nil
}

func (s *userService) Get(ctx context.Context, actor policy.Actor, id string) (*UserResponse, error) {
	if err := authorize(s.engine, policy.UserView, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	userID, err := parseID("user id", id)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	resp := toUserResponse(user)
	resp.Permissions = repository.ActorFromUser(user).PermissionList()
	sort.Strings(resp.Permissions)
	return &resp, nil
}

func (s *userService) Create(ctx context.Context, actor policy.Actor, req CreateUserRequest) (*UserResponse, error) {
	if err := authorize(s.engine, policy.UserCreate, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	now := s.now()
	user := &model.User{
		Name:            strings.TrimSpace(req.Name),
		Email:           strings.TrimSpace(req.Email),
		Password:        string(hashed),
		Timezone:        orDefault(req.Timezone, "UTC"),
		EmailVerifiedAt: &now,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.createWithRoles(txCtx, actor, user, req.Roles); err != nil {
			return err
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionUserCreated,
			SubjectType: "user",
			SubjectID:   user.ID,
			Description: "User " + user.Email + " created",
			Properties:  map[string]any{"roles": user.RoleNames()},
		})
	})
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(user)
	return &resp, nil
}

// Invite creates an unverified account with a random password and issues a
// signed registration link.
func (s *userService) Invite(ctx context.Context, actor policy.Actor, req InviteUserRequest) (*InvitationResponse, error) {
	if err := authorize(s.engine, policy.UserCreate, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	temp, err := randomPassword()
	if err != nil {
		return nil, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(temp), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	now := s.now()
	user := &model.User{
		Name:             strings.TrimSpace(req.Name),
		Email:            strings.TrimSpace(req.Email),
		Password:         string(hashed),
		Timezone:         orDefault(req.Timezone, "UTC"),
		InvitedAt:        &now,
		InvitationSentAt: &now,
	}

	var link string
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.createWithRoles(txCtx, actor, user, req.Roles); err != nil {
			return err
		}
		var err error
		if link, err = s.sendInvitation(txCtx, user); err != nil {
			return err
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionUserInvited,
			SubjectType: "user",
			SubjectID:   user.ID,
			Description: "User " + user.Email + " invited",
			Properties:  map[string]any{"roles": user.RoleNames()},
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("email", user.Email).Str("by", actor.UserID.String()).Msg("user invited")
	return &InvitationResponse{User: toUserResponse(user), RegistrationURL: link}, nil
}

func (s *userService) ResendInvitation(ctx context.Context, actor policy.Actor, id string) (*InvitationResponse, error) {
	if err := authorize(s.engine, policy.UserCreate, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	userID, err := parseID("user id", id)
	if err != nil {
		return nil, err
	}

	var user *model.User
	var link string
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		user, err = s.repo.FindByID(txCtx, userID)
		if err != nil {
			return fmt.Errorf("user: %w", err)
		}
		if user.Verified() {
			return ruleErr("user %s has already completed registration", user.Email)
		}
		now := s.now()
		user.InvitationSentAt = &now
		if user.InvitedAt == nil {
			user.InvitedAt = &now
		}
		if err := s.repo.Update(txCtx, user); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		link, err = s.sendInvitation(txCtx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &InvitationResponse{User: toUserResponse(user), RegistrationURL: link}, nil
}

func (s *userService) sendInvitation(ctx context.Context, user *model.User) (string, error) {
	token, err := s.tokens.IssueRegistration(user.ID, user.Email)
	if err != nil {
		return "", err
	}
	link := s.appURL + "/register?token=" + url.QueryEscape(token)
	if err := s.notifier.UserInvitation(ctx, user, link); err != nil {
		return "", err
	}
	return link, nil
}

// InvitationStats counts invited users, those still pending, and invitations of the last 7 days.
func (s *userService) InvitationStats(ctx context.Context, actor policy.Actor) (*repository.InvitationStats, error) {
	if err := authorize(s.engine, policy.UserViewAny, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	stats, err := s.repo.InvitationStats(ctx, s.now().AddDate(0, 0, -7))
	if err != nil {
		return nil, fmt.Errorf("failed to compute invitation stats: %w", err)
	}
	return &stats, nil
}

// Update edits a user whose highest role sits below the actor's; actors may always edit themselves.
func (s *userService) Update(ctx context.Context, actor policy.Actor, id string, req UpdateUserRequest) (*UserResponse, error) {
	if !actor.HasPermission("user.edit") && !actor.IsSuperAdmin() {
		return nil, authorize(s.engine, policy.UserUpdate, policy.Request{Actor: actor})
	}
	userID, err := parseID("user id", id)
	if err != nil {
		return nil, err
	}

	var user *model.User
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		user, err = s.repo.FindByID(txCtx, userID)
		if err != nil {
			return fmt.Errorf("user: %w", err)
		}
		if err := authorize(s.engine, policy.UserUpdate, policy.Request{Actor: actor, User: userTarget(user)}); err != nil {
			return err
		}
		changed := []string{}
		if req.Name != nil && strings.TrimSpace(*req.Name) != user.Name {
			user.Name = strings.TrimSpace(*req.Name)
			changed = append(changed, "name")
		}
		if req.Email != nil && !strings.EqualFold(strings.TrimSpace(*req.Email), user.Email) {
			email := strings.TrimSpace(*req.Email)
			if err := s.ensureEmailFree(txCtx, email); err != nil {
				return err
			}
			user.Email = email
			changed = append(changed, "email")
		}
		if req.Password != nil {
			hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			user.Password = string(hashed)
			changed = append(changed, "password")
		}
		if req.Timezone != nil {
			user.Timezone = orDefault(*req.Timezone, "UTC")
			changed = append(changed, "timezone")
		}
		if err := s.repo.Update(txCtx, user); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		if req.Roles != nil {
			if err := s.syncRoles(txCtx, actor, user, req.Roles); err != nil {
				return err
			}
			changed = append(changed, "roles")
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionUserUpdated,
			SubjectType: "user",
			SubjectID:   user.ID,
			Description: "User " + user.Email + " updated",
			Properties:  map[string]any{"changed": changed},
		})
	})
	if err != nil {
		return nil, err
	}
	s.actors.Invalidate(ctx, userID)
	return s.Get(ctx, actor, id)
}

// Delete never lets an account delete itself, whatever its roles.
func (s *userService) Delete(ctx context.Context, actor policy.Actor, id string) error {
	userID, err := parseID("user id", id)
	if err != nil {
		return err
	}
	if userID == actor.UserID {
		return fmt.Errorf("%w: you cannot delete your own account", ErrForbidden)
	}
	if !actor.HasPermission("user.delete") && !actor.IsSuperAdmin() {
		return authorize(s.engine, policy.UserDelete, policy.Request{Actor: actor})
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.repo.FindByID(txCtx, userID)
		if err != nil {
			return fmt.Errorf("user: %w", err)
		}
		if err := authorize(s.engine, policy.UserDelete, policy.Request{Actor: actor, User: userTarget(user)}); err != nil {
			return err
		}
		if err := s.repo.DeleteRefreshTokensForUser(txCtx, user.ID); err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}
		if err := s.repo.Delete(txCtx, user.ID); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionUserDeleted,
			SubjectType: "user",
			SubjectID:   user.ID,
			Description: "User " + user.Email + " deleted",
		})
	})
	if err != nil {
		return err
	}
	s.actors.Invalidate(ctx, userID)
	return nil
}

// --- Registration ---

func (s *userService) ValidateRegistration(ctx context.Context, token string) (*RegistrationInfo, error) {
	user, err := s.pendingRegistration(ctx, token)
	if err != nil {
		return nil, err
	}
	return &RegistrationInfo{Name: user.Name, Email: user.Email}, nil
}

func (s *userService) CompleteRegistration(ctx context.Context, req CompleteRegistrationRequest) (*TokenResponse, error) {
	if req.Password != req.PasswordConfirmation {
		return nil, invalid("password_confirmation", "must match password")
	}
	var user *model.User
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		user, err = s.pendingRegistration(txCtx, req.Token)
		if err != nil {
			return err
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		now := s.now()
		user.Password = string(hashed)
		user.EmailVerifiedAt = &now
		if err := s.repo.Update(txCtx, user); err != nil {
			return fmt.Errorf("failed to complete registration: %w", err)
		}
		return s.audit.Record(txCtx, &policy.Actor{UserID: user.ID}, Entry{
			Action:      model.ActionUserRegistered,
			SubjectType: "user",
			SubjectID:   user.ID,
			Description: "User " + user.Email + " completed registration",
		})
	})
	if err != nil {
		return nil, err
	}
	return s.issueSession(ctx, user)
}

func (s *userService) pendingRegistration(ctx context.Context, token string) (*model.User, error) {
	id, email, err := s.tokens.ParseRegistration(token)
	if err != nil {
		return nil, invalid("token", "is invalid or has expired")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid("token", "is invalid or has expired")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !strings.EqualFold(user.Email, email) {
		return nil, invalid("token", "is invalid or has expired")
	}
	if user.Verified() {
		return nil, ruleErr("registration has already been completed")
	}
	return user, nil
}

// --- Helpers ---

func (s *userService) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.repo.FindByEmail(ctx, email)
	if err == nil {
		return fmt.Errorf("email %s: %w", email, ErrConflict)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to check email: %w", err)
	}
	return nil
}

func (s *userService) createWithRoles(ctx context.Context, actor policy.Actor, user *model.User, roleNames []string) error {
	if err := s.ensureEmailFree(ctx, user.Email); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if len(roleNames) == 0 {
		def, err := s.roleRepo.FindByName(ctx, policy.RoleUser)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to load default role: %w", err)
		}
		if def == nil {
			return nil
		}
		roleNames = []string{def.Name}
	}
	return s.syncRoles(ctx, actor, user, roleNames)
}

// syncRoles authorizes every added role as an assignment and every dropped
// role as a revocation before replacing the set.
func (s *userService) syncRoles(ctx context.Context, actor policy.Actor, user *model.User, names []string) error {
	wanted, err := s.roleRepo.FindByNames(ctx, uniqueStrings(names))
	if err != nil {
		return fmt.Errorf("failed to load roles: %w", err)
	}
	if len(wanted) != len(uniqueStrings(names)) {
		return invalid("roles", "contains an unknown role")
	}

	current := make(map[uuid.UUID]model.Role, len(user.Roles))
	for _, r := range user.Roles {
		current[r.ID] = r
	}
	next := make(map[uuid.UUID]bool, len(wanted))
	target := userTarget(user)

	for _, r := range wanted {
		next[r.ID] = true
		if _, ok := current[r.ID]; ok {
			continue
		}
		if err := authorize(s.engine, policy.RoleAssign, policy.Request{Actor: actor, User: target, Role: roleTarget(&r, 0)}); err != nil {
			return err
		}
	}
	for id, r := range current {
		if next[id] {
			continue
		}
		admins, err := s.repo.CountWithRole(ctx, policy.RoleAdmin)
		if err != nil {
			return fmt.Errorf("failed to count admins: %w", err)
		}
		if err := authorize(s.engine, policy.RoleRevoke, policy.Request{Actor: actor, User: target, Role: roleTarget(&r, 0), AdminCount: admins}); err != nil {
			return err
		}
	}

	if err := s.repo.ReplaceRoles(ctx, user, wanted); err != nil {
		return fmt.Errorf("failed to update user roles: %w", err)
	}
	user.Roles = wanted
	return nil
}

func roleTarget(r *model.Role, users int64) *policy.RoleTarget {
	return &policy.RoleTarget{ID: r.ID, Name: r.Name, Level: r.Level, IsDefault: r.IsDefault, UserCount: users}
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func randomPassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func toUserResponse(u *model.User) UserResponse {
	status := "active"
	if !u.Verified() {
		status = "pending"
	}
	return UserResponse{
		ID:               u.ID.String(),
		Name:             u.Name,
		Email:            u.Email,
		Timezone:         u.Timezone,
		Roles:            u.RoleNames(),
		Status:           status,
		InvitedAt:        formatTime(u.InvitedAt),
		InvitationSentAt: formatTime(u.InvitationSentAt),
		EmailVerifiedAt:  formatTime(u.EmailVerifiedAt),
		CreatedAt:        u.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        u.UpdatedAt.Format(time.RFC3339),
	}
}

func userTarget(u *model.User) *policy.UserTarget {
	return &policy.UserTarget{ID: u.ID, MaxLevel: u.MaxRoleLevel()}
}
