package handler

import (
	"net/http"
	"time"

	"backoffice/internal/middleware"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService service.UserService
	auth        *middleware.Authenticator
	accessTTL   time.Duration
	refreshTTL  time.Duration
}

// NewUserHandler sets up the routing dependencies for auth and user endpoints
func NewUserHandler(userService service.UserService, auth *middleware.Authenticator, accessTTL, refreshTTL time.Duration) *UserHandler {
	return &UserHandler{userService: userService, auth: auth, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// RegisterRoutes binds the public auth endpoints and the authenticated user endpoints
func (h *UserHandler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/login", h.Login)
	public.POST("/refresh", h.RefreshToken)
	public.POST("/logout", h.Logout)
	public.GET("/registration/validate", h.ValidateRegistration)
	public.POST("/registration/complete", h.CompleteRegistration)

	protected.GET("/me", h.GetMe)

	users := protected.Group("/users")
	{
		users.GET("", h.ListUsers)
		users.POST("", h.CreateUser)
		users.POST("/invite", h.InviteUser)
		users.GET("/invitation-stats", h.InvitationStats)
		users.GET("/:id", h.GetUser)
		users.PUT("/:id", h.UpdateUser)
		users.DELETE("/:id", h.DeleteUser)
		users.POST("/:id/resend-invitation", h.ResendInvitation)
	}
}

// Login handles POST /login to authenticate and return a JWT token
// @Summary      Login user
// @Description  Authenticates a user by email and password, returning a JWT token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginUserRequest   true  "Login Credentials"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      401      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var req service.LoginUserRequest
	if !bind(c, &req) {
		return
	}
	tokens, err := h.userService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.auth.SetTokenCookies(c, tokens.Token, tokens.RefreshToken, h.accessTTL, h.refreshTTL)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tokens))
}

// RefreshToken handles POST /refresh to issue new access and refresh tokens
// @Summary      Refresh token
// @Description  Rotates the refresh token (cookie or body) and issues a new access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RefreshTokenRequest   false  "Refresh Token"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      401      {object}  response.Response
// @Router       /refresh [post]
func (h *UserHandler) RefreshToken(c *gin.Context) {
	refreshToken, cookieErr := c.Cookie(middleware.RefreshCookie)
	if cookieErr != nil || refreshToken == "" {
		var req service.RefreshTokenRequest
		if !bind(c, &req) {
			return
		}
		refreshToken = req.RefreshToken
	}

	tokens, err := h.userService.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		h.auth.ClearTokenCookies(c)
		respondError(c, err)
		return
	}
	h.auth.SetTokenCookies(c, tokens.Token, tokens.RefreshToken, h.accessTTL, h.refreshTTL)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tokens))
}

// Logout handles POST /logout
// @Summary      Logout
// @Description  Revokes the refresh token and clears the auth cookies
// @Tags         auth
// @Produce      json
// @Success      200      {object}  response.Response
// @Router       /logout [post]
func (h *UserHandler) Logout(c *gin.Context) {
	refreshToken, _ := c.Cookie(middleware.RefreshCookie)
	if refreshToken == "" {
		var req service.RefreshTokenRequest
		_ = c.ShouldBindJSON(&req)
		refreshToken = req.RefreshToken
	}
	if err := h.userService.Logout(c.Request.Context(), refreshToken); err != nil {
		respondError(c, err)
		return
	}
	h.auth.ClearTokenCookies(c)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Logged out"}))
}

// GetMe handles GET /me
// @Summary      Get current user
// @Description  Returns the authenticated user with roles and effective permissions
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      401      {object}  response.Response
// @Router       /me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	user, err := h.userService.Me(c.Request.Context(), a)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// ValidateRegistration handles GET /registration/validate
// @Summary      Validate registration link
// @Tags         auth
// @Produce      json
// @Param        token  query     string  true  "Registration token"
// @Success      200    {object}  response.Response{data=service.RegistrationInfo}
// @Failure      422    {object}  response.Response
// @Router       /registration/validate [get]
func (h *UserHandler) ValidateRegistration(c *gin.Context) {
	info, err := h.userService.ValidateRegistration(c.Request.Context(), c.Query("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, info))
}

// CompleteRegistration handles POST /registration/complete
// @Summary      Complete registration
// @Description  Sets the password of an invited user and signs them in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CompleteRegistrationRequest  true  "Registration"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      422      {object}  response.Response
// @Router       /registration/complete [post]
func (h *UserHandler) CompleteRegistration(c *gin.Context) {
	var req service.CompleteRegistrationRequest
	if !bind(c, &req) {
		return
	}
	tokens, err := h.userService.CompleteRegistration(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.auth.SetTokenCookies(c, tokens.Token, tokens.RefreshToken, h.accessTTL, h.refreshTTL)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tokens))
}

// ListUsers handles GET /users
// @Summary      List users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        search  query     string  false  "Name or email"
// @Param        role    query     string  false  "Role name"
// @Param        page    query     int     false  "Page"
// @Param        limit   query     int     false  "Page size"
// @Success      200     {object}  response.Response{data=[]service.UserResponse}
// @Failure      403     {object}  response.Response
// @Router       /users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	users, total, err := h.userService.List(c.Request.Context(), a, service.UserFilter{
		Search: c.Query("search"),
		Role:   c.Query("role"),
		Page:   p.Page,
		Limit:  p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, users, p.Page, p.Limit, total))
}

// GetUser handles GET /users/:id
// @Summary      Get user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=service.UserResponse}
// @Failure      404  {object}  response.Response
// @Router       /users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	user, err := h.userService.Get(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// CreateUser handles POST /users
// @Summary      Create a new user
// @Description  Creates a verified user with the given roles (default role when empty)
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateUserRequest  true  "Create User Payload"
// @Success      201      {object}  response.Response{data=service.UserResponse}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.CreateUserRequest
	if !bind(c, &req) {
		return
	}
	user, err := h.userService.Create(c.Request.Context(), a, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, user))
}

// InviteUser handles POST /users/invite
// @Summary      Invite a user
// @Description  Creates an unverified account and returns the registration link
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.InviteUserRequest  true  "Invitation"
// @Success      201      {object}  response.Response{data=service.InvitationResponse}
// @Failure      409      {object}  response.Response
// @Router       /users/invite [post]
func (h *UserHandler) InviteUser(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.InviteUserRequest
	if !bind(c, &req) {
		return
	}
	inv, err := h.userService.Invite(c.Request.Context(), a, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, inv))
}

// ResendInvitation handles POST /users/:id/resend-invitation
// @Summary      Resend invitation
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=service.InvitationResponse}
// @Failure      422  {object}  response.Response
// @Router       /users/{id}/resend-invitation [post]
func (h *UserHandler) ResendInvitation(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	inv, err := h.userService.ResendInvitation(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, inv))
}

// InvitationStats handles GET /users/invitation-stats
// @Summary      Invitation statistics
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=repository.InvitationStats}
// @Router       /users/invitation-stats [get]
func (h *UserHandler) InvitationStats(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	stats, err := h.userService.InvitationStats(c.Request.Context(), a)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// UpdateUser handles PUT /users/:id
// @Summary      Update user
// @Description  Partial update; a roles array replaces the user's roles
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true  "User ID"
// @Param        payload  body      service.UpdateUserRequest  true  "Changes"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      403      {object}  response.Response
// @Router       /users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.UpdateUserRequest
	if !bind(c, &req) {
		return
	}
	user, err := h.userService.Update(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// DeleteUser handles DELETE /users/:id
// @Summary      Delete user
// @Description  Soft-deletes a user and revokes their sessions. Users cannot delete themselves.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.userService.Delete(c.Request.Context(), a, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "User deleted"}))
}
