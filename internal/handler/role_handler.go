package handler

import (
	"net/http"

	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type RoleHandler struct {
	roleService service.RoleService
}

func NewRoleHandler(roleService service.RoleService) *RoleHandler {
	return &RoleHandler{roleService: roleService}
}

func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/permissions", h.ListPermissions)

	roles := router.Group("/roles")
	{
		roles.GET("", h.ListRoles)
		roles.POST("", h.CreateRole)
		roles.GET("/:id", h.GetRole)
		roles.PUT("/:id", h.UpdateRole)
		roles.DELETE("/:id", h.DeleteRole)
		roles.PUT("/:id/permissions", h.SyncPermissions)
		roles.POST("/:id/users/:userId", h.AssignRole)
		roles.DELETE("/:id/users/:userId", h.RevokeRole)
	}
}

// ListRoles returns roles with their user counts
// @Summary      List roles
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        search  query     string  false  "Name filter"
// @Success      200     {object}  response.Response{data=[]service.RoleResponse}
// @Router       /roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	roles, total, err := h.roleService.List(c.Request.Context(), a, c.Query("search"), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, roles, p.Page, p.Limit, total))
}

// GetRole returns one role with permissions
// @Summary      Get role
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response{data=service.RoleResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /roles/{id} [get]
func (h *RoleHandler) GetRole(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	role, err := h.roleService.Get(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// CreateRole creates a role below the caller's level
// @Summary      Create role
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateRoleRequest  true  "Role"
// @Success      201      {object}  response.Response{data=service.RoleResponse}
// @Failure      409      {object}  response.Response
// @Router       /roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.CreateRoleRequest
	if !bind(c, &req) {
		return
	}
	role, err := h.roleService.Create(c.Request.Context(), a, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, role))
}

// UpdateRole changes name, description or level
// @Summary      Update role
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true  "Role ID"
// @Param        payload  body      service.UpdateRoleRequest  true  "Changes"
// @Success      200      {object}  response.Response{data=service.RoleResponse}
// @Failure      403      {object}  response.Response
// @Router       /roles/{id} [put]
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.UpdateRoleRequest
	if !bind(c, &req) {
		return
	}
	role, err := h.roleService.Update(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// DeleteRole removes an unused, non-default role
// @Summary      Delete role
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /roles/{id} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.roleService.Delete(c.Request.Context(), a, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Role deleted"}))
}

// SyncPermissions replaces the permission set of a role
// @Summary      Sync role permissions
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                          true  "Role ID"
// @Param        payload  body      service.SyncPermissionsRequest  true  "Permission names"
// @Success      200      {object}  response.Response{data=service.RoleResponse}
// @Router       /roles/{id}/permissions [put]
func (h *RoleHandler) SyncPermissions(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.SyncPermissionsRequest
	if !bind(c, &req) {
		return
	}
	role, err := h.roleService.SyncPermissions(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// ListPermissions returns every permission grouped by prefix
// @Summary      List permissions
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.PermissionGroupResponse}
// @Router       /permissions [get]
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	groups, err := h.roleService.Permissions(c.Request.Context(), a)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, groups))
}

// AssignRole grants a role to a user
// @Summary      Assign role
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      string  true  "Role ID"
// @Param        userId  path      string  true  "User ID"
// @Success      200     {object}  response.Response
// @Failure      403     {object}  response.Response
// @Router       /roles/{id}/users/{userId} [post]
func (h *RoleHandler) AssignRole(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.roleService.Assign(c.Request.Context(), a, c.Param("id"), c.Param("userId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Role assigned"}))
}

// RevokeRole removes a role from a user
// @Summary      Revoke role
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      string  true  "Role ID"
// @Param        userId  path      string  true  "User ID"
// @Success      200     {object}  response.Response
// @Failure      403     {object}  response.Response
// @Router       /roles/{id}/users/{userId} [delete]
func (h *RoleHandler) RevokeRole(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.roleService.Revoke(c.Request.Context(), a, c.Param("id"), c.Param("userId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Role revoked"}))
}
