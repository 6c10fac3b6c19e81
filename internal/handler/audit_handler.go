package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/audit-logs")
	group.Use(middleware.RequirePermission("system.audit"))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs returns the activity log, newest first
// @Summary      Get audit logs
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        action        query     string  false  "e.g. invoice.sent"
// @Param        subject_type  query     string  false  "invoice, client, user, role, payment"
// @Param        subject_id    query     string  false  "Subject ID"
// @Param        page          query     int     false  "Page number (default 1)"
// @Param        limit         query     int     false  "Number of items per page (default 20)"
// @Success      200           {object}  response.Response{data=[]service.AuditLogResponse}
// @Router       /audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	logs, total, err := h.auditService.List(c.Request.Context(), a, service.AuditFilter{
		Action:      c.Query("action"),
		SubjectType: c.Query("subject_type"),
		SubjectID:   c.Query("subject_id"),
		Page:        p.Page,
		Limit:       p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, logs, p.Page, p.Limit, total))
}
