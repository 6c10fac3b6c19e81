package handler

import (
	"net/http"

	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifier service.Notifier
}

func NewNotificationHandler(notifier service.Notifier) *NotificationHandler {
	return &NotificationHandler{notifier: notifier}
}

func (h *NotificationHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/notifications", h.List)
	router.POST("/notifications/:id/read", h.MarkRead)
}

// List returns the caller's notifications
// @Summary      List notifications
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        unread  query     bool  false  "Only unread"
// @Success      200     {object}  response.Response{data=[]service.NotificationResponse}
// @Router       /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	items, total, err := h.notifier.List(c.Request.Context(), a.UserID, c.Query("unread") == "true", p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, items, p.Page, p.Limit, total))
}

// MarkRead marks one notification as read
// @Summary      Mark notification read
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Notification ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.notifier.MarkRead(c.Request.Context(), a.UserID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Notification marked as read"}))
}
