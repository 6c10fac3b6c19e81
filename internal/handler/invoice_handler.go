package handler

import (
	"context"
	"net/http"

	"backoffice/internal/policy"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService service.InvoiceService
	itemService    service.InvoiceItemService
	paymentService service.PaymentService
}

func NewInvoiceHandler(invoiceService service.InvoiceService, itemService service.InvoiceItemService, paymentService service.PaymentService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService, itemService: itemService, paymentService: paymentService}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	invoices := router.Group("/invoices")
	{
		invoices.GET("", h.ListInvoices)
		invoices.POST("", h.CreateInvoice)
		invoices.GET("/:id", h.GetInvoice)
		invoices.PUT("/:id", h.UpdateInvoice)
		invoices.DELETE("/:id", h.DeleteInvoice)
		invoices.POST("/:id/send", h.SendInvoice)
		invoices.POST("/:id/cancel", h.CancelInvoice)
		invoices.POST("/:id/mark-overdue", h.MarkOverdue)

		invoices.GET("/:id/items", h.ListItems)
		invoices.POST("/:id/items", h.AddItem)
		invoices.PUT("/:id/items/bulk", h.BulkItems)
		invoices.PUT("/:id/items/reorder", h.ReorderItems)
		invoices.GET("/:id/items/:itemId", h.GetItem)
		invoices.PUT("/:id/items/:itemId", h.UpdateItem)
		invoices.DELETE("/:id/items/:itemId", h.DeleteItem)
		invoices.POST("/:id/items/:itemId/duplicate", h.DuplicateItem)

		invoices.GET("/:id/payments", h.ListPayments)
		invoices.POST("/:id/payments", h.RecordPayment)
		invoices.DELETE("/:id/payments/:paymentId", h.DeletePayment)
	}
}

// ListInvoices godoc
// @Summary      List invoices
// @Description  Plain users only see the invoices they created
// @Tags         invoices
// @Produce      json
// @Security     BearerAuth
// @Param        status     query     string  false  "draft, sent, paid, overdue, cancelled"
// @Param        client_id  query     string  false  "Client ID"
// @Param        date_from  query     string  false  "Issue date from (YYYY-MM-DD)"
// @Param        date_to    query     string  false  "Issue date to (YYYY-MM-DD)"
// @Param        search     query     string  false  "Invoice number or client name"
// @Param        page       query     int     false  "Page"
// @Param        limit      query     int     false  "Page size"
// @Success      200        {object}  response.Response{data=[]service.InvoiceResponse}
// @Router       /invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	invoices, total, err := h.invoiceService.List(c.Request.Context(), a, service.InvoiceFilter{
		Status:   c.Query("status"),
		ClientID: c.Query("client_id"),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
		Search:   c.Query("search"),
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, invoices, p.Page, p.Limit, total))
}

// CreateInvoice godoc
// @Summary      Create invoice
// @Description  Creates a draft invoice with its line items and computed totals
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateInvoiceRequest  true  "Invoice"
// @Success      201      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      422      {object}  response.Response
// @Router       /invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.CreateInvoiceRequest
	if !bind(c, &req) {
		return
	}
	inv, err := h.invoiceService.Create(c.Request.Context(), a, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, inv))
}

// GetInvoice godoc
// @Summary      Get invoice
// @Tags         invoices
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Router       /invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	inv, err := h.invoiceService.Get(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, inv))
}

// UpdateInvoice godoc
// @Summary      Update draft invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                        true  "Invoice ID"
// @Param        payload  body      service.UpdateInvoiceRequest  true  "Changes"
// @Success      200      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      422      {object}  response.Response
// @Router       /invoices/{id} [put]
func (h *InvoiceHandler) UpdateInvoice(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.UpdateInvoiceRequest
	if !bind(c, &req) {
		return
	}
	inv, err := h.invoiceService.Update(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, inv))
}

// DeleteInvoice godoc
// @Summary      Delete invoice
// @Description  Only draft or cancelled invoices can be deleted
// @Tags         invoices
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /invoices/{id} [delete]
func (h *InvoiceHandler) DeleteInvoice(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.invoiceService.Delete(c.Request.Context(), a, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Invoice deleted"}))
}

// SendInvoice godoc
// @Summary      Send invoice
// @Description  Moves a draft invoice to sent and notifies
// @Tags         invoices
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      422  {object}  response.Response
// @Router       /invoices/{id}/send [post]
func (h *InvoiceHandler) SendInvoice(c *gin.Context) {
	h.transition(c, h.invoiceService.Send)
}

// CancelInvoice godoc
// @Summary      Cancel invoice
// @Tags         invoices
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      422  {object}  response.Response
// @Router       /invoices/{id}/cancel [post]
func (h *InvoiceHandler) CancelInvoice(c *gin.Context) {
	h.transition(c, h.invoiceService.Cancel)
}

// MarkOverdue godoc
// @Summary      Mark invoice overdue
// @Description  Sent invoices past their due date with an open balance
// @Tags         invoices
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      422  {object}  response.Response
// @Router       /invoices/{id}/mark-overdue [post]
func (h *InvoiceHandler) MarkOverdue(c *gin.Context) {
	h.transition(c, h.invoiceService.MarkOverdue)
}

func (h *InvoiceHandler) transition(c *gin.Context, fn func(context.Context, policy.Actor, string) (*service.InvoiceResponse, error)) {
	a, ok := actor(c)
	if !ok {
		return
	}
	inv, err := fn(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, inv))
}

// ListItems godoc
// @Summary      List invoice items
// @Tags         invoice-items
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=[]service.InvoiceItemResponse}
// @Router       /invoices/{id}/items [get]
func (h *InvoiceHandler) ListItems(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	items, err := h.itemService.List(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, items))
}

// GetItem godoc
// @Summary      Get invoice item
// @Tags         invoice-items
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      string  true  "Invoice ID"
// @Param        itemId  path      string  true  "Item ID"
// @Success      200     {object}  response.Response{data=service.InvoiceItemResponse}
// @Failure      404     {object}  response.Response
// @Router       /invoices/{id}/items/{itemId} [get]
func (h *InvoiceHandler) GetItem(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	item, err := h.itemService.Get(c.Request.Context(), a, c.Param("id"), c.Param("itemId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, item))
}

// AddItem godoc
// @Summary      Add invoice item
// @Description  Draft invoices only; returns the item and the recomputed invoice totals
// @Tags         invoice-items
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                      true  "Invoice ID"
// @Param        payload  body      service.InvoiceItemRequest  true  "Item"
// @Success      201      {object}  response.Response{data=service.ItemMutationResponse}
// @Failure      422      {object}  response.Response
// @Router       /invoices/{id}/items [post]
func (h *InvoiceHandler) AddItem(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.InvoiceItemRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.itemService.Add(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// UpdateItem godoc
// @Summary      Update invoice item
// @Tags         invoice-items
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                      true  "Invoice ID"
// @Param        itemId   path      string                      true  "Item ID"
// @Param        payload  body      service.InvoiceItemRequest  true  "Item"
// @Success      200      {object}  response.Response{data=service.ItemMutationResponse}
// @Failure      422      {object}  response.Response
// @Router       /invoices/{id}/items/{itemId} [put]
func (h *InvoiceHandler) UpdateItem(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.InvoiceItemRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.itemService.Update(c.Request.Context(), a, c.Param("id"), c.Param("itemId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// DeleteItem godoc
// @Summary      Delete invoice item
// @Tags         invoice-items
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      string  true  "Invoice ID"
// @Param        itemId  path      string  true  "Item ID"
// @Success      200     {object}  response.Response{data=service.ItemMutationResponse}
// @Failure      422     {object}  response.Response
// @Router       /invoices/{id}/items/{itemId} [delete]
func (h *InvoiceHandler) DeleteItem(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	res, err := h.itemService.Delete(c.Request.Context(), a, c.Param("id"), c.Param("itemId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// BulkItems godoc
// @Summary      Bulk upsert invoice items
// @Description  Items with an id are updated, items without are created, _destroy removes
// @Tags         invoice-items
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                    true  "Invoice ID"
// @Param        payload  body      service.BulkItemsRequest  true  "Items"
// @Success      200      {object}  response.Response{data=service.ItemMutationResponse}
// @Router       /invoices/{id}/items/bulk [put]
func (h *InvoiceHandler) BulkItems(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.BulkItemsRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.itemService.Bulk(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// DuplicateItem godoc
// @Summary      Duplicate invoice item
// @Tags         invoice-items
// @Produce      json
// @Security     BearerAuth
// @Param        id      path      string  true  "Invoice ID"
// @Param        itemId  path      string  true  "Item ID"
// @Success      201     {object}  response.Response{data=service.ItemMutationResponse}
// @Router       /invoices/{id}/items/{itemId}/duplicate [post]
func (h *InvoiceHandler) DuplicateItem(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	res, err := h.itemService.Duplicate(c.Request.Context(), a, c.Param("id"), c.Param("itemId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// ReorderItems godoc
// @Summary      Reorder invoice items
// @Tags         invoice-items
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                       true  "Invoice ID"
// @Param        payload  body      service.ReorderItemsRequest  true  "Item IDs in the new order"
// @Success      200      {object}  response.Response{data=service.ItemMutationResponse}
// @Router       /invoices/{id}/items/reorder [put]
func (h *InvoiceHandler) ReorderItems(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.ReorderItemsRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.itemService.Reorder(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// ListPayments godoc
// @Summary      List payments
// @Tags         payments
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=[]service.PaymentResponse}
// @Router       /invoices/{id}/payments [get]
func (h *InvoiceHandler) ListPayments(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	payments, err := h.paymentService.List(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, payments))
}

// RecordPayment godoc
// @Summary      Record payment
// @Description  Sent or overdue invoices only; settling the balance marks the invoice paid
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                        true  "Invoice ID"
// @Param        payload  body      service.RecordPaymentRequest  true  "Payment"
// @Success      201      {object}  response.Response{data=service.PaymentResultResponse}
// @Failure      422      {object}  response.Response
// @Router       /invoices/{id}/payments [post]
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.RecordPaymentRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.paymentService.Record(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// DeletePayment godoc
// @Summary      Delete payment
// @Tags         payments
// @Produce      json
// @Security     BearerAuth
// @Param        id         path      string  true  "Invoice ID"
// @Param        paymentId  path      string  true  "Payment ID"
// @Success      200        {object}  response.Response
// @Failure      422        {object}  response.Response
// @Router       /invoices/{id}/payments/{paymentId} [delete]
func (h *InvoiceHandler) DeletePayment(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.paymentService.Delete(c.Request.Context(), a, c.Param("id"), c.Param("paymentId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Payment deleted"}))
}
