package handler

import (
	"io"
	"net/http"
	"strconv"

	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

const maxImportSize = 5 << 20

type ClientHandler struct {
	clientService service.ClientService
}

func NewClientHandler(clientService service.ClientService) *ClientHandler {
	return &ClientHandler{clientService: clientService}
}

func (h *ClientHandler) RegisterRoutes(router *gin.RouterGroup) {
	clients := router.Group("/clients")
	{
		clients.GET("", h.ListClients)
		clients.POST("", h.CreateClient)
		clients.GET("/stats", h.Stats)
		clients.GET("/search", h.Search)
		clients.GET("/export", h.Export)
		clients.POST("/import", h.Import)
		clients.POST("/bulk-delete", h.BulkDelete)
		clients.GET("/:id", h.GetClient)
		clients.PUT("/:id", h.UpdateClient)
		clients.DELETE("/:id", h.DeleteClient)
		clients.GET("/:id/invoices", h.Invoices)
		clients.GET("/:id/notes", h.Notes)
		clients.POST("/:id/notes", h.AddNote)
	}
}

// ListClients godoc
// @Summary      List clients
// @Description  Paginated clients with invoice totals; filter by search, status and has_invoices
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        search        query     string  false  "Name, email, phone or company"
// @Param        status        query     string  false  "active, inactive or prospect"
// @Param        has_invoices  query     bool    false  "Only clients with (true) or without (false) invoices"
// @Param        sort_by       query     string  false  "name, email, created_at"
// @Param        sort_dir      query     string  false  "asc or desc"
// @Param        page          query     int     false  "Page"
// @Param        limit         query     int     false  "Page size"
// @Success      200           {object}  response.Response{data=[]service.ClientResponse}
// @Router       /clients [get]
func (h *ClientHandler) ListClients(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	f := service.ClientFilter{
		Search:  c.Query("search"),
		Status:  c.Query("status"),
		SortBy:  c.Query("sort_by"),
		SortDir: c.Query("sort_dir"),
		Page:    p.Page,
		Limit:   p.Limit,
	}
	if raw := c.Query("has_invoices"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			f.HasInvoices = &v
		}
	}
	clients, total, err := h.clientService.List(c.Request.Context(), a, f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, clients, p.Page, p.Limit, total))
}

// CreateClient godoc
// @Summary      Create client
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ClientRequest  true  "Client"
// @Success      201      {object}  response.Response{data=service.ClientResponse}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /clients [post]
func (h *ClientHandler) CreateClient(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.ClientRequest
	if !bind(c, &req) {
		return
	}
	client, err := h.clientService.Create(c.Request.Context(), a, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, client))
}

// GetClient godoc
// @Summary      Get client
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response{data=service.ClientResponse}
// @Failure      404  {object}  response.Response
// @Router       /clients/{id} [get]
func (h *ClientHandler) GetClient(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	client, err := h.clientService.Get(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// UpdateClient godoc
// @Summary      Update client
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "Client ID"
// @Param        payload  body      service.ClientRequest  true  "Client"
// @Success      200      {object}  response.Response{data=service.ClientResponse}
// @Failure      409      {object}  response.Response
// @Router       /clients/{id} [put]
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.ClientRequest
	if !bind(c, &req) {
		return
	}
	client, err := h.clientService.Update(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// DeleteClient godoc
// @Summary      Delete client
// @Description  Refused while the client has invoices
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /clients/{id} [delete]
func (h *ClientHandler) DeleteClient(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.clientService.Delete(c.Request.Context(), a, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Client deleted"}))
}

// Stats godoc
// @Summary      Client statistics
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.ClientStatsResponse}
// @Router       /clients/stats [get]
func (h *ClientHandler) Stats(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	stats, err := h.clientService.Stats(c.Request.Context(), a)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// Search godoc
// @Summary      Quick client search
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        q    query     string  true  "Query"
// @Success      200  {object}  response.Response{data=[]service.ClientSummary}
// @Router       /clients/search [get]
func (h *ClientHandler) Search(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	res, err := h.clientService.Search(c.Request.Context(), a, c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// Invoices godoc
// @Summary      Invoices of a client
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response{data=[]service.InvoiceResponse}
// @Router       /clients/{id}/invoices [get]
func (h *ClientHandler) Invoices(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	res, err := h.clientService.Invoices(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// BulkDelete godoc
// @Summary      Delete several clients
// @Description  Clients with invoices are skipped and reported
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.BulkDeleteClientsRequest  true  "Client IDs"
// @Success      200      {object}  response.Response{data=service.BulkDeleteResponse}
// @Router       /clients/bulk-delete [post]
func (h *ClientHandler) BulkDelete(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.BulkDeleteClientsRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.clientService.BulkDelete(c.Request.Context(), a, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// Export godoc
// @Summary      Export clients
// @Tags         clients
// @Produce      text/csv
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security     BearerAuth
// @Param        format  query  string  false  "csv (default) or xlsx"
// @Param        search  query  string  false  "Filter"
// @Success      200
// @Router       /clients/export [get]
func (h *ClientHandler) Export(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	file, err := h.clientService.Export(c.Request.Context(), a, c.DefaultQuery("format", service.ExportCSV), c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	sendFile(c, file)
}

// Import godoc
// @Summary      Import clients
// @Description  Multipart upload of a .csv or .xlsx file with columns name, email, phone, company, tax number, address
// @Tags         clients
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file  formData  file  true  "Spreadsheet"
// @Success      200   {object}  response.Response{data=service.ImportResult}
// @Failure      422   {object}  response.Response
// @Router       /clients/import [post]
func (h *ClientHandler) Import(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, response.ValidationFailed(http.StatusUnprocessableEntity, map[string]string{"file": "is required"}))
		return
	}
	if header.Size > maxImportSize {
		c.JSON(http.StatusUnprocessableEntity, response.ValidationFailed(http.StatusUnprocessableEntity, map[string]string{"file": "may not be greater than 5 MB"}))
		return
	}
	f, err := header.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImportSize))
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.clientService.Import(c.Request.Context(), a, header.Filename, data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// Notes godoc
// @Summary      Client notes
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response{data=[]service.ClientNoteResponse}
// @Router       /clients/{id}/notes [get]
func (h *ClientHandler) Notes(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	notes, err := h.clientService.Notes(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, notes))
}

// AddNote godoc
// @Summary      Add client note
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true  "Client ID"
// @Param        payload  body      service.ClientNoteRequest  true  "Note"
// @Success      201      {object}  response.Response{data=service.ClientNoteResponse}
// @Router       /clients/{id}/notes [post]
func (h *ClientHandler) AddNote(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.ClientNoteRequest
	if !bind(c, &req) {
		return
	}
	note, err := h.clientService.AddNote(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, note))
}

func sendFile(c *gin.Context, file *service.ExportFile) {
	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
