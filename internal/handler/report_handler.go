package handler

import (
	"net/http"

	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	reportService service.ReportService
}

func NewReportHandler(reportService service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

func (h *ReportHandler) RegisterRoutes(router *gin.RouterGroup) {
	reports := router.Group("/reports")
	{
		reports.GET("/dashboard", h.Dashboard)
		reports.GET("/sales", h.Sales)
		reports.GET("/sales/export", h.ExportSales)
		reports.GET("/clients", h.Clients)
	}
}

func reportRange(c *gin.Context) service.ReportRange {
	return service.ReportRange{From: c.Query("from"), To: c.Query("to")}
}

// Dashboard godoc
// @Summary      Dashboard figures
// @Description  Invoice counts and amounts by status, plus the top clients by revenue
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.DashboardResponse}
// @Router       /reports/dashboard [get]
func (h *ReportHandler) Dashboard(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	res, err := h.reportService.Dashboard(c.Request.Context(), a)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// Sales godoc
// @Summary      Sales report
// @Description  Non-cancelled invoices grouped by issue date (defaults to the last 30 days)
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        from  query     string  false  "YYYY-MM-DD"
// @Param        to    query     string  false  "YYYY-MM-DD"
// @Success      200   {object}  response.Response{data=service.SalesReportResponse}
// @Failure      422   {object}  response.Response
// @Router       /reports/sales [get]
func (h *ReportHandler) Sales(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	res, err := h.reportService.Sales(c.Request.Context(), a, reportRange(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// ExportSales godoc
// @Summary      Export sales report
// @Tags         reports
// @Produce      text/csv
// @Security     BearerAuth
// @Param        from  query  string  false  "YYYY-MM-DD"
// @Param        to    query  string  false  "YYYY-MM-DD"
// @Success      200
// @Router       /reports/sales/export [get]
func (h *ReportHandler) ExportSales(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	file, err := h.reportService.ExportSales(c.Request.Context(), a, reportRange(c))
	if err != nil {
		respondError(c, err)
		return
	}
	sendFile(c, file)
}

// Clients godoc
// @Summary      Client report
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        from  query     string  false  "YYYY-MM-DD"
// @Param        to    query     string  false  "YYYY-MM-DD"
// @Success      200   {object}  response.Response{data=[]service.ClientSalesSummary}
// @Router       /reports/clients [get]
func (h *ReportHandler) Clients(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	res, err := h.reportService.Clients(c.Request.Context(), a, reportRange(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
