package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"backoffice/internal/billing"
	"backoffice/internal/policy"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DashboardResponse struct {
	TotalInvoices int64                `json:"total_invoices"`
	PaidRevenue   string               `json:"paid_revenue"`
	PendingAmount string               `json:"pending_amount"`
	OverdueCount  int64                `json:"overdue_count"`
	OverdueAmount string               `json:"overdue_amount"`
	ByStatus      []StatusSummary      `json:"by_status"`
	TopClients    []ClientSalesSummary `json:"top_clients"`
}

type StatusSummary struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
	Total  string `json:"total"`
}

type SalesReportRow struct {
	Date    string `json:"date"`
	Count   int64  `json:"count"`
	Total   string `json:"total"`
	Average string `json:"average"`
}

type SalesReportResponse struct {
	From  string           `json:"from"`
	To    string           `json:"to"`
	Rows  []SalesReportRow `json:"rows"`
	Count int64            `json:"count"`
	Total string           `json:"total"`
}

type ClientSalesSummary struct {
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
	Count      int64  `json:"count"`
	Total      string `json:"total"`
	Average    string `json:"average"`
}

// ReportRange bounds a report by issue date. Empty values default to the
// last 30 days.
type ReportRange struct {
	From string
	To   string
}

type ReportService interface {
	Dashboard(ctx context.Context, actor policy.Actor) (*DashboardResponse, error)
	Sales(ctx context.Context, actor policy.Actor, r ReportRange) (*SalesReportResponse, error)
	Clients(ctx context.Context, actor policy.Actor, r ReportRange) ([]ClientSalesSummary, error)
	ExportSales(ctx context.Context, actor policy.Actor, r ReportRange) (*ExportFile, error)
}

type reportService struct {
	repo       repository.ReportRepository
	clientRepo repository.ClientRepository
	engine     *policy.Engine
	now        func() time.Time
}

func NewReportService(repo repository.ReportRepository, clientRepo repository.ClientRepository, engine *policy.Engine) ReportService {
	return &reportService{repo: repo, clientRepo: clientRepo, engine: engine, now: time.Now}
}

// Dashboard sums invoices by status. Pending covers draft and sent; actors
// limited to their own invoices only see those.
func (s *reportService) Dashboard(ctx context.Context, actor policy.Actor) (*DashboardResponse, error) {
	if err := authorize(s.engine, policy.ReportView, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	var owner *uuid.UUID
	if actor.OwnInvoicesOnly() {
		owner = &actor.UserID
	}
	rows, err := s.repo.TotalsByStatus(ctx, owner)
	if err != nil {
		return nil, err
	}

	var (
		count, overdueCount    int64
		paid, pending, overdue decimal.Decimal
	)
	byStatus := make([]StatusSummary, 0, len(rows))
	for _, r := range rows {
		count += r.Count
		switch r.Status {
		case billing.StatusPaid:
			paid = paid.Add(r.Total)
		case billing.StatusDraft, billing.StatusSent:
			pending = pending.Add(r.Total)
		case billing.StatusOverdue:
			overdue = overdue.Add(r.Total)
			overdueCount += r.Count
		}
		byStatus = append(byStatus, StatusSummary{Status: string(r.Status), Count: r.Count, Total: money(r.Total)})
	}

	resp := &DashboardResponse{
		TotalInvoices: count,
		PaidRevenue:   money(paid),
		PendingAmount: money(pending),
		OverdueCount:  overdueCount,
		OverdueAmount: money(overdue),
		ByStatus:      byStatus,
		TopClients:    []ClientSalesSummary{},
	}
	if owner != nil {
		return resp, nil
	}

	top, err := s.clientRepo.TopByRevenue(ctx, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to rank clients: %w", err)
	}
	for _, c := range top {
		resp.TopClients = append(resp.TopClients, ClientSalesSummary{
			ClientID:   c.ClientID.String(),
			ClientName: c.Name,
			Count:      c.InvoiceCount,
			Total:      money(c.Revenue),
			Average:    money(average(c.Revenue, c.InvoiceCount)),
		})
	}
	return resp, nil
}

func (s *reportService) Sales(ctx context.Context, actor policy.Actor, r ReportRange) (*SalesReportResponse, error) {
	if err := authorize(s.engine, policy.ReportView, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	return s.sales(ctx, r)
}

func (s *reportService) sales(ctx context.Context, r ReportRange) (*SalesReportResponse, error) {
	from, to, err := s.bounds(r)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.SalesByDate(ctx, from, to)
	if err != nil {
		return nil, err
	}

	resp := &SalesReportResponse{
		From: from.Format(dateLayout),
		To:   to.Format(dateLayout),
		Rows: make([]SalesReportRow, 0, len(rows)),
	}
	total := decimal.Zero
	for _, row := range rows {
		resp.Count += row.Count
		total = total.Add(row.Total)
		resp.Rows = append(resp.Rows, SalesReportRow{
			Date:    row.Date.Format(dateLayout),
			Count:   row.Count,
			Total:   money(row.Total),
			Average: money(average(row.Total, row.Count)),
		})
	}
	resp.Total = money(total)
	return resp, nil
}

func (s *reportService) Clients(ctx context.Context, actor policy.Actor, r ReportRange) ([]ClientSalesSummary, error) {
	if err := authorize(s.engine, policy.ReportView, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	from, to, err := s.bounds(r)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.SalesByClient(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]ClientSalesSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, ClientSalesSummary{
			ClientID:   row.ClientID.String(),
			ClientName: row.ClientName,
			Count:      row.Count,
			Total:      money(row.Total),
			Average:    money(average(row.Total, row.Count)),
		})
	}
	return out, nil
}

func (s *reportService) ExportSales(ctx context.Context, actor policy.Actor, r ReportRange) (*ExportFile, error) {
	if err := authorize(s.engine, policy.ReportExport, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	report, err := s.sales(ctx, r)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(report.Rows)+1)
	for _, row := range report.Rows {
		rows = append(rows, []string{row.Date, strconv.FormatInt(row.Count, 10), row.Total, row.Average})
	}
	rows = append(rows, []string{"Total", strconv.FormatInt(report.Count, 10), report.Total, ""})

	data, err := writeCSV([]string{"Date", "Invoices", "Total", "Average"}, rows)
	if err != nil {
		return nil, err
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("sales_%s_%s.csv", report.From, report.To),
		ContentType: "text/csv; charset=utf-8",
		Data:        data,
	}, nil
}

func (s *reportService) bounds(r ReportRange) (time.Time, time.Time, error) {
	to := dateOnly(s.now())
	from := to.AddDate(0, 0, -30)
	fields := map[string]string{}
	if r.From != "" {
		d, err := parseDate("from", r.From)
		if err != nil {
			fields["from"] = "must be a date (YYYY-MM-DD)"
		}
		from = d
	}
	if r.To != "" {
		d, err := parseDate("to", r.To)
		if err != nil {
			fields["to"] = "must be a date (YYYY-MM-DD)"
		}
		to = d
	}
	if len(fields) == 0 && to.Before(from) {
		fields["to"] = "must not be before from"
	}
	if len(fields) > 0 {
		return time.Time{}, time.Time{}, &ValidationError{Fields: fields}
	}
	return from, to, nil
}

func average(total decimal.Decimal, count int64) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(count)).Round(billing.MoneyPlaces)
}
