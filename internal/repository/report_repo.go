package repository

import (
	"context"
	"fmt"
	"time"

	"backoffice/internal/billing"
	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type StatusTotal struct {
	Status billing.Status
	Count  int64
	Total  decimal.Decimal
}

type SalesRow struct {
	Date  time.Time
	Count int64
	Total decimal.Decimal
}

type ClientSalesRow struct {
	ClientID   uuid.UUID
	ClientName string
	Count      int64
	Total      decimal.Decimal
}

type ReportRepository interface {
	TotalsByStatus(ctx context.Context, userID *uuid.UUID) ([]StatusTotal, error)
	SalesByDate(ctx context.Context, from, to time.Time) ([]SalesRow, error)
	SalesByClient(ctx context.Context, from, to time.Time) ([]ClientSalesRow, error)
}

type reportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

// TotalsByStatus groups live invoices by status, optionally for one creator.
func (r *reportRepository) TotalsByStatus(ctx context.Context, userID *uuid.UUID) ([]StatusTotal, error) {
	var rows []StatusTotal
	q := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total")
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	if err := q.Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query invoice totals: %w", err)
	}
	return rows, nil
}

func (r *reportRepository) SalesByDate(ctx context.Context, from, to time.Time) ([]SalesRow, error) {
	var rows []SalesRow
	err := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Select("issue_date AS date, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total").
		Where("issue_date >= ? AND issue_date <= ?", from, to).
		Where("status <> ?", billing.StatusCancelled).
		Group("issue_date").
		Order("issue_date ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query sales report: %w", err)
	}
	return rows, nil
}

func (r *reportRepository) SalesByClient(ctx context.Context, from, to time.Time) ([]ClientSalesRow, error) {
	var rows []ClientSalesRow
	err := GetDB(ctx, r.db).Table("invoices").
		Select("clients.id AS client_id, clients.name AS client_name, COUNT(invoices.id) AS count, COALESCE(SUM(invoices.total_amount), 0) AS total").
		Joins("JOIN clients ON clients.id = invoices.client_id").
		Where("invoices.deleted_at IS NULL").
		Where("invoices.issue_date >= ? AND invoices.issue_date <= ?", from, to).
		Where("invoices.status <> ?", billing.StatusCancelled).
		Group("clients.id, clients.name").
		Order("total DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query client report: %w", err)
	}
	return rows, nil
}
