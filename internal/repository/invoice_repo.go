package repository

import (
	"context"
	"strings"
	"time"

	"backoffice/internal/billing"
	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InvoiceListFilter struct {
	Status   string
	ClientID *uuid.UUID
	UserID   *uuid.UUID // set for actors limited to their own invoices
	DateFrom *time.Time
	DateTo   *time.Time
	Search   string
	Page     int
	Limit    int
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	Update(ctx context.Context, invoice *model.Invoice) error
	UpdateTotals(ctx context.Context, invoice *model.Invoice) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	FindDetailed(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	List(ctx context.Context, f InvoiceListFilter) ([]model.Invoice, int64, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]model.Invoice, error)
	CountByPrefix(ctx context.Context, prefix string) (int64, error)
	PaidAmounts(ctx context.Context, invoiceIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	return duplicate(GetDB(ctx, r.db).Omit("Client", "User", "Items", "Payments").Create(invoice).Error)
}

// Update writes the header columns only; items and payments have their own repositories.
func (r *invoiceRepository) Update(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Save(invoice).Error
}

func (r *invoiceRepository) UpdateTotals(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Model(&model.Invoice{}).Where("id = ?", invoice.ID).Updates(map[string]interface{}{
		"sub_total":    invoice.SubTotal,
		"tax_amount":   invoice.TaxAmount,
		"total_amount": invoice.TotalAmount,
		"updated_at":   time.Now(),
	}).Error
}

func (r *invoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Invoice{}).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &invoice, nil
}

// FindByIDForUpdate takes a row lock on dialects that support it.
func (r *invoiceRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	db := GetDB(ctx, r.db)
	if db.Dialector.Name() == "postgres" {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var invoice model.Invoice
	if err := db.First(&invoice, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindDetailed(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	err := GetDB(ctx, r.db).
		Preload("Client").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, created_at ASC") }).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("payment_date ASC, created_at ASC") }).
		First(&invoice, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &invoice, nil
}

func (r *invoiceRepository) List(ctx context.Context, f InvoiceListFilter) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		if f.Status != "" {
			q = q.Where("status = ?", f.Status)
		}
		if f.ClientID != nil {
			q = q.Where("client_id = ?", *f.ClientID)
		}
		if f.UserID != nil {
			q = q.Where("user_id = ?", *f.UserID)
		}
		if f.DateFrom != nil {
			q = q.Where("issue_date >= ?", *f.DateFrom)
		}
		if f.DateTo != nil {
			q = q.Where("issue_date <= ?", *f.DateTo)
		}
		if f.Search != "" {
			q = q.Where("LOWER(invoice_number) LIKE ?", strings.ToLower(likePattern(f.Search)))
		}
		return q
	}

	if err := scope(db.Model(&model.Invoice{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	if err := scope(db.Model(&model.Invoice{})).Preload("Client").
		Order("issue_date DESC, created_at DESC").Offset(offset).Limit(f.Limit).Find(&invoices).Error; err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

func (r *invoiceRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]model.Invoice, error) {
	var invoices []model.Invoice
	err := GetDB(ctx, r.db).Where("client_id = ?", clientID).Order("issue_date DESC, created_at DESC").Find(&invoices).Error
	return invoices, err
}

// CountByPrefix counts invoice numbers sharing a prefix, soft-deleted included,
// so generated numbers are never reused.
func (r *invoiceRepository) CountByPrefix(ctx context.Context, prefix string) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Unscoped().Model(&model.Invoice{}).Where("invoice_number LIKE ?", prefix+"%").Count(&n).Error
	return n, err
}

func (r *invoiceRepository) PaidAmounts(ctx context.Context, invoiceIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	out := make(map[uuid.UUID]decimal.Decimal, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		InvoiceID uuid.UUID
		Paid      decimal.Decimal
	}
	err := GetDB(ctx, r.db).Model(&model.Payment{}).
		Select("invoice_id, COALESCE(SUM(amount), 0) AS paid").
		Where("invoice_id IN ?", invoiceIDs).
		Group("invoice_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.InvoiceID] = row.Paid
	}
	return out, nil
}

// StatusIn is a small helper for report queries.
func StatusIn(statuses ...billing.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
