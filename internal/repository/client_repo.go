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
)

var clientSortColumns = map[string]string{
	"name":         "name",
	"email":        "email",
	"created_at":   "created_at",
	"company_name": "company_name",
	"status":       "status",
}

type ClientListFilter struct {
	Search      string
	Status      string
	HasInvoices *bool
	SortBy      string
	SortDesc    bool
	Page        int
	Limit       int
}

// ClientInvoiceStats aggregates a client's live invoices.
type ClientInvoiceStats struct {
	InvoiceCount int64
	TotalRevenue decimal.Decimal
	PaidRevenue  decimal.Decimal
	Outstanding  decimal.Decimal
}

type ClientRevenue struct {
	ClientID     uuid.UUID
	Name         string
	InvoiceCount int64
	Revenue      decimal.Decimal
}

type ClientRepository interface {
	Create(ctx context.Context, client *model.Client) error
	Update(ctx context.Context, client *model.Client) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Client, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Client, error)
	EmailTaken(ctx context.Context, email string, exceptID *uuid.UUID) (bool, error)
	List(ctx context.Context, f ClientListFilter) ([]model.Client, int64, error)
	ListAll(ctx context.Context, search string) ([]model.Client, error)
	Search(ctx context.Context, q string, limit int) ([]model.Client, error)
	CountInvoices(ctx context.Context, clientID uuid.UUID) (int64, error)
	InvoiceStats(ctx context.Context, clientIDs []uuid.UUID) (map[uuid.UUID]ClientInvoiceStats, error)
	Count(ctx context.Context) (int64, error)
	CountWithInvoices(ctx context.Context) (int64, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
	TopByRevenue(ctx context.Context, limit int) ([]ClientRevenue, error)

	CreateNote(ctx context.Context, note *model.ClientNote) error
	ListNotes(ctx context.Context, clientID uuid.UUID) ([]model.ClientNote, error)
}

type clientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) Create(ctx context.Context, client *model.Client) error {
	return GetDB(ctx, r.db).Create(client).Error
}

func (r *clientRepository) Update(ctx context.Context, client *model.Client) error {
	return GetDB(ctx, r.db).Save(client).Error
}

func (r *clientRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Client{}).Error
}

func (r *clientRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Client, error) {
	var client model.Client
	if err := GetDB(ctx, r.db).First(&client, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &client, nil
}

func (r *clientRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Client, error) {
	var clients []model.Client
	if len(ids) == 0 {
		return clients, nil
	}
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

// EmailTaken also counts soft-deleted clients; the unique index does.
func (r *clientRepository) EmailTaken(ctx context.Context, email string, exceptID *uuid.UUID) (bool, error) {
	var n int64
	q := GetDB(ctx, r.db).Unscoped().Model(&model.Client{}).Where("LOWER(email) = ?", strings.ToLower(email))
	if exceptID != nil {
		q = q.Where("id <> ?", *exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *clientRepository) searchScope(q *gorm.DB, search string) *gorm.DB {
	if search == "" {
		return q
	}
	p := strings.ToLower(likePattern(search))
	return q.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(company_name) LIKE ? OR LOWER(phone) LIKE ?", p, p, p, p)
}

func (r *clientRepository) List(ctx context.Context, f ClientListFilter) ([]model.Client, int64, error) {
	var clients []model.Client
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		q = r.searchScope(q, f.Search)
		if f.Status != "" {
			q = q.Where("status = ?", f.Status)
		}
		if f.HasInvoices != nil {
			sub := db.Model(&model.Invoice{}).Select("client_id")
			if *f.HasInvoices {
				q = q.Where("id IN (?)", sub)
			} else {
				q = q.Where("id NOT IN (?)", sub)
			}
		}
		return q
	}

	if err := scope(db.Model(&model.Client{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	col, ok := clientSortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := " ASC"
	if f.SortDesc {
		dir = " DESC"
	}

	offset := (f.Page - 1) * f.Limit
	if err := scope(db.Model(&model.Client{})).Order(col + dir).Offset(offset).Limit(f.Limit).Find(&clients).Error; err != nil {
		return nil, 0, err
	}
	return clients, total, nil
}

func (r *clientRepository) ListAll(ctx context.Context, search string) ([]model.Client, error) {
	var clients []model.Client
	if err := r.searchScope(GetDB(ctx, r.db).Model(&model.Client{}), search).Order("name ASC").Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

func (r *clientRepository) Search(ctx context.Context, q string, limit int) ([]model.Client, error) {
	var clients []model.Client
	if err := r.searchScope(GetDB(ctx, r.db).Model(&model.Client{}), q).Order("name ASC").Limit(limit).Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

// CountInvoices includes soft-deleted invoices, which still reference the client.
func (r *clientRepository) CountInvoices(ctx context.Context, clientID uuid.UUID) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Unscoped().Model(&model.Invoice{}).Where("client_id = ?", clientID).Count(&n).Error
	return n, err
}

func (r *clientRepository) InvoiceStats(ctx context.Context, clientIDs []uuid.UUID) (map[uuid.UUID]ClientInvoiceStats, error) {
	out := make(map[uuid.UUID]ClientInvoiceStats, len(clientIDs))
	if len(clientIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ClientID uuid.UUID
		Status   billing.Status
		Count    int64
		Total    decimal.Decimal
	}
	err := GetDB(ctx, r.db).Model(&model.Invoice{}).
		Select("client_id, status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total").
		Where("client_id IN ?", clientIDs).
		Group("client_id, status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		s := out[row.ClientID]
		s.InvoiceCount += row.Count
		switch row.Status {
		case billing.StatusCancelled:
		case billing.StatusPaid:
			s.TotalRevenue = s.TotalRevenue.Add(row.Total)
			s.PaidRevenue = s.PaidRevenue.Add(row.Total)
		default:
			s.TotalRevenue = s.TotalRevenue.Add(row.Total)
			if row.Status != billing.StatusDraft {
				s.Outstanding = s.Outstanding.Add(row.Total)
			}
		}
		out[row.ClientID] = s
	}
	return out, nil
}

func (r *clientRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.Client{}).Count(&n).Error
	return n, err
}

func (r *clientRepository) CountWithInvoices(ctx context.Context) (int64, error) {
	var n int64
	db := GetDB(ctx, r.db)
	err := db.Model(&model.Client{}).Where("id IN (?)", db.Model(&model.Invoice{}).Select("client_id")).Count(&n).Error
	return n, err
}

func (r *clientRepository) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.Client{}).Where("created_at >= ?", since).Count(&n).Error
	return n, err
}

// TopByRevenue ranks clients by the total of their non-cancelled invoices.
func (r *clientRepository) TopByRevenue(ctx context.Context, limit int) ([]ClientRevenue, error) {
	var rows []ClientRevenue
	err := GetDB(ctx, r.db).Table("clients").
		Select("clients.id AS client_id, clients.name, COUNT(invoices.id) AS invoice_count, COALESCE(SUM(invoices.total_amount), 0) AS revenue").
		Joins("JOIN invoices ON invoices.client_id = clients.id AND invoices.deleted_at IS NULL AND invoices.status <> ?", billing.StatusCancelled).
		Where("clients.deleted_at IS NULL").
		Group("clients.id, clients.name").
		Order("revenue DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *clientRepository) CreateNote(ctx context.Context, note *model.ClientNote) error {
	return GetDB(ctx, r.db).Omit("User").Create(note).Error
}

func (r *clientRepository) ListNotes(ctx context.Context, clientID uuid.UUID) ([]model.ClientNote, error) {
	var notes []model.ClientNote
	err := GetDB(ctx, r.db).Preload("User").
		Where("client_id = ?", clientID).
		Order("is_important DESC, created_at DESC").
		Find(&notes).Error
	return notes, err
}
