package repository

import (
	"context"
	"database/sql"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvoiceItemRepository interface {
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]model.InvoiceItem, error)
	FindByID(ctx context.Context, invoiceID, itemID uuid.UUID) (*model.InvoiceItem, error)
	Create(ctx context.Context, item *model.InvoiceItem) error
	Update(ctx context.Context, item *model.InvoiceItem) error
	Delete(ctx context.Context, invoiceID, itemID uuid.UUID) error
	DeleteByInvoice(ctx context.Context, invoiceID uuid.UUID) error
	MaxPosition(ctx context.Context, invoiceID uuid.UUID) (int, error)
	SetPosition(ctx context.Context, itemID uuid.UUID, position int) error
}

type invoiceItemRepository struct {
	db *gorm.DB
}

func NewInvoiceItemRepository(db *gorm.DB) InvoiceItemRepository {
	return &invoiceItemRepository{db: db}
}

func (r *invoiceItemRepository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]model.InvoiceItem, error) {
	var items []model.InvoiceItem
	err := GetDB(ctx, r.db).Where("invoice_id = ?", invoiceID).Order("position ASC, created_at ASC").Find(&items).Error
	return items, err
}

// FindByID only matches items that belong to invoiceID.
func (r *invoiceItemRepository) FindByID(ctx context.Context, invoiceID, itemID uuid.UUID) (*model.InvoiceItem, error) {
	var item model.InvoiceItem
	if err := GetDB(ctx, r.db).First(&item, "id = ? AND invoice_id = ?", itemID, invoiceID).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (r *invoiceItemRepository) Create(ctx context.Context, item *model.InvoiceItem) error {
	return GetDB(ctx, r.db).Create(item).Error
}

func (r *invoiceItemRepository) Update(ctx context.Context, item *model.InvoiceItem) error {
	return GetDB(ctx, r.db).Save(item).Error
}

func (r *invoiceItemRepository) Delete(ctx context.Context, invoiceID, itemID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ? AND invoice_id = ?", itemID, invoiceID).Delete(&model.InvoiceItem{}).Error
}

func (r *invoiceItemRepository) DeleteByInvoice(ctx context.Context, invoiceID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("invoice_id = ?", invoiceID).Delete(&model.InvoiceItem{}).Error
}

// MaxPosition returns 0 for an invoice without items.
func (r *invoiceItemRepository) MaxPosition(ctx context.Context, invoiceID uuid.UUID) (int, error) {
	var max sql.NullInt64
	err := GetDB(ctx, r.db).Model(&model.InvoiceItem{}).
		Where("invoice_id = ?", invoiceID).
		Select("MAX(position)").
		Row().Scan(&max)
	if err != nil {
		return 0, err
	}
	return int(max.Int64), nil
}

func (r *invoiceItemRepository) SetPosition(ctx context.Context, itemID uuid.UUID, position int) error {
	return GetDB(ctx, r.db).Model(&model.InvoiceItem{}).Where("id = ?", itemID).Update("position", position).Error
}
