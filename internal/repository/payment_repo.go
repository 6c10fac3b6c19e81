package repository

import (
	"context"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	Delete(ctx context.Context, invoiceID, paymentID uuid.UUID) error
	FindByID(ctx context.Context, invoiceID, paymentID uuid.UUID) (*model.Payment, error)
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]model.Payment, error)
	SumByInvoice(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return GetDB(ctx, r.db).Create(payment).Error
}

func (r *paymentRepository) Delete(ctx context.Context, invoiceID, paymentID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ? AND invoice_id = ?", paymentID, invoiceID).Delete(&model.Payment{}).Error
}

func (r *paymentRepository) FindByID(ctx context.Context, invoiceID, paymentID uuid.UUID) (*model.Payment, error) {
	var p model.Payment
	if err := GetDB(ctx, r.db).First(&p, "id = ? AND invoice_id = ?", paymentID, invoiceID).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *paymentRepository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]model.Payment, error) {
	var payments []model.Payment
	err := GetDB(ctx, r.db).Where("invoice_id = ?", invoiceID).Order("payment_date ASC, created_at ASC").Find(&payments).Error
	return payments, err
}

func (r *paymentRepository) SumByInvoice(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := GetDB(ctx, r.db).Model(&model.Payment{}).
		Where("invoice_id = ?", invoiceID).
		Select("COALESCE(SUM(amount), 0)").
		Row().Scan(&sum)
	return sum, err
}
