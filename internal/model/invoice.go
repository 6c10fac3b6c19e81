package model

import (
	"time"

	"backoffice/internal/billing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PaymentCash         = "cash"
	PaymentBankTransfer = "bank_transfer"
	PaymentCard         = "card"
	PaymentCheque       = "cheque"
	PaymentOther        = "other"
)

// Invoice totals are derived from its items; see billing.CalculateInvoice.
type Invoice struct {
	ID            uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceNumber string           `gorm:"type:varchar(30);uniqueIndex;not null" json:"invoice_number"`
	ClientID      uuid.UUID        `gorm:"type:uuid;not null;index" json:"client_id"`
	Client        *Client          `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	UserID        uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	User          *User            `gorm:"foreignKey:UserID" json:"-"`
	IssueDate     time.Time        `gorm:"type:date;not null;index" json:"issue_date"`
	DueDate       time.Time        `gorm:"type:date;not null" json:"due_date"`
	TaxRate       *decimal.Decimal `gorm:"type:decimal(5,2)" json:"tax_rate"`
	SubTotal      decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0" json:"sub_total"`
	TaxAmount     decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0" json:"tax_amount"`
	TotalAmount   decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0" json:"total_amount"`
	Status        billing.Status   `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	Notes         string           `gorm:"type:text" json:"notes"`
	SentAt        *time.Time       `json:"sent_at"`
	PaidAt        *time.Time       `json:"paid_at"`
	CancelledAt   *time.Time       `json:"cancelled_at"`
	Items         []InvoiceItem    `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	Payments      []Payment        `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"payments,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	DeletedAt     gorm.DeletedAt   `gorm:"index" json:"-"`
}

// InvoiceItem is one line. DiscountAmount, SubTotal, TaxAmount and Total
// are always recomputed before save.
type InvoiceItem struct {
	ID             uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID      uuid.UUID            `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Description    string               `gorm:"type:text;not null" json:"description"`
	Quantity       decimal.Decimal      `gorm:"type:decimal(12,2);not null" json:"quantity"`
	UnitPrice      decimal.Decimal      `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	TaxRate        decimal.Decimal      `gorm:"type:decimal(5,2);not null;default:0" json:"tax_rate"`
	Discount       decimal.Decimal      `gorm:"type:decimal(12,2);not null;default:0" json:"discount"`
	DiscountType   billing.DiscountType `gorm:"type:varchar(20);not null;default:'percentage'" json:"discount_type"`
	DiscountAmount decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0" json:"discount_amount"`
	SubTotal       decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0" json:"sub_total"`
	TaxAmount      decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0" json:"tax_amount"`
	Total          decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0" json:"total"`
	Position       int                  `gorm:"not null;default:1;index" json:"position"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

type Payment struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	UserID        *uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	PaymentDate   time.Time       `gorm:"type:date;not null" json:"payment_date"`
	PaymentMethod string          `gorm:"type:varchar(30);not null" json:"payment_method"`
	Reference     string          `gorm:"type:varchar(100)" json:"reference"`
	Notes         string          `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ItemInput returns the caller-controlled fields of the item.
func (it *InvoiceItem) ItemInput() billing.ItemInput {
	return billing.ItemInput{
		Description:  it.Description,
		Quantity:     it.Quantity,
		UnitPrice:    it.UnitPrice,
		TaxRate:      it.TaxRate,
		Discount:     it.Discount,
		DiscountType: it.DiscountType,
	}
}

// Apply copies normalized input and derived amounts onto the item.
func (it *InvoiceItem) Apply(in billing.ItemInput, amounts billing.ItemAmounts) {
	it.Description = in.Description
	it.Quantity = in.Quantity
	it.UnitPrice = in.UnitPrice
	it.TaxRate = in.TaxRate
	it.Discount = in.Discount
	it.DiscountType = in.DiscountType
	it.DiscountAmount = amounts.DiscountAmount
	it.SubTotal = amounts.SubTotal
	it.TaxAmount = amounts.TaxAmount
	it.Total = amounts.Total
}

// Amounts returns the stored derived amounts.
func (it *InvoiceItem) Amounts() billing.ItemAmounts {
	return billing.ItemAmounts{
		Gross:          it.Quantity.Mul(it.UnitPrice),
		DiscountAmount: it.DiscountAmount,
		SubTotal:       it.SubTotal,
		TaxAmount:      it.TaxAmount,
		Total:          it.Total,
	}
}

func (inv *Invoice) ApplyTotals(t billing.InvoiceTotals) {
	inv.SubTotal = t.SubTotal
	inv.TaxAmount = t.TaxAmount
	inv.TotalAmount = t.TotalAmount
}
