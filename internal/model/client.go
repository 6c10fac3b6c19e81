package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ClientStatusActive    = "active"
	ClientStatusInactive  = "inactive"
	ClientStatusSuspended = "suspended"
	ClientStatusLead      = "lead"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityVIP    = "vip"
)

const (
	TermsNet7         = "net_7"
	TermsNet15        = "net_15"
	TermsNet30        = "net_30"
	TermsNet45        = "net_45"
	TermsNet60        = "net_60"
	TermsDueOnReceipt = "due_on_receipt"
)

// Client is a billed customer.
type Client struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string          `gorm:"type:varchar(255);not null;index" json:"name"`
	ContactPerson   string          `gorm:"type:varchar(255)" json:"contact_person"`
	Email           string          `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	SecondaryEmail  string          `gorm:"type:varchar(255)" json:"secondary_email"`
	Phone           string          `gorm:"type:varchar(50)" json:"phone"`
	SecondaryPhone  string          `gorm:"type:varchar(50)" json:"secondary_phone"`
	Address         string          `gorm:"type:text" json:"address"`
	StreetAddress   string          `gorm:"type:varchar(255)" json:"street_address"`
	City            string          `gorm:"type:varchar(100)" json:"city"`
	State           string          `gorm:"type:varchar(100)" json:"state"`
	PostalCode      string          `gorm:"type:varchar(20)" json:"postal_code"`
	Country         string          `gorm:"type:varchar(2);not null;default:'US'" json:"country"`
	TaxNumber       string          `gorm:"type:varchar(50)" json:"tax_number"`
	CompanyName     string          `gorm:"type:varchar(255)" json:"company_name"`
	Website         string          `gorm:"type:varchar(255)" json:"website"`
	Notes           string          `gorm:"type:text" json:"notes"`
	BusinessType    string          `gorm:"type:varchar(100)" json:"business_type"`
	Industry        string          `gorm:"type:varchar(100)" json:"industry"`
	EmployeeCount   *int            `json:"employee_count"`
	Currency        string          `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	CreditLimit     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"credit_limit"`
	PaymentTerms    string          `gorm:"type:varchar(20);not null;default:'net_30'" json:"payment_terms"`
	Status          string          `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	Priority        string          `gorm:"type:varchar(20);not null;default:'medium'" json:"priority"`
	Source          string          `gorm:"type:varchar(100)" json:"source"`
	FirstContactAt  *time.Time      `json:"first_contact_at"`
	LastContactedAt *time.Time      `json:"last_contacted_at"`
	Invoices        []Invoice       `gorm:"foreignKey:ClientID" json:"-"`
	ClientNotes     []ClientNote    `gorm:"foreignKey:ClientID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`
}

// ClientNote is a timeline entry on a client.
type ClientNote struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID    uuid.UUID         `gorm:"type:uuid;not null;index" json:"client_id"`
	UserID      *uuid.UUID        `gorm:"type:uuid;index" json:"user_id"`
	User        *User             `gorm:"foreignKey:UserID" json:"-"`
	Note        string            `gorm:"type:text;not null" json:"note"`
	Type        string            `gorm:"type:varchar(20);not null;default:'general'" json:"type"`
	IsImportant bool              `gorm:"default:false;index" json:"is_important"`
	Metadata    datatypes.JSONMap `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
