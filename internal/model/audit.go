package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ActionClientCreated      = "client.created"
	ActionClientUpdated      = "client.updated"
	ActionClientDeleted      = "client.deleted"
	ActionClientsImported    = "client.imported"
	ActionClientNoteAdded    = "client.note_added"
	ActionInvoiceCreated     = "invoice.created"
	ActionInvoiceUpdated     = "invoice.updated"
	ActionInvoiceDeleted     = "invoice.deleted"
	ActionInvoiceSent        = "invoice.sent"
	ActionInvoiceStatus      = "invoice.status_changed"
	ActionItemCreated        = "invoice_item.created"
	ActionItemUpdated        = "invoice_item.updated"
	ActionItemDeleted        = "invoice_item.deleted"
	ActionItemsBulkUpdated   = "invoice_item.bulk_updated"
	ActionItemDuplicated     = "invoice_item.duplicated"
	ActionItemsReordered     = "invoice_item.reordered"
	ActionPaymentRecorded    = "payment.recorded"
	ActionPaymentDeleted     = "payment.deleted"
	ActionUserCreated        = "user.created"
	ActionUserInvited        = "user.invited"
	ActionUserUpdated        = "user.updated"
	ActionUserDeleted        = "user.deleted"
	ActionUserRegistered     = "user.registered"
	ActionRoleCreated        = "role.created"
	ActionRoleUpdated        = "role.updated"
	ActionRoleDeleted        = "role.deleted"
	ActionRolePermissionsSet = "role.permissions_synced"
	ActionRoleAssigned       = "role.assigned"
	ActionRoleRevoked        = "role.revoked"
)

// AuditLog is the activity log: who did what to which record.
type AuditLog struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"`
	User        *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action      string         `gorm:"type:varchar(50);not null;index" json:"action"`
	SubjectType string         `gorm:"type:varchar(50);index:idx_audit_subject" json:"subject_type"`
	SubjectID   string         `gorm:"type:varchar(50);index:idx_audit_subject" json:"subject_id"`
	Description string         `gorm:"type:varchar(255)" json:"description"`
	Properties  datatypes.JSON `json:"properties"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

// Notification is the stored copy of a message sent to a user.
type Notification struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_id"`
	Type      string            `gorm:"type:varchar(50);not null" json:"type"`
	Data      datatypes.JSONMap `json:"data"`
	ReadAt    *time.Time        `json:"read_at"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
}
