package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Primary keys are generated in Go so every dialect behaves the same.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (u *User) BeforeCreate(*gorm.DB) error         { ensureID(&u.ID); return nil }
func (t *RefreshToken) BeforeCreate(*gorm.DB) error { ensureID(&t.ID); return nil }
func (r *Role) BeforeCreate(*gorm.DB) error         { ensureID(&r.ID); return nil }
func (p *Permission) BeforeCreate(*gorm.DB) error   { ensureID(&p.ID); return nil }
func (c *Client) BeforeCreate(*gorm.DB) error       { ensureID(&c.ID); return nil }
func (n *ClientNote) BeforeCreate(*gorm.DB) error   { ensureID(&n.ID); return nil }
func (i *Invoice) BeforeCreate(*gorm.DB) error      { ensureID(&i.ID); return nil }
func (i *InvoiceItem) BeforeCreate(*gorm.DB) error  { ensureID(&i.ID); return nil }
func (p *Payment) BeforeCreate(*gorm.DB) error      { ensureID(&p.ID); return nil }
func (a *AuditLog) BeforeCreate(*gorm.DB) error     { ensureID(&a.ID); return nil }
func (n *Notification) BeforeCreate(*gorm.DB) error { ensureID(&n.ID); return nil }
