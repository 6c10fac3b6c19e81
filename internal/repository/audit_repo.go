package repository

import (
	"context"

	"backoffice/internal/model"

	"gorm.io/gorm"
)

type AuditListFilter struct {
	Action      string
	SubjectType string
	SubjectID   string
	Page        int
	Limit       int
}

type AuditRepository interface {
	Log(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, f AuditListFilter) ([]model.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	return GetDB(ctx, r.db).Omit("User").Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, f AuditListFilter) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		if f.Action != "" {
			q = q.Where("action = ?", f.Action)
		}
		if f.SubjectType != "" {
			q = q.Where("subject_type = ?", f.SubjectType)
		}
		if f.SubjectID != "" {
			q = q.Where("subject_id = ?", f.SubjectID)
		}
		return q
	}

	if err := scope(db.Model(&model.AuditLog{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	if err := scope(db.Model(&model.AuditLog{})).Preload("User").
		Order("created_at desc").Offset(offset).Limit(f.Limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
