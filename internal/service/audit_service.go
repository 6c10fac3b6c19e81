package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/policy"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AuditLogResponse struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	UserName    string         `json:"user_name"`
	Action      string         `json:"action"`
	SubjectType string         `json:"subject_type"`
	SubjectID   string         `json:"subject_id"`
	Description string         `json:"description"`
	Properties  datatypes.JSON `json:"properties" swaggertype:"object"`
	CreatedAt   string         `json:"created_at"`
}

type AuditFilter struct {
	Action      string
	SubjectType string
	SubjectID   string
	Page        int
	Limit       int
}

// Entry is one activity log line. Properties are stored as JSON.
type Entry struct {
	Action      string
	SubjectType string
	SubjectID   uuid.UUID
	Description string
	Properties  map[string]any
}

type AuditService interface {
	Record(ctx context.Context, actor *policy.Actor, e Entry) error
	List(ctx context.Context, actor policy.Actor, f AuditFilter) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo   repository.AuditRepository
	engine *policy.Engine
}

func NewAuditService(repo repository.AuditRepository, engine *policy.Engine) AuditService {
	return &auditService{repo: repo, engine: engine}
}

// Record writes through ctx, so inside RunInTx it shares the caller's transaction.
func (s *auditService) Record(ctx context.Context, actor *policy.Actor, e Entry) error {
	entry := &model.AuditLog{
		Action:      e.Action,
		SubjectType: e.SubjectType,
		Description: e.Description,
	}
	if e.SubjectID != uuid.Nil {
		entry.SubjectID = e.SubjectID.String()
	}
	if actor != nil && actor.UserID != uuid.Nil {
		id := actor.UserID
		entry.UserID = &id
	}
	if len(e.Properties) > 0 {
		raw, err := json.Marshal(e.Properties)
		if err != nil {
			return fmt.Errorf("failed to encode activity properties: %w", err)
		}
		entry.Properties = datatypes.JSON(raw)
	}
	if err := s.repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write activity log: %w", err)
	}
	return nil
}

func (s *auditService) List(ctx context.Context, actor policy.Actor, f AuditFilter) ([]AuditLogResponse, int64, error) {
	if err := authorize(s.engine, policy.AuditView, policy.Request{Actor: actor}); err != nil {
		return nil, 0, err
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}

	logs, total, err := s.repo.List(ctx, repository.AuditListFilter{
		Action:      f.Action,
		SubjectType: f.SubjectType,
		SubjectID:   f.SubjectID,
		Page:        f.Page,
		Limit:       f.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch activity log: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		name := "System"
		userID := ""
		if l.User != nil {
			name = l.User.Name
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}
		res = append(res, AuditLogResponse{
			ID:          l.ID.String(),
			UserID:      userID,
			UserName:    name,
			Action:      l.Action,
			SubjectType: l.SubjectType,
			SubjectID:   l.SubjectID,
			Description: l.Description,
			Properties:  l.Properties,
			CreatedAt:   l.CreatedAt.Format(time.RFC3339),
		})
	}
	return res, total, nil
}
