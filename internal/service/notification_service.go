package service

import (
	"context"
	"fmt"
	"time"

	"backoffice/internal/logger"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

const (
	NotificationInvoiceSent    = "invoice_sent"
	NotificationUserInvitation = "user_invitation"
)

// Realtime event names pushed to websocket subscribers.
const (
	EventInvoiceUpdated  = "invoice.updated"
	EventInvoiceSent     = "invoice.sent"
	EventInvoicePaid     = "invoice.paid"
	EventPaymentRecorded = "payment.recorded"
)

// Publisher fans invoice events out to connected clients allowed to see the
// invoice owned by ownerID. The websocket hub implements it.
type Publisher interface {
	Publish(event string, ownerID uuid.UUID, data any)
}

type NotificationResponse struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Data      datatypes.JSONMap `json:"data" swaggertype:"object"`
	ReadAt    *string           `json:"read_at"`
	CreatedAt string            `json:"created_at"`
}

// Notifier stores notifications and publishes realtime events.
type Notifier interface {
	InvoiceSent(ctx context.Context, invoice *model.Invoice, client *model.Client) error
	UserInvitation(ctx context.Context, user *model.User, registrationURL string) error
	Publish(event string, ownerID uuid.UUID, data any)
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page, limit int) ([]NotificationResponse, int64, error)
	MarkRead(ctx context.Context, userID uuid.UUID, id string) error
}

type notifier struct {
	repo      repository.NotificationRepository
	publisher Publisher
	log       zerolog.Logger
}

// NewNotifier accepts a nil publisher, in which case events are dropped.
func NewNotifier(repo repository.NotificationRepository, publisher Publisher) Notifier {
	return &notifier{repo: repo, publisher: publisher, log: logger.WithComponent("notifier")}
}

func (n *notifier) InvoiceSent(ctx context.Context, invoice *model.Invoice, client *model.Client) error {
	data := datatypes.JSONMap{
		"invoice_id":     invoice.ID.String(),
		"invoice_number": invoice.InvoiceNumber,
		"total_amount":   invoice.TotalAmount.StringFixed(2),
		"due_date":       invoice.DueDate.Format("2006-01-02"),
	}
	if client != nil {
		data["client_name"] = client.Name
		data["client_email"] = client.Email
	}
	if err := n.repo.Create(ctx, &model.Notification{UserID: invoice.UserID, Type: NotificationInvoiceSent, Data: data}); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	ev := n.log.Info().
		Str("invoice", invoice.InvoiceNumber).
		Str("total", invoice.TotalAmount.StringFixed(2))
	if client != nil {
		ev = ev.Str("to", client.Email)
	}
	ev.Msg("invoice sent")
	return nil
}

func (n *notifier) UserInvitation(ctx context.Context, user *model.User, registrationURL string) error {
	data := datatypes.JSONMap{
		"email":            user.Email,
		"name":             user.Name,
		"registration_url": registrationURL,
	}
	if err := n.repo.Create(ctx, &model.Notification{UserID: user.ID, Type: NotificationUserInvitation, Data: data}); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	n.log.Info().
		Str("to", user.Email).
		Str("url", registrationURL).
		Msg("invitation issued")
	return nil
}

func (n *notifier) Publish(event string, ownerID uuid.UUID, data any) {
	if n.publisher == nil {
		return
	}
	n.publisher.Publish(event, ownerID, data)
}

func (n *notifier) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page, limit int) ([]NotificationResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	items, total, err := n.repo.ListByUser(ctx, userID, unreadOnly, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	out := make([]NotificationResponse, 0, len(items))
	for _, it := range items {
		r := NotificationResponse{
			ID:        it.ID.String(),
			Type:      it.Type,
			Data:      it.Data,
			CreatedAt: it.CreatedAt.Format(time.RFC3339),
		}
		if it.ReadAt != nil {
			s := it.ReadAt.Format(time.RFC3339)
			r.ReadAt = &s
		}
		out = append(out, r)
	}
	return out, total, nil
}

func (n *notifier) MarkRead(ctx context.Context, userID uuid.UUID, id string) error {
	nid, err := parseID("notification id", id)
	if err != nil {
		return err
	}
	changed, err := n.repo.MarkRead(ctx, userID, nid, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	if changed == 0 {
		return fmt.Errorf("notification: %w", ErrNotFound)
	}
	return nil
}
