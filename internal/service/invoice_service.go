package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice/internal/billing"
	"backoffice/internal/logger"
	"backoffice/internal/model"
	"backoffice/internal/policy"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// --- DTOs ---

type InvoiceItemRequest struct {
	ID           *string         `json:"id"`
	Description  string          `json:"description"`
	Quantity     decimal.Decimal `json:"quantity" swaggertype:"string" example:"2"`
	UnitPrice    decimal.Decimal `json:"unit_price" swaggertype:"string" example:"100.00"`
	TaxRate      decimal.Decimal `json:"tax_rate" swaggertype:"string" example:"10"`
	Discount     decimal.Decimal `json:"discount" swaggertype:"string" example:"0"`
	DiscountType string          `json:"discount_type" example:"percentage"`
	Destroy      bool            `json:"_destroy"`
}

type CreateInvoiceRequest struct {
	ClientID  string               `json:"client_id" binding:"required"`
	IssueDate string               `json:"issue_date" binding:"required" example:"2024-01-15"`
	DueDate   string               `json:"due_date" binding:"required" example:"2024-02-14"`
	TaxRate   *decimal.Decimal     `json:"tax_rate" swaggertype:"string"`
	Notes     string               `json:"notes"`
	Items     []InvoiceItemRequest `json:"items"`
}

// UpdateInvoiceRequest edits a draft header. A non-nil Items replaces every line.
type UpdateInvoiceRequest struct {
	ClientID      *string              `json:"client_id"`
	IssueDate     *string              `json:"issue_date"`
	DueDate       *string              `json:"due_date"`
	TaxRate       *decimal.Decimal     `json:"tax_rate" swaggertype:"string"`
	RemoveTaxRate bool                 `json:"remove_tax_rate"`
	Notes         *string              `json:"notes"`
	Items         []InvoiceItemRequest `json:"items"`
}

type InvoiceFilter struct {
	Status   string
	ClientID string
	DateFrom string
	DateTo   string
	Search   string
	Page     int
	Limit    int
}

type InvoiceItemResponse struct {
	ID             string `json:"id"`
	InvoiceID      string `json:"invoice_id"`
	Description    string `json:"description"`
	Quantity       string `json:"quantity"`
	UnitPrice      string `json:"unit_price"`
	TaxRate        string `json:"tax_rate"`
	Discount       string `json:"discount"`
	DiscountType   string `json:"discount_type"`
	DiscountAmount string `json:"discount_amount"`
	SubTotal       string `json:"sub_total"`
	TaxAmount      string `json:"tax_amount"`
	Total          string `json:"total"`
	Position       int    `json:"position"`
}

type PaymentResponse struct {
	ID            string  `json:"id"`
	InvoiceID     string  `json:"invoice_id"`
	Amount        string  `json:"amount"`
	PaymentDate   string  `json:"payment_date"`
	PaymentMethod string  `json:"payment_method"`
	Reference     string  `json:"reference"`
	Notes         string  `json:"notes"`
	RecordedBy    *string `json:"recorded_by"`
	CreatedAt     string  `json:"created_at"`
}

type InvoiceTotalsResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	SubTotal    string `json:"sub_total"`
	TaxAmount   string `json:"tax_amount"`
	TotalAmount string `json:"total_amount"`
}

type InvoiceResponse struct {
	ID            string                `json:"id"`
	InvoiceNumber string                `json:"invoice_number"`
	ClientID      string                `json:"client_id"`
	ClientName    string                `json:"client_name,omitempty"`
	UserID        string                `json:"user_id"`
	IssueDate     string                `json:"issue_date"`
	DueDate       string                `json:"due_date"`
	TaxRate       *string               `json:"tax_rate"`
	SubTotal      string                `json:"sub_total"`
	TaxAmount     string                `json:"tax_amount"`
	TotalAmount   string                `json:"total_amount"`
	PaidAmount    string                `json:"paid_amount"`
	Balance       string                `json:"balance"`
	Status        string                `json:"status"`
	Notes         string                `json:"notes"`
	SentAt        *string               `json:"sent_at"`
	PaidAt        *string               `json:"paid_at"`
	CancelledAt   *string               `json:"cancelled_at"`
	Items         []InvoiceItemResponse `json:"items,omitempty"`
	Payments      []PaymentResponse     `json:"payments,omitempty"`
	CreatedAt     string                `json:"created_at"`
	UpdatedAt     string                `json:"updated_at"`
}

// DraftMutation runs inside the draft gate's transaction and returns the
// activity entry to record. An empty Action records nothing.
type DraftMutation func(txCtx context.Context, invoice *model.Invoice) (Entry, error)

// --- Interface ---

type InvoiceService interface {
	List(ctx context.Context, actor policy.Actor, f InvoiceFilter) ([]InvoiceResponse, int64, error)
	Create(ctx context.Context, actor policy.Actor, req CreateInvoiceRequest) (*InvoiceResponse, error)
	Get(ctx context.Context, actor policy.Actor, id string) (*InvoiceResponse, error)
	Update(ctx context.Context, actor policy.Actor, id string, req UpdateInvoiceRequest) (*InvoiceResponse, error)
	Delete(ctx context.Context, actor policy.Actor, id string) error
	Send(ctx context.Context, actor policy.Actor, id string) (*InvoiceResponse, error)
	Cancel(ctx context.Context, actor policy.Actor, id string) (*InvoiceResponse, error)
	MarkOverdue(ctx context.Context, actor policy.Actor, id string) (*InvoiceResponse, error)

	// Authorized loads an invoice and checks action against it.
	Authorized(ctx context.Context, actor policy.Actor, action policy.Action, id uuid.UUID) (*model.Invoice, error)
	// MutateDraft is the only path through which line items change.
	MutateDraft(ctx context.Context, actor policy.Actor, id uuid.UUID, fn DraftMutation) (*model.Invoice, error)
}

type invoiceService struct {
	invoiceRepo repository.InvoiceRepository
	itemRepo    repository.InvoiceItemRepository
	paymentRepo repository.PaymentRepository
	clientRepo  repository.ClientRepository
	txManager   repository.TransactionManager
	engine      *policy.Engine
	audit       AuditService
	notifier    Notifier
	log         zerolog.Logger
	now         func() time.Time
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	itemRepo repository.InvoiceItemRepository,
	paymentRepo repository.PaymentRepository,
	clientRepo repository.ClientRepository,
	txManager repository.TransactionManager,
	engine *policy.Engine,
	audit AuditService,
	notifier Notifier,
) InvoiceService {
	return &invoiceService{
		invoiceRepo: invoiceRepo,
		itemRepo:    itemRepo,
		paymentRepo: paymentRepo,
		clientRepo:  clientRepo,
		txManager:   txManager,
		engine:      engine,
		audit:       audit,
		notifier:    notifier,
		log:         logger.WithComponent("invoices"),
		now:         time.Now,
	}
}

// --- Guarded access ---

func (s *invoiceService) Authorized(ctx context.Context, actor policy.Actor, action policy.Action, id uuid.UUID) (*model.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("invoice: %w", err)
	}
	if err := s.authorizeInvoice(actor, action, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) authorizeInvoice(actor policy.Actor, action policy.Action, invoice *model.Invoice) error {
	owner := invoice.UserID
	return authorize(s.engine, action, policy.Request{Actor: actor, InvoiceOwnerID: &owner})
}

// MutateDraft locks the invoice, checks the actor may edit it and that it is
// still a draft, runs fn, then recomputes totals and records the activity,
// all in one transaction.
func (s *invoiceService) MutateDraft(ctx context.Context, actor policy.Actor, id uuid.UUID, fn DraftMutation) (*model.Invoice, error) {
	var invoice *model.Invoice
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		invoice, err = s.invoiceRepo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return fmt.Errorf("invoice: %w", err)
		}
		if err := s.authorizeInvoice(actor, policy.InvoiceUpdate, invoice); err != nil {
			return err
		}
		if err := billing.EnsureEditable(invoice.Status); err != nil {
			return domainErr(err)
		}

		entry, err := fn(txCtx, invoice)
		if err != nil {
			return err
		}
		if err := s.recalculate(txCtx, invoice); err != nil {
			return err
		}
		if entry.Action == "" {
			return nil
		}
		if entry.Properties == nil {
			entry.Properties = map[string]any{}
		}
		entry.Properties["invoice_id"] = invoice.ID.String()
		entry.Properties["total_amount"] = invoice.TotalAmount.StringFixed(2)
		return s.audit.Record(txCtx, &actor, entry)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(EventInvoiceUpdated, invoice.UserID, toTotalsResponse(invoice))
	return invoice, nil
}

// recalculate reloads the items inside the transaction and always writes
// the three totals, zeroes included.
func (s *invoiceService) recalculate(ctx context.Context, invoice *model.Invoice) error {
	items, err := s.itemRepo.ListByInvoice(ctx, invoice.ID)
	if err != nil {
		return fmt.Errorf("failed to load invoice items: %w", err)
	}
	amounts := make([]billing.ItemAmounts, len(items))
	for i := range items {
		amounts[i] = items[i].Amounts()
	}
	invoice.ApplyTotals(billing.CalculateInvoice(amounts, invoice.TaxRate))
	if err := s.invoiceRepo.UpdateTotals(ctx, invoice); err != nil {
		return fmt.Errorf("failed to update invoice totals: %w", err)
	}
	return nil
}

// --- Implementation ---

func (s *invoiceService) List(ctx context.Context, actor policy.Actor, f InvoiceFilter) ([]InvoiceResponse, int64, error) {
	if err := authorize(s.engine, policy.InvoiceViewAny, policy.Request{Actor: actor}); err != nil {
		return nil, 0, err
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}

	filter := repository.InvoiceListFilter{Search: f.Search, Page: f.Page, Limit: f.Limit}
	if f.Status != "" {
		if _, ok := billing.ParseStatus(f.Status); !ok {
			return nil, 0, invalid("status", "is not a known invoice status")
		}
		filter.Status = f.Status
	}
	if f.ClientID != "" {
		id, err := uuid.Parse(f.ClientID)
		if err != nil {
			return nil, 0, invalid("client_id", "must be a valid id")
		}
		filter.ClientID = &id
	}
	if f.DateFrom != "" {
		d, err := parseDate("date_from", f.DateFrom)
		if err != nil {
			return nil, 0, err
		}
		filter.DateFrom = &d
	}
	if f.DateTo != "" {
		d, err := parseDate("date_to", f.DateTo)
		if err != nil {
			return nil, 0, err
		}
		filter.DateTo = &d
	}
	if actor.OwnInvoicesOnly() {
		uid := actor.UserID
		filter.UserID = &uid
	}

	invoices, total, err := s.invoiceRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch invoices: %w", err)
	}
	ids := make([]uuid.UUID, len(invoices))
	for i := range invoices {
		ids[i] = invoices[i].ID
	}
	paid, err := s.invoiceRepo.PaidAmounts(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch paid amounts: %w", err)
	}

	result := make([]InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		result = append(result, toInvoiceResponse(&invoices[i], paid[invoices[i].ID]))
	}
	return result, total, nil
}

func (s *invoiceService) Create(ctx context.Context, actor policy.Actor, req CreateInvoiceRequest) (*InvoiceResponse, error) {
	if err := authorize(s.engine, policy.InvoiceCreate, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}

	fields := map[string]string{}
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		fields["client_id"] = "must be a valid id"
	}
	issue, err := time.Parse(dateLayout, req.IssueDate)
	if err != nil {
		fields["issue_date"] = "must be a date (YYYY-MM-DD)"
	}
	due, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		fields["due_date"] = "must be a date (YYYY-MM-DD)"
	} else if _, bad := fields["issue_date"]; !bad && due.Before(issue) {
		fields["due_date"] = "must be on or after the issue date"
	}
	if !billing.ValidateTaxRate(req.TaxRate) {
		fields["tax_rate"] = "must be between 0 and 100"
	}
	items, itemErrs, err := buildItems(req.Items)
	if err != nil {
		return nil, err
	}
	for k, v := range itemErrs {
		fields[k] = v
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	if _, err := s.clientRepo.FindByID(ctx, clientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid("client_id", "does not exist")
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}

	invoice := &model.Invoice{
		ClientID:  clientID,
		UserID:    actor.UserID,
		IssueDate: issue,
		DueDate:   due,
		TaxRate:   roundRate(req.TaxRate),
		Status:    billing.StatusDraft,
		Notes:     req.Notes,
	}

	for attempt := 0; ; attempt++ {
		err = s.create(ctx, actor, invoice, items, attempt)
		if !errors.Is(err, repository.ErrDuplicate) {
			break
		}
		if attempt == invoiceNumberAttempts-1 {
			return nil, fmt.Errorf("%w: invoice number %s is already taken, try again", ErrConflict, invoice.InvoiceNumber)
		}
		s.log.Warn().Str("invoice", invoice.InvoiceNumber).Msg("invoice number taken, retrying")
	}
	if err != nil {
		return nil, err
	}
	return s.detailed(ctx, invoice.ID)
}

const invoiceNumberAttempts = 3

// create writes the invoice and its items in one transaction. skip moves the
// generated number past numbers taken by concurrent creates.
func (s *invoiceService) create(ctx context.Context, actor policy.Actor, invoice *model.Invoice, items []model.InvoiceItem, skip int) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		number, err := s.nextInvoiceNumber(txCtx, invoice.IssueDate, skip)
		if err != nil {
			return fmt.Errorf("failed to generate invoice number: %w", err)
		}
		invoice.InvoiceNumber = number
		if err := s.invoiceRepo.Create(txCtx, invoice); err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}
		for i := range items {
			items[i].InvoiceID = invoice.ID
			items[i].Position = i + 1
			if err := s.itemRepo.Create(txCtx, &items[i]); err != nil {
				return fmt.Errorf("failed to create invoice item: %w", err)
			}
		}
		if err := s.recalculate(txCtx, invoice); err != nil {
			return err
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionInvoiceCreated,
			SubjectType: "invoice",
			SubjectID:   invoice.ID,
			Description: "Invoice " + invoice.InvoiceNumber + " created",
			Properties: map[string]any{
				"client_id":    invoice.ClientID.String(),
				"items":        len(items),
				"total_amount": invoice.TotalAmount.StringFixed(2),
			},
		})
	})
}

func (s *invoiceService) Get(ctx context.Context, actor policy.Actor, id string) (*InvoiceResponse, error) {
	invoiceID, err := parseID("invoice id", id)
	if err != nil {
		return nil, err
	}
	if _, err := s.Authorized(ctx, actor, policy.InvoiceView, invoiceID); err != nil {
		return nil, err
	}
	return s.detailed(ctx, invoiceID)
}

func (s *invoiceService) Update(ctx context.Context, actor policy.Actor, id string, req UpdateInvoiceRequest) (*InvoiceResponse, error) {
	invoiceID, err := parseID("invoice id", id)
	if err != nil {
		return nil, err
	}
	if req.TaxRate != nil && !billing.ValidateTaxRate(req.TaxRate) {
		return nil, invalid("tax_rate", "must be between 0 and 100")
	}
	var items []model.InvoiceItem
	if req.Items != nil {
		var itemErrs map[string]string
		if items, itemErrs, err = buildItems(req.Items); err != nil {
			return nil, err
		}
		if len(itemErrs) > 0 {
			return nil, &ValidationError{Fields: itemErrs}
		}
	}

	_, err = s.MutateDraft(ctx, actor, invoiceID, func(txCtx context.Context, inv *model.Invoice) (Entry, error) {
		if err := s.applyHeader(txCtx, inv, req); err != nil {
			return Entry{}, err
		}
		if err := s.invoiceRepo.Update(txCtx, inv); err != nil {
			return Entry{}, fmt.Errorf("failed to update invoice: %w", err)
		}
		if req.Items != nil {
			if err := s.itemRepo.DeleteByInvoice(txCtx, inv.ID); err != nil {
				return Entry{}, fmt.Errorf("failed to replace invoice items: %w", err)
			}
			for i := range items {
				items[i].InvoiceID = inv.ID
				items[i].Position = i + 1
				if err := s.itemRepo.Create(txCtx, &items[i]); err != nil {
					return Entry{}, fmt.Errorf("failed to create invoice item: %w", err)
				}
			}
		}
		return Entry{
			Action:      model.ActionInvoiceUpdated,
			SubjectType: "invoice",
			SubjectID:   inv.ID,
			Description: "Invoice " + inv.InvoiceNumber + " updated",
			Properties:  map[string]any{"items_replaced": req.Items != nil},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return s.detailed(ctx, invoiceID)
}

func (s *invoiceService) applyHeader(ctx context.Context, inv *model.Invoice, req UpdateInvoiceRequest) error {
	fields := map[string]string{}
	if req.ClientID != nil {
		cid, err := uuid.Parse(*req.ClientID)
		if err != nil {
			fields["client_id"] = "must be a valid id"
		} else if _, err := s.clientRepo.FindByID(ctx, cid); err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("failed to load client: %w", err)
			}
			fields["client_id"] = "does not exist"
		} else {
			inv.ClientID = cid
		}
	}
	if req.IssueDate != nil {
		d, err := time.Parse(dateLayout, *req.IssueDate)
		if err != nil {
			fields["issue_date"] = "must be a date (YYYY-MM-DD)"
		} else {
			inv.IssueDate = d
		}
	}
	if req.DueDate != nil {
		d, err := time.Parse(dateLayout, *req.DueDate)
		if err != nil {
			fields["due_date"] = "must be a date (YYYY-MM-DD)"
		} else {
			inv.DueDate = d
		}
	}
	if _, ok := fields["due_date"]; !ok && dateOnly(inv.DueDate).Before(dateOnly(inv.IssueDate)) {
		fields["due_date"] = "must be on or after the issue date"
	}
	if req.RemoveTaxRate {
		inv.TaxRate = nil
	} else if req.TaxRate != nil {
		inv.TaxRate = roundRate(req.TaxRate)
	}
	if req.Notes != nil {
		inv.Notes = *req.Notes
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (s *invoiceService) Delete(ctx context.Context, actor policy.Actor, id string) error {
	invoiceID, err := parseID("invoice id", id)
	if err != nil {
		return err
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err := s.invoiceRepo.FindByIDForUpdate(txCtx, invoiceID)
		if err != nil {
			return fmt.Errorf("invoice: %w", err)
		}
		if err := s.authorizeInvoice(actor, policy.InvoiceDelete, invoice); err != nil {
			return err
		}
		if invoice.Status != billing.StatusDraft && invoice.Status != billing.StatusCancelled {
			return ruleErr("invoice is %s; only draft or cancelled invoices can be deleted", invoice.Status)
		}
		if err := s.invoiceRepo.Delete(txCtx, invoice.ID); err != nil {
			return fmt.Errorf("failed to delete invoice: %w", err)
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionInvoiceDeleted,
			SubjectType: "invoice",
			SubjectID:   invoice.ID,
			Description: "Invoice " + invoice.InvoiceNumber + " deleted",
		})
	})
}

func (s *invoiceService) Send(ctx context.Context, actor policy.Actor, id string) (*InvoiceResponse, error) {
	invoiceID, err := parseID("invoice id", id)
	if err != nil {
		return nil, err
	}

	var invoice *model.Invoice
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err = s.invoiceRepo.FindByIDForUpdate(txCtx, invoiceID)
		if err != nil {
			return fmt.Errorf("invoice: %w", err)
		}
		if err := s.authorizeInvoice(actor, policy.InvoiceSend, invoice); err != nil {
			return err
		}
		next, err := billing.Transition(invoice.Status, billing.StatusSent)
		if err != nil {
			return domainErr(err)
		}
		items, err := s.itemRepo.ListByInvoice(txCtx, invoice.ID)
		if err != nil {
			return fmt.Errorf("failed to load invoice items: %w", err)
		}
		if len(items) == 0 {
			return ruleErr("an invoice without items cannot be sent")
		}
		client, err := s.clientRepo.FindByID(txCtx, invoice.ClientID)
		if err != nil {
			return fmt.Errorf("failed to load client: %w", err)
		}

		now := s.now()
		invoice.Status = next
		invoice.SentAt = &now
		if err := s.invoiceRepo.Update(txCtx, invoice); err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}
		if err := s.notifier.InvoiceSent(txCtx, invoice, client); err != nil {
			return err
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionInvoiceSent,
			SubjectType: "invoice",
			SubjectID:   invoice.ID,
			Description: "Invoice " + invoice.InvoiceNumber + " sent to " + client.Email,
			Properties:  map[string]any{"client_email": client.Email},
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("invoice", invoice.InvoiceNumber).Str("by", actor.UserID.String()).Msg("invoice sent")
	s.notifier.Publish(EventInvoiceSent, invoice.UserID, toTotalsResponse(invoice))
	return s.detailed(ctx, invoiceID)
}

func (s *invoiceService) Cancel(ctx context.Context, actor policy.Actor, id string) (*InvoiceResponse, error) {
	return s.changeStatus(ctx, actor, id, billing.StatusCancelled, func(txCtx context.Context, inv *model.Invoice) error {
		now := s.now()
		inv.CancelledAt = &now
		return nil
	})
}

// MarkOverdue is the only way an invoice becomes overdue: it must be sent,
// past its due date and not fully paid.
func (s *invoiceService) MarkOverdue(ctx context.Context, actor policy.Actor, id string) (*InvoiceResponse, error) {
	return s.changeStatus(ctx, actor, id, billing.StatusOverdue, func(txCtx context.Context, inv *model.Invoice) error {
		if !dateOnly(inv.DueDate).Before(dateOnly(s.now())) {
			return ruleErr("invoice is not past its due date")
		}
		paid, err := s.paymentRepo.SumByInvoice(txCtx, inv.ID)
		if err != nil {
			return fmt.Errorf("failed to sum payments: %w", err)
		}
		if !inv.TotalAmount.Sub(paid).IsPositive() {
			return ruleErr("invoice has no outstanding balance")
		}
		return nil
	})
}

func (s *invoiceService) changeStatus(ctx context.Context, actor policy.Actor, id string, to billing.Status, check func(context.Context, *model.Invoice) error) (*InvoiceResponse, error) {
	invoiceID, err := parseID("invoice id", id)
	if err != nil {
		return nil, err
	}
	var invoice *model.Invoice
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err = s.invoiceRepo.FindByIDForUpdate(txCtx, invoiceID)
		if err != nil {
			return fmt.Errorf("invoice: %w", err)
		}
		if err := s.authorizeInvoice(actor, policy.InvoiceUpdate, invoice); err != nil {
			return err
		}
		from := invoice.Status
		next, err := billing.Transition(from, to)
		if err != nil {
			return domainErr(err)
		}
		if err := check(txCtx, invoice); err != nil {
			return err
		}
		invoice.Status = next
		if err := s.invoiceRepo.Update(txCtx, invoice); err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionInvoiceStatus,
			SubjectType: "invoice",
			SubjectID:   invoice.ID,
			Description: fmt.Sprintf("Invoice %s marked %s", invoice.InvoiceNumber, next),
			Properties:  map[string]any{"from": string(from), "to": string(next)},
		})
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(EventInvoiceUpdated, invoice.UserID, toTotalsResponse(invoice))
	return s.detailed(ctx, invoiceID)
}

// nextInvoiceNumber numbers invoices per issue day: INV-20240115-00001.
func (s *invoiceService) nextInvoiceNumber(ctx context.Context, issue time.Time, skip int) (string, error) {
	prefix := "INV-" + issue.Format("20060102") + "-"
	count, err := s.invoiceRepo.CountByPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", prefix, count+1+int64(skip)), nil
}

func (s *invoiceService) detailed(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	invoice, err := s.invoiceRepo.FindDetailed(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload invoice: %w", err)
	}
	amounts := make([]decimal.Decimal, len(invoice.Payments))
	for i, p := range invoice.Payments {
		amounts[i] = p.Amount
	}
	paid, _ := billing.Balance(invoice.TotalAmount, amounts)
	resp := toInvoiceResponse(invoice, paid)
	resp.Items = make([]InvoiceItemResponse, 0, len(invoice.Items))
	for i := range invoice.Items {
		resp.Items = append(resp.Items, toItemResponse(&invoice.Items[i]))
	}
	resp.Payments = make([]PaymentResponse, 0, len(invoice.Payments))
	for i := range invoice.Payments {
		resp.Payments = append(resp.Payments, toPaymentResponse(&invoice.Payments[i]))
	}
	return &resp, nil
}

// --- Helpers ---

// buildItems validates request lines and derives their amounts. Field errors are
// keyed items.<index>.<field>; any other failure is returned as err.
func buildItems(reqs []InvoiceItemRequest) ([]model.InvoiceItem, map[string]string, error) {
	items := make([]model.InvoiceItem, 0, len(reqs))
	errs := map[string]string{}
	for i, r := range reqs {
		var item model.InvoiceItem
		if err := fillItem(&item, r); err != nil {
			var ve *ValidationError
			if !errors.As(err, &ve) {
				return nil, nil, fmt.Errorf("item %d: %w", i, err)
			}
			for f, m := range ve.Fields {
				errs[fmt.Sprintf("items.%d.%s", i, f)] = m
			}
			continue
		}
		items = append(items, item)
	}
	return items, errs, nil
}

// fillItem recomputes every derived field from the request.
func fillItem(item *model.InvoiceItem, r InvoiceItemRequest) error {
	in := billing.ItemInput{
		Description:  r.Description,
		Quantity:     r.Quantity,
		UnitPrice:    r.UnitPrice,
		TaxRate:      r.TaxRate,
		Discount:     r.Discount,
		DiscountType: billing.DiscountType(r.DiscountType),
	}
	amounts, err := billing.CalculateItem(in)
	if err != nil {
		return domainErr(err)
	}
	item.Apply(in.Normalize(), amounts)
	return nil
}

func roundRate(rate *decimal.Decimal) *decimal.Decimal {
	if rate == nil {
		return nil
	}
	r := rate.Round(billing.MoneyPlaces)
	return &r
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, invalid(field, "must be a date (YYYY-MM-DD)")
	}
	return t, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(billing.MoneyPlaces)
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// --- Mapping ---

func toInvoiceResponse(inv *model.Invoice, paid decimal.Decimal) InvoiceResponse {
	resp := InvoiceResponse{
		ID:            inv.ID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		ClientID:      inv.ClientID.String(),
		UserID:        inv.UserID.String(),
		IssueDate:     inv.IssueDate.Format(dateLayout),
		DueDate:       inv.DueDate.Format(dateLayout),
		SubTotal:      money(inv.SubTotal),
		TaxAmount:     money(inv.TaxAmount),
		TotalAmount:   money(inv.TotalAmount),
		PaidAmount:    money(paid),
		Balance:       money(inv.TotalAmount.Sub(paid)),
		Status:        string(inv.Status),
		Notes:         inv.Notes,
		SentAt:        formatTime(inv.SentAt),
		PaidAt:        formatTime(inv.PaidAt),
		CancelledAt:   formatTime(inv.CancelledAt),
		CreatedAt:     inv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     inv.UpdatedAt.Format(time.RFC3339),
	}
	if inv.Client != nil {
		resp.ClientName = inv.Client.Name
	}
	if inv.TaxRate != nil {
		r := money(*inv.TaxRate)
		resp.TaxRate = &r
	}
	return resp
}

func toTotalsResponse(inv *model.Invoice) InvoiceTotalsResponse {
	return InvoiceTotalsResponse{
		ID:          inv.ID.String(),
		Status:      string(inv.Status),
		SubTotal:    money(inv.SubTotal),
		TaxAmount:   money(inv.TaxAmount),
		TotalAmount: money(inv.TotalAmount),
	}
}

func toItemResponse(it *model.InvoiceItem) InvoiceItemResponse {
	return InvoiceItemResponse{
		ID:             it.ID.String(),
		InvoiceID:      it.InvoiceID.String(),
		Description:    it.Description,
		Quantity:       money(it.Quantity),
		UnitPrice:      money(it.UnitPrice),
		TaxRate:        money(it.TaxRate),
		Discount:       money(it.Discount),
		DiscountType:   string(it.DiscountType),
		DiscountAmount: money(it.DiscountAmount),
		SubTotal:       money(it.SubTotal),
		TaxAmount:      money(it.TaxAmount),
		Total:          money(it.Total),
		Position:       it.Position,
	}
}

func toPaymentResponse(p *model.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:            p.ID.String(),
		InvoiceID:     p.InvoiceID.String(),
		Amount:        money(p.Amount),
		PaymentDate:   p.PaymentDate.Format(dateLayout),
		PaymentMethod: p.PaymentMethod,
		Reference:     p.Reference,
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
	if p.UserID != nil {
		s := p.UserID.String()
		resp.RecordedBy = &s
	}
	return resp
}
