package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/billing"
	"backoffice/internal/model"
	"backoffice/internal/policy"
	"backoffice/internal/repository"

	"github.com/shopspring/decimal"
)

var paymentMethods = map[string]bool{
	model.PaymentCash:         true,
	model.PaymentBankTransfer: true,
	model.PaymentCard:         true,
	model.PaymentCheque:       true,
	model.PaymentOther:        true,
}

type RecordPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount" swaggertype:"string" example:"150.00"`
	PaymentDate   string          `json:"payment_date" example:"2024-02-01"`
	PaymentMethod string          `json:"payment_method" binding:"required" example:"bank_transfer"`
	Reference     string          `json:"reference" binding:"max=100"`
	Notes         string          `json:"notes"`
}

type PaymentResultResponse struct {
	Payment    PaymentResponse `json:"payment"`
	Status     string          `json:"invoice_status"`
	PaidAmount string          `json:"paid_amount"`
	Balance    string          `json:"balance"`
}

type PaymentService interface {
	List(ctx context.Context, actor policy.Actor, invoiceID string) ([]PaymentResponse, error)
	Record(ctx context.Context, actor policy.Actor, invoiceID string, req RecordPaymentRequest) (*PaymentResultResponse, error)
	Delete(ctx context.Context, actor policy.Actor, invoiceID, paymentID string) error
}

type paymentService struct {
	invoices    InvoiceService
	invoiceRepo repository.InvoiceRepository
	paymentRepo repository.PaymentRepository
	txManager   repository.TransactionManager
	engine      *policy.Engine
	audit       AuditService
	notifier    Notifier
	now         func() time.Time
}

func NewPaymentService(
	invoices InvoiceService,
	invoiceRepo repository.InvoiceRepository,
	paymentRepo repository.PaymentRepository,
	txManager repository.TransactionManager,
	engine *policy.Engine,
	audit AuditService,
	notifier Notifier,
) PaymentService {
	return &paymentService{
		invoices:    invoices,
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		txManager:   txManager,
		engine:      engine,
		audit:       audit,
		notifier:    notifier,
		now:         time.Now,
	}
}

func (s *paymentService) List(ctx context.Context, actor policy.Actor, invoiceID string) ([]PaymentResponse, error) {
	id, err := parseID("invoice id", invoiceID)
	if err != nil {
		return nil, err
	}
	if err := authorize(s.engine, policy.PaymentView, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	if _, err := s.invoices.Authorized(ctx, actor, policy.InvoiceView, id); err != nil {
		return nil, err
	}
	payments, err := s.paymentRepo.ListByInvoice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payments: %w", err)
	}
	out := make([]PaymentResponse, 0, len(payments))
	for i := range payments {
		out = append(out, toPaymentResponse(&payments[i]))
	}
	return out, nil
}

// Record accepts payments on sent or overdue invoices up to the open balance.
// Settling the balance moves the invoice to paid.
func (s *paymentService) Record(ctx context.Context, actor policy.Actor, invoiceID string, req RecordPaymentRequest) (*PaymentResultResponse, error) {
	id, err := parseID("invoice id", invoiceID)
	if err != nil {
		return nil, err
	}
	if err := authorize(s.engine, policy.PaymentCreate, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}

	fields := map[string]string{}
	amount := req.Amount.Round(billing.MoneyPlaces)
	if !amount.IsPositive() {
		fields["amount"] = "must be greater than 0"
	}
	method := strings.TrimSpace(req.PaymentMethod)
	if !paymentMethods[method] {
		fields["payment_method"] = "must be one of cash, bank_transfer, card, cheque, other"
	}
	date := dateOnly(s.now())
	if req.PaymentDate != "" {
		d, err := parseDate("payment_date", req.PaymentDate)
		if err != nil {
			fields["payment_date"] = "must be a date (YYYY-MM-DD)"
		}
		date = d
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	var (
		invoice *model.Invoice
		payment *model.Payment
		paid    decimal.Decimal
	)
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		invoice, err = s.invoiceRepo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return fmt.Errorf("invoice: %w", err)
		}
		owner := invoice.UserID
		if err := authorize(s.engine, policy.InvoiceView, policy.Request{Actor: actor, InvoiceOwnerID: &owner}); err != nil {
			return err
		}
		if !invoice.Status.Payable() {
			return ruleErr("payments can only be recorded on sent or overdue invoices; invoice is %s", invoice.Status)
		}
		already, err := s.paymentRepo.SumByInvoice(txCtx, invoice.ID)
		if err != nil {
			return fmt.Errorf("failed to sum payments: %w", err)
		}
		balance := invoice.TotalAmount.Sub(already)
		if amount.GreaterThan(balance) {
			return invalid("amount", "must not exceed the outstanding balance of "+money(balance))
		}

		uid := actor.UserID
		payment = &model.Payment{
			InvoiceID:     invoice.ID,
			UserID:        &uid,
			Amount:        amount,
			PaymentDate:   date,
			PaymentMethod: method,
			Reference:     strings.TrimSpace(req.Reference),
			Notes:         req.Notes,
		}
		if err := s.paymentRepo.Create(txCtx, payment); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		paid = already.Add(amount)

		if invoice.TotalAmount.Sub(paid).IsZero() {
			next, err := billing.Transition(invoice.Status, billing.StatusPaid)
			if err != nil {
				return domainErr(err)
			}
			now := s.now()
			invoice.Status = next
			invoice.PaidAt = &now
			if err := s.invoiceRepo.Update(txCtx, invoice); err != nil {
				return fmt.Errorf("failed to update invoice: %w", err)
			}
		}

		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionPaymentRecorded,
			SubjectType: "payment",
			SubjectID:   payment.ID,
			Description: fmt.Sprintf("Payment of %s recorded on invoice %s", money(amount), invoice.InvoiceNumber),
			Properties: map[string]any{
				"invoice_id": invoice.ID.String(),
				"amount":     money(amount),
				"method":     method,
				"status":     string(invoice.Status),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	result := &PaymentResultResponse{
		Payment:    toPaymentResponse(payment),
		Status:     string(invoice.Status),
		PaidAmount: money(paid),
		Balance:    money(invoice.TotalAmount.Sub(paid)),
	}
	s.notifier.Publish(EventPaymentRecorded, invoice.UserID, result)
	if invoice.Status == billing.StatusPaid {
		s.notifier.Publish(EventInvoicePaid, invoice.UserID, toTotalsResponse(invoice))
	}
	return result, nil
}

// Delete is allowed while the invoice is still collecting payments.
func (s *paymentService) Delete(ctx context.Context, actor policy.Actor, invoiceID, paymentID string) error {
	id, err := parseID("invoice id", invoiceID)
	if err != nil {
		return err
	}
	pid, err := parseID("payment id", paymentID)
	if err != nil {
		return err
	}
	if err := authorize(s.engine, policy.PaymentDelete, policy.Request{Actor: actor}); err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err := s.invoiceRepo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return fmt.Errorf("invoice: %w", err)
		}
		payment, err := s.paymentRepo.FindByID(txCtx, id, pid)
		if err != nil {
			return fmt.Errorf("payment: %w", err)
		}
		if !invoice.Status.Payable() {
			return ruleErr("payments of a %s invoice cannot be deleted", invoice.Status)
		}
		if err := s.paymentRepo.Delete(txCtx, id, payment.ID); err != nil {
			return fmt.Errorf("failed to delete payment: %w", err)
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionPaymentDeleted,
			SubjectType: "payment",
			SubjectID:   payment.ID,
			Description: fmt.Sprintf("Payment of %s removed from invoice %s", money(payment.Amount), invoice.InvoiceNumber),
			Properties:  map[string]any{"invoice_id": invoice.ID.String(), "amount": money(payment.Amount)},
		})
	})
}
