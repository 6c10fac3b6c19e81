package service

import (
	"testing"

	"backoffice/internal/policy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pay(amount string) RecordPaymentRequest {
	return RecordPaymentRequest{
		Amount:        decimal.RequireFromString(amount),
		PaymentDate:   "2024-02-01",
		PaymentMethod: "bank_transfer",
	}
}

func TestPaymentsSettleInvoice(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "2", "100", "10"), item("Hosting", "1", "50", "0"))
	_, err := f.invoices.Send(f.ctx, f.admin, inv.ID)
	require.NoError(t, err)

	first, err := f.payments.Record(f.ctx, f.admin, inv.ID, pay("100"))
	require.NoError(t, err)
	assert.Equal(t, "sent", first.Status)
	assert.Equal(t, "100.00", first.PaidAmount)
	assert.Equal(t, "170.00", first.Balance)

	_, err = f.payments.Record(f.ctx, f.admin, inv.ID, pay("170.01"))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "amount")

	last, err := f.payments.Record(f.ctx, f.admin, inv.ID, pay("170"))
	require.NoError(t, err)
	assert.Equal(t, "paid", last.Status)
	assert.Equal(t, "0.00", last.Balance)

	got, err := f.invoices.Get(f.ctx, f.admin, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "paid", got.Status)
	assert.NotNil(t, got.PaidAt)
	assert.Len(t, got.Payments, 2)
	assert.Equal(t, "270.00", got.PaidAmount)

	var re *RuleError
	_, err = f.payments.Record(f.ctx, f.admin, inv.ID, pay("1"))
	assert.ErrorAs(t, err, &re, "paid invoices accept no payments")
	assert.ErrorAs(t, f.payments.Delete(f.ctx, f.admin, inv.ID, last.Payment.ID), &re)

	assert.Contains(t, f.pub.names(), EventInvoicePaid)
}

func TestFractionalQuantitySettlesAtShownTotal(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Hours", "1.5", "19.99", "0"))
	assert.Equal(t, "29.99", inv.TotalAmount)
	_, err := f.invoices.Send(f.ctx, f.admin, inv.ID)
	require.NoError(t, err)

	res, err := f.payments.Record(f.ctx, f.admin, inv.ID, pay(inv.TotalAmount))
	require.NoError(t, err)
	assert.Equal(t, "paid", res.Status)
	assert.Equal(t, "0.00", res.Balance)
}

func TestPaymentOnDraftIsRejected(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "1", "100", "0"))

	_, err := f.payments.Record(f.ctx, f.admin, inv.ID, pay("10"))
	var re *RuleError
	assert.ErrorAs(t, err, &re)
}

func TestPaymentValidation(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "1", "100", "0"))

	_, err := f.payments.Record(f.ctx, f.admin, inv.ID, RecordPaymentRequest{
		Amount:        decimal.NewFromInt(-5),
		PaymentDate:   "yesterday",
		PaymentMethod: "barter",
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "amount")
	assert.Contains(t, ve.Fields, "payment_date")
	assert.Contains(t, ve.Fields, "payment_method")
}

func TestDeletePaymentRestoresBalance(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "1", "100", "0"))
	_, err := f.invoices.Send(f.ctx, f.admin, inv.ID)
	require.NoError(t, err)

	res, err := f.payments.Record(f.ctx, f.admin, inv.ID, pay("40"))
	require.NoError(t, err)
	require.NoError(t, f.payments.Delete(f.ctx, f.admin, inv.ID, res.Payment.ID))

	got, err := f.invoices.Get(f.ctx, f.admin, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", got.Balance)
	assert.Empty(t, got.Payments)
}

func TestPaymentPermissions(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "1", "100", "0"))
	_, err := f.invoices.Send(f.ctx, f.admin, inv.ID)
	require.NoError(t, err)

	user := f.actorWith(policy.RoleUser)
	_, err = f.payments.Record(f.ctx, user, inv.ID, pay("10"))
	assert.ErrorIs(t, err, ErrForbidden)

	accountant := f.actorWith(policy.RoleAccountant)
	_, err = f.payments.Record(f.ctx, accountant, inv.ID, pay("10"))
	assert.NoError(t, err)
}
