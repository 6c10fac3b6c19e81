package service

import (
	"regexp"
	"testing"

	"backoffice/internal/model"
	"backoffice/internal/policy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertTotals(t *testing.T, inv InvoiceTotalsResponse, sub, tax, total string) {
	t.Helper()
	assert.Equal(t, sub, inv.SubTotal, "sub_total")
	assert.Equal(t, tax, inv.TaxAmount, "tax_amount")
	assert.Equal(t, total, inv.TotalAmount, "total_amount")
}

func TestCreateInvoiceComputesTotals(t *testing.T) {
	f := newFixture(t)

	inv := f.draft(f.admin, item("Design", "2", "100", "10"), item("Hosting", "1", "50", "0"))

	assert.Equal(t, "draft", inv.Status)
	assert.Regexp(t, regexp.MustCompile(`^INV-20240115-\d{5}$`), inv.InvoiceNumber)
	assert.Equal(t, "250.00", inv.SubTotal)
	assert.Equal(t, "20.00", inv.TaxAmount)
	assert.Equal(t, "270.00", inv.TotalAmount)
	assert.Equal(t, "270.00", inv.Balance)
	require.Len(t, inv.Items, 2)
	assert.Equal(t, 1, inv.Items[0].Position)
	assert.Equal(t, 2, inv.Items[1].Position)
}

func TestInvoiceNumbersIncrementPerIssueDay(t *testing.T) {
	f := newFixture(t)

	first := f.draft(f.admin)
	second := f.draft(f.admin)

	assert.Equal(t, "INV-20240115-00001", first.InvoiceNumber)
	assert.Equal(t, "INV-20240115-00002", second.InvoiceNumber)
}

func TestInvoiceNumberCollisionIsRetried(t *testing.T) {
	f := newFixture(t)

	first := f.draft(f.admin)
	// a concurrent create already took the next number
	require.NoError(t, f.db.Model(&model.Invoice{}).Where("id = ?", first.ID).
		Update("invoice_number", "INV-20240115-00002").Error)

	second := f.draft(f.admin)
	assert.Equal(t, "INV-20240115-00003", second.InvoiceNumber)

	var n int64
	require.NoError(t, f.db.Model(&model.Invoice{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestCreateInvoiceValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.invoices.Create(f.ctx, f.admin, CreateInvoiceRequest{
		ClientID:  "nope",
		IssueDate: "2024-02-01",
		DueDate:   "2024-01-01",
		Items:     []InvoiceItemRequest{{Description: "", Quantity: decimal.Zero, UnitPrice: decimal.NewFromInt(10)}},
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "client_id")
	assert.Contains(t, ve.Fields, "due_date")
	assert.Contains(t, ve.Fields, "items.0.description")
	assert.Contains(t, ve.Fields, "items.0.quantity")
}

func TestGlobalTaxRateOverridesItemTax(t *testing.T) {
	f := newFixture(t)
	c := f.client("Global Tax")
	rate := decimal.NewFromInt(20)

	inv, err := f.invoices.Create(f.ctx, f.admin, CreateInvoiceRequest{
		ClientID:  c.ID,
		IssueDate: "2024-01-15",
		DueDate:   "2024-01-30",
		TaxRate:   &rate,
		Items:     []InvoiceItemRequest{item("Audit", "1", "100", "5")},
	})
	require.NoError(t, err)
	assert.Equal(t, "105.00", inv.SubTotal)
	assert.Equal(t, "21.00", inv.TaxAmount)
	assert.Equal(t, "126.00", inv.TotalAmount)

	updated, err := f.invoices.Update(f.ctx, f.admin, inv.ID, UpdateInvoiceRequest{RemoveTaxRate: true})
	require.NoError(t, err)
	assert.Nil(t, updated.TaxRate)
	assert.Equal(t, "5.00", updated.TaxAmount)
	assert.Equal(t, "105.00", updated.TotalAmount)
}

func TestItemMutationsRecalculateTotals(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "2", "100", "10"))

	added, err := f.items.Add(f.ctx, f.admin, inv.ID, item("Support", "3", "10", "0"))
	require.NoError(t, err)
	assert.Equal(t, 2, added.Item.Position)
	assertTotals(t, added.Invoice, "230.00", "20.00", "250.00")

	updated, err := f.items.Update(f.ctx, f.admin, inv.ID, added.Item.ID, InvoiceItemRequest{
		Description:  "Support",
		Quantity:     decimal.NewFromInt(3),
		UnitPrice:    decimal.NewFromInt(10),
		Discount:     decimal.NewFromInt(5),
		DiscountType: "fixed",
	})
	require.NoError(t, err)
	assert.Equal(t, "25.00", updated.Item.SubTotal)
	assertTotals(t, updated.Invoice, "225.00", "20.00", "245.00")

	dup, err := f.items.Duplicate(f.ctx, f.admin, inv.ID, inv.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Design (Copy)", dup.Item.Description)
	assert.Equal(t, 3, dup.Item.Position)
	assertTotals(t, dup.Invoice, "425.00", "40.00", "465.00")
}

func TestDeletingLastItemZeroesTotals(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Only", "1", "99.99", "10"))
	require.Equal(t, "109.99", inv.TotalAmount)

	resp, err := f.items.Delete(f.ctx, f.admin, inv.ID, inv.Items[0].ID)
	require.NoError(t, err)
	assertTotals(t, resp.Invoice, "0.00", "0.00", "0.00")

	reloaded, err := f.invoices.Get(f.ctx, f.admin, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Items)
	assert.Equal(t, "0.00", reloaded.TotalAmount)
}

func TestBulkItems(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Keep", "1", "10", "0"), item("Drop", "1", "20", "0"), item("Omitted", "1", "30", "0"))
	keep, drop := inv.Items[0].ID, inv.Items[1].ID

	changed := item("Keep", "2", "10", "0")
	changed.ID = &keep
	resp, err := f.items.Bulk(f.ctx, f.admin, inv.ID, BulkItemsRequest{Items: []InvoiceItemRequest{
		changed,
		{ID: &drop, Destroy: true},
		item("New", "1", "5", "0"),
	}})
	require.NoError(t, err)

	require.Len(t, resp.Items, 2)
	assert.Equal(t, "Keep", resp.Items[0].Description)
	assert.Equal(t, "New", resp.Items[1].Description)
	assertTotals(t, resp.Invoice, "25.00", "0.00", "25.00")
}

func TestReorderItems(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("A", "1", "1", "0"), item("B", "1", "1", "0"), item("C", "1", "1", "0"))
	a, b, c := inv.Items[0].ID, inv.Items[1].ID, inv.Items[2].ID

	resp, err := f.items.Reorder(f.ctx, f.admin, inv.ID, ReorderItemsRequest{ItemIDs: []string{c, a, b}})
	require.NoError(t, err)
	require.Len(t, resp.Items, 3)
	assert.Equal(t, []string{"C", "A", "B"}, []string{resp.Items[0].Description, resp.Items[1].Description, resp.Items[2].Description})

	_, err = f.items.Reorder(f.ctx, f.admin, inv.ID, ReorderItemsRequest{ItemIDs: []string{a, b}})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = f.items.Reorder(f.ctx, f.admin, inv.ID, ReorderItemsRequest{ItemIDs: []string{a, a, b}})
	assert.ErrorAs(t, err, &ve)
}

func TestNonDraftInvoiceRejectsEdits(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "1", "100", "10"))

	sent, err := f.invoices.Send(f.ctx, f.admin, inv.ID)
	require.NoError(t, err)
	require.Equal(t, "sent", sent.Status)
	require.NotNil(t, sent.SentAt)

	var re *RuleError
	_, err = f.items.Add(f.ctx, f.admin, inv.ID, item("Late", "1", "1", "0"))
	assert.ErrorAs(t, err, &re)
	_, err = f.items.Update(f.ctx, f.admin, inv.ID, inv.Items[0].ID, item("Changed", "5", "5", "0"))
	assert.ErrorAs(t, err, &re)
	_, err = f.items.Delete(f.ctx, f.admin, inv.ID, inv.Items[0].ID)
	assert.ErrorAs(t, err, &re)
	_, err = f.items.Bulk(f.ctx, f.admin, inv.ID, BulkItemsRequest{Items: []InvoiceItemRequest{item("Replacement", "2", "2", "0")}})
	assert.ErrorAs(t, err, &re)
	_, err = f.items.Duplicate(f.ctx, f.admin, inv.ID, inv.Items[0].ID)
	assert.ErrorAs(t, err, &re)
	_, err = f.items.Reorder(f.ctx, f.admin, inv.ID, ReorderItemsRequest{ItemIDs: []string{inv.Items[0].ID}})
	assert.ErrorAs(t, err, &re)
	notes := "changed"
	_, err = f.invoices.Update(f.ctx, f.admin, inv.ID, UpdateInvoiceRequest{Notes: &notes})
	assert.ErrorAs(t, err, &re)

	after, err := f.invoices.Get(f.ctx, f.admin, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "110.00", after.TotalAmount)
	require.Len(t, after.Items, 1)
	assert.Equal(t, "Design", after.Items[0].Description)
	assert.Empty(t, after.Notes)
}

func TestSendRequiresItems(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin)

	_, err := f.invoices.Send(f.ctx, f.admin, inv.ID)
	var re *RuleError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Message, "without items")
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "1", "100", "0"))

	cancelled, err := f.invoices.Cancel(f.ctx, f.admin, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	var re *RuleError
	_, err = f.invoices.Send(f.ctx, f.admin, inv.ID)
	assert.ErrorAs(t, err, &re, "cancelled is terminal")

	require.NoError(t, f.invoices.Delete(f.ctx, f.admin, inv.ID))
	_, err = f.invoices.Get(f.ctx, f.admin, inv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSentInvoiceCannotBeDeleted(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "1", "100", "0"))
	_, err := f.invoices.Send(f.ctx, f.admin, inv.ID)
	require.NoError(t, err)

	var re *RuleError
	assert.ErrorAs(t, f.invoices.Delete(f.ctx, f.admin, inv.ID), &re)
}

func TestMarkOverdueRequiresPastDueDate(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "1", "100", "0"))

	var re *RuleError
	_, err := f.invoices.MarkOverdue(f.ctx, f.admin, inv.ID)
	require.ErrorAs(t, err, &re, "draft cannot become overdue")

	_, err = f.invoices.Send(f.ctx, f.admin, inv.ID)
	require.NoError(t, err)
	overdue, err := f.invoices.MarkOverdue(f.ctx, f.admin, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "overdue", overdue.Status)
}

func TestPlainUserSeesOnlyOwnInvoices(t *testing.T) {
	f := newFixture(t)
	alice := f.actorWith(policy.RoleUser)
	bob := f.actorWith(policy.RoleUser)

	mine := f.draft(alice, item("Mine", "1", "10", "0"))
	theirs := f.draft(bob, item("Theirs", "1", "10", "0"))

	list, total, err := f.invoices.List(f.ctx, alice, InvoiceFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	_, err = f.invoices.Get(f.ctx, alice, theirs.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	all, total, err := f.invoices.List(f.ctx, f.admin, InvoiceFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)
}

func TestPlainUserCannotEditInvoices(t *testing.T) {
	f := newFixture(t)
	user := f.actorWith(policy.RoleUser)
	inv := f.draft(user, item("Mine", "1", "10", "0"))

	_, err := f.items.Add(f.ctx, user, inv.ID, item("More", "1", "10", "0"))
	assert.ErrorIs(t, err, ErrForbidden)

	manager := f.actorWith(policy.RoleManager)
	resp, err := f.items.Add(f.ctx, manager, inv.ID, item("More", "1", "10", "0"))
	require.NoError(t, err)
	assertTotals(t, resp.Invoice, "20.00", "0.00", "20.00")
}

func TestUnknownInvoiceIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.invoices.Get(f.ctx, f.admin, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.invoices.Get(f.ctx, f.admin, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "1", "100", "0"))

	_, err := f.items.Add(f.ctx, f.admin, inv.ID, item("x", "1", "1", "0"))
	require.NoError(t, err)
	_, err = f.invoices.Send(f.ctx, f.admin, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{EventInvoiceUpdated, EventInvoiceSent}, f.pub.names())
	for _, e := range f.pub.events {
		assert.Equal(t, f.admin.UserID, e.OwnerID)
	}

	// a rejected edit publishes nothing
	_, err = f.items.Add(f.ctx, f.admin, inv.ID, item("y", "1", "1", "0"))
	require.Error(t, err)
	assert.Len(t, f.pub.names(), 2)
}

func TestBuildItemsKeysFieldErrorsByLine(t *testing.T) {
	items, fields, err := buildItems([]InvoiceItemRequest{
		item("Valid", "1", "10", "0"),
		item("", "0", "10", "0"),
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Valid", items[0].Description)
	assert.Contains(t, fields, "items.1.description")
	assert.Contains(t, fields, "items.1.quantity")
	assert.NotContains(t, fields, "items.0.description")
}
