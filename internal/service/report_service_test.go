package service

import (
	"bytes"
	"encoding/csv"
	"testing"

	"backoffice/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardTotals(t *testing.T) {
	f := newFixture(t)
	user := f.actorWith(policy.RoleUser)

	paid := f.draft(f.admin, item("Paid", "1", "100", "0"))
	_, err := f.invoices.Send(f.ctx, f.admin, paid.ID)
	require.NoError(t, err)
	_, err = f.payments.Record(f.ctx, f.admin, paid.ID, pay("100"))
	require.NoError(t, err)

	f.draft(f.admin, item("Pending", "1", "40", "0"))
	f.draft(user, item("Mine", "1", "7", "0"))

	all, err := f.reports.Dashboard(f.ctx, f.admin)
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.TotalInvoices)
	assert.Equal(t, "100.00", all.PaidRevenue)
	assert.Equal(t, "47.00", all.PendingAmount)
	assert.NotEmpty(t, all.TopClients)

	_, err = f.reports.Dashboard(f.ctx, user)
	assert.ErrorIs(t, err, ErrForbidden, "plain users have no report.view")

	_, err = f.roles.SyncPermissions(f.ctx, f.admin, f.role(policy.RoleUser).ID, SyncPermissionsRequest{
		Permissions: []string{"invoice.view", "invoice.create", "client.view", "report.view"},
	})
	require.NoError(t, err)
	own, err := f.reports.Dashboard(f.ctx, f.load(user.UserID))
	require.NoError(t, err)
	assert.EqualValues(t, 1, own.TotalInvoices)
	assert.Equal(t, "7.00", own.PendingAmount)
	assert.Empty(t, own.TopClients)

	manager := f.actorWith(policy.RoleManager)
	mgr, err := f.reports.Dashboard(f.ctx, manager)
	require.NoError(t, err)
	assert.EqualValues(t, 3, mgr.TotalInvoices)
}

func TestSalesReportAndExport(t *testing.T) {
	f := newFixture(t)
	f.draft(f.admin, item("A", "1", "100", "0"))
	f.draft(f.admin, item("B", "1", "50", "0"))
	cancelled := f.draft(f.admin, item("C", "1", "999", "0"))
	_, err := f.invoices.Cancel(f.ctx, f.admin, cancelled.ID)
	require.NoError(t, err)

	period := ReportRange{From: "2024-01-01", To: "2024-01-31"}
	report, err := f.reports.Sales(f.ctx, f.admin, period)
	require.NoError(t, err)
	assert.EqualValues(t, 2, report.Count)
	assert.Equal(t, "150.00", report.Total)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, "2024-01-15", report.Rows[0].Date)
	assert.Equal(t, "75.00", report.Rows[0].Average)

	byClient, err := f.reports.Clients(f.ctx, f.admin, period)
	require.NoError(t, err)
	require.Len(t, byClient, 2)
	assert.Equal(t, "100.00", byClient[0].Total)

	manager := f.actorWith(policy.RoleManager)
	_, err = f.reports.ExportSales(f.ctx, manager, period)
	assert.ErrorIs(t, err, ErrForbidden)

	accountant := f.actorWith(policy.RoleAccountant)
	file, err := f.reports.ExportSales(f.ctx, accountant, period)
	require.NoError(t, err)
	assert.Equal(t, "sales_2024-01-01_2024-01-31.csv", file.Filename)
	rows, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(file.Data, utf8BOM))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Total", "2", "150.00", ""}, rows[2])
}

func TestReportRangeValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.reports.Sales(f.ctx, f.admin, ReportRange{From: "last week"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "from")
}
