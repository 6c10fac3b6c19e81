package service

import (
	"bytes"
	"encoding/csv"
	"testing"

	"backoffice/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestClientCreateRejectsDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	c := f.client("Acme Corp")

	_, err := f.clients.Create(f.ctx, f.admin, ClientRequest{Name: "Other", Email: c.Email})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestClientDeleteBlockedByInvoices(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "1", "100", "0"))

	var re *RuleError
	require.ErrorAs(t, f.clients.Delete(f.ctx, f.admin, inv.ClientID), &re)

	// soft-deleted invoices still count
	require.NoError(t, f.invoices.Delete(f.ctx, f.admin, inv.ID))
	require.ErrorAs(t, f.clients.Delete(f.ctx, f.admin, inv.ClientID), &re)

	_, err := f.clients.Get(f.ctx, f.admin, inv.ClientID)
	assert.NoError(t, err)

	free := f.client("Free Client")
	require.NoError(t, f.clients.Delete(f.ctx, f.admin, free.ID))
	_, err = f.clients.Get(f.ctx, f.admin, free.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientBulkDeleteSkipsClientsWithInvoices(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "1", "100", "0"))
	a := f.client("Alpha")
	b := f.client("Beta")

	res, err := f.clients.BulkDelete(f.ctx, f.admin, BulkDeleteClientsRequest{IDs: []string{a.ID, b.ID, inv.ClientID}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.Len(t, res.Skipped, 1)
}

func TestClientPermissions(t *testing.T) {
	f := newFixture(t)
	c := f.client("Guarded")
	user := f.actorWith(policy.RoleUser)

	_, err := f.clients.Get(f.ctx, user, c.ID)
	assert.NoError(t, err)
	assert.ErrorIs(t, f.clients.Delete(f.ctx, user, c.ID), ErrForbidden)
	_, err = f.clients.Create(f.ctx, user, ClientRequest{Name: "x", Email: "x@client.test"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestClientStatsAndInvoices(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "1", "100", "0"))
	f.client("Idle")

	got, err := f.clients.Get(f.ctx, f.admin, inv.ClientID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.InvoiceCount)
	assert.Equal(t, "100.00", got.TotalRevenue)

	invoices, err := f.clients.Invoices(f.ctx, f.admin, inv.ClientID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, inv.ID, invoices[0].ID)

	stats, err := f.clients.Stats(f.ctx, f.admin)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalClients)
	assert.EqualValues(t, 2, stats.ActiveClients)
}

func TestClientNotes(t *testing.T) {
	f := newFixture(t)
	c := f.client("Noted")

	note, err := f.clients.AddNote(f.ctx, f.admin, c.ID, ClientNoteRequest{Note: "Called about renewal", Type: "call", IsImportant: true})
	require.NoError(t, err)
	assert.Equal(t, "call", note.Type)

	notes, err := f.clients.Notes(f.ctx, f.admin, c.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Called about renewal", notes[0].Note)
}

func TestClientCSVImportExport(t *testing.T) {
	f := newFixture(t)
	f.client("Existing")

	data := "name,email,phone,company,tax_number,address\n" +
		"Acme,acme@import.test,555-0100,Acme Inc,TX1,1 Road\n" +
		"Bad,not-an-email,,,,\n" +
		",missing@import.test,,,,\n" +
		"Dup,acme@import.test,,,,\n" +
		"Existing again,existing@client.test,,,,\n"
	res, err := f.clients.Import(f.ctx, f.admin, "clients.csv", []byte(data))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Len(t, res.Errors, 4)

	file, err := f.clients.Export(f.ctx, f.admin, ExportCSV, "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	assert.Contains(t, file.Filename, ".csv")

	body := bytes.TrimPrefix(file.Data, utf8BOM)
	rows, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportHeader, rows[0])

	emails := []string{rows[1][1], rows[2][1]}
	assert.ElementsMatch(t, []string{"acme@import.test", "existing@client.test"}, emails)
}

func TestClientXLSXExport(t *testing.T) {
	f := newFixture(t)
	f.client("Sheet Client")

	file, err := f.clients.Export(f.ctx, f.admin, ExportXLSX, "")
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(file.Data))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Clients")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Sheet Client", rows[1][0])

	_, err = f.clients.Export(f.ctx, f.admin, "pdf", "")
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestClientImportRejectsUnknownExtension(t *testing.T) {
	f := newFixture(t)

	_, err := f.clients.Import(f.ctx, f.admin, "clients.json", []byte("[]"))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "file")
}
