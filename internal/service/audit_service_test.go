package service

import (
	"encoding/json"
	"testing"

	"backoffice/internal/model"
	"backoffice/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceActivityIsAudited(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "1", "100", "0"))
	_, err := f.items.Add(f.ctx, f.admin, inv.ID, item("Extra", "1", "20", "0"))
	require.NoError(t, err)

	logs, total, err := f.audit.List(f.ctx, f.admin, AuditFilter{SubjectType: "invoice", SubjectID: inv.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionInvoiceCreated, logs[0].Action)
	assert.Equal(t, "Root", logs[0].UserName)

	items, _, err := f.audit.List(f.ctx, f.admin, AuditFilter{Action: model.ActionItemCreated})
	require.NoError(t, err)
	require.Len(t, items, 1)
	var props map[string]any
	require.NoError(t, json.Unmarshal(items[0].Properties, &props))
	assert.Equal(t, inv.ID, props["invoice_id"])
	assert.Equal(t, "120.00", props["total_amount"])
}

func TestRejectedEditLeavesNoAuditTrail(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(f.admin, item("Design", "1", "100", "0"))
	_, err := f.invoices.Send(f.ctx, f.admin, inv.ID)
	require.NoError(t, err)

	_, err = f.items.Add(f.ctx, f.admin, inv.ID, item("Late", "1", "1", "0"))
	require.Error(t, err)

	logs, _, err := f.audit.List(f.ctx, f.admin, AuditFilter{Action: model.ActionItemCreated})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestAuditLogRequiresPermission(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.audit.List(f.ctx, f.actorWith(policy.RoleManager), AuditFilter{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, _, err = f.audit.List(f.ctx, f.actorWith(policy.RoleAdmin), AuditFilter{})
	assert.NoError(t, err)
}
