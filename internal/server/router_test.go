package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backoffice/internal/database/dbtest"
	"backoffice/internal/middleware"
	"backoffice/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status     string            `json:"status"`
	StatusCode int               `json:"status_code"`
	Data       json.RawMessage   `json:"data"`
	Error      string            `json:"error"`
	Errors     map[string]string `json:"errors"`
	Meta       *struct {
		Total int64 `json:"total"`
	} `json:"meta"`
}

type testServer struct {
	t     *testing.T
	app   *App
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := dbtest.NewTestDB(t)
	app := New(db, Options{
		JWTSecret:     "test-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		InvitationTTL: 24 * time.Hour,
		AppURL:        "http://app.test",
	})
	require.NoError(t, app.Roles.Seed(context.Background(), &service.AdminSeed{
		Name:     "Root",
		Email:    "root@example.com",
		Password: "root-password",
	}))

	s := &testServer{t: t, app: app}
	rec, env := s.do(http.MethodPost, "/api/login", map[string]string{"email": "root@example.com", "password": "root-password"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tokens service.TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	s.token = tokens.Token
	return s
}

func (s *testServer) do(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.app.Router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec, _ := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
}

func TestLoginSetsCookies(t *testing.T) {
	s := newTestServer(t)
	s.token = ""

	rec, _ := s.do(http.MethodPost, "/api/login", map[string]string{"email": "root@example.com", "password": "root-password"})
	require.Equal(t, http.StatusOK, rec.Code)
	names := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		names[c.Name] = c.HttpOnly
	}
	assert.True(t, names[middleware.AccessCookie])
	assert.True(t, names[middleware.RefreshCookie])

	rec, env := s.do(http.MethodPost, "/api/login", map[string]string{"email": "root@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "error", env.Status)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	s.token = ""
	rec, _ := s.do(http.MethodGet, "/api/invoices", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s.token = "garbage"
	rec, _ = s.do(http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/clients", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.app.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := s.do(http.MethodPost, "/api/clients", map[string]string{"name": "No Email"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, env.Errors, "email")

	rec, _ = s.do(http.MethodGet, "/api/invoices/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(http.MethodPost, "/api/clients", map[string]string{"name": "A", "email": "a@client.test"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = s.do(http.MethodPost, "/api/clients", map[string]string{"name": "B", "email": "a@client.test"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInvoiceLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodPost, "/api/clients", map[string]string{"name": "Acme", "email": "billing@acme.test"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	client := decode[service.ClientResponse](t, env)

	rec, env = s.do(http.MethodPost, "/api/invoices", map[string]any{
		"client_id":  client.ID,
		"issue_date": "2024-01-15",
		"due_date":   "2024-02-14",
		"items": []map[string]string{
			{"description": "Design", "quantity": "2", "unit_price": "100", "tax_rate": "10"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decode[service.InvoiceResponse](t, env)
	assert.Equal(t, "220.00", inv.TotalAmount)

	rec, env = s.do(http.MethodPost, "/api/invoices/"+inv.ID+"/items", map[string]string{
		"description": "Hosting", "quantity": "1", "unit_price": "30", "tax_rate": "0",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decode[service.ItemMutationResponse](t, env)
	assert.Equal(t, "250.00", added.Invoice.TotalAmount)

	rec, env = s.do(http.MethodPut, "/api/invoices/"+inv.ID+"/items/reorder", map[string]any{
		"item_ids": []string{added.Item.ID, inv.Items[0].ID},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reordered := decode[service.ItemMutationResponse](t, env)
	assert.Equal(t, "Hosting", reordered.Items[0].Description)

	rec, _ = s.do(http.MethodPost, "/api/invoices/"+inv.ID+"/send", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = s.do(http.MethodDelete, "/api/invoices/"+inv.ID+"/items/"+added.Item.ID, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, env.Error, "sent")

	rec, env = s.do(http.MethodPost, "/api/invoices/"+inv.ID+"/payments", map[string]string{
		"amount": "250", "payment_method": "card", "payment_date": "2024-02-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	paid := decode[service.PaymentResultResponse](t, env)
	assert.Equal(t, "paid", paid.Status)

	rec, env = s.do(http.MethodGet, "/api/invoices?status=paid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Meta)
	assert.EqualValues(t, 1, env.Meta.Total)

	rec, _ = s.do(http.MethodDelete, "/api/clients/"+client.ID, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRolesAndUsersOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodPost, "/api/users", map[string]any{
		"name": "Manny", "email": "manny@example.com", "password": "password123", "roles": []string{"manager"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	manager := decode[service.UserResponse](t, env)

	rec, _ = s.do(http.MethodDelete, "/api/users/"+manager.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[service.UserResponse](t, env)
	rec, _ = s.do(http.MethodDelete, "/api/users/"+me.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = s.do(http.MethodGet, "/api/roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	roles := decode[[]service.RoleResponse](t, env)
	assert.Len(t, roles, 5)

	rec, _ = s.do(http.MethodGet, "/api/audit-logs?subject_type=user", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestManagerForbiddenFromAuditLog(t *testing.T) {
	s := newTestServer(t)
	rec, _ := s.do(http.MethodPost, "/api/users", map[string]any{
		"name": "Manny", "email": "manny@example.com", "password": "password123", "roles": []string{"manager"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	s.token = ""
	rec, env := s.do(http.MethodPost, "/api/login", map[string]string{"email": "manny@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, rec.Code)
	s.token = decode[service.TokenResponse](t, env).Token

	rec, _ = s.do(http.MethodGet, "/api/audit-logs", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = s.do(http.MethodGet, "/api/invoices", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
