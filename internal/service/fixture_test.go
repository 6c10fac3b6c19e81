package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"backoffice/internal/cache"
	"backoffice/internal/database/dbtest"
	"backoffice/internal/policy"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordedEvent struct {
	Event   string
	OwnerID uuid.UUID
	Data    any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(event string, ownerID uuid.UUID, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Event: event, OwnerID: ownerID, Data: data})
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Event
	}
	return out
}

type fixture struct {
	t   *testing.T
	ctx context.Context
	db  *gorm.DB

	userRepo repository.UserRepository
	pub      *recordingPublisher
	actors   cache.ActorCache

	users    UserService
	roles    RoleService
	clients  ClientService
	invoices InvoiceService
	items    InvoiceItemService
	payments PaymentService
	reports  ReportService
	audit    AuditService
	notifier Notifier

	admin policy.Actor
}

const (
	rootEmail    = "root@example.com"
	rootPassword = "root-password"
)

// newFixture wires every service over a fresh sqlite database and seeds the
// default roles with a super admin.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.NewTestDB(t)
	ctx := context.Background()

	f := &fixture{t: t, ctx: ctx, db: db, pub: &recordingPublisher{}, actors: cache.NewMemoryActorCache(time.Minute)}
	engine := policy.Default()
	tokens := NewTokens("test-secret", time.Hour, 24*time.Hour)

	txManager := repository.NewTransactionManager(db)
	f.userRepo = repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	clientRepo := repository.NewClientRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	itemRepo := repository.NewInvoiceItemRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	f.audit = NewAuditService(repository.NewAuditRepository(db), engine)
	f.notifier = NewNotifier(repository.NewNotificationRepository(db), f.pub)
	f.invoices = NewInvoiceService(invoiceRepo, itemRepo, paymentRepo, clientRepo, txManager, engine, f.audit, f.notifier)
	f.items = NewInvoiceItemService(f.invoices, itemRepo)
	f.payments = NewPaymentService(f.invoices, invoiceRepo, paymentRepo, txManager, engine, f.audit, f.notifier)
	f.clients = NewClientService(clientRepo, invoiceRepo, txManager, engine, f.audit)
	f.roles = NewRoleService(roleRepo, f.userRepo, txManager, engine, f.audit, f.actors)
	f.users = NewUserService(f.userRepo, roleRepo, txManager, engine, f.audit, f.notifier, f.actors, UserServiceConfig{
		Tokens:     tokens,
		RefreshTTL: 24 * time.Hour,
		AppURL:     "http://app.test",
	})
	f.reports = NewReportService(repository.NewReportRepository(db), clientRepo, engine)

	require.NoError(t, f.roles.Seed(ctx, &AdminSeed{Name: "Root", Email: rootEmail, Password: rootPassword}))
	root, err := f.userRepo.FindByEmail(ctx, rootEmail)
	require.NoError(t, err)
	f.admin = f.load(root.ID)
	return f
}

func (f *fixture) load(id uuid.UUID) policy.Actor {
	f.t.Helper()
	actor, err := f.userRepo.LoadActor(f.ctx, id)
	require.NoError(f.t, err)
	return actor
}

// actorWith creates a user holding the given roles and returns it as an actor.
func (f *fixture) actorWith(roles ...string) policy.Actor {
	f.t.Helper()
	name := "user"
	if len(roles) > 0 {
		name = strings.Join(roles, "-")
	}
	u, err := f.users.Create(f.ctx, f.admin, CreateUserRequest{
		Name:     name,
		Email:    name + "-" + uuid.NewString()[:8] + "@example.com",
		Password: "password123",
		Roles:    roles,
	})
	require.NoError(f.t, err)
	return f.load(uuid.MustParse(u.ID))
}

func (f *fixture) client(name string) *ClientResponse {
	f.t.Helper()
	c, err := f.clients.Create(f.ctx, f.admin, ClientRequest{
		Name:  name,
		Email: strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@client.test",
	})
	require.NoError(f.t, err)
	return c
}

func item(desc, qty, price, tax string) InvoiceItemRequest {
	return InvoiceItemRequest{
		Description: desc,
		Quantity:    decimal.RequireFromString(qty),
		UnitPrice:   decimal.RequireFromString(price),
		TaxRate:     decimal.RequireFromString(tax),
	}
}

// draft creates a draft invoice for a fresh client as the given actor.
func (f *fixture) draft(actor policy.Actor, items ...InvoiceItemRequest) *InvoiceResponse {
	f.t.Helper()
	c := f.client("Client " + uuid.NewString()[:6])
	inv, err := f.invoices.Create(f.ctx, actor, CreateInvoiceRequest{
		ClientID:  c.ID,
		IssueDate: "2024-01-15",
		DueDate:   "2024-02-14",
		Items:     items,
	})
	require.NoError(f.t, err)
	return inv
}
