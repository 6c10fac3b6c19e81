package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/policy"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type ClientRequest struct {
	Name           string           `json:"name" binding:"required,max=255"`
	ContactPerson  string           `json:"contact_person" binding:"max=255"`
	Email          string           `json:"email" binding:"required,email,max=255"`
	SecondaryEmail string           `json:"secondary_email" binding:"omitempty,email,max=255"`
	Phone          string           `json:"phone" binding:"max=50"`
	SecondaryPhone string           `json:"secondary_phone" binding:"max=50"`
	Address        string           `json:"address"`
	StreetAddress  string           `json:"street_address" binding:"max=255"`
	City           string           `json:"city" binding:"max=100"`
	State          string           `json:"state" binding:"max=100"`
	PostalCode     string           `json:"postal_code" binding:"max=20"`
	Country        string           `json:"country" binding:"omitempty,len=2"`
	TaxNumber      string           `json:"tax_number" binding:"max=50"`
	CompanyName    string           `json:"company_name" binding:"max=255"`
	Website        string           `json:"website" binding:"omitempty,url,max=255"`
	Notes          string           `json:"notes"`
	BusinessType   string           `json:"business_type" binding:"max=100"`
	Industry       string           `json:"industry" binding:"max=100"`
	EmployeeCount  *int             `json:"employee_count" binding:"omitempty,min=0"`
	Currency       string           `json:"currency" binding:"omitempty,len=3"`
	CreditLimit    *decimal.Decimal `json:"credit_limit" swaggertype:"string"`
	PaymentTerms   string           `json:"payment_terms" binding:"omitempty,oneof=net_7 net_15 net_30 net_45 net_60 due_on_receipt"`
	Status         string           `json:"status" binding:"omitempty,oneof=active inactive suspended lead"`
	Priority       string           `json:"priority" binding:"omitempty,oneof=low medium high vip"`
	Source         string           `json:"source" binding:"max=100"`
}

type ClientFilter struct {
	Search      string
	Status      string
	HasInvoices *bool
	SortBy      string
	SortDir     string
	Page        int
	Limit       int
}

type ClientResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	ContactPerson   string  `json:"contact_person"`
	Email           string  `json:"email"`
	SecondaryEmail  string  `json:"secondary_email"`
	Phone           string  `json:"phone"`
	SecondaryPhone  string  `json:"secondary_phone"`
	Address         string  `json:"address"`
	StreetAddress   string  `json:"street_address"`
	City            string  `json:"city"`
	State           string  `json:"state"`
	PostalCode      string  `json:"postal_code"`
	Country         string  `json:"country"`
	TaxNumber       string  `json:"tax_number"`
	CompanyName     string  `json:"company_name"`
	Website         string  `json:"website"`
	Notes           string  `json:"notes"`
	BusinessType    string  `json:"business_type"`
	Industry        string  `json:"industry"`
	EmployeeCount   *int    `json:"employee_count"`
	Currency        string  `json:"currency"`
	CreditLimit     string  `json:"credit_limit"`
	PaymentTerms    string  `json:"payment_terms"`
	Status          string  `json:"status"`
	Priority        string  `json:"priority"`
	Source          string  `json:"source"`
	FirstContactAt  *string `json:"first_contact_at"`
	LastContactedAt *string `json:"last_contacted_at"`
	InvoiceCount    int64   `json:"invoice_count"`
	TotalRevenue    string  `json:"total_revenue"`
	PaidRevenue     string  `json:"paid_revenue,omitempty"`
	Outstanding     string  `json:"outstanding,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type ClientSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	CompanyName  string `json:"company_name,omitempty"`
	InvoiceCount int64  `json:"invoice_count,omitempty"`
	TotalRevenue string `json:"total_revenue,omitempty"`
}

type ClientStatsResponse struct {
	TotalClients  int64           `json:"total_clients"`
	ActiveClients int64           `json:"active_clients"`
	NewThisMonth  int64           `json:"new_this_month"`
	TopClients    []ClientSummary `json:"top_clients"`
}

type BulkDeleteClientsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

type BulkDeleteResponse struct {
	Deleted int      `json:"deleted"`
	Skipped []string `json:"skipped"`
}

type ClientNoteRequest struct {
	Note        string         `json:"note" binding:"required,max=5000"`
	Type        string         `json:"type" binding:"omitempty,oneof=general call meeting email"`
	IsImportant bool           `json:"is_important"`
	Metadata    map[string]any `json:"metadata"`
}

type ClientNoteResponse struct {
	ID          string         `json:"id"`
	ClientID    string         `json:"client_id"`
	UserID      *string        `json:"user_id"`
	Note        string         `json:"note"`
	Type        string         `json:"type"`
	IsImportant bool           `json:"is_important"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   string         `json:"created_at"`
}

// --- Interface ---

type ClientService interface {
	List(ctx context.Context, actor policy.Actor, f ClientFilter) ([]ClientResponse, int64, error)
	Create(ctx context.Context, actor policy.Actor, req ClientRequest) (*ClientResponse, error)
	Get(ctx context.Context, actor policy.Actor, id string) (*ClientResponse, error)
	Update(ctx context.Context, actor policy.Actor, id string, req ClientRequest) (*ClientResponse, error)
	Delete(ctx context.Context, actor policy.Actor, id string) error
	Stats(ctx context.Context, actor policy.Actor) (*ClientStatsResponse, error)
	Search(ctx context.Context, actor policy.Actor, q string) ([]ClientSummary, error)
	Invoices(ctx context.Context, actor policy.Actor, id string) ([]InvoiceResponse, error)
	BulkDelete(ctx context.Context, actor policy.Actor, req BulkDeleteClientsRequest) (*BulkDeleteResponse, error)
	Export(ctx context.Context, actor policy.Actor, format, search string) (*ExportFile, error)
	Import(ctx context.Context, actor policy.Actor, filename string, data []byte) (*ImportResult, error)
	Notes(ctx context.Context, actor policy.Actor, id string) ([]ClientNoteResponse, error)
	AddNote(ctx context.Context, actor policy.Actor, id string, req ClientNoteRequest) (*ClientNoteResponse, error)
}

type clientService struct {
	clientRepo  repository.ClientRepository
	invoiceRepo repository.InvoiceRepository
	txManager   repository.TransactionManager
	engine      *policy.Engine
	audit       AuditService
	now         func() time.Time
}

func NewClientService(
	clientRepo repository.ClientRepository,
	invoiceRepo repository.InvoiceRepository,
	txManager repository.TransactionManager,
	engine *policy.Engine,
	audit AuditService,
) ClientService {
	return &clientService{
		clientRepo:  clientRepo,
		invoiceRepo: invoiceRepo,
		txManager:   txManager,
		engine:      engine,
		audit:       audit,
		now:         time.Now,
	}
}

// --- Implementation ---

func (s *clientService) List(ctx context.Context, actor policy.Actor, f ClientFilter) ([]ClientResponse, int64, error) {
	if err := authorize(s.engine, policy.ClientViewAny, policy.Request{Actor: actor}); err != nil {
		return nil, 0, err
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	clients, total, err := s.clientRepo.List(ctx, repository.ClientListFilter{
		Search:      strings.TrimSpace(f.Search),
		Status:      f.Status,
		HasInvoices: f.HasInvoices,
		SortBy:      f.SortBy,
		SortDesc:    strings.EqualFold(f.SortDir, "desc"),
		Page:        f.Page,
		Limit:       f.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch clients: %w", err)
	}
	stats, err := s.clientRepo.InvoiceStats(ctx, clientIDs(clients))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch client invoice stats: %w", err)
	}

	res := make([]ClientResponse, 0, len(clients))
	for i := range clients {
		st := stats[clients[i].ID]
		r := toClientResponse(&clients[i])
		r.InvoiceCount = st.InvoiceCount
		r.TotalRevenue = money(st.TotalRevenue)
		res = append(res, r)
	}
	return res, total, nil
}

func (s *clientService) Create(ctx context.Context, actor policy.Actor, req ClientRequest) (*ClientResponse, error) {
	if err := authorize(s.engine, policy.ClientCreate, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	client := &model.Client{}
	applyClient(client, req)

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		taken, err := s.clientRepo.EmailTaken(txCtx, client.Email, nil)
		if err != nil {
			return fmt.Errorf("failed to check client email: %w", err)
		}
		if taken {
			return fmt.Errorf("client email %s: %w", client.Email, ErrConflict)
		}
		now := s.now()
		client.FirstContactAt = &now
		if err := s.clientRepo.Create(txCtx, client); err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionClientCreated,
			SubjectType: "client",
			SubjectID:   client.ID,
			Description: "Client " + client.Name + " created",
			Properties:  map[string]any{"email": client.Email},
		})
	})
	if err != nil {
		return nil, err
	}
	resp := toClientResponse(client)
	resp.TotalRevenue = money(decimal.Zero)
	return &resp, nil
}

func (s *clientService) Get(ctx context.Context, actor policy.Actor, id string) (*ClientResponse, error) {
	if err := authorize(s.engine, policy.ClientView, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	clientID, err := parseID("client id", id)
	if err != nil {
		return nil, err
	}
	client, err := s.clientRepo.FindByID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	stats, err := s.clientRepo.InvoiceStats(ctx, []uuid.UUID{clientID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client invoice stats: %w", err)
	}
	st := stats[clientID]
	resp := toClientResponse(client)
	resp.InvoiceCount = st.InvoiceCount
	resp.TotalRevenue = money(st.TotalRevenue)
	resp.PaidRevenue = money(st.PaidRevenue)
	resp.Outstanding = money(st.Outstanding)
	return &resp, nil
}

func (s *clientService) Update(ctx context.Context, actor policy.Actor, id string, req ClientRequest) (*ClientResponse, error) {
	if err := authorize(s.engine, policy.ClientUpdate, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	clientID, err := parseID("client id", id)
	if err != nil {
		return nil, err
	}

	var client *model.Client
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		client, err = s.clientRepo.FindByID(txCtx, clientID)
		if err != nil {
			return fmt.Errorf("client: %w", err)
		}
		taken, err := s.clientRepo.EmailTaken(txCtx, strings.TrimSpace(req.Email), &clientID)
		if err != nil {
			return fmt.Errorf("failed to check client email: %w", err)
		}
		if taken {
			return fmt.Errorf("client email %s: %w", req.Email, ErrConflict)
		}
		applyClient(client, req)
		if err := s.clientRepo.Update(txCtx, client); err != nil {
			return fmt.Errorf("failed to update client: %w", err)
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionClientUpdated,
			SubjectType: "client",
			SubjectID:   client.ID,
			Description: "Client " + client.Name + " updated",
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, id)
}

// Delete refuses while any invoice, soft-deleted ones included, references the client.
func (s *clientService) Delete(ctx context.Context, actor policy.Actor, id string) error {
	if err := authorize(s.engine, policy.ClientDelete, policy.Request{Actor: actor}); err != nil {
		return err
	}
	clientID, err := parseID("client id", id)
	if err != nil {
		return err
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		client, err := s.clientRepo.FindByID(txCtx, clientID)
		if err != nil {
			return fmt.Errorf("client: %w", err)
		}
		return s.deleteClient(txCtx, actor, client)
	})
}

func (s *clientService) deleteClient(ctx context.Context, actor policy.Actor, client *model.Client) error {
	n, err := s.clientRepo.CountInvoices(ctx, client.ID)
	if err != nil {
		return fmt.Errorf("failed to count client invoices: %w", err)
	}
	if n > 0 {
		return ruleErr("client %s has %d invoice(s) and cannot be deleted", client.Name, n)
	}
	if err := s.clientRepo.Delete(ctx, client.ID); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return s.audit.Record(ctx, &actor, Entry{
		Action:      model.ActionClientDeleted,
		SubjectType: "client",
		SubjectID:   client.ID,
		Description: "Client " + client.Name + " deleted",
	})
}

func (s *clientService) Stats(ctx context.Context, actor policy.Actor) (*ClientStatsResponse, error) {
	if err := authorize(s.engine, policy.ClientViewAny, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	var out ClientStatsResponse
	var err error
	if out.TotalClients, err = s.clientRepo.Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count clients: %w", err)
	}
	if out.ActiveClients, err = s.clientRepo.CountWithInvoices(ctx); err != nil {
		return nil, fmt.Errorf("failed to count active clients: %w", err)
	}
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	if out.NewThisMonth, err = s.clientRepo.CountCreatedSince(ctx, monthStart); err != nil {
		return nil, fmt.Errorf("failed to count new clients: %w", err)
	}
	top, err := s.clientRepo.TopByRevenue(ctx, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to rank clients: %w", err)
	}
	out.TopClients = make([]ClientSummary, 0, len(top))
	for _, t := range top {
		out.TopClients = append(out.TopClients, ClientSummary{
			ID:           t.ClientID.String(),
			Name:         t.Name,
			InvoiceCount: t.InvoiceCount,
			TotalRevenue: money(t.Revenue),
		})
	}
	return &out, nil
}

// Search is the autocomplete lookup; queries under two characters return nothing.
func (s *clientService) Search(ctx context.Context, actor policy.Actor, q string) ([]ClientSummary, error) {
	if err := authorize(s.engine, policy.ClientViewAny, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	q = strings.TrimSpace(q)
	if len([]rune(q)) < 2 {
		return []ClientSummary{}, nil
	}
	clients, err := s.clientRepo.Search(ctx, q, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to search clients: %w", err)
	}
	out := make([]ClientSummary, 0, len(clients))
	for _, c := range clients {
		out = append(out, ClientSummary{ID: c.ID.String(), Name: c.Name, Email: c.Email, CompanyName: c.CompanyName})
	}
	return out, nil
}

func (s *clientService) Invoices(ctx context.Context, actor policy.Actor, id string) ([]InvoiceResponse, error) {
	if err := authorize(s.engine, policy.ClientView, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	if err := authorize(s.engine, policy.InvoiceViewAny, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	clientID, err := parseID("client id", id)
	if err != nil {
		return nil, err
	}
	if _, err := s.clientRepo.FindByID(ctx, clientID); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	invoices, err := s.invoiceRepo.ListByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client invoices: %w", err)
	}
	if actor.OwnInvoicesOnly() {
		own := invoices[:0]
		for _, inv := range invoices {
			if inv.UserID == actor.UserID {
				own = append(own, inv)
			}
		}
		invoices = own
	}
	ids := make([]uuid.UUID, len(invoices))
	for i := range invoices {
		ids[i] = invoices[i].ID
	}
	paid, err := s.invoiceRepo.PaidAmounts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch paid amounts: %w", err)
	}
	out := make([]InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		out = append(out, toInvoiceResponse(&invoices[i], paid[invoices[i].ID]))
	}
	return out, nil
}

// BulkDelete removes what it can and reports the clients it skipped because
// they still have invoices.
func (s *clientService) BulkDelete(ctx context.Context, actor policy.Actor, req BulkDeleteClientsRequest) (*BulkDeleteResponse, error) {
	if err := authorize(s.engine, policy.ClientBulkDelete, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, invalid("ids", "must contain valid ids")
		}
		ids = append(ids, id)
	}

	out := &BulkDeleteResponse{Skipped: []string{}}
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		clients, err := s.clientRepo.FindByIDs(txCtx, ids)
		if err != nil {
			return fmt.Errorf("failed to load clients: %w", err)
		}
		for i := range clients {
			n, err := s.clientRepo.CountInvoices(txCtx, clients[i].ID)
			if err != nil {
				return fmt.Errorf("failed to count client invoices: %w", err)
			}
			if n > 0 {
				out.Skipped = append(out.Skipped, clients[i].Name)
				continue
			}
			if err := s.deleteClient(txCtx, actor, &clients[i]); err != nil {
				return err
			}
			out.Deleted++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *clientService) Notes(ctx context.Context, actor policy.Actor, id string) ([]ClientNoteResponse, error) {
	if err := authorize(s.engine, policy.ClientViewNotes, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	clientID, err := parseID("client id", id)
	if err != nil {
		return nil, err
	}
	if _, err := s.clientRepo.FindByID(ctx, clientID); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	notes, err := s.clientRepo.ListNotes(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client notes: %w", err)
	}
	out := make([]ClientNoteResponse, 0, len(notes))
	for i := range notes {
		out = append(out, toNoteResponse(&notes[i]))
	}
	return out, nil
}

func (s *clientService) AddNote(ctx context.Context, actor policy.Actor, id string, req ClientNoteRequest) (*ClientNoteResponse, error) {
	if err := authorize(s.engine, policy.ClientManageNotes, policy.Request{Actor: actor}); err != nil {
		return nil, err
	}
	clientID, err := parseID("client id", id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Note) == "" {
		return nil, invalid("note", "is required")
	}
	noteType := req.Type
	if noteType == "" {
		noteType = "general"
	}
	uid := actor.UserID
	note := &model.ClientNote{
		ClientID:    clientID,
		UserID:      &uid,
		Note:        strings.TrimSpace(req.Note),
		Type:        noteType,
		IsImportant: req.IsImportant,
		Metadata:    req.Metadata,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		client, err := s.clientRepo.FindByID(txCtx, clientID)
		if err != nil {
			return fmt.Errorf("client: %w", err)
		}
		if err := s.clientRepo.CreateNote(txCtx, note); err != nil {
			return fmt.Errorf("failed to add client note: %w", err)
		}
		now := s.now()
		client.LastContactedAt = &now
		if err := s.clientRepo.Update(txCtx, client); err != nil {
			return fmt.Errorf("failed to update client: %w", err)
		}
		return s.audit.Record(txCtx, &actor, Entry{
			Action:      model.ActionClientNoteAdded,
			SubjectType: "client",
			SubjectID:   client.ID,
			Description: "Note added to client " + client.Name,
			Properties:  map[string]any{"type": noteType, "important": req.IsImportant},
		})
	})
	if err != nil {
		return nil, err
	}
	resp := toNoteResponse(note)
	return &resp, nil
}

// --- Helpers ---

func applyClient(c *model.Client, req ClientRequest) {
	c.Name = strings.TrimSpace(req.Name)
	c.ContactPerson = req.ContactPerson
	c.Email = strings.TrimSpace(req.Email)
	c.SecondaryEmail = req.SecondaryEmail
	c.Phone = req.Phone
	c.SecondaryPhone = req.SecondaryPhone
	c.Address = req.Address
	c.StreetAddress = req.StreetAddress
	c.City = req.City
	c.State = req.State
	c.PostalCode = req.PostalCode
	c.TaxNumber = req.TaxNumber
	c.CompanyName = req.CompanyName
	c.Website = req.Website
	c.Notes = req.Notes
	c.BusinessType = req.BusinessType
	c.Industry = req.Industry
	c.EmployeeCount = req.EmployeeCount
	c.Source = req.Source

	c.Country = orDefault(strings.ToUpper(req.Country), "US")
	c.Currency = orDefault(strings.ToUpper(req.Currency), "USD")
	c.PaymentTerms = orDefault(req.PaymentTerms, model.TermsNet30)
	c.Status = orDefault(req.Status, model.ClientStatusActive)
	c.Priority = orDefault(req.Priority, model.PriorityMedium)
	c.CreditLimit = decimal.Zero
	if req.CreditLimit != nil {
		c.CreditLimit = req.CreditLimit.Round(2)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func clientIDs(clients []model.Client) []uuid.UUID {
	ids := make([]uuid.UUID, len(clients))
	for i := range clients {
		ids[i] = clients[i].ID
	}
	return ids
}

func toClientResponse(c *model.Client) ClientResponse {
	return ClientResponse{
		ID:              c.ID.String(),
		Name:            c.Name,
		ContactPerson:   c.ContactPerson,
		Email:           c.Email,
		SecondaryEmail:  c.SecondaryEmail,
		Phone:           c.Phone,
		SecondaryPhone:  c.SecondaryPhone,
		Address:         c.Address,
		StreetAddress:   c.StreetAddress,
		City:            c.City,
		State:           c.State,
		PostalCode:      c.PostalCode,
		Country:         c.Country,
		TaxNumber:       c.TaxNumber,
		CompanyName:     c.CompanyName,
		Website:         c.Website,
		Notes:           c.Notes,
		BusinessType:    c.BusinessType,
		Industry:        c.Industry,
		EmployeeCount:   c.EmployeeCount,
		Currency:        c.Currency,
		CreditLimit:     money(c.CreditLimit),
		PaymentTerms:    c.PaymentTerms,
		Status:          c.Status,
		Priority:        c.Priority,
		Source:          c.Source,
		FirstContactAt:  formatTime(c.FirstContactAt),
		LastContactedAt: formatTime(c.LastContactedAt),
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       c.UpdatedAt.Format(time.RFC3339),
	}
}

func toNoteResponse(n *model.ClientNote) ClientNoteResponse {
	r := ClientNoteResponse{
		ID:          n.ID.String(),
		ClientID:    n.ClientID.String(),
		Note:        n.Note,
		Type:        n.Type,
		IsImportant: n.IsImportant,
		Metadata:    n.Metadata,
		CreatedAt:   n.CreatedAt.Format(time.RFC3339),
	}
	if n.UserID != nil {
		s := n.UserID.String()
		r.UserID = &s
	}
	return r
}
