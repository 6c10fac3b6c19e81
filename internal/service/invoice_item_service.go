package service

import (
	"context"
	"errors"
	"fmt"

	"backoffice/internal/model"
	"backoffice/internal/policy"
	"backoffice/internal/repository"

	"github.com/google/uuid"
)

type ItemMutationResponse struct {
	Item    *InvoiceItemResponse  `json:"item,omitempty"`
	Items   []InvoiceItemResponse `json:"items,omitempty"`
	Invoice InvoiceTotalsResponse `json:"invoice"`
}

type BulkItemsRequest struct {
	Items []InvoiceItemRequest `json:"items" binding:"required"`
}

type ReorderItemsRequest struct {
	ItemIDs []string `json:"item_ids" binding:"required,min=1"`
}

type InvoiceItemService interface {
	List(ctx context.Context, actor policy.Actor, invoiceID string) ([]InvoiceItemResponse, error)
	Get(ctx context.Context, actor policy.Actor, invoiceID, itemID string) (*InvoiceItemResponse, error)
	Add(ctx context.Context, actor policy.Actor, invoiceID string, req InvoiceItemRequest) (*ItemMutationResponse, error)
	Update(ctx context.Context, actor policy.Actor, invoiceID, itemID string, req InvoiceItemRequest) (*ItemMutationResponse, error)
	Delete(ctx context.Context, actor policy.Actor, invoiceID, itemID string) (*ItemMutationResponse, error)
	Bulk(ctx context.Context, actor policy.Actor, invoiceID string, req BulkItemsRequest) (*ItemMutationResponse, error)
	Duplicate(ctx context.Context, actor policy.Actor, invoiceID, itemID string) (*ItemMutationResponse, error)
	Reorder(ctx context.Context, actor policy.Actor, invoiceID string, req ReorderItemsRequest) (*ItemMutationResponse, error)
}

type invoiceItemService struct {
	invoices InvoiceService
	itemRepo repository.InvoiceItemRepository
}

func NewInvoiceItemService(invoices InvoiceService, itemRepo repository.InvoiceItemRepository) InvoiceItemService {
	return &invoiceItemService{invoices: invoices, itemRepo: itemRepo}
}

func (s *invoiceItemService) List(ctx context.Context, actor policy.Actor, invoiceID string) ([]InvoiceItemResponse, error) {
	id, err := parseID("invoice id", invoiceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.invoices.Authorized(ctx, actor, policy.InvoiceView, id); err != nil {
		return nil, err
	}
	items, err := s.itemRepo.ListByInvoice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch invoice items: %w", err)
	}
	out := make([]InvoiceItemResponse, 0, len(items))
	for i := range items {
		out = append(out, toItemResponse(&items[i]))
	}
	return out, nil
}

func (s *invoiceItemService) Get(ctx context.Context, actor policy.Actor, invoiceID, itemID string) (*InvoiceItemResponse, error) {
	id, err := parseID("invoice id", invoiceID)
	if err != nil {
		return nil, err
	}
	iid, err := parseID("item id", itemID)
	if err != nil {
		return nil, err
	}
	if _, err := s.invoices.Authorized(ctx, actor, policy.InvoiceView, id); err != nil {
		return nil, err
	}
	item, err := s.itemRepo.FindByID(ctx, id, iid)
	if err != nil {
		return nil, fmt.Errorf("invoice item: %w", err)
	}
	resp := toItemResponse(item)
	return &resp, nil
}

func (s *invoiceItemService) Add(ctx context.Context, actor policy.Actor, invoiceID string, req InvoiceItemRequest) (*ItemMutationResponse, error) {
	id, err := parseID("invoice id", invoiceID)
	if err != nil {
		return nil, err
	}
	var item model.InvoiceItem
	if err := fillItem(&item, req); err != nil {
		return nil, err
	}

	inv, err := s.invoices.MutateDraft(ctx, actor, id, func(txCtx context.Context, inv *model.Invoice) (Entry, error) {
		pos, err := s.itemRepo.MaxPosition(txCtx, inv.ID)
		if err != nil {
			return Entry{}, fmt.Errorf("failed to read item positions: %w", err)
		}
		item.InvoiceID = inv.ID
		item.Position = pos + 1
		if err := s.itemRepo.Create(txCtx, &item); err != nil {
			return Entry{}, fmt.Errorf("failed to create invoice item: %w", err)
		}
		return itemEntry(model.ActionItemCreated, &item, "Item added to invoice "+inv.InvoiceNumber), nil
	})
	if err != nil {
		return nil, err
	}
	return singleItem(&item, inv), nil
}

func (s *invoiceItemService) Update(ctx context.Context, actor policy.Actor, invoiceID, itemID string, req InvoiceItemRequest) (*ItemMutationResponse, error) {
	id, err := parseID("invoice id", invoiceID)
	if err != nil {
		return nil, err
	}
	iid, err := parseID("item id", itemID)
	if err != nil {
		return nil, err
	}

	var item *model.InvoiceItem
	inv, err := s.invoices.MutateDraft(ctx, actor, id, func(txCtx context.Context, inv *model.Invoice) (Entry, error) {
		var err error
		item, err = s.itemRepo.FindByID(txCtx, inv.ID, iid)
		if err != nil {
			return Entry{}, fmt.Errorf("invoice item: %w", err)
		}
		if err := fillItem(item, req); err != nil {
			return Entry{}, err
		}
		if err := s.itemRepo.Update(txCtx, item); err != nil {
			return Entry{}, fmt.Errorf("failed to update invoice item: %w", err)
		}
		return itemEntry(model.ActionItemUpdated, item, "Item updated on invoice "+inv.InvoiceNumber), nil
	})
	if err != nil {
		return nil, err
	}
	return singleItem(item, inv), nil
}

func (s *invoiceItemService) Delete(ctx context.Context, actor policy.Actor, invoiceID, itemID string) (*ItemMutationResponse, error) {
	id, err := parseID("invoice id", invoiceID)
	if err != nil {
		return nil, err
	}
	iid, err := parseID("item id", itemID)
	if err != nil {
		return nil, err
	}

	inv, err := s.invoices.MutateDraft(ctx, actor, id, func(txCtx context.Context, inv *model.Invoice) (Entry, error) {
		item, err := s.itemRepo.FindByID(txCtx, inv.ID, iid)
		if err != nil {
			return Entry{}, fmt.Errorf("invoice item: %w", err)
		}
		if err := s.itemRepo.Delete(txCtx, inv.ID, item.ID); err != nil {
			return Entry{}, fmt.Errorf("failed to delete invoice item: %w", err)
		}
		return itemEntry(model.ActionItemDeleted, item, "Item removed from invoice "+inv.InvoiceNumber), nil
	})
	if err != nil {
		return nil, err
	}
	return &ItemMutationResponse{Invoice: toTotalsResponse(inv)}, nil
}

// Bulk applies a full item list: _destroy deletes, an id updates, no id
// creates, and existing items left out of the list are deleted.
func (s *invoiceItemService) Bulk(ctx context.Context, actor policy.Actor, invoiceID string, req BulkItemsRequest) (*ItemMutationResponse, error) {
	id, err := parseID("invoice id", invoiceID)
	if err != nil {
		return nil, err
	}

	type op struct {
		id      *uuid.UUID
		destroy bool
		item    model.InvoiceItem
		req     InvoiceItemRequest
	}
	ops := make([]op, 0, len(req.Items))
	fields := map[string]string{}
	for i, r := range req.Items {
		o := op{destroy: r.Destroy, req: r}
		if r.ID != nil && *r.ID != "" {
			parsed, err := uuid.Parse(*r.ID)
			if err != nil {
				fields[fmt.Sprintf("items.%d.id", i)] = "must be a valid id"
				continue
			}
			o.id = &parsed
		}
		if o.destroy {
			if o.id == nil {
				fields[fmt.Sprintf("items.%d.id", i)] = "is required to delete an item"
			}
			ops = append(ops, o)
			continue
		}
		if err := fillItem(&o.item, r); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				for f, m := range ve.Fields {
					fields[fmt.Sprintf("items.%d.%s", i, f)] = m
				}
			}
			continue
		}
		ops = append(ops, o)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	inv, err := s.invoices.MutateDraft(ctx, actor, id, func(txCtx context.Context, inv *model.Invoice) (Entry, error) {
		existing, err := s.itemRepo.ListByInvoice(txCtx, inv.ID)
		if err != nil {
			return Entry{}, fmt.Errorf("failed to load invoice items: %w", err)
		}
		current := make(map[uuid.UUID]*model.InvoiceItem, len(existing))
		maxPos := 0
		for i := range existing {
			current[existing[i].ID] = &existing[i]
			if existing[i].Position > maxPos {
				maxPos = existing[i].Position
			}
		}

		kept := make(map[uuid.UUID]bool, len(ops))
		var created, updated, deleted int
		for _, o := range ops {
			if o.id != nil {
				if _, ok := current[*o.id]; !ok {
					return Entry{}, fmt.Errorf("invoice item %s: %w", o.id, ErrNotFound)
				}
			}
			switch {
			case o.destroy:
				if err := s.itemRepo.Delete(txCtx, inv.ID, *o.id); err != nil {
					return Entry{}, fmt.Errorf("failed to delete invoice item: %w", err)
				}
				deleted++
			case o.id != nil:
				item := current[*o.id]
				if err := fillItem(item, o.req); err != nil {
					return Entry{}, err
				}
				if err := s.itemRepo.Update(txCtx, item); err != nil {
					return Entry{}, fmt.Errorf("failed to update invoice item: %w", err)
				}
				kept[item.ID] = true
				updated++
			default:
				item := o.item
				maxPos++
				item.InvoiceID = inv.ID
				item.Position = maxPos
				if err := s.itemRepo.Create(txCtx, &item); err != nil {
					return Entry{}, fmt.Errorf("failed to create invoice item: %w", err)
				}
				kept[item.ID] = true
				created++
			}
		}
		for _, it := range existing {
			if kept[it.ID] {
				continue
			}
			destroyed := false
			for _, o := range ops {
				if o.destroy && o.id != nil && *o.id == it.ID {
					destroyed = true
					break
				}
			}
			if destroyed {
				continue
			}
			if err := s.itemRepo.Delete(txCtx, inv.ID, it.ID); err != nil {
				return Entry{}, fmt.Errorf("failed to delete invoice item: %w", err)
			}
			deleted++
		}

		return Entry{
			Action:      model.ActionItemsBulkUpdated,
			SubjectType: "invoice",
			SubjectID:   inv.ID,
			Description: "Items updated on invoice " + inv.InvoiceNumber,
			Properties:  map[string]any{"created": created, "updated": updated, "deleted": deleted},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return s.itemsWithTotals(ctx, inv)
}

func (s *invoiceItemService) Duplicate(ctx context.Context, actor policy.Actor, invoiceID, itemID string) (*ItemMutationResponse, error) {
	id, err := parseID("invoice id", invoiceID)
	if err != nil {
		return nil, err
	}
	iid, err := parseID("item id", itemID)
	if err != nil {
		return nil, err
	}

	var copied model.InvoiceItem
	inv, err := s.invoices.MutateDraft(ctx, actor, id, func(txCtx context.Context, inv *model.Invoice) (Entry, error) {
		src, err := s.itemRepo.FindByID(txCtx, inv.ID, iid)
		if err != nil {
			return Entry{}, fmt.Errorf("invoice item: %w", err)
		}
		in := src.ItemInput()
		if err := fillItem(&copied, InvoiceItemRequest{
			Description:  in.Description + " (Copy)",
			Quantity:     in.Quantity,
			UnitPrice:    in.UnitPrice,
			TaxRate:      in.TaxRate,
			Discount:     in.Discount,
			DiscountType: string(in.DiscountType),
		}); err != nil {
			return Entry{}, err
		}
		pos, err := s.itemRepo.MaxPosition(txCtx, inv.ID)
		if err != nil {
			return Entry{}, fmt.Errorf("failed to read item positions: %w", err)
		}
		copied.InvoiceID = inv.ID
		copied.Position = pos + 1
		if err := s.itemRepo.Create(txCtx, &copied); err != nil {
			return Entry{}, fmt.Errorf("failed to create invoice item: %w", err)
		}
		e := itemEntry(model.ActionItemDuplicated, &copied, "Item duplicated on invoice "+inv.InvoiceNumber)
		e.Properties["source_item_id"] = src.ID.String()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return singleItem(&copied, inv), nil
}

// Reorder expects every item id of the invoice exactly once; positions
// become 1..n in the given order.
func (s *invoiceItemService) Reorder(ctx context.Context, actor policy.Actor, invoiceID string, req ReorderItemsRequest) (*ItemMutationResponse, error) {
	id, err := parseID("invoice id", invoiceID)
	if err != nil {
		return nil, err
	}
	order := make([]uuid.UUID, 0, len(req.ItemIDs))
	for _, raw := range req.ItemIDs {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return nil, invalid("item_ids", "must contain valid ids")
		}
		order = append(order, parsed)
	}

	inv, err := s.invoices.MutateDraft(ctx, actor, id, func(txCtx context.Context, inv *model.Invoice) (Entry, error) {
		existing, err := s.itemRepo.ListByInvoice(txCtx, inv.ID)
		if err != nil {
			return Entry{}, fmt.Errorf("failed to load invoice items: %w", err)
		}
		if len(existing) != len(order) {
			return Entry{}, invalid("item_ids", "must list every item of the invoice exactly once")
		}
		known := make(map[uuid.UUID]bool, len(existing))
		for _, it := range existing {
			known[it.ID] = true
		}
		seen := make(map[uuid.UUID]bool, len(order))
		for _, oid := range order {
			if !known[oid] || seen[oid] {
				return Entry{}, invalid("item_ids", "must list every item of the invoice exactly once")
			}
			seen[oid] = true
		}
		for i, oid := range order {
			if err := s.itemRepo.SetPosition(txCtx, oid, i+1); err != nil {
				return Entry{}, fmt.Errorf("failed to reorder invoice items: %w", err)
			}
		}
		return Entry{
			Action:      model.ActionItemsReordered,
			SubjectType: "invoice",
			SubjectID:   inv.ID,
			Description: "Items reordered on invoice " + inv.InvoiceNumber,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return s.itemsWithTotals(ctx, inv)
}

func (s *invoiceItemService) itemsWithTotals(ctx context.Context, inv *model.Invoice) (*ItemMutationResponse, error) {
	items, err := s.itemRepo.ListByInvoice(ctx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch invoice items: %w", err)
	}
	resp := &ItemMutationResponse{Items: make([]InvoiceItemResponse, 0, len(items)), Invoice: toTotalsResponse(inv)}
	for i := range items {
		resp.Items = append(resp.Items, toItemResponse(&items[i]))
	}
	return resp, nil
}

func singleItem(item *model.InvoiceItem, inv *model.Invoice) *ItemMutationResponse {
	r := toItemResponse(item)
	return &ItemMutationResponse{Item: &r, Invoice: toTotalsResponse(inv)}
}

func itemEntry(action string, item *model.InvoiceItem, desc string) Entry {
	return Entry{
		Action:      action,
		SubjectType: "invoice_item",
		SubjectID:   item.ID,
		Description: desc,
		Properties: map[string]any{
			"description": item.Description,
			"total":       money(item.Total),
		},
	}
}
