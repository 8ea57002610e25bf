// Package rest stores orders through a generic table CRUD API. The backend is assumed to do no
// filtering, sorting or joins; all of that happens here.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ms-service-orders/internal/models"
)

type Tables struct {
	Orders  string
	History string
	UsedIDs string
}

type Store struct {
	client *Client
	tables Tables
}

func New(client *Client, tables Tables) *Store {
	return &Store{client: client, tables: tables}
}

type orderRecord struct {
	ID                 string          `json:"id"`
	CustomerName       string          `json:"customer_name"`
	CustomerPhone      string          `json:"customer_phone"`
	CustomerEmail      string          `json:"customer_email,omitempty"`
	CustomerCompany    string          `json:"customer_company,omitempty"`
	ItemType           string          `json:"item_type"`
	SerialNumber       string          `json:"serial_number,omitempty"`
	Quantity           int             `json:"quantity"`
	Description        string          `json:"description"`
	Urgency            string          `json:"urgency"`
	ExpectedCompletion string          `json:"expected_completion,omitempty"`
	Status             string          `json:"status"`
	Parts              json.RawMessage `json:"parts"`
	Labor              json.RawMessage `json:"labor"`
	PartsTotal         decimal.Decimal `json:"parts_total"`
	LaborTotal         decimal.Decimal `json:"labor_total"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	Tax                decimal.Decimal `json:"tax"`
	Total              decimal.Decimal `json:"total"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	ArchivedAt         *time.Time      `json:"archived_at"`
}

type historyRecord struct {
	ID             string    `json:"id"`
	ServiceOrderID string    `json:"service_order_id"`
	Seq            int       `json:"seq"`
	Status         string    `json:"status"`
	Notes          string    `json:"notes"`
	CreatedAt      time.Time `json:"created_at"`
}

type usedIDRecord struct {
	ID string `json:"id"`
}

func (s *Store) LoadOrders(ctx context.Context, partition models.Partition) ([]models.ServiceOrder, error) {
	var records []orderRecord
	if err := s.client.List(ctx, s.tables.Orders, &records); err != nil {
		return nil, err
	}

	var history []historyRecord
	if err := s.client.List(ctx, s.tables.History, &history); err != nil {
		return nil, err
	}
	byOrder := make(map[string][]historyRecord)
	for _, h := range history {
		byOrder[h.ServiceOrderID] = append(byOrder[h.ServiceOrderID], h)
	}

	orders := make([]models.ServiceOrder, 0, len(records))
	for _, rec := range records {
		o, err := rec.toModel(byOrder[rec.ID])
		if err != nil {
			return nil, err
		}
		if o.Partition() == partition {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

// SaveOrder updates the record, creating it on 404, then adds missing history entries and drops
// ones the order no longer carries.
func (s *Store) SaveOrder(ctx context.Context, order models.ServiceOrder) error {
	rec, err := fromModel(order)
	if err != nil {
		return err
	}

	err = s.client.Update(ctx, s.tables.Orders, order.ID, rec)
	if IsNotFound(err) {
		err = s.client.Create(ctx, s.tables.Orders, rec)
	}
	if err != nil {
		return fmt.Errorf("save order %s: %w", order.ID, err)
	}

	existing, err := s.historyOf(ctx, order.ID)
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(order.StatusHistory))
	for i, ev := range order.StatusHistory {
		keep[ev.ID] = true
		if _, ok := existing[ev.ID]; ok {
			continue
		}
		h := historyRecord{
			ID:             ev.ID,
			ServiceOrderID: order.ID,
			Seq:            i,
			Status:         string(ev.Status),
			Notes:          ev.Notes,
			CreatedAt:      ev.CreatedAt,
		}
		if err := s.client.Create(ctx, s.tables.History, h); err != nil {
			return fmt.Errorf("save history of order %s: %w", order.ID, err)
		}
	}
	for id := range existing {
		if keep[id] {
			continue
		}
		if err := s.client.Delete(ctx, s.tables.History, id); err != nil && !IsNotFound(err) {
			return fmt.Errorf("prune history of order %s: %w", order.ID, err)
		}
	}
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	existing, err := s.historyOf(ctx, id)
	if err != nil {
		return err
	}
	for hid := range existing {
		if err := s.client.Delete(ctx, s.tables.History, hid); err != nil && !IsNotFound(err) {
			return fmt.Errorf("delete history of order %s: %w", id, err)
		}
	}
	if err := s.client.Delete(ctx, s.tables.Orders, id); err != nil && !IsNotFound(err) {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	return nil
}

func (s *Store) LoadUsedIDs(ctx context.Context) ([]string, error) {
	var records []usedIDRecord
	if err := s.client.List(ctx, s.tables.UsedIDs, &records); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveUsedIDs makes the remote table equal to ids with the fewest calls.
func (s *Store) SaveUsedIDs(ctx context.Context, ids []string) error {
	current, err := s.LoadUsedIDs(ctx)
	if err != nil {
		return err
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	have := make(map[string]bool, len(current))
	for _, id := range current {
		have[id] = true
		if !want[id] {
			if err := s.client.Delete(ctx, s.tables.UsedIDs, id); err != nil && !IsNotFound(err) {
				return fmt.Errorf("release order id %s: %w", id, err)
			}
		}
	}
	for _, id := range ids {
		if have[id] {
			continue
		}
		if err := s.client.Create(ctx, s.tables.UsedIDs, usedIDRecord{ID: id}); err != nil {
			return fmt.Errorf("record order id %s: %w", id, err)
		}
	}
	return nil
}

func (s *Store) historyOf(ctx context.Context, orderID string) (map[string]historyRecord, error) {
	var history []historyRecord
	if err := s.client.List(ctx, s.tables.History, &history); err != nil {
		return nil, err
	}
	out := make(map[string]historyRecord)
	for _, h := range history {
		if h.ServiceOrderID == orderID {
			out[h.ID] = h
		}
	}
	return out, nil
}

func fromModel(o models.ServiceOrder) (orderRecord, error) {
	parts, err := encodeItems(o.Parts)
	if err != nil {
		return orderRecord{}, fmt.Errorf("encode parts of order %s: %w", o.ID, err)
	}
	labor, err := encodeItems(o.Labor)
	if err != nil {
		return orderRecord{}, fmt.Errorf("encode labor of order %s: %w", o.ID, err)
	}

	return orderRecord{
		ID:                 o.ID,
		CustomerName:       o.Customer.Name,
		CustomerPhone:      o.Customer.Phone,
		CustomerEmail:      o.Customer.Email,
		CustomerCompany:    o.Customer.Company,
		ItemType:           o.ItemType,
		SerialNumber:       o.SerialNumber,
		Quantity:           o.Quantity,
		Description:        o.Description,
		Urgency:            o.Urgency,
		ExpectedCompletion: o.ExpectedCompletion,
		Status:             string(o.Status),
		Parts:              parts,
		Labor:              labor,
		PartsTotal:         o.PartsTotal,
		LaborTotal:         o.LaborTotal,
		Subtotal:           o.Subtotal,
		TaxRate:            o.TaxRate,
		Tax:                o.Tax,
		Total:              o.Total,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		ArchivedAt:         o.ArchivedAt,
	}, nil
}

func (r orderRecord) toModel(history []historyRecord) (models.ServiceOrder, error) {
	o := models.ServiceOrder{
		ID: r.ID,
		Customer: models.Customer{
			Name:    r.CustomerName,
			Phone:   r.CustomerPhone,
			Email:   r.CustomerEmail,
			Company: r.CustomerCompany,
		},
		ItemType:           r.ItemType,
		SerialNumber:       r.SerialNumber,
		Quantity:           r.Quantity,
		Description:        r.Description,
		Urgency:            r.Urgency,
		ExpectedCompletion: r.ExpectedCompletion,
		Status:             models.Status(r.Status),
		Parts:              []models.Part{},
		Labor:              []models.Labor{},
		Financials: models.Financials{
			PartsTotal: r.PartsTotal,
			LaborTotal: r.LaborTotal,
			Subtotal:   r.Subtotal,
			TaxRate:    r.TaxRate,
			Tax:        r.Tax,
			Total:      r.Total,
		},
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		ArchivedAt:    r.ArchivedAt,
		StatusHistory: []models.StatusEvent{},
	}

	if err := decodeItems(r.Parts, &o.Parts); err != nil {
		return o, fmt.Errorf("decode parts of order %s: %w", r.ID, err)
	}
	if err := decodeItems(r.Labor, &o.Labor); err != nil {
		return o, fmt.Errorf("decode labor of order %s: %w", r.ID, err)
	}

	sort.SliceStable(history, func(i, j int) bool { return history[i].Seq < history[j].Seq })
	for _, h := range history {
		o.StatusHistory = append(o.StatusHistory, models.StatusEvent{
			ID:        h.ID,
			OrderID:   r.ID,
			Seq:       h.Seq,
			Status:    models.Status(h.Status),
			Notes:     h.Notes,
			CreatedAt: h.CreatedAt,
		})
	}
	return o, nil
}

// Line items travel as JSON text, since table backends typically store them in a text column.
func encodeItems(items interface{}) (json.RawMessage, error) {
	inner, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(inner))
}

// decodeItems accepts either JSON text or a plain array.
func decodeItems(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return err
		}
		if text == "" {
			return nil
		}
		raw = json.RawMessage(text)
	}
	return json.Unmarshal(raw, out)
}
