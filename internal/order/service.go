package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ms-service-orders/internal/logger"
	"ms-service-orders/internal/models"
	"ms-service-orders/internal/orderid"
)

// Store is the persistence contract for orders. Adapters do no sorting or filtering.
type Store interface {
	LoadOrders(ctx context.Context, partition models.Partition) ([]models.ServiceOrder, error)
	SaveOrder(ctx context.Context, order models.ServiceOrder) error
	DeleteOrder(ctx context.Context, id string) error
}

// Adapter is a backend that can hold both the orders and the issued-id set.
type Adapter interface {
	Store
	orderid.UsedIDStore
}

type IDAllocator interface {
	Allocate(ctx context.Context) (string, error)
	MarkUsed(ctx context.Context, ids ...string) error
	Reset(ctx context.Context) error
	Stats() orderid.Stats
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event models.OrderEvent) error
}

const (
	archiveNote = "Service order archived"
	importNote  = "Status recorded during import"
)

type OrderService struct {
	mu       sync.Mutex
	store    Store
	ids      IDAllocator
	events   EventPublisher
	logger   *logger.Logger
	timeout  time.Duration
	now      func() time.Time
	active   map[string]*models.ServiceOrder
	archived map[string]*models.ServiceOrder
	pending  []models.OrderEvent
}

type Option func(*OrderService)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *OrderService) {
		s.now = now
	}
}

// WithTimeout bounds each store call.
func WithTimeout(d time.Duration) Option {
	return func(s *OrderService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewOrderService wires the manager. events may be nil.
func NewOrderService(store Store, ids IDAllocator, events EventPublisher, log *logger.Logger, opts ...Option) *OrderService {
	s := &OrderService{
		store:    store,
		ids:      ids,
		events:   events,
		logger:   log,
		timeout:  5 * time.Second,
		now:      func() time.Time { return time.Now().UTC() },
		active:   make(map[string]*models.ServiceOrder),
		archived: make(map[string]*models.ServiceOrder),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory state with both partitions from the store.
func (s *OrderService) Load(ctx context.Context) error {
	active, err := s.loadPartition(ctx, models.PartitionActive)
	if err != nil {
		return err
	}
	archived, err := s.loadPartition(ctx, models.PartitionArchived)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = make(map[string]*models.ServiceOrder, len(active))
	s.archived = make(map[string]*models.ServiceOrder, len(archived))

	for _, records := range [][]models.ServiceOrder{active, archived} {
		for i := range records {
			o := records[i].Clone()
			if existing, _ := s.lookupLocked(o.ID); existing != nil {
				if !supersedes(&o, existing) {
					s.logger.Warn("ORDER", fmt.Sprintf("Duplicate order id %s in storage, keeping the newer copy", o.ID))
					continue
				}
				s.logger.Warn("ORDER", fmt.Sprintf("Duplicate order id %s in storage, replacing with the newer copy", o.ID))
				delete(s.active, o.ID)
				delete(s.archived, o.ID)
			}
			s.partitionMap(&o)[o.ID] = &o
		}
	}

	s.logger.Info("ORDER", fmt.Sprintf("Loaded %d active and %d archived service orders", len(s.active), len(s.archived)))
	return nil
}

// supersedes picks between two stored copies of one order, as left behind by an interrupted
// partition move: the later update wins, and on a tie the archived copy.
func supersedes(candidate, existing *models.ServiceOrder) bool {
	if !candidate.UpdatedAt.Equal(existing.UpdatedAt) {
		return candidate.UpdatedAt.After(existing.UpdatedAt)
	}
	return candidate.IsArchived() && !existing.IsArchived()
}

func (s *OrderService) loadPartition(ctx context.Context, p models.Partition) ([]models.ServiceOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	orders, err := s.store.LoadOrders(ctx, p)
	if err != nil {
		return nil, &PersistenceError{Op: "load " + string(p), Err: err}
	}
	return orders, nil
}

// CreateOrders turns one intake form into one order per item. Orders created before a failed
// allocation are kept and returned along with the error.
func (s *OrderService) CreateOrders(ctx context.Context, form models.IntakeForm) ([]models.ServiceOrder, error) {
	if err := validateInput(form); err != nil {
		return nil, err
	}

	urgency := form.Urgency
	if urgency == "" {
		urgency = "normal"
	}

	s.mu.Lock()
	defer s.unlockAndPublish(ctx)

	created := make([]models.ServiceOrder, 0, len(form.Items))
	var persistErr error

	for _, item := range form.Items {
		id, err := s.allocateFreeIDLocked(ctx)
		if err != nil {
			return created, &PersistenceError{Op: "allocate id", Err: err}
		}

		status := models.StatusReceived
		notes := fmt.Sprintf("%d x %s received and logged into system", item.Quantity, item.ItemType)
		if item.NeedsQuote {
			status = models.StatusNeedsQuote
			notes = fmt.Sprintf("%d x %s received and needs quote preparation", item.Quantity, item.ItemType)
		}

		now := s.now()
		o := &models.ServiceOrder{
			ID: id,
			Customer: models.Customer{
				Name:    strings.TrimSpace(form.CustomerName),
				Phone:   strings.TrimSpace(form.CustomerPhone),
				Email:   strings.TrimSpace(form.CustomerEmail),
				Company: strings.TrimSpace(form.Company),
			},
			ItemType:           item.ItemType,
			SerialNumber:       item.SerialNumber,
			Quantity:           item.Quantity,
			Description:        item.Description,
			Urgency:            urgency,
			ExpectedCompletion: form.ExpectedCompletion,
			Status:             status,
			Parts:              []models.Part{},
			Labor:              []models.Labor{},
			Financials:         ComputeFinancials(nil, nil, decimal.Zero),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		s.appendEvent(o, status, notes, now)

		s.active[id] = o
		s.logger.LogOrder("CREATE", id, notes)

		out := o.Clone()
		created = append(created, out)

		if err := s.saveLocked(ctx, out); err != nil && persistErr == nil {
			persistErr = err
		}
		s.enqueue(models.OrderEventCreated, out, notes)
	}

	if persistErr != nil {
		return created, persistErr
	}
	return created, nil
}

// allocateFreeIDLocked skips ids still held by an order, which can happen after a pool reset.
func (s *OrderService) allocateFreeIDLocked(ctx context.Context) (string, error) {
	for attempt := 0; attempt <= orderid.PoolSize; attempt++ {
		id, err := s.ids.Allocate(ctx)
		if err != nil {
			return "", err
		}
		if existing, _ := s.lookupLocked(id); existing == nil {
			return id, nil
		}
		s.logger.Warn("ORDER", fmt.Sprintf("Order id %s is still held by an existing order, allocating another", id))
	}
	return "", errors.New("every order id is held by an existing order")
}

// UpdateStatus moves an active order to status and appends one history event.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, status models.Status, notes string) (*models.ServiceOrder, error) {
	status = models.Status(strings.TrimSpace(string(status)))
	if status == "" {
		return nil, &ValidationError{Message: "status is required"}
	}

	s.mu.Lock()
	defer s.unlockAndPublish(ctx)

	o, _ := s.lookupLocked(id)
	if o == nil {
		return nil, &NotFoundError{ID: id}
	}
	if o.IsArchived() {
		return nil, &InvalidStateError{ID: id, Status: o.Status, Reason: "archived orders cannot change status"}
	}
	if status == models.StatusArchived {
		return nil, &InvalidStateError{ID: id, Status: o.Status, Reason: "orders are archived through the archive operation"}
	}
	if !status.IsKnown() {
		s.logger.Warn("ORDER", fmt.Sprintf("Order %s moved to unrecognised status %q", id, status))
	}
	if strings.TrimSpace(notes) == "" {
		notes = fmt.Sprintf("Status changed to %s", status)
	}

	now := s.now()
	o.Status = status
	o.UpdatedAt = now
	s.appendEvent(o, status, notes, now)
	s.logger.LogOrder("STATUS", id, notes)

	return s.commitLocked(ctx, o, models.OrderEventStatusChanged, notes)
}

// UpdateDetails edits the non-status fields of an active order. Financials are recomputed whenever
// line items or the tax rate change.
func (s *OrderService) UpdateDetails(ctx context.Context, id string, update models.DetailsUpdate) (*models.ServiceOrder, error) {
	if err := validateInput(update); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.unlockAndPublish(ctx)

	o, _ := s.lookupLocked(id)
	if o == nil {
		return nil, &NotFoundError{ID: id}
	}
	if o.IsArchived() {
		return nil, &InvalidStateError{ID: id, Status: o.Status, Reason: "archived orders cannot be edited"}
	}

	if update.SerialNumber != nil {
		o.SerialNumber = strings.TrimSpace(*update.SerialNumber)
	}
	if update.ExpectedCompletion != nil {
		o.ExpectedCompletion = *update.ExpectedCompletion
	}
	if update.Parts != nil {
		o.Parts = normalizeParts(*update.Parts)
	}
	if update.Labor != nil {
		o.Labor = normalizeLabor(*update.Labor)
	}
	taxRate := o.TaxRate
	if update.TaxRate != nil {
		taxRate = *update.TaxRate
	}
	if update.TouchesFinancials() {
		o.Financials = ComputeFinancials(o.Parts, o.Labor, taxRate)
	}
	o.UpdatedAt = s.now()

	s.logger.LogOrder("UPDATE", id, fmt.Sprintf("details updated, total %s", o.Total.StringFixed(2)))
	return s.commitLocked(ctx, o, models.OrderEventUpdated, "")
}

// Archive moves a ready or completed order to the archive. There is no way back.
func (s *OrderService) Archive(ctx context.Context, id string) (*models.ServiceOrder, error) {
	s.mu.Lock()
	defer s.unlockAndPublish(ctx)

	o, _ := s.lookupLocked(id)
	if o == nil {
		return nil, &NotFoundError{ID: id}
	}
	if o.IsArchived() {
		return nil, &InvalidStateError{ID: id, Status: o.Status, Reason: "order is already archived"}
	}
	if !o.Status.Archivable() {
		return nil, &InvalidStateError{ID: id, Status: o.Status, Reason: "only ready or completed orders can be archived"}
	}

	now := s.now()
	o.Status = models.StatusArchived
	o.ArchivedAt = &now
	o.UpdatedAt = now
	s.appendEvent(o, models.StatusArchived, archiveNote, now)

	delete(s.active, id)
	s.archived[id] = o
	s.logger.LogOrder("ARCHIVE", id, archiveNote)

	return s.commitLocked(ctx, o, models.OrderEventArchived, archiveNote)
}

// DeleteArchived permanently removes an archived order and its history.
func (s *OrderService) DeleteArchived(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.unlockAndPublish(ctx)

	o, _ := s.lookupLocked(id)
	if o == nil {
		return &NotFoundError{ID: id}
	}
	if !o.IsArchived() {
		return &InvalidStateError{ID: id, Status: o.Status, Reason: "only archived orders can be deleted"}
	}

	delete(s.archived, id)
	s.logger.LogOrder("DELETE", id, "archived order deleted")

	err := s.deleteLocked(ctx, id)
	s.enqueue(models.OrderEventDeleted, *o, "")
	return err
}

// Get returns a copy of the order from either partition.
func (s *OrderService) Get(id string) (*models.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, _ := s.lookupLocked(id)
	if o == nil {
		return nil, &NotFoundError{ID: id}
	}
	out := o.Clone()
	return &out, nil
}

func (s *OrderService) AllocatorStats() orderid.Stats {
	return s.ids.Stats()
}

// ClearAll deletes every order in both partitions and resets the id pool. Deletion carries on
// past store failures; the first one is returned.
func (s *OrderService) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	removed := 0
	for _, m := range []map[string]*models.ServiceOrder{s.active, s.archived} {
		for id := range m {
			if err := s.deleteLocked(ctx, id); err != nil && firstErr == nil {
				firstErr = err
			}
			removed++
		}
	}
	s.active = make(map[string]*models.ServiceOrder)
	s.archived = make(map[string]*models.ServiceOrder)

	if err := s.ids.Reset(ctx); err != nil && firstErr == nil {
		firstErr = &PersistenceError{Op: "reset order ids", Err: err}
	}

	s.logger.Warn("ORDER", fmt.Sprintf("All data cleared: %d service orders removed, order id pool reset", removed))
	return firstErr
}

func (s *OrderService) lookupLocked(id string) (*models.ServiceOrder, models.Partition) {
	if o, ok := s.active[id]; ok {
		return o, models.PartitionActive
	}
	if o, ok := s.archived[id]; ok {
		return o, models.PartitionArchived
	}
	return nil, ""
}

func (s *OrderService) partitionMap(o *models.ServiceOrder) map[string]*models.ServiceOrder {
	if o.IsArchived() {
		return s.archived
	}
	return s.active
}

func (s *OrderService) appendEvent(o *models.ServiceOrder, status models.Status, notes string, at time.Time) {
	o.StatusHistory = append(o.StatusHistory, models.StatusEvent{
		ID:        newEventID(),
		OrderID:   o.ID,
		Seq:       len(o.StatusHistory),
		Status:    status,
		Notes:     notes,
		CreatedAt: at,
	})
}

func newEventID() string {
	return uuid.NewString()
}

// commitLocked saves the already-mutated order and queues its event. The returned order reflects
// the applied change even when the save fails.
func (s *OrderService) commitLocked(ctx context.Context, o *models.ServiceOrder, eventType models.OrderEventType, notes string) (*models.ServiceOrder, error) {
	out := o.Clone()
	err := s.saveLocked(ctx, out)
	s.enqueue(eventType, out, notes)
	if err != nil {
		return &out, err
	}
	return &out, nil
}

func (s *OrderService) saveLocked(ctx context.Context, o models.ServiceOrder) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.SaveOrder(ctx, o); err != nil {
		s.logger.Error("ORDER", fmt.Sprintf("Failed to save order %s: %v", o.ID, err))
		return &PersistenceError{Op: "save", ID: o.ID, Err: err}
	}
	return nil
}

func (s *OrderService) deleteLocked(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.DeleteOrder(ctx, id); err != nil {
		s.logger.Error("ORDER", fmt.Sprintf("Failed to delete order %s: %v", id, err))
		return &PersistenceError{Op: "delete", ID: id, Err: err}
	}
	return nil
}

// enqueue snapshots an event while the lock is held. It is sent by unlockAndPublish.
func (s *OrderService) enqueue(eventType models.OrderEventType, o models.ServiceOrder, notes string) {
	if s.events == nil {
		return
	}
	s.pending = append(s.pending, models.NewOrderEvent(eventType, o, notes))
}

// unlockAndPublish releases the manager and then sends the queued events, so a slow broker never
// holds up other operations.
func (s *OrderService) unlockAndPublish(ctx context.Context) {
	events := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, ev := range events {
		s.publish(ctx, ev)
	}
}

// publish never fails the caller; a lost event is only logged. Each send is bounded by the store timeout.
func (s *OrderService) publish(ctx context.Context, event models.OrderEvent) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Warn("KAFKA", fmt.Sprintf("Failed to publish %s event for order %s: %v", event.Type, event.OrderID, err))
	}
}
