package order

import (
	"context"
	"fmt"
	"strings"

	"ms-service-orders/internal/models"
	"ms-service-orders/internal/orderid"
)

// Export snapshots active orders, and archived ones when asked, into a backup document.
func (s *OrderService) Export(includeArchived bool, exportedBy string) models.ExportDocument {
	data := s.List(models.PartitionActive, ListOptions{Sort: SortNewest})
	if includeArchived {
		data = append(data, s.List(models.PartitionArchived, ListOptions{Sort: SortArchived})...)
	}

	return models.ExportDocument{
		Version:          models.ExportVersion,
		ExportDate:       s.now(),
		ExportedBy:       exportedBy,
		RecordCount:      len(data),
		IncludesArchived: includeArchived,
		Data:             data,
	}
}

// Import merges a backup into the current state by id. Every record is checked before anything is
// applied; ids are kept as they are and reserved in the allocator.
func (s *OrderService) Import(ctx context.Context, doc models.ExportDocument) (models.ImportResult, error) {
	var result models.ImportResult

	if doc.Data == nil {
		return result, &ValidationError{Message: "import document has no data"}
	}
	if doc.Version != "" && doc.Version != models.ExportVersion {
		s.logger.Warn("IMPORT", fmt.Sprintf("Importing document version %s, expected %s", doc.Version, models.ExportVersion))
	}

	seen := make(map[string]bool, len(doc.Data))
	for i, rec := range doc.Data {
		if !orderid.Valid(rec.ID) {
			return result, &ValidationError{Message: fmt.Sprintf("record %d: invalid order id %q", i, rec.ID)}
		}
		if seen[rec.ID] {
			return result, &ValidationError{Message: fmt.Sprintf("record %d: duplicate order id %s", i, rec.ID)}
		}
		seen[rec.ID] = true
		for _, p := range rec.Parts {
			if err := validateInput(p); err != nil {
				return result, fmt.Errorf("order %s: %w", rec.ID, err)
			}
		}
		for _, l := range rec.Labor {
			if err := validateInput(l); err != nil {
				return result, fmt.Errorf("order %s: %w", rec.ID, err)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	ids := make([]string, 0, len(doc.Data))

	for _, rec := range doc.Data {
		o := s.normalizeImported(rec.Clone())

		if existing, _ := s.lookupLocked(o.ID); existing != nil {
			delete(s.active, o.ID)
			delete(s.archived, o.ID)
			result.Updated++
		} else {
			result.Added++
		}
		s.partitionMap(o)[o.ID] = o
		ids = append(ids, o.ID)

		if err := s.saveLocked(ctx, o.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.ids.MarkUsed(ctx, ids...); err != nil && firstErr == nil {
		firstErr = &PersistenceError{Op: "mark imported ids used", Err: err}
	}

	s.logger.Info("IMPORT", fmt.Sprintf("Imported %d records: %d added, %d updated", len(doc.Data), result.Added, result.Updated))
	return result, firstErr
}

// normalizeImported fills defaults, recomputes financials and repairs the history so the imported
// order satisfies the same invariants as one built through intake.
func (s *OrderService) normalizeImported(o models.ServiceOrder) *models.ServiceOrder {
	now := s.now()

	if o.Quantity < 1 {
		o.Quantity = 1
	}
	if strings.TrimSpace(string(o.Status)) == "" {
		o.Status = models.StatusReceived
	}
	if o.Urgency == "" {
		o.Urgency = "normal"
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	if o.Status == models.StatusArchived && o.ArchivedAt == nil {
		at := o.UpdatedAt
		o.ArchivedAt = &at
	}
	if o.Parts == nil {
		o.Parts = []models.Part{}
	}
	if o.Labor == nil {
		o.Labor = []models.Labor{}
	}

	o.Parts = normalizeParts(o.Parts)
	o.Labor = normalizeLabor(o.Labor)
	o.Financials = ComputeFinancials(o.Parts, o.Labor, o.TaxRate)

	for i := range o.StatusHistory {
		ev := &o.StatusHistory[i]
		ev.OrderID = o.ID
		ev.Seq = i
		if ev.ID == "" {
			ev.ID = newEventID()
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = o.UpdatedAt
		}
	}
	if last := o.LastEvent(); last == nil || last.Status != o.Status {
		s.appendEvent(&o, o.Status, importNote, now)
	}

	return &o
}
