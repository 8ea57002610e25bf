package order

import (
	"sort"
	"strings"
	"time"

	"ms-service-orders/internal/models"
)

type SortOrder string

const (
	SortNewest   SortOrder = "newest"
	SortOldest   SortOrder = "oldest"
	SortCustomer SortOrder = "customer"
	SortArchived SortOrder = "archived"
)

// ListOptions narrows a partition listing. Zero values mean "no filter" and the partition's
// default sort.
type ListOptions struct {
	Status models.Status
	Search string
	Sort   SortOrder
}

// List returns copies of the orders in a partition, filtered and sorted.
func (s *OrderService) List(partition models.Partition, opts ListOptions) []models.ServiceOrder {
	s.mu.Lock()
	src := s.active
	if partition == models.PartitionArchived {
		src = s.archived
	}
	orders := make([]models.ServiceOrder, 0, len(src))
	for _, o := range src {
		orders = append(orders, o.Clone())
	}
	s.mu.Unlock()

	if opts.Sort == "" {
		opts.Sort = SortNewest
		if partition == models.PartitionArchived {
			opts.Sort = SortArchived
		}
	}

	orders = FilterOrders(orders, opts.Status, opts.Search)
	SortOrders(orders, opts.Sort)
	return orders
}

// StatusCounts counts active orders per status. Every known status except archived is present.
func (s *OrderService) StatusCounts() map[models.Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.Status]int, len(models.KnownStatuses))
	for _, st := range models.KnownStatuses {
		if st != models.StatusArchived {
			counts[st] = 0
		}
	}
	for _, o := range s.active {
		counts[o.Status]++
	}
	return counts
}

// QuoteQueue lists active orders waiting on a quote or on its approval, newest first.
func (s *OrderService) QuoteQueue() []models.ServiceOrder {
	queue := make([]models.ServiceOrder, 0)
	for _, o := range s.List(models.PartitionActive, ListOptions{Sort: SortNewest}) {
		if o.Status == models.StatusNeedsQuote || o.Status == models.StatusQuoteApproval {
			queue = append(queue, o)
		}
	}
	return queue
}

// FilterOrders keeps orders matching status (when set) and the case-insensitive search term.
func FilterOrders(orders []models.ServiceOrder, status models.Status, search string) []models.ServiceOrder {
	term := strings.ToLower(strings.TrimSpace(search))
	out := orders[:0]
	for _, o := range orders {
		if status != "" && o.Status != status {
			continue
		}
		if term != "" && !matches(o, term) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func matches(o models.ServiceOrder, term string) bool {
	fields := []string{
		o.Customer.Name,
		o.Customer.Company,
		o.ItemType,
		o.Description,
		o.ID,
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

// SortOrders sorts in place. Ties fall back to id so output is deterministic.
func SortOrders(orders []models.ServiceOrder, by SortOrder) {
	var less func(a, b *models.ServiceOrder) bool

	switch by {
	case SortOldest:
		less = func(a, b *models.ServiceOrder) bool {
			return a.CreatedAt.Before(b.CreatedAt)
		}
	case SortCustomer:
		less = func(a, b *models.ServiceOrder) bool {
			an, bn := strings.ToLower(a.DisplayName()), strings.ToLower(b.DisplayName())
			return an < bn
		}
	case SortArchived:
		less = func(a, b *models.ServiceOrder) bool {
			return archivedKey(a).After(archivedKey(b))
		}
	default:
		less = func(a, b *models.ServiceOrder) bool {
			return a.CreatedAt.After(b.CreatedAt)
		}
	}

	sort.SliceStable(orders, func(i, j int) bool {
		a, b := &orders[i], &orders[j]
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.ID < b.ID
	})
}

func archivedKey(o *models.ServiceOrder) time.Time {
	if o.ArchivedAt != nil {
		return *o.ArchivedAt
	}
	return o.CreatedAt
}
