// Package memory keeps orders and issued ids in process memory. Nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"ms-service-orders/internal/models"
)

type Store struct {
	mu      sync.RWMutex
	orders  map[string]models.ServiceOrder
	usedIDs []string
}

func New() *Store {
	return &Store{orders: make(map[string]models.ServiceOrder)}
}

func (s *Store) LoadOrders(ctx context.Context, partition models.Partition) ([]models.ServiceOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ServiceOrder, 0, len(s.orders))
	for _, o := range s.orders {
		if o.Partition() == partition {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (s *Store) SaveOrder(ctx context.Context, order models.ServiceOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[order.ID] = order.Clone()
	return nil
}

// DeleteOrder is a no-op for unknown ids.
func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.orders, id)
	return nil
}

func (s *Store) LoadUsedIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.usedIDs...), nil
}

func (s *Store) SaveUsedIDs(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.usedIDs = append([]string(nil), ids...)
	return nil
}

// Len reports how many orders are stored across both partitions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
