// Package file keeps orders as JSON documents in a local directory, one document per partition
// plus one for the issued ids.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"ms-service-orders/internal/models"
)

const (
	ActiveFile   = "active_orders.json"
	ArchivedFile = "archived_orders.json"
	UsedIDsFile  = "used_order_ids.json"
)

type Store struct {
	mu  sync.Mutex
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) LoadOrders(ctx context.Context, partition models.Partition) ([]models.ServiceOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := []models.ServiceOrder{}
	if err := s.read(partitionFile(partition), &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// SaveOrder replaces the record with the same id. On a partition move the target document is
// written before the record is removed from the source, so a failure in between leaves two copies
// rather than none.
func (s *Store) SaveOrder(ctx context.Context, order models.ServiceOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target := order.Partition()
	source := models.PartitionActive
	if target == models.PartitionActive {
		source = models.PartitionArchived
	}

	var targetOrders, sourceOrders []models.ServiceOrder
	if err := s.read(partitionFile(target), &targetOrders); err != nil {
		return err
	}
	if err := s.read(partitionFile(source), &sourceOrders); err != nil {
		return err
	}

	kept, _ := without(targetOrders, order.ID)
	if err := s.write(partitionFile(target), append(kept, order)); err != nil {
		return err
	}

	if kept, removed := without(sourceOrders, order.ID); removed {
		if err := s.write(partitionFile(source), kept); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range []models.Partition{models.PartitionActive, models.PartitionArchived} {
		var orders []models.ServiceOrder
		if err := s.read(partitionFile(p), &orders); err != nil {
			return err
		}
		kept, removed := without(orders, id)
		if !removed {
			continue
		}
		if err := s.write(partitionFile(p), kept); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) LoadUsedIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	if err := s.read(UsedIDsFile, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) SaveUsedIDs(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if ids == nil {
		ids = []string{}
	}
	return s.write(UsedIDsFile, ids)
}

func partitionFile(p models.Partition) string {
	if p == models.PartitionArchived {
		return ArchivedFile
	}
	return ActiveFile
}

func without(orders []models.ServiceOrder, id string) ([]models.ServiceOrder, bool) {
	kept := make([]models.ServiceOrder, 0, len(orders)+1)
	removed := false
	for _, o := range orders {
		if o.ID == id {
			removed = true
			continue
		}
		kept = append(kept, o)
	}
	return kept, removed
}

// read leaves v untouched when the document does not exist yet.
func (s *Store) read(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// write replaces the document atomically so a crash never leaves half a file behind.
func (s *Store) write(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
