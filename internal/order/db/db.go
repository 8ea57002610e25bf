package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-service-orders/internal/models"
)

// DB stores orders in service_orders/status_history and issued ids in used_order_ids.
type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// ---------------- ORDERS ----------------

// LoadOrders → every order of one partition with its history in sequence order
func (d *DB) LoadOrders(ctx context.Context, partition models.Partition) ([]models.ServiceOrder, error) {
	var orders []models.ServiceOrder

	q := d.Bun.NewSelect().
		Model(&orders).
		Relation("StatusHistory", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("sh.seq ASC")
		})
	if partition == models.PartitionArchived {
		q = q.Where("so.archived_at IS NOT NULL")
	} else {
		q = q.Where("so.archived_at IS NULL")
	}

	if err := q.Scan(ctx); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("select %s orders: %w", partition, err)
	}
	for i := range orders {
		if orders[i].StatusHistory == nil {
			orders[i].StatusHistory = []models.StatusEvent{}
		}
	}
	return orders, nil
}

// SaveOrder → upsert the order row and rewrite its history in one transaction
func (d *DB) SaveOrder(ctx context.Context, order models.ServiceOrder) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := order
		row.StatusHistory = nil

		_, err := tx.NewInsert().
			Model(&row).
			On("CONFLICT (id) DO UPDATE").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert order %s: %w", order.ID, err)
		}

		_, err = tx.NewDelete().
			Model((*models.StatusEvent)(nil)).
			Where("order_id = ?", order.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("clear history of order %s: %w", order.ID, err)
		}

		if len(order.StatusHistory) == 0 {
			return nil
		}

		history := make([]models.StatusEvent, len(order.StatusHistory))
		for i, ev := range order.StatusHistory {
			ev.OrderID = order.ID
			ev.Seq = i
			history[i] = ev
		}
		if _, err := tx.NewInsert().Model(&history).Exec(ctx); err != nil {
			return fmt.Errorf("insert history of order %s: %w", order.ID, err)
		}
		return nil
	})
}

// DeleteOrder → remove an order and its history; unknown ids are not an error
func (d *DB) DeleteOrder(ctx context.Context, id string) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*models.StatusEvent)(nil)).
			Where("order_id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete history of order %s: %w", id, err)
		}

		_, err = tx.NewDelete().
			Model((*models.ServiceOrder)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete order %s: %w", id, err)
		}
		return nil
	})
}

// ---------------- ORDER IDS ----------------

func (d *DB) LoadUsedIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := d.Bun.NewSelect().
		Model((*UsedOrderID)(nil)).
		Column("id").
		Order("id ASC").
		Scan(ctx, &ids)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("select used order ids: %w", err)
	}
	return ids, nil
}

// SaveUsedIDs replaces the whole set. Since DB is a Claimer the allocator only calls this on a
// pool reset.
func (d *DB) SaveUsedIDs(ctx context.Context, ids []string) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*UsedOrderID)(nil)).
			Where("1 = 1").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("clear used order ids: %w", err)
		}

		if len(ids) == 0 {
			return nil
		}

		now := time.Now().UTC()
		rows := make([]UsedOrderID, len(ids))
		for i, id := range ids {
			rows[i] = UsedOrderID{ID: id, ClaimedAt: now}
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert used order ids: %w", err)
		}
		return nil
	})
}

// Claim inserts id unless it is already present and reports whether this call inserted it.
func (d *DB) Claim(ctx context.Context, id string) (bool, error) {
	res, err := d.Bun.NewInsert().
		Model(&UsedOrderID{ID: id, ClaimedAt: time.Now().UTC()}).
		Ignore().
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("claim order id %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim order id %s: %w", id, err)
	}
	return n == 1, nil
}
