package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-service-orders/internal/models"
)

// Migrate creates the tables the store needs. It is idempotent and never drops data.
func Migrate(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*models.ServiceOrder)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create service_orders table: %w", err)
	}

	_, err = db.NewCreateTable().
		Model((*models.StatusEvent)(nil)).
		IfNotExists().
		ForeignKey(`("order_id") REFERENCES "service_orders" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create status_history table: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*models.StatusEvent)(nil)).
		Index("status_history_order_id_idx").
		Column("order_id", "seq").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create status_history index: %w", err)
	}

	_, err = db.NewCreateTable().
		Model((*UsedOrderID)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create used_order_ids table: %w", err)
	}

	return nil
}
