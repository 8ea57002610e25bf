package db

import (
	"time"

	"github.com/uptrace/bun"
)

// UsedOrderID is one issued order id. The primary key makes Claim atomic across processes.
type UsedOrderID struct {
	bun.BaseModel `bun:"table:used_order_ids,alias:uid"`

	ID        string    `bun:"id,pk"`
	ClaimedAt time.Time `bun:"claimed_at,notnull"`
}
