package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Status string

const (
	StatusReceived      Status = "received"
	StatusNeedsQuote    Status = "needs-quote"
	StatusQuoteApproval Status = "quote-approval"
	StatusInProgress    Status = "in-progress"
	StatusWaitingParts  Status = "waiting-parts"
	StatusReady         Status = "ready"
	StatusCompleted     Status = "completed"
	StatusArchived      Status = "archived"
)

// KnownStatuses lists the statuses the workshop uses, in board order.
var KnownStatuses = []Status{
	StatusReceived,
	StatusNeedsQuote,
	StatusQuoteApproval,
	StatusInProgress,
	StatusWaitingParts,
	StatusReady,
	StatusCompleted,
	StatusArchived,
}

func (s Status) IsKnown() bool {
	for _, k := range KnownStatuses {
		if s == k {
			return true
		}
	}
	return false
}

// Archivable reports whether an order in this status may be moved to the archive.
func (s Status) Archivable() bool {
	return s == StatusReady || s == StatusCompleted
}

type Partition string

const (
	PartitionActive   Partition = "active"
	PartitionArchived Partition = "archived"
)

type Customer struct {
	Name    string `bun:"name,notnull" json:"name"`
	Phone   string `bun:"phone,notnull" json:"phone"`
	Email   string `bun:"email,nullzero" json:"email,omitempty"`
	Company string `bun:"company,nullzero" json:"company,omitempty"`
}

type Part struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity" validate:"gte=1"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	IsWarranty  bool            `json:"isWarranty"`
}

type Labor struct {
	Description string          `json:"description"`
	Hours       decimal.Decimal `json:"hours" validate:"gte=0"`
	Rate        decimal.Decimal `json:"rate" validate:"gte=0"`
	IsWarranty  bool            `json:"isWarranty"`
}

// Financials is always derived from parts, labor and tax rate. Never set it by hand.
type Financials struct {
	PartsTotal decimal.Decimal `bun:"parts_total,type:numeric" json:"partsTotal"`
	LaborTotal decimal.Decimal `bun:"labor_total,type:numeric" json:"laborTotal"`
	Subtotal   decimal.Decimal `bun:"subtotal,type:numeric" json:"subtotal"`
	TaxRate    decimal.Decimal `bun:"tax_rate,type:numeric" json:"taxRate"`
	Tax        decimal.Decimal `bun:"tax,type:numeric" json:"tax"`
	Total      decimal.Decimal `bun:"total,type:numeric" json:"total"`
}

type StatusEvent struct {
	bun.BaseModel `bun:"table:status_history,alias:sh"`

	ID        string    `bun:"id,pk" json:"id"`
	OrderID   string    `bun:"order_id,notnull" json:"orderId"`
	Seq       int       `bun:"seq,notnull" json:"seq"`
	Status    Status    `bun:"status,notnull" json:"status"`
	Notes     string    `bun:"notes" json:"notes"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
}

type ServiceOrder struct {
	bun.BaseModel `bun:"table:service_orders,alias:so"`

	ID                 string   `bun:"id,pk" json:"id"`
	Customer           Customer `bun:"embed:customer_" json:"customer"`
	ItemType           string   `bun:"item_type,notnull" json:"itemType"`
	SerialNumber       string   `bun:"serial_number,nullzero" json:"serialNumber,omitempty"`
	Quantity           int      `bun:"quantity,notnull" json:"quantity"`
	Description        string   `bun:"description" json:"description"`
	Urgency            string   `bun:"urgency" json:"urgency"`
	ExpectedCompletion string   `bun:"expected_completion,nullzero" json:"expectedCompletion,omitempty"`
	Status             Status   `bun:"status,notnull" json:"status"`
	Parts              []Part   `bun:"parts" json:"parts"`
	Labor              []Labor  `bun:"labor" json:"labor"`

	Financials `json:"financials"`

	CreatedAt  time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt  time.Time  `bun:"updated_at,notnull" json:"updatedAt"`
	ArchivedAt *time.Time `bun:"archived_at,nullzero" json:"archivedAt,omitempty"`

	StatusHistory []StatusEvent `bun:"rel:has-many,join:id=order_id" json:"statusHistory"`
}

func (o *ServiceOrder) IsArchived() bool {
	return o.ArchivedAt != nil
}

func (o *ServiceOrder) Partition() Partition {
	if o.IsArchived() {
		return PartitionArchived
	}
	return PartitionActive
}

// LastEvent returns the most recent history entry, or nil for an order without history.
func (o *ServiceOrder) LastEvent() *StatusEvent {
	if len(o.StatusHistory) == 0 {
		return nil
	}
	return &o.StatusHistory[len(o.StatusHistory)-1]
}

// DisplayName is the name lists sort by: the company when present, otherwise the customer.
func (o *ServiceOrder) DisplayName() string {
	if o.Customer.Company != "" {
		return o.Customer.Company
	}
	return o.Customer.Name
}

// Clone returns a deep copy so callers never share slices with the owner of the original.
func (o ServiceOrder) Clone() ServiceOrder {
	c := o
	if o.Parts != nil {
		c.Parts = append([]Part(nil), o.Parts...)
	}
	if o.Labor != nil {
		c.Labor = append([]Labor(nil), o.Labor...)
	}
	if o.StatusHistory != nil {
		c.StatusHistory = append([]StatusEvent(nil), o.StatusHistory...)
	}
	if o.ArchivedAt != nil {
		at := *o.ArchivedAt
		c.ArchivedAt = &at
	}
	return c
}
