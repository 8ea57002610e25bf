package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderEventType string

const (
	OrderEventCreated       OrderEventType = "created"
	OrderEventStatusChanged OrderEventType = "status_changed"
	OrderEventUpdated       OrderEventType = "updated"
	OrderEventArchived      OrderEventType = "archived"
	OrderEventDeleted       OrderEventType = "deleted"
)

// OrderEvent is what gets streamed to other services after a lifecycle mutation.
type OrderEvent struct {
	EventID    string         `json:"eventId"`
	Type       OrderEventType `json:"type"`
	OrderID    string         `json:"orderId"`
	Status     Status         `json:"status,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Order      *ServiceOrder  `json:"order,omitempty"`
}

func NewOrderEvent(eventType OrderEventType, order ServiceOrder, notes string) OrderEvent {
	o := order.Clone()
	return OrderEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		OrderID:    order.ID,
		Status:     order.Status,
		Notes:      notes,
		OccurredAt: time.Now().UTC(),
		Order:      &o,
	}
}
