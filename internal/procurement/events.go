package procurement

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Lifecycle event types published after a successful commit.
const (
	EventOrderCreated       = "procurement.order.created"
	EventOrderTransitioned  = "procurement.order.transitioned"
	EventDeliveryUpdated    = "procurement.order.delivery_updated"
	EventReceiptRecorded    = "procurement.order.receipt_recorded"
	EventDiscrepancyFlagged = "procurement.order.discrepancy_flagged"
	EventItemsResolved      = "procurement.order.items_resolved"
	EventOrderResolved      = "procurement.order.resolved"
)

// OrderEvent is the message body for lifecycle events.
type OrderEvent struct {
	ID             uuid.UUID       `json:"id"`
	Type           string          `json:"type"`
	OrderID        int64           `json:"order_id"`
	PONumber       string          `json:"po_number"`
	ProjectID      int64           `json:"project_id"`
	Status         OrderStatus     `json:"status"`
	PreviousStatus OrderStatus     `json:"previous_status,omitempty"`
	DeliveryStatus DeliveryStatus  `json:"delivery_status"`
	NetTotal       decimal.Decimal `json:"net_total"`
	ActorID        int64           `json:"actor_id"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// EventPublisher receives serialized lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, key []byte, value []byte) error
}

func newOrderEvent(kind string, before, after Order, actorID int64, at time.Time) OrderEvent {
	evt := OrderEvent{
		ID:             uuid.New(),
		Type:           kind,
		OrderID:        after.ID,
		PONumber:       after.DisplayNumber(),
		ProjectID:      after.ProjectID,
		Status:         after.Status,
		DeliveryStatus: after.DeliveryStatus,
		NetTotal:       after.NetTotal,
		ActorID:        actorID,
		OccurredAt:     at,
	}
	if before.Status != after.Status {
		evt.PreviousStatus = before.Status
	}
	return evt
}

func (e OrderEvent) key() []byte {
	return []byte(strconv.FormatInt(e.OrderID, 10))
}

func (e OrderEvent) payload() ([]byte, error) {
	return json.Marshal(e)
}
