// Package event defines order lifecycle events and publishes them on the
// message bus.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"

	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/messaging"
)

// Event types, carried in the HeaderType message header.
const (
	OrderCreated      = "order.created"
	OrderItemAdded    = "order.item_added"
	OrderItemRemoved  = "order.item_removed"
	OrderSubmitted    = "order.submitted"
	OrderReady        = "order.ready"
	OrderCancelled    = "order.cancelled"
	OrderCompleted    = "order.completed"
	PaymentRegistered = "payment.registered"
)

// HeaderType names the message header holding the event type.
const HeaderType = "event-type"

// OrderEvent is the payload of every lifecycle message.
type OrderEvent struct {
	Type        string          `json:"type"`
	TenantID    string          `json:"tenant_id"`
	BranchID    string          `json:"branch_id"`
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	StatusID    string          `json:"status_id"`
	ServiceType string          `json:"service_type"`
	TableID     *string         `json:"table_id,omitempty"`
	Total       decimal.Decimal `json:"total"`
	ItemID      string          `json:"item_id,omitempty"`
	PaymentID   string          `json:"payment_id,omitempty"`
	ActorID     string          `json:"actor_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// ForOrder snapshots order into an event of the given type.
func ForOrder(eventType string, order *entity.Order, actorID string, at time.Time) OrderEvent {
	return OrderEvent{
		Type:        eventType,
		TenantID:    order.TenantID,
		BranchID:    order.BranchID,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		StatusID:    order.StatusID,
		ServiceType: order.ServiceType,
		TableID:     order.TableID,
		Total:       order.Total,
		ActorID:     actorID,
		OccurredAt:  at,
	}
}

// Decode parses a message produced by Publisher.
func Decode(msg messaging.Message) (OrderEvent, error) {
	var evt OrderEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return OrderEvent{}, fmt.Errorf("decode order event: %w", err)
	}
	if evt.Type == "" {
		evt.Type = msg.Headers[HeaderType]
	}
	return evt, nil
}

// Module provides the lifecycle publisher to Fx.
var Module = fx.Provide(NewPublisher)

// Publisher writes lifecycle events keyed by order id, so one order's events
// stay ordered within a partition.
type Publisher struct {
	client messaging.Client
}

// NewPublisher wraps the messaging client.
func NewPublisher(client messaging.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish encodes and sends evt.
func (p *Publisher) Publish(ctx context.Context, evt OrderEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode order event: %w", err)
	}
	if err := p.client.Publish(ctx, []byte(evt.OrderID), payload, map[string]string{HeaderType: evt.Type}); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}
