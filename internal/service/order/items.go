package order

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/calculation"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/event"
	"github.com/Additional-Code/comanda/internal/repository"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

// AddItem prices line from the catalog and appends it to a PENDING order.
func (s *Service) AddItem(ctx context.Context, tenantID, userID, orderID string, line LineRequest) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.AddItem", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if err := validateLine(0, &line); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	var (
		order *entity.Order
		added *entity.OrderItem
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if order, err = s.modifiableOrder(ctx, tenantID, orderID); err != nil {
			return err
		}

		now := s.now()
		if added, err = s.resolveLine(ctx, tenantID, order.ID, line, now); err != nil {
			return err
		}
		added.Position = nextPosition(order.Items)
		if err := s.orders.AddItem(ctx, added); err != nil {
			return errorbank.Internal("failed to add item", errorbank.WithCause(err))
		}

		order.Items = append(order.Items, *added)
		return s.saveTotals(ctx, order, userID)
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	evt := event.ForOrder(event.OrderItemAdded, order, userID, order.UpdatedAt)
	evt.ItemID = added.ID
	s.afterCommit(ctx, evt)
	return order, nil
}

// RemoveItem deletes an item from a PENDING order.
func (s *Service) RemoveItem(ctx context.Context, tenantID, userID, orderID, itemID string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.RemoveItem", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order_item.id", itemID),
	))
	defer span.End()

	var order *entity.Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if order, err = s.modifiableOrder(ctx, tenantID, orderID); err != nil {
			return err
		}

		idx := order.ItemIndex(itemID)
		if idx < 0 {
			return errorbank.Missing("OrderItem", errorbank.CodeOrderItemNotFound)
		}
		if err := s.orders.RemoveItem(ctx, order.ID, itemID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return errorbank.Missing("OrderItem", errorbank.CodeOrderItemNotFound)
			}
			return errorbank.Internal("failed to remove item", errorbank.WithCause(err))
		}

		order.Items = append(order.Items[:idx], order.Items[idx+1:]...)
		return s.saveTotals(ctx, order, userID)
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	s.logger.Debug("order item removed", zap.String("order_id", orderID), zap.String("item_id", itemID))
	evt := event.ForOrder(event.OrderItemRemoved, order, userID, order.UpdatedAt)
	evt.ItemID = itemID
	s.afterCommit(ctx, evt)
	return order, nil
}

// modifiableOrder locks the order and requires it to still be PENDING.
func (s *Service) modifiableOrder(ctx context.Context, tenantID, orderID string) (*entity.Order, error) {
	order, err := s.lockOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if order.StatusID != entity.OrderStatusPending {
		return nil, errorbank.BusinessRule(errorbank.CodeOrderNotModifiable,
			"only pending orders can be modified",
			errorbank.WithDetail("status", order.StatusID),
		)
	}
	return order, nil
}

// saveTotals recomputes the order from its items and persists it.
func (s *Service) saveTotals(ctx context.Context, order *entity.Order, userID string) error {
	calculation.Recalculate(order)
	order.UpdatedBy = userID
	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, order); err != nil {
		return errorbank.Internal("failed to update order", errorbank.WithCause(err))
	}
	return nil
}

func nextPosition(items []entity.OrderItem) int {
	last := 0
	for _, it := range items {
		last = max(last, it.Position)
	}
	return last + 1
}
