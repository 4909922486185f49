package order

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/event"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

// SubmitOrder sends a PENDING order with items to the kitchen.
func (s *Service) SubmitOrder(ctx context.Context, tenantID, userID, orderID string) (*entity.Order, error) {
	return s.move(ctx, "OrderService.SubmitOrder", event.OrderSubmitted, tenantID, userID, orderID,
		func(ctx context.Context, order *entity.Order) error {
			if order.StatusID != entity.OrderStatusPending {
				return errorbank.BusinessRule(errorbank.CodeOrderNotModifiable,
					"only pending orders can be submitted",
					errorbank.WithDetail("status", order.StatusID),
				)
			}
			if len(order.Items) == 0 {
				return errorbank.BusinessRule(errorbank.CodeOrderHasNoItems, "order has no items")
			}

			now := s.now()
			if err := s.orders.MarkItemsSent(ctx, order.ID, now); err != nil {
				return errorbank.Internal("failed to dispatch items", errorbank.WithCause(err))
			}
			for i := range order.Items {
				if order.Items[i].KDSSentAt == nil {
					order.Items[i].KDSSentAt = &now
					order.Items[i].KDSStatus = entity.KDSStatusSent
				}
			}
			return s.transition(ctx, order, entity.OrderStatusInProgress, userID, now)
		})
}

// MarkOrderReady flags an IN_PROGRESS order as ready for pickup or payment.
func (s *Service) MarkOrderReady(ctx context.Context, tenantID, userID, orderID string) (*entity.Order, error) {
	return s.move(ctx, "OrderService.MarkOrderReady", event.OrderReady, tenantID, userID, orderID,
		func(ctx context.Context, order *entity.Order) error {
			if order.StatusID != entity.OrderStatusInProgress {
				return errorbank.BusinessRule(errorbank.CodeOrderNotInProgress,
					"only orders in progress can be marked ready",
					errorbank.WithDetail("status", order.StatusID),
				)
			}
			return s.transition(ctx, order, entity.OrderStatusReady, userID, s.now())
		})
}

// CancelOrder closes a non-terminal order and frees its table.
func (s *Service) CancelOrder(ctx context.Context, tenantID, userID, orderID string) (*entity.Order, error) {
	return s.move(ctx, "OrderService.CancelOrder", event.OrderCancelled, tenantID, userID, orderID,
		func(ctx context.Context, order *entity.Order) error {
			if order.IsTerminal() {
				return errorbank.BusinessRule(errorbank.CodeOrderAlreadyTerminal,
					"order is already closed",
					errorbank.WithDetail("status", order.StatusID),
				)
			}
			now := s.now()
			order.ClosedAt = &now
			if err := s.transition(ctx, order, entity.OrderStatusCancelled, userID, now); err != nil {
				return err
			}
			return s.releaseTable(ctx, order, now)
		})
}

// move runs one status change on the locked order inside a transaction and
// emits eventType once it commits.
func (s *Service) move(ctx context.Context, spanName, eventType, tenantID, userID, orderID string, apply func(context.Context, *entity.Order) error) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, spanName, trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	var order *entity.Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if order, err = s.lockOrder(ctx, tenantID, orderID); err != nil {
			return err
		}
		return apply(ctx, order)
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	s.metrics.OrderTransitioned(ctx, order.StatusID)
	s.logger.Info("order status changed",
		zap.String("order_id", order.ID),
		zap.String("tenant_id", order.TenantID),
		zap.String("status", order.StatusID),
	)
	s.afterCommit(ctx, event.ForOrder(eventType, order, userID, order.UpdatedAt))
	return order, nil
}
