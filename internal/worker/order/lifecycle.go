package order

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/cache"
	"github.com/Additional-Code/comanda/internal/config"
	"github.com/Additional-Code/comanda/internal/event"
	"github.com/Additional-Code/comanda/internal/messaging"
	"github.com/Additional-Code/comanda/internal/observability"
	"github.com/Additional-Code/comanda/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/comanda/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewLifecycleHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// Params defines dependencies for the lifecycle handler.
type Params struct {
	fx.In

	Logger  *zap.Logger
	Config  config.Config
	Cache   cache.Store
	Metrics *observability.Instruments `optional:"true"`
}

// NewLifecycleHandler consumes order lifecycle events. Every event evicts the
// order's read-cache entry so no replica keeps serving a stale copy.
func NewLifecycleHandler(p Params) worker.HandlerRegistration {
	return worker.HandlerRegistration{
		Topic:   p.Config.Messaging.Kafka.Topic,
		Handler: Handle(p.Cache, p.Metrics, p.Logger),
	}
}

// Handle builds the message handler.
func Handle(store cache.Store, metrics *observability.Instruments, logger *zap.Logger) messaging.Handler {
	return func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.lifecycle", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		evt, err := event.Decode(msg)
		if err != nil {
			// Undecodable messages are dropped; redelivery would fail the same way.
			logger.Error("failed to decode order event", zap.Int64("offset", msg.Offset), zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return nil
		}
		span.SetAttributes(
			attribute.String("event.type", evt.Type),
			attribute.String("order.id", evt.OrderID),
		)

		metrics.WorkerEvent(ctx, evt.Type)
		logger.Info("order event processed",
			zap.String("type", evt.Type),
			zap.String("order_id", evt.OrderID),
			zap.String("order_number", evt.OrderNumber),
			zap.String("tenant_id", evt.TenantID),
			zap.String("status", evt.StatusID),
		)

		if evt.TenantID == "" || evt.OrderID == "" {
			return nil
		}
		if err := store.Delete(ctx, cache.OrderKey(evt.TenantID, evt.OrderID)); err != nil {
			logger.Warn("orders cache evict failed", zap.String("order_id", evt.OrderID), zap.Error(err))
			span.RecordError(err)
			return err
		}
		return nil
	}
}
