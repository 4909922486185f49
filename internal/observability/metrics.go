package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Additional-Code/comanda"

// Instruments holds the business counters. They resolve against the global
// meter provider, so they are safe to build before the Manager starts.
type Instruments struct {
	ordersCreated      metric.Int64Counter
	orderTransitions   metric.Int64Counter
	paymentsRegistered metric.Int64Counter
	workerEvents       metric.Int64Counter
}

// NewInstruments registers the counters on the global meter.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(meterName)

	created, err := meter.Int64Counter("comanda.orders.created", metric.WithDescription("Orders opened"))
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("comanda.orders.transitions", metric.WithDescription("Order status transitions"))
	if err != nil {
		return nil, err
	}
	payments, err := meter.Int64Counter("comanda.payments.registered", metric.WithDescription("Payments registered"))
	if err != nil {
		return nil, err
	}
	events, err := meter.Int64Counter("comanda.worker.events", metric.WithDescription("Lifecycle events consumed"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		ordersCreated:      created,
		orderTransitions:   transitions,
		paymentsRegistered: payments,
		workerEvents:       events,
	}, nil
}

// OrderCreated counts an opened order of the service type.
func (i *Instruments) OrderCreated(ctx context.Context, serviceType string) {
	if i == nil {
		return
	}
	i.ordersCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("service_type", serviceType)))
}

// OrderTransitioned counts a move into status.
func (i *Instruments) OrderTransitioned(ctx context.Context, status string) {
	if i == nil {
		return
	}
	i.orderTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// PaymentRegistered counts a payment of method.
func (i *Instruments) PaymentRegistered(ctx context.Context, method string) {
	if i == nil {
		return
	}
	i.paymentsRegistered.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

// WorkerEvent counts a consumed lifecycle event.
func (i *Instruments) WorkerEvent(ctx context.Context, eventType string) {
	if i == nil {
		return
	}
	i.workerEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}
