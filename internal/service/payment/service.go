package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/cache"
	"github.com/Additional-Code/comanda/internal/calculation"
	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/event"
	"github.com/Additional-Code/comanda/internal/observability"
	"github.com/Additional-Code/comanda/internal/repository"
	"github.com/Additional-Code/comanda/internal/repository/customer"
	"github.com/Additional-Code/comanda/internal/repository/history"
	orderrepo "github.com/Additional-Code/comanda/internal/repository/order"
	paymentrepo "github.com/Additional-Code/comanda/internal/repository/payment"
	"github.com/Additional-Code/comanda/internal/repository/venue"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/comanda/service/payment")

// Module provides the payment service to Fx.
var Module = fx.Provide(NewService)

// OrderStore reads and closes orders.
type OrderStore interface {
	FindByIDAndTenant(ctx context.Context, id, tenantID string) (*entity.Order, error)
	FindForUpdate(ctx context.Context, id, tenantID string) (*entity.Order, error)
	Update(ctx context.Context, order *entity.Order) error
}

// PaymentStore appends and reads payments.
type PaymentStore interface {
	Create(ctx context.Context, p *entity.Payment) error
	SumByOrder(ctx context.Context, tenantID, orderID string) (decimal.Decimal, error)
	ListByOrder(ctx context.Context, tenantID, orderID string) ([]entity.Payment, error)
}

// TableStore frees tables of closed orders.
type TableStore interface {
	FindTable(ctx context.Context, id, tenantID string) (*entity.Table, error)
	SaveTable(ctx context.Context, table *entity.Table) error
}

// CustomerStats maintains customer order statistics.
type CustomerStats interface {
	IncrementOrderStats(ctx context.Context, tenantID, customerID string, amount decimal.Decimal, at time.Time) error
}

// HistorySink appends status transitions.
type HistorySink interface {
	Record(ctx context.Context, tenantID, orderID, statusID, userID string, at time.Time) error
}

// EventPublisher emits lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, evt event.OrderEvent) error
}

// Dependencies are the collaborators of Service.
type Dependencies struct {
	Tx        database.TxRunner
	Orders    OrderStore
	Payments  PaymentStore
	Tables    TableStore
	Customers CustomerStats
	History   HistorySink
	Events    EventPublisher
	Cache     cache.Store
	Metrics   *observability.Instruments
	Logger    *zap.Logger
	Now       func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Tx        database.TxRunner
	Orders    *orderrepo.Repository
	Payments  *paymentrepo.Repository
	Venues    *venue.Repository
	Customers *customer.Repository
	History   *history.Repository
	Events    *event.Publisher
	Cache     cache.Store
	Metrics   *observability.Instruments
	Logger    *zap.Logger
}

// Service registers payments and closes settled orders.
type Service struct {
	tx        database.TxRunner
	orders    OrderStore
	payments  PaymentStore
	tables    TableStore
	customers CustomerStats
	history   HistorySink
	events    EventPublisher
	cache     cache.Store
	metrics   *observability.Instruments
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return New(Dependencies{
		Tx:        p.Tx,
		Orders:    p.Orders,
		Payments:  p.Payments,
		Tables:    p.Venues,
		Customers: p.Customers,
		History:   p.History,
		Events:    p.Events,
		Cache:     p.Cache,
		Metrics:   p.Metrics,
		Logger:    p.Logger,
	})
}

// New builds a Service from explicit collaborators.
func New(d Dependencies) *Service {
	s := &Service{
		tx:        d.Tx,
		orders:    d.Orders,
		payments:  d.Payments,
		tables:    d.Tables,
		customers: d.Customers,
		history:   d.History,
		events:    d.Events,
		cache:     d.Cache,
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       d.Now,
	}
	if s.cache == nil {
		s.cache = cache.NewNoop()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RegisterRequest settles an order.
type RegisterRequest struct {
	OrderID        string
	PaymentMethod  string
	AmountTendered decimal.Decimal
	Notes          string
}

// RegisterPayment records a cash payment against a READY order. Once the
// recorded payments cover the total the order is completed, its table freed
// and its customer's statistics updated, all in the same transaction.
func (s *Service) RegisterPayment(ctx context.Context, tenantID, userID string, req RegisterRequest) (*entity.Payment, error) {
	ctx, span := serviceTracer.Start(ctx, "PaymentService.RegisterPayment", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.id", req.OrderID),
	))
	defer span.End()

	method := strings.ToUpper(strings.TrimSpace(req.PaymentMethod))

	var (
		payment   *entity.Payment
		order     *entity.Order
		completed bool
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.orders.FindForUpdate(ctx, req.OrderID, tenantID)
		if err != nil {
			return lookupError(err, "failed to load order")
		}
		if order.StatusID != entity.OrderStatusReady {
			return errorbank.BusinessRule(errorbank.CodeOrderNotReady, "only ready orders can be paid",
				errorbank.WithDetail("status", order.StatusID))
		}
		if method != entity.PaymentMethodCash {
			return errorbank.BusinessRule(errorbank.CodeUnsupportedPaymentMethod, "only cash payments are accepted",
				errorbank.WithDetail("payment_method", req.PaymentMethod))
		}
		if req.AmountTendered.IsNegative() {
			return errorbank.Invalid(errorbank.CodeInvalidAmount, "amount tendered cannot be negative")
		}
		if req.AmountTendered.LessThan(order.Total) {
			return errorbank.Invalid(errorbank.CodeInsufficientPayment, "amount tendered does not cover the order total",
				errorbank.WithDetail("total", order.Total.StringFixed(2)),
				errorbank.WithDetail("amount_tendered", req.AmountTendered.StringFixed(2)),
			)
		}

		now := s.now()
		payment = &entity.Payment{
			ID:             uuid.NewString(),
			TenantID:       tenantID,
			OrderID:        order.ID,
			PaymentMethod:  method,
			Amount:         order.Total,
			AmountReceived: calculation.Round(req.AmountTendered),
			ChangeGiven:    calculation.Round(req.AmountTendered.Sub(order.Total)),
			Notes:          req.Notes,
			CreatedBy:      userID,
			CreatedAt:      now,
		}
		if err := s.payments.Create(ctx, payment); err != nil {
			return errorbank.Internal("failed to record payment", errorbank.WithCause(err))
		}

		paid, err := s.payments.SumByOrder(ctx, tenantID, order.ID)
		if err != nil {
			return errorbank.Internal("failed to sum payments", errorbank.WithCause(err))
		}
		if paid.LessThan(order.Total) {
			return nil
		}

		completed = true
		return s.close(ctx, order, userID, now)
	})
	if err != nil {
		span.RecordError(err)
		if errorbank.IsKind(err, errorbank.KindInternal) {
			span.SetStatus(codes.Error, "register payment failed")
		}
		return nil, err
	}

	s.metrics.PaymentRegistered(ctx, payment.PaymentMethod)
	s.logger.Info("payment registered",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", order.ID),
		zap.String("tenant_id", tenantID),
		zap.Bool("order_completed", completed),
	)

	s.evict(ctx, tenantID, order.ID)
	evt := event.ForOrder(event.PaymentRegistered, order, userID, payment.CreatedAt)
	evt.PaymentID = payment.ID
	s.publish(ctx, evt)
	if completed {
		s.metrics.OrderTransitioned(ctx, order.StatusID)
		s.publish(ctx, event.ForOrder(event.OrderCompleted, order, userID, payment.CreatedAt))
	}
	return payment, nil
}

// close completes the order and applies its downstream effects.
func (s *Service) close(ctx context.Context, order *entity.Order, userID string, at time.Time) error {
	order.StatusID = entity.OrderStatusCompleted
	order.ClosedAt = &at
	order.UpdatedBy = userID
	order.UpdatedAt = at
	if err := s.orders.Update(ctx, order); err != nil {
		return errorbank.Internal("failed to complete order", errorbank.WithCause(err))
	}
	if err := s.history.Record(ctx, order.TenantID, order.ID, order.StatusID, userID, at); err != nil {
		return errorbank.Internal("failed to record status history", errorbank.WithCause(err))
	}

	if order.HoldsTable() {
		if err := s.releaseTable(ctx, order, at); err != nil {
			return err
		}
	}

	if order.CustomerID != nil {
		if err := s.customers.IncrementOrderStats(ctx, order.TenantID, *order.CustomerID, order.Total, at); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				s.logger.Warn("customer of closed order not found", zap.String("customer_id", *order.CustomerID))
				return nil
			}
			return errorbank.Internal("failed to update customer statistics", errorbank.WithCause(err))
		}
	}
	return nil
}

func (s *Service) releaseTable(ctx context.Context, order *entity.Order, at time.Time) error {
	table, err := s.tables.FindTable(ctx, *order.TableID, order.TenantID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("table to release not found", zap.String("table_id", *order.TableID), zap.String("order_id", order.ID))
		return nil
	}
	if err != nil {
		return errorbank.Internal("failed to load table", errorbank.WithCause(err))
	}
	table.Status = entity.TableStatusAvailable
	table.UpdatedAt = at
	if err := s.tables.SaveTable(ctx, table); err != nil {
		return errorbank.Internal("failed to release table", errorbank.WithCause(err))
	}
	return nil
}

// ListPayments returns the payments of an order of the tenant, oldest first.
func (s *Service) ListPayments(ctx context.Context, tenantID, orderID string) ([]entity.Payment, error) {
	ctx, span := serviceTracer.Start(ctx, "PaymentService.ListPayments", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if _, err := s.orders.FindByIDAndTenant(ctx, orderID, tenantID); err != nil {
		err = lookupError(err, "failed to load order")
		span.RecordError(err)
		return nil, err
	}
	payments, err := s.payments.ListByOrder(ctx, tenantID, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, errorbank.Internal("failed to list payments", errorbank.WithCause(err))
	}
	return payments, nil
}

func (s *Service) evict(ctx context.Context, tenantID, orderID string) {
	if err := s.cache.Delete(ctx, cache.OrderKey(tenantID, orderID)); err != nil {
		s.logger.Warn("orders cache evict failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, evt event.OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Error("publish payment event failed",
			zap.String("type", evt.Type),
			zap.String("order_id", evt.OrderID),
			zap.Error(err),
		)
	}
}

func lookupError(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errorbank.Missing("Order", errorbank.CodeOrderNotFound)
	}
	return errorbank.Internal(msg, errorbank.WithCause(err))
}
