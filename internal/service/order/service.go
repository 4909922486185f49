package order

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/cache"
	"github.com/Additional-Code/comanda/internal/config"
	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/event"
	"github.com/Additional-Code/comanda/internal/observability"
	"github.com/Additional-Code/comanda/internal/repository"
	"github.com/Additional-Code/comanda/internal/repository/catalog"
	"github.com/Additional-Code/comanda/internal/repository/customer"
	"github.com/Additional-Code/comanda/internal/repository/history"
	orderrepo "github.com/Additional-Code/comanda/internal/repository/order"
	"github.com/Additional-Code/comanda/internal/repository/tenant"
	"github.com/Additional-Code/comanda/internal/repository/venue"
	"github.com/Additional-Code/comanda/internal/sequence"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/comanda/service/order")

// Module provides the order service to Fx.
var Module = fx.Provide(NewService)

// OrderStore persists orders and their items.
type OrderStore interface {
	Create(ctx context.Context, order *entity.Order) error
	Update(ctx context.Context, order *entity.Order) error
	FindByIDAndTenant(ctx context.Context, id, tenantID string) (*entity.Order, error)
	FindForUpdate(ctx context.Context, id, tenantID string) (*entity.Order, error)
	Version(ctx context.Context, id, tenantID string) (int, error)
	List(ctx context.Context, f orderrepo.ListFilter) ([]entity.Order, int, error)
	AddItem(ctx context.Context, item *entity.OrderItem) error
	RemoveItem(ctx context.Context, orderID, itemID string) error
	MarkItemsSent(ctx context.Context, orderID string, at time.Time) error
}

// VenueStore looks up branches and tracks table occupancy.
type VenueStore interface {
	FindBranch(ctx context.Context, id, tenantID string) (*entity.Branch, error)
	FindTable(ctx context.Context, id, tenantID string) (*entity.Table, error)
	TableBelongsToBranch(ctx context.Context, tableID, branchID, tenantID string) (bool, error)
	OccupyTable(ctx context.Context, table *entity.Table, at time.Time) (bool, error)
	SaveTable(ctx context.Context, table *entity.Table) error
}

// CustomerLookup finds customers.
type CustomerLookup interface {
	FindByIDAndTenant(ctx context.Context, id, tenantID string) (*entity.Customer, error)
}

// CatalogLookup finds sellable products and combos.
type CatalogLookup interface {
	FindProduct(ctx context.Context, id, tenantID string) (*entity.Product, error)
	FindCombo(ctx context.Context, id, tenantID string) (*entity.Combo, error)
}

// TaxRates resolves a tenant's tax rate; an invalid result means unset.
type TaxRates interface {
	TaxRate(ctx context.Context, tenantID string) (decimal.NullDecimal, error)
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
	Venues    VenueStore
	Customers CustomerLookup
	Catalog   CatalogLookup
	Tenants   TaxRates
	History   HistorySink
	Sequence  sequence.Allocator
	Events    EventPublisher
	Cache     cache.Store
	Metrics   *observability.Instruments
	Logger    *zap.Logger
	Settings  config.Orders
	Now       func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Tx        database.TxRunner
	Orders    *orderrepo.Repository
	Venues    *venue.Repository
	Customers *customer.Repository
	Catalog   *catalog.Repository
	Tenants   *tenant.Repository
	History   *history.Repository
	Sequence  sequence.Allocator
	Events    *event.Publisher
	Cache     cache.Store
	Metrics   *observability.Instruments
	Config    config.Config
	Logger    *zap.Logger
}

// Service owns order creation, item mutation and lifecycle transitions.
type Service struct {
	tx        database.TxRunner
	orders    OrderStore
	venues    VenueStore
	customers CustomerLookup
	catalog   CatalogLookup
	tenants   TaxRates
	history   HistorySink
	sequence  sequence.Allocator
	events    EventPublisher
	cache     cache.Store
	metrics   *observability.Instruments
	logger    *zap.Logger
	settings  config.Orders
	now       func() time.Time
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return New(Dependencies{
		Tx:        p.Tx,
		Orders:    p.Orders,
		Venues:    p.Venues,
		Customers: p.Customers,
		Catalog:   p.Catalog,
		Tenants:   p.Tenants,
		History:   p.History,
		Sequence:  p.Sequence,
		Events:    p.Events,
		Cache:     p.Cache,
		Metrics:   p.Metrics,
		Logger:    p.Logger,
		Settings:  p.Config.Orders,
	})
}

// New builds a Service from explicit collaborators.
func New(d Dependencies) *Service {
	s := &Service{
		tx:        d.Tx,
		orders:    d.Orders,
		venues:    d.Venues,
		customers: d.Customers,
		catalog:   d.Catalog,
		tenants:   d.Tenants,
		history:   d.History,
		sequence:  d.Sequence,
		events:    d.Events,
		cache:     d.Cache,
		metrics:   d.Metrics,
		logger:    d.Logger,
		settings:  d.Settings,
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
	if s.settings.Location == nil {
		s.settings.Location = time.UTC
	}
	if s.settings.NumberPrefix == "" {
		s.settings.NumberPrefix = "ORD"
	}
	if s.settings.MaxPageSize <= 0 {
		s.settings.MaxPageSize = 100
	}
	if s.settings.PageSize <= 0 {
		s.settings.PageSize = min(20, s.settings.MaxPageSize)
	}
	return s
}

// lockOrder loads the order for mutation inside the current transaction.
func (s *Service) lockOrder(ctx context.Context, tenantID, orderID string) (*entity.Order, error) {
	order, err := s.orders.FindForUpdate(ctx, orderID, tenantID)
	if err != nil {
		return nil, lookupError(err, "Order", errorbank.CodeOrderNotFound, "failed to load order")
	}
	return order, nil
}

// transition moves order into status and writes the audit row.
func (s *Service) transition(ctx context.Context, order *entity.Order, status, userID string, at time.Time) error {
	order.StatusID = status
	order.UpdatedBy = userID
	order.UpdatedAt = at
	if err := s.orders.Update(ctx, order); err != nil {
		return errorbank.Internal("failed to update order", errorbank.WithCause(err))
	}
	return s.record(ctx, order, userID, at)
}

func (s *Service) record(ctx context.Context, order *entity.Order, userID string, at time.Time) error {
	if err := s.history.Record(ctx, order.TenantID, order.ID, order.StatusID, userID, at); err != nil {
		return errorbank.Internal("failed to record status history", errorbank.WithCause(err))
	}
	return nil
}

// releaseTable frees the order's table. A table deleted in the meantime is
// skipped.
func (s *Service) releaseTable(ctx context.Context, order *entity.Order, at time.Time) error {
	if !order.HoldsTable() {
		return nil
	}
	table, err := s.venues.FindTable(ctx, *order.TableID, order.TenantID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("table to release not found", zap.String("table_id", *order.TableID), zap.String("order_id", order.ID))
		return nil
	}
	if err != nil {
		return errorbank.Internal("failed to load table", errorbank.WithCause(err))
	}
	table.Status = entity.TableStatusAvailable
	table.UpdatedAt = at
	if err := s.venues.SaveTable(ctx, table); err != nil {
		return errorbank.Internal("failed to release table", errorbank.WithCause(err))
	}
	return nil
}

// afterCommit runs the side channels of a successful mutation. None of them
// fail the operation.
func (s *Service) afterCommit(ctx context.Context, evt event.OrderEvent) {
	s.evict(ctx, evt.TenantID, evt.OrderID)
	if s.events != nil {
		if err := s.events.Publish(ctx, evt); err != nil {
			s.logger.Error("publish order event failed",
				zap.String("type", evt.Type),
				zap.String("order_id", evt.OrderID),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) evict(ctx context.Context, tenantID, orderID string) {
	if err := s.cache.Delete(ctx, cache.OrderKey(tenantID, orderID)); err != nil {
		s.logger.Warn("orders cache evict failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *Service) getFromCache(ctx context.Context, tenantID, orderID string) (*entity.Order, error) {
	return cache.GetJSON[entity.Order](ctx, s.cache, cache.OrderKey(tenantID, orderID))
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) {
	if err := cache.SetJSON(ctx, s.cache, cache.OrderKey(order.TenantID, order.ID), order, s.settings.CacheTTL); err != nil {
		s.logger.Warn("orders cache write failed", zap.String("order_id", order.ID), zap.Error(err))
	}
}

// lookupError turns a repository miss into a NotFound for resource and
// anything else into an internal error.
func lookupError(err error, resource, code, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errorbank.Missing(resource, code)
	}
	return errorbank.Internal(msg, errorbank.WithCause(err))
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	if appErr := errorbank.From(err); appErr.Kind() == errorbank.KindInternal {
		span.SetStatus(codes.Error, appErr.Message())
	}
}
