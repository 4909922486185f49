package order

import (
	"context"
	"errors"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/cache"
	"github.com/Additional-Code/comanda/internal/entity"
	orderrepo "github.com/Additional-Code/comanda/internal/repository/order"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

// ListQuery selects a page of a tenant's orders.
type ListQuery struct {
	TenantID  string
	UserID    string
	IsManager bool
	BranchID  *string
	StatusID  *string
	Page      int
	Size      int
}

// Page is one slice of a listing.
type Page struct {
	Items []entity.Order
	Page  int
	Size  int
	Total int
}

// GetOrder returns an order of the tenant. Non managers only see their own
// orders; anything else is reported as missing.
func (s *Service) GetOrder(ctx context.Context, tenantID, userID string, isManager bool, orderID string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.GetOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	order, err := s.getFromCache(ctx, tenantID, orderID)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("orders cache read failed", zap.String("order_id", orderID), zap.Error(err))
		}
		order, err = s.orders.FindByIDAndTenant(ctx, orderID, tenantID)
		if err != nil {
			err = lookupError(err, "Order", errorbank.CodeOrderNotFound, "failed to load order")
			recordSpanError(span, err)
			return nil, err
		}
		s.fillCache(ctx, order)
	}

	if order.TenantID != tenantID || (!isManager && order.CreatedBy != userID) {
		return nil, errorbank.Missing("Order", errorbank.CodeOrderNotFound)
	}
	return order, nil
}

// ListOrders pages through the tenant's orders, newest first. Non managers
// only see orders they created.
func (s *Service) ListOrders(ctx context.Context, q ListQuery) (*Page, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.ListOrders", trace.WithAttributes(attribute.String("tenant.id", q.TenantID)))
	defer span.End()

	if q.StatusID != nil && !entity.ValidOrderStatus(*q.StatusID) {
		return nil, errorbank.Invalid(errorbank.CodeInvalidStatus, "unknown order status",
			errorbank.WithDetail("status", *q.StatusID))
	}

	page, size := s.clampPage(q.Page, q.Size)
	filter := orderrepo.ListFilter{
		TenantID: q.TenantID,
		BranchID: q.BranchID,
		StatusID: q.StatusID,
		Limit:    size,
		Offset:   (page - 1) * size,
	}
	if !q.IsManager {
		filter.CreatedBy = &q.UserID
	}

	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		err = errorbank.Internal("failed to list orders", errorbank.WithCause(err))
		recordSpanError(span, err)
		return nil, err
	}
	return &Page{Items: orders, Page: page, Size: size, Total: total}, nil
}

// fillCache caches an order read outside a transaction. A mutation that
// committed between the read and the write is caught by the version check;
// one that commits later evicts the entry itself.
func (s *Service) fillCache(ctx context.Context, order *entity.Order) {
	s.storeInCache(ctx, order)
	current, err := s.orders.Version(ctx, order.ID, order.TenantID)
	if err == nil && current == order.Version {
		return
	}
	if err != nil {
		s.logger.Warn("orders cache version check failed", zap.String("order_id", order.ID), zap.Error(err))
	}
	s.evict(ctx, order.TenantID, order.ID)
}

func (s *Service) clampPage(page, size int) (int, int) {
	if size < 1 {
		size = s.settings.PageSize
	}
	size = min(size, s.settings.MaxPageSize)
	return min(max(page, 1), math.MaxInt32/size), size
}
