package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/cache"
	"github.com/Additional-Code/comanda/internal/calculation"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/event"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

// ModifierRequest is a priced adjustment requested for a line.
type ModifierRequest struct {
	Name            string
	PriceAdjustment decimal.Decimal
	Quantity        int
}

// LineRequest asks for a product or a combo, never both.
type LineRequest struct {
	ProductID *string
	ComboID   *string
	Quantity  int
	Notes     string
	Modifiers []ModifierRequest
}

// CreateRequest describes a new order.
type CreateRequest struct {
	BranchID    string
	ServiceType string
	TableID     *string
	CustomerID  *string
	Discount    decimal.Decimal
	Items       []LineRequest
}

// CreateOrder validates the request against the tenant's venue and catalog,
// allocates the daily order number and opens the order as PENDING.
func (s *Service) CreateOrder(ctx context.Context, tenantID, userID string, req CreateRequest) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.CreateOrder", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("branch.id", req.BranchID),
		attribute.String("order.service_type", req.ServiceType),
	))
	defer span.End()

	if err := validateCreate(&req); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	var order *entity.Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.openOrder(ctx, tenantID, userID, req)
		return err
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	s.metrics.OrderCreated(ctx, order.ServiceType)
	s.metrics.OrderTransitioned(ctx, order.StatusID)
	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("tenant_id", tenantID),
		zap.String("branch_id", order.BranchID),
	)
	s.afterCommit(ctx, event.ForOrder(event.OrderCreated, order, userID, order.OpenedAt))
	return order, nil
}

func (s *Service) openOrder(ctx context.Context, tenantID, userID string, req CreateRequest) (*entity.Order, error) {
	if _, err := s.venues.FindBranch(ctx, req.BranchID, tenantID); err != nil {
		return nil, lookupError(err, "Branch", errorbank.CodeBranchNotFound, "failed to load branch")
	}

	var table *entity.Table
	if req.ServiceType == entity.ServiceTypeDineIn {
		var err error
		if table, err = s.availableTable(ctx, tenantID, req.BranchID, *req.TableID); err != nil {
			return nil, err
		}
	}

	if req.CustomerID != nil {
		if _, err := s.customers.FindByIDAndTenant(ctx, *req.CustomerID, tenantID); err != nil {
			return nil, lookupError(err, "Customer", errorbank.CodeCustomerNotFound, "failed to load customer")
		}
	}

	now := s.now()
	orderID := uuid.NewString()
	items := make([]entity.OrderItem, 0, len(req.Items))
	for i, line := range req.Items {
		item, err := s.resolveLine(ctx, tenantID, orderID, line, now)
		if err != nil {
			return nil, err
		}
		item.Position = i + 1
		items = append(items, *item)
	}

	rate, err := s.taxRate(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	businessDay := now.In(s.settings.Location)
	businessDate := businessDay.Format(time.DateOnly)
	seq, err := s.sequence.Next(ctx, tenantID, req.BranchID, businessDate)
	if err != nil {
		return nil, errorbank.Internal("failed to allocate order number", errorbank.WithCause(err))
	}

	order := &entity.Order{
		ID:            orderID,
		TenantID:      tenantID,
		BranchID:      req.BranchID,
		CustomerID:    req.CustomerID,
		ServiceType:   req.ServiceType,
		OrderNumber:   FormatNumber(s.settings.NumberPrefix, businessDay, seq),
		BusinessDate:  businessDate,
		DailySequence: seq,
		TaxRate:       rate,
		Discount:      calculation.Round(req.Discount),
		StatusID:      entity.OrderStatusPending,
		OpenedAt:      now,
		CreatedBy:     userID,
		UpdatedBy:     userID,
		UpdatedAt:     now,
		Items:         items,
	}
	if table != nil {
		order.TableID = &table.ID
	}
	calculation.Recalculate(order)

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}

	if table != nil {
		occupied, err := s.venues.OccupyTable(ctx, table, now)
		if err != nil {
			return nil, errorbank.Internal("failed to occupy table", errorbank.WithCause(err))
		}
		if !occupied {
			return nil, tableNotAvailable(table)
		}
	}

	if err := s.record(ctx, order, userID, now); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) availableTable(ctx context.Context, tenantID, branchID, tableID string) (*entity.Table, error) {
	table, err := s.venues.FindTable(ctx, tableID, tenantID)
	if err != nil {
		return nil, lookupError(err, "Table", errorbank.CodeTableNotFound, "failed to load table")
	}
	belongs, err := s.venues.TableBelongsToBranch(ctx, tableID, branchID, tenantID)
	if err != nil {
		return nil, errorbank.Internal("failed to check table branch", errorbank.WithCause(err))
	}
	if !belongs {
		return nil, errorbank.Missing("Table", errorbank.CodeTableNotFound)
	}
	if table.Status != entity.TableStatusAvailable {
		return nil, tableNotAvailable(table)
	}
	return table, nil
}

func tableNotAvailable(table *entity.Table) error {
	return errorbank.BusinessRule(errorbank.CodeTableNotAvailable,
		fmt.Sprintf("table %s is not available", table.Number),
		errorbank.WithDetail("table_id", table.ID),
	)
}

// resolveLine prices a requested line from the catalog.
func (s *Service) resolveLine(ctx context.Context, tenantID, orderID string, line LineRequest, at time.Time) (*entity.OrderItem, error) {
	item := &entity.OrderItem{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Quantity:  line.Quantity,
		Notes:     line.Notes,
		KDSStatus: entity.KDSStatusPending,
		CreatedAt: at,
	}

	if line.ProductID != nil {
		product, err := s.catalog.FindProduct(ctx, *line.ProductID, tenantID)
		if err != nil {
			return nil, lookupError(err, "Product", errorbank.CodeProductNotFound, "failed to load product")
		}
		if !product.Active || !product.Available {
			return nil, errorbank.BusinessRule(errorbank.CodeProductNotAvailable,
				fmt.Sprintf("product %s is not available", product.Name),
				errorbank.WithDetail("product_id", product.ID),
			)
		}
		item.ProductID = &product.ID
		item.ProductName = product.Name
		item.UnitPrice = product.BasePrice
	} else {
		combo, err := s.catalog.FindCombo(ctx, *line.ComboID, tenantID)
		if err != nil {
			return nil, lookupError(err, "Combo", errorbank.CodeComboNotFound, "failed to load combo")
		}
		if !combo.Active {
			return nil, errorbank.BusinessRule(errorbank.CodeProductNotAvailable,
				fmt.Sprintf("combo %s is not available", combo.Name),
				errorbank.WithDetail("combo_id", combo.ID),
			)
		}
		item.ComboID = &combo.ID
		item.ProductName = combo.Name
		item.UnitPrice = combo.Price
	}

	item.Modifiers = make([]entity.OrderItemModifier, 0, len(line.Modifiers))
	for _, m := range line.Modifiers {
		qty := m.Quantity
		if qty == 0 {
			qty = 1
		}
		item.Modifiers = append(item.Modifiers, entity.OrderItemModifier{
			ID:              uuid.NewString(),
			OrderItemID:     item.ID,
			Name:            m.Name,
			PriceAdjustment: m.PriceAdjustment,
			Quantity:        qty,
		})
	}
	item.ModifiersTotal = calculation.ModifiersTotal(item.Modifiers)
	return item, nil
}

// taxRate resolves the tenant's rate through the cache, falling back to the
// configured default when the tenant has none.
func (s *Service) taxRate(ctx context.Context, tenantID string) (decimal.Decimal, error) {
	key := cache.TaxRateKey(tenantID)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		if len(raw) == 0 {
			return s.settings.DefaultTaxRate, nil
		}
		if rate, err := decimal.NewFromString(string(raw)); err == nil {
			return rate, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("tax rate cache read failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}

	rate, err := s.tenants.TaxRate(ctx, tenantID)
	if err != nil {
		return decimal.Zero, errorbank.Internal("failed to load tax rate", errorbank.WithCause(err))
	}

	var cached []byte
	if rate.Valid {
		cached = []byte(rate.Decimal.String())
	}
	if err := s.cache.Set(ctx, key, cached, s.settings.CacheTTL); err != nil {
		s.logger.Warn("tax rate cache write failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}

	if !rate.Valid {
		return s.settings.DefaultTaxRate, nil
	}
	return rate.Decimal, nil
}

// FormatNumber renders PREFIX-YYYYMMDD-NNN; sequences above 999 widen.
func FormatNumber(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", prefix, day.Format("20060102"), seq)
}

func validateCreate(req *CreateRequest) error {
	if !entity.ValidServiceType(req.ServiceType) {
		return errorbank.Invalid(errorbank.CodeInvalidServiceType,
			fmt.Sprintf("unknown service type %q", req.ServiceType))
	}
	switch req.ServiceType {
	case entity.ServiceTypeDineIn:
		if req.TableID == nil || *req.TableID == "" {
			return errorbank.Invalid(errorbank.CodeTableRequired, "dine-in orders need a table")
		}
	case entity.ServiceTypeDelivery:
		if req.CustomerID == nil || *req.CustomerID == "" {
			return errorbank.Invalid(errorbank.CodeCustomerRequired, "delivery orders need a customer")
		}
	}
	if req.ServiceType != entity.ServiceTypeDineIn {
		req.TableID = nil
	}
	if req.CustomerID != nil && *req.CustomerID == "" {
		req.CustomerID = nil
	}
	if req.Discount.IsNegative() {
		return errorbank.Invalid(errorbank.CodeInvalidDiscount, "discount must not be negative")
	}
	for i := range req.Items {
		if err := validateLine(i, &req.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateLine checks the shape of a line and drops empty ids.
func validateLine(i int, line *LineRequest) error {
	if line.ProductID != nil && *line.ProductID == "" {
		line.ProductID = nil
	}
	if line.ComboID != nil && *line.ComboID == "" {
		line.ComboID = nil
	}
	if (line.ProductID == nil) == (line.ComboID == nil) {
		return errorbank.Invalid(errorbank.CodeInvalidOrderLine, "a line names exactly one product or combo",
			errorbank.WithDetail("line", i))
	}
	if line.Quantity < 1 {
		return errorbank.Invalid(errorbank.CodeInvalidQuantity, "quantity must be at least 1",
			errorbank.WithDetail("line", i))
	}
	for _, m := range line.Modifiers {
		if m.Quantity < 0 {
			return errorbank.Invalid(errorbank.CodeInvalidQuantity, "modifier quantity must not be negative",
				errorbank.WithDetail("line", i))
		}
	}
	return nil
}
