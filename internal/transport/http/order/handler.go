package order

import (
	"context"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/comanda/internal/dto"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/presentation/http/principal"
	"github.com/Additional-Code/comanda/internal/presentation/http/response"
	service "github.com/Additional-Code/comanda/internal/service/order"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/comanda/transport/http/order")

// Module wires HTTP order handlers behind the gateway identity middleware.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)

// Service is the order engine as seen by the HTTP layer.
type Service interface {
	CreateOrder(ctx context.Context, tenantID, userID string, req service.CreateRequest) (*entity.Order, error)
	AddItem(ctx context.Context, tenantID, userID, orderID string, line service.LineRequest) (*entity.Order, error)
	RemoveItem(ctx context.Context, tenantID, userID, orderID, itemID string) (*entity.Order, error)
	SubmitOrder(ctx context.Context, tenantID, userID, orderID string) (*entity.Order, error)
	MarkOrderReady(ctx context.Context, tenantID, userID, orderID string) (*entity.Order, error)
	CancelOrder(ctx context.Context, tenantID, userID, orderID string) (*entity.Order, error)
	GetOrder(ctx context.Context, tenantID, userID string, isManager bool, orderID string) (*entity.Order, error)
	ListOrders(ctx context.Context, q service.ListQuery) (*service.Page, error)
}

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return New(svc)
}

// New constructs a Handler over any Service implementation.
func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo group.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders", principal.Middleware())
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.POST("/:id/items", h.addItem)
	g.DELETE("/:id/items/:itemId", h.removeItem)
	g.POST("/:id/submit", h.transition("orders.submit", h.svc.SubmitOrder))
	g.POST("/:id/ready", h.transition("orders.ready", h.svc.MarkOrderReady))
	g.POST("/:id/cancel", h.transition("orders.cancel", h.svc.CancelOrder))
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)
	p := principal.From(c)

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create", trace.WithAttributes(
		attribute.String("tenant.id", p.TenantID),
		attribute.String("branch.id", payload.BranchID),
	))
	defer span.End()

	req := service.CreateRequest{
		BranchID:    payload.BranchID,
		ServiceType: payload.ServiceType,
		TableID:     payload.TableID,
		CustomerID:  payload.CustomerID,
		Discount:    payload.Discount,
		Items:       make([]service.LineRequest, 0, len(payload.Items)),
	}
	for _, line := range payload.Items {
		req.Items = append(req.Items, toLine(line))
	}

	order, err := h.svc.CreateOrder(ctx, p.TenantID, p.UserID, req)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.Created(dto.FromOrder(order)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)
	p := principal.From(c)

	q := service.ListQuery{
		TenantID:  p.TenantID,
		UserID:    p.UserID,
		IsManager: p.IsManager(),
		BranchID:  optional(c.QueryParam("branch_id")),
		StatusID:  optional(c.QueryParam("status")),
	}
	var err error
	if q.Page, err = intParam(c, "page"); err != nil {
		return b.WithError(err).Build()
	}
	if q.Size, err = intParam(c, "size"); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list", trace.WithAttributes(attribute.String("tenant.id", p.TenantID)))
	defer span.End()

	page, err := h.svc.ListOrders(ctx, q)
	if err != nil {
		return b.WithError(err).Build()
	}

	items := make([]dto.OrderResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, dto.FromOrder(&page.Items[i]))
	}
	return b.WithData(items).
		WithPage(page.Page, page.Size, page.Total).
		Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	p := principal.From(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.svc.GetOrder(ctx, p.TenantID, p.UserID, p.IsManager(), id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) addItem(c echo.Context) error {
	b := response.New(c)
	p := principal.From(c)
	id := c.Param("id")

	var payload dto.LinePayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.addItem", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.svc.AddItem(ctx, p.TenantID, p.UserID, id, toLine(payload))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.Created(dto.FromOrder(order)).Build()
}

func (h *Handler) removeItem(c echo.Context) error {
	b := response.New(c)
	p := principal.From(c)
	id, itemID := c.Param("id"), c.Param("itemId")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.removeItem", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order_item.id", itemID),
	))
	defer span.End()

	order, err := h.svc.RemoveItem(ctx, p.TenantID, p.UserID, id, itemID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

type transitionFunc func(ctx context.Context, tenantID, userID, orderID string) (*entity.Order, error)

func (h *Handler) transition(spanName string, fn transitionFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		b := response.New(c)
		p := principal.From(c)
		id := c.Param("id")

		ctx, span := httpTracer.Start(c.Request().Context(), spanName, trace.WithAttributes(attribute.String("order.id", id)))
		defer span.End()

		order, err := fn(ctx, p.TenantID, p.UserID, id)
		if err != nil {
			return b.WithError(err).Build()
		}
		return b.WithData(dto.FromOrder(order)).Build()
	}
}

func toLine(p dto.LinePayload) service.LineRequest {
	line := service.LineRequest{
		ProductID: p.ProductID,
		ComboID:   p.ComboID,
		Quantity:  p.Quantity,
		Notes:     p.Notes,
	}
	for _, m := range p.Modifiers {
		line.Modifiers = append(line.Modifiers, service.ModifierRequest{
			Name:            m.Name,
			PriceAdjustment: m.PriceAdjustment,
			Quantity:        m.Quantity,
		})
	}
	return line
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errorbank.BadRequest("invalid "+name, errorbank.WithCause(err), errorbank.WithDetail(name, raw))
	}
	return n, nil
}
