package payment

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/comanda/internal/dto"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/presentation/http/principal"
	"github.com/Additional-Code/comanda/internal/presentation/http/response"
	service "github.com/Additional-Code/comanda/internal/service/payment"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/comanda/transport/http/payment")

// Module wires HTTP payment handlers.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)

// Service is the payment engine as seen by the HTTP layer.
type Service interface {
	RegisterPayment(ctx context.Context, tenantID, userID string, req service.RegisterRequest) (*entity.Payment, error)
	ListPayments(ctx context.Context, tenantID, orderID string) ([]entity.Payment, error)
}

// Handler exposes payment endpoints over HTTP.
type Handler struct {
	svc Service
}

// NewHandler constructs a payment Handler.
func NewHandler(svc *service.Service) *Handler {
	return New(svc)
}

// New constructs a Handler over any Service implementation.
func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	identity := principal.Middleware()
	e.POST("/payments", h.register, identity)
	e.GET("/orders/:id/payments", h.list, identity)
}

func (h *Handler) register(c echo.Context) error {
	b := response.New(c)
	p := principal.From(c)

	var payload dto.RegisterPaymentRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "payments.register", trace.WithAttributes(
		attribute.String("tenant.id", p.TenantID),
		attribute.String("order.id", payload.OrderID),
	))
	defer span.End()

	payment, err := h.svc.RegisterPayment(ctx, p.TenantID, p.UserID, service.RegisterRequest{
		OrderID:        payload.OrderID,
		PaymentMethod:  payload.PaymentMethod,
		AmountTendered: payload.AmountTendered,
		Notes:          payload.Notes,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.Created(dto.FromPayment(payment)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)
	p := principal.From(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "payments.list", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	payments, err := h.svc.ListPayments(ctx, p.TenantID, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	out := make([]dto.PaymentResponse, 0, len(payments))
	for i := range payments {
		out = append(out, dto.FromPayment(&payments[i]))
	}
	return b.WithData(out).Build()
}
