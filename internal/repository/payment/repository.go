package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/comanda/repository/payment")

// Module provides the payment repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository appends and reads payments. There is no update or delete.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// Create appends a payment row.
func (r *Repository) Create(ctx context.Context, p *entity.Payment) error {
	if p == nil {
		return errors.New("nil payment")
	}
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.Create", trace.WithAttributes(attribute.String("order.id", p.OrderID)))
	defer span.End()

	if _, err := database.Executor(ctx, r.writer).NewInsert().Model(p).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// SumByOrder totals the amounts of every payment recorded for the order.
func (r *Repository) SumByOrder(ctx context.Context, tenantID, orderID string) (decimal.Decimal, error) {
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.SumByOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	var sum decimal.NullDecimal
	err := database.Executor(ctx, r.writer).NewSelect().Model((*entity.Payment)(nil)).
		ColumnExpr("SUM(p.amount)").
		Where("p.tenant_id = ?", tenantID).
		Where("p.order_id = ?", orderID).
		Scan(ctx, &sum)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sum failed")
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// ListByOrder returns the order's payments oldest first.
func (r *Repository) ListByOrder(ctx context.Context, tenantID, orderID string) ([]entity.Payment, error) {
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.ListByOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	payments := make([]entity.Payment, 0)
	err := database.Executor(ctx, r.reader).NewSelect().Model(&payments).
		Where("p.tenant_id = ?", tenantID).
		Where("p.order_id = ?", orderID).
		Order("p.created_at ASC", "p.id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return payments, nil
}
