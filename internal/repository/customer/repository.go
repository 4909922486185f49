package customer

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/repository"
)

// Module provides the customer repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository reads customers and maintains their order statistics.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// FindByIDAndTenant loads a customer of the tenant.
func (r *Repository) FindByIDAndTenant(ctx context.Context, id, tenantID string) (*entity.Customer, error) {
	c := new(entity.Customer)
	err := database.Executor(ctx, r.reader).NewSelect().Model(c).
		Where("c.id = ?", id).
		Where("c.tenant_id = ?", tenantID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// IncrementOrderStats counts one more order of amount for the customer.
// The increment happens in SQL so concurrent closures never lose updates.
func (r *Repository) IncrementOrderStats(ctx context.Context, tenantID, customerID string, amount decimal.Decimal, at time.Time) error {
	res, err := database.Executor(ctx, r.writer).NewUpdate().Model((*entity.Customer)(nil)).
		Set("total_orders = total_orders + 1").
		Set("total_spent = total_spent + ?", amount).
		Set("last_order_at = ?", at).
		Where("id = ?", customerID).
		Where("tenant_id = ?", tenantID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
