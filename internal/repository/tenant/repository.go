package tenant

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/entity"
)

// Module provides the tenant settings repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository reads per-tenant configuration.
type Repository struct {
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{reader: conns.Reader}
}

// TaxRate returns the tenant's configured tax rate. The result is invalid
// (unset) when the tenant has none or does not exist.
func (r *Repository) TaxRate(ctx context.Context, tenantID string) (decimal.NullDecimal, error) {
	var rate decimal.NullDecimal
	err := database.Executor(ctx, r.reader).NewSelect().Model((*entity.Tenant)(nil)).
		Column("t.tax_rate").
		Where("t.id = ?", tenantID).
		Scan(ctx, &rate)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.NullDecimal{}, nil
	}
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return rate, nil
}
