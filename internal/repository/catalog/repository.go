package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/repository"
)

// Module provides the catalog repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository is a read-only view of products and combos. Catalog maintenance
// lives elsewhere.
type Repository struct {
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{reader: conns.Reader}
}

// FindProduct loads a product of the tenant.
func (r *Repository) FindProduct(ctx context.Context, id, tenantID string) (*entity.Product, error) {
	p := new(entity.Product)
	err := database.Executor(ctx, r.reader).NewSelect().Model(p).
		Where("pr.id = ?", id).
		Where("pr.tenant_id = ?", tenantID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FindCombo loads a combo of the tenant.
func (r *Repository) FindCombo(ctx context.Context, id, tenantID string) (*entity.Combo, error) {
	c := new(entity.Combo)
	err := database.Executor(ctx, r.reader).NewSelect().Model(c).
		Where("cb.id = ?", id).
		Where("cb.tenant_id = ?", tenantID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
