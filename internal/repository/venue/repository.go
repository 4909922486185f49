// Package venue reads branches and reads/writes dining table occupancy.
package venue

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/repository"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/comanda/repository/venue")

// Module provides the venue repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository covers branches and dining tables.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// FindBranch loads a branch of the tenant.
func (r *Repository) FindBranch(ctx context.Context, id, tenantID string) (*entity.Branch, error) {
	branch := new(entity.Branch)
	err := database.Executor(ctx, r.reader).NewSelect().Model(branch).
		Where("b.id = ?", id).
		Where("b.tenant_id = ?", tenantID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return branch, nil
}

// FindTable loads a dining table of the tenant.
func (r *Repository) FindTable(ctx context.Context, id, tenantID string) (*entity.Table, error) {
	table := new(entity.Table)
	err := database.Executor(ctx, r.reader).NewSelect().Model(table).
		Where("dt.id = ?", id).
		Where("dt.tenant_id = ?", tenantID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return table, nil
}

// TableBelongsToBranch reports whether the table sits in the tenant's branch.
func (r *Repository) TableBelongsToBranch(ctx context.Context, tableID, branchID, tenantID string) (bool, error) {
	return database.Executor(ctx, r.reader).NewSelect().Model((*entity.Table)(nil)).
		Where("dt.id = ?", tableID).
		Where("dt.branch_id = ?", branchID).
		Where("dt.tenant_id = ?", tenantID).
		Exists(ctx)
}

// OccupyTable flips an AVAILABLE table to OCCUPIED. It reports false when the
// table was no longer available, so two orders never claim the same table.
func (r *Repository) OccupyTable(ctx context.Context, table *entity.Table, at time.Time) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "VenueRepository.OccupyTable", trace.WithAttributes(attribute.String("table.id", table.ID)))
	defer span.End()

	res, err := database.Executor(ctx, r.writer).NewUpdate().Model((*entity.Table)(nil)).
		Set("status = ?", entity.TableStatusOccupied).
		Set("updated_at = ?", at).
		Where("id = ?", table.ID).
		Where("tenant_id = ?", table.TenantID).
		Where("status = ?", entity.TableStatusAvailable).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		table.Status = entity.TableStatusOccupied
		table.UpdatedAt = at
	}
	return n == 1, nil
}

// SaveTable writes the table's status.
func (r *Repository) SaveTable(ctx context.Context, table *entity.Table) error {
	_, err := database.Executor(ctx, r.writer).NewUpdate().Model(table).
		Column("status", "updated_at").
		WherePK().
		Where("tenant_id = ?", table.TenantID).
		Exec(ctx)
	return err
}
