package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/entity"
)

// Module provides the status history repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository appends order status transitions.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// Record appends one transition of the order into statusID made by userID.
func (r *Repository) Record(ctx context.Context, tenantID, orderID, statusID, userID string, at time.Time) error {
	row := &entity.OrderStatusHistory{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		OrderID:   orderID,
		StatusID:  statusID,
		ChangedBy: userID,
		ChangedAt: at,
	}
	_, err := database.Executor(ctx, r.writer).NewInsert().Model(row).Exec(ctx)
	return err
}

// ListByOrder returns the order's transitions oldest first.
func (r *Repository) ListByOrder(ctx context.Context, tenantID, orderID string) ([]entity.OrderStatusHistory, error) {
	rows := make([]entity.OrderStatusHistory, 0)
	err := database.Executor(ctx, r.reader).NewSelect().Model(&rows).
		Where("osh.tenant_id = ?", tenantID).
		Where("osh.order_id = ?", orderID).
		Order("osh.changed_at ASC").
		Scan(ctx)
	return rows, err
}
