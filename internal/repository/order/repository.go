package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/repository"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/comanda/repository/order")

// Module provides the order repository to Fx.
var Module = fx.Provide(NewRepository)

// ListFilter narrows a tenant's orders. Nil pointers mean "no filter".
type ListFilter struct {
	TenantID  string
	CreatedBy *string
	BranchID  *string
	StatusID  *string
	Limit     int
	Offset    int
}

// Repository encapsulates read/write access for orders and their items.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create persists a new order together with its items and modifiers.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(
		attribute.String("order.number", order.OrderNumber),
		attribute.String("tenant.id", order.TenantID),
	))
	defer span.End()

	db := database.Executor(ctx, r.writer)
	if _, err := db.NewInsert().Model(order).Exec(ctx); err != nil {
		return fail(span, err, "insert failed")
	}
	for i := range order.Items {
		if err := insertItem(ctx, db, &order.Items[i]); err != nil {
			return fail(span, err, "insert item failed")
		}
	}
	return nil
}

// Update writes the mutable columns of an order.
func (r *Repository) Update(ctx context.Context, order *entity.Order) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Update", trace.WithAttributes(attribute.String("order.id", order.ID)))
	defer span.End()

	order.Version++
	_, err := database.Executor(ctx, r.writer).NewUpdate().Model(order).
		Column("subtotal", "tax", "discount", "total", "status_id", "closed_at", "updated_by", "updated_at", "version").
		WherePK().
		Where("tenant_id = ?", order.TenantID).
		Exec(ctx)
	if err != nil {
		order.Version--
		return fail(span, err, "update failed")
	}
	return nil
}

// Version reads the committed version of an order from the writer.
func (r *Repository) Version(ctx context.Context, id, tenantID string) (int, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Version", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	var version int
	err := database.Executor(ctx, r.writer).NewSelect().Model((*entity.Order)(nil)).
		Column("o.version").
		Where("o.id = ?", id).
		Where("o.tenant_id = ?", tenantID).
		Scan(ctx, &version)
	if err != nil {
		return 0, fail(span, notFound(err), "version select failed")
	}
	return version, nil
}

// FindByIDAndTenant loads an order with items and modifiers. Orders of other
// tenants are reported as missing.
func (r *Repository) FindByIDAndTenant(ctx context.Context, id, tenantID string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.FindByIDAndTenant", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := r.load(ctx, database.Executor(ctx, r.reader), id, tenantID)
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return order, nil
}

// FindForUpdate row-locks the order for the rest of the surrounding
// transaction, then loads it.
func (r *Repository) FindForUpdate(ctx context.Context, id, tenantID string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.FindForUpdate", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	db := database.Executor(ctx, r.writer)
	if database.SupportsRowLocks(db) {
		var locked string
		err := db.NewSelect().Model((*entity.Order)(nil)).
			Column("o.id").
			Where("o.id = ?", id).
			Where("o.tenant_id = ?", tenantID).
			For("UPDATE").
			Scan(ctx, &locked)
		if err != nil {
			return nil, fail(span, notFound(err), "lock failed")
		}
	}

	order, err := r.load(ctx, db, id, tenantID)
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return order, nil
}

// List returns one page of orders plus the total number matching the filter.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]entity.Order, int, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List", trace.WithAttributes(attribute.String("tenant.id", f.TenantID)))
	defer span.End()

	orders := make([]entity.Order, 0)
	q := database.Executor(ctx, r.reader).NewSelect().Model(&orders).
		Relation("Items", orderItems).
		Relation("Items.Modifiers").
		Where("o.tenant_id = ?", f.TenantID)
	if f.CreatedBy != nil {
		q = q.Where("o.created_by = ?", *f.CreatedBy)
	}
	if f.BranchID != nil {
		q = q.Where("o.branch_id = ?", *f.BranchID)
	}
	if f.StatusID != nil {
		q = q.Where("o.status_id = ?", *f.StatusID)
	}

	total, err := q.Order("o.opened_at DESC", "o.id ASC").
		Limit(f.Limit).
		Offset(f.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fail(span, err, "list failed")
	}
	return orders, total, nil
}

// AddItem persists a new item (and its modifiers) on an existing order.
func (r *Repository) AddItem(ctx context.Context, item *entity.OrderItem) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.AddItem", trace.WithAttributes(attribute.String("order.id", item.OrderID)))
	defer span.End()

	if err := insertItem(ctx, database.Executor(ctx, r.writer), item); err != nil {
		return fail(span, err, "insert item failed")
	}
	return nil
}

// RemoveItem deletes an item of the order together with its modifiers.
func (r *Repository) RemoveItem(ctx context.Context, orderID, itemID string) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.RemoveItem", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order_item.id", itemID),
	))
	defer span.End()

	db := database.Executor(ctx, r.writer)
	if _, err := db.NewDelete().Model((*entity.OrderItemModifier)(nil)).
		Where("order_item_id = ?", itemID).
		Exec(ctx); err != nil {
		return fail(span, err, "delete modifiers failed")
	}

	res, err := db.NewDelete().Model((*entity.OrderItem)(nil)).
		Where("id = ?", itemID).
		Where("order_id = ?", orderID).
		Exec(ctx)
	if err != nil {
		return fail(span, err, "delete item failed")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		span.SetStatus(codes.Error, "not found")
		return repository.ErrNotFound
	}
	return nil
}

// MarkItemsSent stamps the kitchen dispatch time on every item of the order
// that has not been dispatched yet.
func (r *Repository) MarkItemsSent(ctx context.Context, orderID string, at time.Time) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.MarkItemsSent", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	_, err := database.Executor(ctx, r.writer).NewUpdate().Model((*entity.OrderItem)(nil)).
		Set("kds_sent_at = ?", at).
		Set("kds_status = ?", entity.KDSStatusSent).
		Where("order_id = ?", orderID).
		Where("kds_sent_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fail(span, err, "update items failed")
	}
	return nil
}

func (r *Repository) load(ctx context.Context, db bun.IDB, id, tenantID string) (*entity.Order, error) {
	order := new(entity.Order)
	err := db.NewSelect().Model(order).
		Relation("Items", orderItems).
		Relation("Items.Modifiers").
		Where("o.id = ?", id).
		Where("o.tenant_id = ?", tenantID).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return order, nil
}

func orderItems(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("oi.position ASC")
}

func insertItem(ctx context.Context, db bun.IDB, item *entity.OrderItem) error {
	if _, err := db.NewInsert().Model(item).Exec(ctx); err != nil {
		return err
	}
	if len(item.Modifiers) == 0 {
		return nil
	}
	_, err := db.NewInsert().Model(&item.Modifiers).Exec(ctx)
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

func fail(span trace.Span, err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		span.SetStatus(codes.Error, "not found")
		return err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}
