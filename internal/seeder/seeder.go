package seeder

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/entity"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Fixed identifiers of the demo data, so seeding twice is a no-op.
const (
	DemoTenantID   = "7f1c2a9e-0d4b-4c55-9a51-1f0c3e8d2a01"
	DemoBranchID   = "7f1c2a9e-0d4b-4c55-9a51-1f0c3e8d2a02"
	DemoCustomerID = "7f1c2a9e-0d4b-4c55-9a51-1f0c3e8d2a03"
)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger, now: time.Now}
}

// Demo seeds a tenant with one branch, two tables, a small menu and a
// customer. Rows that already exist are left untouched.
func (s *Seeder) Demo(ctx context.Context) (int, error) {
	now := s.now().UTC()
	price := decimal.RequireFromString

	rows := []any{
		&entity.Tenant{ID: DemoTenantID, Name: "Demo Restaurant", TaxRate: decimal.NewNullDecimal(price("0.16")), CreatedAt: now},
		&entity.Branch{ID: DemoBranchID, TenantID: DemoTenantID, Name: "Centro", Active: true},
		&entity.Table{ID: "7f1c2a9e-0d4b-4c55-9a51-1f0c3e8d2a11", TenantID: DemoTenantID, BranchID: DemoBranchID, Number: "1", Capacity: 4, Status: entity.TableStatusAvailable, UpdatedAt: now},
		&entity.Table{ID: "7f1c2a9e-0d4b-4c55-9a51-1f0c3e8d2a12", TenantID: DemoTenantID, BranchID: DemoBranchID, Number: "2", Capacity: 2, Status: entity.TableStatusAvailable, UpdatedAt: now},
		&entity.Product{ID: "7f1c2a9e-0d4b-4c55-9a51-1f0c3e8d2a21", TenantID: DemoTenantID, Name: "Hamburguesa", BasePrice: price("10.50"), Active: true, Available: true},
		&entity.Product{ID: "7f1c2a9e-0d4b-4c55-9a51-1f0c3e8d2a22", TenantID: DemoTenantID, Name: "Papas fritas", BasePrice: price("4.00"), Active: true, Available: true},
		&entity.Product{ID: "7f1c2a9e-0d4b-4c55-9a51-1f0c3e8d2a23", TenantID: DemoTenantID, Name: "Refresco", BasePrice: price("2.50"), Active: true, Available: true},
		&entity.Combo{ID: "7f1c2a9e-0d4b-4c55-9a51-1f0c3e8d2a31", TenantID: DemoTenantID, Name: "Combo hamburguesa", Price: price("15.00"), Active: true},
		&entity.Customer{ID: DemoCustomerID, TenantID: DemoTenantID, Name: "Cliente demo", Phone: "+525500000000", TotalSpent: decimal.Zero},
	}

	inserted := 0
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, row := range rows {
			exists, err := tx.NewSelect().Model(row).WherePK().Exists(ctx)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.logger != nil {
		s.logger.Info("seeded demo tenant", zap.String("tenant_id", DemoTenantID), zap.Int("inserted", inserted))
	}
	return inserted, nil
}
