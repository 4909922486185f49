package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Table occupancy states.
const (
	TableStatusAvailable = "AVAILABLE"
	TableStatusOccupied  = "OCCUPIED"
	TableStatusReserved  = "RESERVED"
)

// Tenant is an isolated restaurant account.
type Tenant struct {
	bun.BaseModel `bun:"table:tenants,alias:t"`

	ID        string              `bun:"id,pk"`
	Name      string              `bun:"name,notnull"`
	TaxRate   decimal.NullDecimal `bun:"tax_rate,type:numeric(6,4)"`
	CreatedAt time.Time           `bun:"created_at,notnull"`
}

// Branch is a physical location of a tenant.
type Branch struct {
	bun.BaseModel `bun:"table:branches,alias:b"`

	ID       string `bun:"id,pk"`
	TenantID string `bun:"tenant_id,notnull"`
	Name     string `bun:"name,notnull"`
	Active   bool   `bun:"active,notnull"`
}

// Table is a dining table inside a branch.
type Table struct {
	bun.BaseModel `bun:"table:dining_tables,alias:dt"`

	ID        string    `bun:"id,pk"`
	TenantID  string    `bun:"tenant_id,notnull"`
	BranchID  string    `bun:"branch_id,notnull"`
	Number    string    `bun:"number,notnull"`
	Capacity  int       `bun:"capacity,notnull"`
	Status    string    `bun:"status,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// Customer is a tenant's registered customer with running order statistics.
type Customer struct {
	bun.BaseModel `bun:"table:customers,alias:c"`

	ID          string          `bun:"id,pk"`
	TenantID    string          `bun:"tenant_id,notnull"`
	Name        string          `bun:"name,notnull"`
	Phone       string          `bun:"phone"`
	TotalOrders int             `bun:"total_orders,notnull"`
	TotalSpent  decimal.Decimal `bun:"total_spent,type:numeric(12,2),notnull"`
	LastOrderAt *time.Time      `bun:"last_order_at"`
}

// Product is a sellable catalog item.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:pr"`

	ID        string          `bun:"id,pk"`
	TenantID  string          `bun:"tenant_id,notnull"`
	Name      string          `bun:"name,notnull"`
	BasePrice decimal.Decimal `bun:"base_price,type:numeric(12,2),notnull"`
	Active    bool            `bun:"active,notnull"`
	Available bool            `bun:"available,notnull"`
}

// Combo is a bundle sold at a fixed price.
type Combo struct {
	bun.BaseModel `bun:"table:combos,alias:cb"`

	ID       string          `bun:"id,pk"`
	TenantID string          `bun:"tenant_id,notnull"`
	Name     string          `bun:"name,notnull"`
	Price    decimal.Decimal `bun:"price,type:numeric(12,2),notnull"`
	Active   bool            `bun:"active,notnull"`
}
