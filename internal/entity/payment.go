package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Payment methods.
const (
	PaymentMethodCash = "CASH"
)

// Payment settles (part of) an order. Rows are append-only.
type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:p"`

	ID             string          `bun:"id,pk" json:"id"`
	TenantID       string          `bun:"tenant_id,notnull" json:"tenant_id"`
	OrderID        string          `bun:"order_id,notnull" json:"order_id"`
	PaymentMethod  string          `bun:"payment_method,notnull" json:"payment_method"`
	Amount         decimal.Decimal `bun:"amount,type:numeric(12,2),notnull" json:"amount"`
	AmountReceived decimal.Decimal `bun:"amount_received,type:numeric(12,2),notnull" json:"amount_received"`
	ChangeGiven    decimal.Decimal `bun:"change_given,type:numeric(12,2),notnull" json:"change_given"`
	Notes          string          `bun:"notes" json:"notes,omitempty"`
	CreatedBy      string          `bun:"created_by,notnull" json:"created_by"`
	CreatedAt      time.Time       `bun:"created_at,notnull" json:"created_at"`
}
