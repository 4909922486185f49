package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Order lifecycle statuses.
const (
	OrderStatusPending    = "PENDING"
	OrderStatusInProgress = "IN_PROGRESS"
	OrderStatusReady      = "READY"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusCancelled  = "CANCELLED"
)

// Service types.
const (
	ServiceTypeCounter  = "COUNTER"
	ServiceTypeDineIn   = "DINE_IN"
	ServiceTypeDelivery = "DELIVERY"
)

// Kitchen display states of an order item.
const (
	KDSStatusPending = "PENDING"
	KDSStatusSent    = "SENT"
)

// ValidServiceType reports whether s names a known service type.
func ValidServiceType(s string) bool {
	switch s {
	case ServiceTypeCounter, ServiceTypeDineIn, ServiceTypeDelivery:
		return true
	}
	return false
}

// ValidOrderStatus reports whether s names a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Order represents a ticket opened at a branch. It owns its items; items and
// their modifiers never outlive it. Version grows by one on every update.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID            string          `bun:"id,pk" json:"id"`
	TenantID      string          `bun:"tenant_id,notnull" json:"tenant_id"`
	BranchID      string          `bun:"branch_id,notnull" json:"branch_id"`
	TableID       *string         `bun:"table_id" json:"table_id,omitempty"`
	CustomerID    *string         `bun:"customer_id" json:"customer_id,omitempty"`
	ServiceType   string          `bun:"service_type,notnull" json:"service_type"`
	OrderNumber   string          `bun:"order_number,notnull" json:"order_number"`
	BusinessDate  string          `bun:"business_date,notnull" json:"business_date"`
	DailySequence int             `bun:"daily_sequence,notnull" json:"daily_sequence"`
	Subtotal      decimal.Decimal `bun:"subtotal,type:numeric(12,2),notnull" json:"subtotal"`
	TaxRate       decimal.Decimal `bun:"tax_rate,type:numeric(6,4),notnull" json:"tax_rate"`
	Tax           decimal.Decimal `bun:"tax,type:numeric(12,2),notnull" json:"tax"`
	Discount      decimal.Decimal `bun:"discount,type:numeric(12,2),notnull" json:"discount"`
	Total         decimal.Decimal `bun:"total,type:numeric(12,2),notnull" json:"total"`
	StatusID      string          `bun:"status_id,notnull" json:"status_id"`
	OpenedAt      time.Time       `bun:"opened_at,notnull" json:"opened_at"`
	ClosedAt      *time.Time      `bun:"closed_at" json:"closed_at,omitempty"`
	CreatedBy     string          `bun:"created_by,notnull" json:"created_by"`
	UpdatedBy     string          `bun:"updated_by,notnull" json:"updated_by"`
	UpdatedAt     time.Time       `bun:"updated_at,notnull" json:"updated_at"`
	Version       int             `bun:"version,notnull" json:"version"`

	Items []OrderItem `bun:"rel:has-many,join:id=order_id" json:"items"`
}

// IsTerminal reports whether the order can no longer change status.
func (o *Order) IsTerminal() bool {
	return o.StatusID == OrderStatusCompleted || o.StatusID == OrderStatusCancelled
}

// HoldsTable reports whether the order occupies a dining table.
func (o *Order) HoldsTable() bool {
	return o.ServiceType == ServiceTypeDineIn && o.TableID != nil && *o.TableID != ""
}

// ItemIndex returns the position of the item with id, or -1.
func (o *Order) ItemIndex(id string) int {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// OrderItem is a priced line of an order. ProductName is a snapshot taken when
// the line is added and is not refreshed from the catalog.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID             string          `bun:"id,pk" json:"id"`
	OrderID        string          `bun:"order_id,notnull" json:"order_id"`
	Position       int             `bun:"position,notnull" json:"position"`
	ProductID      *string         `bun:"product_id" json:"product_id,omitempty"`
	ComboID        *string         `bun:"combo_id" json:"combo_id,omitempty"`
	ProductName    string          `bun:"product_name,notnull" json:"product_name"`
	Quantity       int             `bun:"quantity,notnull" json:"quantity"`
	UnitPrice      decimal.Decimal `bun:"unit_price,type:numeric(12,2),notnull" json:"unit_price"`
	ModifiersTotal decimal.Decimal `bun:"modifiers_total,type:numeric(12,2),notnull" json:"modifiers_total"`
	Notes          string          `bun:"notes" json:"notes,omitempty"`
	KDSStatus      string          `bun:"kds_status,notnull" json:"kds_status"`
	KDSSentAt      *time.Time      `bun:"kds_sent_at" json:"kds_sent_at,omitempty"`
	CreatedAt      time.Time       `bun:"created_at,notnull" json:"created_at"`

	Modifiers []OrderItemModifier `bun:"rel:has-many,join:id=order_item_id" json:"modifiers"`
}

// OrderItemModifier is a priced adjustment attached to an order item.
type OrderItemModifier struct {
	bun.BaseModel `bun:"table:order_item_modifiers,alias:oim"`

	ID              string          `bun:"id,pk" json:"id"`
	OrderItemID     string          `bun:"order_item_id,notnull" json:"order_item_id"`
	Name            string          `bun:"name,notnull" json:"name"`
	PriceAdjustment decimal.Decimal `bun:"price_adjustment,type:numeric(12,2),notnull" json:"price_adjustment"`
	Quantity        int             `bun:"quantity,notnull" json:"quantity"`
}

// OrderStatusHistory is an append-only audit row written on every transition.
type OrderStatusHistory struct {
	bun.BaseModel `bun:"table:order_status_history,alias:osh"`

	ID        string    `bun:"id,pk"`
	TenantID  string    `bun:"tenant_id,notnull"`
	OrderID   string    `bun:"order_id,notnull"`
	StatusID  string    `bun:"status_id,notnull"`
	ChangedBy string    `bun:"changed_by,notnull"`
	ChangedAt time.Time `bun:"changed_at,notnull"`
}

// DailySequence is the per tenant, branch and business day order counter.
type DailySequence struct {
	bun.BaseModel `bun:"table:daily_sequences,alias:ds"`

	TenantID     string `bun:"tenant_id,pk"`
	BranchID     string `bun:"branch_id,pk"`
	BusinessDate string `bun:"business_date,pk"`
	Value        int    `bun:"seq_value,notnull"`
}
