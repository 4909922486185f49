package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/comanda/internal/calculation"
	"github.com/Additional-Code/comanda/internal/entity"
)

// ModifierPayload is a requested line adjustment.
type ModifierPayload struct {
	Name            string          `json:"name"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
	Quantity        int             `json:"quantity"`
}

// LinePayload is a requested order line.
type LinePayload struct {
	ProductID *string           `json:"product_id"`
	ComboID   *string           `json:"combo_id"`
	Quantity  int               `json:"quantity"`
	Notes     string            `json:"notes"`
	Modifiers []ModifierPayload `json:"modifiers"`
}

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	BranchID    string          `json:"branch_id"`
	ServiceType string          `json:"service_type"`
	TableID     *string         `json:"table_id"`
	CustomerID  *string         `json:"customer_id"`
	Discount    decimal.Decimal `json:"discount"`
	Items       []LinePayload   `json:"items"`
}

// ModifierResponse is a modifier as exposed via transport layers.
type ModifierResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PriceAdjustment string `json:"price_adjustment"`
	Quantity        int    `json:"quantity"`
}

// OrderItemResponse is an order line as exposed via transport layers.
type OrderItemResponse struct {
	ID             string             `json:"id"`
	Position       int                `json:"position"`
	ProductID      *string            `json:"product_id,omitempty"`
	ComboID        *string            `json:"combo_id,omitempty"`
	ProductName    string             `json:"product_name"`
	Quantity       int                `json:"quantity"`
	UnitPrice      string             `json:"unit_price"`
	ModifiersTotal string             `json:"modifiers_total"`
	LineTotal      string             `json:"line_total"`
	Notes          string             `json:"notes,omitempty"`
	KDSStatus      string             `json:"kds_status"`
	KDSSentAt      *time.Time         `json:"kds_sent_at,omitempty"`
	Modifiers      []ModifierResponse `json:"modifiers"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID            string              `json:"id"`
	OrderNumber   string              `json:"order_number"`
	BranchID      string              `json:"branch_id"`
	TableID       *string             `json:"table_id,omitempty"`
	CustomerID    *string             `json:"customer_id,omitempty"`
	ServiceType   string              `json:"service_type"`
	Status        string              `json:"status"`
	BusinessDate  string              `json:"business_date"`
	DailySequence int                 `json:"daily_sequence"`
	Subtotal      string              `json:"subtotal"`
	TaxRate       string              `json:"tax_rate"`
	Tax           string              `json:"tax"`
	Discount      string              `json:"discount"`
	Total         string              `json:"total"`
	OpenedAt      time.Time           `json:"opened_at"`
	ClosedAt      *time.Time          `json:"closed_at,omitempty"`
	CreatedBy     string              `json:"created_by"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Items         []OrderItemResponse `json:"items"`
}

// Money renders an amount with exactly two decimals.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FromOrder converts an order entity for transport.
func FromOrder(o *entity.Order) OrderResponse {
	out := OrderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		BranchID:      o.BranchID,
		TableID:       o.TableID,
		CustomerID:    o.CustomerID,
		ServiceType:   o.ServiceType,
		Status:        o.StatusID,
		BusinessDate:  o.BusinessDate,
		DailySequence: o.DailySequence,
		Subtotal:      Money(o.Subtotal),
		TaxRate:       o.TaxRate.String(),
		Tax:           Money(o.Tax),
		Discount:      Money(o.Discount),
		Total:         Money(o.Total),
		OpenedAt:      o.OpenedAt,
		ClosedAt:      o.ClosedAt,
		CreatedBy:     o.CreatedBy,
		UpdatedAt:     o.UpdatedAt,
		Items:         make([]OrderItemResponse, 0, len(o.Items)),
	}
	for i := range o.Items {
		out.Items = append(out.Items, fromItem(&o.Items[i]))
	}
	return out
}

func fromItem(it *entity.OrderItem) OrderItemResponse {
	out := OrderItemResponse{
		ID:             it.ID,
		Position:       it.Position,
		ProductID:      it.ProductID,
		ComboID:        it.ComboID,
		ProductName:    it.ProductName,
		Quantity:       it.Quantity,
		UnitPrice:      Money(it.UnitPrice),
		ModifiersTotal: Money(it.ModifiersTotal),
		LineTotal:      Money(calculation.LineTotal(*it)),
		Notes:          it.Notes,
		KDSStatus:      it.KDSStatus,
		KDSSentAt:      it.KDSSentAt,
		Modifiers:      make([]ModifierResponse, 0, len(it.Modifiers)),
	}
	for _, m := range it.Modifiers {
		out.Modifiers = append(out.Modifiers, ModifierResponse{
			ID:              m.ID,
			Name:            m.Name,
			PriceAdjustment: Money(m.PriceAdjustment),
			Quantity:        m.Quantity,
		})
	}
	return out
}
