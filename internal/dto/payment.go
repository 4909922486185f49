package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/comanda/internal/entity"
)

// RegisterPaymentRequest is the body of POST /payments.
type RegisterPaymentRequest struct {
	OrderID        string          `json:"order_id"`
	PaymentMethod  string          `json:"payment_method"`
	AmountTendered decimal.Decimal `json:"amount_tendered"`
	Notes          string          `json:"notes"`
}

// PaymentResponse represents a payment as exposed via transport layers.
type PaymentResponse struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	PaymentMethod  string    `json:"payment_method"`
	Amount         string    `json:"amount"`
	AmountReceived string    `json:"amount_received"`
	ChangeGiven    string    `json:"change_given"`
	Notes          string    `json:"notes,omitempty"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// FromPayment converts a payment entity for transport.
func FromPayment(p *entity.Payment) PaymentResponse {
	return PaymentResponse{
		ID:             p.ID,
		OrderID:        p.OrderID,
		PaymentMethod:  p.PaymentMethod,
		Amount:         Money(p.Amount),
		AmountReceived: Money(p.AmountReceived),
		ChangeGiven:    Money(p.ChangeGiven),
		Notes:          p.Notes,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      p.CreatedAt,
	}
}
