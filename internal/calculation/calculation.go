// Package calculation holds the money arithmetic applied to orders. Every
// derived amount is rounded half-up to two decimal places.
package calculation

import (
	"github.com/shopspring/decimal"

	"github.com/Additional-Code/comanda/internal/entity"
)

// Scale is the number of decimal places kept for money.
const Scale = 2

// Round rounds d half-up (away from zero on ties) to Scale places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// ModifiersTotal sums priceAdjustment * quantity over the modifiers.
func ModifiersTotal(mods []entity.OrderItemModifier) decimal.Decimal {
	total := decimal.Zero
	for _, m := range mods {
		total = total.Add(m.PriceAdjustment.Mul(decimal.NewFromInt(int64(m.Quantity))))
	}
	return Round(total)
}

// LineTotal is quantity * (unitPrice + modifiersTotal).
func LineTotal(item entity.OrderItem) decimal.Decimal {
	unit := item.UnitPrice.Add(item.ModifiersTotal)
	return Round(unit.Mul(decimal.NewFromInt(int64(item.Quantity))))
}

// Subtotal sums the line totals; an empty slice yields 0.00.
func Subtotal(items []entity.OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(LineTotal(item))
	}
	return Round(sum)
}

// Tax is subtotal * rate.
func Tax(subtotal, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return Round(decimal.Zero)
	}
	return Round(subtotal.Mul(rate))
}

// Total is subtotal + tax - discount. The result may be negative; discounts
// are validated by callers.
func Total(subtotal, tax, discount decimal.Decimal) decimal.Decimal {
	return Round(subtotal.Add(tax).Sub(discount))
}

// Recalculate derives subtotal, tax and total of o from its current items.
func Recalculate(o *entity.Order) {
	o.Subtotal = Subtotal(o.Items)
	o.Tax = Tax(o.Subtotal, o.TaxRate)
	o.Total = Total(o.Subtotal, o.Tax, o.Discount)
}
