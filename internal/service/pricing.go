package service

import (
	"stockledger/internal/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Pricing is the resolved price of one unit
type Pricing struct {
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	FinalPrice      decimal.Decimal `json:"final_price"`
}

// PriceAdjustment is the dispatcher's per-item pricing input
type PriceAdjustment struct {
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	AdjustmentType  string           `json:"adjustment_type"`
	AdjustmentValue *decimal.Decimal `json:"adjustment_value,omitempty"`
}

// ResolvePrice applies an adjustment to a unit price.
// percentage: unit - unit*value/100, fixed: value, none: unit. Results are rounded to 2 places.
func ResolvePrice(adj PriceAdjustment) (Pricing, error) {
	unit := adj.UnitPrice
	if unit.IsNegative() {
		return Pricing{}, validationError("unit price must not be negative")
	}

	switch adj.AdjustmentType {
	case model.AdjustmentNone:
		return Pricing{
			UnitPrice:       unit.Round(2),
			DiscountPercent: decimal.Zero,
			FinalPrice:      unit.Round(2),
		}, nil

	case model.AdjustmentPercentage:
		if adj.AdjustmentValue == nil {
			return Pricing{}, validationError("percentage adjustment needs a value")
		}
		pct := *adj.AdjustmentValue
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return Pricing{}, validationError("percentage adjustment must be between 0 and 100, got %s", pct)
		}
		final := unit.Sub(unit.Mul(pct).Div(hundred))
		return Pricing{
			UnitPrice:       unit.Round(2),
			DiscountPercent: pct.Round(2),
			FinalPrice:      final.Round(2),
		}, nil

	case model.AdjustmentFixed:
		if adj.AdjustmentValue == nil {
			return Pricing{}, validationError("fixed adjustment needs a value")
		}
		final := *adj.AdjustmentValue
		if final.IsNegative() {
			return Pricing{}, validationError("fixed price must not be negative")
		}
		return Pricing{
			UnitPrice:       unit.Round(2),
			DiscountPercent: discountOf(unit, final),
			FinalPrice:      final.Round(2),
		}, nil
	}

	return Pricing{}, validationError("unknown adjustment type %q", adj.AdjustmentType)
}

// TotalValue is finalPrice x quantity, rounded to 2 places
func (p Pricing) TotalValue(quantity int) decimal.Decimal {
	return p.FinalPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// discountOf derives the percentage that takes unit to final; zero for a free unit price
func discountOf(unit, final decimal.Decimal) decimal.Decimal {
	if unit.IsZero() {
		return decimal.Zero
	}
	return unit.Sub(final).Div(unit).Mul(hundred).Round(2)
}

// weightedPricing averages the pricing of FIFO allocations by quantity taken.
// It returns nil when any allocation has no price.
func weightedPricing(allocs []Allocation) *Pricing {
	if len(allocs) == 0 {
		return nil
	}

	var qty int64
	unitSum, finalSum := decimal.Zero, decimal.Zero
	for _, a := range allocs {
		if a.Pricing == nil {
			return nil
		}
		q := decimal.NewFromInt(int64(a.Taken))
		unitSum = unitSum.Add(a.Pricing.UnitPrice.Mul(q))
		finalSum = finalSum.Add(a.Pricing.FinalPrice.Mul(q))
		qty += int64(a.Taken)
	}
	if qty == 0 {
		return nil
	}

	n := decimal.NewFromInt(qty)
	unit := unitSum.Div(n).Round(2)
	final := finalSum.Div(n).Round(2)
	return &Pricing{UnitPrice: unit, DiscountPercent: discountOf(unit, final), FinalPrice: final}
}

func nullable(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d)
}
