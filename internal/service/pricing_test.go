package service

import (
	"testing"

	"stockledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePrice(t *testing.T) {
	tests := []struct {
		name     string
		adj      PriceAdjustment
		unit     string
		discount string
		final    string
	}{
		{"none", PriceAdjustment{UnitPrice: dec("19.999")}, "20", "0", "20"},
		{"percentage", PriceAdjustment{UnitPrice: dec("100"), AdjustmentType: model.AdjustmentPercentage, AdjustmentValue: decPtr("10")}, "100", "10", "90"},
		{"percentage rounds", PriceAdjustment{UnitPrice: dec("9.99"), AdjustmentType: model.AdjustmentPercentage, AdjustmentValue: decPtr("33")}, "9.99", "33", "6.69"},
		{"full discount", PriceAdjustment{UnitPrice: dec("12"), AdjustmentType: model.AdjustmentPercentage, AdjustmentValue: decPtr("100")}, "12", "100", "0"},
		{"fixed", PriceAdjustment{UnitPrice: dec("80"), AdjustmentType: model.AdjustmentFixed, AdjustmentValue: decPtr("60")}, "80", "25", "60"},
		{"fixed on free unit", PriceAdjustment{UnitPrice: dec("0"), AdjustmentType: model.AdjustmentFixed, AdjustmentValue: decPtr("5")}, "0", "0", "5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ResolvePrice(tt.adj)
			require.NoError(t, err)
			assert.True(t, dec(tt.unit).Equal(p.UnitPrice), "unit %s", p.UnitPrice)
			assert.True(t, dec(tt.discount).Equal(p.DiscountPercent), "discount %s", p.DiscountPercent)
			assert.True(t, dec(tt.final).Equal(p.FinalPrice), "final %s", p.FinalPrice)
		})
	}
}

func TestResolvePrice_Invalid(t *testing.T) {
	bad := []PriceAdjustment{
		{UnitPrice: dec("-1")},
		{UnitPrice: dec("10"), AdjustmentType: model.AdjustmentPercentage},
		{UnitPrice: dec("10"), AdjustmentType: model.AdjustmentPercentage, AdjustmentValue: decPtr("101")},
		{UnitPrice: dec("10"), AdjustmentType: model.AdjustmentPercentage, AdjustmentValue: decPtr("-5")},
		{UnitPrice: dec("10"), AdjustmentType: model.AdjustmentFixed},
		{UnitPrice: dec("10"), AdjustmentType: model.AdjustmentFixed, AdjustmentValue: decPtr("-2")},
		{UnitPrice: dec("10"), AdjustmentType: "markup", AdjustmentValue: decPtr("2")},
	}
	for _, adj := range bad {
		_, err := ResolvePrice(adj)
		assert.ErrorIs(t, err, ErrValidation, "%+v", adj)
	}
}

func TestPricingTotalValue(t *testing.T) {
	p := Pricing{FinalPrice: dec("90")}
	assert.True(t, dec("900").Equal(p.TotalValue(10)))

	p = Pricing{FinalPrice: dec("0.333")}
	assert.True(t, dec("1").Equal(p.TotalValue(3)))
}

func TestWeightedPricing(t *testing.T) {
	allocs := []Allocation{
		{Taken: 3, Pricing: &Pricing{UnitPrice: dec("100"), FinalPrice: dec("90")}},
		{Taken: 1, Pricing: &Pricing{UnitPrice: dec("100"), FinalPrice: dec("70")}},
	}
	p := weightedPricing(allocs)
	require.NotNil(t, p)
	assert.True(t, dec("100").Equal(p.UnitPrice))
	assert.True(t, dec("85").Equal(p.FinalPrice))
	assert.True(t, dec("15").Equal(p.DiscountPercent))

	allocs = append(allocs, Allocation{Taken: 2})
	assert.Nil(t, weightedPricing(allocs))
	assert.Nil(t, weightedPricing(nil))
}
