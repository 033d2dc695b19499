package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupChain(t *testing.T) {
	p, ok := LookupChain(ChainDistributorRepresentative)
	require.True(t, ok)
	assert.True(t, p.CarriesPricing)
	assert.True(t, p.HasUpstreamLedger())
	assert.Equal(t, ChainDistributor, p.Upstream)
	assert.Equal(t, "distributorRepresentativeStock/users/u1/entries/e1", p.EntryPath("u1", "e1"))
	assert.Equal(t, "distributorRepresentativeStock/users/u1/summary/p1", p.SummaryPath("u1", "p1"))

	p, ok = LookupChain(ChainDirectShowroom)
	require.True(t, ok)
	assert.False(t, p.CarriesPricing)
	assert.False(t, p.HasUpstreamLedger())
	assert.Equal(t, "directShowroomStock/users/u1", p.OwnerPath("u1"))

	_, ok = LookupChain("warehouse")
	assert.False(t, ok)

	assert.Equal(t, []string{
		ChainDirectRepresentative,
		ChainDirectShowroom,
		ChainDistributor,
		ChainDistributorRepresentative,
	}, Chains())
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]string{
		{RequestStatusPending, RequestStatusApproved},
		{RequestStatusPending, RequestStatusRejected},
		{RequestStatusApproved, RequestStatusDispatched},
		{RequestStatusDispatched, RequestStatusClaimed},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]string{
		{RequestStatusPending, RequestStatusDispatched},
		{RequestStatusApproved, RequestStatusRejected},
		{RequestStatusRejected, RequestStatusApproved},
		{RequestStatusClaimed, RequestStatusDispatched},
		{RequestStatusDispatched, RequestStatusDispatched},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestStockEntryBalance(t *testing.T) {
	e := StockEntry{Quantity: 10, AvailableQuantity: 4, UsedQuantity: 6}
	e.RefreshStatus()
	assert.True(t, e.Balanced())
	assert.Equal(t, EntryStatusAvailable, e.Status)

	e.AvailableQuantity, e.UsedQuantity = 0, 10
	e.RefreshStatus()
	assert.True(t, e.Balanced())
	assert.Equal(t, EntryStatusDepleted, e.Status)

	assert.False(t, StockEntry{Quantity: 10, AvailableQuantity: 5, UsedQuantity: 4}.Balanced())
	assert.False(t, StockEntry{Quantity: 10, AvailableQuantity: -1, UsedQuantity: 11}.Balanced())
}

func TestSummaryRefreshAverage(t *testing.T) {
	s := StockSummary{TotalQuantity: 3, TotalValue: decimal.NewNullDecimal(decimal.NewFromInt(100))}
	s.RefreshAverage()
	require.True(t, s.AverageUnitPrice.Valid)
	assert.Equal(t, "33.33", s.AverageUnitPrice.Decimal.StringFixed(2))

	s.TotalValue = decimal.NullDecimal{}
	s.RefreshAverage()
	assert.False(t, s.AverageUnitPrice.Valid)
}

func TestRequestTotalQuantity(t *testing.T) {
	r := Request{Items: []RequestItem{{Quantity: 2}, {Quantity: 5}}}
	assert.Equal(t, 7, r.TotalQuantity())
}
