package service

import (
	"context"
	"testing"
	"time"

	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStatistics(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	svc := NewStatisticsService(repository.NewStatisticsRepository(env.db))

	_, err := env.ledger.AddEntry(ctx, headOffice, AddEntryInput{
		Chain: model.ChainDistributor, OwnerID: "dist-1", ProductID: "p1", ProductName: "Soap", Quantity: 10,
		Pricing: &Pricing{UnitPrice: dec("5"), FinalPrice: dec("5")}, ReceivedAt: &base,
	})
	require.NoError(t, err)
	env.addStock(t, model.ChainDistributor, "dist-2", "p2", 4, base.Add(time.Hour))
	env.addStock(t, model.ChainDirectShowroom, "show-1", "p1", 7, base)
	// outside the range
	env.addStock(t, model.ChainDistributor, "dist-1", "p1", 100, base.AddDate(0, 2, 0))

	_, err = env.ledger.Consume(ctx, distributor, ConsumeInput{Chain: model.ChainDistributor, OwnerID: "dist-1", ProductID: "p1", Quantity: 6})
	require.NoError(t, err)
	_, err = env.ledger.Consume(ctx, headOffice, ConsumeInput{Chain: model.ChainDistributor, OwnerID: "dist-2", ProductID: "p2", Quantity: 1})
	require.NoError(t, err)

	stats, err := svc.GetStatistics(ctx, model.ChainDistributor, base.Add(-time.Hour), base.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, 14, stats.ReceivedQuantity)
	require.True(t, stats.ReceivedValue.Valid)
	assert.True(t, dec("50").Equal(stats.ReceivedValue.Decimal))
	assert.Equal(t, 107, stats.AvailableQuantity)
	assert.Equal(t, 7, stats.UsedQuantity)
	assert.Equal(t, 2, stats.Owners)

	require.Len(t, stats.TopConsumed, 2)
	assert.Equal(t, "p1", stats.TopConsumed[0].ProductID)
	assert.Equal(t, "Soap", stats.TopConsumed[0].ProductName)
	assert.Equal(t, 6, stats.TopConsumed[0].TotalQuantity)
	assert.True(t, dec("30").Equal(stats.TopConsumed[0].TotalValue.Decimal))
	assert.Equal(t, "p2", stats.TopConsumed[1].ProductID)

	all, err := svc.GetStatistics(ctx, "", base.Add(-time.Hour), base.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, 21, all.ReceivedQuantity)
	assert.Equal(t, 3, all.Owners)
}

func TestGetStatistics_RequestCounts(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	svc := NewStatisticsService(repository.NewStatisticsRepository(env.db))

	createRequest(t, env, rep, model.ChainDistributorRepresentative, `{"p1": 1}`)
	approvedRequest(t, env, `{"p1": 2}`)
	approvedRequest(t, env, `{"p1": 3}`)

	now := time.Now()
	stats, err := svc.GetStatistics(ctx, model.ChainDistributorRepresentative, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		model.RequestStatusPending:  1,
		model.RequestStatusApproved: 2,
	}, stats.RequestsByStatus)
	assert.Empty(t, stats.TopConsumed)
}

func TestGetStatistics_Validation(t *testing.T) {
	env := newTestEnv(t, "")
	svc := NewStatisticsService(repository.NewStatisticsRepository(env.db))

	_, err := svc.GetStatistics(context.Background(), "warehouse", base, base.Add(time.Hour))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.GetStatistics(context.Background(), "", base, base.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrValidation)
}
