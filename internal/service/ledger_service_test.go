package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockledger/internal/events"
	"stockledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAddEntry_CreatesSummary(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	entry, err := env.ledger.AddEntry(ctx, headOffice, AddEntryInput{
		Chain:       model.ChainDirectShowroom,
		OwnerID:     "show-1",
		ProductID:   "p1",
		ProductName: "Soap",
		Quantity:    12,
		Location:    "Aisle 3",
	})
	require.NoError(t, err)
	assert.Equal(t, 12, entry.AvailableQuantity)
	assert.Equal(t, 0, entry.UsedQuantity)
	assert.Equal(t, model.EntryStatusAvailable, entry.Status)
	assert.Equal(t, model.SourceReceipt, entry.Source)

	sm := env.summary(t, model.ChainDirectShowroom, "show-1", "p1")
	assert.Equal(t, 12, sm.TotalQuantity)
	assert.Equal(t, 12, sm.AvailableQuantity)
	assert.Equal(t, 1, sm.EntryCount)
	assert.Equal(t, "Soap", sm.ProductName)
	require.NotNil(t, sm.FirstClaimedAt)

	env.addStock(t, model.ChainDirectShowroom, "show-1", "p1", 3, base)
	sm = env.summary(t, model.ChainDirectShowroom, "show-1", "p1")
	assert.Equal(t, 15, sm.TotalQuantity)
	assert.Equal(t, 2, sm.EntryCount)
	assert.True(t, sm.FirstClaimedAt.Equal(base))

	assert.Equal(t, []string{events.EntryAdded, events.EntryAdded}, env.recorder.Types())
	assert.Equal(t, int64(2), env.auditCount(t, model.ActionAddEntry))
	requireLedgerConsistent(t, env, model.ChainDirectShowroom, "show-1")
}

func TestAddEntry_Validation(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	cases := map[string]AddEntryInput{
		"unknown chain": {Chain: "warehouse", OwnerID: "o", ProductID: "p", Quantity: 1},
		"zero quantity": {Chain: model.ChainDistributor, OwnerID: "o", ProductID: "p", Quantity: 0},
		"no owner":      {Chain: model.ChainDistributor, ProductID: "p", Quantity: 1},
		"no product":    {Chain: model.ChainDistributor, OwnerID: "o", Quantity: 1},
		"bad source":    {Chain: model.ChainDistributor, OwnerID: "o", ProductID: "p", Quantity: 1, Source: "gift"},
		"too large":     {Chain: model.ChainDistributor, OwnerID: "o", ProductID: "p", Quantity: model.MaxQuantity + 1},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.ledger.AddEntry(ctx, headOffice, in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Empty(t, env.recorder.Types())
}

func TestAddEntry_SummaryTotalCapped(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	env.addStock(t, model.ChainDistributor, "dist-1", "p1", model.MaxQuantity-1, base)

	_, err := env.ledger.AddEntry(ctx, headOffice, AddEntryInput{
		Chain: model.ChainDistributor, OwnerID: "dist-1", ProductID: "p1", Quantity: 2,
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, model.MaxQuantity-1, env.summary(t, model.ChainDistributor, "dist-1", "p1").TotalQuantity)

	_, err = env.ledger.Consume(ctx, distributor, ConsumeInput{
		Chain: model.ChainDistributor, OwnerID: "dist-1", ProductID: "p1", Quantity: model.MaxQuantity + 1,
	})
	assert.ErrorIs(t, err, ErrValidation)
	requireLedgerConsistent(t, env, model.ChainDistributor, "dist-1")
}

func TestAddEntry_IdempotencyKey(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	in := AddEntryInput{
		Chain:          model.ChainDistributor,
		OwnerID:        "dist-1",
		ProductID:      "p1",
		Quantity:       5,
		IdempotencyKey: "receipt:42",
	}
	first, err := env.ledger.AddEntry(ctx, headOffice, in)
	require.NoError(t, err)
	second, err := env.ledger.AddEntry(ctx, headOffice, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	sm := env.summary(t, model.ChainDistributor, "dist-1", "p1")
	assert.Equal(t, 5, sm.TotalQuantity)
	assert.Equal(t, 1, sm.EntryCount)

	in.OwnerID = "dist-2"
	_, err = env.ledger.AddEntry(ctx, headOffice, in)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAddEntry_PricingOnlyOnPricingChains(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	pricing := &Pricing{UnitPrice: dec("100"), DiscountPercent: dec("10"), FinalPrice: dec("90")}

	plain, err := env.ledger.AddEntry(ctx, headOffice, AddEntryInput{
		Chain: model.ChainDirectShowroom, OwnerID: "show-1", ProductID: "p1", Quantity: 2, Pricing: pricing,
	})
	require.NoError(t, err)
	assert.False(t, plain.FinalPrice.Valid)
	assert.False(t, plain.TotalValue.Valid)

	priced, err := env.ledger.AddEntry(ctx, headOffice, AddEntryInput{
		Chain: model.ChainDistributor, OwnerID: "dist-1", ProductID: "p1", Quantity: 2, Pricing: pricing,
	})
	require.NoError(t, err)
	require.True(t, priced.FinalPrice.Valid)
	assert.True(t, dec("180").Equal(priced.TotalValue.Decimal))

	sm := env.summary(t, model.ChainDistributor, "dist-1", "p1")
	require.True(t, sm.TotalValue.Valid)
	assert.True(t, dec("180").Equal(sm.TotalValue.Decimal))
	assert.True(t, dec("90").Equal(sm.AverageUnitPrice.Decimal))
}

func TestConsume_FIFOAcrossEntries(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	older := env.addStock(t, model.ChainDirectShowroom, "show-1", "p1", 5, base)
	newer := env.addStock(t, model.ChainDirectShowroom, "show-1", "p1", 5, base.Add(time.Hour))

	res, err := env.ledger.Consume(ctx, headOffice, ConsumeInput{
		Chain: model.ChainDirectShowroom, OwnerID: "show-1", ProductID: "p1", Quantity: 7, Reason: "sold",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Consumed)
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, older.ID, res.Allocations[0].EntryID)
	assert.Equal(t, 5, res.Allocations[0].Taken)
	assert.Equal(t, 0, res.Allocations[0].Remaining)
	assert.Equal(t, 2, res.Allocations[1].Taken)
	assert.Equal(t, 3, res.Allocations[1].Remaining)

	a := env.entry(t, older.ID)
	assert.Equal(t, 0, a.AvailableQuantity)
	assert.Equal(t, 5, a.UsedQuantity)
	assert.Equal(t, model.EntryStatusDepleted, a.Status)
	assert.Contains(t, a.Notes, "sold")

	b := env.entry(t, newer.ID)
	assert.Equal(t, 3, b.AvailableQuantity)
	assert.Equal(t, 2, b.UsedQuantity)
	assert.Equal(t, model.EntryStatusAvailable, b.Status)

	sm := env.summary(t, model.ChainDirectShowroom, "show-1", "p1")
	assert.Equal(t, 10, sm.TotalQuantity)
	assert.Equal(t, 3, sm.AvailableQuantity)
	assert.Equal(t, 7, sm.UsedQuantity)
	requireLedgerConsistent(t, env, model.ChainDirectShowroom, "show-1")
}

func TestConsume_DepletesOldestFirst(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	// inserted out of order: receipt time decides, not insertion order
	newer := env.addStock(t, model.ChainDistributor, "dist-1", "p1", 4, base.Add(time.Hour))
	older := env.addStock(t, model.ChainDistributor, "dist-1", "p1", 3, base)

	_, err := env.ledger.Consume(ctx, distributor, ConsumeInput{
		Chain: model.ChainDistributor, OwnerID: "dist-1", ProductID: "p1", Quantity: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, model.EntryStatusDepleted, env.entry(t, older.ID).Status)
	n := env.entry(t, newer.ID)
	assert.Equal(t, 2, n.AvailableQuantity)
	assert.Equal(t, 2, n.UsedQuantity)

	sm := env.summary(t, model.ChainDistributor, "dist-1", "p1")
	assert.Equal(t, 5, sm.UsedQuantity)
	assert.Equal(t, 2, sm.AvailableQuantity)
}

func TestConsume_InsufficientStockChangesNothing(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	first := env.addStock(t, model.ChainDirectShowroom, "show-1", "p1", 5, base)
	env.addStock(t, model.ChainDirectShowroom, "show-1", "p1", 2, base.Add(time.Minute))
	before := env.recorder.Types()

	_, err := env.ledger.Consume(ctx, headOffice, ConsumeInput{
		Chain: model.ChainDirectShowroom, OwnerID: "show-1", ProductID: "p1", Quantity: 8,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var shortage *InsufficientStockError
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, 8, shortage.Requested)
	assert.Equal(t, 7, shortage.Available)

	assert.Equal(t, 5, env.entry(t, first.ID).AvailableQuantity)
	sm := env.summary(t, model.ChainDirectShowroom, "show-1", "p1")
	assert.Equal(t, 7, sm.AvailableQuantity)
	assert.Equal(t, 0, sm.UsedQuantity)
	assert.Equal(t, int64(0), env.auditCount(t, model.ActionConsumeStock))
	assert.Equal(t, before, env.recorder.Types())
}

func TestConsume_UnknownProductIsInsufficient(t *testing.T) {
	env := newTestEnv(t, "")

	_, err := env.ledger.Consume(context.Background(), headOffice, ConsumeInput{
		Chain: model.ChainDirectShowroom, OwnerID: "show-1", ProductID: "ghost", Quantity: 1,
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestConsumeUpTo_Clamps(t *testing.T) {
	env := newTestEnv(t, "")
	env.addStock(t, model.ChainDistributor, "dist-1", "p1", 3, base)

	res, err := env.ledger.ConsumeUpTo(context.Background(), distributor, ConsumeInput{
		Chain: model.ChainDistributor, OwnerID: "dist-1", ProductID: "p1", Quantity: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Requested)
	assert.Equal(t, 3, res.Consumed)

	sm := env.summary(t, model.ChainDistributor, "dist-1", "p1")
	assert.Equal(t, 0, sm.AvailableQuantity)
	assert.Equal(t, 3, sm.UsedQuantity)
	requireLedgerConsistent(t, env, model.ChainDistributor, "dist-1")
}

func TestConsumeUpTo_EmptyLedgerLeavesNoSummary(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	res, err := env.ledger.ConsumeUpTo(ctx, distributor, ConsumeInput{
		Chain: model.ChainDistributor, OwnerID: "dist-1", ProductID: "p1", Quantity: 4,
	})
	require.NoError(t, err)
	assert.Zero(t, res.Consumed)
	assert.Empty(t, res.Allocations)

	summaries, err := env.ledger.GetSummary(ctx, model.ChainDistributor, "dist-1")
	require.NoError(t, err)
	assert.Empty(t, summaries)
	requireLedgerConsistent(t, env, model.ChainDistributor, "dist-1")
}

func TestConsumeUpTo_DepletedLedgerKeepsSummary(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	env.addStock(t, model.ChainDistributor, "dist-1", "p1", 2, base)

	_, err := env.ledger.Consume(ctx, distributor, ConsumeInput{
		Chain: model.ChainDistributor, OwnerID: "dist-1", ProductID: "p1", Quantity: 2,
	})
	require.NoError(t, err)

	res, err := env.ledger.ConsumeUpTo(ctx, distributor, ConsumeInput{
		Chain: model.ChainDistributor, OwnerID: "dist-1", ProductID: "p1", Quantity: 1,
	})
	require.NoError(t, err)
	assert.Zero(t, res.Consumed)

	sm := env.summary(t, model.ChainDistributor, "dist-1", "p1")
	assert.Equal(t, 1, sm.EntryCount)
	assert.Equal(t, 2, sm.UsedQuantity)
	requireLedgerConsistent(t, env, model.ChainDistributor, "dist-1")
}

func TestTransfer_MovesStockAndPricing(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	_, err := env.ledger.AddEntry(ctx, headOffice, AddEntryInput{
		Chain: model.ChainDistributor, OwnerID: "dist-1", ProductID: "p1", ProductName: "Soap", Quantity: 10,
		Pricing:    &Pricing{UnitPrice: dec("100"), DiscountPercent: dec("10"), FinalPrice: dec("90")},
		ReceivedAt: &base,
	})
	require.NoError(t, err)

	res, err := env.ledger.Transfer(ctx, distributor, TransferInput{
		Chain:       model.ChainDistributor,
		FromOwnerID: "dist-1",
		ToChain:     model.ChainDistributorRepresentative,
		ToOwnerID:   "rep-1",
		ProductID:   "p1",
		Quantity:    4,
		Reason:      "van stock",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Consumed.Consumed)
	assert.Equal(t, model.SourceTransfer, res.Entry.Source)
	assert.Equal(t, "Soap", res.Entry.ProductName)
	require.True(t, res.Entry.FinalPrice.Valid)
	assert.True(t, dec("90").Equal(res.Entry.FinalPrice.Decimal))
	assert.True(t, dec("360").Equal(res.Entry.TotalValue.Decimal))

	assert.Equal(t, 6, env.summary(t, model.ChainDistributor, "dist-1", "p1").AvailableQuantity)
	assert.Equal(t, 4, env.summary(t, model.ChainDistributorRepresentative, "rep-1", "p1").AvailableQuantity)
	assert.Equal(t, int64(1), env.auditCount(t, model.ActionTransferStock))
	assert.Contains(t, env.recorder.Types(), events.StockTransferred)

	requireLedgerConsistent(t, env, model.ChainDistributor, "dist-1")
	requireLedgerConsistent(t, env, model.ChainDistributorRepresentative, "rep-1")
}

func TestTransfer_ShortageIsAtomic(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	env.addStock(t, model.ChainDistributor, "dist-1", "p1", 2, base)

	_, err := env.ledger.Transfer(ctx, distributor, TransferInput{
		Chain: model.ChainDistributor, FromOwnerID: "dist-1", ToOwnerID: "dist-2", ProductID: "p1", Quantity: 3,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	assert.Equal(t, 2, env.summary(t, model.ChainDistributor, "dist-1", "p1").AvailableQuantity)
	_, err = env.stock.FindSummary(ctx, model.ChainDistributor, "dist-2", "p1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Equal(t, int64(0), env.auditCount(t, model.ActionTransferStock))
}

func TestTransfer_ToSelfRejected(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.ledger.Transfer(context.Background(), distributor, TransferInput{
		Chain: model.ChainDistributor, FromOwnerID: "dist-1", ToOwnerID: "dist-1", ProductID: "p1", Quantity: 1,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeleteEntry(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	a := env.addStock(t, model.ChainDirectShowroom, "show-1", "p1", 5, base)
	b := env.addStock(t, model.ChainDirectShowroom, "show-1", "p1", 4, base.Add(time.Hour))
	_, err := env.ledger.Consume(ctx, headOffice, ConsumeInput{
		Chain: model.ChainDirectShowroom, OwnerID: "show-1", ProductID: "p1", Quantity: 2,
	})
	require.NoError(t, err)

	require.NoError(t, env.ledger.DeleteEntry(ctx, headOffice, model.ChainDirectShowroom, "show-1", a.ID))
	sm := env.summary(t, model.ChainDirectShowroom, "show-1", "p1")
	assert.Equal(t, 4, sm.TotalQuantity)
	assert.Equal(t, 4, sm.AvailableQuantity)
	assert.Equal(t, 0, sm.UsedQuantity)
	assert.Equal(t, 1, sm.EntryCount)
	requireLedgerConsistent(t, env, model.ChainDirectShowroom, "show-1")

	require.NoError(t, env.ledger.DeleteEntry(ctx, headOffice, model.ChainDirectShowroom, "show-1", b.ID))
	_, err = env.stock.FindSummary(ctx, model.ChainDirectShowroom, "show-1", "p1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	err = env.ledger.DeleteEntry(ctx, headOffice, model.ChainDirectShowroom, "show-1", b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(2), env.auditCount(t, model.ActionDeleteEntry))
}

func TestDeleteEntry_OtherOwnerNotFound(t *testing.T) {
	env := newTestEnv(t, "")
	a := env.addStock(t, model.ChainDirectShowroom, "show-1", "p1", 5, base)

	err := env.ledger.DeleteEntry(context.Background(), headOffice, model.ChainDirectShowroom, "show-2", a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 5, env.summary(t, model.ChainDirectShowroom, "show-1", "p1").AvailableQuantity)
}

func TestRecalculate_RepairsDrift(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	env.addStock(t, model.ChainDistributor, "dist-1", "p1", 5, base)
	env.addStock(t, model.ChainDistributor, "dist-1", "p2", 7, base)

	require.NoError(t, env.db.Model(&model.StockSummary{}).
		Where("product_id = ?", "p1").
		Update("available_quantity", 99).Error)
	require.NoError(t, env.db.Create(&model.StockSummary{
		Chain: model.ChainDistributor, OwnerID: "dist-1", ProductID: "ghost", TotalQuantity: 3, EntryCount: 1,
		LastUpdated: base,
	}).Error)

	drifts, err := env.ledger.CheckDrift(ctx, model.ChainDistributor, "dist-1")
	require.NoError(t, err)
	require.Len(t, drifts, 2)
	assert.Equal(t, "ghost", drifts[0].ProductID)
	assert.True(t, drifts[0].Orphaned)
	assert.Equal(t, "p1", drifts[1].ProductID)
	assert.Equal(t, 99, drifts[1].Cached.AvailableQuantity)
	assert.Equal(t, 5, drifts[1].Actual.AvailableQuantity)

	summaries, err := env.ledger.Recalculate(ctx, headOffice, model.ChainDistributor, "dist-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "p1", summaries[0].ProductID)
	assert.Equal(t, 5, summaries[0].AvailableQuantity)

	requireLedgerConsistent(t, env, model.ChainDistributor, "dist-1")
	assert.Equal(t, int64(1), env.auditCount(t, model.ActionRecalculate))
	assert.Contains(t, env.recorder.Types(), events.SummaryRecalculated)
}

func TestGetEntries_Paginates(t *testing.T) {
	env := newTestEnv(t, "")
	for i := 0; i < 5; i++ {
		env.addStock(t, model.ChainDirectShowroom, "show-1", "p1", i+1, base.Add(time.Duration(i)*time.Minute))
	}
	env.addStock(t, model.ChainDirectShowroom, "show-1", "p2", 1, base)

	entries, total, err := env.ledger.GetEntries(context.Background(), EntryFilter{
		Chain: model.ChainDirectShowroom, OwnerID: "show-1", ProductID: "p1", Page: 2, Limit: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, entries, 2)
	// newest first
	assert.Equal(t, 3, entries[0].Quantity)
	assert.Equal(t, 2, entries[1].Quantity)
}

func TestGetSummary_UnknownChain(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.ledger.GetSummary(context.Background(), "nowhere", "o")
	assert.ErrorIs(t, err, ErrValidation)
}
