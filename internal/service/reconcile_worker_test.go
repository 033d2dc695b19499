package service

import (
	"context"
	"testing"
	"time"

	"stockledger/internal/logger"
	"stockledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileWorker_RunOnce(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	env.addStock(t, model.ChainDirectShowroom, "show-1", "p1", 5, base)
	env.addStock(t, model.ChainDistributor, "dist-1", "p1", 8, base)
	require.NoError(t, env.db.Model(&model.StockSummary{}).
		Where("chain = ?", model.ChainDistributor).
		Update("total_quantity", 1).Error)

	worker := NewReconcileWorker(env.ledger, env.stock, time.Minute, env.metrics, logger.Discard())
	repaired, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	assert.Equal(t, 8, env.summary(t, model.ChainDistributor, "dist-1", "p1").TotalQuantity)
	requireLedgerConsistent(t, env, model.ChainDistributor, "dist-1")

	var audit model.AuditLog
	require.NoError(t, env.db.Where("action = ?", model.ActionRecalculate).First(&audit).Error)
	assert.Empty(t, audit.ActorID)

	repaired, err = worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestReconcileWorker_RunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t, "")
	worker := NewReconcileWorker(env.ledger, env.stock, 10*time.Millisecond, env.metrics, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestReconcileWorker_DisabledReturnsImmediately(t *testing.T) {
	env := newTestEnv(t, "")
	worker := NewReconcileWorker(env.ledger, env.stock, 0, env.metrics, logger.Discard())

	done := make(chan struct{})
	go func() {
		worker.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled worker kept running")
	}
}
