package service

import (
	"context"
	"time"

	"stockledger/internal/metrics"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/sirupsen/logrus"
)

// ReconcileWorker periodically repairs summaries that drifted from their entries
type ReconcileWorker struct {
	ledger   LedgerService
	repo     repository.StockRepository
	interval time.Duration
	metrics  *metrics.Metrics
	log      *logrus.Logger
}

func NewReconcileWorker(ledger LedgerService, repo repository.StockRepository, interval time.Duration, m *metrics.Metrics, log *logrus.Logger) *ReconcileWorker {
	return &ReconcileWorker{ledger: ledger, repo: repo, interval: interval, metrics: m, log: log}
}

// Run blocks until ctx is cancelled. A zero interval disables the worker.
func (w *ReconcileWorker) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.log.Info("reconcile worker disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.WithField("interval", w.interval.String()).Info("reconcile worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("reconcile worker stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.WithError(err).Error("reconcile pass failed")
			}
		}
	}
}

// RunOnce checks every ledger and recalculates the ones that drifted; it returns how many were repaired
func (w *ReconcileWorker) RunOnce(ctx context.Context) (int, error) {
	owners, err := w.repo.ListOwners(ctx)
	if err != nil {
		return 0, err
	}

	driftByChain := make(map[string]int)
	for _, chain := range model.Chains() {
		driftByChain[chain] = 0
	}

	repaired := 0
	for _, ref := range owners {
		if ctx.Err() != nil {
			return repaired, ctx.Err()
		}

		drifts, err := w.ledger.CheckDrift(ctx, ref.Chain, ref.OwnerID)
		if err != nil {
			w.log.WithFields(logrus.Fields{"chain": ref.Chain, "owner_id": ref.OwnerID}).
				WithError(err).Warn("drift check failed")
			continue
		}
		if len(drifts) == 0 {
			continue
		}
		driftByChain[ref.Chain] += len(drifts)

		if _, err := w.ledger.Recalculate(ctx, model.System, ref.Chain, ref.OwnerID); err != nil {
			w.log.WithFields(logrus.Fields{"chain": ref.Chain, "owner_id": ref.OwnerID}).
				WithError(err).Warn("recalculate failed")
			continue
		}
		repaired++
		w.log.WithFields(logrus.Fields{
			"chain":    ref.Chain,
			"owner_id": ref.OwnerID,
			"products": len(drifts),
		}).Info("summary drift repaired")
	}

	for chain, n := range driftByChain {
		w.metrics.SummaryDrift.WithLabelValues(chain).Set(float64(n))
	}
	w.metrics.ReconcileRuns.Inc()
	return repaired, nil
}
