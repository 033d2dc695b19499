package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockledger/internal/events"
	"stockledger/internal/lock"
	"stockledger/internal/metrics"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ClaimResult struct {
	History *model.SalesApprovalHistory `json:"history"`
	Entries []*model.StockEntry         `json:"entries"`
}

type ClaimService interface {
	Claim(ctx context.Context, requestID uuid.UUID, claimant model.Actor) (*ClaimResult, error)
}

type claimService struct {
	txRunner
	histories repository.ApprovalHistoryRepository
	requests  repository.RequestRepository
	ledger    LedgerService
	locker    lock.Locker
	metrics   *metrics.Metrics
}

func NewClaimService(
	histories repository.ApprovalHistoryRepository,
	requests repository.RequestRepository,
	audit repository.AuditRepository,
	tx repository.TransactionManager,
	ledger LedgerService,
	locker lock.Locker,
	notifier events.Notifier,
	m *metrics.Metrics,
	log *logrus.Logger,
) ClaimService {
	return &claimService{
		txRunner:  txRunner{tx: tx, audit: audit, notifier: notifier, log: log},
		histories: histories,
		requests:  requests,
		ledger:    ledger,
		locker:    locker,
		metrics:   m,
	}
}

// Claim credits the claimant's ledger with the items of the request's sent approval record.
// The record is flipped to claimed before any entry is written and every entry carries an
// idempotency key, all in one transaction, so a request is credited at most once.
func (s *claimService) Claim(ctx context.Context, requestID uuid.UUID, claimant model.Actor) (*ClaimResult, error) {
	if claimant.ID == "" {
		return nil, validationError("claimant is required")
	}

	var result *ClaimResult
	err := s.locker.WithLock(ctx, "claim:"+requestID.String(), func(ctx context.Context) error {
		return s.run(ctx, func(txCtx context.Context, out *outbox) error {
			records, err := s.histories.FindClaimable(txCtx, requestID)
			if err != nil {
				return fmt.Errorf("failed to load approval history: %w", err)
			}

			var mine []model.SalesApprovalHistory
			for _, rec := range records {
				if rec.RequesterID == claimant.ID {
					mine = append(mine, rec)
				}
			}
			switch {
			case len(mine) == 0:
				return fmt.Errorf("%w: no sent record for request %s and claimant %s", ErrNotClaimable, requestID, claimant.ID)
			case len(mine) > 1:
				return fmt.Errorf("%w: %d sent records for request %s", ErrNotClaimable, len(mine), requestID)
			}
			history := mine[0]

			profile, err := profileFor(history.Chain)
			if err != nil {
				return err
			}

			now := time.Now()
			moved, err := s.histories.MarkClaimed(txCtx, history.ID, claimant.ID, now)
			if err != nil {
				return fmt.Errorf("failed to mark approval history claimed: %w", err)
			}
			if moved != 1 {
				return fmt.Errorf("%w: request %s was claimed concurrently", ErrNotClaimable, requestID)
			}
			history.Status = model.HistoryStatusClaimed
			history.ClaimedBy = claimant.ID
			history.ClaimedAt = &now

			entries := make([]*model.StockEntry, 0, len(history.Items))
			seen := make(map[string]int, len(history.Items))
			for _, item := range history.Items {
				var pricing *Pricing
				if item.FinalPrice.Valid {
					pricing = &Pricing{
						UnitPrice:       item.UnitPrice.Decimal,
						DiscountPercent: item.DiscountPercent.Decimal,
						FinalPrice:      item.FinalPrice.Decimal,
					}
				}
				entry, err := s.ledger.AddEntry(txCtx, claimant, AddEntryInput{
					Chain:          profile.Key,
					OwnerID:        claimant.ID,
					ProductID:      item.ProductID,
					ProductName:    item.ProductName,
					Quantity:       item.Quantity,
					RequestID:      requestID.String(),
					Source:         model.SourceDispatch,
					Pricing:        pricing,
					IdempotencyKey: claimKey(requestID, item.ProductID, seen),
					ReceivedAt:     &now,
				})
				if err != nil {
					return fmt.Errorf("failed to credit %s: %w", item.ProductID, err)
				}
				entries = append(entries, entry)
			}

			if err := s.closeRequest(txCtx, requestID, claimant, now); err != nil {
				return err
			}

			if err := s.record(txCtx, claimant, model.ActionClaimApproval, history.ID.String(), "salesApprovalHistory/"+history.ID.String(), map[string]interface{}{
				"request_id":     requestID.String(),
				"chain":          profile.Key,
				"total_quantity": history.TotalQuantity,
				"entries":        len(entries),
			}); err != nil {
				return err
			}

			out.add(events.New(events.ApprovalClaimed, claimant.ID, map[string]interface{}{
				"request_id":     requestID.String(),
				"history_id":     history.ID.String(),
				"chain":          profile.Key,
				"owner_id":       claimant.ID,
				"total_quantity": history.TotalQuantity,
			}))

			result = &ClaimResult{History: &history, Entries: entries}
			return nil
		})
	})

	outcome := metrics.Outcome(err)
	if errors.Is(err, ErrNotClaimable) {
		outcome = "not_claimable"
	}
	s.metrics.Claims.WithLabelValues(outcome).Inc()
	if err != nil {
		return nil, err
	}
	return result, nil
}

// closeRequest moves the linked request to claimed when it is still dispatched
func (s *claimService) closeRequest(ctx context.Context, requestID uuid.UUID, claimant model.Actor, now time.Time) error {
	req, err := s.requests.FindByIDForUpdate(ctx, requestID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load request: %w", err)
	}
	if !model.CanTransition(req.Status, model.RequestStatusClaimed) {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID.String(),
			"status":     req.Status,
		}).Warn("claimed approval record for a request that is not dispatched")
		return nil
	}
	req.Status = model.RequestStatusClaimed
	req.ClaimedBy = claimant.ID
	req.ClaimedAt = &now
	if err := s.requests.Update(ctx, req); err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	return nil
}

// claimKey is claim:<request>:<product>, suffixed when a product repeats within one record
func claimKey(requestID uuid.UUID, productID string, seen map[string]int) string {
	key := fmt.Sprintf("claim:%s:%s", requestID, productID)
	n := seen[productID]
	seen[productID] = n + 1
	if n > 0 {
		key = fmt.Sprintf("%s:%d", key, n)
	}
	return key
}
