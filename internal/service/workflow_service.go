package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"stockledger/internal/config"
	"stockledger/internal/events"
	"stockledger/internal/metrics"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// --- DTOs ---

type CreateRequestInput struct {
	Chain    string          `json:"chain" binding:"required"`
	Items    json.RawMessage `json:"items" binding:"required" swaggertype:"object"`
	Priority string          `json:"priority"`
	Notes    string          `json:"notes"`
}

type ApproveInput struct {
	Notes string `json:"notes"`
}

type RejectInput struct {
	Reason string `json:"reason"`
}

// DispatchInput is keyed by request item key. Items missing from Quantities ship their requested quantity.
type DispatchInput struct {
	Quantities map[string]int             `json:"quantities"`
	Pricing    map[string]PriceAdjustment `json:"pricing"`
	Notes      string                     `json:"notes"`
}

type RequestListFilter struct {
	repository.RequestFilter
	Page  int
	Limit int
}

type HistoryListFilter struct {
	repository.HistoryFilter
	Page  int
	Limit int
}

// --- Interface ---

type WorkflowService interface {
	CreateRequest(ctx context.Context, actor model.Actor, in CreateRequestInput) (*model.Request, error)
	Approve(ctx context.Context, id uuid.UUID, approver model.Actor, in ApproveInput) (*model.Request, error)
	Reject(ctx context.Context, id uuid.UUID, approver model.Actor, in RejectInput) (*model.Request, error)
	DispatchWithPricing(ctx context.Context, id uuid.UUID, dispatcher model.Actor, in DispatchInput) (*model.Request, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*model.Request, error)
	ListRequests(ctx context.Context, filter RequestListFilter) ([]model.Request, int64, error)
	ListApprovalHistory(ctx context.Context, filter HistoryListFilter) ([]model.SalesApprovalHistory, int64, error)
}

type workflowService struct {
	txRunner
	requests  repository.RequestRepository
	histories repository.ApprovalHistoryRepository
	ledger    LedgerService
	shortage  string
	metrics   *metrics.Metrics
}

func NewWorkflowService(
	requests repository.RequestRepository,
	histories repository.ApprovalHistoryRepository,
	audit repository.AuditRepository,
	tx repository.TransactionManager,
	ledger LedgerService,
	notifier events.Notifier,
	shortage string,
	m *metrics.Metrics,
	log *logrus.Logger,
) WorkflowService {
	if shortage == "" {
		shortage = config.ShortageClamp
	}
	return &workflowService{
		txRunner:  txRunner{tx: tx, audit: audit, notifier: notifier, log: log},
		requests:  requests,
		histories: histories,
		ledger:    ledger,
		shortage:  shortage,
		metrics:   m,
	}
}

// --- Implementation ---

func (s *workflowService) CreateRequest(ctx context.Context, actor model.Actor, in CreateRequestInput) (*model.Request, error) {
	if _, err := profileFor(in.Chain); err != nil {
		return nil, err
	}
	if actor.ID == "" {
		return nil, validationError("requester is required")
	}
	priority := in.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}
	switch priority {
	case model.PriorityLow, model.PriorityNormal, model.PriorityHigh, model.PriorityUrgent:
	default:
		return nil, validationError("unknown priority %q", priority)
	}

	items, err := ParseRequestItems(in.Items)
	if err != nil {
		return nil, err
	}

	req := &model.Request{
		Chain:         in.Chain,
		RequestedBy:   actor.ID,
		RequesterName: actor.Name,
		RequesterRole: actor.Role,
		DistributorID: actor.DistributorID,
		Items:         items,
		Status:        model.RequestStatusPending,
		Priority:      priority,
		Notes:         in.Notes,
	}

	err = s.run(ctx, func(txCtx context.Context, out *outbox) error {
		if err := s.requests.Create(txCtx, req); err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if err := s.record(txCtx, actor, model.ActionCreateRequest, req.ID.String(), "requests/"+req.ID.String(), map[string]interface{}{
			"chain":          req.Chain,
			"items":          len(req.Items),
			"total_quantity": req.TotalQuantity(),
		}); err != nil {
			return err
		}
		out.add(events.New(events.RequestCreated, actor.ID, map[string]interface{}{
			"request_id": req.ID.String(),
			"chain":      req.Chain,
			"priority":   req.Priority,
		}))
		return nil
	})
	s.metrics.WorkflowOps.WithLabelValues(model.RequestStatusPending, metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *workflowService) Approve(ctx context.Context, id uuid.UUID, approver model.Actor, in ApproveInput) (*model.Request, error) {
	req, err := s.transition(ctx, id, model.RequestStatusApproved, func(txCtx context.Context, req *model.Request, now time.Time) error {
		req.ApprovedBy = approver.ID
		req.ApprovedAt = &now
		req.ApprovalNotes = in.Notes
		return s.record(txCtx, approver, model.ActionApproveRequest, req.ID.String(), "requests/"+req.ID.String(), map[string]interface{}{
			"notes": in.Notes,
		})
	}, approver, events.RequestApproved)
	return req, err
}

func (s *workflowService) Reject(ctx context.Context, id uuid.UUID, approver model.Actor, in RejectInput) (*model.Request, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, validationError("rejection reason is required")
	}
	return s.transition(ctx, id, model.RequestStatusRejected, func(txCtx context.Context, req *model.Request, now time.Time) error {
		req.RejectedBy = approver.ID
		req.RejectedAt = &now
		req.RejectionReason = reason
		return s.record(txCtx, approver, model.ActionRejectRequest, req.ID.String(), "requests/"+req.ID.String(), map[string]interface{}{
			"reason": reason,
		})
	}, approver, events.RequestRejected)
}

// transition locks the request, checks the move is allowed from its current status, applies mutate and saves
func (s *workflowService) transition(
	ctx context.Context,
	id uuid.UUID,
	to string,
	mutate func(txCtx context.Context, req *model.Request, now time.Time) error,
	actor model.Actor,
	eventType string,
) (*model.Request, error) {
	var req *model.Request
	err := s.run(ctx, func(txCtx context.Context, out *outbox) error {
		var err error
		req, err = s.requests.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return notFound(err, "request")
		}
		if !model.CanTransition(req.Status, to) {
			return &StateTransitionError{ID: req.ID.String(), From: req.Status, To: to}
		}

		if err := mutate(txCtx, req, time.Now()); err != nil {
			return err
		}
		req.Status = to
		if err := s.requests.Update(txCtx, req); err != nil {
			return fmt.Errorf("failed to update request: %w", err)
		}

		out.add(events.New(eventType, actor.ID, map[string]interface{}{
			"request_id":   req.ID.String(),
			"chain":        req.Chain,
			"requested_by": req.RequestedBy,
			"status":       req.Status,
		}))
		return nil
	})
	s.metrics.WorkflowOps.WithLabelValues(to, metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return req, nil
}

// DispatchWithPricing releases an approved request: the dispatcher's ledger is debited on the upstream
// chain, item prices are resolved and a sent approval record is written for the requester to claim.
func (s *workflowService) DispatchWithPricing(ctx context.Context, id uuid.UUID, dispatcher model.Actor, in DispatchInput) (*model.Request, error) {
	for key, qty := range in.Quantities {
		if qty < 0 || qty > model.MaxQuantity {
			return nil, validationError("dispatch quantity for %q must be between 0 and %d", key, model.MaxQuantity)
		}
	}

	return s.transition(ctx, id, model.RequestStatusDispatched, func(txCtx context.Context, req *model.Request, now time.Time) error {
		profile, err := profileFor(req.Chain)
		if err != nil {
			return err
		}

		known := make(map[string]bool, len(req.Items))
		for _, it := range req.Items {
			known[it.Key] = true
		}
		for key := range in.Quantities {
			if !known[key] {
				return validationError("unknown item key %q in quantities", key)
			}
		}
		for key := range in.Pricing {
			if !known[key] {
				return validationError("unknown item key %q in pricing", key)
			}
		}

		history := &model.SalesApprovalHistory{
			RequestID:       req.ID,
			Chain:           req.Chain,
			RequesterID:     req.RequestedBy,
			RequesterName:   req.RequesterName,
			RequesterRole:   req.RequesterRole,
			DistributorID:   req.DistributorID,
			Status:          model.HistoryStatusSent,
			IsCompletedByFG: true,
			SentBy:          dispatcher.ID,
			SentAt:          now,
		}
		if profile.HasUpstreamLedger() {
			history.DistributorName = dispatcher.Name
		}

		totalValue := decimal.Zero
		allPriced := true
		for i := range req.Items {
			item := &req.Items[i]

			qty := item.Quantity
			if q, ok := in.Quantities[item.Key]; ok {
				qty = q
			}
			item.DispatchedQuantity = &qty

			var pricing *Pricing
			if adj, ok := in.Pricing[item.Key]; ok {
				p, err := ResolvePrice(adj)
				if err != nil {
					return fmt.Errorf("item %q: %w", item.Key, err)
				}
				pricing = &p
				item.UnitPrice = nullable(p.UnitPrice)
				item.AdjustmentType = adj.AdjustmentType
				if adj.AdjustmentValue != nil {
					item.AdjustmentValue = nullable(*adj.AdjustmentValue)
				} else {
					item.AdjustmentValue = decimal.NullDecimal{}
				}
				item.FinalPrice = nullable(p.FinalPrice)
			}

			if qty > 0 && profile.HasUpstreamLedger() {
				if err := s.debitDispatcher(txCtx, profile, dispatcher, req, item.ProductID, qty); err != nil {
					return err
				}
			}

			if err := s.requests.UpdateItem(txCtx, item); err != nil {
				return fmt.Errorf("failed to update request item: %w", err)
			}

			if qty == 0 {
				continue
			}
			if history.TotalQuantity > model.MaxQuantity-qty {
				return validationError("dispatched total would exceed %d", model.MaxQuantity)
			}
			hi := model.SalesApprovalHistoryItem{
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				Quantity:    qty,
			}
			if pricing != nil {
				hi.UnitPrice = nullable(pricing.UnitPrice)
				hi.DiscountPercent = nullable(pricing.DiscountPercent)
				hi.FinalPrice = nullable(pricing.FinalPrice)
				hi.TotalValue = nullable(pricing.TotalValue(qty))
				totalValue = totalValue.Add(hi.TotalValue.Decimal)
			} else {
				allPriced = false
			}
			history.Items = append(history.Items, hi)
			history.TotalQuantity += qty
		}
		if allPriced && len(history.Items) > 0 {
			history.TotalValue = nullable(totalValue)
		}

		if err := s.saveHistory(txCtx, history); err != nil {
			return err
		}

		req.DispatchedBy = dispatcher.ID
		req.DispatchedAt = &now
		req.DispatchNotes = in.Notes

		return s.record(txCtx, dispatcher, model.ActionDispatchRequest, req.ID.String(), "requests/"+req.ID.String(), map[string]interface{}{
			"history_id":     history.ID.String(),
			"total_quantity": history.TotalQuantity,
			"total_value":    history.TotalValue,
			"shortage":       s.shortage,
		})
	}, dispatcher, events.RequestDispatched)
}

// debitDispatcher takes the dispatched quantity out of the dispatcher's own ledger on the upstream chain
func (s *workflowService) debitDispatcher(ctx context.Context, profile model.ChainProfile, dispatcher model.Actor, req *model.Request, productID string, qty int) error {
	in := ConsumeInput{
		Chain:     profile.Upstream,
		OwnerID:   dispatcher.ID,
		ProductID: productID,
		Quantity:  qty,
		Reason:    "dispatch request " + req.ID.String(),
	}

	if s.shortage == config.ShortageStrict {
		_, err := s.ledger.Consume(ctx, dispatcher, in)
		return err
	}

	res, err := s.ledger.ConsumeUpTo(ctx, dispatcher, in)
	if err != nil {
		return err
	}
	if res.Consumed < qty {
		s.log.WithFields(logrus.Fields{
			"request_id": req.ID.String(),
			"chain":      profile.Upstream,
			"owner_id":   dispatcher.ID,
			"product_id": productID,
			"requested":  qty,
			"consumed":   res.Consumed,
		}).Warn("dispatch exceeds available stock, deduction clamped")
	}
	return nil
}

// saveHistory overwrites the request's still-sent record, or creates one
func (s *workflowService) saveHistory(ctx context.Context, history *model.SalesApprovalHistory) error {
	existing, err := s.histories.FindByRequestForUpdate(ctx, history.RequestID)
	if err != nil {
		return fmt.Errorf("failed to load approval history: %w", err)
	}

	for _, rec := range existing {
		if rec.Status == model.HistoryStatusClaimed {
			return fmt.Errorf("%w: approval record of request %s is already claimed", ErrInvalidStateTransition, history.RequestID)
		}
	}

	if len(existing) == 0 {
		if err := s.histories.Create(ctx, history); err != nil {
			return fmt.Errorf("failed to create approval history: %w", err)
		}
		return nil
	}

	items := history.Items
	history.ID = existing[0].ID
	history.CreatedAt = existing[0].CreatedAt
	history.Items = nil
	if err := s.histories.Update(ctx, history); err != nil {
		return fmt.Errorf("failed to update approval history: %w", err)
	}
	if err := s.histories.ReplaceItems(ctx, history.ID, items); err != nil {
		return fmt.Errorf("failed to replace approval history items: %w", err)
	}
	history.Items = items
	return nil
}

func (s *workflowService) GetRequest(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "request")
	}
	return req, nil
}

func (s *workflowService) ListRequests(ctx context.Context, filter RequestListFilter) ([]model.Request, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	reqs, total, err := s.requests.List(ctx, filter.RequestFilter, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list requests: %w", err)
	}
	return reqs, total, nil
}

func (s *workflowService) ListApprovalHistory(ctx context.Context, filter HistoryListFilter) ([]model.SalesApprovalHistory, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	records, total, err := s.histories.List(ctx, filter.HistoryFilter, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list approval history: %w", err)
	}
	return records, total, nil
}
