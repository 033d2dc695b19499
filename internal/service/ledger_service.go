package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"stockledger/internal/events"
	"stockledger/internal/lock"
	"stockledger/internal/metrics"
	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// --- DTOs ---

type AddEntryInput struct {
	Chain          string     `json:"-"`
	OwnerID        string     `json:"-"`
	ProductID      string     `json:"product_id" binding:"required"`
	ProductName    string     `json:"product_name"`
	Quantity       int        `json:"quantity" binding:"required"`
	RequestID      string     `json:"request_id"`
	Source         string     `json:"source"`
	Pricing        *Pricing   `json:"pricing,omitempty"`
	Location       string     `json:"location"`
	Notes          string     `json:"notes"`
	IdempotencyKey string     `json:"idempotency_key"`
	ReceivedAt     *time.Time `json:"received_at,omitempty"`
}

type ConsumeInput struct {
	Chain     string `json:"-"`
	OwnerID   string `json:"-"`
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
	Reason    string `json:"reason"`
}

type TransferInput struct {
	Chain       string `json:"-"`
	FromOwnerID string `json:"-"`
	ToChain     string `json:"to_chain"`
	ToOwnerID   string `json:"to_owner_id" binding:"required"`
	ProductID   string `json:"product_id" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required"`
	Reason      string `json:"reason"`
	RequestID   string `json:"request_id"`
}

type EntryFilter struct {
	Chain     string
	OwnerID   string
	ProductID string
	Page      int
	Limit     int
}

// Allocation is the part of one entry taken by a FIFO consume
type Allocation struct {
	EntryID   uuid.UUID `json:"entry_id"`
	Taken     int       `json:"taken"`
	Remaining int       `json:"remaining"`
	Pricing   *Pricing  `json:"-"`
}

type ConsumeResult struct {
	Chain       string       `json:"chain"`
	OwnerID     string       `json:"owner_id"`
	ProductID   string       `json:"product_id"`
	Requested   int          `json:"requested"`
	Consumed    int          `json:"consumed"`
	Allocations []Allocation `json:"allocations"`
}

type TransferResult struct {
	Consumed ConsumeResult     `json:"consumed"`
	Entry    *model.StockEntry `json:"entry"`
}

// SummaryTotals are the aggregated fields a summary caches
type SummaryTotals struct {
	TotalQuantity     int                 `json:"total_quantity"`
	AvailableQuantity int                 `json:"available_quantity"`
	UsedQuantity      int                 `json:"used_quantity"`
	EntryCount        int                 `json:"entry_count"`
	TotalValue        decimal.NullDecimal `json:"total_value"`
}

// SummaryDrift describes one product whose cached summary disagrees with its entries
type SummaryDrift struct {
	ProductID string        `json:"product_id"`
	Cached    SummaryTotals `json:"cached"`
	Actual    SummaryTotals `json:"actual"`
	Missing   bool          `json:"missing"` // entries exist but no summary
	Orphaned  bool          `json:"orphaned"`
}

// --- Interface ---

type LedgerService interface {
	AddEntry(ctx context.Context, actor model.Actor, in AddEntryInput) (*model.StockEntry, error)
	Consume(ctx context.Context, actor model.Actor, in ConsumeInput) (*ConsumeResult, error)
	ConsumeUpTo(ctx context.Context, actor model.Actor, in ConsumeInput) (*ConsumeResult, error)
	Transfer(ctx context.Context, actor model.Actor, in TransferInput) (*TransferResult, error)
	GetSummary(ctx context.Context, chain, ownerID string) ([]model.StockSummary, error)
	GetEntries(ctx context.Context, filter EntryFilter) ([]model.StockEntry, int64, error)
	DeleteEntry(ctx context.Context, actor model.Actor, chain, ownerID string, entryID uuid.UUID) error
	Recalculate(ctx context.Context, actor model.Actor, chain, ownerID string) ([]model.StockSummary, error)
	CheckDrift(ctx context.Context, chain, ownerID string) ([]SummaryDrift, error)
}

type ledgerService struct {
	txRunner
	repo    repository.StockRepository
	locker  lock.Locker
	metrics *metrics.Metrics
}

func NewLedgerService(
	repo repository.StockRepository,
	audit repository.AuditRepository,
	tx repository.TransactionManager,
	locker lock.Locker,
	notifier events.Notifier,
	m *metrics.Metrics,
	log *logrus.Logger,
) LedgerService {
	return &ledgerService{
		txRunner: txRunner{tx: tx, audit: audit, notifier: notifier, log: log},
		repo:     repo,
		locker:   locker,
		metrics:  m,
	}
}

// --- Implementation ---

func (s *ledgerService) AddEntry(ctx context.Context, actor model.Actor, in AddEntryInput) (*model.StockEntry, error) {
	var entry *model.StockEntry
	err := s.run(ctx, func(txCtx context.Context, out *outbox) error {
		var err error
		entry, _, err = s.addEntry(txCtx, out, actor, in)
		return err
	})
	s.metrics.LedgerOps.WithLabelValues(in.Chain, "add_entry", metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// addEntry must run inside a transaction. created is false when the idempotency key matched an existing entry.
func (s *ledgerService) addEntry(ctx context.Context, out *outbox, actor model.Actor, in AddEntryInput) (*model.StockEntry, bool, error) {
	profile, err := profileFor(in.Chain)
	if err != nil {
		return nil, false, err
	}
	if strings.TrimSpace(in.OwnerID) == "" || strings.TrimSpace(in.ProductID) == "" {
		return nil, false, validationError("owner and product are required")
	}
	if in.Quantity <= 0 || in.Quantity > model.MaxQuantity {
		return nil, false, validationError("quantity must be between 1 and %d, got %d", model.MaxQuantity, in.Quantity)
	}
	source := in.Source
	if source == "" {
		source = model.SourceReceipt
	}
	if !validSource(source) {
		return nil, false, validationError("unknown source %q", source)
	}

	if in.IdempotencyKey != "" {
		existing, err := s.repo.FindEntryByIdempotencyKey(ctx, in.IdempotencyKey)
		if err == nil {
			if existing.Chain != in.Chain || existing.OwnerID != in.OwnerID || existing.ProductID != in.ProductID {
				return nil, false, validationError("idempotency key %q already used for another ledger", in.IdempotencyKey)
			}
			return existing, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("failed to check idempotency key: %w", err)
		}
	}

	summary, err := s.repo.LockSummary(ctx, in.Chain, in.OwnerID, in.ProductID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock summary: %w", err)
	}
	if summary.TotalQuantity > model.MaxQuantity-in.Quantity {
		return nil, false, validationError("ledger total for %s would exceed %d", in.ProductID, model.MaxQuantity)
	}

	receivedAt := time.Now()
	if in.ReceivedAt != nil {
		receivedAt = *in.ReceivedAt
	}

	entry := &model.StockEntry{
		Chain:             in.Chain,
		OwnerID:           in.OwnerID,
		ProductID:         in.ProductID,
		ProductName:       in.ProductName,
		Quantity:          in.Quantity,
		AvailableQuantity: in.Quantity,
		ReceivedAt:        receivedAt,
		RequestID:         in.RequestID,
		Source:            source,
		Location:          in.Location,
		Notes:             in.Notes,
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		entry.IdempotencyKey = &key
	}
	if profile.CarriesPricing && in.Pricing != nil {
		entry.UnitPrice = nullable(in.Pricing.UnitPrice)
		entry.DiscountPercent = nullable(in.Pricing.DiscountPercent)
		entry.FinalPrice = nullable(in.Pricing.FinalPrice)
		entry.TotalValue = nullable(in.Pricing.TotalValue(in.Quantity))
	}
	entry.RefreshStatus()

	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		return nil, false, fmt.Errorf("failed to create stock entry: %w", err)
	}

	if summary.EntryCount == 0 {
		// new or previously emptied summary: derive it from the entries instead of trusting it
		if err := s.rebuildSummary(ctx, summary); err != nil {
			return nil, false, err
		}
	} else {
		summary.TotalQuantity += entry.Quantity
		summary.AvailableQuantity += entry.AvailableQuantity
		summary.EntryCount++
		if entry.TotalValue.Valid {
			summary.TotalValue = nullable(summary.TotalValue.Decimal.Add(entry.TotalValue.Decimal))
		}
		if entry.ProductName != "" {
			summary.ProductName = entry.ProductName
		}
		if summary.FirstClaimedAt == nil || entry.ReceivedAt.Before(*summary.FirstClaimedAt) {
			t := entry.ReceivedAt
			summary.FirstClaimedAt = &t
		}
		summary.RefreshAverage()
		summary.LastUpdated = time.Now()
		if err := s.repo.SaveSummary(ctx, summary); err != nil {
			return nil, false, fmt.Errorf("failed to update summary: %w", err)
		}
	}

	if err := s.record(ctx, actor, model.ActionAddEntry, entry.ID.String(), profile.EntryPath(entry.OwnerID, entry.ID.String()), map[string]interface{}{
		"product_id": entry.ProductID,
		"quantity":   entry.Quantity,
		"source":     entry.Source,
		"request_id": entry.RequestID,
	}); err != nil {
		return nil, false, err
	}

	out.add(events.New(events.EntryAdded, actor.ID, map[string]interface{}{
		"chain":      entry.Chain,
		"owner_id":   entry.OwnerID,
		"product_id": entry.ProductID,
		"entry_id":   entry.ID.String(),
		"quantity":   entry.Quantity,
		"source":     entry.Source,
		"request_id": entry.RequestID,
	}))
	s.metrics.StockQuantity.WithLabelValues(entry.Chain, "in").Add(float64(entry.Quantity))

	return entry, true, nil
}

func (s *ledgerService) Consume(ctx context.Context, actor model.Actor, in ConsumeInput) (*ConsumeResult, error) {
	var result *ConsumeResult
	err := s.run(ctx, func(txCtx context.Context, out *outbox) error {
		var err error
		result, err = s.consume(txCtx, out, actor, in, false)
		return err
	})
	s.metrics.LedgerOps.WithLabelValues(in.Chain, "consume", metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ConsumeUpTo takes min(requested, available) instead of failing on a shortfall
func (s *ledgerService) ConsumeUpTo(ctx context.Context, actor model.Actor, in ConsumeInput) (*ConsumeResult, error) {
	var result *ConsumeResult
	err := s.run(ctx, func(txCtx context.Context, out *outbox) error {
		var err error
		result, err = s.consume(txCtx, out, actor, in, true)
		return err
	})
	s.metrics.LedgerOps.WithLabelValues(in.Chain, "consume_up_to", metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return result, nil
}

// consume walks the available entries oldest first. Feasibility is checked before any write:
// a shortfall returns InsufficientStockError, unless clamp is set, in which case only what is
// available is taken.
func (s *ledgerService) consume(ctx context.Context, out *outbox, actor model.Actor, in ConsumeInput, clamp bool) (*ConsumeResult, error) {
	profile, err := profileFor(in.Chain)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.OwnerID) == "" || strings.TrimSpace(in.ProductID) == "" {
		return nil, validationError("owner and product are required")
	}
	if in.Quantity <= 0 || in.Quantity > model.MaxQuantity {
		return nil, validationError("quantity must be between 1 and %d, got %d", model.MaxQuantity, in.Quantity)
	}

	summary, err := s.repo.LockSummary(ctx, in.Chain, in.OwnerID, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock summary: %w", err)
	}

	entries, err := s.repo.ListAvailableFIFO(ctx, in.Chain, in.OwnerID, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stock entries: %w", err)
	}

	available := 0
	for _, e := range entries {
		available += e.AvailableQuantity
	}

	want := in.Quantity
	if want > available {
		if !clamp {
			return nil, &InsufficientStockError{
				Chain:     in.Chain,
				OwnerID:   in.OwnerID,
				ProductID: in.ProductID,
				Requested: in.Quantity,
				Available: available,
			}
		}
		want = available
	}

	result := &ConsumeResult{
		Chain:     in.Chain,
		OwnerID:   in.OwnerID,
		ProductID: in.ProductID,
		Requested: in.Quantity,
		Consumed:  want,
	}
	if want == 0 {
		// drop the row LockSummary seeded when nothing backs it
		if summary.EntryCount == 0 {
			if err := s.rebuildSummary(ctx, summary); err != nil {
				return nil, err
			}
		}
		return result, nil
	}

	// plan first, then write
	remaining := want
	plan := make([]Allocation, 0, len(entries))
	for _, e := range entries {
		if remaining == 0 {
			break
		}
		take := e.AvailableQuantity
		if take > remaining {
			take = remaining
		}
		plan = append(plan, Allocation{
			EntryID:   e.ID,
			Taken:     take,
			Remaining: e.AvailableQuantity - take,
			Pricing:   entryPricing(e),
		})
		remaining -= take
	}

	for i, alloc := range plan {
		e := entries[i]
		e.AvailableQuantity -= alloc.Taken
		e.UsedQuantity += alloc.Taken
		e.RefreshStatus()
		if in.Reason != "" {
			e.Notes = appendNote(e.Notes, in.Reason)
		}
		if err := s.repo.SaveEntry(ctx, &e); err != nil {
			return nil, fmt.Errorf("failed to update stock entry %s: %w", e.ID, err)
		}
	}
	result.Allocations = plan

	if summary.EntryCount == 0 {
		if err := s.rebuildSummary(ctx, summary); err != nil {
			return nil, err
		}
	} else {
		summary.AvailableQuantity -= want
		summary.UsedQuantity += want
		summary.LastUpdated = time.Now()
		if err := s.repo.SaveSummary(ctx, summary); err != nil {
			return nil, fmt.Errorf("failed to update summary: %w", err)
		}
	}

	if err := s.record(ctx, actor, model.ActionConsumeStock, in.ProductID, profile.SummaryPath(in.OwnerID, in.ProductID), map[string]interface{}{
		"requested":   in.Quantity,
		"consumed":    want,
		"reason":      in.Reason,
		"allocations": plan,
	}); err != nil {
		return nil, err
	}

	out.add(events.New(events.StockConsumed, actor.ID, map[string]interface{}{
		"chain":      in.Chain,
		"owner_id":   in.OwnerID,
		"product_id": in.ProductID,
		"quantity":   want,
		"reason":     in.Reason,
	}))
	s.metrics.StockQuantity.WithLabelValues(in.Chain, "out").Add(float64(want))

	return result, nil
}

func (s *ledgerService) Transfer(ctx context.Context, actor model.Actor, in TransferInput) (*TransferResult, error) {
	toChain := in.ToChain
	if toChain == "" {
		toChain = in.Chain
	}
	if toChain == in.Chain && in.ToOwnerID == in.FromOwnerID {
		return nil, validationError("cannot transfer stock to the same ledger")
	}
	toProfile, err := profileFor(toChain)
	if err != nil {
		return nil, err
	}

	var result *TransferResult
	err = s.run(ctx, func(txCtx context.Context, out *outbox) error {
		consumed, err := s.consume(txCtx, out, actor, ConsumeInput{
			Chain:     in.Chain,
			OwnerID:   in.FromOwnerID,
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			Reason:    transferNote(in.Reason, "to", toChain, in.ToOwnerID),
		}, false)
		if err != nil {
			return err
		}

		var pricing *Pricing
		if toProfile.CarriesPricing {
			pricing = weightedPricing(consumed.Allocations)
		}

		productName, err := s.productName(txCtx, in.Chain, in.FromOwnerID, in.ProductID)
		if err != nil {
			return err
		}

		entry, _, err := s.addEntry(txCtx, out, actor, AddEntryInput{
			Chain:       toChain,
			OwnerID:     in.ToOwnerID,
			ProductID:   in.ProductID,
			ProductName: productName,
			Quantity:    consumed.Consumed,
			RequestID:   in.RequestID,
			Source:      model.SourceTransfer,
			Pricing:     pricing,
			Notes:       transferNote(in.Reason, "from", in.Chain, in.FromOwnerID),
		})
		if err != nil {
			return err
		}

		if err := s.record(txCtx, actor, model.ActionTransferStock, entry.ID.String(), toProfile.EntryPath(in.ToOwnerID, entry.ID.String()), map[string]interface{}{
			"from_chain": in.Chain,
			"from_owner": in.FromOwnerID,
			"to_chain":   toChain,
			"to_owner":   in.ToOwnerID,
			"product_id": in.ProductID,
			"quantity":   consumed.Consumed,
		}); err != nil {
			return err
		}

		out.add(events.New(events.StockTransferred, actor.ID, map[string]interface{}{
			"from_chain": in.Chain,
			"from_owner": in.FromOwnerID,
			"to_chain":   toChain,
			"to_owner":   in.ToOwnerID,
			"product_id": in.ProductID,
			"quantity":   consumed.Consumed,
			"entry_id":   entry.ID.String(),
		}))

		result = &TransferResult{Consumed: *consumed, Entry: entry}
		return nil
	})
	s.metrics.LedgerOps.WithLabelValues(in.Chain, "transfer", metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ledgerService) GetSummary(ctx context.Context, chain, ownerID string) ([]model.StockSummary, error) {
	if _, err := profileFor(chain); err != nil {
		return nil, err
	}
	summaries, err := s.repo.ListSummaries(ctx, chain, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load summaries: %w", err)
	}
	return summaries, nil
}

func (s *ledgerService) GetEntries(ctx context.Context, filter EntryFilter) ([]model.StockEntry, int64, error) {
	if _, err := profileFor(filter.Chain); err != nil {
		return nil, 0, err
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	entries, total, err := s.repo.ListEntries(ctx, filter.Chain, filter.OwnerID, filter.ProductID, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load stock entries: %w", err)
	}
	return entries, total, nil
}

// DeleteEntry removes one entry and takes its quantities back out of the summary
func (s *ledgerService) DeleteEntry(ctx context.Context, actor model.Actor, chain, ownerID string, entryID uuid.UUID) error {
	profile, err := profileFor(chain)
	if err != nil {
		return err
	}

	err = s.run(ctx, func(txCtx context.Context, out *outbox) error {
		probe, err := s.repo.FindEntryByID(txCtx, chain, ownerID, entryID)
		if err != nil {
			return notFound(err, "stock entry")
		}

		summary, err := s.repo.LockSummary(txCtx, chain, ownerID, probe.ProductID)
		if err != nil {
			return fmt.Errorf("failed to lock summary: %w", err)
		}
		// re-read under the summary lock
		entry, err := s.repo.FindEntryByID(txCtx, chain, ownerID, entryID)
		if err != nil {
			return notFound(err, "stock entry")
		}

		if err := s.repo.DeleteEntry(txCtx, entry.ID); err != nil {
			return fmt.Errorf("failed to delete stock entry: %w", err)
		}

		if summary.EntryCount <= 1 {
			if err := s.rebuildSummary(txCtx, summary); err != nil {
				return err
			}
		} else {
			summary.TotalQuantity -= entry.Quantity
			summary.AvailableQuantity -= entry.AvailableQuantity
			summary.UsedQuantity -= entry.UsedQuantity
			summary.EntryCount--
			if entry.TotalValue.Valid && summary.TotalValue.Valid {
				summary.TotalValue = nullable(summary.TotalValue.Decimal.Sub(entry.TotalValue.Decimal))
			}
			summary.RefreshAverage()
			summary.LastUpdated = time.Now()
			if err := s.repo.SaveSummary(txCtx, summary); err != nil {
				return fmt.Errorf("failed to update summary: %w", err)
			}
		}

		if err := s.record(txCtx, actor, model.ActionDeleteEntry, entry.ID.String(), profile.EntryPath(ownerID, entry.ID.String()), map[string]interface{}{
			"product_id":         entry.ProductID,
			"quantity":           entry.Quantity,
			"available_quantity": entry.AvailableQuantity,
			"used_quantity":      entry.UsedQuantity,
		}); err != nil {
			return err
		}

		out.add(events.New(events.EntryDeleted, actor.ID, map[string]interface{}{
			"chain":      chain,
			"owner_id":   ownerID,
			"product_id": entry.ProductID,
			"entry_id":   entry.ID.String(),
		}))
		return nil
	})
	s.metrics.LedgerOps.WithLabelValues(chain, "delete_entry", metrics.Outcome(err)).Inc()
	return err
}

// Recalculate rebuilds every summary of one ledger from its entries and drops summaries with no entries
func (s *ledgerService) Recalculate(ctx context.Context, actor model.Actor, chain, ownerID string) ([]model.StockSummary, error) {
	profile, err := profileFor(chain)
	if err != nil {
		return nil, err
	}

	var summaries []model.StockSummary
	err = s.locker.WithLock(ctx, "recalculate:"+profile.OwnerPath(ownerID), func(ctx context.Context) error {
		return s.run(ctx, func(txCtx context.Context, out *outbox) error {
			products, err := s.knownProducts(txCtx, chain, ownerID)
			if err != nil {
				return err
			}

			changed := 0
			for _, productID := range products {
				summary, err := s.repo.LockSummary(txCtx, chain, ownerID, productID)
				if err != nil {
					return fmt.Errorf("failed to lock summary: %w", err)
				}
				before := totalsOf(*summary)
				if err := s.rebuildSummary(txCtx, summary); err != nil {
					return err
				}
				if summary.EntryCount == 0 || !totalsEqual(before, totalsOf(*summary)) {
					changed++
				}
			}

			if err := s.record(txCtx, actor, model.ActionRecalculate, ownerID, profile.OwnerPath(ownerID), map[string]interface{}{
				"products": len(products),
				"changed":  changed,
			}); err != nil {
				return err
			}

			out.add(events.New(events.SummaryRecalculated, actor.ID, map[string]interface{}{
				"chain":    chain,
				"owner_id": ownerID,
				"products": len(products),
				"changed":  changed,
			}))

			summaries, err = s.repo.ListSummaries(txCtx, chain, ownerID)
			if err != nil {
				return fmt.Errorf("failed to load summaries: %w", err)
			}
			return nil
		})
	})
	s.metrics.LedgerOps.WithLabelValues(chain, "recalculate", metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// CheckDrift compares cached summaries with the sums of their entries without writing anything
func (s *ledgerService) CheckDrift(ctx context.Context, chain, ownerID string) ([]SummaryDrift, error) {
	if _, err := profileFor(chain); err != nil {
		return nil, err
	}

	entries, err := s.repo.ListAllEntries(ctx, chain, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stock entries: %w", err)
	}
	summaries, err := s.repo.ListSummaries(ctx, chain, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load summaries: %w", err)
	}

	actual := aggregate(entries)
	cached := make(map[string]model.StockSummary, len(summaries))
	for _, sm := range summaries {
		cached[sm.ProductID] = sm
	}

	var drifts []SummaryDrift
	for productID, agg := range actual {
		sm, ok := cached[productID]
		if !ok {
			drifts = append(drifts, SummaryDrift{ProductID: productID, Actual: agg.totals, Missing: true})
			continue
		}
		if !totalsEqual(totalsOf(sm), agg.totals) {
			drifts = append(drifts, SummaryDrift{ProductID: productID, Cached: totalsOf(sm), Actual: agg.totals})
		}
	}
	for productID, sm := range cached {
		if _, ok := actual[productID]; !ok {
			drifts = append(drifts, SummaryDrift{ProductID: productID, Cached: totalsOf(sm), Orphaned: true})
		}
	}

	sort.Slice(drifts, func(i, j int) bool { return drifts[i].ProductID < drifts[j].ProductID })
	return drifts, nil
}

// rebuildSummary overwrites a locked summary with the sums of its entries, deleting it when none remain
func (s *ledgerService) rebuildSummary(ctx context.Context, summary *model.StockSummary) error {
	entries, err := s.repo.ListAllEntries(ctx, summary.Chain, summary.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to load stock entries: %w", err)
	}

	agg, ok := aggregate(entries)[summary.ProductID]
	if !ok {
		if err := s.repo.DeleteSummary(ctx, summary.ID); err != nil {
			return fmt.Errorf("failed to delete summary: %w", err)
		}
		summary.EntryCount = 0
		return nil
	}

	summary.TotalQuantity = agg.totals.TotalQuantity
	summary.AvailableQuantity = agg.totals.AvailableQuantity
	summary.UsedQuantity = agg.totals.UsedQuantity
	summary.EntryCount = agg.totals.EntryCount
	summary.TotalValue = agg.totals.TotalValue
	if agg.productName != "" {
		summary.ProductName = agg.productName
	}
	first := agg.firstReceived
	summary.FirstClaimedAt = &first
	summary.RefreshAverage()
	summary.LastUpdated = time.Now()

	if err := s.repo.SaveSummary(ctx, summary); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// knownProducts lists every product with entries or a summary in this ledger, sorted so locks are taken in a fixed order
func (s *ledgerService) knownProducts(ctx context.Context, chain, ownerID string) ([]string, error) {
	entries, err := s.repo.ListAllEntries(ctx, chain, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stock entries: %w", err)
	}
	summaries, err := s.repo.ListSummaries(ctx, chain, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load summaries: %w", err)
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		seen[e.ProductID] = true
	}
	for _, sm := range summaries {
		seen[sm.ProductID] = true
	}
	products := make([]string, 0, len(seen))
	for p := range seen {
		products = append(products, p)
	}
	sort.Strings(products)
	return products, nil
}

func (s *ledgerService) productName(ctx context.Context, chain, ownerID, productID string) (string, error) {
	sm, err := s.repo.FindSummary(ctx, chain, ownerID, productID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load summary: %w", err)
	}
	return sm.ProductName, nil
}

type productAggregate struct {
	totals        SummaryTotals
	productName   string
	firstReceived time.Time
}

func aggregate(entries []model.StockEntry) map[string]*productAggregate {
	out := make(map[string]*productAggregate)
	for _, e := range entries {
		agg, ok := out[e.ProductID]
		if !ok {
			agg = &productAggregate{firstReceived: e.ReceivedAt}
			out[e.ProductID] = agg
		}
		agg.totals.TotalQuantity += e.Quantity
		agg.totals.AvailableQuantity += e.AvailableQuantity
		agg.totals.UsedQuantity += e.UsedQuantity
		agg.totals.EntryCount++
		if e.TotalValue.Valid {
			agg.totals.TotalValue = nullable(agg.totals.TotalValue.Decimal.Add(e.TotalValue.Decimal))
		}
		if e.ProductName != "" {
			agg.productName = e.ProductName
		}
		if e.ReceivedAt.Before(agg.firstReceived) {
			agg.firstReceived = e.ReceivedAt
		}
	}
	return out
}

func totalsOf(sm model.StockSummary) SummaryTotals {
	return SummaryTotals{
		TotalQuantity:     sm.TotalQuantity,
		AvailableQuantity: sm.AvailableQuantity,
		UsedQuantity:      sm.UsedQuantity,
		EntryCount:        sm.EntryCount,
		TotalValue:        sm.TotalValue,
	}
}

func totalsEqual(a, b SummaryTotals) bool {
	if a.TotalQuantity != b.TotalQuantity ||
		a.AvailableQuantity != b.AvailableQuantity ||
		a.UsedQuantity != b.UsedQuantity ||
		a.EntryCount != b.EntryCount ||
		a.TotalValue.Valid != b.TotalValue.Valid {
		return false
	}
	return !a.TotalValue.Valid || a.TotalValue.Decimal.Equal(b.TotalValue.Decimal)
}

func profileFor(chain string) (model.ChainProfile, error) {
	p, ok := model.LookupChain(chain)
	if !ok {
		return model.ChainProfile{}, validationError("unknown chain %q", chain)
	}
	return p, nil
}

func validSource(source string) bool {
	switch source {
	case model.SourceReceipt, model.SourceDispatch, model.SourceTransfer, model.SourceRequestClaim:
		return true
	}
	return false
}

func entryPricing(e model.StockEntry) *Pricing {
	if !e.FinalPrice.Valid {
		return nil
	}
	p := &Pricing{FinalPrice: e.FinalPrice.Decimal, UnitPrice: e.FinalPrice.Decimal}
	if e.UnitPrice.Valid {
		p.UnitPrice = e.UnitPrice.Decimal
	}
	if e.DiscountPercent.Valid {
		p.DiscountPercent = e.DiscountPercent.Decimal
	}
	return p
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}

func transferNote(reason, direction, chain, owner string) string {
	note := fmt.Sprintf("transfer %s %s/%s", direction, chain, owner)
	if reason != "" {
		note += ": " + reason
	}
	return note
}
