package repository

import (
	"context"
	"time"

	"stockledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OwnerRef identifies one ledger (chain + owner)
type OwnerRef struct {
	Chain   string
	OwnerID string
}

type StockRepository interface {
	CreateEntry(ctx context.Context, entry *model.StockEntry) error
	SaveEntry(ctx context.Context, entry *model.StockEntry) error
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	FindEntryByID(ctx context.Context, chain, ownerID string, id uuid.UUID) (*model.StockEntry, error)
	FindEntryByIdempotencyKey(ctx context.Context, key string) (*model.StockEntry, error)
	ListAvailableFIFO(ctx context.Context, chain, ownerID, productID string) ([]model.StockEntry, error)
	ListEntries(ctx context.Context, chain, ownerID, productID string, page, limit int) ([]model.StockEntry, int64, error)
	ListAllEntries(ctx context.Context, chain, ownerID string) ([]model.StockEntry, error)

	LockSummary(ctx context.Context, chain, ownerID, productID string) (*model.StockSummary, error)
	FindSummary(ctx context.Context, chain, ownerID, productID string) (*model.StockSummary, error)
	SaveSummary(ctx context.Context, summary *model.StockSummary) error
	DeleteSummary(ctx context.Context, id uuid.UUID) error
	ListSummaries(ctx context.Context, chain, ownerID string) ([]model.StockSummary, error)
	ListOwners(ctx context.Context) ([]OwnerRef, error)
}

type stockRepository struct {
	db *gorm.DB
}

func NewStockRepository(db *gorm.DB) StockRepository {
	return &stockRepository{db: db}
}

func (r *stockRepository) CreateEntry(ctx context.Context, entry *model.StockEntry) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *stockRepository) SaveEntry(ctx context.Context, entry *model.StockEntry) error {
	return GetDB(ctx, r.db).Save(entry).Error
}

func (r *stockRepository) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.StockEntry{}).Error
}

func (r *stockRepository) FindEntryByID(ctx context.Context, chain, ownerID string, id uuid.UUID) (*model.StockEntry, error) {
	var entry model.StockEntry
	if err := GetDB(ctx, r.db).
		Where("id = ? AND chain = ? AND owner_id = ?", id, chain, ownerID).
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *stockRepository) FindEntryByIdempotencyKey(ctx context.Context, key string) (*model.StockEntry, error) {
	var entry model.StockEntry
	if err := GetDB(ctx, r.db).Where("idempotency_key = ?", key).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListAvailableFIFO returns the entries that still hold stock, oldest receipt first, locked for update
func (r *stockRepository) ListAvailableFIFO(ctx context.Context, chain, ownerID, productID string) ([]model.StockEntry, error) {
	var entries []model.StockEntry
	err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("chain = ? AND owner_id = ? AND product_id = ? AND available_quantity > 0", chain, ownerID, productID).
		Order("received_at ASC").Order("id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *stockRepository) ListEntries(ctx context.Context, chain, ownerID, productID string, page, limit int) ([]model.StockEntry, int64, error) {
	var entries []model.StockEntry
	var total int64

	db := GetDB(ctx, r.db).Model(&model.StockEntry{}).Where("chain = ? AND owner_id = ?", chain, ownerID)
	if productID != "" {
		db = db.Where("product_id = ?", productID)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("received_at DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

func (r *stockRepository) ListAllEntries(ctx context.Context, chain, ownerID string) ([]model.StockEntry, error) {
	var entries []model.StockEntry
	err := GetDB(ctx, r.db).
		Where("chain = ? AND owner_id = ?", chain, ownerID).
		Order("received_at ASC").Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// LockSummary returns the summary row locked for update, inserting an empty one first when absent.
// Every write to an owner's entries for a product happens while holding this lock.
func (r *stockRepository) LockSummary(ctx context.Context, chain, ownerID, productID string) (*model.StockSummary, error) {
	db := GetDB(ctx, r.db)

	seed := model.StockSummary{
		Chain:       chain,
		OwnerID:     ownerID,
		ProductID:   productID,
		LastUpdated: time.Now(),
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain"}, {Name: "owner_id"}, {Name: "product_id"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return nil, err
	}

	var summary model.StockSummary
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("chain = ? AND owner_id = ? AND product_id = ?", chain, ownerID, productID).
		First(&summary).Error; err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *stockRepository) FindSummary(ctx context.Context, chain, ownerID, productID string) (*model.StockSummary, error) {
	var summary model.StockSummary
	if err := GetDB(ctx, r.db).
		Where("chain = ? AND owner_id = ? AND product_id = ?", chain, ownerID, productID).
		First(&summary).Error; err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *stockRepository) SaveSummary(ctx context.Context, summary *model.StockSummary) error {
	return GetDB(ctx, r.db).Save(summary).Error
}

func (r *stockRepository) DeleteSummary(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.StockSummary{}).Error
}

func (r *stockRepository) ListSummaries(ctx context.Context, chain, ownerID string) ([]model.StockSummary, error) {
	var summaries []model.StockSummary
	err := GetDB(ctx, r.db).
		Where("chain = ? AND owner_id = ?", chain, ownerID).
		Order("product_id ASC").
		Find(&summaries).Error
	return summaries, err
}

// ListOwners returns every ledger that has entries or summaries
func (r *stockRepository) ListOwners(ctx context.Context) ([]OwnerRef, error) {
	db := GetDB(ctx, r.db)

	var fromEntries, fromSummaries []OwnerRef
	if err := db.Model(&model.StockEntry{}).Distinct("chain", "owner_id").Scan(&fromEntries).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.StockSummary{}).Distinct("chain", "owner_id").Scan(&fromSummaries).Error; err != nil {
		return nil, err
	}

	seen := make(map[OwnerRef]bool, len(fromEntries)+len(fromSummaries))
	owners := make([]OwnerRef, 0, len(fromEntries)+len(fromSummaries))
	for _, ref := range append(fromEntries, fromSummaries...) {
		if !seen[ref] {
			seen[ref] = true
			owners = append(owners, ref)
		}
	}
	return owners, nil
}
