package repository

import (
	"context"
	"time"

	"stockledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HistoryFilter narrows approval history listings
type HistoryFilter struct {
	RequesterID string
	Status      string
}

type ApprovalHistoryRepository interface {
	Create(ctx context.Context, h *model.SalesApprovalHistory) error
	Update(ctx context.Context, h *model.SalesApprovalHistory) error
	ReplaceItems(ctx context.Context, historyID uuid.UUID, items []model.SalesApprovalHistoryItem) error
	FindByRequestForUpdate(ctx context.Context, requestID uuid.UUID) ([]model.SalesApprovalHistory, error)
	FindClaimable(ctx context.Context, requestID uuid.UUID) ([]model.SalesApprovalHistory, error)
	MarkClaimed(ctx context.Context, id uuid.UUID, claimedBy string, claimedAt time.Time) (int64, error)
	List(ctx context.Context, filter HistoryFilter, page, limit int) ([]model.SalesApprovalHistory, int64, error)
}

type approvalHistoryRepository struct {
	db *gorm.DB
}

func NewApprovalHistoryRepository(db *gorm.DB) ApprovalHistoryRepository {
	return &approvalHistoryRepository{db: db}
}

func (r *approvalHistoryRepository) Create(ctx context.Context, h *model.SalesApprovalHistory) error {
	return GetDB(ctx, r.db).Create(h).Error
}

func (r *approvalHistoryRepository) Update(ctx context.Context, h *model.SalesApprovalHistory) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Save(h).Error
}

func (r *approvalHistoryRepository) ReplaceItems(ctx context.Context, historyID uuid.UUID, items []model.SalesApprovalHistoryItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("history_id = ?", historyID).Delete(&model.SalesApprovalHistoryItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].HistoryID = historyID
	}
	return db.Create(&items).Error
}

func (r *approvalHistoryRepository) FindByRequestForUpdate(ctx context.Context, requestID uuid.UUID) ([]model.SalesApprovalHistory, error) {
	var records []model.SalesApprovalHistory
	err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", orderHistoryItems).
		Where("request_id = ?", requestID).
		Order("sent_at ASC").
		Find(&records).Error
	return records, err
}

// FindClaimable returns the sent, completed records for a request
func (r *approvalHistoryRepository) FindClaimable(ctx context.Context, requestID uuid.UUID) ([]model.SalesApprovalHistory, error) {
	var records []model.SalesApprovalHistory
	err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", orderHistoryItems).
		Where("request_id = ? AND status = ? AND is_completed_by_fg = ?", requestID, model.HistoryStatusSent, true).
		Find(&records).Error
	return records, err
}

// MarkClaimed flips one record from sent to claimed and reports how many rows moved
func (r *approvalHistoryRepository) MarkClaimed(ctx context.Context, id uuid.UUID, claimedBy string, claimedAt time.Time) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.SalesApprovalHistory{}).
		Where("id = ? AND status = ?", id, model.HistoryStatusSent).
		Updates(map[string]interface{}{
			"status":     model.HistoryStatusClaimed,
			"claimed_by": claimedBy,
			"claimed_at": claimedAt,
		})
	return res.RowsAffected, res.Error
}

func (r *approvalHistoryRepository) List(ctx context.Context, filter HistoryFilter, page, limit int) ([]model.SalesApprovalHistory, int64, error) {
	var records []model.SalesApprovalHistory
	var total int64

	db := GetDB(ctx, r.db).Model(&model.SalesApprovalHistory{})
	if filter.RequesterID != "" {
		db = db.Where("requester_id = ?", filter.RequesterID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Items", orderHistoryItems).Order("sent_at DESC").Offset(offset).Limit(limit).Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// items keep the order they were dispatched in; ids are time-ordered
func orderHistoryItems(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}
