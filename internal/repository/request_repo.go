package repository

import (
	"context"

	"stockledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestFilter narrows request listings; empty fields match everything
type RequestFilter struct {
	Chain       string
	Status      string
	RequestedBy string
}

type RequestRepository interface {
	Create(ctx context.Context, req *model.Request) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Request, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Request, error)
	Update(ctx context.Context, req *model.Request) error
	UpdateItem(ctx context.Context, item *model.RequestItem) error
	List(ctx context.Context, filter RequestFilter, page, limit int) ([]model.Request, int64, error)
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *model.Request) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	var req model.Request
	if err := GetDB(ctx, r.db).Preload("Items", orderItems).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	var req model.Request
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", orderItems).
		Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// Update saves the request row only; items are written through UpdateItem
func (r *requestRepository) Update(ctx context.Context, req *model.Request) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Save(req).Error
}

func (r *requestRepository) UpdateItem(ctx context.Context, item *model.RequestItem) error {
	return GetDB(ctx, r.db).Save(item).Error
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter, page, limit int) ([]model.Request, int64, error) {
	var requests []model.Request
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Request{})
	if filter.Chain != "" {
		db = db.Where("chain = ?", filter.Chain)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.RequestedBy != "" {
		db = db.Where("requested_by = ?", filter.RequestedBy)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Items", orderItems).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func orderItems(db *gorm.DB) *gorm.DB {
	return db.Order("item_key ASC")
}
