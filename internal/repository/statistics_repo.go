package repository

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReceivedTotals is the sum of the entries received in a range
type ReceivedTotals struct {
	Quantity int
	Value    decimal.NullDecimal
}

// HoldingTotals is the current position across every owner of a chain
type HoldingTotals struct {
	Available int
	Used      int
	Owners    int
}

type StatisticsRepository interface {
	GetReceived(ctx context.Context, chain string, start, end time.Time) (ReceivedTotals, error)
	GetHoldings(ctx context.Context, chain string) (HoldingTotals, error)
	CountRequestsByStatus(ctx context.Context, chain string, start, end time.Time) (map[string]int, error)
	GetTopConsumed(ctx context.Context, chain string, start, end time.Time, limit int) ([]model.ProductRanking, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

// byChain narrows to one chain; an empty chain matches all of them
func byChain(db *gorm.DB, chain string) *gorm.DB {
	if chain == "" {
		return db
	}
	return db.Where("chain = ?", chain)
}

func (r *statisticsRepository) GetReceived(ctx context.Context, chain string, start, end time.Time) (ReceivedTotals, error) {
	var result struct {
		Quantity int
		Value    decimal.NullDecimal
	}
	db := GetDB(ctx, r.db).Model(&model.StockEntry{}).
		Select("COALESCE(SUM(quantity), 0) as quantity, SUM(total_value) as value").
		Where("received_at >= ? AND received_at <= ?", start, end)
	if err := byChain(db, chain).Scan(&result).Error; err != nil {
		return ReceivedTotals{}, fmt.Errorf("failed to sum received stock: %w", err)
	}
	return ReceivedTotals{Quantity: result.Quantity, Value: result.Value}, nil
}

func (r *statisticsRepository) GetHoldings(ctx context.Context, chain string) (HoldingTotals, error) {
	var result HoldingTotals
	db := GetDB(ctx, r.db).Model(&model.StockSummary{}).
		Select("COALESCE(SUM(available_quantity), 0) as available, COALESCE(SUM(used_quantity), 0) as used, COUNT(DISTINCT owner_id) as owners")
	if err := byChain(db, chain).Scan(&result).Error; err != nil {
		return HoldingTotals{}, fmt.Errorf("failed to sum holdings: %w", err)
	}
	return result, nil
}

func (r *statisticsRepository) CountRequestsByStatus(ctx context.Context, chain string, start, end time.Time) (map[string]int, error) {
	var rows []struct {
		Status string
		Count  int
	}
	db := GetDB(ctx, r.db).Model(&model.Request{}).
		Select("status, COUNT(*) as count").
		Where("created_at >= ? AND created_at <= ?", start, end)
	if err := byChain(db, chain).Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// GetTopConsumed ranks products by units consumed from entries received in the range
func (r *statisticsRepository) GetTopConsumed(ctx context.Context, chain string, start, end time.Time, limit int) ([]model.ProductRanking, error) {
	var rankings []model.ProductRanking
	db := GetDB(ctx, r.db).Model(&model.StockEntry{}).
		Select("product_id, MAX(product_name) as product_name, SUM(used_quantity) as total_quantity, SUM(used_quantity * final_price) as total_value").
		Where("received_at >= ? AND received_at <= ? AND used_quantity > 0", start, end)
	if err := byChain(db, chain).
		Group("product_id").
		Order("total_quantity DESC").
		Order("product_id ASC").
		Limit(limit).
		Scan(&rankings).Error; err != nil {
		return nil, fmt.Errorf("failed to query top products: %w", err)
	}
	return rankings, nil
}
