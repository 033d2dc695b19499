package service

import (
	"context"
	"time"

	"stockledger/internal/model"
	"stockledger/internal/repository"
)

const topProductsLimit = 5

type StatisticsService interface {
	GetStatistics(ctx context.Context, chain string, startDate, endDate time.Time) (*model.StockStatistics, error)
}

type statisticsService struct {
	repo repository.StatisticsRepository
}

func NewStatisticsService(repo repository.StatisticsRepository) StatisticsService {
	return &statisticsService{repo: repo}
}

// GetStatistics reports stock received and consumed in [startDate, endDate] plus the current holdings.
// An empty chain covers every chain.
func (s *statisticsService) GetStatistics(ctx context.Context, chain string, startDate, endDate time.Time) (*model.StockStatistics, error) {
	if chain != "" {
		if _, err := profileFor(chain); err != nil {
			return nil, err
		}
	}
	if endDate.Before(startDate) {
		return nil, validationError("end_date must not be before start_date")
	}

	stats := &model.StockStatistics{
		Chain:              chain,
		TimeRangeStartDate: startDate,
		TimeRangeEndDate:   endDate,
	}

	received, err := s.repo.GetReceived(ctx, chain, startDate, endDate)
	if err != nil {
		return nil, err
	}
	stats.ReceivedQuantity = received.Quantity
	stats.ReceivedValue = received.Value

	holdings, err := s.repo.GetHoldings(ctx, chain)
	if err != nil {
		return nil, err
	}
	stats.AvailableQuantity = holdings.Available
	stats.UsedQuantity = holdings.Used
	stats.Owners = holdings.Owners

	if stats.RequestsByStatus, err = s.repo.CountRequestsByStatus(ctx, chain, startDate, endDate); err != nil {
		return nil, err
	}
	if stats.TopConsumed, err = s.repo.GetTopConsumed(ctx, chain, startDate, endDate, topProductsLimit); err != nil {
		return nil, err
	}
	if stats.TopConsumed == nil {
		stats.TopConsumed = []model.ProductRanking{}
	}
	return stats, nil
}
