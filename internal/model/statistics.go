package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockStatistics summarizes ledger movement for one chain (or all chains) over a time range
type StockStatistics struct {
	Chain              string              `json:"chain,omitempty"`
	ReceivedQuantity   int                 `json:"received_quantity"`
	ReceivedValue      decimal.NullDecimal `json:"received_value"`
	AvailableQuantity  int                 `json:"available_quantity"`
	UsedQuantity       int                 `json:"used_quantity"`
	Owners             int                 `json:"owners"`
	RequestsByStatus   map[string]int      `json:"requests_by_status"`
	TopConsumed        []ProductRanking    `json:"top_consumed"`
	TimeRangeStartDate time.Time           `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time           `json:"time_range_end_date"`
}

// ProductRanking represents a ranked product based on accumulated quantities
type ProductRanking struct {
	ProductID     string              `json:"product_id"`
	ProductName   string              `json:"product_name"`
	TotalQuantity int                 `json:"total_quantity"`
	TotalValue    decimal.NullDecimal `json:"total_value"`
}
