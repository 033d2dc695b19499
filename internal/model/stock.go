package model

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockSource tags where a batch came from
const (
	SourceRequestClaim = "request-claim"
	SourceTransfer     = "transfer"
	SourceDispatch     = "dispatch"
	SourceReceipt      = "receipt"
)

// MaxQuantity is the largest quantity the int columns hold
const MaxQuantity = math.MaxInt32

// StockEntryStatus is derived from AvailableQuantity
const (
	EntryStatusAvailable = "available"
	EntryStatusDepleted  = "depleted"
)

// StockEntry is one received batch of a product for one owner.
// Quantity never changes after creation; consumption moves units from Available to Used.
type StockEntry struct {
	ID                uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	Chain             string              `gorm:"type:varchar(40);not null;index:idx_entry_owner_product,priority:1" json:"chain"`
	OwnerID           string              `gorm:"type:varchar(100);not null;index:idx_entry_owner_product,priority:2" json:"owner_id"`
	ProductID         string              `gorm:"type:varchar(100);not null;index:idx_entry_owner_product,priority:3" json:"product_id"`
	ProductName       string              `gorm:"type:varchar(255)" json:"product_name"`
	Quantity          int                 `gorm:"type:int;not null" json:"quantity"`
	AvailableQuantity int                 `gorm:"type:int;not null" json:"available_quantity"`
	UsedQuantity      int                 `gorm:"type:int;not null;default:0" json:"used_quantity"`
	UnitPrice         decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"unit_price"`
	DiscountPercent   decimal.NullDecimal `gorm:"type:decimal(10,4)" json:"discount_percent"`
	FinalPrice        decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"final_price"`
	TotalValue        decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"total_value"`
	ReceivedAt        time.Time           `gorm:"not null;index" json:"received_at"`
	RequestID         string              `gorm:"type:varchar(100);index" json:"request_id"`
	Source            string              `gorm:"type:varchar(20);not null" json:"source"`
	Status            string              `gorm:"type:varchar(20);not null;index" json:"status"`
	Location          string              `gorm:"type:varchar(255)" json:"location"`
	Notes             string              `gorm:"type:text" json:"notes"`
	IdempotencyKey    *string             `gorm:"type:varchar(255);uniqueIndex" json:"idempotency_key,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

func (e *StockEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		e.ID = id
	}
	return nil
}

// RefreshStatus recomputes the derived status
func (e *StockEntry) RefreshStatus() {
	if e.AvailableQuantity > 0 {
		e.Status = EntryStatusAvailable
	} else {
		e.Status = EntryStatusDepleted
	}
}

// Balanced reports whether available + used still equals the received quantity
func (e StockEntry) Balanced() bool {
	return e.AvailableQuantity >= 0 &&
		e.AvailableQuantity <= e.Quantity &&
		e.AvailableQuantity+e.UsedQuantity == e.Quantity
}

// StockSummary is the cached aggregate of one owner's entries for one product
type StockSummary struct {
	ID                uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	Chain             string              `gorm:"type:varchar(40);not null;uniqueIndex:idx_summary_owner_product,priority:1" json:"chain"`
	OwnerID           string              `gorm:"type:varchar(100);not null;uniqueIndex:idx_summary_owner_product,priority:2" json:"owner_id"`
	ProductID         string              `gorm:"type:varchar(100);not null;uniqueIndex:idx_summary_owner_product,priority:3" json:"product_id"`
	ProductName       string              `gorm:"type:varchar(255)" json:"product_name"`
	TotalQuantity     int                 `gorm:"type:int;not null;default:0" json:"total_quantity"`
	AvailableQuantity int                 `gorm:"type:int;not null;default:0" json:"available_quantity"`
	UsedQuantity      int                 `gorm:"type:int;not null;default:0" json:"used_quantity"`
	EntryCount        int                 `gorm:"type:int;not null;default:0" json:"entry_count"`
	TotalValue        decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"total_value"`
	AverageUnitPrice  decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"average_unit_price"`
	FirstClaimedAt    *time.Time          `json:"first_claimed_at"`
	LastUpdated       time.Time           `json:"last_updated"`
}

func (s *StockSummary) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		s.ID = id
	}
	return nil
}

// RefreshAverage recomputes AverageUnitPrice from TotalValue and TotalQuantity
func (s *StockSummary) RefreshAverage() {
	if !s.TotalValue.Valid || s.TotalQuantity <= 0 {
		s.AverageUnitPrice = decimal.NullDecimal{}
		return
	}
	s.AverageUnitPrice = decimal.NewNullDecimal(
		s.TotalValue.Decimal.Div(decimal.NewFromInt(int64(s.TotalQuantity))).Round(2),
	)
}
