package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ApprovalHistoryStatus enum constants
const (
	HistoryStatusSent    = "sent"
	HistoryStatusClaimed = "claimed"
)

// SalesApprovalHistory bridges an approver's dispatch to the requester's claim.
// At most one record per RequestID ever moves from sent to claimed.
type SalesApprovalHistory struct {
	ID              uuid.UUID                  `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID       uuid.UUID                  `gorm:"type:uuid;not null;index" json:"request_id"`
	Chain           string                     `gorm:"type:varchar(40);not null" json:"chain"`
	RequesterID     string                     `gorm:"type:varchar(100);not null;index" json:"requester_id"`
	RequesterName   string                     `gorm:"type:varchar(255)" json:"requester_name"`
	RequesterRole   string                     `gorm:"type:varchar(50)" json:"requester_role"`
	DistributorID   string                     `gorm:"type:varchar(100)" json:"distributor_id,omitempty"`
	DistributorName string                     `gorm:"type:varchar(255)" json:"distributor_name,omitempty"`
	Items           []SalesApprovalHistoryItem `gorm:"foreignKey:HistoryID;constraint:OnDelete:CASCADE" json:"items"`
	Status          string                     `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalQuantity   int                        `gorm:"type:int;not null" json:"total_quantity"`
	TotalValue      decimal.NullDecimal        `gorm:"type:decimal(18,4)" json:"total_value"`
	IsCompletedByFG bool                       `gorm:"column:is_completed_by_fg;default:false" json:"is_completed_by_fg"`
	SentBy          string                     `gorm:"type:varchar(100)" json:"sent_by"`
	SentAt          time.Time                  `json:"sent_at"`
	ClaimedBy       string                     `gorm:"type:varchar(100)" json:"claimed_by,omitempty"`
	ClaimedAt       *time.Time                 `json:"claimed_at,omitempty"`
	CreatedAt       time.Time                  `json:"created_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

func (h *SalesApprovalHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		h.ID = id
	}
	return nil
}

func (SalesApprovalHistory) TableName() string { return "sales_approval_history" }

// SalesApprovalHistoryItem carries the resolved pricing of one dispatched product
type SalesApprovalHistoryItem struct {
	ID              uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	HistoryID       uuid.UUID           `gorm:"type:uuid;not null;index" json:"history_id"`
	ProductID       string              `gorm:"type:varchar(100);not null" json:"product_id"`
	ProductName     string              `gorm:"type:varchar(255)" json:"product_name"`
	Quantity        int                 `gorm:"type:int;not null" json:"quantity"`
	UnitPrice       decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"unit_price"`
	DiscountPercent decimal.NullDecimal `gorm:"type:decimal(10,4)" json:"discount_percent"`
	FinalPrice      decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"final_price"`
	TotalValue      decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"total_value"`
}

func (i *SalesApprovalHistoryItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		i.ID = id
	}
	return nil
}

func (SalesApprovalHistoryItem) TableName() string { return "sales_approval_history_items" }
