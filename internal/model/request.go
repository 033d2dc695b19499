package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RequestStatus enum constants
const (
	RequestStatusPending    = "pending"
	RequestStatusApproved   = "approved"
	RequestStatusRejected   = "rejected"
	RequestStatusDispatched = "dispatched"
	RequestStatusClaimed    = "claimed"
)

// RequestPriority enum constants
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// AdjustmentType enum constants for per-item dispatch pricing
const (
	AdjustmentNone       = ""
	AdjustmentPercentage = "percentage"
	AdjustmentFixed      = "fixed"
)

// requestTransitions lists the allowed next states of a Request
var requestTransitions = map[string][]string{
	RequestStatusPending:    {RequestStatusApproved, RequestStatusRejected},
	RequestStatusApproved:   {RequestStatusDispatched},
	RequestStatusDispatched: {RequestStatusClaimed},
}

// CanTransition reports whether a Request may move from one status to another
func CanTransition(from, to string) bool {
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Request is a demand for products raised against the next actor up the chain.
// Chain is the requester's own chain; the dispatcher owns stock on the chain's upstream.
type Request struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Chain           string        `gorm:"type:varchar(40);not null;index" json:"chain"`
	RequestedBy     string        `gorm:"type:varchar(100);not null;index" json:"requested_by"`
	RequesterName   string        `gorm:"type:varchar(255)" json:"requester_name"`
	RequesterRole   string        `gorm:"type:varchar(50)" json:"requester_role"`
	DistributorID   string        `gorm:"type:varchar(100);index" json:"distributor_id"`
	Items           []RequestItem `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"items"`
	Status          string        `gorm:"type:varchar(20);not null;index" json:"status"`
	Priority        string        `gorm:"type:varchar(20);not null" json:"priority"`
	Notes           string        `gorm:"type:text" json:"notes"`
	ApprovedBy      string        `gorm:"type:varchar(100)" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	ApprovalNotes   string        `gorm:"type:text" json:"approval_notes,omitempty"`
	RejectedBy      string        `gorm:"type:varchar(100)" json:"rejected_by,omitempty"`
	RejectedAt      *time.Time    `json:"rejected_at,omitempty"`
	RejectionReason string        `gorm:"type:text" json:"rejection_reason,omitempty"`
	DispatchedBy    string        `gorm:"type:varchar(100)" json:"dispatched_by,omitempty"`
	DispatchedAt    *time.Time    `json:"dispatched_at,omitempty"`
	DispatchNotes   string        `gorm:"type:text" json:"dispatch_notes,omitempty"`
	ClaimedBy       string        `gorm:"type:varchar(100)" json:"claimed_by,omitempty"`
	ClaimedAt       *time.Time    `json:"claimed_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (r *Request) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		r.ID = id
	}
	return nil
}

// TableName overrides the default pluralization (requests -> stock_requests)
func (Request) TableName() string { return "stock_requests" }

// TotalQuantity sums the requested quantities
func (r Request) TotalQuantity() int {
	total := 0
	for _, it := range r.Items {
		total += it.Quantity
	}
	return total
}

// RequestItem is one normalized line of a Request.
// Dispatch fields stay empty until the request is dispatched.
type RequestItem struct {
	ID                 uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID          uuid.UUID           `gorm:"type:uuid;not null;index" json:"request_id"`
	Key                string              `gorm:"column:item_key;type:varchar(100);not null" json:"key"`
	ProductID          string              `gorm:"type:varchar(100);not null" json:"product_id"`
	ProductName        string              `gorm:"type:varchar(255)" json:"product_name"`
	Quantity           int                 `gorm:"type:int;not null" json:"quantity"`
	DispatchedQuantity *int                `gorm:"type:int" json:"dispatched_quantity,omitempty"`
	UnitPrice          decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"unit_price"`
	AdjustmentType     string              `gorm:"type:varchar(20)" json:"adjustment_type,omitempty"`
	AdjustmentValue    decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"adjustment_value"`
	FinalPrice         decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"final_price"`
}

func (i *RequestItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		i.ID = id
	}
	return nil
}

func (RequestItem) TableName() string { return "stock_request_items" }
