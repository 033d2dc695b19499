package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionAddEntry        = "ADD_STOCK_ENTRY"
	ActionConsumeStock    = "CONSUME_STOCK"
	ActionTransferStock   = "TRANSFER_STOCK"
	ActionDeleteEntry     = "DELETE_STOCK_ENTRY"
	ActionRecalculate     = "RECALCULATE_SUMMARY"
	ActionCreateRequest   = "CREATE_REQUEST"
	ActionApproveRequest  = "APPROVE_REQUEST"
	ActionRejectRequest   = "REJECT_REQUEST"
	ActionDispatchRequest = "DISPATCH_REQUEST"
	ActionClaimApproval   = "CLAIM_APPROVAL"
)

// AuditLog tracks Who, What, and When for every ledger and workflow change
type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID    string    `gorm:"type:varchar(100);index" json:"actor_id"` // empty for the reconcile worker
	Action     string    `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string    `gorm:"type:varchar(100);index" json:"entity_id"`
	EntityName string    `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // logical store path or product name
	Details    string    `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		a.ID = id
	}
	return nil
}
