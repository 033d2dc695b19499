package service

import (
	"context"
	"encoding/json"

	"stockledger/internal/repository"
)

type AuditLogResponse struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actor_id"`
	Action     string          `json:"action"`
	EntityID   string          `json:"entity_id"`
	EntityName string          `json:"entity_name"`
	Details    json.RawMessage `json:"details" swaggertype:"object"`
	CreatedAt  string          `json:"created_at"`
}

type AuditListFilter struct {
	repository.AuditFilter
	Page  int
	Limit int
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, filter AuditListFilter) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// GetAuditLogs returns one page of audit rows, newest first
func (s *auditService) GetAuditLogs(ctx context.Context, filter AuditListFilter) ([]AuditLogResponse, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	logs, total, err := s.repo.List(ctx, filter.AuditFilter, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		actorID := l.ActorID
		if actorID == "" {
			actorID = "system"
		}
		details := json.RawMessage(l.Details)
		if !json.Valid(details) {
			details = json.RawMessage("null")
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			ActorID:    actorID,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    details,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return res, total, nil
}
