package service

import (
	"errors"
	"fmt"

	"stockledger/internal/repository"

	"gorm.io/gorm"
)

var (
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrNotClaimable           = errors.New("not claimable")
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
	ErrPartialWrite           = repository.ErrPartialWrite
)

// InsufficientStockError carries the shortfall of a consume or strict dispatch
type InsufficientStockError struct {
	Chain     string
	OwnerID   string
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s/%s product %s: requested %d, available %d",
		e.Chain, e.OwnerID, e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// StateTransitionError names the status a request was actually in
type StateTransitionError struct {
	ID   string
	From string
	To   string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("request %s cannot move from %s to %s", e.ID, e.From, e.To)
}

func (e *StateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// notFound converts gorm's missing-row error into ErrNotFound and wraps the rest
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}
