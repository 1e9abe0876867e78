package services

import (
	"errors"
	"fmt"

	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
)

var (
	// ErrValidation signals the caller supplied invalid input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced record does not exist or is not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a reservation could not be satisfied.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidState indicates the data the command depends on is inconsistent.
	ErrInvalidState = errors.New("invalid state")
	// ErrLockedState indicates the order reached a terminal state.
	ErrLockedState = errors.New("order is completed and cannot be updated")
	// ErrPaymentLocked indicates the payment status can no longer change.
	ErrPaymentLocked = errors.New("payment status is locked")
	// ErrCancellationNotAllowed indicates the order progressed past the cancellable window.
	ErrCancellationNotAllowed = errors.New("order cannot be cancelled now")
	// ErrConflict indicates concurrent writers kept invalidating the transaction.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable indicates a backing store or collaborator is unavailable.
	ErrUnavailable = errors.New("service unavailable")
)

// InsufficientStockError reports how many units were available when a reservation failed.
type InsufficientStockError struct {
	Key       string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Only %d items available in stock", e.Available)
}

// Is makes errors.Is(err, ErrInsufficientStock) hold.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func insufficientStock(key string, available int) error {
	if available < 0 {
		available = 0
	}
	return &InsufficientStockError{Key: key, Available: available}
}

// mapRepositoryError translates repository categories into service sentinels. Errors that
// already carry a service sentinel pass through unchanged.
func mapRepositoryError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrValidation, ErrNotFound, ErrInsufficientStock, ErrInvalidState, ErrLockedState, ErrPaymentLocked, ErrCancellationNotAllowed} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	subject := fmt.Sprintf(format, args...)
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrNotFound, subject)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s: %v", ErrConflict, subject, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, subject, err)
		}
	}
	return fmt.Errorf("%s: %w", subject, err)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsRetryable reports whether a failed background job may succeed on a later attempt. Missing
// records and invalid input never heal on their own.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrValidation)
}
