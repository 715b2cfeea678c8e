package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/finmatch/finmatch/internal/model"
)

// Validation errors.
var (
	ErrNilContext    = errors.New("context cannot be nil")
	ErrEmptyString   = errors.New("string parameter cannot be empty")
	ErrNilParameter  = errors.New("parameter cannot be nil")
	ErrInvalidRun    = errors.New("invalid run")
	ErrInvalidStatus = errors.New("invalid outcome status")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRun validates a run before persistence.
func validateRun(run *model.Run) error {
	if run == nil {
		return fmt.Errorf("%w: run", ErrNilParameter)
	}
	if run.ToleranceDays <= 0 {
		return fmt.Errorf("%w: tolerance days must be positive", ErrInvalidRun)
	}
	if run.BookRecords < 0 || run.BankRecords < 0 {
		return fmt.Errorf("%w: negative record counts", ErrInvalidRun)
	}
	return nil
}

// validateOutcomes validates outcomes before persistence. A matched outcome
// must reference both sides, a pending outcome exactly one.
func validateOutcomes(outcomes []model.MatchOutcome) error {
	for i, o := range outcomes {
		switch o.Status {
		case model.StatusMatchedByID, model.StatusMatchedByDate, model.StatusMatchedByTolerance:
			if o.Book == nil || o.Bank == nil {
				return fmt.Errorf("outcome at index %d: %w: matched outcome missing a side", i, ErrInvalidRun)
			}
		case model.StatusPendingBookOnly:
			if o.Book == nil || o.Bank != nil {
				return fmt.Errorf("outcome at index %d: %w: pending book outcome must carry only the book side", i, ErrInvalidRun)
			}
		case model.StatusPendingBankOnly:
			if o.Bank == nil || o.Book != nil {
				return fmt.Errorf("outcome at index %d: %w: pending bank outcome must carry only the bank side", i, ErrInvalidRun)
			}
		default:
			return fmt.Errorf("outcome at index %d: %w: %s", i, ErrInvalidStatus, o.Status)
		}
	}
	return nil
}
