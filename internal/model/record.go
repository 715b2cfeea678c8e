// Package model defines the core domain types shared across the application.
package model

import (
	"math"
	"time"
)

// LedgerSide identifies which of the two ledgers a record came from.
type LedgerSide string

const (
	// LedgerBook is the internal accounting ledger (debit/credit based).
	LedgerBook LedgerSide = "book"
	// LedgerBank is the externally supplied bank statement.
	LedgerBank LedgerSide = "bank"
)

// Record is one normalized row from one ledger. Records are produced by the
// ingest layer and are read-only afterwards; matching state is tracked
// separately by the engine.
type Record struct {
	Date        time.Time // zero value means the date was absent or unparsable
	ExternalID  string    // business reference; "" means absent
	Concept     string    // free-text description, reporting only
	Amount      float64   // book: debit - credit; bank: as given
	AbsCents    int64     // |Amount| in integer cents, the matching key
	OriginIndex int       // stable row identity within its ledger
}

// HasDate reports whether the record carries a usable calendar date.
func (r *Record) HasDate() bool {
	return !r.Date.IsZero()
}

// Day returns the record's date truncated to midnight UTC. Matching compares
// calendar days, never times of day.
func (r *Record) Day() time.Time {
	return time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), 0, 0, 0, 0, time.UTC)
}

// AmountToCents converts a signed amount to non-negative integer cents.
// Integer cents are the engine's numeric-equality policy: two amounts match
// exactly when their rounded absolute cent values are equal.
func AmountToCents(amount float64) int64 {
	return int64(math.Round(math.Abs(amount) * 100))
}
