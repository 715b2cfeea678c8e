package model

import "time"

// MatchStatus classifies a reconciliation outcome.
type MatchStatus string

const (
	// StatusMatchedByID means both records shared an external ID and amount.
	StatusMatchedByID MatchStatus = "matched_by_id"
	// StatusMatchedByDate means both records shared an exact date and amount.
	StatusMatchedByDate MatchStatus = "matched_by_date"
	// StatusMatchedByTolerance means the amounts matched with dates inside
	// the tolerance window.
	StatusMatchedByTolerance MatchStatus = "matched_by_tolerance"
	// StatusPendingBookOnly means the record exists only in the book ledger.
	StatusPendingBookOnly MatchStatus = "pending_book_only"
	// StatusPendingBankOnly means the record exists only in the bank ledger.
	StatusPendingBankOnly MatchStatus = "pending_bank_only"
)

// IsMatched reports whether the status pairs a book record with a bank record.
func (s MatchStatus) IsMatched() bool {
	switch s {
	case StatusMatchedByID, StatusMatchedByDate, StatusMatchedByTolerance:
		return true
	case StatusPendingBookOnly, StatusPendingBankOnly:
		return false
	default:
		return false
	}
}

// DisplayName returns the human-readable label used in reports.
func (s MatchStatus) DisplayName() string {
	switch s {
	case StatusMatchedByID:
		return "Matched by ID"
	case StatusMatchedByDate:
		return "Matched by Date"
	case StatusMatchedByTolerance:
		return "Matched (Tolerance)"
	case StatusPendingBookOnly:
		return "Pending - Book Only"
	case StatusPendingBankOnly:
		return "Pending - Bank Only"
	default:
		return string(s)
	}
}

// AllStatuses lists every status in report order.
func AllStatuses() []MatchStatus {
	return []MatchStatus{
		StatusMatchedByID,
		StatusMatchedByDate,
		StatusMatchedByTolerance,
		StatusPendingBookOnly,
		StatusPendingBankOnly,
	}
}

// MatchOutcome is the final classification of one or two records after all
// matching stages. Matched outcomes reference both sides; pending outcomes
// reference exactly one. Outcomes are immutable once created.
type MatchOutcome struct {
	Date   time.Time // representative date; bank date preferred when both exist
	Book   *Record
	Bank   *Record
	Status MatchStatus
}

// HasDate reports whether the outcome carries a representative date.
func (o *MatchOutcome) HasDate() bool {
	return !o.Date.IsZero()
}

// Concept returns the reporting description, preferring the book side.
func (o *MatchOutcome) Concept() string {
	if o.Book != nil && o.Book.Concept != "" {
		return o.Book.Concept
	}
	if o.Bank != nil {
		return o.Bank.Concept
	}
	return ""
}
