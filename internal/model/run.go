package model

import "time"

// Run records one reconciliation execution: its inputs, configuration and
// per-status totals. Runs are persisted so reports can be re-exported later.
type Run struct {
	CreatedAt     time.Time
	BookSource    string
	BankSource    string
	StatusCounts  map[MatchStatus]int
	ID            int64
	ToleranceDays int
	BookRecords   int
	BankRecords   int
}

// MatchedPairs returns the number of outcomes that paired both ledgers.
func (r *Run) MatchedPairs() int {
	total := 0
	for status, count := range r.StatusCounts {
		if status.IsMatched() {
			total += count
		}
	}
	return total
}

// PendingCount returns the number of one-sided outcomes.
func (r *Run) PendingCount() int {
	return r.StatusCounts[StatusPendingBookOnly] + r.StatusCounts[StatusPendingBankOnly]
}

// OutcomeCount returns the total number of outcome rows in the run.
func (r *Run) OutcomeCount() int {
	total := 0
	for _, count := range r.StatusCounts {
		total += count
	}
	return total
}
