// Package report assembles reconciliation outcomes into summaries and export
// formats. It is presentation only: all classification happened upstream in
// the engine.
package report

import (
	"sort"

	"github.com/finmatch/finmatch/internal/model"
)

// Summary aggregates a run's outcomes by status.
type Summary struct {
	StatusCounts map[model.MatchStatus]int
	MatchedPairs int
	PendingBook  int
	PendingBank  int
	Total        int
}

// Summarize counts outcomes per status.
func Summarize(outcomes []model.MatchOutcome) Summary {
	summary := Summary{
		StatusCounts: make(map[model.MatchStatus]int, len(model.AllStatuses())),
	}

	for _, o := range outcomes {
		summary.StatusCounts[o.Status]++
		summary.Total++
		switch {
		case o.Status.IsMatched():
			summary.MatchedPairs++
		case o.Status == model.StatusPendingBookOnly:
			summary.PendingBook++
		case o.Status == model.StatusPendingBankOnly:
			summary.PendingBank++
		}
	}

	return summary
}

// ConceptTotal is the summed pending amount for one (status, concept) group.
type ConceptTotal struct {
	Status  model.MatchStatus
	Concept string
	Total   float64
	Count   int
}

// PendingByConcept groups the pending outcomes by status and concept and sums
// their signed amounts, the quickest way to spot a recurring omission.
// Groups come back sorted by status then concept.
func PendingByConcept(outcomes []model.MatchOutcome) []ConceptTotal {
	type groupKey struct {
		status  model.MatchStatus
		concept string
	}

	groups := make(map[groupKey]*ConceptTotal)
	for _, o := range outcomes {
		if o.Status.IsMatched() {
			continue
		}

		amount := 0.0
		if o.Book != nil {
			amount = o.Book.Amount
		} else if o.Bank != nil {
			amount = o.Bank.Amount
		}

		key := groupKey{status: o.Status, concept: o.Concept()}
		group, ok := groups[key]
		if !ok {
			group = &ConceptTotal{Status: key.status, Concept: key.concept}
			groups[key] = group
		}
		group.Total += amount
		group.Count++
	}

	totals := make([]ConceptTotal, 0, len(groups))
	for _, group := range groups {
		totals = append(totals, *group)
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Status != totals[j].Status {
			return totals[i].Status < totals[j].Status
		}
		return totals[i].Concept < totals[j].Concept
	})

	return totals
}
