// Package engine implements the core reconciliation engine that pairs records
// across the book and bank ledgers.
package engine

import (
	"sort"

	"github.com/finmatch/finmatch/internal/common"
	"github.com/finmatch/finmatch/internal/model"
)

// Config holds configuration options for the reconciliation engine.
type Config struct {
	// ToleranceDays is the half-width of the date window used by the
	// tolerance matching stage. Must be positive.
	ToleranceDays int
}

// DefaultToleranceDays is the legacy tolerance window.
const DefaultToleranceDays = 3

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{ToleranceDays: DefaultToleranceDays}
}

// Engine pairs book and bank records under progressively looser criteria and
// classifies every record into exactly one outcome.
type Engine struct {
	toleranceDays int
}

// New creates a reconciliation engine with the default configuration.
func New() *Engine {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a reconciliation engine with custom configuration.
// A non-positive tolerance falls back to the default.
func NewWithConfig(config Config) *Engine {
	if config.ToleranceDays <= 0 {
		config.ToleranceDays = DefaultToleranceDays
	}
	return &Engine{toleranceDays: config.ToleranceDays}
}

// ToleranceDays returns the configured tolerance window in days.
func (e *Engine) ToleranceDays() int {
	return e.toleranceDays
}

// matchContext tracks which records have been consumed during a single run.
// Matched state lives here, not on the records, so Reconcile never mutates
// its inputs and carries no state across calls. Once a flag is set it is
// never cleared: a matched record is permanently out of candidacy.
type matchContext struct {
	book        []model.Record
	bank        []model.Record
	bookMatched []bool
	bankMatched []bool
	outcomes    []model.MatchOutcome
}

// Reconcile pairs the two ledgers and returns one outcome per real-world
// event: matched outcomes reference one record from each side, pending
// outcomes exactly one. Every input record appears in exactly one outcome.
// Reconcile never fails on valid input; empty ledgers, null dates and zero
// amounts simply flow through to pending or zero-key matches.
//
// The returned outcomes hold pointers into the book and bank slices, so the
// caller must not reuse those slices while the outcomes are live. Reconcile
// is not safe for concurrent calls sharing the same slices.
func (e *Engine) Reconcile(book, bank []model.Record) []model.MatchOutcome {
	ctx := &matchContext{
		book:        book,
		bank:        bank,
		bookMatched: make([]bool, len(book)),
		bankMatched: make([]bool, len(bank)),
		outcomes:    make([]model.MatchOutcome, 0, len(book)+len(bank)),
	}

	e.matchByID(ctx)
	e.matchByDate(ctx)
	e.matchByTolerance(ctx)
	e.consolidate(ctx)
	sortOutcomes(ctx.outcomes)

	common.LogDebug("reconciliation complete", common.Fields{
		"book_records":   len(book),
		"bank_records":   len(bank),
		"outcomes":       len(ctx.outcomes),
		"tolerance_days": e.toleranceDays,
	})

	return ctx.outcomes
}

// idAmountKey is the first-stage matching key.
type idAmountKey struct {
	externalID string
	absCents   int64
}

// matchByID pairs records sharing an external ID and absolute amount.
// Allocation is a greedy one-pass: each book record, in ledger order, claims
// the first still-unmatched bank record with the same key. Duplicate keys
// therefore pair up positionally, one record consumed per side per pair.
// Records without an external ID never participate.
func (e *Engine) matchByID(ctx *matchContext) {
	queues := make(map[idAmountKey][]int)
	for i := range ctx.bank {
		k := &ctx.bank[i]
		if k.ExternalID == "" {
			continue
		}
		key := idAmountKey{externalID: k.ExternalID, absCents: k.AbsCents}
		queues[key] = append(queues[key], i)
	}

	for i := range ctx.book {
		b := &ctx.book[i]
		if b.ExternalID == "" {
			continue
		}
		key := idAmountKey{externalID: b.ExternalID, absCents: b.AbsCents}
		j, ok := claimBank(ctx, queues, key)
		if !ok {
			continue
		}
		ctx.bookMatched[i] = true
		ctx.addMatch(model.StatusMatchedByID, b, &ctx.bank[j])
	}
}

// dateAmountKey is the second-stage matching key.
type dateAmountKey struct {
	day      int64
	absCents int64
}

// matchByDate pairs remaining records sharing an exact calendar date and
// absolute amount. Same consumption rule as matchByID. Records without a
// date never participate.
func (e *Engine) matchByDate(ctx *matchContext) {
	queues := make(map[dateAmountKey][]int)
	for i := range ctx.bank {
		k := &ctx.bank[i]
		if ctx.bankMatched[i] || !k.HasDate() {
			continue
		}
		key := dateAmountKey{day: k.Day().Unix(), absCents: k.AbsCents}
		queues[key] = append(queues[key], i)
	}

	for i := range ctx.book {
		b := &ctx.book[i]
		if ctx.bookMatched[i] || !b.HasDate() {
			continue
		}
		key := dateAmountKey{day: b.Day().Unix(), absCents: b.AbsCents}
		j, ok := claimBank(ctx, queues, key)
		if !ok {
			continue
		}
		ctx.bookMatched[i] = true
		ctx.addMatch(model.StatusMatchedByDate, b, &ctx.bank[j])
	}
}

// matchByTolerance pairs remaining records of equal absolute amount whose
// dates fall within the tolerance window. For each book record in ledger
// order the first eligible bank record in ascending origin order wins: the
// tie-break is bank ledger position, not nearest date. Matches are claimed
// immediately, so a bank record consumed by an earlier book record is gone
// for later ones. Bank records are bucketed by amount to avoid the full
// cross scan; bucket order preserves the first-match semantics.
func (e *Engine) matchByTolerance(ctx *matchContext) {
	buckets := make(map[int64][]int)
	for i := range ctx.bank {
		k := &ctx.bank[i]
		if ctx.bankMatched[i] || !k.HasDate() {
			continue
		}
		buckets[k.AbsCents] = append(buckets[k.AbsCents], i)
	}

	for i := range ctx.book {
		b := &ctx.book[i]
		if ctx.bookMatched[i] || !b.HasDate() {
			continue
		}
		day := b.Day()
		lo := day.AddDate(0, 0, -e.toleranceDays)
		hi := day.AddDate(0, 0, e.toleranceDays)

		for _, j := range buckets[b.AbsCents] {
			if ctx.bankMatched[j] {
				continue
			}
			bankDay := ctx.bank[j].Day()
			if bankDay.Before(lo) || bankDay.After(hi) {
				continue
			}
			ctx.bookMatched[i] = true
			ctx.bankMatched[j] = true
			ctx.outcomes = append(ctx.outcomes, model.MatchOutcome{
				Status: model.StatusMatchedByTolerance,
				Date:   ctx.bank[j].Date,
				Book:   b,
				Bank:   &ctx.bank[j],
			})
			break
		}
	}
}

// consolidate turns every record still unmatched after the three matching
// stages into a one-sided pending outcome. Leftovers are never paired here:
// amount-only pairing of pendings loses date information and joins unrelated
// transactions, so each side is reported independently.
func (e *Engine) consolidate(ctx *matchContext) {
	for i := range ctx.book {
		if ctx.bookMatched[i] {
			continue
		}
		ctx.outcomes = append(ctx.outcomes, model.MatchOutcome{
			Status: model.StatusPendingBookOnly,
			Date:   ctx.book[i].Date,
			Book:   &ctx.book[i],
		})
	}
	for i := range ctx.bank {
		if ctx.bankMatched[i] {
			continue
		}
		ctx.outcomes = append(ctx.outcomes, model.MatchOutcome{
			Status: model.StatusPendingBankOnly,
			Date:   ctx.bank[i].Date,
			Bank:   &ctx.bank[i],
		})
	}
}

// claimBank pops the first still-unmatched bank index from the queue for key
// and marks it matched. Consumed entries are dropped from the queue head so
// repeated claims on a duplicate key stay linear.
func claimBank[K comparable](ctx *matchContext, queues map[K][]int, key K) (int, bool) {
	queue := queues[key]
	for len(queue) > 0 {
		j := queue[0]
		queue = queue[1:]
		if ctx.bankMatched[j] {
			continue
		}
		queues[key] = queue
		ctx.bankMatched[j] = true
		return j, true
	}
	queues[key] = queue
	return 0, false
}

// addMatch records a matched outcome. The representative date prefers the
// bank side, falling back to the book date when the bank date is null.
func (ctx *matchContext) addMatch(status model.MatchStatus, book, bank *model.Record) {
	date := bank.Date
	if !bank.HasDate() {
		date = book.Date
	}
	ctx.outcomes = append(ctx.outcomes, model.MatchOutcome{
		Status: status,
		Date:   date,
		Book:   book,
		Bank:   bank,
	})
}

// sortOutcomes orders outcomes ascending by representative date with null
// dates last. The sort is stable, so among equal dates the stage insertion
// order is preserved: ID matches, date matches, tolerance matches, pending
// book, pending bank, each stage in ledger order.
func sortOutcomes(outcomes []model.MatchOutcome) {
	sort.SliceStable(outcomes, func(i, j int) bool {
		di, dj := outcomes[i].Date, outcomes[j].Date
		switch {
		case di.IsZero():
			return false
		case dj.IsZero():
			return true
		default:
			return di.Before(dj)
		}
	})
}
