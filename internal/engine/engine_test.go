package engine

import (
	"testing"
	"time"

	"github.com/finmatch/finmatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// rec builds a normalized record the way the ingest layer would.
func rec(idx int, externalID string, date time.Time, amount float64, concept string) model.Record {
	return model.Record{
		OriginIndex: idx,
		ExternalID:  externalID,
		Date:        date,
		Amount:      amount,
		AbsCents:    model.AmountToCents(amount),
		Concept:     concept,
	}
}

type pair struct {
	bookIdx int // -1 when absent
	bankIdx int // -1 when absent
	status  model.MatchStatus
}

func outcomePairs(outcomes []model.MatchOutcome) []pair {
	pairs := make([]pair, 0, len(outcomes))
	for _, o := range outcomes {
		p := pair{status: o.Status, bookIdx: -1, bankIdx: -1}
		if o.Book != nil {
			p.bookIdx = o.Book.OriginIndex
		}
		if o.Bank != nil {
			p.bankIdx = o.Bank.OriginIndex
		}
		pairs = append(pairs, p)
	}
	return pairs
}

// assertCoverage checks the core invariant: every record from each ledger is
// referenced by exactly one outcome, matched outcomes carry both sides and
// pending outcomes exactly one.
func assertCoverage(t *testing.T, book, bank []model.Record, outcomes []model.MatchOutcome) {
	t.Helper()

	seenBook := make(map[int]bool)
	seenBank := make(map[int]bool)
	for _, o := range outcomes {
		switch o.Status {
		case model.StatusMatchedByID, model.StatusMatchedByDate, model.StatusMatchedByTolerance:
			require.NotNil(t, o.Book, "matched outcome missing book side")
			require.NotNil(t, o.Bank, "matched outcome missing bank side")
		case model.StatusPendingBookOnly:
			require.NotNil(t, o.Book)
			require.Nil(t, o.Bank)
		case model.StatusPendingBankOnly:
			require.Nil(t, o.Book)
			require.NotNil(t, o.Bank)
		default:
			t.Fatalf("unexpected status %q", o.Status)
		}
		if o.Book != nil {
			assert.False(t, seenBook[o.Book.OriginIndex], "book record %d referenced twice", o.Book.OriginIndex)
			seenBook[o.Book.OriginIndex] = true
		}
		if o.Bank != nil {
			assert.False(t, seenBank[o.Bank.OriginIndex], "bank record %d referenced twice", o.Bank.OriginIndex)
			seenBank[o.Bank.OriginIndex] = true
		}
	}
	assert.Len(t, seenBook, len(book), "book coverage")
	assert.Len(t, seenBank, len(bank), "bank coverage")
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name          string
		book          []model.Record
		bank          []model.Record
		toleranceDays int
		want          []pair
	}{
		{
			name: "both ledgers empty",
			want: []pair{},
		},
		{
			name: "empty bank yields pending book only",
			book: []model.Record{
				rec(0, "A1", day(2024, 1, 5), 100, "invoice"),
			},
			want: []pair{
				{status: model.StatusPendingBookOnly, bookIdx: 0, bankIdx: -1},
			},
		},
		{
			name: "empty book yields pending bank only",
			bank: []model.Record{
				rec(0, "A1", day(2024, 1, 5), 100, "deposit"),
			},
			want: []pair{
				{status: model.StatusPendingBankOnly, bookIdx: -1, bankIdx: 0},
			},
		},
		{
			name: "id match then date match",
			// The worked scenario: A1/A1 pairs by ID despite differing
			// dates, and the remainder pairs by exact date with opposite
			// signs on the amount.
			book: []model.Record{
				rec(0, "A1", day(2024, 1, 5), 100, "sale"),
				rec(1, "A2", day(2024, 1, 8), -50, "refund"),
			},
			bank: []model.Record{
				rec(0, "A1", day(2024, 1, 6), 100, "sale"),
				rec(1, "X9", day(2024, 1, 8), 50, "refund"),
			},
			want: []pair{
				{status: model.StatusMatchedByID, bookIdx: 0, bankIdx: 0},
				{status: model.StatusMatchedByDate, bookIdx: 1, bankIdx: 1},
			},
		},
		{
			name: "amount sign is ignored for id matches",
			book: []model.Record{
				rec(0, "T7", day(2024, 3, 1), -150, "payment"),
			},
			bank: []model.Record{
				rec(0, "T7", day(2024, 3, 1), 150, "payment"),
			},
			want: []pair{
				{status: model.StatusMatchedByID, bookIdx: 0, bankIdx: 0},
			},
		},
		{
			name: "same id different amount does not match by id",
			book: []model.Record{
				rec(0, "B2", day(2024, 2, 1), 100, ""),
			},
			bank: []model.Record{
				rec(0, "B2", day(2024, 2, 20), 101, ""),
			},
			want: []pair{
				{status: model.StatusPendingBookOnly, bookIdx: 0, bankIdx: -1},
				{status: model.StatusPendingBankOnly, bookIdx: -1, bankIdx: 0},
			},
		},
		{
			name: "absent external ids never pair in the id stage",
			// Both sides lack an ID and the dates are too far apart for
			// the other stages, so nothing should match.
			book: []model.Record{
				rec(0, "", day(2024, 1, 1), 75, ""),
			},
			bank: []model.Record{
				rec(0, "", day(2024, 6, 1), 75, ""),
			},
			want: []pair{
				{status: model.StatusPendingBookOnly, bookIdx: 0, bankIdx: -1},
				{status: model.StatusPendingBankOnly, bookIdx: -1, bankIdx: 0},
			},
		},
		{
			name: "duplicate id and amount keys pair positionally",
			book: []model.Record{
				rec(0, "D1", day(2024, 1, 1), 30, ""),
				rec(1, "D1", day(2024, 1, 2), 30, ""),
			},
			bank: []model.Record{
				rec(0, "D1", day(2024, 1, 3), 30, ""),
				rec(1, "D1", day(2024, 1, 4), 30, ""),
			},
			want: []pair{
				{status: model.StatusMatchedByID, bookIdx: 0, bankIdx: 0},
				{status: model.StatusMatchedByID, bookIdx: 1, bankIdx: 1},
			},
		},
		{
			name: "duplicate key with uneven sides leaves the extra pending",
			book: []model.Record{
				rec(0, "D1", day(2024, 1, 1), 30, ""),
				rec(1, "D1", day(2024, 5, 1), 30, ""),
			},
			bank: []model.Record{
				rec(0, "D1", day(2024, 1, 1), 30, ""),
			},
			want: []pair{
				{status: model.StatusMatchedByID, bookIdx: 0, bankIdx: 0},
				{status: model.StatusPendingBookOnly, bookIdx: 1, bankIdx: -1},
			},
		},
		{
			name: "tolerance boundary inclusive at three days",
			book: []model.Record{
				rec(0, "BK1", day(2024, 1, 10), 200, ""),
			},
			bank: []model.Record{
				rec(0, "ZZ1", day(2024, 1, 13), 200, ""),
			},
			toleranceDays: 3,
			want: []pair{
				{status: model.StatusMatchedByTolerance, bookIdx: 0, bankIdx: 0},
			},
		},
		{
			name: "tolerance boundary exclusive past three days",
			book: []model.Record{
				rec(0, "BK1", day(2024, 1, 10), 200, ""),
			},
			bank: []model.Record{
				rec(0, "ZZ1", day(2024, 1, 14), 200, ""),
			},
			toleranceDays: 3,
			want: []pair{
				{status: model.StatusPendingBookOnly, bookIdx: 0, bankIdx: -1},
				{status: model.StatusPendingBankOnly, bookIdx: -1, bankIdx: 0},
			},
		},
		{
			name: "tolerance window extends backwards too",
			book: []model.Record{
				rec(0, "BK1", day(2024, 1, 10), 200, ""),
			},
			bank: []model.Record{
				rec(0, "ZZ1", day(2024, 1, 7), 200, ""),
			},
			toleranceDays: 3,
			want: []pair{
				{status: model.StatusMatchedByTolerance, bookIdx: 0, bankIdx: 0},
			},
		},
		{
			name: "tolerance picks earlier bank position not nearer date",
			// Bank record 0 is three days out, bank record 1 one day out.
			// Ledger position wins.
			book: []model.Record{
				rec(0, "", day(2024, 1, 10), 400, ""),
			},
			bank: []model.Record{
				rec(0, "", day(2024, 1, 13), 400, ""),
				rec(1, "", day(2024, 1, 11), 400, ""),
			},
			toleranceDays: 3,
			// The leftover bank record's earlier date sorts it first in
			// the final report order.
			want: []pair{
				{status: model.StatusPendingBankOnly, bookIdx: -1, bankIdx: 1},
				{status: model.StatusMatchedByTolerance, bookIdx: 0, bankIdx: 0},
			},
		},
		{
			name: "tolerance consumption is greedy left to right",
			// The first book record takes the only candidate, leaving the
			// second book record pending even though it was also eligible.
			book: []model.Record{
				rec(0, "", day(2024, 1, 10), 400, ""),
				rec(1, "", day(2024, 1, 11), 400, ""),
			},
			bank: []model.Record{
				rec(0, "", day(2024, 1, 12), 400, ""),
			},
			toleranceDays: 3,
			// The match takes the bank date (Jan 12), so the pending book
			// record dated Jan 11 sorts ahead of it.
			want: []pair{
				{status: model.StatusPendingBookOnly, bookIdx: 1, bankIdx: -1},
				{status: model.StatusMatchedByTolerance, bookIdx: 0, bankIdx: 0},
			},
		},
		{
			name: "null book date never matches by date or tolerance",
			book: []model.Record{
				rec(0, "", time.Time{}, 90, ""),
			},
			bank: []model.Record{
				rec(0, "", day(2024, 1, 10), 90, ""),
			},
			want: []pair{
				{status: model.StatusPendingBankOnly, bookIdx: -1, bankIdx: 0},
				{status: model.StatusPendingBookOnly, bookIdx: 0, bankIdx: -1},
			},
		},
		{
			name: "null dates still match by id",
			book: []model.Record{
				rec(0, "N1", time.Time{}, 60, ""),
			},
			bank: []model.Record{
				rec(0, "N1", time.Time{}, -60, ""),
			},
			want: []pair{
				{status: model.StatusMatchedByID, bookIdx: 0, bankIdx: 0},
			},
		},
		{
			name: "zero amounts are a legitimate key",
			book: []model.Record{
				rec(0, "Z0", day(2024, 4, 1), 0, "fee reversal"),
			},
			bank: []model.Record{
				rec(0, "Z0", day(2024, 4, 2), 0, "fee reversal"),
			},
			want: []pair{
				{status: model.StatusMatchedByID, bookIdx: 0, bankIdx: 0},
			},
		},
		{
			name: "matched records are excluded from later stages",
			// Bank record 0 matches book record 0 by ID; it must not be a
			// date-stage candidate for book record 1 even though the date
			// and amount line up, so book record 1 falls through to the
			// second bank record via tolerance.
			book: []model.Record{
				rec(0, "E1", day(2024, 1, 10), 55, ""),
				rec(1, "E2", day(2024, 1, 10), 55, ""),
			},
			bank: []model.Record{
				rec(0, "E1", day(2024, 1, 10), 55, ""),
				rec(1, "Q4", day(2024, 1, 12), 55, ""),
			},
			toleranceDays: 3,
			want: []pair{
				{status: model.StatusMatchedByID, bookIdx: 0, bankIdx: 0},
				{status: model.StatusMatchedByTolerance, bookIdx: 1, bankIdx: 1},
			},
		},
		{
			name: "leftovers sharing only an amount stay pending",
			// Amount-only pairing of leftovers is deliberately not done.
			book: []model.Record{
				rec(0, "P1", day(2024, 1, 1), 500, "rent"),
			},
			bank: []model.Record{
				rec(0, "P2", day(2024, 9, 1), 500, "unrelated"),
			},
			want: []pair{
				{status: model.StatusPendingBookOnly, bookIdx: 0, bankIdx: -1},
				{status: model.StatusPendingBankOnly, bookIdx: -1, bankIdx: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewWithConfig(Config{ToleranceDays: tt.toleranceDays})
			outcomes := e.Reconcile(tt.book, tt.bank)

			assert.Equal(t, tt.want, outcomePairs(outcomes))
			assertCoverage(t, tt.book, tt.bank, outcomes)
		})
	}
}

func TestReconcileRepresentativeDate(t *testing.T) {
	t.Run("bank date preferred for matches", func(t *testing.T) {
		book := []model.Record{rec(0, "A1", day(2024, 1, 5), 100, "")}
		bank := []model.Record{rec(0, "A1", day(2024, 1, 6), 100, "")}

		outcomes := New().Reconcile(book, bank)
		require.Len(t, outcomes, 1)
		assert.Equal(t, day(2024, 1, 6), outcomes[0].Date)
	})

	t.Run("falls back to book date when bank date is null", func(t *testing.T) {
		book := []model.Record{rec(0, "A1", day(2024, 1, 5), 100, "")}
		bank := []model.Record{rec(0, "A1", time.Time{}, 100, "")}

		outcomes := New().Reconcile(book, bank)
		require.Len(t, outcomes, 1)
		assert.Equal(t, day(2024, 1, 5), outcomes[0].Date)
	})
}

func TestReconcileOrdering(t *testing.T) {
	book := []model.Record{
		rec(0, "", time.Time{}, 10, "undated"),
		rec(1, "A1", day(2024, 3, 1), 20, "march"),
		rec(2, "", day(2024, 1, 15), 30, "january"),
	}
	bank := []model.Record{
		rec(0, "A1", day(2024, 3, 1), 20, "march"),
	}

	outcomes := New().Reconcile(book, bank)
	require.Len(t, outcomes, 3)

	// Ascending by representative date, null dates last.
	assert.Equal(t, day(2024, 1, 15), outcomes[0].Date)
	assert.Equal(t, day(2024, 3, 1), outcomes[1].Date)
	assert.True(t, outcomes[2].Date.IsZero())
}

func TestReconcileStableOrderWithinEqualDates(t *testing.T) {
	// All outcomes land on the same date; the stable sort must preserve
	// stage insertion order: ID match, date match, pending book, pending
	// bank.
	d := day(2024, 5, 10)
	book := []model.Record{
		rec(0, "", d, 70, ""),   // date match
		rec(1, "S1", d, 10, ""), // id match
		rec(2, "", d, 999, ""),  // pending
	}
	bank := []model.Record{
		rec(0, "S1", d, 10, ""),
		rec(1, "", d, 70, ""),
		rec(2, "", d, 888, ""), // pending
	}

	outcomes := New().Reconcile(book, bank)
	require.Len(t, outcomes, 4)
	assert.Equal(t, model.StatusMatchedByID, outcomes[0].Status)
	assert.Equal(t, model.StatusMatchedByDate, outcomes[1].Status)
	assert.Equal(t, model.StatusPendingBookOnly, outcomes[2].Status)
	assert.Equal(t, model.StatusPendingBankOnly, outcomes[3].Status)
}

func TestReconcileDoesNotMutateInputs(t *testing.T) {
	book := []model.Record{rec(0, "A1", day(2024, 1, 5), 100, "x")}
	bank := []model.Record{rec(0, "A1", day(2024, 1, 6), 100, "y")}
	bookCopy := append([]model.Record(nil), book...)
	bankCopy := append([]model.Record(nil), bank...)

	New().Reconcile(book, bank)

	assert.Equal(t, bookCopy, book)
	assert.Equal(t, bankCopy, bank)
}

func TestReconcileIdempotent(t *testing.T) {
	book := []model.Record{
		rec(0, "A1", day(2024, 1, 5), 100, ""),
		rec(1, "A2", day(2024, 1, 8), -50, ""),
		rec(2, "", day(2024, 1, 20), 75, ""),
		rec(3, "", time.Time{}, 12, ""),
	}
	bank := []model.Record{
		rec(0, "A1", day(2024, 1, 6), 100, ""),
		rec(1, "X9", day(2024, 1, 8), 50, ""),
		rec(2, "", day(2024, 1, 22), 75, ""),
	}

	e := New()
	first := outcomePairs(e.Reconcile(book, bank))
	second := outcomePairs(e.Reconcile(book, bank))
	assert.Equal(t, first, second)
}

func TestReconcileLargeDuplicateBatch(t *testing.T) {
	// Many records sharing one key must pair off one-for-one with the
	// surplus left pending, and the queue consumption must stay exact.
	const bookN, bankN = 40, 25
	book := make([]model.Record, 0, bookN)
	bank := make([]model.Record, 0, bankN)
	for i := 0; i < bookN; i++ {
		book = append(book, rec(i, "DUP", day(2024, 1, 1+i%5), 10, ""))
	}
	for i := 0; i < bankN; i++ {
		bank = append(bank, rec(i, "DUP", day(2024, 1, 1+i%5), -10, ""))
	}

	outcomes := New().Reconcile(book, bank)
	assertCoverage(t, book, bank, outcomes)

	counts := map[model.MatchStatus]int{}
	for _, o := range outcomes {
		counts[o.Status]++
	}
	assert.Equal(t, bankN, counts[model.StatusMatchedByID])
	assert.Equal(t, bookN-bankN, counts[model.StatusPendingBookOnly])
	assert.Equal(t, 0, counts[model.StatusPendingBankOnly])
}

func TestNewWithConfigDefaultsTolerance(t *testing.T) {
	assert.Equal(t, DefaultToleranceDays, NewWithConfig(Config{}).ToleranceDays())
	assert.Equal(t, DefaultToleranceDays, NewWithConfig(Config{ToleranceDays: -1}).ToleranceDays())
	assert.Equal(t, 7, NewWithConfig(Config{ToleranceDays: 7}).ToleranceDays())
}
