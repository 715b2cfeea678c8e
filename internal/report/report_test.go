package report

import (
	"strings"
	"testing"
	"time"

	"github.com/finmatch/finmatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOutcomes() []model.MatchOutcome {
	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	book0 := &model.Record{OriginIndex: 0, ExternalID: "A1", Date: date, Amount: 100, AbsCents: 10000, Concept: "venta"}
	bank0 := &model.Record{OriginIndex: 0, ExternalID: "A1", Date: date, Amount: -100, AbsCents: 10000, Concept: "cobro"}
	book1 := &model.Record{OriginIndex: 1, Date: date.AddDate(0, 0, 5), Amount: 40, AbsCents: 4000, Concept: "comision"}
	book2 := &model.Record{OriginIndex: 2, Date: date.AddDate(0, 0, 6), Amount: 60, AbsCents: 6000, Concept: "comision"}
	bank1 := &model.Record{OriginIndex: 1, Amount: -15, AbsCents: 1500, Concept: "fee"}

	return []model.MatchOutcome{
		{Status: model.StatusMatchedByID, Date: date, Book: book0, Bank: bank0},
		{Status: model.StatusPendingBookOnly, Date: book1.Date, Book: book1},
		{Status: model.StatusPendingBookOnly, Date: book2.Date, Book: book2},
		{Status: model.StatusPendingBankOnly, Bank: bank1},
	}
}

func TestSummarize(t *testing.T) {
	summary := Summarize(sampleOutcomes())

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.MatchedPairs)
	assert.Equal(t, 2, summary.PendingBook)
	assert.Equal(t, 1, summary.PendingBank)
	assert.Equal(t, 1, summary.StatusCounts[model.StatusMatchedByID])
	assert.Equal(t, 2, summary.StatusCounts[model.StatusPendingBookOnly])
	assert.Zero(t, summary.StatusCounts[model.StatusMatchedByTolerance])
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	assert.Zero(t, summary.Total)
	assert.Empty(t, summary.StatusCounts)
}

func TestPendingByConcept(t *testing.T) {
	totals := PendingByConcept(sampleOutcomes())

	require.Len(t, totals, 2)

	// Sorted by status then concept; statuses sort lexically.
	assert.Equal(t, model.StatusPendingBankOnly, totals[0].Status)
	assert.Equal(t, "fee", totals[0].Concept)
	assert.Equal(t, -15.0, totals[0].Total)
	assert.Equal(t, 1, totals[0].Count)

	assert.Equal(t, model.StatusPendingBookOnly, totals[1].Status)
	assert.Equal(t, "comision", totals[1].Concept)
	assert.Equal(t, 100.0, totals[1].Total)
	assert.Equal(t, 2, totals[1].Count)
}

func TestWriteCSV(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, WriteCSV(&sb, sampleOutcomes()))

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	require.Len(t, lines, 5)

	assert.Equal(t, "Status,Date,Book Amount,Bank Amount,Book Concept,Bank Concept,Book Reference,Bank Reference", lines[0])
	assert.Equal(t, "Matched by ID,10/01/2024,100.00,-100.00,venta,cobro,A1,A1", lines[1])

	// Pending bank outcome has no date and no book side.
	assert.Equal(t, "Pending - Bank Only,,,-15.00,,fee,,", lines[4])
}
