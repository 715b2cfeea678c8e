package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/finmatch/finmatch/internal/common"
	"github.com/finmatch/finmatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLedger(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func utcDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCSVReaderBookLedger(t *testing.T) {
	// Legacy Spanish headers with debit/credit columns.
	path := writeLedger(t, `Fecha,Debe,Haber,Concepto,Numero de operacion
05/01/2024,100,,Venta contado,A1
08/01/2024,,50.25,Devolucion,A2
notadate,,,Sin fecha,
`)

	records, err := NewCSVReader().Read(context.Background(), path, model.LedgerBook)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, model.Record{
		OriginIndex: 0,
		ExternalID:  "A1",
		Date:        utcDay(2024, 1, 5),
		Amount:      100,
		AbsCents:    10000,
		Concept:     "Venta contado",
	}, records[0])

	// Credit-only row comes out negative: debit minus credit.
	assert.Equal(t, -50.25, records[1].Amount)
	assert.Equal(t, int64(5025), records[1].AbsCents)
	assert.Equal(t, "A2", records[1].ExternalID)

	// Unparsable date and empty amounts normalize, never error.
	assert.True(t, records[2].Date.IsZero())
	assert.Zero(t, records[2].Amount)
	assert.Empty(t, records[2].ExternalID)
}

func TestCSVReaderBankLedger(t *testing.T) {
	path := writeLedger(t, `Date,Amount,Description,Reference
2024-01-06,-100,cobro,A1
06/01/2024,"1.234,56",deposito,B7
`)

	records, err := NewCSVReader().Read(context.Background(), path, model.LedgerBank)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, -100.0, records[0].Amount)
	assert.Equal(t, int64(10000), records[0].AbsCents)
	assert.Equal(t, utcDay(2024, 1, 6), records[0].Date)
	assert.Equal(t, "cobro", records[0].Concept)

	// Spanish grouping: dot thousands, comma decimals.
	assert.Equal(t, 1234.56, records[1].Amount)
	assert.Equal(t, int64(123456), records[1].AbsCents)
	assert.Equal(t, utcDay(2024, 1, 6), records[1].Date)
}

func TestCSVReaderBookAmountFallback(t *testing.T) {
	// A book ledger without debit/credit columns falls back to the amount
	// column as given.
	path := writeLedger(t, `Fecha,Monto,Concepto
10/02/2024,-75.5,ajuste
`)

	records, err := NewCSVReader().Read(context.Background(), path, model.LedgerBook)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, -75.5, records[0].Amount)
	assert.Equal(t, int64(7550), records[0].AbsCents)
}

func TestCSVReaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		side    model.LedgerSide
		wantErr error
	}{
		{
			name:    "missing date column",
			content: "Monto,Concepto\n100,x\n",
			side:    model.LedgerBank,
			wantErr: common.ErrMissingColumn,
		},
		{
			name:    "bank ledger without amount column",
			content: "Fecha,Concepto\n01/01/2024,x\n",
			side:    model.LedgerBank,
			wantErr: common.ErrMissingColumn,
		},
		{
			name:    "book ledger without any amount columns",
			content: "Fecha,Concepto\n01/01/2024,x\n",
			side:    model.LedgerBook,
			wantErr: common.ErrMissingColumn,
		},
		{
			name:    "header only",
			content: "Fecha,Monto\n",
			side:    model.LedgerBank,
			wantErr: common.ErrEmptyLedgerFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeLedger(t, tt.content)
			_, err := NewCSVReader().Read(context.Background(), path, tt.side)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := NewCSVReader().Read(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), model.LedgerBank)
		require.ErrorIs(t, err, common.ErrUnreadableFile)
	})
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		cell string
		want float64
	}{
		{"", 0},
		{"100", 100},
		{"-150.00", -150},
		{"1,50", 1.5},
		{"1.234,56", 1234.56},
		{"1,234.56", 1234.56},
		{"$ 99.90", 99.9},
		{"garbage", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseAmount(tt.cell), "cell %q", tt.cell)
	}
}

func TestParseDateDayFirst(t *testing.T) {
	assert.Equal(t, utcDay(2024, 3, 2), parseDate("02/03/2024"))
	assert.Equal(t, utcDay(2024, 3, 2), parseDate("2/3/2024"))
	assert.Equal(t, utcDay(2024, 3, 2), parseDate("2024-03-02"))
	assert.True(t, parseDate("31/31/2024").IsZero())
	assert.True(t, parseDate("").IsZero())
}
