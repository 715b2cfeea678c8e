// Package ingest turns raw ledger files into normalized records. It owns all
// cell-level parsing: downstream code only ever sees model.Record values with
// a numeric amount, a calendar date or the null (zero) date, and a stable
// origin index.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/finmatch/finmatch/internal/common"
	"github.com/finmatch/finmatch/internal/model"
)

// Column roles recognized in ledger spreadsheets. The legacy export headers
// are Spanish; English aliases are accepted too. Matching is case-insensitive
// on the trimmed header cell.
var columnAliases = map[string][]string{
	"date":      {"fecha", "date"},
	"debit":     {"debe", "debit"},
	"credit":    {"haber", "credit"},
	"amount":    {"monto", "amount", "importe"},
	"concept":   {"concepto", "concept", "description"},
	"reference": {"numero de operación", "numero de operacion", "número de operación", "reference", "operation id", "trx id"},
}

// dateLayouts are tried in order. Ledger exports are day-first; ISO is the
// fallback for machine-produced files.
var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006-01-02",
}

// CSVReader reads one ledger from a CSV file. It implements
// service.LedgerReader.
type CSVReader struct{}

// NewCSVReader creates a new CSV ledger reader.
func NewCSVReader() *CSVReader {
	return &CSVReader{}
}

// columnMap resolves header cells to column roles.
type columnMap map[string]int

func (m columnMap) has(role string) bool {
	_, ok := m[role]
	return ok
}

func (m columnMap) cell(row []string, role string) string {
	idx, ok := m[role]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Read parses the ledger at path into normalized records. The book side
// computes its amount as debit minus credit when those columns exist; the
// bank side (and a book file without debit/credit columns) takes the amount
// column as given. Unparsable amounts normalize to zero and unparsable dates
// to the null date; neither is an error. A missing date column or no usable
// amount columns is an error, surfaced here so the engine never sees a
// malformed ledger.
func (r *CSVReader) Read(ctx context.Context, path string, side model.LedgerSide) ([]model.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrUnreadableFile, path, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close ledger file", "path", path, "error", closeErr)
		}
	}()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}

	columns, err := mapColumns(header, side)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var records []model.Record
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading row from %s: %w", path, err)
		}

		amount := rowAmount(columns, row, side)
		rec := model.Record{
			OriginIndex: len(records),
			ExternalID:  columns.cell(row, "reference"),
			Date:        parseDate(columns.cell(row, "date")),
			Amount:      amount,
			AbsCents:    model.AmountToCents(amount),
			Concept:     columns.cell(row, "concept"),
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrEmptyLedgerFile, path)
	}

	common.LogInfo("Loaded ledger", common.Fields{
		"path":    path,
		"side":    side,
		"records": len(records),
	})

	return records, nil
}

// mapColumns resolves the header to column roles and checks that the side's
// required columns are present.
func mapColumns(header []string, side model.LedgerSide) (columnMap, error) {
	columns := make(columnMap)
	for idx, cell := range header {
		normalized := strings.ToLower(strings.TrimSpace(cell))
		for role, aliases := range columnAliases {
			if columns.has(role) {
				continue
			}
			for _, alias := range aliases {
				if normalized == alias {
					columns[role] = idx
					break
				}
			}
		}
	}

	if !columns.has("date") {
		return nil, fmt.Errorf("%w: date", common.ErrMissingColumn)
	}

	hasDebitCredit := columns.has("debit") && columns.has("credit")
	if side == model.LedgerBook {
		if !hasDebitCredit && !columns.has("amount") {
			return nil, fmt.Errorf("%w: debit/credit or amount", common.ErrMissingColumn)
		}
	} else if !columns.has("amount") {
		return nil, fmt.Errorf("%w: amount", common.ErrMissingColumn)
	}

	return columns, nil
}

// rowAmount computes the signed amount for one row. Book ledgers use debit
// minus credit so debits come out positive, mirroring how the bank reports
// its own movements with the opposite sign.
func rowAmount(columns columnMap, row []string, side model.LedgerSide) float64 {
	if side == model.LedgerBook && columns.has("debit") && columns.has("credit") {
		return parseAmount(columns.cell(row, "debit")) - parseAmount(columns.cell(row, "credit"))
	}
	return parseAmount(columns.cell(row, "amount"))
}

// parseAmount parses a numeric cell leniently: currency symbols and grouping
// separators are stripped, a decimal comma is accepted, and anything still
// unparsable normalizes to zero.
func parseAmount(cell string) float64 {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0
	}

	cell = strings.TrimLeft(cell, "$€£ ")
	if strings.Contains(cell, ",") && strings.Contains(cell, ".") {
		// Both separators present: the rightmost one is the decimal mark.
		if strings.LastIndex(cell, ",") > strings.LastIndex(cell, ".") {
			cell = strings.ReplaceAll(cell, ".", "")
			cell = strings.Replace(cell, ",", ".", 1)
		} else {
			cell = strings.ReplaceAll(cell, ",", "")
		}
	} else {
		cell = strings.Replace(cell, ",", ".", 1)
	}

	value, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0
	}
	return value
}

// parseDate parses a date cell day-first, returning the null (zero) date when
// no layout fits.
func parseDate(cell string) time.Time {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return time.Time{}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	return time.Time{}
}
