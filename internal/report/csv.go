package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/finmatch/finmatch/internal/model"
)

// reportDateLayout matches the day-first convention of the ledger exports.
const reportDateLayout = "02/01/2006"

// csvHeader mirrors the legacy detail report columns.
var csvHeader = []string{
	"Status",
	"Date",
	"Book Amount",
	"Bank Amount",
	"Book Concept",
	"Bank Concept",
	"Book Reference",
	"Bank Reference",
}

// WriteCSV writes the detail rows of a run as plain CSV, one row per outcome
// in report order. Empty cells stand in for the missing side of a pending
// outcome and for null dates.
func WriteCSV(w io.Writer, outcomes []model.MatchOutcome) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}

	for _, o := range outcomes {
		row := []string{
			o.Status.DisplayName(),
			formatDate(o.Date),
			formatSideAmount(o.Book),
			formatSideAmount(o.Bank),
			sideConcept(o.Book),
			sideConcept(o.Bank),
			sideReference(o.Book),
			sideReference(o.Bank),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush report: %w", err)
	}
	return nil
}

func formatDate(date time.Time) string {
	if date.IsZero() {
		return ""
	}
	return date.Format(reportDateLayout)
}

func formatSideAmount(rec *model.Record) string {
	if rec == nil {
		return ""
	}
	return strconv.FormatFloat(rec.Amount, 'f', 2, 64)
}

func sideConcept(rec *model.Record) string {
	if rec == nil {
		return ""
	}
	return rec.Concept
}

func sideReference(rec *model.Record) string {
	if rec == nil {
		return ""
	}
	return rec.ExternalID
}
