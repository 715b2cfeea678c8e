package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finmatch/finmatch/internal/cli"
	"github.com/finmatch/finmatch/internal/common"
	"github.com/finmatch/finmatch/internal/engine"
	"github.com/finmatch/finmatch/internal/ingest"
	"github.com/finmatch/finmatch/internal/model"
	"github.com/finmatch/finmatch/internal/report"
	"github.com/finmatch/finmatch/internal/service"
	"github.com/finmatch/finmatch/internal/storage"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile a book ledger against bank statements",
		Long: `Reconcile ingests the internal book ledger and one or more bank
statements, pairs the movements that represent the same event, and
classifies everything else as pending on one side.

The run is stored in the local database; use 'finmatch export' to
re-export it later.`,
		RunE: runReconcile,
	}

	cmd.Flags().String("book", "", "book ledger CSV file (required)")
	cmd.Flags().StringSlice("bank", nil, "bank statement file(s), CSV or OFX (required)")
	cmd.Flags().String("bank-format", "csv", "bank statement format (csv, ofx)")
	cmd.Flags().IntP("tolerance-days", "t", engine.DefaultToleranceDays, "date tolerance window in days")
	cmd.Flags().StringP("output", "o", "", "write the detail report to a CSV file")
	cmd.Flags().Bool("export", false, "export the report to Google Sheets")

	_ = cmd.MarkFlagRequired("book")
	_ = cmd.MarkFlagRequired("bank")

	_ = viper.BindPFlag("reconcile.tolerance_days", cmd.Flags().Lookup("tolerance-days"))

	return cmd
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	bookPath, _ := cmd.Flags().GetString("book")
	bankPaths, _ := cmd.Flags().GetStringSlice("bank")
	bankFormat, _ := cmd.Flags().GetString("bank-format")
	outputPath, _ := cmd.Flags().GetString("output")
	export, _ := cmd.Flags().GetBool("export")
	toleranceDays := viper.GetInt("reconcile.tolerance_days")

	bankReader, err := bankLedgerReader(bankFormat)
	if err != nil {
		return err
	}

	fmt.Println(cli.FormatTitle("Reconciling ledgers..."))

	book, bank, err := loadLedgers(ctx, bookPath, bankPaths, bankReader)
	if err != nil {
		return err
	}

	eng := engine.NewWithConfig(engine.Config{ToleranceDays: toleranceDays})
	outcomes := eng.Reconcile(book, bank)

	run := &model.Run{
		CreatedAt:     time.Now().UTC(),
		BookSource:    filepath.Base(bookPath),
		BankSource:    bankSourceLabel(bankPaths),
		ToleranceDays: eng.ToleranceDays(),
		BookRecords:   len(book),
		BankRecords:   len(bank),
	}

	saved, err := persistRun(ctx, run, outcomes)
	if err != nil {
		return common.NewUserError("failed to save the reconciliation run", err)
	}

	printRunSummary(saved, outcomes)

	if outputPath != "" {
		if err := writeCSVReport(outputPath, outcomes); err != nil {
			return common.NewUserError("failed to write the CSV report", err)
		}
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("Detail report written to %s", outputPath)))
	}

	if export {
		if err := exportRun(ctx, saved, outcomes); err != nil {
			return common.NewUserError("failed to export the report to Google Sheets", err)
		}
		fmt.Println(cli.FormatSuccess("Report exported to Google Sheets"))
	}

	return nil
}

// loadLedgers ingests the book ledger and every bank statement, with a
// progress bar across the files. Bank statements concatenate in argument
// order and keep one continuous origin numbering.
func loadLedgers(ctx context.Context, bookPath string, bankPaths []string, bankReader service.LedgerReader) ([]model.Record, []model.Record, error) {
	bar := cli.NewProgressBar(os.Stderr, 1+len(bankPaths), "Loading ledgers...")

	book, err := ingest.NewCSVReader().Read(ctx, bookPath, model.LedgerBook)
	if err != nil {
		return nil, nil, common.NewUserError("failed to read the book ledger", err)
	}
	if err := bar.Add(1); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}

	var bank []model.Record
	for _, path := range bankPaths {
		records, err := bankReader.Read(ctx, path, model.LedgerBank)
		if err != nil {
			return nil, nil, common.NewUserError(fmt.Sprintf("failed to read bank statement %s", path), err)
		}
		for i := range records {
			records[i].OriginIndex = len(bank) + i
		}
		bank = append(bank, records...)
		if err := bar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}

	return book, bank, nil
}

func bankLedgerReader(format string) (service.LedgerReader, error) {
	switch strings.ToLower(format) {
	case "csv":
		return ingest.NewCSVReader(), nil
	case "ofx", "qfx":
		return ingest.NewOFXReader(), nil
	default:
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownFormat, format)
	}
}

func bankSourceLabel(paths []string) string {
	names := make([]string, 0, len(paths))
	for _, path := range paths {
		names = append(names, filepath.Base(path))
	}
	return strings.Join(names, ", ")
}

func persistRun(ctx context.Context, run *model.Run, outcomes []model.MatchOutcome) (*model.Run, error) {
	dbPath, err := databasePath()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}

	return store.SaveRun(ctx, run, outcomes)
}

func writeCSVReport(path string, outcomes []model.MatchOutcome) error {
	file, err := os.Create(path) // #nosec G304
	if err != nil {
		return err
	}

	if err := report.WriteCSV(file, outcomes); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func printRunSummary(run *model.Run, outcomes []model.MatchOutcome) {
	summary := report.Summarize(outcomes)

	var sb strings.Builder
	for _, status := range model.AllStatuses() {
		fmt.Fprintf(&sb, "%-22s %d\n", status.DisplayName(), summary.StatusCounts[status])
	}
	fmt.Fprintf(&sb, "\nMatched pairs: %d of %d book / %d bank records",
		summary.MatchedPairs, run.BookRecords, run.BankRecords)

	fmt.Println(cli.RenderBox(fmt.Sprintf("Run #%d", run.ID), sb.String()))
}
