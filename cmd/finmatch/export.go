package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/finmatch/finmatch/internal/cli"
	"github.com/finmatch/finmatch/internal/config"
	"github.com/finmatch/finmatch/internal/model"
	"github.com/finmatch/finmatch/internal/service"
	"github.com/finmatch/finmatch/internal/sheets"
)

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export ID",
		Short: "Export a stored run to Google Sheets",
		Long: `Export re-renders a stored reconciliation run as a styled Google Sheets
report: summary totals, the detail rows colored by status, and the
pending-concepts breakdown.

Sheets credentials come from the sheets section of the config file or
from FINMATCH_SHEETS_* environment variables.`,
		Args: cobra.ExactArgs(1),
		RunE: runExport,
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run ID %q: %w", args[0], err)
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}

	outcomes, err := store.GetOutcomes(ctx, id)
	if err != nil {
		return err
	}

	if err := exportRun(ctx, run, outcomes); err != nil {
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Run #%d exported to Google Sheets", run.ID)))
	return nil
}

// newReportWriter builds the Sheets writer from configuration. Overridden in
// tests so the export path can run against a mock.
var newReportWriter = func(ctx context.Context) (service.ReportWriter, error) {
	sheetsConfig, err := config.LoadSheetsConfig()
	if err != nil {
		return nil, err
	}
	return sheets.NewWriter(ctx, *sheetsConfig, slog.Default())
}

// exportRun writes a run to Google Sheets using configured credentials.
func exportRun(ctx context.Context, run *model.Run, outcomes []model.MatchOutcome) error {
	writer, err := newReportWriter(ctx)
	if err != nil {
		return err
	}
	return writer.Write(ctx, run, outcomes)
}
