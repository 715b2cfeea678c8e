package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/finmatch/finmatch/internal/cli"
	"github.com/finmatch/finmatch/internal/model"
	"github.com/finmatch/finmatch/internal/storage"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored reconciliation runs",
		RunE:  runRunsList,
	}

	cmd.Flags().IntP("limit", "n", 20, "maximum number of runs to show")

	cmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Show one run's summary and outcomes",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunsShow,
	})

	return cmd
}

func openStorage() (*storage.SQLiteStorage, error) {
	dbPath, err := databasePath()
	if err != nil {
		return nil, err
	}
	return storage.NewSQLiteStorage(dbPath)
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println(cli.FormatWarning("No reconciliation runs stored yet. Run 'finmatch reconcile' first."))
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(run.ID, 10),
			run.CreatedAt.Format("2006-01-02 15:04"),
			run.BookSource,
			run.BankSource,
			strconv.Itoa(run.MatchedPairs()),
			strconv.Itoa(run.PendingCount()),
		})
	}

	fmt.Println(cli.FormatReportTitle("Reconciliation runs"))
	fmt.Println(cli.RenderTable(
		[]string{"ID", "Created", "Book", "Bank", "Matched", "Pending"},
		rows,
	))
	fmt.Println(cli.FormatSubtle(fmt.Sprintf("%d of at most %d runs shown", len(runs), limit)))
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
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

	var sb strings.Builder
	fmt.Fprintf(&sb, "Sources: %s vs %s (tolerance ±%d days)\n\n", run.BookSource, run.BankSource, run.ToleranceDays)
	for _, status := range model.AllStatuses() {
		fmt.Fprintf(&sb, "%-22s %d\n", status.DisplayName(), run.StatusCounts[status])
	}
	fmt.Println(cli.RenderBox(fmt.Sprintf("Run #%d (%s)", run.ID, run.CreatedAt.Format("2006-01-02 15:04")), sb.String()))

	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		date := ""
		if o.HasDate() {
			date = o.Date.Format("02/01/2006")
		}
		bookAmount, bankAmount := "", ""
		if o.Book != nil {
			bookAmount = strconv.FormatFloat(o.Book.Amount, 'f', 2, 64)
		}
		if o.Bank != nil {
			bankAmount = strconv.FormatFloat(o.Bank.Amount, 'f', 2, 64)
		}
		rows = append(rows, []string{o.Status.DisplayName(), date, bookAmount, bankAmount, o.Concept()})
	}

	fmt.Println(cli.RenderTable(
		[]string{"Status", "Date", "Book", "Bank", "Concept"},
		rows,
	))
	return nil
}
