package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/finmatch/finmatch/internal/common"
	"github.com/finmatch/finmatch/internal/model"
	"github.com/finmatch/finmatch/internal/report"
	"github.com/finmatch/finmatch/internal/service"
)

// Writer implements the service.ReportWriter interface for Google Sheets.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	config  Config
}

// NewWriter creates a new Google Sheets report writer.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	srv, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Writer{
		config:  config,
		service: srv,
		logger:  logger,
	}, nil
}

// Write exports a reconciliation run: a summary block with per-status totals,
// the detail rows in report order, and a pending-concepts section, with
// status colors applied when formatting is enabled.
func (w *Writer) Write(ctx context.Context, run *model.Run, outcomes []model.MatchOutcome) error {
	w.logger.Info("starting report export",
		"run_id", run.ID,
		"outcomes", len(outcomes))

	spreadsheetID, err := w.getOrCreateSpreadsheet(ctx)
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	if clearErr := w.clearSheet(ctx, spreadsheetID); clearErr != nil {
		return fmt.Errorf("failed to clear sheet: %w", clearErr)
	}

	values, detailStart := prepareReportData(run, outcomes)

	retryOpts := service.RetryOptions{
		MaxAttempts:  w.config.RetryAttempts,
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	err = common.WithRetry(ctx, func() error {
		return w.writeData(ctx, spreadsheetID, values)
	}, retryOpts)
	if err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	if w.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			return w.applyFormatting(ctx, spreadsheetID, outcomes, detailStart, len(values))
		}, retryOpts)
		if err != nil {
			// Data landed; formatting is cosmetic
			w.logger.Warn("failed to apply formatting", "error", err)
		}
	}

	w.logger.Info("report export complete", "spreadsheet_id", spreadsheetID, "rows", len(values))
	return nil
}

func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath) // #nosec G304
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		oauthConfig := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}

		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}

		tokenSource = oauthConfig.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return srv, nil
}

// getOrCreateSpreadsheet gets an existing spreadsheet or creates a new one.
func (w *Writer) getOrCreateSpreadsheet(ctx context.Context) (string, error) {
	if w.config.SpreadsheetID != "" {
		_, err := w.service.Spreadsheets.Get(w.config.SpreadsheetID).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("unable to access spreadsheet %s: %w", w.config.SpreadsheetID, err)
		}
		return w.config.SpreadsheetID, nil
	}

	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    w.config.SpreadsheetName,
			TimeZone: w.config.TimeZone,
		},
		Sheets: []*sheets.Sheet{
			{
				Properties: &sheets.SheetProperties{
					Title: "Reconciliation",
				},
			},
		},
	}

	created, err := w.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	w.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)

	return created.SpreadsheetId, nil
}

// clearSheet clears all data from the sheet.
func (w *Writer) clearSheet(ctx context.Context, spreadsheetID string) error {
	_, err := w.service.Spreadsheets.Values.Clear(spreadsheetID, "A:Z", &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// prepareReportData builds the sheet rows: title, summary block, detail
// section, and pending-concepts section. It returns the rows plus the
// zero-based row index of the first detail data row, needed later for
// status coloring.
func prepareReportData(run *model.Run, outcomes []model.MatchOutcome) ([][]any, int) {
	summary := report.Summarize(outcomes)
	concepts := report.PendingByConcept(outcomes)

	estimatedRows := 12 + len(model.AllStatuses()) + len(outcomes) + len(concepts)
	values := make([][]any, 0, estimatedRows)

	values = append(values,
		[]any{"FinMatch", "Bank Reconciliation Report"},
		[]any{"Run", run.ID, "Generated", run.CreatedAt.Format("2006-01-02 15:04")},
		[]any{"Sources", run.BookSource, run.BankSource, fmt.Sprintf("tolerance ±%d days", run.ToleranceDays)},
		[]any{},
		[]any{"Summary", "Total"},
	)
	for _, status := range model.AllStatuses() {
		values = append(values, []any{status.DisplayName(), summary.StatusCounts[status]})
	}
	values = append(values,
		[]any{"Total outcomes", summary.Total},
		[]any{},
		[]any{"Status", "Date", "Book Amount", "Bank Amount", "Book Concept", "Bank Concept", "Book Reference", "Bank Reference"},
	)

	detailStart := len(values)
	for _, o := range outcomes {
		values = append(values, detailRow(o))
	}

	if len(concepts) > 0 {
		values = append(values,
			[]any{},
			[]any{"Pending Concepts", "Count", "Total"},
		)
		for _, c := range concepts {
			values = append(values, []any{
				fmt.Sprintf("%s: %s", c.Status.DisplayName(), c.Concept),
				c.Count,
				c.Total,
			})
		}
	}

	return values, detailStart
}

func detailRow(o model.MatchOutcome) []any {
	row := []any{o.Status.DisplayName(), "", "", "", "", "", "", ""}
	if o.HasDate() {
		row[1] = o.Date.Format("02/01/2006")
	}
	if o.Book != nil {
		row[2] = o.Book.Amount
		row[4] = o.Book.Concept
		row[6] = o.Book.ExternalID
	}
	if o.Bank != nil {
		row[3] = o.Bank.Amount
		row[5] = o.Bank.Concept
		row[7] = o.Bank.ExternalID
	}
	return row
}

// writeData writes the rows in batches to avoid API limits.
func (w *Writer) writeData(ctx context.Context, spreadsheetID string, values [][]any) error {
	for i := 0; i < len(values); i += w.config.BatchSize {
		end := i + w.config.BatchSize
		if end > len(values) {
			end = len(values)
		}

		valueRange := &sheets.ValueRange{
			Values: values[i:end],
		}

		rangeStr := fmt.Sprintf("A%d", i+1)
		_, err := w.service.Spreadsheets.Values.Update(spreadsheetID, rangeStr, valueRange).
			ValueInputOption("USER_ENTERED").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to write batch starting at row %d: %w", i+1, err)
		}

		w.logger.Debug("wrote batch", "start_row", i+1, "rows", end-i)
	}

	return nil
}

// statusColors maps each outcome status to its report row background.
var statusColors = map[model.MatchStatus]*sheets.Color{
	model.StatusMatchedByID:        {Red: 0.85, Green: 0.94, Blue: 0.83}, // green
	model.StatusMatchedByDate:      {Red: 0.85, Green: 0.92, Blue: 0.96}, // blue
	model.StatusMatchedByTolerance: {Red: 0.99, Green: 0.95, Blue: 0.80}, // amber
	model.StatusPendingBookOnly:    {Red: 0.98, Green: 0.87, Blue: 0.84}, // red
	model.StatusPendingBankOnly:    {Red: 0.96, Green: 0.85, Blue: 0.92}, // magenta
}

// applyFormatting styles the report: bold header rows, status-colored detail
// blocks, currency columns, frozen title, and auto-sized columns. Contiguous
// detail rows of the same status are colored with one request each.
func (w *Writer) applyFormatting(ctx context.Context, spreadsheetID string, outcomes []model.MatchOutcome, detailStart, totalRows int) error {
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:       0,
					StartRowIndex: 0,
					EndRowIndex:   1,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{
							Bold:     true,
							FontSize: 16,
						},
					},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		},
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:       0,
					StartRowIndex: int64(detailStart - 1),
					EndRowIndex:   int64(detailStart),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true},
					},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		},
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          0,
					StartRowIndex:    int64(detailStart),
					EndRowIndex:      int64(totalRows),
					StartColumnIndex: 2,
					EndColumnIndex:   4,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						NumberFormat: &sheets.NumberFormat{
							Type:    "NUMBER",
							Pattern: "#,##0.00",
						},
					},
				},
				Fields: "userEnteredFormat.numberFormat",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    0,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   8,
				},
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId: 0,
					GridProperties: &sheets.GridProperties{
						FrozenRowCount: int64(detailStart),
					},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	}

	for _, block := range statusBlocks(outcomes) {
		requests = append(requests, &sheets.Request{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          0,
					StartRowIndex:    int64(detailStart + block.start),
					EndRowIndex:      int64(detailStart + block.end),
					StartColumnIndex: 0,
					EndColumnIndex:   8,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						BackgroundColor: statusColors[block.status],
					},
				},
				Fields: "userEnteredFormat.backgroundColor",
			},
		})
	}

	batchUpdate := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}

	_, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID, batchUpdate).Context(ctx).Do()
	return err
}

// statusBlock is a run of consecutive detail rows sharing one status.
type statusBlock struct {
	status model.MatchStatus
	start  int // inclusive, relative to the first detail row
	end    int // exclusive
}

func statusBlocks(outcomes []model.MatchOutcome) []statusBlock {
	var blocks []statusBlock
	for i, o := range outcomes {
		if len(blocks) > 0 && blocks[len(blocks)-1].status == o.Status {
			blocks[len(blocks)-1].end = i + 1
			continue
		}
		blocks = append(blocks, statusBlock{status: o.Status, start: i, end: i + 1})
	}
	return blocks
}
