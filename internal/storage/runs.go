package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/finmatch/finmatch/internal/common"
	"github.com/finmatch/finmatch/internal/model"
)

// SaveRun persists a run and its outcomes in one transaction and returns the
// run with its assigned ID and per-status counts filled in.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *model.Run, outcomes []model.MatchOutcome) (*model.Run, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateRun(run); err != nil {
		return nil, err
	}
	if err := validateOutcomes(outcomes); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO runs (created_at, book_source, bank_source, tolerance_days, book_records, bank_records)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		createdAt, run.BookSource, run.BankSource, run.ToleranceDays, run.BookRecords, run.BankRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get run ID: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes (run_id, position, status, date,
			book_origin, book_external_id, book_date, book_amount, book_concept,
			bank_origin, bank_external_id, bank_date, bank_amount, bank_concept)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	counts := make(map[model.MatchStatus]int, len(model.AllStatuses()))
	for position, o := range outcomes {
		args := []any{runID, position, string(o.Status), nullDate(o.Date)}
		args = append(args, sideArgs(o.Book)...)
		args = append(args, sideArgs(o.Bank)...)

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return nil, fmt.Errorf("failed to insert outcome at position %d: %w", position, err)
		}
		counts[o.Status]++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}

	saved := *run
	saved.ID = runID
	saved.CreatedAt = createdAt
	saved.StatusCounts = counts
	return &saved, nil
}

// GetRun returns a stored run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	run := model.Run{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, book_source, bank_source, tolerance_days, book_records, bank_records
		 FROM runs WHERE id = ?`, id).
		Scan(&run.CreatedAt, &run.BookSource, &run.BankSource, &run.ToleranceDays, &run.BookRecords, &run.BankRecords)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: run %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}

	counts, err := s.statusCounts(ctx, id)
	if err != nil {
		return nil, err
	}
	run.StatusCounts = counts
	return &run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, book_source, bank_source, tolerance_days, book_records, bank_records
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.Run
	for rows.Next() {
		var run model.Run
		if err := rows.Scan(&run.ID, &run.CreatedAt, &run.BookSource, &run.BankSource,
			&run.ToleranceDays, &run.BookRecords, &run.BankRecords); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	for i := range runs {
		counts, err := s.statusCounts(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].StatusCounts = counts
	}
	return runs, nil
}

// GetOutcomes returns a run's outcomes in their stored report order.
func (s *SQLiteStorage) GetOutcomes(ctx context.Context, runID int64) ([]model.MatchOutcome, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, date,
			book_origin, book_external_id, book_date, book_amount, book_concept,
			bank_origin, bank_external_id, bank_date, bank_amount, bank_concept
		 FROM outcomes WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get outcomes for run %d: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var outcomes []model.MatchOutcome
	for rows.Next() {
		var (
			status string
			date   sql.NullTime
			book   sideColumns
			bank   sideColumns
		)
		if err := rows.Scan(&status, &date,
			&book.origin, &book.externalID, &book.date, &book.amount, &book.concept,
			&bank.origin, &bank.externalID, &bank.date, &bank.amount, &bank.concept); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}

		outcome := model.MatchOutcome{
			Status: model.MatchStatus(status),
			Book:   book.record(),
			Bank:   bank.record(),
		}
		if date.Valid {
			outcome.Date = date.Time.UTC()
		}
		outcomes = append(outcomes, outcome)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// statusCounts aggregates a run's outcomes by status.
func (s *SQLiteStorage) statusCounts(ctx context.Context, runID int64) (map[model.MatchStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM outcomes WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes for run %d: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[model.MatchStatus]int, len(model.AllStatuses()))
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[model.MatchStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}
	return counts, nil
}

// sideColumns holds one ledger side of an outcome row.
type sideColumns struct {
	origin     sql.NullInt64
	externalID sql.NullString
	date       sql.NullTime
	amount     sql.NullFloat64
	concept    sql.NullString
}

// record rebuilds the Record for a stored side, or nil when the side was
// absent (the origin column is the presence marker).
func (c *sideColumns) record() *model.Record {
	if !c.origin.Valid {
		return nil
	}
	rec := &model.Record{
		OriginIndex: int(c.origin.Int64),
		ExternalID:  c.externalID.String,
		Amount:      c.amount.Float64,
		AbsCents:    model.AmountToCents(c.amount.Float64),
		Concept:     c.concept.String,
	}
	if c.date.Valid {
		rec.Date = c.date.Time.UTC()
	}
	return rec
}

// sideArgs flattens one side into insert arguments; an absent side inserts
// NULLs across its columns.
func sideArgs(rec *model.Record) []any {
	if rec == nil {
		return []any{nil, nil, nil, nil, nil}
	}
	return []any{rec.OriginIndex, rec.ExternalID, nullDate(rec.Date), rec.Amount, rec.Concept}
}

// nullDate maps the null (zero) date onto SQL NULL.
func nullDate(date time.Time) any {
	if date.IsZero() {
		return nil
	}
	return date
}
