package job

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gagassurya19/backend-celoeapi-sub001/internal/apperror"
	domain "github.com/gagassurya19/backend-celoeapi-sub001/internal/etl"
)

const (
	dateFormat = "2006-01-02"
	timeFormat = "2006-01-02T15:04:05Z"
)

const jobColumns = `id, kind, requested_start_date, requested_end_date,
	extracted_start_date, extracted_end_date, last_offset, row_count,
	concurrency, include_logs, status, message, started_at, ended_at,
	duration_seconds, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateExclusive inserts the job unless another job of the same kind is
// queued or running. One conditional INSERT, so two submissions racing
// within the same instant cannot both succeed.
func (r *Repository) CreateExclusive(ctx context.Context, j *domain.Job) error {
	const query = `INSERT INTO etl_jobs
		(kind, requested_start_date, requested_end_date, concurrency, include_logs, status)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM etl_jobs WHERE kind = ? AND status IN ('queued', 'running')
		)`

	res, err := r.db.ExecContext(ctx, query,
		string(j.Kind),
		formatDate(j.RequestedStartDate), formatDate(j.RequestedEndDate),
		j.Concurrency, boolToInt(j.IncludeLogs), string(domain.StatusQueued),
		string(j.Kind),
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return apperror.New(apperror.Conflict,
			fmt.Sprintf("a %s job is already queued or running", j.Kind))
	}

	j.ID, _ = res.LastInsertId()
	j.Status = domain.StatusQueued
	j.CreatedAt = time.Now().UTC()
	j.UpdatedAt = j.CreatedAt
	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM etl_jobs WHERE id = ?`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperror.New(apperror.NotFound, "job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (r *Repository) Latest(ctx context.Context) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM etl_jobs ORDER BY id DESC LIMIT 1`

	j, err := scanJob(r.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, apperror.New(apperror.NotFound, "no jobs recorded")
	}
	if err != nil {
		return nil, fmt.Errorf("latest job: %w", err)
	}
	return j, nil
}

func (r *Repository) List(ctx context.Context, limit, offset int, status domain.Status) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM etl_jobs`

	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// ClaimQueued atomically transitions the oldest queued job to running and
// stamps started_at. Returns nil when nothing is queued.
func (r *Repository) ClaimQueued(ctx context.Context) (*domain.Job, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim queued: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM etl_jobs WHERE status = 'queued' ORDER BY id ASC LIMIT 1`,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim queued: select: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE etl_jobs SET status = 'running',
			started_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ? AND status = 'queued'`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("claim queued: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim queued: commit: %w", err)
	}

	return r.Get(ctx, id)
}

func (r *Repository) UpdateProgress(ctx context.Context, id, offset, rowsDelta int64) error {
	const query = `UPDATE etl_jobs SET last_offset = ?, row_count = row_count + ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, offset, rowsDelta, id); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// MarkFinished applies only to non-terminal rows; the duration is computed
// inside the statement from the stored started_at.
func (r *Repository) MarkFinished(ctx context.Context, id int64, start, end *time.Time, rowCount int64, message string) (bool, error) {
	const query = `UPDATE etl_jobs SET status = 'finished',
		extracted_start_date = ?, extracted_end_date = ?, row_count = ?, message = ?,
		ended_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
		duration_seconds = CAST((julianday('now') - julianday(started_at)) * 86400 AS INTEGER),
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ? AND status IN ('queued', 'running')`

	res, err := r.db.ExecContext(ctx, query, formatDate(start), formatDate(end), rowCount, message, id)
	if err != nil {
		return false, fmt.Errorf("mark finished: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repository) MarkFailed(ctx context.Context, id int64, message string) (bool, error) {
	const query = `UPDATE etl_jobs SET status = 'failed', message = ?,
		ended_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
		duration_seconds = CAST((julianday('now') - julianday(started_at)) * 86400 AS INTEGER),
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ? AND status IN ('queued', 'running')`

	res, err := r.db.ExecContext(ctx, query, message, id)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Reap force-fails running jobs started before cutoff. One atomic statement,
// so concurrent reaper ticks or a finishing worker cannot double-write.
func (r *Repository) Reap(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	const query = `UPDATE etl_jobs SET status = 'failed', message = ?,
		ended_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
		duration_seconds = CAST((julianday('now') - julianday(started_at)) * 86400 AS INTEGER),
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE status = 'running' AND started_at < ?`

	res, err := r.db.ExecContext(ctx, query, message, cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("reap stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) FailAllRunning(ctx context.Context, message string) (int64, error) {
	const query = `UPDATE etl_jobs SET status = 'failed', message = ?,
		ended_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
		duration_seconds = CAST((julianday('now') - julianday(started_at)) * 86400 AS INTEGER),
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE status = 'running'`

	res, err := r.db.ExecContext(ctx, query, message)
	if err != nil {
		return 0, fmt.Errorf("fail running jobs: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) RequeueInterrupted(ctx context.Context) (int64, error) {
	const query = `UPDATE etl_jobs SET status = 'queued', message = NULL, started_at = NULL,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE status = 'running'`

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("requeue interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) Clear(ctx context.Context, keepID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM etl_jobs WHERE id != ?`, keepID); err != nil {
		return fmt.Errorf("clear job ledger: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	j := &domain.Job{}
	var (
		kind, status                       string
		reqStart, reqEnd, extStart, extEnd sql.NullString
		message, startedAt, endedAt        sql.NullString
		duration                           sql.NullInt64
		includeLogs                        int64
		createdStr, updatedStr             string
	)

	err := row.Scan(
		&j.ID, &kind, &reqStart, &reqEnd, &extStart, &extEnd,
		&j.LastOffset, &j.RowCount, &j.Concurrency, &includeLogs,
		&status, &message, &startedAt, &endedAt, &duration,
		&createdStr, &updatedStr,
	)
	if err != nil {
		return nil, err
	}

	j.Kind = domain.Kind(kind)
	j.Status = domain.Status(status)
	j.IncludeLogs = includeLogs != 0
	if message.Valid {
		j.Message = message.String
	}
	j.RequestedStartDate = parseDate(reqStart)
	j.RequestedEndDate = parseDate(reqEnd)
	j.ExtractedStartDate = parseDate(extStart)
	j.ExtractedEndDate = parseDate(extEnd)
	j.StartedAt = parseTime(startedAt)
	j.EndedAt = parseTime(endedAt)
	if duration.Valid {
		d := duration.Int64
		j.DurationSeconds = &d
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return j, nil
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateFormat)
}

func parseDate(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(dateFormat, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
