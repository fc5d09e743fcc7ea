package watermark

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domain "github.com/gagassurya19/backend-celoeapi-sub001/internal/watermark"
)

const dateFormat = "2006-01-02"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, process string) (*domain.Watermark, error) {
	const query = `SELECT process_name, last_date, last_cursor, updated_at
		FROM etl_watermarks WHERE process_name = ?`

	wm := &domain.Watermark{}
	var dateStr, updatedStr string
	var cursor sql.NullString

	err := r.db.QueryRowContext(ctx, query, process).Scan(
		&wm.ProcessName, &dateStr, &cursor, &updatedStr,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get watermark: %w", err)
	}

	if cursor.Valid {
		wm.LastCursor = cursor.String
	}
	wm.LastDate, _ = time.Parse(dateFormat, dateStr)
	wm.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return wm, nil
}

// Commit upserts the watermark but only ever forward. The monotonic guard
// lives in the statement itself, not in caller discipline: an update with an
// earlier date matches zero rows and reports applied=false.
func (r *Repository) Commit(ctx context.Context, process string, date time.Time, cursor string) (bool, error) {
	const query = `INSERT INTO etl_watermarks (process_name, last_date, last_cursor, updated_at)
		VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		ON CONFLICT(process_name) DO UPDATE SET
			last_date = excluded.last_date,
			last_cursor = excluded.last_cursor,
			updated_at = excluded.updated_at
		WHERE excluded.last_date > etl_watermarks.last_date`

	var cursorArg any
	if cursor != "" {
		cursorArg = cursor
	}

	res, err := r.db.ExecContext(ctx, query, process, date.Format(dateFormat), cursorArg)
	if err != nil {
		return false, fmt.Errorf("commit watermark: %w", err)
	}

	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repository) Delete(ctx context.Context, process string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM etl_watermarks WHERE process_name = ?`, process); err != nil {
		return fmt.Errorf("delete watermark: %w", err)
	}
	return nil
}
