// Package activity holds the sqlite-backed source-log extractor and the
// summary-table loaders used by the pipelines.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gagassurya19/backend-celoeapi-sub001/internal/pipeline"
)

const timeFormat = "2006-01-02T15:04:05Z"

// LogExtractor reads the append-only activity log in id-ordered pages.
// The log is read-only from the ETL's perspective.
type LogExtractor struct {
	db *sql.DB
}

func NewLogExtractor(db *sql.DB) *LogExtractor {
	return &LogExtractor{db: db}
}

func (e *LogExtractor) CountRows(ctx context.Context, day time.Time) (int64, error) {
	const query = `SELECT COUNT(*) FROM activity_logs WHERE created_at >= ? AND created_at < ?`

	var n int64
	from, to := dayBounds(day)
	if err := e.db.QueryRowContext(ctx, query, from, to).Scan(&n); err != nil {
		return 0, fmt.Errorf("count activity rows: %w", err)
	}
	return n, nil
}

// FetchPage returns up to limit rows at offset within the day, ordered by
// row id so that re-reading an offset yields the same partition.
func (e *LogExtractor) FetchPage(ctx context.Context, day time.Time, offset, limit int64) ([]pipeline.Row, error) {
	const query = `SELECT id, course_id, user_id, activity_type, action, created_at
		FROM activity_logs
		WHERE created_at >= ? AND created_at < ?
		ORDER BY id ASC
		LIMIT ? OFFSET ?`

	from, to := dayBounds(day)
	rows, err := e.db.QueryContext(ctx, query, from, to, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch activity page: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []pipeline.Row
	for rows.Next() {
		var r pipeline.Row
		var createdStr string
		if err := rows.Scan(&r.ID, &r.CourseID, &r.UserID, &r.ActivityType, &r.Action, &createdStr); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		out = append(out, r)
	}
	return out, rows.Err()
}

func dayBounds(day time.Time) (string, string) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return start.Format(timeFormat), start.AddDate(0, 0, 1).Format(timeFormat)
}
