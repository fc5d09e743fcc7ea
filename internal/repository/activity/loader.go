package activity

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gagassurya19/backend-celoeapi-sub001/internal/pipeline"
)

const dateFormat = "2006-01-02"

// SummaryLoader upserts per-entity daily totals into one summary table. The
// same loader serves every pipeline; only the table and key column differ.
// The upsert is keyed by the table's (entity, extraction_date) unique
// constraint: values are replaced in place, never appended and never
// deleted first, so a retried window is invisible to readers.
type SummaryLoader struct {
	db             *sql.DB
	table          string
	keyColumn      string
	distinctColumn string
}

// NewCourseSummaryLoader writes course_activity_summary keyed by course,
// with active_users as the distinct metric.
func NewCourseSummaryLoader(db *sql.DB) *SummaryLoader {
	return &SummaryLoader{
		db:             db,
		table:          "course_activity_summary",
		keyColumn:      "course_id",
		distinctColumn: "active_users",
	}
}

// NewStudentSummaryLoader writes student_activity_summary keyed by user,
// with active_courses as the distinct metric.
func NewStudentSummaryLoader(db *sql.DB) *SummaryLoader {
	return &SummaryLoader{
		db:             db,
		table:          "student_activity_summary",
		keyColumn:      "user_id",
		distinctColumn: "active_courses",
	}
}

func (l *SummaryLoader) Load(ctx context.Context, date time.Time, totals map[int64]*pipeline.Totals) (pipeline.LoadResult, error) {
	var res pipeline.LoadResult
	if len(totals) == 0 {
		return res, nil
	}

	dateStr := date.Format(dateFormat)

	existing, err := l.existingKeys(ctx, dateStr)
	if err != nil {
		return res, err
	}

	keys := make([]int64, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	const batchSize = 500
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := l.upsertBatch(ctx, dateStr, keys[i:end], totals); err != nil {
			return res, err
		}
	}

	for _, k := range keys {
		if existing[k] {
			res.Updated++
		} else {
			res.Inserted++
		}
	}
	return res, nil
}

func (l *SummaryLoader) upsertBatch(ctx context.Context, dateStr string, keys []int64, totals map[int64]*pipeline.Totals) error {
	placeholders := make([]string, len(keys))
	args := make([]any, 0, len(keys)*9)
	for i, k := range keys {
		t := totals[k]
		placeholders[i] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))"
		args = append(args, k, dateStr,
			t.FileViews, t.VideoViews, t.ForumViews, t.QuizViews,
			t.AssignmentViews, t.URLViews, t.DistinctActive(),
		)
	}

	query := fmt.Sprintf( //nolint:gosec // table and column names are fixed at construction
		`INSERT INTO %s (%s, extraction_date, file_views, video_views, forum_views,
			quiz_views, assignment_views, url_views, %s, updated_at)
		VALUES %s
		ON CONFLICT(%s, extraction_date) DO UPDATE SET
			file_views = excluded.file_views,
			video_views = excluded.video_views,
			forum_views = excluded.forum_views,
			quiz_views = excluded.quiz_views,
			assignment_views = excluded.assignment_views,
			url_views = excluded.url_views,
			%s = excluded.%s,
			updated_at = excluded.updated_at`,
		l.table, l.keyColumn, l.distinctColumn,
		strings.Join(placeholders, ", "),
		l.keyColumn, l.distinctColumn, l.distinctColumn,
	)

	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", l.table, err)
	}
	return nil
}

func (l *SummaryLoader) existingKeys(ctx context.Context, dateStr string) (map[int64]bool, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE extraction_date = ?`, l.keyColumn, l.table) //nolint:gosec // fixed identifiers

	rows, err := l.db.QueryContext(ctx, query, dateStr)
	if err != nil {
		return nil, fmt.Errorf("existing keys %s: %w", l.table, err)
	}
	defer func() { _ = rows.Close() }()

	existing := make(map[int64]bool)
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		existing[k] = true
	}
	return existing, rows.Err()
}

func (l *SummaryLoader) Truncate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, "DELETE FROM "+l.table); err != nil { //nolint:gosec // fixed identifier
		return fmt.Errorf("truncate %s: %w", l.table, err)
	}
	return nil
}
