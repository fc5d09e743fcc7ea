// Package pipeline implements the generic extract/aggregate/load flow.
// Each data domain (course activity, student activity, ...) is one Pipeline
// value: the same pagination, aggregation and upsert machinery parameterized
// by entity key and target table.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Row is one raw source log row.
type Row struct {
	ID           int64
	CourseID     int64
	UserID       int64
	ActivityType string
	Action       string
	CreatedAt    time.Time
}

// Activity types recognized by the aggregator. Anything else is counted
// toward the distinct-active metric only.
const (
	TypeFile       = "file"
	TypeVideo      = "video"
	TypeForum      = "forum"
	TypeQuiz       = "quiz"
	TypeAssignment = "assignment"
	TypeURL        = "url"
)

// Extractor pulls raw rows for a single day in fixed-size pages ordered by
// row id, so a restart at a known offset reproduces the same partition.
type Extractor interface {
	CountRows(ctx context.Context, day time.Time) (int64, error)
	FetchPage(ctx context.Context, day time.Time, offset, limit int64) ([]Row, error)
}

// LoadResult reports how many summary rows were newly inserted versus
// overwritten.
type LoadResult struct {
	Inserted int64 `json:"inserted"`
	Updated  int64 `json:"updated"`
}

// Loader writes per-entity totals for one day with an idempotent upsert
// keyed by (entity id, extraction date). Re-loading the same day replaces
// values and never double-counts.
type Loader interface {
	Load(ctx context.Context, date time.Time, totals map[int64]*Totals) (LoadResult, error)
	Truncate(ctx context.Context) error
}

// Pipeline binds one data domain to the generic machinery.
type Pipeline struct {
	// Name is the watermark process name.
	Name string
	// Key maps a row to the entity the totals are keyed by.
	Key func(Row) int64
	// Distinct maps a row to the id counted by the distinct-active metric
	// (users per course, courses per student).
	Distinct func(Row) int64

	Extractor Extractor
	Loader    Loader
}

// Registry holds the configured pipelines.
type Registry struct {
	mu    sync.RWMutex
	byName map[string]*Pipeline
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Pipeline)}
}

func (r *Registry) Register(p *Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[p.Name]; !ok {
		r.order = append(r.order, p.Name)
	}
	r.byName[p.Name] = p
}

func (r *Registry) Get(name string) (*Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("pipeline not found: %s", name)
	}
	return p, nil
}

// All returns the pipelines in registration order.
func (r *Registry) All() []*Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Pipeline, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
