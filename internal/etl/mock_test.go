package etl

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gagassurya19/backend-celoeapi-sub001/internal/apperror"
)

// mockRepo is an in-memory ledger with the same conditional-write semantics
// as the sqlite repository.
type mockRepo struct {
	mu     sync.Mutex
	jobs   map[int64]*Job
	nextID int64

	reapCutoff  time.Time
	reapMessage string
	reapCount   int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{jobs: make(map[int64]*Job), nextID: 1}
}

func (m *mockRepo) CreateExclusive(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.jobs {
		if other.Kind == j.Kind && !other.Status.Terminal() {
			return apperror.New(apperror.Conflict, "a job of this kind is already active")
		}
	}
	j.ID = m.nextID
	m.nextID++
	j.Status = StatusQueued
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *mockRepo) Get(_ context.Context, id int64) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, apperror.New(apperror.NotFound, "job not found")
	}
	cp := *j
	return &cp, nil
}

func (m *mockRepo) Latest(_ context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Job
	for _, j := range m.jobs {
		if latest == nil || j.ID > latest.ID {
			latest = j
		}
	}
	if latest == nil {
		return nil, apperror.New(apperror.NotFound, "no jobs recorded")
	}
	cp := *latest
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int, status Status) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.jobs))
	for id, j := range m.jobs {
		if status != "" && j.Status != status {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	var out []Job
	for i, id := range ids {
		if i < offset {
			continue
		}
		if len(out) >= limit {
			break
		}
		out = append(out, *m.jobs[id])
	}
	return out, nil
}

func (m *mockRepo) ClaimQueued(_ context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *Job
	for _, j := range m.jobs {
		if j.Status != StatusQueued {
			continue
		}
		if oldest == nil || j.ID < oldest.ID {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	oldest.Status = StatusRunning
	oldest.StartedAt = &now
	cp := *oldest
	return &cp, nil
}

func (m *mockRepo) UpdateProgress(_ context.Context, id, offset, rowsDelta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.LastOffset = offset
		j.RowCount += rowsDelta
	}
	return nil
}

func (m *mockRepo) MarkFinished(_ context.Context, id int64, start, end *time.Time, rowCount int64, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status.Terminal() {
		return false, nil
	}
	now := time.Now().UTC()
	j.Status = StatusFinished
	j.ExtractedStartDate = start
	j.ExtractedEndDate = end
	j.RowCount = rowCount
	j.Message = message
	j.EndedAt = &now
	return true, nil
}

func (m *mockRepo) MarkFailed(_ context.Context, id int64, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status.Terminal() {
		return false, nil
	}
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.Message = message
	j.EndedAt = &now
	return true, nil
}

func (m *mockRepo) Reap(_ context.Context, cutoff time.Time, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapCutoff = cutoff
	m.reapMessage = message
	var n int64
	for _, j := range m.jobs {
		if j.Status == StatusRunning && j.StartedAt != nil && j.StartedAt.Before(cutoff) {
			j.Status = StatusFailed
			j.Message = message
			n++
		}
	}
	m.reapCount = n
	return n, nil
}

func (m *mockRepo) FailAllRunning(_ context.Context, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.Status == StatusRunning {
			j.Status = StatusFailed
			j.Message = message
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) RequeueInterrupted(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.Status == StatusRunning {
			j.Status = StatusQueued
			j.StartedAt = nil
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) Clear(_ context.Context, keepID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.jobs {
		if id != keepID {
			delete(m.jobs, id)
		}
	}
	return nil
}
