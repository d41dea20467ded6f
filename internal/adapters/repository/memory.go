// Package repository holds the in-memory collaborators and the leaderboard.
package repository

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/opsboard/pulse/internal/domain/draft"
	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/internal/domain/period"
	"github.com/opsboard/pulse/internal/domain/scoring"
)

// MemoryDrafts is a draft.Persistence kept in a map.
type MemoryDrafts struct {
	mu   sync.RWMutex
	rows map[model.Identity]draft.Payload
}

var _ draft.Persistence = (*MemoryDrafts)(nil)

// NewMemoryDrafts creates an empty draft map.
func NewMemoryDrafts() *MemoryDrafts {
	return &MemoryDrafts{rows: make(map[model.Identity]draft.Payload)}
}

// Upsert implements draft.Persistence.
func (m *MemoryDrafts) Upsert(_ context.Context, p draft.Payload) error {
	p.Fields = p.Fields.Clone()
	m.mu.Lock()
	m.rows[p.Identity] = p
	m.mu.Unlock()
	return nil
}

// Fetch implements draft.Persistence.
func (m *MemoryDrafts) Fetch(_ context.Context, id model.Identity) (draft.Payload, bool, error) {
	m.mu.RLock()
	p, ok := m.rows[id]
	m.mu.RUnlock()
	if !ok {
		return draft.Payload{}, false, nil
	}
	p.Fields = p.Fields.Clone()
	return p, true, nil
}

// Delete implements draft.Persistence.
func (m *MemoryDrafts) Delete(_ context.Context, id model.Identity) error {
	m.mu.Lock()
	delete(m.rows, id)
	m.mu.Unlock()
	return nil
}

// MemorySubmissions stores final submissions in a map.
type MemorySubmissions struct {
	mu   sync.RWMutex
	rows map[model.Identity]model.Submission
}

// NewMemorySubmissions creates an empty submission map.
func NewMemorySubmissions() *MemorySubmissions {
	return &MemorySubmissions{rows: make(map[model.Identity]model.Submission)}
}

// Upsert stores s, replacing an earlier submission for the same identity.
func (m *MemorySubmissions) Upsert(_ context.Context, s model.Submission) error {
	s.Fields = s.Fields.Clone()
	m.mu.Lock()
	m.rows[s.Identity] = s
	m.mu.Unlock()
	return nil
}

// Fetch returns the submission for id; found is false when absent.
func (m *MemorySubmissions) Fetch(_ context.Context, id model.Identity) (model.Submission, bool, error) {
	m.mu.RLock()
	s, ok := m.rows[id]
	m.mu.RUnlock()
	if !ok {
		return model.Submission{}, false, nil
	}
	s.Fields = s.Fields.Clone()
	return s, true, nil
}

// Exists reports whether a submission is stored for id.
func (m *MemorySubmissions) Exists(_ context.Context, id model.Identity) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rows[id]
	return ok, nil
}

type metricKey struct {
	subject string
	period  period.Key
}

// MemoryMetrics is a scoring.MetricStore kept in a map.
type MemoryMetrics struct {
	mu   sync.RWMutex
	rows map[metricKey]model.MetricRecord
}

var _ scoring.MetricStore = (*MemoryMetrics)(nil)

// NewMemoryMetrics creates an empty metric history.
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{rows: make(map[metricKey]model.MetricRecord)}
}

// Upsert implements scoring.MetricStore.
func (m *MemoryMetrics) Upsert(_ context.Context, rec model.MetricRecord) error {
	rec.Values = maps.Clone(rec.Values)
	m.mu.Lock()
	m.rows[metricKey{rec.SubjectID, rec.Period}] = rec
	m.mu.Unlock()
	return nil
}

// Record implements scoring.HistorySource.
func (m *MemoryMetrics) Record(_ context.Context, subjectID string, p period.Key) (model.MetricRecord, bool, error) {
	m.mu.RLock()
	rec, ok := m.rows[metricKey{subjectID, p}]
	m.mu.RUnlock()
	if !ok {
		return model.MetricRecord{}, false, nil
	}
	rec.Values = maps.Clone(rec.Values)
	return rec, true, nil
}

// Records implements scoring.HistorySource.
func (m *MemoryMetrics) Records(_ context.Context, subjectID string, from, to period.Key) ([]model.MetricRecord, error) {
	m.mu.RLock()
	out := make([]model.MetricRecord, 0)
	for k, rec := range m.rows {
		if k.subject != subjectID || k.period.Before(from) || k.period.After(to) {
			continue
		}
		rec.Values = maps.Clone(rec.Values)
		out = append(out, rec)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out, nil
}
