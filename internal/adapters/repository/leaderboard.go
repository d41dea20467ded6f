package repository

import (
	"context"
	"math"
	"sync"

	"github.com/opsboard/pulse/internal/domain/period"
	"github.com/opsboard/pulse/internal/domain/scoring"
	"github.com/opsboard/pulse/internal/domain/types"
	"github.com/opsboard/pulse/pkg/metrics"
)

// Ranking holds composite-score leaderboards, one per period and score kind.
type Ranking interface {
	// Set records subject's latest score, replacing any earlier one.
	Set(ctx context.Context, p period.Key, kind scoring.Kind, subjectID string, score float64) error
	// Remove drops subject from the board; removing an absent subject succeeds.
	Remove(ctx context.Context, p period.Key, kind scoring.Kind, subjectID string) error
	// Rank returns subject's entry, or ErrNotFound.
	Rank(ctx context.Context, p period.Key, kind scoring.Kind, subjectID string) (types.Entry, error)
	// TopN returns up to n entries, best first.
	TopN(ctx context.Context, p period.Key, kind scoring.Kind, n int) ([]types.Entry, error)
	Count(ctx context.Context, p period.Key, kind scoring.Kind) int
}

type boardKey struct {
	period period.Key
	kind   scoring.Kind
}

type board struct {
	root *node
	byID map[string]float64
}

// Leaderboards is an in-memory Ranking backed by one treap per board.
type Leaderboards struct {
	mu     sync.RWMutex
	boards map[boardKey]*board
}

var _ Ranking = (*Leaderboards)(nil)

// NewLeaderboards creates an empty ranking.
func NewLeaderboards() *Leaderboards {
	return &Leaderboards{boards: make(map[boardKey]*board)}
}

// Set implements Ranking. Non-finite scores are ignored.
func (l *Leaderboards) Set(_ context.Context, p period.Key, kind scoring.Kind, subjectID string, score float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil
	}
	key := boardKey{p, kind}

	l.mu.Lock()
	b, ok := l.boards[key]
	if !ok {
		b = &board{byID: make(map[string]float64)}
		l.boards[key] = b
	}
	if old, ok := b.byID[subjectID]; ok {
		if old == score {
			l.mu.Unlock()
			return nil
		}
		b.root = deleteNode(b.root, subjectID, old)
	}
	b.byID[subjectID] = score
	b.root = insert(b.root, subjectID, score)
	count := len(b.byID)
	l.mu.Unlock()

	metrics.UpdateLeaderboardSize(string(kind), count)
	return nil
}

// Remove implements Ranking.
func (l *Leaderboards) Remove(_ context.Context, p period.Key, kind scoring.Kind, subjectID string) error {
	key := boardKey{p, kind}

	l.mu.Lock()
	b, ok := l.boards[key]
	if !ok {
		l.mu.Unlock()
		return nil
	}
	old, ok := b.byID[subjectID]
	if !ok {
		l.mu.Unlock()
		return nil
	}
	b.root = deleteNode(b.root, subjectID, old)
	delete(b.byID, subjectID)
	count := len(b.byID)
	if count == 0 {
		delete(l.boards, key)
	}
	l.mu.Unlock()

	metrics.UpdateLeaderboardSize(string(kind), count)
	return nil
}

// Rank implements Ranking.
func (l *Leaderboards) Rank(_ context.Context, p period.Key, kind scoring.Kind, subjectID string) (types.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.boards[boardKey{p, kind}]
	if !ok {
		return types.Entry{}, ErrNotFound
	}
	if _, ok := b.byID[subjectID]; !ok {
		return types.Entry{}, ErrNotFound
	}
	all := make([]types.Entry, 0, len(b.byID))
	collect(b.root, len(b.byID), &all)
	assignRanks(all)
	for _, e := range all {
		if e.SubjectID == subjectID {
			return decorate(e), nil
		}
	}
	return types.Entry{}, ErrNotFound
}

// TopN implements Ranking.
func (l *Leaderboards) TopN(_ context.Context, p period.Key, kind scoring.Kind, n int) ([]types.Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.boards[boardKey{p, kind}]
	if !ok {
		return []types.Entry{}, nil
	}
	out := make([]types.Entry, 0, min(n, len(b.byID)))
	collect(b.root, n, &out)
	assignRanks(out)
	for i := range out {
		out[i] = decorate(out[i])
	}
	return out, nil
}

// Count implements Ranking.
func (l *Leaderboards) Count(_ context.Context, p period.Key, kind scoring.Kind) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.boards[boardKey{p, kind}]; ok {
		return len(b.byID)
	}
	return 0
}

func decorate(e types.Entry) types.Entry {
	e.Display = int(math.Round(e.Score))
	e.Grade = scoring.Grade(e.Score)
	return e
}
