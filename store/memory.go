package store

import (
	"context"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/yourusername/pointledger/core"
)

// MemoryStore provides thread-safe in-memory score sets and logs.
// Single-set operations lock only their set; UnionStore locks the whole store.
type MemoryStore struct {
	mu   sync.RWMutex
	sets *xsync.MapOf[string, *scoreSet]
	logs *xsync.MapOf[string, *xsync.MapOf[string, string]]
}

// scoreSet is one named member/score set
type scoreSet struct {
	mu     sync.Mutex
	scores map[string]float64
}

// Ensure MemoryStore implements the store interfaces
var (
	_ ScoreStore = (*MemoryStore)(nil)
	_ LogStore   = (*MemoryStore)(nil)
	_ Reaper     = (*MemoryStore)(nil)
)

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sets: xsync.NewMapOf[string, *scoreSet](),
		logs: xsync.NewMapOf[string, *xsync.MapOf[string, string]](),
	}
}

func (s *MemoryStore) set(name string) *scoreSet {
	set, _ := s.sets.LoadOrCompute(name, func() *scoreSet {
		return &scoreSet{scores: make(map[string]float64)}
	})
	return set
}

func (s *MemoryStore) log(name string) *xsync.MapOf[string, string] {
	log, _ := s.logs.LoadOrCompute(name, func() *xsync.MapOf[string, string] {
		return xsync.NewMapOf[string, string]()
	})
	return log
}

// withSet runs fn with the named set locked
func (s *MemoryStore) withSet(name string, fn func(set *scoreSet)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.set(name)
	set.mu.Lock()
	defer set.mu.Unlock()
	fn(set)
}

// AddIfAbsent inserts member only if it is not already present
func (s *MemoryStore) AddIfAbsent(_ context.Context, name, member string, score float64) (bool, error) {
	var added bool
	s.withSet(name, func(set *scoreSet) {
		if _, exists := set.scores[member]; !exists {
			set.scores[member] = score
			added = true
		}
	})
	return added, nil
}

// Score reads the score of member
func (s *MemoryStore) Score(_ context.Context, name, member string) (string, bool, error) {
	var (
		raw   string
		found bool
	)
	s.withSet(name, func(set *scoreSet) {
		var v float64
		if v, found = set.scores[member]; found {
			raw = core.FormatScore(v)
		}
	})
	return raw, found, nil
}

// IncrBy adds delta to an existing member
func (s *MemoryStore) IncrBy(_ context.Context, name, member string, delta float64) (string, bool, error) {
	var (
		raw   string
		found bool
	)
	s.withSet(name, func(set *scoreSet) {
		var v float64
		if v, found = set.scores[member]; found {
			v += delta
			set.scores[member] = v
			raw = core.FormatScore(v)
		}
	})
	return raw, found, nil
}

// IncrWithin adds delta only when the result stays inside bounds
func (s *MemoryStore) IncrWithin(_ context.Context, name, member string, delta float64, bounds core.Bounds) (IncrResult, error) {
	var result IncrResult
	s.withSet(name, func(set *scoreSet) {
		v, found := set.scores[member]
		if !found {
			result = IncrResult{Outcome: IncrMissing}
			return
		}
		next := v + delta
		switch {
		case next > bounds.Max:
			result = IncrResult{Outcome: IncrAbove, Raw: core.FormatScore(next)}
		case next < bounds.Min:
			result = IncrResult{Outcome: IncrBelow, Raw: core.FormatScore(next)}
		default:
			set.scores[member] = next
			result = IncrResult{Outcome: IncrApplied, Raw: core.FormatScore(next)}
		}
	})
	return result, nil
}

// Remove deletes member from the set
func (s *MemoryStore) Remove(_ context.Context, name, member string) (int64, error) {
	var removed int64
	s.withSet(name, func(set *scoreSet) {
		if _, exists := set.scores[member]; exists {
			delete(set.scores, member)
			removed = 1
		}
	})
	return removed, nil
}

// RangeByScore returns members within r ordered by score, then member
func (s *MemoryStore) RangeByScore(_ context.Context, name string, r core.Range, offset, count int64) ([]core.Pair, error) {
	var pairs []core.Pair
	s.withSet(name, func(set *scoreSet) {
		pairs = inRange(set, r)
	})

	if offset >= int64(len(pairs)) {
		return []core.Pair{}, nil
	}
	if offset > 0 {
		pairs = pairs[offset:]
	}
	if count >= 0 && count < int64(len(pairs)) {
		pairs = pairs[:count]
	}
	return pairs, nil
}

// RemoveRangeByScore deletes all members within r
func (s *MemoryStore) RemoveRangeByScore(_ context.Context, name string, r core.Range) (int64, error) {
	var removed int64
	s.withSet(name, func(set *scoreSet) {
		for member, score := range set.scores {
			if r.Contains(score) {
				delete(set.scores, member)
				removed++
			}
		}
	})
	return removed, nil
}

// ReapRange tombstones and removes every member within r in one step
func (s *MemoryStore) ReapRange(_ context.Context, name string, r core.Range, log, record string) (int64, error) {
	var removed int64
	tombstones := s.log(log)
	s.withSet(name, func(set *scoreSet) {
		for member, score := range set.scores {
			if r.Contains(score) {
				tombstones.Store(member, record)
				delete(set.scores, member)
				removed++
			}
		}
	})
	return removed, nil
}

// UnionStore replaces dest with the weighted sum of the sources
func (s *MemoryStore) UnionStore(_ context.Context, dest string, sources []string, weights []float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := make(map[string]float64)
	for i, name := range sources {
		set, ok := s.sets.Load(name)
		if !ok {
			continue
		}
		for member, score := range set.scores {
			sum[member] += score * weights[i]
		}
	}

	if len(sum) == 0 {
		s.sets.Delete(dest)
		return 0, nil
	}
	s.sets.Store(dest, &scoreSet{scores: sum})
	return int64(len(sum)), nil
}

// SetField writes a log record
func (s *MemoryStore) SetField(_ context.Context, log, field, value string) error {
	s.log(log).Store(field, value)
	return nil
}

// GetField reads a log record
func (s *MemoryStore) GetField(_ context.Context, log, field string) (string, bool, error) {
	l, ok := s.logs.Load(log)
	if !ok {
		return "", false, nil
	}
	value, found := l.Load(field)
	return value, found, nil
}

// HasField reports whether a log record exists
func (s *MemoryStore) HasField(ctx context.Context, log, field string) (bool, error) {
	_, found, err := s.GetField(ctx, log, field)
	return found, err
}

// Clear removes all sets and logs
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets.Clear()
	s.logs.Clear()
}

// inRange collects matching pairs sorted by score, ties broken by member.
// Must be called with the set locked.
func inRange(set *scoreSet, r core.Range) []core.Pair {
	pairs := make([]core.Pair, 0, len(set.scores))
	for member, score := range set.scores {
		if r.Contains(score) {
			pairs = append(pairs, core.Pair{Key: member, Value: score})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value < pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})
	return pairs
}
