package store

import (
	"context"

	"github.com/yourusername/pointledger/core"
)

// IncrOutcome describes the result of a bounded increment
type IncrOutcome int

const (
	IncrApplied IncrOutcome = iota // Increment applied, Raw holds the new score
	IncrMissing                    // Member absent, nothing changed
	IncrAbove                      // Result would exceed max, nothing changed
	IncrBelow                      // Result would fall below min, nothing changed
	IncrCorrupt                    // Stored score is not a number, nothing changed
)

// IncrResult is returned by ScoreStore.IncrWithin
type IncrResult struct {
	Outcome IncrOutcome
	Raw     string // New score when applied, otherwise the rejected result or stored value
}

// ScoreStore is an ordered member/score structure holding many named sets
type ScoreStore interface {
	// AddIfAbsent inserts member with score only if absent. Reports whether it inserted.
	AddIfAbsent(ctx context.Context, set, member string, score float64) (bool, error)

	// Score reads the raw score of member. found=false when absent.
	Score(ctx context.Context, set, member string) (raw string, found bool, err error)

	// IncrBy adds delta to an existing member with no bounds check. found=false
	// when absent (nothing written). Ledger writes go through IncrWithin; this
	// is for maintenance and for seeding out-of-range values in tests.
	IncrBy(ctx context.Context, set, member string, delta float64) (raw string, found bool, err error)

	// IncrWithin adds delta only if member exists and the result stays in bounds,
	// as one atomic step.
	IncrWithin(ctx context.Context, set, member string, delta float64, bounds core.Bounds) (IncrResult, error)

	// Remove deletes member and returns the number removed (0 or 1)
	Remove(ctx context.Context, set, member string) (int64, error)

	// RangeByScore returns members within r in ascending score order.
	// count < 0 means no limit.
	RangeByScore(ctx context.Context, set string, r core.Range, offset, count int64) ([]core.Pair, error)

	// RemoveRangeByScore deletes all members within r and returns how many were removed
	RemoveRangeByScore(ctx context.Context, set string, r core.Range) (int64, error)

	// UnionStore writes the weighted sum of the sources into dest, replacing it,
	// and returns the member count of dest.
	UnionStore(ctx context.Context, dest string, sources []string, weights []float64) (int64, error)
}

// LogStore is a hash-like structure of records keyed by field
type LogStore interface {
	// SetField writes value, overwriting any previous value
	SetField(ctx context.Context, log, field, value string) error

	// GetField reads a value. found=false when absent.
	GetField(ctx context.Context, log, field string) (value string, found bool, err error)

	// HasField reports whether field exists
	HasField(ctx context.Context, log, field string) (bool, error)
}

// Reaper is implemented by stores that hold both scores and logs and can
// record a tombstone for every member in a range and remove them atomically.
type Reaper interface {
	ReapRange(ctx context.Context, set string, r core.Range, log, record string) (int64, error)
}
