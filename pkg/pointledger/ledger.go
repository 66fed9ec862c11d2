package pointledger

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yourusername/pointledger/core"
	"github.com/yourusername/pointledger/store"
)

const (
	// DefaultPageSize is the number of pairs fetched per store round trip by Scan*
	DefaultPageSize = 100

	// maxTombstoneWriters caps concurrent deletion-log writes during a phased reap
	maxTombstoneWriters = 16
)

// Entry is a key and its current value
type Entry struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// Change is the result of Add
type Change struct {
	Key    string  `json:"key"`
	Value  float64 `json:"value"`
	Change float64 `json:"change"`
}

// Deletion is the result of Delete
type Deletion struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted"`
}

// Observer is notified after every ledger operation.
// err is nil on success.
type Observer interface {
	ObserveOp(ledger, op string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveOp(string, string, time.Duration, error) {}

// Ledger is a named, range-bounded score set.
//
// A Ledger holds no locks of its own. Uniqueness of keys, bounded
// increments and reaping rely on the atomic primitives of its ScoreStore,
// so any number of Ledger values (in any number of processes) may share
// one name on one backend.
type Ledger struct {
	name      string
	bounds    core.Bounds
	validator core.Validator
	codec     KeyCodec
	scores    store.ScoreStore
	audit     auditLog
	logger    *slog.Logger
	observer  Observer
	pageSize  int64

	// construction-only settings
	hasBounds bool
	policy    core.KeyPolicy
	logging   bool
	logs      store.LogStore
	now       func() time.Time
}

// New creates a Ledger from options. Name, bounds, codec, key policy and
// store are required; a missing or malformed setting fails with
// ErrInvalidConfig and no ledger is returned.
//
// Example:
//
//	points, err := pointledger.New(
//	    pointledger.WithName("points"),
//	    pointledger.WithBounds(0, 150),
//	    pointledger.WithCodec(pointledger.IdentityCodec()),
//	    pointledger.WithKeyPolicy(core.FixedLength(8)),
//	    pointledger.WithStore(store.NewMemoryStore()),
//	    pointledger.WithLogging(true),
//	)
func New(opts ...Option) (*Ledger, error) {
	l := &Ledger{
		logger:   slog.Default(),
		observer: nopObserver{},
		pageSize: DefaultPageSize,
		now:      time.Now,
	}

	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	switch {
	case l.name == "":
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	case !l.hasBounds:
		return nil, fmt.Errorf("%w: bounds are required", ErrInvalidConfig)
	case l.codec == nil:
		return nil, fmt.Errorf("%w: key codec is required", ErrInvalidConfig)
	case l.policy == nil:
		return nil, fmt.Errorf("%w: key policy is required", ErrInvalidConfig)
	case l.scores == nil:
		return nil, fmt.Errorf("%w: score store is required", ErrInvalidConfig)
	}

	l.validator = core.NewValidator(l.bounds, l.policy)
	l.audit = noAudit{}
	if l.logging {
		logs := l.logs
		if logs == nil {
			ls, ok := l.scores.(store.LogStore)
			if !ok {
				return nil, fmt.Errorf("%w: logging needs a log store", ErrInvalidConfig)
			}
			logs = ls
		}
		l.audit = newStoreAudit(l.name, logs, l.now)
	}
	l.logger = l.logger.With("ledger", l.name)

	return l, nil
}

// Name returns the ledger's namespace
func (l *Ledger) Name() string { return l.name }

// Bounds returns the ledger's inclusive value range
func (l *Ledger) Bounds() core.Bounds { return l.bounds }

// LoggingEnabled reports whether creations and deletions are audited
func (l *Ledger) LoggingEnabled() bool { return l.audit.enabled() }

// Create inserts key with value. It fails with ErrConflictExists when the
// key is present and, with logging enabled, with ErrConflictTombstoned
// when the key was ever deleted.
func (l *Ledger) Create(ctx context.Context, key string, value float64, reason string) (entry Entry, err error) {
	const op = "create"
	defer l.observe(op, time.Now(), &err)

	if err := l.validator.AssertKey(key, op); err != nil {
		return Entry{}, err
	}
	if err := l.validator.AssertRange(value, op); err != nil {
		return Entry{}, err
	}
	encoded := l.codec.Encode(key)

	tombstoned, err := l.audit.inDeleteLog(ctx, encoded)
	if err != nil {
		return Entry{}, core.StoreError(op, err)
	}
	if tombstoned {
		return Entry{}, core.NewError(op, core.ErrConflictTombstoned, "key %q", key)
	}

	added, err := l.scores.AddIfAbsent(ctx, l.name, encoded, value)
	if err != nil {
		return Entry{}, core.StoreError(op, err)
	}
	if !added {
		return Entry{}, core.NewError(op, core.ErrConflictExists, "key %q", key)
	}

	// The entry exists at this point; a lost creation record is reported, not returned.
	if _, err := l.audit.insert(ctx, l.audit.createLog(), encoded, reason); err != nil {
		l.logger.ErrorContext(ctx, "creation record not written", "op", op, "key", key, "error", err)
	}

	l.logger.DebugContext(ctx, "entry created", "op", op, "key", key, "value", value)
	return Entry{Key: key, Value: value}, nil
}

// Get returns the current value of key
func (l *Ledger) Get(ctx context.Context, key string) (entry Entry, err error) {
	const op = "get"
	defer l.observe(op, time.Now(), &err)

	if err := l.validator.AssertKey(key, op); err != nil {
		return Entry{}, err
	}

	raw, found, err := l.scores.Score(ctx, l.name, l.codec.Encode(key))
	if err != nil {
		return Entry{}, core.StoreError(op, err)
	}
	value, err := core.ParseNumber(raw, found, op)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Key: key, Value: value}, nil
}

// Add adjusts key by change. The existence check, the range check and the
// increment are one atomic store step, so a rejected Add leaves the stored
// value untouched even under concurrent writers.
func (l *Ledger) Add(ctx context.Context, key string, change float64) (result Change, err error) {
	const op = "add"
	defer l.observe(op, time.Now(), &err)

	if err := l.validator.AssertKey(key, op); err != nil {
		return Change{}, err
	}
	if math.IsNaN(change) || math.IsInf(change, 0) {
		return Change{}, core.NewError(op, core.ErrNonNumericChange, "%v", change)
	}

	res, err := l.scores.IncrWithin(ctx, l.name, l.codec.Encode(key), change, l.bounds)
	if err != nil {
		return Change{}, core.StoreError(op, err)
	}

	switch res.Outcome {
	case store.IncrMissing:
		return Change{}, core.NewError(op, core.ErrNonExistentKey, "key %q", key)
	case store.IncrCorrupt:
		return Change{}, core.NewError(op, core.ErrNonNumericValue, "stored score %q", res.Raw)
	case store.IncrAbove:
		return Change{}, core.NewError(op, core.ErrAboveMax, "%s exceeds max %s", res.Raw, core.FormatScore(l.bounds.Max))
	case store.IncrBelow:
		return Change{}, core.NewError(op, core.ErrBelowMin, "%s is under min %s", res.Raw, core.FormatScore(l.bounds.Min))
	}

	value, err := core.ParseNumber(res.Raw, true, op)
	if err != nil {
		return Change{}, err
	}
	return Change{Key: key, Value: value, Change: change}, nil
}

// Delete removes key. Deleting an absent key reports Deleted=false and
// writes nothing. With logging enabled a deletion record is written, which
// blocks any later Create of the key.
func (l *Ledger) Delete(ctx context.Context, key, reason string) (result Deletion, err error) {
	const op = "delete"
	defer l.observe(op, time.Now(), &err)

	if err := l.validator.AssertKey(key, op); err != nil {
		return Deletion{}, err
	}
	encoded := l.codec.Encode(key)

	removed, err := l.scores.Remove(ctx, l.name, encoded)
	if err != nil {
		return Deletion{}, core.StoreError(op, err)
	}
	if removed == 0 {
		return Deletion{Key: key, Deleted: false}, nil
	}

	if _, err := l.audit.insert(ctx, l.audit.deleteLog(), encoded, reason); err != nil {
		return Deletion{Key: key, Deleted: true},
			core.StoreError(op, fmt.Errorf("key removed but deletion record not written: %w", err))
	}

	l.logger.DebugContext(ctx, "entry deleted", "op", op, "key", key)
	return Deletion{Key: key, Deleted: true}, nil
}

// GetAllPairs returns the pairs within r ordered by ascending value, with
// keys decoded. Use core.All() for the whole ledger.
func (l *Ledger) GetAllPairs(ctx context.Context, r core.Range) ([]core.Pair, error) {
	return l.pairs(ctx, "getAllPairs", r, l.codec.Decode)
}

// GetAllRawPairs is GetAllPairs with keys as stored
func (l *Ledger) GetAllRawPairs(ctx context.Context, r core.Range) ([]core.Pair, error) {
	return l.pairs(ctx, "getAllRawPairs", r, nil)
}

func (l *Ledger) pairs(ctx context.Context, op string, r core.Range, decode func(string) string) (pairs []core.Pair, err error) {
	defer l.observe(op, time.Now(), &err)

	pairs, err = l.scores.RangeByScore(ctx, l.name, r, 0, -1)
	if err != nil {
		return nil, core.StoreError(op, err)
	}
	if decode != nil {
		for i := range pairs {
			pairs[i].Key = decode(pairs[i].Key)
		}
	}
	return pairs, nil
}

// ScanPairs lazily yields the pairs within r, fetching one page per store
// round trip. Every iteration issues a fresh query, so the sequence can be
// ranged over again to observe the current contents. Pages are addressed by
// offset; writes during an iteration may shift entries across page borders.
func (l *Ledger) ScanPairs(ctx context.Context, r core.Range) iter.Seq2[core.Pair, error] {
	return l.scan(ctx, "scanPairs", r, l.codec.Decode)
}

// ScanRawPairs is ScanPairs with keys as stored
func (l *Ledger) ScanRawPairs(ctx context.Context, r core.Range) iter.Seq2[core.Pair, error] {
	return l.scan(ctx, "scanRawPairs", r, nil)
}

func (l *Ledger) scan(ctx context.Context, op string, r core.Range, decode func(string) string) iter.Seq2[core.Pair, error] {
	return func(yield func(core.Pair, error) bool) {
		var offset int64
		for {
			page, err := l.scores.RangeByScore(ctx, l.name, r, offset, l.pageSize)
			if err != nil {
				yield(core.Pair{}, core.StoreError(op, err))
				return
			}
			for _, p := range page {
				if decode != nil {
					p.Key = decode(p.Key)
				}
				if !yield(p, nil) {
					return
				}
			}
			if int64(len(page)) < l.pageSize {
				return
			}
			offset += int64(len(page))
		}
	}
}

// BelowMinRange selects every value strictly less than min
func (l *Ledger) BelowMinRange() core.Range { return core.Below(l.bounds.Min) }

// AboveMaxRange selects every value strictly greater than max
func (l *Ledger) AboveMaxRange() core.Range { return core.Above(l.bounds.Max) }

// Reap removes every entry below min and returns how many were removed.
// With logging enabled each reaped key gets a deletion record carrying
// reason. When the score store also holds the logs and implements
// store.Reaper, records and removal are one atomic step; otherwise the
// records are written first and the range is deleted after all of them
// have landed, so an interruption can leave a record for a key that is
// still present (Create stays blocked for it, which is harmless).
func (l *Ledger) Reap(ctx context.Context, reason string) (count int64, err error) {
	const op = "reap"
	defer l.observe(op, time.Now(), &err)

	r := l.BelowMinRange()

	switch reaper, ok := l.scores.(store.Reaper); {
	case !l.audit.enabled():
		count, err = l.scores.RemoveRangeByScore(ctx, l.name, r)
	case ok && l.audit.backedBy(l.scores):
		count, err = reaper.ReapRange(ctx, l.name, r, l.audit.deleteLog(), l.audit.record(reason))
	default:
		count, err = l.reapInPhases(ctx, r, reason)
	}
	if err != nil {
		return 0, core.StoreError(op, err)
	}

	if count > 0 {
		l.logger.InfoContext(ctx, "entries reaped", "op", op, "count", count, "reason", reason)
	}
	return count, nil
}

// reapInPhases enumerates the doomed keys, tombstones them concurrently and
// then range deletes.
func (l *Ledger) reapInPhases(ctx context.Context, r core.Range, reason string) (int64, error) {
	doomed, err := l.scores.RangeByScore(ctx, l.name, r, 0, -1)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxTombstoneWriters)
	for _, p := range doomed {
		g.Go(func() error {
			_, err := l.audit.insert(gctx, l.audit.deleteLog(), p.Key, reason)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("writing deletion records: %w", err)
	}

	return l.scores.RemoveRangeByScore(ctx, l.name, r)
}

// observe reports a finished operation to the observer
func (l *Ledger) observe(op string, start time.Time, err *error) {
	l.observer.ObserveOp(l.name, op, time.Since(start), *err)
}
