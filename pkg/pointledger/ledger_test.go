package pointledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/pointledger/core"
	"github.com/yourusername/pointledger/store"
)

var fixedTime = time.Date(2024, time.March, 9, 16, 4, 5, 0, time.UTC)

func newTestLedger(t *testing.T, logging bool, opts ...Option) (*Ledger, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	return newLedgerOn(t, s, logging, opts...), s
}

// newLedgerOn builds the points ledger (min 0, max 150) on s
func newLedgerOn(t *testing.T, s store.ScoreStore, logging bool, opts ...Option) *Ledger {
	t.Helper()
	base := []Option{
		WithName("points"),
		WithBounds(0, 150),
		WithCodec(IdentityCodec()),
		WithKeyPolicy(core.NonEmpty()),
		WithStore(s),
		WithLogging(logging),
		WithClock(func() time.Time { return fixedTime }),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	l, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l
}

func TestNew(t *testing.T) {
	s := store.NewMemoryStore()
	valid := []Option{
		WithName("points"),
		WithBounds(0, 150),
		WithCodec(IdentityCodec()),
		WithKeyPolicy(core.NonEmpty()),
		WithStore(s),
	}
	without := func(skip int) []Option {
		opts := make([]Option, 0, len(valid)-1)
		for i, o := range valid {
			if i != skip {
				opts = append(opts, o)
			}
		}
		return opts
	}

	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{name: "all required options", opts: valid},
		{name: "with logging on shared store", opts: append(without(-1), WithLogging(true))},
		{name: "missing name", opts: without(0), wantErr: true},
		{name: "missing bounds", opts: without(1), wantErr: true},
		{name: "missing codec", opts: without(2), wantErr: true},
		{name: "missing key policy", opts: without(3), wantErr: true},
		{name: "missing store", opts: without(4), wantErr: true},
		{name: "empty name", opts: append(without(0), WithName("")), wantErr: true},
		{name: "min above max", opts: append(without(1), WithBounds(10, 5)), wantErr: true},
		{name: "infinite max", opts: append(without(1), WithBounds(0, math.Inf(1))), wantErr: true},
		{name: "NaN min", opts: append(without(1), WithBounds(math.NaN(), 1)), wantErr: true},
		{name: "nil codec", opts: append(without(2), WithCodec(nil)), wantErr: true},
		{name: "nil policy", opts: append(without(3), WithKeyPolicy(nil)), wantErr: true},
		{name: "nil store", opts: append(without(4), WithStore(nil)), wantErr: true},
		{name: "zero page size", opts: append(without(-1), WithPageSize(0)), wantErr: true},
		{name: "nil logger", opts: append(without(-1), WithLogger(nil)), wantErr: true},
		{name: "nil observer", opts: append(without(-1), WithObserver(nil)), wantErr: true},
		{name: "nil clock", opts: append(without(-1), WithClock(nil)), wantErr: true},
		{name: "nil log store", opts: append(without(-1), WithLogStore(nil)), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if l != nil {
					t.Error("New() returned a ledger along with an error")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("New() error = %v, want ErrInvalidConfig", err)
				}
			}
		})
	}
}

// scoresOnly hides the LogStore side of a MemoryStore
type scoresOnly struct{ store.ScoreStore }

func TestNew_LoggingNeedsLogStore(t *testing.T) {
	_, err := New(
		WithName("points"),
		WithBounds(0, 1),
		WithCodec(IdentityCodec()),
		WithKeyPolicy(core.NonEmpty()),
		WithStore(scoresOnly{store.NewMemoryStore()}),
		WithLogging(true),
	)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("New() error = %v, want ErrInvalidConfig", err)
	}
}

// Ledger with min=0, max=150 walked through create/add/delete
func TestLedger_Scenario(t *testing.T) {
	for _, logging := range []bool{false, true} {
		for name, s := range backendStores(t) {
			t.Run(fmt.Sprintf("%s/logging=%t", name, logging), func(t *testing.T) {
				testScenario(t, newLedgerOn(t, s, logging))
			})
		}
	}
}

func testScenario(t *testing.T, l *Ledger) {
	ctx := context.Background()

	entry, err := l.Create(ctx, "K1", 150, "signup")
	if err != nil || entry != (Entry{Key: "K1", Value: 150}) {
		t.Fatalf("Create() = %+v, %v", entry, err)
	}

	if _, err := l.Create(ctx, "K1", 100, "again"); !errors.Is(err, ErrConflictExists) {
		t.Fatalf("second Create() error = %v, want ErrConflictExists", err)
	}

	change, err := l.Add(ctx, "K1", -50)
	if err != nil || change != (Change{Key: "K1", Value: 100, Change: -50}) {
		t.Fatalf("Add() = %+v, %v", change, err)
	}

	del, err := l.Delete(ctx, "K1", "cleanup")
	if err != nil || del != (Deletion{Key: "K1", Deleted: true}) {
		t.Fatalf("Delete() = %+v, %v", del, err)
	}

	del, err = l.Delete(ctx, "K1", "cleanup")
	if err != nil || del != (Deletion{Key: "K1", Deleted: false}) {
		t.Fatalf("repeat Delete() = %+v, %v", del, err)
	}

	if _, err := l.Get(ctx, "K1"); !errors.Is(err, ErrNonExistentKey) {
		t.Errorf("Get() after Delete error = %v, want ErrNonExistentKey", err)
	}
	if l.LoggingEnabled() {
		if _, err := l.Create(ctx, "K1", 1, ""); !errors.Is(err, ErrConflictTombstoned) {
			t.Errorf("Create() after Delete error = %v, want ErrConflictTombstoned", err)
		}
	}
}

func TestLedger_CreateThenGet(t *testing.T) {
	l, _ := newTestLedger(t, false)
	ctx := context.Background()

	values := map[string]float64{"low": 0, "high": 150, "mid": 75.25, "tiny": 1e-9}
	for key, value := range values {
		if _, err := l.Create(ctx, key, value, ""); err != nil {
			t.Fatalf("Create(%s) error = %v", key, err)
		}
		got, err := l.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", key, err)
		}
		if got.Value != value {
			t.Errorf("Get(%s) = %v, want %v", key, got.Value, value)
		}
	}
}

func TestLedger_CreateValidation(t *testing.T) {
	l, _ := newTestLedger(t, false)
	ctx := context.Background()

	tests := []struct {
		name  string
		key   string
		value float64
		want  error
	}{
		{"empty key", "", 1, ErrInvalidKey},
		{"NaN", "k", math.NaN(), ErrNonNumericValue},
		{"infinite", "k", math.Inf(1), ErrNonNumericValue},
		{"above max", "k", 151, ErrAboveMax},
		{"below min", "k", -1, ErrBelowMin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Create(ctx, tt.key, tt.value, "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("Create() error = %v, want %v", err, tt.want)
			}
			var lerr *core.Error
			if !errors.As(err, &lerr) || lerr.Op != "create" {
				t.Errorf("Create() error = %#v, want *core.Error with op create", err)
			}
		})
	}

	pairs, err := l.GetAllPairs(ctx, core.All())
	if err != nil || len(pairs) != 0 {
		t.Errorf("rejected creates wrote %v (err %v)", pairs, err)
	}
}

func TestLedger_Get(t *testing.T) {
	l, s := newTestLedger(t, false)
	ctx := context.Background()

	if _, err := l.Get(ctx, "missing"); !errors.Is(err, ErrNonExistentKey) {
		t.Errorf("Get(missing) error = %v, want ErrNonExistentKey", err)
	}
	if _, err := l.Get(ctx, ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Get(\"\") error = %v, want ErrInvalidKey", err)
	}

	// Values placed by a weighted sum are readable even out of range
	if _, err := s.AddIfAbsent(ctx, "src", "k", 500); err != nil {
		t.Fatal(err)
	}
	if _, err := l.WSum(ctx, "points", map[string]float64{"src": 1}); err != nil {
		t.Fatal(err)
	}
	got, err := l.Get(ctx, "k")
	if err != nil || got.Value != 500 {
		t.Errorf("Get(k) = %+v, %v; want 500", got, err)
	}
}

func TestLedger_AddAssociative(t *testing.T) {
	l, _ := newTestLedger(t, false)
	ctx := context.Background()

	for _, key := range []string{"split", "single"} {
		if _, err := l.Create(ctx, key, 10, ""); err != nil {
			t.Fatal(err)
		}
	}

	for _, c := range []float64{25, -5} {
		if _, err := l.Add(ctx, "split", c); err != nil {
			t.Fatalf("Add(split, %v) error = %v", c, err)
		}
	}
	if _, err := l.Add(ctx, "single", 20); err != nil {
		t.Fatalf("Add(single) error = %v", err)
	}

	a, _ := l.Get(ctx, "split")
	b, _ := l.Get(ctx, "single")
	if a.Value != b.Value || a.Value != 30 {
		t.Errorf("split = %v, single = %v, want both 30", a.Value, b.Value)
	}
}

func TestLedger_AddRejectionsLeaveValue(t *testing.T) {
	for name, s := range backendStores(t) {
		t.Run(name, func(t *testing.T) {
			testAddRejectionsLeaveValue(t, newLedgerOn(t, s, false))
		})
	}
}

func testAddRejectionsLeaveValue(t *testing.T, l *Ledger) {
	ctx := context.Background()

	if _, err := l.Create(ctx, "k", 100, ""); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		key    string
		change float64
		want   error
	}{
		{"above max", "k", 51, ErrAboveMax},
		{"below min", "k", -101, ErrBelowMin},
		{"NaN change", "k", math.NaN(), ErrNonNumericChange},
		{"infinite change", "k", math.Inf(-1), ErrNonNumericChange},
		{"missing key", "nope", 1, ErrNonExistentKey},
		{"invalid key", "", 1, ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.Add(ctx, tt.key, tt.change); !errors.Is(err, tt.want) {
				t.Fatalf("Add() error = %v, want %v", err, tt.want)
			}
			got, err := l.Get(ctx, "k")
			if err != nil || got.Value != 100 {
				t.Errorf("value after rejected Add = %v, %v; want 100", got.Value, err)
			}
		})
	}
}

// corruptStore reports a score that is not a number
type corruptStore struct{ store.ScoreStore }

func (corruptStore) Score(context.Context, string, string) (string, bool, error) {
	return "12abc", true, nil
}

func (corruptStore) IncrWithin(context.Context, string, string, float64, core.Bounds) (store.IncrResult, error) {
	return store.IncrResult{Outcome: store.IncrCorrupt, Raw: "12abc"}, nil
}

func TestLedger_CorruptScore(t *testing.T) {
	l, _ := newTestLedger(t, false, WithStore(corruptStore{store.NewMemoryStore()}))
	ctx := context.Background()

	if _, err := l.Get(ctx, "k"); !errors.Is(err, ErrNonNumericValue) {
		t.Errorf("Get() error = %v, want ErrNonNumericValue", err)
	}
	if _, err := l.Add(ctx, "k", 1); !errors.Is(err, ErrNonNumericValue) {
		t.Errorf("Add() error = %v, want ErrNonNumericValue", err)
	}
}

func TestLedger_ConcurrentAddStaysInRange(t *testing.T) {
	l, _ := newTestLedger(t, false)
	ctx := context.Background()

	if _, err := l.Create(ctx, "k", 0, ""); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 400; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			change := 1.0
			if i%4 == 0 {
				change = -1
			}
			_, _ = l.Add(ctx, "k", change)
		}(i)
	}
	wg.Wait()

	got, err := l.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if got.Value < 0 || got.Value > 150 {
		t.Errorf("value %v escaped [0, 150]", got.Value)
	}
}

func TestLedger_ConcurrentCreateSingleWinner(t *testing.T) {
	l, _ := newTestLedger(t, false)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Create(ctx, "k", float64(i), "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrConflictExists):
				conflicts++
			default:
				t.Errorf("Create() unexpected error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 || conflicts != 49 {
		t.Errorf("wins = %d, conflicts = %d; want 1 and 49", wins, conflicts)
	}
}

func TestLedger_Tombstone(t *testing.T) {
	l, _ := newTestLedger(t, true)
	ctx := context.Background()

	if _, err := l.Create(ctx, "k", 10, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Delete(ctx, "k", "gone"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := l.Create(ctx, "k", 10, "again"); !errors.Is(err, ErrConflictTombstoned) {
			t.Fatalf("Create() after delete error = %v, want ErrConflictTombstoned", err)
		}
	}
	if _, err := l.Get(ctx, "k"); !errors.Is(err, ErrNonExistentKey) {
		t.Errorf("tombstoned create inserted something: %v", err)
	}
}

func TestLedger_NoTombstoneWithoutLogging(t *testing.T) {
	l, _ := newTestLedger(t, false)
	ctx := context.Background()

	if _, err := l.Create(ctx, "k", 10, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Delete(ctx, "k", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Create(ctx, "k", 20, ""); err != nil {
		t.Errorf("Create() after delete without logging error = %v", err)
	}
}

func TestLedger_PairsInRange(t *testing.T) {
	l, _ := newTestLedger(t, false, WithCodec(ReverseCodec()))
	ctx := context.Background()

	for key, value := range map[string]float64{"abc": 30, "xyz": 10, "mno": 20} {
		if _, err := l.Create(ctx, key, value, ""); err != nil {
			t.Fatal(err)
		}
	}

	all, err := l.GetAllPairs(ctx, core.All())
	if err != nil {
		t.Fatal(err)
	}
	bounded, err := l.GetAllPairs(ctx, core.Between(0, 150))
	if err != nil {
		t.Fatal(err)
	}
	want := []core.Pair{{Key: "xyz", Value: 10}, {Key: "mno", Value: 20}, {Key: "abc", Value: 30}}
	for name, got := range map[string][]core.Pair{"all": all, "bounded": bounded} {
		if len(got) != len(want) {
			t.Fatalf("%s = %v, want %v", name, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s[%d] = %v, want %v", name, i, got[i], want[i])
			}
		}
	}

	raw, err := l.GetAllRawPairs(ctx, core.Between(15, 25))
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 1 || raw[0].Key != "onm" {
		t.Errorf("GetAllRawPairs() = %v, want encoded key onm", raw)
	}
}

func TestLedger_OutOfRangeQueriesEmpty(t *testing.T) {
	l, _ := newTestLedger(t, false)
	ctx := context.Background()

	for _, v := range []float64{0, 75, 150} {
		if _, err := l.Create(ctx, core.FormatScore(v), v, ""); err != nil {
			t.Fatal(err)
		}
	}
	for name, r := range map[string]core.Range{"below": l.BelowMinRange(), "above": l.AboveMaxRange()} {
		pairs, err := l.GetAllPairs(ctx, r)
		if err != nil || len(pairs) != 0 {
			t.Errorf("%s-range pairs = %v, %v; want none", name, pairs, err)
		}
	}
}

func TestLedger_ScanPairs(t *testing.T) {
	l, _ := newTestLedger(t, false, WithPageSize(2))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := l.Create(ctx, string(rune('a'+i)), float64(i*10), ""); err != nil {
			t.Fatal(err)
		}
	}

	// Ranging twice re-queries the store
	for pass := 0; pass < 2; pass++ {
		var keys []string
		for p, err := range l.ScanPairs(ctx, core.All()) {
			if err != nil {
				t.Fatalf("ScanPairs() error = %v", err)
			}
			keys = append(keys, p.Key)
		}
		if len(keys) != 5+pass || keys[0] != "a" || keys[4] != "e" {
			t.Errorf("pass %d keys = %v", pass, keys)
		}
		if _, err := l.Create(ctx, "z", 150, ""); err != nil && pass == 0 {
			t.Fatal(err)
		}
	}

	// Early break stops paging
	n := 0
	for range l.ScanRawPairs(ctx, core.All()) {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("iterated %d pairs after break, want 3", n)
	}
}

func TestLedger_ReapRemovesBelowMin(t *testing.T) {
	for _, logging := range []bool{false, true} {
		l, s := newTestLedger(t, logging)
		ctx := context.Background()

		seedOutOfRange(t, l, s, map[string]float64{"neg": -5, "deep": -100, "keep": 0, "high": 200})

		n, err := l.Reap(ctx, "expired")
		if err != nil {
			t.Fatalf("Reap() error = %v", err)
		}
		if n != 2 {
			t.Errorf("Reap() = %d, want 2", n)
		}

		pairs, _ := l.GetAllPairs(ctx, core.All())
		if len(pairs) != 2 || pairs[0].Key != "keep" || pairs[1].Key != "high" {
			t.Errorf("remaining pairs = %v, want keep and high", pairs)
		}
	}
}

func TestLedger_ReapTombstones(t *testing.T) {
	tests := []struct {
		name     string
		separate bool
	}{
		{name: "shared store, atomic"},
		{name: "separate log store, phased", separate: true},
	}

	for _, tt := range tests {
		for backend, s := range backendStores(t) {
			t.Run(tt.name+"/"+backend, func(t *testing.T) {
				var opts []Option
				if tt.separate {
					opts = append(opts, WithLogStore(store.NewMemoryStore()))
				}
				testReapTombstones(t, newLedgerOn(t, s, true, opts...), s)
			})
		}
	}
}

func testReapTombstones(t *testing.T, l *Ledger, s store.ScoreStore) {
	ctx := context.Background()

	seedOutOfRange(t, l, s, map[string]float64{"a": -1, "b": -2, "keep": 5})

	if n, err := l.Reap(ctx, "expired"); err != nil || n != 2 {
		t.Fatalf("Reap() = %d, %v; want 2", n, err)
	}

	for _, key := range []string{"a", "b"} {
		r, err := l.GetDeleteReason(ctx, key)
		if err != nil || !r.Found || r.Reason != "expired" {
			t.Errorf("GetDeleteReason(%s) = %+v, %v", key, r, err)
		}
		if r.Timestamp != "Sat, 09 Mar 2024 16:04:05 GMT" {
			t.Errorf("timestamp = %q", r.Timestamp)
		}
		if _, err := l.Create(ctx, key, 1, ""); !errors.Is(err, ErrConflictTombstoned) {
			t.Errorf("Create(%s) after reap error = %v, want ErrConflictTombstoned", key, err)
		}
	}

	if tombstoned, _ := l.InDeleteLog(ctx, "keep"); tombstoned {
		t.Error("kept key was tombstoned")
	}
}

// seedOutOfRange writes values through a weighted sum, the only path that
// may place them outside the bounds.
func seedOutOfRange(t *testing.T, l *Ledger, s store.ScoreStore, values map[string]float64) {
	t.Helper()
	ctx := context.Background()
	for key, v := range values {
		if _, err := s.AddIfAbsent(ctx, "seed", key, v); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := l.WSum(ctx, l.Name(), map[string]float64{"seed": 1}); err != nil {
		t.Fatal(err)
	}
}

type recordingObserver struct {
	mu  sync.Mutex
	ops []string
	bad int
}

func (o *recordingObserver) ObserveOp(ledger, op string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, ledger+"."+op)
	if err != nil {
		o.bad++
	}
}

func TestLedger_Observer(t *testing.T) {
	obs := &recordingObserver{}
	l, _ := newTestLedger(t, false, WithObserver(obs))
	ctx := context.Background()

	_, _ = l.Create(ctx, "k", 1, "")
	_, _ = l.Create(ctx, "k", 1, "")
	_, _ = l.Get(ctx, "k")

	want := []string{"points.create", "points.create", "points.get"}
	if len(obs.ops) != len(want) {
		t.Fatalf("observed %v, want %v", obs.ops, want)
	}
	for i := range want {
		if obs.ops[i] != want[i] {
			t.Errorf("ops[%d] = %s, want %s", i, obs.ops[i], want[i])
		}
	}
	if obs.bad != 1 {
		t.Errorf("failed ops = %d, want 1", obs.bad)
	}
}
