package metrics

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	vm "github.com/VictoriaMetrics/metrics"

	"github.com/yourusername/pointledger/core"
)

// Metrics tracks ledger operation statistics. It implements
// pointledger.Observer and exposes both a JSON snapshot and the
// Prometheus text format.
type Metrics struct {
	totalOps  atomic.Int64
	failedOps atomic.Int64

	// Per-ledger stats
	mu          sync.RWMutex
	ledgerStats map[string]*LedgerStats
	startTime   time.Time

	prom *vm.Set
}

// LedgerStats tracks statistics for a single ledger
type LedgerStats struct {
	Ledger    string              `json:"ledger"`
	TotalOps  int64               `json:"total_ops"`
	FailedOps int64               `json:"failed_ops"`
	Ops       map[string]*OpStats `json:"ops"`
	LastOpAt  time.Time           `json:"last_op_at"`
}

// OpStats tracks one operation of one ledger
type OpStats struct {
	Calls    int64            `json:"calls"`
	Failures map[string]int64 `json:"failures,omitempty"` // by error code
	TotalMs  float64          `json:"total_ms"`
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		ledgerStats: make(map[string]*LedgerStats),
		startTime:   time.Now(),
		prom:        vm.NewSet(),
	}
}

// ObserveOp records a finished ledger operation
func (m *Metrics) ObserveOp(ledger, op string, elapsed time.Duration, err error) {
	code := core.Code(err)

	m.totalOps.Add(1)
	if err != nil {
		m.failedOps.Add(1)
	}

	m.prom.GetOrCreateCounter(fmt.Sprintf(`pointledger_ops_total{ledger=%q,op=%q,code=%q}`, ledger, op, code)).Inc()
	m.prom.GetOrCreateHistogram(fmt.Sprintf(`pointledger_op_duration_seconds{ledger=%q,op=%q}`, ledger, op)).Update(elapsed.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	stats, exists := m.ledgerStats[ledger]
	if !exists {
		stats = &LedgerStats{Ledger: ledger, Ops: make(map[string]*OpStats)}
		m.ledgerStats[ledger] = stats
	}
	opStats, exists := stats.Ops[op]
	if !exists {
		opStats = &OpStats{}
		stats.Ops[op] = opStats
	}

	stats.TotalOps++
	opStats.Calls++
	opStats.TotalMs += float64(elapsed) / float64(time.Millisecond)
	if err != nil {
		stats.FailedOps++
		if opStats.Failures == nil {
			opStats.Failures = make(map[string]int64)
		}
		opStats.Failures[code]++
	}
	stats.LastOpAt = time.Now()
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ledgers := make([]*LedgerStats, 0, len(m.ledgerStats))
	for _, stats := range m.ledgerStats {
		ledgers = append(ledgers, stats.clone())
	}
	// Busiest ledgers first
	slices.SortFunc(ledgers, func(a, b *LedgerStats) int {
		if a.TotalOps != b.TotalOps {
			return int(b.TotalOps - a.TotalOps)
		}
		if a.Ledger < b.Ledger {
			return -1
		}
		return 1
	})

	return &Snapshot{
		TotalOps:      m.totalOps.Load(),
		FailedOps:     m.failedOps.Load(),
		Ledgers:       ledgers,
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
		StartTime:     m.startTime,
	}
}

// WritePrometheus writes all counters and histograms in Prometheus text format
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.prom.WritePrometheus(w)
}

func (s *LedgerStats) clone() *LedgerStats {
	c := *s
	c.Ops = make(map[string]*OpStats, len(s.Ops))
	for op, o := range s.Ops {
		oc := *o
		if o.Failures != nil {
			oc.Failures = make(map[string]int64, len(o.Failures))
			for code, n := range o.Failures {
				oc.Failures[code] = n
			}
		}
		c.Ops[op] = &oc
	}
	return &c
}

// Snapshot represents a point-in-time view of metrics
type Snapshot struct {
	TotalOps      int64          `json:"total_ops"`
	FailedOps     int64          `json:"failed_ops"`
	Ledgers       []*LedgerStats `json:"ledgers"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     time.Time      `json:"start_time"`
}
