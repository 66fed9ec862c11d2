package pointledger

import (
	"context"
	"fmt"
	"slices"

	"github.com/yourusername/pointledger/store"
)

// Registry holds the ledgers of one deployment, all sharing a score store
type Registry struct {
	scores  store.ScoreStore
	ledgers map[string]*Ledger
}

// NewRegistry builds every ledger in config on scores. logs may be nil.
// opts are applied to each ledger after its configured settings.
func NewRegistry(config *Config, scores store.ScoreStore, logs store.LogStore, opts ...Option) (*Registry, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
	}
	if scores == nil {
		return nil, fmt.Errorf("%w: store cannot be nil", ErrInvalidConfig)
	}

	r := &Registry{scores: scores, ledgers: make(map[string]*Ledger, len(config.Ledgers))}
	for name, lc := range config.Ledgers {
		l, err := FromConfig(name, lc, scores, logs, opts...)
		if err != nil {
			return nil, err
		}
		r.ledgers[name] = l
	}
	return r, nil
}

// Ledger returns the named ledger
func (r *Registry) Ledger(name string) (*Ledger, bool) {
	l, ok := r.ledgers[name]
	return l, ok
}

// Names returns the ledger names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ledgers))
	for name := range r.ledgers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// WSum runs a weighted sum over the shared score store
func (r *Registry) WSum(ctx context.Context, destination string, weights map[string]float64) (WSumResult, error) {
	if l, ok := r.ledgers[destination]; ok {
		return l.WSum(ctx, destination, weights)
	}
	return WSum(ctx, r.scores, destination, weights)
}
