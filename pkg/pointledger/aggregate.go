package pointledger

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/yourusername/pointledger/core"
	"github.com/yourusername/pointledger/store"
)

// WSumResult is the outcome of a weighted sum
type WSumResult struct {
	Destination string             `json:"destination"`
	Weights     map[string]float64 `json:"weights"`
	Count       int64              `json:"count"`
}

// WSum writes into destination, for every key present in any source ledger,
// the sum of its scores multiplied by the source weights (absent counts as
// 0). The destination is replaced in one atomic store step. No bounds are
// applied, so results may fall outside the destination ledger's range.
func WSum(ctx context.Context, scores store.ScoreStore, destination string, weights map[string]float64) (WSumResult, error) {
	const op = "wsum"

	if destination == "" {
		return WSumResult{}, core.NewError(op, core.ErrInvalidWeights, "destination is required")
	}
	if len(weights) == 0 {
		return WSumResult{}, core.NewError(op, core.ErrInvalidWeights, "no source ledgers")
	}

	sources := make([]string, 0, len(weights))
	for name, w := range weights {
		if name == "" {
			return WSumResult{}, core.NewError(op, core.ErrInvalidWeights, "empty source name")
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return WSumResult{}, core.NewError(op, core.ErrInvalidWeights, "weight of %q is %v", name, w)
		}
		sources = append(sources, name)
	}
	slices.Sort(sources)

	factors := make([]float64, len(sources))
	for i, name := range sources {
		factors[i] = weights[name]
	}

	count, err := scores.UnionStore(ctx, destination, sources, factors)
	if err != nil {
		return WSumResult{}, core.StoreError(op, err)
	}
	return WSumResult{Destination: destination, Weights: weights, Count: count}, nil
}

// WSum runs a weighted sum on the ledger's score store
func (l *Ledger) WSum(ctx context.Context, destination string, weights map[string]float64) (result WSumResult, err error) {
	defer l.observe("wsum", time.Now(), &err)

	result, err = WSum(ctx, l.scores, destination, weights)
	if err != nil {
		return WSumResult{}, err
	}
	l.logger.InfoContext(ctx, "weighted sum stored", "op", "wsum", "destination", destination, "count", result.Count)
	return result, nil
}
