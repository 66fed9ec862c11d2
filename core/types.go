package core

import (
	"math"
	"strconv"
)

// Bounds defines the inclusive numeric range of a ledger
type Bounds struct {
	Min float64 // Lowest value a write may leave behind
	Max float64 // Highest value a write may leave behind
}

// Contains reports whether v lies within [Min, Max]
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Pair is a member/score pair as returned by range queries
type Pair struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// Bound is one end of a score range. Infinite ends are expressed with
// math.Inf and are never exclusive.
type Bound struct {
	Value     float64
	Exclusive bool
}

// String renders the bound in the "(5" / "-inf" form understood by Redis
func (b Bound) String() string {
	switch {
	case math.IsInf(b.Value, -1):
		return "-inf"
	case math.IsInf(b.Value, 1):
		return "+inf"
	case b.Exclusive:
		return "(" + FormatScore(b.Value)
	default:
		return FormatScore(b.Value)
	}
}

// Range selects scores between Low and High
type Range struct {
	Low  Bound
	High Bound
}

// All selects every score
func All() Range {
	return Range{
		Low:  Bound{Value: math.Inf(-1)},
		High: Bound{Value: math.Inf(1)},
	}
}

// Between selects scores in the inclusive range [low, high]
func Between(low, high float64) Range {
	return Range{Low: Bound{Value: low}, High: Bound{Value: high}}
}

// Below selects every score strictly less than v
func Below(v float64) Range {
	return Range{
		Low:  Bound{Value: math.Inf(-1)},
		High: Bound{Value: v, Exclusive: true},
	}
}

// Above selects every score strictly greater than v
func Above(v float64) Range {
	return Range{
		Low:  Bound{Value: v, Exclusive: true},
		High: Bound{Value: math.Inf(1)},
	}
}

// Contains reports whether score falls inside the range
func (r Range) Contains(score float64) bool {
	if r.Low.Exclusive {
		if score <= r.Low.Value {
			return false
		}
	} else if score < r.Low.Value {
		return false
	}
	if r.High.Exclusive {
		return score < r.High.Value
	}
	return score <= r.High.Value
}

// FormatScore renders a score the way the stores persist it
func FormatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
