package store

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/pointledger/core"
)

// fullStore is what both MemoryStore and RedisStore provide
type fullStore interface {
	ScoreStore
	LogStore
	Reaper
}

func scoreOf(t *testing.T, s ScoreStore, set, member string) (float64, bool) {
	t.Helper()
	raw, found, err := s.Score(context.Background(), set, member)
	require.NoError(t, err)
	if !found {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	require.NoError(t, err)
	return v, true
}

// runStoreContract exercises the behaviour every backend must share
func runStoreContract(t *testing.T, newStore func(t *testing.T) fullStore) {
	ctx := context.Background()

	t.Run("AddIfAbsent", func(t *testing.T) {
		s := newStore(t)
		added, err := s.AddIfAbsent(ctx, "points", "k1", 150)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = s.AddIfAbsent(ctx, "points", "k1", 100)
		require.NoError(t, err)
		assert.False(t, added, "second insert must not overwrite")

		v, found := scoreOf(t, s, "points", "k1")
		require.True(t, found)
		assert.Equal(t, 150.0, v)
	})

	t.Run("Score missing", func(t *testing.T) {
		s := newStore(t)
		_, found, err := s.Score(ctx, "points", "nobody")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("IncrBy", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AddIfAbsent(ctx, "points", "k1", 10)
		require.NoError(t, err)

		raw, found, err := s.IncrBy(ctx, "points", "k1", -2.5)
		require.NoError(t, err)
		require.True(t, found)
		v, err := strconv.ParseFloat(raw, 64)
		require.NoError(t, err)
		assert.Equal(t, 7.5, v)

		_, found, err = s.IncrBy(ctx, "points", "ghost", 1)
		require.NoError(t, err)
		assert.False(t, found)
		_, found = scoreOf(t, s, "points", "ghost")
		assert.False(t, found, "IncrBy must not create members")
	})

	t.Run("IncrWithin", func(t *testing.T) {
		s := newStore(t)
		bounds := core.Bounds{Min: 0, Max: 150}
		_, err := s.AddIfAbsent(ctx, "points", "k1", 100)
		require.NoError(t, err)

		res, err := s.IncrWithin(ctx, "points", "k1", 60, bounds)
		require.NoError(t, err)
		assert.Equal(t, IncrAbove, res.Outcome)

		res, err = s.IncrWithin(ctx, "points", "k1", -101, bounds)
		require.NoError(t, err)
		assert.Equal(t, IncrBelow, res.Outcome)

		v, _ := scoreOf(t, s, "points", "k1")
		assert.Equal(t, 100.0, v, "rejected increments leave the score untouched")

		res, err = s.IncrWithin(ctx, "points", "k1", 50, bounds)
		require.NoError(t, err)
		assert.Equal(t, IncrApplied, res.Outcome)
		applied, err := strconv.ParseFloat(res.Raw, 64)
		require.NoError(t, err)
		assert.Equal(t, 150.0, applied)

		res, err = s.IncrWithin(ctx, "points", "ghost", 1, bounds)
		require.NoError(t, err)
		assert.Equal(t, IncrMissing, res.Outcome)
	})

	t.Run("Remove", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AddIfAbsent(ctx, "points", "k1", 1)
		require.NoError(t, err)

		n, err := s.Remove(ctx, "points", "k1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = s.Remove(ctx, "points", "k1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("RangeByScore", func(t *testing.T) {
		s := newStore(t)
		for member, score := range map[string]float64{"a": 3, "b": 1, "c": 2, "d": -1, "e": 200} {
			_, err := s.AddIfAbsent(ctx, "points", member, score)
			require.NoError(t, err)
		}

		all, err := s.RangeByScore(ctx, "points", core.All(), 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []core.Pair{
			{Key: "d", Value: -1}, {Key: "b", Value: 1}, {Key: "c", Value: 2},
			{Key: "a", Value: 3}, {Key: "e", Value: 200},
		}, all)

		page, err := s.RangeByScore(ctx, "points", core.All(), 1, 2)
		require.NoError(t, err)
		assert.Equal(t, []core.Pair{{Key: "b", Value: 1}, {Key: "c", Value: 2}}, page)

		below, err := s.RangeByScore(ctx, "points", core.Below(1), 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []core.Pair{{Key: "d", Value: -1}}, below)

		above, err := s.RangeByScore(ctx, "points", core.Above(3), 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []core.Pair{{Key: "e", Value: 200}}, above)

		between, err := s.RangeByScore(ctx, "points", core.Between(1, 3), 0, -1)
		require.NoError(t, err)
		assert.Len(t, between, 3)

		empty, err := s.RangeByScore(ctx, "nothing-here", core.All(), 0, -1)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("RemoveRangeByScore", func(t *testing.T) {
		s := newStore(t)
		for member, score := range map[string]float64{"a": -2, "b": -1, "c": 0} {
			_, err := s.AddIfAbsent(ctx, "points", member, score)
			require.NoError(t, err)
		}

		n, err := s.RemoveRangeByScore(ctx, "points", core.Below(0))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		rest, err := s.RangeByScore(ctx, "points", core.All(), 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []core.Pair{{Key: "c", Value: 0}}, rest)
	})

	t.Run("ReapRange", func(t *testing.T) {
		s := newStore(t)
		for member, score := range map[string]float64{"a": -2, "b": -1, "c": 0} {
			_, err := s.AddIfAbsent(ctx, "points", member, score)
			require.NoError(t, err)
		}

		n, err := s.ReapRange(ctx, "points", core.Below(0), "pointsDeleteLog", "then---reaped")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		for _, member := range []string{"a", "b"} {
			record, found, err := s.GetField(ctx, "pointsDeleteLog", member)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "then---reaped", record)
		}
		found, err := s.HasField(ctx, "pointsDeleteLog", "c")
		require.NoError(t, err)
		assert.False(t, found, "survivors are not tombstoned")
	})

	t.Run("UnionStore", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AddIfAbsent(ctx, "A", "X", 50)
		require.NoError(t, err)
		_, err = s.AddIfAbsent(ctx, "B", "X", 20)
		require.NoError(t, err)
		_, err = s.AddIfAbsent(ctx, "B", "Y", 5)
		require.NoError(t, err)
		_, err = s.AddIfAbsent(ctx, "dest", "stale", 1)
		require.NoError(t, err)

		n, err := s.UnionStore(ctx, "dest", []string{"A", "B"}, []float64{1, -1})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		x, _ := scoreOf(t, s, "dest", "X")
		assert.Equal(t, 30.0, x)
		y, _ := scoreOf(t, s, "dest", "Y")
		assert.Equal(t, -5.0, y)
		_, found := scoreOf(t, s, "dest", "stale")
		assert.False(t, found, "destination is overwritten")
	})

	t.Run("Log fields", func(t *testing.T) {
		s := newStore(t)
		_, found, err := s.GetField(ctx, "pointsCreateLog", "k1")
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, s.SetField(ctx, "pointsCreateLog", "k1", "t1---first"))
		require.NoError(t, s.SetField(ctx, "pointsCreateLog", "k1", "t2---second"))

		record, found, err := s.GetField(ctx, "pointsCreateLog", "k1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "t2---second", record)

		has, err := s.HasField(ctx, "pointsCreateLog", "k1")
		require.NoError(t, err)
		assert.True(t, has)
	})
}
