package pointledger

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/yourusername/pointledger/core"
	"github.com/yourusername/pointledger/store"
)

// Option is a functional option for configuring a Ledger.
type Option func(*Ledger) error

// WithName sets the ledger namespace. The score set and the two audit logs
// are named after it.
func WithName(name string) Option {
	return func(l *Ledger) error {
		if name == "" {
			return fmt.Errorf("%w: name cannot be empty", ErrInvalidConfig)
		}
		l.name = name
		return nil
	}
}

// WithBounds sets the inclusive value range. Both ends must be finite and
// min must not exceed max.
func WithBounds(min, max float64) Option {
	return func(l *Ledger) error {
		if math.IsNaN(min) || math.IsInf(min, 0) || math.IsNaN(max) || math.IsInf(max, 0) {
			return fmt.Errorf("%w: bounds must be finite numbers", ErrInvalidConfig)
		}
		if min > max {
			return fmt.Errorf("%w: min %s is above max %s", ErrInvalidConfig,
				core.FormatScore(min), core.FormatScore(max))
		}
		l.bounds = core.Bounds{Min: min, Max: max}
		l.hasBounds = true
		return nil
	}
}

// WithCodec sets the key codec
func WithCodec(codec KeyCodec) Option {
	return func(l *Ledger) error {
		if codec == nil {
			return fmt.Errorf("%w: codec cannot be nil", ErrInvalidConfig)
		}
		l.codec = codec
		return nil
	}
}

// WithKeyPolicy sets the predicate that reports invalid keys
func WithKeyPolicy(policy core.KeyPolicy) Option {
	return func(l *Ledger) error {
		if policy == nil {
			return fmt.Errorf("%w: key policy cannot be nil", ErrInvalidConfig)
		}
		l.policy = policy
		return nil
	}
}

// WithLogging enables or disables the audit trail.
// Default: disabled
func WithLogging(enabled bool) Option {
	return func(l *Ledger) error {
		l.logging = enabled
		return nil
	}
}

// WithStore sets the score store. If the store also implements
// store.LogStore it holds the audit logs unless WithLogStore says otherwise.
func WithStore(s store.ScoreStore) Option {
	return func(l *Ledger) error {
		if s == nil {
			return fmt.Errorf("%w: store cannot be nil", ErrInvalidConfig)
		}
		l.scores = s
		return nil
	}
}

// WithLogStore sets a separate store for the audit logs
func WithLogStore(s store.LogStore) Option {
	return func(l *Ledger) error {
		if s == nil {
			return fmt.Errorf("%w: log store cannot be nil", ErrInvalidConfig)
		}
		l.logs = s
		return nil
	}
}

// WithLogger sets the structured logger.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
		}
		l.logger = logger
		return nil
	}
}

// WithObserver registers an operation observer, e.g. a metrics collector
func WithObserver(observer Observer) Option {
	return func(l *Ledger) error {
		if observer == nil {
			return fmt.Errorf("%w: observer cannot be nil", ErrInvalidConfig)
		}
		l.observer = observer
		return nil
	}
}

// WithPageSize sets how many pairs ScanPairs fetches per round trip.
// Default: 100
func WithPageSize(n int64) Option {
	return func(l *Ledger) error {
		if n <= 0 {
			return fmt.Errorf("%w: page size must be positive", ErrInvalidConfig)
		}
		l.pageSize = n
		return nil
	}
}

// WithClock sets the time source for audit record timestamps
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) error {
		if now == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		l.now = now
		return nil
	}
}
