package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/yourusername/pointledger/core"
	"github.com/yourusername/pointledger/pkg/pointledger"
)

// Budget provides HTTP middleware that charges every request to a ledger.
// A key whose balance would drop below the ledger's min is refused with 429.
type Budget struct {
	ledger     *pointledger.Ledger
	cost       float64
	initial    float64
	keyFunc    KeyExtractor
	autoCreate bool
	logger     *slog.Logger
}

// Config for creating a budget middleware
type Config struct {
	Ledger     *pointledger.Ledger // Ledger holding the balances
	Cost       float64             // Amount debited per request
	Initial    float64             // Opening balance for keys created on first sight
	KeyFunc    KeyExtractor        // Optional: defaults to ExtractIPWithProxy()
	AutoCreate bool                // Open a balance for unknown keys instead of refusing them
	Logger     *slog.Logger        // Optional: defaults to slog.Default()
}

// NewBudget creates a new budget middleware
func NewBudget(config Config) (*Budget, error) {
	if config.Ledger == nil {
		return nil, fmt.Errorf("%w: budget ledger is required", pointledger.ErrInvalidConfig)
	}
	if config.Cost <= 0 || math.IsInf(config.Cost, 0) || math.IsNaN(config.Cost) {
		return nil, fmt.Errorf("%w: budget cost must be a positive number", pointledger.ErrInvalidConfig)
	}
	if config.AutoCreate && !config.Ledger.Bounds().Contains(config.Initial) {
		return nil, fmt.Errorf("%w: initial balance %s is outside the ledger bounds",
			pointledger.ErrInvalidConfig, core.FormatScore(config.Initial))
	}
	if config.KeyFunc == nil {
		config.KeyFunc = ExtractIPWithProxy()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Budget{
		ledger:     config.Ledger,
		cost:       config.Cost,
		initial:    config.Initial,
		keyFunc:    config.KeyFunc,
		autoCreate: config.AutoCreate,
		logger:     config.Logger.With("ledger", config.Ledger.Name()),
	}, nil
}

// Middleware wraps an http.Handler with budget accounting
func (b *Budget) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := b.keyFunc(r)
		if err != nil {
			writeRefusal(w, http.StatusUnauthorized, "key_extraction_failed", err.Error())
			return
		}

		change, err := b.charge(r, key)

		w.Header().Set("X-Budget-Limit", core.FormatScore(b.ledger.Bounds().Max))

		switch {
		case err == nil:
			w.Header().Set("X-Budget-Remaining", core.FormatScore(change.Value))
			next.ServeHTTP(w, r)

		case errors.Is(err, pointledger.ErrBelowMin):
			if entry, gerr := b.ledger.Get(r.Context(), key); gerr == nil {
				w.Header().Set("X-Budget-Remaining", core.FormatScore(entry.Value))
			}
			writeRefusal(w, http.StatusTooManyRequests, "budget_exhausted",
				"Budget exhausted. Please try again later.")

		case errors.Is(err, pointledger.ErrNonExistentKey), errors.Is(err, pointledger.ErrConflictTombstoned):
			writeRefusal(w, http.StatusForbidden, "no_budget", "No budget is open for this client.")

		case errors.Is(err, pointledger.ErrInvalidKey):
			writeRefusal(w, http.StatusBadRequest, "invalid_key", err.Error())

		default:
			b.logger.ErrorContext(r.Context(), "budget charge failed", "key", key, "error", err)
			writeRefusal(w, http.StatusInternalServerError, "internal_error", "Internal Server Error")
		}
	})
}

// charge debits key, opening its balance first when allowed
func (b *Budget) charge(r *http.Request, key string) (pointledger.Change, error) {
	ctx := r.Context()

	change, err := b.ledger.Add(ctx, key, -b.cost)
	if !errors.Is(err, pointledger.ErrNonExistentKey) || !b.autoCreate {
		return change, err
	}

	_, err = b.ledger.Create(ctx, key, b.initial, "budget opened for "+r.Method+" "+r.URL.Path)
	if err != nil && !errors.Is(err, pointledger.ErrConflictExists) {
		return pointledger.Change{}, err
	}
	return b.ledger.Add(ctx, key, -b.cost)
}

func writeRefusal(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
