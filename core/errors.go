package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned when the key policy rejects a key
	ErrInvalidKey = errors.New("invalid key")

	// ErrNonNumericValue is returned when a value is missing, unparseable or not finite
	ErrNonNumericValue = errors.New("invalid value, expected a number")

	// ErrNonNumericChange is returned when an add carries an unusable change
	ErrNonNumericChange = errors.New("non-numeric change")

	// ErrAboveMax is returned when a write would leave a value above max
	ErrAboveMax = errors.New("invalid value above max")

	// ErrBelowMin is returned when a write would leave a value below min
	ErrBelowMin = errors.New("invalid value below min")

	// ErrNonExistentKey is returned when the key is not in the ledger
	ErrNonExistentKey = errors.New("non-existent key")

	// ErrConflictExists is returned when creating a key that is already present
	ErrConflictExists = errors.New("conflict: key exists")

	// ErrConflictTombstoned is returned when creating a key that was deleted
	ErrConflictTombstoned = errors.New("conflict: key was deleted")

	// ErrInvalidConfig is returned when a ledger cannot be constructed
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidWeights is returned when a weighted sum has no usable sources
	ErrInvalidWeights = errors.New("invalid weights")

	// ErrStore is returned when the backing store fails
	ErrStore = errors.New("store operation failed")
)

// Error is the failure of a single ledger operation. Kind is one of the
// sentinel errors above, so errors.Is(err, ErrAboveMax) works on it.
type Error struct {
	Op     string // Operation name, e.g. "create"
	Kind   error  // Sentinel error describing the failure
	Reason string // Optional detail
	Err    error  // Optional underlying cause
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("pointledger %s error: %v", e.Op, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewError builds an *Error for op with a formatted reason
func NewError(op string, kind error, format string, args ...any) *Error {
	e := &Error{Op: op, Kind: kind}
	if format != "" {
		e.Reason = fmt.Sprintf(format, args...)
	}
	return e
}

// StoreError wraps a backend failure for op
func StoreError(op string, err error) *Error {
	return &Error{Op: op, Kind: ErrStore, Err: err}
}

var codes = []struct {
	kind error
	code string
}{
	{ErrInvalidKey, "invalid_key"},
	{ErrNonNumericValue, "non_numeric_value"},
	{ErrNonNumericChange, "non_numeric_change"},
	{ErrAboveMax, "above_max"},
	{ErrBelowMin, "below_min"},
	{ErrNonExistentKey, "non_existent_key"},
	{ErrConflictExists, "conflict_exists"},
	{ErrConflictTombstoned, "conflict_tombstoned"},
	{ErrInvalidConfig, "invalid_config"},
	{ErrInvalidWeights, "invalid_weights"},
	{ErrStore, "store_error"},
}

// Code returns a stable snake_case name for the kind of err: "ok" for nil,
// "internal" when err carries no known kind.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return "internal"
}
