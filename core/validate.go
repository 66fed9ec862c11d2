package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// KeyPolicy reports whether a key is INVALID. It is injected policy:
// the validator only invokes it.
type KeyPolicy func(key string) bool

// Validator checks keys and values against a ledger's policy and bounds.
// It holds no state besides its configuration.
type Validator struct {
	Bounds  Bounds
	Invalid KeyPolicy
}

// NewValidator creates a validator for the given bounds and key policy
func NewValidator(bounds Bounds, invalid KeyPolicy) Validator {
	return Validator{Bounds: bounds, Invalid: invalid}
}

// AssertKey fails with ErrInvalidKey when the key policy rejects key
func (v Validator) AssertKey(key, op string) error {
	if v.Invalid == nil || v.Invalid(key) {
		return NewError(op, ErrInvalidKey, "%q", key)
	}
	return nil
}

// AssertRange checks, in order: finite, not above max, not below min
func (v Validator) AssertRange(value float64, op string) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return NewError(op, ErrNonNumericValue, "%v", value)
	}
	if value > v.Bounds.Max {
		return NewError(op, ErrAboveMax, "%s > %s", FormatScore(value), FormatScore(v.Bounds.Max))
	}
	if value < v.Bounds.Min {
		return NewError(op, ErrBelowMin, "%s < %s", FormatScore(value), FormatScore(v.Bounds.Min))
	}
	return nil
}

// ParseNumber converts a raw score read from a store. found=false is the
// store's "not found" sentinel.
func ParseNumber(raw string, found bool, op string) (float64, error) {
	if !found {
		return 0, NewError(op, ErrNonExistentKey, "")
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) {
		return 0, NewError(op, ErrNonNumericValue, "%q", raw)
	}
	return value, nil
}

// ParseValue parses a caller-supplied value at a transport boundary
func ParseValue(raw, op string) (float64, error) {
	value, ok := parseFinite(raw)
	if !ok {
		return 0, NewError(op, ErrNonNumericValue, "%q", raw)
	}
	return value, nil
}

// ParseChange parses a caller-supplied change at a transport boundary
func ParseChange(raw, op string) (float64, error) {
	change, ok := parseFinite(raw)
	if !ok {
		return 0, NewError(op, ErrNonNumericChange, "%q", raw)
	}
	return change, nil
}

func parseFinite(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FixedLength rejects keys whose length in runes is not n
func FixedLength(n int) KeyPolicy {
	return func(key string) bool {
		return utf8.RuneCountInString(key) != n
	}
}

// NonEmpty rejects the empty key
func NonEmpty() KeyPolicy {
	return func(key string) bool {
		return key == ""
	}
}

// AnyOf rejects a key if any of the policies rejects it
func AnyOf(policies ...KeyPolicy) KeyPolicy {
	return func(key string) bool {
		for _, p := range policies {
			if p(key) {
				return true
			}
		}
		return false
	}
}

// TagPolicy builds a key policy from a validator tag such as
// "required,len=8,alpha". Unknown tags fail here rather than at first use.
func TagPolicy(tag string) (KeyPolicy, error) {
	if strings.TrimSpace(tag) == "" {
		return nil, fmt.Errorf("%w: key rule cannot be empty", ErrInvalidConfig)
	}
	v := validator.New()
	if err := checkTag(v, tag); err != nil {
		return nil, fmt.Errorf("%w: key rule %q: %v", ErrInvalidConfig, tag, err)
	}
	return func(key string) bool {
		return v.Var(key, tag) != nil
	}, nil
}

// checkTag runs the tag once; the validator panics on undefined tags
func checkTag(v *validator.Validate, tag string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	_ = v.Var("", tag)
	return nil
}
