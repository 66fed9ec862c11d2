package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yourusername/pointledger/core"
	"github.com/yourusername/pointledger/pkg/pointledger"
)

// Handler serves ledger operations over a registry
type Handler struct {
	registry *pointledger.Registry
	logger   *slog.Logger
}

// NewHandler creates a new API handler
func NewHandler(registry *pointledger.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: registry, logger: logger}
}

// CreateRequest is the body of POST /ledgers/{name}/entries.
// Value accepts a JSON number or a numeric string.
type CreateRequest struct {
	Key    string `json:"key"`
	Value  any    `json:"value"`
	Reason string `json:"reason,omitempty"`
}

// AddRequest is the body of POST /ledgers/{name}/entries/{key}/add
type AddRequest struct {
	Change any `json:"change"`
}

// ReapRequest is the body of POST /ledgers/{name}/reap
type ReapRequest struct {
	Reason string `json:"reason"`
}

// WSumRequest is the body of POST /wsum
type WSumRequest struct {
	Destination string             `json:"destination"`
	Weights     map[string]float64 `json:"weights"`
}

// LedgerInfo describes a configured ledger
type LedgerInfo struct {
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Logging bool    `json:"logging"`
}

// PairsResponse lists pairs of one ledger
type PairsResponse struct {
	Ledger string      `json:"ledger"`
	Pairs  []core.Pair `json:"pairs"`
}

// OutOfRangeResponse lists the pairs outside a ledger's bounds
type OutOfRangeResponse struct {
	Ledger   string      `json:"ledger"`
	BelowMin []core.Pair `json:"below_min"`
	AboveMax []core.Pair `json:"above_max"`
}

// ReasonsResponse carries both audit records of a key
type ReasonsResponse struct {
	Create pointledger.Reason `json:"create"`
	Delete pointledger.Reason `json:"delete"`
}

// ReapResponse reports how many entries a reap removed
type ReapResponse struct {
	Ledger string `json:"ledger"`
	Reaped int64  `json:"reaped"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ListLedgers handles GET /ledgers
func (h *Handler) ListLedgers(w http.ResponseWriter, r *http.Request) {
	infos := make([]LedgerInfo, 0)
	for _, name := range h.registry.Names() {
		l, _ := h.registry.Ledger(name)
		b := l.Bounds()
		infos = append(infos, LedgerInfo{Name: name, Min: b.Min, Max: b.Max, Logging: l.LoggingEnabled()})
	}
	h.sendJSON(w, http.StatusOK, infos)
}

// Create handles POST /ledgers/{name}/entries
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledger(w, r)
	if !ok {
		return
	}

	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	value, err := number(req.Value, core.ParseValue, "create")
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}

	entry, err := l.Create(r.Context(), req.Key, value, req.Reason)
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusCreated, entry)
}

// Get handles GET /ledgers/{name}/entries/{key}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledger(w, r)
	if !ok {
		return
	}
	entry, err := l.Get(r.Context(), pathKey(r))
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, entry)
}

// Add handles POST /ledgers/{name}/entries/{key}/add
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledger(w, r)
	if !ok {
		return
	}

	var req AddRequest
	if !h.decode(w, r, &req) {
		return
	}
	change, err := number(req.Change, core.ParseChange, "add")
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}

	result, err := l.Add(r.Context(), pathKey(r), change)
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, result)
}

// Delete handles DELETE /ledgers/{name}/entries/{key}?reason=
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledger(w, r)
	if !ok {
		return
	}
	result, err := l.Delete(r.Context(), pathKey(r), r.URL.Query().Get("reason"))
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, result)
}

// Reasons handles GET /ledgers/{name}/entries/{key}/reasons
func (h *Handler) Reasons(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledger(w, r)
	if !ok {
		return
	}
	key := pathKey(r)

	created, err := l.GetCreateReason(r.Context(), key)
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	deleted, err := l.GetDeleteReason(r.Context(), key)
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, ReasonsResponse{Create: created, Delete: deleted})
}

// Pairs handles GET /ledgers/{name}/entries?low=&high=&raw=
//
// low and high default to -inf and +inf; prefix a bound with "(" to
// exclude it. raw=true returns keys as stored.
func (h *Handler) Pairs(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledger(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	low, err := parseBound(q.Get("low"), math.Inf(-1))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "non_numeric_value", "low: "+err.Error())
		return
	}
	high, err := parseBound(q.Get("high"), math.Inf(1))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "non_numeric_value", "high: "+err.Error())
		return
	}
	rng := core.Range{Low: low, High: high}

	var pairs []core.Pair
	if raw, _ := strconv.ParseBool(q.Get("raw")); raw {
		pairs, err = l.GetAllRawPairs(r.Context(), rng)
	} else {
		pairs, err = l.GetAllPairs(r.Context(), rng)
	}
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, PairsResponse{Ledger: l.Name(), Pairs: nonNil(pairs)})
}

// OutOfRange handles GET /ledgers/{name}/out-of-range
func (h *Handler) OutOfRange(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledger(w, r)
	if !ok {
		return
	}
	below, err := l.GetAllPairs(r.Context(), l.BelowMinRange())
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	above, err := l.GetAllPairs(r.Context(), l.AboveMaxRange())
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, OutOfRangeResponse{Ledger: l.Name(), BelowMin: nonNil(below), AboveMax: nonNil(above)})
}

// Reap handles POST /ledgers/{name}/reap
func (h *Handler) Reap(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledger(w, r)
	if !ok {
		return
	}
	var req ReapRequest
	if !h.decode(w, r, &req) {
		return
	}
	n, err := l.Reap(r.Context(), req.Reason)
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, ReapResponse{Ledger: l.Name(), Reaped: n})
}

// WSum handles POST /wsum
func (h *Handler) WSum(w http.ResponseWriter, r *http.Request) {
	var req WSumRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.registry.WSum(r.Context(), req.Destination, req.Weights)
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, result)
}

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) (*pointledger.Ledger, bool) {
	name := chi.URLParam(r, "name")
	l, ok := h.registry.Ledger(name)
	if !ok {
		h.sendError(w, http.StatusNotFound, "unknown_ledger", fmt.Sprintf("ledger %q is not configured", name))
	}
	return l, ok
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return false
	}
	return true
}

// pathKey returns the {key} path parameter. chi routes on RawPath when the
// request carries one, so only then is the parameter still escaped.
func pathKey(r *http.Request) string {
	key := chi.URLParam(r, "key")
	if r.URL.RawPath == "" {
		return key
	}
	if unescaped, err := url.PathUnescape(key); err == nil {
		return unescaped
	}
	return key
}

// number accepts a JSON number or a string parsed by parse
func number(v any, parse func(raw, op string) (float64, error), op string) (float64, error) {
	switch n := v.(type) {
	case float64:
		return parse(strconv.FormatFloat(n, 'g', -1, 64), op)
	case string:
		return parse(n, op)
	default:
		return parse("", op)
	}
}

// parseBound reads "5", "(5", "-inf" or "+inf"; empty gives def
func parseBound(raw string, def float64) (core.Bound, error) {
	if raw == "" {
		return core.Bound{Value: def}, nil
	}
	exclusive := strings.HasPrefix(raw, "(")
	v, err := strconv.ParseFloat(strings.TrimPrefix(raw, "("), 64)
	if err != nil || math.IsNaN(v) {
		return core.Bound{}, fmt.Errorf("invalid bound %q", raw)
	}
	return core.Bound{Value: v, Exclusive: exclusive && !math.IsInf(v, 0)}, nil
}

func nonNil(pairs []core.Pair) []core.Pair {
	if pairs == nil {
		return []core.Pair{}
	}
	return pairs
}

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidKey),
		errors.Is(err, core.ErrNonNumericValue),
		errors.Is(err, core.ErrNonNumericChange),
		errors.Is(err, core.ErrInvalidWeights):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNonExistentKey):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflictExists), errors.Is(err, core.ErrConflictTombstoned):
		return http.StatusConflict
	case errors.Is(err, core.ErrAboveMax), errors.Is(err, core.ErrBelowMin):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) sendLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	h.sendError(w, status, core.Code(err), err.Error())
}

func (h *Handler) sendJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.sendJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
