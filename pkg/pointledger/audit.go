package pointledger

import (
	"context"
	"strings"
	"time"

	"github.com/yourusername/pointledger/core"
	"github.com/yourusername/pointledger/store"
)

const (
	// TimestampLayout is the layout of audit record timestamps (always UTC)
	TimestampLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

	// recordSeparator splits an audit record into timestamp and reason
	recordSeparator = "---"

	createLogSuffix = "CreateLog"
	deleteLogSuffix = "DeleteLog"
)

// LogEntry is a parsed audit record
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason"`
}

// Time parses the record's timestamp
func (e LogEntry) Time() (time.Time, error) {
	return time.Parse(TimestampLayout, e.Timestamp)
}

// Reason is the audit record for a plaintext key. Found is false when
// logging is disabled or no record exists.
type Reason struct {
	Key       string `json:"key"`
	Timestamp string `json:"timestamp,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Found     bool   `json:"found"`
}

// parseRecord splits a record on the first separator
func parseRecord(record string) LogEntry {
	timestamp, reason, _ := strings.Cut(record, recordSeparator)
	return LogEntry{Timestamp: timestamp, Reason: reason}
}

// auditLog is the audit capability of a ledger. It is chosen once at
// construction: either store-backed or a no-op.
type auditLog interface {
	enabled() bool
	createLog() string
	deleteLog() string
	record(reason string) string
	insert(ctx context.Context, logName, encodedKey, reason string) (bool, error)
	entry(ctx context.Context, logName, encodedKey string) (*LogEntry, error)
	inDeleteLog(ctx context.Context, encodedKey string) (bool, error)
	// backedBy reports whether the logs live in s itself
	backedBy(s store.ScoreStore) bool
}

// storeAudit writes records into a LogStore under <name>CreateLog / <name>DeleteLog
type storeAudit struct {
	name string
	logs store.LogStore
	now  func() time.Time
}

func newStoreAudit(name string, logs store.LogStore, now func() time.Time) *storeAudit {
	return &storeAudit{name: name, logs: logs, now: now}
}

func (a *storeAudit) enabled() bool     { return true }
func (a *storeAudit) createLog() string { return a.name + createLogSuffix }
func (a *storeAudit) deleteLog() string { return a.name + deleteLogSuffix }

func (a *storeAudit) record(reason string) string {
	return a.now().UTC().Format(TimestampLayout) + recordSeparator + reason
}

// owns reports whether logName is one of this ledger's two logs
func (a *storeAudit) owns(logName string) bool {
	return logName == a.createLog() || logName == a.deleteLog()
}

func (a *storeAudit) insert(ctx context.Context, logName, encodedKey, reason string) (bool, error) {
	if !a.owns(logName) {
		return false, nil
	}
	if err := a.logs.SetField(ctx, logName, encodedKey, a.record(reason)); err != nil {
		return false, err
	}
	return true, nil
}

func (a *storeAudit) entry(ctx context.Context, logName, encodedKey string) (*LogEntry, error) {
	if !a.owns(logName) {
		return nil, nil
	}
	record, found, err := a.logs.GetField(ctx, logName, encodedKey)
	if err != nil || !found {
		return nil, err
	}
	e := parseRecord(record)
	return &e, nil
}

func (a *storeAudit) inDeleteLog(ctx context.Context, encodedKey string) (bool, error) {
	return a.logs.HasField(ctx, a.deleteLog(), encodedKey)
}

func (a *storeAudit) backedBy(s store.ScoreStore) bool {
	ls, ok := s.(store.LogStore)
	return ok && ls == a.logs
}

// noAudit is the disabled audit log
type noAudit struct{}

func (noAudit) enabled() bool                  { return false }
func (noAudit) createLog() string              { return "" }
func (noAudit) deleteLog() string              { return "" }
func (noAudit) record(string) string           { return "" }
func (noAudit) backedBy(store.ScoreStore) bool { return false }

func (noAudit) insert(context.Context, string, string, string) (bool, error) {
	return false, nil
}

func (noAudit) entry(context.Context, string, string) (*LogEntry, error) {
	return nil, nil
}

func (noAudit) inDeleteLog(context.Context, string) (bool, error) {
	return false, nil
}

// CreateLog returns the name of the creation log, or "" with logging disabled
func (l *Ledger) CreateLog() string { return l.audit.createLog() }

// DeleteLog returns the name of the deletion log, or "" with logging disabled
func (l *Ledger) DeleteLog() string { return l.audit.deleteLog() }

// InsertIntoLog writes a "<timestamp>---<reason>" record for encodedKey into
// logName, replacing any previous record. It reports false without writing
// when logging is disabled or logName is not this ledger's CreateLog or
// DeleteLog.
func (l *Ledger) InsertIntoLog(ctx context.Context, logName, encodedKey, reason string) (bool, error) {
	written, err := l.audit.insert(ctx, logName, encodedKey, reason)
	if err != nil {
		return false, core.StoreError("insertIntoLog", err)
	}
	return written, nil
}

// GetParsedLogEntry reads the record for encodedKey from logName. It returns
// nil when logging is disabled, logName is foreign or no record exists.
func (l *Ledger) GetParsedLogEntry(ctx context.Context, logName, encodedKey string) (*LogEntry, error) {
	e, err := l.audit.entry(ctx, logName, encodedKey)
	if err != nil {
		return nil, core.StoreError("getParsedLogEntry", err)
	}
	return e, nil
}

// InDeleteLog reports whether encodedKey carries a tombstone
func (l *Ledger) InDeleteLog(ctx context.Context, encodedKey string) (bool, error) {
	tombstoned, err := l.audit.inDeleteLog(ctx, encodedKey)
	if err != nil {
		return false, core.StoreError("inDeleteLog", err)
	}
	return tombstoned, nil
}

// GetCreateReason returns the creation record of a plaintext key
func (l *Ledger) GetCreateReason(ctx context.Context, key string) (Reason, error) {
	return l.reason(ctx, l.audit.createLog(), key)
}

// GetDeleteReason returns the deletion record of a plaintext key
func (l *Ledger) GetDeleteReason(ctx context.Context, key string) (Reason, error) {
	return l.reason(ctx, l.audit.deleteLog(), key)
}

func (l *Ledger) reason(ctx context.Context, logName, key string) (Reason, error) {
	e, err := l.GetParsedLogEntry(ctx, logName, l.codec.Encode(key))
	if err != nil || e == nil {
		return Reason{Key: key}, err
	}
	return Reason{Key: key, Timestamp: e.Timestamp, Reason: e.Reason, Found: true}, nil
}
