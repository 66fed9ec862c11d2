package pointledger

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yourusername/pointledger/core"
	"github.com/yourusername/pointledger/store"
)

// Backends understood by Config.Backend
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config describes a pointledger deployment: where scores live and which
// ledgers exist.
type Config struct {
	// Backend selects the score store: "memory" or "redis"
	Backend string `yaml:"backend"`

	// Redis is used when Backend is "redis"
	Redis RedisConfig `yaml:"redis,omitempty"`

	// AuditDB is an optional SQLite file holding the audit logs.
	// Empty keeps the logs in the score backend.
	AuditDB string `yaml:"audit_db,omitempty"`

	// Server configures the HTTP API
	Server ServerConfig `yaml:"server,omitempty"`

	// Ledgers maps ledger names to their settings
	Ledgers map[string]LedgerConfig `yaml:"ledgers"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`

	// Prefix is prepended to every Redis key, e.g. "pointledger:"
	Prefix string `yaml:"prefix,omitempty"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// Budget, when set, charges a ledger for every API request
	Budget *BudgetConfig `yaml:"budget,omitempty"`
}

// BudgetConfig configures the request budget middleware
type BudgetConfig struct {
	// Ledger is the name of the ledger that is debited
	Ledger string `yaml:"ledger"`

	// Cost is subtracted per request
	Cost float64 `yaml:"cost"`

	// Initial is the balance of a key seen for the first time
	Initial float64 `yaml:"initial"`

	// KeyExtractor identifies clients: "ip", "ip-proxy", "header:X-API-Key", ...
	KeyExtractor string `yaml:"key_extractor,omitempty"`
}

// LedgerConfig defines one ledger
type LedgerConfig struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`

	// Log enables the creation/deletion audit trail
	Log bool `yaml:"log,omitempty"`

	// Codec names a built-in key codec: identity, reverse, hex, base64
	Codec string `yaml:"codec,omitempty"`

	// KeyRule is a validator tag keys must satisfy, e.g. "len=8,alphanum".
	// Empty accepts any non-empty key.
	KeyRule string `yaml:"key_rule,omitempty"`

	// PageSize overrides DefaultPageSize for scans
	PageSize int64 `yaml:"page_size,omitempty"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Backend: BackendMemory,
		Server:  ServerConfig{Addr: ":8080"},
		Ledgers: make(map[string]LedgerConfig),
	}
}

// LoadConfigFromFile loads configuration from a YAML file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, applies defaults and validates it.
func ParseConfig(data []byte) (*Config, error) {
	config := NewConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	// Apply defaults if not set
	if config.Backend == "" {
		config.Backend = BackendMemory
	}
	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Ledgers == nil {
		config.Ledgers = make(map[string]LedgerConfig)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis backend needs an address", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}

	for name, ledger := range c.Ledgers {
		if name == "" {
			return fmt.Errorf("%w: ledger name cannot be empty", ErrInvalidConfig)
		}
		if err := ledger.Validate(); err != nil {
			return fmt.Errorf("%w: invalid ledger %s: %v", ErrInvalidConfig, name, err)
		}
	}

	if b := c.Server.Budget; b != nil {
		if _, ok := c.Ledgers[b.Ledger]; !ok {
			return fmt.Errorf("%w: budget ledger %q is not defined", ErrInvalidConfig, b.Ledger)
		}
		if b.Cost <= 0 || math.IsInf(b.Cost, 0) || math.IsNaN(b.Cost) {
			return fmt.Errorf("%w: budget cost must be a positive number", ErrInvalidConfig)
		}
	}

	return nil
}

// Validate checks if a LedgerConfig is valid.
func (lc LedgerConfig) Validate() error {
	if lc.Min == nil || lc.Max == nil {
		return fmt.Errorf("min and max are required")
	}
	min, max := *lc.Min, *lc.Max
	if math.IsNaN(min) || math.IsInf(min, 0) || math.IsNaN(max) || math.IsInf(max, 0) {
		return fmt.Errorf("bounds must be finite numbers")
	}
	if min > max {
		return fmt.Errorf("min %s is above max %s", core.FormatScore(min), core.FormatScore(max))
	}
	if lc.PageSize < 0 {
		return fmt.Errorf("page size cannot be negative")
	}
	if _, err := ParseCodec(lc.Codec); err != nil {
		return err
	}
	if _, err := lc.keyPolicy(); err != nil {
		return err
	}
	return nil
}

func (lc LedgerConfig) keyPolicy() (core.KeyPolicy, error) {
	if lc.KeyRule == "" {
		return core.NonEmpty(), nil
	}
	policy, err := core.TagPolicy(lc.KeyRule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return policy, nil
}

// FromConfig builds the ledger name from lc. logs may be nil, in which
// case a logging ledger keeps its audit trail in scores. Extra options are
// applied last.
func FromConfig(name string, lc LedgerConfig, scores store.ScoreStore, logs store.LogStore, opts ...Option) (*Ledger, error) {
	if err := lc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid ledger %s: %v", ErrInvalidConfig, name, err)
	}

	codec, err := ParseCodec(lc.Codec)
	if err != nil {
		return nil, err
	}
	policy, err := lc.keyPolicy()
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithName(name),
		WithBounds(*lc.Min, *lc.Max),
		WithCodec(codec),
		WithKeyPolicy(policy),
		WithStore(scores),
		WithLogging(lc.Log),
	}
	if logs != nil {
		base = append(base, WithLogStore(logs))
	}
	if lc.PageSize > 0 {
		base = append(base, WithPageSize(lc.PageSize))
	}
	return New(append(base, opts...)...)
}
