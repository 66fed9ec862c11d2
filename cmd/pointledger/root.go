package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yourusername/pointledger/metrics"
	"github.com/yourusername/pointledger/pkg/pointledger"
	"github.com/yourusername/pointledger/store"
)

const Version = "1.0.0"

// app carries what the commands share once the root pre-run has finished
type app struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer

	config   *pointledger.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	registry *pointledger.Registry

	// scores and logs may be set before Execute to skip opening backends
	scores  store.ScoreStore
	logs    store.LogStore
	closers []io.Closer
}

func newApp(out, errOut io.Writer) *app {
	return &app{v: viper.New(), out: out, errOut: errOut}
}

// newRootCmd builds the command tree around a
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "pointledger",
		Short: "bounded score ledgers over Redis sorted sets",
		Long: fmt.Sprintf(`pointledger (v%s)

Named ledgers of key/score pairs with enforced bounds, an optional
creation/deletion audit trail and weighted sums across ledgers.

Flags can also be set through POINTLEDGER_<FLAG> environment variables
(e.g. POINTLEDGER_REDIS_ADDR=localhost:6379) or a .env file.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.String("config", "", wrap("YAML file defining the backend and the ledgers"))
	flags.String("ledger", "", wrap("Ledger the command operates on"))
	flags.Float64("min", 0, wrap("Minimum of --ledger when it is not defined in the config file"))
	flags.Float64("max", 0, wrap("Maximum of --ledger when it is not defined in the config file"))
	flags.Bool("log", false, wrap("Enable the audit trail of --ledger when it is not defined in the config file"))
	flags.String("backend", "", wrap("Score backend (memory, redis); overrides the config file"))
	flags.String("redis-addr", "", wrap("Redis address, e.g. localhost:6379"))
	flags.String("redis-password", "", wrap("Redis password"))
	flags.Int("redis-db", 0, wrap("Redis database number"))
	flags.String("redis-prefix", "", wrap("Prefix prepended to every Redis key"))
	flags.String("audit-db", "", wrap("SQLite file holding the audit logs"))
	flags.String("log-level", "info", wrap("Log level (debug, info, warn, error)"))
	flags.String("log-format", "text", wrap("Log format (text, json)"))

	root.AddCommand(
		newServeCmd(a),
		newCreateCmd(a),
		newGetCmd(a),
		newAddCmd(a),
		newDeleteCmd(a),
		newListCmd(a),
		newOutOfRangeCmd(a),
		newReapCmd(a),
		newWSumCmd(a),
		newReasonCmd(a),
		newLedgersCmd(a),
		newVersionCmd(a),
	)
	return root
}

// setup loads the environment and configuration and opens the stores
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	a.v.SetEnvPrefix("pointledger")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	logger, err := newLogger(a.errOut, a.v.GetString("log-level"), a.v.GetString("log-format"))
	if err != nil {
		return err
	}
	a.logger = logger

	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.config = config

	if a.scores == nil {
		if err := a.openStores(cmd.Context()); err != nil {
			return err
		}
	}

	a.metrics = metrics.NewMetrics()
	a.registry, err = pointledger.NewRegistry(config, a.scores, a.logs,
		pointledger.WithLogger(logger),
		pointledger.WithObserver(a.metrics),
	)
	return err
}

// execute runs root and closes whatever setup opened, also when setup or
// the command failed
func (a *app) execute(root *cobra.Command) (err error) {
	defer func() {
		if cerr := a.close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return root.Execute()
}

func (a *app) close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// loadConfig reads --config and applies flag and environment overrides
func (a *app) loadConfig() (*pointledger.Config, error) {
	config := pointledger.NewConfig()
	if path := a.v.GetString("config"); path != "" {
		loaded, err := pointledger.LoadConfigFromFile(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	if backend := a.v.GetString("backend"); backend != "" {
		config.Backend = backend
	}
	if addr := a.v.GetString("redis-addr"); addr != "" {
		config.Redis.Addr = addr
	}
	if pw := a.v.GetString("redis-password"); pw != "" {
		config.Redis.Password = pw
	}
	if db := a.v.GetInt("redis-db"); db != 0 {
		config.Redis.DB = db
	}
	if prefix := a.v.GetString("redis-prefix"); prefix != "" {
		config.Redis.Prefix = prefix
	}
	if path := a.v.GetString("audit-db"); path != "" {
		config.AuditDB = path
	}
	if addr := a.v.GetString("addr"); addr != "" {
		config.Server.Addr = addr
	}

	// An ad hoc ledger from --ledger/--min/--max
	if name := a.v.GetString("ledger"); name != "" {
		if _, ok := config.Ledgers[name]; !ok && (a.v.IsSet("min") || a.v.IsSet("max")) {
			min, max := a.v.GetFloat64("min"), a.v.GetFloat64("max")
			config.Ledgers[name] = pointledger.LedgerConfig{Min: &min, Max: &max, Log: a.v.GetBool("log")}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// openStores connects the configured score backend and audit database
func (a *app) openStores(ctx context.Context) error {
	switch a.config.Backend {
	case pointledger.BackendRedis:
		rs := store.NewRedisStore(store.RedisConfig{
			Addr:     a.config.Redis.Addr,
			Password: a.config.Redis.Password,
			DB:       a.config.Redis.DB,
			Prefix:   a.config.Redis.Prefix,
		})
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return fmt.Errorf("connecting to redis at %s: %w", a.config.Redis.Addr, err)
		}
		a.logger.Debug("connected to redis", "addr", a.config.Redis.Addr)
		a.scores = rs
		a.closers = append(a.closers, rs)
	default:
		a.logger.Warn("using in-memory storage, scores are lost on exit")
		a.scores = store.NewMemoryStore()
	}

	if a.config.AuditDB != "" {
		logs, err := store.NewSQLiteLogStore(a.config.AuditDB)
		if err != nil {
			return fmt.Errorf("opening audit database: %w", err)
		}
		a.logs = logs
		a.closers = append(a.closers, logs)
	}
	return nil
}

// ledger returns the ledger selected by --ledger
func (a *app) ledger() (*pointledger.Ledger, error) {
	name := a.v.GetString("ledger")
	if name == "" {
		return nil, fmt.Errorf("--ledger is required")
	}
	l, ok := a.registry.Ledger(name)
	if !ok {
		return nil, fmt.Errorf("ledger %q is not configured (define it in --config or pass --min and --max)", name)
	}
	return l, nil
}

// print writes v as indented JSON
func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (expected text or json)", format)
	}
}

// wrap wraps help text at 50 characters
func wrap(text string) string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > 50 {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

func main() {
	a := newApp(os.Stdout, os.Stderr)
	if err := a.execute(newRootCmd(a)); err != nil {
		os.Exit(1)
	}
}
