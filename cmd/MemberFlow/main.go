package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/MemberFlow/internal/api"
	"github.com/BTreeMap/MemberFlow/internal/flow"
	"github.com/BTreeMap/MemberFlow/internal/genai"
	"github.com/BTreeMap/MemberFlow/internal/lockfile"
	"github.com/BTreeMap/MemberFlow/internal/metrics"
	"github.com/BTreeMap/MemberFlow/internal/scheduler"
	"github.com/BTreeMap/MemberFlow/internal/store"
	"github.com/BTreeMap/MemberFlow/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for MemberFlow state data
	DefaultStateDir = "/var/lib/memberflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "memberflow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping MemberFlow with configured modules")
	if err := run(ctx, flags); err != nil {
		slog.Error("MemberFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("MemberFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir       string
	DatabaseURL    string
	RedisAddr      string
	OpenAIKey      string
	OpenAIModel    string
	APIAddr        string
	AITimeout      time.Duration
	AIMaxTokens    int
	PreviewTTL     time.Duration
	SavedTTL       time.Duration
	DedupWindow    time.Duration
	SweepInterval  time.Duration
	SweepSchedule  string
	MembershipOpen bool
	FlowCatalog    string
	MetricsEnabled bool
	JWTSecret      string
}

// Flags holds command line flag values
type Flags struct {
	stateDir       *string
	dbDSN          *string
	redisAddr      *string
	openaiKey      *string
	openaiModel    *string
	apiAddr        *string
	aiTimeout      *time.Duration
	aiMaxTokens    *int
	previewTTL     *time.Duration
	savedTTL       *time.Duration
	dedupWindow    *time.Duration
	sweepInterval  *time.Duration
	sweepSchedule  *string
	membershipOpen *bool
	flowCatalog    *string
	metricsEnabled *bool
	jwtSecret      *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:       os.Getenv("MEMBERFLOW_STATE_DIR"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		APIAddr:        os.Getenv("API_ADDR"),
		AITimeout:      util.ParseDurationEnv("AI_TIMEOUT", flow.DefaultAITimeout),
		AIMaxTokens:    util.ParseIntEnv("AI_MAX_TOKENS", flow.DefaultMaxTokens),
		PreviewTTL:     util.ParseDurationEnv("PREVIEW_TTL", flow.DefaultPreviewTTL),
		SavedTTL:       util.ParseDurationEnv("SAVED_TTL", flow.DefaultSavedTTL),
		DedupWindow:    util.ParseDurationEnv("DEDUP_WINDOW", flow.DefaultDedupWindow),
		SweepInterval:  util.ParseDurationEnv("SWEEP_INTERVAL", store.DefaultSweepInterval),
		SweepSchedule:  os.Getenv("SWEEP_SCHEDULE"),
		MembershipOpen: util.ParseBoolEnv("MEMBERSHIP_OPEN", false),
		FlowCatalog:    os.Getenv("FLOW_CATALOG"),
		MetricsEnabled: util.ParseBoolEnv("METRICS_ENABLED", true),
		JWTSecret:      os.Getenv("JWT_SECRET"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No MEMBERFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Without a database URL, fall back to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"MEMBERFLOW_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"REDIS_ADDR", config.RedisAddr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"API_ADDR", config.APIAddr,
		"SWEEP_SCHEDULE", config.SweepSchedule,
		"MEMBERSHIP_OPEN", config.MembershipOpen,
		"FLOW_CATALOG", config.FlowCatalog,
		"METRICS_ENABLED", config.MetricsEnabled,
		"JWT_SECRET_SET", config.JWTSecret != "")

	return config
}

// parseCommandLineFlags parses args with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) Flags {
	flags := Flags{
		stateDir:       fs.String("state-dir", config.StateDir, "state directory for MemberFlow data (overrides $MEMBERFLOW_STATE_DIR)"),
		dbDSN:          fs.String("db-dsn", config.DatabaseURL, "database DSN, a SQLite path or Postgres URL (overrides $DATABASE_URL)"),
		redisAddr:      fs.String("redis-addr", config.RedisAddr, "Redis address for shared idempotency keys (overrides $REDIS_ADDR)"),
		openaiKey:      fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:    fs.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		apiAddr:        fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		aiTimeout:      fs.Duration("ai-timeout", config.AITimeout, "timeout for one AI completion (overrides $AI_TIMEOUT)"),
		aiMaxTokens:    fs.Int("ai-max-tokens", config.AIMaxTokens, "completion token limit (overrides $AI_MAX_TOKENS)"),
		previewTTL:     fs.Duration("preview-ttl", config.PreviewTTL, "lifetime of generated previews (overrides $PREVIEW_TTL)"),
		savedTTL:       fs.Duration("saved-ttl", config.SavedTTL, "lifetime of saved artifacts (overrides $SAVED_TTL)"),
		dedupWindow:    fs.Duration("dedup-window", config.DedupWindow, "duplicate submission window (overrides $DEDUP_WINDOW)"),
		sweepInterval:  fs.Duration("sweep-interval", config.SweepInterval, "interval between expiry sweeps (overrides $SWEEP_INTERVAL)"),
		sweepSchedule:  fs.String("sweep-schedule", config.SweepSchedule, "cron schedule for expiry sweeps, replaces the interval (overrides $SWEEP_SCHEDULE)"),
		membershipOpen: fs.Bool("membership-open", config.MembershipOpen, "admit every identified subject (overrides $MEMBERSHIP_OPEN)"),
		flowCatalog:    fs.String("flow-catalog", config.FlowCatalog, "YAML file overriding built-in question sets (overrides $FLOW_CATALOG)"),
		metricsEnabled: fs.Bool("metrics", config.MetricsEnabled, "serve Prometheus metrics at /metrics (overrides $METRICS_ENABLED)"),
		jwtSecret:      fs.String("jwt-secret", config.JWTSecret, "HS256 secret for bearer token identity, replaces identity headers (overrides $JWT_SECRET)"),
	}

	if err := fs.Parse(args); err != nil {
		slog.Warn("parseCommandLineFlags: failed to parse flags", "error", err)
	}

	// Follow a relocated state directory when the DSN is still the default SQLite path
	defaultDSN := filepath.Join(config.StateDir, DefaultDBFileName)
	if *flags.dbDSN == defaultDSN && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"redisAddr", *flags.redisAddr,
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"membershipOpen", *flags.membershipOpen,
		"flowCatalog", *flags.flowCatalog,
		"metrics", *flags.metricsEnabled,
		"jwtSecretSet", *flags.jwtSecret != "")

	return flags
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" && *flags.dbDSN != "" {
		lock, err := lockfile.Acquire(filepath.Dir(*flags.dbDSN))
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := openStore(flags)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("Failed to close store", "error", err)
		}
	}()

	var idem store.IdempotencyStore = st
	if *flags.redisAddr != "" {
		rs, err := store.NewRedisIdempotencyStore(ctx, *flags.redisAddr)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rs.Close()
		idem = rs
		slog.Info("Using Redis for idempotency keys", "addr", *flags.redisAddr)
	}

	ai, err := buildCompleter(flags)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(flags)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if *flags.metricsEnabled {
		m = metrics.NewMetrics()
	}

	dispatcher := flow.NewDispatcher(registry, ai, st, idem, buildDispatcherOptions(flags, m)...)
	engine := flow.NewEngine(registry, dispatcher)
	library := flow.NewLibrary(st, idem, st, *flags.savedTTL, *flags.dedupWindow)

	var membership api.Membership = api.ProfileMembership{Profiles: st}
	if *flags.membershipOpen {
		slog.Warn("MEMBERSHIP_OPEN set, every identified subject is admitted")
		membership = api.OpenMembership{}
	}

	sweeper := store.NewSweeper(st, idem, *flags.sweepInterval)
	if m != nil {
		sweeper.OnSweep(func(artifacts, keys int64) {
			m.Swept("artifacts", artifacts)
			m.Swept("keys", keys)
		})
	}
	stopSweeps, err := startSweeps(ctx, sweeper, *flags.sweepSchedule)
	if err != nil {
		return err
	}
	defer stopSweeps()

	server := api.NewServer(engine, library, st, membership, buildAPIOptions(flags, m)...)
	return server.Run(ctx)
}

// startSweeps runs the sweeper on the cron schedule when one is given, and on
// its fixed interval otherwise. The returned function stops scheduled sweeps.
func startSweeps(ctx context.Context, sweeper *store.Sweeper, schedule string) (func(), error) {
	if schedule == "" {
		go sweeper.Run(ctx)
		return func() {}, nil
	}
	sched := scheduler.NewScheduler()
	if err := sched.AddJob("expiry-sweep", schedule, func() { sweeper.SweepOnce(ctx) }); err != nil {
		return nil, err
	}
	sched.Start()
	slog.Info("Expiry sweeps scheduled", "schedule", schedule)
	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}, nil
}

// openStore opens the persistent store selected by the DSN.
func openStore(flags Flags) (store.Store, error) {
	opts := buildStoreOptions(flags)
	if len(opts) == 0 {
		slog.Warn("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		pg, err := store.NewPostgresStore(opts...)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return pg, nil
	}
	lite, err := store.NewSQLiteStore(opts...)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return lite, nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	if *flags.aiTimeout > 0 {
		genaiOpts = append(genaiOpts, genai.WithTimeout(*flags.aiTimeout))
	}
	return genaiOpts
}

// buildCompleter returns the AI backend, or nil when no API key is configured.
func buildCompleter(flags Flags) (flow.Completer, error) {
	if *flags.openaiKey == "" {
		slog.Info("No OpenAI API key configured, documents will be generated from templates")
		return nil, nil
	}
	cli, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return cli, nil
}

// buildRegistry builds the flow registry, applying the catalog file if one is set.
func buildRegistry(flags Flags) (*flow.Registry, error) {
	if *flags.flowCatalog == "" {
		return flow.DefaultRegistry(), nil
	}
	overrides, err := flow.LoadCatalogFile(*flags.flowCatalog)
	if err != nil {
		return nil, err
	}
	registry, err := flow.NewRegistry(flow.MergeCatalog(flow.Catalog(), overrides)...)
	if err != nil {
		return nil, fmt.Errorf("build flow registry: %w", err)
	}
	slog.Info("Flow catalog overrides applied", "path", *flags.flowCatalog, "flows", len(overrides))
	return registry, nil
}

// buildDispatcherOptions constructs generation dispatcher options
func buildDispatcherOptions(flags Flags, m *metrics.Metrics) []flow.DispatcherOption {
	opts := []flow.DispatcherOption{
		flow.WithPreviewTTL(*flags.previewTTL),
		flow.WithDedupWindow(*flags.dedupWindow),
		flow.WithAITimeout(*flags.aiTimeout),
		flow.WithMaxTokens(*flags.aiMaxTokens),
	}
	if m != nil {
		opts = append(opts, flow.WithMetrics(m))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, m *metrics.Metrics) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if m != nil {
		apiOpts = append(apiOpts, api.WithMetrics(m))
	}
	if *flags.jwtSecret != "" {
		apiOpts = append(apiOpts, api.WithTokenSecret(*flags.jwtSecret))
	}
	return apiOpts
}
