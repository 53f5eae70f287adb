// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// operator API, logging, the datastore, the polling engine, outbound platform
// connectors, moderation, the reply responder, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the datastore.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // PostgreSQL DSN
}

// PollConfig controls the polling orchestrator.
type PollConfig struct {
	Interval    time.Duration // trigger interval
	TickBudget  time.Duration // hard wall-clock budget per tick
	PostTimeout time.Duration // per-post connector budget
	Workers     int           // concurrent posts per tick
	BatchSize   int           // max due posts per tick

	ReplyRescanParents int           // recent parents whose replies are re-read; <0 disables
	ReplyRescanWindow  time.Duration // how old a rescanned parent may be
}

// RetryConfig is the backoff policy for outbound connector calls.
type RetryConfig struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

// InstagramConfig configures the Instagram Graph connector.
type InstagramConfig struct {
	APIBase   string
	RateRPS   float64
	RateBurst int
	MaxPages  int
	Timeout   time.Duration
}

// ModerationConfig configures the external moderation capability.
type ModerationConfig struct {
	Enabled       bool
	URL           string
	APIKey        string
	Model         string
	FailurePolicy string // fail_closed|fail_open
	FlaggedAction string // ignore|escalate
	Timeout       time.Duration
}

// ResponderConfig selects the reply drafting backend.
type ResponderConfig struct {
	Provider     string // gemini|template
	GeminiAPIKey string
	GeminiModel  string
	Template     string

	// KnowledgePath is an optional Markdown FAQ whose facts are offered
	// to the generative backend.
	KnowledgePath string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 5m, force polls run synchronously
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // e.g. 1<<20
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	DB         DBConfig
	Poll       PollConfig
	Retry      RetryConfig
	Instagram  InstagramConfig
	Moderation ModerationConfig
	Responder  ResponderConfig

	// OperatorToken guards the operator API; empty disables the check.
	OperatorToken string

	// Rate limiting for the operator API
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	CORS CORSConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 5*time.Minute),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "engage.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Poll: PollConfig{
			Interval:    getdur("POLL_INTERVAL", 5*time.Minute),
			TickBudget:  getdur("POLL_TICK_BUDGET", 4*time.Minute),
			PostTimeout: getdur("POLL_POST_TIMEOUT", 15*time.Second),
			Workers:     getint("POLL_WORKERS", 4),
			BatchSize:   getint("POLL_BATCH_SIZE", 100),

			ReplyRescanParents: getint("POLL_REPLY_RESCAN_PARENTS", 10),
			ReplyRescanWindow:  getdur("POLL_REPLY_RESCAN_WINDOW", 72*time.Hour),
		},
		Retry: RetryConfig{
			BaseDelay:  getdur("RETRY_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:   getdur("RETRY_MAX_DELAY", 8*time.Second),
			MaxRetries: getint("RETRY_MAX_RETRIES", 3),
		},
		Instagram: InstagramConfig{
			APIBase:   strings.TrimRight(getenv("INSTAGRAM_API_BASE", "https://graph.facebook.com/v21.0"), "/"),
			RateRPS:   getfloat("INSTAGRAM_RATE_RPS", 3),
			RateBurst: getint("INSTAGRAM_RATE_BURST", 5),
			MaxPages:  getint("INSTAGRAM_MAX_PAGES", 5),
			Timeout:   getdur("INSTAGRAM_HTTP_TIMEOUT", 10*time.Second),
		},
		Moderation: ModerationConfig{
			Enabled:       getbool("MODERATION_ENABLED", false),
			URL:           getenv("MODERATION_URL", "https://api.openai.com/v1/moderations"),
			APIKey:        getenv("MODERATION_API_KEY", ""),
			Model:         getenv("MODERATION_MODEL", "omni-moderation-latest"),
			FailurePolicy: strings.ToLower(getenv("MODERATION_FAILURE_POLICY", "fail_closed")),
			FlaggedAction: strings.ToLower(getenv("MODERATION_FLAGGED_ACTION", "ignore")),
			Timeout:       getdur("MODERATION_TIMEOUT", 5*time.Second),
		},
		Responder: ResponderConfig{
			Provider:     strings.ToLower(getenv("RESPONDER_PROVIDER", "template")),
			GeminiAPIKey: getenv("GEMINI_API_KEY", ""),
			GeminiModel:  getenv("GEMINI_MODEL", "gemini-2.5-flash"),
			Template:     getenv("RESPONDER_TEMPLATE", "Thanks for your comment, @%s! We'll follow up shortly."),

			KnowledgePath: getenv("RESPONDER_KNOWLEDGE_PATH", ""),
		},

		OperatorToken: strings.TrimSpace(getenv("OPERATOR_TOKEN", "")),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-engage-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pg" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Poll.Interval <= 0 || cfg.Poll.TickBudget <= 0 || cfg.Poll.PostTimeout <= 0 {
		return cfg, errors.New("poll durations must be positive")
	}
	if cfg.Poll.TickBudget > cfg.Poll.Interval {
		return cfg, errors.New("POLL_TICK_BUDGET must not exceed POLL_INTERVAL")
	}
	if cfg.Poll.Workers < 1 || cfg.Poll.BatchSize < 1 {
		return cfg, errors.New("POLL_WORKERS and POLL_BATCH_SIZE must be >= 1")
	}
	if cfg.Retry.BaseDelay <= 0 || cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		return cfg, errors.New("RETRY_BASE_DELAY must be > 0 and <= RETRY_MAX_DELAY")
	}
	if cfg.Retry.MaxRetries < 0 || cfg.Retry.MaxRetries > 10 {
		return cfg, errors.New("RETRY_MAX_RETRIES must be in [0,10]")
	}
	if cfg.Instagram.RateRPS <= 0 || cfg.Instagram.RateBurst < 1 || cfg.Instagram.MaxPages < 1 {
		return cfg, errors.New("INSTAGRAM_RATE_RPS, INSTAGRAM_RATE_BURST and INSTAGRAM_MAX_PAGES must be positive")
	}
	switch cfg.Moderation.FailurePolicy {
	case "fail_closed", "fail_open":
	default:
		return cfg, errors.New("MODERATION_FAILURE_POLICY must be one of: fail_closed, fail_open")
	}
	switch cfg.Moderation.FlaggedAction {
	case "ignore", "escalate":
	default:
		return cfg, errors.New("MODERATION_FLAGGED_ACTION must be one of: ignore, escalate")
	}
	if cfg.Moderation.Enabled && strings.TrimSpace(cfg.Moderation.APIKey) == "" {
		return cfg, errors.New("MODERATION_API_KEY is required when MODERATION_ENABLED=true")
	}
	switch cfg.Responder.Provider {
	case "template":
	case "gemini":
		if strings.TrimSpace(cfg.Responder.GeminiAPIKey) == "" {
			return cfg, errors.New("GEMINI_API_KEY is required when RESPONDER_PROVIDER=gemini")
		}
	default:
		return cfg, errors.New("RESPONDER_PROVIDER must be one of: gemini, template")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
