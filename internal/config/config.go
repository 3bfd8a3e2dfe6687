// Package config loads run configuration from the environment (and an
// optional .env file).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tyler180/fbref-backends/internal/fbref"
)

// Sink kinds.
const (
	SinkDynamo = "dynamodb"
	SinkSQL    = "sql"
	SinkMemory = "memory"
)

type Config struct {
	// Source
	BaseURL   string
	Leagues   Leagues
	UserAgent string

	// Politeness and retries
	RequestDelay time.Duration
	HTTPTimeout  time.Duration
	RetryMax     int
	RetryDelay   time.Duration
	Workers      int

	// Sink
	Sink            string
	DatabaseURL     string
	MatchTable      string
	PlayerTable     string
	TotalsTable     string
	FixtureTable    string
	PositionSources []fbref.PositionSource

	// Export
	ExportDir    string
	ExportBucket string
	ExportPrefix string

	// Athena
	AthenaDB        string
	AthenaWorkgroup string
	AthenaOutput    string

	MetricsAddr string
	Debug       bool
	LogLevel    slog.Level
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	leagues, err := DefaultLeagues().Subset(envList("LEAGUES"))
	if err != nil {
		return nil, err
	}
	prec, err := fbref.ParsePositionPrecedence(envStr("POSITION_PRECEDENCE", ""))
	if err != nil {
		return nil, fmt.Errorf("POSITION_PRECEDENCE: %w", err)
	}

	c := &Config{
		BaseURL:   strings.TrimRight(envStr("FBREF_BASE_URL", fbref.DefaultBaseURL), "/"),
		Leagues:   leagues,
		UserAgent: envStr("USER_AGENT", ""),

		RequestDelay: envDuration("REQUEST_DELAY", 4*time.Second),
		HTTPTimeout:  envDuration("HTTP_TIMEOUT", 30*time.Second),
		RetryMax:     envInt("RETRY_MAX", 3),
		RetryDelay:   envDuration("RETRY_DELAY", 5*time.Second),
		Workers:      envInt("WORKERS", 1),

		Sink:            strings.ToLower(envStr("SINK", SinkDynamo)),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		MatchTable:      envStr("MATCH_TABLE_NAME", "fbref_player_matches"),
		PlayerTable:     envStr("PLAYER_TABLE_NAME", "fbref_players"),
		TotalsTable:     envStr("TOTALS_TABLE_NAME", "fbref_player_totals"),
		FixtureTable:    envStr("FIXTURE_TABLE_NAME", "fbref_fixtures"),
		PositionSources: prec,

		ExportDir:    envStr("EXPORT_DIR", "data"),
		ExportBucket: envStr("EXPORT_BUCKET", ""),
		ExportPrefix: envStr("EXPORT_PREFIX", "fbref/player_matches"),

		AthenaDB:        envStr("ATHENA_DB", ""),
		AthenaWorkgroup: envStr("ATHENA_WORKGROUP", "primary"),
		AthenaOutput:    envStr("ATHENA_OUTPUT", ""),

		MetricsAddr: envStr("METRICS_ADDR", ""),
		Debug:       envBool("DEBUG", false),
	}
	c.LogLevel = parseLevel(envStr("LOG_LEVEL", "info"))
	if c.Debug {
		c.LogLevel = slog.LevelDebug
	}
	return c, c.Validate()
}

func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1, got %d", c.Workers)
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("RETRY_MAX must be >= 0, got %d", c.RetryMax)
	}
	switch c.Sink {
	case SinkDynamo, SinkMemory:
	case SinkSQL:
		if c.DatabaseURL == "" {
			return fmt.Errorf("SINK=sql requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown SINK %q", c.Sink)
	}
	return nil
}

// Logger builds the process logger at the configured level.
func (c *Config) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: c.LogLevel}))
}

// ------------------ env helpers ------------------

func envStr(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envBool(k string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

// envDuration accepts Go durations ("4s") or bare seconds ("4").
func envDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envList(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
