package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"kewangan/internal/classify"
)

type Config struct {
	// Backend selection
	DataBackend string `koanf:"DATA_BACKEND"`

	// Database
	SQLiteDBPath  string         `koanf:"SQLITE_DB_PATH"`
	MemoryDataDir string         `koanf:"MEMORY_DATA_DIR"`
	Postgres      PostgresConfig `koanf:",squash"`

	// AMQP
	AMQPURL      string `koanf:"AMQP_URL"`
	AMQPExchange string `koanf:"AMQP_EXCHANGE"`
	AMQPQueue    string `koanf:"AMQP_QUEUE"`

	// Organization
	OrgName                 string   `koanf:"ORG_NAME"`
	OrgShortCode            string   `koanf:"ORG_SHORT_CODE"`
	GeneralDonationCategory string   `koanf:"GENERAL_DONATION_CATEGORY"`
	FallbackTransferMarkers []string `koanf:"FALLBACK_TRANSFER_MARKERS"`

	// Reports
	ReportCacheSize int           `koanf:"REPORT_CACHE_SIZE"`
	ReportCacheTTL  time.Duration `koanf:"REPORT_CACHE_TTL"`

	// Worker
	NotaRefreshInterval time.Duration `koanf:"NOTA_REFRESH_INTERVAL"`

	// Logging
	LogLevel  string `koanf:"LOG_LEVEL"`
	LogFormat string `koanf:"LOG_FORMAT"`
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string `koanf:"POSTGRES_HOST"`
	Port     int    `koanf:"POSTGRES_PORT"`
	Database string `koanf:"POSTGRES_DB"`
	User     string `koanf:"POSTGRES_USER"`
	Password string `koanf:"POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"POSTGRES_SSLMODE"`
}

var validBackends = []string{"memory", "postgres", "sqlite"}

// listKeys are comma-separated variables.
var listKeys = []string{"FALLBACK_TRANSFER_MARKERS"}

// Defaults returns the configuration used for every unset variable.
func Defaults() *Config {
	return &Config{
		DataBackend:   "memory",
		SQLiteDBPath:  "./data/kewangan.db",
		MemoryDataDir: "data",
		Postgres: PostgresConfig{
			Port:    5432,
			SSLMode: "disable",
		},

		AMQPExchange: "kewangan",
		AMQPQueue:    "ledger_changed",

		GeneralDonationCategory: classify.DefaultDonationCategory,
		FallbackTransferMarkers: classify.DefaultFallbackConfig().TransferMarkers,

		ReportCacheSize: 8,
		ReportCacheTTL:  10 * time.Minute,

		NotaRefreshInterval: time.Hour,

		LogLevel:  "INFO",
		LogFormat: "text",
	}
}

// Load reads the configuration from the environment over Defaults. Empty
// variables count as unset.
func Load() (*Config, error) {
	k := koanf.New(".")
	provider := env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		if strings.TrimSpace(value) == "" {
			return "", nil
		}
		if slices.Contains(listKeys, key) {
			return key, strings.Split(value, ",")
		}
		return key, value
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Defaults()
	if k.Exists("FALLBACK_TRANSFER_MARKERS") {
		cfg.FallbackTransferMarkers = nil
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.FallbackTransferMarkers = trimAll(cfg.FallbackTransferMarkers)
	return cfg, nil
}

// Fallback returns the fallback rule configuration. The organization's name
// and short code are transfer markers in addition to the configured ones.
func (c *Config) Fallback() classify.FallbackConfig {
	markers := slices.Clone(c.FallbackTransferMarkers)
	for _, m := range []string{c.OrgName, c.OrgShortCode} {
		if m = strings.TrimSpace(m); m != "" {
			markers = append(markers, m)
		}
	}
	return classify.FallbackConfig{
		DonationCategory: c.GeneralDonationCategory,
		TransferMarkers:  markers,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate data backend
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == "postgres" {
		if c.Postgres.Host == "" {
			errors = append(errors, "POSTGRES_HOST is required when using postgres backend")
		}
		if c.Postgres.Database == "" {
			errors = append(errors, "POSTGRES_DB is required when using postgres backend")
		}
		if c.Postgres.Port < 1 || c.Postgres.Port > 65535 {
			errors = append(errors, fmt.Sprintf("invalid postgres port %d: must be between 1 and 65535", c.Postgres.Port))
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if strings.TrimSpace(c.GeneralDonationCategory) == "" {
		errors = append(errors, "general donation category cannot be empty")
	}

	if c.ReportCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid report cache size %d: must not be negative", c.ReportCacheSize))
	}
	if c.ReportCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid report cache TTL %v: must not be negative", c.ReportCacheTTL))
	}

	if c.NotaRefreshInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid nota refresh interval %v: must be at least 1 minute", c.NotaRefreshInterval))
	} else if c.NotaRefreshInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid nota refresh interval %v: must be at most 24 hours", c.NotaRefreshInterval))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
