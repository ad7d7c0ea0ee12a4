package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	APIKey         string
	BaseURL        string
	MaxPages       int
	RequestDelay   time.Duration
	PopularDelay   time.Duration
	RequestTimeout time.Duration

	RawDir       string
	ProcessedDir string
	MetricsPath  string

	StoreDriver      string
	SQLitePath       string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	MaxRetries       int

	S3Bucket  string
	S3Prefix  string
	AWSRegion string

	LogLevel  string
	LogFormat string
}

var defaults = map[string]any{
	"TMDB_BASE_URL":        "https://api.themoviedb.org",
	"MAX_PAGES":            501,
	"REQUEST_DELAY_MS":     300,
	"POPULAR_DELAY_MS":     200,
	"REQUEST_TIMEOUT_SECS": 10,

	"RAW_DIR":       "data/raw",
	"PROCESSED_DIR": "data/processed",
	"METRICS_PATH":  "data/metrics.prom",

	"STORE_DRIVER":      "sqlite",
	"SQLITE_PATH":       "data/tmdb_etl.db",
	"POSTGRES_HOST":     "localhost",
	"POSTGRES_PORT":     "5432",
	"POSTGRES_USER":     "tmdb",
	"POSTGRES_PASSWORD": "tmdb",
	"POSTGRES_DB":       "tmdb_etl",
	"POSTGRES_SSLMODE":  "disable",
	"MAX_RETRIES":       3,

	"S3_PREFIX":  "tmdb/processed",
	"AWS_REGION": "us-east-1",

	"LOG_LEVEL":  "info",
	"LOG_FORMAT": "console",
}

// Load reads the .env file, then the environment, and returns a populated
// Config. It is called once at process start.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	// keys without a default are only seen by AutomaticEnv when bound
	for _, key := range []string{"TMDB_API_KEY", "S3_BUCKET"} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	cfg := &Config{
		APIKey:         v.GetString("TMDB_API_KEY"),
		BaseURL:        v.GetString("TMDB_BASE_URL"),
		MaxPages:       v.GetInt("MAX_PAGES"),
		RequestDelay:   time.Duration(v.GetInt("REQUEST_DELAY_MS")) * time.Millisecond,
		PopularDelay:   time.Duration(v.GetInt("POPULAR_DELAY_MS")) * time.Millisecond,
		RequestTimeout: time.Duration(v.GetInt("REQUEST_TIMEOUT_SECS")) * time.Second,

		RawDir:       v.GetString("RAW_DIR"),
		ProcessedDir: v.GetString("PROCESSED_DIR"),
		MetricsPath:  v.GetString("METRICS_PATH"),

		StoreDriver:      v.GetString("STORE_DRIVER"),
		SQLitePath:       v.GetString("SQLITE_PATH"),
		PostgresHost:     v.GetString("POSTGRES_HOST"),
		PostgresPort:     v.GetString("POSTGRES_PORT"),
		PostgresUser:     v.GetString("POSTGRES_USER"),
		PostgresPassword: v.GetString("POSTGRES_PASSWORD"),
		PostgresDB:       v.GetString("POSTGRES_DB"),
		PostgresSSLMode:  v.GetString("POSTGRES_SSLMODE"),
		MaxRetries:       v.GetInt("MAX_RETRIES"),

		S3Bucket:  v.GetString("S3_BUCKET"),
		S3Prefix:  v.GetString("S3_PREFIX"),
		AWSRegion: v.GetString("AWS_REGION"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxPages < 1 {
		return eris.Errorf("config: MAX_PAGES must be positive, got %d", c.MaxPages)
	}
	if c.RequestTimeout <= 0 {
		return eris.New("config: REQUEST_TIMEOUT_SECS must be positive")
	}
	switch c.StoreDriver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

// RequireAPIKey fails when no TMDb credential is configured. Only the
// extract stage needs it.
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return eris.New("config: TMDB_API_KEY is not set")
	}
	return nil
}

// DelayFor returns the inter-request delay for an endpoint name.
func (c *Config) DelayFor(endpoint string) time.Duration {
	if endpoint == "popular" {
		return c.PopularDelay
	}
	return c.RequestDelay
}

// DSN returns the connection string for the configured store driver.
func (c *Config) DSN() string {
	if c.StoreDriver == "sqlite" {
		return c.SQLitePath
	}
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}
