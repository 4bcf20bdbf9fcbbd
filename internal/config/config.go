// Package config loads pipeline configuration from the environment, with an
// optional .env file for local runs. Every knob has a MESFLOW_* variable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	API     APIConfig
	State   StateConfig
	Output  OutputConfig
	Bulk    BulkConfig
	Windows WindowConfig
	Ops     OpsConfig
}

type APIConfig struct {
	BaseURL string
	Token   string
	Cookie  string
	Retries int
	Backoff time.Duration
	Timeout time.Duration
}

type StateConfig struct {
	// DataDir holds the sqlite state database.
	DataDir string
	// CheckpointFile is the JSON checkpoint path.
	CheckpointFile string
}

type OutputConfig struct {
	// Dir receives one CSV per lot.
	Dir string
	// PostgresDSN enables the Postgres sink when non-empty.
	PostgresDSN   string
	PostgresTable string
}

type BulkConfig struct {
	DefaultEndID int64
	BatchSize    int64
}

type WindowConfig struct {
	Duration time.Duration
	Lag      time.Duration
	// FirstStart is the cutoff the very first scan window starts from.
	FirstStart time.Time
}

type OpsConfig struct {
	// Addr enables the embedded status endpoint when non-empty,
	// e.g. "127.0.0.1:9090".
	Addr string
}

func defaults() Config {
	return Config{
		API: APIConfig{
			Retries: 3,
			Backoff: 200 * time.Millisecond,
			Timeout: 10 * time.Second,
		},
		State: StateConfig{
			DataDir: filepath.Join("data", "state"),
		},
		Output: OutputConfig{
			Dir:           filepath.Join("data", "lots"),
			PostgresTable: "lot_records",
		},
		Bulk: BulkConfig{
			DefaultEndID: 60000,
			BatchSize:    100,
		},
		Windows: WindowConfig{
			Duration:   6 * time.Hour,
			Lag:        6 * time.Hour,
			FirstStart: time.Unix(1741564801, 0).UTC(),
		},
	}
}

// Load reads configuration: defaults, then a .env file if one exists, then
// MESFLOW_* environment variables. The API base URL and token are required.
func Load() (Config, error) {
	// Missing .env is fine; explicit env vars always win because godotenv
	// never overwrites variables that are already set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	cfg := defaults()
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.State.CheckpointFile == "" {
		cfg.State.CheckpointFile = filepath.Join(cfg.State.DataDir, "checkpoint.json")
	}

	if cfg.API.BaseURL == "" {
		return Config{}, fmt.Errorf("missing required config: MESFLOW_API_BASE_URL")
	}
	if cfg.API.Token == "" {
		return Config{}, fmt.Errorf("missing required config: MESFLOW_API_TOKEN")
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.API.BaseURL, "MESFLOW_API_BASE_URL")
	setString(&cfg.API.Token, "MESFLOW_API_TOKEN")
	setString(&cfg.API.Cookie, "MESFLOW_API_COOKIE")
	setString(&cfg.State.DataDir, "MESFLOW_DATA_DIR")
	setString(&cfg.State.CheckpointFile, "MESFLOW_CHECKPOINT_FILE")
	setString(&cfg.Output.Dir, "MESFLOW_OUTPUT_DIR")
	setString(&cfg.Output.PostgresDSN, "MESFLOW_PG_DSN")
	setString(&cfg.Output.PostgresTable, "MESFLOW_PG_TABLE")
	setString(&cfg.Ops.Addr, "MESFLOW_OPS_ADDR")

	if err := setInt(&cfg.API.Retries, "MESFLOW_API_RETRIES"); err != nil {
		return err
	}
	if err := setInt64(&cfg.Bulk.DefaultEndID, "MESFLOW_DEFAULT_END_ID"); err != nil {
		return err
	}
	if err := setInt64(&cfg.Bulk.BatchSize, "MESFLOW_BATCH_SIZE"); err != nil {
		return err
	}
	if err := setDuration(&cfg.API.Backoff, "MESFLOW_API_BACKOFF"); err != nil {
		return err
	}
	if err := setDuration(&cfg.API.Timeout, "MESFLOW_API_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Windows.Duration, "MESFLOW_WINDOW_DURATION"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Windows.Lag, "MESFLOW_WINDOW_LAG"); err != nil {
		return err
	}

	if v := os.Getenv("MESFLOW_FIRST_WINDOW_EPOCH"); v != "" {
		epoch, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MESFLOW_FIRST_WINDOW_EPOCH: %w", err)
		}
		cfg.Windows.FirstStart = time.Unix(epoch, 0).UTC()
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
