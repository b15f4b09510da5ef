// Package config loads the run configuration from environment variables.
//
// A .env file is honoured when present (loaded by cmd/ducksync before
// parsing). Missing required settings are a fatal setup error: the run
// aborts before any connection is attempted.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/nwdata/ducksync/internal/errs"
)

// Destination selects which strategy the orchestrator drives.
type Destination string

const (
	DestinationPostgres    Destination = "postgres"
	DestinationMotherDuck  Destination = "motherduck"
	DestinationObjectStore Destination = "s3"
)

// Config holds everything a single sync run needs.
type Config struct {
	// DuckDBPath is the path to the source DuckDB file.
	DuckDBPath string `env:"DUCKDB_PATH,required"`

	// Destination selects the strategy: postgres, motherduck or s3.
	Destination Destination `env:"DESTINATION" envDefault:"postgres"`

	// BatchSize bounds how many rows are read and inserted per batch.
	BatchSize int `env:"BATCH_SIZE" envDefault:"5000"`

	// TruncateBeforeLoad forces a full reload: every destination table is
	// truncated after prepare, regardless of watermark state.
	TruncateBeforeLoad bool `env:"TRUNCATE_BEFORE_LOAD" envDefault:"false"`

	Postgres    PostgresConfig
	MotherDuck  MotherDuckConfig
	ObjectStore ObjectStoreConfig

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// PostgresConfig holds the relational warehouse connection settings.
type PostgresConfig struct {
	Host     string `env:"DB_HOST"`
	Name     string `env:"DB_NAME"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"prefer"`
}

// MotherDuckConfig holds the lakehouse connection settings.
type MotherDuckConfig struct {
	// Endpoint overrides the service host. Empty uses the default.
	Endpoint string `env:"MOTHERDUCK_ENDPOINT"`

	// Path is the remote database to attach, e.g. "md:analytics".
	Path string `env:"MOTHERDUCK_PATH"`

	Token string `env:"MOTHERDUCK_TOKEN"`
}

// ObjectStoreConfig holds the S3-compatible storage settings.
type ObjectStoreConfig struct {
	Bucket    string `env:"S3_BUCKET"`
	Region    string `env:"S3_REGION"`
	Endpoint  string `env:"S3_ENDPOINT" envDefault:"s3.amazonaws.com"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	UseSSL    bool   `env:"S3_USE_SSL" envDefault:"true"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to parse environment", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements for the selected destination.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return errs.New(errs.ErrKindInvalidInput, "BATCH_SIZE must be positive")
	}

	switch c.Destination {
	case DestinationPostgres:
		missing := missingFields(map[string]string{
			"DB_HOST":     c.Postgres.Host,
			"DB_NAME":     c.Postgres.Name,
			"DB_USER":     c.Postgres.User,
			"DB_PASSWORD": c.Postgres.Password,
		})
		if missing != "" {
			return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("missing required setting %s for postgres destination", missing))
		}
	case DestinationMotherDuck:
		missing := missingFields(map[string]string{
			"MOTHERDUCK_PATH":  c.MotherDuck.Path,
			"MOTHERDUCK_TOKEN": c.MotherDuck.Token,
		})
		if missing != "" {
			return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("missing required setting %s for motherduck destination", missing))
		}
	case DestinationObjectStore:
		missing := missingFields(map[string]string{
			"S3_BUCKET":     c.ObjectStore.Bucket,
			"S3_ACCESS_KEY": c.ObjectStore.AccessKey,
			"S3_SECRET_KEY": c.ObjectStore.SecretKey,
		})
		if missing != "" {
			return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("missing required setting %s for s3 destination", missing))
		}
	default:
		return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown destination %q (expected postgres, motherduck or s3)", c.Destination))
	}

	return nil
}

// missingFields returns the name of the first empty required setting,
// or "" when all are present.
func missingFields(fields map[string]string) string {
	// Deterministic order keeps error messages stable.
	for _, name := range []string{
		"DB_HOST", "DB_NAME", "DB_USER", "DB_PASSWORD",
		"MOTHERDUCK_PATH", "MOTHERDUCK_TOKEN",
		"S3_BUCKET", "S3_ACCESS_KEY", "S3_SECRET_KEY",
	} {
		if v, ok := fields[name]; ok && v == "" {
			return name
		}
	}
	return ""
}
