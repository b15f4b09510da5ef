package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwdata/ducksync/internal/errs"
)

func setPostgresEnv(t *testing.T) {
	t.Setenv("DUCKDB_PATH", "data/database.duckdb")
	t.Setenv("DB_HOST", "db.example.com")
	t.Setenv("DB_NAME", "warehouse")
	t.Setenv("DB_USER", "loader")
	t.Setenv("DB_PASSWORD", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setPostgresEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DestinationPostgres, cfg.Destination)
	assert.Equal(t, 5000, cfg.BatchSize)
	assert.False(t, cfg.TruncateBeforeLoad)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "prefer", cfg.Postgres.SSLMode)
}

func TestLoad_MissingSourcePath(t *testing.T) {
	t.Setenv("DB_HOST", "db.example.com")
	t.Setenv("DB_NAME", "warehouse")
	t.Setenv("DB_USER", "loader")
	t.Setenv("DB_PASSWORD", "secret")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestLoad_MissingPostgresSettings(t *testing.T) {
	t.Setenv("DUCKDB_PATH", "data/database.duckdb")
	t.Setenv("DB_HOST", "db.example.com")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "DB_NAME")
}

func TestLoad_MotherDuckDestination(t *testing.T) {
	t.Setenv("DUCKDB_PATH", "data/database.duckdb")
	t.Setenv("DESTINATION", "motherduck")
	t.Setenv("MOTHERDUCK_PATH", "md:analytics")
	t.Setenv("MOTHERDUCK_TOKEN", "token")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DestinationMotherDuck, cfg.Destination)
}

func TestLoad_MotherDuckMissingToken(t *testing.T) {
	t.Setenv("DUCKDB_PATH", "data/database.duckdb")
	t.Setenv("DESTINATION", "motherduck")
	t.Setenv("MOTHERDUCK_PATH", "md:analytics")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MOTHERDUCK_TOKEN")
}

func TestLoad_ObjectStoreDestination(t *testing.T) {
	t.Setenv("DUCKDB_PATH", "data/database.duckdb")
	t.Setenv("DESTINATION", "s3")
	t.Setenv("S3_BUCKET", "exports")
	t.Setenv("S3_ACCESS_KEY", "ak")
	t.Setenv("S3_SECRET_KEY", "sk")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DestinationObjectStore, cfg.Destination)
	assert.Equal(t, "s3.amazonaws.com", cfg.ObjectStore.Endpoint)
	assert.True(t, cfg.ObjectStore.UseSSL)
}

func TestLoad_UnknownDestination(t *testing.T) {
	t.Setenv("DUCKDB_PATH", "data/database.duckdb")
	t.Setenv("DESTINATION", "bigquery")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestLoad_BatchSizeOverride(t *testing.T) {
	setPostgresEnv(t)
	t.Setenv("BATCH_SIZE", "250")
	t.Setenv("TRUNCATE_BEFORE_LOAD", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.BatchSize)
	assert.True(t, cfg.TruncateBeforeLoad)
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	setPostgresEnv(t)
	t.Setenv("BATCH_SIZE", "0")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}
