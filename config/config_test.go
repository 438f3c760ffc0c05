package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "fern", cfg.AppName)
	assert.Equal(t, EnvironmentDevelopment, cfg.Environment())
	assert.Equal(t, 7687, cfg.GraphDBPort)
	assert.Equal(t, 1, cfg.BackfillConcurrency)
	assert.Equal(t, 10*time.Second, cfg.GeocodingTimeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.ShadowForceApply)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"APP_ENV":              "production",
		"NODE_ENV":             "development",
		"SHADOW_FORCE_APPLY":   "true",
		"BACKFILL_CONCURRENCY": "4",
		"KAFKA_BROKERS":        "a:9092,b:9092",
	})
	require.NoError(t, err)

	assert.Equal(t, EnvironmentProduction, cfg.Environment())
	assert.True(t, cfg.ShadowForceApply)
	assert.Equal(t, 4, cfg.BackfillConcurrency)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
}

func TestLoadFrom_Invalid(t *testing.T) {
	t.Run("concurrency out of range", func(t *testing.T) {
		_, err := LoadFrom(map[string]string{"BACKFILL_CONCURRENCY": "0"})
		assert.Error(t, err)
	})

	t.Run("unknown log level", func(t *testing.T) {
		_, err := LoadFrom(map[string]string{"LOG_LEVEL": "verbose"})
		assert.Error(t, err)
	})

	t.Run("malformed integer", func(t *testing.T) {
		_, err := LoadFrom(map[string]string{"GRAPH_DB_PORT": "bolt"})
		assert.Error(t, err)
	})
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DatabaseHost:     "db",
		DatabasePort:     "5432",
		DatabaseName:     "fern",
		DatabaseSSLMode:  "disable",
		DatabaseUserName: "user",
	}
	assert.Equal(t, "host=db port=5432 dbname=fern sslmode=disable user=user", cfg.DatabaseDSN())
}
