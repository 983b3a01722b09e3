package config

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_SOURCE", "postgres://localhost/feeledger")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "0 1 * * *", cfg.SweepCron)
	assert.Equal(t, 4, cfg.SweepConcurrency)
	assert.Equal(t, 10*time.Minute, cfg.DirectoryCacheTTL)
	assert.False(t, cfg.IsProduction())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE_DRIVER", DriverMemory)
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadStoreDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_SOURCE", "")

	t.Setenv("STORE_DRIVER", DriverPostgres)
	_, err := Load()
	assert.ErrorContains(t, err, "DB_SOURCE")

	t.Setenv("STORE_DRIVER", DriverMemory)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)

	t.Setenv("STORE_DRIVER", "sqlite")
	_, err = Load()
	assert.ErrorContains(t, err, "sqlite")
}

func TestLoadRejectsBadConcurrency(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", DriverMemory)
	t.Setenv("SWEEP_CONCURRENCY", "0")
	_, err := Load()
	assert.ErrorContains(t, err, "SWEEP_CONCURRENCY")
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json"}, &buf).Info("hello", "kind", "student")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "student", line["kind"])
}
