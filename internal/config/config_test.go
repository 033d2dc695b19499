package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, ShortageClamp, cfg.Ledger.DispatchShortage)
	assert.Equal(t, time.Duration(0), cfg.Ledger.ReconcileInterval)
	assert.Equal(t, "default_super_secret_key", cfg.JWT.Secret)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LEDGER_DISPATCH_SHORTAGE", "STRICT")
	t.Setenv("LEDGER_RECONCILE_INTERVAL", "2m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DB_MAX_OPEN_CONNS", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ShortageStrict, cfg.Ledger.DispatchShortage)
	assert.Equal(t, 2*time.Minute, cfg.Ledger.ReconcileInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 7, cfg.Database.MaxOpenConns)
}

func TestLoadRejectsUnknownShortagePolicy(t *testing.T) {
	t.Setenv("LEDGER_DISPATCH_SHORTAGE", "ignore")

	_, err := Load()
	assert.Error(t, err)
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Host: "db", Port: "5433", Name: "ledger", User: "u", Password: "p", SSLMode: "require",
	}}
	assert.Equal(t, "postgres://u:p@db:5433/ledger?sslmode=require", cfg.DatabaseDSN())
}
