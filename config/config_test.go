package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSecrets map[string]string

func (s staticSecrets) GetSecretMap(context.Context, string) (map[string]string, error) {
	return s, nil
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_USER", "shop")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000/, https://shop.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.False(t, cfg.RotateRefreshToken)
	assert.Equal(t, []string{"http://localhost:3000", "https://shop.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "shop:@tcp(localhost:3306)/storefront?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true", cfg.DSN())
}

func TestLoadPostgres(t *testing.T) {
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DB_USER", "shop")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "5432", cfg.DBPort)
	assert.Contains(t, cfg.DSN(), "dbname=storefront port=5432")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("JWT_ACCESS_TTL", "soon")
	_, err := Load()
	assert.ErrorContains(t, err, "JWT_ACCESS_TTL")
}

func TestValidate(t *testing.T) {
	base := Config{
		DBDriver:        "mysql",
		DBUser:          "shop",
		DBName:          "storefront",
		JWTSecret:       "s",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	require.NoError(t, base.Validate())

	missingSecret := base
	missingSecret.JWTSecret = ""
	assert.ErrorContains(t, missingSecret.Validate(), "JWT_SECRET")

	badDriver := base
	badDriver.DBDriver = "sqlite"
	assert.ErrorContains(t, badDriver.Validate(), "DB_DRIVER")

	inverted := base
	inverted.AccessTokenTTL = 2 * time.Hour
	assert.ErrorContains(t, inverted.Validate(), "shorter")
}

func TestApplySecrets(t *testing.T) {
	cfg := &Config{DBUser: "env-user", DBPassword: "env-pass", JWTSecret: "env-secret", SecretsName: "storefront/api"}
	err := cfg.ApplySecrets(context.Background(), staticSecrets{
		"DB_PASSWORD": "vault-pass",
		"JWT_SECRET":  "vault-secret",
		"DB_USER":     "",
	})
	require.NoError(t, err)
	assert.Equal(t, "env-user", cfg.DBUser)
	assert.Equal(t, "vault-pass", cfg.DBPassword)
	assert.Equal(t, "vault-secret", cfg.JWTSecret)
}
