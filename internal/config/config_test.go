package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnv(t *testing.T) {
	assert.Equal(t, EnvDevelopment, parseEnv(""))
	assert.Equal(t, EnvDevelopment, parseEnv("dev"))
	assert.Equal(t, EnvTest, parseEnv("test"))
	assert.Equal(t, EnvProduction, parseEnv("prod"))
	assert.Equal(t, EnvProduction, parseEnv("PRODUCTION"))
	assert.Equal(t, EnvDevelopment, parseEnv("garbage"))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg := Load()
	assert.Equal(t, EnvTest, cfg.Env)
	assert.NotEmpty(t, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Database.URI)
	assert.Equal(t, "test-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "admin", cfg.Auth.AdminUsername)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("PORT", "9999")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("STORAGE_DRIVER", "minio")

	cfg := Load()
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "mongodb://db:27017", cfg.Database.URI)
	assert.Equal(t, "minio", cfg.Storage.Driver)
}

func TestRateLimitBypass(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	assert.True(t, Load().RateLimitDisabled)

	t.Setenv("APP_ENV", "prod")
	t.Setenv("DISABLE_RATE_LIMIT", "")
	assert.False(t, Load().RateLimitDisabled)

	t.Setenv("DISABLE_RATE_LIMIT", "true")
	assert.True(t, Load().RateLimitDisabled)
}

func TestStringHidesSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("JWT_SECRET", "super-secret")
	t.Setenv("ADMIN_PASSWORD", "hunter2")

	s := Load().String()
	assert.NotContains(t, s, "super-secret")
	assert.NotContains(t, s, "hunter2")
}
