package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"WEB_PORT", "API_BASE", "HEALTH_CHECK_TIMEOUT", "HEALTH_PAGE_TTL",
		"API_PORT", "ENGINE_URL", "CORS_ALLOWED_ORIGINS",
		"METRICS_PROXY_TIMEOUT", "METRICS_PROXY_RPS", "METRICS_PROXY_BURST",
		"ENGINE_PORT", "ENGINE_VERSION", "GIT_SHA",
		"ENGINE_EVENT_BUFFER", "ENGINE_STP_POLICY",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"APP_ENV", "LOG_LEVEL", "APP_VERSION",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Web.APIBase)
	assert.Equal(t, DefaultAPIBase, cfg.Web.APIBase)
	assert.Equal(t, "3000", cfg.Web.Port)
	assert.Equal(t, 10*time.Second, cfg.Web.CheckTimeout)
	assert.Equal(t, 30*time.Second, cfg.Web.PageTTL)

	assert.Equal(t, "8000", cfg.API.Port)
	assert.Equal(t, "http://engine:8080", cfg.API.EngineURL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.API.AllowedOrigins)
	assert.Equal(t, 2*time.Second, cfg.API.ProxyTimeout)

	assert.Equal(t, "8080", cfg.Engine.Port)
	assert.Equal(t, "0.0.1", cfg.Engine.Version)
	assert.Equal(t, "dev", cfg.Engine.GitSHA)
	assert.Equal(t, 65536, cfg.Engine.EventBuffer)
	assert.Equal(t, "none", cfg.Engine.STPPolicy)

	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "development", cfg.App.Environment)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_BASE", "https://api.example.com")
	t.Setenv("HEALTH_CHECK_TIMEOUT", "3s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("HEALTH_PAGE_TTL", "5s")
	t.Setenv("ENGINE_STP_POLICY", "Cancel_Maker")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Web.PageTTL)
	assert.Equal(t, "cancel_maker", cfg.Engine.STPPolicy)

	assert.Equal(t, "https://api.example.com", cfg.Web.APIBase)
	assert.Equal(t, 3*time.Second, cfg.Web.CheckTimeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.API.AllowedOrigins)
	assert.Equal(t, 2, cfg.Redis.DB)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("HEALTH_CHECK_TIMEOUT", "soon")
	t.Setenv("REDIS_DB", "two")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Web.CheckTimeout)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestValidate_RejectsBadBaseURL(t *testing.T) {
	tests := []struct {
		name string
		base string
	}{
		{"no scheme", "localhost:8000"},
		{"ftp scheme", "ftp://localhost:8000"},
		{"no host", "http://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("API_BASE", tt.base)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "API_BASE")
		})
	}
}

func TestValidate_RejectsBadEngineSettings(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown stp policy", "ENGINE_STP_POLICY", "cancel_both"},
		{"zero event buffer", "ENGINE_EVENT_BUFFER", "0"},
		{"negative page ttl", "HEALTH_PAGE_TTL", "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
