package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantedhq/venuescout/internal/engine"
	"github.com/plantedhq/venuescout/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_JSONOverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"discovery": {"enabled": true, "mode": "enumerate", "maxQueries": 25, "searchProvider": "mock", "countries": ["CH"], "platforms": ["wolt"]},
		"extraction": {"mode": "refresh", "target": "all", "maxVenues": 5},
		"fetch": {"minDelayMs": 1000, "maxDelayMs": 2000}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeEnumerate, cfg.Discovery.Mode)
	assert.Equal(t, 25, cfg.Discovery.MaxQueries)
	assert.Equal(t, SearchMock, cfg.Discovery.SearchProvider)
	assert.Equal(t, []models.PlatformTag{models.PlatformWolt}, cfg.Discovery.Platforms)
	assert.Equal(t, ExtractRefresh, cfg.Extraction.Mode)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout(), "unset fields keep defaults")
}

func TestLoad_YAMLByExtension(t *testing.T) {
	path := writeFile(t, "config.yaml", `
discovery:
  mode: verify
  searchProvider: fallback
  maxQueries: 10
extraction:
  mode: enrich
  target: chain
  chainId: hiltl
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeVerify, cfg.Discovery.Mode)
	assert.Equal(t, SearchFallback, cfg.Discovery.SearchProvider)
	assert.Equal(t, "hiltl", cfg.Extraction.ChainID)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/venuescout")
	t.Setenv("NOTIFY_WEBHOOK_URL", "https://hooks.example.com/x")
	t.Setenv("SEARCH_CREDENTIALS", "cred-1:key-1:engine-1, cred-2:key-2:engine-2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/venuescout", cfg.DatabaseURL)
	assert.Equal(t, "https://hooks.example.com/x", cfg.WebhookURL)
	require.Len(t, cfg.Credentials, 2)
	assert.Equal(t, "cred-2", cfg.Credentials[1].ID)
	assert.Equal(t, "engine-2", cfg.Credentials[1].EngineID)
}

func TestLoad_MissingFileIsConfigError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Equal(t, engine.KindConfig, engine.KindOf(err))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown discovery mode", func(c *Config) { c.Discovery.Mode = "aggressive" }},
		{"unknown extraction mode", func(c *Config) { c.Extraction.Mode = "scrape" }},
		{"chain target without chain id", func(c *Config) { c.Extraction.Target = TargetChain }},
		{"venue target without ids", func(c *Config) { c.Extraction.Target = TargetVenues }},
		{"unknown search provider", func(c *Config) { c.Discovery.SearchProvider = "bing" }},
		{"unknown platform", func(c *Config) { c.Discovery.Platforms = []models.PlatformTag{"doordash"} }},
		{"negative budget", func(c *Config) { c.Discovery.MaxQueries = -1 }},
		{"min delay above max", func(c *Config) { c.Fetch.MinDelayMs = 10; c.Fetch.MaxDelayMs = 5 }},
		{"credential without key", func(c *Config) { c.Credentials = []Credential{{ID: "c1"}} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, engine.KindConfig, engine.KindOf(err))
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestPoolCredentials_AppliesQuotaDefault(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	cfg := Default()
	cfg.Credentials = []Credential{
		{ID: "c1", APIKey: "k1", EngineID: "e1"},
		{ID: "c2", APIKey: "k2", EngineID: "e2", DailyQuota: 250},
	}

	creds := cfg.PoolCredentials(now)
	require.Len(t, creds, 2)
	assert.Equal(t, models.DefaultDailyQuota, creds[0].DailyQuota)
	assert.Equal(t, 250, creds[1].DailyQuota)
	assert.Equal(t, models.UTCDay(now), creds[0].LastResetDate)
}
