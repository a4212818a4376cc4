package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/plantedhq/venuescout/internal/engine"
	"github.com/plantedhq/venuescout/internal/models"
)

// DiscoveryMode selects how the discovery executor spends its budget.
type DiscoveryMode string

const (
	ModeExplore   DiscoveryMode = "explore"
	ModeEnumerate DiscoveryMode = "enumerate"
	ModeVerify    DiscoveryMode = "verify"
)

// ExtractionMode selects what the dish extractor does with its targets.
type ExtractionMode string

const (
	ExtractEnrich  ExtractionMode = "enrich"
	ExtractRefresh ExtractionMode = "refresh"
	ExtractVerify  ExtractionMode = "verify"
)

// ExtractionTarget selects which venues an extraction run visits.
type ExtractionTarget string

const (
	TargetAll    ExtractionTarget = "all"
	TargetChain  ExtractionTarget = "chain"
	TargetVenues ExtractionTarget = "venues"
)

// SearchProvider names a search backend.
type SearchProvider string

const (
	SearchPrimary  SearchProvider = "primary"
	SearchFallback SearchProvider = "fallback"
	SearchMock     SearchProvider = "mock"
)

// Discovery holds the discovery-run options recognized by the config file.
type Discovery struct {
	Enabled        bool               `json:"enabled" yaml:"enabled"`
	Mode           DiscoveryMode      `json:"mode" yaml:"mode"`
	Platforms      []models.PlatformTag `json:"platforms" yaml:"platforms"`
	Countries      []string           `json:"countries" yaml:"countries"`
	Chains         []string           `json:"chains,omitempty" yaml:"chains,omitempty"`
	MaxQueries     int                `json:"maxQueries" yaml:"maxQueries"`
	SearchProvider SearchProvider     `json:"searchProvider" yaml:"searchProvider"`
	DryRun         bool               `json:"dryRun" yaml:"dryRun"`
	Concurrency    int                `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
}

// Extraction holds the extraction-run options.
type Extraction struct {
	Mode      ExtractionMode   `json:"mode" yaml:"mode"`
	Target    ExtractionTarget `json:"target" yaml:"target"`
	ChainID   string           `json:"chainId,omitempty" yaml:"chainId,omitempty"`
	VenueIDs  []string         `json:"venueIds,omitempty" yaml:"venueIds,omitempty"`
	Countries []string         `json:"countries,omitempty" yaml:"countries,omitempty"`
	Platforms []models.PlatformTag `json:"platforms,omitempty" yaml:"platforms,omitempty"`
	MaxVenues int              `json:"maxVenues" yaml:"maxVenues"`
	Learn     bool             `json:"learn" yaml:"learn"`
	DryRun    bool             `json:"dryRun" yaml:"dryRun"`
}

// Fetch holds the page-fetch pacing and stealth settings. The defaults are
// deliberately ultra-conservative.
type Fetch struct {
	MinDelayMs      int `json:"minDelayMs" yaml:"minDelayMs"`
	MaxDelayMs      int `json:"maxDelayMs" yaml:"maxDelayMs"`
	BatchSize       int `json:"batchSize" yaml:"batchSize"`
	BatchDelayMs    int `json:"batchDelayMs" yaml:"batchDelayMs"`
	TimeoutMs       int `json:"timeoutMs" yaml:"timeoutMs"`
	ViewportWidth   int `json:"viewportWidth" yaml:"viewportWidth"`
	ViewportHeight  int `json:"viewportHeight" yaml:"viewportHeight"`
	MaxPerMinute    int `json:"maxRequestsPerMinute" yaml:"maxRequestsPerMinute"`
	MaxPerHour      int `json:"maxRequestsPerHour" yaml:"maxRequestsPerHour"`
	MaxPerDay       int `json:"maxRequestsPerDay" yaml:"maxRequestsPerDay"`
	GlobalDailyCap  int `json:"globalDailyCap" yaml:"globalDailyCap"`
}

// Timeout returns the page fetch timeout as a duration.
func (f Fetch) Timeout() time.Duration { return time.Duration(f.TimeoutMs) * time.Millisecond }

// Credential is one configured search credential.
type Credential struct {
	ID         string `json:"id" yaml:"id"`
	APIKey     string `json:"apiKey" yaml:"apiKey"`
	EngineID   string `json:"engineId" yaml:"engineId"`
	DailyQuota int    `json:"dailyQuota,omitempty" yaml:"dailyQuota,omitempty"`
}

// Config is the root configuration document. JSON is the canonical format;
// a .yaml/.yml extension switches the decoder.
type Config struct {
	Discovery   Discovery    `json:"discovery" yaml:"discovery"`
	Extraction  Extraction   `json:"extraction" yaml:"extraction"`
	Fetch       Fetch        `json:"fetch" yaml:"fetch"`
	Credentials []Credential `json:"credentials,omitempty" yaml:"credentials,omitempty"`

	DatabaseURL string `json:"databaseUrl,omitempty" yaml:"databaseUrl,omitempty"`
	RedisAddr   string `json:"redisAddr,omitempty" yaml:"redisAddr,omitempty"`
	WebhookURL  string `json:"webhookUrl,omitempty" yaml:"webhookUrl,omitempty"`
	ProxyAPIKey string `json:"proxyApiKey,omitempty" yaml:"proxyApiKey,omitempty"`

	PrimaryAIKey  string `json:"-" yaml:"-"`
	FallbackAIKey string `json:"-" yaml:"-"`
}

// Default returns the engine defaults applied before file and env loading.
func Default() Config {
	return Config{
		Discovery: Discovery{
			Enabled:        true,
			Mode:           ModeExplore,
			Platforms:      models.AllPlatforms(),
			Countries:      []string{"CH", "DE", "AT"},
			MaxQueries:     100,
			SearchProvider: SearchPrimary,
			Concurrency:    2,
		},
		Extraction: Extraction{
			Mode:      ExtractEnrich,
			Target:    TargetAll,
			MaxVenues: 20,
			Learn:     true,
		},
		Fetch: Fetch{
			MinDelayMs:     30_000,
			MaxDelayMs:     60_000,
			BatchSize:      5,
			BatchDelayMs:   300_000,
			TimeoutMs:      30_000,
			ViewportWidth:  1366,
			ViewportHeight: 900,
			MaxPerMinute:   2,
			MaxPerHour:     40,
			MaxPerDay:      150,
			GlobalDailyCap: 200,
		},
	}
}

// Load reads the config file at path (JSON or YAML by extension), applies
// environment overrides, validates, and returns the result. An empty path
// loads defaults plus environment only. Relative paths are resolved against
// the repository root.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		resolved := ResolvePath(path)
		raw, err := os.ReadFile(resolved)
		if err != nil {
			return cfg, engine.E(engine.KindConfig, "config.load", err)
		}
		switch strings.ToLower(filepath.Ext(resolved)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(raw, &cfg)
		default:
			err = json.Unmarshal(raw, &cfg)
		}
		if err != nil {
			return cfg, engine.Errorf(engine.KindConfig, "config.load", "parse %s: %v", resolved, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("NOTIFY_WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v := os.Getenv("PROXY_API_KEY"); v != "" {
		cfg.ProxyAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.PrimaryAIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.FallbackAIKey = v
	}
	// SEARCH_CREDENTIALS holds "id:apiKey:engineId" triples, comma separated.
	if v := os.Getenv("SEARCH_CREDENTIALS"); v != "" {
		for _, entry := range strings.Split(v, ",") {
			parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
			if len(parts) != 3 {
				continue
			}
			cfg.Credentials = append(cfg.Credentials, Credential{
				ID: parts[0], APIKey: parts[1], EngineID: parts[2],
			})
		}
	}
}

// Validate checks cross-field consistency. All failures are Config-kind and
// fatal pre-run.
func (c *Config) Validate() error {
	switch c.Discovery.Mode {
	case ModeExplore, ModeEnumerate, ModeVerify:
	default:
		return engine.Errorf(engine.KindConfig, "config.validate", "unknown discovery mode %q", c.Discovery.Mode)
	}
	switch c.Extraction.Mode {
	case ExtractEnrich, ExtractRefresh, ExtractVerify:
	default:
		return engine.Errorf(engine.KindConfig, "config.validate", "unknown extraction mode %q", c.Extraction.Mode)
	}
	switch c.Extraction.Target {
	case TargetAll, TargetChain, TargetVenues:
	default:
		return engine.Errorf(engine.KindConfig, "config.validate", "unknown extraction target %q", c.Extraction.Target)
	}
	if c.Extraction.Target == TargetChain && c.Extraction.ChainID == "" {
		return engine.Errorf(engine.KindConfig, "config.validate", "extraction target %q requires chainId", TargetChain)
	}
	if c.Extraction.Target == TargetVenues && len(c.Extraction.VenueIDs) == 0 {
		return engine.Errorf(engine.KindConfig, "config.validate", "extraction target %q requires venueIds", TargetVenues)
	}
	switch c.Discovery.SearchProvider {
	case SearchPrimary, SearchFallback, SearchMock:
	default:
		return engine.Errorf(engine.KindConfig, "config.validate", "unknown search provider %q", c.Discovery.SearchProvider)
	}
	for _, p := range c.Discovery.Platforms {
		if !models.ValidPlatform(p) {
			return engine.Errorf(engine.KindConfig, "config.validate", "unknown platform %q", p)
		}
	}
	if c.Discovery.MaxQueries < 0 {
		return engine.Errorf(engine.KindConfig, "config.validate", "maxQueries must be >= 0")
	}
	if c.Fetch.MinDelayMs > c.Fetch.MaxDelayMs {
		return engine.Errorf(engine.KindConfig, "config.validate", "fetch minDelayMs exceeds maxDelayMs")
	}
	for i, cr := range c.Credentials {
		if cr.ID == "" || cr.APIKey == "" {
			return engine.Errorf(engine.KindConfig, "config.validate", "credential %d missing id or apiKey", i)
		}
	}
	return nil
}

// PoolCredentials converts configured credentials into model records with
// quota defaults applied.
func (c *Config) PoolCredentials(now time.Time) []*models.SearchCredential {
	out := make([]*models.SearchCredential, 0, len(c.Credentials))
	for _, cr := range c.Credentials {
		quota := cr.DailyQuota
		if quota <= 0 {
			quota = models.DefaultDailyQuota
		}
		out = append(out, &models.SearchCredential{
			ID:            cr.ID,
			APIKey:        cr.APIKey,
			EngineID:      cr.EngineID,
			DailyQuota:    quota,
			LastResetDate: models.UTCDay(now),
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return out
}

// ResolvePath resolves a possibly-relative path against the repository
// root (the nearest ancestor directory containing go.mod), falling back to
// the working directory.
func ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	root, err := repoRoot()
	if err != nil {
		return path
	}
	return filepath.Join(root, path)
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no go.mod above working directory")
		}
		dir = parent
	}
}
