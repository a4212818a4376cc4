package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/plantedhq/venuescout/internal/cache"
	"github.com/plantedhq/venuescout/internal/classify"
	"github.com/plantedhq/venuescout/internal/config"
	"github.com/plantedhq/venuescout/internal/credentials"
	"github.com/plantedhq/venuescout/internal/fetch"
	"github.com/plantedhq/venuescout/internal/notify"
	"github.com/plantedhq/venuescout/internal/ratelimit"
	"github.com/plantedhq/venuescout/internal/search"
	"github.com/plantedhq/venuescout/internal/store"
	"github.com/plantedhq/venuescout/internal/store/memory"
	"github.com/plantedhq/venuescout/internal/store/postgres"
)

// app bundles what every subcommand needs: the resolved config, an open
// store, and the notifier.
type app struct {
	cfg      config.Config
	st       store.Store
	notifier notify.Notifier
}

// loadApp reads flags and config and opens the store. Without a
// DATABASE_URL the in-memory store backs the run, which suits dry runs
// and local smoke tests.
func loadApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		cfg.Discovery.DryRun = true
		cfg.Extraction.DryRun = true
	}
	if wet, _ := cmd.Flags().GetBool("wet-run"); wet {
		cfg.Discovery.DryRun = false
		cfg.Extraction.DryRun = false
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		st, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
	} else {
		st = memory.New()
	}

	return &app{cfg: cfg, st: st, notifier: notify.NewWebhook(cfg.WebhookURL)}, nil
}

func (a *app) Close() error { return a.st.Close() }

// pool builds the credential pool from the configured credentials.
func (a *app) pool() *credentials.Pool {
	return credentials.NewPool(a.cfg.PoolCredentials(time.Now().UTC()))
}

// searchClient picks the configured search provider.
func (a *app) searchClient() *search.Client {
	var p search.Provider
	switch a.cfg.Discovery.SearchProvider {
	case config.SearchMock:
		p = search.NewMock()
	case config.SearchFallback:
		p = search.NewFallback(http.DefaultClient)
	default:
		p = search.NewPrimary(http.DefaultClient)
	}
	return search.NewClient(p)
}

// classifier builds the AI classification service. Missing keys fall back
// to the deterministic mock so dry runs work without secrets.
func (a *app) classifier() *classify.Service {
	var primary, fallback classify.Provider
	if a.cfg.PrimaryAIKey != "" {
		primary = classify.NewOpenAI(a.cfg.PrimaryAIKey, http.DefaultClient)
	} else {
		primary = classify.NewMockProvider(75)
	}
	if a.cfg.FallbackAIKey != "" {
		fallback = classify.NewAnthropic(a.cfg.FallbackAIKey, http.DefaultClient)
	}
	return classify.NewService(primary, fallback)
}

// fetcher assembles the paced page fetcher: stealth HTTP browser, host
// governor from the fetch config, and the 24h page cache (Redis when
// configured, in-process otherwise).
func (a *app) fetcher() *fetch.Fetcher {
	f := a.cfg.Fetch
	browser := fetch.NewHTTPBrowser(&http.Client{Timeout: f.Timeout()})
	governor := ratelimit.NewGovernor(ratelimit.HostPolicy{
		MinDelay:     time.Duration(f.MinDelayMs) * time.Millisecond,
		MaxDelay:     time.Duration(f.MaxDelayMs) * time.Millisecond,
		PerMinute:    f.MaxPerMinute,
		PerHour:      f.MaxPerHour,
		PerDay:       f.MaxPerDay,
		GlobalPerDay: f.GlobalDailyCap,
	})

	var pages cache.Cache
	if a.cfg.RedisAddr != "" {
		pages = cache.NewRedis(a.cfg.RedisAddr, "pages")
	} else {
		pages = cache.NewMemory(24 * time.Hour)
	}

	return fetch.NewFetcher(browser, governor, pages, fetch.Options{
		Timeout:        f.Timeout(),
		ViewportWidth:  f.ViewportWidth,
		ViewportHeight: f.ViewportHeight,
	})
}

// notifyEvent delivers a pipeline event, logging and swallowing delivery
// failures: notifications never fail a run.
func (a *app) notifyEvent(ctx context.Context, typ string, sev notify.Severity, msg string, fields map[string]any) {
	_ = a.notifier.Send(ctx, notify.Event{Type: typ, Severity: sev, Message: msg, Context: fields})
}
