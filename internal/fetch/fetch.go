// Package fetch retrieves venue pages through a stealth-configured
// browser wrapper: rotating user agents, per-country Accept-Language,
// jittered host pacing, a circuit breaker over all external navigation,
// and a 24h per-URL cache.
package fetch

import (
	"context"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/plantedhq/venuescout/internal/cache"
	"github.com/plantedhq/venuescout/internal/engine"
	"github.com/plantedhq/venuescout/internal/logging"
	"github.com/plantedhq/venuescout/internal/platforms"
	"github.com/plantedhq/venuescout/internal/ratelimit"
)

// pageCacheTTL bounds how long a fetched page is reused before the
// extractor must see a fresh copy.
const pageCacheTTL = 24 * time.Hour

// NavigateOptions tune one navigation.
type NavigateOptions struct {
	Country        string
	WaitSelector   string
	ScrollToBottom bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
}

// Browser is the headless navigation wrapper. Implementations return the
// final page HTML after waiting for the selector (when set) and
// scrolling when requested.
type Browser interface {
	Navigate(ctx context.Context, url string, opts NavigateOptions) (string, error)
}

// Fetcher coordinates pacing, breaking, caching and parsing for venue
// page retrieval.
type Fetcher struct {
	browser  Browser
	governor *ratelimit.Governor
	pages    cache.Cache
	breaker  *gobreaker.CircuitBreaker
	timeout  time.Duration
	viewport [2]int
	log      zerolog.Logger
	now      func() time.Time
}

// Options configure a Fetcher.
type Options struct {
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
}

// NewFetcher builds a fetcher. pages may be nil to disable caching.
func NewFetcher(browser Browser, governor *ratelimit.Governor, pages cache.Cache, opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	settings := gobreaker.Settings{Name: "page-fetch"}
	settings.Interval = 60 * time.Second
	settings.Timeout = 60 * time.Second
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}
	return &Fetcher{
		browser:  browser,
		governor: governor,
		pages:    pages,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		timeout:  opts.Timeout,
		viewport: [2]int{opts.ViewportWidth, opts.ViewportHeight},
		log:      logging.Component("fetcher"),
		now:      time.Now,
	}
}

// Fetch retrieves and parses one venue page through the platform adapter.
// Transport-kind failures are retried up to 3 times with backoff; CAPTCHA
// pages and missing menus surface as Content errors the caller records on
// the venue and moves past.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, adapter platforms.Adapter) (*PageData, error) {
	if f.pages != nil {
		if cached, ok := f.pages.Get(ctx, rawURL); ok {
			pd, err := parsePage(rawURL, string(cached), adapter.StateKeys, f.now())
			if err == nil {
				pd.FromCache = true
				return pd, nil
			}
		}
	}

	country := adapter.Country(rawURL)
	opts := NavigateOptions{
		Country:        country,
		WaitSelector:   adapter.MenuSelector,
		ScrollToBottom: adapter.ScrollToLoad,
		Timeout:        f.timeout,
		ViewportWidth:  f.viewport[0],
		ViewportHeight: f.viewport[1],
	}

	var html string
	err := retry.Do(
		func() error {
			if err := f.governor.Acquire(ctx, hostOf(rawURL)); err != nil {
				return err
			}
			result, err := f.breaker.Execute(func() (any, error) {
				navCtx, cancel := context.WithTimeout(ctx, f.timeout)
				defer cancel()
				return f.browser.Navigate(navCtx, rawURL, opts)
			})
			if err != nil {
				return classifyNavError(err)
			}
			html = result.(string)
			if looksLikeCaptcha(html) {
				return engine.Errorf(engine.KindContent, "fetch", "captcha challenge at %s", rawURL)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(engine.IsRetryable),
	)
	if err != nil {
		return nil, err
	}

	if f.pages != nil {
		f.pages.Set(ctx, rawURL, []byte(html), pageCacheTTL)
	}
	return parsePage(rawURL, html, adapter.StateKeys, f.now())
}

func classifyNavError(err error) error {
	if engine.KindOf(err) != engine.KindUnknown {
		return err
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return engine.E(engine.KindQuota, "fetch", err)
	}
	// Navigation failures without a classified kind are transient by
	// default (timeouts, aborted navigations, resets).
	return engine.E(engine.KindTransport, "fetch", err)
}

func hostOf(rawURL string) string {
	if a, ok := platforms.Detect(rawURL); ok {
		return a.Domain
	}
	return rawURL
}
