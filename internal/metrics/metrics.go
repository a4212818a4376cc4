// Package metrics holds the Prometheus registry for the pipeline: search
// and fetch volume, staging outcomes, credential pool state, and locator
// API latency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all pipeline metrics.
type Registry struct {
	// Discovery.
	SearchQueries  *prometheus.CounterVec
	VenuesStaged   *prometheus.CounterVec
	StrategyScores *prometheus.GaugeVec

	// Extraction.
	PagesFetched *prometheus.CounterVec
	DishesKept   prometheus.Counter
	FetchErrors  *prometheus.CounterVec

	// Credential pool.
	CredentialsAvailable prometheus.Gauge
	QuotaExhaustions     prometheus.Counter

	// Sync.
	VenuesPromoted prometheus.Counter
	DishesPromoted prometheus.Counter

	// Locator API.
	RequestDuration *prometheus.HistogramVec
	NearbyCacheHits prometheus.Counter
}

// New creates a registry and registers every metric on reg. Pass
// prometheus.DefaultRegisterer outside tests.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		SearchQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venuescout_search_queries_total",
				Help: "Search queries executed by tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		VenuesStaged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venuescout_venues_staged_total",
				Help: "Venue staging outcomes (new, merged, skipped_rejected)",
			},
			[]string{"outcome"},
		),
		StrategyScores: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "venuescout_strategy_score",
				Help: "Current effectiveness score per discovery strategy",
			},
			[]string{"strategy"},
		),
		PagesFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venuescout_pages_fetched_total",
				Help: "Venue pages fetched by platform and result",
			},
			[]string{"platform", "result"},
		),
		DishesKept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "venuescout_dishes_kept_total",
				Help: "Dishes retained by the brand filter",
			},
		),
		FetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venuescout_fetch_errors_total",
				Help: "Fetch failures by error kind",
			},
			[]string{"kind"},
		),
		CredentialsAvailable: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "venuescout_credentials_available",
				Help: "Credentials currently leaseable from the pool",
			},
		),
		QuotaExhaustions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "venuescout_quota_exhaustions_total",
				Help: "Times a credential hit its daily quota",
			},
		),
		VenuesPromoted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "venuescout_venues_promoted_total",
				Help: "Venues promoted to production",
			},
		),
		DishesPromoted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "venuescout_dishes_promoted_total",
				Help: "Dishes promoted to production",
			},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "venuescout_request_duration_seconds",
				Help:    "Locator API request duration",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"route", "status"},
		),
		NearbyCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "venuescout_nearby_cache_hits_total",
				Help: "Nearby lookups served from the response cache",
			},
		),
	}

	reg.MustRegister(
		r.SearchQueries,
		r.VenuesStaged,
		r.StrategyScores,
		r.PagesFetched,
		r.DishesKept,
		r.FetchErrors,
		r.CredentialsAvailable,
		r.QuotaExhaustions,
		r.VenuesPromoted,
		r.DishesPromoted,
		r.RequestDuration,
		r.NearbyCacheHits,
	)
	return r
}

// RequestTimer times one API request.
type RequestTimer struct {
	reg   *Registry
	route string
	start time.Time
}

// StartRequest begins timing a request on the named route.
func (r *Registry) StartRequest(route string) *RequestTimer {
	return &RequestTimer{reg: r, route: route, start: time.Now()}
}

// Stop records the request with its final status code.
func (t *RequestTimer) Stop(status string) {
	t.reg.RequestDuration.WithLabelValues(t.route, status).Observe(time.Since(t.start).Seconds())
}

// Handler serves the registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
