// Package api is the HTTP surface: the public /nearby locator plus the
// admin review and sync operations. Handlers are thin; the pipeline
// packages own the semantics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/plantedhq/venuescout/internal/cache"
	"github.com/plantedhq/venuescout/internal/engine"
	"github.com/plantedhq/venuescout/internal/logging"
	"github.com/plantedhq/venuescout/internal/metrics"
	"github.com/plantedhq/venuescout/internal/review"
	"github.com/plantedhq/venuescout/internal/store"
	"github.com/plantedhq/venuescout/internal/syncer"
)

const (
	nearbyCacheEntries = 100
	nearbyCacheTTL     = time.Minute
)

// Server wires the HTTP routes over the store and pipeline services.
type Server struct {
	st       store.Store
	queue    *review.Queue
	verifier *review.Verifier
	sync     *syncer.Syncer
	nearby   *cache.Bounded
	reg      *metrics.Registry
	log      zerolog.Logger
	now      func() time.Time
}

// New builds the server. reg may be nil to skip request metrics.
func New(st store.Store, reg *metrics.Registry) *Server {
	return &Server{
		st:       st,
		queue:    review.NewQueue(st),
		verifier: review.NewVerifier(st),
		sync:     syncer.New(st),
		nearby:   cache.NewBounded(nearbyCacheEntries, nearbyCacheTTL),
		reg:      reg,
		log:      logging.Component("api"),
		now:      time.Now,
	}
}

// WithClock overrides the server clock, for tests.
func (s *Server) WithClock(now func() time.Time) *Server {
	s.now = now
	s.queue = s.queue.WithClock(now)
	s.verifier = s.verifier.WithClock(now)
	s.sync = s.sync.WithClock(now)
	s.nearby = s.nearby.WithClock(now)
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/nearby", s.instrument("nearby", s.handleNearby)).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/review/pending", s.instrument("review_pending", s.handlePending)).Methods(http.MethodGet)
	admin.HandleFunc("/review/{id}/approve", s.instrument("review_approve", s.handleApprove)).Methods(http.MethodPost)
	admin.HandleFunc("/review/{id}/partial", s.instrument("review_partial", s.handlePartialApprove)).Methods(http.MethodPost)
	admin.HandleFunc("/review/{id}/reject", s.instrument("review_reject", s.handleReject)).Methods(http.MethodPost)
	admin.HandleFunc("/review/bulk-reject", s.instrument("review_bulk_reject", s.handleBulkReject)).Methods(http.MethodPost)
	admin.HandleFunc("/review/auto-verify", s.instrument("review_auto_verify", s.handleAutoVerify)).Methods(http.MethodPost)
	admin.HandleFunc("/sync/preview", s.instrument("sync_preview", s.handleSyncPreview)).Methods(http.MethodGet)
	admin.HandleFunc("/sync/execute", s.instrument("sync_execute", s.handleSyncExecute)).Methods(http.MethodPost)
	return r
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.reg == nil {
			h(w, r)
			return
		}
		timer := s.reg.StartRequest(route)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		timer.Stop(strconv.Itoa(rec.status))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("response encode failed")
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		status = http.StatusConflict
	default:
		switch engine.KindOf(err) {
		case engine.KindConfig, engine.KindProtocol:
			status = http.StatusBadRequest
		case engine.KindConflict:
			status = http.StatusConflict
		case engine.KindPolicy:
			status = http.StatusUnprocessableEntity
		}
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
