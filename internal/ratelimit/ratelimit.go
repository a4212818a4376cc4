// Package ratelimit paces outbound page fetches. Per host it enforces a
// jittered inter-request delay plus minute/hour token buckets and a daily
// ceiling with a 24h cooldown; a global daily cap acts as the final
// circuit breaker for the whole process.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/plantedhq/venuescout/internal/engine"
	"github.com/plantedhq/venuescout/internal/logging"
	"github.com/plantedhq/venuescout/internal/models"
)

// HostPolicy is the pacing configuration applied to every host.
type HostPolicy struct {
	MinDelay  time.Duration
	MaxDelay  time.Duration
	PerMinute int
	PerHour   int
	PerDay    int
	// GlobalPerDay caps total external requests across all hosts.
	GlobalPerDay int
}

type hostState struct {
	lastRequest   time.Time
	minute        *rate.Limiter
	hour          *rate.Limiter
	day           string
	dayCount      int
	cooldownUntil time.Time
}

// Governor hands out permission to hit hosts. All methods are safe for
// concurrent use.
type Governor struct {
	mu     sync.Mutex
	policy HostPolicy
	hosts  map[string]*hostState

	globalDay   string
	globalCount int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rnd   *rand.Rand
	log   zerolog.Logger
}

// NewGovernor builds a governor with the given policy.
func NewGovernor(policy HostPolicy) *Governor {
	return &Governor{
		policy: policy,
		hosts:  map[string]*hostState{},
		now:    time.Now,
		sleep:  sleepCtx,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		log:    logging.Component("ratelimit"),
	}
}

// WithClock overrides time and sleep, for tests.
func (g *Governor) WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) *Governor {
	g.now, g.sleep = now, sleep
	return g
}

// Acquire blocks until a request to host is allowed, observing ctx at
// every suspension point. A Quota-kind error means the host's daily
// ceiling (24h cooldown) or the global cap was hit and the caller should
// surrender the remaining work rather than wait.
func (g *Governor) Acquire(ctx context.Context, host string) error {
	g.mu.Lock()
	st := g.host(host)
	now := g.now()

	if now.Before(st.cooldownUntil) {
		g.mu.Unlock()
		return engine.Errorf(engine.KindQuota, "ratelimit",
			"host %s in cooldown until %s", host, st.cooldownUntil.UTC().Format(time.RFC3339))
	}

	day := models.UTCDay(now)
	if st.day != day {
		st.day, st.dayCount = day, 0
	}
	if g.policy.PerDay > 0 && st.dayCount >= g.policy.PerDay {
		st.cooldownUntil = now.Add(24 * time.Hour)
		g.mu.Unlock()
		g.log.Warn().Str("host", host).
			Msg("daily host ceiling reached, cooling down 24h")
		return engine.Errorf(engine.KindQuota, "ratelimit", "host %s hit daily ceiling", host)
	}

	if g.globalDay != day {
		g.globalDay, g.globalCount = day, 0
	}
	if g.policy.GlobalPerDay > 0 && g.globalCount >= g.policy.GlobalPerDay {
		g.mu.Unlock()
		return engine.Errorf(engine.KindQuota, "ratelimit", "global daily request cap reached")
	}

	// Jittered spacing between consecutive requests to the same host.
	var wait time.Duration
	if !st.lastRequest.IsZero() && g.policy.MinDelay > 0 {
		span := g.policy.MaxDelay - g.policy.MinDelay
		delay := g.policy.MinDelay
		if span > 0 {
			delay += time.Duration(g.rnd.Int63n(int64(span)))
		}
		elapsed := now.Sub(st.lastRequest)
		if elapsed < delay {
			wait = delay - elapsed
		}
	}
	minute, hour := st.minute, st.hour
	g.mu.Unlock()

	if wait > 0 {
		if err := g.sleep(ctx, wait); err != nil {
			return engine.E(engine.KindTransport, "ratelimit", err)
		}
	}
	if minute != nil {
		if err := minute.Wait(ctx); err != nil {
			return engine.E(engine.KindTransport, "ratelimit", err)
		}
	}
	if hour != nil {
		if err := hour.Wait(ctx); err != nil {
			return engine.E(engine.KindTransport, "ratelimit", err)
		}
	}

	g.mu.Lock()
	st.lastRequest = g.now()
	st.dayCount++
	g.globalCount++
	g.mu.Unlock()
	return nil
}

// GlobalUsedToday reports the process-wide request count for today.
func (g *Governor) GlobalUsedToday() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.globalDay != models.UTCDay(g.now()) {
		return 0
	}
	return g.globalCount
}

func (g *Governor) host(host string) *hostState {
	st, ok := g.hosts[host]
	if !ok {
		st = &hostState{}
		if g.policy.PerMinute > 0 {
			st.minute = rate.NewLimiter(rate.Every(time.Minute/time.Duration(g.policy.PerMinute)), g.policy.PerMinute)
		}
		if g.policy.PerHour > 0 {
			st.hour = rate.NewLimiter(rate.Every(time.Hour/time.Duration(g.policy.PerHour)), g.policy.PerHour)
		}
		g.hosts[host] = st
	}
	return st
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
