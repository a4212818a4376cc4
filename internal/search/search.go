// Package search executes external search queries through rotating
// credentials. Two real providers (primary and fallback) and a
// deterministic mock share one interface; retry policy lives in Client so
// providers stay single-attempt.
package search

import (
	"context"
	"time"

	retry "github.com/avast/retry-go"

	"github.com/plantedhq/venuescout/internal/credentials"
	"github.com/plantedhq/venuescout/internal/engine"
)

// Hit is one raw search result.
type Hit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Provider performs a single search attempt. Implementations map provider
// failures onto the engine error taxonomy and never retry internally.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, lease credentials.Lease) ([]Hit, error)
}

// Client wraps a provider with the engine retry policy: a 30 second hard
// timeout per query, exponential backoff (1s, 2s, 4s) on Transport errors,
// at most 3 attempts. Protocol and Quota errors are terminal for the query.
type Client struct {
	provider Provider
	timeout  time.Duration
	attempts uint
	baseWait time.Duration
}

// NewClient builds a search client with the default policy.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider, timeout: 30 * time.Second, attempts: 3, baseWait: time.Second}
}

// WithTimeout overrides the per-query timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

// WithBackoff overrides the retry base delay, for tests.
func (c *Client) WithBackoff(d time.Duration) *Client {
	c.baseWait = d
	return c
}

// ProviderName names the wrapped provider.
func (c *Client) ProviderName() string { return c.provider.Name() }

// Search runs one query under the retry policy. The returned error carries
// its taxonomy kind; KindQuota means the lease's credential hit its
// provider-side limit and must be retired for the day.
func (c *Client) Search(ctx context.Context, query string, lease credentials.Lease) ([]Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var hits []Hit
	err := retry.Do(
		func() error {
			var err error
			hits, err = c.provider.Search(ctx, query, lease)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.baseWait),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(engine.IsRetryable),
	)
	if err != nil {
		return nil, err
	}
	return hits, nil
}
