package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantedhq/venuescout/internal/credentials"
	"github.com/plantedhq/venuescout/internal/engine"
)

type countingProvider struct {
	calls int
	errs  []error
	hits  []Hit
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Search(context.Context, string, credentials.Lease) ([]Hit, error) {
	p.calls++
	if p.calls <= len(p.errs) {
		return nil, p.errs[p.calls-1]
	}
	return p.hits, nil
}

func TestClient_RetriesTransportErrors(t *testing.T) {
	p := &countingProvider{
		errs: []error{
			engine.Errorf(engine.KindTransport, "search", "status 503"),
			engine.Errorf(engine.KindTransport, "search", "connection reset"),
		},
		hits: []Hit{{Title: "Hiltl", URL: "https://wolt.com/en/che/zurich/restaurant/hiltl"}},
	}
	c := NewClient(p).WithBackoff(time.Millisecond)

	hits, err := c.Search(context.Background(), `vegan "planted" Zurich`, credentials.Lease{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 3, p.calls)
}

func TestClient_QuotaIsTerminal(t *testing.T) {
	p := &countingProvider{
		errs: []error{engine.Errorf(engine.KindQuota, "search", "daily limit reached")},
	}
	c := NewClient(p).WithBackoff(time.Millisecond)

	_, err := c.Search(context.Background(), "q", credentials.Lease{})
	require.Error(t, err)
	assert.Equal(t, engine.KindQuota, engine.KindOf(err))
	assert.Equal(t, 1, p.calls, "quota exhaustion must not burn retries")
}

func TestClient_ProtocolIsTerminal(t *testing.T) {
	p := &countingProvider{
		errs: []error{engine.Errorf(engine.KindProtocol, "search", "malformed response")},
	}
	c := NewClient(p).WithBackoff(time.Millisecond)

	_, err := c.Search(context.Background(), "q", credentials.Lease{})
	require.Error(t, err)
	assert.Equal(t, engine.KindProtocol, engine.KindOf(err))
	assert.Equal(t, 1, p.calls)
}

func TestClient_GivesUpAfterThreeAttempts(t *testing.T) {
	transport := engine.Errorf(engine.KindTransport, "search", "status 502")
	p := &countingProvider{errs: []error{transport, transport, transport}}
	c := NewClient(p).WithBackoff(time.Millisecond)

	_, err := c.Search(context.Background(), "q", credentials.Lease{})
	require.Error(t, err)
	assert.Equal(t, engine.KindTransport, engine.KindOf(err))
	assert.Equal(t, 3, p.calls)
}

func TestMock_DeterministicPerQuery(t *testing.T) {
	p := NewMock()
	lease := credentials.Lease{}

	first, err := p.Search(context.Background(), `vegan "planted" Basel`, lease)
	require.NoError(t, err)
	second, err := p.Search(context.Background(), `vegan "planted" Basel`, lease)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.Len(t, first, 2)

	other, err := p.Search(context.Background(), `vegan "planted" Bern`, lease)
	require.NoError(t, err)
	assert.NotEqual(t, first[0].URL, other[0].URL, "distinct queries yield distinct venues")
}
