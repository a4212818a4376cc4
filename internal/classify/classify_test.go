package classify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantedhq/venuescout/internal/engine"
	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/search"
)

type stubProvider struct {
	name  string
	calls int
	errs  []error
	out   []Candidate
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Classify(context.Context, Input) ([]Candidate, error) {
	p.calls++
	if p.calls <= len(p.errs) {
		return nil, p.errs[p.calls-1]
	}
	return p.out, nil
}

func TestService_FallsBackOnPrimaryFailure(t *testing.T) {
	primary := &stubProvider{name: "primary", errs: []error{
		engine.Errorf(engine.KindTransport, "classify", "timeout"),
	}}
	fallback := &stubProvider{name: "fallback", out: []Candidate{{Name: "Hiltl", Confidence: 80}}}

	out, err := NewService(primary, fallback).Classify(context.Background(), Input{Query: "q"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestService_NilFallbackRetriesPrimary(t *testing.T) {
	primary := &stubProvider{name: "primary",
		errs: []error{engine.Errorf(engine.KindTransport, "classify", "timeout")},
		out:  []Candidate{{Name: "Hiltl"}},
	}

	out, err := NewService(primary, nil).Classify(context.Background(), Input{Query: "q"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2, primary.calls)
}

func TestService_SecondFailureSurfaces(t *testing.T) {
	primary := &stubProvider{name: "primary", errs: []error{
		engine.Errorf(engine.KindTransport, "classify", "timeout"),
	}}
	fallback := &stubProvider{name: "fallback", errs: []error{
		engine.Errorf(engine.KindAuth, "classify", "bad key"),
	}}

	_, err := NewService(primary, fallback).Classify(context.Background(), Input{Query: "q"})
	require.Error(t, err)
	assert.Equal(t, engine.KindAuth, engine.KindOf(err), "last failure wins")
}

func TestParseCandidates(t *testing.T) {
	out, err := parseCandidates(`Here are the venues:
[{"name":"Hiltl","city":"Zurich","confidence":120},{"name":"Tibits","confidence":-5}]
Hope this helps.`)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 100.0, out[0].Confidence, "confidence clamps to 100")
	assert.Equal(t, 0.0, out[1].Confidence, "confidence clamps to 0")

	_, err = parseCandidates("the model refused to answer")
	require.Error(t, err)
	assert.Equal(t, engine.KindProtocol, engine.KindOf(err))
}

func TestOpenAIProvider_ParsesChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"[{\"name\":\"Hiltl\",\"confidence\":85}]"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAI("test-key", srv.Client()).WithEndpoint(srv.URL)
	out, err := p.Classify(context.Background(), Input{Query: "q"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Hiltl", out[0].Name)
}

func TestAnthropicProvider_MapsRateLimitToQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewAnthropic("test-key", srv.Client()).WithEndpoint(srv.URL)
	_, err := p.Classify(context.Background(), Input{Query: "q"})
	require.Error(t, err)
	assert.Equal(t, engine.KindQuota, engine.KindOf(err))
}

func TestMockProvider_KeepsOnlyVenuePages(t *testing.T) {
	in := Input{
		Query:   "q",
		Country: "CH",
		Hits: []search.Hit{
			{Title: " Hiltl ", URL: "https://wolt.com/en/che/zurich/restaurant/hiltl"},
			{Title: "Search results", URL: "https://wolt.com/en/che/zurich/search?q=planted"},
			{Title: "Blog post", URL: "https://example.com/planted-review"},
		},
	}

	out, err := NewMockProvider(75).Classify(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Hiltl", out[0].Name)
	assert.Equal(t, "CH", out[0].Country)
	assert.Equal(t, 75.0, out[0].Confidence)
	require.Len(t, out[0].Links, 1)
	assert.Equal(t, models.PlatformWolt, out[0].Links[0].Platform)
}
