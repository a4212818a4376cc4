package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/plantedhq/venuescout/internal/credentials"
	"github.com/plantedhq/venuescout/internal/engine"
)

const (
	primaryEndpoint  = "https://www.googleapis.com/customsearch/v1"
	fallbackEndpoint = "https://serpapi.com/search.json"
	resultsPerQuery  = 10
)

// PrimaryProvider talks to the Custom Search JSON API. The credential's
// APIKey and EngineID map onto the key and cx parameters.
type PrimaryProvider struct {
	client   *http.Client
	endpoint string
}

// NewPrimary builds the primary provider. A nil client uses
// http.DefaultClient; timeouts are enforced by the caller's context.
func NewPrimary(client *http.Client) *PrimaryProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &PrimaryProvider{client: client, endpoint: primaryEndpoint}
}

// WithEndpoint overrides the API endpoint, for tests.
func (p *PrimaryProvider) WithEndpoint(u string) *PrimaryProvider {
	p.endpoint = u
	return p
}

func (p *PrimaryProvider) Name() string { return "primary" }

func (p *PrimaryProvider) Search(ctx context.Context, query string, lease credentials.Lease) ([]Hit, error) {
	params := url.Values{}
	params.Set("key", lease.APIKey)
	params.Set("cx", lease.EngineID)
	params.Set("q", query)
	params.Set("num", fmt.Sprint(resultsPerQuery))

	body, err := getJSON(ctx, p.client, p.endpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, engine.E(engine.KindProtocol, "search.primary", err)
	}

	hits := make([]Hit, 0, len(payload.Items))
	for _, it := range payload.Items {
		hits = append(hits, Hit{Title: it.Title, URL: it.Link, Snippet: it.Snippet})
	}
	return hits, nil
}

// FallbackProvider talks to a SERP-proxy API keyed by the credential's
// APIKey. It returns the same Hit shape as the primary.
type FallbackProvider struct {
	client   *http.Client
	endpoint string
}

// NewFallback builds the fallback provider.
func NewFallback(client *http.Client) *FallbackProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &FallbackProvider{client: client, endpoint: fallbackEndpoint}
}

// WithEndpoint overrides the API endpoint, for tests.
func (p *FallbackProvider) WithEndpoint(u string) *FallbackProvider {
	p.endpoint = u
	return p
}

func (p *FallbackProvider) Name() string { return "fallback" }

func (p *FallbackProvider) Search(ctx context.Context, query string, lease credentials.Lease) ([]Hit, error) {
	params := url.Values{}
	params.Set("api_key", lease.APIKey)
	params.Set("q", query)
	params.Set("num", fmt.Sprint(resultsPerQuery))

	body, err := getJSON(ctx, p.client, p.endpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var payload struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, engine.E(engine.KindProtocol, "search.fallback", err)
	}

	hits := make([]Hit, 0, len(payload.OrganicResults))
	for _, it := range payload.OrganicResults {
		hits = append(hits, Hit{Title: it.Title, URL: it.Link, Snippet: it.Snippet})
	}
	return hits, nil
}

// getJSON performs one GET and classifies the response by status.
func getJSON(ctx context.Context, client *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, engine.E(engine.KindProtocol, "search.request", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, engine.E(engine.KindTransport, "search.request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		kind := engine.KindFromStatus(resp.StatusCode)
		return nil, engine.Errorf(kind, "search.request", "unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, engine.E(engine.KindTransport, "search.request", err)
	}
	return body, nil
}
