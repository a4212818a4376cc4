package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/plantedhq/venuescout/internal/engine"
	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/platforms"
)

const (
	openAIEndpoint    = "https://api.openai.com/v1/chat/completions"
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	openAIModel       = "gpt-4o-mini"
	anthropicModel    = "claude-3-5-haiku-latest"
)

// systemPrompt instructs the model to emit the candidate JSON shape both
// providers share.
const systemPrompt = `You review web search results for food delivery venue pages that sell dishes made with "planted" brand products. Return a JSON array of candidates. Each candidate: {"name","street","city","postal_code","country","links":[{"platform","url"}],"confidence":0-100,"positive_factors":[],"negative_factors":[],"chain_guess"}. Only include results that are venue pages on a delivery platform. Confidence reflects how certain you are the venue really serves planted products.`

func userPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search query: %s\n", in.Query)
	if in.City != "" {
		fmt.Fprintf(&b, "Expected city: %s\n", in.City)
	}
	if in.Country != "" {
		fmt.Fprintf(&b, "Expected country: %s\n", in.Country)
	}
	if in.ChainFilter != "" {
		fmt.Fprintf(&b, "Only return venues belonging to the chain %q; drop everything else.\n", in.ChainFilter)
	}
	b.WriteString("Results:\n")
	for i, h := range in.Hits {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, h.Title, h.URL, h.Snippet)
	}
	return b.String()
}

// parseCandidates decodes the model output, tolerating surrounding prose
// by slicing to the outermost JSON array.
func parseCandidates(text string) ([]Candidate, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, engine.Errorf(engine.KindProtocol, "classify.parse", "no JSON array in model output")
	}
	var out []Candidate
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, engine.E(engine.KindProtocol, "classify.parse", err)
	}
	for i := range out {
		if out[i].Confidence < 0 {
			out[i].Confidence = 0
		}
		if out[i].Confidence > 100 {
			out[i].Confidence = 100
		}
	}
	return out, nil
}

// OpenAIProvider is the primary classifier backend.
type OpenAIProvider struct {
	apiKey   string
	client   *http.Client
	endpoint string
	model    string
}

// NewOpenAI builds the primary provider.
func NewOpenAI(apiKey string, client *http.Client) *OpenAIProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIProvider{apiKey: apiKey, client: client, endpoint: openAIEndpoint, model: openAIModel}
}

// WithEndpoint overrides the API endpoint, for tests.
func (p *OpenAIProvider) WithEndpoint(u string) *OpenAIProvider {
	p.endpoint = u
	return p
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Classify(ctx context.Context, in Input) ([]Candidate, error) {
	reqBody, _ := json.Marshal(map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt(in)},
		},
		"temperature": 0,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, engine.E(engine.KindProtocol, "classify.openai", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := doJSON(p.client, req, "classify.openai")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, engine.E(engine.KindProtocol, "classify.openai", err)
	}
	if len(payload.Choices) == 0 {
		return nil, engine.Errorf(engine.KindProtocol, "classify.openai", "empty choices")
	}
	return parseCandidates(payload.Choices[0].Message.Content)
}

// AnthropicProvider is the fallback classifier backend.
type AnthropicProvider struct {
	apiKey   string
	client   *http.Client
	endpoint string
	model    string
}

// NewAnthropic builds the fallback provider.
func NewAnthropic(apiKey string, client *http.Client) *AnthropicProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &AnthropicProvider{apiKey: apiKey, client: client, endpoint: anthropicEndpoint, model: anthropicModel}
}

// WithEndpoint overrides the API endpoint, for tests.
func (p *AnthropicProvider) WithEndpoint(u string) *AnthropicProvider {
	p.endpoint = u
	return p
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Classify(ctx context.Context, in Input) ([]Candidate, error) {
	reqBody, _ := json.Marshal(map[string]any{
		"model":      p.model,
		"max_tokens": 2048,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": userPrompt(in)},
		},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, engine.E(engine.KindProtocol, "classify.anthropic", err)
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	body, err := doJSON(p.client, req, "classify.anthropic")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, engine.E(engine.KindProtocol, "classify.anthropic", err)
	}
	if len(payload.Content) == 0 {
		return nil, engine.Errorf(engine.KindProtocol, "classify.anthropic", "empty content")
	}
	return parseCandidates(payload.Content[0].Text)
}

func doJSON(client *http.Client, req *http.Request, op string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, engine.E(engine.KindTransport, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, engine.Errorf(engine.KindFromStatus(resp.StatusCode), op, "unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, engine.E(engine.KindTransport, op, err)
	}
	return body, nil
}

// MockProvider classifies deterministically without a model: every hit on
// a known platform venue page becomes a candidate at a fixed confidence.
type MockProvider struct {
	Confidence float64
}

// NewMockProvider builds a mock classifier with the given confidence.
func NewMockProvider(confidence float64) *MockProvider {
	return &MockProvider{Confidence: confidence}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Classify(_ context.Context, in Input) ([]Candidate, error) {
	var out []Candidate
	for _, h := range in.Hits {
		adapter, ok := platforms.Detect(h.URL)
		if !ok || !adapter.IsVenuePage(h.URL) {
			continue
		}
		city := in.City
		if city == "" {
			city = "Zurich"
		}
		out = append(out, Candidate{
			Name:    strings.TrimSpace(h.Title),
			City:    city,
			Country: adapter.Country(h.URL),
			Links: []models.DeliveryPlatformLink{
				{Platform: adapter.Tag, URL: h.URL},
			},
			Confidence:      p.Confidence,
			PositiveFactors: []string{"platform venue page", "brand token in snippet"},
		})
	}
	return out, nil
}
