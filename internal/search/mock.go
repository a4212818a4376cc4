package search

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/plantedhq/venuescout/internal/credentials"
)

// MockProvider returns deterministic hits derived from the query text so
// dry runs and tests exercise the full pipeline without network access.
type MockProvider struct {
	HitsPerQuery int
	// Fail, when set, is consulted per query to inject errors.
	Fail func(query string) error
}

// NewMock builds a mock provider returning two hits per query.
func NewMock() *MockProvider { return &MockProvider{HitsPerQuery: 2} }

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Search(_ context.Context, query string, _ credentials.Lease) ([]Hit, error) {
	if p.Fail != nil {
		if err := p.Fail(query); err != nil {
			return nil, err
		}
	}
	n := p.HitsPerQuery
	if n <= 0 {
		n = 2
	}
	slug := slugify(query)
	hits := make([]Hit, 0, n)
	for i := 0; i < n; i++ {
		hits = append(hits, Hit{
			Title:   fmt.Sprintf("Mock Venue %s %d", slug, i+1),
			URL:     fmt.Sprintf("https://wolt.com/en/che/zurich/restaurant/mock-%s-%d", slug, i+1),
			Snippet: fmt.Sprintf("planted chicken bowl and more at mock venue %d", i+1),
		})
	}
	return hits, nil
}

func slugify(s string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(s)))
	return fmt.Sprintf("%x", h.Sum32())
}
