// Package classify turns raw search hits into candidate venues using an
// AI provider. Two provider implementations (primary and fallback) return
// the same candidate shape; the service retries once across them and lets
// the caller record the query as executed-but-not-classified on a second
// failure.
package classify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/plantedhq/venuescout/internal/logging"
	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/search"
)

// Input carries raw hits plus the originating query context.
type Input struct {
	Query    string
	Hits     []search.Hit
	Country  string
	City     string
	Platform models.PlatformTag
	// ChainFilter, when set, tells the classifier to hard-filter
	// candidates whose name does not fuzzy-match this chain.
	ChainFilter string
}

// Candidate is one classified venue candidate.
type Candidate struct {
	Name            string                        `json:"name"`
	Street          string                        `json:"street,omitempty"`
	City            string                        `json:"city,omitempty"`
	PostalCode      string                        `json:"postal_code,omitempty"`
	Country         string                        `json:"country,omitempty"`
	Links           []models.DeliveryPlatformLink `json:"links"`
	Confidence      float64                       `json:"confidence"`
	PositiveFactors []string                      `json:"positive_factors,omitempty"`
	NegativeFactors []string                      `json:"negative_factors,omitempty"`
	ChainGuess      string                        `json:"chain_guess,omitempty"`
}

// Provider classifies one batch of hits. Implementations never retry.
type Provider interface {
	Name() string
	Classify(ctx context.Context, in Input) ([]Candidate, error)
}

// Service fronts a primary and an optional fallback provider with the
// single-retry policy.
type Service struct {
	primary  Provider
	fallback Provider
	log      zerolog.Logger
}

// NewService builds the classifier service. fallback may be nil, in which
// case the retry re-uses the primary.
func NewService(primary, fallback Provider) *Service {
	return &Service{primary: primary, fallback: fallback, log: logging.Component("classifier")}
}

// Classify runs the providers with one retry. The second failure is
// returned to the caller, which records the query as not classified and
// moves on; classification failure never halts a run.
func (s *Service) Classify(ctx context.Context, in Input) ([]Candidate, error) {
	out, err := s.primary.Classify(ctx, in)
	if err == nil {
		return out, nil
	}
	s.log.Warn().Err(err).Str("provider", s.primary.Name()).Str("query", in.Query).
		Msg("classifier failed, retrying")

	retryWith := s.fallback
	if retryWith == nil {
		retryWith = s.primary
	}
	out, err = retryWith.Classify(ctx, in)
	if err != nil {
		s.log.Warn().Err(err).Str("provider", retryWith.Name()).Str("query", in.Query).
			Msg("classifier retry failed, skipping classification")
		return nil, err
	}
	return out, nil
}
