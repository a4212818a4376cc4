// Package review implements the deterministic auto-verifier and the human
// review queue over staged venues. The verifier runs a fixed ordered rule
// list; the queue exposes the operator actions with optimistic
// concurrency and change-log writes.
package review

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/plantedhq/venuescout/internal/engine"
	"github.com/plantedhq/venuescout/internal/logging"
	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/platforms"
	"github.com/plantedhq/venuescout/internal/store"
)

// AutoActor identifies the rule engine in change-log entries.
const AutoActor = "auto-verifier"

// Outcome is a rule decision.
type Outcome string

const (
	OutcomeReject      Outcome = "reject"
	OutcomeVerify      Outcome = "verify"
	OutcomeNeedsReview Outcome = "needs_review"
)

// Decision records which rule decided a venue and why.
type Decision struct {
	VenueID string  `json:"venue_id"`
	Name    string  `json:"name"`
	Outcome Outcome `json:"outcome"`
	Rule    int     `json:"rule"`
	Reason  string  `json:"reason,omitempty"`
}

// Report summarises one verifier pass.
type Report struct {
	Examined  int        `json:"examined"`
	Verified  int        `json:"verified"`
	Rejected  int        `json:"rejected"`
	Queued    int        `json:"queued"`
	DryRun    bool       `json:"dry_run"`
	Decisions []Decision `json:"decisions"`
}

// misusePatterns match venue names that carry the brand token without
// being a food venue (press coverage, brand pages, job boards).
var misusePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bplanted\s+(ag|gmbh|foods?|careers?|jobs?|blog|news|press)\b`),
	regexp.MustCompile(`(?i)\b(sup|im|trans)planted\b`),
	regexp.MustCompile(`(?i)\brecipe\b`),
}

// Verifier is the deterministic rule engine applied to venues entering
// the discovered status.
type Verifier struct {
	st  store.Store
	log zerolog.Logger
	now func() time.Time
}

// NewVerifier builds a verifier over the store.
func NewVerifier(st store.Store) *Verifier {
	return &Verifier{st: st, log: logging.Component("auto-verifier"), now: time.Now}
}

// WithClock overrides the verifier clock, for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Run applies the rules to every venue currently in discovered status.
// With dryRun set, decisions are computed and reported but nothing is
// written; a subsequent apply run yields the same decisions for the same
// inputs.
func (v *Verifier) Run(ctx context.Context, dryRun bool) (*Report, error) {
	chains, err := v.st.Chains().ListVerified(ctx)
	if err != nil {
		return nil, engine.E(engine.KindFatal, "review.verify", err)
	}

	venues, _, err := v.st.Venues().List(ctx, store.VenueFilter{Status: models.VenueDiscovered})
	if err != nil {
		return nil, engine.E(engine.KindFatal, "review.verify", err)
	}

	rep := &Report{DryRun: dryRun}
	for _, venue := range venues {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		d, err := v.Decide(ctx, venue, chains)
		if err != nil {
			return rep, err
		}
		rep.Examined++
		rep.Decisions = append(rep.Decisions, d)
		switch d.Outcome {
		case OutcomeVerify:
			rep.Verified++
		case OutcomeReject:
			rep.Rejected++
		default:
			rep.Queued++
		}
		if dryRun {
			continue
		}
		if err := v.apply(ctx, venue, d); err != nil {
			return rep, err
		}
	}

	v.log.Info().Int("examined", rep.Examined).Int("verified", rep.Verified).
		Int("rejected", rep.Rejected).Int("queued", rep.Queued).
		Bool("dry_run", dryRun).Msg("auto-verification pass complete")
	return rep, nil
}

// Decide evaluates the ordered rules for one venue; the first matching
// rule wins.
func (v *Verifier) Decide(ctx context.Context, venue *models.DiscoveredVenue, chains []models.Chain) (Decision, error) {
	d := Decision{VenueID: venue.ID, Name: venue.Name}

	// Rule 1: brand-misuse names are never venues.
	for _, p := range misusePatterns {
		if p.MatchString(venue.Name) {
			d.Outcome, d.Rule = OutcomeReject, 1
			d.Reason = fmt.Sprintf("name matches brand-misuse pattern %q", p.String())
			return d, nil
		}
	}

	// Rule 2: non-venue URLs.
	for _, link := range venue.PlatformLinks {
		if platforms.NonVenueURL(link.URL) {
			d.Outcome, d.Rule = OutcomeReject, 2
			d.Reason = fmt.Sprintf("url %s is not a venue page", link.URL)
			return d, nil
		}
	}

	// Rule 3: duplicate normalized URL against any non-rejected venue.
	for _, link := range venue.PlatformLinks {
		holders, err := v.st.Venues().FindByNormalizedURL(ctx, models.NormalizeURL(link.URL))
		if err != nil {
			return d, engine.E(engine.KindFatal, "review.verify", err)
		}
		for _, h := range holders {
			if h.ID != venue.ID && h.Status != models.VenueRejected {
				d.Outcome, d.Rule = OutcomeReject, 3
				d.Reason = fmt.Sprintf("duplicate of venue %s (%s)", h.ID, models.NormalizeURL(link.URL))
				return d, nil
			}
		}
	}

	// Rule 4: verified-partner chain name with strong confidence.
	if venue.Confidence >= 90 {
		if chain, ok := matchChain(venue.Name, chains); ok {
			d.Outcome, d.Rule = OutcomeVerify, 4
			d.Reason = fmt.Sprintf("matches verified chain %s", chain.Name)
			return d, nil
		}
	}

	// Rule 5: very high confidence verifies unconditionally.
	if venue.Confidence >= 95 {
		d.Outcome, d.Rule = OutcomeVerify, 5
		d.Reason = "confidence >= 95"
		return d, nil
	}

	// Rule 6: dish evidence with solid confidence.
	if venue.Confidence >= 80 {
		dishes, err := v.st.Dishes().ListByVenue(ctx, venue.ID)
		if err != nil {
			return d, engine.E(engine.KindFatal, "review.verify", err)
		}
		tagged := 0
		for _, dish := range dishes {
			if models.ValidProduct(dish.Product) {
				tagged++
			}
		}
		if tagged >= 2 {
			d.Outcome, d.Rule = OutcomeVerify, 6
			d.Reason = fmt.Sprintf("%d catalog-tagged dishes", tagged)
			return d, nil
		}
	}

	d.Outcome, d.Rule = OutcomeNeedsReview, 7
	return d, nil
}

func (v *Verifier) apply(ctx context.Context, venue *models.DiscoveredVenue, d Decision) error {
	switch d.Outcome {
	case OutcomeNeedsReview:
		return nil
	case OutcomeVerify:
		before := venue.Status
		venue.Status = models.VenueVerified
		if err := v.st.Venues().Update(ctx, venue); err != nil {
			return engine.E(engine.KindFatal, "review.verify", err)
		}
		return v.appendLog(ctx, venue.ID, models.ActionVerified, before, venue.Status, d.Reason)
	case OutcomeReject:
		before := venue.Status
		reason := d.Reason
		venue.Status = models.VenueRejected
		venue.RejectionReason = &reason
		if err := v.st.Venues().Update(ctx, venue); err != nil {
			return engine.E(engine.KindFatal, "review.verify", err)
		}
		if err := rejectDishes(ctx, v.st, venue.ID); err != nil {
			return err
		}
		return v.appendLog(ctx, venue.ID, models.ActionRejected, before, venue.Status, d.Reason)
	}
	return nil
}

func (v *Verifier) appendLog(ctx context.Context, venueID string, action models.ChangeAction, before, after models.VenueStatus, reason string) error {
	entry := &models.ChangeLogEntry{
		ID:         uuid.NewString(),
		Timestamp:  v.now().UTC(),
		Action:     action,
		Collection: "discovered_venues",
		DocumentID: venueID,
		Changes: []models.FieldChange{
			{Field: "status", Before: string(before), After: string(after)},
		},
		Source:  models.SourceScraper,
		ActorID: AutoActor,
	}
	if reason != "" {
		entry.Changes = append(entry.Changes, models.FieldChange{Field: "rejection_reason", After: reason})
	}
	if err := v.st.ChangeLog().Append(ctx, entry); err != nil {
		return engine.E(engine.KindFatal, "review.verify", err)
	}
	return nil
}

// matchChain reports whether the venue name contains a verified chain's
// name as a case-insensitive substring.
func matchChain(name string, chains []models.Chain) (models.Chain, bool) {
	lower := strings.ToLower(name)
	for _, c := range chains {
		if c.Name != "" && strings.Contains(lower, strings.ToLower(c.Name)) {
			return c, true
		}
	}
	return models.Chain{}, false
}

// rejectDishes cascades a venue rejection onto its staged dishes so no
// dish references a rejected venue.
func rejectDishes(ctx context.Context, st store.Store, venueID string) error {
	dishes, err := st.Dishes().ListByVenue(ctx, venueID)
	if err != nil {
		return engine.E(engine.KindFatal, "review.reject", err)
	}
	for _, d := range dishes {
		if d.Status == models.VenueRejected || d.Status == models.VenuePromoted {
			continue
		}
		d.Status = models.VenueRejected
		if err := st.Dishes().Update(ctx, d); err != nil {
			return engine.E(engine.KindFatal, "review.reject", err)
		}
	}
	return nil
}
