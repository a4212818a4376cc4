package fetch

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// PageData is one fetched venue page, pre-parsed for the extractor:
// embedded page-state JSON first, then JSON-LD blocks, with the raw HTML
// kept for the selector fallback.
type PageData struct {
	URL       string
	HTML      string
	State     map[string]json.RawMessage
	JSONLD    []json.RawMessage
	FetchedAt time.Time
	FromCache bool
}

// captchaMarkers are body fragments that indicate a bot challenge instead
// of a venue page.
var captchaMarkers = []string{
	"g-recaptcha",
	"cf-challenge",
	"px-captcha",
	"datadome",
	"are you a robot",
	"verify you are human",
}

// looksLikeCaptcha reports whether the body is a challenge page.
func looksLikeCaptcha(html string) bool {
	lower := strings.ToLower(html)
	for _, m := range captchaMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// parsePage pulls embedded state and JSON-LD out of the document.
// stateKeys are the platform adapter's hints, tried in order; each one is
// looked up both as a script element id and as an inline assignment.
func parsePage(rawURL, html string, stateKeys []string, fetchedAt time.Time) (*PageData, error) {
	pd := &PageData{
		URL:       rawURL,
		HTML:      html,
		State:     map[string]json.RawMessage{},
		FetchedAt: fetchedAt,
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return pd, err
	}

	for _, key := range stateKeys {
		if raw, ok := extractState(doc, html, key); ok {
			pd.State[key] = raw
		}
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if json.Valid([]byte(text)) {
			pd.JSONLD = append(pd.JSONLD, json.RawMessage(text))
		}
	})

	return pd, nil
}

func extractState(doc *goquery.Document, html, key string) (json.RawMessage, bool) {
	// Next.js style: <script id="__NEXT_DATA__" type="application/json">.
	if sel := doc.Find("script#" + key); sel.Length() > 0 {
		text := strings.TrimSpace(sel.First().Text())
		if json.Valid([]byte(text)) {
			return json.RawMessage(text), true
		}
	}
	// Inline assignment style: window.__INITIAL_STATE__ = {...};
	// The document is left untouched so string literals keep their spaces.
	assign := regexp.MustCompile(regexp.QuoteMeta(key) + `\s*=\s*`)
	loc := assign.FindStringIndex(html)
	if loc == nil {
		return nil, false
	}
	if raw, ok := balancedJSON(html[loc[1]:]); ok {
		return raw, true
	}
	return nil, false
}

// balancedJSON slices the leading balanced JSON object or array off s,
// respecting string literals.
func balancedJSON(s string) (json.RawMessage, bool) {
	if len(s) == 0 || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	open, closer := s[0], byte('}')
	if open == '[' {
		closer = ']'
	}
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				candidate := s[:i+1]
				if json.Valid([]byte(candidate)) {
					return json.RawMessage(candidate), true
				}
				return nil, false
			}
		}
	}
	return nil, false
}
