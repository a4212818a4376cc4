// Package platforms holds the sealed set of delivery-platform adapters.
// Each adapter knows the platform's URL shape, how to derive the market
// country from a URL, and which extraction hints apply to its pages.
package platforms

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/plantedhq/venuescout/internal/models"
)

// Adapter describes one delivery platform. The set is closed; Lookup
// dispatches on the platform tag.
type Adapter struct {
	Tag models.PlatformTag
	// Domain is the canonical host used in site-scoped search queries.
	Domain string
	// PathHint is a URL path fragment that marks a venue page (as opposed
	// to search results or category listings).
	PathHint string
	// StateKeys are the embedded page-state JSON markers tried first
	// during structured extraction, in order.
	StateKeys []string
	// MenuSelector is the CSS selector the HTML fallback waits for.
	MenuSelector string
	// ScrollToLoad marks platforms that lazy-load menus on scroll.
	ScrollToLoad bool
	// countryFromURL derives the market country from a venue URL.
	countryFromURL func(u *url.URL) string
}

var registry = map[models.PlatformTag]Adapter{
	models.PlatformUberEats: {
		Tag:          models.PlatformUberEats,
		Domain:       "ubereats.com",
		PathHint:     "/store/",
		StateKeys:    []string{"__REACT_QUERY_STATE__", "__REDUX_STATE__"},
		MenuSelector: "main [data-testid='store-catalog']",
		ScrollToLoad: true,
		countryFromURL: func(u *url.URL) string {
			// ubereats.com/ch/..., ubereats.com/de/...
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) > 0 && len(parts[0]) == 2 {
				return strings.ToUpper(parts[0])
			}
			return ""
		},
	},
	models.PlatformWolt: {
		Tag:          models.PlatformWolt,
		Domain:       "wolt.com",
		PathHint:     "/restaurant/",
		StateKeys:    []string{"__NEXT_DATA__"},
		MenuSelector: "[data-test-id='MenuSection']",
		ScrollToLoad: true,
		countryFromURL: func(u *url.URL) string {
			// wolt.com/en/che/zurich/..., third segment is ISO3.
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) >= 2 {
				return iso3to2(parts[1])
			}
			return ""
		},
	},
	models.PlatformLieferando: {
		Tag:          models.PlatformLieferando,
		Domain:       "lieferando.de",
		PathHint:     "/speisekarte/",
		StateKeys:    []string{"__INITIAL_STATE__"},
		MenuSelector: "[data-qa='menu-category']",
		countryFromURL: func(u *url.URL) string {
			if strings.HasSuffix(u.Host, ".at") {
				return "AT"
			}
			return "DE"
		},
	},
	models.PlatformJustEat: {
		Tag:          models.PlatformJustEat,
		Domain:       "just-eat.ch",
		PathHint:     "/menu/",
		StateKeys:    []string{"__INITIAL_STATE__"},
		MenuSelector: "[data-qa='menu-category']",
		countryFromURL: func(u *url.URL) string { return tldCountry(u.Host) },
	},
	models.PlatformDeliveroo: {
		Tag:          models.PlatformDeliveroo,
		Domain:       "deliveroo.com",
		PathHint:     "/menu/",
		StateKeys:    []string{"__NEXT_DATA__", "ROO_STATE"},
		MenuSelector: "[class*='MenuItemCard']",
		ScrollToLoad: true,
		countryFromURL: func(u *url.URL) string { return tldCountry(u.Host) },
	},
	models.PlatformSmood: {
		Tag:          models.PlatformSmood,
		Domain:       "smood.ch",
		PathHint:     "/restaurant/",
		StateKeys:    []string{"__NUXT__"},
		MenuSelector: ".menu-list",
		countryFromURL: func(u *url.URL) string { return "CH" },
	},
	models.PlatformEatCh: {
		Tag:          models.PlatformEatCh,
		Domain:       "eat.ch",
		PathHint:     "/menu/",
		StateKeys:    []string{"__INITIAL_STATE__"},
		MenuSelector: "[data-qa='menu-category']",
		countryFromURL: func(u *url.URL) string { return "CH" },
	},
}

// Lookup returns the adapter for tag.
func Lookup(tag models.PlatformTag) (Adapter, bool) {
	a, ok := registry[tag]
	return a, ok
}

// Domain returns the canonical host for tag, or empty when unknown.
func Domain(tag models.PlatformTag) string {
	if a, ok := registry[tag]; ok {
		return a.Domain
	}
	return ""
}

// Detect maps a raw URL to the platform that serves it.
func Detect(raw string) (Adapter, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Adapter{}, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	for _, a := range registry {
		base := strings.TrimSuffix(a.Domain, tld(a.Domain))
		if host == a.Domain || strings.HasSuffix(host, "."+a.Domain) ||
			strings.HasPrefix(host, base) {
			return a, true
		}
	}
	return Adapter{}, false
}

// Country derives the market country code from a venue URL, empty when
// indeterminate.
func (a Adapter) Country(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || a.countryFromURL == nil {
		return ""
	}
	return a.countryFromURL(u)
}

// IsVenuePage reports whether the URL looks like a venue page rather than
// a search result or category listing.
func (a Adapter) IsVenuePage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, a.PathHint)
}

// nonVenuePatterns match platform pages that are never venue pages:
// search results, category listings, help centers and city hubs.
var nonVenuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)/(search|suche)(/|\?|$)`),
	regexp.MustCompile(`(?i)[?&]q=`),
	regexp.MustCompile(`(?i)/(category|categories|kategorie|cuisine)(/|\?|$)`),
	regexp.MustCompile(`(?i)/(help|support|faq|blog|about|jobs?|legal)(/|\?|$)`),
	regexp.MustCompile(`(?i)/(city|stadt|discovery|near-me)(/|\?|$)`),
}

// NonVenueURL reports whether the URL matches a known non-venue page
// pattern. Shared by the discovery negative-signal check and the
// auto-verifier's reject rule.
func NonVenueURL(raw string) bool {
	for _, p := range nonVenuePatterns {
		if p.MatchString(raw) {
			return true
		}
	}
	return false
}

func tld(host string) string {
	i := strings.LastIndex(host, ".")
	if i < 0 {
		return ""
	}
	return host[i:]
}

func tldCountry(host string) string {
	switch tld(strings.ToLower(host)) {
	case ".ch":
		return "CH"
	case ".de":
		return "DE"
	case ".at":
		return "AT"
	case ".fr":
		return "FR"
	case ".co.uk", ".uk":
		return "GB"
	default:
		return ""
	}
}

func iso3to2(code string) string {
	switch strings.ToLower(code) {
	case "che":
		return "CH"
	case "deu":
		return "DE"
	case "aut":
		return "AT"
	case "fra":
		return "FR"
	default:
		return ""
	}
}
