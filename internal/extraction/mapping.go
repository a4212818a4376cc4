package extraction

import (
	"regexp"
	"strings"

	"github.com/plantedhq/venuescout/internal/models"
)

// brandWordRe matches the brand token as a standalone word. Plain
// substring matching would accept "transplanted" and similar noise.
var brandWordRe = regexp.MustCompile(`(?i)(^|[^a-z])planted([^a-z]|$)`)

// HasBrandToken reports whether the brand token appears as a word in s.
// Generic substitutes ("plant-based", "vegan") and competing brand names
// do not satisfy it.
func HasBrandToken(s string) bool {
	return brandWordRe.MatchString(s)
}

// qualifiedRe matches explicit brand-qualified product phrases such as
// "planted.kebab".
var qualifiedRe = regexp.MustCompile(`(?i)planted\.(chicken|kebab|pulled|schnitzel|bratwurst|steak|duck)`)

// productKeywords are the language-tagged synonym dictionaries, checked
// after brand-qualified phrases. Order within a product is irrelevant;
// products are checked in catalog order.
var productKeywords = map[models.ProductTag][]string{
	models.ProductKebab:     {"kebab", "kebap", "döner", "doner", "dürüm", "durum"},
	models.ProductPulled:    {"pulled"},
	models.ProductSchnitzel: {"schnitzel", "escalope", "cordon"},
	models.ProductBratwurst: {"bratwurst", "sausage", "wurst", "saucisse"},
	models.ProductSteak:     {"steak", "entrecôte"},
	models.ProductDuck:      {"duck", "ente", "canard"},
	models.ProductChicken:   {"chicken", "poulet", "hähnchen", "hühnchen", "güggeli", "pollo"},
}

// MapProduct assigns exactly one catalog product to a dish using rule
// precedence: explicit brand-qualified phrase, then keyword dictionaries,
// then the conservative chicken default with reduced certainty. The
// returned certainty feeds the product-match confidence factor.
func MapProduct(name, description string) (models.ProductTag, float64) {
	text := strings.ToLower(name + " " + description)

	if m := qualifiedRe.FindStringSubmatch(text); m != nil {
		return models.ProductTag("planted." + strings.ToLower(m[1])), 95
	}

	for _, tag := range models.ProductCatalog() {
		if tag == models.ProductChicken {
			continue // chicken keywords checked last so "chicken kebab" maps to kebab
		}
		for _, kw := range productKeywords[tag] {
			if strings.Contains(text, kw) {
				return tag, 75
			}
		}
	}
	for _, kw := range productKeywords[models.ProductChicken] {
		if strings.Contains(text, kw) {
			return models.ProductChicken, 75
		}
	}

	return models.ProductChicken, 40
}

// priceRe matches "CHF 18.50", "18,50 €", "EUR 12" and similar forms.
var priceRe = regexp.MustCompile(`(?i)(CHF|EUR|GBP|€|£)\s*(\d{1,3}(?:[.,]\d{1,2})?)|(\d{1,3}(?:[.,]\d{1,2}))\s*(CHF|EUR|GBP|€|£)`)

// currencyFor maps a market country to its pricing currency.
func currencyFor(country string) string {
	switch country {
	case "CH":
		return "CHF"
	case "GB":
		return "GBP"
	default:
		return "EUR"
	}
}

// bareNumRe accepts currency-less amounts, common in embedded state JSON.
var bareNumRe = regexp.MustCompile(`^\d{1,3}(?:[.,]\d{1,2})?$`)

// ParsePrice extracts the first price from text. Currency-less amounts
// take the market country's currency. The bool reports whether a price
// was found.
func ParsePrice(text, country string) (models.Price, bool) {
	trimmed := strings.TrimSpace(text)
	if bareNumRe.MatchString(trimmed) {
		if v := parseAmount(trimmed); v > 0 {
			return models.Price{Amount: v, Currency: currencyFor(country)}, true
		}
	}
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return models.Price{}, false
	}
	sym, amount := m[1], m[2]
	if sym == "" {
		amount, sym = m[3], m[4]
	}
	value := parseAmount(amount)
	if value <= 0 {
		return models.Price{}, false
	}
	currency := normalizeCurrency(sym)
	if currency == "" {
		currency = currencyFor(country)
	}
	return models.Price{Amount: value, Currency: currency}, true
}

func normalizeCurrency(sym string) string {
	switch strings.ToUpper(sym) {
	case "CHF":
		return "CHF"
	case "EUR", "€":
		return "EUR"
	case "GBP", "£":
		return "GBP"
	default:
		return ""
	}
}

func parseAmount(s string) float64 {
	s = strings.ReplaceAll(s, ",", ".")
	var v float64
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			frac := 0.0
			scale := 0.1
			for j := i + 1; j < len(s); j++ {
				frac += float64(s[j]-'0') * scale
				scale /= 10
			}
			return v + frac
		}
		v = v*10 + float64(s[i]-'0')
	}
	return v
}

// Source identifies where a raw menu item came from, in decreasing order
// of reliability.
type Source int

const (
	SourceState Source = iota
	SourceJSONLD
	SourceHTML
)

func (s Source) reliability() float64 {
	switch s {
	case SourceState:
		return 90
	case SourceJSONLD:
		return 75
	default:
		return 55
	}
}

// ScoreDish computes the five confidence factors for a retained dish.
func ScoreDish(name, description string, price models.Price, hasPrice bool, certainty float64, src Source) models.DishConfidence {
	c := models.DishConfidence{
		SourceReliability: src.reliability(),
		ProductMatch:      certainty,
	}

	switch {
	case HasBrandToken(name) && len(name) <= 80:
		c.NameClarity = 90
	case len(name) > 0 && len(name) <= 80:
		c.NameClarity = 60
	default:
		c.NameClarity = 30
	}

	switch {
	case HasBrandToken(description):
		c.DescriptionEvidence = 90
	case description == "" && qualifiedRe.MatchString(name):
		// No description, but the name itself names the exact product.
		c.DescriptionEvidence = 70
	case description != "":
		c.DescriptionEvidence = 50
	default:
		c.DescriptionEvidence = 30
	}

	switch {
	case hasPrice && price.Amount >= 5 && price.Amount <= 50:
		c.PricePlausibility = 90
	case hasPrice:
		c.PricePlausibility = 50
	default:
		c.PricePlausibility = 40
	}

	return c
}
