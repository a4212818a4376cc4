package extraction

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/plantedhq/venuescout/internal/fetch"
)

// RawItem is one menu item as found on the page, before brand filtering
// and product mapping.
type RawItem struct {
	Name        string
	Description string
	Category    string
	ImageURL    string
	PriceText   string
	Source      Source
}

// ExtractMenu pulls menu items out of a fetched page, structured data
// first: embedded page-state JSON, then JSON-LD, then the HTML fallback.
// The first source that yields items wins.
func ExtractMenu(pd *fetch.PageData) []RawItem {
	if items := fromState(pd); len(items) > 0 {
		return items
	}
	if items := fromJSONLD(pd); len(items) > 0 {
		return items
	}
	return fromHTML(pd)
}

// fromState walks the embedded state JSON generically: platforms disagree
// on shape, but menu items are consistently objects carrying a name plus
// a price or description sibling.
func fromState(pd *fetch.PageData) []RawItem {
	var out []RawItem
	for _, raw := range pd.State {
		var root any
		if err := json.Unmarshal(raw, &root); err != nil {
			continue
		}
		walkState(root, "", &out)
	}
	return out
}

func walkState(node any, category string, out *[]RawItem) {
	switch v := node.(type) {
	case map[string]any:
		if c, ok := v["category"].(string); ok && c != "" {
			category = c
		} else if c, ok := v["section"].(string); ok && c != "" {
			category = c
		}
		if item, ok := stateItem(v, category); ok {
			*out = append(*out, item)
			return
		}
		for _, child := range v {
			walkState(child, category, out)
		}
	case []any:
		for _, child := range v {
			walkState(child, category, out)
		}
	}
}

// stateItem interprets a map as a menu item when it has a name and at
// least one of description or price.
func stateItem(m map[string]any, category string) (RawItem, bool) {
	name, _ := m["name"].(string)
	if name == "" {
		return RawItem{}, false
	}
	desc, _ := m["description"].(string)
	price := stringify(m["price"])
	if price == "" {
		price = stringify(m["baseprice"])
	}
	if desc == "" && price == "" {
		return RawItem{}, false
	}
	img, _ := m["image"].(string)
	return RawItem{
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(desc),
		Category:    category,
		ImageURL:    img,
		PriceText:   price,
		Source:      SourceState,
	}, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// ldDocument is the subset of schema.org Restaurant/Menu markup the
// platforms embed.
type ldDocument struct {
	Type    string   `json:"@type"`
	HasMenu *ldMenu  `json:"hasMenu"`
	Menu    *ldMenu  `json:"menu"`
	Graph   []ldMenu `json:"@graph"`
}

type ldMenu struct {
	Type        string      `json:"@type"`
	HasMenuItem []ldItem    `json:"hasMenuItem"`
	Sections    []ldSection `json:"hasMenuSection"`
}

type ldSection struct {
	Name        string   `json:"name"`
	HasMenuItem []ldItem `json:"hasMenuItem"`
}

type ldItem struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Offers      *ldOffer `json:"offers"`
}

type ldOffer struct {
	Price         json.Number `json:"price"`
	PriceCurrency string      `json:"priceCurrency"`
}

func fromJSONLD(pd *fetch.PageData) []RawItem {
	var out []RawItem
	for _, raw := range pd.JSONLD {
		var doc ldDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		for _, m := range []*ldMenu{doc.HasMenu, doc.Menu} {
			if m != nil {
				out = append(out, ldMenuItems(*m)...)
			}
		}
		for _, m := range doc.Graph {
			out = append(out, ldMenuItems(m)...)
		}
	}
	return out
}

func ldMenuItems(m ldMenu) []RawItem {
	var out []RawItem
	for _, it := range m.HasMenuItem {
		out = append(out, ldRawItem(it, ""))
	}
	for _, sec := range m.Sections {
		for _, it := range sec.HasMenuItem {
			out = append(out, ldRawItem(it, sec.Name))
		}
	}
	return out
}

func ldRawItem(it ldItem, category string) RawItem {
	item := RawItem{
		Name:        strings.TrimSpace(it.Name),
		Description: strings.TrimSpace(it.Description),
		Category:    category,
		ImageURL:    it.Image,
		Source:      SourceJSONLD,
	}
	if it.Offers != nil {
		item.PriceText = it.Offers.Price.String() + " " + it.Offers.PriceCurrency
	}
	return item
}

// itemSelectors are the HTML fallback hooks, broad on purpose: by the
// time extraction lands here both structured sources came up empty.
var itemSelectors = []string{
	"[data-test-id*='MenuItem']",
	"[data-testid*='menu-item']",
	"[class*='menu-item']",
	"[class*='MenuItem']",
	"[itemtype$='MenuItem']",
}

func fromHTML(pd *fetch.PageData) []RawItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pd.HTML))
	if err != nil {
		return nil
	}

	var out []RawItem
	seen := map[string]bool{}
	for _, sel := range itemSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			name := strings.TrimSpace(s.Find("h3, h4, [class*='name'], [class*='title']").First().Text())
			if name == "" {
				// Single-line items: the whole element text is the name.
				name = strings.TrimSpace(s.Text())
			}
			if name == "" || seen[name] {
				return
			}
			seen[name] = true
			out = append(out, RawItem{
				Name:        name,
				Description: strings.TrimSpace(s.Find("p, [class*='description']").First().Text()),
				PriceText:   strings.TrimSpace(s.Find("[class*='price']").First().Text()),
				ImageURL:    s.Find("img").First().AttrOr("src", ""),
				Source:      SourceHTML,
			})
		})
		if len(out) > 0 {
			break
		}
	}
	return out
}
