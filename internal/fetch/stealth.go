package fetch

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"

	"github.com/plantedhq/venuescout/internal/engine"
)

// userAgents is the rotation pool. Real desktop fingerprints only; the
// headless marker never appears.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36",
}

// acceptLanguageFor maps market countries to realistic Accept-Language
// values so pages render their local menu language.
func acceptLanguageFor(country string) string {
	switch country {
	case "CH":
		return "de-CH,de;q=0.9,fr-CH;q=0.8,en;q=0.6"
	case "DE":
		return "de-DE,de;q=0.9,en;q=0.6"
	case "AT":
		return "de-AT,de;q=0.9,en;q=0.6"
	case "FR":
		return "fr-FR,fr;q=0.9,en;q=0.6"
	case "GB":
		return "en-GB,en;q=0.9"
	default:
		return "en-US,en;q=0.9,de;q=0.7"
	}
}

// HTTPBrowser is the plain-HTTP Browser used when a full headless engine
// is unnecessary: platform pages that ship their menu in embedded state
// JSON render fine without executing scripts. The selector wait and
// scroll hints are no-ops here; the HTML fallback compensates.
type HTTPBrowser struct {
	client *http.Client

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewHTTPBrowser builds the browser over an optional client.
func NewHTTPBrowser(client *http.Client) *HTTPBrowser {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPBrowser{client: client, rnd: rand.New(rand.NewSource(rand.Int63()))}
}

// Navigate fetches the page with a rotated user agent and localized
// headers. Status codes map onto the engine taxonomy: 429 is Quota, other
// 4xx are terminal Protocol errors, 5xx are retryable Transport errors.
func (b *HTTPBrowser) Navigate(ctx context.Context, url string, opts NavigateOptions) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", engine.E(engine.KindProtocol, "browser", err)
	}
	req.Header.Set("User-Agent", b.pickUA())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", acceptLanguageFor(opts.Country))
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if opts.ViewportWidth > 0 {
		req.Header.Set("Viewport-Width", fmt.Sprint(opts.ViewportWidth))
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", engine.E(engine.KindTransport, "browser", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", engine.Errorf(engine.KindFromStatus(resp.StatusCode), "browser",
			"status %d fetching %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", engine.E(engine.KindTransport, "browser", err)
	}
	return string(body), nil
}

func (b *HTTPBrowser) pickUA() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return userAgents[b.rnd.Intn(len(userAgents))]
}
