package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const defaultMaxBody = 2 << 20

// Page is a fetched listing page reduced to what detection needs.
type Page struct {
	StatusCode int
	// FinalURL is the URL after redirects.
	FinalURL string
	// Text is the lowercased visible text of the page.
	Text string
}

// Fetcher retrieves a listing page. Errors are transport failures; HTTP
// error statuses are reported through Page.StatusCode.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// HTTPFetcher fetches pages over HTTP and extracts their visible text.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

// NewHTTPFetcher creates an HTTPFetcher with the given request timeout.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxBody:   defaultMaxBody,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("verify: build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("verify: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	page := Page{StatusCode: resp.StatusCode, FinalURL: resp.Request.URL.String()}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return page, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return Page{}, fmt.Errorf("verify: read body: %w", err)
	}
	page.Text = VisibleText(string(body))
	return page, nil
}

// VisibleText returns the lowercased text content of an HTML document with
// scripts and styles removed and whitespace collapsed. Input that does not
// parse is lowercased as-is.
func VisibleText(doc string) string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return strings.ToLower(doc)
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return strings.ToLower(strings.Join(strings.Fields(b.String()), " "))
}
