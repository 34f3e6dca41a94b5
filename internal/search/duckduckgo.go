package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/cherry/internal/config"
)

// maxBodyBytes bounds how much of a results page is read.
const maxBodyBytes = 2 << 20

// DuckDuckGo queries the HTML (no-JavaScript) DuckDuckGo endpoint and scrapes
// the result list.
type DuckDuckGo struct {
	endpoint   string
	userAgent  string
	maxResults int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDuckDuckGo creates the provider from configuration.
func NewDuckDuckGo(cfg config.SearchConfig, logger *zap.Logger) *DuckDuckGo {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return &DuckDuckGo{
		endpoint:   cfg.Endpoint,
		userAgent:  cfg.UserAgent,
		maxResults: maxResults,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newDecompressingTransport(nil),
		},
		logger: logger.Named("search.duckduckgo"),
	}
}

// Name returns the provider identifier.
func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search runs the query and returns at most limit results; limit <= 0 uses the
// configured default.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("duckduckgo: empty query")
	}
	if limit <= 0 {
		limit = d.maxResults
	}

	reqURL := d.endpoint + "?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo: HTTP %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: parse response: %w", err)
	}

	results := parseResults(doc, limit)
	d.logger.Debug("Search complete", zap.String("query", query), zap.Int("results", len(results)))
	return results, nil
}

// parseResults collects div.result containers in document order. A result
// needs a title link (a.result__a); the snippet (.result__snippet) is optional.
func parseResults(doc *html.Node, limit int) []Result {
	var results []Result
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Div && hasClass(n, "result") {
			if r, ok := parseResult(n); ok {
				results = append(results, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

func parseResult(container *html.Node) (Result, bool) {
	titleNode := findByClass(container, atom.A, "result__a")
	if titleNode == nil {
		return Result{}, false
	}
	title := collapse(textContent(titleNode))
	link := resolveRedirect(attr(titleNode, "href"))
	if title == "" || link == "" {
		return Result{}, false
	}

	var snippet string
	if s := findByClass(container, 0, "result__snippet"); s != nil {
		snippet = collapse(textContent(s))
	}
	return Result{Title: title, URL: link, Snippet: snippet}, true
}

// resolveRedirect unwraps DuckDuckGo's //duckduckgo.com/l/?uddg=<target> links.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" && strings.HasSuffix(u.Path, "/l/") {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

// findByClass returns the first descendant carrying class; a zero tag matches any element.
func findByClass(n *html.Node, tag atom.Atom, class string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (tag == 0 || c.DataAtom == tag) && hasClass(c, class) {
			return c
		}
		if found := findByClass(c, tag, class); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
