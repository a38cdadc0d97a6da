// Package unfurl fetches pages linked from a Slack thread and extracts their
// readable text, so the summary can take them into account.
package unfurl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	"golang.org/x/sync/errgroup"
)

const (
	maxBodySize     = 2 << 20 // 2MB of HTML per page
	defaultMaxLinks = 3
	defaultMaxChars = 4000
	userAgent       = "ticketbot/1.0"
)

// Page is the readable content of one linked page.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Fetcher retrieves linked pages.
type Fetcher struct {
	client   *http.Client
	maxLinks int
	maxChars int
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithLimits sets how many links are fetched and how many characters of
// each page are kept.
func WithLimits(maxLinks, maxChars int) Option {
	return func(f *Fetcher) {
		if maxLinks > 0 {
			f.maxLinks = maxLinks
		}
		if maxChars > 0 {
			f.maxChars = maxChars
		}
	}
}

// WithTimeout sets the per-page timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.client.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: 10 * time.Second},
		maxLinks: defaultMaxLinks,
		maxChars: defaultMaxChars,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch retrieves up to the configured number of links. Links that fail to
// load are logged and skipped; the result keeps the order of links.
func (f *Fetcher) Fetch(ctx context.Context, links []string) []Page {
	links = selectLinks(links, f.maxLinks)
	if len(links) == 0 {
		return nil
	}

	pages := make([]*Page, len(links))
	g, gctx := errgroup.WithContext(ctx)
	for i, link := range links {
		g.Go(func() error {
			p, err := f.fetchOne(gctx, link)
			if err != nil {
				f.logger.Debug("link fetch failed", "url", link, "error", err)
				return nil
			}
			pages[i] = p
			return nil
		})
	}
	g.Wait()

	var out []Page
	for _, p := range pages {
		if p != nil && p.Text != "" {
			out = append(out, *p)
		}
	}
	return out
}

func (f *Fetcher) fetchOne(ctx context.Context, rawURL string) (*Page, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("unfurl: invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("unfurl: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unfurl: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unfurl: HTTP %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxBodySize)
	contentType := resp.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "text/plain") {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("unfurl: read: %w", err)
		}
		return &Page{URL: rawURL, Text: f.clip(string(data))}, nil
	}
	if !strings.Contains(contentType, "text/html") {
		return nil, fmt.Errorf("unfurl: unsupported content type %q", contentType)
	}

	article, err := readability.FromReader(body, parsed)
	if err != nil {
		return nil, fmt.Errorf("unfurl: parse: %w", err)
	}
	var buf bytes.Buffer
	if err := article.RenderText(&buf); err != nil {
		return nil, fmt.Errorf("unfurl: render: %w", err)
	}
	return &Page{URL: rawURL, Title: article.Title(), Text: f.clip(buf.String())}, nil
}

func (f *Fetcher) clip(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) > f.maxChars {
		return string(r[:f.maxChars]) + " ... [truncated]"
	}
	return text
}

// selectLinks drops duplicates and links into Slack itself, keeping at
// most n.
func selectLinks(links []string, n int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range links {
		if len(out) == n {
			break
		}
		if seen[l] || !fetchable(l) {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func fetchable(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host != "slack.com" && !strings.HasSuffix(host, ".slack.com")
}
