package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"adflow/internal/types"
)

const (
	DefaultUserAgent = "AdFlow Bot/1.0"
	DefaultTimeout   = 30 * time.Second
	maxBodyBytes     = 8 << 20
)

// FetchError is a failed download or an unparsable page.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher downloads a website or Telegram channel preview and extracts the
// fields the analysis stage reads.
type Fetcher struct {
	http         *http.Client
	userAgent    string
	telegramBase string
	md           *converter.Converter
	policy       *bluemonday.Policy
	log          *zap.Logger
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option { return func(f *Fetcher) { f.http = c } }

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if strings.TrimSpace(ua) != "" {
			f.userAgent = ua
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.http.Timeout = d
		}
	}
}

// WithTelegramBase overrides where channel previews are fetched from.
func WithTelegramBase(u string) Option {
	return func(f *Fetcher) { f.telegramBase = strings.TrimRight(u, "/") }
}

func WithLogger(l *zap.Logger) Option { return func(f *Fetcher) { f.log = l } }

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		http:         &http.Client{Timeout: DefaultTimeout},
		userAgent:    DefaultUserAgent,
		telegramBase: "https://t.me",
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy: bluemonday.UGCPolicy(),
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch detects the source kind from the URL and extracts its summary.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (types.SourceSummary, error) {
	u, err := normalizeURL(rawURL)
	if err != nil {
		return types.SourceSummary{}, &FetchError{URL: rawURL, Err: err}
	}
	if isTelegram(u) {
		ch, err := f.fetchChannel(ctx, u)
		if err != nil {
			return types.SourceSummary{}, err
		}
		return types.SourceSummary{URL: u.String(), Kind: types.SourceChannel, Channel: ch}, nil
	}
	site, err := f.fetchWebsite(ctx, u)
	if err != nil {
		return types.SourceSummary{}, err
	}
	return types.SourceSummary{URL: u.String(), Kind: types.SourceWebsite, Site: site}, nil
}

func normalizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url has no host")
	}
	return u, nil
}

func isTelegram(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	return host == "t.me" || host == "telegram.me" || strings.Contains(host, "telegram")
}

func (f *Fetcher) get(ctx context.Context, target string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: target, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{URL: target, Err: fmt.Errorf("parse html: %w", err)}
	}
	f.log.Debug("fetched", zap.String("url", target), zap.Duration("took", time.Since(start)))
	return doc, nil
}
