package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"deepfake/internal/pkg/media"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-kratos/kratos/v2/log"
)

// UserMessage is shown to callers for every retrieval failure.
const UserMessage = "Invalid URL or network error. Could not retrieve media."

// ErrTooLarge is wrapped by Error when the body exceeds the configured limit.
var ErrTooLarge = errors.New("response body exceeds size limit")

// Error reports a failed retrieval: bad URL, network failure or non-2xx status.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config holds configuration for the fetcher.
type Config struct {
	Timeout     time.Duration
	MaxBytes    int64 // 0 means unlimited
	UserAgent   string
	ResolveHTML bool // follow og:image/og:audio/og:video when a page is returned
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:     60 * time.Second,
		MaxBytes:    200 << 20, // 200MB
		UserAgent:   "deepfake-analyzer/1.0",
		ResolveHTML: true,
	}
}

// Result is a retrieved payload.
type Result struct {
	Blob media.Blob
	Name string // base name derived from the URL path
	Size int64
	URL  string // URL the payload was finally read from
}

// Fetcher downloads media for analysis.
type Fetcher struct {
	config Config
	client *http.Client
	log    *log.Helper
}

// Option customizes the fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// New creates a new Fetcher.
func New(config Config, logger log.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		log:    log.NewHelper(logger),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads rawURL. The response Content-Type is the declared MIME type,
// falling back to sniffing. When the URL returns an HTML page and ResolveHTML is
// set, the page's Open Graph media for kind is fetched instead.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, kind media.Kind) (*Result, error) {
	res, err := f.get(ctx, rawURL, kind)
	if err != nil {
		return nil, err
	}
	if !f.config.ResolveHTML || res.Blob.MIMEType != "text/html" {
		return res, nil
	}

	target, err := ResolveMediaURL(res.URL, res.Blob.Data, kind)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	f.log.Debugf("resolved page %s to %s media %s", rawURL, kind, target)
	return f.get(ctx, target, kind)
}

func (f *Fetcher) get(ctx context.Context, rawURL string, kind media.Kind) (*Result, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &Error{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := f.readBody(resp.Body)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	size := resp.ContentLength
	if size <= 0 {
		size = int64(len(body))
	}
	final := u.String()
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}

	return &Result{
		Blob: media.NewBlob(body, resp.Header.Get("Content-Type")),
		Name: NameFromURL(final, kind),
		Size: size,
		URL:  final,
	}, nil
}

func (f *Fetcher) readBody(r io.Reader) ([]byte, error) {
	if f.config.MaxBytes <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, f.config.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.config.MaxBytes {
		return nil, ErrTooLarge
	}
	return body, nil
}

// NameFromURL returns the last path segment of rawURL, or "media.<kind>".
func NameFromURL(rawURL string, kind media.Kind) string {
	fallback := "media." + kind.String()
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return fallback
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return base
}

// metaSelectors lists page metadata naming media, by preference.
var metaSelectors = map[media.Kind][]string{
	media.KindImage: {
		`meta[property="og:image:secure_url"]`,
		`meta[property="og:image"]`,
		`meta[name="twitter:image"]`,
		`meta[property="twitter:image"]`,
	},
	media.KindAudio: {
		`meta[property="og:audio:secure_url"]`,
		`meta[property="og:audio"]`,
	},
	media.KindVideo: {
		`meta[property="og:video:secure_url"]`,
		`meta[property="og:video:url"]`,
		`meta[property="og:video"]`,
		`meta[name="twitter:player:stream"]`,
	},
}

// ResolveMediaURL finds the Open Graph (or Twitter card) media URL of kind in
// an HTML document and resolves it against pageURL.
func ResolveMediaURL(pageURL string, html []byte, kind media.Kind) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}
	for _, sel := range metaSelectors[kind] {
		content, ok := doc.Find(sel).First().Attr("content")
		if !ok || strings.TrimSpace(content) == "" {
			continue
		}
		return resolveURL(pageURL, content)
	}
	return "", fmt.Errorf("page has no %s media", kind)
}

func resolveURL(base, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}
