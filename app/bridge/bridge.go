package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/lysyi3m/rss-stash/app/database"
	"github.com/lysyi3m/rss-stash/app/network"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultCacheName     = "tech-news-dashboard-v1"
	DefaultSnapshotCache = "feeds-cache"
	DefaultFeedProxyPath = "/news.php"

	SnapshotKey = "cached-feeds-data"
)

type Strategy int

const (
	PassThrough Strategy = iota
	NetworkFirst
	CacheFirst
)

func (s Strategy) String() string {
	switch s {
	case NetworkFirst:
		return "network-first"
	case CacheFirst:
		return "cache-first"
	default:
		return "pass-through"
	}
}

// Source tells where a served response came from.
type Source string

const (
	SourceNetwork Source = "MISS"
	SourceCache   Source = "HIT"
	SourceBypass  Source = "BYPASS"
)

type Options struct {
	Origin        string
	CacheName     string
	SnapshotCache string
	FeedProxyPath string
}

// Bridge sits between clients and the network, keeping a byte cache of
// responses so feed content and app-shell assets survive going offline.
type Bridge struct {
	cache         database.ResponseCacheInterface
	fetcher       network.Fetcher
	origin        *url.URL
	cacheName     string
	snapshotCache string
	feedProxyPath string
}

// Result is a response served by the bridge
type Result struct {
	*network.Response
	Strategy Strategy
	Source   Source
}

func New(cache database.ResponseCacheInterface, fetcher network.Fetcher, opts Options) (*Bridge, error) {
	origin, err := url.Parse(opts.Origin)
	if err != nil {
		return nil, fmt.Errorf("failed to parse origin: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("origin must be an absolute URL: %q", opts.Origin)
	}

	b := &Bridge{
		cache:         cache,
		fetcher:       fetcher,
		origin:        origin,
		cacheName:     opts.CacheName,
		snapshotCache: opts.SnapshotCache,
		feedProxyPath: opts.FeedProxyPath,
	}
	if b.cacheName == "" {
		b.cacheName = DefaultCacheName
	}
	if b.snapshotCache == "" {
		b.snapshotCache = DefaultSnapshotCache
	}
	if b.feedProxyPath == "" {
		b.feedProxyPath = DefaultFeedProxyPath
	}

	return b, nil
}

func (b *Bridge) CacheName() string {
	return b.cacheName
}

// Resolve turns a request URL into the absolute target it addresses.
// Relative URLs are resolved against the origin.
func (b *Bridge) Resolve(u *url.URL) *url.URL {
	if u.IsAbs() {
		return u
	}
	return b.origin.ResolveReference(u)
}

func (b *Bridge) SameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, b.origin.Scheme) && strings.EqualFold(u.Host, b.origin.Host)
}

// Classify picks the routing strategy for an absolute target URL
func (b *Bridge) Classify(target *url.URL) Strategy {
	if b.isFeedContent(target) {
		return NetworkFirst
	}
	if b.SameOrigin(target) {
		return CacheFirst
	}
	return PassThrough
}

func (b *Bridge) isFeedContent(target *url.URL) bool {
	if b.feedProxyPath != "" && strings.Contains(target.Path, b.feedProxyPath) {
		return true
	}
	raw := target.String()
	return strings.Contains(raw, "feed") || strings.Contains(raw, "rss")
}

// Serve answers one request. Only GET requests are read from or written to
// the cache; everything else is relayed to the network.
func (b *Bridge) Serve(ctx context.Context, req *http.Request) (*Result, error) {
	target := b.Resolve(req.URL)
	strategy := b.Classify(target)

	if req.Method != http.MethodGet {
		resp, err := b.forward(ctx, req, target)
		if err != nil {
			return nil, err
		}
		return &Result{Response: resp, Strategy: strategy, Source: SourceBypass}, nil
	}

	switch strategy {
	case NetworkFirst:
		return b.networkFirst(ctx, req, target)
	case CacheFirst:
		return b.cacheFirst(ctx, req, target)
	default:
		resp, err := b.forward(ctx, req, target)
		if err != nil {
			return nil, err
		}
		return &Result{Response: resp, Strategy: PassThrough, Source: SourceBypass}, nil
	}
}

func (b *Bridge) networkFirst(ctx context.Context, req *http.Request, target *url.URL) (*Result, error) {
	key := target.String()

	resp, fetchErr := b.forward(ctx, req, target)
	if fetchErr == nil {
		if resp.OK() {
			if err := b.store(ctx, b.cacheName, key, resp); err != nil {
				slog.Warn("Failed to cache feed response", "url", key, "error", err)
			}
		}
		return &Result{Response: resp, Strategy: NetworkFirst, Source: SourceNetwork}, nil
	}

	cached, err := b.cache.Match(ctx, b.cacheName, http.MethodGet, key)
	if err != nil {
		if errors.Is(err, database.ErrCacheMiss) {
			return nil, fetchErr
		}
		return nil, fmt.Errorf("failed to read cache after %w: %w", fetchErr, err)
	}

	slog.Debug("Serving cached feed response", "url", key, "stored_at", cached.StoredAt, "error", fetchErr)

	return &Result{Response: fromCached(cached), Strategy: NetworkFirst, Source: SourceCache}, nil
}

func (b *Bridge) cacheFirst(ctx context.Context, req *http.Request, target *url.URL) (*Result, error) {
	key := target.String()

	cached, err := b.cache.Match(ctx, b.cacheName, http.MethodGet, key)
	if err == nil {
		return &Result{Response: fromCached(cached), Strategy: CacheFirst, Source: SourceCache}, nil
	}
	if !errors.Is(err, database.ErrCacheMiss) {
		slog.Warn("Failed to read cache", "url", key, "error", err)
	}

	resp, err := b.forward(ctx, req, target)
	if err != nil {
		return nil, err
	}

	if b.cacheable(resp) {
		if err := b.store(ctx, b.cacheName, key, resp); err != nil {
			slog.Warn("Failed to cache asset", "url", key, "error", err)
		}
	}

	return &Result{Response: resp, Strategy: CacheFirst, Source: SourceNetwork}, nil
}

// cacheable accepts only direct same-origin 200 responses
func (b *Bridge) cacheable(resp *network.Response) bool {
	if !resp.OK() || resp.Redirected {
		return false
	}
	final, err := url.Parse(resp.URL)
	if err != nil {
		return false
	}
	return b.SameOrigin(final)
}

var strippedHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Accept-Encoding",
	"Authorization",
	"X-API-Key",
}

func (b *Bridge) forward(ctx context.Context, req *http.Request, target *url.URL) (*network.Response, error) {
	var body io.Reader
	if req.Body != nil && req.Method != http.MethodGet && req.Method != http.MethodHead {
		body = req.Body
	}

	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	for _, h := range strippedHeaders {
		out.Header.Del(h)
	}

	return b.fetcher.Do(ctx, out)
}

func (b *Bridge) store(ctx context.Context, cacheName, key string, resp *network.Response) error {
	return b.cache.Put(ctx, database.CachedResponse{
		CacheName: cacheName,
		Method:    http.MethodGet,
		URL:       key,
		Status:    resp.StatusCode,
		Header:    storableHeader(resp.Header),
		Body:      resp.Body,
		StoredAt:  time.Now().UTC(),
	})
}

// Mirror stores a feed fetched outside of Serve so it can be served from
// cache later. Non-200 responses are ignored.
func (b *Bridge) Mirror(ctx context.Context, rawURL string, resp *network.Response) error {
	if !resp.OK() {
		return nil
	}
	return b.store(ctx, b.cacheName, rawURL, resp)
}

func storableHeader(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, k := range []string{"Set-Cookie", "Content-Length", "Content-Encoding", "Transfer-Encoding", "Connection"} {
		out.Del(k)
	}
	return out
}

func fromCached(c *database.CachedResponse) *network.Response {
	return &network.Response{
		URL:        c.URL,
		StatusCode: c.Status,
		Header:     c.Header,
		Body:       c.Body,
	}
}
