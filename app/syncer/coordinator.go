package syncer

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/rss-stash/app/database"
	"github.com/lysyi3m/rss-stash/app/feed"
	"github.com/lysyi3m/rss-stash/app/freshness"
	"github.com/lysyi3m/rss-stash/app/network"
	"github.com/lysyi3m/rss-stash/app/notify"
)

type Store interface {
	UpsertFeed(ctx context.Context, feed *database.Feed) (string, error)
	RegisterFeed(ctx context.Context, url, name string) (*database.Feed, bool, error)
	ListStaleFeeds(ctx context.Context, window time.Duration) ([]database.Feed, error)
	TouchFeedSyncTime(ctx context.Context, id string) error
	UpsertArticles(ctx context.Context, feedID string, articles []database.ArticleInput) (database.BatchResult, error)
}

// Mirror receives every successful feed fetch so it can be served offline.
type Mirror interface {
	Mirror(ctx context.Context, url string, resp *network.Response) error
}

type Options struct {
	Window      time.Duration
	Concurrency int // 0 means one goroutine per due feed
}

// Report summarizes one SyncDue pass.
type Report struct {
	Due       int       `json:"due"`
	Synced    int       `json:"synced"`
	Failed    int       `json:"failed"`
	Articles  int       `json:"articles"`
	Timestamp time.Time `json:"timestamp"`
}

// Coordinator refreshes stale feeds from the network into the store. It
// keeps no state of its own: every pass re-reads staleness from the store.
type Coordinator struct {
	store       Store
	fetcher     network.Fetcher
	parser      *feed.Parser
	notifier    notify.Broadcaster
	mirror      Mirror
	window      time.Duration
	concurrency int
}

func NewCoordinator(store Store, fetcher network.Fetcher, parser *feed.Parser, notifier notify.Broadcaster, mirror Mirror, opts Options) *Coordinator {
	return &Coordinator{
		store:       store,
		fetcher:     fetcher,
		parser:      parser,
		notifier:    notifier,
		mirror:      mirror,
		window:      cmp.Or(opts.Window, freshness.DefaultWindow),
		concurrency: opts.Concurrency,
	}
}

// SyncDue fetches every stale feed concurrently. A failing feed is logged
// and counted without affecting the others. Once all feeds settle a
// FEEDS_SYNCED event is broadcast exactly once.
func (c *Coordinator) SyncDue(ctx context.Context) (*Report, error) {
	due, err := c.store.ListStaleFeeds(ctx, c.window)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale feeds: %w", err)
	}

	var synced, failed, articles atomic.Int64

	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}

	for _, f := range due {
		g.Go(func() error {
			stored, err := c.SyncFeed(ctx, f)
			if err != nil {
				slog.Warn("Failed to sync feed", "feed_id", f.ID, "url", f.URL, "error", err)
				failed.Add(1)
				return nil
			}
			synced.Add(1)
			articles.Add(int64(stored))
			return nil
		})
	}
	g.Wait()

	report := &Report{
		Due:       len(due),
		Synced:    int(synced.Load()),
		Failed:    int(failed.Load()),
		Articles:  int(articles.Load()),
		Timestamp: time.Now().UTC(),
	}

	delivered := 0
	if c.notifier != nil {
		delivered = c.notifier.Broadcast(notify.FeedsSynced(report.Timestamp))
	}

	slog.Info("Sync completed",
		"due", report.Due,
		"synced", report.Synced,
		"failed", report.Failed,
		"articles", report.Articles,
		"notified", delivered)

	return report, nil
}

// SyncFeed refreshes one feed and returns how many articles were stored.
// The feed is marked synced only when fetch, parse and write all succeed.
func (c *Coordinator) SyncFeed(ctx context.Context, f database.Feed) (int, error) {
	_, articles, err := c.fetchAndParse(ctx, f.URL)
	if err != nil {
		return 0, err
	}

	result, err := c.store.UpsertArticles(ctx, f.ID, articles)
	if err != nil {
		return 0, fmt.Errorf("failed to store articles: %w", err)
	}

	if err := c.store.TouchFeedSyncTime(ctx, f.ID); err != nil {
		return result.Succeeded, fmt.Errorf("failed to mark feed synced: %w", err)
	}

	slog.Debug("Feed synced",
		"feed_id", f.ID,
		"url", f.URL,
		"total", result.Total,
		"stored", result.Succeeded,
		"failed", len(result.Failed))

	return result.Succeeded, nil
}

// Subscribe is the foreground path for a new or refreshed feed: fetch, parse
// and store immediately. When the fetch fails the feed is registered as never
// synced so the next SyncDue picks it up, and the fetch error is returned
// alongside the registered feed.
func (c *Coordinator) Subscribe(ctx context.Context, url, name string) (*database.Feed, int, error) {
	metadata, articles, err := c.fetchAndParse(ctx, url)
	if err != nil {
		registered, _, regErr := c.store.RegisterFeed(ctx, url, name)
		if regErr != nil {
			return nil, 0, fmt.Errorf("failed to register feed after %w: %w", err, regErr)
		}
		return registered, 0, err
	}

	f := &database.Feed{
		URL:  url,
		Name: cmp.Or(name, metadata.Title, url),
	}
	if _, err := c.store.UpsertFeed(ctx, f); err != nil {
		return nil, 0, fmt.Errorf("failed to store feed: %w", err)
	}

	result, err := c.store.UpsertArticles(ctx, f.ID, articles)
	if err != nil {
		return f, 0, fmt.Errorf("failed to store articles: %w", err)
	}

	slog.Info("Feed subscribed", "feed_id", f.ID, "url", f.URL, "articles", result.Succeeded)

	return f, result.Succeeded, nil
}

func (c *Coordinator) fetchAndParse(ctx context.Context, url string) (*feed.Metadata, []database.ArticleInput, error) {
	resp, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	if !resp.OK() {
		return nil, nil, fmt.Errorf("HTTP error %d for %s: %w", resp.StatusCode, url, network.ErrFetchFailed)
	}

	if c.mirror != nil {
		if err := c.mirror.Mirror(ctx, url, resp); err != nil {
			slog.Warn("Failed to mirror feed response", "url", url, "error", err)
		}
	}

	metadata, articles, err := c.parser.Run(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	return metadata, articles, nil
}
