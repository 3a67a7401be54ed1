package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/lysyi3m/rss-stash/app/network"
)

// Install precaches the app-shell assets into the current generation. Like
// a cache addAll, nothing is stored unless every asset fetches with 200.
func (b *Bridge) Install(ctx context.Context, assets []string) error {
	type fetched struct {
		key  string
		resp *network.Response
	}

	all := make([]fetched, 0, len(assets))
	for _, asset := range assets {
		ref, err := url.Parse(asset)
		if err != nil {
			return fmt.Errorf("failed to parse asset %q: %w", asset, err)
		}
		target := b.Resolve(ref)

		resp, err := b.fetcher.Fetch(ctx, target.String())
		if err != nil {
			return fmt.Errorf("failed to fetch asset %s: %w", target, err)
		}
		if !resp.OK() {
			return fmt.Errorf("failed to fetch asset %s: HTTP %d", target, resp.StatusCode)
		}
		all = append(all, fetched{key: target.String(), resp: resp})
	}

	if err := b.cache.OpenCache(ctx, b.cacheName); err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}

	for _, f := range all {
		if err := b.store(ctx, b.cacheName, f.key, f.resp); err != nil {
			return fmt.Errorf("failed to cache asset %s: %w", f.key, err)
		}
	}

	slog.Info("App shell cached", "cache", b.cacheName, "assets", len(all))

	return nil
}

// Upgrade precaches assets and activates the current generation the first
// time it is seen. An existing generation is left untouched. A failed
// precache is logged and activation still proceeds. It returns the names of
// the caches it removed.
func (b *Bridge) Upgrade(ctx context.Context, assets []string) ([]string, error) {
	names, err := b.cache.CacheNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}
	if slices.Contains(names, b.cacheName) {
		slog.Debug("Cache generation already active", "cache", b.cacheName)
		return nil, nil
	}

	if len(assets) > 0 {
		if err := b.Install(ctx, assets); err != nil {
			slog.Warn("Failed to precache app shell", "cache", b.cacheName, "error", err)
		}
	}

	return b.Activate(ctx)
}

// Activate makes the current generation the only cache: it is opened if
// needed and every other cache is deleted. It returns the removed names.
func (b *Bridge) Activate(ctx context.Context) ([]string, error) {
	if err := b.cache.OpenCache(ctx, b.cacheName); err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	names, err := b.cache.CacheNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}

	deleted := []string{}
	for _, name := range names {
		if name == b.cacheName {
			continue
		}
		if _, err := b.cache.DeleteCache(ctx, name); err != nil {
			return deleted, fmt.Errorf("failed to delete cache %s: %w", name, err)
		}
		deleted = append(deleted, name)
	}

	if len(deleted) > 0 {
		slog.Info("Old caches removed", "current", b.cacheName, "deleted", deleted)
	}

	return deleted, nil
}

// PutSnapshot replaces the feeds snapshot pushed by a foreground client
func (b *Bridge) PutSnapshot(ctx context.Context, feeds any) error {
	data, err := json.Marshal(feeds)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	resp := &network.Response{
		URL:        SnapshotKey,
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       data,
	}
	if err := b.store(ctx, b.snapshotCache, SnapshotKey, resp); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	slog.Debug("Feeds snapshot cached", "bytes", len(data))

	return nil
}

// Snapshot returns the last pushed feeds snapshot as JSON, or
// database.ErrCacheMiss when none was pushed.
func (b *Bridge) Snapshot(ctx context.Context) ([]byte, error) {
	cached, err := b.cache.Match(ctx, b.snapshotCache, http.MethodGet, SnapshotKey)
	if err != nil {
		return nil, err
	}
	return cached.Body, nil
}
