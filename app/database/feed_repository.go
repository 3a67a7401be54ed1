package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/rss-stash/app/freshness"
)

const feedColumns = `id, url, name, last_updated, created_at`

// FeedRepository handles database operations for feeds
type FeedRepository struct {
	db *DB
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(db *DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// UpsertFeed writes feed keyed by its URL and stamps LastUpdated with the
// current time. An empty ID adopts the id already owning the URL, so the same
// URL never produces two rows. An explicit ID that clashes with another
// feed's URL fails with ErrConstraintViolation.
func (r *FeedRepository) UpsertFeed(ctx context.Context, feed *Feed) (string, error) {
	feed.URL = strings.TrimSpace(feed.URL)
	if feed.URL == "" {
		return "", fmt.Errorf("failed to upsert feed: url is required: %w", ErrInvalidFeed)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin feed upsert: %w", err)
	}
	defer tx.Rollback()

	var ownerID string
	err = tx.GetContext(ctx, &ownerID, `SELECT id FROM feeds WHERE url = ?`, feed.URL)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if feed.ID == "" {
			feed.ID = uuid.NewString()
		}
	case err != nil:
		return "", fmt.Errorf("failed to check existing feed: %w", err)
	case feed.ID == "":
		feed.ID = ownerID
	case feed.ID != ownerID:
		return "", fmt.Errorf("url %s belongs to feed %s: %w", feed.URL, ownerID, ErrConstraintViolation)
	}

	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO feeds (id, url, name, last_updated, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			url = excluded.url,
			name = excluded.name,
			last_updated = excluded.last_updated
	`, feed.ID, feed.URL, feed.Name, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to upsert feed: %w", err)
	}

	if err := tx.GetContext(ctx, &feed.CreatedAt, `SELECT created_at FROM feeds WHERE id = ?`, feed.ID); err != nil {
		return "", fmt.Errorf("failed to read feed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit feed upsert: %w", err)
	}

	feed.LastUpdated = &now

	return feed.ID, nil
}

// RegisterFeed inserts a never-synced feed for url unless one exists. It
// returns the stored feed and whether it was created.
func (r *FeedRepository) RegisterFeed(ctx context.Context, url, name string) (*Feed, bool, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, false, fmt.Errorf("failed to register feed: url is required: %w", ErrInvalidFeed)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin feed registration: %w", err)
	}
	defer tx.Rollback()

	var existing Feed
	err = tx.GetContext(ctx, &existing, `SELECT `+feedColumns+` FROM feeds WHERE url = ?`, url)
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to check existing feed: %w", err)
	}

	feed := &Feed{
		ID:        uuid.NewString(),
		URL:       url,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO feeds (id, url, name, last_updated, created_at)
		VALUES (?, ?, ?, NULL, ?)
	`, feed.ID, feed.URL, feed.Name, feed.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to register feed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit feed registration: %w", err)
	}

	return feed, true, nil
}

// GetFeed retrieves a feed by its id
func (r *FeedRepository) GetFeed(ctx context.Context, id string) (*Feed, error) {
	var feed Feed
	err := r.db.GetContext(ctx, &feed, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feed %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return &feed, nil
}

// GetFeedByURL retrieves a feed by its URL
func (r *FeedRepository) GetFeedByURL(ctx context.Context, url string) (*Feed, error) {
	var feed Feed
	err := r.db.GetContext(ctx, &feed, `SELECT `+feedColumns+` FROM feeds WHERE url = ?`, strings.TrimSpace(url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feed with url %s: %w", url, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed by URL: %w", err)
	}
	return &feed, nil
}

// ListFeeds returns all feeds in insertion order
func (r *FeedRepository) ListFeeds(ctx context.Context) ([]Feed, error) {
	feeds := []Feed{}
	err := r.db.SelectContext(ctx, &feeds, `SELECT `+feedColumns+` FROM feeds ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	return feeds, nil
}

// ListStaleFeeds returns feeds never synced or last synced at least window ago
func (r *FeedRepository) ListStaleFeeds(ctx context.Context, window time.Duration) ([]Feed, error) {
	feeds, err := r.ListFeeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stale feeds: %w", err)
	}

	now := time.Now()
	stale := make([]Feed, 0, len(feeds))
	for _, feed := range feeds {
		if freshness.IsStaleAt(feed.LastUpdated, window, now) {
			stale = append(stale, feed)
		}
	}

	return stale, nil
}

// TouchFeedSyncTime sets LastUpdated of an existing feed to now
func (r *FeedRepository) TouchFeedSyncTime(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin feed touch: %w", err)
	}
	defer tx.Rollback()

	var feed Feed
	err = tx.GetContext(ctx, &feed, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("feed %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load feed: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE feeds SET last_updated = ? WHERE id = ?`, time.Now().UTC(), feed.ID)
	if err != nil {
		return fmt.Errorf("failed to update feed sync time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit feed touch: %w", err)
	}

	return nil
}

// DeleteFeed removes a feed and all of its articles in one transaction.
// Deleting an unknown feed is a no-op.
func (r *FeedRepository) DeleteFeed(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin feed delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE feed_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete feed articles: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit feed delete: %w", err)
	}

	return nil
}

// CountFeeds returns the total number of feeds
func (r *FeedRepository) CountFeeds(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM feeds`); err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}
