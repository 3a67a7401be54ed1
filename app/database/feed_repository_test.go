package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUpsertFeedSameURLKeepsOneRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewFeedRepository(newTestDB(t))

	first, err := repo.UpsertFeed(ctx, &Feed{URL: "https://example.com/feed.xml", Name: "First"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	second, err := repo.UpsertFeed(ctx, &Feed{URL: "https://example.com/feed.xml", Name: "Second"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if first != second {
		t.Errorf("Expected same id for same url, got: %s and %s", first, second)
	}

	feeds, err := repo.ListFeeds(ctx)
	if err != nil {
		t.Fatalf("Failed to list feeds: %v", err)
	}
	if len(feeds) != 1 {
		t.Fatalf("Expected 1 feed, got: %d", len(feeds))
	}
	if feeds[0].Name != "Second" {
		t.Errorf("Expected name to be overwritten, got: %s", feeds[0].Name)
	}
	if feeds[0].LastUpdated == nil {
		t.Error("Expected LastUpdated to be stamped")
	}
}

func TestUpsertFeedConstraintViolation(t *testing.T) {
	ctx := context.Background()
	repo := NewFeedRepository(newTestDB(t))

	if _, err := repo.UpsertFeed(ctx, &Feed{URL: "https://example.com/a.xml"}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	_, err := repo.UpsertFeed(ctx, &Feed{ID: "someone-else", URL: "https://example.com/a.xml"})
	if !errors.Is(err, ErrConstraintViolation) {
		t.Errorf("Expected ErrConstraintViolation, got: %v", err)
	}
}

func TestUpsertFeedRequiresURL(t *testing.T) {
	repo := NewFeedRepository(newTestDB(t))

	_, err := repo.UpsertFeed(context.Background(), &Feed{URL: "   "})
	if !errors.Is(err, ErrInvalidFeed) {
		t.Errorf("Expected ErrInvalidFeed, got: %v", err)
	}
}

func TestRegisterFeedDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	repo := NewFeedRepository(newTestDB(t))

	feed, created, err := repo.RegisterFeed(ctx, "https://example.com/rss", "Example")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !created {
		t.Error("Expected feed to be created")
	}
	if feed.LastUpdated != nil {
		t.Error("Expected registered feed to be never synced")
	}

	again, created, err := repo.RegisterFeed(ctx, "https://example.com/rss", "Renamed")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if created {
		t.Error("Expected existing feed to be returned")
	}
	if again.ID != feed.ID || again.Name != "Example" {
		t.Errorf("Expected original feed, got: %+v", again)
	}
}

func TestGetFeedNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewFeedRepository(newTestDB(t))

	if _, err := repo.GetFeed(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
	if _, err := repo.GetFeedByURL(ctx, "https://missing.example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestTouchFeedSyncTime(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewFeedRepository(db)

	if err := repo.TouchFeedSyncTime(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}

	feed, _, err := repo.RegisterFeed(ctx, "https://example.com/feed", "")
	if err != nil {
		t.Fatalf("Failed to register feed: %v", err)
	}

	before := time.Now().Add(-time.Second)
	if err := repo.TouchFeedSyncTime(ctx, feed.ID); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got, err := repo.GetFeed(ctx, feed.ID)
	if err != nil {
		t.Fatalf("Failed to get feed: %v", err)
	}
	if got.LastUpdated == nil || got.LastUpdated.Before(before) {
		t.Errorf("Expected LastUpdated to be now, got: %v", got.LastUpdated)
	}
}

func TestListStaleFeeds(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewFeedRepository(db)

	never, _, err := repo.RegisterFeed(ctx, "https://example.com/never", "never")
	if err != nil {
		t.Fatalf("Failed to register feed: %v", err)
	}
	oldID, err := repo.UpsertFeed(ctx, &Feed{URL: "https://example.com/old", Name: "old"})
	if err != nil {
		t.Fatalf("Failed to upsert feed: %v", err)
	}
	if _, err := repo.UpsertFeed(ctx, &Feed{URL: "https://example.com/fresh", Name: "fresh"}); err != nil {
		t.Fatalf("Failed to upsert feed: %v", err)
	}

	twoHoursAgo := time.Now().Add(-2 * time.Hour).UTC()
	if _, err := db.Exec(`UPDATE feeds SET last_updated = ? WHERE id = ?`, twoHoursAgo, oldID); err != nil {
		t.Fatalf("Failed to age feed: %v", err)
	}

	stale, err := repo.ListStaleFeeds(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("Expected 2 stale feeds, got: %d", len(stale))
	}
	if stale[0].ID != never.ID || stale[1].ID != oldID {
		t.Errorf("Expected never-synced and aged feeds, got: %+v", stale)
	}

	if err := repo.TouchFeedSyncTime(ctx, oldID); err != nil {
		t.Fatalf("Failed to touch feed: %v", err)
	}
	stale, err = repo.ListStaleFeeds(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != never.ID {
		t.Errorf("Expected only never-synced feed after touch, got: %+v", stale)
	}
}

func TestDeleteFeedCascades(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newTestDB(t))

	keepID, err := store.UpsertFeed(ctx, &Feed{URL: "https://example.com/keep"})
	if err != nil {
		t.Fatalf("Failed to upsert feed: %v", err)
	}

	tests := []struct {
		name     string
		articles int
	}{
		{"no articles", 0},
		{"one article", 1},
		{"many articles", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := store.UpsertFeed(ctx, &Feed{URL: "https://example.com/" + tt.name})
			if err != nil {
				t.Fatalf("Failed to upsert feed: %v", err)
			}

			inputs := make([]ArticleInput, tt.articles)
			for i := range inputs {
				inputs[i] = ArticleInput{Link: "https://example.com/" + tt.name + "/" + string(rune('a'+i))}
			}
			if _, err := store.UpsertArticles(ctx, id, inputs); err != nil {
				t.Fatalf("Failed to upsert articles: %v", err)
			}
			if _, err := store.UpsertArticles(ctx, keepID, []ArticleInput{{Link: "https://example.com/keep/" + tt.name}}); err != nil {
				t.Fatalf("Failed to upsert articles: %v", err)
			}

			if err := store.DeleteFeed(ctx, id); err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}

			if _, err := store.GetFeed(ctx, id); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected feed to be gone, got: %v", err)
			}
			left, err := store.ListArticlesByFeed(ctx, id)
			if err != nil {
				t.Fatalf("Failed to list articles: %v", err)
			}
			if len(left) != 0 {
				t.Errorf("Expected no articles for deleted feed, got: %d", len(left))
			}
		})
	}

	kept, err := store.ListArticlesByFeed(ctx, keepID)
	if err != nil {
		t.Fatalf("Failed to list articles: %v", err)
	}
	if len(kept) != len(tests) {
		t.Errorf("Expected other feed's articles to survive, got: %d", len(kept))
	}

	if err := store.DeleteFeed(ctx, "missing"); err != nil {
		t.Errorf("Expected deleting a missing feed to be a no-op, got: %v", err)
	}
}
