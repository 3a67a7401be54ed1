package database

import (
	"context"
	"time"
)

type FeedRepositoryInterface interface {
	UpsertFeed(ctx context.Context, feed *Feed) (string, error)
	RegisterFeed(ctx context.Context, url, name string) (*Feed, bool, error)
	GetFeed(ctx context.Context, id string) (*Feed, error)
	GetFeedByURL(ctx context.Context, url string) (*Feed, error)
	ListFeeds(ctx context.Context) ([]Feed, error)
	ListStaleFeeds(ctx context.Context, window time.Duration) ([]Feed, error)
	TouchFeedSyncTime(ctx context.Context, id string) error
	DeleteFeed(ctx context.Context, id string) error
	CountFeeds(ctx context.Context) (int, error)
}

type ArticleRepositoryInterface interface {
	UpsertArticles(ctx context.Context, feedID string, articles []ArticleInput) (BatchResult, error)
	ListArticlesByFeed(ctx context.Context, feedID string) ([]Article, error)
	ListAllArticles(ctx context.Context) ([]Article, error)
	CountArticles(ctx context.Context) (int, error)
}

type ResponseCacheInterface interface {
	CacheNames(ctx context.Context) ([]string, error)
	OpenCache(ctx context.Context, name string) error
	DeleteCache(ctx context.Context, name string) (bool, error)
	Match(ctx context.Context, cacheName, method, url string) (*CachedResponse, error)
	Put(ctx context.Context, resp CachedResponse) error
}

var (
	_ FeedRepositoryInterface    = (*FeedRepository)(nil)
	_ ArticleRepositoryInterface = (*ArticleRepository)(nil)
	_ ResponseCacheInterface     = (*ResponseCacheRepository)(nil)
)

// Store groups the record repositories that share one database handle.
type Store struct {
	*FeedRepository
	*ArticleRepository
}

func NewStore(db *DB) *Store {
	return &Store{
		FeedRepository:    NewFeedRepository(db),
		ArticleRepository: NewArticleRepository(db),
	}
}
