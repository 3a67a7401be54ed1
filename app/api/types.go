package api

import (
	"context"
	"net/http"
	"time"

	"github.com/lysyi3m/rss-stash/app/bridge"
	"github.com/lysyi3m/rss-stash/app/database"
	"github.com/lysyi3m/rss-stash/app/feed"
	"github.com/lysyi3m/rss-stash/app/notify"
	"github.com/lysyi3m/rss-stash/app/syncer"
	"github.com/lysyi3m/rss-stash/app/tasks"
)

type FeedStore interface {
	GetFeed(ctx context.Context, id string) (*database.Feed, error)
	ListFeeds(ctx context.Context) ([]database.Feed, error)
	DeleteFeed(ctx context.Context, id string) error
	CountFeeds(ctx context.Context) (int, error)
	ListArticlesByFeed(ctx context.Context, feedID string) ([]database.Article, error)
	ListAllArticles(ctx context.Context) ([]database.Article, error)
	CountArticles(ctx context.Context) (int, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context, url, name string) (*database.Feed, int, error)
}

type CacheBridge interface {
	Serve(ctx context.Context, req *http.Request) (*bridge.Result, error)
	Snapshot(ctx context.Context) ([]byte, error)
}

type EventSource interface {
	Subscribe() (<-chan notify.Event, func())
}

var (
	_ FeedStore   = (*database.Store)(nil)
	_ Subscriber  = (*syncer.Coordinator)(nil)
	_ CacheBridge = (*bridge.Bridge)(nil)
	_ EventSource = (*notify.Hub)(nil)
)

type Handler struct {
	store      FeedStore
	subscriber Subscriber
	bridge     CacheBridge
	scheduler  tasks.TaskSchedulerInterface
	events     EventSource
	generator  *feed.Generator
	window     time.Duration
	version    string
}

// FeedView is a feed with its derived sync state
type FeedView struct {
	database.Feed
	Stale bool `json:"stale"`
}

type subscribeRequest struct {
	URL  string `json:"url" binding:"required"`
	Name string `json:"name"`
}

type syncRequest struct {
	Tag string `json:"tag" binding:"required"`
}
