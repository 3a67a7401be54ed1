package database

import (
	"net/http"
	"time"
)

// Feed is a subscribed feed. LastUpdated is nil until the first successful sync.
type Feed struct {
	ID          string     `db:"id" json:"id"`
	URL         string     `db:"url" json:"url"`
	Name        string     `db:"name" json:"name"`
	LastUpdated *time.Time `db:"last_updated" json:"lastUpdated"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

type Article struct {
	ID          string     `db:"id" json:"id"`
	FeedID      string     `db:"feed_id" json:"feedId"`
	Link        string     `db:"link" json:"link"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Content     string     `db:"content" json:"content"`
	Author      string     `db:"author" json:"author"`
	PubDate     *time.Time `db:"pub_date" json:"pubDate"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// ArticleInput is an article as handed to UpsertArticles. The publication
// date is taken from Date when set, otherwise parsed from RawDate.
type ArticleInput struct {
	Link        string
	Title       string
	Description string
	Content     string
	Author      string
	Date        time.Time
	RawDate     string
}

// BatchResult reports the outcome of a multi-article write. Succeeded is the
// authoritative count; Failed lists the items that were skipped.
type BatchResult struct {
	Succeeded int
	Total     int
	Failed    []BatchFailure
}

type BatchFailure struct {
	Index int
	Link  string
	Err   error
}

// CachedResponse is one stored HTTP response in a named cache.
type CachedResponse struct {
	CacheName string
	Method    string
	URL       string
	Status    int
	Header    http.Header
	Body      []byte
	StoredAt  time.Time
}
