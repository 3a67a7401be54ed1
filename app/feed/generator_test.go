package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/rss-stash/app/database"
)

func TestGenerateRSS(t *testing.T) {
	generator := NewGenerator("1.2.3")

	synced := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)
	f := database.Feed{
		ID:          "feed-uuid",
		URL:         "https://example.com/feed.xml",
		Name:        "Example",
		LastUpdated: &synced,
	}

	published := time.Date(2023, 7, 3, 10, 0, 0, 0, time.UTC)
	articles := []database.Article{
		{
			ID:          "article-1",
			FeedID:      "feed-uuid",
			Link:        "https://example.com/item1",
			Title:       "Test Item 1",
			Description: "Test Item 1 Description",
			Content:     "Test Item 1 Content",
			Author:      "test@example.com (Test Author)",
			PubDate:     &published,
		},
		{
			ID:     "article-2",
			FeedID: "feed-uuid",
			Link:   "https://example.com/item2",
			Title:  "Test Item 2",
		},
	}

	rss, err := generator.Run(f, articles, "http://localhost:8080/api/feeds/feed-uuid/rss")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<rss version="2.0"`,
		`xmlns:content="http://purl.org/rss/1.0/modules/content/"`,
		"<title>Example</title>",
		"<link>https://example.com/feed.xml</link>",
		"<description>Offline copy of https://example.com/feed.xml</description>",
		`<atom:link href="http://localhost:8080/api/feeds/feed-uuid/rss" rel="self" type="application/rss+xml" />`,
		"<lastBuildDate>Sat, 01 Jul 2023 12:00:00 +0000</lastBuildDate>",
		"<generator>RSS-Stash/1.2.3</generator>",
		`<guid isPermaLink="true">https://example.com/item1</guid>`,
		"<title>Test Item 1</title>",
		"<description>Test Item 1 Description</description>",
		"<content:encoded><![CDATA[Test Item 1 Content]]></content:encoded>",
		"<pubDate>Mon, 03 Jul 2023 10:00:00 +0000</pubDate>",
		"<author>test@example.com (Test Author)</author>",
		"<title>Test Item 2</title>",
		"<description>No description available</description>",
		"</channel>\n</rss>",
	}
	for _, want := range expected {
		if !strings.Contains(rss, want) {
			t.Errorf("Expected RSS to contain %q", want)
		}
	}

	if strings.Count(rss, "<item>") != 2 {
		t.Errorf("Expected 2 items, got: %d", strings.Count(rss, "<item>"))
	}
	if strings.Count(rss, "<pubDate>") != 1 {
		t.Error("Expected pubDate to be omitted for undated article")
	}
}

func TestGenerateEscapesContent(t *testing.T) {
	generator := NewGenerator("")

	f := database.Feed{URL: "https://example.com/feed.xml"}
	articles := []database.Article{
		{
			Link:    "https://example.com/a?x=1&y=2",
			Title:   "Fish & <Chips>",
			Content: "before ]]> after",
		},
	}

	rss, err := generator.Run(f, articles, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.Contains(rss, "<title>Fish &amp; &lt;Chips&gt;</title>") {
		t.Error("Expected title to be escaped")
	}
	if !strings.Contains(rss, "<link>https://example.com/a?x=1&amp;y=2</link>") {
		t.Error("Expected link to be escaped")
	}
	if strings.Contains(rss, "before ]]> after") {
		t.Error("Expected CDATA terminator in content to be split")
	}
	if strings.Contains(rss, "atom:link href") {
		t.Error("Expected no self link when none is given")
	}
	if !strings.Contains(rss, "<title>https://example.com/feed.xml</title>") {
		t.Error("Expected feed url as title when name is empty")
	}
	if !strings.Contains(rss, "<generator>RSS-Stash/dev</generator>") {
		t.Error("Expected default generator version")
	}
}
