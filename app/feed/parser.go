package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"

	"github.com/lysyi3m/rss-stash/app/database"
)

type Parser struct {
	gofeedParser *gofeed.Parser
	summarizer   *Summarizer
}

func NewParser(summarizer *Summarizer) *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
		summarizer:   summarizer,
	}
}

// Run parses RSS, Atom or JSON feed bytes into channel metadata and
// articles ready for the store.
func (p *Parser) Run(data []byte) (*Metadata, []database.ArticleInput, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:       clean(feed.Title),
		Link:        strings.TrimSpace(feed.Link),
		Description: clean(feed.Description),
		Language:    feed.Language,
	}

	if feed.Image != nil {
		metadata.ImageURL = feed.Image.URL
	}

	articles := make([]database.ArticleInput, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		articles = append(articles, p.normalizeItem(item))
	}

	return metadata, articles, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) database.ArticleInput {
	article := database.ArticleInput{
		Link:        itemLink(item),
		Title:       clean(item.Title),
		Description: clean(item.Description),
		Content:     norm.NFC.String(item.Content),
		Author:      p.extractAuthor(item),
	}

	switch {
	case item.PublishedParsed != nil:
		article.Date = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		article.Date = *item.UpdatedParsed
	default:
		// Left for the store to parse; an unreadable date fails the item
		article.RawDate = cmp.Or(strings.TrimSpace(item.Published), strings.TrimSpace(item.Updated))
	}

	if article.Description == "" && article.Content != "" && p.summarizer != nil {
		summary, err := p.summarizer.Run([]byte(article.Content))
		if err != nil {
			slog.Debug("Failed to summarize article", "link", article.Link, "error", err)
		} else {
			article.Description = summary
		}
	}

	return article
}

func itemLink(item *gofeed.Item) string {
	link := strings.TrimSpace(item.Link)
	if link == "" && isHTTPURL(item.GUID) {
		link = strings.TrimSpace(item.GUID)
	}
	return norm.NFC.String(link)
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (p *Parser) extractAuthor(item *gofeed.Item) string {
	var authors []string

	if len(item.Authors) > 0 {
		for _, author := range item.Authors {
			if author != nil {
				if s := formatAuthor(author.Name, author.Email); s != "" {
					authors = append(authors, s)
				}
			}
		}
	} else if item.Author != nil {
		if s := formatAuthor(item.Author.Name, item.Author.Email); s != "" {
			authors = append(authors, s)
		}
	}

	return clean(strings.Join(authors, ", "))
}

func formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name != "" && email != "" {
		return fmt.Sprintf("%s (%s)", email, name)
	} else if name != "" {
		return name
	}
	return email
}

func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
