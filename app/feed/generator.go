package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/rss-stash/app/database"
)

// Generator renders stored articles back into an RSS 2.0 document so feed
// readers can consume the local copy while offline.
type Generator struct {
	version string
}

func NewGenerator(version string) *Generator {
	return &Generator{version: cmp.Or(version, "dev")}
}

func (g *Generator) Run(f database.Feed, articles []database.Article, selfLink string) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", cmp.Or(f.Name, f.URL), 4)
	g.writeElement(&buf, "link", f.URL, 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Offline copy of %s", f.URL), 4)

	if selfLink != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(selfLink)))
	}

	lastBuildDate := time.Now().In(time.Local)
	if f.LastUpdated != nil {
		lastBuildDate = *f.LastUpdated
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("RSS-Stash/%s", g.version), 4)

	for _, article := range articles {
		g.writeItem(&buf, article)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, article database.Article) {
	buf.WriteString("    <item>\n")

	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", isHTTPURL(article.Link)))
	xml.EscapeText(buf, []byte(article.Link))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", article.Title, 6)
	g.writeElement(buf, "link", article.Link, 6)
	g.writeElement(buf, "description", cmp.Or(article.Description, "No description available"), 6)

	if article.Content != "" && article.Content != article.Description {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(strings.ReplaceAll(article.Content, "]]>", "]]]]><![CDATA[>"))
		buf.WriteString("]]></content:encoded>\n")
	}

	if article.PubDate != nil {
		g.writeElement(buf, "pubDate", article.PubDate.Format(time.RFC1123Z), 6)
	}

	g.writeElement(buf, "author", article.Author, 6)

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	buf.WriteString(strings.Repeat(" ", indent))
	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
