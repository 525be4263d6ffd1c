package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/pod-comb/app/cfg"
	"github.com/lysyi3m/pod-comb/app/database"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Run(feed database.Feed, episodes []database.Episode) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", cmp.Or(feed.Title, feed.Name), 4)
	g.writeElement(&buf, "link", feed.Link, 4)
	description := feed.Description
	if description == "" {
		description = fmt.Sprintf("Processed feed from %s", feed.FeedURL)
	}
	g.writeElement(&buf, "description", description, 4)

	var selfLink string
	if cfg.Get().BaseUrl != "" {
		selfLink = fmt.Sprintf("%s/feeds/%s", cfg.Get().BaseUrl, feed.Name)
	} else {
		selfLink = fmt.Sprintf("http://localhost:%s/feeds/%s", cfg.Get().Port, feed.Name)
	}
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := time.Now().In(time.Local)
	if len(episodes) > 0 {
		lastBuildDate = cmp.Or(g.published(episodes[0]), episodes[0].CreatedAt, lastBuildDate)
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Pod-Comb/%s", cfg.Get().Version), 4)
	if feed.Language != "" {
		g.writeElement(&buf, "language", feed.Language, 4)
	}

	if feed.ImageURL != "" {
		buf.WriteString(fmt.Sprintf("    <itunes:image href=\"%s\" />\n", html.EscapeString(feed.ImageURL)))
		buf.WriteString("    <image>\n")
		g.writeElement(&buf, "url", feed.ImageURL, 6)
		g.writeElement(&buf, "title", cmp.Or(feed.Title, feed.Name), 6)
		g.writeElement(&buf, "link", feed.Link, 6)
		buf.WriteString("    </image>\n")
	}

	for _, e := range episodes {
		g.writeEpisode(&buf, e)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeEpisode(buf *bytes.Buffer, e database.Episode) {
	buf.WriteString("    <item>\n")

	guid := cmp.Or(e.GUID, e.Key)
	if guid != "" {
		buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(guid)))
		xml.EscapeText(buf, []byte(guid))
		buf.WriteString("</guid>\n")
	}

	g.writeElement(buf, "title", e.Title, 6)
	g.writeElement(buf, "itunes:subtitle", e.Subtitle, 6)
	g.writeElement(buf, "link", e.Link, 6)
	g.writeElement(buf, "description", cmp.Or(e.Description, e.Subtitle, "No description available"), 6)

	if e.ShowNotes != "" {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(strings.ReplaceAll(e.ShowNotes, "]]>", "]]]]><![CDATA[>"))
		buf.WriteString("]]></content:encoded>\n")
	}

	if published := g.published(e); !published.IsZero() {
		g.writeElement(buf, "pubDate", published.Format(time.RFC1123Z), 6)
	}

	// RSS 2.0 requires url, length and type on an enclosure
	if e.URL != "" {
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"%d\" type=\"%s\" />\n",
			html.EscapeString(e.URL),
			e.MediaLength,
			html.EscapeString(cmp.Or(e.MediaType, "audio/mpeg"))))
	}

	g.writeElement(buf, "itunes:duration", e.Duration, 6)
	if e.Image != "" {
		buf.WriteString(fmt.Sprintf("      <itunes:image href=\"%s\" />\n", html.EscapeString(e.Image)))
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) published(e database.Episode) time.Time {
	if e.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(int64(e.Timestamp), 0).In(time.Local)
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return (len(s) > 7 && s[:7] == "http://") || (len(s) > 8 && s[:8] == "https://")
}
