package episode

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"github.com/lysyi3m/pod-comb/app/parser"
)

type Options struct {
	Format DescriptionFormat
	// FallbackImage is used for episodes without their own artwork,
	// usually the channel image.
	FallbackImage string
	// Location is the zone date keys are computed in.
	Location *time.Location
}

type Normalizer struct {
	dates    DateParser
	opts     Options
	strict   *bluemonday.Policy
	ugc      *bluemonday.Policy
	markdown *converter.Converter
}

func NewNormalizer(dates DateParser, opts Options) *Normalizer {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if dates == nil {
		dates = NewDateParser(opts.Location)
	}
	if opts.Format == "" {
		opts.Format = FormatText
	}

	strict := bluemonday.StrictPolicy()
	strict.AddSpaceWhenStrippingTag(true)

	return &Normalizer{
		dates:  dates,
		opts:   opts,
		strict: strict,
		ugc:    bluemonday.UGCPolicy(),
		markdown: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Run normalizes items in order. It never drops an item: fields that
// cannot be interpreted fall back to their defaults.
func (n *Normalizer) Run(items []parser.RawItem) []Episode {
	episodes := make([]Episode, 0, len(items))
	for _, item := range items {
		episodes = append(episodes, n.Normalize(item))
	}
	return episodes
}

func (n *Normalizer) Normalize(item parser.RawItem) Episode {
	e := Episode{
		GUID:      canonical(item.GUID),
		Title:     canonical(item.Title),
		Subtitle:  canonical(item.Subtitle),
		Date:      canonical(item.PubDate),
		URL:       canonical(item.EnclosureURL),
		Image:     cmp.Or(canonical(item.Image), n.opts.FallbackImage),
		Link:      canonical(item.Link),
		Duration:  canonical(item.Duration),
		MediaType: canonical(item.EnclosureType),
		DateKey:   DefaultDateKey,
	}

	raw := cmp.Or(canonical(item.Description), canonical(item.Summary))
	e.Description = n.renderDescription(raw)

	if length := canonical(item.EnclosureLength); length != "" {
		if v, err := strconv.ParseInt(length, 10, 64); err == nil && v > 0 {
			e.MediaLength = v
		}
	}

	if t, err := n.dates.Parse(e.Date); err == nil {
		if unix := t.Unix(); unix > 0 {
			e.Timestamp = uint64(unix)
		}
		e.DateKey = t.In(n.opts.Location).Format(dateKeyLayout)
	} else if e.Date != "" {
		slog.Debug("Unparseable episode date", "title", e.Title, "date", e.Date, "error", err)
	}

	e.Key = episodeKey(e)
	return e
}

func (n *Normalizer) renderDescription(raw string) string {
	if raw == "" {
		return ""
	}

	switch n.opts.Format {
	case FormatHTML:
		return strings.TrimSpace(n.ugc.Sanitize(raw))
	case FormatMarkdown:
		md, err := n.markdown.ConvertString(n.ugc.Sanitize(raw))
		if err == nil {
			return strings.TrimSpace(md)
		}
		slog.Debug("Markdown conversion failed", "error", err)
	}

	return plainText(n.strict.Sanitize(raw))
}

func plainText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

// canonical returns an owned, valid UTF-8, NFC normalized copy of b.
func canonical(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	s := strings.ToValidUTF8(string(b), "�")
	return strings.TrimSpace(norm.NFC.String(s))
}

// episodeKey identifies an episode across windows and refetches.
func episodeKey(e Episode) string {
	identity := cmp.Or(e.GUID, e.URL, e.Title+"|"+e.Date)
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}
