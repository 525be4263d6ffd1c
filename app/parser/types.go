package parser

import "strings"

// RawItem is one feed entry exactly as it appeared in the stream.
// Every field holds the unescaped bytes of the matching element or
// attribute and is empty when the item did not carry it.
type RawItem struct {
	Title        []byte
	Subtitle     []byte
	PubDate      []byte
	EnclosureURL []byte

	EnclosureType   []byte
	EnclosureLength []byte
	GUID            []byte
	Link            []byte
	Description     []byte
	Summary         []byte
	Duration        []byte
	Image           []byte

	// End is the offset just after the item's closing tag. The parser
	// sets it relative to the stream; window.Controller rebases it onto
	// the document.
	End int64
}

// Result is the outcome of parsing one byte stream.
type Result struct {
	Items []RawItem

	// CommittedEnd is the offset, relative to the start of the stream,
	// immediately after the last </item> that closed a complete item.
	// It is the only safe resume point.
	CommittedEnd int64

	// StreamEnd is the number of bytes read from the stream.
	StreamEnd int64

	// Anomalies counts malformed tokens that were skipped.
	Anomalies int
}

type fieldKind int

const (
	fieldNone fieldKind = iota
	fieldTitle
	fieldSubtitle
	fieldPubDate
	fieldGUID
	fieldLink
	fieldDescription
	fieldSummary
	fieldDuration
)

var fieldTags = map[string]fieldKind{
	"title":           fieldTitle,
	"pubDate":         fieldPubDate,
	"guid":            fieldGUID,
	"link":            fieldLink,
	"description":     fieldDescription,
	"itunes:summary":  fieldSummary,
	"itunes:duration": fieldDuration,
}

const (
	tagItem      = "item"
	tagEnclosure = "enclosure"
	tagImage     = "itunes:image"
)

// fieldFor maps a qualified tag name to the field it fills. Any
// namespaced "subtitle" element counts as the subtitle.
func fieldFor(name string) fieldKind {
	if k, ok := fieldTags[name]; ok {
		return k
	}
	if i := strings.IndexByte(name, ':'); i > 0 && name[i+1:] == "subtitle" {
		return fieldSubtitle
	}
	return fieldNone
}

func (it *RawItem) field(k fieldKind) *[]byte {
	switch k {
	case fieldTitle:
		return &it.Title
	case fieldSubtitle:
		return &it.Subtitle
	case fieldPubDate:
		return &it.PubDate
	case fieldGUID:
		return &it.GUID
	case fieldLink:
		return &it.Link
	case fieldDescription:
		return &it.Description
	case fieldSummary:
		return &it.Summary
	case fieldDuration:
		return &it.Duration
	default:
		return nil
	}
}
