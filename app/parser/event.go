package parser

import "encoding/xml"

type eventKind int

// CDATA sections arrive from the decoder as ordinary character data and
// are reported as eventText; item fields treat both the same way.
const (
	eventStartTag eventKind = iota
	eventEndTag
	eventText
	eventEnd
	eventError
)

// event is a single parse event. Only the fields relevant to kind are set.
// pos is the stream offset right after the token that produced the event.
type event struct {
	kind  eventKind
	name  string
	attrs []xml.Attr
	data  []byte
	err   error
	fatal bool
	pos   int64
}

func qualifiedName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func attrValue(attrs []xml.Attr, name string) []byte {
	for _, a := range attrs {
		if a.Name.Space == "" && a.Name.Local == name {
			return []byte(a.Value)
		}
	}
	return nil
}
