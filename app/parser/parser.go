package parser

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
)

// DefaultMaxFieldSize bounds the bytes kept for a single item field.
const DefaultMaxFieldSize = 1 << 20

// Parser extracts feed items from byte streams that may start and end at
// arbitrary offsets of a larger document. A Parser holds no per-stream
// state and is safe for concurrent use; every Run gets its own machine.
type Parser struct {
	maxFieldSize int
}

func NewParser() *Parser {
	return &Parser{maxFieldSize: DefaultMaxFieldSize}
}

// WithMaxFieldSize returns a copy of p that truncates fields at n bytes.
func (p *Parser) WithMaxFieldSize(n int) *Parser {
	if n <= 0 {
		n = DefaultMaxFieldSize
	}
	return &Parser{maxFieldSize: n}
}

// Run reads r to the end and returns every item whose closing tag was
// seen, with the offset just after the last of them. Malformed tokens
// are skipped; an error is returned only when reading r fails, together
// with whatever was committed before the failure.
func (p *Parser) Run(r io.Reader) (*Result, error) {
	tok := newTokenizer(r)
	m := newMachine(p.maxFieldSize)

	for {
		ev := tok.next()
		if ev.kind == eventError && ev.fatal {
			return m.result(tok.bytesRead()), fmt.Errorf("failed to read stream: %w", ev.err)
		}
		if !m.handle(ev) {
			break
		}
	}

	res := m.result(tok.bytesRead())
	slog.Debug("Stream parsed",
		"items", len(res.Items),
		"committed_end", res.CommittedEnd,
		"stream_end", res.StreamEnd,
		"anomalies", res.Anomalies)

	return res, nil
}

// machine is the tag-stack state machine for one stream.
type machine struct {
	stack        []string
	current      RawItem
	target       fieldKind
	items        []RawItem
	committedEnd int64
	anomalies    int
	maxFieldSize int
}

func newMachine(maxFieldSize int) *machine {
	return &machine{
		stack:        make([]string, 0, 8),
		maxFieldSize: maxFieldSize,
	}
}

func (m *machine) handle(ev event) bool {
	switch ev.kind {
	case eventStartTag:
		m.startTag(ev)
	case eventEndTag:
		m.endTag(ev)
	case eventText:
		m.text(ev.data)
	case eventError:
		m.anomalies++
		slog.Debug("Skipping malformed markup", "offset", ev.pos, "error", ev.err)
	case eventEnd:
		return false
	}
	return true
}

func (m *machine) top() string {
	if len(m.stack) == 0 {
		return ""
	}
	return m.stack[len(m.stack)-1]
}

func (m *machine) startTag(ev event) {
	parent := m.top()
	m.stack = append(m.stack, ev.name)
	m.target = fieldNone

	if ev.name == tagItem {
		m.current = RawItem{}
		return
	}

	if parent != tagItem {
		return
	}

	switch ev.name {
	case tagEnclosure:
		if len(m.current.EnclosureURL) == 0 {
			m.current.EnclosureURL = attrValue(ev.attrs, "url")
			m.current.EnclosureType = attrValue(ev.attrs, "type")
			m.current.EnclosureLength = attrValue(ev.attrs, "length")
		}
	case tagImage:
		m.current.Image = attrValue(ev.attrs, "href")
	default:
		if k := fieldFor(ev.name); k != fieldNone {
			m.target = k
			*m.current.field(k) = nil
		}
	}
}

func (m *machine) endTag(ev event) {
	m.target = fieldNone

	popped, ok := m.pop(ev.name)
	if ok && popped == tagItem && ev.name == tagItem {
		item := m.current.trimmed()
		item.End = ev.pos
		m.items = append(m.items, item)
		m.current = RawItem{}
		m.committedEnd = ev.pos
		return
	}

	// text after a nested element belongs to the field around it again
	if n := len(m.stack); n >= 2 && m.stack[n-2] == tagItem {
		m.target = fieldFor(m.stack[n-1])
	}
}

// pop removes the innermost open tag called name together with anything
// opened after it. End tags with no matching open tag leave the stack
// alone; they are expected whenever a stream starts mid-document.
func (m *machine) pop(name string) (string, bool) {
	for i := len(m.stack) - 1; i >= 0; i-- {
		if m.stack[i] == name {
			m.stack = m.stack[:i]
			return name, true
		}
	}
	return "", false
}

func (m *machine) text(data []byte) {
	if m.target == fieldNone {
		return
	}
	buf := m.current.field(m.target)
	room := m.maxFieldSize - len(*buf)
	if room <= 0 {
		return
	}
	if len(data) > room {
		data = data[:room]
	}
	*buf = append(*buf, data...)
}

func (m *machine) result(streamEnd int64) *Result {
	return &Result{
		Items:        m.items,
		CommittedEnd: m.committedEnd,
		StreamEnd:    streamEnd,
		Anomalies:    m.anomalies,
	}
}

func (it RawItem) trimmed() RawItem {
	return RawItem{
		Title:           bytes.TrimSpace(it.Title),
		Subtitle:        bytes.TrimSpace(it.Subtitle),
		PubDate:         bytes.TrimSpace(it.PubDate),
		EnclosureURL:    bytes.TrimSpace(it.EnclosureURL),
		EnclosureType:   bytes.TrimSpace(it.EnclosureType),
		EnclosureLength: bytes.TrimSpace(it.EnclosureLength),
		GUID:            bytes.TrimSpace(it.GUID),
		Link:            bytes.TrimSpace(it.Link),
		Description:     bytes.TrimSpace(it.Description),
		Summary:         bytes.TrimSpace(it.Summary),
		Duration:        bytes.TrimSpace(it.Duration),
		Image:           bytes.TrimSpace(it.Image),
	}
}
