package parser

import (
	"bufio"
	"encoding/xml"
	"io"
)

// countingReader tracks the absolute number of bytes handed out to the
// decoder. The decoder only reads through ReadByte when the source is an
// io.ByteReader, so n is always the raw position in the stream.
type countingReader struct {
	r   *bufio.Reader
	n   int64
	err error
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	c.record(err)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err != nil {
		c.record(err)
		return b, err
	}
	c.n++
	return b, nil
}

func (c *countingReader) UnreadByte() error {
	if err := c.r.UnreadByte(); err != nil {
		return err
	}
	c.n--
	return nil
}

func (c *countingReader) record(err error) {
	if err != nil && err != io.EOF && c.err == nil {
		c.err = err
	}
}

// tokenizer turns a byte stream into parse events. It never requires a
// document root: the decoder runs in raw, non-strict mode and, after a
// syntax error, a fresh decoder is started at the next '<' so a stream
// that begins mid-document locks onto the first well-formed markup.
type tokenizer struct {
	src  *countingReader
	dec  *xml.Decoder
	base int64
}

func newTokenizer(r io.Reader) *tokenizer {
	src := &countingReader{r: bufio.NewReaderSize(r, 32*1024)}
	return &tokenizer{src: src, dec: newDecoder(src)}
}

func newDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	// Declared encodings are passed through untouched so offsets stay raw.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return dec
}

func (t *tokenizer) offset() int64 {
	return t.base + t.dec.InputOffset()
}

func (t *tokenizer) bytesRead() int64 {
	return t.src.n
}

func (t *tokenizer) next() event {
	for {
		tok, err := t.dec.RawToken()
		if err == io.EOF {
			return event{kind: eventEnd, pos: t.src.n}
		}
		if err != nil {
			if t.src.err != nil {
				return event{kind: eventError, err: t.src.err, fatal: true, pos: t.offset()}
			}
			ev := event{kind: eventError, err: err, pos: t.offset()}
			t.resync()
			return ev
		}

		switch tok := tok.(type) {
		case xml.StartElement:
			return event{kind: eventStartTag, name: qualifiedName(tok.Name), attrs: tok.Attr, pos: t.offset()}
		case xml.EndElement:
			return event{kind: eventEndTag, name: qualifiedName(tok.Name), pos: t.offset()}
		case xml.CharData:
			return event{kind: eventText, data: tok, pos: t.offset()}
		}
		// comments, processing instructions and directives carry nothing
	}
}

// resync abandons the failed decoder and restarts at the next '<' after
// the point of failure. At least one byte is always skipped.
func (t *tokenizer) resync() {
	pos := t.offset()
	if t.src.n > pos {
		// the decoder read one byte ahead and kept it for itself
		_ = t.src.UnreadByte()
	}

	skipped := t.src.n > t.base
	for {
		b, err := t.src.ReadByte()
		if err != nil {
			break
		}
		if b == '<' && skipped {
			_ = t.src.UnreadByte()
			break
		}
		skipped = true
	}

	t.base = t.src.n
	t.dec = newDecoder(t.src)
}
