package parser

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
)

func loadSample(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/samplerss.xml")
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// itemEnds returns the offset just after every </item> in doc.
func itemEnds(doc []byte) []int64 {
	var ends []int64
	closing := []byte("</item>")
	from := 0
	for {
		i := bytes.Index(doc[from:], closing)
		if i < 0 {
			return ends
		}
		from += i + len(closing)
		ends = append(ends, int64(from))
	}
}

func titles(items []RawItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = string(it.Title)
	}
	return out
}

func TestRunSampleDocument(t *testing.T) {
	doc := loadSample(t)
	if len(doc) != 5114 {
		t.Fatalf("Expected sample of 5114 bytes, got %d", len(doc))
	}

	res, err := NewParser().Run(bytes.NewReader(doc))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(res.Items) != 6 {
		t.Fatalf("Expected 6 items, got %d", len(res.Items))
	}

	for i, item := range res.Items {
		if len(item.Title) != 17 {
			t.Errorf("Item %d: expected title of 17 bytes, got %q", i, item.Title)
		}
		if len(item.PubDate) != 30 {
			t.Errorf("Item %d: expected pubDate of 30 bytes, got %q", i, item.PubDate)
		}
		if len(item.EnclosureURL) != 16 {
			t.Errorf("Item %d: expected enclosure url of 16 bytes, got %q", i, item.EnclosureURL)
		}
	}

	end := res.CommittedEnd
	if got := string(doc[end-7 : end]); got != "</item>" {
		t.Errorf("Expected committed end to follow </item>, got %q", got)
	}
	ends := itemEnds(doc)
	if end != ends[len(ends)-1] {
		t.Errorf("Expected committed end %d, got %d", ends[len(ends)-1], end)
	}
	for i, item := range res.Items {
		if item.End != ends[i] {
			t.Errorf("Item %d: expected end %d, got %d", i, ends[i], item.End)
		}
	}
	if res.StreamEnd != int64(len(doc)) {
		t.Errorf("Expected stream end %d, got %d", len(doc), res.StreamEnd)
	}
}

func TestRunSampleFields(t *testing.T) {
	res, err := NewParser().Run(bytes.NewReader(loadSample(t)))
	if err != nil {
		t.Fatal(err)
	}

	first := res.Items[0]
	tests := []struct {
		name     string
		got      []byte
		expected string
	}{
		{"title", first.Title, "Episode Number 01"},
		{"subtitle", first.Subtitle, "第1期 & friends"},
		{"pubDate", first.PubDate, "Sun, 5 Apr 2020 20:00:00 +0800"},
		{"enclosure url", first.EnclosureURL, "http://cdn.fm/e1"},
		{"enclosure type", first.EnclosureType, "audio/mpeg"},
		{"enclosure length", first.EnclosureLength, "1000001"},
		{"guid", first.GUID, "night-radio-1"},
		{"link", first.Link, "http://cdn.fm/show/1"},
		{"duration", first.Duration, "00:41:00"},
		{"description", first.Description, "<p>Show notes for episode 1. 今晚我们聊聊城市与夜晚。</p><p>Guests &amp; music.</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.got) != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, tt.got)
			}
		})
	}
}

func TestRunChannelFieldsIgnored(t *testing.T) {
	doc := []byte(`<rss><channel><title>Show</title><link>http://x</link></channel></rss>`)

	res, err := NewParser().Run(bytes.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 0 {
		t.Errorf("Expected no items, got %d", len(res.Items))
	}
	if res.CommittedEnd != 0 {
		t.Errorf("Expected committed end 0, got %d", res.CommittedEnd)
	}
}

func TestRunNoPartialEmission(t *testing.T) {
	doc := loadSample(t)
	ends := itemEnds(doc)

	// cut inside the fourth item, just before its closing tag
	cut := ends[3] - 3
	res, err := NewParser().Run(bytes.NewReader(doc[:cut]))
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(res.Items))
	}
	if res.CommittedEnd != ends[2] {
		t.Errorf("Expected committed end %d, got %d", ends[2], res.CommittedEnd)
	}
	if string(res.Items[2].Title) != "Episode Number 03" {
		t.Errorf("Expected last item to be episode 3, got %q", res.Items[2].Title)
	}
}

func TestRunTolerantRestart(t *testing.T) {
	buf := []byte(`ng running talk show.</description>
    <itunes:image href="http://cdn.fm/cover.jpg"/>
    <image><url>http://cdn.fm/cover.jpg</url></image>
    <item><title>Only One</title><pubDate>Sun, 5 Apr 2020 20:00:00 +0800</pubDate></item>
  </channel>
</rss>`)
	expectedEnd := int64(bytes.Index(buf, []byte("</item>")) + len("</item>"))

	res, err := NewParser().Run(bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(res.Items))
	}
	if string(res.Items[0].Title) != "Only One" {
		t.Errorf("Expected title 'Only One', got %q", res.Items[0].Title)
	}
	if res.CommittedEnd != expectedEnd {
		t.Errorf("Expected committed end %d, got %d", expectedEnd, res.CommittedEnd)
	}
}

func TestRunStartInsideItem(t *testing.T) {
	doc := loadSample(t)
	ends := itemEnds(doc)

	// start in the middle of the second item's description
	start := bytes.Index(doc, []byte("Show notes for episode 2")) + 5
	res, err := NewParser().Run(bytes.NewReader(doc[start:]))
	if err != nil {
		t.Fatal(err)
	}

	expected := []string{"Episode Number 03", "Episode Number 04", "Episode Number 05", "Episode Number 06"}
	got := titles(res.Items)
	if len(got) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Item %d: expected %q, got %q", i, expected[i], got[i])
		}
	}
	if res.CommittedEnd != ends[5]-int64(start) {
		t.Errorf("Expected committed end %d, got %d", ends[5]-int64(start), res.CommittedEnd)
	}
}

func TestRunResumeFromCommittedEnd(t *testing.T) {
	doc := loadSample(t)
	all, err := NewParser().Run(bytes.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	expected := titles(all.Items)

	for cut := 64; cut < len(doc); cut += 97 {
		first, err := NewParser().Run(bytes.NewReader(doc[:cut]))
		if err != nil {
			t.Fatal(err)
		}
		second, err := NewParser().Run(bytes.NewReader(doc[first.CommittedEnd:]))
		if err != nil {
			t.Fatal(err)
		}

		got := append(titles(first.Items), titles(second.Items)...)
		if len(got) != len(expected) {
			t.Fatalf("Cut at %d: expected %d items, got %d (%v)", cut, len(expected), len(got), got)
		}
		for i := range expected {
			if got[i] != expected[i] {
				t.Errorf("Cut at %d, item %d: expected %q, got %q", cut, i, expected[i], got[i])
			}
		}
	}
}

func TestRunSkipsMalformedTokens(t *testing.T) {
	doc := []byte(`<item><title>A</title></item><<bad <item><title>B</title></item>`)

	res, err := NewParser().Run(bytes.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}

	got := titles(res.Items)
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("Expected [A B], got %v", got)
	}
	if res.Anomalies == 0 {
		t.Error("Expected anomalies to be counted")
	}
	if res.CommittedEnd != int64(len(doc)) {
		t.Errorf("Expected committed end %d, got %d", len(doc), res.CommittedEnd)
	}
}

func TestRunInvalidUTF8DropsOnlyTheField(t *testing.T) {
	doc := []byte("<item><title>\xff\xfe</title><guid>g1</guid></item><item><title>ok</title></item>")

	res, err := NewParser().Run(bytes.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(res.Items))
	}
	if len(res.Items[0].Title) != 0 {
		t.Errorf("Expected empty title for malformed text, got %q", res.Items[0].Title)
	}
	if string(res.Items[0].GUID) != "g1" {
		t.Errorf("Expected guid g1, got %q", res.Items[0].GUID)
	}
	if string(res.Items[1].Title) != "ok" {
		t.Errorf("Expected title ok, got %q", res.Items[1].Title)
	}
}

func TestRunStrayEndTags(t *testing.T) {
	doc := []byte(`</title></item></channel><item><title>Fresh</title></item></channel></rss>`)

	res, err := NewParser().Run(bytes.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Items) != 1 || string(res.Items[0].Title) != "Fresh" {
		t.Fatalf("Expected single item 'Fresh', got %v", titles(res.Items))
	}
	expectedEnd := int64(bytes.LastIndex(doc, []byte("</item>")) + len("</item>"))
	if res.CommittedEnd != expectedEnd {
		t.Errorf("Expected committed end %d, got %d", expectedEnd, res.CommittedEnd)
	}
}

func TestRunUnclosedChildStillCommits(t *testing.T) {
	doc := []byte(`<item><title>T</title><br></item>`)

	res, err := NewParser().Run(bytes.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(res.Items))
	}
	if string(res.Items[0].Title) != "T" {
		t.Errorf("Expected title T, got %q", res.Items[0].Title)
	}
}

func TestRunFieldsOnlyFromDirectChildren(t *testing.T) {
	doc := []byte(`<item><media:group><title>nested</title></media:group><title>direct</title></item>`)

	res, err := NewParser().Run(bytes.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Items) != 1 || string(res.Items[0].Title) != "direct" {
		t.Errorf("Expected title 'direct', got %v", titles(res.Items))
	}
}

func TestRunFirstEnclosureWins(t *testing.T) {
	doc := []byte(`<item><enclosure url="http://a/1.mp3" type="audio/mpeg"/><enclosure url="http://a/2.mp3"/></item>`)

	res, err := NewParser().Run(bytes.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}

	if got := string(res.Items[0].EnclosureURL); got != "http://a/1.mp3" {
		t.Errorf("Expected first enclosure, got %q", got)
	}
}

func TestRunMixedTextAndCDATA(t *testing.T) {
	doc := []byte(`<item><title>  Part <![CDATA[one & two]]> done  </title></item>`)

	res, err := NewParser().Run(bytes.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}

	if got := string(res.Items[0].Title); got != "Part one & two done" {
		t.Errorf("Expected accumulated title, got %q", got)
	}
}

func TestWithMaxFieldSize(t *testing.T) {
	doc := []byte(`<item><title>abcdefgh</title></item>`)

	res, err := NewParser().WithMaxFieldSize(4).Run(bytes.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}

	if got := string(res.Items[0].Title); got != "abcd" {
		t.Errorf("Expected truncated title 'abcd', got %q", got)
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestRunReadError(t *testing.T) {
	boom := errors.New("connection reset")
	doc := []byte(`<item><title>A</title></item><item><title>B`)

	res, err := NewParser().Run(&failingReader{data: doc, err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected read error, got %v", err)
	}
	if res == nil || len(res.Items) != 1 {
		t.Fatalf("Expected the committed item to be reported, got %+v", res)
	}
	if res.CommittedEnd != int64(len(`<item><title>A</title></item>`)) {
		t.Errorf("Unexpected committed end %d", res.CommittedEnd)
	}
}

func TestRunEmptyStream(t *testing.T) {
	res, err := NewParser().Run(io.LimitReader(bytes.NewReader(nil), 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 0 || res.CommittedEnd != 0 || res.StreamEnd != 0 {
		t.Errorf("Expected empty result, got %+v", res)
	}
}

func TestRunTextAroundNestedElements(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		field    func(RawItem) []byte
		expected string
	}{
		{"bold inside title", `<item><title>A<b>x</b>B</title></item>`, func(it RawItem) []byte { return it.Title }, "AB"},
		{"paragraph inside description", `<item><description>Intro<p>skip</p> outro</description></item>`, func(it RawItem) []byte { return it.Description }, "Intro outro"},
		{"stray end tag inside title", `<item><title>A</i>B</title></item>`, func(it RawItem) []byte { return it.Title }, "AB"},
		{"nested element does not leak into guid", `<item><title>T<b>x</b></title><guid>g</guid></item>`, func(it RawItem) []byte { return it.GUID }, "g"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewParser().Run(bytes.NewReader([]byte(tt.doc)))
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Items) != 1 {
				t.Fatalf("Expected 1 item, got %d", len(res.Items))
			}
			if got := string(tt.field(res.Items[0])); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}
