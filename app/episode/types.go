package episode

import "fmt"

// Episode is a normalized feed item. All fields are owned copies with no
// reference back to the parse buffers.
type Episode struct {
	Key         string `json:"key"`
	GUID        string `json:"guid,omitempty"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Timestamp   uint64 `json:"timestamp"`
	URL         string `json:"url"`
	Image       string `json:"image"`
	DateKey     string `json:"date_key"`
	Link        string `json:"link,omitempty"`
	Duration    string `json:"duration,omitempty"`
	MediaType   string `json:"media_type,omitempty"`
	MediaLength int64  `json:"media_length,omitempty"`
}

// DefaultDateKey is used when an episode date cannot be parsed.
const DefaultDateKey = "0000-00-00"

const dateKeyLayout = "2006-01-02"

type DescriptionFormat string

const (
	FormatText     DescriptionFormat = "text"
	FormatHTML     DescriptionFormat = "html"
	FormatMarkdown DescriptionFormat = "markdown"
)

func ParseDescriptionFormat(s string) (DescriptionFormat, error) {
	switch DescriptionFormat(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatHTML:
		return FormatHTML, nil
	case FormatMarkdown:
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown description format: %s", s)
	}
}

// Since keeps episodes published strictly after timestamp.
func Since(timestamp uint64) func(Episode) bool {
	return func(e Episode) bool {
		return e.Timestamp > timestamp
	}
}

func Filter(episodes []Episode, keep func(Episode) bool) []Episode {
	filtered := make([]Episode, 0, len(episodes))
	for _, e := range episodes {
		if keep(e) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
