package episode

import (
	"errors"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var ErrEmptyDate = errors.New("empty date")

type DateParser interface {
	Parse(value string) (time.Time, error)
}

// LooseDateParser accepts the many date spellings found in feeds.
// Dates without a zone are read in its location.
type LooseDateParser struct {
	loc *time.Location
}

func NewDateParser(loc *time.Location) *LooseDateParser {
	if loc == nil {
		loc = time.UTC
	}
	return &LooseDateParser{loc: loc}
}

func (p *LooseDateParser) Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrEmptyDate
	}
	return dateparse.ParseIn(value, p.loc)
}
