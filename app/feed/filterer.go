package feed

import (
	"fmt"
	"strings"

	"github.com/lysyi3m/pod-comb/app/database"
)

// FilterFields are the episode fields a filter may match on.
var FilterFields = []string{"title", "subtitle", "description", "link", "url", "guid"}

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run marks every episode as filtered or visible under the feed's
// filters. Episodes are never removed, so the caller can store both.
func (f *Filterer) Run(episodes []database.Episode, feedConfig *Config) []database.Episode {
	filtered := make([]database.Episode, 0, len(episodes))
	for _, e := range episodes {
		e.IsFiltered, e.FilterReason = f.applyFilters(e, feedConfig.Filters)
		filtered = append(filtered, e)
	}

	return filtered
}

func (f *Filterer) applyFilters(e database.Episode, filters []ConfigFilter) (bool, string) {
	for _, filter := range filters {
		value := f.getFieldValue(e, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(e database.Episode, field string) string {
	switch field {
	case "title":
		return e.Title
	case "subtitle":
		return e.Subtitle
	case "description":
		return e.Description
	case "link":
		return e.Link
	case "url":
		return e.URL
	case "guid":
		return e.GUID
	default:
		return ""
	}
}
