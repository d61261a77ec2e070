package source

import (
	"fmt"
	"strings"
)

// Filterer applies a source's topic relevance rules.
type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run reports whether subject is filtered out and why. Whitelisted sources
// are never filtered.
func (f *Filterer) Run(subject Subject, sourceConfig *Config) (bool, string) {
	if sourceConfig == nil || sourceConfig.Settings.Whitelisted || len(sourceConfig.Filters) == 0 {
		return false, ""
	}
	return f.applyFilters(subject, sourceConfig.Filters)
}

func (f *Filterer) applyFilters(subject Subject, filters []ConfigFilter) (bool, string) {
	for _, filter := range filters {
		value := f.getFieldValue(subject, filter.Field)

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

func (f *Filterer) getFieldValue(subject Subject, field string) string {
	switch field {
	case "title":
		return subject.Title
	case "summary":
		return subject.Summary
	case "content":
		return subject.Content
	case "author":
		return subject.Author
	case "link":
		return subject.Link
	default:
		return ""
	}
}
