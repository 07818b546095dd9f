package filtering

import (
	"fmt"
	"slices"
)

// SourceFilter handles filtering on the serving source address
type SourceFilter interface {
	// ShouldInclude determines if a feed served by source should be included
	// Returns (shouldInclude bool, reason string)
	ShouldInclude(source string, include, exclude []string) (bool, string)
}

// defaultSourceFilter implements source filtering using exact matching
type defaultSourceFilter struct{}

var _ SourceFilter = (*defaultSourceFilter)(nil)

// NewDefaultSourceFilter creates a new defaultSourceFilter
func NewDefaultSourceFilter() SourceFilter {
	return &defaultSourceFilter{}
}

// ShouldInclude determines if a feed served by source should be included
func (*defaultSourceFilter) ShouldInclude(source string, include, exclude []string) (bool, string) {
	if slices.Contains(exclude, source) {
		return false, fmt.Sprintf("excluded source '%s'", source)
	}

	if len(include) > 0 {
		if slices.Contains(include, source) {
			return true, fmt.Sprintf("included source '%s'", source)
		}
		return false, fmt.Sprintf("source '%s' not in %v", source, include)
	}

	return true, "no source filters specified"
}
