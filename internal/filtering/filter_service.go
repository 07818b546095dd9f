package filtering

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stacklok/feed-registry-server/internal/registry"
)

// ErrInvalidPattern is returned for pair patterns that do not compile.
var ErrInvalidPattern = errors.New("invalid pair pattern")

// Feed is a registered pair with its current phase.
type Feed struct {
	Pair  registry.Pair
	Phase registry.Phase
}

// FeedFilter holds the include and exclude rules of a listing.
type FeedFilter struct {
	PairInclude   []string
	PairExclude   []string
	SourceInclude []string
	SourceExclude []string
}

// IsEmpty reports whether the filter selects every feed. Nil-safe.
func (f *FeedFilter) IsEmpty() bool {
	return f == nil ||
		len(f.PairInclude) == 0 && len(f.PairExclude) == 0 &&
			len(f.SourceInclude) == 0 && len(f.SourceExclude) == 0
}

// FilterService coordinates name and source filtering of feed listings
type FilterService interface {
	// ApplyFilters returns the feeds passing filter, in their original order
	ApplyFilters(ctx context.Context, feeds []Feed, filter *FeedFilter) ([]Feed, error)
}

// defaultFilterService implements filtering coordination using name and source filters
type defaultFilterService struct {
	nameFilter   NameFilter
	sourceFilter SourceFilter
}

// NewDefaultFilterService creates a new defaultFilterService with default filter implementations
func NewDefaultFilterService() FilterService {
	return &defaultFilterService{
		nameFilter:   NewDefaultNameFilter(),
		sourceFilter: NewDefaultSourceFilter(),
	}
}

// NewFilterService creates a new defaultFilterService with custom filter implementations
func NewFilterService(nameFilter NameFilter, sourceFilter SourceFilter) FilterService {
	return &defaultFilterService{
		nameFilter:   nameFilter,
		sourceFilter: sourceFilter,
	}
}

// ApplyFilters filters feeds. Patterns are validated up front so a bad
// pattern fails the listing instead of silently excluding every feed.
func (s *defaultFilterService) ApplyFilters(ctx context.Context, feeds []Feed, filter *FeedFilter) ([]Feed, error) {
	if filter.IsEmpty() {
		return feeds, nil
	}

	var errs []error
	for _, p := range append(append([]string{}, filter.PairInclude...), filter.PairExclude...) {
		if err := ValidatePattern(p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	result := make([]Feed, 0, len(feeds))
	for _, feed := range feeds {
		name := feed.Pair.String()

		ok, reason := s.nameFilter.ShouldInclude(name, filter.PairInclude, filter.PairExclude)
		if !ok {
			slog.DebugContext(ctx, "Feed filtered out", "pair", name, "reason", reason)
			continue
		}
		ok, reason = s.sourceFilter.ShouldInclude(feed.Phase.Source, filter.SourceInclude, filter.SourceExclude)
		if !ok {
			slog.DebugContext(ctx, "Feed filtered out", "pair", name, "reason", reason)
			continue
		}
		result = append(result, feed)
	}

	slog.DebugContext(ctx, "Applied feed filters", "total", len(feeds), "listed", len(result))
	return result, nil
}
