// Package filtering selects registered feeds for listing.
//
// Feeds are filtered on two axes, each with include and exclude rules where
// exclude takes precedence over include:
//
//   - Pair names ("BASE/QUOTE") are matched with glob patterns. '*' matches
//     across the slash, so "ETH/*" selects every ETH pair and "*/USD" every
//     USD-quoted pair.
//   - Sources are matched exactly against the address currently serving the
//     pair.
//
// The rules on each axis are evaluated as:
//
//  1. If exclude rules are specified and match -> exclude (precedence)
//  2. If include rules are specified and match -> include
//  3. If include rules are specified but no match -> exclude
//  4. If only exclude rules are specified and no match -> include
//  5. If no rules are specified -> include (default behavior)
//
// A feed is listed only if it passes both axes.
//
// # Usage Example
//
//	service := NewDefaultFilterService()
//	listed, err := service.ApplyFilters(ctx, feeds, &FeedFilter{
//		PairInclude:   []string{"ETH/*", "BTC/*"},
//		PairExclude:   []string{"*/EUR"},
//		SourceExclude: []string{"0xdeprecated"},
//	})
package filtering
