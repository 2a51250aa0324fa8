package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"whatshound/pkg/whatshound/chunkhound"
)

const (
	searchResultLimit     = 3
	searchContentTruncate = 150
)

const searchUnavailableReply = "🔍 *Code Search Unavailable*\n\nThe code search engine isn't running right now. Regular chat features still work!"

const searchUsage = "🔍 *Code Search:*\n\nTry:\n• 'search code for database connection'\n• 'find function parse_message'\n• '/search error handling'\n\nAdd 'semantic' for meaning-based search."

// searchPrefixes are stripped from the message to isolate the query.
// Ordered longest-first so the most specific phrasing wins.
var searchPrefixes = []string{
	"semantic",
	"search code for",
	"search codebase for",
	"search for code",
	"find in code",
	"search code",
	"find function",
	"find class",
	"code search",
	"search for",
	"grep for",
	"/search",
}

func (a *Assistant) handleCodeSearch(ctx context.Context, text string) string {
	if !a.searchEnabled() {
		return searchUnavailableReply
	}

	lowered := strings.ToLower(text)
	kind := chunkhound.KindRegex
	if strings.Contains(lowered, "semantic") {
		kind = chunkhound.KindSemantic
	}

	query := extractSearchQuery(text)
	if query == "" {
		return searchUsage
	}

	matches, err := a.search.Search(ctx, query, kind)
	if err != nil {
		var serr *chunkhound.SearchError
		switch {
		case errors.Is(err, chunkhound.ErrUnavailable):
			return searchUnavailableReply
		case errors.As(err, &serr):
			a.logger.Warn("code search failed", "query", query, "err", err)
			return fmt.Sprintf("🔍 Search failed: %s\n\nPlease try a different query.", serr.Message)
		default:
			a.logger.Warn("code search failed", "query", query, "err", err)
			return "🔍 Search failed. Please try a different query."
		}
	}

	if len(matches) == 0 {
		return fmt.Sprintf("🔍 No results found for '%s'.\n\nTry different keywords or a broader query.", query)
	}
	return formatSearchResults(query, matches)
}

func (a *Assistant) handleCodeSearchHelp() string {
	status := "❌ offline"
	if a.searchEnabled() {
		status = "✅ online"
	}
	return fmt.Sprintf("🔍 *Code Search Help* (%s)\n\n"+
		"• 'search code for [query]' - Regex search\n"+
		"• 'semantic search [query]' - Meaning-based search\n"+
		"• 'find function [name]' - Locate a function\n"+
		"• '/search [query]' - Quick search\n\n"+
		"Results show the top %d matches with file paths.", status, searchResultLimit)
}

// extractSearchQuery strips the recognized search phrasing and filler words
// from the message, leaving the raw query.
func extractSearchQuery(text string) string {
	q := strings.TrimSpace(text)
	lowered := strings.ToLower(q)
	for _, p := range searchPrefixes {
		if idx := strings.Index(lowered, p); idx >= 0 {
			q = strings.TrimSpace(q[:idx] + q[idx+len(p):])
			lowered = strings.ToLower(q)
		}
	}
	return strings.Trim(q, `"' `)
}

func formatSearchResults(query string, matches []chunkhound.Match) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 *Search Results for '%s':*\n", query)

	shown := matches
	if len(shown) > searchResultLimit {
		shown = shown[:searchResultLimit]
	}
	for i, m := range shown {
		content := strings.TrimSpace(m.Content)
		if len(content) > searchContentTruncate {
			content = runeSafeCut(content, searchContentTruncate) + "..."
		}
		fmt.Fprintf(&b, "\n%d. 📄 %s\n```%s```\n", i+1, m.FilePath, content)
	}
	if extra := len(matches) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "\n... and %d more results", extra)
	}
	return b.String()
}
