package dups

import (
	"path"
	"strings"

	"golang.org/x/text/cases"
)

// albumPattern is a parsed exclusion pattern with its matching strategy.
type albumPattern struct {
	pattern   string // case-folded
	matchPath bool   // true = match against the album's URL path; false = its name
}

// AlbumFilter excludes albums from scanning by glob pattern.
// Patterns without '/' match the album name; patterns with '/' match the
// album's URL path (e.g. "/Family/2019/*"). Matching ignores case.
type AlbumFilter struct {
	patterns []albumPattern
}

// NewAlbumFilter creates an AlbumFilter from raw pattern strings.
// Blank entries and entries starting with '#' are skipped.
func NewAlbumFilter(rawPatterns []string) *AlbumFilter {
	var patterns []albumPattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, albumPattern{
			pattern:   fold(raw),
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &AlbumFilter{patterns: patterns}
}

// Match reports whether the album should be excluded.
func (f *AlbumFilter) Match(a *Album) bool {
	if f == nil || len(f.patterns) == 0 {
		return false
	}
	name := fold(a.Name)
	urlPath := fold(a.URLPath)

	for _, p := range f.patterns {
		target := name
		if p.matchPath {
			target = urlPath
		}
		matched, err := path.Match(p.pattern, target)
		if err != nil {
			// Bad pattern: skip rather than exclude everything.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// fold returns s case-folded for caseless comparison.
func fold(s string) string {
	return cases.Fold().String(s)
}
