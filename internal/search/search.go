package search

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	sfuzzy "github.com/sahilm/fuzzy"

	"github.com/mmcdole/depotdump/internal/dumpfile"
)

// Result is an app matching a query
type Result struct {
	dumpfile.AppEntry
	MatchedIndexes []int // Character positions that matched (empty for typo matches)
	Score          int   // Higher is better
}

// appIndex implements sahilm/fuzzy.Source over lowercase app names
type appIndex struct {
	entries    []dumpfile.AppEntry
	lowerNames []string
}

// String returns the lowercase name at index i (implements fuzzy.Source)
func (idx *appIndex) String(i int) string { return idx.lowerNames[i] }

// Len returns the number of entries (implements fuzzy.Source)
func (idx *appIndex) Len() int { return len(idx.entries) }

// Service looks up apps by name in a previous run's apps file
type Service struct {
	index  *appIndex
	logger *slog.Logger
}

// NewService indexes the given entries
func NewService(entries []dumpfile.AppEntry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &appIndex{entries: entries, lowerNames: make([]string, len(entries))}
	for i, e := range entries {
		idx.lowerNames[i] = strings.ToLower(e.Name)
	}
	return &Service{index: idx, logger: logger}
}

// Find returns apps whose name matches query, best first.
//
// A numeric query also matches the app ID exactly. Subsequence matches come
// first; when there are none, names within a small edit distance are returned
// so typos still find something.
func (s *Service) Find(query string, limit int) []Result {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var results []Result
	if id, err := strconv.ParseUint(query, 10, 32); err == nil {
		for _, e := range s.index.entries {
			if e.AppID == uint32(id) {
				results = append(results, Result{AppEntry: e, Score: 1 << 30})
			}
		}
	}

	matches := sfuzzy.FindFrom(query, s.index)
	for _, m := range matches {
		results = append(results, Result{
			AppEntry:       s.index.entries[m.Index],
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		})
	}

	if len(results) == 0 {
		results = s.typoMatches(query)
		s.logger.Debug("no subsequence match, using edit distance", "query", query, "matches", len(results))
	}

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// typoMatches ranks names by Levenshtein distance, keeping those within a third of the query length
func (s *Service) typoMatches(query string) []Result {
	maxDistance := len(query)/3 + 1

	var results []Result
	for i, name := range s.index.lowerNames {
		best := fuzzy.LevenshteinDistance(query, name)
		for _, word := range strings.Fields(name) {
			if d := fuzzy.LevenshteinDistance(query, word); d < best {
				best = d
			}
		}
		if best <= maxDistance {
			results = append(results, Result{AppEntry: s.index.entries[i], Score: -best})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}
