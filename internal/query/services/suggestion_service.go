package services

import (
	"sort"
	"strings"
	"sync"
)

// SuggestionService ranks service names for autocomplete and tracks the
// current selection. Ranking is a single total-order comparator, so repeated
// calls over the same name set always return the same order.
type SuggestionService struct {
	mu        sync.Mutex
	selection string
	explicit  bool
}

// NewSuggestionService creates a suggestion service.
func NewSuggestionService() *SuggestionService {
	return &SuggestionService{}
}

type candidate struct {
	name       string
	prefixRank int // 0 when the query starts the name, 1 otherwise
	matchIndex int // index of the first occurrence of the query
	lowerName  string
}

// RankNames filters names to those containing the query (case-insensitive)
// and orders them: prefix matches first, then earlier first occurrence, then
// case-insensitive lexicographic order, with the exact name as the final
// tiebreak so the order is total.
func RankNames(names []string, query string) []string {
	lowerQuery := strings.ToLower(strings.TrimSpace(query))

	candidates := make([]candidate, 0, len(names))
	for _, name := range names {
		lowerName := strings.ToLower(name)
		idx := strings.Index(lowerName, lowerQuery)
		if idx < 0 {
			continue
		}
		rank := 1
		if idx == 0 {
			rank = 0
		}
		candidates = append(candidates, candidate{
			name:       name,
			prefixRank: rank,
			matchIndex: idx,
			lowerName:  lowerName,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.prefixRank != b.prefixRank {
			return a.prefixRank < b.prefixRank
		}
		if a.matchIndex != b.matchIndex {
			return a.matchIndex < b.matchIndex
		}
		if a.lowerName != b.lowerName {
			return a.lowerName < b.lowerName
		}
		// Names equal case-insensitively still need a fixed order, or the
		// result would depend on input order.
		return a.name < b.name
	})

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.name
	}
	return out
}

// Suggest ranks the given names against the query. When exactly one candidate
// remains and the user has not explicitly picked one, that candidate becomes
// the implicit current selection.
func (s *SuggestionService) Suggest(names []string, query string) []string {
	ranked := RankNames(names, query)

	if len(ranked) == 1 {
		s.mu.Lock()
		if !s.explicit {
			s.selection = ranked[0]
		}
		s.mu.Unlock()
	}

	return ranked
}

// Select records an explicit selection, which implicit auto-selection never
// overrides.
func (s *SuggestionService) Select(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = name
	s.explicit = true
}

// Selection returns the current selection, explicit or implicit.
func (s *SuggestionService) Selection() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection, s.selection != ""
}

// ResetSelection clears any selection, explicit or implicit.
func (s *SuggestionService) ResetSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = ""
	s.explicit = false
}
