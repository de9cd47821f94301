package textindex

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/search/tokenizer"
)

// Mode controls how query terms combine.
type Mode int

const (
	// MatchAny returns documents containing at least one term.
	MatchAny Mode = iota
	// MatchAll returns documents containing every term.
	MatchAll
)

// Query is a parsed search string.
type Query struct {
	Terms        []string
	ExcludeTerms []string
	Mode         Mode
	Raw          string
}

// Parse splits a raw query into index terms. Words prefixed with '-' or
// preceded by NOT are excluded. The keywords AND and OR switch the match mode
// for the whole query; the default matches any term.
func Parse(raw string) Query {
	q := Query{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		Mode:         MatchAny,
		Raw:          raw,
	}
	if strings.TrimSpace(raw) == "" {
		return q
	}
	excludeNext := false
	for _, word := range strings.Fields(raw) {
		switch word {
		case "AND":
			q.Mode = MatchAll
			continue
		case "OR":
			q.Mode = MatchAny
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		exclude := excludeNext
		excludeNext = false
		if strings.HasPrefix(word, "-") && len(word) > 1 {
			exclude = true
			word = word[1:]
		}
		for _, tok := range tokenizer.Tokenize(word) {
			if exclude {
				q.ExcludeTerms = appendUnique(q.ExcludeTerms, tok.Term)
			} else {
				q.Terms = appendUnique(q.Terms, tok.Term)
			}
		}
	}
	return q
}

// Empty reports whether the query has nothing to match on.
func (q Query) Empty() bool {
	return len(q.Terms) == 0
}

func appendUnique(list []string, term string) []string {
	for _, t := range list {
		if t == term {
			return list
		}
	}
	return append(list, term)
}
