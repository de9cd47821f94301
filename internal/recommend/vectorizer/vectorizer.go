// Package vectorizer converts raw document text into the normalized token
// sequence used for content similarity.
package vectorizer

import (
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/search/tokenizer"
)

// minTokenLen is the shortest token kept; anything of length 2 or less is noise.
const minTokenLen = 3

// Vector is an ordered sequence of normalized tokens. Duplicates are kept so
// that term frequency survives.
type Vector []string

// Vectorizer normalizes text. It holds no mutable state and is safe for
// concurrent use.
type Vectorizer struct {
	stem bool
}

// Option configures a Vectorizer.
type Option func(*Vectorizer)

// WithStemming enables suffix stemming of kept tokens.
func WithStemming(on bool) Option {
	return func(v *Vectorizer) { v.stem = on }
}

// New creates a Vectorizer.
func New(opts ...Option) *Vectorizer {
	v := &Vectorizer{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Vectorize lower-cases text, strips everything outside [a-z0-9] and
// whitespace, splits on whitespace and drops short tokens and stop-words.
// Empty input yields an empty vector.
func (v *Vectorizer) Vectorize(text string) Vector {
	if text == "" {
		return Vector{}
	}
	cleaned := strings.Map(keep, strings.ToLower(text))
	fields := strings.Fields(cleaned)
	out := make(Vector, 0, len(fields))
	for _, f := range fields {
		if len(f) < minTokenLen || tokenizer.IsStopWord(f) {
			continue
		}
		if v.stem {
			f = tokenizer.Stem(f)
		}
		out = append(out, f)
	}
	return out
}

func keep(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return r
	case unicode.IsSpace(r):
		return ' '
	default:
		return -1
	}
}
