// Package textindex is an in-memory inverted index with BM25 scoring. It is
// the full-text search primitive behind the memory document store.
package textindex

import (
	"math"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/search/tokenizer"
)

const (
	k1 = 1.2
	b  = 0.75
)

type posting struct {
	frequency int
}

// Hit is one matching document.
type Hit struct {
	DocID string  `json:"docId"`
	Score float64 `json:"score"`
}

// Index is safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	postings map[string]map[string]*posting
	docTerms map[string][]string
	docLen   map[string]int
	totalLen int64
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		postings: make(map[string]map[string]*posting),
		docTerms: make(map[string][]string),
		docLen:   make(map[string]int),
	}
}

// Add indexes text under docID, replacing any previous version.
func (ix *Index) Add(docID string, text string) {
	tokens := tokenizer.Tokenize(text)
	termData := make(map[string]*posting)
	for _, tok := range tokens {
		p, ok := termData[tok.Term]
		if !ok {
			p = &posting{}
			termData[tok.Term] = p
		}
		p.frequency++
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(docID)
	terms := make([]string, 0, len(termData))
	for term, p := range termData {
		docs, ok := ix.postings[term]
		if !ok {
			docs = make(map[string]*posting)
			ix.postings[term] = docs
		}
		docs[docID] = p
		terms = append(terms, term)
	}
	ix.docTerms[docID] = terms
	ix.docLen[docID] = len(tokens)
	ix.totalLen += int64(len(tokens))
}

// Remove drops docID from the index.
func (ix *Index) Remove(docID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(docID)
}

func (ix *Index) removeLocked(docID string) {
	terms, ok := ix.docTerms[docID]
	if !ok {
		return
	}
	for _, term := range terms {
		docs := ix.postings[term]
		delete(docs, docID)
		if len(docs) == 0 {
			delete(ix.postings, term)
		}
	}
	ix.totalLen -= int64(ix.docLen[docID])
	delete(ix.docTerms, docID)
	delete(ix.docLen, docID)
}

// DocCount returns the number of indexed documents.
func (ix *Index) DocCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docLen)
}

// Search returns documents matching q for which keep returns true (nil keeps
// everything), ordered by BM25 score descending then id. A non-positive limit
// returns every hit.
func (ix *Index) Search(q Query, keep func(docID string) bool, limit int) []Hit {
	if q.Empty() {
		return []Hit{}
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	candidates := ix.matchLocked(q)
	totalDocs := float64(len(ix.docLen))
	avgLen := 0.0
	if totalDocs > 0 {
		avgLen = float64(ix.totalLen) / totalDocs
	}

	scores := make(map[string]float64, len(candidates))
	for _, term := range q.Terms {
		docs := ix.postings[term]
		if len(docs) == 0 {
			continue
		}
		idf := computeIDF(totalDocs, float64(len(docs)))
		for docID, p := range docs {
			if _, ok := candidates[docID]; !ok {
				continue
			}
			scores[docID] += idf * computeTFNorm(float64(p.frequency), float64(ix.docLen[docID]), avgLen)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for docID, score := range scores {
		if keep != nil && !keep(docID) {
			continue
		}
		hits = append(hits, Hit{DocID: docID, Score: math.Round(score*10000) / 10000})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func (ix *Index) matchLocked(q Query) map[string]struct{} {
	matched := make(map[string]struct{})
	switch q.Mode {
	case MatchAll:
		for i, term := range q.Terms {
			docs := ix.postings[term]
			if i == 0 {
				for docID := range docs {
					matched[docID] = struct{}{}
				}
				continue
			}
			for docID := range matched {
				if _, ok := docs[docID]; !ok {
					delete(matched, docID)
				}
			}
		}
	default:
		for _, term := range q.Terms {
			for docID := range ix.postings[term] {
				matched[docID] = struct{}{}
			}
		}
	}
	for _, term := range q.ExcludeTerms {
		for docID := range ix.postings[term] {
			delete(matched, docID)
		}
	}
	return matched
}

func computeIDF(totalDocs, docFreq float64) float64 {
	return math.Log((totalDocs-docFreq)/(docFreq+0.5) + 1)
}

func computeTFNorm(termFreq, docLength, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
