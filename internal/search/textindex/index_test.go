package textindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	q := Parse("quarterly reports -draft NOT archived")
	assert.Equal(t, []string{"quarter", "report"}, q.Terms)
	assert.Equal(t, []string{"draft", "archiv"}, q.ExcludeTerms)
	assert.Equal(t, MatchAny, q.Mode)

	q = Parse("budget AND forecast")
	assert.Equal(t, MatchAll, q.Mode)
	assert.Equal(t, []string{"budget", "forecast"}, q.Terms)

	assert.True(t, Parse("   ").Empty())
	assert.True(t, Parse("the of").Empty())
}

func buildIndex() *Index {
	ix := New()
	ix.Add("d1", "Quarterly revenue report for finance")
	ix.Add("d2", "Revenue forecast and budget")
	ix.Add("d3", "Vacation policy for employees")
	ix.Add("d4", "Revenue revenue revenue summary")
	return ix
}

func hitIDs(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.DocID
	}
	return out
}

func TestSearchMatchAny(t *testing.T) {
	ix := buildIndex()
	hits := ix.Search(Parse("revenue vacation"), nil, 0)
	require.Len(t, hits, 4)
	assert.ElementsMatch(t, []string{"d1", "d2", "d3", "d4"}, hitIDs(hits))
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestSearchMatchAllAndExclude(t *testing.T) {
	ix := buildIndex()
	assert.Equal(t, []string{"d2"}, hitIDs(ix.Search(Parse("revenue AND budget"), nil, 0)))
	got := hitIDs(ix.Search(Parse("revenue -forecast"), nil, 0))
	assert.ElementsMatch(t, []string{"d1", "d4"}, got)
}

func TestSearchTermFrequencyRanksHigher(t *testing.T) {
	ix := buildIndex()
	hits := ix.Search(Parse("revenue"), nil, 0)
	require.NotEmpty(t, hits)
	assert.Equal(t, "d4", hits[0].DocID)
}

func TestSearchKeepAndLimit(t *testing.T) {
	ix := buildIndex()
	hits := ix.Search(Parse("revenue"), func(id string) bool { return id != "d4" }, 1)
	require.Len(t, hits, 1)
	assert.NotEqual(t, "d4", hits[0].DocID)
}

func TestAddReplacesAndRemove(t *testing.T) {
	ix := buildIndex()
	ix.Add("d3", "Revenue recognition policy")
	assert.Equal(t, 4, ix.DocCount())
	assert.Empty(t, ix.Search(Parse("vacation"), nil, 0))
	assert.Contains(t, hitIDs(ix.Search(Parse("recognition"), nil, 0)), "d3")

	ix.Remove("d3")
	ix.Remove("missing")
	assert.Equal(t, 3, ix.DocCount())
	assert.Empty(t, ix.Search(Parse("recognition"), nil, 0))
}

func TestSearchEmptyQuery(t *testing.T) {
	assert.Empty(t, buildIndex().Search(Parse(""), nil, 10))
}

func BenchmarkSearch(b *testing.B) {
	ix := New()
	for i := 0; i < 2000; i++ {
		ix.Add(fmt.Sprintf("d%d", i), fmt.Sprintf("document %d revenue forecast budget region %d team %d", i, i%13, i%7))
	}
	q := Parse("revenue region")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ix.Search(q, nil, 20)
	}
}

func BenchmarkParse(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"simple", "quarterly revenue"},
		{"match_all", "budget AND forecast AND region"},
		{"with_exclude", "revenue -draft NOT archived"},
		{"long", "quarterly revenue forecast budget report finance region team summary plan"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Parse(q.query)
			}
		})
	}
}
