package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("The Quarterly reports, filed in 2024!")
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
		assert.Equal(t, i, tok.Position)
	}
	assert.Equal(t, []string{"quarter", "report", "fil", "2024"}, terms)
}

func TestTokenizeEmpty(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("the a of ! ?"))
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"budget", "review"}, Terms("budget review budgets"))
}

func TestStem(t *testing.T) {
	tests := map[string]string{
		"reports":     "report",
		"policies":    "policy",
		"running":     "runn",
		"relational":  "relate",
		"statements":  "statement",
		"cat":         "cat",
		"is":          "is",
		"happiness":   "happy",
		"boxes":       "box",
		"carefully":   "careful",
		"accounting":  "account",
		"engineering": "engineer",
	}
	for in, want := range tests {
		assert.Equal(t, want, Stem(in), in)
	}
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("the"))
	assert.True(t, IsStopWord("with"))
	assert.False(t, IsStopWord("invoice"))
}

func BenchmarkTokenize(b *testing.B) {
	text := `Quarterly revenue reports summarise income, expenses and forecasts for
	each business unit. Finance teams review the statements before the board meeting.`
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = Tokenize(text)
	}
}
