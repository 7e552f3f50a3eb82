package chunk

import (
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts for budget accounting.
// The exact tokenizer does not matter as long as the same counter is used
// for indexing and retrieval.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

var defaultCounter = &TokenCounter{}

// DefaultCounter returns the process-wide token counter.
func DefaultCounter() *TokenCounter {
	return defaultCounter
}

// Count returns the token count for text. Uses the cl100k_base encoding when
// it can be loaded, otherwise a character heuristic.
func (c *TokenCounter) Count(text string) int {
	c.once.Do(func() {
		// Needs the cached BPE vocabulary; falls back to the heuristic
		// on fresh machines without network access.
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			c.enc = enc
		}
	})
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return heuristicTokens(text)
}

// heuristicTokens approximates BPE counts: roughly 4 ASCII characters or one
// CJK rune per token.
func heuristicTokens(text string) int {
	if text == "" {
		return 0
	}
	ascii := 0
	wide := 0
	for _, r := range text {
		if r < 128 {
			ascii++
		} else if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			wide++
		} else {
			ascii += 2
		}
	}
	n := ascii/4 + wide
	if n < 1 {
		n = 1
	}
	return n
}
