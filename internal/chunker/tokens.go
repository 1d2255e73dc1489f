package chunker

import (
	"math"
	"unicode"
)

// Token estimation weights. There is no real tokenizer; these target roughly ±10% of a
// sub-word tokenizer on English prose.
const (
	wordTokenRatio  = 1.3
	punctTokenRatio = 0.5
)

// EstimateTokens approximates the number of model tokens in text.
// Non-CJK word runs cost 1.3 tokens, CJK/Hangul/kana characters cost one token each and
// punctuation costs half a token.
func EstimateTokens(text string) int {
	var c tokenCounter
	for _, r := range text {
		c.add(r)
	}
	return c.total()
}

// tokenCounter accumulates token estimate inputs rune by rune.
type tokenCounter struct {
	words  int
	cjk    int
	punct  int
	runLen int
	runCJK int
}

func (c *tokenCounter) add(r rune) {
	if isWordRune(r) {
		c.runLen++
		if isCJK(r) {
			c.runCJK++
		}
		return
	}
	c.endRun()
	if !unicode.IsSpace(r) {
		c.punct++
	}
}

func (c *tokenCounter) endRun() {
	if c.runLen == 0 {
		return
	}
	c.cjk += c.runCJK
	// A run that is mostly CJK is already charged per character.
	if c.runCJK*2 < c.runLen {
		c.words++
	}
	c.runLen, c.runCJK = 0, 0
}

func (c tokenCounter) total() int {
	c.endRun()
	return int(math.Ceil(float64(c.words)*wordTokenRatio)) +
		c.cjk +
		int(math.Ceil(float64(c.punct)*punctTokenRatio))
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hangul, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r)
}
