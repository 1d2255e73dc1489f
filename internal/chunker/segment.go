package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// paragraphBreak matches one or more blank lines.
var paragraphBreak = regexp.MustCompile(`\n(?:[ \t\r\f\v]*\n)+`)

// abbreviations never end a sentence when followed by a period. Keys are lowercase and
// exclude the trailing period.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {}, "st": {},
	"vs": {}, "etc": {}, "e.g": {}, "i.e": {}, "inc": {}, "ltd": {}, "co": {}, "corp": {},
	"no": {}, "fig": {}, "mt": {}, "ave": {}, "approx": {}, "dept": {}, "est": {},
	"jan": {}, "feb": {}, "mar": {}, "apr": {}, "jun": {}, "jul": {}, "aug": {},
	"sep": {}, "sept": {}, "oct": {}, "nov": {}, "dec": {},
}

// span is a piece of the original content and its byte offset.
type span struct {
	text string
	pos  int
}

// splitParagraphs returns the trimmed, non-empty blank-line separated blocks of content.
func splitParagraphs(content string) []span {
	var out []span
	start := 0
	for _, loc := range paragraphBreak.FindAllStringIndex(content, -1) {
		out = appendTrimmed(out, content[start:loc[0]], start)
		start = loc[1]
	}
	return appendTrimmed(out, content[start:], start)
}

// splitSentences breaks a paragraph at terminal punctuation followed by whitespace,
// skipping periods that close a known abbreviation or a single capital initial.
func splitSentences(p span) []span {
	text := p.text
	var out []span
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch r {
		case '。', '！', '？':
			end := consumeClosers(text, i+size)
			out = appendTrimmed(out, text[start:end], p.pos+start)
			start, i = end, end
			continue
		case '.', '!', '?':
			termEnd := i + size
			for termEnd < len(text) && strings.IndexByte(".!?", text[termEnd]) >= 0 {
				termEnd++
			}
			end := consumeClosers(text, termEnd)
			if end < len(text) {
				next, _ := utf8.DecodeRuneInString(text[end:])
				if !unicode.IsSpace(next) {
					i = end
					continue
				}
			}
			if r == '.' && termEnd == i+size && isAbbreviation(text[start:i]) {
				i = end
				continue
			}
			out = appendTrimmed(out, text[start:end], p.pos+start)
			start, i = end, end
			continue
		}
		i += size
	}
	return appendTrimmed(out, text[start:], p.pos+start)
}

// consumeClosers advances past closing quotes and brackets that trail a terminator.
func consumeClosers(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !strings.ContainsRune(`"')]}»”’」』`, r) {
			break
		}
		i += size
	}
	return i
}

func isAbbreviation(before string) bool {
	word, rest := before, ""
	if j := strings.LastIndexFunc(before, unicode.IsSpace); j >= 0 {
		word, rest = before[j+1:], before[:j]
	}
	word = strings.TrimLeft(word, `"'([{«“‘`)
	if word == "" {
		return false
	}
	if r, size := utf8.DecodeRuneInString(word); size == len(word) && unicode.IsUpper(r) {
		return isInitial(rest)
	}
	_, ok := abbreviations[strings.ToLower(word)]
	return ok
}

// isInitial reports whether a single capital letter followed by a period, preceded
// by before, reads as a name initial. It does when it opens the sentence or follows
// another capitalised word, so "plan A." ends a sentence but "John F." does not.
func isInitial(before string) bool {
	before = strings.TrimRightFunc(before, unicode.IsSpace)
	if before == "" {
		return true
	}
	prev := before
	if j := strings.LastIndexFunc(before, unicode.IsSpace); j >= 0 {
		prev = before[j+1:]
	}
	prev = strings.TrimLeft(prev, `"'([{«“‘`)
	r, _ := utf8.DecodeRuneInString(prev)
	return unicode.IsUpper(r)
}

// splitWords returns the whitespace-separated words of s with their offsets.
func splitWords(s span) []span {
	var out []span
	start := -1
	for i, r := range s.text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, span{text: s.text[start:i], pos: s.pos + start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, span{text: s.text[start:], pos: s.pos + start})
	}
	return out
}

// splitOversized breaks a sentence that exceeds maxTokens at word boundaries. A single
// word that is itself too large (long CJK runs) is cut between runes.
func splitOversized(s span, maxTokens int) []span {
	var out []span
	var cur []span
	curTokens := 0
	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, sliceWords(s, cur))
		cur, curTokens = nil, 0
	}
	for _, w := range splitWords(s) {
		wt := EstimateTokens(w.text)
		if wt > maxTokens {
			flush()
			out = append(out, splitRunes(w, maxTokens)...)
			continue
		}
		if len(cur) > 0 && curTokens+wt > maxTokens {
			flush()
		}
		cur = append(cur, w)
		curTokens += wt
	}
	flush()
	return out
}

func splitRunes(w span, maxTokens int) []span {
	var out []span
	start := 0
	var c tokenCounter
	for i, r := range w.text {
		next := c
		next.add(r)
		if i > start && next.total() > maxTokens {
			out = append(out, span{text: w.text[start:i], pos: w.pos + start})
			start = i
			c = tokenCounter{}
			c.add(r)
			continue
		}
		c = next
	}
	if start < len(w.text) {
		out = append(out, span{text: w.text[start:], pos: w.pos + start})
	}
	return out
}

// sliceWords returns the part of parent running from the first to the last of words,
// keeping the original whitespace between them.
func sliceWords(parent span, words []span) span {
	first, last := words[0], words[len(words)-1]
	return span{
		text: parent.text[first.pos-parent.pos : last.pos-parent.pos+len(last.text)],
		pos:  first.pos,
	}
}

func appendTrimmed(out []span, text string, pos int) []span {
	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	pos += len(text) - len(trimmed)
	trimmed = strings.TrimRightFunc(trimmed, unicode.IsSpace)
	if trimmed == "" {
		return out
	}
	return append(out, span{text: trimmed, pos: pos})
}
