// Package chunker splits document content into overlapping, token-bounded chunks for
// embedding.
package chunker

import (
	"strings"

	"github.com/hyperjump/kensaku/internal/models"
)

const (
	DefaultMaxTokens      = 800
	DefaultOverlapPercent = 0.15
)

// Options controls chunk size and the overlap carried between consecutive chunks.
type Options struct {
	MaxTokens      int
	OverlapPercent float64
}

// DefaultOptions returns 800-token chunks with 15% overlap.
func DefaultOptions() Options {
	return Options{MaxTokens: DefaultMaxTokens, OverlapPercent: DefaultOverlapPercent}
}

func (o Options) normalize() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.OverlapPercent < 0 {
		o.OverlapPercent = 0
	}
	if o.OverlapPercent >= 1 {
		o.OverlapPercent = 0.99
	}
	return o
}

// Chunker applies a fixed set of options to every document.
type Chunker struct {
	opts Options
}

// New creates a Chunker with the given options.
func New(opts Options) *Chunker {
	return &Chunker{opts: opts.normalize()}
}

// Options returns the effective options.
func (c *Chunker) Options() Options {
	return c.opts
}

// Chunk splits content using the chunker's options.
func (c *Chunker) Chunk(docID, content string) []models.Chunk {
	return Chunk(docID, content, c.opts)
}

// Chunk splits content into chunks of at most opts.MaxTokens estimated tokens.
//
// Content that fits in one chunk is returned whole at position 0. Longer content is split
// into paragraphs, then sentences, then words for sentences that are too long on their own,
// and the pieces are packed greedily. Every chunk after the first starts with the trailing
// words of the previous chunk (OverlapPercent of MaxTokens), and its Pos is the byte offset
// in content where that overlap begins.
func Chunk(docID, content string, opts Options) []models.Chunk {
	opts = opts.normalize()
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}
	if tokens := EstimateTokens(trimmed); tokens <= opts.MaxTokens {
		return []models.Chunk{{Hash: docID, Seq: 0, Pos: 0, Text: trimmed, Tokens: tokens}}
	}

	b := &builder{
		docID:         docID,
		maxTokens:     opts.MaxTokens,
		overlapTokens: int(opts.OverlapPercent * float64(opts.MaxTokens)),
	}
	for _, para := range splitParagraphs(content) {
		first := true
		for _, sentence := range splitSentences(para) {
			pieces := []span{sentence}
			if EstimateTokens(sentence.text) > opts.MaxTokens {
				pieces = splitOversized(sentence, opts.MaxTokens)
			}
			for _, p := range pieces {
				b.add(newSegment(p, first))
				first = false
			}
		}
	}
	b.close()
	return b.chunks
}

// ChunkBatch chunks each document independently, keyed by document id.
func ChunkBatch(docs map[string]string, opts Options) map[string][]models.Chunk {
	out := make(map[string][]models.Chunk, len(docs))
	for id, content := range docs {
		out[id] = Chunk(id, content, opts)
	}
	return out
}

// segment is a unit of packing. words keeps the original offsets of each word so overlap
// text built from a chunk can still be located in the source content.
type segment struct {
	text      string
	pos       int
	paraStart bool
	tokens    int
	words     []span
}

func newSegment(s span, paraStart bool) segment {
	return segment{
		text:      s.text,
		pos:       s.pos,
		paraStart: paraStart,
		tokens:    EstimateTokens(s.text),
		words:     splitWords(s),
	}
}

type builder struct {
	docID         string
	maxTokens     int
	overlapTokens int

	chunks []models.Chunk
	parts  []segment
	tokens int
}

func (b *builder) add(s segment) {
	if len(b.parts) > 0 && b.tokens+s.tokens > b.maxTokens {
		closed := b.close()
		if ov, ok := b.overlap(closed); ok && ov.tokens+s.tokens <= b.maxTokens {
			b.parts = append(b.parts, ov)
			b.tokens = ov.tokens
		}
	}
	b.parts = append(b.parts, s)
	b.tokens += s.tokens
}

// close records the pending parts as a chunk and returns them.
func (b *builder) close() []segment {
	if len(b.parts) == 0 {
		return nil
	}
	var sb strings.Builder
	for i, p := range b.parts {
		if i > 0 {
			if p.paraStart {
				sb.WriteString("\n\n")
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(p.text)
	}
	text := sb.String()
	b.chunks = append(b.chunks, models.Chunk{
		Hash:   b.docID,
		Seq:    len(b.chunks),
		Pos:    b.parts[0].pos,
		Text:   text,
		Tokens: EstimateTokens(text),
	})
	closed := b.parts
	b.parts, b.tokens = nil, 0
	return closed
}

// overlap collects whole words from the end of closed while they fit the overlap budget.
func (b *builder) overlap(closed []segment) (segment, bool) {
	if b.overlapTokens <= 0 {
		return segment{}, false
	}
	var words []span
	for _, p := range closed {
		words = append(words, p.words...)
	}
	start := len(words)
	used := 0
	for i := len(words) - 1; i >= 0; i-- {
		wt := EstimateTokens(words[i].text)
		if used+wt > b.overlapTokens {
			break
		}
		used += wt
		start = i
	}
	if start == len(words) {
		return segment{}, false
	}
	tail := words[start:]
	parts := make([]string, len(tail))
	for i, w := range tail {
		parts[i] = w.text
	}
	text := strings.Join(parts, " ")
	return segment{
		text:   text,
		pos:    tail[0].pos,
		tokens: EstimateTokens(text),
		words:  tail,
	}, true
}
