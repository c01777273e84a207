// Package chunker splits extracted article text into bounded, ordered
// segments for sequential delivery. Splits happen on paragraph boundaries
// so a translator always receives whole paragraphs; oversized paragraphs
// are pre-split at a sentence boundary so no single delivered unit is
// enormous regardless of source formatting.
//
// Chunking is deterministic: identical input always yields identical
// chunk boundaries, which is what makes re-delivery idempotent.
package chunker

import (
	"regexp"
	"strings"

	"github.com/valpere/transpipe/internal/lang"
)

const (
	// DefaultTargetParagraphs is the number of paragraphs grouped into
	// one chunk.
	DefaultTargetParagraphs = 4
	// DefaultMaxParagraphWords is the size past which a paragraph is
	// split before grouping.
	DefaultMaxParagraphWords = 500
	// DefaultSplitAtWords is the approximate split point, in words,
	// within an oversized paragraph.
	DefaultSplitAtWords = 400
)

var paragraphSep = regexp.MustCompile(`\n[ \t]*\n`)

// Chunker groups paragraphs into delivery-sized chunks.
type Chunker struct {
	seg               *lang.Segmenter
	targetParagraphs  int
	maxParagraphWords int
	splitAtWords      int
}

// New returns a Chunker. Zero or negative sizes fall back to the defaults.
func New(seg *lang.Segmenter, targetParagraphs, maxParagraphWords, splitAtWords int) *Chunker {
	if targetParagraphs <= 0 {
		targetParagraphs = DefaultTargetParagraphs
	}
	if maxParagraphWords <= 0 {
		maxParagraphWords = DefaultMaxParagraphWords
	}
	if splitAtWords <= 0 {
		splitAtWords = DefaultSplitAtWords
	}
	return &Chunker{
		seg:               seg,
		targetParagraphs:  targetParagraphs,
		maxParagraphWords: maxParagraphWords,
		splitAtWords:      splitAtWords,
	}
}

// Split returns the ordered chunk texts for text. Empty and
// whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []string {
	var units []string
	for _, p := range paragraphSep.Split(strings.ReplaceAll(text, "\r\n", "\n"), -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(strings.Fields(p)) > c.maxParagraphWords {
			units = append(units, c.splitLongParagraph(p)...)
			continue
		}
		units = append(units, p)
	}

	var chunks []string
	for start := 0; start < len(units); start += c.targetParagraphs {
		end := start + c.targetParagraphs
		if end > len(units) {
			end = len(units)
		}
		chunks = append(chunks, strings.Join(units[start:end], "\n\n"))
	}
	return chunks
}

// splitLongParagraph cuts a paragraph into pieces at sentence boundaries,
// closing each piece once it reaches the configured word mark. A
// paragraph with no detectable sentence boundary is kept whole rather
// than cut mid-sentence.
func (c *Chunker) splitLongParagraph(paragraph string) []string {
	sents := c.seg.Sentences(paragraph)
	if len(sents) < 2 {
		return []string{paragraph}
	}

	var pieces []string
	var current []string
	words := 0
	for _, s := range sents {
		current = append(current, s)
		words += len(strings.Fields(s))
		if words >= c.splitAtWords {
			pieces = append(pieces, strings.Join(current, " "))
			current = nil
			words = 0
		}
	}
	if len(current) > 0 {
		pieces = append(pieces, strings.Join(current, " "))
	}
	return pieces
}
