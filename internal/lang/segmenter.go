// Package lang provides the language-analysis primitives shared by the
// glossary matcher and the quality gate: sentence segmentation,
// lemmatization, content-word extraction, and numeric token extraction.
package lang

import (
	"fmt"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// Segmenter splits text into sentences using a Punkt tokenizer, which
// keeps abbreviations ("Dr. Smith") and statistical notation ("p < .05")
// inside one sentence. Additional abbreviations, typically for the target
// language, are merged in as a post-pass.
type Segmenter struct {
	tok     *sentences.DefaultSentenceTokenizer
	abbrevs []string
}

// NewSegmenter builds a Segmenter. extraAbbreviations are lowercase
// abbreviations (without the trailing period) that must never terminate a
// sentence, e.g. "p. ex" or "cf" for French.
func NewSegmenter(extraAbbreviations []string) (*Segmenter, error) {
	tok, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build sentence tokenizer: %w", err)
	}
	abbrevs := make([]string, 0, len(extraAbbreviations))
	for _, a := range extraAbbreviations {
		a = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(a)), ".")
		if a != "" {
			abbrevs = append(abbrevs, a+".")
		}
	}
	return &Segmenter{tok: tok, abbrevs: abbrevs}, nil
}

// Sentences returns the trimmed, non-empty sentences of text.
func (s *Segmenter) Sentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	raw := s.tok.Tokenize(text)
	parts := make([]string, 0, len(raw))
	for _, sent := range raw {
		t := strings.TrimSpace(sent.Text)
		if t != "" {
			parts = append(parts, t)
		}
	}
	return s.mergeAbbreviated(parts)
}

// Count returns the number of sentences in text.
func (s *Segmenter) Count(text string) int {
	return len(s.Sentences(text))
}

// mergeAbbreviated re-joins sentences that the tokenizer split after one
// of the configured extra abbreviations.
func (s *Segmenter) mergeAbbreviated(parts []string) []string {
	if len(s.abbrevs) == 0 || len(parts) < 2 {
		return parts
	}
	merged := make([]string, 0, len(parts))
	for _, part := range parts {
		if len(merged) > 0 && s.endsWithAbbrev(merged[len(merged)-1]) {
			merged[len(merged)-1] = merged[len(merged)-1] + " " + part
			continue
		}
		merged = append(merged, part)
	}
	return merged
}

func (s *Segmenter) endsWithAbbrev(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, a := range s.abbrevs {
		if strings.HasSuffix(lower, a) {
			return true
		}
	}
	return false
}
