// Package quality runs quantitative checks over a proposed translation
// before it can be saved. Structural mismatches block the save; content
// advisories are recorded as warning flags for later human review.
package quality

import (
	"fmt"
	"sort"
	"strings"

	"github.com/valpere/transpipe/internal/detector"
	"github.com/valpere/transpipe/internal/glossary"
	"github.com/valpere/transpipe/internal/lang"
)

// Automated flag codes.
const (
	FlagSentenceMismatch = "SENTMIS"    // blocking: sentence count ratio out of band
	FlagWordMismatch     = "WORDMIS"    // blocking: word count ratio out of band
	FlagTermMissing      = "TERMMIS"    // warning: required glossary forms absent
	FlagStatMismatch     = "STATMIS"    // warning: numeric tokens differ
	FlagLowTermRecall    = "TERMRECALL" // warning: expected terminology vocabulary thin
	FlagLanguageMismatch = "LANGMIS"    // warning: translation not in the target language
)

// Sentence count must track the source closely regardless of language
// pair; this band is not configurable.
const (
	sentenceRatioMin = 0.85
	sentenceRatioMax = 1.15
)

// minRecallTerms is the matched-term floor below which the recall check
// is statistically meaningless and is skipped.
const minRecallTerms = 3

var blockingFlags = map[string]struct{}{
	FlagSentenceMismatch: {},
	FlagWordMismatch:     {},
}

// IsBlocking reports whether code prevents a translation from being saved.
func IsBlocking(code string) bool {
	_, ok := blockingFlags[code]
	return ok
}

// Flag is one check outcome with a human-readable expected-vs-observed
// detail.
type Flag struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Report is the full outcome of the gate for one translation.
type Report struct {
	Passed          bool    `json:"passed"`
	Flags           []Flag  `json:"flags,omitempty"`
	SourceSentences int     `json:"source_sentences"`
	TargetSentences int     `json:"target_sentences"`
	SourceWords     int     `json:"source_words"`
	TargetWords     int     `json:"target_words"`
	TermRecall      float64 `json:"term_recall"`
}

// Blocking returns the flags that prevent the save.
func (r *Report) Blocking() []Flag {
	var out []Flag
	for _, f := range r.Flags {
		if IsBlocking(f.Code) {
			out = append(out, f)
		}
	}
	return out
}

// BlockingCodes returns the blocking flag codes, sorted.
func (r *Report) BlockingCodes() []string {
	var out []string
	for _, f := range r.Blocking() {
		out = append(out, f.Code)
	}
	sort.Strings(out)
	return out
}

// Gate evaluates translations against their source text.
type Gate struct {
	sourceSeg    *lang.Segmenter
	targetSeg    *lang.Segmenter
	det          *detector.Detector
	targetLang   string
	wordRatioMin float64
	wordRatioMax float64
	recallMin    float64
}

// NewGate builds a Gate. The target segmenter should carry the target
// language's abbreviations so sentence counts are comparable across the
// pair. det may be nil, which disables the language identity check.
func NewGate(sourceSeg, targetSeg *lang.Segmenter, det *detector.Detector, targetLang string, wordRatioMin, wordRatioMax, recallMin float64) *Gate {
	return &Gate{
		sourceSeg:    sourceSeg,
		targetSeg:    targetSeg,
		det:          det,
		targetLang:   targetLang,
		wordRatioMin: wordRatioMin,
		wordRatioMax: wordRatioMax,
		recallMin:    recallMin,
	}
}

// Check runs every quantitative check of translated against source,
// using gloss for the terminology checks. The report passes only when no
// blocking flag was raised.
func (g *Gate) Check(source, translated string, gloss *glossary.Glossary) *Report {
	r := &Report{
		SourceSentences: g.sourceSeg.Count(source),
		TargetSentences: g.targetSeg.Count(translated),
		SourceWords:     len(strings.Fields(source)),
		TargetWords:     len(strings.Fields(translated)),
		TermRecall:      1,
	}

	if r.SourceSentences > 0 {
		ratio := float64(r.TargetSentences) / float64(r.SourceSentences)
		if ratio < sentenceRatioMin || ratio > sentenceRatioMax {
			r.Flags = append(r.Flags, Flag{
				Code: FlagSentenceMismatch,
				Detail: fmt.Sprintf("sentence ratio %.2f outside [%.2f, %.2f]: source has %d sentences, translation has %d",
					ratio, sentenceRatioMin, sentenceRatioMax, r.SourceSentences, r.TargetSentences),
			})
		}
	}

	if r.SourceWords > 0 {
		ratio := float64(r.TargetWords) / float64(r.SourceWords)
		if ratio < g.wordRatioMin || ratio > g.wordRatioMax {
			r.Flags = append(r.Flags, Flag{
				Code: FlagWordMismatch,
				Detail: fmt.Sprintf("word ratio %.2f outside [%.2f, %.2f]: source has %d words, translation has %d",
					ratio, g.wordRatioMin, g.wordRatioMax, r.SourceWords, r.TargetWords),
			})
		}
	}

	if gloss != nil {
		if missing := gloss.Verify(source, translated); len(missing) > 0 {
			r.Flags = append(r.Flags, Flag{
				Code:   FlagTermMissing,
				Detail: fmt.Sprintf("required glossary forms absent from translation: %s", strings.Join(missing, "; ")),
			})
		}
		r.checkRecall(g, source, translated, gloss)
	}

	missing, added := lang.DiffNumbers(source, translated)
	if len(missing) > 0 || len(added) > 0 {
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, fmt.Sprintf("missing from translation: %s", strings.Join(missing, ", ")))
		}
		if len(added) > 0 {
			parts = append(parts, fmt.Sprintf("absent from source: %s", strings.Join(added, ", ")))
		}
		r.Flags = append(r.Flags, Flag{
			Code:   FlagStatMismatch,
			Detail: "numeric tokens differ; " + strings.Join(parts, "; "),
		})
	}

	if f := g.CheckLanguage(translated); f != nil {
		r.Flags = append(r.Flags, *f)
	}

	r.Passed = len(r.Blocking()) == 0
	return r
}

// CheckLanguage verifies that text reads as the target language and
// returns a warning flag when it does not. Callers use it directly for
// fields the full gate never sees, like titles on articles with no
// accessible body. Returns nil when the text passes or the detector is
// disabled.
func (g *Gate) CheckLanguage(text string) *Flag {
	if g.det == nil || g.det.DetectsAs(text, g.targetLang) {
		return nil
	}
	got, _ := g.det.DetectISO(text)
	return &Flag{
		Code:   FlagLanguageMismatch,
		Detail: fmt.Sprintf("translation identified as %q, expected %q", got, g.targetLang),
	}
}

// checkRecall measures how much of the expected glossary target
// vocabulary actually appears in the translation. The check only runs
// once enough terms matched for the number to mean anything.
func (r *Report) checkRecall(g *Gate, source, translated string, gloss *glossary.Glossary) {
	expected := gloss.ExpectedTargetLemmas(source)
	if len(expected) < minRecallTerms {
		return
	}

	lem, targetLang := gloss.TargetLemmatizer()
	observed := lem.ContentWords(targetLang, translated)

	matched := 0
	for w := range expected {
		if _, ok := observed[w]; ok {
			matched++
		}
	}
	r.TermRecall = float64(matched) / float64(len(expected))

	if r.TermRecall < g.recallMin {
		r.Flags = append(r.Flags, Flag{
			Code: FlagLowTermRecall,
			Detail: fmt.Sprintf("glossary vocabulary recall %.2f below %.2f: %d of %d expected target lemmas present",
				r.TermRecall, g.recallMin, matched, len(expected)),
		})
	}
}
