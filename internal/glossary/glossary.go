// Package glossary loads the controlled terminology file and matches its
// terms against source and translated text.
//
// Matching tolerates case, hyphenation variants ("demand avoidance" /
// "demand-avoidance"), declared abbreviations, and simple morphological
// variants through lemmatization. Quoted source-language terms preserved
// verbatim in a translation will still be reported missing; that is left
// to human review rather than patched with quote heuristics.
package glossary

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/valpere/transpipe/internal/lang"
)

// Entry is one glossary term with its required target-language forms.
type Entry struct {
	EN           string   `yaml:"en"`
	FR           string   `yaml:"fr"`
	FRAlt        []string `yaml:"fr_alt"`
	Abbreviation string   `yaml:"abbreviation"`
	Note         string   `yaml:"note"`
	Category     string   `yaml:"-"`
}

// Translation is the target-language requirement for one matched term.
type Translation struct {
	Primary      string   `json:"primary"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// Glossary indexes the terminology file for matching and verification.
type Glossary struct {
	version string
	entries []*Entry
	index   map[string]*Entry // normalized variant -> entry
	lem     *lang.Lemmatizer
	source  string
	target  string
}

// Load reads a glossary YAML file. The file holds a version header plus
// category sections, each a list of term entries; plain-string list items
// (keep-as-is vocabulary) are skipped.
func Load(path string, lem *lang.Lemmatizer, sourceLang, targetLang string) (*Glossary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read glossary %s: %w", path, err)
	}

	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse glossary %s: %w", path, err)
	}

	g := &Glossary{
		version: "unknown",
		index:   make(map[string]*Entry),
		lem:     lem,
		source:  sourceLang,
		target:  targetLang,
	}

	sections := make([]string, 0, len(doc))
	for name := range doc {
		sections = append(sections, name)
	}
	sort.Strings(sections)

	for _, name := range sections {
		node := doc[name]
		if name == "version" {
			_ = node.Decode(&g.version)
			continue
		}
		if node.Kind != yaml.SequenceNode {
			continue
		}
		var terms []Entry
		if err := node.Decode(&terms); err != nil {
			// Section of plain strings, not term entries.
			continue
		}
		for _, e := range terms {
			if e.EN == "" {
				continue
			}
			e.Category = name
			g.add(e)
		}
	}
	return g, nil
}

func (g *Glossary) add(e Entry) {
	entry := &e
	g.entries = append(g.entries, entry)

	key := normalize(entry.EN)
	g.index[key] = entry
	if hv := hyphenVariant(key); hv != key {
		g.index[hv] = entry
	}
	if entry.Abbreviation != "" {
		g.index[normalize(entry.Abbreviation)] = entry
	}
}

// Version returns the glossary version string recorded on every saved
// translation.
func (g *Glossary) Version() string { return g.version }

// Entries returns all loaded terms.
func (g *Glossary) Entries() []*Entry { return g.entries }

// FindTerms returns the glossary terms present in text, mapped to their
// required target-language forms. Matching is word-bounded so "autism"
// never matches inside "autistic"; a lemmatized pass additionally catches
// inflected variants ("avoided demands" for "demand avoidance").
func (g *Glossary) FindTerms(text string) map[string]Translation {
	normalized := normalize(text)
	lemmatized := g.lemmaJoin(g.source, text)

	found := make(map[string]Translation)
	for variant, entry := range g.index {
		if _, ok := found[entry.EN]; ok {
			continue
		}
		if containsTerm(normalized, variant) ||
			containsLemmaPhrase(lemmatized, g.lemmaJoin(g.source, variant)) {
			found[entry.EN] = Translation{Primary: entry.FR, Alternatives: entry.FRAlt}
		}
	}
	return found
}

// Verify checks that every term matched in sourceText appears in
// translated text as its primary target form or any accepted alternative.
// The comparison is a case-insensitive substring test, repeated on
// lemmatized text to absorb inflection. Returned entries are formatted
// "source term -> target term".
func (g *Glossary) Verify(sourceText, translated string) []string {
	expected := g.FindTerms(sourceText)
	normalized := normalize(translated)
	lemmatized := g.lemmaJoin(g.target, translated)

	terms := make([]string, 0, len(expected))
	for en := range expected {
		terms = append(terms, en)
	}
	sort.Strings(terms)

	var missing []string
	for _, en := range terms {
		tr := expected[en]
		acceptable := append([]string{tr.Primary}, tr.Alternatives...)
		ok := false
		for _, form := range acceptable {
			if form == "" {
				continue
			}
			if strings.Contains(normalized, normalize(form)) ||
				containsLemmaPhrase(lemmatized, g.lemmaJoin(g.target, form)) {
				ok = true
				break
			}
		}
		if !ok {
			missing = append(missing, fmt.Sprintf("%s -> %s", en, tr.Primary))
		}
	}
	return missing
}

// ExpectedTargetLemmas returns the lemmatized content words of the primary
// target forms of every term matched in sourceText. This is the expected
// vocabulary for the recall check.
func (g *Glossary) ExpectedTargetLemmas(sourceText string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tr := range g.FindTerms(sourceText) {
		for w := range g.lem.ContentWords(g.target, tr.Primary) {
			out[w] = struct{}{}
		}
	}
	return out
}

// TargetLemmatizer exposes the lemmatizer bound to this glossary's target
// language for callers that compute recall.
func (g *Glossary) TargetLemmatizer() (*lang.Lemmatizer, string) {
	return g.lem, g.target
}

// lemmaJoin renders text as a space-bounded string of lemmas, suitable for
// phrase substring tests.
func (g *Glossary) lemmaJoin(langCode, text string) string {
	words := lang.Words(text)
	lemmas := make([]string, len(words))
	for i, w := range words {
		lemmas[i] = g.lem.Lemma(langCode, w)
	}
	return " " + strings.Join(lemmas, " ") + " "
}

func containsLemmaPhrase(haystack, phrase string) bool {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return false
	}
	return strings.Contains(haystack, " "+phrase+" ")
}

// containsTerm performs a word-bounded search for term in normalized text.
func containsTerm(text, term string) bool {
	if term == "" {
		return false
	}
	pattern := `(^|[^\p{L}\p{N}])` + regexp.QuoteMeta(term) + `($|[^\p{L}\p{N}])`
	matched, err := regexp.MatchString(pattern, text)
	return err == nil && matched
}

// normalize lowercases, NFC-normalizes, and collapses whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(s))), " ")
}

// hyphenVariant swaps spaces and hyphens to index both spellings.
func hyphenVariant(s string) string {
	if strings.Contains(s, " ") {
		return strings.ReplaceAll(s, " ", "-")
	}
	if strings.Contains(s, "-") {
		return strings.ReplaceAll(s, "-", " ")
	}
	return s
}
