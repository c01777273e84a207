package lang

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/aaaton/golem/v4/dicts/fr"
)

// minContentWordLen filters out short function words and fragments.
const minContentWordLen = 3

// Lemmatizer reduces words to dictionary form for the supported languages.
// Dictionaries are loaded once; reuse the instance.
type Lemmatizer struct {
	byLang map[string]*golem.Lemmatizer
}

// NewLemmatizer loads the English and French lemma dictionaries.
func NewLemmatizer() (*Lemmatizer, error) {
	enLem, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("failed to load english lemma dictionary: %w", err)
	}
	frLem, err := golem.New(fr.New())
	if err != nil {
		return nil, fmt.Errorf("failed to load french lemma dictionary: %w", err)
	}
	return &Lemmatizer{byLang: map[string]*golem.Lemmatizer{
		"en": enLem,
		"fr": frLem,
	}}, nil
}

// Lemma returns the lowercase lemma of word for the given ISO 639-1
// language, or the lowercase word itself when the language is not loaded
// or the word is unknown.
func (l *Lemmatizer) Lemma(langCode, word string) string {
	lem, ok := l.byLang[strings.ToLower(langCode)]
	if !ok {
		return strings.ToLower(word)
	}
	return lem.LemmaLower(strings.ToLower(word))
}

// ContentWords returns the set of lemmatized content words in text:
// alphabetic tokens of at least minContentWordLen runes, minus stopwords.
func (l *Lemmatizer) ContentWords(langCode, text string) map[string]struct{} {
	stop := stopwords[strings.ToLower(langCode)]
	out := make(map[string]struct{})
	for _, tok := range Words(text) {
		lemma := l.Lemma(langCode, tok)
		if len([]rune(lemma)) < minContentWordLen {
			continue
		}
		if _, isStop := stop[lemma]; isStop {
			continue
		}
		out[lemma] = struct{}{}
	}
	return out
}

// elision matches French elided articles and pronouns ("l'enfant",
// "qu'il") so the content word behind them is tokenized on its own.
var elision = regexp.MustCompile(`^(?:l|d|j|n|s|c|m|t|qu)['’]`)

// Words splits text into lowercase alphabetic tokens, keeping internal
// hyphens intact ("demand-avoidance") and stripping French elision
// prefixes ("l'évitement" tokenizes as "évitement").
func Words(text string) []string {
	var words []string
	var b strings.Builder
	flush := func() {
		w := strings.Trim(b.String(), "-'’")
		w = elision.ReplaceAllString(w, "")
		if w != "" {
			words = append(words, w)
		}
		b.Reset()
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || r == '-' || r == '\'' || r == '’' {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return words
}

// Minimal function-word lists. The glossary recall check only needs to
// keep obvious glue words out of the expected-term word sets.
var stopwords = map[string]map[string]struct{}{
	"en": toSet("the", "and", "for", "with", "that", "this", "from", "are",
		"was", "were", "have", "has", "had", "not", "but", "all", "its",
		"their", "they", "can", "may", "which", "who", "when", "where"),
	"fr": toSet("les", "des", "une", "dans", "pour", "avec", "que", "qui",
		"est", "sont", "ont", "pas", "par", "sur", "aux", "ces", "son",
		"ses", "leur", "leurs", "mais", "ainsi", "être", "avoir", "comme"),
}

func toSet(words ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}
