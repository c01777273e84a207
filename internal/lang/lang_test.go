package lang_test

import (
	"reflect"
	"testing"

	"github.com/valpere/transpipe/internal/lang"
)

func TestSegmenter_CountsSentences(t *testing.T) {
	seg, err := lang.NewSegmenter(nil)
	if err != nil {
		t.Fatalf("failed to build segmenter: %v", err)
	}

	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"One sentence only.", 1},
		{"First sentence. Second sentence. Third one!", 3},
		{"Dr. Smith measured the effect. The result was clear.", 2},
		{"Is this a question? Yes it is.", 2},
	}
	for _, tt := range tests {
		if got := seg.Count(tt.text); got != tt.want {
			t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestSegmenter_ExtraAbbreviationsMerge(t *testing.T) {
	seg, err := lang.NewSegmenter([]string{"p. ex", "p", "ex", "cf"})
	if err != nil {
		t.Fatalf("failed to build segmenter: %v", err)
	}

	// Without the extra abbreviation "p. ex." the tokenizer would cut
	// after "ex.".
	text := "Les routines aident, p. ex. le matin avant la classe. La suite vient ensuite."
	if got := seg.Count(text); got != 2 {
		t.Errorf("expected 2 sentences, got %d: %v", got, seg.Sentences(text))
	}
}

func TestLemmatizer_EnglishAndFrench(t *testing.T) {
	lem, err := lang.NewLemmatizer()
	if err != nil {
		t.Fatalf("failed to load lemma dictionaries: %v", err)
	}

	if got := lem.Lemma("en", "studies"); got != "study" {
		t.Errorf("Lemma(en, studies) = %q, want %q", got, "study")
	}
	if got := lem.Lemma("en", "Avoided"); got != "avoid" {
		t.Errorf("Lemma(en, Avoided) = %q, want %q", got, "avoid")
	}
	// Unknown language falls through to lowercasing.
	if got := lem.Lemma("xx", "Words"); got != "words" {
		t.Errorf("Lemma(xx, Words) = %q, want %q", got, "words")
	}
}

func TestContentWords_FiltersStopwordsAndShortTokens(t *testing.T) {
	lem, err := lang.NewLemmatizer()
	if err != nil {
		t.Fatalf("failed to load lemma dictionaries: %v", err)
	}

	words := lem.ContentWords("en", "The studies are about demand avoidance and the anxiety")
	for _, banned := range []string{"the", "and", "are"} {
		if _, ok := words[banned]; ok {
			t.Errorf("stopword %q survived filtering", banned)
		}
	}
	if _, ok := words["study"]; !ok {
		t.Errorf("expected lemma %q in content words, got %v", "study", words)
	}
	if _, ok := words["anxiety"]; !ok {
		t.Errorf("expected %q in content words, got %v", "anxiety", words)
	}
}

func TestWords_HyphensKeptElisionStripped(t *testing.T) {
	got := lang.Words("Demand-avoidance affects l'enfant, clearly.")
	want := []string{"demand-avoidance", "affects", "enfant", "clearly"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words() = %v, want %v", got, want)
	}
}

func TestNumbers_ExtractsNumericTokens(t *testing.T) {
	got := lang.Numbers("The effect was d = 0.45 in 120 children (35%), dose 5mg.")
	want := []string{"0.45", "120", "35%", "5mg"}
	for _, w := range want {
		found := false
		for _, g := range got {
			if g == w {
				found = true
			}
		}
		if !found {
			t.Errorf("expected token %q in %v", w, got)
		}
	}
}

func TestDiffNumbers_ReportsBothDirections(t *testing.T) {
	missing, added := lang.DiffNumbers(
		"We recruited 120 children, p < 0.05.",
		"Nous avons recruté 102 enfants, p < 0.05.")
	if len(missing) != 1 || missing[0] != "120" {
		t.Errorf("missing = %v, want [120]", missing)
	}
	if len(added) != 1 || added[0] != "102" {
		t.Errorf("added = %v, want [102]", added)
	}
}

func TestDiffNumbers_IdenticalTextsClean(t *testing.T) {
	missing, added := lang.DiffNumbers("n = 42 and 7%", "n = 42 and 7%")
	if len(missing) != 0 || len(added) != 0 {
		t.Errorf("expected clean diff, got missing=%v added=%v", missing, added)
	}
}
