package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// DetectsAs reports whether text is confidently identified as the given
// ISO 639-1 language. Short or ambiguous text that cannot be identified
// is not counted against the expected language.
func (d *Detector) DetectsAs(text, isoCode string) bool {
	got, ok := d.DetectISO(text)
	if !ok {
		return true
	}
	return got == strings.ToLower(isoCode)
}
