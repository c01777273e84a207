// Package taxonomy loads the controlled classification vocabulary.
//
// The taxonomy file is the single source of truth for valid method, voice
// and category identifiers, keyword cardinalities, and the processing-flag
// vocabulary (including which flags are blocking). It is reloaded on every
// article selection so edits take effect without a restart.
package taxonomy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Term is a single vocabulary entry with localized labels.
type Term struct {
	EN         string `yaml:"en"`
	FR         string `yaml:"fr"`
	Definition string `yaml:"definition"`
}

// FlagDef describes one processing-flag code.
type FlagDef struct {
	Description string `yaml:"description"`
}

// Cardinality bounds classification field counts.
type Cardinality struct {
	KeywordsMin            int `yaml:"keywords_min"`
	KeywordsMax            int `yaml:"keywords_max"`
	SecondaryCategoriesMax int `yaml:"secondary_categories_max"`
}

type automatedFlags struct {
	Blocking map[string]FlagDef `yaml:"blocking"`
	Warning  map[string]FlagDef `yaml:"warning"`
}

type processingFlags struct {
	Automated  automatedFlags     `yaml:"automated"`
	Content    map[string]FlagDef `yaml:"content"`
	Access     map[string]FlagDef `yaml:"access"`
	Extraction map[string]FlagDef `yaml:"extraction"`
	Workflow   map[string]FlagDef `yaml:"workflow"`
}

type document struct {
	Version     string          `yaml:"version"`
	Method      map[string]Term `yaml:"method"`
	Voice       map[string]Term `yaml:"voice"`
	Categories  map[string]Term `yaml:"categories"`
	Cardinality Cardinality     `yaml:"cardinality"`
	Flags       processingFlags `yaml:"processing_flags"`
}

// Taxonomy provides validation against the loaded vocabulary.
type Taxonomy struct {
	doc document
}

// Load reads and parses a taxonomy YAML file.
func Load(path string) (*Taxonomy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy %s: %w", path, err)
	}
	if doc.Cardinality.KeywordsMin == 0 {
		doc.Cardinality.KeywordsMin = 5
	}
	if doc.Cardinality.KeywordsMax == 0 {
		doc.Cardinality.KeywordsMax = 15
	}
	if doc.Cardinality.SecondaryCategoriesMax == 0 {
		doc.Cardinality.SecondaryCategoriesMax = 2
	}
	return &Taxonomy{doc: doc}, nil
}

// Version returns the taxonomy version string.
func (t *Taxonomy) Version() string { return t.doc.Version }

// Cardinality returns the classification count bounds.
func (t *Taxonomy) Cardinality() Cardinality { return t.doc.Cardinality }

// Methods returns the valid method identifiers, sorted.
func (t *Taxonomy) Methods() []string { return sortedKeys(t.doc.Method) }

// Voices returns the valid voice identifiers, sorted.
func (t *Taxonomy) Voices() []string { return sortedKeys(t.doc.Voice) }

// Categories returns the valid category identifiers, sorted.
func (t *Taxonomy) Categories() []string { return sortedKeys(t.doc.Categories) }

func (t *Taxonomy) IsValidMethod(id string) bool {
	_, ok := t.doc.Method[id]
	return ok
}

func (t *Taxonomy) IsValidVoice(id string) bool {
	_, ok := t.doc.Voice[id]
	return ok
}

func (t *Taxonomy) IsValidCategory(id string) bool {
	_, ok := t.doc.Categories[id]
	return ok
}

// AllFlagCodes returns every flag code defined anywhere in the file, sorted.
func (t *Taxonomy) AllFlagCodes() []string {
	set := map[string]struct{}{}
	for _, m := range []map[string]FlagDef{
		t.doc.Flags.Automated.Blocking,
		t.doc.Flags.Automated.Warning,
		t.doc.Flags.Content,
		t.doc.Flags.Access,
		t.doc.Flags.Extraction,
		t.doc.Flags.Workflow,
	} {
		for code := range m {
			set[code] = struct{}{}
		}
	}
	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// IsValidFlag reports whether code exists in the flag vocabulary.
func (t *Taxonomy) IsValidFlag(code string) bool {
	for _, c := range t.AllFlagCodes() {
		if c == code {
			return true
		}
	}
	return false
}

// IsBlockingFlag reports whether code is an automated blocking flag.
func (t *Taxonomy) IsBlockingFlag(code string) bool {
	_, ok := t.doc.Flags.Automated.Blocking[code]
	return ok
}

// BlockingFlags returns the automated blocking flag codes, sorted.
func (t *Taxonomy) BlockingFlags() []string {
	return sortedKeys(t.doc.Flags.Automated.Blocking)
}

// WarningFlags returns the automated warning flag codes, sorted.
func (t *Taxonomy) WarningFlags() []string {
	return sortedKeys(t.doc.Flags.Automated.Warning)
}

// FlagDescription returns the description for a flag code, or "".
func (t *Taxonomy) FlagDescription(code string) string {
	for _, m := range []map[string]FlagDef{
		t.doc.Flags.Automated.Blocking,
		t.doc.Flags.Automated.Warning,
		t.doc.Flags.Content,
		t.doc.Flags.Access,
		t.doc.Flags.Extraction,
		t.doc.Flags.Workflow,
	} {
		if def, ok := m[code]; ok {
			return def.Description
		}
	}
	return ""
}

// LabeledTerm pairs an identifier with its target-language label.
type LabeledTerm struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Summary is the fresh vocabulary block included in every article
// selection response, so the translating agent never works from a stale
// copy of the taxonomy.
type Summary struct {
	Methods    []LabeledTerm `json:"methods"`
	Voices     []LabeledTerm `json:"voices"`
	Categories []LabeledTerm `json:"categories"`
}

// Summary builds the selection-response vocabulary block.
func (t *Taxonomy) Summary() Summary {
	return Summary{
		Methods:    labeled(t.doc.Method),
		Voices:     labeled(t.doc.Voice),
		Categories: labeled(t.doc.Categories),
	}
}

func labeled(m map[string]Term) []LabeledTerm {
	out := make([]LabeledTerm, 0, len(m))
	for _, id := range sortedKeys(m) {
		label := m[id].FR
		if label == "" {
			label = id
		}
		out = append(out, LabeledTerm{ID: id, Label: label})
	}
	return out
}

// Suggest returns a valid identifier that value looks like a prefix or
// truncation of, or "" when nothing is close. Used to build "did you mean"
// validation errors.
func Suggest(value string, options []string) string {
	lower := strings.ToLower(value)
	for _, opt := range options {
		if strings.HasPrefix(strings.ToLower(opt), lower) && lower != "" {
			return opt
		}
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
