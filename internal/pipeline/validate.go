package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/valpere/transpipe/internal/taxonomy"
	"github.com/valpere/transpipe/internal/token"
)

// FieldError pinpoints one invalid field in a submission.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Proposal is a completed translation with its classification, submitted
// for validation before saving. TranslatedText is the full body; it must
// be empty for articles with no accessible source text, which save the
// title and summary only.
type Proposal struct {
	ArticleID           string   `json:"article_id"`
	TranslatedTitle     string   `json:"translated_title"`
	TranslatedSummary   string   `json:"translated_summary"`
	TranslatedText      string   `json:"translated_text"`
	Method              string   `json:"method"`
	Voice               string   `json:"voice"`
	PrimaryCategory     string   `json:"primary_category"`
	SecondaryCategories []string `json:"secondary_categories"`
	Keywords            []string `json:"keywords"`
}

// tokenPayload serializes everything a validation token vouches for:
// the translated fields and the full classification. Editing any of
// them after validation yields a different payload, so the token no
// longer matches.
func tokenPayload(prop *Proposal) string {
	fields := []string{
		prop.TranslatedTitle,
		prop.TranslatedSummary,
		prop.TranslatedText,
		prop.Method,
		prop.Voice,
		prop.PrimaryCategory,
		strings.Join(prop.SecondaryCategories, "\x1e"),
		strings.Join(prop.Keywords, "\x1e"),
	}
	return strings.Join(fields, "\x1f")
}

// ProposalResult reports validation outcome. A valid proposal carries the
// single-use token required by the save operation.
type ProposalResult struct {
	Valid  bool          `json:"valid"`
	Errors []FieldError  `json:"errors,omitempty"`
	Token  *token.Issued `json:"token,omitempty"`
}

// Validate checks a proposal's classification against the taxonomy and,
// when everything is in order, mints a validation token bound to the
// article and the full submission. Any later edit to the translated
// fields or the classification invalidates the token.
func (p *Pipeline) Validate(ctx context.Context, prop *Proposal) (*ProposalResult, error) {
	article, err := p.st.GetArticle(ctx, prop.ArticleID)
	if err != nil {
		return nil, err
	}
	titleOnly, err := p.titleOnly(article)
	if err != nil {
		return nil, err
	}

	tax, _ := p.vocabulary()
	errs := validateClassification(tax, prop, titleOnly)
	if len(errs) > 0 {
		p.log.Info("proposal rejected",
			zap.String("article_id", prop.ArticleID),
			zap.Int("errors", len(errs)))
		return &ProposalResult{Errors: errs}, nil
	}

	issued, err := p.tokens.Mint(ctx, prop.ArticleID, tokenPayload(prop))
	if err != nil {
		return nil, err
	}
	p.log.Info("proposal validated",
		zap.String("article_id", prop.ArticleID),
		zap.String("token", issued.ID),
		zap.Time("expires_at", issued.ExpiresAt))
	return &ProposalResult{Valid: true, Token: issued}, nil
}

// validateClassification applies the taxonomy's vocabulary and
// cardinality rules. Unknown identifiers that look like truncations get
// a suggestion in the error message. titleOnly relaxes the body
// requirement for articles whose source text is inaccessible, and
// forbids a body there instead, because nothing could gate it.
func validateClassification(tax *taxonomy.Taxonomy, prop *Proposal, titleOnly bool) []FieldError {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(prop.TranslatedTitle) == "" {
		add("translated_title", "translated title is required")
	}
	if titleOnly {
		if strings.TrimSpace(prop.TranslatedText) != "" {
			add("translated_text", "this article has no accessible source text; submit the translated title and summary only")
		}
	} else if strings.TrimSpace(prop.TranslatedText) == "" {
		add("translated_text", "translated text is empty")
	}

	if !tax.IsValidMethod(prop.Method) {
		add("method", "%s", unknownValue("method", prop.Method, tax.Methods()))
	}
	if !tax.IsValidVoice(prop.Voice) {
		add("voice", "%s", unknownValue("voice", prop.Voice, tax.Voices()))
	}

	if prop.PrimaryCategory == "" {
		add("primary_category", "exactly one primary category is required")
	} else if !tax.IsValidCategory(prop.PrimaryCategory) {
		add("primary_category", "%s", unknownValue("category", prop.PrimaryCategory, tax.Categories()))
	}

	card := tax.Cardinality()
	if len(prop.SecondaryCategories) > card.SecondaryCategoriesMax {
		add("secondary_categories", "at most %d secondary categories allowed, got %d",
			card.SecondaryCategoriesMax, len(prop.SecondaryCategories))
	}
	seen := make(map[string]struct{})
	for _, cat := range prop.SecondaryCategories {
		if !tax.IsValidCategory(cat) {
			add("secondary_categories", "%s", unknownValue("category", cat, tax.Categories()))
			continue
		}
		if cat == prop.PrimaryCategory {
			add("secondary_categories", "%q duplicates the primary category", cat)
		}
		if _, dup := seen[cat]; dup {
			add("secondary_categories", "%q listed twice", cat)
		}
		seen[cat] = struct{}{}
	}

	if n := len(prop.Keywords); n < card.KeywordsMin || n > card.KeywordsMax {
		add("keywords", "between %d and %d keywords required, got %d",
			card.KeywordsMin, card.KeywordsMax, n)
	}
	for _, kw := range prop.Keywords {
		if strings.TrimSpace(kw) == "" {
			add("keywords", "empty keyword")
			break
		}
	}

	return errs
}

func unknownValue(kind, value string, options []string) string {
	if hint := taxonomy.Suggest(value, options); hint != "" {
		return fmt.Sprintf("unknown %s %q, did you mean %q?", kind, value, hint)
	}
	return fmt.Sprintf("unknown %s %q, valid values: %s", kind, value, strings.Join(options, ", "))
}
