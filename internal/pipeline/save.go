package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/valpere/transpipe/internal/chunks"
	"github.com/valpere/transpipe/internal/quality"
	"github.com/valpere/transpipe/internal/session"
	"github.com/valpere/transpipe/internal/store"
	"github.com/valpere/transpipe/internal/token"
)

// SaveInput is the final submission of a validated translation.
type SaveInput struct {
	ArticleID           string             `json:"article_id"`
	Token               string             `json:"validation_token"`
	TranslatedTitle     string             `json:"translated_title"`
	TranslatedSummary   string             `json:"translated_summary"`
	TranslatedText      string             `json:"translated_text"`
	Method              string             `json:"method"`
	Voice               string             `json:"voice"`
	PrimaryCategory     string             `json:"primary_category"`
	SecondaryCategories []string           `json:"secondary_categories"`
	Keywords            []string           `json:"keywords"`
	Flags               []store.FlagRecord `json:"flags"`
}

func (in *SaveInput) proposal() *Proposal {
	return &Proposal{
		ArticleID:           in.ArticleID,
		TranslatedTitle:     in.TranslatedTitle,
		TranslatedSummary:   in.TranslatedSummary,
		TranslatedText:      in.TranslatedText,
		Method:              in.Method,
		Voice:               in.Voice,
		PrimaryCategory:     in.PrimaryCategory,
		SecondaryCategories: in.SecondaryCategories,
		Keywords:            in.Keywords,
	}
}

// SaveResult reports the save outcome. On rejection Code names the
// failing check and, for quality rejections, Report carries the full
// measurements. SkipRequired means the quality gate rejected the same
// way twice and the agent must skip the article instead of retrying.
type SaveResult struct {
	Saved        bool            `json:"saved"`
	Code         string          `json:"code,omitempty"`
	Errors       []FieldError    `json:"errors,omitempty"`
	Report       *quality.Report `json:"report,omitempty"`
	SkipRequired bool            `json:"skip_required,omitempty"`
	Session      *session.Status `json:"session,omitempty"`
}

// Save commits a translation. The checks run in a fixed order: flag
// vocabulary, classification, token, then the quality gate; only after
// all pass does the store transaction run. A quality rejection leaves
// the token unspent so the gate's verdict costs the agent nothing but
// the retry.
func (p *Pipeline) Save(ctx context.Context, in *SaveInput) (*SaveResult, error) {
	article, err := p.st.GetArticle(ctx, in.ArticleID)
	if err != nil {
		return nil, err
	}

	tax, gloss := p.vocabulary()

	var flagErrs []FieldError
	for _, f := range in.Flags {
		if !tax.IsValidFlag(f.Code) {
			flagErrs = append(flagErrs, FieldError{
				Field:   "flags",
				Message: fmt.Sprintf("unknown flag code %q", f.Code),
			})
		}
	}
	if len(flagErrs) > 0 {
		return &SaveResult{Code: CodeInvalidFlags, Errors: flagErrs}, nil
	}

	// Paywalled articles with no cached copy go through on the
	// title-only path: there is no source text to gate against.
	titleOnly, err := p.titleOnly(article)
	if err != nil {
		return nil, err
	}

	prop := in.proposal()
	if errs := validateClassification(tax, prop, titleOnly); len(errs) > 0 {
		return &SaveResult{Code: CodeInvalidClassification, Errors: errs}, nil
	}

	if err := p.tokens.Check(ctx, in.Token, in.ArticleID, tokenPayload(prop)); err != nil {
		if isTokenError(err) {
			return &SaveResult{
				Code:   CodeInvalidToken,
				Errors: []FieldError{{Field: "validation_token", Message: err.Error()}},
			}, nil
		}
		return nil, err
	}

	var report *quality.Report
	if !titleOnly {
		source, err := p.deliv.SourceText(article)
		if err != nil {
			return nil, err
		}
		report = p.gate.Check(source, in.TranslatedText, gloss)
		if !report.Passed {
			repeat := p.recordBlocking(in.ArticleID, report.BlockingCodes())
			p.log.Warn("translation rejected by quality gate",
				zap.String("article_id", in.ArticleID),
				zap.Strings("blocking", report.BlockingCodes()),
				zap.Bool("skip_required", repeat))
			return &SaveResult{Code: CodeQualityRejected, Report: report, SkipRequired: repeat}, nil
		}
	}

	var automated []quality.Flag
	if report != nil {
		automated = report.Flags
	} else {
		automated = []quality.Flag{{Code: "PAYWALL", Detail: "no accessible full text; title-only translation"}}
		// The full gate never saw these fields; the language identity
		// check still applies to them.
		for _, text := range []string{in.TranslatedTitle, in.TranslatedSummary} {
			if text == "" {
				continue
			}
			if f := p.gate.CheckLanguage(text); f != nil {
				automated = append(automated, *f)
				break
			}
		}
	}

	req := &store.SaveRequest{
		ArticleID:           in.ArticleID,
		TargetLanguage:      p.cfg.Langs.Target,
		TranslatedTitle:     in.TranslatedTitle,
		TranslatedSummary:   in.TranslatedSummary,
		TranslatedText:      in.TranslatedText,
		GlossaryVersion:     gloss.Version(),
		Flags:               mergeFlags(in.Flags, automated),
		Method:              in.Method,
		Voice:               in.Voice,
		PrimaryCategory:     in.PrimaryCategory,
		SecondaryCategories: in.SecondaryCategories,
		Keywords:            in.Keywords,
		TokenID:             in.Token,
		Day:                 p.gov.Today(),
	}
	if err := p.st.SaveTranslated(ctx, req); err != nil {
		if errors.Is(err, store.ErrTokenSpent) {
			return &SaveResult{
				Code:   CodeInvalidToken,
				Errors: []FieldError{{Field: "validation_token", Message: err.Error()}},
			}, nil
		}
		return nil, err
	}

	p.deliv.Invalidate(in.ArticleID)
	p.clearRetryState(in.ArticleID)

	status, err := p.gov.Status(ctx)
	if err != nil {
		return nil, err
	}
	p.log.Info("translation saved",
		zap.String("article_id", in.ArticleID),
		zap.String("glossary_version", req.GlossaryVersion),
		zap.Int("flags", len(req.Flags)),
		zap.Int("sessions_completed", status.SessionsCompleted))
	return &SaveResult{Saved: true, Report: report, Session: status}, nil
}

// titleOnly reports whether an article has no accessible source text
// and must be saved with a translated title and summary only.
func (p *Pipeline) titleOnly(article *store.Article) (bool, error) {
	_, err := p.deliv.SourceText(article)
	if err == nil {
		return false, nil
	}
	if de, ok := chunks.AsError(err); ok && de.Code == chunks.CodePaywalled {
		return true, nil
	}
	return false, err
}

// mergeFlags appends the gate's automated warnings to the agent's flags,
// skipping codes the agent already reported.
func mergeFlags(submitted []store.FlagRecord, automated []quality.Flag) []store.FlagRecord {
	have := make(map[string]struct{}, len(submitted))
	out := make([]store.FlagRecord, 0, len(submitted)+len(automated))
	for _, f := range submitted {
		have[f.Code] = struct{}{}
		out = append(out, f)
	}
	for _, f := range automated {
		if _, ok := have[f.Code]; ok {
			continue
		}
		out = append(out, store.FlagRecord{Code: f.Code, Detail: f.Detail})
	}
	return out
}

func isTokenError(err error) bool {
	return errors.Is(err, token.ErrUnknown) ||
		errors.Is(err, token.ErrUsed) ||
		errors.Is(err, token.ErrExpired) ||
		errors.Is(err, token.ErrMismatch)
}
