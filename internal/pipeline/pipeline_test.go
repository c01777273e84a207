package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/transpipe/internal/chunks"
	"github.com/valpere/transpipe/internal/config"
	"github.com/valpere/transpipe/internal/pipeline"
	"github.com/valpere/transpipe/internal/store"
)

const testTaxonomy = `
version: "tax-1"
method:
  empirical: {en: Empirical study, fr: Étude empirique}
  review: {en: Literature review, fr: Revue de littérature}
voice:
  researcher: {en: Researcher, fr: Chercheur}
categories:
  assessment: {en: Assessment, fr: Évaluation}
  education: {en: Education, fr: Éducation}
  family: {en: Family, fr: Famille}
cardinality:
  keywords_min: 5
  keywords_max: 15
  secondary_categories_max: 2
processing_flags:
  automated:
    blocking:
      SENTMIS: {description: Sentence count out of proportion.}
      WORDMIS: {description: Word ratio out of band.}
    warning:
      TERMMIS: {description: Glossary translation absent.}
      STATMIS: {description: Numbers differ.}
      TERMRECALL: {description: Recall thin.}
      LANGMIS: {description: Wrong language.}
  content:
    AMBIG: {description: Ambiguous passage.}
  workflow:
    QUALITY: {description: Needs extra review.}
`

const testGlossary = `
version: "glos-1"
core:
  - en: demand avoidance
    fr: évitement des demandes
  - en: anxiety
    fr: anxiété
  - en: randomized controlled trial
    fr: essai contrôlé randomisé
    abbreviation: RCT
`

const articleText = "The study examined demand avoidance in 120 autistic children. Each family completed three questionnaires.\n\n" +
	"Anxiety was measured at baseline and after 6 months. Scores fell by 18% in the intervention group.\n\n" +
	"Parents reported calmer mornings and fewer outbursts. The authors call for a randomized controlled trial."

const goodTranslation = "L'étude a examiné l'évitement des demandes chez 120 enfants autistes. Chaque famille a rempli trois questionnaires.\n\n" +
	"L'anxiété a été mesurée au départ puis après 6 mois. Les scores ont baissé de 18% dans le groupe d'intervention.\n\n" +
	"Les parents ont rapporté des matinées plus calmes et moins de crises. Les auteurs demandent un essai contrôlé randomisé."

func newPipeline(t *testing.T) (*pipeline.Pipeline, *store.Store, string) {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	cacheDir := filepath.Join(root, "cache")
	for _, dir := range []string{dataDir, cacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dataDir, "taxonomy.yaml"), []byte(testTaxonomy), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "glossary.yaml"), []byte(testGlossary), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Database: config.DatabaseConfig{Path: filepath.Join(root, "test.db")},
		Dirs:     config.DirsConfig{Cache: cacheDir},
		Data: config.DataConfig{
			Taxonomy: filepath.Join(dataDir, "taxonomy.yaml"),
			Glossary: filepath.Join(dataDir, "glossary.yaml"),
		},
		Langs: config.LanguageConfig{Source: "en", Target: "fr"},
		Chunks: config.ChunkConfig{
			TargetParagraphs:  1,
			MaxParagraphWords: 500,
			SplitAtWords:      400,
			CacheTTL:          time.Hour,
		},
		Quality: config.QualityConfig{
			WordRatioMin:        0.9,
			WordRatioMax:        1.5,
			TermRecallMin:       0.7,
			TargetAbbreviations: []string{"p. ex", "p", "ex", "cf"},
		},
		Session: config.SessionConfig{DefaultInterval: 5},
		Tokens:  config.TokenConfig{TTL: 30 * time.Minute},
	}

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	pipe, err := pipeline.New(cfg, st, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}
	return pipe, st, cacheDir
}

func addCachedArticle(t *testing.T, st *store.Store, cacheDir, id string) {
	t.Helper()
	if err := st.AddArticle(context.Background(), &store.Article{ID: id, Title: "Demand avoidance study"}); err != nil {
		t.Fatalf("failed to add article: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cacheDir, id+".txt"), []byte(articleText), 0o644); err != nil {
		t.Fatalf("failed to cache article text: %v", err)
	}
}

func goodProposal(articleID string) *pipeline.Proposal {
	return &pipeline.Proposal{
		ArticleID:           articleID,
		TranslatedTitle:     "Étude sur l'évitement des demandes",
		TranslatedSummary:   "L'évitement des demandes et l'anxiété chez 120 enfants autistes.",
		TranslatedText:      goodTranslation,
		Method:              "empirical",
		Voice:               "researcher",
		PrimaryCategory:     "assessment",
		SecondaryCategories: []string{"family"},
		Keywords:            []string{"autisme", "évitement des demandes", "anxiété", "familles", "intervention"},
	}
}

func goodSaveInput(articleID, tokenID string) *pipeline.SaveInput {
	prop := goodProposal(articleID)
	return &pipeline.SaveInput{
		ArticleID:           articleID,
		Token:               tokenID,
		TranslatedTitle:     prop.TranslatedTitle,
		TranslatedSummary:   prop.TranslatedSummary,
		TranslatedText:      prop.TranslatedText,
		Method:              prop.Method,
		Voice:               prop.Voice,
		PrimaryCategory:     prop.PrimaryCategory,
		SecondaryCategories: prop.SecondaryCategories,
		Keywords:            prop.Keywords,
	}
}

func TestSelectNext_DeliversArticleAndVocabulary(t *testing.T) {
	pipe, st, _ := newPipeline(t)
	ctx := context.Background()
	if err := st.AddArticle(ctx, &store.Article{ID: "art-1", Title: "T"}); err != nil {
		t.Fatal(err)
	}

	sel, err := pipe.SelectNext(ctx)
	if err != nil {
		t.Fatalf("SelectNext failed: %v", err)
	}
	if sel.Complete || sel.PauseDue {
		t.Fatalf("unexpected selection state: %+v", sel)
	}
	if sel.Article == nil || sel.Article.ID != "art-1" {
		t.Fatalf("wrong article: %+v", sel.Article)
	}
	if sel.Article.Status != store.StatusInProgress {
		t.Errorf("selected article should be in progress, got %s", sel.Article.Status)
	}
	if sel.Taxonomy == nil || len(sel.Taxonomy.Categories) != 3 {
		t.Errorf("taxonomy summary missing or wrong: %+v", sel.Taxonomy)
	}
	if sel.GlossaryVersion != "glos-1" {
		t.Errorf("glossary version = %q", sel.GlossaryVersion)
	}
}

func TestSelectNext_CompleteWhenExhausted(t *testing.T) {
	pipe, _, _ := newPipeline(t)
	sel, err := pipe.SelectNext(context.Background())
	if err != nil {
		t.Fatalf("SelectNext failed: %v", err)
	}
	if !sel.Complete {
		t.Errorf("empty catalog should report complete: %+v", sel)
	}
}

func TestRequestChunk_SequentialIdempotentAndComplete(t *testing.T) {
	pipe, st, cacheDir := newPipeline(t)
	ctx := context.Background()
	addCachedArticle(t, st, cacheDir, "art-1")

	first, err := pipe.RequestChunk(ctx, "art-1", 0)
	if err != nil {
		t.Fatalf("RequestChunk failed: %v", err)
	}
	if first.Total != 3 {
		t.Fatalf("expected 3 chunks with one paragraph each, got %d", first.Total)
	}
	if first.Instruction == "" {
		t.Errorf("chunk should carry the translation instruction")
	}
	if _, ok := first.GlossaryTerms["demand avoidance"]; !ok {
		t.Errorf("first chunk should list its glossary terms: %v", first.GlossaryTerms)
	}

	again, err := pipe.RequestChunk(ctx, "art-1", 0)
	if err != nil {
		t.Fatalf("repeat request failed: %v", err)
	}
	if again.Text != first.Text {
		t.Errorf("re-requested chunk differs")
	}

	var parts []string
	for i := 0; i < first.Total; i++ {
		c, err := pipe.RequestChunk(ctx, "art-1", i)
		if err != nil {
			t.Fatalf("chunk %d failed: %v", i, err)
		}
		parts = append(parts, c.Text)
	}
	if strings.Join(parts, "\n\n") != articleText {
		t.Errorf("concatenated chunks do not reconstruct the article text")
	}

	done, err := pipe.RequestChunk(ctx, "art-1", first.Total)
	if err != nil {
		t.Fatalf("completion request failed: %v", err)
	}
	if !done.Complete || done.Text != "" {
		t.Fatalf("expected completion marker, got %+v", done)
	}
	if done.Extraction == nil || done.Extraction.Method != "preprocessed" {
		t.Errorf("completion should report extraction metadata: %+v", done.Extraction)
	}

	// Any overshoot past the last chunk still reports completion.
	past, err := pipe.RequestChunk(ctx, "art-1", first.Total+4)
	if err != nil {
		t.Fatalf("overshoot request failed: %v", err)
	}
	if !past.Complete || past.Text != "" {
		t.Errorf("overshoot should report completion, got %+v", past)
	}

	_, err = pipe.RequestChunk(ctx, "art-1", -1)
	if de, ok := chunks.AsError(err); !ok || de.Code != chunks.CodeBadIndex {
		t.Errorf("negative index should be BAD_INDEX, got %v", err)
	}

	// Serving the first chunk records how the text was obtained.
	a, err := st.GetArticle(ctx, "art-1")
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if a.ExtractionMethod != "preprocessed" {
		t.Errorf("extraction method not persisted: %+v", a)
	}
}

func TestRequestChunk_ErrorCodes(t *testing.T) {
	pipe, st, _ := newPipeline(t)
	ctx := context.Background()

	_, err := pipe.RequestChunk(ctx, "ghost", 0)
	if de, ok := chunks.AsError(err); !ok || de.Code != chunks.CodeArticleNotFound {
		t.Errorf("expected ARTICLE_NOT_FOUND, got %v", err)
	}

	if err := st.AddArticle(ctx, &store.Article{ID: "pay-1", Title: "T", Paywalled: true}); err != nil {
		t.Fatal(err)
	}
	_, err = pipe.RequestChunk(ctx, "pay-1", 0)
	if de, ok := chunks.AsError(err); !ok || de.Code != chunks.CodePaywalled {
		t.Errorf("expected PAYWALLED, got %v", err)
	}

	if err := st.AddArticle(ctx, &store.Article{ID: "url-1", Title: "T", SourceURL: "https://example.org/a"}); err != nil {
		t.Fatal(err)
	}
	_, err = pipe.RequestChunk(ctx, "url-1", 0)
	if de, ok := chunks.AsError(err); !ok || de.Code != chunks.CodeNotCached {
		t.Errorf("expected NOT_CACHED, got %v", err)
	}

	if err := st.AddArticle(ctx, &store.Article{ID: "bare-1", Title: "T"}); err != nil {
		t.Fatal(err)
	}
	_, err = pipe.RequestChunk(ctx, "bare-1", 0)
	if de, ok := chunks.AsError(err); !ok || de.Code != chunks.CodeNoSource {
		t.Errorf("expected NO_SOURCE, got %v", err)
	}
}

func TestValidate_SuggestsOnTruncatedIdentifier(t *testing.T) {
	pipe, st, cacheDir := newPipeline(t)
	ctx := context.Background()
	addCachedArticle(t, st, cacheDir, "art-1")

	prop := goodProposal("art-1")
	prop.Method = "emp"
	result, err := pipe.Validate(ctx, prop)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.Valid || result.Token != nil {
		t.Fatalf("invalid proposal must not yield a token")
	}
	found := false
	for _, fe := range result.Errors {
		if fe.Field == "method" && strings.Contains(fe.Message, "empirical") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a did-you-mean hint, got %+v", result.Errors)
	}
}

func TestValidate_CardinalityRules(t *testing.T) {
	pipe, st, cacheDir := newPipeline(t)
	ctx := context.Background()
	addCachedArticle(t, st, cacheDir, "art-1")

	prop := goodProposal("art-1")
	prop.SecondaryCategories = []string{"family", "education", "assessment"}
	result, err := pipe.Validate(ctx, prop)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.Valid {
		t.Errorf("three secondary categories should be rejected")
	}

	prop = goodProposal("art-1")
	prop.SecondaryCategories = []string{"assessment"} // duplicates primary
	if result, _ = pipe.Validate(ctx, prop); result.Valid {
		t.Errorf("secondary duplicating primary should be rejected")
	}

	prop = goodProposal("art-1")
	prop.Keywords = []string{"too", "few"}
	if result, _ = pipe.Validate(ctx, prop); result.Valid {
		t.Errorf("two keywords should be rejected")
	}
}

func TestSaveFlow_EndToEnd(t *testing.T) {
	pipe, st, cacheDir := newPipeline(t)
	ctx := context.Background()
	addCachedArticle(t, st, cacheDir, "art-1")

	if _, err := pipe.SelectNext(ctx); err != nil {
		t.Fatalf("SelectNext failed: %v", err)
	}

	result, err := pipe.Validate(ctx, goodProposal("art-1"))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !result.Valid || result.Token == nil {
		t.Fatalf("proposal should validate: %+v", result.Errors)
	}

	in := goodSaveInput("art-1", result.Token.ID)
	in.Flags = []store.FlagRecord{{Code: "AMBIG", Detail: "paragraph two reading"}}

	// An unknown flag code fails before anything else.
	bad := *in
	bad.Flags = []store.FlagRecord{{Code: "NOPE"}}
	res, err := pipe.Save(ctx, &bad)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if res.Saved || res.Code != pipeline.CodeInvalidFlags {
		t.Fatalf("expected INVALID_FLAGS, got %+v", res)
	}

	// A token that was never minted fails the token check.
	bad = *in
	bad.Token = "01ARZ3NDEKTSV4RRFFQ69G5FAV"
	res, err = pipe.Save(ctx, &bad)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if res.Saved || res.Code != pipeline.CodeInvalidToken {
		t.Fatalf("expected INVALID_TOKEN, got %+v", res)
	}

	// The real save goes through.
	res, err = pipe.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !res.Saved {
		t.Fatalf("save rejected: code=%s errors=%+v report=%+v", res.Code, res.Errors, res.Report)
	}
	if res.Session == nil || res.Session.SessionsCompleted != 1 {
		t.Errorf("session counter not incremented: %+v", res.Session)
	}

	a, _ := st.GetArticle(ctx, "art-1")
	if a.Status != store.StatusTranslated {
		t.Errorf("article status = %s", a.Status)
	}
	tr, err := st.GetTranslation(ctx, "art-1", "fr")
	if err != nil {
		t.Fatalf("GetTranslation failed: %v", err)
	}
	if tr.GlossaryVersion != "glos-1" {
		t.Errorf("glossary version not recorded: %q", tr.GlossaryVersion)
	}

	// The token is single use.
	res, err = pipe.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if res.Saved || res.Code != pipeline.CodeInvalidToken {
		t.Fatalf("expected INVALID_TOKEN on reuse, got %+v", res)
	}

	pr, err := pipe.Progress(ctx)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if pr.Translated != 1 || pr.Total != 1 {
		t.Errorf("unexpected progress: %+v", pr)
	}
}

func TestSave_QualityRejectionKeepsTokenAndEscalates(t *testing.T) {
	pipe, st, cacheDir := newPipeline(t)
	ctx := context.Background()
	addCachedArticle(t, st, cacheDir, "art-1")

	// Drastically condensed: one sentence against six.
	condensed := "L'étude sur l'évitement des demandes chez 120 enfants autistes a montré une baisse d'anxiété de 18% après 6 mois et recommande un essai contrôlé randomisé."

	prop := goodProposal("art-1")
	prop.TranslatedText = condensed
	result, err := pipe.Validate(ctx, prop)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !result.Valid {
		t.Fatalf("classification should validate: %+v", result.Errors)
	}

	in := goodSaveInput("art-1", result.Token.ID)
	in.TranslatedText = condensed

	res, err := pipe.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if res.Saved || res.Code != pipeline.CodeQualityRejected {
		t.Fatalf("expected QUALITY_REJECTED, got %+v", res)
	}
	if res.SkipRequired {
		t.Errorf("first rejection must not demand a skip")
	}
	if res.Report == nil || len(res.Report.BlockingCodes()) == 0 {
		t.Fatalf("rejection should carry the report: %+v", res.Report)
	}

	// Resubmitting the same failure: the token survived the rejection,
	// but the agent is told to stop retrying.
	res, err = pipe.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if res.Code != pipeline.CodeQualityRejected {
		t.Fatalf("token should survive a quality rejection, got %+v", res)
	}
	if !res.SkipRequired {
		t.Errorf("repeated identical rejection should demand a skip")
	}
}

func TestValidate_RequiresTranslatedTitle(t *testing.T) {
	pipe, st, cacheDir := newPipeline(t)
	ctx := context.Background()
	addCachedArticle(t, st, cacheDir, "art-1")

	prop := goodProposal("art-1")
	prop.TranslatedTitle = "  "
	result, err := pipe.Validate(ctx, prop)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.Valid {
		t.Fatalf("proposal without a title should be rejected")
	}
	found := false
	for _, fe := range result.Errors {
		if fe.Field == "translated_title" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a translated_title error, got %+v", result.Errors)
	}
}

func TestSave_TokenBoundToClassification(t *testing.T) {
	pipe, st, cacheDir := newPipeline(t)
	ctx := context.Background()
	addCachedArticle(t, st, cacheDir, "art-1")

	result, err := pipe.Validate(ctx, goodProposal("art-1"))
	if err != nil || !result.Valid {
		t.Fatalf("Validate failed: %v %+v", err, result)
	}

	// Changing the classification after validation invalidates the
	// token, even though the substitute value is itself legal.
	in := goodSaveInput("art-1", result.Token.ID)
	in.Method = "review"
	res, err := pipe.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if res.Saved || res.Code != pipeline.CodeInvalidToken {
		t.Fatalf("expected INVALID_TOKEN for an edited classification, got %+v", res)
	}

	// So does an edited title.
	in = goodSaveInput("art-1", result.Token.ID)
	in.TranslatedTitle = "Autre titre"
	res, err = pipe.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if res.Saved || res.Code != pipeline.CodeInvalidToken {
		t.Fatalf("expected INVALID_TOKEN for an edited title, got %+v", res)
	}

	// The untouched submission still goes through.
	res, err = pipe.Save(ctx, goodSaveInput("art-1", result.Token.ID))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !res.Saved {
		t.Fatalf("unchanged submission rejected: %+v", res)
	}
}

func TestSave_RecurringBlockingCodeRequiresSkip(t *testing.T) {
	pipe, st, cacheDir := newPipeline(t)
	ctx := context.Background()
	addCachedArticle(t, st, cacheDir, "art-1")

	// Six sentences like the source, but too few words.
	thin := "L'étude a examiné l'évitement des demandes chez 120 enfants autistes. " +
		"Chaque famille a rempli trois questionnaires. " +
		"L'anxiété a baissé de 18% après 6 mois. " +
		"Les matins étaient plus calmes. " +
		"Les crises ont diminué. " +
		"Un essai contrôlé randomisé est demandé."

	prop := goodProposal("art-1")
	prop.TranslatedText = thin
	result, err := pipe.Validate(ctx, prop)
	if err != nil || !result.Valid {
		t.Fatalf("Validate failed: %v %+v", err, result)
	}
	in := goodSaveInput("art-1", result.Token.ID)
	in.TranslatedText = thin
	res, err := pipe.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if res.Code != pipeline.CodeQualityRejected || res.SkipRequired {
		t.Fatalf("expected a first rejection without a skip demand, got %+v", res)
	}
	codes := res.Report.BlockingCodes()
	if len(codes) != 1 || codes[0] != "WORDMIS" {
		t.Fatalf("expected only WORDMIS to block, got %v", codes)
	}

	// The retry fixes nothing and condenses further. It raises a new
	// code alongside the old one, but the recurrence alone means the
	// agent is not converging.
	condensed := "L'étude sur l'évitement des demandes chez 120 enfants autistes a montré une baisse d'anxiété de 18% après 6 mois et recommande un essai contrôlé randomisé."
	prop = goodProposal("art-1")
	prop.TranslatedText = condensed
	result, err = pipe.Validate(ctx, prop)
	if err != nil || !result.Valid {
		t.Fatalf("Validate failed: %v %+v", err, result)
	}
	in = goodSaveInput("art-1", result.Token.ID)
	in.TranslatedText = condensed
	res, err = pipe.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if res.Code != pipeline.CodeQualityRejected {
		t.Fatalf("expected QUALITY_REJECTED, got %+v", res)
	}
	if !res.SkipRequired {
		t.Errorf("a recurring blocking code should demand a skip: %v", res.Report.BlockingCodes())
	}
}

func TestSave_PaywalledTitleOnly(t *testing.T) {
	pipe, st, _ := newPipeline(t)
	ctx := context.Background()
	if err := st.AddArticle(ctx, &store.Article{ID: "pay-1", Title: "Paywalled study", Paywalled: true}); err != nil {
		t.Fatal(err)
	}

	// Submitting a body without any source text to gate it against is
	// rejected outright.
	prop := goodProposal("pay-1")
	result, err := pipe.Validate(ctx, prop)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.Valid {
		t.Fatalf("a body with no gateable source should not validate")
	}

	prop.TranslatedText = ""
	result, err = pipe.Validate(ctx, prop)
	if err != nil || !result.Valid {
		t.Fatalf("title-only proposal should validate: %v %+v", err, result)
	}

	in := goodSaveInput("pay-1", result.Token.ID)
	in.TranslatedText = ""
	res, err := pipe.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !res.Saved {
		t.Fatalf("title-only save rejected: %+v", res)
	}
	if res.Report != nil {
		t.Errorf("no quality report expected without source text: %+v", res.Report)
	}

	tr, err := st.GetTranslation(ctx, "pay-1", "fr")
	if err != nil {
		t.Fatalf("GetTranslation failed: %v", err)
	}
	if tr.TranslatedTitle == "" || tr.TranslatedSummary == "" {
		t.Errorf("title and summary should be stored: %+v", tr)
	}
	if tr.TranslatedText != "" {
		t.Errorf("no body should be stored, got %q", tr.TranslatedText)
	}
	if !strings.Contains(tr.Flags, "PAYWALL") {
		t.Errorf("saved flags should record the paywall: %s", tr.Flags)
	}
}

func TestSkip_RecordsFlagAndReason(t *testing.T) {
	pipe, st, cacheDir := newPipeline(t)
	ctx := context.Background()
	addCachedArticle(t, st, cacheDir, "art-1")

	if err := pipe.Skip(ctx, "art-1", "BOGUS", "whatever"); err == nil {
		t.Errorf("a flag code outside the taxonomy should be rejected")
	}
	if err := pipe.Skip(ctx, "art-1", "", "whatever"); err == nil {
		t.Errorf("empty flag code should be rejected")
	}
	if err := pipe.Skip(ctx, "art-1", "QUALITY", ""); err == nil {
		t.Errorf("empty skip reason should be rejected")
	}

	if err := pipe.Skip(ctx, "art-1", "QUALITY", "terminology too specialized"); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	a, _ := st.GetArticle(ctx, "art-1")
	if a.Status != store.StatusSkipped || a.SkipFlag != "QUALITY" || a.SkipReason != "terminology too specialized" {
		t.Errorf("unexpected article state: %+v", a)
	}
}

func TestSessionPause_BlocksSelectionUntilReset(t *testing.T) {
	pipe, st, cacheDir := newPipeline(t)
	ctx := context.Background()
	addCachedArticle(t, st, cacheDir, "art-1")
	addCachedArticle(t, st, cacheDir, "art-2")

	if err := pipe.SetReviewInterval(ctx, 1); err != nil {
		t.Fatalf("SetReviewInterval failed: %v", err)
	}

	result, err := pipe.Validate(ctx, goodProposal("art-1"))
	if err != nil || !result.Valid {
		t.Fatalf("Validate failed: %v %+v", err, result)
	}
	res, err := pipe.Save(ctx, goodSaveInput("art-1", result.Token.ID))
	if err != nil || !res.Saved {
		t.Fatalf("save failed: %v %+v", err, res)
	}
	if res.Session == nil || !res.Session.PauseDue {
		t.Fatalf("pause should be due at interval 1: %+v", res.Session)
	}

	sel, err := pipe.SelectNext(ctx)
	if err != nil {
		t.Fatalf("SelectNext failed: %v", err)
	}
	if !sel.PauseDue || sel.Article != nil {
		t.Fatalf("selection should withhold work during a pause: %+v", sel)
	}

	if _, err := pipe.ResetSession(ctx); err != nil {
		t.Fatalf("ResetSession failed: %v", err)
	}
	sel, err = pipe.SelectNext(ctx)
	if err != nil {
		t.Fatalf("SelectNext failed: %v", err)
	}
	if sel.PauseDue || sel.Article == nil {
		t.Fatalf("work should resume after reset: %+v", sel)
	}
}
