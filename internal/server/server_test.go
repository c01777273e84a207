package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/transpipe/internal/config"
	"github.com/valpere/transpipe/internal/pipeline"
	"github.com/valpere/transpipe/internal/server"
	"github.com/valpere/transpipe/internal/store"
)

const serverTaxonomy = `
version: "tax-1"
method:
  empirical: {en: Empirical study, fr: Étude empirique}
voice:
  researcher: {en: Researcher, fr: Chercheur}
categories:
  assessment: {en: Assessment, fr: Évaluation}
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

const serverGlossary = `
version: "glos-1"
core:
  - en: demand avoidance
    fr: évitement des demandes
  - en: anxiety
    fr: anxiété
`

const serverArticle = "The study examined demand avoidance in 120 autistic children. Each family completed three questionnaires.\n\n" +
	"Anxiety was measured at baseline and after 6 months. Scores fell by 18% in the intervention group."

const serverTranslation = "L'étude a examiné l'évitement des demandes chez 120 enfants autistes. Chaque famille a rempli trois questionnaires.\n\n" +
	"L'anxiété a été mesurée au départ puis après 6 mois. Les scores ont baissé de 18% dans le groupe d'intervention."

func newServer(t *testing.T) (http.Handler, *store.Store, string) {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	cacheDir := filepath.Join(root, "cache")
	for _, dir := range []string{dataDir, cacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dataDir, "taxonomy.yaml"), []byte(serverTaxonomy), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "glossary.yaml"), []byte(serverGlossary), 0o644); err != nil {
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
			TargetParagraphs:  4,
			MaxParagraphWords: 500,
			SplitAtWords:      400,
			CacheTTL:          time.Hour,
		},
		Quality: config.QualityConfig{
			WordRatioMin:  0.9,
			WordRatioMax:  1.5,
			TermRecallMin: 0.7,
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
	srv, err := server.New(pipe, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}
	return srv.Handler(), st, cacheDir
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func seedArticle(t *testing.T, st *store.Store, cacheDir, id string) {
	t.Helper()
	if err := st.AddArticle(context.Background(), &store.Article{ID: id, Title: "T"}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cacheDir, id+".txt"), []byte(serverArticle), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestHealthz(t *testing.T) {
	h, _, _ := newServer(t)
	w := do(t, h, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Errorf("missing request id header")
	}
}

func TestNext_CompleteOnEmptyCatalog(t *testing.T) {
	h, _, _ := newServer(t)
	w := do(t, h, http.MethodGet, "/v1/next", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var sel struct {
		Complete bool `json:"complete"`
	}
	decode(t, w, &sel)
	if !sel.Complete {
		t.Errorf("expected complete selection, got %s", w.Body.String())
	}
}

func TestChunkEndpoint_StatusCodes(t *testing.T) {
	h, st, cacheDir := newServer(t)
	seedArticle(t, st, cacheDir, "art-1")

	w := do(t, h, http.MethodGet, "/v1/articles/art-1/chunks/0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var chunk struct {
		Text        string `json:"text"`
		Total       int    `json:"total"`
		Instruction string `json:"instruction"`
	}
	decode(t, w, &chunk)
	if chunk.Text == "" || chunk.Instruction == "" {
		t.Errorf("incomplete chunk payload: %s", w.Body.String())
	}

	if w := do(t, h, http.MethodGet, "/v1/articles/ghost/chunks/0", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown article: status = %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/v1/articles/art-1/chunks/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("non-integer index: status = %d", w.Code)
	}

	if err := st.AddArticle(context.Background(), &store.Article{ID: "pay-1", Title: "T", Paywalled: true}); err != nil {
		t.Fatal(err)
	}
	w = do(t, h, http.MethodGet, "/v1/articles/pay-1/chunks/0", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("paywalled article: status = %d: %s", w.Code, w.Body.String())
	}
	var de struct {
		Code string `json:"code"`
	}
	decode(t, w, &de)
	if de.Code != "PAYWALLED" {
		t.Errorf("code = %q", de.Code)
	}
}

func TestValidateAndSave_FullFlow(t *testing.T) {
	h, st, cacheDir := newServer(t)
	seedArticle(t, st, cacheDir, "art-1")

	proposal := map[string]any{
		"translated_title":     "Étude sur l'évitement des demandes",
		"translated_summary":   "L'anxiété chez 120 enfants autistes.",
		"translated_text":      serverTranslation,
		"method":               "empirical",
		"voice":                "researcher",
		"primary_category":     "assessment",
		"secondary_categories": []string{"family"},
		"keywords":             []string{"autisme", "évitement des demandes", "anxiété", "familles", "intervention"},
	}

	// A bad classification is unprocessable and yields no token.
	bad := map[string]any{}
	for k, v := range proposal {
		bad[k] = v
	}
	bad["method"] = "unknown"
	w := do(t, h, http.MethodPost, "/v1/articles/art-1/validate", bad)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid proposal: status = %d: %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodPost, "/v1/articles/art-1/validate", proposal)
	if w.Code != http.StatusOK {
		t.Fatalf("validate: status = %d: %s", w.Code, w.Body.String())
	}
	var vr struct {
		Valid bool `json:"valid"`
		Token *struct {
			ID string `json:"validation_token"`
		} `json:"token"`
	}
	decode(t, w, &vr)
	if !vr.Valid || vr.Token == nil || vr.Token.ID == "" {
		t.Fatalf("no token issued: %s", w.Body.String())
	}

	save := map[string]any{}
	for k, v := range proposal {
		save[k] = v
	}
	save["validation_token"] = vr.Token.ID

	w = do(t, h, http.MethodPost, "/v1/articles/art-1/save", save)
	if w.Code != http.StatusOK {
		t.Fatalf("save: status = %d: %s", w.Code, w.Body.String())
	}
	var sr struct {
		Saved bool   `json:"saved"`
		Code  string `json:"code"`
	}
	decode(t, w, &sr)
	if !sr.Saved {
		t.Fatalf("save rejected: %s", w.Body.String())
	}

	// Replaying the same save fails on the spent token.
	w = do(t, h, http.MethodPost, "/v1/articles/art-1/save", save)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("replay: status = %d: %s", w.Code, w.Body.String())
	}
	decode(t, w, &sr)
	if sr.Code != "INVALID_TOKEN" {
		t.Errorf("replay code = %q", sr.Code)
	}

	w = do(t, h, http.MethodGet, "/v1/progress", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("progress: status = %d", w.Code)
	}
	var pr struct {
		Translated int `json:"translated"`
	}
	decode(t, w, &pr)
	if pr.Translated != 1 {
		t.Errorf("translated = %d, want 1: %s", pr.Translated, w.Body.String())
	}
}

func TestSkipEndpoint(t *testing.T) {
	h, st, cacheDir := newServer(t)
	seedArticle(t, st, cacheDir, "art-1")

	body := map[string]string{"flag_code": "QUALITY", "reason": "terminology too specialized"}
	w := do(t, h, http.MethodPost, "/v1/articles/art-1/skip", body)
	if w.Code != http.StatusOK {
		t.Fatalf("skip: status = %d: %s", w.Code, w.Body.String())
	}
	a, err := st.GetArticle(context.Background(), "art-1")
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if a.SkipFlag != "QUALITY" || a.SkipReason != "terminology too specialized" {
		t.Errorf("skip not recorded: %+v", a)
	}

	if w := do(t, h, http.MethodPost, "/v1/articles/ghost/skip", body); w.Code != http.StatusNotFound {
		t.Errorf("unknown article: status = %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/v1/articles/art-1/skip", map[string]string{"reason": "r"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing flag code: status = %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/v1/articles/art-1/skip", map[string]string{"flag_code": "QUALITY"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing reason: status = %d", w.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	h, _, _ := newServer(t)

	if w := do(t, h, http.MethodPut, "/v1/session/interval", map[string]int{"interval": 0}); w.Code != http.StatusBadRequest {
		t.Errorf("interval 0: status = %d", w.Code)
	}
	if w := do(t, h, http.MethodPut, "/v1/session/interval", map[string]int{"interval": 3}); w.Code != http.StatusOK {
		t.Errorf("interval 3: status = %d: %s", w.Code, w.Body.String())
	}

	w := do(t, h, http.MethodPost, "/v1/session/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: status = %d: %s", w.Code, w.Body.String())
	}
	var st struct {
		SessionsCompleted int `json:"sessions_completed"`
	}
	decode(t, w, &st)
	if st.SessionsCompleted != 0 {
		t.Errorf("sessions after reset = %d", st.SessionsCompleted)
	}
}
