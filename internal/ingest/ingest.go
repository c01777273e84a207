// Package ingest registers new articles from a directory of dropped-in
// PDFs. Each file becomes a pending catalog entry, its text source is
// placed in the document cache under the article id, and the original
// moves to the processed directory so a rerun never double-registers.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/valpere/transpipe/internal/store"
)

// Report summarizes one intake run.
type Report struct {
	Ingested []string `json:"ingested"`
	Skipped  []string `json:"skipped,omitempty"`
}

// Ingestor scans the intake directory and registers articles.
type Ingestor struct {
	st        *store.Store
	intake    string
	cache     string
	processed string
	log       *zap.Logger
}

// New returns an Ingestor over the given directories.
func New(st *store.Store, intakeDir, cacheDir, processedDir string, log *zap.Logger) *Ingestor {
	return &Ingestor{st: st, intake: intakeDir, cache: cacheDir, processed: processedDir, log: log}
}

// Run ingests every PDF in the intake directory. A file whose derived id
// already exists in the catalog is skipped and left in place for manual
// attention.
func (i *Ingestor) Run(ctx context.Context) (*Report, error) {
	entries, err := os.ReadDir(i.intake)
	if err != nil {
		if os.IsNotExist(err) {
			return &Report{}, nil
		}
		return nil, fmt.Errorf("failed to read intake directory: %w", err)
	}

	report := &Report{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		name := entry.Name()
		if err := i.ingestFile(ctx, name); err != nil {
			i.log.Warn("intake file skipped",
				zap.String("file", name),
				zap.Error(err))
			report.Skipped = append(report.Skipped, name)
			continue
		}
		report.Ingested = append(report.Ingested, name)
	}
	return report, nil
}

func (i *Ingestor) ingestFile(ctx context.Context, name string) error {
	id := Slugify(strings.TrimSuffix(name, filepath.Ext(name)))
	if id == "" {
		return fmt.Errorf("filename %q yields an empty article id", name)
	}
	if _, err := i.st.GetArticle(ctx, id); err == nil {
		return fmt.Errorf("article %s already exists", id)
	}

	src := filepath.Join(i.intake, name)
	title, doi := firstPageMetadata(src)
	if title == "" {
		title = strings.TrimSuffix(name, filepath.Ext(name))
	}

	if err := os.MkdirAll(i.cache, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	content, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(i.cache, id+".pdf"), content, 0o644); err != nil {
		return fmt.Errorf("failed to cache %s: %w", name, err)
	}

	if err := i.st.AddArticle(ctx, &store.Article{ID: id, Title: title, DOI: doi}); err != nil {
		return err
	}

	if err := os.MkdirAll(i.processed, 0o755); err != nil {
		return fmt.Errorf("failed to create processed directory: %w", err)
	}
	if err := os.Rename(src, filepath.Join(i.processed, name)); err != nil {
		return fmt.Errorf("failed to move %s to processed: %w", name, err)
	}

	i.log.Info("article ingested",
		zap.String("article_id", id),
		zap.String("title", title),
		zap.String("doi", doi))
	return nil
}

var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[-._;()/:A-Za-z0-9]+`)

// firstPageMetadata pulls a title and DOI from the first page. Both are
// heuristics: the title is the longest early line that looks like prose,
// and the DOI is the first DOI-shaped token anywhere on the page. Either
// may come back empty.
func firstPageMetadata(path string) (title, doi string) {
	defer func() { recover() }() // the pdf library panics on some files

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", ""
	}
	defer f.Close()

	if r.NumPage() < 1 {
		return "", ""
	}
	page := r.Page(1)
	if page.V.IsNull() {
		return "", ""
	}
	rows, err := page.GetTextByRow()
	if err != nil {
		return "", ""
	}

	var lines []string
	for _, row := range rows {
		var parts []string
		for _, word := range row.Content {
			parts = append(parts, word.S)
		}
		if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
			lines = append(lines, line)
		}
	}

	text := strings.Join(lines, "\n")
	doi = strings.TrimRight(doiPattern.FindString(text), ".,;")

	// Journal name, running heads and author lists tend to be short;
	// the title is usually the longest of the first few lines.
	best := ""
	for n, line := range lines {
		if n >= 8 {
			break
		}
		words := len(strings.Fields(line))
		if words >= 4 && len(line) > len(best) {
			best = line
		}
	}
	return best, doi
}

// Slugify lowers a name to a filesystem- and url-safe identifier:
// lowercase letters, digits, and hyphens.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}
