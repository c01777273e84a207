package extract

import (
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractHTML converts a cached web page to plain text, dropping chrome
// elements so only article content survives.
func extractHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open html: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, nav, header, footer, aside").Remove()

	var parts []string
	doc.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})

	if len(parts) == 0 {
		// No semantic markup; fall back to the whole body.
		return strings.TrimSpace(doc.Find("body").Text()), nil
	}
	return strings.Join(parts, "\n\n"), nil
}
