package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDFPlain reads the PDF's content streams in document order. Fast
// and correct for single-column layouts.
func extractPDFPlain(path string) (text string, err error) {
	defer recoverExtractor(&err)

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("failed to buffer pdf text: %w", err)
	}
	return buf.String(), nil
}

// extractPDFRows reconstructs text row by row from glyph positions, which
// recovers a sane reading order on some two-column papers where the plain
// content-stream order is jumbled.
func extractPDFRows(path string) (text string, err error) {
	defer recoverExtractor(&err)

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			for j, word := range row.Content {
				if j > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(word.S)
			}
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// The pdf library panics on some malformed files; a panicking extractor
// is treated like any other failed attempt so the chain can move on.
func recoverExtractor(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("extractor panic: %v", r)
	}
}
