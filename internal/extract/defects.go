package extract

import "strings"

// Defect codes. Extraction quality is reported as binary usability plus
// the specific, observable defects found; there are no confidence scores.
const (
	DefectTooShort      = "TOOSHORT"      // blocking: fewer than minWords words
	DefectGarbled       = "GARBLED"       // blocking: encoding failure
	DefectColumnJumble  = "COLUMNJUMBLE"  // advisory: average line too short
	DefectNoParagraphs  = "NOPARAGRAPHS"  // advisory: structure ran together
	DefectRepeatedText  = "REPEATEDTEXT"  // advisory: duplicated blocks
	DefectNoRefsSection = "NOREFSSECTION" // advisory: long text, no references
	DefectExtractFailed = "PDFEXTRACT"    // blocking: every extractor failed
)

const (
	minWords          = 100
	garbledMaxShare   = 0.05
	minAvgLineLength  = 40.0
	minParagraphs     = 3
	paragraphCheckMin = 500  // words before NOPARAGRAPHS applies
	refsCheckMin      = 2000 // words before NOREFSSECTION applies
	repeatBlockSize   = 100
)

var blockingDefects = map[string]struct{}{
	DefectTooShort:      {},
	DefectGarbled:       {},
	DefectExtractFailed: {},
}

// IsBlockingDefect reports whether code makes an extraction unusable.
func IsBlockingDefect(code string) bool {
	_, ok := blockingDefects[code]
	return ok
}

// HasBlocking reports whether any defect in the list is blocking.
func HasBlocking(defects []string) bool {
	for _, d := range defects {
		if IsBlockingDefect(d) {
			return true
		}
	}
	return false
}

var refsMarkers = []string{"references", "bibliography", "works cited", "références", "bibliographie"}

// DetectDefects scans extracted text for observable extraction problems.
// A blocking defect short-circuits: there is no point reporting layout
// issues on text that cannot be used at all.
func DetectDefects(text string) []string {
	words := strings.Fields(text)

	if len(words) < minWords {
		return []string{DefectTooShort}
	}

	garbage := 0
	for _, r := range text {
		switch r {
		case '�', '█', '░', '▒', '▓', '\x00':
			garbage++
		}
	}
	if float64(garbage) > float64(len(text))*garbledMaxShare {
		return []string{DefectGarbled}
	}

	var defects []string

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > 0 {
		total := 0
		for _, line := range lines {
			total += len(line)
		}
		if float64(total)/float64(len(lines)) < minAvgLineLength {
			defects = append(defects, DefectColumnJumble)
		}
	}

	paragraphs := 0
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs++
		}
	}
	if paragraphs < minParagraphs && len(words) > paragraphCheckMin {
		defects = append(defects, DefectNoParagraphs)
	}

	if hasRepeatedBlocks(text) {
		defects = append(defects, DefectRepeatedText)
	}

	if len(words) > refsCheckMin {
		lower := strings.ToLower(text)
		found := false
		for _, marker := range refsMarkers {
			if strings.Contains(lower, marker) {
				found = true
				break
			}
		}
		if !found {
			defects = append(defects, DefectNoRefsSection)
		}
	}

	return defects
}

// hasRepeatedBlocks detects the header/footer duplication bug: the same
// text block appearing verbatim more than once.
func hasRepeatedBlocks(text string) bool {
	seen := make(map[string]struct{})
	for i := 0; i+repeatBlockSize < len(text); i += repeatBlockSize {
		block := strings.Join(strings.Fields(text[i:i+repeatBlockSize]), " ")
		if _, ok := seen[block]; ok {
			return true
		}
		seen[block] = struct{}{}
	}
	return false
}
