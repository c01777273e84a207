package lang

import (
	"regexp"
	"sort"
)

// numberPattern matches integers, decimals, scientific notation,
// percentages and numbers with common measurement suffixes. Statistics in
// a translation must survive verbatim, so extraction is deliberately
// literal: "0.05" and "0,05" are different tokens.
var numberPattern = regexp.MustCompile(`\b\d+(?:[.,]\d+)?(?:[eE][+-]?\d+)?(?:%|mg|kg|cm|mm|ml|g)?`)

// Numbers returns the sorted, de-duplicated numeric tokens found in text.
func Numbers(text string) []string {
	matches := numberPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// DiffNumbers returns the numeric tokens present in source but absent from
// target, and those present in target but absent from source.
func DiffNumbers(source, target string) (missing, added []string) {
	srcSet := toSet(Numbers(source)...)
	tgtSet := toSet(Numbers(target)...)
	for _, n := range Numbers(source) {
		if _, ok := tgtSet[n]; !ok {
			missing = append(missing, n)
		}
	}
	for _, n := range Numbers(target) {
		if _, ok := srcSet[n]; !ok {
			added = append(added, n)
		}
	}
	return missing, added
}
