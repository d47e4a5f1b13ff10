package textutil

import (
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	tokenSplitPattern = regexp.MustCompile(`[^a-z0-9]+`)

	// copyMarkerPattern matches the suffixes file managers append when
	// duplicating: "name copy", "name (1)", "name - Copy (2)", "name-2".
	copyMarkerPattern = regexp.MustCompile(`(?i)(?:[-_ ]*copy)?[-_ ]*\(\d+\)$|[-_ ]+copy(?:[-_ ]*\d+)?$|[-_]\d$`)

	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// NormalizeFilename reduces a file name to a canonical comparison form:
// base name without extension, transliterated to ASCII, lowercased, with
// diacritics and duplicate markers removed.
func NormalizeFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if folded, _, err := transform.String(stripMarks, base); err == nil {
		base = folded
	}
	base = unidecode.Unidecode(base)
	base = strings.ToLower(strings.TrimSpace(base))
	for {
		stripped := strings.TrimSpace(copyMarkerPattern.ReplaceAllString(base, ""))
		if stripped == base || stripped == "" {
			break
		}
		base = stripped
	}
	return base
}

// FilenameSimilarity scores how alike two file names are in [0,1]. Identical
// normalized names score 1; disjoint token sets score 0.
func FilenameSimilarity(a, b string) float64 {
	na, nb := NormalizeFilename(a), NormalizeFilename(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return cosine(tokenCounts(na), tokenCounts(nb))
}

func tokenCounts(text string) map[string]float64 {
	raw := tokenSplitPattern.Split(text, -1)
	counts := make(map[string]float64, len(raw))
	for _, token := range raw {
		if token == "" {
			continue
		}
		counts[token]++
	}
	return counts
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for token, weight := range a {
		normA += weight * weight
		if other, ok := b[token]; ok {
			dot += weight * other
		}
	}
	for _, weight := range b {
		normB += weight * weight
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
