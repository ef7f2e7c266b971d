package transform

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// stripMarks removes combining marks after canonical decomposition, so
// "Elétrica" becomes "Eletrica".
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Fold normalizes text for comparison: accents removed, lower-cased and
// whitespace collapsed. Examples: "  Energia  ELÉTRICA " → "energia eletrica".
func Fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(stripMarks(s))), " ")
}

// Tokens splits folded text into alphanumeric words.
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Slugify converts a display name to a URL-safe identifier.
// Examples: "Energia Elétrica" → "energia-eletrica", "IRPJ / CSLL" → "irpj-csll"
func Slugify(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name cannot be empty")
	}

	slug := nonAlphanumeric.ReplaceAllString(Fold(name), "-")
	slug = strings.Trim(slug, "-")

	if slug == "" {
		return "", fmt.Errorf("name %q contains no alphanumeric characters", name)
	}
	return slug, nil
}
