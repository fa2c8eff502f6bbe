package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// FoldName normalizes a region name for comparison: NFC, collapsed whitespace, and
// Unicode case folding, so "Doña Ana", "DOÑA  ANA" and the decomposed form all match.
func FoldName(s string) string {
	s = norm.NFC.String(strings.Join(strings.Fields(s), " "))
	return cases.Fold().String(s)
}
