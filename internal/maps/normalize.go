package maps

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases a location, strips diacritics and collapses runs of
// whitespace, so "  Aeroporto   de LISBOA " and "aeroporto de lisboa" match.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// RouteKey is the lookup key for a trip between two normalized locations.
func RouteKey(pickup, dropoff string) string {
	return Normalize(pickup) + "#" + Normalize(dropoff)
}
