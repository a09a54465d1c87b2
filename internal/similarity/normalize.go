// Package similarity scores how alike two entity names are and exposes the
// exact-match and same-location predicates used as tie-breakers.
package similarity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are trailing tokens dropped before comparing names.
var legalSuffixes = map[string]bool{
	"LLC": true, "INC": true, "INCORPORATED": true,
	"CORP": true, "CORPORATION": true,
	"CO": true, "COMPANY": true,
	"LTD": true, "LIMITED": true,
	"LP": true, "LLP": true, "PLLC": true,
	"PC": true, "PA": true, "PLC": true,
	"NA": true, "DBA": true,
}

var punctuation = strings.NewReplacer(
	",", "",
	".", "",
	"'", "",
	"\"", "",
	"&", " AND ",
	"-", " ",
	"/", " ",
	"(", " ",
	")", " ",
	"#", " ",
)

// NormalizeName standardizes an entity name for matching by:
//  1. Folding diacritics (é → e)
//  2. Converting to uppercase
//  3. Stripping punctuation (commas, periods, dashes, ampersands → AND)
//  4. Removing trailing legal suffixes (LLC, Inc, Corp, etc.)
//  5. Collapsing whitespace
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToUpper(foldDiacritics(name))
	name = punctuation.Replace(name)

	tokens := strings.Fields(name)
	for len(tokens) > 1 && (legalSuffixes[tokens[len(tokens)-1]] || tokens[len(tokens)-1] == "AND") {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// canon lowercases and collapses whitespace; used for exact comparisons.
func canon(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
