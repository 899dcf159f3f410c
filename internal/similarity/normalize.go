// Package similarity implements title normalization, similarity scoring,
// and the duplicate gate used for project title submissions.
package similarity

import (
	"strings"
	"unicode"
)

// minTokenLength is the corpus-comparison tokenization policy: words shorter
// than this carry almost no signal in a title and are dropped before scoring.
const minTokenLength = 3

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "of": {}, "and": {}, "using": {},
	"for": {}, "in": {}, "on": {}, "at": {}, "to": {}, "with": {}, "by": {},
	"from": {}, "into": {}, "through": {}, "during": {}, "before": {},
	"after": {}, "above": {}, "below": {}, "up": {}, "down": {}, "out": {},
	"off": {}, "over": {}, "under": {}, "again": {}, "further": {},
	"then": {}, "once": {},
}

// Normalize lowercases the input, replaces every non-alphanumeric character
// with a space, collapses whitespace runs, and trims the ends. Letters and
// digits outside ASCII count as alphanumeric so accented titles keep their
// words intact.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Tokenize splits normalized text on whitespace and drops tokens shorter
// than minLength. Empty input yields an empty slice.
func Tokenize(normalized string, minLength int) []string {
	fields := strings.Fields(normalized)
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if len(field) >= minLength {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

// RemoveStopWords drops common connectives from the token list. Stop-word
// removal is advisory: if it would empty the set (short titles made entirely
// of stop words), the pre-filter tokens are returned so scoring never runs
// against an empty set.
func RemoveStopWords(tokens []string) []string {
	filtered := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, ok := stopWords[token]; !ok {
			filtered = append(filtered, token)
		}
	}
	if len(filtered) == 0 {
		return tokens
	}
	return filtered
}

// prepareTokens applies the full normalization pipeline used for corpus
// comparisons: normalize, tokenize at the policy minimum length, strip
// stop words.
func prepareTokens(text string) []string {
	return RemoveStopWords(Tokenize(Normalize(text), minTokenLength))
}

// prepareString is the character-level counterpart used by the edit-distance
// scorer: the prepared tokens rejoined with single spaces.
func prepareString(text string) string {
	return strings.Join(prepareTokens(text), " ")
}
