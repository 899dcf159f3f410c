package similarity

import "math"

// JaccardWordOverlap scores two titles by word-set overlap:
// |intersection| / |union| over prepared token sets. Returns 0 when the
// union is empty.
func JaccardWordOverlap(a, b string) float64 {
	setA := tokenSet(prepareTokens(a))
	setB := tokenSet(prepareTokens(b))

	union := len(setA)
	intersection := 0
	for token := range setB {
		if _, ok := setA[token]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// LevenshteinSimilarity scores two titles by character-level edit distance
// over their prepared strings: (maxLen - distance) / maxLen. Two empty
// strings are identical, so the score is 1.
func LevenshteinSimilarity(a, b string) float64 {
	s1 := prepareString(a)
	s2 := prepareString(b)
	if s1 == "" && s2 == "" {
		return 1
	}

	distance := levenshtein(s1, s2)
	maxLen := len(s1)
	if len(s2) > maxLen {
		maxLen = len(s2)
	}
	return float64(maxLen-distance) / float64(maxLen)
}

// CosineTermFrequency scores two titles by the cosine of their
// term-frequency vectors over the shared vocabulary. Returns 0 when either
// vector has zero magnitude.
func CosineTermFrequency(a, b string) float64 {
	tokensA := prepareTokens(a)
	tokensB := prepareTokens(b)

	freqA := make(map[string]int, len(tokensA))
	for _, token := range tokensA {
		freqA[token]++
	}
	freqB := make(map[string]int, len(tokensB))
	for _, token := range tokensB {
		freqB[token]++
	}

	var dot, magA, magB float64
	for token, countA := range freqA {
		magA += float64(countA * countA)
		if countB, ok := freqB[token]; ok {
			dot += float64(countA * countB)
		}
	}
	for _, countB := range freqB {
		magB += float64(countB * countB)
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// levenshtein computes edit distance with unit insertion, deletion, and
// substitution costs using two rolling rows.
func levenshtein(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := 0; j <= len(s2); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}
