package similarity

import (
	"math"
	"sort"
	"time"
)

// TitleRecord is a previously accepted title from the corpus. The aggregator
// never mutates corpus entries and holds no state between calls, so scoring
// is safe to run concurrently across requests.
type TitleRecord struct {
	ID          string
	Title       string
	SubmittedBy string
	Department  string
	SubmittedAt time.Time
}

// Match is one ranked comparison against a corpus entry.
type Match struct {
	RecordID    string    `json:"recordId"`
	Title       string    `json:"title"`
	SubmittedBy string    `json:"submittedBy"`
	SubmittedAt time.Time `json:"submittedAt"`
	Percent     int       `json:"similarity"`
}

// Result is the aggregated outcome of scoring a candidate against a corpus.
type Result struct {
	BestMatch   string
	BestPercent int
	Ranked      []Match
}

// Score compares a candidate title against every corpus entry. The per-entry
// score is the higher of Jaccard word overlap and Levenshtein similarity:
// Jaccard catches shared vocabulary, Levenshtein catches near-identical
// phrasing. Cosine term frequency is advisory and not part of the gating
// score. Ranked results are sorted by percent descending; ties keep the
// original corpus order.
func Score(candidate string, corpus []TitleRecord) Result {
	ranked := make([]Match, 0, len(corpus))
	for _, record := range corpus {
		jaccard := JaccardWordOverlap(candidate, record.Title)
		edit := LevenshteinSimilarity(candidate, record.Title)
		score := jaccard
		if edit > score {
			score = edit
		}
		ranked = append(ranked, Match{
			RecordID:    record.ID,
			Title:       record.Title,
			SubmittedBy: record.SubmittedBy,
			SubmittedAt: record.SubmittedAt,
			Percent:     toPercent(score),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Percent > ranked[j].Percent
	})

	result := Result{Ranked: ranked}
	if len(ranked) > 0 {
		result.BestMatch = ranked[0].Title
		result.BestPercent = ranked[0].Percent
	}
	return result
}

func toPercent(score float64) int {
	return int(math.Round(score * 100))
}
