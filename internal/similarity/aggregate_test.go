package similarity

import (
	"testing"
	"time"
)

func corpusOf(titles ...string) []TitleRecord {
	records := make([]TitleRecord, 0, len(titles))
	for i, title := range titles {
		records = append(records, TitleRecord{
			ID:          string(rune('a' + i)),
			Title:       title,
			SubmittedBy: "student",
			SubmittedAt: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return records
}

func TestScoreEmptyCorpus(t *testing.T) {
	result := Score("Anything", nil)
	if result.BestMatch != "" || result.BestPercent != 0 {
		t.Fatalf("expected zero-value best match, got %q %d", result.BestMatch, result.BestPercent)
	}
	if len(result.Ranked) != 0 {
		t.Fatalf("expected no ranked results, got %d", len(result.Ranked))
	}
}

func TestScoreRankedDescending(t *testing.T) {
	result := Score("Deep Learning for Image Classification", corpusOf(
		"Compiler Design Techniques",
		"Deep Learning for Image Classification Methods",
		"Image Classification Basics",
	))
	for i := 1; i < len(result.Ranked); i++ {
		if result.Ranked[i-1].Percent < result.Ranked[i].Percent {
			t.Fatalf("ranked results not descending at %d: %v", i, result.Ranked)
		}
	}
	if result.BestMatch != "Deep Learning for Image Classification Methods" {
		t.Fatalf("unexpected best match %q", result.BestMatch)
	}
	if result.BestPercent != result.Ranked[0].Percent {
		t.Fatalf("best percent %d does not match top ranked %d", result.BestPercent, result.Ranked[0].Percent)
	}
}

func TestScoreStableTieOrder(t *testing.T) {
	// Two corpus entries with identical text score identically; the stable
	// sort must keep their original corpus order.
	corpus := []TitleRecord{
		{ID: "first", Title: "Cloud Storage Deduplication"},
		{ID: "second", Title: "Cloud Storage Deduplication"},
	}
	result := Score("Cloud Storage Encryption", corpus)
	if result.Ranked[0].Percent != result.Ranked[1].Percent {
		t.Fatalf("expected tied scores, got %d and %d", result.Ranked[0].Percent, result.Ranked[1].Percent)
	}
	if result.Ranked[0].RecordID != "first" || result.Ranked[1].RecordID != "second" {
		t.Fatalf("tie broke corpus order: %v", result.Ranked)
	}
}

func TestScoreTakesMaxOfJaccardAndLevenshtein(t *testing.T) {
	candidate := "A Study of Deep Learning for Image Classification"
	record := "A Survey of Deep Learning for Image Classification"
	jaccard := JaccardWordOverlap(candidate, record)
	edit := LevenshteinSimilarity(candidate, record)

	expected := jaccard
	if edit > expected {
		expected = edit
	}
	result := Score(candidate, corpusOf(record))
	if result.BestPercent != toPercent(expected) {
		t.Fatalf("expected max-of-scorers percent %d, got %d", toPercent(expected), result.BestPercent)
	}
}

func TestScoreRoundsToIntegerPercent(t *testing.T) {
	// 2/3 similarity must round to 67, not truncate to 66.
	result := Score("cat", corpusOf("car"))
	if result.BestPercent != 67 {
		t.Fatalf("expected rounded 67, got %d", result.BestPercent)
	}
}

func TestScoreDoesNotMutateCorpus(t *testing.T) {
	corpus := corpusOf("Original Title One", "Original Title Two")
	before := make([]TitleRecord, len(corpus))
	copy(before, corpus)

	Score("Original Title One", corpus)

	for i := range corpus {
		if corpus[i] != before[i] {
			t.Fatalf("corpus entry %d mutated: %+v", i, corpus[i])
		}
	}
}
