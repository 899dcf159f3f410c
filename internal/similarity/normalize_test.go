package similarity

import (
	"reflect"
	"testing"
)

func TestNormalizeStripsPunctuationAndCase(t *testing.T) {
	got := Normalize("  Machine-Learning: A Survey!!  ")
	want := "machine learning a survey"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	if got := Normalize(""); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
	if got := Normalize("!!! ??? ..."); got != "" {
		t.Fatalf("expected empty output for punctuation-only input, got %q", got)
	}
}

func TestNormalizeKeepsNonASCIILetters(t *testing.T) {
	got := Normalize("Café Menu Recommandation Naïve")
	want := "café menu recommandation naïve"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestNormalizeCollapsesWhitespaceRuns(t *testing.T) {
	got := Normalize("deep\t\tlearning\n\nmodels")
	if got != "deep learning models" {
		t.Fatalf("expected collapsed whitespace, got %q", got)
	}
}

func TestTokenizeDropsShortTokens(t *testing.T) {
	got := Tokenize("an iot ml system of things", 3)
	want := []string{"iot", "system", "things"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestTokenizeEmptyInput(t *testing.T) {
	if got := Tokenize("", 3); len(got) != 0 {
		t.Fatalf("expected no tokens, got %v", got)
	}
}

func TestRemoveStopWordsFilters(t *testing.T) {
	got := RemoveStopWords([]string{"the", "analysis", "of", "networks"})
	want := []string{"analysis", "networks"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRemoveStopWordsFallsBackWhenAllStopWords(t *testing.T) {
	tokens := []string{"the", "and", "for"}
	got := RemoveStopWords(tokens)
	if !reflect.DeepEqual(got, tokens) {
		t.Fatalf("expected pre-filter tokens back, got %v", got)
	}
}
