package similarity

import "testing"

func TestGateEmptyCorpusAccepts(t *testing.T) {
	decision := NewGate(0).Evaluate("Any Title Whatsoever", nil)
	if decision.Outcome != OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", decision.Outcome)
	}
	if decision.ScorePercent != 0 || decision.BestMatch != "" {
		t.Fatalf("expected zero score and no best match, got %d %q", decision.ScorePercent, decision.BestMatch)
	}
}

func TestGateExactDuplicateCaseInsensitive(t *testing.T) {
	corpus := corpusOf("Machine Learning X")
	decision := NewGate(60).Evaluate("  machine learning x  ", corpus)
	if decision.Outcome != OutcomeRejectedExactDuplicate {
		t.Fatalf("expected rejected_exact_duplicate, got %s", decision.Outcome)
	}
	if decision.ScorePercent != 100 {
		t.Fatalf("expected 100%%, got %d", decision.ScorePercent)
	}
	if decision.BestMatch != "Machine Learning X" {
		t.Fatalf("expected corpus title as best match, got %q", decision.BestMatch)
	}
}

func TestGateHighSimilarityRejected(t *testing.T) {
	corpus := corpusOf("A Survey of Deep Learning for Image Classification")
	decision := NewGate(60).Evaluate("A Study of Deep Learning for Image Classification", corpus)
	if decision.Outcome != OutcomeRejectedHighSimilarity {
		t.Fatalf("expected rejected_high_similarity, got %s (score %d)", decision.Outcome, decision.ScorePercent)
	}
	if decision.ScorePercent < 60 {
		t.Fatalf("expected score >= 60, got %d", decision.ScorePercent)
	}
}

func TestGateUnrelatedTitleAccepted(t *testing.T) {
	corpus := corpusOf(
		"Sentiment Analysis of Social Media Posts",
		"Inventory Management with RFID",
		"Mobile Health Monitoring Application",
	)
	decision := NewGate(60).Evaluate("Quantum Cryptography Protocols for Secure Messaging", corpus)
	if decision.Outcome != OutcomeAccepted {
		t.Fatalf("expected accepted, got %s (best %q at %d)", decision.Outcome, decision.BestMatch, decision.ScorePercent)
	}
}

func TestGateThresholdBoundaryInclusive(t *testing.T) {
	corpus := corpusOf("cat")
	// "cat" vs "car" rounds to 67; a threshold of exactly 67 must reject.
	decision := NewGate(67).Evaluate("car", corpus)
	if decision.Outcome != OutcomeRejectedHighSimilarity {
		t.Fatalf("expected rejection at the inclusive boundary, got %s", decision.Outcome)
	}
	if decision.ScorePercent != 67 {
		t.Fatalf("expected 67, got %d", decision.ScorePercent)
	}
}

func TestGateBelowThresholdAccepted(t *testing.T) {
	corpus := corpusOf("cat")
	decision := NewGate(68).Evaluate("car", corpus)
	if decision.Outcome != OutcomeAccepted {
		t.Fatalf("expected accepted below threshold, got %s", decision.Outcome)
	}
}

func TestNewGateFallsBackToDefault(t *testing.T) {
	if gate := NewGate(-5); gate.Threshold != DefaultThreshold {
		t.Fatalf("expected default threshold, got %d", gate.Threshold)
	}
	if gate := NewGate(150); gate.Threshold != DefaultThreshold {
		t.Fatalf("expected default threshold, got %d", gate.Threshold)
	}
	if gate := NewGate(80); gate.Threshold != 80 {
		t.Fatalf("expected explicit threshold kept, got %d", gate.Threshold)
	}
}

func TestGateDecisionCarriesRankedResults(t *testing.T) {
	corpus := corpusOf(
		"Deep Learning for Image Classification",
		"Traffic Flow Prediction",
	)
	decision := NewGate(60).Evaluate("Shallow Learning for Image Classification", corpus)
	if len(decision.Ranked) != 2 {
		t.Fatalf("expected 2 ranked results, got %d", len(decision.Ranked))
	}
	if decision.Ranked[0].Percent < decision.Ranked[1].Percent {
		t.Fatalf("ranked results out of order: %v", decision.Ranked)
	}
}
