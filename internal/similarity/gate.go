package similarity

import "strings"

// Outcome classifies a gate decision.
type Outcome string

const (
	OutcomeAccepted               Outcome = "accepted"
	OutcomeRejectedExactDuplicate Outcome = "rejected_exact_duplicate"
	OutcomeRejectedHighSimilarity Outcome = "rejected_high_similarity"
)

// DefaultThreshold is the canonical rejection threshold in percent.
const DefaultThreshold = 60

// Decision is the result of gating a candidate title against a corpus.
type Decision struct {
	Outcome      Outcome `json:"outcome"`
	BestMatch    string  `json:"bestMatch,omitempty"`
	ScorePercent int     `json:"scorePercent"`
	Ranked       []Match `json:"ranked,omitempty"`
}

// Accepted reports whether the decision lets the submission through.
func (d Decision) Accepted() bool {
	return d.Outcome == OutcomeAccepted
}

// Gate applies the duplicate and high-similarity policy to title candidates.
// It is a pure decision function: inserting accepted titles into the corpus
// is the caller's responsibility.
type Gate struct {
	Threshold int
}

// NewGate returns a gate with the given rejection threshold; values outside
// (0, 100] fall back to DefaultThreshold.
func NewGate(threshold int) Gate {
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultThreshold
	}
	return Gate{Threshold: threshold}
}

// Evaluate decides whether a candidate title may enter the corpus. An exact
// case-insensitive, whitespace-trimmed match short-circuits to
// rejected_exact_duplicate at 100% before any scoring runs. Otherwise the
// candidate is scored against the corpus and rejected when the best score
// meets the threshold. The caller filters the corpus to the submitter's
// department before calling.
func (g Gate) Evaluate(candidate string, corpus []TitleRecord) Decision {
	trimmed := strings.TrimSpace(candidate)
	for _, record := range corpus {
		if strings.EqualFold(trimmed, strings.TrimSpace(record.Title)) {
			return Decision{
				Outcome:      OutcomeRejectedExactDuplicate,
				BestMatch:    record.Title,
				ScorePercent: 100,
			}
		}
	}

	result := Score(trimmed, corpus)
	decision := Decision{
		BestMatch:    result.BestMatch,
		ScorePercent: result.BestPercent,
		Ranked:       result.Ranked,
	}
	if result.BestPercent >= g.Threshold {
		decision.Outcome = OutcomeRejectedHighSimilarity
	} else {
		decision.Outcome = OutcomeAccepted
	}
	return decision
}
