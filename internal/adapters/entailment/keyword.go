package entailment

import (
	"context"
	"strings"

	"github.com/longregen/cogexec/internal/ports"
)

// KeywordOverlap is a deterministic ports.EntailmentModel: it scores a
// (premise, hypothesis) pair by the fraction of the hypothesis's distinct
// lowercase word tokens that also occur in the premise. It has no external
// dependency, so it's used for tests and when the hosted entailment
// capability is unavailable.
type KeywordOverlap struct{}

func NewKeywordOverlap() *KeywordOverlap { return &KeywordOverlap{} }

func (k *KeywordOverlap) Score(ctx context.Context, premise, hypothesis string) (float64, error) {
	return overlapScore(premise, hypothesis), nil
}

func (k *KeywordOverlap) ScoreBatch(ctx context.Context, pairs []ports.EntailmentPair) ([]float64, error) {
	scores := make([]float64, len(pairs))
	for i, p := range pairs {
		scores[i] = overlapScore(p.Premise, p.Hypothesis)
	}
	return scores, nil
}

func overlapScore(premise, hypothesis string) float64 {
	hypWords := tokenize(hypothesis)
	if len(hypWords) == 0 {
		return 0
	}
	premiseSet := make(map[string]bool)
	for _, w := range tokenize(premise) {
		premiseSet[w] = true
	}

	seen := make(map[string]bool)
	distinct := 0
	matched := 0
	for _, w := range hypWords {
		if seen[w] {
			continue
		}
		seen[w] = true
		distinct++
		if premiseSet[w] {
			matched++
		}
	}
	if distinct == 0 {
		return 0
	}
	return float64(matched) / float64(distinct)
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 2 {
			continue // drop short stopword-like tokens ("a", "of", "is")
		}
		words = append(words, f)
	}
	return words
}
