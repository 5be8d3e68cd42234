package entailment

import (
	"context"
	"testing"

	"github.com/longregen/cogexec/internal/ports"
)

func TestKeywordOverlap_Score_FullOverlap(t *testing.T) {
	k := NewKeywordOverlap()
	score, err := k.Score(context.Background(), "The weather in Paris is sunny today.", "Paris weather is sunny")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 1.0 {
		t.Errorf("expected full overlap score of 1.0, got %f", score)
	}
}

func TestKeywordOverlap_Score_NoOverlap(t *testing.T) {
	k := NewKeywordOverlap()
	score, err := k.Score(context.Background(), "The stock market closed higher today.", "Paris weather is sunny")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0 {
		t.Errorf("expected zero overlap, got %f", score)
	}
}

func TestKeywordOverlap_Score_PartialOverlap(t *testing.T) {
	k := NewKeywordOverlap()
	score, err := k.Score(context.Background(), "Paris received heavy rain overnight.", "Paris weather is sunny")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score <= 0 || score >= 1 {
		t.Errorf("expected partial overlap in (0,1), got %f", score)
	}
}

func TestKeywordOverlap_Score_EmptyHypothesis(t *testing.T) {
	k := NewKeywordOverlap()
	score, err := k.Score(context.Background(), "Some premise text.", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0 {
		t.Errorf("expected zero score for empty hypothesis, got %f", score)
	}
}

func TestKeywordOverlap_ScoreBatch_PreservesOrder(t *testing.T) {
	k := NewKeywordOverlap()
	pairs := []ports.EntailmentPair{
		{Premise: "Paris weather is sunny", Hypothesis: "Paris weather is sunny"},
		{Premise: "unrelated text entirely", Hypothesis: "Paris weather is sunny"},
	}
	scores, err := k.ScoreBatch(context.Background(), pairs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("expected 2 scores, got %d", len(scores))
	}
	if scores[0] <= scores[1] {
		t.Errorf("expected first pair to score higher than second: %v", scores)
	}
}

func TestKeywordOverlap_ScoreBatch_Empty(t *testing.T) {
	k := NewKeywordOverlap()
	scores, err := k.ScoreBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("expected empty scores, got %d", len(scores))
	}
}
