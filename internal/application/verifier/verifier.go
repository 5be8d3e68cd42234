// Package verifier implements the post-execution checks that decide whether
// an ExecutionResult is accepted, warned-about, or blocked from surfacing:
// a fixed post-condition table plus claim/citation entailment for tools
// that produce textual claims.
package verifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/longregen/cogexec/internal/adapters/metrics"
	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

const (
	DefaultEntailmentFloor = 0.6
	DefaultCoverageBlock   = 0.5
	DefaultCoverageWarn    = 0.8
	DefaultBatchSize       = 16
)

// textualClaimTools produce free-text output subject to claim/citation
// entailment checking; other tools are skipped by the claim verifier.
var textualClaimTools = map[string]bool{
	"research": true,
	"search":   true,
}

// postCondition evaluates one tool's structural contract against its
// ExecutionResult, independent of any textual claim it may also contain.
type postCondition func(plan *models.ActionPlan, result *models.ExecutionResult) error

var postConditions = map[string]postCondition{
	"file_exists_after_write": checkFileExistsAfterWrite,
	"weather_payload_shape":   checkWeatherPayloadShape,
	"http_status_2xx":         checkHTTPStatus2xx,
}

func checkFileExistsAfterWrite(plan *models.ActionPlan, result *models.ExecutionResult) error {
	path, _ := plan.Args["path"].(string)
	if path == "" {
		return fmt.Errorf("no path argument to verify against")
	}
	for _, se := range result.SideEffects {
		if se.Kind == "file_write" && se.Target == path {
			return nil
		}
	}
	return fmt.Errorf("no file_write side effect recorded for path %q", path)
}

func checkWeatherPayloadShape(plan *models.ActionPlan, result *models.ExecutionResult) error {
	payload, ok := result.Value.(map[string]any)
	if !ok {
		return fmt.Errorf("weather result value is not a record")
	}
	for _, key := range []string{"location", "temperature", "condition"} {
		v, ok := payload[key]
		if !ok {
			return fmt.Errorf("weather payload missing key %q", key)
		}
		if _, ok := v.(string); !ok {
			return fmt.Errorf("weather payload key %q is not a string", key)
		}
	}
	return nil
}

func checkHTTPStatus2xx(plan *models.ActionPlan, result *models.ExecutionResult) error {
	payload, ok := result.Value.(map[string]any)
	if !ok {
		return fmt.Errorf("http result value is not a record")
	}
	status, ok := payload["status"].(int)
	if !ok {
		if f, ok2 := payload["status"].(float64); ok2 {
			status = int(f)
			ok = true
		}
	}
	if !ok {
		return fmt.Errorf("http result missing numeric status")
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("http status %d is not 2xx", status)
	}
	return nil
}

// Verifier decides a models.Verdict for a completed ExecutionResult.
type Verifier struct {
	registry   ports.ToolRegistry
	entailment ports.EntailmentModel
	citations  ports.CitationStore

	entailmentFloor float64
	coverageBlock   float64
	coverageWarn    float64
	batchSize       int
}

// New constructs a Verifier. citations may be nil, in which case the
// stored-hash check in Check is skipped and a Verdict's evidence is taken
// on the ExecutionResult's own say-so; production wiring always supplies
// one so spec.md §3's citation-hash invariant is actually enforced.
func New(registry ports.ToolRegistry, entailment ports.EntailmentModel, citations ports.CitationStore) *Verifier {
	return &Verifier{
		registry:        registry,
		entailment:      entailment,
		citations:       citations,
		entailmentFloor: DefaultEntailmentFloor,
		coverageBlock:   DefaultCoverageBlock,
		coverageWarn:    DefaultCoverageWarn,
		batchSize:       DefaultBatchSize,
	}
}

// Check runs the post-condition verifier (if the tool names one) and the
// claim/citation verifier (if the tool produces textual claims), and
// combines their outcomes into a single models.Verdict.
func (v *Verifier) Check(ctx context.Context, plan *models.ActionPlan, result *models.ExecutionResult) (verdict *models.Verdict, err error) {
	defer func() {
		if verdict != nil {
			metrics.VerifierVerdictsTotal.WithLabelValues(string(verdict.Status)).Inc()
		}
	}()

	if !result.Success {
		return &models.Verdict{Status: models.VerdictBlock, Reasons: []models.ReasonCode{"execution_failed"}}, nil
	}

	spec, _ := v.registry.Lookup(plan.ToolName)

	verdict = &models.Verdict{Status: models.VerdictPass}

	if spec != nil && spec.PostConditionID != "" {
		if check, ok := postConditions[spec.PostConditionID]; ok {
			if err := check(plan, result); err != nil {
				status := models.VerdictWarn
				if spec.RiskTier != models.RiskSafe {
					status = models.VerdictBlock
				}
				worsen(verdict, status, models.ReasonCode("post_condition_failed: "+err.Error()))
			}
		}
	}

	if textualClaimTools[plan.ToolName] {
		claimVerdict, err := v.checkClaims(ctx, result)
		if err != nil {
			worsen(verdict, models.VerdictWarn, "verifier_degraded")
		} else {
			worsen(verdict, claimVerdict.Status, claimVerdict.Reasons...)
			verdict.Evidence = append(verdict.Evidence, claimVerdict.Evidence...)
		}
	}

	if v.citations != nil {
		v.verifyEvidence(ctx, verdict)
	}

	return verdict, nil
}

// verifyEvidence resolves every evidence CitationRef against the citation
// store and recomputes its hash, per spec.md §3: a Verdict's evidence must
// resolve to a record whose content hash matches, not just a URL the tool
// claimed was checked. A citation that fails to resolve demotes the
// verdict to block rather than silently passing on unverifiable evidence.
func (v *Verifier) verifyEvidence(ctx context.Context, verdict *models.Verdict) {
	for _, cit := range verdict.Evidence {
		ok, err := v.citations.VerifyHash(ctx, cit)
		if err != nil {
			worsen(verdict, models.VerdictWarn, "citation_store_unavailable")
			continue
		}
		if !ok {
			worsen(verdict, models.VerdictBlock, models.ReasonCode("citation_hash_mismatch: "+cit.SourceURI))
		}
	}
}

// checkClaims extracts sentence-level claims from a textual result, scores
// each against the result's citations in batches, and derives a coverage
// verdict per spec.md's research/search policy.
func (v *Verifier) checkClaims(ctx context.Context, result *models.ExecutionResult) (*models.Verdict, error) {
	text := extractText(result.Value)
	if text == "" {
		return &models.Verdict{Status: models.VerdictPass}, nil
	}

	claims := SplitClaims(text)
	if len(claims) == 0 {
		return &models.Verdict{Status: models.VerdictPass}, nil
	}
	if len(result.Citations) == 0 {
		return &models.Verdict{Status: models.VerdictBlock, Reasons: []models.ReasonCode{"no_citations_for_claims"}}, nil
	}

	supported := 0
	evidence := []models.CitationRef{}

	for batchStart := 0; batchStart < len(claims); batchStart += v.batchSize {
		batchEnd := batchStart + v.batchSize
		if batchEnd > len(claims) {
			batchEnd = len(claims)
		}
		batch := claims[batchStart:batchEnd]

		pairs := make([]ports.EntailmentPair, 0, len(batch)*len(result.Citations))
		for _, claimText := range batch {
			for _, cit := range result.Citations {
				pairs = append(pairs, ports.EntailmentPair{Premise: citationPremise(cit, text), Hypothesis: claimText})
			}
		}

		scores, err := v.entailment.ScoreBatch(ctx, pairs)
		if err != nil {
			return nil, fmt.Errorf("entailment batch failed: %w", err)
		}
		if len(scores) != len(pairs) {
			return nil, fmt.Errorf("entailment returned %d scores for %d pairs", len(scores), len(pairs))
		}

		numCitations := len(result.Citations)
		for i, claimText := range batch {
			maxScore := 0.0
			bestCitation := -1
			for j := range result.Citations {
				score := scores[i*numCitations+j]
				if score > maxScore {
					maxScore = score
					bestCitation = j
				}
			}
			if maxScore >= v.entailmentFloor {
				supported++
				if bestCitation >= 0 {
					evidence = append(evidence, result.Citations[bestCitation])
				}
			}
			_ = claimText
		}
	}

	coverage := float64(supported) / float64(len(claims))
	verdict := &models.Verdict{Status: models.VerdictPass, Evidence: evidence}
	switch {
	case coverage < v.coverageBlock:
		verdict.Status = models.VerdictBlock
		verdict.Reasons = []models.ReasonCode{"claim_coverage_below_block_floor"}
	case coverage < v.coverageWarn:
		verdict.Status = models.VerdictWarn
		verdict.Reasons = []models.ReasonCode{"claim_coverage_below_warn_floor"}
	}
	return verdict, nil
}

// citationPremise returns the byte-span slice of sourceText a CitationRef
// claims to cover, falling back to the whole text (and, failing that, the
// bare source URI) if the span is missing or out of bounds. The source URI
// alone carries no content for the entailment model to score against.
func citationPremise(cit models.CitationRef, sourceText string) string {
	start, end := cit.ByteSpan[0], cit.ByteSpan[1]
	if start < 0 || end > len(sourceText) || start >= end {
		if sourceText != "" {
			return sourceText
		}
		return cit.SourceURI
	}
	return sourceText[start:end]
}

func extractText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any:
		if content, ok := v["content"].(string); ok {
			return content
		}
	}
	return ""
}

var sentenceSplit = regexp.MustCompile(`(?:[.!?]+\s+|\n+)`)

// SplitClaims splits a textual passage into sentence-level claims, dropping
// empty fragments and normalizing whitespace.
func SplitClaims(text string) []string {
	parts := sentenceSplit.Split(strings.TrimSpace(text), -1)
	claims := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		claims = append(claims, p)
	}
	return claims
}

// worsen raises verdict's status to the more severe of its current status
// and next, appending reasons. block > warn > pass.
func worsen(verdict *models.Verdict, next models.VerdictStatus, reasons ...models.ReasonCode) {
	if severity(next) > severity(verdict.Status) {
		verdict.Status = next
	}
	verdict.Reasons = append(verdict.Reasons, reasons...)
}

func severity(s models.VerdictStatus) int {
	switch s {
	case models.VerdictBlock:
		return 2
	case models.VerdictWarn:
		return 1
	default:
		return 0
	}
}
