// Package wall implements the Validation Wall: a five-tier pipeline
// (schema, policy, static analysis, audit decision, risk gating) deciding
// whether an ActionPlan may execute. Any tier's rejection short-circuits
// the rest; the WallVerdict always records which tier decided and why.
package wall

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/longregen/cogexec/internal/adapters/metrics"
	"github.com/longregen/cogexec/internal/adapters/ratelimit"
	"github.com/longregen/cogexec/internal/domain"
	"github.com/longregen/cogexec/internal/domain/models"
	"github.com/longregen/cogexec/internal/ports"
)

// ToolPolicy is the per-tool policy configuration consulted by the Policy
// tier: domain allow/blocklist for URL arguments, path root confinement
// for filesystem tools, and an explicit side-effect gating entry.
type ToolPolicy struct {
	AllowedDomains    []string // empty means no allowlist restriction
	BlockedDomains    []string
	PathRoot          string   // absolute root filesystem tools are confined to
	ForbiddenExts     []string
	MaxPathArgBytes   int
	RequiresGateEntry bool // side-effect gating: network/os-control tools must have a policy entry
}

// AuthContext carries the orchestrator-supplied confirmation and owner
// authentication material for one turn, per spec.md §4.4's Audit Decision
// tier.
type AuthContext struct {
	ConfirmationToken string
	OwnerToken        string
	OwnerAuthenticated bool
}

// Wall sequences the five tiers over a Registry-known tool and an
// ActionPlan.
type Wall struct {
	registry ports.ToolRegistry
	limiter  *ratelimit.Limiter
	audit    ports.AuditSink
	policies map[string]ToolPolicy // tool name -> policy
	lintDenyList []string
}

func New(registry ports.ToolRegistry, limiter *ratelimit.Limiter, audit ports.AuditSink, policies map[string]ToolPolicy) *Wall {
	if policies == nil {
		policies = make(map[string]ToolPolicy)
	}
	return &Wall{
		registry: registry,
		limiter:  limiter,
		audit:    audit,
		policies: policies,
		lintDenyList: []string{
			"; ", "&&", "||", "`", "$(", "> /", ">> /",
			"DROP ", "DELETE ", "UPDATE ", "INSERT ", "ALTER ", "TRUNCATE ",
		},
	}
}

// Evaluate runs all five tiers in order for (turnID, userID, plan),
// returning the terminal WallVerdict. Risk Gating always writes an audit
// entry, even when an earlier tier rejected, so the decision is traceable.
func (w *Wall) Evaluate(ctx context.Context, turnID, userID string, plan *models.ActionPlan, auth AuthContext) (ports.WallVerdict, error) {
	tiers := make([]ports.AuditTierEntry, 0, 5)
	record := func(tier, outcome, code string) {
		tiers = append(tiers, ports.AuditTierEntry{Tier: tier, Outcome: outcome, Code: code})
	}

	spec, ok := w.registry.Lookup(plan.ToolName)
	if !ok {
		record("schema", "rejected", "unknown_tool")
		verdict := ports.WallVerdict{Kind: ports.WallRejected, Tier: "schema", Code: "unknown_tool", Detail: fmt.Sprintf("tool %q is not registered", plan.ToolName)}
		w.writeAudit(ctx, turnID, userID, plan, tiers, verdict)
		recordVerdict(verdict)
		return verdict, nil
	}

	if verdict, rejected := w.schemaTier(spec, plan); rejected {
		record("schema", "rejected", verdict.Code)
		w.writeAudit(ctx, turnID, userID, plan, tiers, verdict)
		recordVerdict(verdict)
		return verdict, nil
	}
	record("schema", "pass", "")

	if verdict, rejected := w.policyTier(userID, spec, plan); rejected {
		record("policy", "rejected", verdict.Code)
		w.writeAudit(ctx, turnID, userID, plan, tiers, verdict)
		recordVerdict(verdict)
		return verdict, nil
	}
	record("policy", "pass", "")

	if verdict, rejected := w.staticAnalysisTier(spec, plan); rejected {
		record("static_analysis", "rejected", verdict.Code)
		w.writeAudit(ctx, turnID, userID, plan, tiers, verdict)
		recordVerdict(verdict)
		return verdict, nil
	}
	record("static_analysis", "pass", "")

	verdict := w.auditDecisionTier(spec, auth)
	record("audit_decision", string(verdict.Kind), verdict.Code)
	recordVerdict(verdict)

	if err := w.writeAudit(ctx, turnID, userID, plan, tiers, verdict); err != nil {
		return verdict, domain.NewDomainError(domain.ErrAuditFailure, "risk gating tier failed to write audit log")
	}

	return verdict, nil
}

func recordVerdict(verdict ports.WallVerdict) {
	metrics.WallVerdictsTotal.WithLabelValues(string(verdict.Kind), verdict.Tier).Inc()
}

func (w *Wall) schemaTier(spec *models.ToolSpec, plan *models.ActionPlan) (ports.WallVerdict, bool) {
	for _, required := range spec.ArgSchema.Required {
		if _, ok := plan.Args[required]; !ok {
			return ports.WallVerdict{
				Kind: ports.WallRejected, Tier: "schema", Code: "missing_required_arg",
				Detail: fmt.Sprintf("missing required argument %q", required),
			}, true
		}
	}

	for name, val := range plan.Args {
		constraint, known := spec.ArgSchema.Properties[name]
		if !known {
			continue
		}
		if !constraintSatisfied(constraint, val) {
			return ports.WallVerdict{
				Kind: ports.WallRejected, Tier: "schema", Code: "schema_violation",
				Detail: fmt.Sprintf("argument %q does not satisfy its constraint", name),
			}, true
		}
	}
	return ports.WallVerdict{}, false
}

func constraintSatisfied(c models.ArgConstraint, val any) bool {
	switch v := val.(type) {
	case string:
		if c.Type != "" && c.Type != "string" {
			return false
		}
		if len(c.Enum) > 0 && !stringInSlice(c.Enum, v) {
			return false
		}
		if c.Pattern != "" {
			if matched, err := regexp.MatchString(c.Pattern, v); err != nil || !matched {
				return false
			}
		}
	case float64:
		if c.Type != "" && c.Type != "number" && c.Type != "integer" {
			return false
		}
		if c.Min != nil && v < *c.Min {
			return false
		}
		if c.Max != nil && v > *c.Max {
			return false
		}
	}
	return true
}

func stringInSlice(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func (w *Wall) policyTier(userID string, spec *models.ToolSpec, plan *models.ActionPlan) (ports.WallVerdict, bool) {
	if w.limiter != nil && !w.limiter.Allow(userID, spec.RiskTier) {
		return ports.WallVerdict{
			Kind: ports.WallRejected, Tier: "policy", Code: "rate_limited",
			Detail: fmt.Sprintf("rate limit exceeded for tier %s", spec.RiskTier),
		}, true
	}

	policy := w.policies[spec.Name]

	if spec.SideEffect == models.SideEffectNetwork || spec.SideEffect == models.SideEffectOSControl {
		if policy.RequiresGateEntry {
			if _, known := w.policies[spec.Name]; !known {
				return ports.WallVerdict{
					Kind: ports.WallRejected, Tier: "policy", Code: "missing_gate_entry",
					Detail: fmt.Sprintf("tool %q has a side effect requiring an explicit policy entry", spec.Name),
				}, true
			}
		}
	}

	if url, ok := plan.Args["url"].(string); ok && url != "" {
		if verdict, rejected := checkDomainPolicy(policy, url); rejected {
			return verdict, true
		}
	}

	if path, ok := plan.Args["path"].(string); ok && path != "" {
		if verdict, rejected := checkPathPolicy(policy, path); rejected {
			return verdict, true
		}
	}

	return ports.WallVerdict{}, false
}

func checkDomainPolicy(policy ToolPolicy, rawURL string) (ports.WallVerdict, bool) {
	host := extractHost(rawURL)
	for _, blocked := range policy.BlockedDomains {
		if host == blocked {
			return ports.WallVerdict{
				Kind: ports.WallRejected, Tier: "policy", Code: "domain_blocked",
				Detail: fmt.Sprintf("domain %q is blocked", host),
			}, true
		}
	}
	if len(policy.AllowedDomains) > 0 && !stringInSlice(policy.AllowedDomains, host) {
		return ports.WallVerdict{
			Kind: ports.WallRejected, Tier: "policy", Code: "domain_not_allowed",
			Detail: fmt.Sprintf("domain %q is not in the allowlist", host),
		}, true
	}
	return ports.WallVerdict{}, false
}

func extractHost(rawURL string) string {
	s := rawURL
	if idx := indexOf(s, "://"); idx != -1 {
		s = s[idx+3:]
	}
	for i, c := range s {
		if c == '/' || c == ':' || c == '?' {
			return s[:i]
		}
	}
	return s
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func checkPathPolicy(policy ToolPolicy, path string) (ports.WallVerdict, bool) {
	if policy.PathRoot != "" && !hasPrefix(path, policy.PathRoot) {
		return ports.WallVerdict{
			Kind: ports.WallRejected, Tier: "policy", Code: "path_outside_root",
			Detail: fmt.Sprintf("path %q is outside the configured root", path),
		}, true
	}
	for _, ext := range policy.ForbiddenExts {
		if hasSuffix(path, ext) {
			return ports.WallVerdict{
				Kind: ports.WallRejected, Tier: "policy", Code: "forbidden_extension",
				Detail: fmt.Sprintf("path %q has a forbidden extension %q", path, ext),
			}, true
		}
	}
	if policy.MaxPathArgBytes > 0 && len(path) > policy.MaxPathArgBytes {
		return ports.WallVerdict{
			Kind: ports.WallRejected, Tier: "policy", Code: "path_too_long",
			Detail: "path argument exceeds configured size limit",
		}, true
	}
	return ports.WallVerdict{}, false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func (w *Wall) staticAnalysisTier(spec *models.ToolSpec, plan *models.ActionPlan) (ports.WallVerdict, bool) {
	for _, field := range []string{"command", "script", "query", "expression", "cmd"} {
		val, ok := plan.Args[field].(string)
		if !ok {
			continue
		}
		for _, denied := range w.lintDenyList {
			if containsSubstring(val, denied) {
				return ports.WallVerdict{
					Kind: ports.WallRejected, Tier: "static_analysis", Code: "lint_violation",
					Detail: fmt.Sprintf("argument %q matched denied pattern %q", field, denied),
				}, true
			}
		}
	}
	return ports.WallVerdict{}, false
}

func containsSubstring(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func (w *Wall) auditDecisionTier(spec *models.ToolSpec, auth AuthContext) ports.WallVerdict {
	switch spec.RiskTier {
	case models.RiskSafe:
		return ports.WallVerdict{Kind: ports.WallApproved, Tier: "audit_decision"}
	case models.RiskReview:
		return ports.WallVerdict{Kind: ports.WallApproved, Tier: "audit_decision", Code: "dry_run_logged"}
	case models.RiskConfirm:
		if auth.ConfirmationToken == "" {
			return ports.WallVerdict{Kind: ports.WallNeedsConfirmation, Tier: "audit_decision", Code: "confirmation_required"}
		}
		return ports.WallVerdict{Kind: ports.WallApproved, Tier: "audit_decision"}
	case models.RiskOwnerRoot:
		if !auth.OwnerAuthenticated || auth.OwnerToken == "" || auth.ConfirmationToken == "" {
			return ports.WallVerdict{Kind: ports.WallNeedsOwnerAuth, Tier: "audit_decision", Code: "owner_auth_required"}
		}
		return ports.WallVerdict{Kind: ports.WallApproved, Tier: "audit_decision"}
	default:
		return ports.WallVerdict{Kind: ports.WallRejected, Tier: "audit_decision", Code: "unknown_risk_tier"}
	}
}

// writeAudit composes the structured record and writes it via the configured
// AuditSink. A write failure is reported to the caller rather than swallowed,
// per spec.md §4.4's "failed audit write escalates to AuditFailure".
func (w *Wall) writeAudit(ctx context.Context, turnID, userID string, plan *models.ActionPlan, tiers []ports.AuditTierEntry, verdict ports.WallVerdict) error {
	if w.audit == nil {
		return nil
	}

	entry := ports.AuditEntry{
		TurnID:     turnID,
		UserID:     userID,
		Tool:       plan.ToolName,
		ArgsDigest: digestArgs(plan.Args),
		WallTiers:  tiers,
		Decision:   string(verdict.Kind),
	}
	return w.audit.Write(ctx, entry)
}

// digestArgs redacts plan args into a content digest rather than logging
// them verbatim, so the audit log cannot leak sensitive argument values.
func digestArgs(args map[string]any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", args))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
