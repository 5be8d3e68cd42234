// Package dto holds the wire-level request/response shapes for the HTTP
// adapter, kept separate from the domain models they're built from.
package dto

import "github.com/longregen/cogexec/internal/domain/models"

// TurnRequest is the body of POST /api/v1/turns.
type TurnRequest struct {
	Utterance         string `json:"utterance"`
	ConfirmationToken string `json:"confirmation_token,omitempty"`
	OwnerToken        string `json:"owner_token,omitempty"`
	OwnerAuthenticated bool  `json:"owner_authenticated,omitempty"`
}

// TurnResponse is the body of a successful POST /api/v1/turns response.
type TurnResponse struct {
	TurnID        string          `json:"turn_id"`
	Reply         string          `json:"reply"`
	Pending       bool            `json:"pending"`
	Verdict       *VerdictView    `json:"verdict,omitempty"`
	WallVerdict   *WallVerdictView `json:"wall_verdict,omitempty"`
	ResultSummary string          `json:"result_summary,omitempty"`
}

type VerdictView struct {
	Status  string   `json:"status"`
	Reasons []string `json:"reasons,omitempty"`
}

type WallVerdictView struct {
	Kind   string `json:"kind"`
	Tier   string `json:"tier,omitempty"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func NewVerdictView(v *models.Verdict) *VerdictView {
	if v == nil {
		return nil
	}
	reasons := make([]string, len(v.Reasons))
	for i, r := range v.Reasons {
		reasons[i] = string(r)
	}
	return &VerdictView{Status: string(v.Status), Reasons: reasons}
}

// ErrorResponse is the body of any non-2xx JSON response from this API.
type ErrorResponse struct {
	Error string `json:"error"`
}
