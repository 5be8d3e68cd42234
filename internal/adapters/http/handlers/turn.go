package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/longregen/cogexec/internal/adapters/http/dto"
	"github.com/longregen/cogexec/internal/adapters/http/middleware"
	"github.com/longregen/cogexec/internal/application/orchestrator"
	"github.com/longregen/cogexec/internal/application/wall"
	"github.com/longregen/cogexec/internal/domain"
)

// TurnHandler exposes the Pipeline Orchestrator's HandleTurn over HTTP.
type TurnHandler struct {
	orch *orchestrator.Orchestrator
}

func NewTurnHandler(orch *orchestrator.Orchestrator) *TurnHandler {
	return &TurnHandler{orch: orch}
}

// Handle runs one utterance through the full pipeline for the calling user
// and reports the resulting reply, verdict, and wall decision.
func (h *TurnHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req dto.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Utterance == "" {
		writeError(w, http.StatusBadRequest, "utterance is required")
		return
	}

	auth := wall.AuthContext{
		ConfirmationToken:  req.ConfirmationToken,
		OwnerToken:         req.OwnerToken,
		OwnerAuthenticated: req.OwnerAuthenticated,
	}

	outcome, err := h.orch.HandleTurn(r.Context(), userID, req.Utterance, auth)
	if err != nil {
		if errors.Is(err, domain.ErrBackendUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "memory backend unavailable")
			return
		}
		log.Printf("HandleTurn failed for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to process turn")
		return
	}

	resp := dto.TurnResponse{
		TurnID:        outcome.TurnID,
		Reply:         outcome.Reply,
		Pending:       outcome.Pending,
		Verdict:       dto.NewVerdictView(outcome.Verdict),
		ResultSummary: outcome.ResultSummary,
	}
	if outcome.WallVerdict != nil {
		resp.WallVerdict = &dto.WallVerdictView{
			Kind:   string(outcome.WallVerdict.Kind),
			Tier:   outcome.WallVerdict.Tier,
			Code:   outcome.WallVerdict.Code,
			Detail: outcome.WallVerdict.Detail,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}
