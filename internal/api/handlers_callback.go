package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/chronoplan/scheduler/internal/api/respond"
	"github.com/chronoplan/scheduler/internal/model"
	"github.com/chronoplan/scheduler/internal/orchestrator"
)

// CallbackHandler receives asynchronous solver results.
type CallbackHandler struct {
	orch *orchestrator.Orchestrator
	log  zerolog.Logger
}

func NewCallbackHandler(orch *orchestrator.Orchestrator, log zerolog.Logger) *CallbackHandler {
	return &CallbackHandler{orch: orch, log: log}
}

// SolverCallback POST /api/solver/callback
//
// Duplicate and late callbacks are acknowledged with 200 so the solver
// stops redelivering; results for unknown correlation ids are rejected.
func (h *CallbackHandler) SolverCallback(w http.ResponseWriter, r *http.Request) {
	var res model.SolveResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if res.CorrelationID == "" {
		respond.WriteBadRequest(w, "correlationId is required")
		return
	}

	err := h.orch.HandleCallback(r.Context(), &res)
	switch {
	case err == nil:
		respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "processed"})
	case errors.Is(err, model.ErrStaleCallback):
		h.log.Info().Str("correlationId", res.CorrelationID).Msg("ignoring stale solver callback")
		respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	case errors.Is(err, model.ErrUnknownCorrelation):
		h.log.Warn().Str("correlationId", res.CorrelationID).Msg("solver callback with unknown correlation id")
		respond.WriteNotFound(w, "unknown correlation id")
	case errors.Is(err, model.ErrValidation):
		respond.WriteBadRequest(w, err.Error())
	default:
		respond.WriteInternalError(w, err.Error())
	}
}
