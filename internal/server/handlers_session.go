package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentrun-ai/agentrun/internal/orchestrator"
	"github.com/agentrun-ai/agentrun/internal/store"
	"github.com/agentrun-ai/agentrun/pkg/types"
)

// startSessionRequest is the body of POST /session.
type startSessionRequest struct {
	AgentKind  types.AgentKind `json:"agentKind"`
	KindConfig json.RawMessage `json:"kindConfig"`
	Prompt     string          `json:"prompt"`
	Provider   string          `json:"provider,omitempty"`
	Model      string          `json:"model,omitempty"`
}

// startSession handles POST /session.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	if !req.AgentKind.Known() {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown agent kind: "+string(req.AgentKind))
		return
	}
	kindConfig, err := types.UnmarshalKindConfig(req.AgentKind, req.KindConfig)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	sess, err := s.orch.Start(r.Context(), &orchestrator.StartRequest{
		AgentKind:  req.AgentKind,
		KindConfig: kindConfig,
		Prompt:     req.Prompt,
		Provider:   req.Provider,
		Model:      req.Model,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

// getSession handles GET /session/{sessionID}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	view, err := s.orch.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// getQuestions handles GET /session/{sessionID}/questions.
func (s *Server) getQuestions(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	questions, err := s.orch.PendingQuestions(r.Context(), sessionID)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

// submitAnswersRequest is the body of POST /session/{sessionID}/answers.
type submitAnswersRequest struct {
	Answers []types.Answer `json:"answers"`
}

// submitAnswers handles POST /session/{sessionID}/answers.
func (s *Server) submitAnswers(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req submitAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	if err := s.orch.SubmitAnswers(r.Context(), sessionID, req.Answers); err != nil {
		writeSessionError(w, err)
		return
	}

	writeSuccess(w)
}

// cancelSession handles POST /session/{sessionID}/cancel.
func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.orch.Cancel(r.Context(), sessionID); err != nil {
		writeSessionError(w, err)
		return
	}

	writeSuccess(w)
}

// health handles GET /health.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeSessionError maps orchestrator errors onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
	case errors.Is(err, orchestrator.ErrNotWaiting),
		errors.Is(err, orchestrator.ErrSessionTerminal),
		errors.Is(err, orchestrator.ErrSessionBusy):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, orchestrator.ErrAnswersIncomplete):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
