package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"agentloop/internal/application/port/input"
	"agentloop/internal/domain/entity"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type CreateRunRequest struct {
	Input      string        `json:"input,omitempty"`
	Transcript []entity.Turn `json:"transcript,omitempty"`
}

type RunResponse struct {
	ID          string            `json:"id"`
	Status      entity.Status     `json:"status"`
	FinalAnswer string            `json:"finalAnswer"`
	Usage       entity.Usage      `json:"usage"`
	State       entity.AgentState `json:"state"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tools.Definitions())
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": ids})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Input) == "" && len(req.Transcript) == 0 {
		writeBadRequest(w, "input or transcript is required")
		return
	}

	id := uuid.NewString()
	s.claim(id)
	defer s.release(id)

	runner := s.newRunner()
	s.logger.Info("Run started", "id", id)

	var (
		res *input.RunResult
		err error
	)
	if len(req.Transcript) > 0 {
		res, err = runner.RunTranscript(r.Context(), req.Transcript)
	} else {
		res, err = runner.Run(r.Context(), req.Input)
	}
	s.finish(w, id, runner, res, err, http.StatusCreated)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state, err := s.store.Load(id)
	if err != nil {
		s.writeLoadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RunResponse{
		ID:          id,
		Status:      state.Status,
		FinalAnswer: state.FinalAnswer(),
		State:       state,
	})
}

func (s *Server) handleResumeRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.claim(id) {
		writeError(w, http.StatusConflict, entity.ErrBusy.Error())
		return
	}
	defer s.release(id)

	state, err := s.store.Load(id)
	if err != nil {
		s.writeLoadError(w, err)
		return
	}

	runner := s.newRunner()
	s.logger.Info("Run resumed", "id", id, "iteration", state.Iteration)

	res, err := runner.Resume(r.Context(), state)
	if errors.Is(err, entity.ErrRunStopped) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.finish(w, id, runner, res, err, http.StatusOK)
}

// finish stores the outcome of a run. A failed run still stores the state
// it reached so that it can be resumed.
func (s *Server) finish(w http.ResponseWriter, id string, runner input.AgentRunner, res *input.RunResult, runErr error, status int) {
	state := runner.Snapshot()
	if res != nil {
		state = res.State
	}

	if err := s.store.Save(id, state); err != nil {
		s.logger.Error("Failed to save snapshot", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if runErr != nil {
		s.logger.Error("Run failed", "id", id, "error", runErr)
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: runErr.Error(), ID: id})
		return
	}

	s.logger.Info("Run finished", "id", id, "status", state.Status, "iterations", state.Iteration)
	writeJSON(w, status, RunResponse{
		ID:          id,
		Status:      state.Status,
		FinalAnswer: res.FinalAnswer,
		Usage:       res.Usage,
		State:       state,
	})
}

func (s *Server) writeLoadError(w http.ResponseWriter, err error) {
	if errors.Is(err, entity.ErrSnapshotNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeBadRequest(w, err.Error())
}
