package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

func (s *Server) listFlowsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.engine.Registry().Summaries()))
}

// startFlowHandler opens a flow. Starting is idempotent: the same flow always
// returns its first question with an empty context.
func (s *Server) startFlowHandler(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromRequest(r)
	flowType := chi.URLParam(r, "flowType")
	slog.Debug("Server.startFlowHandler: starting flow", "flowType", flowType, "subject", subject.ID)

	profile, err := s.st.GetProfile(r.Context(), subject.ID)
	if err != nil {
		writeError(w, r, fmt.Errorf("load profile: %w", err))
		return
	}
	turn, err := s.engine.Start(flowType, profile)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.opts.Metrics.FlowStarted(string(turn.FlowType))
	writeJSONResponse(w, http.StatusOK, models.Success(turn))
}

func (s *Server) answerHandler(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromRequest(r)
	flowType := chi.URLParam(r, "flowType")

	var req models.AnswerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		slog.Debug("Server.answerHandler: validation failed", "flowType", flowType, "error", err)
		writeError(w, r, err)
		return
	}

	profile, err := s.st.GetProfile(r.Context(), subject.ID)
	if err != nil {
		writeError(w, r, fmt.Errorf("load profile: %w", err))
		return
	}
	res, err := s.engine.Advance(r.Context(), subject, flowType, req.Message, req.Context, profile)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if res.Complete() {
		kind, _ := models.ParseFlowKind(flowType)
		slog.Info("Server.answerHandler: flow completed", "flowType", kind, "subject", subject.ID,
			"handle", res.Outcome.Handle, "aiGenerated", res.Outcome.AIGenerated, "reused", res.Outcome.Reused)
		writeJSONResponse(w, http.StatusOK, models.Completed(fmt.Sprintf("Your %s is ready.", kind.Category()), *res.Outcome))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res.Turn))
}
