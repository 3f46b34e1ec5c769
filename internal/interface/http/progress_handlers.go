package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/studyquest/studyquest-core/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HANDLERS
// The registry initializes the caller's engine on first use, so every handler
// works on reconciled state.
// ══════════════════════════════════════════════════════════════════════════════

type practiceRequest struct {
	Correct    *bool  `json:"correct"`
	QuestionID string `json:"questionId"`
}

type bonusRequest struct {
	Amount int `json:"amount"`
}

type achievementsResponse struct {
	Achievements []progress.AchievementStatus `json:"achievements"`
}

type bonusResponse struct {
	NewAchievements []progress.Achievement `json:"newAchievements"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	engine := s.deps.Progress.Get(r.Context(), callerID(r))
	writeJSON(w, r, http.StatusOK, engine.Initialize(r.Context()))
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	engine := s.deps.Progress.Get(r.Context(), callerID(r))
	writeJSON(w, r, http.StatusOK, engine.GetProgress())
}

func (s *Server) handleRecordPractice(w http.ResponseWriter, r *http.Request) {
	var req practiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Correct == nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Field correct is required")
		return
	}

	engine := s.deps.Progress.Get(r.Context(), callerID(r))
	writeJSON(w, r, http.StatusOK, engine.RecordPractice(r.Context(), *req.Correct, req.QuestionID))
}

func (s *Server) handleCollectAchievement(w http.ResponseWriter, r *http.Request) {
	id := progress.AchievementID(mux.Vars(r)["id"])

	engine := s.deps.Progress.Get(r.Context(), callerID(r))
	writeJSON(w, r, http.StatusOK, engine.CollectAchievementXP(r.Context(), id))
}

func (s *Server) handleAddBonusXP(w http.ResponseWriter, r *http.Request) {
	var req bonusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	engine := s.deps.Progress.Get(r.Context(), callerID(r))
	writeJSON(w, r, http.StatusOK, bonusResponse{NewAchievements: engine.AddBonusXP(r.Context(), req.Amount)})
}

func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	engine := s.deps.Progress.Get(r.Context(), callerID(r))
	writeJSON(w, r, http.StatusOK, achievementsResponse{Achievements: engine.GetAchievements()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	engine := s.deps.Progress.Get(r.Context(), callerID(r))
	engine.Reset(r.Context())
	writeJSON(w, r, http.StatusOK, engine.GetProgress())
}
