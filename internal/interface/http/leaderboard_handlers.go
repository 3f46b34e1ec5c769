package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/studyquest/studyquest-core/internal/application/command"
	"github.com/studyquest/studyquest-core/internal/application/query"
	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// GLOBAL LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGlobalLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.deps.GlobalLeaderboard.Handle(r.Context(), query.GetGlobalLeaderboardQuery{
		Metric: leaderboard.Metric(r.URL.Query().Get("metric")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleUserRank(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.UserRank.Handle(r.Context(), query.GetUserRankQuery{
		UserID: callerID(r),
		Metric: leaderboard.Metric(r.URL.Query().Get("metric")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// PRIVATE LEADERBOARDS
// ══════════════════════════════════════════════════════════════════════════════

type createLeaderboardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type addMemberRequest struct {
	Username string `json:"username"`
}

type transferRequest struct {
	NewOwnerID string `json:"newOwnerId"`
}

type leaderboardsResponse struct {
	Leaderboards []*leaderboard.PrivateLeaderboard `json:"leaderboards"`
}

func (s *Server) handleListLeaderboards(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.ListLeaderboards.Handle(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, leaderboardsResponse{Leaderboards: list})
}

func (s *Server) handleCreateLeaderboard(w http.ResponseWriter, r *http.Request) {
	var req createLeaderboardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res := s.deps.CreateLeaderboard.Handle(r.Context(), command.CreatePrivateLeaderboardCommand{
		OwnerID:     callerID(r),
		Name:        req.Name,
		Description: req.Description,
	})
	writeResult(w, r, http.StatusCreated, res.Result, res.Leaderboard)
}

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := s.deps.PrivateLeaderboard.Handle(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, lb)
}

func (s *Server) handleGetMembers(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.PrivateMembers.Handle(r.Context(), query.GetPrivateLeaderboardMembersQuery{
		LeaderboardID: mux.Vars(r)["id"],
		Metric:        leaderboard.Metric(r.URL.Query().Get("metric")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res := s.deps.AddMember.Handle(r.Context(), command.AddMemberCommand{
		LeaderboardID: mux.Vars(r)["id"],
		RequesterID:   callerID(r),
		Username:      req.Username,
	})
	writeResult(w, r, http.StatusOK, res, res)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	res := s.deps.RemoveMember.Handle(r.Context(), command.RemoveMemberCommand{
		LeaderboardID: vars["id"],
		RequesterID:   callerID(r),
		MemberID:      vars["userId"],
	})
	writeResult(w, r, http.StatusOK, res, res)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	res := s.deps.LeaveLeaderboard.Handle(r.Context(), command.LeaveLeaderboardCommand{
		LeaderboardID: mux.Vars(r)["id"],
		UserID:        callerID(r),
	})
	writeResult(w, r, http.StatusOK, res, res)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res := s.deps.TransferOwnership.Handle(r.Context(), command.TransferOwnershipCommand{
		LeaderboardID: mux.Vars(r)["id"],
		RequesterID:   callerID(r),
		NewOwnerID:    req.NewOwnerID,
	})
	writeResult(w, r, http.StatusOK, res, res)
}

func (s *Server) handleDeleteLeaderboard(w http.ResponseWriter, r *http.Request) {
	res := s.deps.DeleteLeaderboard.Handle(r.Context(), command.DeletePrivateLeaderboardCommand{
		LeaderboardID: mux.Vars(r)["id"],
		RequesterID:   callerID(r),
	})
	writeResult(w, r, http.StatusOK, res, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// PREFERENCES
// ══════════════════════════════════════════════════════════════════════════════

type preferencesRequest struct {
	HideFromGlobal *bool   `json:"hideFromGlobal"`
	BlockInvites   *bool   `json:"blockInvites"`
	Username       *string `json:"username"`
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res := s.deps.UpdatePreferences.Handle(r.Context(), command.UpdatePreferencesCommand{
		UserID:         callerID(r),
		HideFromGlobal: req.HideFromGlobal,
		BlockInvites:   req.BlockInvites,
		Username:       req.Username,
	})
	writeResult(w, r, http.StatusOK, res, res)
}
