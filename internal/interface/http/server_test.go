package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyquest/studyquest-core/internal/application/command"
	"github.com/studyquest/studyquest-core/internal/application/query"
	"github.com/studyquest/studyquest-core/internal/application/tracker"
	"github.com/studyquest/studyquest-core/internal/domain/profile"
	"github.com/studyquest/studyquest-core/internal/domain/progress"
	"github.com/studyquest/studyquest-core/internal/infrastructure/persistence/memory"
	"github.com/studyquest/studyquest-core/pkg/logger"
	"github.com/studyquest/studyquest-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

type testEnv struct {
	handler  http.Handler
	profiles *memory.ProfileStore
	boards   *memory.PrivateLeaderboardStore
	health   *HealthChecker
}

func newTestEnv() *testEnv {
	profiles := memory.NewProfileStore()
	boards := memory.NewPrivateLeaderboardStore()
	cache := memory.NewProgressCache()
	clock := timeutil.NewFixedClock(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC))
	log := logger.Nop()

	registry := tracker.NewRegistry(func(userID string) *tracker.Engine {
		return tracker.NewEngine(tracker.Config{
			UserID:    userID,
			DailyGoal: 2,
			Cache:     cache,
			Remote:    profiles,
			Clock:     clock,
			Logger:    log,
		})
	})

	deps := command.Deps{Store: boards, Profiles: profiles, Clock: clock, Logger: log}
	health := NewHealthChecker("test")

	srv := NewServer(DefaultConfig(), Dependencies{
		Progress:           registry,
		GlobalLeaderboard:  query.NewGetGlobalLeaderboardHandler(profiles, query.PageOptions{}),
		UserRank:           query.NewGetUserRankHandler(profiles),
		PrivateMembers:     query.NewGetPrivateLeaderboardMembersHandler(boards, profiles),
		PrivateLeaderboard: query.NewGetPrivateLeaderboardHandler(boards),
		ListLeaderboards:   query.NewListUserLeaderboardsHandler(boards),
		CreateLeaderboard:  command.NewCreatePrivateLeaderboardHandler(deps, 10),
		AddMember:          command.NewAddMemberHandler(deps),
		RemoveMember:       command.NewRemoveMemberHandler(deps),
		TransferOwnership:  command.NewTransferOwnershipHandler(deps),
		DeleteLeaderboard:  command.NewDeletePrivateLeaderboardHandler(deps),
		LeaveLeaderboard:   command.NewLeaveLeaderboardHandler(deps),
		UpdatePreferences:  command.NewUpdatePreferencesHandler(profiles, nil, log),
		Health:             health,
		Logger:             log,
	})

	return &testEnv{handler: srv.Handler(), profiles: profiles, boards: boards, health: health}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_RequiresUserID(t *testing.T) {
	env := newTestEnv()

	code, body := env.do(t, http.MethodGet, "/api/v1/progress", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "missing_user", body.Error.Code)
}

func TestServer_RequestIDEchoed(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestServer_UnknownRoute(t *testing.T) {
	env := newTestEnv()

	code, body := env.do(t, http.MethodGet, "/api/v1/nope", "u1", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, body.Success)
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv()

	code, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, decodeData[HealthStatus](t, body).Healthy)

	env.health.AddCheck("postgres", func(context.Context) error { return errors.New("down") })
	code, body = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	status := decodeData[HealthStatus](t, body)
	assert.False(t, status.Healthy)
	assert.Equal(t, "down", status.Checks["postgres"].Message)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_PracticeFlow(t *testing.T) {
	env := newTestEnv()

	code, body := env.do(t, http.MethodPost, "/api/v1/progress/practice", "u1",
		map[string]any{"correct": true, "questionId": "q1"})
	require.Equal(t, http.StatusOK, code)
	res := decodeData[tracker.PracticeResult](t, body)
	assert.Equal(t, progress.XPCorrectAnswer, res.XPGained)
	assert.False(t, res.GoalReached)

	_, body = env.do(t, http.MethodPost, "/api/v1/progress/practice", "u1",
		map[string]any{"correct": false, "questionId": "q2"})
	res = decodeData[tracker.PracticeResult](t, body)
	assert.True(t, res.GoalReached)
	assert.Equal(t, 1, res.DayStreak)

	code, body = env.do(t, http.MethodGet, "/api/v1/progress", "u1", nil)
	require.Equal(t, http.StatusOK, code)
	var p struct {
		TotalXP           int `json:"totalXP"`
		QuestionsAnswered int `json:"questionsAnswered"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &p))
	assert.Equal(t, progress.XPCorrectAnswer+progress.XPIncorrectAnswer, p.TotalXP)
	assert.Equal(t, 2, p.QuestionsAnswered)

	code, _ = env.do(t, http.MethodPost, "/api/v1/progress/reset", "u1", nil)
	require.Equal(t, http.StatusOK, code)
	_, body = env.do(t, http.MethodGet, "/api/v1/progress", "u1", nil)
	require.NoError(t, json.Unmarshal(body.Data, &p))
	assert.Zero(t, p.TotalXP)
}

func TestServer_PracticeRequiresCorrect(t *testing.T) {
	env := newTestEnv()

	code, body := env.do(t, http.MethodPost, "/api/v1/progress/practice", "u1", map[string]any{"questionId": "q1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_request", body.Error.Code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/progress/practice", "u1", map[string]any{"correct": true, "extra": 1})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_BonusAndAchievements(t *testing.T) {
	env := newTestEnv()

	code, body := env.do(t, http.MethodPost, "/api/v1/progress/bonus", "u1", map[string]any{"amount": 1000})
	require.Equal(t, http.StatusOK, code)
	var bonus struct {
		NewAchievements []struct {
			ID string `json:"id"`
		} `json:"newAchievements"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &bonus))
	require.NotEmpty(t, bonus.NewAchievements)

	id := bonus.NewAchievements[0].ID
	code, body = env.do(t, http.MethodPost, "/api/v1/progress/achievements/"+id+"/collect", "u1", nil)
	require.Equal(t, http.StatusOK, code)
	collected := decodeData[tracker.CollectResult](t, body)
	assert.Positive(t, collected.XPGained)

	// Second collect credits nothing
	_, body = env.do(t, http.MethodPost, "/api/v1/progress/achievements/"+id+"/collect", "u1", nil)
	assert.Zero(t, decodeData[tracker.CollectResult](t, body).XPGained)

	code, body = env.do(t, http.MethodGet, "/api/v1/progress/achievements", "u1", nil)
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Achievements []struct {
			ID    string `json:"id"`
			State string `json:"state"`
		} `json:"achievements"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &list))
	assert.NotEmpty(t, list.Achievements)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARDS
// ══════════════════════════════════════════════════════════════════════════════

func statsXP(xp int) progress.UserProgress {
	return progress.UserProgress{TotalXP: xp}
}

func seedProfiles(env *testEnv) {
	env.profiles.Put(&profile.Profile{UserID: "u1", Username: "ann", Stats: statsXP(300)})
	env.profiles.Put(&profile.Profile{UserID: "u2", Username: "ben", Stats: statsXP(200), Visibility: profile.Visibility{HideFromGlobal: true}})
	env.profiles.Put(&profile.Profile{UserID: "u3", Username: "cat", Stats: statsXP(100)})
}

func TestServer_GlobalLeaderboard(t *testing.T) {
	env := newTestEnv()
	seedProfiles(env)

	code, body := env.do(t, http.MethodGet, "/api/v1/leaderboard/global?limit=10", "u1", nil)
	require.Equal(t, http.StatusOK, code)
	res := decodeData[query.GetGlobalLeaderboardResult](t, body)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "u1", res.Entries[0].UserID)
	assert.Equal(t, "u3", res.Entries[1].UserID)
	assert.Equal(t, 2, res.Entries[1].Rank)

	code, body = env.do(t, http.MethodGet, "/api/v1/leaderboard/global?metric=coins", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Unknown leaderboard metric", body.Error.Message)

	code, _ = env.do(t, http.MethodGet, "/api/v1/leaderboard/global?limit=ten", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_UserRank(t *testing.T) {
	env := newTestEnv()
	seedProfiles(env)

	_, body := env.do(t, http.MethodGet, "/api/v1/leaderboard/rank", "u3", nil)
	res := decodeData[query.GetUserRankResult](t, body)
	require.NotNil(t, res.Rank)
	assert.Equal(t, 2, *res.Rank)

	_, body = env.do(t, http.MethodGet, "/api/v1/leaderboard/rank", "u2", nil)
	res = decodeData[query.GetUserRankResult](t, body)
	assert.True(t, res.Hidden)
	assert.Nil(t, res.Rank)
}

func TestServer_PrivateLeaderboardLifecycle(t *testing.T) {
	env := newTestEnv()
	seedProfiles(env)

	code, body := env.do(t, http.MethodPost, "/api/v1/leaderboards", "u1", map[string]any{"name": "Friends"})
	require.Equal(t, http.StatusCreated, code)
	var lb struct {
		ID      string `json:"id"`
		OwnerID string `json:"ownerId"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &lb))
	assert.Equal(t, "u1", lb.OwnerID)

	base := "/api/v1/leaderboards/" + lb.ID

	code, _ = env.do(t, http.MethodPost, base+"/members", "u1", map[string]any{"username": "cat"})
	require.Equal(t, http.StatusOK, code)

	code, body = env.do(t, http.MethodPost, base+"/members", "u1", map[string]any{"username": "nobody"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "User not found", body.Error.Message)

	code, body = env.do(t, http.MethodGet, base+"/members", "u1", nil)
	require.Equal(t, http.StatusOK, code)
	members := decodeData[query.GetPrivateLeaderboardMembersResult](t, body)
	require.Len(t, members.Entries, 2)
	assert.Equal(t, "u1", members.Entries[0].UserID)

	code, body = env.do(t, http.MethodGet, "/api/v1/leaderboards", "u3", nil)
	require.Equal(t, http.StatusOK, code)
	var mine struct {
		Leaderboards []struct {
			ID string `json:"id"`
		} `json:"leaderboards"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &mine))
	require.Len(t, mine.Leaderboards, 1)

	code, _ = env.do(t, http.MethodPost, base+"/leave", "u1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = env.do(t, http.MethodPost, base+"/transfer", "u1", map[string]any{"newOwnerId": "u3"})
	require.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodDelete, base+"/members/u3", "u1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = env.do(t, http.MethodPost, base+"/leave", "u1", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodDelete, base, "u3", nil)
	require.Equal(t, http.StatusOK, code)

	code, body = env.do(t, http.MethodGet, base, "u3", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body.Error.Code)
}

func TestServer_UpdatePreferences(t *testing.T) {
	env := newTestEnv()
	seedProfiles(env)

	code, _ := env.do(t, http.MethodPut, "/api/v1/preferences", "u1", map[string]any{"hideFromGlobal": true})
	require.Equal(t, http.StatusOK, code)

	p, err := env.profiles.ReadProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, p.Visibility.HideFromGlobal)

	code, _ = env.do(t, http.MethodPut, "/api/v1/preferences", "u3", map[string]any{"username": "ANN"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestServer_CORSPreflight(t *testing.T) {
	env := newTestEnv()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/progress", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", HeaderUserID)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
