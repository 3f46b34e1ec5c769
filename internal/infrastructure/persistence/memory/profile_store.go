// Package memory provides process-local implementations of the profile,
// ranking, membership and local-cache contracts. They back development mode
// (STORAGE_DRIVER=memory) and application-layer tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
	"github.com/studyquest/studyquest-core/internal/domain/profile"
	"github.com/studyquest/studyquest-core/internal/domain/progress"
)

// ProfileStore is an in-memory profile.Store and leaderboard.RankingSource.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*profile.Profile
	now      func() time.Time

	// FailWith, when set, is returned by every call.
	FailWith error
}

// NewProfileStore creates an empty store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles: make(map[string]*profile.Profile),
		now:      time.Now,
	}
}

// Put inserts or replaces a whole profile.
func (s *ProfileStore) Put(p *profile.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = cloneProfile(p)
}

// ReadProfile implements profile.Store.
func (s *ProfileStore) ReadProfile(_ context.Context, userID string) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	p, ok := s.profiles[userID]
	if !ok {
		return nil, profile.ErrProfileNotFound
	}
	return cloneProfile(p), nil
}

// WriteProfile implements profile.Store.
func (s *ProfileStore) WriteProfile(_ context.Context, userID string, u profile.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}

	if u.Username != nil {
		name := profile.NormalizeUsername(*u.Username)
		for id, other := range s.profiles {
			if id != userID && strings.EqualFold(other.Username, name) {
				return profile.ErrUsernameTaken
			}
		}
	}

	p, ok := s.profiles[userID]
	if !ok {
		p = &profile.Profile{UserID: userID, Stats: *progress.New()}
		s.profiles[userID] = p
	}
	if u.Stats != nil {
		p.Stats = *u.Stats.Clone()
	}
	if u.Username != nil {
		p.Username = profile.NormalizeUsername(*u.Username)
	}
	if u.Visibility != nil {
		p.Visibility = *u.Visibility
	}
	p.UpdatedAt = s.now().UTC()
	return nil
}

// ResolveUsername implements profile.Store.
func (s *ProfileStore) ResolveUsername(_ context.Context, username string) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	name := profile.NormalizeUsername(username)
	for _, p := range s.profiles {
		if name != "" && strings.EqualFold(p.Username, name) {
			return cloneProfile(p), nil
		}
	}
	return nil, profile.ErrProfileNotFound
}

// GetProfiles implements profile.Store.
func (s *ProfileStore) GetProfiles(_ context.Context, userIDs []string) ([]*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	out := make([]*profile.Profile, 0, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.profiles[id]; ok {
			out = append(out, cloneProfile(p))
		}
	}
	return out, nil
}

// HiddenUserIDs implements leaderboard.RankingSource.
func (s *ProfileStore) HiddenUserIDs(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	hidden := make(map[string]struct{})
	for id, p := range s.profiles {
		if p.Visibility.HideFromGlobal {
			hidden[id] = struct{}{}
		}
	}
	return hidden, nil
}

// QueryRanked implements leaderboard.RankingSource.
func (s *ProfileStore) QueryRanked(_ context.Context, m leaderboard.Metric, limit, offset int) ([]leaderboard.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	entries := make([]leaderboard.Entry, 0, len(s.profiles))
	for _, p := range s.profiles {
		entries = append(entries, leaderboard.Entry{
			UserID:    p.UserID,
			Username:  p.Username,
			TotalXP:   p.Stats.TotalXP,
			DayStreak: p.Stats.DayStreak,
		})
	}
	leaderboard.Sort(entries, m)

	offset = max(0, offset)
	if offset >= len(entries) {
		return []leaderboard.Entry{}, nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}

// ExpireDayStreaks zeroes streaks whose last valid day is before yesterday.
func (s *ProfileStore) ExpireDayStreaks(_ context.Context, today time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return 0, s.FailWith
	}
	var n int64
	for _, p := range s.profiles {
		if progress.StreakExpired(p.Stats.LastValidStreakDate, today) {
			p.Stats.DayStreak = 0
			p.Stats.LastValidStreakDate = nil
			p.UpdatedAt = s.now().UTC()
			n++
		}
	}
	return n, nil
}

func cloneProfile(p *profile.Profile) *profile.Profile {
	c := *p
	c.Stats = *p.Stats.Clone()
	return &c
}
