package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
)

// PrivateLeaderboardStore is an in-memory leaderboard.PrivateLeaderboardStore.
type PrivateLeaderboardStore struct {
	mu      sync.RWMutex
	boards  map[string]*leaderboard.PrivateLeaderboard
	members map[string][]leaderboard.Membership
	now     func() time.Time

	// FailWith, when set, is returned by every call.
	FailWith error
}

// NewPrivateLeaderboardStore creates an empty store.
func NewPrivateLeaderboardStore() *PrivateLeaderboardStore {
	return &PrivateLeaderboardStore{
		boards:  make(map[string]*leaderboard.PrivateLeaderboard),
		members: make(map[string][]leaderboard.Membership),
		now:     time.Now,
	}
}

func (s *PrivateLeaderboardStore) Create(_ context.Context, lb *leaderboard.PrivateLeaderboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	c := *lb
	s.boards[lb.ID] = &c
	s.members[lb.ID] = []leaderboard.Membership{{LeaderboardID: lb.ID, UserID: lb.OwnerID, JoinedAt: lb.CreatedAt}}
	return nil
}

func (s *PrivateLeaderboardStore) Get(_ context.Context, id string) (*leaderboard.PrivateLeaderboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	return s.getLocked(id)
}

func (s *PrivateLeaderboardStore) getLocked(id string) (*leaderboard.PrivateLeaderboard, error) {
	lb, ok := s.boards[id]
	if !ok {
		return nil, leaderboard.ErrLeaderboardNotFound
	}
	c := *lb
	c.MemberCount = len(s.members[id])
	return &c, nil
}

func (s *PrivateLeaderboardStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	if _, ok := s.boards[id]; !ok {
		return leaderboard.ErrLeaderboardNotFound
	}
	delete(s.boards, id)
	delete(s.members, id)
	return nil
}

func (s *PrivateLeaderboardStore) ListForUser(_ context.Context, userID string) ([]*leaderboard.PrivateLeaderboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	var out []*leaderboard.PrivateLeaderboard
	for id := range s.boards {
		if s.indexOf(id, userID) >= 0 {
			lb, _ := s.getLocked(id)
			out = append(out, lb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *PrivateLeaderboardStore) ListMembers(_ context.Context, id string) ([]leaderboard.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	if _, ok := s.boards[id]; !ok {
		return nil, leaderboard.ErrLeaderboardNotFound
	}
	return append([]leaderboard.Membership(nil), s.members[id]...), nil
}

func (s *PrivateLeaderboardStore) IsMember(_ context.Context, id, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailWith != nil {
		return false, s.FailWith
	}
	return s.indexOf(id, userID) >= 0, nil
}

func (s *PrivateLeaderboardStore) AddMember(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	lb, ok := s.boards[id]
	if !ok {
		return leaderboard.ErrLeaderboardNotFound
	}
	if len(s.members[id]) >= lb.MaxMembers {
		return leaderboard.ErrLeaderboardFull
	}
	if s.indexOf(id, userID) >= 0 {
		return leaderboard.ErrAlreadyMember
	}
	s.members[id] = append(s.members[id], leaderboard.Membership{
		LeaderboardID: id,
		UserID:        userID,
		JoinedAt:      s.now().UTC(),
	})
	return nil
}

func (s *PrivateLeaderboardStore) RemoveMember(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	lb, ok := s.boards[id]
	if !ok {
		return leaderboard.ErrLeaderboardNotFound
	}
	if lb.OwnerID == userID {
		return leaderboard.ErrCannotRemoveOwner
	}
	i := s.indexOf(id, userID)
	if i < 0 {
		return leaderboard.ErrMemberNotFound
	}
	m := s.members[id]
	s.members[id] = append(m[:i:i], m[i+1:]...)
	return nil
}

func (s *PrivateLeaderboardStore) TransferOwnership(_ context.Context, id, requesterID, newOwnerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	lb, ok := s.boards[id]
	if !ok {
		return leaderboard.ErrLeaderboardNotFound
	}
	if lb.OwnerID != requesterID {
		return leaderboard.ErrNotOwner
	}
	if newOwnerID == requesterID {
		return leaderboard.ErrAlreadyOwner
	}
	if s.indexOf(id, newOwnerID) < 0 {
		return leaderboard.ErrNewOwnerNotMember
	}
	lb.OwnerID = newOwnerID
	return nil
}

func (s *PrivateLeaderboardStore) indexOf(id, userID string) int {
	for i, m := range s.members[id] {
		if m.UserID == userID {
			return i
		}
	}
	return -1
}
