package memory

import (
	"context"
	"sync"
)

// MembershipStore maps user ids to their active membership plan ids.
type MembershipStore struct {
	mu    sync.RWMutex
	plans map[string][]int64
}

// NewMembershipStore constructs a store seeded with plans. The seed is copied.
func NewMembershipStore(plans map[string][]int64) *MembershipStore {
	s := &MembershipStore{plans: make(map[string][]int64, len(plans))}
	for user, ids := range plans {
		s.plans[user] = append([]int64(nil), ids...)
	}
	return s
}

// ActivePlanIDs returns the plan ids for userID; unknown users have none.
func (s *MembershipStore) ActivePlanIDs(_ context.Context, userID string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64{}, s.plans[userID]...), nil
}

// SetPlans replaces the plan ids for userID. An empty list removes the user.
func (s *MembershipStore) SetPlans(userID string, planIDs []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(planIDs) == 0 {
		delete(s.plans, userID)
		return
	}
	s.plans[userID] = append([]int64(nil), planIDs...)
}
