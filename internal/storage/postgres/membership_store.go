package postgres

import (
	"context"
	"fmt"
)

// MembershipStore reads active membership plans.
type MembershipStore struct {
	pool querier
}

// ActivePlanIDs returns the ids of the plans userID currently holds, in
// ascending order.
func (s *MembershipStore) ActivePlanIDs(ctx context.Context, userID string) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
SELECT plan_id FROM user_memberships
WHERE user_id = $1 AND status = 'active' AND (ends_at IS NULL OR ends_at > now())
ORDER BY plan_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return ids, nil
}
