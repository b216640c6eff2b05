package tracking

import "context"

// MembershipSource lists the membership plans a user currently holds.
type MembershipSource interface {
	ActivePlanIDs(ctx context.Context, userID string) ([]int64, error)
}

// TeamFunc maps a user and their active plan ids to a team name. An empty
// result means no team dimension is sent.
type TeamFunc func(userID string, planIDs []int64) string

// Team assigns a team name to holders of one plan.
type Team struct {
	PlanID int64
	Name   string
}

// PlanTeams returns a TeamFunc that picks the first team in teams whose plan
// the user holds.
func PlanTeams(teams []Team) TeamFunc {
	table := append([]Team(nil), teams...)
	return func(_ string, planIDs []int64) string {
		held := make(map[int64]struct{}, len(planIDs))
		for _, id := range planIDs {
			held[id] = struct{}{}
		}
		for _, team := range table {
			if _, ok := held[team.PlanID]; ok {
				return team.Name
			}
		}
		return ""
	}
}
