// Package rating holds the fixed-delta skill adjustment applied when a
// match result is approved.
package rating

// DefaultDelta is the skill moved per approved match.
const DefaultDelta = 25

// Member is a rostered player and the skill they held when the match was
// reviewed.
type Member struct {
	UserID string
	Skill  int
}

type Change struct {
	UserID string
	Before int
	After  int
	Won    bool
}

// Adjust moves skill by delta, up for a win and down for a loss. The result
// never drops below zero.
func Adjust(skill int, won bool, delta int) int {
	if won {
		return skill + delta
	}
	if skill-delta < 0 {
		return 0
	}
	return skill - delta
}

// Plan computes the change for every player of both sides. Applying the plan
// is the caller's job and must happen as one unit.
func Plan(winners, losers []Member, delta int) []Change {
	changes := make([]Change, 0, len(winners)+len(losers))
	for _, m := range winners {
		changes = append(changes, Change{UserID: m.UserID, Before: m.Skill, After: Adjust(m.Skill, true, delta), Won: true})
	}
	for _, m := range losers {
		changes = append(changes, Change{UserID: m.UserID, Before: m.Skill, After: Adjust(m.Skill, false, delta)})
	}
	return changes
}
