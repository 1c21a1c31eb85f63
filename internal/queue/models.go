package queue

import "time"

// MaxPartySize is the largest group that may queue as one unit.
const MaxPartySize = 5

// Entry is one queuing unit: a solo player or a party led by Requester.
type Entry struct {
	ID        string    `json:"id"`
	Requester string    `json:"requester"`
	Members   []string  `json:"members"` // requester first
	AvgSkill  int       `json:"avg_skill"`
	JoinedAt  time.Time `json:"joined_at"`
}

func (e Entry) Size() int { return len(e.Members) }

func (e Entry) has(userID string) bool {
	for _, m := range e.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Status is the caller-facing view of the queue.
type Status struct {
	InQueue      bool
	Position     int
	TotalWaiting int
}
