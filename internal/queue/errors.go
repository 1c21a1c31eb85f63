package queue

import "github.com/osohbayr1016/standoff2-sub004/internal/apperr"

var (
	ErrPartySize       = apperr.Validation("PARTY_SIZE", "party must have between 1 and 5 members")
	ErrAlreadyQueued   = apperr.Conflict("ALREADY_QUEUED", "a party member is already queued")
	ErrInLobby         = apperr.Conflict("IN_LOBBY", "a party member is already seated in a lobby")
	ErrNotEnoughQueued = apperr.Conflict("NOT_ENOUGH_QUEUED", "not enough queued players to form a lobby")
)
