package engine

import "time"

func markReady(s *State, cmd Command) ([]Event, error) {
	if !s.acceptsReady() {
		return nil, ErrInvalidState
	}
	idx := s.playerIndex(cmd.UserID)
	if idx < 0 {
		return nil, ErrNotInLobby
	}
	if s.Players[idx].Ready {
		return nil, nil
	}
	s.Players[idx].Ready = true

	events := []Event{{Type: EvtPlayerReady, UserID: cmd.UserID}}
	return append(events, settle(s, cmd.At)...), nil
}

func forceAllReady(s *State, cmd Command) ([]Event, error) {
	if !s.acceptsReady() {
		return nil, ErrInvalidState
	}
	var events []Event
	for i := range s.Players {
		if !s.Players[i].Ready {
			s.Players[i].Ready = true
			events = append(events, Event{Type: EvtPlayerReady, UserID: s.Players[i].UserID})
		}
	}
	if len(events) == 0 {
		return nil, nil
	}
	return append(events, settle(s, cmd.At)...), nil
}

// settle recomputes everything derived from the roster: OPEN/FULL, the move
// into MAP_BAN once both teams are complete, the all-ready flag and the
// READY_CHECK -> LIVE transition.
func settle(s *State, at time.Time) []Event {
	var events []Event
	if s.Status == StatusOpen || s.Status == StatusFull {
		if len(s.TeamAlpha) == TeamSize && len(s.TeamBravo) == TeamSize {
			events = append(events, enterMapBan(s, at)...)
		} else {
			to := StatusOpen
			if len(s.Players) >= MaxPlayers {
				to = StatusFull
			}
			events = append(events, setStatus(s, to)...)
		}
	}

	was := s.AllReady
	s.AllReady = allReady(*s)
	if s.AllReady && !was {
		events = append(events, Event{Type: EvtAllReady})
	}
	if s.Status == StatusReadyCheck && s.AllReady {
		events = append(events, setStatus(s, StatusLive)...)
		if s.Rules.MatchTTL > 0 {
			s.ExpiresAt = at.Add(s.Rules.MatchTTL)
		}
	}
	return events
}

func allReady(s State) bool {
	if len(s.Players) < 2 {
		return false
	}
	for _, p := range s.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// resetReady clears the confirmations given for the previous roster. Bots
// confirm on seating and keep their flag.
func resetReady(s *State) {
	for i := range s.Players {
		if !s.Players[i].IsBot {
			s.Players[i].Ready = false
		}
	}
}

func (s *State) acceptsReady() bool {
	switch s.Status {
	case StatusOpen, StatusFull, StatusMapBan, StatusReadyCheck:
		return true
	}
	return false
}
