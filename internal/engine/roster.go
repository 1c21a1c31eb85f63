package engine

import (
	"slices"
	"time"
)

func join(s *State, cmd Command) ([]Event, error) {
	p := cmd.Player
	if p.UserID == "" {
		p.UserID = cmd.UserID
	}
	if _, ok := s.player(p.UserID); ok {
		return nil, ErrAlreadyInLobby
	}
	switch s.Status {
	case StatusOpen:
	case StatusFull:
		return nil, ErrLobbyFull
	default:
		return nil, ErrInvalidState
	}
	if len(s.Players) >= MaxPlayers {
		return nil, ErrLobbyFull
	}

	p.Team = SideUnassigned
	p.Ready = false
	if p.JoinedAt.IsZero() {
		p.JoinedAt = cmd.At
	}
	s.Players = append(s.Players, p)

	events := []Event{{Type: EvtPlayerJoined, UserID: p.UserID}}
	return append(events, settle(s, cmd.At)...), nil
}

func selectTeam(s *State, cmd Command) ([]Event, error) {
	if s.Status != StatusOpen && s.Status != StatusFull {
		return nil, ErrInvalidState
	}
	idx := s.playerIndex(cmd.UserID)
	if idx < 0 {
		return nil, ErrNotInLobby
	}
	side, ok := ParseSide(string(cmd.Side))
	if !ok {
		return nil, ErrInvalidSide
	}
	if s.Players[idx].Team == side {
		return nil, nil
	}
	if side != SideUnassigned && len(s.team(side)) >= TeamSize {
		return nil, ErrTeamFull
	}

	s.unassign(cmd.UserID)
	s.Players[idx].Team = side
	switch side {
	case SideAlpha:
		s.TeamAlpha = append(s.TeamAlpha, cmd.UserID)
	case SideBravo:
		s.TeamBravo = append(s.TeamBravo, cmd.UserID)
	}

	events := []Event{{Type: EvtTeamSelected, UserID: cmd.UserID, Side: side}}
	return append(events, settle(s, cmd.At)...), nil
}

func kick(s *State, cmd Command) ([]Event, error) {
	if cmd.UserID != s.HostID {
		return nil, ErrNotHost
	}
	if cmd.TargetID == cmd.UserID {
		return nil, ErrCannotKickSelf
	}
	if _, ok := s.player(cmd.TargetID); !ok {
		return nil, ErrPlayerNotFound
	}
	return leave(s, cmd.TargetID, cmd.At, EvtPlayerKicked)
}

// leave removes userID. The host leaving cancels the lobby; there is no
// leadership hand-off.
func leave(s *State, userID string, at time.Time, evt EventType) ([]Event, error) {
	idx := s.playerIndex(userID)
	if idx < 0 {
		return nil, ErrNotInLobby
	}
	if s.Status == StatusResultSubmitted {
		return nil, ErrInvalidState
	}
	if userID == s.HostID {
		return cancel(s, "host left"), nil
	}
	if s.Status == StatusLive {
		return nil, ErrInvalidState
	}

	s.unassign(userID)
	s.Players = slices.Delete(s.Players, idx, idx+1)

	events := []Event{{Type: evt, UserID: userID}}
	if s.Status == StatusMapBan || s.Status == StatusReadyCheck {
		resetMapBan(s)
		resetReady(s)
		events = append(events, setStatus(s, StatusOpen)...)
	}
	return append(events, settle(s, at)...), nil
}

// BanLeaders picks, per side, the player with the highest skill; ties go to
// the earliest joiner, then roster order.
func BanLeaders(s State) map[Side]string {
	leaders := map[Side]string{}
	for _, side := range []Side{SideAlpha, SideBravo} {
		var best *Player
		for i := range s.Players {
			p := &s.Players[i]
			if p.Team != side {
				continue
			}
			if best == nil || p.Skill > best.Skill || (p.Skill == best.Skill && p.JoinedAt.Before(best.JoinedAt)) {
				best = p
			}
		}
		if best != nil {
			leaders[side] = best.UserID
		}
	}
	return leaders
}

func (s *State) team(side Side) []string {
	switch side {
	case SideAlpha:
		return s.TeamAlpha
	case SideBravo:
		return s.TeamBravo
	}
	return nil
}

func (s *State) unassign(userID string) {
	s.TeamAlpha = slices.DeleteFunc(s.TeamAlpha, func(id string) bool { return id == userID })
	s.TeamBravo = slices.DeleteFunc(s.TeamBravo, func(id string) bool { return id == userID })
	if i := s.playerIndex(userID); i >= 0 {
		s.Players[i].Team = SideUnassigned
	}
}

func (s *State) playerIndex(userID string) int {
	return slices.IndexFunc(s.Players, func(p Player) bool { return p.UserID == userID })
}

func (s *State) player(userID string) (Player, bool) {
	if i := s.playerIndex(userID); i >= 0 {
		return s.Players[i], true
	}
	return Player{}, false
}

// Player returns the roster snapshot of userID.
func (s State) Player(userID string) (Player, bool) { return s.player(userID) }
