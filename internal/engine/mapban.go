package engine

import (
	"math/rand"
	"slices"
	"time"

	"golang.org/x/text/cases"
)

func ban(s *State, cmd Command) ([]Event, error) {
	if s.Status != StatusMapBan {
		return nil, ErrInvalidState
	}
	mb := &s.MapBan

	idx := slices.IndexFunc(mb.Candidates, func(m string) bool { return sameMap(m, cmd.Map) })
	if idx < 0 {
		if slices.ContainsFunc(mb.Banned, func(m string) bool { return sameMap(m, cmd.Map) }) {
			return nil, ErrMapAlreadyBanned
		}
		return nil, ErrUnknownMap
	}

	turn := mb.CurrentBanTeam
	switch cmd.UserID {
	case mb.Leaders[turn]:
	case mb.Leaders[turn.Other()]:
		return nil, ErrWrongTurn
	default:
		return nil, ErrNotBanLeader
	}

	name := mb.Candidates[idx]
	mb.Candidates = slices.Delete(mb.Candidates, idx, idx+1)
	mb.Banned = append(mb.Banned, name)
	mb.History = append(mb.History, BanRecord{Side: turn, Map: name, By: cmd.UserID, At: cmd.At})
	mb.CurrentBanTeam = turnFor(len(mb.Banned))

	p, _ := s.player(cmd.UserID)
	events := []Event{{Type: EvtMapBanned, UserID: cmd.UserID, Side: turn, Map: name, ByBot: p.IsBot}}
	if len(mb.Candidates) == 1 {
		events = append(events, closeMapBan(s, cmd.At)...)
	}
	return events, nil
}

// enterMapBan opens the negotiation with the full pool and freshly elected
// leaders. A single-map pool closes immediately.
func enterMapBan(s *State, at time.Time) []Event {
	resetMapBan(s)
	s.MapBan.Leaders = BanLeaders(*s)
	events := setStatus(s, StatusMapBan)
	if len(s.MapBan.Candidates) == 1 {
		events = append(events, closeMapBan(s, at)...)
	}
	return events
}

func closeMapBan(s *State, at time.Time) []Event {
	s.MapBan.Selected = s.MapBan.Candidates[0]
	events := []Event{{Type: EvtMapSelected, Map: s.MapBan.Selected}}
	events = append(events, setStatus(s, StatusReadyCheck)...)
	return append(events, settle(s, at)...)
}

func resetMapBan(s *State) {
	s.MapBan.Candidates = append([]string(nil), s.MapBan.Pool...)
	s.MapBan.Banned = nil
	s.MapBan.History = nil
	s.MapBan.CurrentBanTeam = SideAlpha
	s.MapBan.Selected = ""
	s.MapBan.Leaders = nil
}

// BotToMove returns the bot leader whose turn it is to ban, if any.
func BotToMove(s State) (string, bool) {
	if s.Status != StatusMapBan {
		return "", false
	}
	id := s.MapBan.Leaders[s.MapBan.CurrentBanTeam]
	p, ok := s.player(id)
	if !ok || !p.IsBot {
		return "", false
	}
	return id, true
}

// RandomLegalMap picks a uniformly random map still open to banning.
func RandomLegalMap(s State, rng *rand.Rand) (string, bool) {
	if s.Status != StatusMapBan || len(s.MapBan.Candidates) < 2 {
		return "", false
	}
	return s.MapBan.Candidates[rng.Intn(len(s.MapBan.Candidates))], true
}

// InPool reports whether name matches a map of pool, returning its canonical spelling.
func InPool(pool []string, name string) (string, bool) {
	for _, m := range pool {
		if sameMap(m, name) {
			return m, true
		}
	}
	return "", false
}

// sameMap compares map names case-insensitively. Casers are stateful, so a
// fresh one is used per call.
func sameMap(a, b string) bool {
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}
