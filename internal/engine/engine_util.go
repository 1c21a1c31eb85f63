package engine

import (
	"slices"
	"time"
)

// Options describe a new lobby. The host is seated on team alpha.
type Options struct {
	ID         string
	Host       Player
	Pool       []string
	InitialMap string
	SquadAlpha string
	SquadBravo string
	Rules      Rules
	At         time.Time
}

// NewState builds a lobby in OPEN. With an initial map the pool collapses to
// that single map, so the ban phase closes as soon as it opens.
func NewState(o Options) (State, error) {
	if len(o.Pool) == 0 {
		return State{}, ErrUnknownMap
	}
	pool := append([]string(nil), o.Pool...)
	if o.InitialMap != "" {
		m, ok := InPool(o.Pool, o.InitialMap)
		if !ok {
			return State{}, ErrUnknownMap
		}
		pool = []string{m}
	}

	host := o.Host
	host.Team = SideAlpha
	host.Ready = false
	host.JoinedAt = o.At

	s := State{
		ID:         o.ID,
		HostID:     host.UserID,
		Status:     StatusOpen,
		Players:    []Player{host},
		TeamAlpha:  []string{host.UserID},
		CreatedAt:  o.At,
		SquadAlpha: o.SquadAlpha,
		SquadBravo: o.SquadBravo,
		Rules:      o.Rules,
		MapBan:     MapBan{Pool: pool},
	}
	if o.Rules.LobbyTTL > 0 {
		s.ExpiresAt = o.At.Add(o.Rules.LobbyTTL)
	}
	resetMapBan(&s)
	return s, nil
}

// Clone returns a deep copy so reducers never alias the caller's slices.
func (s State) Clone() State {
	c := s
	c.Players = slices.Clone(s.Players)
	c.TeamAlpha = slices.Clone(s.TeamAlpha)
	c.TeamBravo = slices.Clone(s.TeamBravo)
	c.MapBan.Pool = slices.Clone(s.MapBan.Pool)
	c.MapBan.Candidates = slices.Clone(s.MapBan.Candidates)
	c.MapBan.Banned = slices.Clone(s.MapBan.Banned)
	c.MapBan.History = slices.Clone(s.MapBan.History)
	if s.MapBan.Leaders != nil {
		c.MapBan.Leaders = make(map[Side]string, len(s.MapBan.Leaders))
		for k, v := range s.MapBan.Leaders {
			c.MapBan.Leaders[k] = v
		}
	}
	return c
}

// Expired reports whether at is past the expiry of a lobby that can expire.
// It holds even before the sweep has cancelled the lobby.
func (s State) Expired(at time.Time) bool {
	return s.Status.Expirable() && !s.ExpiresAt.IsZero() && at.After(s.ExpiresAt)
}

// Members returns every rostered user id.
func (s State) Members() []string {
	ids := make([]string, len(s.Players))
	for i, p := range s.Players {
		ids[i] = p.UserID
	}
	return ids
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
