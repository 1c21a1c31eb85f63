package types

import "time"

// MapBanStatus is the negotiation view of a lobby.
type MapBanStatus struct {
	LobbyID        string            `json:"lobby_id"`
	Status         string            `json:"status"`
	Pool           []string          `json:"pool"`
	Candidates     []string          `json:"candidates"`
	Banned         []string          `json:"banned"`
	History        []BanEntry        `json:"history"`
	CurrentBanTeam string            `json:"current_ban_team,omitempty"`
	Leaders        map[string]string `json:"leaders,omitempty"`
	Selected       string            `json:"selected,omitempty"`
}

type BanEntry struct {
	Side string    `json:"side"`
	Map  string    `json:"map"`
	By   string    `json:"by"`
	At   time.Time `json:"at"`
}
