package events

// QueueChanged is published after every successful queue mutation.
type QueueChanged struct {
	TotalWaiting int
}

// LobbyChanged is published after a lobby commits a new state version.
type LobbyChanged struct {
	LobbyID string
	Status  string
	Version int
}

// ResultReviewed is published once a moderator approves or rejects a result.
type ResultReviewed struct {
	ResultID    string
	LobbyID     string
	Status      string
	WinningSide string
}
