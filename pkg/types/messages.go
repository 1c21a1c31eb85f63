// Package types holds the JSON bodies of the REST API.
package types

// ErrorBody is the envelope of every non-2xx response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type QueueJoinRequest struct {
	Members []string `json:"members"`
}

type QueueJoinResponse struct {
	Position int `json:"position"`
}

type QueueLeaveResponse struct {
	Removed bool `json:"removed"`
}

type QueueStatus struct {
	InQueue      bool `json:"in_queue"`
	Position     int  `json:"position"`
	TotalWaiting int  `json:"total_waiting"`
}

type CreateLobbyRequest struct {
	Map        string `json:"map,omitempty"`
	SquadAlpha string `json:"squad_alpha,omitempty"`
	SquadBravo string `json:"squad_bravo,omitempty"`
}

type SelectTeamRequest struct {
	Side string `json:"side"`
}

type KickRequest struct {
	TargetID string `json:"target_id"`
}

type BanRequest struct {
	Map string `json:"map"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type UploadResponse struct {
	URLs []string `json:"urls"`
}

type SubmitResultRequest struct {
	URLs []string `json:"urls"`
}

type ReviewRequest struct {
	WinningSide string `json:"winning_side,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type BotsRequest struct {
	Count   int    `json:"count"`
	LobbyID string `json:"lobby_id,omitempty"`
}

type BotsResponse struct {
	IDs []string `json:"ids"`
}

type SquadRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	LeaderID string `json:"leader_id"`
}

type SquadMatchRequest struct {
	MatchKey string `json:"match_key"`
	Winner   string `json:"winner"`
	Loser    string `json:"loser"`
}

type ProfileRequest struct {
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	GamePlayerID string `json:"game_player_id"`
	Skill        *int   `json:"skill,omitempty"`
	AvatarURL    string `json:"avatar_url,omitempty"`
}
