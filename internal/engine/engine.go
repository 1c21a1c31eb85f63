package engine

import (
	"time"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
)

var (
	ErrLobbyFull          = apperr.Conflict("LOBBY_FULL", "lobby is full")
	ErrLobbyClosed        = apperr.Conflict("LOBBY_CLOSED", "lobby is cancelled or finished")
	ErrLobbyExpired       = apperr.Conflict("LOBBY_EXPIRED", "lobby has expired")
	ErrInvalidState       = apperr.Conflict("INVALID_LOBBY_STATE", "lobby status does not allow this action")
	ErrAlreadyInLobby     = apperr.Conflict("ALREADY_IN_LOBBY", "player is already in the lobby")
	ErrTeamFull           = apperr.Conflict("TEAM_FULL", "team already has five players")
	ErrWrongTurn          = apperr.Conflict("WRONG_TURN", "it is the other team's turn to ban")
	ErrMapAlreadyBanned   = apperr.Conflict("MAP_ALREADY_BANNED", "map is already banned")
	ErrNotInLobby         = apperr.Forbidden("NOT_IN_LOBBY", "caller is not in this lobby")
	ErrNotHost            = apperr.Forbidden("NOT_LOBBY_HOST", "only the lobby host can do this")
	ErrNotBanLeader       = apperr.Forbidden("NOT_BAN_LEADER", "only a team leader can ban maps")
	ErrLobbyNotFound      = apperr.NotFound("LOBBY_NOT_FOUND", "lobby not found")
	ErrPlayerNotFound     = apperr.NotFound("PLAYER_NOT_FOUND", "player is not in this lobby")
	ErrCannotKickSelf     = apperr.Validation("CANNOT_KICK_SELF", "host cannot kick themselves")
	ErrInvalidSide        = apperr.Validation("INVALID_SIDE", "side must be alpha, bravo or unassigned")
	ErrUnknownMap         = apperr.Validation("UNKNOWN_MAP", "map is not in the pool")
	ErrUnsupportedCommand = apperr.Validation("UNSUPPORTED_COMMAND", "unsupported command")
)

const (
	MaxPlayers = 10
	TeamSize   = 5
)

type Side string

const (
	SideAlpha      Side = "alpha"
	SideBravo      Side = "bravo"
	SideUnassigned Side = "unassigned"
)

func (s Side) Other() Side {
	if s == SideAlpha {
		return SideBravo
	}
	return SideAlpha
}

func ParseSide(v string) (Side, bool) {
	switch Side(v) {
	case SideAlpha, SideBravo, SideUnassigned:
		return Side(v), true
	case "":
		return SideUnassigned, true
	}
	return "", false
}

type Status string

const (
	StatusOpen            Status = "OPEN"
	StatusFull            Status = "FULL"
	StatusMapBan          Status = "MAP_BAN"
	StatusReadyCheck      Status = "READY_CHECK"
	StatusLive            Status = "LIVE"
	StatusResultSubmitted Status = "RESULT_SUBMITTED"
	StatusCompleted       Status = "COMPLETED"
	StatusCancelled       Status = "CANCELLED"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

// Expirable reports whether the expiry timestamp applies. A lobby awaiting
// moderation only changes through the result workflow.
func (s Status) Expirable() bool {
	switch s {
	case StatusOpen, StatusFull, StatusMapBan, StatusReadyCheck, StatusLive:
		return true
	}
	return false
}

// Player is the roster snapshot taken from the profile store on join.
type Player struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Skill       int       `json:"skill"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Team        Side      `json:"team"`
	Ready       bool      `json:"ready"`
	IsBot       bool      `json:"is_bot,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

type BanRecord struct {
	Side Side      `json:"side"`
	Map  string    `json:"map"`
	By   string    `json:"by"`
	At   time.Time `json:"at"`
}

type MapBan struct {
	Pool           []string        `json:"pool"`
	Candidates     []string        `json:"candidates"`
	Banned         []string        `json:"banned"`
	History        []BanRecord     `json:"history"`
	CurrentBanTeam Side            `json:"current_ban_team"`
	Selected       string          `json:"selected,omitempty"`
	Leaders        map[Side]string `json:"leaders,omitempty"`
}

type Rules struct {
	LobbyTTL time.Duration `json:"lobby_ttl"`
	MatchTTL time.Duration `json:"match_ttl"`
}

type State struct {
	ID           string    `json:"id"`
	HostID       string    `json:"host_id"`
	Status       Status    `json:"status"`
	Players      []Player  `json:"players"`
	TeamAlpha    []string  `json:"team_alpha"`
	TeamBravo    []string  `json:"team_bravo"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	MapBan       MapBan    `json:"map_ban"`
	AllReady     bool      `json:"all_ready"`
	SquadAlpha   string    `json:"squad_alpha,omitempty"`
	SquadBravo   string    `json:"squad_bravo,omitempty"`
	ResultID     string    `json:"result_id,omitempty"`
	CancelReason string    `json:"cancel_reason,omitempty"`
	Rules        Rules     `json:"rules"`
}

type CommandType string

const (
	CmdJoin          CommandType = "Join"
	CmdLeave         CommandType = "Leave"
	CmdKick          CommandType = "Kick"
	CmdSelectTeam    CommandType = "SelectTeam"
	CmdBan           CommandType = "BanMap"
	CmdMarkReady     CommandType = "MarkReady"
	CmdForceAllReady CommandType = "ForceAllReady"
	CmdSubmitResult  CommandType = "SubmitResult"
	CmdComplete      CommandType = "Complete"
	CmdCancel        CommandType = "Cancel"
	CmdExpire        CommandType = "Expire"
)

/*
	CmdJoin       -> PlayerJoined [-> StatusChanged OPEN->FULL]
	CmdSelectTeam -> TeamSelected [-> StatusChanged ->MAP_BAN]
	CmdBan        -> MapBanned [-> MapSelected -> StatusChanged ->READY_CHECK [->LIVE]]
	CmdMarkReady  -> PlayerReady [-> AllReady -> StatusChanged READY_CHECK->LIVE]
	CmdLeave      -> PlayerLeft | LobbyCancelled (host)
	CmdExpire     -> LobbyCancelled, only once past ExpiresAt
*/

type Command struct {
	Type     CommandType
	UserID   string // actor
	TargetID string
	Side     Side
	Map      string
	Player   Player // snapshot for CmdJoin
	ResultID string
	Reason   string
	At       time.Time
}

type EventType string

const (
	EvtPlayerJoined    EventType = "PlayerJoined"
	EvtPlayerLeft      EventType = "PlayerLeft"
	EvtPlayerKicked    EventType = "PlayerKicked"
	EvtTeamSelected    EventType = "TeamSelected"
	EvtMapBanned       EventType = "MapBanned"
	EvtMapSelected     EventType = "MapSelected"
	EvtPlayerReady     EventType = "PlayerReady"
	EvtAllReady        EventType = "AllReady"
	EvtStatusChanged   EventType = "StatusChanged"
	EvtResultSubmitted EventType = "ResultSubmitted"
	EvtLobbyCancelled  EventType = "LobbyCancelled"
)

type Event struct {
	Type   EventType
	UserID string
	Side   Side
	Map    string
	From   Status
	To     Status
	Reason string
	ByBot  bool
}

// Apply validates cmd against s and returns the resulting events and state.
// s is never modified; on error the returned state is s unchanged. A command
// that changes nothing returns no events.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if s.Status.Terminal() {
		if cmd.Type == CmdExpire {
			return nil, s, nil
		}
		return nil, s, ErrLobbyClosed
	}

	if cmd.Type == CmdExpire {
		if !s.Expired(cmd.At) {
			return nil, s, nil
		}
		ns := s.Clone()
		return cancel(&ns, "expired"), ns, nil
	}
	if s.Expired(cmd.At) {
		return nil, s, ErrLobbyExpired
	}

	ns := s.Clone()
	var (
		events []Event
		err    error
	)
	switch cmd.Type {
	case CmdJoin:
		events, err = join(&ns, cmd)
	case CmdLeave:
		events, err = leave(&ns, cmd.UserID, cmd.At, EvtPlayerLeft)
	case CmdKick:
		events, err = kick(&ns, cmd)
	case CmdSelectTeam:
		events, err = selectTeam(&ns, cmd)
	case CmdBan:
		events, err = ban(&ns, cmd)
	case CmdMarkReady:
		events, err = markReady(&ns, cmd)
	case CmdForceAllReady:
		events, err = forceAllReady(&ns, cmd)
	case CmdSubmitResult:
		events, err = submitResult(&ns, cmd)
	case CmdComplete:
		events, err = complete(&ns)
	case CmdCancel:
		events = cancel(&ns, cmd.Reason)
	default:
		err = ErrUnsupportedCommand
	}
	if err != nil {
		return nil, s, err
	}
	if len(events) == 0 {
		return nil, s, nil
	}
	return events, ns, nil
}

func submitResult(s *State, cmd Command) ([]Event, error) {
	if s.Status != StatusLive && s.Status != StatusResultSubmitted {
		return nil, ErrInvalidState
	}
	if _, ok := s.player(cmd.UserID); !ok {
		return nil, ErrNotInLobby
	}
	s.ResultID = cmd.ResultID
	events := []Event{{Type: EvtResultSubmitted, UserID: cmd.UserID}}
	return append(events, setStatus(s, StatusResultSubmitted)...), nil
}

func complete(s *State) ([]Event, error) {
	if s.Status != StatusResultSubmitted {
		return nil, ErrInvalidState
	}
	return setStatus(s, StatusCompleted), nil
}

func cancel(s *State, reason string) []Event {
	if reason == "" {
		reason = "cancelled"
	}
	s.CancelReason = reason
	events := []Event{{Type: EvtLobbyCancelled, Reason: reason}}
	return append(events, setStatus(s, StatusCancelled)...)
}

func setStatus(s *State, to Status) []Event {
	if s.Status == to {
		return nil
	}
	from := s.Status
	s.Status = to
	return []Event{{Type: EvtStatusChanged, From: from, To: to}}
}
