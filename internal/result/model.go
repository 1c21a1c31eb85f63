package result

import (
	"context"
	"time"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
	"github.com/osohbayr1016/standoff2-sub004/internal/rating"
)

const (
	MinEvidence = 2
	MaxEvidence = 4
	// MaxUploadBytes bounds a single screenshot.
	MaxUploadBytes = 8 << 20
)

var (
	ErrNotFound      = apperr.NotFound("RESULT_NOT_FOUND", "result not found")
	ErrExists        = apperr.Conflict("RESULT_EXISTS", "lobby already has a pending or approved result")
	ErrReviewed      = apperr.Conflict("RESULT_REVIEWED", "result was already reviewed")
	ErrLobbyNotLive  = apperr.Conflict("LOBBY_NOT_LIVE", "results can only be submitted for a live match")
	ErrEvidenceCount = apperr.Validation("EVIDENCE_COUNT", "between 2 and 4 screenshots are required")
	ErrEvidenceURL   = apperr.Validation("EVIDENCE_URL", "evidence must be absolute http(s) urls")
	ErrFileTooLarge  = apperr.Validation("FILE_TOO_LARGE", "screenshot exceeds 8 MiB")
	ErrFileType      = apperr.Validation("FILE_TYPE", "screenshot must be an image")
	ErrWinningSide   = apperr.Validation("INVALID_WINNING_SIDE", "winning side must be alpha or bravo")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Result is the audit record of one submitted outcome. It carries the
// rosters as they stood at submission so approval never depends on the
// lobby actor still running.
type Result struct {
	ID             string      `json:"id"`
	LobbyID        string      `json:"lobby_id"`
	SubmitterID    string      `json:"submitter_id"`
	Evidence       []string    `json:"evidence"`
	Status         Status      `json:"status"`
	WinningSide    engine.Side `json:"winning_side,omitempty"`
	ReviewerID     string      `json:"reviewer_id,omitempty"`
	ReviewedAt     *time.Time  `json:"reviewed_at,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	AlphaIDs       []string    `json:"alpha_ids"`
	BravoIDs       []string    `json:"bravo_ids"`
	SquadAlpha     string      `json:"squad_alpha,omitempty"`
	SquadBravo     string      `json:"squad_bravo,omitempty"`
	EconomyApplied bool        `json:"economy_applied"`
	LobbyCompleted bool        `json:"lobby_completed"`
	CreatedAt      time.Time   `json:"created_at"`
}

// SquadMatch reports whether the economy applies to this result.
func (r Result) SquadMatch() bool { return r.SquadAlpha != "" && r.SquadBravo != "" }

// Review is a moderator decision.
type Review struct {
	ReviewerID  string
	WinningSide engine.Side
	Notes       string
	At          time.Time
	Delta       int
}

type Store interface {
	// CreateResult returns ErrExists when the lobby already has a pending or
	// approved result.
	CreateResult(ctx context.Context, r Result) error
	GetResult(ctx context.Context, id string) (Result, error)
	LatestForLobby(ctx context.Context, lobbyID string) (Result, error)
	ListPending(ctx context.Context) ([]Result, error)
	// ApproveResult moves pending to approved and applies the rating changes
	// of both rosters in the same transaction.
	ApproveResult(ctx context.Context, id string, rv Review) (Result, []rating.Change, error)
	RejectResult(ctx context.Context, id string, rv Review) (Result, error)
	MarkEconomyApplied(ctx context.Context, id string) error
	ListUnappliedEconomy(ctx context.Context) ([]Result, error)
	MarkLobbyCompleted(ctx context.Context, id string) error
	// ListUncompletedLobbies returns approved results whose lobby was not
	// yet moved to COMPLETED.
	ListUncompletedLobbies(ctx context.Context) ([]Result, error)
}
