// Package economy runs the squad bounty-coin economy: coin awards and
// penalties per match, loss protections, and movement between divisions.
package economy

import (
	"time"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
)

var (
	ErrSquadNotFound     = apperr.NotFound("SQUAD_NOT_FOUND", "squad not found")
	ErrSquadExists       = apperr.Conflict("SQUAD_EXISTS", "squad already registered")
	ErrTopDivision       = apperr.Conflict("TOP_DIVISION", "squad is already in the top division")
	ErrInsufficientCoins = apperr.Conflict("INSUFFICIENT_COINS", "not enough bounty coins to upgrade")
	ErrNotSquadLeader    = apperr.Forbidden("NOT_SQUAD_LEADER", "only the squad leader or an admin can do this")
	ErrSameSquad         = apperr.Validation("SAME_SQUAD", "winner and loser must be different squads")
	ErrInvalidSquad      = apperr.Validation("INVALID_SQUAD", "squad id, name and leader are required")
)

// MaxProtections is the loss-protection credit a squad holds after a win,
// an upgrade or a demotion.
const MaxProtections = 2

type Division string

const (
	Bronze Division = "bronze"
	Silver Division = "silver"
	Gold   Division = "gold"
)

// Tier is the payout table of one division.
type Tier struct {
	Division    Division `json:"division"`
	Rank        int      `json:"rank"`
	WinAward    int      `json:"win_award"`
	LossPenalty int      `json:"loss_penalty"`
	UpgradeCost int      `json:"upgrade_cost"`
}

// tiers is ordered low to high.
var tiers = []Tier{
	{Division: Bronze, Rank: 1, WinAward: 50, LossPenalty: 25, UpgradeCost: 200},
	{Division: Silver, Rank: 2, WinAward: 75, LossPenalty: 40, UpgradeCost: 400},
	{Division: Gold, Rank: 3, WinAward: 100, LossPenalty: 60},
}

func TierOf(d Division) (Tier, bool) {
	for _, t := range tiers {
		if t.Division == d {
			return t, true
		}
	}
	return Tier{}, false
}

func next(d Division) (Division, bool) {
	t, ok := TierOf(d)
	if !ok || t.Rank >= len(tiers) {
		return "", false
	}
	return tiers[t.Rank].Division, true
}

func prev(d Division) (Division, bool) {
	t, ok := TierOf(d)
	if !ok || t.Rank <= 1 {
		return "", false
	}
	return tiers[t.Rank-2].Division, true
}

type Squad struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	LeaderID          string    `json:"leader_id"`
	Division          Division  `json:"division"`
	Coins             int       `json:"coins"`
	TotalCoins        int       `json:"total_coins"`
	Protections       int       `json:"protections"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewSquad starts a squad in the lowest division with full protection.
func NewSquad(id, name, leaderID string) Squad {
	return Squad{ID: id, Name: name, LeaderID: leaderID, Division: Bronze, Protections: MaxProtections}
}

// Outcome describes what one match did to one squad.
type Outcome struct {
	SquadID        string   `json:"squad_id"`
	CoinsDelta     int      `json:"coins_delta"`
	From           Division `json:"from"`
	To             Division `json:"to"`
	Demoted        bool     `json:"demoted,omitempty"`
	ProtectionUsed bool     `json:"protection_used,omitempty"`
}

// ApplyWin awards the division's coins, clears the loss streak and restores
// protections.
func ApplyWin(s Squad) (Squad, Outcome) {
	t, _ := TierOf(s.Division)
	s.Coins += t.WinAward
	s.TotalCoins += t.WinAward
	s.ConsecutiveLosses = 0
	s.Protections = MaxProtections
	return s, Outcome{SquadID: s.ID, CoinsDelta: t.WinAward, From: s.Division, To: s.Division}
}

// ApplyLoss extends the loss streak. A squad holding protection pays nothing;
// a protection is spent only to avoid a demotion. An unprotected squad pays
// the division penalty (never below zero coins) and drops a division once it
// is broke with two or more straight losses.
func ApplyLoss(s Squad) (Squad, Outcome) {
	t, _ := TierOf(s.Division)
	out := Outcome{SquadID: s.ID, From: s.Division, To: s.Division}
	s.ConsecutiveLosses++

	demotable := func() bool { return s.Coins == 0 && s.ConsecutiveLosses >= 2 }

	if s.Protections > 0 {
		if demotable() {
			s.Protections--
			out.ProtectionUsed = true
		}
		return s, out
	}

	paid := min(t.LossPenalty, s.Coins)
	s.Coins -= paid
	out.CoinsDelta = -paid

	if demotable() {
		if lower, ok := prev(s.Division); ok {
			s.Division = lower
			s.Coins = 0
			s.Protections = MaxProtections
			s.ConsecutiveLosses = 0
			out.To = lower
			out.Demoted = true
		}
	}
	return s, out
}

// Upgrade spends the division's upgrade cost to move up one division.
// Leftover coins carry over.
func Upgrade(s Squad) (Squad, error) {
	higher, ok := next(s.Division)
	if !ok {
		return s, ErrTopDivision
	}
	t, _ := TierOf(s.Division)
	if s.Coins < t.UpgradeCost {
		return s, ErrInsufficientCoins
	}
	s.Coins -= t.UpgradeCost
	s.Division = higher
	s.Protections = MaxProtections
	s.ConsecutiveLosses = 0
	return s, nil
}
