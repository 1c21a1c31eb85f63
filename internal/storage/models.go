package storage

import (
	"time"

	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
)

type profileRow struct {
	UserID       string `gorm:"primaryKey;size:64"`
	DisplayName  string `gorm:"size:64"`
	GamePlayerID string `gorm:"size:64"`
	Skill        int    `gorm:"not null;default:1000"`
	AvatarURL    string
	IsBot        bool `gorm:"not null;default:false"`
	UpdatedAt    time.Time
}

func (profileRow) TableName() string { return "profiles" }

type lobbyRow struct {
	ID        string       `gorm:"primaryKey;size:64"`
	Status    string       `gorm:"size:32;index"`
	HostID    string       `gorm:"size:64"`
	Version   int          `gorm:"not null"`
	State     engine.State `gorm:"serializer:json"`
	ExpiresAt time.Time
	UpdatedAt time.Time
}

func (lobbyRow) TableName() string { return "lobbies" }

type resultRow struct {
	ID             string   `gorm:"primaryKey;size:64"`
	LobbyID        string   `gorm:"size:64;index;not null"`
	SubmitterID    string   `gorm:"size:64;not null"`
	Evidence       []string `gorm:"serializer:json"`
	Status         string   `gorm:"size:16;index;not null"`
	WinningSide    string   `gorm:"size:16"`
	ReviewerID     string   `gorm:"size:64"`
	ReviewedAt     *time.Time
	Notes          string
	AlphaIDs       []string `gorm:"serializer:json"`
	BravoIDs       []string `gorm:"serializer:json"`
	SquadAlpha     string   `gorm:"size:64"`
	SquadBravo     string   `gorm:"size:64"`
	EconomyApplied bool     `gorm:"not null;default:false"`
	LobbyCompleted bool     `gorm:"not null;default:false"`
	CreatedAt      time.Time
}

func (resultRow) TableName() string { return "match_results" }

type squadRow struct {
	ID                string `gorm:"primaryKey;size:64"`
	Name              string `gorm:"size:64;not null"`
	LeaderID          string `gorm:"size:64;not null"`
	Division          string `gorm:"size:16;not null"`
	Coins             int    `gorm:"not null;default:0"`
	TotalCoins        int    `gorm:"not null;default:0"`
	Protections       int    `gorm:"not null;default:0"`
	ConsecutiveLosses int    `gorm:"not null;default:0"`
	Version           int    `gorm:"not null;default:0"`
	UpdatedAt         time.Time
}

func (squadRow) TableName() string { return "squads" }

// squadMatchRow is the economy ledger; its key makes a match count once.
type squadMatchRow struct {
	MatchKey  string `gorm:"primaryKey;size:64"`
	WinnerID  string `gorm:"size:64;not null"`
	LoserID   string `gorm:"size:64;not null"`
	CreatedAt time.Time
}

func (squadMatchRow) TableName() string { return "squad_matches" }
