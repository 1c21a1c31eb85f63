// Package profile is the read side of the external profile store.
package profile

import (
	"context"
	"strings"
	"sync"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
)

// DefaultSkill is the rating given to a profile that has never played.
const DefaultSkill = 1000

var (
	ErrNotFound     = apperr.NotFound("PROFILE_NOT_FOUND", "profile not found")
	ErrIncomplete   = apperr.Validation("PROFILE_INCOMPLETE", "profile is missing the in-game player id")
	ErrNoProfile    = apperr.Validation("PROFILE_MISSING", "party member has no profile")
	ErrEmptyUserID  = apperr.Validation("EMPTY_USER_ID", "user id is required")
	ErrDuplicateIDs = apperr.Validation("DUPLICATE_MEMBER", "party member listed twice")
)

type Profile struct {
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	GamePlayerID string `json:"game_player_id"`
	Skill        int    `json:"skill"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	IsBot        bool   `json:"is_bot,omitempty"`
}

type Store interface {
	// Get returns ErrNotFound for unknown users; other errors are dependency failures.
	Get(ctx context.Context, userID string) (Profile, error)
}

// Writer creates or replaces profiles. Only synthetic bot profiles are
// written from inside the matchmaking core.
type Writer interface {
	Put(ctx context.Context, p Profile) error
}

// Validate checks the fields a player needs to queue and play.
func Validate(p Profile) error {
	if strings.TrimSpace(p.GamePlayerID) == "" {
		return ErrIncomplete
	}
	return nil
}

// Memory is an in-process Store used by tests and local runs.
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewMemory(ps ...Profile) *Memory {
	m := &Memory{profiles: map[string]Profile{}}
	for _, p := range ps {
		m.profiles[p.UserID] = p
	}
	return m
}

func (m *Memory) Get(_ context.Context, userID string) (Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) Put(_ context.Context, p Profile) error {
	m.mu.Lock()
	m.profiles[p.UserID] = p
	m.mu.Unlock()
	return nil
}
