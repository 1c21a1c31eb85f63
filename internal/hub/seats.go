package hub

import (
	"sync"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
	"github.com/osohbayr1016/standoff2-sub004/internal/lobby"
)

var ErrSeated = apperr.Conflict("ALREADY_SEATED", "player already sits in another lobby")

// seating indexes which running lobby each user sits in. Committed rosters
// come in through sync; reserve holds a seat while a join is in flight so
// two lobbies cannot both admit the same user.
type seating struct {
	mu      sync.Mutex
	byLobby map[string][]string
	byUser  map[string]string
	pending map[string]string
}

func newSeating() *seating {
	return &seating{byLobby: map[string][]string{}, byUser: map[string]string{}, pending: map[string]string{}}
}

func (t *seating) SeatOf(userID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byUser[userID]; ok {
		return id, true
	}
	id, ok := t.pending[userID]
	return id, ok
}

func (t *seating) reserve(lobbyID string, userIDs ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, u := range userIDs {
		if id, ok := t.byUser[u]; ok && id != lobbyID {
			return ErrSeated
		}
		if id, ok := t.pending[u]; ok && id != lobbyID {
			return ErrSeated
		}
	}
	for _, u := range userIDs {
		t.pending[u] = lobbyID
	}
	return nil
}

func (t *seating) release(lobbyID string, userIDs ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, u := range userIDs {
		if t.pending[u] == lobbyID {
			delete(t.pending, u)
		}
	}
}

// sync replaces the roster recorded for a lobby. Terminal lobbies free all
// their seats.
func (t *seating) sync(snap lobby.Snapshot) {
	st := snap.State
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, u := range t.byLobby[st.ID] {
		if t.byUser[u] == st.ID {
			delete(t.byUser, u)
		}
	}
	if st.Status.Terminal() {
		delete(t.byLobby, st.ID)
		return
	}
	members := st.Members()
	t.byLobby[st.ID] = members
	for _, u := range members {
		t.byUser[u] = st.ID
	}
}

func (t *seating) drop(lobbyID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, u := range t.byLobby[lobbyID] {
		if t.byUser[u] == lobbyID {
			delete(t.byUser, u)
		}
	}
	delete(t.byLobby, lobbyID)
}
