package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osohbayr1016/standoff2-sub004/internal/auth"
	"github.com/osohbayr1016/standoff2-sub004/internal/bots"
	"github.com/osohbayr1016/standoff2-sub004/internal/economy"
	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
	"github.com/osohbayr1016/standoff2-sub004/internal/events"
	"github.com/osohbayr1016/standoff2-sub004/internal/hub"
	"github.com/osohbayr1016/standoff2-sub004/internal/imagehost"
	"github.com/osohbayr1016/standoff2-sub004/internal/lobby"
	"github.com/osohbayr1016/standoff2-sub004/internal/queue"
	"github.com/osohbayr1016/standoff2-sub004/internal/result"
	"github.com/osohbayr1016/standoff2-sub004/internal/storage"
	"github.com/osohbayr1016/standoff2-sub004/internal/ws"
	"github.com/osohbayr1016/standoff2-sub004/pkg/types"
)

var testPool = []string{"Sandstone", "Province", "Rust", "Zone 7", "Dune", "Breeze", "Hanami"}

type testServer struct {
	srv   *httptest.Server
	store *storage.Store
	auth  *auth.Verifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := storage.Open(storage.DriverSQLite, filepath.Join(t.TempDir(), "api.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	var uploads int64
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&uploads, 1)
		fmt.Fprintf(w, `{"success":true,"data":{"url":"https://i.example/%d.png"}}`, n)
	}))
	t.Cleanup(images.Close)

	base := time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)
	var ticks int64
	clock := func() time.Time { return base.Add(time.Duration(atomic.AddInt64(&ticks, 1)) * time.Second) }

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	bus := events.NewBus(nil)
	q := queue.NewManager(queue.NewMemoryStore(), st, bus, nil, queue.WithClock(clock))
	lobbies := hub.NewService(ctx, st, st, q, bus, hub.Config{
		MapPool:     testPool,
		Rules:       engine.Rules{LobbyTTL: time.Hour, MatchTTL: 3 * time.Hour},
		BotBanDelay: time.Millisecond,
	}, nil)
	t.Cleanup(lobbies.Shutdown)
	econ := economy.NewService(st, nil)
	verifier := auth.NewVerifier("test-secret")

	h := SetupRoutes(Deps{
		Lobbies:  lobbies,
		Queue:    q,
		Results:  result.NewService(st, lobbies, imagehost.New(images.URL, "k"), econ, bus, nil, 25),
		Economy:  econ,
		Bots:     bots.NewFiller(st, q, lobbies, nil),
		Profiles: st,
		Streams:  ws.NewHandler(lobbies, bus, nil),
		Verifier: verifier,
		Health:   map[string]func(context.Context) error{"database": st.Ping},
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: st, auth: verifier}
}

func (ts *testServer) token(t *testing.T, uid string, role auth.Role) string {
	t.Helper()
	tok, err := ts.auth.Issue(uid, role, time.Hour)
	require.NoError(t, err)
	return tok
}

// call sends body as JSON (or raw when it is an io.Reader) and decodes the
// response into out when out is non-nil.
func (ts *testServer) call(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case multipartBody:
		rd, contentType = b.buf, b.contentType
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type multipartBody struct {
	buf         *bytes.Buffer
	contentType string
}

func screenshots(t *testing.T, n int) multipartBody {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i := 0; i < n; i++ {
		fw, err := mw.CreateFormFile("files", fmt.Sprintf("shot-%d.png", i))
		require.NoError(t, err)
		_, err = fw.Write([]byte("\x89PNG\r\n\x1a\nscoreboard"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return multipartBody{buf: &buf, contentType: mw.FormDataContentType()}
}

func TestAuthAndRoles(t *testing.T) {
	ts := newTestServer(t)

	var health map[string]string
	assert.Equal(t, http.StatusOK, ts.call(t, http.MethodGet, "/healthz", "", nil, &health))
	assert.Equal(t, "ok", health["status"])

	var eb types.ErrorBody
	assert.Equal(t, http.StatusUnauthorized, ts.call(t, http.MethodGet, "/queue/status", "", nil, &eb))
	assert.Equal(t, "UNAUTHENTICATED", eb.Error.Code)

	player := ts.token(t, "p1", auth.RolePlayer)
	assert.Equal(t, http.StatusForbidden, ts.call(t, http.MethodPost, "/admin/queue/clear", player, nil, &eb))
	assert.Equal(t, http.StatusForbidden, ts.call(t, http.MethodGet, "/moderation/results", player, nil, &eb))

	mod := ts.token(t, "m1", auth.RoleModerator)
	var pending []result.Result
	assert.Equal(t, http.StatusOK, ts.call(t, http.MethodGet, "/moderation/results", mod, nil, &pending))
	assert.Empty(t, pending)
}

func TestQueueRequiresCompleteProfile(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.token(t, "admin", auth.RoleAdmin)
	p1 := ts.token(t, "p1", auth.RolePlayer)

	var eb types.ErrorBody
	assert.Equal(t, http.StatusBadRequest, ts.call(t, http.MethodPost, "/queue/join", p1, types.QueueJoinRequest{}, &eb))
	assert.Equal(t, "PROFILE_MISSING", eb.Error.Code)

	require.Equal(t, http.StatusOK, ts.call(t, http.MethodPut, "/admin/profiles", admin, types.ProfileRequest{UserID: "p1", DisplayName: "One"}, nil))
	assert.Equal(t, http.StatusBadRequest, ts.call(t, http.MethodPost, "/queue/join", p1, types.QueueJoinRequest{}, &eb))
	assert.Equal(t, "PROFILE_INCOMPLETE", eb.Error.Code)

	require.Equal(t, http.StatusOK, ts.call(t, http.MethodPut, "/admin/profiles", admin, types.ProfileRequest{UserID: "p1", DisplayName: "One", GamePlayerID: "51234"}, nil))
	var joined types.QueueJoinResponse
	require.Equal(t, http.StatusCreated, ts.call(t, http.MethodPost, "/queue/join", p1, types.QueueJoinRequest{}, &joined))
	assert.Equal(t, 1, joined.Position)

	assert.Equal(t, http.StatusConflict, ts.call(t, http.MethodPost, "/queue/join", p1, types.QueueJoinRequest{}, &eb))
	assert.Equal(t, "ALREADY_QUEUED", eb.Error.Code)

	var st types.QueueStatus
	require.Equal(t, http.StatusOK, ts.call(t, http.MethodGet, "/queue/status", p1, nil, &st))
	assert.Equal(t, types.QueueStatus{InQueue: true, Position: 1, TotalWaiting: 1}, st)

	var left types.QueueLeaveResponse
	require.Equal(t, http.StatusOK, ts.call(t, http.MethodPost, "/queue/leave", p1, nil, &left))
	assert.True(t, left.Removed)
}

func TestEndToEndMatch(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	admin := ts.token(t, "admin", auth.RoleAdmin)
	mod := ts.token(t, "mod", auth.RoleModerator)

	tokens := map[string]string{}
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("u%d", i)
		skill := 1000 + i*10
		if id == "u5" {
			skill = 10
		}
		req := types.ProfileRequest{UserID: id, DisplayName: "Player " + id, GamePlayerID: fmt.Sprintf("5%04d", i), Skill: &skill}
		require.Equal(t, http.StatusOK, ts.call(t, http.MethodPut, "/admin/profiles", admin, req, nil))
		tokens[id] = ts.token(t, id, auth.RolePlayer)

		var joined types.QueueJoinResponse
		require.Equal(t, http.StatusCreated, ts.call(t, http.MethodPost, "/queue/join", tokens[id], types.QueueJoinRequest{}, &joined))
		assert.Equal(t, i+1, joined.Position)
	}

	var snap lobby.Snapshot
	require.Equal(t, http.StatusCreated, ts.call(t, http.MethodPost, "/admin/lobbies/form", admin, nil, &snap))
	lobbyID := snap.State.ID
	assert.Equal(t, engine.StatusMapBan, snap.State.Status)
	assert.Equal(t, []string{"u0", "u1", "u2", "u3", "u4"}, snap.State.TeamAlpha)
	assert.Equal(t, []string{"u5", "u6", "u7", "u8", "u9"}, snap.State.TeamBravo)

	var eb types.ErrorBody
	require.Equal(t, http.StatusConflict, ts.call(t, http.MethodPost, "/queue/join", tokens["u3"], types.QueueJoinRequest{}, &eb))
	assert.Equal(t, "IN_LOBBY", eb.Error.Code)

	var mb types.MapBanStatus
	require.Equal(t, http.StatusOK, ts.call(t, http.MethodGet, "/lobbies/"+lobbyID+"/mapban", tokens["u0"], nil, &mb))
	assert.Equal(t, "u4", mb.Leaders["alpha"])
	assert.Equal(t, "u9", mb.Leaders["bravo"])

	// out of turn: rejected and nothing changes
	require.Equal(t, http.StatusConflict, ts.call(t, http.MethodPost, "/lobbies/"+lobbyID+"/mapban", tokens["u9"], types.BanRequest{Map: mb.Candidates[0]}, &eb))
	assert.Equal(t, "WRONG_TURN", eb.Error.Code)
	require.Equal(t, http.StatusForbidden, ts.call(t, http.MethodPost, "/lobbies/"+lobbyID+"/mapban", tokens["u1"], types.BanRequest{Map: mb.Candidates[0]}, &eb))
	assert.Equal(t, "NOT_BAN_LEADER", eb.Error.Code)

	for i := 0; i < len(testPool)-1; i++ {
		want := "alpha"
		if i%2 == 1 {
			want = "bravo"
		}
		require.Equal(t, want, mb.CurrentBanTeam, "ban %d", i)
		leader := mb.Leaders[mb.CurrentBanTeam]
		require.Equal(t, http.StatusOK, ts.call(t, http.MethodPost, "/lobbies/"+lobbyID+"/mapban", tokens[leader], types.BanRequest{Map: mb.Candidates[0]}, &mb))
		assert.Len(t, mb.Banned, i+1)
	}
	assert.Equal(t, string(engine.StatusReadyCheck), mb.Status)
	require.Len(t, mb.Candidates, 1)
	assert.Equal(t, mb.Candidates[0], mb.Selected)

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("u%d", i)
		require.Equal(t, http.StatusOK, ts.call(t, http.MethodPost, "/lobbies/"+lobbyID+"/ready", tokens[id], nil, &snap))
		if i < 9 {
			assert.False(t, snap.State.AllReady)
		}
	}
	assert.True(t, snap.State.AllReady)
	assert.Equal(t, engine.StatusLive, snap.State.Status)

	var up types.UploadResponse
	require.Equal(t, http.StatusCreated, ts.call(t, http.MethodPost, "/results/upload", tokens["u0"], screenshots(t, 2), &up))
	require.Len(t, up.URLs, 2)

	var res result.Result
	require.Equal(t, http.StatusCreated, ts.call(t, http.MethodPost, "/lobbies/"+lobbyID+"/result", tokens["u0"], types.SubmitResultRequest{URLs: up.URLs}, &res))
	assert.Equal(t, result.StatusPending, res.Status)

	require.Equal(t, http.StatusOK, ts.call(t, http.MethodGet, "/lobbies/"+lobbyID, tokens["u0"], nil, &snap))
	assert.Equal(t, engine.StatusResultSubmitted, snap.State.Status)

	require.Equal(t, http.StatusOK, ts.call(t, http.MethodPost, "/moderation/results/"+res.ID+"/approve", mod, types.ReviewRequest{WinningSide: "alpha"}, &res))
	assert.Equal(t, result.StatusApproved, res.Status)

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("u%d", i)
		p, err := ts.store.Get(ctx, id)
		require.NoError(t, err)
		switch {
		case i < 5:
			assert.Equal(t, 1000+i*10+25, p.Skill, id)
		case id == "u5":
			assert.Equal(t, 0, p.Skill, "floored at zero")
		default:
			assert.Equal(t, 1000+i*10-25, p.Skill, id)
		}
	}

	require.Equal(t, http.StatusConflict, ts.call(t, http.MethodPost, "/moderation/results/"+res.ID+"/approve", mod, types.ReviewRequest{WinningSide: "alpha"}, &eb))
	assert.Equal(t, "RESULT_REVIEWED", eb.Error.Code)
	p, err := ts.store.Get(ctx, "u0")
	require.NoError(t, err)
	assert.Equal(t, 1025, p.Skill, "second approval changes nothing")

	require.Equal(t, http.StatusOK, ts.call(t, http.MethodGet, "/lobbies/"+lobbyID, tokens["u0"], nil, &snap))
	assert.Equal(t, engine.StatusCompleted, snap.State.Status)

	// seats are released once the lobby completes
	require.Equal(t, http.StatusCreated, ts.call(t, http.MethodPost, "/queue/join", tokens["u3"], types.QueueJoinRequest{}, nil))
}

func TestCancelIsHostOrAdmin(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.token(t, "admin", auth.RoleAdmin)
	for _, id := range []string{"host", "guest"} {
		require.Equal(t, http.StatusOK, ts.call(t, http.MethodPut, "/admin/profiles", admin, types.ProfileRequest{UserID: id, GamePlayerID: "g-" + id}, nil))
	}
	host, guest := ts.token(t, "host", auth.RolePlayer), ts.token(t, "guest", auth.RolePlayer)

	var snap lobby.Snapshot
	require.Equal(t, http.StatusCreated, ts.call(t, http.MethodPost, "/lobbies", host, types.CreateLobbyRequest{}, &snap))
	id := snap.State.ID
	require.Equal(t, http.StatusOK, ts.call(t, http.MethodPost, "/lobbies/"+id+"/join", guest, nil, &snap))
	assert.Len(t, snap.State.Players, 2)

	var eb types.ErrorBody
	assert.Equal(t, http.StatusForbidden, ts.call(t, http.MethodPost, "/lobbies/"+id+"/cancel", guest, nil, &eb))
	assert.Equal(t, "NOT_LOBBY_HOST", eb.Error.Code)

	require.Equal(t, http.StatusOK, ts.call(t, http.MethodPost, "/lobbies/"+id+"/cancel", host, types.CancelRequest{Reason: "wrong pool"}, &snap))
	assert.Equal(t, engine.StatusCancelled, snap.State.Status)
	assert.Equal(t, "wrong pool", snap.State.CancelReason)

	assert.Equal(t, http.StatusConflict, ts.call(t, http.MethodPost, "/lobbies/"+id+"/ready", guest, nil, &eb))
	assert.Equal(t, "LOBBY_CLOSED", eb.Error.Code)
}

func TestBadJSONIsValidation(t *testing.T) {
	ts := newTestServer(t)
	p1 := ts.token(t, "p1", auth.RolePlayer)

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/queue/join", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+p1)
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var eb types.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&eb))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_JSON", eb.Error.Code)
	assert.False(t, eb.Error.Retryable)
}
