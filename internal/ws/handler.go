// Package ws pushes lobby snapshots and queue totals to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
	"github.com/osohbayr1016/standoff2-sub004/internal/auth"
	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
	"github.com/osohbayr1016/standoff2-sub004/internal/events"
	"github.com/osohbayr1016/standoff2-sub004/internal/hub"
	"github.com/osohbayr1016/standoff2-sub004/internal/lobby"
	"github.com/osohbayr1016/standoff2-sub004/internal/types"
	pub "github.com/osohbayr1016/standoff2-sub004/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 8
)

type Handler struct {
	lobbies *hub.Service
	bus     *events.Bus
	log     *zap.Logger
	// OriginPatterns loosens the same-origin check, e.g. "localhost:*" in dev.
	OriginPatterns []string
}

func NewHandler(lobbies *hub.Service, bus *events.Bus, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{lobbies: lobbies, bus: bus, log: log}
}

// Lobby streams snapshots of one lobby and accepts lobby commands from the
// connected player.
func (h *Handler) Lobby(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())
	id := chi.URLParam(r, "id")

	lb, err := h.lobbies.Lobby(r.Context(), id)
	if err != nil {
		_, msg := apperr.Public(err)
		http.Error(w, msg, apperr.HTTPStatus(apperr.KindOf(err)))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	out := make(chan lobby.Snapshot, outboxSize)
	clientID := uuid.NewString()
	if err := lb.Subscribe(r.Context(), clientID, out); err != nil {
		conn.Close(websocket.StatusGoingAway, "lobby closed")
		return
	}
	defer lb.Unsubscribe(clientID)

	log := h.log.With(zap.String("lobby_id", id), zap.String("user_id", caller.UserID))
	log.Debug("lobby stream opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Writer goroutine
	go func() {
		defer cancel()
		for snap := range out {
			st := snap.State
			if err := write(ctx, conn, types.ServerMessage{Type: types.MsgStateSnapshot, Version: snap.Version, State: &st}); err != nil {
				return
			}
		}
		// outbox closed: dropped as slow, or the lobby stopped
		conn.Close(websocket.StatusGoingAway, "stream ended")
	}()

	// Reader loop
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				log.Debug("lobby stream read ended", zap.Error(err))
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			_ = write(ctx, conn, errorMessage(apperr.Validation("INVALID_JSON", "bad json")))
			continue
		}
		cmd, ok := toEngineCommand(cm)
		if !ok {
			_ = write(ctx, conn, errorMessage(engine.ErrUnsupportedCommand))
			continue
		}
		cmd.UserID = caller.UserID

		// the resulting snapshot arrives through the outbox
		if _, err := h.lobbies.Dispatch(ctx, id, cmd); err != nil {
			_ = write(ctx, conn, errorMessage(err))
		}
	}
}

// Queue streams the total number of waiting players on every change.
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	totals := make(chan int, outboxSize)
	unsubscribe := events.Subscribe(h.bus, func(ev events.QueueChanged) {
		select {
		case totals <- ev.TotalWaiting:
		default:
		}
	})
	defer unsubscribe()

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-totals:
			if err := write(ctx, conn, types.ServerMessage{Type: types.MsgQueueTotal, TotalWaiting: &n}); err != nil {
				return
			}
		}
	}
}

func toEngineCommand(m types.ClientMessage) (engine.Command, bool) {
	switch m.Type {
	case "SelectTeam":
		return engine.Command{Type: engine.CmdSelectTeam, Side: engine.Side(m.Side)}, true
	case "BanMap":
		return engine.Command{Type: engine.CmdBan, Map: m.Map}, true
	case "MarkReady":
		return engine.Command{Type: engine.CmdMarkReady}, true
	case "Leave":
		return engine.Command{Type: engine.CmdLeave}, true
	case "Kick":
		return engine.Command{Type: engine.CmdKick, TargetID: m.TargetID}, true
	default:
		return engine.Command{}, false
	}
}

func errorMessage(err error) types.ServerMessage {
	code, msg := apperr.Public(err)
	return types.ServerMessage{Type: types.MsgError, Error: &pub.ErrorDetail{
		Code:      code,
		Message:   msg,
		Retryable: apperr.Retryable(apperr.KindOf(err)),
	}}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
