// Package httpapi is the REST surface of the matchmaking service.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/osohbayr1016/standoff2-sub004/internal/auth"
	"github.com/osohbayr1016/standoff2-sub004/internal/bots"
	"github.com/osohbayr1016/standoff2-sub004/internal/economy"
	"github.com/osohbayr1016/standoff2-sub004/internal/hub"
	"github.com/osohbayr1016/standoff2-sub004/internal/profile"
	"github.com/osohbayr1016/standoff2-sub004/internal/queue"
	"github.com/osohbayr1016/standoff2-sub004/internal/result"
	"github.com/osohbayr1016/standoff2-sub004/internal/ws"
)

// ProfileStore reads and writes profiles for the admin seeding route.
type ProfileStore interface {
	profile.Store
	profile.Writer
}

type Deps struct {
	Lobbies  *hub.Service
	Queue    *queue.Manager
	Results  *result.Service
	Economy  *economy.Service
	Bots     *bots.Filler
	Profiles ProfileStore
	Streams  *ws.Handler
	Verifier *auth.Verifier
	// Health maps a dependency name to its readiness probe.
	Health map[string]func(context.Context) error
	Log    *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	a := &api{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(d.Log), middleware.Recoverer)

	// Public routes
	r.Get("/healthz", a.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authenticate(d.Verifier, d.Log))

		r.Route("/queue", func(r chi.Router) {
			r.Post("/join", a.queueJoin)
			r.Post("/leave", a.queueLeave)
			r.Get("/status", a.queueStatus)
		})

		r.Post("/lobbies", a.createLobby)
		r.Route("/lobbies/{id}", func(r chi.Router) {
			r.Get("/", a.getLobby)
			r.Post("/join", a.joinLobby)
			r.Post("/team", a.selectTeam)
			r.Post("/leave", a.leaveLobby)
			r.Post("/kick", a.kick)
			r.Post("/ready", a.ready)
			r.Post("/cancel", a.cancelLobby)
			r.Get("/mapban", a.mapBanStatus)
			r.Post("/mapban", a.ban)
			r.Post("/result", a.submitResult)
			r.Get("/result", a.getResult)
		})

		r.Post("/results/upload", a.uploadEvidence)

		r.Get("/squads/{id}/division", a.division)
		r.Post("/squads/{id}/upgrade", a.upgrade)

		r.Route("/moderation", func(r chi.Router) {
			r.Use(requireRole(auth.Caller.CanModerate, d.Log))
			r.Get("/results", a.listPending)
			r.Post("/results/{id}/approve", a.approve)
			r.Post("/results/{id}/reject", a.reject)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireRole(auth.Caller.IsAdmin, d.Log))
			r.Post("/bots", a.addBots)
			r.Post("/lobbies/form", a.formLobby)
			r.Post("/lobbies/{id}/force-ready", a.forceReady)
			r.Post("/queue/clear", a.clearQueue)
			r.Post("/squads", a.createSquad)
			r.Post("/squads/matches", a.recordSquadMatch)
			r.Put("/profiles", a.putProfile)
		})

		if d.Streams != nil {
			r.Get("/ws/lobbies/{id}", d.Streams.Lobby)
			r.Get("/ws/queue", d.Streams.Queue)
		}
	})
	return r
}
