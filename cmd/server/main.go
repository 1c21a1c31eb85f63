package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/osohbayr1016/standoff2-sub004/internal/auth"
	"github.com/osohbayr1016/standoff2-sub004/internal/bots"
	"github.com/osohbayr1016/standoff2-sub004/internal/config"
	"github.com/osohbayr1016/standoff2-sub004/internal/economy"
	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
	"github.com/osohbayr1016/standoff2-sub004/internal/events"
	"github.com/osohbayr1016/standoff2-sub004/internal/httpapi"
	"github.com/osohbayr1016/standoff2-sub004/internal/hub"
	"github.com/osohbayr1016/standoff2-sub004/internal/imagehost"
	"github.com/osohbayr1016/standoff2-sub004/internal/logging"
	"github.com/osohbayr1016/standoff2-sub004/internal/metrics"
	"github.com/osohbayr1016/standoff2-sub004/internal/queue"
	"github.com/osohbayr1016/standoff2-sub004/internal/result"
	"github.com/osohbayr1016/standoff2-sub004/internal/storage"
	"github.com/osohbayr1016/standoff2-sub004/internal/telemetry"
	"github.com/osohbayr1016/standoff2-sub004/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting", zap.String("config", cfg.Redacted()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "standoff-matchmaking", cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}
	metrics.Init()

	db, err := storage.Open(cfg.DBDriver, cfg.DatabaseURL, log.Named("storage"))
	if err != nil {
		return err
	}
	health := map[string]func(context.Context) error{"database": db.Ping}

	var qstore queue.Store = queue.NewMemoryStore()
	var rs *queue.RedisStore
	if cfg.RedisAddr != "" {
		rs = queue.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
		if err := rs.Ping(ctx); err != nil {
			return multierr.Combine(fmt.Errorf("redis: %w", err), rs.Close(), db.Close())
		}
		qstore = rs
		health["redis"] = rs.Ping
	}

	bus := events.NewBus(log.Named("events"))
	q := queue.NewManager(qstore, db, bus, log.Named("queue"))

	// lobbies outlive the request context; they stop on Shutdown
	lobbies := hub.NewService(context.Background(), db, db, q, bus, hub.Config{
		MapPool:     cfg.MapPool,
		Rules:       engine.Rules{LobbyTTL: cfg.LobbyTTL, MatchTTL: cfg.MatchTTL},
		BotBanDelay: cfg.BotBanDelay,
		SweepEvery:  cfg.SweepEvery,
	}, log.Named("lobby"))
	if n, err := lobbies.Restore(ctx); err != nil {
		log.Error("restore lobbies", zap.Error(err))
	} else {
		log.Info("arena ready", zap.Int("restored", n))
	}

	econ := economy.NewService(db, log.Named("economy"))
	results := result.NewService(db, lobbies, imagehost.New(cfg.ImageHostURL, cfg.ImageHostKey), econ, bus, log.Named("result"), cfg.RatingDelta)
	streams := ws.NewHandler(lobbies, bus, log.Named("ws"))
	streams.OriginPatterns = cfg.WSOrigins

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Lobbies:  lobbies,
			Queue:    q,
			Results:  results,
			Economy:  econ,
			Bots:     bots.NewFiller(db, q, lobbies, log.Named("bots")),
			Profiles: db,
			Streams:  streams,
			Verifier: auth.NewVerifier(cfg.JWTSecret),
			Health:   health,
			Log:      log.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return lobbies.Run(gctx) })
	g.Go(func() error { return results.RunReconciler(gctx, cfg.ReconcileEvery) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()

	lobbies.Shutdown()
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = multierr.Append(err, shutdownTracing(closeCtx))
	if rs != nil {
		err = multierr.Append(err, rs.Close())
	}
	return multierr.Append(err, db.Close())
}
