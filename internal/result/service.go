// Package result runs the post-match workflow: screenshot upload, result
// submission, moderation and the consequences of an approval.
package result

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/osohbayr1016/standoff2-sub004/internal/auth"
	"github.com/osohbayr1016/standoff2-sub004/internal/economy"
	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
	"github.com/osohbayr1016/standoff2-sub004/internal/events"
	"github.com/osohbayr1016/standoff2-sub004/internal/lobby"
	"github.com/osohbayr1016/standoff2-sub004/internal/metrics"
	"github.com/osohbayr1016/standoff2-sub004/internal/rating"
	"github.com/osohbayr1016/standoff2-sub004/internal/telemetry"
)

// Lobbies is the slice of the lobby arena the workflow drives.
type Lobbies interface {
	Snapshot(ctx context.Context, lobbyID string) (lobby.Snapshot, error)
	Dispatch(ctx context.Context, lobbyID string, cmd engine.Command) (lobby.Result, error)
}

type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}

type Economy interface {
	RecordMatch(ctx context.Context, matchKey, winnerID, loserID string) (economy.MatchOutcome, error)
}

// File is one uploaded screenshot.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type Service struct {
	store    Store
	lobbies  Lobbies
	uploader Uploader
	economy  Economy
	bus      *events.Bus
	log      *zap.Logger
	delta    int
	now      func() time.Time
}

func NewService(store Store, lobbies Lobbies, uploader Uploader, econ Economy, bus *events.Bus, log *zap.Logger, delta int) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if delta <= 0 {
		delta = rating.DefaultDelta
	}
	return &Service{store: store, lobbies: lobbies, uploader: uploader, economy: econ, bus: bus, log: log, delta: delta, now: time.Now}
}

// Upload stores 2-4 screenshots on the image host and returns their URLs in
// the order given.
func (s *Service) Upload(ctx context.Context, caller auth.Caller, files []File) ([]string, error) {
	if len(files) < MinEvidence || len(files) > MaxEvidence {
		return nil, ErrEvidenceCount
	}
	for i := range files {
		if len(files[i].Data) > MaxUploadBytes {
			return nil, ErrFileTooLarge
		}
		ct := files[i].ContentType
		if ct == "" || ct == "application/octet-stream" {
			ct = http.DetectContentType(files[i].Data)
		}
		if !strings.HasPrefix(ct, "image/") {
			return nil, ErrFileType
		}
	}

	urls := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			name := f.Name
			if name == "" {
				name = fmt.Sprintf("evidence-%d", i+1)
			}
			u, err := s.uploader.Upload(gctx, name, f.Data)
			if err != nil {
				return err
			}
			urls[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Warn("evidence upload failed", zap.String("user_id", caller.UserID), zap.Error(err))
		return nil, err
	}
	return urls, nil
}

// Submit records a pending result for a live lobby and moves the lobby to
// RESULT_SUBMITTED.
func (s *Service) Submit(ctx context.Context, caller auth.Caller, lobbyID string, urls []string) (Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "result.submit")
	defer span.End()
	span.SetAttributes(attribute.String("lobby.id", lobbyID))

	if len(urls) < MinEvidence || len(urls) > MaxEvidence {
		return Result{}, ErrEvidenceCount
	}
	for _, raw := range urls {
		if !validURL(raw) {
			return Result{}, ErrEvidenceURL
		}
	}

	snap, err := s.lobbies.Snapshot(ctx, lobbyID)
	if err != nil {
		return Result{}, err
	}
	st := snap.State
	if st.Status != engine.StatusLive && st.Status != engine.StatusResultSubmitted {
		return Result{}, ErrLobbyNotLive
	}
	if _, ok := st.Player(caller.UserID); !ok {
		return Result{}, engine.ErrNotInLobby
	}

	r := Result{
		ID:          uuid.NewString(),
		LobbyID:     lobbyID,
		SubmitterID: caller.UserID,
		Evidence:    append([]string(nil), urls...),
		Status:      StatusPending,
		AlphaIDs:    append([]string(nil), st.TeamAlpha...),
		BravoIDs:    append([]string(nil), st.TeamBravo...),
		SquadAlpha:  st.SquadAlpha,
		SquadBravo:  st.SquadBravo,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateResult(ctx, r); err != nil {
		return Result{}, err
	}

	if _, err := s.lobbies.Dispatch(ctx, lobbyID, engine.Command{Type: engine.CmdSubmitResult, UserID: caller.UserID, ResultID: r.ID}); err != nil {
		// keep the audit row but free the lobby for a fresh submission
		rv := Review{ReviewerID: "system", Notes: "lobby rejected submission: " + err.Error(), At: s.now().UTC()}
		if _, rerr := s.store.RejectResult(ctx, r.ID, rv); rerr != nil {
			s.log.Error("withdraw orphaned result", zap.String("result_id", r.ID), zap.Error(rerr))
		}
		return Result{}, err
	}

	s.log.Info("result submitted",
		zap.String("result_id", r.ID),
		zap.String("lobby_id", lobbyID),
		zap.String("submitter_id", caller.UserID),
		zap.Int("evidence", len(urls)))
	return r, nil
}

// Get returns the latest result of a lobby.
func (s *Service) Get(ctx context.Context, lobbyID string) (Result, error) {
	return s.store.LatestForLobby(ctx, lobbyID)
}

func (s *Service) ListPending(ctx context.Context, caller auth.Caller) ([]Result, error) {
	if !caller.CanModerate() {
		return nil, auth.ErrForbidden
	}
	return s.store.ListPending(ctx)
}

// Approve settles a pending result: ratings of both rosters change once, the
// lobby completes, and squad matches feed the economy.
func (s *Service) Approve(ctx context.Context, caller auth.Caller, resultID string, side engine.Side, notes string) (Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "result.approve")
	defer span.End()
	span.SetAttributes(attribute.String("result.id", resultID), attribute.String("winning_side", string(side)))

	if !caller.CanModerate() {
		return Result{}, auth.ErrForbidden
	}
	if side != engine.SideAlpha && side != engine.SideBravo {
		return Result{}, ErrWinningSide
	}

	r, changes, err := s.store.ApproveResult(ctx, resultID, Review{
		ReviewerID:  caller.UserID,
		WinningSide: side,
		Notes:       notes,
		At:          s.now().UTC(),
		Delta:       s.delta,
	})
	if err != nil {
		return Result{}, err
	}
	metrics.ResultsReviewed.WithLabelValues(string(StatusApproved)).Inc()
	s.log.Info("result approved",
		zap.String("result_id", r.ID),
		zap.String("lobby_id", r.LobbyID),
		zap.String("winning_side", string(side)),
		zap.String("reviewer_id", caller.UserID),
		zap.Int("ratings_changed", len(changes)))

	if err := s.completeLobby(ctx, r, caller.UserID); err != nil {
		s.log.Warn("lobby completion deferred to reconcile", zap.String("lobby_id", r.LobbyID), zap.Error(err))
	} else {
		r.LobbyCompleted = true
	}

	if r.SquadMatch() {
		if err := s.applyEconomy(ctx, r); err != nil {
			s.log.Warn("economy update deferred to reconcile", zap.String("result_id", r.ID), zap.Error(err))
		} else {
			r.EconomyApplied = true
		}
	}

	events.Publish(s.bus, events.ResultReviewed{ResultID: r.ID, LobbyID: r.LobbyID, Status: string(r.Status), WinningSide: string(side)})
	return r, nil
}

// Reject turns a pending result down. Ratings stay untouched and the lobby
// accepts a new submission.
func (s *Service) Reject(ctx context.Context, caller auth.Caller, resultID, notes string) (Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "result.reject")
	defer span.End()

	if !caller.CanModerate() {
		return Result{}, auth.ErrForbidden
	}
	r, err := s.store.RejectResult(ctx, resultID, Review{ReviewerID: caller.UserID, Notes: notes, At: s.now().UTC()})
	if err != nil {
		return Result{}, err
	}
	metrics.ResultsReviewed.WithLabelValues(string(StatusRejected)).Inc()
	s.log.Info("result rejected", zap.String("result_id", r.ID), zap.String("reviewer_id", caller.UserID))
	events.Publish(s.bus, events.ResultReviewed{ResultID: r.ID, LobbyID: r.LobbyID, Status: string(r.Status)})
	return r, nil
}

// Reconcile finishes approvals that stopped halfway: lobbies still waiting
// for Complete, and squad results whose economy marker is unset. It returns
// how many steps it settled.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	open, err := s.store.ListUncompletedLobbies(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range open {
		if err := s.completeLobby(ctx, r, "system"); err != nil {
			s.log.Warn("reconcile lobby", zap.String("result_id", r.ID), zap.String("lobby_id", r.LobbyID), zap.Error(err))
			continue
		}
		n++
	}

	todo, err := s.store.ListUnappliedEconomy(ctx)
	if err != nil {
		return n, err
	}
	for _, r := range todo {
		if err := s.applyEconomy(ctx, r); err != nil {
			s.log.Warn("reconcile economy", zap.String("result_id", r.ID), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

// RunReconciler calls Reconcile every interval until ctx ends.
func (s *Service) RunReconciler(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n, err := s.Reconcile(ctx); err != nil {
				s.log.Warn("reconcile pass failed", zap.Error(err))
			} else if n > 0 {
				s.log.Info("approvals reconciled", zap.Int("steps", n))
			}
		}
	}
}

// completeLobby moves the lobby of an approved result to COMPLETED, then sets
// the marker. A lobby that is already closed or gone needs nothing more.
func (s *Service) completeLobby(ctx context.Context, r Result, by string) error {
	_, err := s.lobbies.Dispatch(ctx, r.LobbyID, engine.Command{Type: engine.CmdComplete, UserID: by})
	if err != nil && !errors.Is(err, engine.ErrLobbyClosed) && !errors.Is(err, engine.ErrLobbyNotFound) {
		return err
	}
	return s.store.MarkLobbyCompleted(ctx, r.ID)
}

// applyEconomy records the squad match keyed by the result id, then sets the
// marker. A crash between the two is repaired by Reconcile: the ledger key
// turns the replay into a no-op.
func (s *Service) applyEconomy(ctx context.Context, r Result) error {
	if s.economy == nil {
		return nil
	}
	winner, loser := r.SquadAlpha, r.SquadBravo
	if r.WinningSide == engine.SideBravo {
		winner, loser = loser, winner
	}
	if _, err := s.economy.RecordMatch(ctx, "result:"+r.ID, winner, loser); err != nil {
		return err
	}
	return s.store.MarkEconomyApplied(ctx, r.ID)
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
