package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
	"github.com/osohbayr1016/standoff2-sub004/internal/hub"
	"github.com/osohbayr1016/standoff2-sub004/internal/profile"
	"github.com/osohbayr1016/standoff2-sub004/internal/result"
	"github.com/osohbayr1016/standoff2-sub004/pkg/types"
)

var errBadUpload = apperr.Validation("INVALID_UPLOAD", "expected a multipart form with files")

type api struct {
	Deps
}

func (a *api) fail(w http.ResponseWriter, err error) { writeError(w, a.Log, err) }

// ---- queue ----

func (a *api) queueJoin(w http.ResponseWriter, r *http.Request) {
	var req types.QueueJoinRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	pos, err := a.Queue.Join(r.Context(), caller(r).UserID, req.Members)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.QueueJoinResponse{Position: pos})
}

func (a *api) queueLeave(w http.ResponseWriter, r *http.Request) {
	removed, err := a.Queue.Leave(r.Context(), caller(r).UserID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.QueueLeaveResponse{Removed: removed})
}

func (a *api) queueStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.Queue.Status(r.Context(), caller(r).UserID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.QueueStatus{InQueue: st.InQueue, Position: st.Position, TotalWaiting: st.TotalWaiting})
}

// ---- lobbies ----

func (a *api) createLobby(w http.ResponseWriter, r *http.Request) {
	var req types.CreateLobbyRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	snap, err := a.Lobbies.CreateLobby(r.Context(), caller(r).UserID, hub.CreateParams{
		InitialMap: req.Map,
		SquadAlpha: req.SquadAlpha,
		SquadBravo: req.SquadBravo,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (a *api) getLobby(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Lobbies.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *api) joinLobby(w http.ResponseWriter, r *http.Request) {
	res, err := a.Lobbies.Join(r.Context(), chi.URLParam(r, "id"), caller(r).UserID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Snapshot)
}

func (a *api) selectTeam(w http.ResponseWriter, r *http.Request) {
	var req types.SelectTeamRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	a.command(w, r, engine.Command{Type: engine.CmdSelectTeam, Side: engine.Side(req.Side)})
}

func (a *api) leaveLobby(w http.ResponseWriter, r *http.Request) {
	a.command(w, r, engine.Command{Type: engine.CmdLeave})
}

func (a *api) kick(w http.ResponseWriter, r *http.Request) {
	var req types.KickRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	a.command(w, r, engine.Command{Type: engine.CmdKick, TargetID: req.TargetID})
}

func (a *api) ready(w http.ResponseWriter, r *http.Request) {
	a.command(w, r, engine.Command{Type: engine.CmdMarkReady})
}

// cancelLobby is open to the host and to admins.
func (a *api) cancelLobby(w http.ResponseWriter, r *http.Request) {
	var req types.CancelRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	c := caller(r)
	snap, err := a.Lobbies.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	if snap.State.HostID != c.UserID && !c.IsAdmin() {
		a.fail(w, engine.ErrNotHost)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "cancelled by " + c.UserID
	}
	a.command(w, r, engine.Command{Type: engine.CmdCancel, Reason: reason})
}

func (a *api) mapBanStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Lobbies.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBanView(snap.State))
}

func (a *api) ban(w http.ResponseWriter, r *http.Request) {
	var req types.BanRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	res, err := a.Lobbies.Dispatch(r.Context(), chi.URLParam(r, "id"), engine.Command{
		Type:   engine.CmdBan,
		UserID: caller(r).UserID,
		Map:    req.Map,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBanView(res.Snapshot.State))
}

func (a *api) forceReady(w http.ResponseWriter, r *http.Request) {
	a.command(w, r, engine.Command{Type: engine.CmdForceAllReady})
}

func (a *api) formLobby(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Lobbies.FormFromQueue(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// command sends one engine command on behalf of the caller and answers with
// the resulting snapshot.
func (a *api) command(w http.ResponseWriter, r *http.Request, cmd engine.Command) {
	cmd.UserID = caller(r).UserID
	res, err := a.Lobbies.Dispatch(r.Context(), chi.URLParam(r, "id"), cmd)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Snapshot)
}

func mapBanView(s engine.State) types.MapBanStatus {
	mb := s.MapBan
	v := types.MapBanStatus{
		LobbyID:        s.ID,
		Status:         string(s.Status),
		Pool:           mb.Pool,
		Candidates:     mb.Candidates,
		Banned:         mb.Banned,
		History:        make([]types.BanEntry, 0, len(mb.History)),
		CurrentBanTeam: string(mb.CurrentBanTeam),
		Selected:       mb.Selected,
	}
	if s.Status != engine.StatusMapBan {
		v.CurrentBanTeam = ""
	}
	for _, h := range mb.History {
		v.History = append(v.History, types.BanEntry{Side: string(h.Side), Map: h.Map, By: h.By, At: h.At})
	}
	if len(mb.Leaders) > 0 {
		v.Leaders = make(map[string]string, len(mb.Leaders))
		for side, id := range mb.Leaders {
			v.Leaders[string(side)] = id
		}
	}
	return v
}

// ---- results ----

func (a *api) uploadEvidence(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(result.MaxEvidence)*result.MaxUploadBytes+maxJSONBody)
	if err := r.ParseMultipartForm(maxJSONBody); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			a.fail(w, result.ErrFileTooLarge)
			return
		}
		a.fail(w, apperr.Wrap(apperr.KindValidation, errBadUpload.Code, errBadUpload.Message, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) < result.MinEvidence || len(headers) > result.MaxEvidence {
		a.fail(w, result.ErrEvidenceCount)
		return
	}
	files := make([]result.File, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > result.MaxUploadBytes {
			a.fail(w, result.ErrFileTooLarge)
			return
		}
		f, err := fh.Open()
		if err != nil {
			a.fail(w, apperr.Wrap(apperr.KindValidation, errBadUpload.Code, errBadUpload.Message, err))
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, result.MaxUploadBytes+1))
		f.Close()
		if err != nil {
			a.fail(w, apperr.Wrap(apperr.KindValidation, errBadUpload.Code, errBadUpload.Message, err))
			return
		}
		files = append(files, result.File{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data})
	}

	urls, err := a.Results.Upload(r.Context(), caller(r), files)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.UploadResponse{URLs: urls})
}

func (a *api) submitResult(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitResultRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	res, err := a.Results.Submit(r.Context(), caller(r), chi.URLParam(r, "id"), req.URLs)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *api) getResult(w http.ResponseWriter, r *http.Request) {
	res, err := a.Results.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) listPending(w http.ResponseWriter, r *http.Request) {
	rs, err := a.Results.ListPending(r.Context(), caller(r))
	if err != nil {
		a.fail(w, err)
		return
	}
	if rs == nil {
		rs = []result.Result{}
	}
	writeJSON(w, http.StatusOK, rs)
}

func (a *api) approve(w http.ResponseWriter, r *http.Request) {
	var req types.ReviewRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	res, err := a.Results.Approve(r.Context(), caller(r), chi.URLParam(r, "id"), engine.Side(req.WinningSide), req.Notes)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) reject(w http.ResponseWriter, r *http.Request) {
	var req types.ReviewRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	res, err := a.Results.Reject(r.Context(), caller(r), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ---- squads ----

func (a *api) division(w http.ResponseWriter, r *http.Request) {
	info, err := a.Economy.DivisionInfo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *api) upgrade(w http.ResponseWriter, r *http.Request) {
	info, err := a.Economy.Upgrade(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ---- admin ----

func (a *api) addBots(w http.ResponseWriter, r *http.Request) {
	var req types.BotsRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	var (
		ids []string
		err error
	)
	if req.LobbyID != "" {
		ids, err = a.Bots.FillLobby(r.Context(), req.LobbyID, req.Count)
	} else {
		ids, err = a.Bots.FillQueue(r.Context(), req.Count)
	}
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.BotsResponse{IDs: ids})
}

func (a *api) clearQueue(w http.ResponseWriter, r *http.Request) {
	if err := a.Queue.Clear(r.Context()); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) createSquad(w http.ResponseWriter, r *http.Request) {
	var req types.SquadRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	sq, err := a.Economy.RegisterSquad(r.Context(), caller(r), req.ID, req.Name, req.LeaderID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sq)
}

func (a *api) recordSquadMatch(w http.ResponseWriter, r *http.Request) {
	var req types.SquadMatchRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	if strings.TrimSpace(req.MatchKey) == "" {
		a.fail(w, apperr.Validation("MATCH_KEY", "match_key is required"))
		return
	}
	out, err := a.Economy.RecordMatch(r.Context(), req.MatchKey, req.Winner, req.Loser)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// putProfile seeds or replaces a profile. Omitting skill keeps the stored
// rating, or the default for a new profile.
func (a *api) putProfile(w http.ResponseWriter, r *http.Request) {
	var req types.ProfileRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		a.fail(w, profile.ErrEmptyUserID)
		return
	}
	p := profile.Profile{
		UserID:       req.UserID,
		DisplayName:  req.DisplayName,
		GamePlayerID: req.GamePlayerID,
		Skill:        profile.DefaultSkill,
		AvatarURL:    req.AvatarURL,
	}
	if req.Skill != nil {
		if *req.Skill < 0 {
			a.fail(w, apperr.Validation("INVALID_SKILL", "skill cannot be negative"))
			return
		}
		p.Skill = *req.Skill
	} else if old, err := a.Profiles.Get(r.Context(), req.UserID); err == nil {
		p.Skill = old.Skill
	} else if !errors.Is(err, profile.ErrNotFound) {
		a.fail(w, err)
		return
	}
	if err := a.Profiles.Put(r.Context(), p); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ---- health ----

func (a *api) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for name, check := range a.Health {
		if err := check(ctx); err != nil {
			a.Log.Warn("health check failed", zap.String("check", name), zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "failing": name})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
