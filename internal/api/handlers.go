package api

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "sync/atomic"
    "time"

    "go.uber.org/zap"

    "voicedesk/agent/internal/archive"
    "voicedesk/agent/internal/auth"
    "voicedesk/agent/internal/config"
    "voicedesk/agent/internal/health"
    "voicedesk/agent/internal/session"
)

type Handlers struct {
    cfg     config.Config
    reg     *session.Registry
    archive archive.Store
    checker *health.Checker
    log     *zap.Logger
    ready   atomic.Bool
}

// NewHandlers wires the admin API. archive and checker may be nil.
func NewHandlers(cfg config.Config, reg *session.Registry, arch archive.Store, checker *health.Checker, log *zap.Logger) *Handlers {
    h := &Handlers{cfg: cfg, reg: reg, archive: arch, checker: checker, log: log.Named("api")}
    h.ready.Store(true)
    return h
}

// SetReady flips /readyz; the server clears it while draining.
func (h *Handlers) SetReady(ok bool) { h.ready.Store(ok) }

func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
    if !h.ready.Load() {
        http.Error(w, "draining", http.StatusServiceUnavailable)
        return
    }
    w.WriteHeader(http.StatusOK)
    w.Write([]byte("ok"))
}

type contextRequest struct {
    SessionID string  `json:"sessionId"`
    Content   *string `json:"content"`
}

// HandleUpdateContext replaces the dynamic context of a live session.
func (h *Handlers) HandleUpdateContext(w http.ResponseWriter, r *http.Request) {
    var req contextRequest
    if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
        http.Error(w, "invalid json", http.StatusBadRequest)
        return
    }
    if req.SessionID == "" || req.Content == nil {
        http.Error(w, "sessionId and content are required", http.StatusBadRequest)
        return
    }
    if err := h.authorize(r, req.SessionID); err != nil {
        http.Error(w, err.Error(), http.StatusUnauthorized)
        return
    }
    ver, err := h.reg.UpdateContext(req.SessionID, *req.Content)
    if errors.Is(err, session.ErrNotFound) {
        http.Error(w, "unknown session", http.StatusNotFound)
        return
    }
    if err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }
    h.log.Info("context updated", zap.String("session_id", req.SessionID), zap.Uint64("version", ver))

    writeJSON(w, http.StatusOK, map[string]any{
        "sessionId":      req.SessionID,
        "contextVersion": ver,
    })
}

type sessionSummary struct {
    ID             string    `json:"sessionId"`
    State          string    `json:"state"`
    CreatedAt      time.Time `json:"createdAt"`
    LastAudio      time.Time `json:"lastAudio"`
    Turns          uint64    `json:"turns"`
    ContextVersion uint64    `json:"contextVersion"`
}

func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
    if err := h.authorize(r, auth.AnySession); err != nil {
        http.Error(w, err.Error(), http.StatusUnauthorized)
        return
    }
    live := h.reg.List()
    out := make([]sessionSummary, 0, len(live))
    for _, s := range live {
        snap := s.Snapshot()
        out = append(out, sessionSummary{
            ID:             snap.ID,
            State:          snap.State,
            CreatedAt:      snap.CreatedAt,
            LastAudio:      snap.LastAudio,
            Turns:          snap.Turns,
            ContextVersion: snap.ContextVersion,
        })
    }
    writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// HandleHistory serves the conversation of a live session, or of an ended
// one from the archive.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request, id string) {
    if err := h.authorize(r, id); err != nil {
        http.Error(w, err.Error(), http.StatusUnauthorized)
        return
    }
    if s, err := h.reg.Get(id); err == nil {
        writeJSON(w, http.StatusOK, map[string]any{"sessionId": id, "live": true, "history": s.History()})
        return
    }
    if h.archive == nil {
        http.NotFound(w, r)
        return
    }
    snap, err := h.archive.Load(r.Context(), id)
    if errors.Is(err, archive.ErrNotFound) || errors.Is(err, archive.ErrInvalidID) {
        http.NotFound(w, r)
        return
    }
    if err != nil {
        h.log.Warn("archive load failed", zap.String("session_id", id), zap.Error(err))
        http.Error(w, "archive unavailable", http.StatusBadGateway)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"sessionId": id, "live": false, "history": snap.History})
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
    if h.checker == nil {
        http.Error(w, "health checks disabled", http.StatusNotFound)
        return
    }
    ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
    defer cancel()
    st := h.checker.CheckAll(ctx)
    code := http.StatusOK
    if !st.OK {
        code = http.StatusServiceUnavailable
    }
    writeJSON(w, code, st)
}

func (h *Handlers) authorize(r *http.Request, scope string) error {
    secret := h.cfg.Admin.TokenSecret
    if secret == "" {
        return nil
    }
    tok, err := auth.BearerToken(r)
    if err != nil {
        return err
    }
    _, err = auth.ValidateAdminToken(secret, tok, scope, time.Now(), h.cfg.Admin.TokenSkew)
    return err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}
