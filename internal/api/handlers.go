package api

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net/http"
    "time"

    "go.uber.org/zap"

    "routeopt/internal/apperr"
    "routeopt/internal/buildinfo"
    "routeopt/internal/events"
    "routeopt/internal/model"
    "routeopt/internal/report"
    "routeopt/internal/store"
)

// OptimizeHandler handles POST /v1/optimize. The body is an
// OptimizationRequest; the response is always an OptimizationResult.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
    body, err := s.readBody(w, r)
    if err != nil {
        writeProblem(w, http.StatusRequestEntityTooLarge, "Request too large", err.Error(), r.URL.Path)
        return
    }
    req, err := model.DecodeRequest(body)
    if err != nil {
        id := apperr.ExtractProblemID(string(body))
        perr := apperr.Validation(id, "failed to parse request: %v", err)
        writeJSON(w, http.StatusBadRequest, report.OfError(id, perr))
        return
    }
    log := s.log().With(zap.String("problem_id", req.ProblemID))

    if err := s.Solver.Validate(req); err != nil {
        writeJSON(w, http.StatusUnprocessableEntity, report.OfError(req.ProblemID, err))
        return
    }
    s.publish(r.Context(), log, events.InProgress, req.ProblemID, report.InProgress(req.ProblemID))
    s.save(r.Context(), log, store.Record{ProblemID: req.ProblemID, Status: store.StatusInProgress})

    res, err := s.Solver.Run(r.Context(), req)
    if err != nil {
        s.save(r.Context(), log, store.Record{ProblemID: req.ProblemID, Status: store.StatusError, Result: &res, Error: err.Error()})
        s.publish(r.Context(), log, events.Failed, req.ProblemID, res)
        writeJSON(w, statusOf(err), res)
        return
    }
    s.save(r.Context(), log, store.Record{ProblemID: req.ProblemID, Status: store.StatusCompleted, Result: &res})
    s.publish(r.Context(), log, events.Completed, req.ProblemID, res)
    writeJSON(w, http.StatusOK, res)
}

// statusOf maps the error taxonomy onto HTTP.
func statusOf(err error) int {
    switch apperr.KindOf(err) {
    case apperr.KindValidation:
        return http.StatusUnprocessableEntity
    case apperr.KindDistance:
        return http.StatusBadGateway
    }
    return http.StatusInternalServerError
}

type enqueueResponse struct {
    ProblemID string       `json:"problemId"`
    MessageID string       `json:"messageId"`
    Status    store.Status `json:"status"`
}

// EnqueueHandler handles POST /v1/problems. The request is validated, marked
// IN_PROGRESS and handed to the worker.
func (s *Server) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
    if s.Queue == nil {
        writeProblem(w, http.StatusServiceUnavailable, "Queue unavailable", "no request queue is configured", r.URL.Path)
        return
    }
    body, err := s.readBody(w, r)
    if err != nil {
        writeProblem(w, http.StatusRequestEntityTooLarge, "Request too large", err.Error(), r.URL.Path)
        return
    }
    req, err := model.DecodeRequest(body)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := s.Solver.Validate(req); err != nil {
        writeProblem(w, http.StatusUnprocessableEntity, "Invalid optimization request", err.Error(), r.URL.Path)
        return
    }
    if err := s.Store.Save(r.Context(), store.Record{ProblemID: req.ProblemID, Status: store.StatusInProgress}); err != nil {
        writeProblem(w, http.StatusInternalServerError, "Store failed", err.Error(), r.URL.Path)
        return
    }
    id, err := s.Queue.Send(r.Context(), body)
    if err != nil {
        writeProblem(w, http.StatusServiceUnavailable, "Enqueue failed", err.Error(), r.URL.Path)
        return
    }
    s.log().Info("optimization queued", zap.String("problem_id", req.ProblemID), zap.String("message_id", id))
    writeJSON(w, http.StatusAccepted, enqueueResponse{ProblemID: req.ProblemID, MessageID: id, Status: store.StatusInProgress})
}

// ProblemHandler handles GET /v1/problems/{id}.
func (s *Server) ProblemHandler(w http.ResponseWriter, r *http.Request) {
    id := r.PathValue("id")
    rec, err := s.Store.Get(r.Context(), id)
    if errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Problem not found", fmt.Sprintf("no optimization with id %q", id), r.URL.Path)
        return
    }
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Lookup failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, rec)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler pings the store and, when configured, the queue.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil {
        writeProblem(w, http.StatusServiceUnavailable, "Store not ready", err.Error(), r.URL.Path)
        return
    }
    if s.Queue != nil {
        if err := s.Queue.Ping(ctx); err != nil {
            writeProblem(w, http.StatusServiceUnavailable, "Queue not ready", err.Error(), r.URL.Path)
            return
        }
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    info := map[string]any{
        "build": buildinfo.Get(),
        "time":  time.Now().UTC().Format(time.RFC3339),
    }
    if c := s.Config; c != nil {
        info["config"] = map[string]any{
            "APP_ENV":              c.Environment,
            "SERVICE_NAME":         c.ServiceName,
            "QUEUE_NAME":           c.Queue.Name,
            "ROUTING_PROFILE":      c.Routing.Profile,
            "ROUTING_RPS":          c.Routing.RPS,
            "ROUTING_BURST":        c.Routing.Burst,
            "WEBHOOK_MAX_ATTEMPTS": c.Webhook.MaxAttempts,
            "HAS_DATABASE_URL":     c.DatabaseURL != "",
            "HAS_REDIS_URL":        c.RedisURL != "",
            "HAS_ROUTING_BASE_URL": c.Routing.BaseURL != "",
            "HAS_WEBHOOK_URL":      c.Webhook.URL != "",
        }
    }
    writeJSON(w, http.StatusOK, info)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
    limit := s.MaxBody
    if limit <= 0 {
        limit = defaultMaxBody
    }
    return io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
}

// save records lifecycle state; failures are logged only.
func (s *Server) save(ctx context.Context, log *zap.Logger, rec store.Record) {
    if s.Store == nil {
        return
    }
    if err := s.Store.Save(ctx, rec); err != nil {
        log.Warn("failed to record optimization state", zap.String("status", string(rec.Status)), zap.Error(err))
    }
}

func (s *Server) publish(ctx context.Context, log *zap.Logger, t events.Type, problemID string, detail any) {
    if s.Events == nil {
        return
    }
    evt, err := events.New(s.source(), t, problemID, detail)
    if err == nil {
        err = s.Events.Publish(ctx, evt)
    }
    if err != nil {
        log.Warn("failed to publish event", zap.String("event_type", string(t)), zap.Error(err))
    }
}
