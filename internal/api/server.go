// Package api implements the HTTP surface of the optimization service.
package api

import (
    "bufio"
    "context"
    "errors"
    "net"
    "net/http"
    "strconv"
    "time"

    "github.com/gorilla/websocket"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "go.uber.org/zap"

    "routeopt/internal/config"
    "routeopt/internal/events"
    "routeopt/internal/metrics"
    "routeopt/internal/model"
    "routeopt/internal/store"
)

// Solver runs requests synchronously.
type Solver interface {
    Validate(req *model.OptimizationRequest) error
    Run(ctx context.Context, req *model.OptimizationRequest) (model.OptimizationResult, error)
}

// Enqueuer hands requests to the worker.
type Enqueuer interface {
    Send(ctx context.Context, body []byte) (string, error)
    Ping(ctx context.Context) error
}

type Server struct {
    Solver Solver
    Store  store.Store
    // Queue is nil when no Redis is configured; POST /v1/problems then
    // answers 503.
    Queue  Enqueuer
    Events events.Publisher
    Follow events.Follower
    Config *config.AppConfig
    Log    *zap.Logger

    // MaxBody caps request bodies in bytes.
    MaxBody int64

    upgrader websocket.Upgrader
}

const defaultMaxBody = 16 << 20

func (s *Server) log() *zap.Logger {
    if s.Log == nil {
        return zap.NewNop()
    }
    return s.Log
}

func (s *Server) source() string {
    if s.Config != nil && s.Config.ServiceName != "" {
        return s.Config.ServiceName
    }
    return "routeopt"
}

// Routes registers every endpoint and wraps them with request logging and
// metrics.
func (s *Server) Routes() http.Handler {
    metrics.RegisterDefault()
    s.upgrader = websocket.Upgrader{
        ReadBufferSize:  1024,
        WriteBufferSize: 4096,
        CheckOrigin:     func(_ *http.Request) bool { return true },
    }

    mux := http.NewServeMux()
    mux.HandleFunc("POST /v1/optimize", s.OptimizeHandler)
    mux.HandleFunc("POST /v1/problems", s.EnqueueHandler)
    mux.HandleFunc("GET /v1/problems/{id}", s.ProblemHandler)
    mux.HandleFunc("GET /v1/problems/{id}/events", s.EventsHandler)

    mux.HandleFunc("GET /healthz", s.HealthHandler)
    mux.HandleFunc("GET /readyz", s.ReadyHandler)
    mux.HandleFunc("GET /debug/info", s.DebugJSON)
    mux.HandleFunc("GET /openapi.yaml", s.OpenAPIHandler)
    mux.HandleFunc("GET /openapi.json", s.OpenAPIJSONHandler)
    mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    return s.logMiddleware(mux)
}

// NewHTTPServer returns a server for addr serving Routes.
func (s *Server) NewHTTPServer(addr string) *http.Server {
    return &http.Server{
        Addr:              addr,
        Handler:           s.Routes(),
        ReadHeaderTimeout: 5 * time.Second,
    }
}

// Shutdown waits for in-flight requests up to the deadline of ctx.
func Shutdown(ctx context.Context, srv *http.Server) error {
    if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
        return err
    }
    return nil
}

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := r.ResponseWriter.(http.Hijacker)
    if !ok {
        return nil, nil, errors.New("response writer does not support hijacking")
    }
    r.status = http.StatusSwitchingProtocols
    return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        dur := time.Since(start)

        path := r.Pattern
        if path == "" {
            path = "unmatched"
        }
        status := strconv.Itoa(rec.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(dur.Seconds())
        s.log().Info("http request",
            zap.String("method", r.Method),
            zap.String("path", r.URL.Path),
            zap.Int("status", rec.status),
            zap.Duration("duration", dur),
            zap.String("remote", r.RemoteAddr),
        )
    })
}
