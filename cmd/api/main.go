package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "go.uber.org/zap"

    "routeopt/internal/api"
    "routeopt/internal/app"
    "routeopt/internal/config"
    "routeopt/internal/logger"
)

func main() {
    cfg, err := config.Load(".")
    if err != nil {
        logger.Get().Fatal("failed to load config", zap.Error(err))
    }
    if err := logger.Init(cfg.Environment, cfg.LogLevel); err != nil {
        logger.Get().Fatal("failed to init logger", zap.Error(err))
    }
    defer logger.Sync()
    log := logger.Get().Named("api")

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    deps, err := app.Build(ctx, cfg, log)
    if err != nil {
        log.Fatal("failed to init server", zap.Error(err))
    }
    defer func() { _ = deps.Close() }()

    s := &api.Server{
        Solver: deps.Runner,
        Store:  deps.Store,
        Events: deps.Events,
        Follow: deps.Follow,
        Config: cfg,
        Log:    log,
    }
    // A nil *queue.Redis must stay a nil interface.
    if deps.Queue != nil {
        s.Queue = deps.Queue
    }
    srv := s.NewHTTPServer(cfg.Addr())

    go func() {
        <-ctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
        defer cancel()
        if err := api.Shutdown(shutdownCtx, srv); err != nil {
            log.Error("shutdown", zap.Error(err))
        }
    }()

    log.Info("API listening", zap.String("addr", srv.Addr))
    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
        log.Fatal("server error", zap.Error(err))
    }
}
