// Command engine consumes queued optimization requests. With WORKER_ONCE it
// handles a single message and exits non-zero if that message failed.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"routeopt/internal/app"
	"routeopt/internal/config"
	"routeopt/internal/logger"
	"routeopt/internal/queue"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(".")
	if err != nil {
		logger.Get().Error("failed to load config", zap.Error(err))
		return 1
	}
	if err := logger.Init(cfg.Environment, cfg.LogLevel); err != nil {
		logger.Get().Error("failed to init logger", zap.Error(err))
		return 1
	}
	defer logger.Sync()
	log := logger.Get().Named("engine")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to init engine", zap.Error(err))
		return 1
	}
	defer func() { _ = deps.Close() }()

	w := deps.Worker()
	if w == nil {
		log.Error("REDIS_URL is required to consume the request queue")
		return 1
	}
	if n, err := deps.Queue.Requeue(ctx, cfg.Queue.LeaseTimeout); err != nil {
		log.Warn("requeue of stale messages failed", zap.Error(err))
	} else if n > 0 {
		log.Info("requeued stale messages", zap.Int("count", n))
	}

	if cfg.Queue.Once {
		err := w.ProcessOne(ctx)
		switch {
		case err == nil:
			return 0
		case errors.Is(err, queue.ErrEmpty):
			log.Info("no message to process")
			return 0
		default:
			log.Error("optimization failed", zap.Error(err))
			return 1
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error { return requeueLoop(gctx, deps.Queue, cfg.Queue.LeaseTimeout, log) })
	log.Info("engine started", zap.String("queue", cfg.Queue.Name))
	if err := g.Wait(); err != nil {
		log.Error("engine stopped", zap.Error(err))
		return 1
	}
	log.Info("engine stopped")
	return 0
}

// requeueLoop returns leases older than lease to the pending list.
func requeueLoop(ctx context.Context, q *queue.Redis, lease time.Duration, log *zap.Logger) error {
	if lease <= 0 {
		return nil
	}
	t := time.NewTicker(lease / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := q.Requeue(ctx, lease)
			if err != nil {
				log.Warn("requeue of stale messages failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("requeued stale messages", zap.Int("count", n))
			}
		}
	}
}
