// Package worker consumes queued optimization requests, solves them and
// reports their lifecycle through the result store and event publishers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"routeopt/internal/apperr"
	"routeopt/internal/events"
	"routeopt/internal/geo"
	"routeopt/internal/model"
	"routeopt/internal/queue"
	"routeopt/internal/report"
	"routeopt/internal/store"
)

// Receiver is the queue side the worker needs.
type Receiver interface {
	Receive(ctx context.Context, wait time.Duration) (queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Extend(ctx context.Context, msg queue.Message) error
}

// Runner solves one request.
type Runner interface {
	Validate(req *model.OptimizationRequest) error
	Run(ctx context.Context, req *model.OptimizationRequest) (model.OptimizationResult, error)
}

type Worker struct {
	Queue  Receiver
	Runner Runner
	Store  store.Store
	Events events.Publisher
	Source string
	Wait   time.Duration
	// Heartbeat is how often the lease of the message in hand is extended
	// while it is processed; 0 never extends it.
	Heartbeat time.Duration
	Log       *zap.Logger
}

// ErrFailed reports a message that was consumed but not solved. The error
// event and record have already been written.
var ErrFailed = errors.New("optimization failed")

// ProcessOne handles at most one message. It returns queue.ErrEmpty when
// nothing arrived within Wait.
func (w *Worker) ProcessOne(ctx context.Context) error {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	msg, err := w.Queue.Receive(ctx, w.Wait)
	if err != nil {
		if errors.Is(err, queue.ErrEmpty) {
			log.Debug("no message received")
		}
		return err
	}
	log.Info("message received",
		zap.String("message_id", msg.ID),
		zap.Int("bytes", len(msg.Body)),
		zap.Int("deliveries", msg.Deliveries),
	)
	release := w.keepLeased(ctx, log, msg)
	defer release()
	ack := func() {
		release()
		w.ack(ctx, log, msg)
	}

	req, perr := model.DecodeRequest(msg.Body)
	problemID := ""
	if perr == nil {
		problemID = req.ProblemID
	} else {
		problemID = apperr.ExtractProblemID(string(msg.Body))
	}
	log = log.With(zap.String("problem_id", problemID))
	w.publishMetadata(ctx, log, problemID)

	if perr != nil {
		log.Error("failed to read the queued message", zap.Error(perr))
		w.fail(ctx, log, problemID, fmt.Errorf("failed to parse request: %w", perr))
		ack()
		return fmt.Errorf("%w: %v", ErrFailed, perr)
	}
	if err := w.Runner.Validate(req); err != nil {
		log.Error("the message didn't pass the validation", zap.Error(err))
		w.fail(ctx, log, problemID, err)
		ack()
		return fmt.Errorf("%w: %v", ErrFailed, err)
	}

	w.publish(ctx, log, events.InProgress, problemID, report.InProgress(problemID))
	if err := w.Store.Save(ctx, store.Record{ProblemID: problemID, Status: store.StatusInProgress}); err != nil {
		return fmt.Errorf("store in-progress %s: %w", problemID, err)
	}

	res, err := w.Runner.Run(ctx, req)
	if err != nil {
		// Failures that would repeat on redelivery drop the message. Anything
		// else stays leased until Requeue hands it out again.
		if permanent(err) {
			ack()
		}
		log.Error("error running the solver", zap.Error(err), zap.Bool("permanent", permanent(err)))
		w.record(ctx, log, store.Record{ProblemID: problemID, Status: store.StatusError, Result: &res, Error: err.Error()})
		w.publish(ctx, log, events.Failed, problemID, res)
		return fmt.Errorf("%w: %v", ErrFailed, err)
	}

	ack()
	w.record(ctx, log, store.Record{ProblemID: problemID, Status: store.StatusCompleted, Result: &res})
	w.publish(ctx, log, events.Completed, problemID, res)
	w.publishMetadata(ctx, log, problemID)
	return nil
}

// Run processes messages until ctx ends. Failures are logged and the loop
// continues.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		err := w.ProcessOne(ctx)
		switch {
		case err == nil, errors.Is(err, queue.ErrEmpty):
		case errors.Is(err, ErrFailed):
		case ctx.Err() != nil:
			return nil
		default:
			if w.Log != nil {
				w.Log.Error("worker iteration failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// permanent reports failures that redelivery cannot fix: invalid or
// inconsistent requests and pairs the routing service cannot route.
func permanent(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindAssembly:
		return true
	case apperr.KindDistance:
		var pe *geo.PairError
		return errors.As(err, &pe)
	}
	return false
}

// keepLeased extends the lease of msg every Heartbeat until the returned
// func is called. The func is safe to call more than once.
func (w *Worker) keepLeased(ctx context.Context, log *zap.Logger, msg queue.Message) func() {
	if w.Heartbeat <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(w.Heartbeat)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				err := w.Queue.Extend(ctx, msg)
				switch {
				case err == nil:
				case errors.Is(err, queue.ErrLeaseLost):
					log.Warn("lease lost while processing", zap.String("message_id", msg.ID))
					return
				case ctx.Err() == nil:
					log.Warn("failed to extend lease", zap.String("message_id", msg.ID), zap.Error(err))
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (w *Worker) fail(ctx context.Context, log *zap.Logger, problemID string, err error) {
	res := report.OfError(problemID, err)
	if problemID != "" {
		w.record(ctx, log, store.Record{ProblemID: problemID, Status: store.StatusError, Result: &res, Error: err.Error()})
	}
	w.publish(ctx, log, events.Failed, problemID, res)
}

func (w *Worker) record(ctx context.Context, log *zap.Logger, rec store.Record) {
	if err := w.Store.Save(ctx, rec); err != nil {
		log.Error("failed to store result", zap.String("status", string(rec.Status)), zap.Error(err))
	}
}

func (w *Worker) ack(ctx context.Context, log *zap.Logger, msg queue.Message) {
	if err := w.Queue.Ack(ctx, msg); err != nil {
		log.Error("failed to ack message", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func (w *Worker) publish(ctx context.Context, log *zap.Logger, t events.Type, problemID string, detail any) {
	evt, err := events.New(w.Source, t, problemID, detail)
	if err == nil {
		err = w.Events.Publish(ctx, evt)
	}
	if err != nil {
		log.Warn("failed to publish event", zap.String("event_type", string(t)), zap.Error(err))
	}
}

func (w *Worker) publishMetadata(ctx context.Context, log *zap.Logger, problemID string) {
	evt, err := events.NewMetadata(w.Source, problemID)
	if err == nil {
		err = w.Events.Publish(ctx, evt)
	}
	if err != nil {
		log.Warn("failed to publish metadata", zap.Error(err))
	}
}
