// Package dispatcher implements the HTTP front door of the judge
// service: it enqueues submissions onto the work queue and blocks for
// their results within the client-visible deadline.
package dispatcher

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/PATRIC3/judge-host/internal/broker"
	"github.com/PATRIC3/judge-host/internal/judge"
)

// Config holds the dispatcher's view of the timing/batch configuration.
type Config struct {
	WriteTimeout          time.Duration
	MaxQueueWaitTime      time.Duration
	LongBatchMaxQueueWait time.Duration
	MaxBatchChunkSize     int
	MaxLongBatchChunkSize int
}

// Server is the HTTP server for the judge dispatcher.
type Server struct {
	cfg     Config
	broker  broker.Broker
	queues  judge.Queues
	handler *Handler
	router  chi.Router
}

// NewServer builds a Server and its route tree.
func NewServer(cfg Config, b broker.Broker, queues judge.Queues) *Server {
	s := &Server{
		cfg:    cfg,
		broker: b,
		queues: queues,
	}
	s.handler = &Handler{cfg: cfg, broker: b, queues: queues}
	s.router = s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.WriteTimeout))

	r.Get("/status", s.handler.Status)
	r.Post("/judge", s.handler.Judge)
	r.Post("/run", s.handler.Run)
	r.Post("/judge/batch", s.handler.JudgeBatch)
	r.Post("/run/batch", s.handler.RunBatch)
	r.Post("/judge/long-batch", s.handler.JudgeLongBatch)
	r.Post("/run/long-batch", s.handler.RunLongBatch)

	return r
}

// Router exposes the chi router for cmd/judge-server to mount and serve.
func (s *Server) Router() chi.Router {
	return s.router
}

// deadlineFor returns the queue-wait budget the dispatcher gives
// itself before abandoning a claim attempt and reporting queue_timeout
// to the client.
func deadlineFor(longBatch bool, cfg Config) time.Duration {
	if longBatch {
		return cfg.LongBatchMaxQueueWait
	}
	return cfg.MaxQueueWaitTime
}

// awaitResult enqueues sub and blocks until either a Result is
// collected or the queue-wait deadline elapses, in which case it
// synthesizes a queue_timeout Result and best-effort deletes any
// result that might still show up late.
func awaitResult(ctx context.Context, b broker.Broker, q judge.Queues, sub judge.Submission, mode judge.Mode, longBatch bool, cfg Config) judge.Result {
	now, err := b.ServerTime(ctx)
	if err != nil {
		return judge.Result{Reason: judge.ReasonRuntimeError, Stderr: err.Error(), SubID: sub.SubID}
	}

	workID, err := judge.Enqueue(ctx, b, q, sub, mode, longBatch, now)
	if err != nil {
		return judge.Result{Reason: judge.ReasonRuntimeError, Stderr: err.Error(), SubID: sub.SubID}
	}

	deadline := time.Now().Add(deadlineFor(longBatch, cfg))
	pollInterval := 100 * time.Millisecond

	for {
		result, ok, err := judge.CollectResult(ctx, b, q, workID)
		if err != nil {
			return judge.Result{Reason: judge.ReasonRuntimeError, Stderr: err.Error(), SubID: sub.SubID}
		}
		if ok {
			return result
		}
		if time.Now().After(deadline) {
			// Best-effort cleanup: if a worker reports late, nothing
			// will ever read the key again; its TTL reclaims it.
			_ = b.KVDelete(ctx, q.Result(workID))
			return judge.Result{Reason: judge.ReasonQueueTimeout, SubID: sub.SubID}
		}
		select {
		case <-ctx.Done():
			return judge.Result{Reason: judge.ReasonQueueTimeout, SubID: sub.SubID}
		case <-time.After(pollInterval):
		}
	}
}
