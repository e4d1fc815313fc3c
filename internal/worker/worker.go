// Package worker implements the claim-execute-report loop that turns
// queued WorkItems into Results.
package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/PATRIC3/judge-host/internal/broker"
	"github.com/PATRIC3/judge-host/internal/judge"
	"github.com/PATRIC3/judge-host/internal/lang"
	"github.com/PATRIC3/judge-host/internal/sandbox"
)

// Config holds the tunables a Worker needs from the broader
// configuration tree.
type Config struct {
	MaxExecutionTime     time.Duration
	MaxQueueWorkLifeTime time.Duration
	MaxMemoryBytes       int
	MaxStdoutErrorLength int
	BlockPopTimeout      time.Duration
	HeartbeatTTL         time.Duration
	Lang                 lang.Config
}

// Worker claims work from the broker, executes it in the sandbox, and
// reports a Result, refreshing a heartbeat key the whole time it is
// alive so GET /status can count live workers.
type Worker struct {
	id     string
	broker broker.Broker
	queues judge.Queues
	cfg    Config
}

// New creates a Worker that uses id as given for its heartbeat key. ID
// builds a suitable id from the process pid and a caller-supplied index
// (so multiple workers in one supervised pool don't collide on the same
// heartbeat key).
func New(id string, b broker.Broker, queues judge.Queues, cfg Config) *Worker {
	return &Worker{id: id, broker: b, queues: queues, cfg: cfg}
}

// Run loops claiming and executing work until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("worker %s: starting", w.id)
	defer log.Printf("worker %s: stopped", w.id)

	heartbeatStop := make(chan struct{})
	go w.heartbeatLoop(ctx, heartbeatStop)
	defer close(heartbeatStop)
	defer w.broker.KVDelete(context.Background(), w.queues.WorkerHeartbeat(w.id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, ok, err := judge.Claim(ctx, w.broker, w.queues, w.cfg.BlockPopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("worker %s: claim error: %v", w.id, err)
			continue
		}
		if !ok {
			continue
		}

		w.handle(ctx, item)
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context, stop <-chan struct{}) {
	interval := w.cfg.HeartbeatTTL / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.refreshHeartbeat(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refreshHeartbeat(ctx)
		}
	}
}

func (w *Worker) refreshHeartbeat(ctx context.Context) {
	key := w.queues.WorkerHeartbeat(w.id)
	if err := w.broker.KVSet(ctx, key, "alive", w.cfg.HeartbeatTTL); err != nil {
		log.Printf("worker %s: heartbeat refresh failed: %v", w.id, err)
	}
}

// handle executes one WorkItem and reports its Result, never letting a
// panic or unexpected error escape: every failure path still
// materializes a runtime_error Result so a dispatcher waiting on the
// result key is never left hanging.
func (w *Worker) handle(ctx context.Context, item judge.WorkItem) {
	if w.isStale(item) {
		w.report(ctx, item.WorkID, judge.Result{Reason: judge.ReasonQueueTimeout, SubID: item.Submission.SubID})
		return
	}

	result := w.safeExecute(ctx, item)
	w.report(ctx, item.WorkID, result)
}

// isStale rejects short-mode work that sat in the queue longer than
// MaxQueueWorkLifeTime; such work is reported as queue_timeout without
// being executed. The age is measured against the broker's clock, the
// same clock EnqueuedAt was stamped with; if the broker clock cannot be
// read, the worker's local clock is used instead. Long-batch work is
// exempt: its queue deadline is measured in hours, not seconds.
func (w *Worker) isStale(item judge.WorkItem) bool {
	if item.LongBatch {
		return false
	}
	now, err := w.broker.ServerTime(context.Background())
	if err != nil {
		now = time.Now()
	}
	age := now.Sub(time.Unix(item.EnqueuedAt, 0))
	return age > w.cfg.MaxQueueWorkLifeTime
}

func (w *Worker) safeExecute(ctx context.Context, item judge.WorkItem) (result judge.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker %s: panic executing work %s: %v", w.id, item.WorkID, r)
			result = judge.Result{Reason: judge.ReasonRuntimeError, SubID: item.Submission.SubID}
		}
	}()

	return w.execute(ctx, item)
}

func (w *Worker) execute(ctx context.Context, item judge.WorkItem) judge.Result {
	adapter, err := lang.For(item.Submission.Language, w.cfg.Lang)
	if err != nil {
		return judge.Result{Reason: judge.ReasonRuntimeError, Stderr: err.Error(), SubID: item.Submission.SubID}
	}

	workDir, err := sandbox.NewWorkDir()
	if err != nil {
		return judge.Result{Reason: judge.ReasonRuntimeError, Stderr: err.Error(), SubID: item.Submission.SubID}
	}
	defer os.RemoveAll(workDir)

	timeoutSeconds := int(w.cfg.MaxExecutionTime / time.Second)
	gen, err := adapter.NewGenerator(workDir, item.Submission.Source, timeoutSeconds, w.cfg.MaxMemoryBytes)
	if err != nil {
		return judge.Result{Reason: judge.ReasonRuntimeError, Stderr: err.Error(), SubID: item.Submission.SubID}
	}

	// Pad the external wall-clock deadline beyond the in-process alarm
	// so the submission's own SIGALRM handler gets to run and print its
	// timeout sentinel before sandbox.Execute's SIGKILL can land.
	execResult, err := sandbox.Execute(ctx, gen, workDir, item.Submission.Input, w.cfg.MaxExecutionTime+time.Second)
	if err != nil {
		return judge.Result{Reason: judge.ReasonRuntimeError, Stderr: err.Error(), SubID: item.Submission.SubID}
	}

	return w.toResult(item, execResult)
}

func (w *Worker) toResult(item judge.WorkItem, execResult sandbox.ProcessExecuteResult) judge.Result {
	stdout, _ := lang.SplitTrailer(execResult.Stdout)
	stderr := execResult.Stderr

	result := judge.Result{
		SubID:      item.Submission.SubID,
		RunSuccess: execResult.Success(),
		ExitCode:   execResult.ExitCode,
		Stdout:     truncate(stdout, w.cfg.MaxStdoutErrorLength),
		Stderr:     truncate(stderr, w.cfg.MaxStdoutErrorLength),
		RuntimeMS:  execResult.Cost.Milliseconds(),
	}

	switch execResult.ExitCode {
	case sandbox.TimeoutExitCode:
		result.Reason = judge.ReasonWorkerTimeout
	case sandbox.CompileErrorExitCode:
		result.Reason = judge.ReasonCompileError
	default:
		if !execResult.Success() {
			result.Reason = judge.ReasonRuntimeError
		}
	}

	if item.Mode == judge.ModeJudge && result.RunSuccess {
		result.Success = judge.CompareOutput(stdout, item.Submission.Expected)
	}

	return result
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

func (w *Worker) report(ctx context.Context, workID string, result judge.Result) {
	if err := judge.ReportResult(ctx, w.broker, w.queues, workID, result, w.cfg.MaxQueueWorkLifeTime+w.cfg.MaxExecutionTime); err != nil {
		log.Printf("worker %s: reporting result for %s: %v", w.id, workID, err)
	}
}

// ID returns a worker's identity string, built from the process pid
// and a caller-assigned index.
func ID(index int) string {
	return fmt.Sprintf("%d-%d", os.Getpid(), index)
}
