package worker

import (
	"context"
	"testing"
	"time"

	"github.com/PATRIC3/judge-host/internal/broker"
	"github.com/PATRIC3/judge-host/internal/judge"
	"github.com/PATRIC3/judge-host/internal/sandbox"
)

func testConfig() Config {
	return Config{
		MaxExecutionTime:     2 * time.Second,
		MaxQueueWorkLifeTime: time.Second,
		MaxStdoutErrorLength: 1000,
		BlockPopTimeout:      200 * time.Millisecond,
		HeartbeatTTL:         time.Second,
	}
}

func TestIsStaleShortMode(t *testing.T) {
	w := New("w1", broker.NewMemoryBroker(), judge.NewQueues("test"), testConfig())

	fresh := judge.WorkItem{EnqueuedAt: time.Now().Unix()}
	if w.isStale(fresh) {
		t.Fatal("freshly enqueued item should not be stale")
	}

	old := judge.WorkItem{EnqueuedAt: time.Now().Add(-10 * time.Second).Unix()}
	if !w.isStale(old) {
		t.Fatal("old item should be stale")
	}
}

func TestIsStaleLongBatchExempt(t *testing.T) {
	w := New("w1", broker.NewMemoryBroker(), judge.NewQueues("test"), testConfig())

	old := judge.WorkItem{EnqueuedAt: time.Now().Add(-10 * time.Second).Unix(), LongBatch: true}
	if w.isStale(old) {
		t.Fatal("long batch items should never be flagged stale")
	}
}

func TestToResultTimeout(t *testing.T) {
	w := New("w1", broker.NewMemoryBroker(), judge.NewQueues("test"), testConfig())

	item := judge.WorkItem{Mode: judge.ModeRun}
	execResult := sandbox.ProcessExecuteResult{ExitCode: sandbox.TimeoutExitCode}

	result := w.toResult(item, execResult)
	if result.Reason != judge.ReasonWorkerTimeout {
		t.Fatalf("Reason = %q, want %q", result.Reason, judge.ReasonWorkerTimeout)
	}
	if result.RunSuccess {
		t.Fatal("RunSuccess should be false on timeout")
	}
}

func TestToResultCompileError(t *testing.T) {
	w := New("w1", broker.NewMemoryBroker(), judge.NewQueues("test"), testConfig())

	item := judge.WorkItem{Mode: judge.ModeJudge}
	execResult := sandbox.ProcessExecuteResult{ExitCode: sandbox.CompileErrorExitCode, Stderr: "syntax error"}

	result := w.toResult(item, execResult)
	if result.Reason != judge.ReasonCompileError {
		t.Fatalf("Reason = %q, want %q", result.Reason, judge.ReasonCompileError)
	}
	if result.Success {
		t.Fatal("Success must be false when compile failed")
	}
}

func TestToResultJudgeModeComparesOutput(t *testing.T) {
	w := New("w1", broker.NewMemoryBroker(), judge.NewQueues("test"), testConfig())

	item := judge.WorkItem{
		Mode:       judge.ModeJudge,
		Submission: judge.Submission{Expected: "42\n"},
	}
	execResult := sandbox.ProcessExecuteResult{ExitCode: 0, Stdout: "42"}

	result := w.toResult(item, execResult)
	if !result.RunSuccess {
		t.Fatal("RunSuccess should be true for a zero exit code")
	}
	if !result.Success {
		t.Fatal("Success should be true when trimmed output matches")
	}
}

func TestToResultCarriesSubID(t *testing.T) {
	w := New("w1", broker.NewMemoryBroker(), judge.NewQueues("test"), testConfig())

	item := judge.WorkItem{
		Mode:       judge.ModeRun,
		Submission: judge.Submission{SubID: "sub-42"},
	}
	execResult := sandbox.ProcessExecuteResult{ExitCode: 0, Stdout: "ok"}

	result := w.toResult(item, execResult)
	if result.SubID != "sub-42" {
		t.Fatalf("SubID = %q, want sub-42", result.SubID)
	}
}

func TestToResultRunModeNeverCompares(t *testing.T) {
	w := New("w1", broker.NewMemoryBroker(), judge.NewQueues("test"), testConfig())

	item := judge.WorkItem{
		Mode:       judge.ModeRun,
		Submission: judge.Submission{Expected: "nonsense"},
	}
	execResult := sandbox.ProcessExecuteResult{ExitCode: 0, Stdout: "whatever"}

	result := w.toResult(item, execResult)
	if result.Success {
		t.Fatal("run mode must never set Success")
	}
}

func TestToResultSuccessImpliesRunSuccess(t *testing.T) {
	w := New("w1", broker.NewMemoryBroker(), judge.NewQueues("test"), testConfig())

	item := judge.WorkItem{
		Mode:       judge.ModeJudge,
		Submission: judge.Submission{Expected: "x"},
	}
	// A non-zero exit must never produce Success, even if stdout
	// happens to match.
	execResult := sandbox.ProcessExecuteResult{ExitCode: 1, Stdout: "x"}

	result := w.toResult(item, execResult)
	if result.Success {
		t.Fatal("success must imply run_success; a failing exit code must not yield success")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 3); got != "hel" {
		t.Fatalf("truncate = %q, want hel", got)
	}
	if got := truncate("hi", 10); got != "hi" {
		t.Fatalf("truncate = %q, want hi", got)
	}
	if got := truncate("hi", 0); got != "hi" {
		t.Fatalf("truncate with max=0 should be a no-op, got %q", got)
	}
}

func TestReportAndHeartbeatLifecycle(t *testing.T) {
	b := broker.NewMemoryBroker()
	q := judge.NewQueues("test")
	w := New("w1", b, q, testConfig())

	ctx := context.Background()
	w.refreshHeartbeat(ctx)

	n, err := judge.NumWorkers(ctx, b, q)
	if err != nil || n != 1 {
		t.Fatalf("NumWorkers = %d, %v; want 1, nil", n, err)
	}

	w.report(ctx, "work-1", judge.Result{RunSuccess: true})
	result, ok, err := judge.CollectResult(ctx, b, q, "work-1")
	if err != nil || !ok || !result.RunSuccess {
		t.Fatalf("CollectResult = %+v, %v, %v", result, ok, err)
	}
}
