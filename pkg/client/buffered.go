package client

import (
	"context"
	"sync"
	"time"

	"github.com/PATRIC3/judge-host/internal/judge"
)

// request pairs a submitted judge.Submission with the channel its
// eventual Result is delivered on.
type request struct {
	mode judge.Mode
	sub  judge.Submission
	done chan judge.Result
}

// BufferedClient accumulates submissions from Judge and Run calls made
// by many goroutines into batches of at most MaxBatchSize and ships each
// batch through Client's batch path (split across several long-batch
// requests, up to MaxWorkers in flight at once, with queue_timeout
// results resubmitted), fanning the results back out to their callers. It collapses the reference client's
// thread-pool and asyncio variants into a single goroutine/channel
// design, since Go has no such duality to begin with.
//
// A BufferedClient must be closed with Close once no more submissions
// will be made, which drains any in-flight batch before returning.
type BufferedClient struct {
	client *Client

	maxBatchSize int
	flushEvery   time.Duration

	mu      sync.Mutex
	pending []request
	flush   chan struct{}

	closeOnce sync.Once
	closing   chan struct{}
	wg        sync.WaitGroup
}

// NewBufferedClient starts a BufferedClient with cfg.MaxWorkers
// background senders draining the submission queue.
func NewBufferedClient(cfg Config) *BufferedClient {
	c := NewClient(cfg)

	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = 4
	}

	bc := &BufferedClient{
		client:       c,
		maxBatchSize: c.maxBatchSize,
		flushEvery:   time.Second,
		flush:        make(chan struct{}, workers),
		closing:      make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		bc.wg.Add(1)
		go bc.sendLoop()
	}

	return bc
}

// Judge submits a batch of submissions for comparison against their
// Expected output and blocks until every result is back, preserving
// input order.
func (bc *BufferedClient) Judge(ctx context.Context, submissions []judge.Submission) ([]judge.Result, error) {
	return bc.submitAndWait(ctx, judge.ModeJudge, submissions)
}

// Run submits a batch of submissions without comparison and blocks
// until every result is back, preserving input order.
func (bc *BufferedClient) Run(ctx context.Context, submissions []judge.Submission) ([]judge.Result, error) {
	return bc.submitAndWait(ctx, judge.ModeRun, submissions)
}

func (bc *BufferedClient) submitAndWait(ctx context.Context, mode judge.Mode, submissions []judge.Submission) ([]judge.Result, error) {
	if len(submissions) == 0 {
		return nil, nil
	}

	dones := make([]chan judge.Result, len(submissions))
	for i, sub := range submissions {
		dones[i] = bc.enqueue(mode, sub)
	}

	results := make([]judge.Result, len(submissions))
	for i, done := range dones {
		select {
		case results[i] = <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return results, nil
}

// enqueue adds a single submission to the pending queue and returns
// the channel its Result will be delivered on.
func (bc *BufferedClient) enqueue(mode judge.Mode, sub judge.Submission) chan judge.Result {
	req := request{mode: mode, sub: sub, done: make(chan judge.Result, 1)}

	bc.mu.Lock()
	bc.pending = append(bc.pending, req)
	ready := len(bc.pending) >= bc.maxBatchSize
	bc.mu.Unlock()

	if ready {
		select {
		case bc.flush <- struct{}{}:
		default:
		}
	}

	return req.done
}

// sendLoop repeatedly drains up to maxBatchSize pending requests and
// sends them through Client.run, which splits them into long-batch
// requests and resubmits any that come back with a retriable reason.
func (bc *BufferedClient) sendLoop() {
	defer bc.wg.Done()

	ticker := time.NewTicker(bc.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-bc.closing:
			bc.drainOnce(context.Background())
			return
		case <-bc.flush:
		case <-ticker.C:
		}
		bc.drainOnce(context.Background())
	}
}

func (bc *BufferedClient) drainOnce(ctx context.Context) {
	batch := bc.takeBatch()
	if len(batch) == 0 {
		return
	}

	// Requests in a drained batch may mix Judge and Run mode when two
	// callers raced; split so each sub-batch hits the right endpoint.
	byMode := map[judge.Mode][]request{}
	for _, r := range batch {
		byMode[r.mode] = append(byMode[r.mode], r)
	}

	for mode, reqs := range byMode {
		subs := make([]judge.Submission, len(reqs))
		for i, r := range reqs {
			subs[i] = r.sub
		}

		results, err := bc.client.run(ctx, mode, subs)
		if err != nil {
			for _, r := range reqs {
				r.done <- judge.Result{Reason: judge.ReasonRuntimeError, Stderr: err.Error()}
			}
			continue
		}
		for i, r := range reqs {
			r.done <- results[i]
		}
	}
}

func (bc *BufferedClient) takeBatch() []request {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	n := len(bc.pending)
	if n > bc.maxBatchSize {
		n = bc.maxBatchSize
	}
	batch := bc.pending[:n]
	bc.pending = bc.pending[n:]
	return batch
}

// Close stops accepting new flush triggers and blocks until every
// pending submission has been sent and its result delivered.
func (bc *BufferedClient) Close() {
	bc.closeOnce.Do(func() {
		close(bc.closing)
	})
	bc.wg.Wait()

	// A straggler batch may have arrived between the last drain and
	// the workers exiting; flush it synchronously so Close never
	// returns while submissions are still unanswered.
	for {
		bc.mu.Lock()
		empty := len(bc.pending) == 0
		bc.mu.Unlock()
		if empty {
			return
		}
		bc.drainOnce(context.Background())
	}
}

// Status reports the judge service's queue depth and worker count.
func (bc *BufferedClient) Status(ctx context.Context) (judge.StatusResponse, error) {
	return bc.client.Status(ctx)
}
