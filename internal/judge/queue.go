package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PATRIC3/judge-host/internal/broker"
)

// Key prefixes and queue names, namespaced under a single configurable
// prefix so a broker can be shared with other applications.
const (
	shortWorkQueueSuffix = "work:short"
	longWorkQueueSuffix  = "work:long"
	resultQueueSuffix    = "result"
	workerHeartbeatSuffix = "worker"
)

// Queues names the broker keys the work queue protocol uses, derived
// once from a key prefix so every component agrees on naming.
type Queues struct {
	prefix string
}

// NewQueues builds a Queues namer under the given key prefix.
func NewQueues(prefix string) Queues {
	return Queues{prefix: prefix}
}

// ShortWork is the FIFO queue workers block-pop from for judge/run and
// short-batch work.
func (q Queues) ShortWork() string { return q.prefix + ":" + shortWorkQueueSuffix }

// LongWork is the FIFO queue workers block-pop from for long-batch
// work, kept separate so a flood of long-batch submissions never
// starves interactive judge/run requests.
func (q Queues) LongWork() string { return q.prefix + ":" + longWorkQueueSuffix }

// Result names the per-work result key a worker publishes its Result
// to and the dispatcher reads exactly once.
func (q Queues) Result(workID string) string {
	return fmt.Sprintf("%s:%s:%s", q.prefix, resultQueueSuffix, workID)
}

// WorkerHeartbeat names the TTL'd key a worker refreshes to advertise
// liveness, and the glob pattern GET /status counts against.
func (q Queues) WorkerHeartbeat(workerID string) string {
	return fmt.Sprintf("%s:%s:%s", q.prefix, workerHeartbeatSuffix, workerID)
}

// WorkerHeartbeatPattern is the glob used to count live workers.
func (q Queues) WorkerHeartbeatPattern() string {
	return fmt.Sprintf("%s:%s:*", q.prefix, workerHeartbeatSuffix)
}

// NewWorkID generates a fresh work identifier.
func NewWorkID() string {
	return uuid.NewString()
}

// Enqueue pushes a WorkItem onto the appropriate work queue and
// returns its work_id so the caller can later claim the result.
func Enqueue(ctx context.Context, b broker.Broker, q Queues, sub Submission, mode Mode, longBatch bool, now time.Time) (string, error) {
	if err := sub.Validate(); err != nil {
		return "", err
	}

	item := WorkItem{
		WorkID:     NewWorkID(),
		Submission: sub,
		Mode:       mode,
		EnqueuedAt: now.Unix(),
		LongBatch:  longBatch,
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("judge: marshal work item: %w", err)
	}

	queueName := q.ShortWork()
	if longBatch {
		queueName = q.LongWork()
	}

	if err := b.ListPush(ctx, queueName, string(payload)); err != nil {
		return "", fmt.Errorf("judge: enqueue work item: %w", err)
	}

	return item.WorkID, nil
}

// Claim blocks up to timeout for the next WorkItem on either the short
// or long work queues, preferring whichever arrives first. ok is false
// if nothing arrived within timeout.
func Claim(ctx context.Context, b broker.Broker, q Queues, timeout time.Duration) (WorkItem, bool, error) {
	_, payload, ok, err := b.ListBlockPop(ctx, timeout, q.ShortWork(), q.LongWork())
	if err != nil || !ok {
		return WorkItem{}, false, err
	}

	var item WorkItem
	if err := json.Unmarshal([]byte(payload), &item); err != nil {
		return WorkItem{}, false, fmt.Errorf("judge: unmarshal work item: %w", err)
	}
	return item, true, nil
}

// ReportResult publishes a Result for workID with the given TTL, so a
// dispatcher that gave up waiting does not leave it around forever.
func ReportResult(ctx context.Context, b broker.Broker, q Queues, workID string, result Result, ttl time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("judge: marshal result: %w", err)
	}
	return b.KVSet(ctx, q.Result(workID), string(payload), ttl)
}

// CollectResult reads and deletes the Result published for workID. ok
// is false if nothing has been reported yet (or it already expired).
func CollectResult(ctx context.Context, b broker.Broker, q Queues, workID string) (Result, bool, error) {
	raw, ok, err := b.KVGet(ctx, q.Result(workID))
	if err != nil || !ok {
		return Result{}, false, err
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return Result{}, false, fmt.Errorf("judge: unmarshal result: %w", err)
	}

	// Best-effort cleanup; a failed delete just means the TTL collects
	// it later.
	_ = b.KVDelete(ctx, q.Result(workID))

	return result, true, nil
}

// QueueDepth reports the combined length of the short and long work
// queues, for GET /status.
func QueueDepth(ctx context.Context, b broker.Broker, q Queues) (int, error) {
	short, err := b.ListLen(ctx, q.ShortWork())
	if err != nil {
		return 0, err
	}
	long, err := b.ListLen(ctx, q.LongWork())
	if err != nil {
		return 0, err
	}
	return short + long, nil
}

// NumWorkers reports how many workers currently hold a live heartbeat
// key, for GET /status.
func NumWorkers(ctx context.Context, b broker.Broker, q Queues) (int, error) {
	return b.KVCountMatching(ctx, q.WorkerHeartbeatPattern())
}
