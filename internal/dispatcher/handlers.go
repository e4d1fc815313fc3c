package dispatcher

import (
	"encoding/json"
	"net/http"

	"github.com/PATRIC3/judge-host/internal/broker"
	"github.com/PATRIC3/judge-host/internal/judge"
)

// Handler implements the HTTP endpoints backing Server's route tree.
type Handler struct {
	cfg    Config
	broker broker.Broker
	queues judge.Queues
}

// Status answers GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	queueDepth, err := judge.QueueDepth(ctx, h.broker, h.queues)
	if err != nil {
		h.errorResponse(w, "broker unavailable", http.StatusServiceUnavailable)
		return
	}

	numWorkers, err := judge.NumWorkers(ctx, h.broker, h.queues)
	if err != nil {
		h.errorResponse(w, "broker unavailable", http.StatusServiceUnavailable)
		return
	}

	h.jsonResponse(w, http.StatusOK, judge.StatusResponse{
		Queue:      queueDepth,
		NumWorkers: numWorkers,
	})
}

// Judge handles POST /judge: execute and compare against Expected.
func (h *Handler) Judge(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, judge.ModeJudge, false)
}

// Run handles POST /run: execute without comparison.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, judge.ModeRun, false)
}

// JudgeBatch handles POST /judge/batch.
func (h *Handler) JudgeBatch(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, judge.ModeJudge, false)
}

// RunBatch handles POST /run/batch.
func (h *Handler) RunBatch(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, judge.ModeRun, false)
}

// JudgeLongBatch handles POST /judge/long-batch.
func (h *Handler) JudgeLongBatch(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, judge.ModeJudge, true)
}

// RunLongBatch handles POST /run/long-batch.
func (h *Handler) RunLongBatch(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, judge.ModeRun, true)
}

func (h *Handler) single(w http.ResponseWriter, r *http.Request, mode judge.Mode, longBatch bool) {
	var sub judge.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.errorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := sub.Validate(); err != nil {
		h.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := awaitResult(r.Context(), h.broker, h.queues, sub, mode, longBatch, h.cfg)
	h.jsonResponse(w, http.StatusOK, result)
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request, mode judge.Mode, longBatch bool) {
	var req judge.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Submissions) == 0 {
		h.errorResponse(w, "empty submissions list", http.StatusBadRequest)
		return
	}

	chunkSize := h.cfg.MaxBatchChunkSize
	if longBatch {
		chunkSize = h.cfg.MaxLongBatchChunkSize
	}

	results := make([]judge.Result, len(req.Submissions))
	chunks := judge.Chunkify(indices(len(req.Submissions)), chunkSize)

	for _, chunk := range chunks {
		type outcome struct {
			idx    int
			result judge.Result
		}
		out := make(chan outcome, len(chunk))

		for _, idx := range chunk {
			go func(idx int) {
				sub := req.Submissions[idx]
				if err := sub.Validate(); err != nil {
					out <- outcome{idx, judge.Result{Reason: judge.ReasonRuntimeError, Stderr: err.Error(), SubID: sub.SubID}}
					return
				}
				out <- outcome{idx, awaitResult(r.Context(), h.broker, h.queues, sub, mode, longBatch, h.cfg)}
			}(idx)
		}

		for range chunk {
			o := <-out
			results[o.idx] = o.result
		}
	}

	h.jsonResponse(w, http.StatusOK, judge.BatchResult{
		SubID:   req.SubID,
		Results: results,
	})
}

func indices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
