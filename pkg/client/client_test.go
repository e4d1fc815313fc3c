package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/PATRIC3/judge-host/internal/judge"
)

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(judge.StatusResponse{Queue: 3, NumWorkers: 2})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Queue != 3 || status.NumWorkers != 2 {
		t.Fatalf("status = %+v, want {3 2}", status)
	}
}

func TestRunSplitsIntoBatchesAndPreservesOrder(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req judge.BatchRequest
		json.NewDecoder(r.Body).Decode(&req)

		results := make([]judge.Result, len(req.Submissions))
		for i, s := range req.Submissions {
			results[i] = judge.Result{RunSuccess: true, Stdout: s.Source}
		}
		json.NewEncoder(w).Encode(judge.BatchResult{Results: results})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxBatchSize: 2, MaxWorkers: 2})

	subs := make([]judge.Submission, 5)
	for i := range subs {
		subs[i] = judge.Submission{Language: judge.LanguagePython, Source: string(rune('a' + i))}
	}

	results, err := c.Run(context.Background(), subs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("len(results) = %d, want 5", len(results))
	}
	for i, s := range subs {
		if results[i].Stdout != s.Source {
			t.Fatalf("results[%d].Stdout = %q, want %q (order not preserved)", i, results[i].Stdout, s.Source)
		}
	}
	// 5 submissions with MaxBatchSize 2: ceil(5/2) = 3 batch requests.
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("batch requests = %d, want 3", got)
	}
}

func TestRunRetriesQueueTimeout(t *testing.T) {
	var attempt int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempt, 1)
		var req judge.BatchRequest
		json.NewDecoder(r.Body).Decode(&req)

		results := make([]judge.Result, len(req.Submissions))
		for i := range results {
			if n == 1 {
				results[i] = judge.Result{Reason: judge.ReasonQueueTimeout}
			} else {
				results[i] = judge.Result{RunSuccess: true, Stdout: "ok"}
			}
		}
		json.NewEncoder(w).Encode(judge.BatchResult{Results: results})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxBatchSize: 10, MaxWorkers: 1})

	results, err := c.Run(context.Background(), []judge.Submission{
		{Language: judge.LanguagePython, Source: "print(1)"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || results[0].Stdout != "ok" {
		t.Fatalf("results = %+v, want one retried success", results)
	}
	if atomic.LoadInt32(&attempt) < 2 {
		t.Fatalf("attempt = %d, want at least 2 (retry did not happen)", attempt)
	}
}

func TestRunEmptySubmissionsIsNoop(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://unused.invalid"})
	results, err := c.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results != nil {
		t.Fatalf("results = %v, want nil", results)
	}
}
