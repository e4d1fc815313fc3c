// Package client provides a Go client library for the judge service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PATRIC3/judge-host/internal/judge"
)

// Client is a synchronous client for the judge service. It chunks large
// submission lists across MaxBatchSize-sized batches, runs batches
// concurrently up to MaxWorkers at a time, and resubmits any submission
// that comes back with a retriable reason until it resolves.
type Client struct {
	baseURL    string
	httpClient *http.Client

	maxBatchSize int
	maxWorkers   int
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// MaxBatchSize caps how many submissions are sent in a single
	// /run/long-batch or /judge/long-batch request.
	MaxBatchSize int
	// MaxWorkers caps how many batch requests are in flight at once.
	MaxWorkers int
}

// NewClient creates a new judge API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Hour
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1000
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}

	return &Client{
		baseURL:      cfg.BaseURL,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		maxBatchSize: cfg.MaxBatchSize,
		maxWorkers:   cfg.MaxWorkers,
	}
}

// Status reports the judge service's queue depth and worker count.
func (c *Client) Status(ctx context.Context) (judge.StatusResponse, error) {
	resp, err := c.doRequest(ctx, "GET", "/status", nil)
	if err != nil {
		return judge.StatusResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return judge.StatusResponse{}, c.parseError(resp)
	}

	var status judge.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return judge.StatusResponse{}, err
	}
	return status, nil
}

// Judge executes each submission and compares it against its Expected
// output. Results are returned in the same order as submissions.
func (c *Client) Judge(ctx context.Context, submissions []judge.Submission) ([]judge.Result, error) {
	return c.run(ctx, judge.ModeJudge, submissions)
}

// Run executes each submission without comparing its output. Results
// are returned in the same order as submissions.
func (c *Client) Run(ctx context.Context, submissions []judge.Submission) ([]judge.Result, error) {
	return c.run(ctx, judge.ModeRun, submissions)
}

func (c *Client) run(ctx context.Context, mode judge.Mode, submissions []judge.Submission) ([]judge.Result, error) {
	if len(submissions) == 0 {
		return nil, nil
	}

	pending := submissions
	pendingIdx := indices(len(submissions))
	results := make(map[int]judge.Result, len(submissions))

	for len(pending) > 0 {
		numBatches := ceilDiv(len(pending), c.maxBatchSize)
		if numBatches < c.maxWorkers {
			numBatches = c.maxWorkers
		}
		batchSize := ceilDiv(len(pending), numBatches)

		type chunk struct {
			subs []judge.Submission
			idx  []int
		}
		var chunks []chunk
		for start := 0; start < len(pending); start += batchSize {
			end := start + batchSize
			if end > len(pending) {
				end = len(pending)
			}
			chunks = append(chunks, chunk{subs: pending[start:end], idx: pendingIdx[start:end]})
		}

		type outcome struct {
			idx     []int
			results []judge.Result
			err     error
		}
		out := make(chan outcome, len(chunks))
		sem := make(chan struct{}, c.maxWorkers)

		for _, ch := range chunks {
			ch := ch
			sem <- struct{}{}
			go func() {
				defer func() { <-sem }()
				r, err := c.longBatch(ctx, mode, ch.subs)
				out <- outcome{idx: ch.idx, results: r, err: err}
			}()
		}

		var retryIdx []int
		var retrySubs []judge.Submission
		for range chunks {
			o := <-out
			if o.err != nil {
				return nil, o.err
			}
			for i, idx := range o.idx {
				res := o.results[i]
				if res.Reason.Retriable() {
					retryIdx = append(retryIdx, idx)
					retrySubs = append(retrySubs, submissions[idx])
				} else {
					results[idx] = res
				}
			}
		}

		pending = retrySubs
		pendingIdx = retryIdx
	}

	ordered := make([]judge.Result, len(submissions))
	for i := range ordered {
		ordered[i] = results[i]
	}
	return ordered, nil
}

func (c *Client) longBatch(ctx context.Context, mode judge.Mode, submissions []judge.Submission) ([]judge.Result, error) {
	if len(submissions) == 0 {
		return nil, nil
	}

	path := "/run/long-batch"
	if mode == judge.ModeJudge {
		path = "/judge/long-batch"
	}

	body, err := json.Marshal(judge.BatchRequest{Submissions: submissions})
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, "POST", path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result judge.BatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

// doRequest makes an HTTP request against the judge service.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// parseError parses an error response.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, errResp.Error)
	}

	return fmt.Errorf("%s: %s", resp.Status, string(body))
}

func indices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
