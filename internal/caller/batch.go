package caller

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/domain"
)

const (
	// DefaultMaxConcurrent is the batch concurrency when none is given.
	DefaultMaxConcurrent = 5

	// MaxConcurrentLimit caps how many calls may run at once regardless
	// of what the caller asks for.
	MaxConcurrentLimit = 10
)

// BatchCaller fans a set of call requests out over a bounded number of
// concurrent DirectCaller runs.
type BatchCaller struct {
	caller *DirectCaller
	logger *zap.Logger
}

// NewBatchCaller creates a BatchCaller on top of a DirectCaller.
func NewBatchCaller(caller *DirectCaller, logger *zap.Logger) *BatchCaller {
	return &BatchCaller{caller: caller, logger: logger}
}

// clampConcurrency bounds maxConcurrent to [1, MaxConcurrentLimit],
// falling back to the default for zero or negative values.
func clampConcurrency(maxConcurrent int) int {
	if maxConcurrent <= 0 {
		return DefaultMaxConcurrent
	}
	if maxConcurrent > MaxConcurrentLimit {
		return MaxConcurrentLimit
	}
	return maxConcurrent
}

// Run places one call per request and returns results in request order.
// A cancelled context stops new calls from starting; requests that never
// started come back with a timeout status, so the result slice always
// matches the input length.
func (b *BatchCaller) Run(ctx context.Context, requests []*domain.CallRequest, maxConcurrent int) []*domain.CallResult {
	results := make([]*domain.CallResult, len(requests))
	if len(requests) == 0 {
		return results
	}

	limit := clampConcurrency(maxConcurrent)
	b.logger.Info("starting call batch",
		zap.Int("requests", len(requests)),
		zap.Int("max_concurrent", limit),
	)

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, req := range requests {
		if ctx.Err() != nil {
			results[i] = b.skippedResult(req)
			continue
		}
		select {
		case <-ctx.Done():
			results[i] = b.skippedResult(req)
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, req *domain.CallRequest) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = b.caller.Call(ctx, req)
		}(i, req)
	}

	wg.Wait()

	b.logger.Info("call batch finished",
		zap.Int("requests", len(requests)),
		zap.Int("completed", countCompleted(results)),
	)
	return results
}

// skippedResult marks a request that was queued but never dispatched.
func (b *BatchCaller) skippedResult(req *domain.CallRequest) *domain.CallResult {
	result := &domain.CallResult{
		Status:      domain.CallStatusTimeout,
		EndedReason: "batch cancelled before dispatch",
	}
	b.caller.attachContext(req, result)
	return result
}

func countCompleted(results []*domain.CallResult) int {
	n := 0
	for _, r := range results {
		if r != nil && r.Status == domain.CallStatusCompleted {
			n++
		}
	}
	return n
}
