// Package ingest receives vendor webhooks, caches their payloads, and
// enriches partial results with full call snapshots in the background.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/cache"
	"github.com/jkindrix/callbridge/internal/clock"
	"github.com/jkindrix/callbridge/internal/domain"
	"github.com/jkindrix/callbridge/internal/metrics"
	"github.com/jkindrix/callbridge/internal/vapi"
)

// enrichTimeout bounds one whole enrichment run including retries.
const enrichTimeout = 2 * time.Minute

// defaultRetryDelays staggers snapshot fetches after a webhook arrives:
// vendor analysis usually lands within a few seconds of the report.
var defaultRetryDelays = []time.Duration{3 * time.Second, 5 * time.Second, 8 * time.Second}

// VendorFetcher fetches call snapshots from the vendor.
type VendorFetcher interface {
	GetCall(ctx context.Context, callID string) (*vapi.Call, error)
}

// Enricher upgrades partial webhook results to full vendor snapshots.
// Each Start call runs asynchronously; Wait blocks until all in-flight
// enrichments finish, for use during shutdown.
type Enricher struct {
	vendor    VendorFetcher
	cache     *cache.ResultCache
	providers domain.ProviderRepository
	logs      domain.LogRepository
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *zap.Logger
	delays    []time.Duration

	wg sync.WaitGroup
}

// NewEnricher creates an Enricher.
func NewEnricher(
	vendor VendorFetcher,
	resultCache *cache.ResultCache,
	providers domain.ProviderRepository,
	logs domain.LogRepository,
	clk clock.Clock,
	logger *zap.Logger,
) *Enricher {
	if clk == nil {
		clk = clock.New()
	}
	return &Enricher{
		vendor:    vendor,
		cache:     resultCache,
		providers: providers,
		logs:      logs,
		clock:     clk,
		logger:    logger,
		delays:    defaultRetryDelays,
	}
}

// SetMetrics attaches enrichment counters. Optional.
func (e *Enricher) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Start kicks off background enrichment for a cached call result.
func (e *Enricher) Start(callID string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), enrichTimeout)
		defer cancel()
		e.run(ctx, callID)
	}()
}

// Wait blocks until every in-flight enrichment has finished.
func (e *Enricher) Wait() {
	e.wg.Wait()
}

// run attempts to fetch a complete snapshot on a staggered schedule. The
// first complete snapshot wins: it is merged into the cache and persisted.
// If every attempt comes back incomplete or failing, the entry is marked
// fetch_failed and the partial webhook data is persisted as-is.
func (e *Enricher) run(ctx context.Context, callID string) {
	e.cache.UpdateFetchStatus(callID, cache.StatusFetching, nil)

	var lastErr error
	for attempt, delay := range e.delays {
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
		case <-e.clock.After(delay):
		}
		if ctx.Err() != nil {
			break
		}

		call, err := e.vendor.GetCall(ctx, callID)
		if err != nil {
			lastErr = err
			e.logger.Debug("enrichment fetch failed",
				zap.String("call_id", callID),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		if !vapi.IsDataComplete(call) {
			lastErr = fmt.Errorf("call %s snapshot not yet complete", callID)
			continue
		}

		enriched := vapi.ResultFromCall(call, domain.CallMethodWebhook, e.logger)
		e.cache.Merge(callID, enriched)
		e.persist(ctx, callID, cache.StatusComplete)

		if e.metrics != nil {
			e.metrics.RecordEnrichment("complete", attempt+1)
		}
		e.logger.Info("call result enriched",
			zap.String("call_id", callID),
			zap.Int("attempt", attempt+1),
		)
		return
	}

	e.cache.UpdateFetchStatus(callID, cache.StatusFetchFailed, lastErr)
	e.persist(ctx, callID, cache.StatusFetchFailed)

	if e.metrics != nil {
		e.metrics.RecordEnrichment("fetch_failed", len(e.delays))
	}

	e.logger.Warn("enrichment gave up, keeping partial webhook data",
		zap.String("call_id", callID),
		zap.Error(lastErr),
	)
}

// persist writes the current cache entry to the provider row and the
// audit log, when the result carries correlation ids.
func (e *Enricher) persist(ctx context.Context, callID string, status cache.DataStatus) {
	entry := e.cache.Get(callID)
	if entry == nil || entry.Result == nil {
		return
	}
	result := entry.Result
	if result.ProviderID == nil || result.ServiceRequestID == nil {
		e.logger.Debug("skipping persistence for uncorrelated call",
			zap.String("call_id", callID),
		)
		return
	}

	if e.providers != nil {
		if err := e.providers.UpsertProviderCall(ctx, *result.ProviderID, result); err != nil {
			e.logger.Error("failed to persist enriched call",
				zap.String("call_id", callID),
				zap.Error(err),
			)
		}
	}

	if e.logs == nil {
		return
	}
	logStatus := domain.LogSuccess
	detail := fmt.Sprintf("call to %s ended with status %s", result.ProviderName, result.Status)
	if status == cache.StatusFetchFailed {
		logStatus = domain.LogWarning
		detail = fmt.Sprintf("call to %s recorded from webhook only, enrichment failed", result.ProviderName)
	} else if result.Status != domain.CallStatusCompleted {
		logStatus = domain.LogWarning
	}

	log := domain.NewInteractionLog(*result.ServiceRequestID, "provider_call", detail, logStatus)
	log.ProviderID = result.ProviderID
	id := callID
	log.CallID = &id
	if err := e.logs.Append(ctx, log); err != nil {
		e.logger.Error("failed to append call log",
			zap.String("call_id", callID),
			zap.Error(err),
		)
	}
}
