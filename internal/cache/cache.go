// Package cache provides the in-memory TTL cache for call results fed by
// the webhook path and read by callers awaiting completion.
package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/domain"
)

// DataStatus tracks how complete a cached call result is.
type DataStatus string

const (
	// StatusPartial means only the webhook payload has been stored.
	StatusPartial DataStatus = "partial"
	// StatusFetching means background enrichment is in flight.
	StatusFetching DataStatus = "fetching"
	// StatusComplete means enrichment merged the full vendor snapshot.
	StatusComplete DataStatus = "complete"
	// StatusFetchFailed means enrichment gave up; the partial data stands.
	StatusFetchFailed DataStatus = "fetch_failed"
)

const (
	// DefaultTTL bounds how long a result stays available for pickup.
	DefaultTTL = 30 * time.Minute
	// reapInterval is how often expired entries are purged.
	reapInterval = 5 * time.Minute
)

// Entry is a cached call result with its enrichment state.
type Entry struct {
	Result            *domain.CallResult `json:"result"`
	DataStatus        DataStatus         `json:"data_status"`
	FetchError        string             `json:"fetch_error,omitempty"`
	WebhookReceivedAt *time.Time         `json:"webhook_received_at,omitempty"`
	FetchedAt         *time.Time         `json:"fetched_at,omitempty"`
	ExpiresAt         time.Time          `json:"expires_at"`
}

// ResultCache is a TTL-bound map of call ID to call result. go-cache
// supplies expiry and the periodic reaper; mu serializes read-modify-write
// operations so readers never observe a partially merged entry. Entries
// are stored as immutable snapshots and replaced wholesale.
type ResultCache struct {
	mu         sync.Mutex
	store      *gocache.Cache
	defaultTTL time.Duration
	logger     *zap.Logger
}

// New creates a ResultCache with the given default TTL.
func New(ttl time.Duration, logger *zap.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{
		store:      gocache.New(ttl, reapInterval),
		defaultTTL: ttl,
		logger:     logger,
	}
}

// Set stores or replaces the entry for a call ID with the default TTL.
func (c *ResultCache) Set(callID string, result *domain.CallResult, status DataStatus) {
	c.SetWithTTL(callID, result, status, c.defaultTTL)
}

// SetWithTTL stores or replaces the entry with an explicit TTL.
func (c *ResultCache) SetWithTTL(callID string, result *domain.CallResult, status DataStatus, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	entry := &Entry{
		Result:     result,
		DataStatus: status,
		ExpiresAt:  now.Add(ttl),
	}
	if status == StatusPartial {
		entry.WebhookReceivedAt = &now
	}
	c.store.Set(callID, entry, ttl)

	c.logger.Debug("cached call result",
		zap.String("call_id", callID),
		zap.String("data_status", string(status)),
	)
}

// Get returns the entry for a call ID, or nil if absent or expired.
// The returned entry is a snapshot; mutating it does not affect the cache.
func (c *ResultCache) Get(callID string) *Entry {
	v, ok := c.store.Get(callID)
	if !ok {
		return nil
	}
	entry := v.(*Entry)
	snapshot := *entry
	return &snapshot
}

// UpdateFetchStatus updates the enrichment state of an existing entry.
// Missing entries are ignored.
func (c *ResultCache) UpdateFetchStatus(callID string, status DataStatus, fetchErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, exp, ok := c.store.GetWithExpiration(callID)
	if !ok {
		return
	}
	entry := v.(*Entry)
	updated := *entry
	updated.DataStatus = status
	if fetchErr != nil {
		updated.FetchError = fetchErr.Error()
	}
	c.replace(callID, &updated, exp)
}

// Merge folds an enriched result into the existing entry for a call ID.
// The longer transcript wins and non-empty enriched analysis fields
// override; the entry becomes complete. A miss stores the enriched
// result as a fresh complete entry.
func (c *ResultCache) Merge(callID string, enriched *domain.CallResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()

	v, exp, ok := c.store.GetWithExpiration(callID)
	if !ok {
		entry := &Entry{
			Result:     enriched,
			DataStatus: StatusComplete,
			FetchedAt:  &now,
			ExpiresAt:  now.Add(c.defaultTTL),
		}
		c.store.Set(callID, entry, c.defaultTTL)
		return
	}

	entry := v.(*Entry)
	merged := *entry
	result := *entry.Result

	if len(enriched.Transcript) > len(result.Transcript) {
		result.Transcript = enriched.Transcript
	}
	if enriched.Status.IsTerminal() {
		result.Status = enriched.Status
	}
	if enriched.EndedReason != "" {
		result.EndedReason = enriched.EndedReason
	}
	if enriched.DurationMinutes > 0 {
		result.DurationMinutes = enriched.DurationMinutes
	}
	if enriched.Cost != nil {
		result.Cost = enriched.Cost
	}
	if enriched.Analysis.Summary != "" {
		result.Analysis.Summary = enriched.Analysis.Summary
	}
	if enriched.Analysis.StructuredData != nil {
		result.Analysis.StructuredData = enriched.Analysis.StructuredData
	}
	if enriched.Analysis.SuccessEvaluation != "" {
		result.Analysis.SuccessEvaluation = enriched.Analysis.SuccessEvaluation
	}
	if result.ProviderID == nil {
		result.ProviderID = enriched.ProviderID
	}
	if result.ServiceRequestID == nil {
		result.ServiceRequestID = enriched.ServiceRequestID
	}

	merged.Result = &result
	merged.DataStatus = StatusComplete
	merged.FetchedAt = &now
	merged.FetchError = ""
	c.replace(callID, &merged, exp)

	c.logger.Debug("merged enriched call result",
		zap.String("call_id", callID),
		zap.Int("transcript_len", len(result.Transcript)),
	)
}

// Delete evicts an entry.
func (c *ResultCache) Delete(callID string) {
	c.store.Delete(callID)
}

// Stats summarizes live cache contents.
type Stats struct {
	Size     int                `json:"size"`
	ByStatus map[DataStatus]int `json:"by_status"`
}

// GetStats returns counts of live entries grouped by data status.
func (c *ResultCache) GetStats() Stats {
	items := c.store.Items()
	stats := Stats{
		Size:     len(items),
		ByStatus: make(map[DataStatus]int),
	}
	for _, item := range items {
		entry := item.Object.(*Entry)
		stats.ByStatus[entry.DataStatus]++
	}
	return stats
}

// replace swaps an entry in while preserving its remaining TTL.
func (c *ResultCache) replace(callID string, entry *Entry, expiration time.Time) {
	ttl := time.Until(expiration)
	if expiration.IsZero() {
		ttl = c.defaultTTL
	}
	if ttl <= 0 {
		return
	}
	entry.ExpiresAt = expiration
	c.store.Set(callID, entry, ttl)
}
