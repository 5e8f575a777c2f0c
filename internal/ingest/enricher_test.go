package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/cache"
	"github.com/jkindrix/callbridge/internal/clock"
	"github.com/jkindrix/callbridge/internal/domain"
	"github.com/jkindrix/callbridge/internal/vapi"
)

type fetcherMock struct {
	mu        sync.Mutex
	calls     int
	responses []fetchResponse
}

type fetchResponse struct {
	call *vapi.Call
	err  error
}

func (f *fetcherMock) GetCall(_ context.Context, callID string) (*vapi.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	r := f.responses[i]
	return r.call, r.err
}

type providerRepoMock struct {
	mu      sync.Mutex
	upserts []*domain.CallResult
}

func (m *providerRepoMock) CreateBatch(context.Context, []*domain.Provider) error { return nil }
func (m *providerRepoMock) GetByID(context.Context, uuid.UUID) (*domain.Provider, error) {
	return nil, errors.New("not implemented")
}
func (m *providerRepoMock) ListByRequest(context.Context, uuid.UUID) ([]*domain.Provider, error) {
	return nil, nil
}
func (m *providerRepoMock) UpsertProviderCall(_ context.Context, _ uuid.UUID, result *domain.CallResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, result)
	return nil
}
func (m *providerRepoMock) UpdateBooking(context.Context, uuid.UUID, *domain.BookingDetails) error {
	return nil
}

type logRepoMock struct {
	mu   sync.Mutex
	logs []*domain.InteractionLog
}

func (m *logRepoMock) Append(_ context.Context, log *domain.InteractionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}
func (m *logRepoMock) ListByRequest(context.Context, uuid.UUID) ([]*domain.InteractionLog, error) {
	return nil, nil
}

func completeSnapshot(callID string, providerID, requestID uuid.UUID) *vapi.Call {
	return &vapi.Call{
		ID:          callID,
		Status:      vapi.CallStateEnded,
		EndedReason: "customer-ended-call",
		Transcript:  strings.Repeat("User: yes, we can take the job next week. ", 3),
		Analysis:    &vapi.Analysis{Summary: "provider available next week"},
		Metadata: &vapi.CallMetadata{
			ProviderID:       &providerID,
			ServiceRequestID: &requestID,
			ProviderName:     "Ace Plumbing",
		},
	}
}

func cachedPartial(c *cache.ResultCache, callID string, providerID, requestID uuid.UUID) {
	c.Set(callID, &domain.CallResult{
		Status:           domain.CallStatusCompleted,
		CallID:           callID,
		CallMethod:       domain.CallMethodWebhook,
		Transcript:       "short",
		ProviderID:       &providerID,
		ServiceRequestID: &requestID,
		ProviderName:     "Ace Plumbing",
	}, cache.StatusPartial)
}

func newEnricher(fetcher *fetcherMock, c *cache.ResultCache, providers *providerRepoMock, logs *logRepoMock) *Enricher {
	return NewEnricher(fetcher, c, providers, logs,
		clock.NewMock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)), zap.NewNop())
}

func TestEnricher_SucceedsOnLaterAttempt(t *testing.T) {
	providerID := uuid.New()
	requestID := uuid.New()
	incomplete := &vapi.Call{ID: "call-1", Status: vapi.CallStateEnded, Transcript: "short"}
	fetcher := &fetcherMock{responses: []fetchResponse{
		{err: errors.New("snapshot not ready")},
		{call: incomplete},
		{call: completeSnapshot("call-1", providerID, requestID)},
	}}
	c := cache.New(time.Minute, zap.NewNop())
	cachedPartial(c, "call-1", providerID, requestID)
	providers := &providerRepoMock{}
	logs := &logRepoMock{}

	e := newEnricher(fetcher, c, providers, logs)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.run(ctx, "call-1")

	entry := c.Get("call-1")
	if entry.DataStatus != cache.StatusComplete {
		t.Fatalf("data status = %s, want complete", entry.DataStatus)
	}
	if entry.Result.Analysis.Summary != "provider available next week" {
		t.Error("enriched summary not merged")
	}
	if fetcher.calls != 3 {
		t.Errorf("fetches = %d, want 3", fetcher.calls)
	}
	if len(providers.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(providers.upserts))
	}
	if len(logs.logs) != 1 || logs.logs[0].Status != domain.LogSuccess {
		t.Errorf("logs = %+v", logs.logs)
	}
	if logs.logs[0].CallID == nil || *logs.logs[0].CallID != "call-1" {
		t.Error("log should reference the call id")
	}
}

func TestEnricher_AllAttemptsFail(t *testing.T) {
	providerID := uuid.New()
	requestID := uuid.New()
	fetcher := &fetcherMock{responses: []fetchResponse{
		{err: errors.New("vendor unavailable")},
	}}
	c := cache.New(time.Minute, zap.NewNop())
	cachedPartial(c, "call-1", providerID, requestID)
	providers := &providerRepoMock{}
	logs := &logRepoMock{}

	e := newEnricher(fetcher, c, providers, logs)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.run(ctx, "call-1")

	entry := c.Get("call-1")
	if entry.DataStatus != cache.StatusFetchFailed {
		t.Fatalf("data status = %s, want fetch_failed", entry.DataStatus)
	}
	if entry.FetchError == "" {
		t.Error("fetch error should be recorded")
	}
	// The partial webhook data is still persisted.
	if len(providers.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(providers.upserts))
	}
	if providers.upserts[0].Transcript != "short" {
		t.Error("partial webhook data should be persisted as-is")
	}
	if len(logs.logs) != 1 || logs.logs[0].Status != domain.LogWarning {
		t.Errorf("logs = %+v", logs.logs)
	}
	if !strings.Contains(logs.logs[0].Detail, "webhook only") {
		t.Errorf("log detail = %q", logs.logs[0].Detail)
	}
}

func TestEnricher_IncompleteSnapshotsExhaustRetries(t *testing.T) {
	providerID := uuid.New()
	requestID := uuid.New()
	incomplete := &vapi.Call{ID: "call-1", Status: vapi.CallStateEnded, Transcript: "short"}
	fetcher := &fetcherMock{responses: []fetchResponse{{call: incomplete}}}
	c := cache.New(time.Minute, zap.NewNop())
	cachedPartial(c, "call-1", providerID, requestID)

	e := newEnricher(fetcher, c, &providerRepoMock{}, &logRepoMock{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.run(ctx, "call-1")

	if fetcher.calls != len(defaultRetryDelays) {
		t.Errorf("fetches = %d, want %d", fetcher.calls, len(defaultRetryDelays))
	}
	if got := c.Get("call-1").DataStatus; got != cache.StatusFetchFailed {
		t.Errorf("data status = %s, want fetch_failed", got)
	}
}

func TestEnricher_UncorrelatedResultNotPersisted(t *testing.T) {
	fetcher := &fetcherMock{responses: []fetchResponse{{err: errors.New("down")}}}
	c := cache.New(time.Minute, zap.NewNop())
	c.Set("call-1", &domain.CallResult{
		Status: domain.CallStatusCompleted,
		CallID: "call-1",
	}, cache.StatusPartial)
	providers := &providerRepoMock{}
	logs := &logRepoMock{}

	e := newEnricher(fetcher, c, providers, logs)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.run(ctx, "call-1")

	if len(providers.upserts) != 0 || len(logs.logs) != 0 {
		t.Error("uncorrelated results must not be persisted")
	}
}

func TestEnricher_StartAndWait(t *testing.T) {
	providerID := uuid.New()
	requestID := uuid.New()
	fetcher := &fetcherMock{responses: []fetchResponse{
		{call: completeSnapshot("call-1", providerID, requestID)},
	}}
	c := cache.New(time.Minute, zap.NewNop())
	cachedPartial(c, "call-1", providerID, requestID)

	e := newEnricher(fetcher, c, &providerRepoMock{}, &logRepoMock{})
	e.Start("call-1")
	e.Wait()

	if got := c.Get("call-1").DataStatus; got != cache.StatusComplete {
		t.Errorf("data status = %s, want complete", got)
	}
}
