package handler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/assistant"
	"github.com/jkindrix/callbridge/internal/cache"
	"github.com/jkindrix/callbridge/internal/caller"
	"github.com/jkindrix/callbridge/internal/clock"
	"github.com/jkindrix/callbridge/internal/config"
	"github.com/jkindrix/callbridge/internal/domain"
	"github.com/jkindrix/callbridge/internal/ingest"
	"github.com/jkindrix/callbridge/internal/orchestrator"
	"github.com/jkindrix/callbridge/internal/recommend"
	"github.com/jkindrix/callbridge/internal/repository"
	"github.com/jkindrix/callbridge/internal/vapi"
)

type stubRequests struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.ServiceRequest
}

func newStubRequests(reqs ...*domain.ServiceRequest) *stubRequests {
	s := &stubRequests{rows: make(map[uuid.UUID]*domain.ServiceRequest)}
	for _, r := range reqs {
		s.rows[r.ID] = r
	}
	return s
}

func (s *stubRequests) Create(_ context.Context, req *domain.ServiceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[req.ID] = req
	return nil
}

func (s *stubRequests) GetByID(_ context.Context, id uuid.UUID) (*domain.ServiceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return req, nil
}

func (s *stubRequests) UpdateStatus(_ context.Context, id uuid.UUID, status domain.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	req.Status = status
	return nil
}

func (s *stubRequests) SaveRecommendations(_ context.Context, id uuid.UUID, recs *domain.RecommendationSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	req.Status = domain.RequestStatusRecommended
	req.Recommendations = recs
	return nil
}

func (s *stubRequests) SetFinalOutcome(_ context.Context, id uuid.UUID, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req, ok := s.rows[id]; ok {
		req.FinalOutcome = &outcome
	}
	return nil
}

type stubProviders struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.Provider
}

func newStubProviders() *stubProviders {
	return &stubProviders{rows: make(map[uuid.UUID]*domain.Provider)}
}

func (s *stubProviders) CreateBatch(_ context.Context, providers []*domain.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range providers {
		s.rows[p.ID] = p
	}
	return nil
}

func (s *stubProviders) GetByID(_ context.Context, id uuid.UUID) (*domain.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (s *stubProviders) ListByRequest(_ context.Context, requestID uuid.UUID) ([]*domain.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Provider
	for _, p := range s.rows {
		if p.RequestID == requestID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubProviders) UpsertProviderCall(context.Context, uuid.UUID, *domain.CallResult) error {
	return nil
}

func (s *stubProviders) UpdateBooking(context.Context, uuid.UUID, *domain.BookingDetails) error {
	return nil
}

type stubLogs struct{}

func (stubLogs) Append(context.Context, *domain.InteractionLog) error { return nil }
func (stubLogs) ListByRequest(context.Context, uuid.UUID) ([]*domain.InteractionLog, error) {
	return []*domain.InteractionLog{}, nil
}

// stubVendor answers calls with a fixed snapshot; a nil snapshot makes
// every vendor operation fail.
type stubVendor struct {
	snapshot *vapi.Call
}

func (v *stubVendor) StartCall(context.Context, *vapi.StartCallRequest) (*vapi.StartCallResponse, error) {
	if v.snapshot == nil {
		return nil, errors.New("vendor unavailable")
	}
	return &vapi.StartCallResponse{ID: v.snapshot.ID, Status: "queued"}, nil
}

func (v *stubVendor) GetCall(context.Context, string) (*vapi.Call, error) {
	if v.snapshot == nil {
		return nil, errors.New("vendor unavailable")
	}
	return v.snapshot, nil
}

type stubSearch struct{}

func (stubSearch) FindProviders(context.Context, *domain.ServiceRequest) ([]*domain.Provider, error) {
	return nil, errors.New("search not configured")
}

func newTestDirect(vendor caller.VendorClient) *caller.DirectCaller {
	return caller.NewDirectCaller(
		caller.Config{PhoneNumberID: "pn-1", MaxPollAttempts: 2},
		vendor,
		assistant.NewBuilder(config.AssistantConfig{}),
		nil,
		newStubProviders(),
		stubLogs{},
		clock.NewMock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
		zap.NewNop(),
	)
}

func newTestOrchestrator(requests domain.RequestRepository, providers domain.ProviderRepository) *orchestrator.Orchestrator {
	logger := zap.NewNop()
	direct := newTestDirect(&stubVendor{})
	return orchestrator.New(requests, providers, stubLogs{}, stubSearch{},
		caller.NewBatchCaller(direct, logger), direct, recommend.New(logger), nil, 3, logger)
}

func newTestIngestor(resultCache *cache.ResultCache) *ingest.Ingestor {
	logger := zap.NewNop()
	enricher := ingest.NewEnricher(&stubVendor{}, resultCache, nil, nil,
		clock.NewMock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)), logger)
	return ingest.NewIngestor(resultCache, enricher, logger)
}
