package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/assistant"
	"github.com/jkindrix/callbridge/internal/caller"
	"github.com/jkindrix/callbridge/internal/clock"
	"github.com/jkindrix/callbridge/internal/config"
	"github.com/jkindrix/callbridge/internal/domain"
	"github.com/jkindrix/callbridge/internal/recommend"
	"github.com/jkindrix/callbridge/internal/vapi"
)

type fakeRequests struct {
	mu          sync.Mutex
	rows        map[uuid.UUID]*domain.ServiceRequest
	transitions []domain.RequestStatus
	recs        *domain.RecommendationSet
}

func newFakeRequests(req *domain.ServiceRequest) *fakeRequests {
	return &fakeRequests{rows: map[uuid.UUID]*domain.ServiceRequest{req.ID: req}}
}

func (f *fakeRequests) Create(_ context.Context, req *domain.ServiceRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[req.ID] = req
	return nil
}

func (f *fakeRequests) GetByID(_ context.Context, id uuid.UUID) (*domain.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.rows[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return req, nil
}

func (f *fakeRequests) UpdateStatus(_ context.Context, id uuid.UUID, status domain.RequestStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.rows[id]
	if !ok {
		return errors.New("record not found")
	}
	if !req.Status.CanTransition(status) {
		return fmt.Errorf("illegal transition %s -> %s", req.Status, status)
	}
	req.Status = status
	f.transitions = append(f.transitions, status)
	return nil
}

func (f *fakeRequests) SaveRecommendations(_ context.Context, id uuid.UUID, recs *domain.RecommendationSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.rows[id]
	if !ok {
		return errors.New("record not found")
	}
	if !req.Status.CanTransition(domain.RequestStatusRecommended) {
		return fmt.Errorf("illegal transition %s -> RECOMMENDED", req.Status)
	}
	req.Status = domain.RequestStatusRecommended
	req.Recommendations = recs
	f.recs = recs
	f.transitions = append(f.transitions, domain.RequestStatusRecommended)
	return nil
}

func (f *fakeRequests) SetFinalOutcome(_ context.Context, id uuid.UUID, outcome string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.rows[id]; ok {
		req.FinalOutcome = &outcome
	}
	return nil
}

func (f *fakeRequests) status(id uuid.UUID) domain.RequestStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].Status
}

type fakeProviders struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*domain.Provider
	bookings map[uuid.UUID]*domain.BookingDetails
}

func newFakeProviders() *fakeProviders {
	return &fakeProviders{
		rows:     make(map[uuid.UUID]*domain.Provider),
		bookings: make(map[uuid.UUID]*domain.BookingDetails),
	}
}

func (f *fakeProviders) CreateBatch(_ context.Context, providers []*domain.Provider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range providers {
		f.rows[p.ID] = p
	}
	return nil
}

func (f *fakeProviders) GetByID(_ context.Context, id uuid.UUID) (*domain.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return p, nil
}

func (f *fakeProviders) ListByRequest(_ context.Context, requestID uuid.UUID) ([]*domain.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Provider
	for _, p := range f.rows {
		if p.RequestID == requestID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProviders) UpsertProviderCall(_ context.Context, providerID uuid.UUID, result *domain.CallResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[providerID]
	if !ok {
		return errors.New("record not found")
	}
	// Same idempotence rule as the store: a second write for the same
	// call id is a no-op.
	if p.CallID != nil && result.CallID != "" && *p.CallID == result.CallID {
		return nil
	}
	p.CallStatus = result.Status
	p.CallResult = result.Analysis.StructuredData
	if result.Transcript != "" {
		transcript := result.Transcript
		p.CallTranscript = &transcript
	}
	if result.CallID != "" {
		id := result.CallID
		p.CallID = &id
	}
	return nil
}

func (f *fakeProviders) UpdateBooking(_ context.Context, providerID uuid.UUID, booking *domain.BookingDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings[providerID] = booking
	return nil
}

type fakeLogs struct {
	mu   sync.Mutex
	logs []*domain.InteractionLog
}

func (f *fakeLogs) Append(_ context.Context, log *domain.InteractionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeLogs) ListByRequest(context.Context, uuid.UUID) ([]*domain.InteractionLog, error) {
	return nil, nil
}

type fakeSearch struct {
	providers []*domain.Provider
	err       error
}

func (f *fakeSearch) FindProviders(context.Context, *domain.ServiceRequest) ([]*domain.Provider, error) {
	return f.providers, f.err
}

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.RequestStatus
}

func (e *eventRecorder) RequestChanged(_ uuid.UUID, status domain.RequestStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, status)
}

// scriptedVendor answers every call with the same terminal snapshot,
// stamping the requested call id onto it.
type scriptedVendor struct {
	mu       sync.Mutex
	next     int
	snapshot func(callID string) *vapi.Call
}

func (v *scriptedVendor) StartCall(_ context.Context, _ *vapi.StartCallRequest) (*vapi.StartCallResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.next++
	return &vapi.StartCallResponse{ID: fmt.Sprintf("call-%d", v.next), Status: "queued"}, nil
}

func (v *scriptedVendor) GetCall(_ context.Context, callID string) (*vapi.Call, error) {
	return v.snapshot(callID), nil
}

func qualifiedSnapshot(callID string) *vapi.Call {
	return &vapi.Call{
		ID:          callID,
		Status:      vapi.CallStateEnded,
		EndedReason: "customer-ended-call",
		Transcript:  "AI: Hello, are you available this week?\nUser: Yes, Thursday works.",
		Analysis: &vapi.Analysis{
			Summary: "available Thursday",
			StructuredData: map[string]interface{}{
				"availability":          "available",
				"call_outcome":          "positive",
				"single_person_found":   true,
				"all_criteria_met":      true,
				"recommended":           true,
				"estimated_rate":        "$100/hr",
				"earliest_availability": "Thursday at 2pm",
			},
		},
	}
}

func bookingSnapshot(confirmed bool) func(string) *vapi.Call {
	return func(callID string) *vapi.Call {
		call := &vapi.Call{
			ID:          callID,
			Status:      vapi.CallStateEnded,
			EndedReason: "customer-ended-call",
			Transcript:  "AI: Can we book Thursday?\nUser: Sure, see you then.",
		}
		if confirmed {
			call.Analysis = &vapi.Analysis{
				StructuredData: map[string]interface{}{
					"booking_confirmed": true,
					"booking_date":      "2026-03-05",
					"booking_time":      "14:00",
				},
			}
		}
		return call
	}
}

func candidate(name string) *domain.Provider {
	rating := 4.5
	reviews := 80
	return &domain.Provider{
		Name:        name,
		Phone:       "+18645551234",
		Rating:      &rating,
		ReviewCount: &reviews,
	}
}

func newOrchestrator(
	requests *fakeRequests,
	providers *fakeProviders,
	search domain.SearchAdapter,
	vendor caller.VendorClient,
	events domain.EventSink,
) *Orchestrator {
	logger := zap.NewNop()
	direct := caller.NewDirectCaller(
		caller.Config{PhoneNumberID: "pn-1"},
		vendor,
		assistant.NewBuilder(config.AssistantConfig{}),
		nil,
		providers,
		&fakeLogs{},
		clock.NewMock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
		logger,
	)
	batch := caller.NewBatchCaller(direct, logger)
	return New(requests, providers, &fakeLogs{}, search, batch, direct,
		recommend.New(logger), events, 3, logger)
}

func TestOrchestrator_RunToRecommended(t *testing.T) {
	req := domain.NewServiceRequest("find a plumber", "leaky faucet", "licensed", "Greenville SC", domain.UrgencyWithin24h)
	requests := newFakeRequests(req)
	providers := newFakeProviders()
	search := &fakeSearch{providers: []*domain.Provider{candidate("Alpha"), candidate("Beta")}}
	events := &eventRecorder{}
	vendor := &scriptedVendor{snapshot: qualifiedSnapshot}

	orch := newOrchestrator(requests, providers, search, vendor, events)
	if err := orch.Run(context.Background(), req.ID); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := requests.status(req.ID); got != domain.RequestStatusRecommended {
		t.Fatalf("status = %s, want RECOMMENDED", got)
	}
	want := []domain.RequestStatus{
		domain.RequestStatusSearching,
		domain.RequestStatusCalling,
		domain.RequestStatusAnalyzing,
		domain.RequestStatusRecommended,
	}
	if len(requests.transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", requests.transitions, want)
	}
	for i, s := range want {
		if requests.transitions[i] != s {
			t.Errorf("transition %d = %s, want %s", i, requests.transitions[i], s)
		}
	}
	if requests.recs == nil || len(requests.recs.Providers) != 2 {
		t.Fatalf("recs = %+v, want both providers recommended", requests.recs)
	}
	if len(events.events) == 0 || events.events[len(events.events)-1] != domain.RequestStatusRecommended {
		t.Errorf("events = %v", events.events)
	}
	for _, p := range providers.rows {
		if p.CallStatus != domain.CallStatusCompleted {
			t.Errorf("provider %s call status = %s", p.Name, p.CallStatus)
		}
		if p.RequestID != req.ID {
			t.Error("discovered providers must be bound to the request")
		}
	}
}

func TestOrchestrator_SearchFailure(t *testing.T) {
	req := domain.NewServiceRequest("find a plumber", "", "", "Greenville SC", domain.UrgencyFlexible)
	requests := newFakeRequests(req)
	search := &fakeSearch{err: errors.New("search service down")}

	orch := newOrchestrator(requests, newFakeProviders(), search, &scriptedVendor{snapshot: qualifiedSnapshot}, nil)
	if err := orch.Run(context.Background(), req.ID); err == nil {
		t.Fatal("expected an error")
	}

	if got := requests.status(req.ID); got != domain.RequestStatusFailed {
		t.Errorf("status = %s, want FAILED", got)
	}
	if req.FinalOutcome == nil || !strings.Contains(*req.FinalOutcome, "search failed") {
		t.Errorf("final outcome = %v", req.FinalOutcome)
	}
}

func TestOrchestrator_NoProvidersFound(t *testing.T) {
	req := domain.NewServiceRequest("find a plumber", "", "", "Greenville SC", domain.UrgencyFlexible)
	requests := newFakeRequests(req)

	orch := newOrchestrator(requests, newFakeProviders(), &fakeSearch{}, &scriptedVendor{snapshot: qualifiedSnapshot}, nil)
	if err := orch.Run(context.Background(), req.ID); err == nil {
		t.Fatal("expected an error")
	}

	if got := requests.status(req.ID); got != domain.RequestStatusFailed {
		t.Errorf("status = %s, want FAILED", got)
	}
	if req.FinalOutcome == nil || !strings.Contains(*req.FinalOutcome, "no providers found") {
		t.Errorf("final outcome = %v", req.FinalOutcome)
	}
}

func TestOrchestrator_CancelledRunFails(t *testing.T) {
	req := domain.NewServiceRequest("find a plumber", "", "", "Greenville SC", domain.UrgencyFlexible)
	requests := newFakeRequests(req)
	search := &fakeSearch{providers: []*domain.Provider{candidate("Alpha")}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := newOrchestrator(requests, newFakeProviders(), search, &scriptedVendor{snapshot: qualifiedSnapshot}, nil)
	if err := orch.Run(ctx, req.ID); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	if got := requests.status(req.ID); got != domain.RequestStatusFailed {
		t.Errorf("status = %s, want FAILED", got)
	}
	if req.FinalOutcome == nil || !strings.Contains(*req.FinalOutcome, "cancelled") {
		t.Errorf("final outcome = %v", req.FinalOutcome)
	}
}

func TestOrchestrator_WebhookResultsLeftToIngest(t *testing.T) {
	req := domain.NewServiceRequest("find a plumber", "leaky faucet", "licensed", "Greenville SC", domain.UrgencyWithin24h)
	requests := newFakeRequests(req)
	providers := newFakeProviders()

	provider := candidate("Alpha")
	provider.ID = uuid.New()
	provider.RequestID = req.ID
	if err := providers.CreateBatch(context.Background(), []*domain.Provider{provider}); err != nil {
		t.Fatal(err)
	}

	orch := newOrchestrator(requests, providers, &fakeSearch{}, &scriptedVendor{snapshot: qualifiedSnapshot}, nil)

	// A webhook-delivered result is still partial when the batch
	// returns: no transcript, no analysis. Persisting it here would
	// claim the call id and the enricher's later complete write would
	// be dropped by the idempotent upsert.
	partial := &domain.CallResult{
		Status:     domain.CallStatusCompleted,
		CallID:     "call-77",
		CallMethod: domain.CallMethodWebhook,
		ProviderID: &provider.ID,
	}
	orch.persistResults(context.Background(), req, []*domain.CallResult{partial})

	if row := providers.rows[provider.ID]; row.CallID != nil {
		t.Fatalf("webhook result was backfilled with call id %s", *row.CallID)
	}

	// The enrichment path writes the complete snapshot afterwards and
	// must land as the first observer of call-77.
	complete := vapi.ResultFromCall(qualifiedSnapshot("call-77"), domain.CallMethodWebhook, zap.NewNop())
	complete.ProviderID = &provider.ID
	if err := providers.UpsertProviderCall(context.Background(), provider.ID, complete); err != nil {
		t.Fatal(err)
	}

	row := providers.rows[provider.ID]
	if row.CallTranscript == nil || len(*row.CallTranscript) <= 50 {
		t.Errorf("persisted transcript = %v, want the full conversation", row.CallTranscript)
	}
	if row.CallResult == nil {
		t.Error("persisted call result is nil, want structured data")
	}
}

func TestOrchestrator_PolledResultsBackfilled(t *testing.T) {
	req := domain.NewServiceRequest("find a plumber", "", "", "Greenville SC", domain.UrgencyFlexible)
	requests := newFakeRequests(req)
	providers := newFakeProviders()

	provider := candidate("Beta")
	provider.ID = uuid.New()
	provider.RequestID = req.ID
	if err := providers.CreateBatch(context.Background(), []*domain.Provider{provider}); err != nil {
		t.Fatal(err)
	}

	orch := newOrchestrator(requests, providers, &fakeSearch{}, &scriptedVendor{snapshot: qualifiedSnapshot}, nil)

	polled := vapi.ResultFromCall(qualifiedSnapshot("call-5"), domain.CallMethodPolling, zap.NewNop())
	polled.ProviderID = &provider.ID
	orch.persistResults(context.Background(), req, []*domain.CallResult{polled})

	row := providers.rows[provider.ID]
	if row.CallID == nil || *row.CallID != "call-5" {
		t.Fatalf("polled result was not backfilled: %+v", row)
	}
	if row.CallStatus != domain.CallStatusCompleted {
		t.Errorf("call status = %s, want completed", row.CallStatus)
	}
}

func bookableRequest(t *testing.T) (*fakeRequests, *fakeProviders, *domain.ServiceRequest, *domain.Provider) {
	t.Helper()
	req := domain.NewServiceRequest("find a plumber", "", "", "Greenville SC", domain.UrgencyFlexible)
	req.Status = domain.RequestStatusRecommended
	phone := "+18645550000"
	req.UserPhone = &phone

	provider := candidate("Alpha")
	provider.ID = uuid.New()
	provider.RequestID = req.ID

	requests := newFakeRequests(req)
	providers := newFakeProviders()
	providers.rows[provider.ID] = provider
	return requests, providers, req, provider
}

func TestOrchestrator_BookConfirmed(t *testing.T) {
	requests, providers, req, provider := bookableRequest(t)
	vendor := &scriptedVendor{snapshot: bookingSnapshot(true)}

	orch := newOrchestrator(requests, providers, &fakeSearch{}, vendor, &eventRecorder{})
	if err := orch.Book(context.Background(), req.ID, provider.ID, "Thursday 2pm"); err != nil {
		t.Fatalf("book failed: %v", err)
	}

	if got := requests.status(req.ID); got != domain.RequestStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got)
	}
	booking := providers.bookings[provider.ID]
	if booking == nil || !booking.Confirmed {
		t.Fatal("booking should be saved and confirmed")
	}
	if req.FinalOutcome == nil || !strings.Contains(*req.FinalOutcome, "booked with Alpha") {
		t.Errorf("final outcome = %v", req.FinalOutcome)
	}
	if !strings.Contains(*req.FinalOutcome, "2026-03-05") {
		t.Errorf("final outcome = %v, should carry the booking date", req.FinalOutcome)
	}
}

func TestOrchestrator_BookUnconfirmedRevertsToRecommended(t *testing.T) {
	requests, providers, req, provider := bookableRequest(t)
	vendor := &scriptedVendor{snapshot: bookingSnapshot(false)}

	orch := newOrchestrator(requests, providers, &fakeSearch{}, vendor, &eventRecorder{})
	if err := orch.Book(context.Background(), req.ID, provider.ID, ""); err != nil {
		t.Fatalf("book returned error: %v", err)
	}

	if got := requests.status(req.ID); got != domain.RequestStatusRecommended {
		t.Fatalf("status = %s, want RECOMMENDED after an unconfirmed booking", got)
	}
	if providers.bookings[provider.ID] != nil {
		t.Error("unconfirmed bookings must not be saved")
	}
}

func TestOrchestrator_BookProviderMismatch(t *testing.T) {
	requests, providers, req, provider := bookableRequest(t)
	provider.RequestID = uuid.New() // belongs to someone else

	orch := newOrchestrator(requests, providers, &fakeSearch{}, &scriptedVendor{snapshot: bookingSnapshot(true)}, nil)
	err := orch.Book(context.Background(), req.ID, provider.ID, "")
	if err == nil || !strings.Contains(err.Error(), "does not belong") {
		t.Fatalf("err = %v", err)
	}

	if got := requests.status(req.ID); got != domain.RequestStatusRecommended {
		t.Errorf("status = %s, a mismatch must not change state", got)
	}
}

func TestOrchestrator_BookUnknownRequest(t *testing.T) {
	requests, providers, _, provider := bookableRequest(t)

	orch := newOrchestrator(requests, providers, &fakeSearch{}, &scriptedVendor{snapshot: bookingSnapshot(true)}, nil)
	if err := orch.Book(context.Background(), uuid.New(), provider.ID, ""); err == nil {
		t.Fatal("expected an error for an unknown request")
	}
}
