// Package orchestrator drives the service-request state machine: search,
// batch calling, recommendation, and booking.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/caller"
	"github.com/jkindrix/callbridge/internal/domain"
	apperrors "github.com/jkindrix/callbridge/internal/errors"
	"github.com/jkindrix/callbridge/internal/metrics"
	"github.com/jkindrix/callbridge/internal/recommend"
)

// Orchestrator runs service requests from PENDING to RECOMMENDED, and
// booking from RECOMMENDED to COMPLETED.
type Orchestrator struct {
	requests      domain.RequestRepository
	providers     domain.ProviderRepository
	logs          domain.LogRepository
	search        domain.SearchAdapter
	batch         *caller.BatchCaller
	caller        *caller.DirectCaller
	recommender   *recommend.Recommender
	events        domain.EventSink
	maxConcurrent int
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// New creates an Orchestrator. events may be nil.
func New(
	requests domain.RequestRepository,
	providers domain.ProviderRepository,
	logs domain.LogRepository,
	search domain.SearchAdapter,
	batch *caller.BatchCaller,
	direct *caller.DirectCaller,
	recommender *recommend.Recommender,
	events domain.EventSink,
	maxConcurrent int,
	logger *zap.Logger,
) *Orchestrator {
	if events == nil {
		events = domain.NopEventSink{}
	}
	return &Orchestrator{
		requests:      requests,
		providers:     providers,
		logs:          logs,
		search:        search,
		batch:         batch,
		caller:        direct,
		recommender:   recommender,
		events:        events,
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// SetMetrics attaches pipeline counters. Optional.
func (o *Orchestrator) SetMetrics(m *metrics.Metrics) {
	o.metrics = m
}

// Run executes the full pipeline for one request: discover providers,
// call them all, and persist a recommendation set. It is intended to run
// in its own goroutine per request; all outcomes, including failures,
// land in the request row and the interaction log.
func (o *Orchestrator) Run(ctx context.Context, requestID uuid.UUID) error {
	req, err := o.requests.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load request %s: %w", requestID, err)
	}

	providers, err := o.searchProviders(ctx, req)
	if err != nil {
		return err
	}

	results := o.callProviders(ctx, req, providers)
	if ctx.Err() != nil {
		// In-flight calls have drained; whatever they produced is already
		// persisted. The request itself is abandoned.
		o.fail(req.ID, "request cancelled before calls finished")
		return ctx.Err()
	}
	o.persistResults(ctx, req, results)

	return o.recommendFromResults(ctx, req)
}

// searchProviders moves the request to SEARCHING, runs discovery, and
// persists the candidates. Zero candidates fails the request.
func (o *Orchestrator) searchProviders(ctx context.Context, req *domain.ServiceRequest) ([]*domain.Provider, error) {
	if err := o.transition(ctx, req.ID, domain.RequestStatusSearching); err != nil {
		return nil, err
	}
	o.log(ctx, req.ID, "search", fmt.Sprintf("searching for %q near %s", req.Title, req.Location), domain.LogInfo)

	providers, err := o.search.FindProviders(ctx, req)
	if err != nil {
		o.log(ctx, req.ID, "search", fmt.Sprintf("provider search failed: %v", err), domain.LogError)
		o.fail(req.ID, "provider search failed")
		return nil, fmt.Errorf("find providers: %w", err)
	}
	if len(providers) == 0 {
		o.log(ctx, req.ID, "search", "no providers found", domain.LogWarning)
		o.fail(req.ID, "no providers found for this request")
		return nil, apperrors.NotFound("providers")
	}

	for _, p := range providers {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.RequestID = req.ID
	}
	if err := o.providers.CreateBatch(ctx, providers); err != nil {
		o.fail(req.ID, "could not save discovered providers")
		return nil, fmt.Errorf("save providers: %w", err)
	}

	o.log(ctx, req.ID, "search", fmt.Sprintf("found %d candidate providers", len(providers)), domain.LogSuccess)
	return providers, nil
}

// callProviders moves the request to CALLING and fans the calls out.
func (o *Orchestrator) callProviders(ctx context.Context, req *domain.ServiceRequest, providers []*domain.Provider) []*domain.CallResult {
	if err := o.transition(ctx, req.ID, domain.RequestStatusCalling); err != nil {
		o.logger.Error("failed to enter calling state", zap.Error(err))
	}

	requests := make([]*domain.CallRequest, len(providers))
	for i, p := range providers {
		providerID := p.ID
		requestID := req.ID
		requests[i] = &domain.CallRequest{
			ProviderID:       &providerID,
			ServiceRequestID: &requestID,
			ProviderName:     p.Name,
			ProviderPhone:    p.Phone,
			ServiceNeeded:    req.Title,
			UserCriteria:     req.Criteria,
			Location:         req.Location,
			Urgency:          req.Urgency,
		}
	}

	return o.batch.Run(ctx, requests, o.maxConcurrent)
}

// persistResults backfills polled call outcomes. Webhook results are
// left to the ingest path: writing one here would claim the call id
// first, and the idempotent upsert would then drop the enricher's
// complete snapshot.
func (o *Orchestrator) persistResults(ctx context.Context, req *domain.ServiceRequest, results []*domain.CallResult) {
	for _, result := range results {
		if result == nil || result.ProviderID == nil || result.CallID == "" {
			continue
		}
		if result.CallMethod == domain.CallMethodWebhook {
			continue
		}
		if err := o.providers.UpsertProviderCall(ctx, *result.ProviderID, result); err != nil {
			o.logger.Error("failed to backfill call result",
				zap.String("call_id", result.CallID),
				zap.Error(err),
			)
		}
	}
}

// recommendFromResults runs the scorer over the persisted provider rows
// and saves the recommendation set. Runs as soon as every dispatched
// call is terminal, even when nobody qualified.
func (o *Orchestrator) recommendFromResults(ctx context.Context, req *domain.ServiceRequest) error {
	if err := o.transition(ctx, req.ID, domain.RequestStatusAnalyzing); err != nil {
		return err
	}

	providers, err := o.providers.ListByRequest(ctx, req.ID)
	if err != nil {
		o.fail(req.ID, "could not load call results for analysis")
		return fmt.Errorf("list providers: %w", err)
	}

	recs := o.recommender.Generate(providers)
	if err := o.requests.SaveRecommendations(ctx, req.ID, recs); err != nil {
		o.fail(req.ID, "could not save recommendations")
		return fmt.Errorf("save recommendations: %w", err)
	}
	o.events.RequestChanged(req.ID, domain.RequestStatusRecommended)
	if o.metrics != nil {
		o.metrics.RecordTransition(string(domain.RequestStatusRecommended))
		o.metrics.RecordRecommendation(len(recs.Providers))
	}

	o.log(ctx, req.ID, "recommend",
		fmt.Sprintf("%d providers recommended out of %d called", len(recs.Providers), len(providers)),
		domain.LogSuccess)
	return nil
}

// Book runs a booking call against a previously recommended provider.
// Confirmation completes the request; anything else returns it to
// RECOMMENDED so the user can pick someone else.
func (o *Orchestrator) Book(ctx context.Context, requestID, providerID uuid.UUID, preferredSlot string) error {
	req, err := o.requests.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load request %s: %w", requestID, err)
	}
	provider, err := o.providers.GetByID(ctx, providerID)
	if err != nil {
		return fmt.Errorf("load provider %s: %w", providerID, err)
	}
	if provider.RequestID != requestID {
		return apperrors.ValidationFailed("provider does not belong to this request")
	}

	if err := o.transition(ctx, requestID, domain.RequestStatusBooking); err != nil {
		return err
	}
	o.log(ctx, requestID, "booking", fmt.Sprintf("booking call to %s", provider.Name), domain.LogInfo)

	userPhone := ""
	if req.UserPhone != nil {
		userPhone = *req.UserPhone
	}
	pid := provider.ID
	rid := req.ID
	callReq := &domain.CallRequest{
		ProviderID:       &pid,
		ServiceRequestID: &rid,
		ProviderName:     provider.Name,
		ProviderPhone:    provider.Phone,
		ServiceNeeded:    req.Title,
		UserCriteria:     req.Criteria,
		Location:         req.Location,
		Urgency:          req.Urgency,
	}

	result, booking := o.caller.CallBooking(ctx, callReq, userPhone, preferredSlot)

	if booking == nil || !booking.Confirmed {
		if o.metrics != nil {
			o.metrics.RecordBooking(false)
		}
		detail := fmt.Sprintf("booking with %s not confirmed (call status %s)", provider.Name, result.Status)
		o.logWithCall(ctx, requestID, &pid, result.CallID, "booking", detail, domain.LogError)
		if err := o.transition(ctx, requestID, domain.RequestStatusRecommended); err != nil {
			o.logger.Error("failed to return request to recommended", zap.Error(err))
		}
		return nil
	}

	if o.metrics != nil {
		o.metrics.RecordBooking(true)
	}
	if err := o.providers.UpdateBooking(ctx, providerID, booking); err != nil {
		o.logger.Error("failed to save booking", zap.Error(err))
	}

	detail := fmt.Sprintf("booked with %s", provider.Name)
	if booking.Date != nil {
		detail += " on " + *booking.Date
	}
	if booking.Time != nil {
		detail += " at " + *booking.Time
	}
	o.logWithCall(ctx, requestID, &pid, result.CallID, "booking", detail, domain.LogSuccess)

	if err := o.transition(ctx, requestID, domain.RequestStatusCompleted); err != nil {
		return err
	}
	if err := o.requests.SetFinalOutcome(ctx, requestID, detail); err != nil {
		o.logger.Error("failed to set final outcome", zap.Error(err))
	}
	return nil
}

// transition persists a state change and notifies subscribers.
func (o *Orchestrator) transition(ctx context.Context, requestID uuid.UUID, status domain.RequestStatus) error {
	if err := o.requests.UpdateStatus(ctx, requestID, status); err != nil {
		return fmt.Errorf("transition to %s: %w", status, err)
	}
	o.events.RequestChanged(requestID, status)
	if o.metrics != nil {
		o.metrics.RecordTransition(string(status))
	}
	o.logger.Info("request state changed",
		zap.String("request_id", requestID.String()),
		zap.String("status", string(status)),
	)
	return nil
}

// fail moves the request to FAILED with a user-facing outcome. Uses a
// background context so failure is recorded even after cancellation.
func (o *Orchestrator) fail(requestID uuid.UUID, outcome string) {
	ctx := context.Background()
	if err := o.requests.UpdateStatus(ctx, requestID, domain.RequestStatusFailed); err != nil {
		o.logger.Error("failed to mark request failed",
			zap.String("request_id", requestID.String()),
			zap.Error(err),
		)
		return
	}
	if err := o.requests.SetFinalOutcome(ctx, requestID, outcome); err != nil {
		o.logger.Error("failed to set final outcome", zap.Error(err))
	}
	o.events.RequestChanged(requestID, domain.RequestStatusFailed)
	if o.metrics != nil {
		o.metrics.RecordTransition(string(domain.RequestStatusFailed))
	}
}

func (o *Orchestrator) log(ctx context.Context, requestID uuid.UUID, step, detail string, status domain.LogStatus) {
	if err := o.logs.Append(ctx, domain.NewInteractionLog(requestID, step, detail, status)); err != nil {
		o.logger.Error("failed to append interaction log", zap.Error(err))
	}
}

func (o *Orchestrator) logWithCall(ctx context.Context, requestID uuid.UUID, providerID *uuid.UUID, callID, step, detail string, status domain.LogStatus) {
	log := domain.NewInteractionLog(requestID, step, detail, status)
	log.ProviderID = providerID
	if callID != "" {
		log.CallID = &callID
	}
	if err := o.logs.Append(ctx, log); err != nil {
		o.logger.Error("failed to append interaction log", zap.Error(err))
	}
}
