// Package caller dispatches outbound voice calls and waits for their
// results, either by watching the result cache (webhook mode) or by
// polling the vendor (polling mode).
package caller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/assistant"
	"github.com/jkindrix/callbridge/internal/clock"
	"github.com/jkindrix/callbridge/internal/domain"
	"github.com/jkindrix/callbridge/internal/metrics"
	"github.com/jkindrix/callbridge/internal/vapi"
)

const (
	// DefaultPollInterval is how often the caller checks for a result.
	DefaultPollInterval = 5 * time.Second

	// DefaultMaxPollAttempts bounds the wait at 60 polls (5 minutes).
	DefaultMaxPollAttempts = 60
)

// VendorClient is the slice of the vendor API the caller needs.
type VendorClient interface {
	StartCall(ctx context.Context, req *vapi.StartCallRequest) (*vapi.StartCallResponse, error)
	GetCall(ctx context.Context, callID string) (*vapi.Call, error)
}

// Config holds DirectCaller settings.
type Config struct {
	PhoneNumberID   string
	WebhookURL      string
	PollInterval    time.Duration
	MaxPollAttempts int
}

// DirectCaller places a single outbound call and blocks until a terminal
// result, a timeout, or context cancellation. It never returns an error:
// every failure mode is expressed as a CallResult status so batch runs
// degrade per provider instead of aborting.
type DirectCaller struct {
	cfg       Config
	vendor    VendorClient
	builder   *assistant.Builder
	source    ResultSource
	providers domain.ProviderRepository
	logs      domain.LogRepository
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewDirectCaller creates a DirectCaller. source may be nil, which
// forces polling mode even when a webhook URL is configured.
func NewDirectCaller(
	cfg Config,
	vendor VendorClient,
	builder *assistant.Builder,
	source ResultSource,
	providers domain.ProviderRepository,
	logs domain.LogRepository,
	clk clock.Clock,
	logger *zap.Logger,
) *DirectCaller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = DefaultMaxPollAttempts
	}
	if clk == nil {
		clk = clock.New()
	}
	return &DirectCaller{
		cfg:       cfg,
		vendor:    vendor,
		builder:   builder,
		source:    source,
		providers: providers,
		logs:      logs,
		clock:     clk,
		logger:    logger,
	}
}

// SetMetrics attaches call counters. Optional.
func (c *DirectCaller) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// webhookMode reports whether this request's result arrives via the
// webhook ingestor. Requires a correlation id: an anonymous call has no
// provider or request row for the ingest path to attach results to, so
// it polls the vendor directly.
func (c *DirectCaller) webhookMode(req *domain.CallRequest) bool {
	if c.cfg.WebhookURL == "" || c.source == nil {
		return false
	}
	return req.ProviderID != nil || req.ServiceRequestID != nil
}

// Call runs one provider inquiry call end to end.
func (c *DirectCaller) Call(ctx context.Context, req *domain.CallRequest) *domain.CallResult {
	webhookURL := ""
	method := domain.CallMethodPolling
	if c.webhookMode(req) {
		webhookURL = c.cfg.WebhookURL
		method = domain.CallMethodWebhook
	}

	if c.metrics != nil {
		c.metrics.RecordCallStarted(string(method))
	}

	assistantCfg, metadata := c.builder.BuildInquiry(req, webhookURL)
	resp, err := c.vendor.StartCall(ctx, &vapi.StartCallRequest{
		PhoneNumberID: c.cfg.PhoneNumberID,
		Customer:      vapi.Customer{Number: req.ProviderPhone, Name: req.ProviderName},
		Assistant:     assistantCfg,
		Metadata:      metadata,
	})
	if err != nil {
		c.logger.Error("failed to start call",
			zap.String("provider", req.ProviderName),
			zap.Error(err),
		)
		result := c.errorResult(req, "", method, err)
		c.recordFailure(ctx, req, result)
		c.observe(result)
		return result
	}

	c.logger.Info("call dispatched",
		zap.String("call_id", resp.ID),
		zap.String("provider", req.ProviderName),
		zap.String("method", string(method)),
	)

	var result *domain.CallResult
	if method == domain.CallMethodWebhook {
		result = c.awaitWebhook(ctx, req, resp.ID)
	} else {
		call, timedOut := c.pollVendor(ctx, resp.ID)
		if timedOut {
			result = c.timeoutResult(req, resp.ID, method)
		} else {
			result = vapi.ResultFromCall(call, method, c.logger)
			c.attachContext(req, result)
		}
	}

	// Webhook-mode persistence belongs to the ingestion/enrichment path;
	// in polling mode the caller is the only observer and persists here.
	if method == domain.CallMethodPolling {
		c.persist(ctx, req, result)
	} else if result.Status == domain.CallStatusTimeout {
		c.recordFailure(ctx, req, result)
	}

	c.observe(result)
	return result
}

// CallBooking runs a booking confirmation call. Booking calls always use
// polling: their structured data follows the booking schema, which the
// webhook ingestion path does not understand.
func (c *DirectCaller) CallBooking(ctx context.Context, req *domain.CallRequest, userPhone, preferredSlot string) (*domain.CallResult, *domain.BookingDetails) {
	assistantCfg := c.builder.BuildBooking(req, userPhone, preferredSlot)
	if c.metrics != nil {
		c.metrics.RecordCallStarted(string(domain.CallMethodPolling))
	}
	resp, err := c.vendor.StartCall(ctx, &vapi.StartCallRequest{
		PhoneNumberID: c.cfg.PhoneNumberID,
		Customer:      vapi.Customer{Number: req.ProviderPhone, Name: req.ProviderName},
		Assistant:     assistantCfg,
	})
	if err != nil {
		c.logger.Error("failed to start booking call",
			zap.String("provider", req.ProviderName),
			zap.Error(err),
		)
		result := c.errorResult(req, "", domain.CallMethodPolling, err)
		c.observe(result)
		return result, nil
	}

	call, timedOut := c.pollVendor(ctx, resp.ID)
	if timedOut {
		result := c.timeoutResult(req, resp.ID, domain.CallMethodPolling)
		c.observe(result)
		return result, nil
	}

	result := &domain.CallResult{
		Status:          vapi.StatusFromEndedReason(call.EndedReason),
		CallID:          call.ID,
		CallMethod:      domain.CallMethodPolling,
		DurationMinutes: call.DurationMinutes,
		EndedReason:     call.EndedReason,
		Transcript:      call.BestTranscript(),
	}
	if call.Analysis != nil {
		result.Analysis.Summary = call.Analysis.Summary
	}
	c.attachContext(req, result)
	c.observe(result)

	return result, bookingFromCall(call)
}

// observe records the terminal result in the call counters.
func (c *DirectCaller) observe(result *domain.CallResult) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordCallFinished(string(result.Status), string(result.CallMethod), result.DurationMinutes, result.Cost)
}

// awaitWebhook waits for the webhook ingestor to surface the result.
func (c *DirectCaller) awaitWebhook(ctx context.Context, req *domain.CallRequest, callID string) *domain.CallResult {
	for attempt := 0; attempt < c.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return c.timeoutResult(req, callID, domain.CallMethodWebhook)
		case <-c.clock.After(c.cfg.PollInterval):
		}

		if result, ok := c.source.Lookup(ctx, callID); ok {
			c.attachContext(req, result)
			return result
		}
	}
	return c.timeoutResult(req, callID, domain.CallMethodWebhook)
}

// pollVendor polls the vendor until the call reaches a terminal state.
// Transient fetch errors are logged and retried on the next tick.
func (c *DirectCaller) pollVendor(ctx context.Context, callID string) (*vapi.Call, bool) {
	for attempt := 0; attempt < c.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, true
		case <-c.clock.After(c.cfg.PollInterval):
		}

		call, err := c.vendor.GetCall(ctx, callID)
		if err != nil {
			c.logger.Debug("call poll failed",
				zap.String("call_id", callID),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		if call.IsTerminal() {
			return call, false
		}
	}
	return nil, true
}

// persist writes the polled result to the provider row and the audit log.
// Requires both correlation ids; anonymous direct calls are not stored.
func (c *DirectCaller) persist(ctx context.Context, req *domain.CallRequest, result *domain.CallResult) {
	if req.ProviderID == nil || req.ServiceRequestID == nil {
		return
	}
	if c.providers == nil || c.logs == nil {
		return
	}

	if result.CallID != "" {
		if err := c.providers.UpsertProviderCall(ctx, *req.ProviderID, result); err != nil {
			c.logger.Error("failed to persist call result",
				zap.String("call_id", result.CallID),
				zap.Error(err),
			)
		}
	}

	status := domain.LogSuccess
	if result.Status != domain.CallStatusCompleted {
		status = domain.LogWarning
	}
	log := domain.NewInteractionLog(*req.ServiceRequestID, "provider_call",
		fmt.Sprintf("call to %s ended with status %s", req.ProviderName, result.Status), status)
	log.ProviderID = req.ProviderID
	if result.CallID != "" {
		callID := result.CallID
		log.CallID = &callID
	}
	if err := c.logs.Append(ctx, log); err != nil {
		c.logger.Error("failed to append call log", zap.Error(err))
	}
}

// recordFailure writes a warning/error log for a call that never produced
// a terminal result (dispatch failure or webhook-mode timeout).
func (c *DirectCaller) recordFailure(ctx context.Context, req *domain.CallRequest, result *domain.CallResult) {
	if req.ServiceRequestID == nil || c.logs == nil {
		return
	}

	status := domain.LogWarning
	if result.Status == domain.CallStatusError {
		status = domain.LogError
	}
	log := domain.NewInteractionLog(*req.ServiceRequestID, "provider_call",
		fmt.Sprintf("call to %s did not complete: %s", req.ProviderName, result.EndedReason), status)
	log.ProviderID = req.ProviderID
	if result.CallID != "" {
		callID := result.CallID
		log.CallID = &callID
	}
	if err := c.logs.Append(ctx, log); err != nil {
		c.logger.Error("failed to append call log", zap.Error(err))
	}
}

func (c *DirectCaller) timeoutResult(req *domain.CallRequest, callID string, method domain.CallMethod) *domain.CallResult {
	result := &domain.CallResult{
		Status:      domain.CallStatusTimeout,
		CallID:      callID,
		CallMethod:  method,
		EndedReason: "timed out waiting for call result",
	}
	c.attachContext(req, result)
	return result
}

func (c *DirectCaller) errorResult(req *domain.CallRequest, callID string, method domain.CallMethod, err error) *domain.CallResult {
	result := &domain.CallResult{
		Status:      domain.CallStatusError,
		CallID:      callID,
		CallMethod:  method,
		EndedReason: err.Error(),
	}
	c.attachContext(req, result)
	return result
}

// attachContext fills correlation fields from the request when the result
// did not carry them (polling snapshots without metadata, partial webhook
// payloads).
func (c *DirectCaller) attachContext(req *domain.CallRequest, result *domain.CallResult) {
	if result.ProviderID == nil {
		result.ProviderID = req.ProviderID
	}
	if result.ServiceRequestID == nil {
		result.ServiceRequestID = req.ServiceRequestID
	}
	if result.ProviderName == "" {
		result.ProviderName = req.ProviderName
	}
	if result.ProviderPhone == "" {
		result.ProviderPhone = req.ProviderPhone
	}
}

// bookingFromCall reads the booking schema fields out of a booking call's
// structured data. Returns nil when the agent produced no analysis.
func bookingFromCall(call *vapi.Call) *domain.BookingDetails {
	if call.Analysis == nil || call.Analysis.StructuredData == nil {
		return nil
	}
	raw := call.Analysis.StructuredData

	booking := &domain.BookingDetails{}
	if v, ok := raw["booking_confirmed"].(bool); ok {
		booking.Confirmed = v
	} else {
		return nil
	}
	if v, ok := raw["booking_date"].(string); ok && v != "" {
		booking.Date = &v
	}
	if v, ok := raw["booking_time"].(string); ok && v != "" {
		booking.Time = &v
	}
	if v, ok := raw["confirmation_number"].(string); ok && v != "" {
		booking.ConfirmationNumber = &v
	}
	return booking
}
