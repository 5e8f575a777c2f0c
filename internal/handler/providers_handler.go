package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/caller"
	"github.com/jkindrix/callbridge/internal/config"
	"github.com/jkindrix/callbridge/internal/domain"
	"github.com/jkindrix/callbridge/internal/validation"
)

// ProvidersHandler exposes direct call dispatch: one-off calls, batch
// fan-out, and the call-method configuration probe.
type ProvidersHandler struct {
	direct  *caller.DirectCaller
	batch   *caller.BatchCaller
	vapiCfg *config.VapiConfig
	logger  *zap.Logger
}

// NewProvidersHandler creates a ProvidersHandler.
func NewProvidersHandler(direct *caller.DirectCaller, batch *caller.BatchCaller, vapiCfg *config.VapiConfig, logger *zap.Logger) *ProvidersHandler {
	return &ProvidersHandler{direct: direct, batch: batch, vapiCfg: vapiCfg, logger: logger}
}

// RegisterRoutes registers provider call routes.
func (h *ProvidersHandler) RegisterRoutes(r chi.Router) {
	r.Post("/providers/call", h.Call)
	r.Post("/providers/batch-call", h.BatchCall)
	r.Get("/providers/call/status", h.CallStatus)
}

// CallRequestBody is the payload for a single direct call.
type CallRequestBody struct {
	ProviderID       string `json:"provider_id,omitempty"`
	ServiceRequestID string `json:"service_request_id,omitempty"`
	ProviderName     string `json:"provider_name"`
	ProviderPhone    string `json:"provider_phone"`
	ServiceNeeded    string `json:"service_needed"`
	UserCriteria     string `json:"user_criteria,omitempty"`
	Location         string `json:"location,omitempty"`
	Urgency          string `json:"urgency,omitempty"`
}

// toDomain validates the body and converts it to a call request.
func (b *CallRequestBody) toDomain() (*domain.CallRequest, string) {
	v := validation.New()
	v.Required("provider_phone", b.ProviderPhone)
	v.PhoneNumber("provider_phone", b.ProviderPhone)
	v.Required("provider_name", b.ProviderName)
	v.NoScriptTags("provider_name", b.ProviderName)
	v.Required("service_needed", b.ServiceNeeded)
	v.UUID("provider_id", b.ProviderID)
	v.UUID("service_request_id", b.ServiceRequestID)
	if !v.IsValid() {
		return nil, v.Errors().Error()
	}

	req := &domain.CallRequest{
		ProviderName:  b.ProviderName,
		ProviderPhone: validation.SanitizePhoneNumber(b.ProviderPhone),
		ServiceNeeded: b.ServiceNeeded,
		UserCriteria:  b.UserCriteria,
		Location:      b.Location,
		Urgency:       parseUrgency(b.Urgency),
	}
	if b.ProviderID != "" {
		id, _ := uuid.Parse(b.ProviderID)
		req.ProviderID = &id
	}
	if b.ServiceRequestID != "" {
		id, _ := uuid.Parse(b.ServiceRequestID)
		req.ServiceRequestID = &id
	}
	return req, ""
}

// Call handles POST /providers/call. Blocks until the call reaches a
// terminal result or times out; the result status carries the outcome.
func (h *ProvidersHandler) Call(w http.ResponseWriter, r *http.Request) {
	var body CallRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Fail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	req, msg := body.toDomain()
	if msg != "" {
		Fail(w, r, http.StatusBadRequest, msg)
		return
	}

	result := h.direct.Call(r.Context(), req)
	OK(w, r, http.StatusOK, result)
}

// BatchCallBody is the payload for a batch of calls sharing one inquiry.
type BatchCallBody struct {
	Providers []struct {
		ProviderID string `json:"provider_id,omitempty"`
		Name       string `json:"name"`
		Phone      string `json:"phone"`
	} `json:"providers"`
	ServiceRequestID string `json:"service_request_id,omitempty"`
	ServiceNeeded    string `json:"service_needed"`
	UserCriteria     string `json:"user_criteria,omitempty"`
	Location         string `json:"location,omitempty"`
	Urgency          string `json:"urgency,omitempty"`
	MaxConcurrent    int    `json:"max_concurrent,omitempty"`
}

// BatchCall handles POST /providers/batch-call.
func (h *ProvidersHandler) BatchCall(w http.ResponseWriter, r *http.Request) {
	var body BatchCallBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Fail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Providers) == 0 {
		Fail(w, r, http.StatusBadRequest, "providers is required")
		return
	}
	if body.ServiceNeeded == "" {
		Fail(w, r, http.StatusBadRequest, "service_needed is required")
		return
	}

	var serviceRequestID *uuid.UUID
	if body.ServiceRequestID != "" {
		id, err := uuid.Parse(body.ServiceRequestID)
		if err != nil {
			Fail(w, r, http.StatusBadRequest, "invalid service_request_id")
			return
		}
		serviceRequestID = &id
	}

	requests := make([]*domain.CallRequest, 0, len(body.Providers))
	for _, p := range body.Providers {
		if p.Phone == "" {
			Fail(w, r, http.StatusBadRequest, "every provider needs a phone")
			return
		}
		req := &domain.CallRequest{
			ServiceRequestID: serviceRequestID,
			ProviderName:     p.Name,
			ProviderPhone:    p.Phone,
			ServiceNeeded:    body.ServiceNeeded,
			UserCriteria:     body.UserCriteria,
			Location:         body.Location,
			Urgency:          parseUrgency(body.Urgency),
		}
		if p.ProviderID != "" {
			id, err := uuid.Parse(p.ProviderID)
			if err != nil {
				Fail(w, r, http.StatusBadRequest, "invalid provider_id")
				return
			}
			req.ProviderID = &id
		}
		requests = append(requests, req)
	}

	h.logger.Info("batch call requested",
		zap.Int("providers", len(requests)),
		zap.Int("max_concurrent", body.MaxConcurrent),
	)

	results := h.batch.Run(r.Context(), requests, body.MaxConcurrent)
	OK(w, r, http.StatusOK, map[string]interface{}{
		"results": results,
		"total":   len(results),
	})
}

// CallMethodStatus reports which call-tracking mode the service runs in.
type CallMethodStatus struct {
	WebhookEnabled bool   `json:"webhookEnabled"`
	VapiConfigured bool   `json:"vapiConfigured"`
	ActiveMethod   string `json:"activeMethod"`
}

// CallStatus handles GET /providers/call/status: a configuration probe
// answering which result-delivery method outbound calls will use.
func (h *ProvidersHandler) CallStatus(w http.ResponseWriter, r *http.Request) {
	method := domain.CallMethodPolling
	if h.vapiCfg.WebhookEnabled() {
		method = domain.CallMethodWebhook
	}
	OK(w, r, http.StatusOK, CallMethodStatus{
		WebhookEnabled: h.vapiCfg.WebhookEnabled(),
		VapiConfigured: h.vapiCfg.APIKey != "",
		ActiveMethod:   string(method),
	})
}

func parseUrgency(raw string) domain.Urgency {
	switch domain.Urgency(raw) {
	case domain.UrgencyImmediate, domain.UrgencyWithin24h, domain.UrgencyWithin2d:
		return domain.Urgency(raw)
	default:
		return domain.UrgencyFlexible
	}
}
