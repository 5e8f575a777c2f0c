package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/audit"
	"github.com/jkindrix/callbridge/internal/domain"
	"github.com/jkindrix/callbridge/internal/orchestrator"
	"github.com/jkindrix/callbridge/internal/validation"
)

// requestRunTimeout bounds one full orchestration run: search, a batch
// of calls (up to 5 min each wave), and recommendation.
const requestRunTimeout = 30 * time.Minute

// RequestsHandler manages service requests and drives the orchestrator.
type RequestsHandler struct {
	requests  domain.RequestRepository
	providers domain.ProviderRepository
	logs      domain.LogRepository
	orch      *orchestrator.Orchestrator
	audit     *audit.Logger
	logger    *zap.Logger
}

// NewRequestsHandler creates a RequestsHandler. auditLog may be nil.
func NewRequestsHandler(
	requests domain.RequestRepository,
	providers domain.ProviderRepository,
	logs domain.LogRepository,
	orch *orchestrator.Orchestrator,
	auditLog *audit.Logger,
	logger *zap.Logger,
) *RequestsHandler {
	return &RequestsHandler{
		requests:  requests,
		providers: providers,
		logs:      logs,
		orch:      orch,
		audit:     auditLog,
		logger:    logger,
	}
}

// RegisterRoutes registers service request routes.
func (h *RequestsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/{requestID}", h.Get)
		r.Get("/{requestID}/providers", h.ListProviders)
		r.Get("/{requestID}/logs", h.ListLogs)
		r.Post("/{requestID}/select", h.SelectProvider)
	})
}

// CreateRequestBody is the payload for creating a service request.
type CreateRequestBody struct {
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	Criteria         string `json:"criteria,omitempty"`
	Location         string `json:"location"`
	UserPhone        string `json:"user_phone,omitempty"`
	PreferredContact string `json:"preferred_contact,omitempty"`
	Urgency          string `json:"urgency,omitempty"`
}

// Create handles POST /requests: persists the request and starts the
// orchestration pipeline in the background.
func (h *RequestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body CreateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Fail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	v := validation.New()
	v.Required("title", body.Title)
	v.MaxLength("title", body.Title, 256)
	v.NoScriptTags("title", body.Title)
	v.Required("location", body.Location)
	v.MaxLength("description", body.Description, 4096)
	v.PhoneNumber("user_phone", body.UserPhone)
	if !v.IsValid() {
		Fail(w, r, http.StatusBadRequest, v.Errors().Error())
		return
	}

	req := domain.NewServiceRequest(body.Title, body.Description, body.Criteria, body.Location, parseUrgency(body.Urgency))
	if body.UserPhone != "" {
		phone := validation.SanitizePhoneNumber(body.UserPhone)
		req.UserPhone = &phone
	}
	if body.PreferredContact == string(domain.ContactText) {
		req.PreferredContact = domain.ContactText
	}

	if err := h.requests.Create(r.Context(), req); err != nil {
		h.logger.Error("failed to create request", zap.Error(err))
		FailFromError(w, r, err)
		return
	}

	if h.audit != nil {
		h.audit.RequestCreated(r.Context(), req.ID.String(), req.Title, r.RemoteAddr)
	}

	// The pipeline outlives this HTTP request.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestRunTimeout)
		defer cancel()
		if err := h.orch.Run(ctx, req.ID); err != nil {
			h.logger.Error("request pipeline failed",
				zap.String("request_id", req.ID.String()),
				zap.Error(err),
			)
		}
	}()

	OK(w, r, http.StatusAccepted, req)
}

// Get handles GET /requests/{requestID}.
func (h *RequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	req, err := h.requests.GetByID(r.Context(), id)
	if err != nil {
		FailFromError(w, r, err)
		return
	}
	OK(w, r, http.StatusOK, req)
}

// ListProviders handles GET /requests/{requestID}/providers.
func (h *RequestsHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	providers, err := h.providers.ListByRequest(r.Context(), id)
	if err != nil {
		FailFromError(w, r, err)
		return
	}
	OK(w, r, http.StatusOK, providers)
}

// ListLogs handles GET /requests/{requestID}/logs.
func (h *RequestsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	logs, err := h.logs.ListByRequest(r.Context(), id)
	if err != nil {
		FailFromError(w, r, err)
		return
	}
	OK(w, r, http.StatusOK, logs)
}

// SelectProviderBody is the payload for choosing a recommended provider.
type SelectProviderBody struct {
	ProviderID    string `json:"provider_id"`
	PreferredSlot string `json:"preferred_slot,omitempty"`
}

// SelectProvider handles POST /requests/{requestID}/select: kicks off the
// booking call for the chosen provider.
func (h *RequestsHandler) SelectProvider(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var body SelectProviderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Fail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	providerID, err := uuid.Parse(body.ProviderID)
	if err != nil {
		Fail(w, r, http.StatusBadRequest, "invalid provider_id")
		return
	}

	// Validate up front so state errors surface synchronously; the
	// booking call itself runs in the background.
	req, err := h.requests.GetByID(r.Context(), requestID)
	if err != nil {
		FailFromError(w, r, err)
		return
	}
	if req.Status != domain.RequestStatusRecommended {
		Fail(w, r, http.StatusConflict, "request has no pending recommendation")
		return
	}

	if h.audit != nil {
		h.audit.BookingRequested(r.Context(), requestID.String(), providerID.String(), r.RemoteAddr)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestRunTimeout)
		defer cancel()
		if err := h.orch.Book(ctx, requestID, providerID, body.PreferredSlot); err != nil {
			h.logger.Error("booking failed",
				zap.String("request_id", requestID.String()),
				zap.String("provider_id", providerID.String()),
				zap.Error(err),
			)
		}
	}()

	OK(w, r, http.StatusAccepted, map[string]string{"status": "booking"})
}

func (h *RequestsHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		Fail(w, r, http.StatusBadRequest, "invalid request id")
		return uuid.Nil, false
	}
	return id, true
}
