package domain

import (
	"context"

	"github.com/google/uuid"
)

// RequestRepository persists service requests and their state machine.
type RequestRepository interface {
	Create(ctx context.Context, req *ServiceRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*ServiceRequest, error)

	// UpdateStatus persists a transition, rejecting edges the state
	// machine forbids.
	UpdateStatus(ctx context.Context, id uuid.UUID, status RequestStatus) error

	// SaveRecommendations stores the recommendation blob atomically with
	// the RECOMMENDED status.
	SaveRecommendations(ctx context.Context, id uuid.UUID, recs *RecommendationSet) error

	// SetFinalOutcome records the user-facing outcome for FAILED requests.
	SetFinalOutcome(ctx context.Context, id uuid.UUID, outcome string) error
}

// ProviderRepository persists providers and their call-tracking fields.
type ProviderRepository interface {
	CreateBatch(ctx context.Context, providers []*Provider) error
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*Provider, error)

	// UpsertProviderCall writes the call_* fields. Idempotent: when the
	// stored row already reflects the same call ID the write is a no-op.
	UpsertProviderCall(ctx context.Context, providerID uuid.UUID, result *CallResult) error

	// UpdateBooking records the parsed booking confirmation.
	UpdateBooking(ctx context.Context, providerID uuid.UUID, booking *BookingDetails) error
}

// LogRepository appends interaction logs. The unique index on call_id
// makes concurrent writers for the same call collide harmlessly.
type LogRepository interface {
	Append(ctx context.Context, log *InteractionLog) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*InteractionLog, error)
}

// SearchAdapter discovers candidate providers for a request. Discovery
// itself is an external collaborator; the orchestrator only consumes
// the returned candidates.
type SearchAdapter interface {
	FindProviders(ctx context.Context, req *ServiceRequest) ([]*Provider, error)
}

// EventSink receives request change events. Delivery to subscribers is
// external; implementations must not block the caller.
type EventSink interface {
	RequestChanged(requestID uuid.UUID, status RequestStatus)
}

// NopEventSink discards all events.
type NopEventSink struct{}

func (NopEventSink) RequestChanged(uuid.UUID, RequestStatus) {}
