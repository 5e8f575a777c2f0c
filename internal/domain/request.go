// Package domain contains the core business entities and interfaces.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus represents the lifecycle state of a service request.
type RequestStatus string

const (
	RequestStatusPending     RequestStatus = "PENDING"
	RequestStatusSearching   RequestStatus = "SEARCHING"
	RequestStatusCalling     RequestStatus = "CALLING"
	RequestStatusAnalyzing   RequestStatus = "ANALYZING"
	RequestStatusRecommended RequestStatus = "RECOMMENDED"
	RequestStatusBooking     RequestStatus = "BOOKING"
	RequestStatusCompleted   RequestStatus = "COMPLETED"
	RequestStatusFailed      RequestStatus = "FAILED"
)

// statusRank orders the forward path of the state machine. FAILED is
// reachable from any non-terminal state and has no rank of its own.
var statusRank = map[RequestStatus]int{
	RequestStatusPending:     0,
	RequestStatusSearching:   1,
	RequestStatusCalling:     2,
	RequestStatusAnalyzing:   3,
	RequestStatusRecommended: 4,
	RequestStatusBooking:     5,
	RequestStatusCompleted:   6,
}

// IsTerminal returns true if no further transitions are allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusFailed
}

// IsValid returns true if s is a known status value.
func (s RequestStatus) IsValid() bool {
	if s == RequestStatusFailed {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether moving from s to next is a legal edge.
// Forward moves along the path are allowed, as is FAILED from any
// non-terminal state. The one sanctioned revert is BOOKING back to
// RECOMMENDED, so a failed booking call leaves the request selectable
// again. All other backward moves and moves out of a terminal state are
// rejected.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == RequestStatusFailed {
		return true
	}
	if s == RequestStatusBooking && next == RequestStatusRecommended {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		// Unknown persisted values behave as PENDING.
		from = statusRank[RequestStatusPending]
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// NormalizeStatus maps unknown persisted values to the initial state so
// the enum can grow without breaking old rows.
func NormalizeStatus(raw string) RequestStatus {
	s := RequestStatus(raw)
	if !s.IsValid() {
		return RequestStatusPending
	}
	return s
}

// ContactPreference is how the user wants to be reached.
type ContactPreference string

const (
	ContactPhone ContactPreference = "phone"
	ContactText  ContactPreference = "text"
)

// Urgency captures how soon the user needs the service.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyWithin24h Urgency = "within_24h"
	UrgencyWithin2d  Urgency = "within_2d"
	UrgencyFlexible  Urgency = "flexible"
)

// ServiceRequest is a user's request to find and book a service provider.
type ServiceRequest struct {
	ID               uuid.UUID          `json:"id"`
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	Criteria         string             `json:"criteria"`
	Location         string             `json:"location"`
	UserPhone        *string            `json:"user_phone,omitempty"`
	PreferredContact ContactPreference  `json:"preferred_contact"`
	Urgency          Urgency            `json:"urgency"`
	Status           RequestStatus      `json:"status"`
	FinalOutcome     *string            `json:"final_outcome,omitempty"`
	Recommendations  *RecommendationSet `json:"recommendations,omitempty"`
	NotificationSentAt *time.Time       `json:"notification_sent_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// NewServiceRequest creates a request in the initial state.
func NewServiceRequest(title, description, criteria, location string, urgency Urgency) *ServiceRequest {
	now := time.Now().UTC()
	return &ServiceRequest{
		ID:               uuid.New(),
		Title:            title,
		Description:      description,
		Criteria:         criteria,
		Location:         location,
		PreferredContact: ContactPhone,
		Urgency:          urgency,
		Status:           RequestStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// RecommendationSet is the persisted output of a recommendation run.
type RecommendationSet struct {
	Providers             []RankedProvider `json:"providers"`
	OverallRecommendation string           `json:"overall_recommendation"`
	GeneratedAt           time.Time        `json:"generated_at"`
}

// RankedProvider is one scored survivor in a recommendation set.
type RankedProvider struct {
	ProviderID           uuid.UUID `json:"provider_id"`
	Name                 string    `json:"name"`
	Phone                string    `json:"phone"`
	Score                int       `json:"score"`
	Rating               *float64  `json:"rating,omitempty"`
	ReviewCount          *int      `json:"review_count,omitempty"`
	EstimatedRate        string    `json:"estimated_rate,omitempty"`
	EarliestAvailability string    `json:"earliest_availability,omitempty"`
	Reasons              []string  `json:"reasons,omitempty"`
}
