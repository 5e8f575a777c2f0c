package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus represents the normalized status of an outbound call.
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusVoicemail  CallStatus = "voicemail"
	CallStatusBusy       CallStatus = "busy"
	CallStatusError      CallStatus = "error"
	CallStatusTimeout    CallStatus = "timeout"
)

// IsTerminal returns true once the call can no longer change state.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusQueued, CallStatusInProgress, "":
		return false
	default:
		return true
	}
}

// CallMethod records which observer delivered the terminal result.
type CallMethod string

const (
	CallMethodWebhook CallMethod = "webhook"
	CallMethodPolling CallMethod = "polling"
)

// Provider is a candidate service provider discovered for a request.
// The store-assigned ID is authoritative; the vendor's place identifier
// is carried separately and never used as a foreign key.
type Provider struct {
	ID            uuid.UUID `json:"id"`
	RequestID     uuid.UUID `json:"request_id"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone"` // E.164
	Rating        *float64  `json:"rating,omitempty"`
	ReviewCount   *int      `json:"review_count,omitempty"`
	Address       *string   `json:"address,omitempty"`
	PlaceID       *string   `json:"place_id,omitempty"`
	DistanceMiles *float64  `json:"distance_miles,omitempty"`
	Hours         *string   `json:"hours,omitempty"`
	IsOpenNow     *bool     `json:"is_open_now,omitempty"`

	// Call tracking, written once the call terminates.
	CallStatus          CallStatus          `json:"call_status,omitempty"`
	CallResult          *StructuredCallData `json:"call_result,omitempty"`
	CallTranscript      *string             `json:"call_transcript,omitempty"`
	CallSummary         *string             `json:"call_summary,omitempty"`
	CallDurationMinutes *float64            `json:"call_duration_minutes,omitempty"`
	CallCost            *float64            `json:"call_cost,omitempty"`
	CallMethod          CallMethod          `json:"call_method,omitempty"`
	CallID              *string             `json:"call_id,omitempty"`
	CalledAt            *time.Time          `json:"called_at,omitempty"`

	// Booking outcome.
	BookingConfirmed   *bool   `json:"booking_confirmed,omitempty"`
	BookingDate        *string `json:"booking_date,omitempty"`
	BookingTime        *string `json:"booking_time,omitempty"`
	ConfirmationNumber *string `json:"confirmation_number,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WasCalled returns true if a terminal call outcome has been recorded.
func (p *Provider) WasCalled() bool {
	return p.CallStatus.IsTerminal()
}

// BookingDetails carries parsed confirmation fields from a booking call.
type BookingDetails struct {
	Confirmed          bool    `json:"confirmed"`
	Date               *string `json:"date,omitempty"`
	Time               *string `json:"time,omitempty"`
	ConfirmationNumber *string `json:"confirmation_number,omitempty"`
}
