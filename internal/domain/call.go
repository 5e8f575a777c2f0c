package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Availability is the agent's determination of provider availability.
type Availability string

const (
	AvailabilityAvailable         Availability = "available"
	AvailabilityUnavailable       Availability = "unavailable"
	AvailabilityCallbackRequested Availability = "callback_requested"
	AvailabilityUnclear           Availability = "unclear"
)

// CallOutcome is the agent's overall read of the conversation.
type CallOutcome string

const (
	OutcomePositive  CallOutcome = "positive"
	OutcomeNegative  CallOutcome = "negative"
	OutcomeNeutral   CallOutcome = "neutral"
	OutcomeNoAnswer  CallOutcome = "no_answer"
	OutcomeVoicemail CallOutcome = "voicemail"
	OutcomeBusy      CallOutcome = "busy"
)

// StructuredCallData is the constrained JSON the voice agent emits to
// summarize a call. Availability, SinglePersonFound, AllCriteriaMet and
// CallOutcome form the required subset; everything else may be absent.
type StructuredCallData struct {
	Availability           Availability    `json:"availability"`
	EstimatedRate          string          `json:"estimated_rate,omitempty"`
	SinglePersonFound      bool            `json:"single_person_found"`
	TechnicianName         string          `json:"technician_name,omitempty"`
	AllCriteriaMet         bool            `json:"all_criteria_met"`
	CriteriaDetails        map[string]bool `json:"criteria_details,omitempty"`
	CallOutcome            CallOutcome     `json:"call_outcome"`
	Recommended            bool            `json:"recommended"`
	Disqualified           bool            `json:"disqualified"`
	DisqualificationReason string          `json:"disqualification_reason,omitempty"`
	EarliestAvailability   string          `json:"earliest_availability,omitempty"`
	Notes                  string          `json:"notes,omitempty"`
}

var validAvailability = map[Availability]bool{
	AvailabilityAvailable:         true,
	AvailabilityUnavailable:       true,
	AvailabilityCallbackRequested: true,
	AvailabilityUnclear:           true,
}

var validOutcome = map[CallOutcome]bool{
	OutcomePositive:  true,
	OutcomeNegative:  true,
	OutcomeNeutral:   true,
	OutcomeNoAnswer:  true,
	OutcomeVoicemail: true,
	OutcomeBusy:      true,
}

// Validate checks the required subset of the structured-data contract.
func (d *StructuredCallData) Validate() error {
	if !validAvailability[d.Availability] {
		return fmt.Errorf("invalid availability %q", d.Availability)
	}
	if !validOutcome[d.CallOutcome] {
		return fmt.Errorf("invalid call_outcome %q", d.CallOutcome)
	}
	return nil
}

// ParseStructuredData converts a vendor structuredData map into a
// validated StructuredCallData. Optional fields that are present with the
// wrong type fail the parse; absent fields are fine.
func ParseStructuredData(raw map[string]interface{}) (*StructuredCallData, error) {
	if raw == nil {
		return nil, fmt.Errorf("structured data missing")
	}

	d := &StructuredCallData{}
	var err error
	if d.Availability, err = stringField(raw, "availability", true, func(s string) Availability { return Availability(s) }); err != nil {
		return nil, err
	}
	if d.CallOutcome, err = stringField(raw, "call_outcome", true, func(s string) CallOutcome { return CallOutcome(s) }); err != nil {
		return nil, err
	}
	if d.SinglePersonFound, err = boolField(raw, "single_person_found", true); err != nil {
		return nil, err
	}
	if d.AllCriteriaMet, err = boolField(raw, "all_criteria_met", true); err != nil {
		return nil, err
	}
	if d.Recommended, err = boolField(raw, "recommended", false); err != nil {
		return nil, err
	}
	if d.Disqualified, err = boolField(raw, "disqualified", false); err != nil {
		return nil, err
	}

	for key, dst := range map[string]*string{
		"estimated_rate":          &d.EstimatedRate,
		"technician_name":         &d.TechnicianName,
		"disqualification_reason": &d.DisqualificationReason,
		"earliest_availability":   &d.EarliestAvailability,
		"notes":                   &d.Notes,
	} {
		if v, ok := raw[key]; ok && v != nil {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("field %s: expected string, got %T", key, v)
			}
			*dst = s
		}
	}

	if v, ok := raw["criteria_details"]; ok && v != nil {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field criteria_details: expected object, got %T", v)
		}
		d.CriteriaDetails = make(map[string]bool, len(m))
		for k, mv := range m {
			b, ok := mv.(bool)
			if !ok {
				return nil, fmt.Errorf("criteria_details[%s]: expected bool, got %T", k, mv)
			}
			d.CriteriaDetails[k] = b
		}
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func stringField[T ~string](raw map[string]interface{}, key string, required bool, conv func(string) T) (T, error) {
	var zero T
	v, ok := raw[key]
	if !ok || v == nil {
		if required {
			return zero, fmt.Errorf("missing required field %s", key)
		}
		return zero, nil
	}
	s, ok := v.(string)
	if !ok {
		return zero, fmt.Errorf("field %s: expected string, got %T", key, v)
	}
	return conv(s), nil
}

func boolField(raw map[string]interface{}, key string, required bool) (bool, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		if required {
			return false, fmt.Errorf("missing required field %s", key)
		}
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("field %s: expected bool, got %T", key, v)
	}
	return b, nil
}

// CallAnalysis is the analysis block carried on every CallResult.
type CallAnalysis struct {
	Summary           string              `json:"summary,omitempty"`
	StructuredData    *StructuredCallData `json:"structured_data,omitempty"`
	SuccessEvaluation string              `json:"success_evaluation,omitempty"`
}

// CallResult is the normalized result of one outbound call, regardless
// of whether it arrived via webhook or vendor polling.
type CallResult struct {
	Status          CallStatus   `json:"status"`
	CallID          string       `json:"call_id"`
	CallMethod      CallMethod   `json:"call_method"`
	DurationMinutes float64      `json:"duration_minutes,omitempty"`
	EndedReason     string       `json:"ended_reason,omitempty"`
	Transcript      string       `json:"transcript,omitempty"`
	Analysis        CallAnalysis `json:"analysis"`
	Cost            *float64     `json:"cost,omitempty"`

	// Echoed request context for correlation.
	ProviderID       *uuid.UUID `json:"provider_id,omitempty"`
	ServiceRequestID *uuid.UUID `json:"service_request_id,omitempty"`
	ProviderName     string     `json:"provider_name,omitempty"`
	ProviderPhone    string     `json:"provider_phone,omitempty"`
}

// HasTranscript returns true if the result carries conversation content.
func (r *CallResult) HasTranscript() bool {
	return strings.TrimSpace(r.Transcript) != ""
}

// CallRequest carries everything a single outbound call needs: who to
// call, what to ask, and the correlation identifiers the webhook path
// uses to find its way back.
type CallRequest struct {
	ProviderID       *uuid.UUID `json:"provider_id,omitempty"`
	ServiceRequestID *uuid.UUID `json:"service_request_id,omitempty"`
	ProviderName     string     `json:"provider_name"`
	ProviderPhone    string     `json:"provider_phone"`
	ServiceNeeded    string     `json:"service_needed"`
	UserCriteria     string     `json:"user_criteria"`
	Location         string     `json:"location"`
	Urgency          Urgency    `json:"urgency"`
}

// LogStatus classifies an interaction log entry.
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogWarning LogStatus = "warning"
	LogError   LogStatus = "error"
	LogInfo    LogStatus = "info"
)

// TranscriptTurn is one utterance in an interaction log transcript.
type TranscriptTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// InteractionLog is an append-only record of an orchestration step.
// CallID is unique when non-nil; the store enforces deduplication.
type InteractionLog struct {
	ID         uuid.UUID        `json:"id"`
	RequestID  uuid.UUID        `json:"request_id"`
	Timestamp  time.Time        `json:"timestamp"`
	StepName   string           `json:"step_name"`
	Detail     string           `json:"detail"`
	Status     LogStatus        `json:"status"`
	Transcript []TranscriptTurn `json:"transcript,omitempty"`
	ProviderID *uuid.UUID       `json:"provider_id,omitempty"`
	CallID     *string          `json:"call_id,omitempty"`
}

// NewInteractionLog creates a log entry stamped with the current time.
func NewInteractionLog(requestID uuid.UUID, step, detail string, status LogStatus) *InteractionLog {
	return &InteractionLog{
		ID:        uuid.New(),
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		StepName:  step,
		Detail:    detail,
		Status:    status,
	}
}
