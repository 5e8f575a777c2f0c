// Package assistant builds vendor agent configurations from call requests:
// the system prompt, analysis schema, and webhook correlation metadata.
package assistant

import (
	"fmt"
	"strings"

	"github.com/jkindrix/callbridge/internal/config"
	"github.com/jkindrix/callbridge/internal/domain"
	"github.com/jkindrix/callbridge/internal/vapi"
)

// Builder assembles vendor assistant configs.
type Builder struct {
	cfg config.AssistantConfig
}

// NewBuilder creates a Builder with the given assistant settings.
func NewBuilder(cfg config.AssistantConfig) *Builder {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Voice == "" {
		cfg.Voice = "jennifer"
	}
	if cfg.Transcriber == "" {
		cfg.Transcriber = "nova-2"
	}
	if cfg.MaxDurationMin <= 0 {
		cfg.MaxDurationMin = 5
	}
	return &Builder{cfg: cfg}
}

// BuildInquiry produces the agent config for a provider inquiry call.
// webhookURL, when non-empty, enables webhook mode: the vendor posts the
// end-of-call report there and the metadata block lets ingestion
// correlate it back to the provider and request.
func (b *Builder) BuildInquiry(req *domain.CallRequest, webhookURL string) (*vapi.Assistant, *vapi.CallMetadata) {
	assistant := b.base()
	assistant.Name = "service-inquiry"
	assistant.FirstMessage = fmt.Sprintf(
		"Hi, I'm calling on behalf of a customer looking for %s in %s. Do you have a minute to answer a few questions?",
		req.ServiceNeeded, req.Location,
	)
	assistant.Model.Messages = []vapi.ModelMessage{
		{Role: "system", Content: b.inquiryPrompt(req)},
	}
	assistant.AnalysisPlan = &vapi.AnalysisPlan{
		SummaryPrompt:        "Summarize the call in 2-3 sentences: availability, pricing, and whether the stated criteria were met.",
		StructuredDataPrompt: "Extract the call results into the provided schema. Be precise about which criteria were confirmed by a single person.",
		StructuredDataSchema: structuredDataSchema(),
		SuccessEvaluationRubric: "PassFail",
		SuccessEvaluationPrompt: "The call succeeded if availability and pricing were established and every stated criterion was explicitly confirmed or denied.",
	}

	var metadata *vapi.CallMetadata
	if webhookURL != "" {
		assistant.ServerURL = webhookURL
		metadata = &vapi.CallMetadata{
			ProviderID:       req.ProviderID,
			ServiceRequestID: req.ServiceRequestID,
			ProviderName:     req.ProviderName,
			ProviderPhone:    req.ProviderPhone,
			ServiceNeeded:    req.ServiceNeeded,
			UserCriteria:     req.UserCriteria,
			Location:         req.Location,
			Urgency:          string(req.Urgency),
		}
	}

	return assistant, metadata
}

// BuildBooking produces the agent config for a booking confirmation call.
func (b *Builder) BuildBooking(req *domain.CallRequest, userPhone, preferredSlot string) *vapi.Assistant {
	assistant := b.base()
	assistant.Name = "service-booking"
	assistant.FirstMessage = fmt.Sprintf(
		"Hi, I'm calling back to book the %s service we discussed earlier. Is that still available?",
		req.ServiceNeeded,
	)
	assistant.Model.Messages = []vapi.ModelMessage{
		{Role: "system", Content: b.bookingPrompt(req, userPhone, preferredSlot)},
	}
	assistant.AnalysisPlan = &vapi.AnalysisPlan{
		SummaryPrompt:        "Summarize whether the booking was confirmed, for when, and any confirmation number given.",
		StructuredDataSchema: bookingDataSchema(),
	}
	return assistant
}

func (b *Builder) base() *vapi.Assistant {
	return &vapi.Assistant{
		Model: vapi.AssistantModel{
			Provider: "openai",
			Model:    b.cfg.Model,
			Tools:    []vapi.Tool{{Type: "endCall"}},
		},
		Voice: vapi.AssistantVoice{
			Provider: "playht",
			VoiceID:  b.cfg.Voice,
		},
		Transcriber: vapi.Transcriber{
			Provider: "deepgram",
			Model:    b.cfg.Transcriber,
			Language: "en",
		},
		MaxDurationSeconds: b.cfg.MaxDurationMin * 60,
		EndCallFunction:    true,
	}
}

// inquiryPrompt encodes the behavioral contract the agent must follow on
// provider inquiry calls.
func (b *Builder) inquiryPrompt(req *domain.CallRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a polite assistant calling %s on behalf of a customer who needs: %s.\n", req.ProviderName, req.ServiceNeeded)
	fmt.Fprintf(&sb, "Location: %s. Urgency: %s.\n\n", req.Location, urgencyPhrase(req.Urgency))

	if strings.TrimSpace(req.UserCriteria) != "" {
		fmt.Fprintf(&sb, "The customer's criteria are:\n%s\n\n", req.UserCriteria)
	}

	sb.WriteString(`Rules you must follow:
1. Ask ONLY about the criteria listed above. Do not invent additional requirements or questions.
2. Verify that a SINGLE person at the business satisfies ALL of the criteria. Different people covering different criteria does not count; if criteria are split across people, record single_person_found as false.
3. If the business clearly cannot satisfy a criterion, mark them disqualified, note the reason, thank them politely, and end the call.
4. Ask for the earliest availability as a SPECIFIC date and time (for example "Thursday at 2pm"), not a vague answer.
5. Ask for an estimated rate or price range for the work.
6. Only if ALL criteria are met, close with: "Great, we'll call you back shortly to schedule." Otherwise just thank them for their time.

Keep the call short and courteous. Use the endCall tool when the conversation is finished.`)
	return sb.String()
}

func (b *Builder) bookingPrompt(req *domain.CallRequest, userPhone, preferredSlot string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are calling %s to book a %s appointment on behalf of a customer.\n", req.ProviderName, req.ServiceNeeded)
	if preferredSlot != "" {
		fmt.Fprintf(&sb, "The customer prefers: %s.\n", preferredSlot)
	}
	if userPhone != "" {
		fmt.Fprintf(&sb, "The customer's callback number is %s; share it only if the business needs it to confirm the booking.\n", userPhone)
	}
	sb.WriteString(`
Confirm a specific date and time. Ask for a confirmation number if the business issues one. Repeat the final date and time back to confirm before ending the call. Use the endCall tool once the booking is settled or clearly impossible.`)
	return sb.String()
}

func urgencyPhrase(u domain.Urgency) string {
	switch u {
	case domain.UrgencyImmediate:
		return "as soon as possible, today if they can"
	case domain.UrgencyWithin24h:
		return "within the next 24 hours"
	case domain.UrgencyWithin2d:
		return "within the next two days"
	default:
		return "flexible on timing"
	}
}

// structuredDataSchema is the JSON schema the agent must fill after an
// inquiry call. The required subset matches what downstream validation
// enforces.
func structuredDataSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"availability": map[string]interface{}{
				"type": "string",
				"enum": []string{"available", "unavailable", "callback_requested", "unclear"},
			},
			"estimated_rate":      map[string]interface{}{"type": "string"},
			"single_person_found": map[string]interface{}{"type": "boolean"},
			"technician_name":     map[string]interface{}{"type": "string"},
			"all_criteria_met":    map[string]interface{}{"type": "boolean"},
			"criteria_details": map[string]interface{}{
				"type":                 "object",
				"additionalProperties": map[string]interface{}{"type": "boolean"},
			},
			"call_outcome": map[string]interface{}{
				"type": "string",
				"enum": []string{"positive", "negative", "neutral", "no_answer", "voicemail", "busy"},
			},
			"recommended":             map[string]interface{}{"type": "boolean"},
			"disqualified":            map[string]interface{}{"type": "boolean"},
			"disqualification_reason": map[string]interface{}{"type": "string"},
			"earliest_availability":   map[string]interface{}{"type": "string"},
			"notes":                   map[string]interface{}{"type": "string"},
		},
		"required": []string{"availability", "single_person_found", "all_criteria_met", "call_outcome"},
	}
}

func bookingDataSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"booking_confirmed":   map[string]interface{}{"type": "boolean"},
			"booking_date":        map[string]interface{}{"type": "string"},
			"booking_time":        map[string]interface{}{"type": "string"},
			"confirmation_number": map[string]interface{}{"type": "string"},
		},
		"required": []string{"booking_confirmed"},
	}
}
