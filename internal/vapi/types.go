package vapi

import (
	"time"

	"github.com/google/uuid"
)

// Call statuses reported by the vendor.
const (
	CallStateQueued     = "queued"
	CallStateRinging    = "ringing"
	CallStateInProgress = "in-progress"
	CallStateForwarding = "forwarding"
	CallStateEnded      = "ended"
)

// Customer identifies the callee.
type Customer struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

// CallMetadata is attached at call start and echoed back on webhooks and
// call snapshots so ingestion can correlate results to our records.
type CallMetadata struct {
	ProviderID       *uuid.UUID `json:"providerId,omitempty"`
	ServiceRequestID *uuid.UUID `json:"serviceRequestId,omitempty"`
	ProviderName     string     `json:"providerName,omitempty"`
	ProviderPhone    string     `json:"providerPhone,omitempty"`
	ServiceNeeded    string     `json:"serviceNeeded,omitempty"`
	UserCriteria     string     `json:"userCriteria,omitempty"`
	Location         string     `json:"location,omitempty"`
	Urgency          string     `json:"urgency,omitempty"`
}

// Assistant is the vendor-side agent configuration sent at call start.
type Assistant struct {
	Name         string        `json:"name,omitempty"`
	FirstMessage string        `json:"firstMessage,omitempty"`
	Model        AssistantModel `json:"model"`
	Voice        AssistantVoice `json:"voice"`
	Transcriber  Transcriber   `json:"transcriber"`
	AnalysisPlan *AnalysisPlan `json:"analysisPlan,omitempty"`
	// ServerURL is set only in webhook mode.
	ServerURL          string `json:"serverUrl,omitempty"`
	MaxDurationSeconds int    `json:"maxDurationSeconds,omitempty"`
	EndCallFunction    bool   `json:"endCallFunctionEnabled,omitempty"`
}

// AssistantModel holds the LLM configuration behind the agent.
type AssistantModel struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Messages []ModelMessage `json:"messages,omitempty"`
	Tools    []Tool         `json:"tools,omitempty"`
}

// ModelMessage is a prompt message (the system prompt lives here).
type ModelMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool is a function the agent may invoke (e.g. endCall).
type Tool struct {
	Type string `json:"type"`
}

// AssistantVoice selects the TTS voice.
type AssistantVoice struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}

// Transcriber selects the ASR model.
type Transcriber struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

// AnalysisPlan tells the vendor what post-call analysis to produce.
type AnalysisPlan struct {
	SummaryPrompt           string                 `json:"summaryPrompt,omitempty"`
	StructuredDataPrompt    string                 `json:"structuredDataPrompt,omitempty"`
	StructuredDataSchema    map[string]interface{} `json:"structuredDataSchema,omitempty"`
	SuccessEvaluationPrompt string                 `json:"successEvaluationPrompt,omitempty"`
	SuccessEvaluationRubric string                 `json:"successEvaluationRubric,omitempty"`
}

// StartCallRequest is the outbound call creation payload.
type StartCallRequest struct {
	PhoneNumberID string        `json:"phoneNumberId"`
	Customer      Customer      `json:"customer"`
	Assistant     *Assistant    `json:"assistant"`
	Metadata      *CallMetadata `json:"metadata,omitempty"`
}

// StartCallResponse is the vendor's acknowledgement of a queued call.
type StartCallResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Analysis is the vendor's post-call analysis block.
type Analysis struct {
	Summary           string                 `json:"summary,omitempty"`
	StructuredData    map[string]interface{} `json:"structuredData,omitempty"`
	SuccessEvaluation string                 `json:"successEvaluation,omitempty"`
}

// Artifact carries late-bound call artifacts on the snapshot.
type Artifact struct {
	Transcript string `json:"transcript,omitempty"`
}

// CostBreakdown itemizes the call cost.
type CostBreakdown struct {
	Total float64 `json:"total,omitempty"`
}

// Call is the vendor's full call snapshot.
type Call struct {
	ID              string         `json:"id"`
	Status          string         `json:"status"`
	EndedReason     string         `json:"endedReason,omitempty"`
	StartedAt       *time.Time     `json:"startedAt,omitempty"`
	EndedAt         *time.Time     `json:"endedAt,omitempty"`
	DurationMinutes float64        `json:"durationMinutes,omitempty"`
	Transcript      string         `json:"transcript,omitempty"`
	Artifact        *Artifact      `json:"artifact,omitempty"`
	Analysis        *Analysis      `json:"analysis,omitempty"`
	Customer        *Customer      `json:"customer,omitempty"`
	Metadata        *CallMetadata  `json:"metadata,omitempty"`
	CostBreakdown   *CostBreakdown `json:"costBreakdown,omitempty"`
}

// BestTranscript returns the transcript, preferring the artifact copy.
func (c *Call) BestTranscript() string {
	if c.Artifact != nil && c.Artifact.Transcript != "" {
		return c.Artifact.Transcript
	}
	return c.Transcript
}

// IsTerminal returns true once the vendor will not change the call again.
func (c *Call) IsTerminal() bool {
	switch c.Status {
	case CallStateQueued, CallStateRinging, CallStateInProgress, "":
		return false
	default:
		return true
	}
}

// Webhook event types we care about.
const (
	EventEndOfCallReport = "end-of-call-report"
	EventStatusUpdate    = "status-update"
)

// Event is a parsed webhook payload.
type Event struct {
	Type        string    `json:"type"`
	Call        Call      `json:"call"`
	Status      string    `json:"status,omitempty"`
	EndedReason string    `json:"endedReason,omitempty"`
	Transcript  string    `json:"transcript,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Analysis    *Analysis `json:"analysis,omitempty"`
	Cost        float64   `json:"cost,omitempty"`
}

// webhookEnvelope is the wire shape of vendor webhooks.
type webhookEnvelope struct {
	Message *Event `json:"message"`
}
