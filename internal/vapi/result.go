package vapi

import (
	"strings"

	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/domain"
)

// StatusFromEndedReason maps the vendor's endedReason taxonomy onto the
// normalized call status.
func StatusFromEndedReason(endedReason string) domain.CallStatus {
	reason := strings.ToLower(endedReason)
	switch {
	case reason == "":
		return domain.CallStatusCompleted
	case strings.Contains(reason, "no-answer") || strings.Contains(reason, "did-not-answer"):
		return domain.CallStatusNoAnswer
	case strings.Contains(reason, "voicemail"):
		return domain.CallStatusVoicemail
	case strings.Contains(reason, "busy"):
		return domain.CallStatusBusy
	case strings.Contains(reason, "error") || strings.Contains(reason, "failed"):
		return domain.CallStatusError
	case strings.Contains(reason, "silence-timed-out") || strings.Contains(reason, "max-duration"):
		return domain.CallStatusCompleted
	default:
		// assistant-ended-call, customer-ended-call, assistant-said-end-call-phrase
		return domain.CallStatusCompleted
	}
}

// normalizeVendorStatus folds a terminal vendor state other than "ended"
// into the normalized taxonomy. States that already name a taxonomy
// member pass through; anything else (e.g. "forwarding") reads as error
// so vendor vocabulary never leaks into stored call statuses.
func normalizeVendorStatus(status string) domain.CallStatus {
	s := domain.CallStatus(strings.ToLower(status))
	switch s {
	case domain.CallStatusCompleted, domain.CallStatusFailed, domain.CallStatusNoAnswer,
		domain.CallStatusVoicemail, domain.CallStatusBusy, domain.CallStatusError,
		domain.CallStatusTimeout:
		return s
	default:
		return domain.CallStatusError
	}
}

// ResultFromCall converts a vendor call snapshot into a CallResult.
// Malformed structured data is dropped with a warning rather than
// failing the whole result.
func ResultFromCall(call *Call, method domain.CallMethod, logger *zap.Logger) *domain.CallResult {
	result := &domain.CallResult{
		CallID:          call.ID,
		CallMethod:      method,
		DurationMinutes: call.DurationMinutes,
		EndedReason:     call.EndedReason,
		Transcript:      call.BestTranscript(),
	}

	if call.Status == CallStateEnded {
		result.Status = StatusFromEndedReason(call.EndedReason)
	} else if call.IsTerminal() {
		result.Status = normalizeVendorStatus(call.Status)
	} else {
		result.Status = domain.CallStatusInProgress
	}

	if result.DurationMinutes == 0 && call.StartedAt != nil && call.EndedAt != nil {
		result.DurationMinutes = call.EndedAt.Sub(*call.StartedAt).Minutes()
	}

	if call.CostBreakdown != nil && call.CostBreakdown.Total > 0 {
		cost := call.CostBreakdown.Total
		result.Cost = &cost
	}

	if call.Analysis != nil {
		result.Analysis.Summary = call.Analysis.Summary
		result.Analysis.SuccessEvaluation = call.Analysis.SuccessEvaluation
		if call.Analysis.StructuredData != nil {
			data, err := domain.ParseStructuredData(call.Analysis.StructuredData)
			if err != nil {
				logger.Warn("discarding malformed structured data",
					zap.String("call_id", call.ID),
					zap.Error(err),
				)
			} else {
				result.Analysis.StructuredData = data
			}
		}
	}

	if call.Metadata != nil {
		result.ProviderID = call.Metadata.ProviderID
		result.ServiceRequestID = call.Metadata.ServiceRequestID
		result.ProviderName = call.Metadata.ProviderName
		result.ProviderPhone = call.Metadata.ProviderPhone
	}

	return result
}

// ResultFromEvent converts an end-of-call webhook event into a partial
// CallResult. Webhook payloads may omit analysis and carry a short
// transcript; enrichment upgrades them later.
func ResultFromEvent(event *Event, logger *zap.Logger) *domain.CallResult {
	call := event.Call
	if call.EndedReason == "" {
		call.EndedReason = event.EndedReason
	}
	if call.Transcript == "" {
		call.Transcript = event.Transcript
	}
	if call.Analysis == nil && event.Analysis != nil {
		call.Analysis = event.Analysis
	}
	if call.Analysis == nil && event.Summary != "" {
		call.Analysis = &Analysis{Summary: event.Summary}
	}
	if call.Status == "" {
		call.Status = CallStateEnded
	}
	if call.CostBreakdown == nil && event.Cost > 0 {
		call.CostBreakdown = &CostBreakdown{Total: event.Cost}
	}

	return ResultFromCall(&call, domain.CallMethodWebhook, logger)
}
