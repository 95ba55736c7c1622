// Package audit persists one DecisionEvent per pipeline decision point so a
// blocked call, a credential miss, or a quarantine run can be reconstructed
// later. Recording never blocks the pipeline.
package audit

import "time"

// Pipeline stages an event can be recorded at.
const (
	StageInvocation = "invocation"
	StageCredential = "credential"
	StageResult     = "result"
	StageQuarantine = "quarantine"
)

// Decisions recorded per stage.
const (
	DecisionAllow            = "allow"
	DecisionBlock            = "block"
	DecisionResolved         = "resolved"
	DecisionAuthRequired     = "auth_required"
	DecisionInvalidArguments = "invalid_arguments"
	DecisionUpstreamError    = "upstream_error"
	DecisionTrusted          = "trusted"
	DecisionUntrusted        = "untrusted"
	DecisionSanitize         = "sanitize"
	DecisionSummarized       = "summarized"
	DecisionCancelled        = "cancelled"
)

// Recorder is the interface the gateway records decisions through.
// Record must never block the caller.
type Recorder interface {
	Record(event *DecisionEvent)
	Close()
}

// DecisionEvent is a single decision taken while executing one tool call.
// Events for one call share a RequestID.
type DecisionEvent struct {
	RequestID      string
	OrgID          string
	Timestamp      time.Time
	Stage          string
	ToolID         string
	AgentID        string
	ConversationID string
	Decision       string
	PolicyID       string
	Reason         string
	Trusted        bool
	ArgsPreview    string
	ResultPreview  string
	Rounds         uint8
	ElapsedMs      float32
}

// PreviewLength is the max characters stored in args/result previews.
const PreviewLength = 500

// TruncatePreview returns the first maxLen runes of s without splitting a
// multi-byte character.
func TruncatePreview(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
