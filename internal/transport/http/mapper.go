package http

import (
	"time"

	"github.com/vovakirdan/repaircall/internal/cues"
	"github.com/vovakirdan/repaircall/internal/elapsed"
	"github.com/vovakirdan/repaircall/internal/session"
	"github.com/vovakirdan/repaircall/internal/signaling"
	"github.com/vovakirdan/repaircall/internal/store"
)

// CallStateResponse is the call state shown to control clients.
type CallStateResponse struct {
	Call    session.Snapshot `json:"call"`
	Elapsed string           `json:"elapsed,omitempty"`
	Cues    *cues.Status     `json:"cues,omitempty"`
}

// CallRecordResponse represents a finished call in API responses.
type CallRecordResponse struct {
	ID         int64  `json:"id"`
	CallID     string `json:"call_id"`
	Role       string `json:"role"`
	RemoteName string `json:"remote_name"`
	EndReason  string `json:"end_reason"`
	Failure    string `json:"failure,omitempty"`
	Duration   string `json:"duration"`
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at"`
}

// CallHistoryResponse wraps a page of call history.
type CallHistoryResponse struct {
	Calls []CallRecordResponse `json:"calls"`
}

// DiagnosticsResponse reports the client health.
type DiagnosticsResponse struct {
	Phase     session.Phase          `json:"phase"`
	Signaling *signaling.Diagnostics `json:"signaling,omitempty"`
}

func callRecordToResponse(rec *store.CallRecord) CallRecordResponse {
	return CallRecordResponse{
		ID:         rec.ID,
		CallID:     rec.CallID,
		Role:       rec.Role,
		RemoteName: rec.RemoteName,
		EndReason:  rec.EndReason,
		Failure:    rec.Failure,
		Duration:   elapsed.Format(rec.Duration),
		StartedAt:  rec.StartedAt.Format(time.RFC3339),
		EndedAt:    rec.EndedAt.Format(time.RFC3339),
	}
}
