// Package audit records what the gateway decided about each query without
// recording the query. Events carry category counts, decisions, and timings;
// raw text and entity values never enter an event, so the trail itself can
// never become a PHI store.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/scrubgate-ai/scrubgate/internal/entity"
	"github.com/scrubgate-ai/scrubgate/internal/policy"
	"github.com/scrubgate-ai/scrubgate/internal/redact"
)

// Decision is the outcome of a query from the gateway's perspective.
type Decision string

const (
	DecisionAllowed        Decision = "allowed"
	DecisionRedacted       Decision = "redacted"
	DecisionRejected       Decision = "rejected"
	DecisionErrorDetection Decision = "error_detection"
	DecisionErrorGrounding Decision = "error_grounding"
)

// Grounding summarizes the agent stage of a query, when it ran.
type Grounding struct {
	Used      bool   `json:"used"`
	Citations int    `json:"citations"`
	ThreadID  string `json:"thread_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// Timing carries stage latencies in milliseconds.
type Timing struct {
	DetectionMs float64 `json:"detection_ms"`
	GroundingMs float64 `json:"grounding_ms,omitempty"`
	TotalMs     float64 `json:"total_ms"`
}

// Event is the canonical audit payload. Metadata only.
type Event struct {
	Version   string    `json:"version"`
	EventID   string    `json:"event_id"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	ClientID  string   `json:"client_id,omitempty"`
	Decision  Decision `json:"decision"`
	Mode      string   `json:"mode"`
	Threshold float64  `json:"threshold"`
	Domain    string   `json:"domain"`

	HasPII       bool           `json:"has_pii"`
	EntityCounts map[string]int `json:"entity_counts,omitempty"`

	Grounding *Grounding `json:"grounding,omitempty"`
	Timing    Timing     `json:"timing_ms"`

	// Error holds a redacted failure summary for error decisions.
	Error string `json:"error,omitempty"`
}

// BuildParams collects the inputs for one audit event.
type BuildParams struct {
	RequestID string
	ClientID  string
	Policy    policy.Policy
	Domain    string
	Result    *entity.DetectionResult
	Grounding *Grounding
	Timing    Timing
	Err       error
}

// BuildEvent assembles an event. The detection result contributes only its
// decision flags and category counts; its text fields are never read.
func BuildEvent(decision Decision, p BuildParams) *Event {
	ev := &Event{
		Version:   "1",
		EventID:   uuid.NewString(),
		RequestID: p.RequestID,
		Timestamp: time.Now().UTC(),
		ClientID:  p.ClientID,
		Decision:  decision,
		Mode:      string(p.Policy.Mode),
		Threshold: p.Policy.ConfidenceThreshold,
		Domain:    p.Domain,
		Grounding: p.Grounding,
		Timing:    p.Timing,
	}
	if p.Result != nil {
		ev.HasPII = p.Result.HasPII
		if counts := p.Result.Summary(); len(counts) > 0 {
			ev.EntityCounts = counts
		}
	}
	if p.Err != nil {
		ev.Error = redact.String(p.Err.Error())
	}
	return ev
}

// LogEvent prints a redacted JSON representation of the event.
func LogEvent(ev *Event) {
	if ev == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		redact.Logf("audit: failed to marshal event: %v", err)
		return
	}
	redact.Logf("audit: %s", string(data))
}
