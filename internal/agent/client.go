package agent

import (
	"context"
	"time"
)

// Run statuses reported by the agents service.
const (
	RunStatusQueued         = "queued"
	RunStatusInProgress     = "in_progress"
	RunStatusRequiresAction = "requires_action"
	RunStatusCompleted      = "completed"
	RunStatusFailed         = "failed"
	RunStatusCancelled      = "cancelled"
	RunStatusExpired        = "expired"
)

// Thread is a conversation context grouping messages and runs.
type Thread struct {
	ID        string
	CreatedAt time.Time
}

// Run is one execution of the agent against a thread's message history.
type Run struct {
	ID        string
	ThreadID  string
	Status    string
	LastError *RunError
}

// RunError carries the failure detail of a failed run.
type RunError struct {
	Code    string
	Message string
}

// Terminal reports whether the run has stopped progressing.
func (r *Run) Terminal() bool {
	switch r.Status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired:
		return true
	default:
		return false
	}
}

// Message is a thread message with its content blocks.
type Message struct {
	ID      string
	Role    string
	Content []MessageContent
}

// MessageContent is one content block; only text blocks carry annotations.
type MessageContent struct {
	Type string
	Text *MessageText
}

// MessageText is the text payload plus inline source annotations.
type MessageText struct {
	Value       string
	Annotations []MessageAnnotation
}

// MessageAnnotation is an inline source annotation on a text block.
type MessageAnnotation struct {
	Type        string
	Text        string
	StartIndex  int
	EndIndex    int
	URLCitation *URLCitation
}

// URLCitation resolves an annotation to a web source.
type URLCitation struct {
	URL   string
	Title string
}

// AgentSpec describes the agent to create on first use.
type AgentSpec struct {
	Name             string
	Model            string
	Instructions     string
	EnableGrounding  bool
	BingConnectionID string
}

// Client is the grounded-agent service boundary: agents, threads, messages,
// runs. Implementations do not retry; they surface one error per call.
type Client interface {
	CreateAgent(ctx context.Context, spec AgentSpec) (string, error)
	GetAgent(ctx context.Context, agentID string) error
	CreateThread(ctx context.Context) (*Thread, error)
	GetThread(ctx context.Context, threadID string) (*Thread, error)
	CreateMessage(ctx context.Context, threadID, role, content string) (string, error)
	CreateRun(ctx context.Context, threadID, agentID string) (*Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)
	ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error)
}
