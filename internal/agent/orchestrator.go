package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/scrubgate-ai/scrubgate/internal/citation"
	"github.com/scrubgate-ai/scrubgate/internal/entity"
	"github.com/scrubgate-ai/scrubgate/internal/redact"
)

// groundingNudge is appended to submitted messages when configured, after
// redaction, so it never disturbs span offsets.
const groundingNudge = "\n\nPlease search the web for current information to provide an accurate, up-to-date response."

// GroundedResponse is the terminal artifact of a grounded query.
type GroundedResponse struct {
	Answer        string              `json:"answer"`
	Citations     []citation.Citation `json:"citations"`
	ThreadID      string              `json:"thread_id"`
	RunID         string              `json:"run_id"`
	GroundingUsed bool                `json:"grounding_used"`
}

// Config holds the orchestrator's lifecycle settings.
type Config struct {
	// AgentID reuses an existing agent; empty means create on first use.
	AgentID      string
	Spec         AgentSpec
	RunTimeout   time.Duration
	PollInterval time.Duration
	// Nudge appends a web-search encouragement to every submitted message.
	Nudge bool
}

// Orchestrator owns agent and thread lifecycle for grounded queries. The
// agent resource is created at most once per process and reused; threads are
// per query unless the caller supplies one to continue a conversation.
type Orchestrator struct {
	client Client
	cfg    Config

	mu      sync.Mutex
	agentID string

	threads threadGuard
}

// New creates an Orchestrator over the given agents service client.
func New(client Client, cfg Config) *Orchestrator {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Orchestrator{
		client:  client,
		cfg:     cfg,
		agentID: cfg.AgentID,
		threads: threadGuard{inflight: map[string]struct{}{}},
	}
}

// ensureAgent returns the reusable agent id, creating the agent on first
// use. Concurrent first callers are serialized so exactly one creation call
// happens; losers observe the winner's agent.
func (o *Orchestrator) ensureAgent(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.agentID != "" {
		return o.agentID, nil
	}
	id, err := o.client.CreateAgent(ctx, o.cfg.Spec)
	if err != nil {
		return "", err
	}
	o.agentID = id
	redact.Logf("agent created: id=%s name=%s", id, o.cfg.Spec.Name)
	return id, nil
}

// Ground submits the policy-approved text of res on a thread and drives the
// run to completion. Only the redacted text ever crosses this boundary.
// A rejected result is refused outright with ErrRejected.
func (o *Orchestrator) Ground(ctx context.Context, res *entity.DetectionResult, threadID string) (*GroundedResponse, error) {
	if res == nil {
		return nil, &GroundingError{Stage: "submit", Err: errors.New("nil detection result")}
	}
	if res.ShouldReject {
		return nil, ErrRejected
	}

	agentID, err := o.ensureAgent(ctx)
	if err != nil {
		return nil, &GroundingError{Stage: "agent", Err: err}
	}

	thread, err := o.openThread(ctx, threadID)
	if err != nil {
		return nil, &GroundingError{Stage: "thread", Err: err}
	}

	if err := o.threads.acquire(thread.ID); err != nil {
		return nil, err
	}
	defer o.threads.release(thread.ID)

	text := res.RedactedText
	if o.cfg.Nudge {
		text += groundingNudge
	}

	if _, err := o.client.CreateMessage(ctx, thread.ID, "user", text); err != nil {
		return nil, &GroundingError{Stage: "message", Err: err}
	}

	run, err := o.client.CreateRun(ctx, thread.ID, agentID)
	if err != nil {
		return nil, &GroundingError{Stage: "run", Err: err}
	}

	run, err = o.awaitRun(ctx, thread.ID, run)
	if err != nil {
		return nil, err
	}

	answer, anns, err := o.collectAnswer(ctx, thread.ID)
	if err != nil {
		return nil, err
	}

	cleaned, citations := citation.Extract(answer, anns)
	return &GroundedResponse{
		Answer:        cleaned,
		Citations:     citations,
		ThreadID:      thread.ID,
		RunID:         run.ID,
		GroundingUsed: len(citations) > 0,
	}, nil
}

func (o *Orchestrator) openThread(ctx context.Context, threadID string) (*Thread, error) {
	if threadID != "" {
		return o.client.GetThread(ctx, threadID)
	}
	return o.client.CreateThread(ctx)
}

// awaitRun polls until the run reaches a terminal state or the bound
// expires. Tool invocations (requires_action for the grounding tool) are
// handled by the service itself; they just extend the wait.
func (o *Orchestrator) awaitRun(ctx context.Context, threadID string, run *Run) (*Run, error) {
	deadline := time.Now().Add(o.cfg.RunTimeout)
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for !run.Terminal() {
		if time.Now().After(deadline) {
			return nil, &GroundingError{Stage: "run", Err: ErrRunTimeout}
		}
		select {
		case <-ctx.Done():
			return nil, &GroundingError{Stage: "run", Err: ctx.Err()}
		case <-ticker.C:
		}

		next, err := o.client.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return nil, &GroundingError{Stage: "run", Err: err}
		}
		run = next
	}

	if run.Status != RunStatusCompleted {
		err := fmt.Errorf("run ended with status %s", run.Status)
		if run.LastError != nil {
			err = fmt.Errorf("run ended with status %s: %s (%s)", run.Status, run.LastError.Message, run.LastError.Code)
		}
		return nil, &GroundingError{Stage: "run", Err: err}
	}
	return run, nil
}

// collectAnswer finds the latest assistant message and gathers its text and
// source annotations.
func (o *Orchestrator) collectAnswer(ctx context.Context, threadID string) (string, []citation.Annotation, error) {
	messages, err := o.client.ListMessages(ctx, threadID, 20)
	if err != nil {
		return "", nil, &GroundingError{Stage: "answer", Err: err}
	}

	for _, msg := range messages {
		if msg.Role != "assistant" {
			continue
		}
		var answer string
		var anns []citation.Annotation
		for _, content := range msg.Content {
			if content.Text == nil {
				continue
			}
			answer += content.Text.Value
			for _, a := range content.Text.Annotations {
				if a.URLCitation == nil {
					continue
				}
				anns = append(anns, citation.Annotation{
					Text:       a.Text,
					URL:        a.URLCitation.URL,
					Title:      a.URLCitation.Title,
					StartIndex: a.StartIndex,
				})
			}
		}
		if answer != "" {
			return answer, anns, nil
		}
	}
	return "", nil, &GroundingError{Stage: "answer", Err: errors.New("no assistant response on thread")}
}

// threadGuard enforces at most one in-flight run per thread. A second
// submission while a run is active fails fast instead of interleaving.
type threadGuard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func (g *threadGuard) acquire(threadID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[threadID]; busy {
		return ErrThreadBusy
	}
	g.inflight[threadID] = struct{}{}
	return nil
}

func (g *threadGuard) release(threadID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, threadID)
}
