package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeClient is a scripted Client for tests.
type FakeClient struct {
	mu sync.Mutex

	// CreateAgentDelay widens the race window in get-or-create tests.
	CreateAgentDelay time.Duration
	CreateAgentErr   error

	// RunStatuses is consumed one status per GetRun call; the last value
	// repeats once exhausted. Defaults to an immediately completed run.
	RunStatuses []string
	RunErr      *RunError

	// Answer and Annotations script the assistant reply.
	Answer      string
	Annotations []MessageAnnotation

	GetThreadErr     error
	CreateMessageErr error

	agentsCreated int
	threadSeq     int
	runSeq        int
	statusIdx     int
	submitted     []string
	threadsUsed   []string
}

func (f *FakeClient) CreateAgent(ctx context.Context, _ AgentSpec) (string, error) {
	if f.CreateAgentDelay > 0 {
		select {
		case <-time.After(f.CreateAgentDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateAgentErr != nil {
		return "", f.CreateAgentErr
	}
	f.agentsCreated++
	return fmt.Sprintf("asst_%d", f.agentsCreated), nil
}

func (f *FakeClient) GetAgent(context.Context, string) error { return nil }

func (f *FakeClient) CreateThread(context.Context) (*Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threadSeq++
	id := fmt.Sprintf("thread_%d", f.threadSeq)
	f.threadsUsed = append(f.threadsUsed, id)
	return &Thread{ID: id, CreatedAt: time.Now()}, nil
}

func (f *FakeClient) GetThread(_ context.Context, threadID string) (*Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetThreadErr != nil {
		return nil, f.GetThreadErr
	}
	f.threadsUsed = append(f.threadsUsed, threadID)
	return &Thread{ID: threadID}, nil
}

func (f *FakeClient) CreateMessage(_ context.Context, threadID, _, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateMessageErr != nil {
		return "", f.CreateMessageErr
	}
	f.submitted = append(f.submitted, content)
	return fmt.Sprintf("msg_%d", len(f.submitted)), nil
}

func (f *FakeClient) CreateRun(_ context.Context, threadID, _ string) (*Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runSeq++
	return &Run{ID: fmt.Sprintf("run_%d", f.runSeq), ThreadID: threadID, Status: RunStatusQueued}, nil
}

func (f *FakeClient) GetRun(_ context.Context, threadID, runID string) (*Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	statuses := f.RunStatuses
	if len(statuses) == 0 {
		statuses = []string{RunStatusCompleted}
	}
	idx := f.statusIdx
	if idx >= len(statuses) {
		idx = len(statuses) - 1
	}
	f.statusIdx++
	run := &Run{ID: runID, ThreadID: threadID, Status: statuses[idx]}
	if run.Status == RunStatusFailed {
		run.LastError = f.RunErr
	}
	return run, nil
}

func (f *FakeClient) ListMessages(_ context.Context, threadID string, _ int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []Message{
		{
			ID:   "msg_assistant",
			Role: "assistant",
			Content: []MessageContent{
				{
					Type: "text",
					Text: &MessageText{Value: f.Answer, Annotations: f.Annotations},
				},
			},
		},
	}, nil
}

// AgentsCreated reports how many CreateAgent calls succeeded.
func (f *FakeClient) AgentsCreated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agentsCreated
}

// Submitted returns every message content sent through CreateMessage.
func (f *FakeClient) Submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.submitted))
	copy(out, f.submitted)
	return out
}

// ThreadsUsed returns the thread ids opened or reused, in order.
func (f *FakeClient) ThreadsUsed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.threadsUsed))
	copy(out, f.threadsUsed)
	return out
}
