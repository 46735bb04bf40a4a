package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/scrubgate-ai/scrubgate/internal/entity"
)

func redactedResult(redacted string) *entity.DetectionResult {
	return &entity.DetectionResult{
		OriginalText: "original with secrets",
		RedactedText: redacted,
		HasPII:       true,
	}
}

func TestGroundSubmitsRedactedTextOnly(t *testing.T) {
	fake := &FakeClient{Answer: "an answer"}
	o := New(fake, Config{Spec: AgentSpec{Name: "assistant", Model: "gpt-4o"}, PollInterval: time.Millisecond})

	res := redactedResult("Patient [PERSON] asked about diabetes.")
	resp, err := o.Ground(context.Background(), res, "")
	if err != nil {
		t.Fatalf("Ground: %v", err)
	}
	if resp.Answer != "an answer" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.ThreadID == "" || resp.RunID == "" {
		t.Errorf("missing ids: thread=%q run=%q", resp.ThreadID, resp.RunID)
	}

	submitted := fake.Submitted()
	if len(submitted) != 1 {
		t.Fatalf("submitted %d messages, want 1", len(submitted))
	}
	if !strings.HasPrefix(submitted[0], res.RedactedText) {
		t.Errorf("submitted %q, want redacted text prefix", submitted[0])
	}
	if strings.Contains(submitted[0], res.OriginalText) {
		t.Errorf("original text leaked into submission: %q", submitted[0])
	}
}

func TestGroundAppendsNudge(t *testing.T) {
	fake := &FakeClient{Answer: "ok"}
	o := New(fake, Config{Nudge: true, PollInterval: time.Millisecond})

	if _, err := o.Ground(context.Background(), redactedResult("[PERSON] query"), ""); err != nil {
		t.Fatalf("Ground: %v", err)
	}
	got := fake.Submitted()[0]
	if !strings.HasSuffix(got, groundingNudge) {
		t.Errorf("submitted %q, want nudge suffix", got)
	}
	if !strings.HasPrefix(got, "[PERSON] query") {
		t.Errorf("submitted %q, want redacted prefix", got)
	}
}

func TestGroundRefusesRejectedResult(t *testing.T) {
	fake := &FakeClient{Answer: "should never happen"}
	o := New(fake, Config{})

	res := redactedResult("[SSN]")
	res.ShouldReject = true

	_, err := o.Ground(context.Background(), res, "")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if len(fake.Submitted()) != 0 {
		t.Errorf("rejected query reached the agent service: %v", fake.Submitted())
	}
	if fake.AgentsCreated() != 0 {
		t.Errorf("rejected query created an agent")
	}
}

func TestEnsureAgentCreatesOnce(t *testing.T) {
	fake := &FakeClient{Answer: "ok", CreateAgentDelay: 10 * time.Millisecond}
	o := New(fake, Config{})

	const n = 16
	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := o.ensureAgent(context.Background())
			if err != nil {
				t.Errorf("ensureAgent: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	if got := fake.AgentsCreated(); got != 1 {
		t.Fatalf("created %d agents, want 1", got)
	}
	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Errorf("ids[%d] = %q, ids[0] = %q", i, ids[i], ids[0])
		}
	}
}

func TestEnsureAgentReusesConfiguredID(t *testing.T) {
	fake := &FakeClient{}
	o := New(fake, Config{AgentID: "asst_existing"})

	id, err := o.ensureAgent(context.Background())
	if err != nil {
		t.Fatalf("ensureAgent: %v", err)
	}
	if id != "asst_existing" {
		t.Errorf("id = %q", id)
	}
	if fake.AgentsCreated() != 0 {
		t.Errorf("created an agent despite configured id")
	}
}

func TestGroundRunTimeout(t *testing.T) {
	fake := &FakeClient{RunStatuses: []string{RunStatusInProgress}}
	o := New(fake, Config{RunTimeout: 30 * time.Millisecond, PollInterval: 5 * time.Millisecond})

	_, err := o.Ground(context.Background(), redactedResult("q"), "")
	if !errors.Is(err, ErrRunTimeout) {
		t.Fatalf("err = %v, want ErrRunTimeout", err)
	}
	var gerr *GroundingError
	if !errors.As(err, &gerr) || gerr.Stage != "run" {
		t.Errorf("err = %v, want GroundingError at run stage", err)
	}
}

func TestGroundFailedRun(t *testing.T) {
	fake := &FakeClient{
		RunStatuses: []string{RunStatusInProgress, RunStatusFailed},
		RunErr:      &RunError{Code: "server_error", Message: "tool crashed"},
	}
	o := New(fake, Config{RunTimeout: time.Second, PollInterval: time.Millisecond})

	_, err := o.Ground(context.Background(), redactedResult("q"), "")
	var gerr *GroundingError
	if !errors.As(err, &gerr) {
		t.Fatalf("err = %v, want GroundingError", err)
	}
	if gerr.Stage != "run" {
		t.Errorf("stage = %q, want run", gerr.Stage)
	}
	if !strings.Contains(err.Error(), "tool crashed") {
		t.Errorf("error %q missing run failure detail", err)
	}
}

func TestGroundThreadBusy(t *testing.T) {
	o := New(&FakeClient{}, Config{})
	if err := o.threads.acquire("thread_7"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer o.threads.release("thread_7")

	_, err := o.Ground(context.Background(), redactedResult("q"), "thread_7")
	if !errors.Is(err, ErrThreadBusy) {
		t.Fatalf("err = %v, want ErrThreadBusy", err)
	}
}

func TestGroundReleasesThreadAfterRun(t *testing.T) {
	fake := &FakeClient{Answer: "ok"}
	o := New(fake, Config{PollInterval: time.Millisecond})

	resp, err := o.Ground(context.Background(), redactedResult("first"), "")
	if err != nil {
		t.Fatalf("first Ground: %v", err)
	}

	// Reusing the thread must succeed once the first run is done.
	fake.statusIdx = 0
	if _, err := o.Ground(context.Background(), redactedResult("second"), resp.ThreadID); err != nil {
		t.Fatalf("second Ground on %s: %v", resp.ThreadID, err)
	}
	if got := len(fake.Submitted()); got != 2 {
		t.Errorf("submitted %d messages, want 2", got)
	}
}

func TestGroundContinuesExistingThread(t *testing.T) {
	fake := &FakeClient{Answer: "ok"}
	o := New(fake, Config{PollInterval: time.Millisecond})

	if _, err := o.Ground(context.Background(), redactedResult("q"), "thread_prior"); err != nil {
		t.Fatalf("Ground: %v", err)
	}
	used := fake.ThreadsUsed()
	if len(used) != 1 || used[0] != "thread_prior" {
		t.Errorf("threads used = %v, want [thread_prior]", used)
	}
}

func TestGroundThreadLookupFailure(t *testing.T) {
	fake := &FakeClient{GetThreadErr: &ServiceError{Status: 404, Message: "thread not found"}}
	o := New(fake, Config{})

	_, err := o.Ground(context.Background(), redactedResult("q"), "thread_gone")
	var gerr *GroundingError
	if !errors.As(err, &gerr) || gerr.Stage != "thread" {
		t.Fatalf("err = %v, want GroundingError at thread stage", err)
	}
}

func TestGroundCitations(t *testing.T) {
	fake := &FakeClient{
		Answer: "Diabetes affects millions【1†source】 worldwide.",
		Annotations: []MessageAnnotation{
			{
				Type:        "url_citation",
				Text:        "【1†source】",
				StartIndex:  25,
				EndIndex:    35,
				URLCitation: &URLCitation{URL: "https://example.org/diabetes", Title: "Diabetes facts"},
			},
		},
	}
	o := New(fake, Config{PollInterval: time.Millisecond})

	resp, err := o.Ground(context.Background(), redactedResult("q"), "")
	if err != nil {
		t.Fatalf("Ground: %v", err)
	}
	if !resp.GroundingUsed {
		t.Errorf("GroundingUsed = false with citations present")
	}
	if len(resp.Citations) != 1 || resp.Citations[0].URL != "https://example.org/diabetes" {
		t.Errorf("citations = %+v", resp.Citations)
	}
	if strings.Contains(resp.Answer, "【1†source】") {
		t.Errorf("marker survived in answer: %q", resp.Answer)
	}
}

func TestGroundNoCitations(t *testing.T) {
	fake := &FakeClient{Answer: "A plain answer."}
	o := New(fake, Config{PollInterval: time.Millisecond})

	resp, err := o.Ground(context.Background(), redactedResult("q"), "")
	if err != nil {
		t.Fatalf("Ground: %v", err)
	}
	if resp.GroundingUsed {
		t.Errorf("GroundingUsed = true without citations")
	}
	if len(resp.Citations) != 0 {
		t.Errorf("citations = %+v, want none", resp.Citations)
	}
}
