package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/scrubgate-ai/scrubgate/internal/agent"
	"github.com/scrubgate-ai/scrubgate/internal/detect"
	"github.com/scrubgate-ai/scrubgate/internal/entity"
	"github.com/scrubgate-ai/scrubgate/internal/policy"
)

// countingGrounder records every call; tests use it to prove rejected
// queries never reach the agent.
type countingGrounder struct {
	mu       sync.Mutex
	calls    int
	lastText string
	resp     *agent.GroundedResponse
	err      error
}

func (g *countingGrounder) Ground(_ context.Context, res *entity.DetectionResult, _ string) (*agent.GroundedResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastText = res.RedactedText
	if g.err != nil {
		return nil, g.err
	}
	if g.resp != nil {
		resp := *g.resp
		return &resp, nil
	}
	return &agent.GroundedResponse{Answer: "ok", ThreadID: "thread_1", RunID: "run_1"}, nil
}

func (g *countingGrounder) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func redactPolicy() policy.Policy {
	return policy.Policy{Mode: policy.ModeRedact, ConfidenceThreshold: 0.5}
}

func rejectPolicy() policy.Policy {
	return policy.Policy{Mode: policy.ModeReject, ConfidenceThreshold: 0.5}
}

func TestProcessRedacts(t *testing.T) {
	detector := &detect.Fake{Entities: []entity.Entity{
		{Category: entity.CategoryPerson, Text: "John Doe", Offset: 8, Length: 8, Confidence: 0.95},
	}}
	p := New(detector, nil, Options{Domain: detect.DomainHealthcare})

	res, err := p.Process(context.Background(), "Patient John Doe has diabetes.", redactPolicy())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.RedactedText != "Patient [PERSON] has diabetes." {
		t.Errorf("redacted = %q", res.RedactedText)
	}
	if !res.HasPII || res.ShouldReject {
		t.Errorf("decision = %+v, want redact", res)
	}
}

func TestProcessCleanText(t *testing.T) {
	p := New(&detect.Fake{}, nil, Options{})

	res, err := p.Process(context.Background(), "What is the capital of France?", rejectPolicy())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.HasPII || res.ShouldReject {
		t.Errorf("decision = %+v, want pass-through", res)
	}
	if res.RedactedText != res.OriginalText {
		t.Errorf("clean text was altered: %q", res.RedactedText)
	}
}

func TestProcessFailsClosedOnDetectionError(t *testing.T) {
	detector := &detect.Fake{Err: &detect.ServiceError{Status: 503, Message: "unavailable"}}
	p := New(detector, nil, Options{})

	_, err := p.Process(context.Background(), "anything", redactPolicy())
	var serr *detect.ServiceError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want ServiceError", err)
	}
}

func TestProcessInvalidPolicy(t *testing.T) {
	p := New(&detect.Fake{}, nil, Options{})
	if _, err := p.Process(context.Background(), "q", policy.Policy{Mode: "block", ConfidenceThreshold: 0.5}); err == nil {
		t.Error("invalid mode accepted")
	}
	if _, err := p.Process(context.Background(), "q", policy.Policy{Mode: policy.ModeRedact, ConfidenceThreshold: 1.5}); err == nil {
		t.Error("invalid threshold accepted")
	}
}

func TestGroundNeverSeesRejectedQuery(t *testing.T) {
	detector := &detect.Fake{Entities: []entity.Entity{
		{Category: entity.CategorySSN, Text: "123-45-6789", Offset: 10, Length: 11, Confidence: 0.99},
	}}
	grounder := &countingGrounder{}
	p := New(detector, grounder, Options{})

	res, resp, err := p.Query(context.Background(), "My SSN is 123-45-6789, what now?", "", rejectPolicy())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !res.ShouldReject {
		t.Fatalf("decision = %+v, want reject", res)
	}
	if resp != nil {
		t.Errorf("rejected query produced a grounded response")
	}
	if grounder.Calls() != 0 {
		t.Errorf("grounder called %d times for a rejected query", grounder.Calls())
	}

	// Direct Ground on a rejected result is refused too.
	if _, err := p.Ground(context.Background(), res, "", rejectPolicy()); !errors.Is(err, agent.ErrRejected) {
		t.Errorf("Ground err = %v, want ErrRejected", err)
	}
	if grounder.Calls() != 0 {
		t.Errorf("grounder reached through direct Ground")
	}
}

func TestGroundForwardsRedactedTextOnly(t *testing.T) {
	detector := &detect.Fake{Entities: []entity.Entity{
		{Category: entity.CategoryPerson, Text: "Jane Roe", Offset: 0, Length: 8, Confidence: 0.9},
	}}
	grounder := &countingGrounder{}
	p := New(detector, grounder, Options{})

	_, resp, err := p.Query(context.Background(), "Jane Roe needs treatment options.", "", redactPolicy())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp == nil {
		t.Fatal("no grounded response")
	}
	if strings.Contains(grounder.lastText, "Jane Roe") {
		t.Errorf("raw name crossed the boundary: %q", grounder.lastText)
	}
	if !strings.Contains(grounder.lastText, "[PERSON]") {
		t.Errorf("grounder saw %q, want placeholder", grounder.lastText)
	}
}

func TestGroundDisabled(t *testing.T) {
	p := New(&detect.Fake{}, nil, Options{})
	res := &entity.DetectionResult{OriginalText: "q", RedactedText: "q"}

	if _, err := p.Ground(context.Background(), res, "", redactPolicy()); !errors.Is(err, ErrGroundingDisabled) {
		t.Fatalf("err = %v, want ErrGroundingDisabled", err)
	}
}

func TestGroundPropagatesGroundingError(t *testing.T) {
	grounder := &countingGrounder{err: &agent.GroundingError{Stage: "run", Err: agent.ErrRunTimeout}}
	p := New(&detect.Fake{}, grounder, Options{})

	res, resp, err := p.Query(context.Background(), "clean query", "", redactPolicy())
	if resp != nil {
		t.Errorf("got response despite grounding failure")
	}
	if !errors.Is(err, agent.ErrRunTimeout) {
		t.Fatalf("err = %v, want ErrRunTimeout", err)
	}
	// The detection result survives so callers can report what was found.
	if res == nil {
		t.Error("detection result dropped on grounding failure")
	}
}

func TestScrubAnswer(t *testing.T) {
	detector := &detect.Fake{Func: func(text string) []entity.Entity {
		off := strings.Index(text, "John Doe")
		if off < 0 {
			return nil
		}
		return []entity.Entity{{Category: entity.CategoryPerson, Text: "John Doe", Offset: off, Length: 8, Confidence: 0.9}}
	}}
	grounder := &countingGrounder{resp: &agent.GroundedResponse{
		Answer:   "Sources mention John Doe was treated with metformin.",
		ThreadID: "thread_1",
		RunID:    "run_1",
	}}
	p := New(detector, grounder, Options{ScrubAnswers: true})

	_, resp, err := p.Query(context.Background(), "a clean question", "", redactPolicy())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if strings.Contains(resp.Answer, "John Doe") {
		t.Errorf("answer surfaced unscrubbed: %q", resp.Answer)
	}
	if !strings.Contains(resp.Answer, "[PERSON]") {
		t.Errorf("answer = %q, want placeholder", resp.Answer)
	}
}

func TestScrubFailureFailsQuery(t *testing.T) {
	// Second Detect call (the answer scrub) fails.
	failing := &scrubFailDetector{inner: &detect.Fake{}}
	grounder := &countingGrounder{}
	p := New(failing, grounder, Options{ScrubAnswers: true})

	_, resp, err := p.Query(context.Background(), "a clean question", "", redactPolicy())
	if err == nil {
		t.Fatal("scrub failure did not fail the query")
	}
	if resp != nil {
		t.Errorf("unchecked answer surfaced: %+v", resp)
	}
}

// scrubFailDetector succeeds on the first call and fails afterwards.
type scrubFailDetector struct {
	mu    sync.Mutex
	inner detect.Detector
	calls int
}

func (d *scrubFailDetector) Detect(ctx context.Context, text string, domain detect.Domain, language string) ([]entity.Entity, error) {
	d.mu.Lock()
	d.calls++
	n := d.calls
	d.mu.Unlock()
	if n > 1 {
		return nil, &detect.ServiceError{Status: 500, Message: "scripted scrub failure"}
	}
	return d.inner.Detect(ctx, text, domain, language)
}
