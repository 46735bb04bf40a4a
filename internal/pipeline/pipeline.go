// Package pipeline chains the stages of a query: detect, resolve, redact,
// decide, then optionally ground the approved text with the external agent.
// The policy boundary lives here: raw query text never travels past Process,
// and a rejected result never reaches the grounder.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrubgate-ai/scrubgate/internal/agent"
	"github.com/scrubgate-ai/scrubgate/internal/detect"
	"github.com/scrubgate-ai/scrubgate/internal/entity"
	"github.com/scrubgate-ai/scrubgate/internal/policy"
)

// ErrGroundingDisabled marks a grounded-query attempt on a pipeline built
// without a grounder.
var ErrGroundingDisabled = errors.New("grounding is not enabled")

// Grounder forwards a policy-approved detection result to the external agent.
type Grounder interface {
	Ground(ctx context.Context, res *entity.DetectionResult, threadID string) (*agent.GroundedResponse, error)
}

// Options are the per-pipeline detection settings shared by every query.
type Options struct {
	Domain   detect.Domain
	Language string
	// ScrubAnswers runs detection over agent answers too, redacting any
	// PII/PHI a web source echoed back. Scrub failures fail the query: an
	// answer that cannot be checked is never surfaced.
	ScrubAnswers bool
}

// Pipeline runs queries through detection and, when configured, grounding.
type Pipeline struct {
	detector detect.Detector
	grounder Grounder
	opts     Options
}

// New builds a Pipeline. grounder may be nil when grounding is disabled;
// Process still works and Ground fails with ErrGroundingDisabled.
func New(detector detect.Detector, grounder Grounder, opts Options) *Pipeline {
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.Domain == "" {
		opts.Domain = detect.DomainGeneral
	}
	return &Pipeline{detector: detector, grounder: grounder, opts: opts}
}

// Process runs the detection stage: classify, filter and resolve spans,
// render the redacted text, and take the policy decision. Detection failures
// fail the query; no text is ever forwarded unexamined.
func (p *Pipeline) Process(ctx context.Context, query string, pol policy.Policy) (*entity.DetectionResult, error) {
	if err := pol.Validate(); err != nil {
		return nil, err
	}

	raw, err := p.detector.Detect(ctx, query, p.opts.Domain, p.opts.Language)
	if err != nil {
		return nil, err
	}
	resolved, err := detect.Resolve(raw, pol.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}

	decision := policy.Decide(pol.Mode, resolved)
	return &entity.DetectionResult{
		OriginalText: query,
		RedactedText: detect.Render(query, resolved),
		Entities:     resolved,
		HasPII:       decision.HasPII,
		ShouldReject: decision.ShouldReject,
	}, nil
}

// Ground forwards a processed result to the agent and returns its answer.
// Rejected results are refused here as well as in the orchestrator: the
// gate holds even if a caller skips the decision check. threadID continues
// an existing conversation; empty starts a new one.
func (p *Pipeline) Ground(ctx context.Context, res *entity.DetectionResult, threadID string, pol policy.Policy) (*agent.GroundedResponse, error) {
	if res == nil {
		return nil, errors.New("nil detection result")
	}
	if res.ShouldReject {
		return nil, agent.ErrRejected
	}
	if p.grounder == nil {
		return nil, ErrGroundingDisabled
	}

	resp, err := p.grounder.Ground(ctx, res, threadID)
	if err != nil {
		return nil, err
	}

	if p.opts.ScrubAnswers && resp.Answer != "" {
		scrubbed, err := p.scrubAnswer(ctx, resp.Answer, pol.ConfidenceThreshold)
		if err != nil {
			return nil, fmt.Errorf("scrub answer: %w", err)
		}
		resp.Answer = scrubbed
	}
	return resp, nil
}

// Query is the full grounded flow: Process then, unless rejected, Ground.
// On rejection both return values are set: the result carries the decision
// and err is nil, matching the rejection-is-not-an-error contract.
func (p *Pipeline) Query(ctx context.Context, query, threadID string, pol policy.Policy) (*entity.DetectionResult, *agent.GroundedResponse, error) {
	res, err := p.Process(ctx, query, pol)
	if err != nil {
		return nil, nil, err
	}
	if res.ShouldReject {
		return res, nil, nil
	}
	resp, err := p.Ground(ctx, res, threadID, pol)
	if err != nil {
		return res, nil, err
	}
	return res, resp, nil
}

// scrubAnswer redacts the agent answer with the same detector. Answers are
// always redacted, never rejected.
func (p *Pipeline) scrubAnswer(ctx context.Context, answer string, threshold float64) (string, error) {
	raw, err := p.detector.Detect(ctx, answer, p.opts.Domain, p.opts.Language)
	if err != nil {
		return "", err
	}
	resolved, err := detect.Resolve(raw, threshold)
	if err != nil {
		return "", err
	}
	return detect.Render(answer, resolved), nil
}
