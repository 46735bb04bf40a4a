// Package policy holds the redact-or-reject gate. It is pure and stateless:
// the same resolved entity set and mode always produce the same decision.
package policy

import (
	"fmt"

	"github.com/scrubgate-ai/scrubgate/internal/entity"
)

// Mode selects what happens when resolved entities remain in a query.
type Mode string

const (
	// ModeRedact forwards the redacted text downstream.
	ModeRedact Mode = "redact"
	// ModeReject declines to forward any query with surviving entities.
	ModeReject Mode = "reject"
)

// ParseMode maps a config string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRedact, ModeReject:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown policy mode %q (want redact or reject)", s)
	}
}

// Policy is the per-query snapshot of the tunable gate settings.
type Policy struct {
	Mode                Mode
	ConfidenceThreshold float64
}

// Validate rejects out-of-range settings before any processing starts.
func (p Policy) Validate() error {
	if _, err := ParseMode(string(p.Mode)); err != nil {
		return err
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be within [0,1], got %v", p.ConfidenceThreshold)
	}
	return nil
}

// Decision is the outcome of evaluating a resolved entity set.
type Decision struct {
	HasPII       bool
	ShouldReject bool
}

// Decide evaluates the gate exactly once for a query. Under reject mode any
// surviving entity declines the query; with none, reject behaves exactly
// like redact. Rejection is a business result, not a fault.
func Decide(mode Mode, resolved []entity.Entity) Decision {
	hasPII := len(resolved) > 0
	return Decision{
		HasPII:       hasPII,
		ShouldReject: hasPII && mode == ModeReject,
	}
}
