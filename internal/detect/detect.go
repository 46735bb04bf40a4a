package detect

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrubgate-ai/scrubgate/internal/entity"
)

// Domain narrows detection to a category set supported by the classifier.
type Domain string

const (
	DomainGeneral    Domain = "general"
	DomainHealthcare Domain = "healthcare"
)

// ParseDomain maps a config string onto a Domain.
func ParseDomain(s string) (Domain, error) {
	switch Domain(s) {
	case DomainGeneral, DomainHealthcare:
		return Domain(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDomain, s)
	}
}

// Detector is the entity-detection boundary: an opaque external span
// classifier. It returns raw candidate entities with byte offsets into text;
// confidence filtering and overlap resolution happen downstream in Resolve.
// Results are not guaranteed bit-identical across calls on ambiguous text.
// Detectors do not retry; retry policy belongs to the caller.
type Detector interface {
	Detect(ctx context.Context, text string, domain Domain, language string) ([]entity.Entity, error)
}

// ErrUnsupportedDomain indicates the configured endpoint does not support the
// requested domain filter. A configuration fault, not a transient one.
var ErrUnsupportedDomain = errors.New("unsupported domain filter")

// ServiceError is a transient failure at the detection service boundary
// (unreachable, throttled, auth rejected). Recoverable by caller-level retry.
type ServiceError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("detection service error: %s (status=%d code=%s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("detection service error: %s (status=%d)", e.Message, e.Status)
}
