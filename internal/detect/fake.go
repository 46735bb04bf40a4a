package detect

import (
	"context"
	"sync"

	"github.com/scrubgate-ai/scrubgate/internal/entity"
)

// Fake is a scripted Detector for tests.
type Fake struct {
	mu       sync.Mutex
	Entities []entity.Entity
	Err      error
	// Func, when set, overrides Entities with a per-text script.
	Func func(text string) []entity.Entity

	calls    int
	lastText string
}

func (f *Fake) Detect(_ context.Context, text string, _ Domain, _ string) ([]entity.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastText = text
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Func != nil {
		return f.Func(text), nil
	}
	out := make([]entity.Entity, len(f.Entities))
	copy(out, f.Entities)
	return out, nil
}

// Calls reports how many times Detect ran.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastText returns the most recent text passed to Detect.
func (f *Fake) LastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastText
}
