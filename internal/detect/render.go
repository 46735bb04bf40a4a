package detect

import (
	"sort"

	"github.com/scrubgate-ai/scrubgate/internal/entity"
)

// Render rewrites original, replacing each entity span with its category
// placeholder. Entities must be the output of Resolve (disjoint, offsets
// valid for original). Spans are rewritten in descending offset order so the
// offsets of not-yet-processed entities stay valid while placeholder lengths
// differ from span lengths. With no entities the original text is returned
// unchanged.
func Render(original string, entities []entity.Entity) string {
	if len(entities) == 0 {
		return original
	}

	sorted := make([]entity.Entity, len(entities))
	copy(sorted, entities)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset > sorted[j].Offset
	})

	out := original
	for _, e := range sorted {
		if !e.Valid(original) {
			continue
		}
		out = out[:e.Offset] + e.Category.Placeholder() + out[e.End():]
	}
	return out
}
