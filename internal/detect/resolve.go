package detect

import (
	"fmt"
	"sort"

	"github.com/scrubgate-ai/scrubgate/internal/entity"
)

// Resolve applies the confidence threshold and collapses overlapping spans
// into a final entity set.
//
// Entities below the threshold are erased entirely: they affect neither
// redaction nor the reject decision, exactly as if never detected. When two
// surviving spans intersect, the higher confidence wins; on a tie the longer
// span, then the earlier offset. The loser is discarded, not merged.
//
// The returned set is sorted ascending by offset and pairwise disjoint —
// the invariant every downstream component relies on.
func Resolve(raw []entity.Entity, threshold float64) ([]entity.Entity, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("confidence threshold must be within [0,1], got %v", threshold)
	}

	candidates := make([]entity.Entity, 0, len(raw))
	for _, e := range raw {
		if e.Offset < 0 || e.Length <= 0 {
			continue
		}
		if e.Confidence < threshold {
			continue
		}
		candidates = append(candidates, e)
	}

	// Rank by the overlap-resolution preference, then keep greedily: a span
	// survives only if it is disjoint from every higher-ranked survivor.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Length != b.Length {
			return a.Length > b.Length
		}
		return a.Offset < b.Offset
	})

	resolved := make([]entity.Entity, 0, len(candidates))
	for _, c := range candidates {
		if overlapsAny(c, resolved) {
			continue
		}
		resolved = append(resolved, c)
	}

	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].Offset < resolved[j].Offset
	})
	return resolved, nil
}

func overlapsAny(e entity.Entity, kept []entity.Entity) bool {
	for _, k := range kept {
		if e.Offset < k.End() && k.Offset < e.End() {
			return true
		}
	}
	return false
}
