package detect

import (
	"testing"

	"github.com/scrubgate-ai/scrubgate/internal/entity"
)

func span(cat entity.Category, text string, offset int, confidence float64) entity.Entity {
	return entity.Entity{
		Category:   cat,
		Text:       text,
		Offset:     offset,
		Length:     len(text),
		Confidence: confidence,
	}
}

func TestResolveFiltersBelowThreshold(t *testing.T) {
	raw := []entity.Entity{
		span(entity.CategoryPerson, "John Doe", 8, 0.95),
		span(entity.CategoryMedicalRecordNumber, "12345", 23, 0.70),
	}

	resolved, err := Resolve(raw, 0.8)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("expected 1 surviving entity, got %d", len(resolved))
	}
	if resolved[0].Category != entity.CategoryPerson {
		t.Fatalf("wrong survivor: %+v", resolved[0])
	}
}

func TestResolveErasesSubThresholdEntirely(t *testing.T) {
	// Confidence 0.95 under threshold 0.99 behaves exactly as never detected.
	raw := []entity.Entity{span(entity.CategoryPerson, "John Doe", 0, 0.95)}
	resolved, err := Resolve(raw, 0.99)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(resolved) != 0 {
		t.Fatalf("expected empty set, got %d entities", len(resolved))
	}
}

func TestResolveRejectsBadThreshold(t *testing.T) {
	for _, threshold := range []float64{-0.1, 1.1} {
		if _, err := Resolve(nil, threshold); err == nil {
			t.Fatalf("threshold %v should be rejected", threshold)
		}
	}
}

func TestResolveOverlapPrefersHigherConfidence(t *testing.T) {
	raw := []entity.Entity{
		span(entity.CategoryPerson, "Dr. John Doe", 0, 0.85),
		span(entity.CategoryPerson, "John Doe", 4, 0.92),
	}
	resolved, err := Resolve(raw, 0.5)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(resolved) != 1 || resolved[0].Text != "John Doe" {
		t.Fatalf("expected the higher-confidence span to win, got %+v", resolved)
	}
}

func TestResolveOverlapTieBreaksByLengthThenOffset(t *testing.T) {
	cases := []struct {
		name string
		raw  []entity.Entity
		want string
	}{
		{
			name: "same confidence prefers longer span",
			raw: []entity.Entity{
				span(entity.CategoryPerson, "John", 4, 0.9),
				span(entity.CategoryPerson, "John Doe", 4, 0.9),
			},
			want: "John Doe",
		},
		{
			name: "same confidence and length prefers earlier offset",
			raw: []entity.Entity{
				span(entity.CategoryPerson, "ohn Does", 5, 0.9),
				span(entity.CategoryPerson, "John Doe", 4, 0.9),
			},
			want: "John Doe",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resolved, err := Resolve(tc.raw, 0.5)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if len(resolved) != 1 || resolved[0].Text != tc.want {
				t.Fatalf("expected winner %q, got %+v", tc.want, resolved)
			}
		})
	}
}

func TestResolveOutputSortedAndDisjoint(t *testing.T) {
	raw := []entity.Entity{
		span(entity.CategoryEmail, "a@b.org", 40, 0.99),
		span(entity.CategoryPerson, "John Doe", 8, 0.95),
		span(entity.CategoryPerson, "Doe", 13, 0.90),
		span(entity.CategoryMedicalRecordNumber, "12345", 23, 0.93),
	}
	resolved, err := Resolve(raw, 0.5)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for i := 1; i < len(resolved); i++ {
		prev, cur := resolved[i-1], resolved[i]
		if cur.Offset < prev.Offset {
			t.Fatalf("output not sorted by offset: %+v", resolved)
		}
		if cur.Offset < prev.End() {
			t.Fatalf("spans intersect: %+v and %+v", prev, cur)
		}
	}
	if len(resolved) != 3 {
		t.Fatalf("expected 3 disjoint survivors, got %d", len(resolved))
	}
}

func TestResolveThresholdMonotonicity(t *testing.T) {
	raw := []entity.Entity{
		span(entity.CategoryPerson, "John Doe", 8, 0.95),
		span(entity.CategoryMedicalRecordNumber, "12345", 23, 0.82),
		span(entity.CategoryEmail, "a@b.org", 40, 0.70),
		span(entity.CategoryPhoneNumber, "555-0199", 60, 0.55),
	}

	prevCount := len(raw) + 1
	for _, threshold := range []float64{0.0, 0.5, 0.6, 0.8, 0.9, 0.99, 1.0} {
		resolved, err := Resolve(raw, threshold)
		if err != nil {
			t.Fatalf("resolve at %v: %v", threshold, err)
		}
		if len(resolved) > prevCount {
			t.Fatalf("raising threshold to %v increased survivors: %d > %d", threshold, len(resolved), prevCount)
		}
		prevCount = len(resolved)
	}
}

func TestResolveDropsInvalidSpans(t *testing.T) {
	raw := []entity.Entity{
		{Category: entity.CategoryPerson, Text: "x", Offset: -1, Length: 1, Confidence: 0.9},
		{Category: entity.CategoryPerson, Text: "", Offset: 3, Length: 0, Confidence: 0.9},
	}
	resolved, err := Resolve(raw, 0.5)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(resolved) != 0 {
		t.Fatalf("invalid spans should be dropped, got %+v", resolved)
	}
}
