package entity

import (
	"fmt"
	"sort"
	"strings"
)

// Category classifies a detected PII/PHI span. The set is open: the external
// classifier may return categories beyond the constants below.
type Category string

const (
	CategoryPerson              Category = "Person"
	CategoryPersonType          Category = "PersonType"
	CategoryPhoneNumber         Category = "PhoneNumber"
	CategoryOrganization        Category = "Organization"
	CategoryAddress             Category = "Address"
	CategoryEmail               Category = "Email"
	CategoryURL                 Category = "URL"
	CategoryIPAddress           Category = "IPAddress"
	CategoryDateTime            Category = "DateTime"
	CategoryAge                 Category = "Age"
	CategorySSN                 Category = "USSocialSecurityNumber"
	CategoryMedicalRecordNumber Category = "MedicalRecordNumber"
)

// Placeholder returns the redaction token for this category,
// e.g. Person -> "[PERSON]".
func (c Category) Placeholder() string {
	return "[" + strings.ToUpper(string(c)) + "]"
}

// Entity is a detected PII/PHI span. Offsets are byte offsets into the
// original UTF-8 text; adapters convert from whatever unit the classifier
// reports before an Entity is constructed. Immutable once created.
type Entity struct {
	Category    Category `json:"category"`
	Subcategory string   `json:"subcategory,omitempty"`
	Text        string   `json:"text"`
	Offset      int      `json:"offset"`
	Length      int      `json:"length"`
	Confidence  float64  `json:"confidence_score"`
}

// End returns the byte offset one past the span.
func (e Entity) End() int {
	return e.Offset + e.Length
}

// Valid reports whether the span lies inside text and has positive length.
func (e Entity) Valid(text string) bool {
	return e.Offset >= 0 && e.Length > 0 && e.End() <= len(text)
}

// DetectionResult is the terminal artifact of the detection/redaction stage.
// Entities is sorted ascending by offset and pairwise disjoint.
type DetectionResult struct {
	OriginalText string   `json:"original_text"`
	RedactedText string   `json:"redacted_text"`
	Entities     []Entity `json:"entities"`
	HasPII       bool     `json:"has_pii"`
	ShouldReject bool     `json:"should_reject"`
}

// Summary maps category name to the number of detected entities.
func (r *DetectionResult) Summary() map[string]int {
	summary := make(map[string]int, len(r.Entities))
	for _, e := range r.Entities {
		summary[string(e.Category)]++
	}
	return summary
}

// SummaryLines renders the summary sorted by category, one bullet per line.
func (r *DetectionResult) SummaryLines() string {
	summary := r.Summary()
	if len(summary) == 0 {
		return "No PII/PHI detected"
	}
	categories := make([]string, 0, len(summary))
	for c := range summary {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	lines := make([]string, 0, len(categories))
	for _, c := range categories {
		lines = append(lines, fmt.Sprintf("- %s: %d", c, summary[c]))
	}
	return strings.Join(lines, "\n")
}

// Highlight returns the original text with each detected span wrapped in a
// markdown marker carrying its category. Spans are rewritten in descending
// offset order so earlier offsets stay valid while the string grows.
func (r *DetectionResult) Highlight() string {
	if len(r.Entities) == 0 {
		return r.OriginalText
	}

	sorted := make([]Entity, len(r.Entities))
	copy(sorted, r.Entities)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset > sorted[j].Offset
	})

	out := r.OriginalText
	for _, e := range sorted {
		if !e.Valid(r.OriginalText) {
			continue
		}
		span := out[e.Offset:e.End()]
		out = out[:e.Offset] + "**[" + span + "](" + string(e.Category) + ")**" + out[e.End():]
	}
	return out
}
