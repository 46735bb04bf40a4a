package detect

import (
	"strings"
	"testing"

	"github.com/scrubgate-ai/scrubgate/internal/entity"
)

func TestRenderIdentityOnEmptySet(t *testing.T) {
	original := "What are the latest treatments for diabetes?"
	if got := Render(original, nil); got != original {
		t.Fatalf("identity law violated: %q", got)
	}
	if got := Render(original, []entity.Entity{}); got != original {
		t.Fatalf("identity law violated for empty slice: %q", got)
	}
}

func TestRenderReplacesSpansWithPlaceholders(t *testing.T) {
	original := "Patient John Doe, MRN 12345, has diabetes."
	entities := []entity.Entity{
		span(entity.CategoryPerson, "John Doe", 8, 0.95),
		span(entity.CategoryMedicalRecordNumber, "12345", 22, 0.93),
	}

	got := Render(original, entities)
	want := "Patient [PERSON], MRN [MEDICALRECORDNUMBER], has diabetes."
	if got != want {
		t.Fatalf("render mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestRenderRemovesEntityTextAndKeepsRest(t *testing.T) {
	original := "Contact jane.doe@example.org or call 555-0199 about John Doe."
	entities := []entity.Entity{
		span(entity.CategoryEmail, "jane.doe@example.org", 8, 0.99),
		span(entity.CategoryPhoneNumber, "555-0199", 37, 0.9),
		span(entity.CategoryPerson, "John Doe", 52, 0.95),
	}

	got := Render(original, entities)
	for _, e := range entities {
		if strings.Contains(got, e.Text) {
			t.Fatalf("entity text %q survived redaction: %q", e.Text, got)
		}
	}
	for _, keep := range []string{"Contact ", " or call ", " about ", "."} {
		if !strings.Contains(got, keep) {
			t.Fatalf("non-entity text %q lost: %q", keep, got)
		}
	}
}

func TestRenderAdjacentSpans(t *testing.T) {
	original := "ab"
	entities := []entity.Entity{
		span(entity.CategoryPerson, "a", 0, 0.9),
		span(entity.CategoryOrganization, "b", 1, 0.9),
	}
	got := Render(original, entities)
	if got != "[PERSON][ORGANIZATION]" {
		t.Fatalf("adjacent spans rendered wrong: %q", got)
	}
}

func TestRenderMultiByteText(t *testing.T) {
	original := "Müller besucht Café — MRN 998877."
	mrnOffset := strings.Index(original, "998877")
	entities := []entity.Entity{
		span(entity.CategoryPerson, "Müller", 0, 0.95),
		span(entity.CategoryMedicalRecordNumber, "998877", mrnOffset, 0.9),
	}
	got := Render(original, entities)
	if strings.Contains(got, "Müller") || strings.Contains(got, "998877") {
		t.Fatalf("entities survived: %q", got)
	}
	if !strings.Contains(got, "[PERSON]") || !strings.Contains(got, "[MEDICALRECORDNUMBER]") {
		t.Fatalf("placeholders missing: %q", got)
	}
	if !strings.Contains(got, "besucht Café — MRN") {
		t.Fatalf("surrounding multi-byte text damaged: %q", got)
	}
}
