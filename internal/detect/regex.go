package detect

import (
	"context"
	"regexp"

	"github.com/scrubgate-ai/scrubgate/internal/entity"
)

// regexDetector is the offline backend: a fixed pattern set for structured
// identifiers. It exists for development and air-gapped test environments;
// it has no notion of names or free-text PHI and is not a substitute for the
// hosted classifier.
type regexDetector struct {
	patterns []regexPattern
}

type regexPattern struct {
	re         *regexp.Regexp
	category   entity.Category
	confidence float64
	healthcare bool // only applied under the healthcare domain
}

// NewRegex creates the offline regex-backed Detector.
func NewRegex() Detector {
	return &regexDetector{
		patterns: []regexPattern{
			{
				re:         regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
				category:   entity.CategoryEmail,
				confidence: 0.99,
			},
			{
				re:         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
				category:   entity.CategorySSN,
				confidence: 0.9,
			},
			{
				re:         regexp.MustCompile(`\b(?:\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}\b`),
				category:   entity.CategoryPhoneNumber,
				confidence: 0.85,
			},
			{
				re:         regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
				category:   entity.CategoryIPAddress,
				confidence: 0.8,
			},
			{
				re:         regexp.MustCompile(`(?i)\bMRN[\s:#]*(\d{4,10})\b`),
				category:   entity.CategoryMedicalRecordNumber,
				confidence: 0.9,
				healthcare: true,
			},
		},
	}
}

func (d *regexDetector) Detect(_ context.Context, text string, domain Domain, _ string) ([]entity.Entity, error) {
	if _, err := ParseDomain(string(domain)); err != nil {
		return nil, err
	}

	var out []entity.Entity
	for _, p := range d.patterns {
		if p.healthcare && domain != DomainHealthcare {
			continue
		}
		for _, m := range d.matchSpans(p, text) {
			out = append(out, entity.Entity{
				Category:   p.category,
				Text:       text[m[0]:m[1]],
				Offset:     m[0],
				Length:     m[1] - m[0],
				Confidence: p.confidence,
			})
		}
	}
	return out, nil
}

// matchSpans returns [start,end) byte spans. Patterns with a capture group
// report the group span so prefixes like "MRN " stay out of the entity.
func (d *regexDetector) matchSpans(p regexPattern, text string) [][2]int {
	var spans [][2]int
	if p.re.NumSubexp() > 0 {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			if len(m) >= 4 && m[2] >= 0 {
				spans = append(spans, [2]int{m[2], m[3]})
			}
		}
		return spans
	}
	for _, m := range p.re.FindAllStringIndex(text, -1) {
		spans = append(spans, [2]int{m[0], m[1]})
	}
	return spans
}
