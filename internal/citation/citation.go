// Package citation turns inline source annotations from an agent answer into
// a deduplicated, ordered citation list.
package citation

import (
	"sort"
	"strings"
)

// Citation is a structured source reference backing part of an answer.
// Position is the byte index of the citation's first appearance in the raw
// answer text.
type Citation struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

// Annotation is one inline source annotation as reported by the agent
// service: a marker substring inside the answer plus the resolved source.
// StartIndex is the marker's reported position, or -1 when unknown.
type Annotation struct {
	Text       string
	URL        string
	Title      string
	StartIndex int
}

const defaultTitle = "Web source"

// Extract resolves annotations against the answer text. It returns the
// answer with marker text stripped and the citations ordered by first
// appearance; a URL repeating later in the answer collapses into its first
// occurrence. No annotations means no citations.
func Extract(answer string, anns []Annotation) (string, []Citation) {
	if len(anns) == 0 {
		return answer, nil
	}

	type positioned struct {
		Citation
		order int
	}

	candidates := make([]positioned, 0, len(anns))
	for i, a := range anns {
		if a.URL == "" {
			continue
		}
		pos := a.StartIndex
		if pos < 0 || pos > len(answer) {
			pos = len(answer)
			if a.Text != "" {
				if idx := strings.Index(answer, a.Text); idx >= 0 {
					pos = idx
				}
			}
		}
		title := a.Title
		if title == "" {
			title = defaultTitle
		}
		candidates = append(candidates, positioned{
			Citation: Citation{URL: a.URL, Title: title, Position: pos},
			order:    i,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Position != candidates[j].Position {
			return candidates[i].Position < candidates[j].Position
		}
		return candidates[i].order < candidates[j].order
	})

	seen := make(map[string]bool, len(candidates))
	citations := make([]Citation, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		citations = append(citations, c.Citation)
	}

	if len(citations) == 0 {
		return answer, nil
	}
	return stripMarkers(answer, anns), citations
}

// stripMarkers removes each annotation's marker text from the answer. The
// agents service embeds markers like 【3:0†source】 that mean nothing to an
// end user once citations are extracted.
func stripMarkers(answer string, anns []Annotation) string {
	out := answer
	for _, a := range anns {
		if a.Text == "" {
			continue
		}
		out = strings.ReplaceAll(out, a.Text, "")
	}
	return out
}
