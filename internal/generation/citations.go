package generation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/caselight/cqa-go/internal/rag"
)

// markerRe matches inline citation markers like [1] or [12].
var markerRe = regexp.MustCompile(`\[(\d+)\]`)

// resolveCitations maps the answer's inline [n] markers onto the retrieved
// chunks. Markers pointing outside the retrieved range are fabrications and
// are stripped from the answer text. When the model cited nothing at all,
// every retrieved chunk is cited — the whole context informed the answer.
// Citations keep first-mention order, deduplicated, capped at max.
func resolveCitations(answer string, retrieved []rag.ScoredChunk, max int) (string, []rag.Citation) {
	cited := make([]int, 0, len(retrieved))
	seen := make(map[int]bool)
	sawMarker := false

	clean := markerRe.ReplaceAllStringFunc(answer, func(m string) string {
		sawMarker = true
		n, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || n < 1 || n > len(retrieved) {
			return ""
		}
		if !seen[n] {
			seen[n] = true
			cited = append(cited, n)
		}
		return m
	})
	clean = strings.TrimSpace(clean)

	if !sawMarker {
		for i := range retrieved {
			cited = append(cited, i+1)
		}
	}
	if len(cited) > max {
		cited = cited[:max]
	}

	citations := make([]rag.Citation, 0, len(cited))
	for _, n := range cited {
		sc := retrieved[n-1]
		citations = append(citations, rag.Citation{
			ChunkID:   sc.ID,
			Source:    sc.Source,
			Start:     sc.Start,
			End:       sc.End,
			Relevance: sc.Score,
		})
	}
	return clean, citations
}
