// Package eval scores answer quality against a labelled case file. Each case
// pairs a question with optional expectations: a reference answer, the source
// documents a correct answer must cite, and terms the answer must or must not
// contain. Metrics with no labelled expectation are skipped per case rather
// than scored as zero.
package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Case is one labelled evaluation question. All fields except Question are
// optional; absent fields exclude the case from the corresponding metric.
type Case struct {
	// Question is sent through the full answering pipeline.
	Question string `json:"question"`

	// ExpectedAnswer is a reference answer for token-overlap scoring.
	ExpectedAnswer string `json:"expected_answer,omitempty"`

	// ExpectedSources lists source filenames a correct answer cites.
	ExpectedSources []string `json:"expected_sources,omitempty"`

	// RequiredTerms are substrings the answer must contain.
	RequiredTerms []string `json:"required_terms,omitempty"`

	// ForbiddenTerms are substrings the answer must not contain.
	ForbiddenTerms []string `json:"forbidden_terms,omitempty"`
}

// Valid reports whether the case has a non-empty question.
func (c Case) Valid() bool {
	return strings.TrimSpace(c.Question) != ""
}

// LoadCases reads a JSON array of cases from path.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("eval: reading cases file: %w", err)
	}
	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("eval: parsing %s: %w", path, err)
	}
	return cases, nil
}
