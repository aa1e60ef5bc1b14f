// Package guardrail screens incoming questions before any model call and
// scores how well generated answers are grounded in retrieved evidence.
// Screening is cheap, local pattern matching: an unsafe query must be
// rejected without spending a single embedding or generation call.
package guardrail

import (
	"fmt"
	"regexp"
	"strings"
)

// Defaults for the query screen and the relevance gate.
const (
	DefaultMaxQueryChars = 2000
	DefaultMinRelevance  = 0.2

	// GroundingFloor is the grounding ratio below which an answer gets a
	// low-confidence note appended.
	GroundingFloor = 0.2
)

// Reasons attached to rejecting decisions.
const (
	ReasonEmpty        = "Question is empty."
	ReasonUnsafe       = "Query violates safety policy."
	ReasonLowRelevance = "Low retrieval relevance."
	ReasonNoIndex      = "No indexed data."
)

// blockedPatterns match prompt-injection and exfiltration phrasing. The
// proximity window in the first pattern catches "ignore ... the safety
// rules" without blocking sentences that merely contain both words far
// apart.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(ignore|bypass|disable)\b.{0,30}\b(safety|guardrail|restriction)\b`),
	regexp.MustCompile(`(?i)\b(leak|exfiltrate|steal)\b`),
	regexp.MustCompile(`(?i)\b(system prompt|developer message)\b`),
}

// Decision is the outcome of a guardrail check. Reason is empty when
// Allowed.
type Decision struct {
	Allowed bool
	Reason  string
}

// allow is the decision for anything that passes.
var allow = Decision{Allowed: true}

// Filter applies the query screen and the relevance gate with configured
// limits.
type Filter struct {
	maxQueryChars int
	minRelevance  float32
}

// New constructs a Filter. Non-positive arguments fall back to the defaults.
func New(maxQueryChars int, minRelevance float32) *Filter {
	if maxQueryChars <= 0 {
		maxQueryChars = DefaultMaxQueryChars
	}
	if minRelevance <= 0 {
		minRelevance = DefaultMinRelevance
	}
	return &Filter{maxQueryChars: maxQueryChars, minRelevance: minRelevance}
}

// CheckQuery screens a question before retrieval. Empty, oversized, and
// policy-violating questions are rejected.
func (f *Filter) CheckQuery(question string) Decision {
	if strings.TrimSpace(question) == "" {
		return Decision{Reason: ReasonEmpty}
	}
	if len(question) > f.maxQueryChars {
		return Decision{Reason: fmt.Sprintf("Question is too long (>%d chars).", f.maxQueryChars)}
	}
	for _, p := range blockedPatterns {
		if p.MatchString(question) {
			return Decision{Reason: ReasonUnsafe}
		}
	}
	return allow
}

// CheckRelevance gates generation on the best retrieval score. Below the
// threshold the engine answers with the insufficient-evidence fallback
// instead of calling the model.
func (f *Filter) CheckRelevance(topScore float32) Decision {
	if topScore < f.minRelevance {
		return Decision{Reason: ReasonLowRelevance}
	}
	return allow
}

// MinRelevance returns the configured relevance threshold.
func (f *Filter) MinRelevance() float32 { return f.minRelevance }

var tokenRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

// GroundingRatio measures the fraction of distinct answer tokens that also
// appear in the retrieved contexts. 0 means nothing in the answer is backed
// by evidence; 1 means every token is. An answer with no tokens, or contexts
// with none, score 0.
func GroundingRatio(answer string, contexts []string) float64 {
	answerTokens := tokenSet(answer)
	if len(answerTokens) == 0 {
		return 0
	}
	contextTokens := make(map[string]struct{})
	for _, c := range contexts {
		for t := range tokenSet(c) {
			contextTokens[t] = struct{}{}
		}
	}
	if len(contextTokens) == 0 {
		return 0
	}

	overlap := 0
	for t := range answerTokens {
		if _, ok := contextTokens[t]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(answerTokens))
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		set[t] = struct{}{}
	}
	return set
}
