package eval

import (
	"math"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caselight/cqa-go/internal/rag"
)

var tokenRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

// stopwords are excluded from scoring tokens so metrics reflect content
// words rather than grammar.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "how": true, "in": true,
	"is": true, "it": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "this": true, "to": true, "was": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "with": true,
}

// scoreTokens extracts lowercased alphanumeric tokens, dropping stopwords
// and single characters.
func scoreTokens(text string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		if len(tok) > 1 && !stopwords[tok] {
			out[tok] = true
		}
	}
	return out
}

func intersectionSize(a, b map[string]bool) int {
	n := 0
	for tok := range a {
		if b[tok] {
			n++
		}
	}
	return n
}

// answerOverlap is the fraction of expected-answer tokens present in the
// predicted answer. Returns nil when the expected answer has no tokens.
func answerOverlap(expected, predicted string) *float64 {
	expectedTokens := scoreTokens(expected)
	if len(expectedTokens) == 0 {
		return nil
	}
	v := float64(intersectionSize(expectedTokens, scoreTokens(predicted))) / float64(len(expectedTokens))
	return &v
}

// answerF1 is the harmonic mean of token precision and recall against the
// expected answer. Returns nil when the expected answer has no tokens.
func answerF1(expected, predicted string) *float64 {
	expectedTokens := scoreTokens(expected)
	if len(expectedTokens) == 0 {
		return nil
	}
	predictedTokens := scoreTokens(predicted)
	zero := 0.0
	if len(predictedTokens) == 0 {
		return &zero
	}
	inter := intersectionSize(expectedTokens, predictedTokens)
	if inter == 0 {
		return &zero
	}
	precision := float64(inter) / float64(len(predictedTokens))
	recall := float64(inter) / float64(len(expectedTokens))
	v := (2 * precision * recall) / (precision + recall)
	return &v
}

// requiredTermCoverage is the fraction of required terms found in the answer
// (case-insensitive substring match). Returns nil with no usable terms.
func requiredTermCoverage(terms []string, answer string) *float64 {
	normalized := normalizeTerms(terms)
	if len(normalized) == 0 {
		return nil
	}
	answerLC := strings.ToLower(answer)
	matches := 0
	for _, term := range normalized {
		if strings.Contains(answerLC, term) {
			matches++
		}
	}
	v := float64(matches) / float64(len(normalized))
	return &v
}

// forbiddenTermViolation is 1 when any forbidden term appears in the answer,
// 0 otherwise. Returns nil with no usable terms.
func forbiddenTermViolation(terms []string, answer string) *float64 {
	normalized := normalizeTerms(terms)
	if len(normalized) == 0 {
		return nil
	}
	answerLC := strings.ToLower(answer)
	v := 0.0
	for _, term := range normalized {
		if strings.Contains(answerLC, term) {
			v = 1.0
			break
		}
	}
	return &v
}

// retrievalHit is 1 when any expected source appears among the retrieved
// chunk sources, 0 otherwise. It scores retrieval itself, so a retrieved
// source still counts even when the answer never cites it. Nil when no
// sources are expected.
func retrievalHit(expected []string, retrieved map[string]bool) *float64 {
	normalizedExpected := expectedSourceSet(expected)
	if len(normalizedExpected) == 0 {
		return nil
	}
	v := 0.0
	if intersectionSize(normalizedExpected, retrieved) > 0 {
		v = 1.0
	}
	return &v
}

// sourceScores compares cited sources against expected ones, returning
// recall and precision. Both are nil when no sources are expected; both
// zero when nothing was cited.
func sourceScores(expected []string, cited map[string]bool) (recall, precision *float64) {
	normalizedExpected := expectedSourceSet(expected)
	if len(normalizedExpected) == 0 {
		return nil, nil
	}
	zero := 0.0
	if len(cited) == 0 {
		return &zero, &zero
	}
	inter := intersectionSize(normalizedExpected, cited)
	r := float64(inter) / float64(len(normalizedExpected))
	p := float64(inter) / float64(len(cited))
	return &r, &p
}

func expectedSourceSet(expected []string) map[string]bool {
	out := make(map[string]bool)
	for _, s := range expected {
		if strings.TrimSpace(s) != "" {
			out[normalizeSource(s)] = true
		}
	}
	return out
}

// normalizeSource reduces a source reference to its lowercased base
// filename without the upload prefix, so case and path differences never
// defeat matching against uploaded names.
func normalizeSource(source string) string {
	return rag.NormalizeSource(strings.ToLower(strings.TrimSpace(filepath.Base(source))))
}

// groundedness is the fraction of answer tokens supported by the retrieved
// contexts. An answer with no tokens scores zero.
func groundedness(answer string, contexts []string) float64 {
	answerTokens := scoreTokens(answer)
	if len(answerTokens) == 0 {
		return 0
	}
	contextTokens := scoreTokens(strings.Join(contexts, " "))
	return float64(intersectionSize(answerTokens, contextTokens)) / float64(len(answerTokens))
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
