package eval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/caselight/cqa-go/internal/engine"
	"github.com/caselight/cqa-go/internal/logging"
)

// Asker answers one question within a session. *engine.Engine satisfies it.
type Asker interface {
	Ask(ctx context.Context, sessionID, question string) (*engine.Answer, error)
}

// Report aggregates per-case metrics into corpus averages, rounded to four
// decimal places. Metrics whose expectation was absent from every case
// report zero.
type Report struct {
	AnswerOverlap              float64 `json:"answer_overlap"`
	AnswerF1                   float64 `json:"answer_f1"`
	RetrievalHitRate           float64 `json:"retrieval_hit_rate"`
	SourceRecall               float64 `json:"source_recall"`
	SourcePrecision            float64 `json:"source_precision"`
	Groundedness               float64 `json:"groundedness"`
	RequiredTermCoverage       float64 `json:"required_term_coverage"`
	ForbiddenTermViolationRate float64 `json:"forbidden_term_violation_rate"`
	ValidCaseRate              float64 `json:"valid_case_rate"`
	SuccessRate                float64 `json:"success_rate"`
}

// Thresholds are minimum acceptable report values. Zero fields are not
// enforced.
type Thresholds struct {
	MinAnswerF1        float64 `json:"min_answer_f1"`
	MinGroundedness    float64 `json:"min_groundedness"`
	MinSuccessRate     float64 `json:"min_success_rate"`
	MaxForbiddenRate   float64 `json:"max_forbidden_rate"`
	enforceMaxForbid   bool
}

// WithMaxForbiddenRate enables the forbidden-term ceiling, which is
// meaningful even at zero.
func (t Thresholds) WithMaxForbiddenRate(max float64) Thresholds {
	t.MaxForbiddenRate = max
	t.enforceMaxForbid = true
	return t
}

// Failures lists the thresholds the report does not meet, in a fixed order.
func (t Thresholds) Failures(r *Report) []string {
	var out []string
	if t.MinAnswerF1 > 0 && r.AnswerF1 < t.MinAnswerF1 {
		out = append(out, fmt.Sprintf("answer_f1 %.4f below minimum %.4f", r.AnswerF1, t.MinAnswerF1))
	}
	if t.MinGroundedness > 0 && r.Groundedness < t.MinGroundedness {
		out = append(out, fmt.Sprintf("groundedness %.4f below minimum %.4f", r.Groundedness, t.MinGroundedness))
	}
	if t.MinSuccessRate > 0 && r.SuccessRate < t.MinSuccessRate {
		out = append(out, fmt.Sprintf("success_rate %.4f below minimum %.4f", r.SuccessRate, t.MinSuccessRate))
	}
	if t.enforceMaxForbid && r.ForbiddenTermViolationRate > t.MaxForbiddenRate {
		out = append(out, fmt.Sprintf("forbidden_term_violation_rate %.4f above maximum %.4f", r.ForbiddenTermViolationRate, t.MaxForbiddenRate))
	}
	return out
}

// Runner evaluates cases against an Asker.
type Runner struct {
	asker Asker
}

// NewRunner constructs a Runner.
func NewRunner(asker Asker) (*Runner, error) {
	if asker == nil {
		return nil, fmt.Errorf("eval: asker is required")
	}
	return &Runner{asker: asker}, nil
}

// Run answers every valid case in an isolated session and aggregates the
// metrics. Individual case failures are logged and counted against the
// success rate rather than aborting the run.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Report, error) {
	log := logging.FromContext(ctx)

	if len(cases) == 0 {
		return &Report{}, nil
	}

	var (
		overlaps, f1s                []float64
		hits, recalls, precisions   []float64
		groundScores                []float64
		requiredScores, forbiddens  []float64
		validCases, successfulCases int
	)

	for idx, c := range cases {
		if !c.Valid() {
			continue
		}
		validCases++

		ans, err := r.asker.Ask(ctx, fmt.Sprintf("evaluation-%d", idx), c.Question)
		if err != nil {
			log.Warn("evaluation case failed", slog.Int("case", idx), slog.Any("error", err))
			continue
		}
		successfulCases++

		if v := answerOverlap(c.ExpectedAnswer, ans.Answer); v != nil {
			overlaps = append(overlaps, *v)
		}
		if v := answerF1(c.ExpectedAnswer, ans.Answer); v != nil {
			f1s = append(f1s, *v)
		}

		retrieved := make(map[string]bool, len(ans.RetrievedSources))
		for _, src := range ans.RetrievedSources {
			retrieved[normalizeSource(src)] = true
		}
		if hit := retrievalHit(c.ExpectedSources, retrieved); hit != nil {
			hits = append(hits, *hit)
		}

		cited := make(map[string]bool, len(ans.Citations))
		for _, cit := range ans.Citations {
			cited[normalizeSource(cit.Source)] = true
		}
		if recall, precision := sourceScores(c.ExpectedSources, cited); recall != nil {
			recalls = append(recalls, *recall)
			precisions = append(precisions, *precision)
		}

		if v := requiredTermCoverage(c.RequiredTerms, ans.Answer); v != nil {
			requiredScores = append(requiredScores, *v)
		}
		if v := forbiddenTermViolation(c.ForbiddenTerms, ans.Answer); v != nil {
			forbiddens = append(forbiddens, *v)
		}

		groundScores = append(groundScores, groundedness(ans.Answer, ans.RetrievedContexts))
	}

	report := &Report{
		AnswerOverlap:              round4(mean(overlaps)),
		AnswerF1:                   round4(mean(f1s)),
		RetrievalHitRate:           round4(mean(hits)),
		SourceRecall:               round4(mean(recalls)),
		SourcePrecision:            round4(mean(precisions)),
		Groundedness:               round4(mean(groundScores)),
		RequiredTermCoverage:       round4(mean(requiredScores)),
		ForbiddenTermViolationRate: round4(mean(forbiddens)),
	}
	report.ValidCaseRate = round4(float64(validCases) / float64(len(cases)))
	if validCases > 0 {
		report.SuccessRate = round4(float64(successfulCases) / float64(validCases))
	}
	return report, nil
}
