package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/caselight/cqa-go/internal/eval"
	"github.com/caselight/cqa-go/internal/logging"
	"github.com/caselight/cqa-go/internal/tracing"
)

// NewEvalCmd constructs the `cqa eval` command, which scores answer quality
// against a labelled case file.
func NewEvalCmd() *cobra.Command {
	var casesPath string
	var asJSON bool
	var minF1, minGroundedness, minSuccess float64

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate answer quality against labelled cases",
		Long: `Run every case in a JSON file through the full answering pipeline and
report aggregate quality metrics: answer overlap and F1 against reference
answers, citation recall/precision against expected sources, groundedness,
and required/forbidden term checks.

Each case runs in an isolated session so conversations do not bleed
between cases. The exit status is non-zero when a threshold flag is set
and the corresponding metric falls short.

Case file format (JSON array):
  [{"question": "...", "expected_answer": "...", "expected_sources": ["lease.txt"],
    "required_terms": ["30 days"], "forbidden_terms": ["guaranteed"]}]

Examples:
  cqa eval --cases data/eval_cases.json
  cqa eval --cases cases.json --min-f1 0.4 --min-groundedness 0.6`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
			}

			cases, err := eval.LoadCases(casesPath)
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}

			eng, err := buildEngine(ctx, log, true)
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}
			defer eng.Close() //nolint:errcheck

			runner, err := eval.NewRunner(eng)
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}
			report, err := runner.Run(ctx, cases)
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return fmt.Errorf("eval: %w", err)
				}
			} else {
				printReport(report)
			}

			thresholds := eval.Thresholds{
				MinAnswerF1:     minF1,
				MinGroundedness: minGroundedness,
				MinSuccessRate:  minSuccess,
			}
			if failures := thresholds.Failures(report); len(failures) > 0 {
				for _, f := range failures {
					fmt.Fprintln(os.Stderr, "threshold failed:", f)
				}
				return fmt.Errorf("eval: %d threshold(s) not met", len(failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&casesPath, "cases", "data/eval_cases.json", "Path to the evaluation case JSON file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().Float64Var(&minF1, "min-f1", 0, "Fail when answer_f1 is below this value")
	cmd.Flags().Float64Var(&minGroundedness, "min-groundedness", 0, "Fail when groundedness is below this value")
	cmd.Flags().Float64Var(&minSuccess, "min-success-rate", 0, "Fail when success_rate is below this value")

	return cmd
}

// printReport renders the evaluation metrics as an aligned list.
func printReport(r *eval.Report) {
	fmt.Println("Evaluation Metrics")
	fmt.Printf("- answer_overlap: %.4f\n", r.AnswerOverlap)
	fmt.Printf("- answer_f1: %.4f\n", r.AnswerF1)
	fmt.Printf("- retrieval_hit_rate: %.4f\n", r.RetrievalHitRate)
	fmt.Printf("- source_recall: %.4f\n", r.SourceRecall)
	fmt.Printf("- source_precision: %.4f\n", r.SourcePrecision)
	fmt.Printf("- groundedness: %.4f\n", r.Groundedness)
	fmt.Printf("- required_term_coverage: %.4f\n", r.RequiredTermCoverage)
	fmt.Printf("- forbidden_term_violation_rate: %.4f\n", r.ForbiddenTermViolationRate)
	fmt.Printf("- valid_case_rate: %.4f\n", r.ValidCaseRate)
	fmt.Printf("- success_rate: %.4f\n", r.SuccessRate)
}
