package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/eval"
	"github.com/Ranjithnathk/ClauseWise/internal/ui"
)

var (
	evalUser  string
	evalModel string
	evalJSON  bool
)

// evalCmd scores answers against a reference question set
var evalCmd = &cobra.Command{
	Use:   "eval <file>",
	Short: "Evaluate answers against reference answers",
	Long: `Ask every question in an evaluation file and score the answers.

The file is a JSON list of documents with question/answer pairs:

  [{"pdf_name": "lease", "qa_pairs": [{"question": "...", "answer": "..."}]}]

Each answer is scored with ROUGE-L F1 against the reference answer and with
answer relevancy, the cosine similarity of question and answer embeddings.
Questions that fail are reported and left out of the averages.`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVarP(&evalUser, "user", "u", "", "user the questions are asked as")
	evalCmd.Flags().StringVarP(&evalModel, "model", "M", "", "model to answer with (default from config)")
	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "output the report as JSON")
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	ds, err := eval.LoadDataset(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	if !evalJSON {
		fmt.Println(ui.Header.Render("Evaluation"))
		fmt.Printf("Questions: %d across %d documents\n\n", ds.Questions(), len(ds))
	}

	n := 0
	runner := eval.NewRunner(a.pipeline, a.embedder, evalUser, evalModel)
	report, err := runner.Run(ctx, ds, func(s eval.Sample) {
		n++
		if evalJSON {
			return
		}
		prefix := ui.Dim.Render(fmt.Sprintf("[%d/%d]", n, ds.Questions()))
		if s.Error != "" {
			fmt.Printf("%s %s %s\n", prefix, ui.Error.Render("failed"), truncateText(s.Question, 60))
			return
		}
		fmt.Printf("%s %s rouge-l %.3f relevancy %.3f\n", prefix, truncateText(s.Question, 60), s.RougeL, s.Relevancy)
	})
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println(ui.Warning.Render("Evaluation cancelled"))
			return nil
		}
		return err
	}

	if evalJSON {
		return outputJSON(report)
	}

	fmt.Println()
	fmt.Println(ui.SectionTitle.Render("Results"))
	fmt.Printf("  Answered:         %d\n", report.Answered)
	fmt.Printf("  Failed:           %d\n", report.Failed)
	fmt.Printf("  ROUGE-L:          %.4f\n", report.RougeL)
	fmt.Printf("  Answer Relevancy: %.4f\n", report.Relevancy)
	return nil
}
