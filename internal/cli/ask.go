package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ranjithnathk/ClauseWise/internal/agent"
	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/rag"
	"github.com/Ranjithnathk/ClauseWise/internal/ui"
)

var (
	askUser    string
	askModel   string
	askHistory []string
	askRaw     bool
	askJSON    bool
)

// askCmd answers one question about a document
var askCmd = &cobra.Command{
	Use:   "ask <document> <question>",
	Short: "Ask a question about a document",
	Long: `Answer a question using the passages of a document most similar to it.

Examples:
  # Ask about a public document
  clausewise ask handbook "How many vacation days do I get?"

  # Ask about alice's lease with another model
  clausewise ask lease "Who pays for repairs?" --user alice --model claude-3-5-sonnet-latest

  # Continue a conversation
  clausewise ask lease "And for the garden?" --history "Who pays for repairs?" --history "The tenant."`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askUser, "user", "u", "", "user whose documents are searched first")
	askCmd.Flags().StringVarP(&askModel, "model", "M", "", "model to answer with (default from config)")
	askCmd.Flags().StringArrayVar(&askHistory, "history", nil, "earlier turns, oldest first, alternating user and assistant")
	askCmd.Flags().BoolVar(&askRaw, "raw", false, "print the answer without markdown rendering")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the result as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	document, question := args[0], args[1]
	cfg := config.Get()

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	req := rag.ChatRequest{
		Username: askUser,
		Model:    askModel,
		Document: document,
		Messages: append(append([]string{}, askHistory...), question),
	}

	stopSpinner := make(chan struct{})
	spinnerDone := make(chan struct{})
	if !askJSON {
		go showSpinner("Generating answer", stopSpinner, spinnerDone)
	} else {
		close(spinnerDone)
	}

	res := a.pipeline.Chat(ctx, req)

	close(stopSpinner)
	<-spinnerDone

	if ctx.Err() != nil {
		return nil
	}

	if askJSON {
		return outputJSON(res)
	}

	switch res := res.(type) {
	case agent.Failure:
		return fmt.Errorf("%s: %s", res.Kind, res.Message)
	case agent.FinalAnswer:
		fmt.Println(ui.Header.Render("Answer"))
		fmt.Println()

		rendered, err := renderMarkdown(res.Text)
		if askRaw || err != nil {
			// Fallback to raw output if rendering fails
			fmt.Println(res.Text)
		} else {
			fmt.Print(rendered)
		}

		note := fmt.Sprintf("%d steps", res.Steps)
		if res.Exhausted {
			note += ", step limit reached"
		}
		fmt.Println(ui.Dim.Render(note))
	}
	return nil
}
