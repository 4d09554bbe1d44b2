package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/search"
	"github.com/Ranjithnathk/ClauseWise/internal/ui"
)

var (
	searchUser    string
	searchLimit   int
	searchContent bool
	searchJSON    bool
)

// searchCmd shows the passages retrieval would hand to the model
var searchCmd = &cobra.Command{
	Use:   "search <document> <query>",
	Short: "Show the passages most similar to a query",
	Long: `Retrieve the passages of a document most similar to a query, without
asking a model. The document is resolved the same way as for ask: the user's
own copy first, then the public one.

Examples:
  # Top passages about termination
  clausewise search lease "termination notice" --user alice

  # Show passage text
  clausewise search lease "termination notice" -c

  # Machine-readable output
  clausewise search lease "deposit" --json`,
	Args: cobra.ExactArgs(2),
	RunE: runSearchCmd,
}

func init() {
	searchCmd.Flags().StringVarP(&searchUser, "user", "u", "", "user whose documents are searched first")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "m", 0, "number of passages (default from config)")
	searchCmd.Flags().BoolVarP(&searchContent, "content", "c", false, "show passage text")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
}

func runSearchCmd(cmd *cobra.Command, args []string) error {
	document, query := args[0], args[1]
	cfg := config.Get()

	limit := searchLimit
	if limit <= 0 {
		limit = cfg.Search.TopK
	}

	log.Debug("Starting search",
		"document", document,
		"query", query,
		"limit", limit,
		"user", searchUser,
	)

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	retrieval, err := a.searcher.Retrieve(ctx, searchUser, document, query, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputJSON(retrieval)
	}

	if len(retrieval.Results) == 0 {
		fmt.Println("No passages found.")
		return nil
	}

	displayResults(retrieval, searchContent)
	return nil
}

// displayResults formats and displays retrieved passages.
func displayResults(r *search.Retrieval, showContent bool) {
	fmt.Printf("Found %d passages in %s:\n\n", len(r.Results), ui.FormatScope(r.Scope.Owner, r.Scope.Document))

	for i, res := range r.Results {
		fmt.Printf("%s %s %s\n",
			ui.Highlight.Render(fmt.Sprintf("[%d]", i+1)),
			ui.FormatPassageRef(res.Source, res.Page),
			ui.FormatScore(res.Score),
		)
		fmt.Printf("    %s\n", ui.Dim.Render(fmt.Sprintf("chars %d-%d", res.StartChar, res.EndChar)))

		if showContent && res.Content != "" {
			fmt.Println()
			fmt.Println(ui.PassageText.Render(truncateText(res.Content, 600)))
		}
		fmt.Println()
	}
}

// truncateText shortens passage text for display.
func truncateText(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen-3] + "..."
}

// outputJSON prints v as indented JSON, highlighted when stdout is a terminal.
func outputJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	if !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Println(string(data))
		return nil
	}

	var buf bytes.Buffer
	if err := quick.Highlight(&buf, string(data), "json", "terminal256", "dracula"); err != nil {
		// Fallback to plain output
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}

// showSpinner displays an animated spinner until stopCh is closed.
func showSpinner(message string, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	defer close(doneCh)

	i := 0
	for {
		select {
		case <-stopCh:
			// Clear spinner line
			fmt.Print("\r\033[2K")
			return
		case <-ticker.C:
			fmt.Printf("\r%s %s", ui.Highlight.Render(frames[i]), message)
			i = (i + 1) % len(frames)
		}
	}
}

// renderMarkdown renders markdown content using glamour.
func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}
