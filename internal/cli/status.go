package cli

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/store"
	"github.com/Ranjithnathk/ClauseWise/internal/ui"
)

var statusUser string

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status and statistics",
	Long: `Display the indexes built for each owner, including:
- Number of passages
- Embedding provider and model used
- Source file and build time

Examples:
  # Show every owner's indexes
  clausewise status

  # Show one user's indexes
  clausewise status --user alice`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusUser, "user", "u", "", "only show this owner's indexes")
}

func runStatus(cmd *cobra.Command, args []string) error {
	log.Debug("Showing status", "user", statusUser)

	cfg := config.Get()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	owners := []string{statusUser}
	if statusUser == "" {
		owners, err = indexOwners(a.store.Root())
		if err != nil {
			return err
		}
	}

	byOwner := make(map[string][]store.IndexInfo)
	for _, owner := range owners {
		infos, err := a.store.List(owner)
		if err != nil {
			log.Warn("Failed to list indexes", "owner", owner, "error", err)
			continue
		}
		if len(infos) > 0 {
			byOwner[owner] = infos
		}
	}

	if len(byOwner) == 0 {
		fmt.Println("No indexes found.")
		fmt.Println()
		fmt.Println("Run 'clausewise index <file>' to create one.")
		return nil
	}

	fmt.Println(ui.Header.Render("Index Status"))

	total := 0
	for _, owner := range sortedKeys(byOwner) {
		infos := byOwner[owner]
		total += len(infos)

		fmt.Println(ui.SectionTitle.Render(fmt.Sprintf("%s (%d)", owner, len(infos))))
		for _, info := range infos {
			fmt.Printf("%s %s\n",
				ui.Highlight.Render("Document:"),
				ui.Bold.Render(info.Scope.Document),
			)
			if info.SourceFile != "" {
				fmt.Printf("  %s %s\n", ui.Dim.Render("Source:"), info.SourceFile)
				source := filepath.Join(store.DocumentDir(cfg.Storage.UploadDir, owner), info.SourceFile)
				if _, err := os.Stat(source); errors.Is(err, os.ErrNotExist) {
					fmt.Printf("  %s\n", ui.Warning.Render("(uploaded file no longer exists)"))
				}
			}
			fmt.Printf("  %s %s (%s, %d dims)\n",
				ui.Dim.Render("Model:"),
				info.EmbeddingModel,
				info.EmbeddingProvider,
				info.Dimensions,
			)
			fmt.Printf("  %s %s, %s\n", ui.Dim.Render("Index:"), info.Backend, info.Metric)
			fmt.Printf("  %s %d\n", ui.Dim.Render("Passages:"), info.ChunkCount)
			fmt.Printf("  %s %s\n", ui.Dim.Render("Built:"), formatTime(info.CreatedAt))
			fmt.Printf("  %s %s\n", ui.Dim.Render("Health:"), getHealthStatus(info, a.embedder.ModelName()))
		}
	}

	fmt.Println()
	fmt.Println(ui.Dim.Render(fmt.Sprintf("Total: %d indexes across %d owners", total, len(byOwner))))

	// Show config info
	fmt.Println()
	fmt.Println(ui.Dim.Render("Configuration:"))
	fmt.Printf("  Uploads: %s\n", cfg.Storage.UploadDir)
	fmt.Printf("  Indexes: %s (%s)\n", cfg.Storage.IndexDir, cfg.Index.Backend)
	fmt.Printf("  Embedding Provider: %s\n", cfg.Embeddings.Provider)

	return nil
}

// indexOwners lists the owner directories under the index root.
func indexOwners(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index directory: %w", err)
	}

	var owners []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			owners = append(owners, e.Name())
		}
	}
	return owners, nil
}

// sortedKeys returns the keys of m in order.
func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	// If today, show time only
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today at " + t.Format("15:04")
	}

	// If this year, omit year
	if t.Year() == now.Year() {
		return t.Format("Jan 2 at 15:04")
	}

	return t.Format("Jan 2, 2006 at 15:04")
}

// getHealthStatus returns a health indicator for an index.
func getHealthStatus(info store.IndexInfo, model string) string {
	if info.ChunkCount == 0 {
		return ui.Warning.Render("empty (re-index needed)")
	}
	if info.EmbeddingModel != model {
		return ui.Warning.Render("built with " + info.EmbeddingModel + " (re-index with --force)")
	}
	return ui.Success.Render("healthy")
}
