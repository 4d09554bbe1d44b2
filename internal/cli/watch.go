package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/indexer"
	"github.com/Ranjithnathk/ClauseWise/internal/store"
	"github.com/Ranjithnathk/ClauseWise/internal/ui"
	"github.com/Ranjithnathk/ClauseWise/internal/watcher"
)

var watchNoInitial bool

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the upload directory and auto-reindex",
	Long: `Watch the upload directory for document changes and keep indexes current.

Files directly in the upload directory are indexed as public documents; files
in a user's subdirectory are indexed for that user. Deleting a file deletes its
index. Unless --no-initial is given, every owner is synced first.

Examples:
  # Sync and watch
  clausewise watch

  # Skip initial sync (assumes already indexed)
  clausewise watch --no-initial`,
	Args: cobra.NoArgs,
	RunE: runWatchCmd,
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoInitial, "no-initial", false, "skip initial index sync")
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	// Perform initial sync unless --no-initial is set
	if !watchNoInitial {
		fmt.Println(ui.Header.Render("Initial Index"))
		fmt.Printf("Uploads: %s\n", cfg.Storage.UploadDir)
		fmt.Printf("Provider: %s (%s)\n\n", a.embedder.Provider(), a.embedder.ModelName())

		stopSpinner := make(chan struct{})
		spinnerDone := make(chan struct{})
		go showSpinner("Indexing documents", stopSpinner, spinnerDone)

		results, err := a.indexer.IndexAll(ctx, false, nil)

		close(stopSpinner)
		<-spinnerDone

		if err != nil {
			if ctx.Err() != nil {
				return nil // User cancelled
			}
			return fmt.Errorf("initial index failed: %w", err)
		}

		indexed, chunks, failed := 0, 0, 0
		for _, p := range results {
			indexed += p.ProcessedFiles
			chunks += p.TotalChunks
			failed += p.Errors
		}
		fmt.Printf("Initial index complete: %d documents, %d passages, %d failed\n\n", indexed, chunks, failed)
	}

	w, err := newWatcher(a.indexer, cfg)
	if err != nil {
		return err
	}

	fmt.Println(ui.Header.Render("Watching for Changes"))
	fmt.Printf("Directory: %s\n", cfg.Storage.UploadDir)
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Println("\nShutting down...")
	return nil
}

// newWatcher creates the upload directory watcher with logging callbacks.
func newWatcher(idx *indexer.Indexer, cfg *config.Config) (*watcher.Watcher, error) {
	w, err := watcher.New(idx, cfg,
		watcher.WithEventCallback(func(event string, scope store.Scope) {
			log.Info("Document event", "event", event, "scope", scope)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return w, nil
}

// startBackgroundWatcher runs the watcher until ctx is done.
func startBackgroundWatcher(ctx context.Context, idx *indexer.Indexer, cfg *config.Config) {
	w, err := newWatcher(idx, cfg)
	if err != nil {
		log.Error("Failed to create watcher", "error", err)
		return
	}

	log.Info("Starting background document watcher", "path", cfg.Storage.UploadDir)

	// Start watching (blocks until context is cancelled)
	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		log.Error("Watcher error", "error", err)
	}
}
