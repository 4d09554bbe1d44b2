package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/fs"
	"github.com/Ranjithnathk/ClauseWise/internal/indexer"
	"github.com/Ranjithnathk/ClauseWise/internal/store"
	"github.com/Ranjithnathk/ClauseWise/internal/ui"
)

var (
	indexUser   string
	indexForce  bool
	indexDryRun bool
	indexAll    bool
	indexIgnore []string
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index [file|dir]",
	Short: "Index documents for question answering",
	Long: `Index a document, or every supported document in a directory.

Files outside the owner's upload directory are copied in first, so the
server and the ask command can find them by name. Unchanged documents are
skipped unless --force is given.

Examples:
  # Index a contract for alice
  clausewise index ./lease.pdf --user alice

  # Index a directory of public documents
  clausewise index ./policies

  # Re-index everything under the upload directory
  clausewise index --all --force

  # Preview what would be indexed
  clausewise index ./policies --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVarP(&indexUser, "user", "u", store.PublicOwner, "owner of the indexed documents")
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "re-index unchanged documents")
	indexCmd.Flags().BoolVarP(&indexDryRun, "dry-run", "d", false, "preview without indexing")
	indexCmd.Flags().BoolVar(&indexAll, "all", false, "index every owner under the upload directory")
	indexCmd.Flags().StringSliceVarP(&indexIgnore, "ignore", "i", nil, "additional patterns to ignore")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if indexAll {
		if len(args) > 0 {
			return fmt.Errorf("--all does not take a path")
		}
		return runIndexAll(cfg)
	}

	if len(args) == 0 {
		return fmt.Errorf("a file or directory is required (or use --all)")
	}
	if err := store.ValidateOwner(indexUser); err != nil {
		return err
	}

	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("path does not exist: %s", absPath)
	}

	log.Debug("Starting index",
		"path", absPath,
		"user", indexUser,
		"force", indexForce,
		"dry-run", indexDryRun,
	)

	if indexDryRun {
		return runDryRun(absPath, info.IsDir(), cfg)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	fmt.Println(ui.Header.Render("Indexing " + filepath.Base(absPath)))
	fmt.Printf("Owner: %s\n", indexUser)
	fmt.Printf("Provider: %s (%s)\n", a.embedder.Provider(), a.embedder.ModelName())
	fmt.Println()

	if !info.IsDir() {
		stopSpinner := make(chan struct{})
		spinnerDone := make(chan struct{})
		go showSpinner("Indexing "+filepath.Base(absPath), stopSpinner, spinnerDone)

		res, err := a.indexer.IndexFile(ctx, indexUser, absPath, indexForce)

		close(stopSpinner)
		<-spinnerDone

		if err != nil {
			if ctx.Err() != nil {
				fmt.Println(ui.Warning.Render("Indexing cancelled"))
				return nil
			}
			return fmt.Errorf("indexing failed: %w", err)
		}
		if res.Skipped {
			fmt.Println(ui.Dim.Render("Unchanged, index kept: " + res.Scope.String()))
			return nil
		}
		fmt.Println(ui.Success.Render("Indexing complete!"))
		fmt.Println()
		fmt.Printf("  Scope:    %s\n", ui.FormatScope(res.Scope.Owner, res.Scope.Document))
		fmt.Printf("  Passages: %d\n", res.Chunks)
		fmt.Printf("  Duration: %s\n", res.Duration.Round(time.Millisecond))
		return nil
	}

	p, err := a.indexer.IndexDir(ctx, indexer.IndexOptions{
		Owner:          indexUser,
		Path:           absPath,
		IgnorePatterns: indexIgnore,
		Force:          indexForce,
		OnProgress:     progressPrinter(),
	})

	// Clear progress line
	fmt.Printf("\r\033[K")

	if err != nil {
		if ctx.Err() != nil {
			fmt.Println(ui.Warning.Render("Indexing cancelled"))
			return nil
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	printProgress(indexUser, p)
	return nil
}

func runIndexAll(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	fmt.Println(ui.Header.Render("Indexing all documents"))
	fmt.Printf("Upload directory: %s\n\n", cfg.Storage.UploadDir)

	results, err := a.indexer.IndexAll(ctx, indexForce, progressPrinter())
	fmt.Printf("\r\033[K")
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println(ui.Warning.Render("Indexing cancelled"))
			return nil
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No documents found.")
		return nil
	}
	for _, owner := range sortedKeys(results) {
		printProgress(owner, results[owner])
		fmt.Println()
	}
	return nil
}

// progressPrinter returns a throttled single-line progress reporter.
func progressPrinter() indexer.ProgressFunc {
	lastUpdate := time.Now()
	return func(p indexer.Progress) {
		// Throttle updates to every 100ms
		if time.Since(lastUpdate) < 100*time.Millisecond {
			return
		}
		lastUpdate = time.Now()

		// Clear line and print progress
		fmt.Printf("\r\033[K")
		if p.TotalFiles > 0 {
			done := p.ProcessedFiles + p.SkippedFiles + p.Errors
			pct := float64(done) / float64(p.TotalFiles) * 100
			fmt.Printf("Progress: %d/%d documents (%.0f%%) | Passages: %d | %s",
				done, p.TotalFiles, pct, p.TotalChunks,
				truncatePath(p.CurrentFile, 40))
		}
	}
}

func printProgress(owner string, p indexer.Progress) {
	fmt.Println(ui.Success.Render(fmt.Sprintf("Indexing complete for %s", owner)))
	fmt.Println()
	fmt.Printf("  Indexed:  %d documents\n", p.ProcessedFiles)
	fmt.Printf("  Skipped:  %d unchanged\n", p.SkippedFiles)
	fmt.Printf("  Passages: %d\n", p.TotalChunks)
	fmt.Printf("  Duration: %s\n", time.Since(p.StartTime).Round(time.Millisecond))
	if p.Errors > 0 {
		fmt.Println()
		fmt.Println(ui.Warning.Render(fmt.Sprintf("  %d documents failed:", p.Errors)))
		for _, f := range p.Failures {
			fmt.Printf("    %s: %v\n", filepath.Base(f.Path), f.Err)
		}
	}
}

// runDryRun shows what would be indexed without actually indexing.
func runDryRun(path string, isDir bool, cfg *config.Config) error {
	fmt.Println(ui.Header.Render("Dry Run - Preview"))
	fmt.Printf("Path: %s\n\n", path)

	if !isDir {
		format, err := fs.DetectFormat(path)
		if err != nil {
			return err
		}
		fmt.Printf("Would index %s (%s) as %s\n", filepath.Base(path), format,
			store.NewScope(indexUser, filepath.Base(path)))
		return nil
	}

	walker, err := fs.NewFileWalker(fs.WalkOptions{
		Root:           path,
		MaxFileSize:    cfg.Storage.MaxFileSize,
		MaxFileCount:   fs.DefaultWalkOptions().MaxFileCount,
		IgnorePatterns: append(append([]string{}, cfg.Ignore...), indexIgnore...),
		UseIgnoreFile:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to create file walker: %w", err)
	}

	var files []fs.FileInfo
	err = walker.Walk(func(fi fs.FileInfo) error {
		files = append(files, fi)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}

	stats := walker.Stats()

	// Show files by format
	byFormat := make(map[string]int)
	var totalSize int64
	for _, f := range files {
		byFormat[string(f.Format)]++
		totalSize += f.Size
	}

	fmt.Println("Documents to index:")
	for _, format := range sortedKeys(byFormat) {
		fmt.Printf("  %-15s %d\n", format+":", byFormat[format])
	}
	fmt.Println()
	fmt.Printf("Total documents: %d\n", len(files))
	fmt.Printf("Total size:      %s\n", formatBytes(totalSize))
	fmt.Printf("Skipped:         %d files, %d directories\n", stats.FilesSkipped, stats.DirsSkipped)

	if len(files) > 0 {
		fmt.Println("\nFirst 10 documents:")
		for i, f := range files {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(files)-10)
				break
			}
			fmt.Printf("  %s (%s)\n", f.RelPath, formatBytes(f.Size))
		}
	}

	return nil
}

// truncatePath shortens a path for display.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}

// formatBytes formats bytes as human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

var listUser string

// listCmd lists the documents a user can ask about
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available documents",
	Long:  `List the public documents and the documents uploaded by a user.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVarP(&listUser, "user", "u", "", "also list this user's documents")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	docs, err := a.pipeline.Documents(listUser)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs.Public) == 0 && len(docs.User) == 0 {
		fmt.Println("No documents found.")
		fmt.Println("\nRun 'clausewise index <file>' to add one.")
		return nil
	}

	printDocs := func(owner string, names []string) {
		fmt.Println(ui.SectionTitle.Render(fmt.Sprintf("%s (%d)", owner, len(names))))
		for _, name := range names {
			mark := ui.Dim.Render("not indexed")
			if a.store.Exists(store.NewScope(owner, name)) {
				mark = ui.Success.Render("indexed")
			}
			fmt.Printf("  %s %s\n", ui.DocName.Render(name), mark)
		}
	}

	printDocs(store.PublicOwner, docs.Public)
	if listUser != "" && listUser != store.PublicOwner {
		printDocs(listUser, docs.User)
	}
	return nil
}

var (
	deleteUser string
	deleteYes  bool
)

// deleteCmd removes a document's index
var deleteCmd = &cobra.Command{
	Use:   "delete <document>",
	Short: "Delete a document's index",
	Long: `Delete the index built for a document. The uploaded file is kept and is
indexed again on the next upload, index run, or watch event.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().StringVarP(&deleteUser, "user", "u", store.PublicOwner, "owner of the document")
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	cfg := config.Get()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	scope := store.NewScope(deleteUser, name)
	if err := scope.Validate(); err != nil {
		return err
	}
	if !a.store.Exists(scope) {
		return fmt.Errorf("index not found: %s", scope)
	}

	// Confirm deletion
	if !deleteYes {
		fmt.Printf("Delete index '%s'? [y/N]: ", scope)
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := a.indexer.Remove(deleteUser, name); err != nil {
		return err
	}

	fmt.Println(ui.Success.Render(fmt.Sprintf("Index '%s' deleted.", scope)))
	return nil
}
