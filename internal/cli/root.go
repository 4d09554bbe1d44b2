// Package cli implements the command-line interface for clausewise.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/embeddings"
	"github.com/Ranjithnathk/ClauseWise/internal/indexer"
	"github.com/Ranjithnathk/ClauseWise/internal/rag"
	"github.com/Ranjithnathk/ClauseWise/internal/search"
	"github.com/Ranjithnathk/ClauseWise/internal/store"
	"github.com/Ranjithnathk/ClauseWise/internal/ui"
)

// Build information, overridden by SetVersionInfo.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile string
	debug   bool
)

// SetVersionInfo sets the version information from build flags.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

var rootCmd = &cobra.Command{
	Use:   "clausewise",
	Short: "Ask questions about your documents",
	Long: `clausewise answers questions about uploaded documents.

Documents are split into passages, embedded, and stored in a per-document
vector index. Questions are answered by an LLM grounded in the passages most
similar to the question, with an optional web search tool.

Examples:
  # Index a contract for user alice
  clausewise index ./lease.pdf --user alice

  # Ask a question about it
  clausewise ask lease "When is rent due?" --user alice

  # Run the HTTP API
  clausewise serve`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(cfgFile); err != nil {
			log.Warn("Failed to load config, using defaults", "error", err)
		}
		if debug || config.Get().Debug {
			ui.SetDebug(true)
			log.Debug("Debug logging enabled")
		}

		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	ui.InitLogger()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/clausewise/config.yaml)")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))

	rootCmd.AddGroup(
		&cobra.Group{ID: "docs", Title: "Documents:"},
		&cobra.Group{ID: "run", Title: "Services:"},
	)
	for _, c := range []*cobra.Command{indexCmd, listCmd, deleteCmd, statusCmd, askCmd, searchCmd, evalCmd} {
		c.GroupID = "docs"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{serveCmd, watchCmd, mcpCmd} {
		c.GroupID = "run"
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(configCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "clausewise %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
		fmt.Fprintf(out, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// app holds the services shared by commands.
type app struct {
	cfg      *config.Config
	embedder embeddings.Service
	store    store.Store
	indexer  *indexer.Indexer
	searcher *search.Searcher
	pipeline *rag.Pipeline
}

// newApp wires the embedding service, index store and pipeline from cfg.
func newApp(cfg *config.Config) (*app, error) {
	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	st, err := store.NewStore(cfg, emb)
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}

	searcher := search.New(search.NewResolver(cfg.Storage.UploadDir, st), st)

	return &app{
		cfg:      cfg,
		embedder: emb,
		store:    st,
		indexer:  indexer.New(st, cfg),
		searcher: searcher,
		pipeline: rag.New(cfg, searcher),
	}, nil
}
