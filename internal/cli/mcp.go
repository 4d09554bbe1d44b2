package cli

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/mcp"
	"github.com/Ranjithnathk/ClauseWise/internal/store"
)

var (
	mcpUser    string
	mcpNoWatch bool
)

// mcpCmd represents the MCP server command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdin/stdout.

The server provides tools for:
  - ask_document: Answer a question about a document
  - search_document: Retrieve the passages most similar to a query
  - list_documents: List the documents available to the user

Every call acts as the user given by --user. By default a background watcher
keeps indexes in step with the upload directory; use --no-watch to disable it.

This command is typically launched by an MCP client, not run directly.`,
	Args: cobra.NoArgs,
	RunE: runMcpCmd,
}

func init() {
	mcpCmd.Flags().StringVarP(&mcpUser, "user", "u", "", "user the tools act as")
	mcpCmd.Flags().BoolVar(&mcpNoWatch, "no-watch", false, "disable background file watching")
}

func runMcpCmd(cmd *cobra.Command, args []string) error {
	// MCP server uses stdin/stdout for communication, so redirect logs to stderr
	log.SetOutput(os.Stderr)

	if mcpUser != "" {
		if err := store.ValidateOwner(mcpUser); err != nil {
			return err
		}
	}

	cfg := config.Get()

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	// Start background file watcher if enabled
	if !mcpNoWatch {
		go startBackgroundWatcher(ctx, a.indexer, cfg)
	}

	server, err := mcp.NewServer(mcp.Config{
		Pipeline: a.pipeline,
		User:     mcpUser,
		Version:  version,
	})
	if err != nil {
		return err
	}
	return server.Run(ctx)
}
