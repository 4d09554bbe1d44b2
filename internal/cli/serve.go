package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/mcp"
	"github.com/Ranjithnathk/ClauseWise/internal/server"
	"github.com/Ranjithnathk/ClauseWise/internal/ui"
)

var (
	serveAddr     string
	serveNoWatch  bool
	serveNoMCP    bool
	serveJSONLogs bool
)

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API for uploads, chat and document listing.

Requests are expected from an authenticating proxy that sets the user name in
the identity header (X-User by default). The MCP tools are also served at /mcp
unless --no-mcp is given.

Examples:
  # Serve on the configured address
  clausewise serve

  # Serve on another port with JSON logs
  clausewise serve --addr :9000 --json-logs`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "disable background file watching")
	serveCmd.Flags().BoolVar(&serveNoMCP, "no-mcp", false, "do not mount the MCP endpoint")
	serveCmd.Flags().BoolVar(&serveJSONLogs, "json-logs", false, "log as JSON")
}

func runServe(cmd *cobra.Command, args []string) error {
	ui.SetServerMode(serveJSONLogs)

	cfg := config.Get()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	var mcpServer *mcp.Server
	if !serveNoMCP {
		mcpServer, err = mcp.NewServer(mcp.Config{
			Pipeline:       a.pipeline,
			IdentityHeader: cfg.Server.IdentityHeader,
			Version:        version,
		})
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}
	}

	var srv *server.Server
	if mcpServer != nil {
		srv = server.New(cfg, a.pipeline, a.indexer, mcpServer.Handler())
	} else {
		srv = server.New(cfg, a.pipeline, a.indexer, nil)
	}

	if !serveNoWatch {
		go startBackgroundWatcher(ctx, a.indexer, cfg)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
