package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ranjithnathk/ClauseWise/internal/config"
	"github.com/Ranjithnathk/ClauseWise/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Display current configuration settings and config file locations.

Settings come from the config file, then CLAUSEWISE_* environment variables
(a .env file in the working directory is loaded first).

Examples:
  # Show current configuration
  clausewise config

  # Show config file paths
  clausewise config --path`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if configShowPath {
		fmt.Println(ui.SectionTitle.Render("Configuration Paths"))
		fmt.Println()
		fmt.Printf("Global config: %s\n", config.GlobalConfigPath())
		fmt.Printf("Local config:  .clausewise.yaml (searched from cwd upward)\n")
		fmt.Printf("Active config: %s\n", config.ConfigFilePath())
		fmt.Printf("Uploads:       %s\n", cfg.Storage.UploadDir)
		fmt.Printf("Indexes:       %s\n", cfg.Storage.IndexDir)
		return nil
	}

	fmt.Println(ui.SectionTitle.Render("Current Configuration"))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Storage:"))
	fmt.Printf("  Upload Dir: %s\n", cfg.Storage.UploadDir)
	fmt.Printf("  Index Dir: %s\n", cfg.Storage.IndexDir)
	fmt.Printf("  Max File Size: %s\n", formatBytes(cfg.Storage.MaxFileSize))
	fmt.Printf("  Index Backend: %s (%s)\n", cfg.Index.Backend, cfg.Index.Metric)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Chunking:"))
	fmt.Printf("  Chunk Size: %d\n", cfg.Chunking.ChunkSize)
	fmt.Printf("  Chunk Overlap: %d\n", cfg.Chunking.ChunkOverlap)
	fmt.Printf("  Top K: %d\n", cfg.Search.TopK)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Embeddings:"))
	fmt.Printf("  Provider: %s\n", cfg.Embeddings.Provider)
	fmt.Printf("  Ollama URL: %s\n", cfg.Embeddings.Ollama.URL)
	fmt.Printf("  Ollama Model: %s\n", cfg.Embeddings.Ollama.Model)
	fmt.Printf("  OpenAI Model: %s\n", cfg.Embeddings.OpenAI.Model)
	if cfg.Embeddings.OpenAI.BaseURL != "" {
		fmt.Printf("  OpenAI Base URL: %s\n", cfg.Embeddings.OpenAI.BaseURL)
	}
	fmt.Println()

	fmt.Println(ui.Bold.Render("LLM:"))
	fmt.Printf("  Default Model: %s\n", cfg.LLM.DefaultModel)
	fmt.Printf("  Max Steps: %d\n", cfg.LLM.MaxSteps)
	fmt.Printf("  OpenAI Key: %s\n", keyStatus(cfg.LLM.OpenAI.APIKey))
	fmt.Printf("  Google Key: %s\n", keyStatus(cfg.LLM.Google.APIKey))
	fmt.Printf("  Groq Key: %s\n", keyStatus(cfg.LLM.Groq.APIKey))
	fmt.Printf("  Anthropic Key: %s\n", keyStatus(cfg.LLM.Anthropic.APIKey))
	fmt.Printf("  Ollama URL: %s\n", cfg.LLM.Ollama.URL)
	fmt.Printf("  Web Search: %s\n", keyStatus(cfg.WebSearch.APIKey))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Server:"))
	fmt.Printf("  Address: %s\n", cfg.Server.Addr)
	fmt.Printf("  Identity Header: %s\n", cfg.Server.IdentityHeader)
	fmt.Printf("  Chat Rate: %d/min (burst %d)\n", cfg.Server.ChatRatePerMin, cfg.Server.ChatBurst)
	if len(cfg.Server.Admins) > 0 {
		fmt.Printf("  Admins: %s\n", strings.Join(cfg.Server.Admins, ", "))
	}
	fmt.Println()

	fmt.Println(ui.Bold.Render("Ignore Patterns:"))
	fmt.Printf("  %d patterns configured\n", len(cfg.Ignore))

	return nil
}

func keyStatus(key string) string {
	if key == "" {
		return ui.Dim.Render("not set")
	}
	return ui.Success.Render("set")
}
