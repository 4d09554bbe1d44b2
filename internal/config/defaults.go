package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default configuration values
const (
	// Storage defaults
	DefaultUploadDirName = "uploaded_docs"
	DefaultIndexDirName  = "indexes"
	DefaultMaxFileSize   = 50 << 20 // 50MB

	// Chunking defaults
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// Embedding defaults
	DefaultEmbeddingProvider = "openai"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "nomic-embed-text"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"
	DefaultEmbeddingTimeout  = 60 * time.Second

	// Index defaults
	DefaultIndexBackend = "sqlite"
	DefaultIndexMetric  = "cosine"
	DefaultTopK         = 5

	// LLM defaults
	DefaultModel        = "gpt-4o"
	DefaultTemperature  = 0.0
	DefaultMaxTokens    = 2048
	DefaultMaxSteps     = 5
	DefaultLLMTimeout   = 2 * time.Minute
	DefaultGroqURL      = "https://api.groq.com/openai/v1"
	DefaultGoogleURL    = "https://generativelanguage.googleapis.com/v1beta"
	DefaultAnthropicURL = "https://api.anthropic.com/v1"

	// Web search defaults
	DefaultWebSearchURL        = "https://api.tavily.com"
	DefaultWebSearchMaxResults = 2
	DefaultWebSearchTimeout    = 20 * time.Second

	// Server defaults
	DefaultServerAddr     = ":8000"
	DefaultIdentityHeader = "X-User"
	DefaultRequestTimeout = 3 * time.Minute
	DefaultChatRatePerMin = 30
	DefaultChatBurst      = 5

	// Watch defaults
	DefaultWatchDebounce = 500 * time.Millisecond
)

// DefaultIgnorePatterns returns the patterns skipped when ingesting a directory.
func DefaultIgnorePatterns() []string {
	return []string{
		".git/",
		"*.tmp",
		"~$*",
		".DS_Store",
		"Thumbs.db",
	}
}

// DefaultAllowedOrigins returns the CORS origins accepted by the server.
func DefaultAllowedOrigins() []string {
	return []string{"*"}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/clausewise"
	}
	return filepath.Join(home, ".config", "clausewise")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/clausewise"
	}
	return filepath.Join(home, ".local", "share", "clausewise")
}

// DefaultUploadDir returns the directory uploaded documents are stored under.
func DefaultUploadDir() string {
	return filepath.Join(DefaultDataDir(), DefaultUploadDirName)
}

// DefaultIndexDir returns the directory vector indexes are persisted under.
func DefaultIndexDir() string {
	return filepath.Join(DefaultDataDir(), DefaultIndexDirName)
}
