// Package config handles configuration loading and validation for clausewise.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete clausewise configuration.
type Config struct {
	Debug      bool             `mapstructure:"debug"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Index      IndexConfig      `mapstructure:"index"`
	Search     SearchConfig     `mapstructure:"search"`
	LLM        LLMConfig        `mapstructure:"llm"`
	WebSearch  WebSearchConfig  `mapstructure:"websearch"`
	Server     ServerConfig     `mapstructure:"server"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Ignore     []string         `mapstructure:"ignore"`
}

// StorageConfig locates uploaded documents and their indexes.
type StorageConfig struct {
	UploadDir   string `mapstructure:"upload_dir"`
	IndexDir    string `mapstructure:"index_dir"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
}

// ChunkingConfig configures passage splitting.
type ChunkingConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider string            `mapstructure:"provider"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	Ollama   OllamaEmbedConfig `mapstructure:"ollama"`
	OpenAI   OpenAIEmbedConfig `mapstructure:"openai"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAIEmbedConfig configures OpenAI embeddings.
type OpenAIEmbedConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend string `mapstructure:"backend"` // sqlite or chromem
	Metric  string `mapstructure:"metric"`  // cosine or l2
}

// SearchConfig configures retrieval.
type SearchConfig struct {
	TopK int `mapstructure:"top_k"`
}

// LLMConfig configures the answering models.
type LLMConfig struct {
	DefaultModel string          `mapstructure:"default_model"`
	Temperature  float64         `mapstructure:"temperature"`
	MaxTokens    int             `mapstructure:"max_tokens"`
	MaxSteps     int             `mapstructure:"max_steps"`
	Timeout      time.Duration   `mapstructure:"timeout"`
	OpenAI       ProviderConfig  `mapstructure:"openai"`
	Google       ProviderConfig  `mapstructure:"google"`
	Groq         ProviderConfig  `mapstructure:"groq"`
	Anthropic    ProviderConfig  `mapstructure:"anthropic"`
	Ollama       OllamaLLMConfig `mapstructure:"ollama"`
}

// ProviderConfig holds the credentials and endpoint of a hosted model provider.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// OllamaLLMConfig configures Ollama LLM.
type OllamaLLMConfig struct {
	URL string `mapstructure:"url"`
}

// WebSearchConfig configures the agent's web search tool.
type WebSearchConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	IdentityHeader string        `mapstructure:"identity_header"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ChatRatePerMin int           `mapstructure:"chat_rate_per_min"`
	ChatBurst      int           `mapstructure:"chat_burst"`
	Admins         []string      `mapstructure:"admins"`
}

// WatchConfig configures the upload directory watcher.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			UploadDir:   DefaultUploadDir(),
			IndexDir:    DefaultIndexDir(),
			MaxFileSize: DefaultMaxFileSize,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
		},
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			Timeout:  DefaultEmbeddingTimeout,
			Ollama: OllamaEmbedConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaEmbedModel,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIEmbedModel,
			},
		},
		Index: IndexConfig{
			Backend: DefaultIndexBackend,
			Metric:  DefaultIndexMetric,
		},
		Search: SearchConfig{
			TopK: DefaultTopK,
		},
		LLM: LLMConfig{
			DefaultModel: DefaultModel,
			Temperature:  DefaultTemperature,
			MaxTokens:    DefaultMaxTokens,
			MaxSteps:     DefaultMaxSteps,
			Timeout:      DefaultLLMTimeout,
			Google:       ProviderConfig{BaseURL: DefaultGoogleURL},
			Groq:         ProviderConfig{BaseURL: DefaultGroqURL},
			Anthropic:    ProviderConfig{BaseURL: DefaultAnthropicURL},
			Ollama:       OllamaLLMConfig{URL: DefaultOllamaURL},
		},
		WebSearch: WebSearchConfig{
			Enabled:    true,
			BaseURL:    DefaultWebSearchURL,
			MaxResults: DefaultWebSearchMaxResults,
			Timeout:    DefaultWebSearchTimeout,
		},
		Server: ServerConfig{
			Addr:           DefaultServerAddr,
			IdentityHeader: DefaultIdentityHeader,
			AllowedOrigins: DefaultAllowedOrigins(),
			RequestTimeout: DefaultRequestTimeout,
			ChatRatePerMin: DefaultChatRatePerMin,
			ChatBurst:      DefaultChatBurst,
		},
		Watch: WatchConfig{
			Debounce: DefaultWatchDebounce,
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// Load reads configuration from file, .env and environment variables.
func Load(configFile string) error {
	// .env values never override variables already set in the process
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Failed to read .env file", "error", err)
	}

	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")

		// A project-local .clausewise.yaml wins over the global file
		if rcPath := findRCFile(); rcPath != "" {
			viper.SetConfigFile(rcPath)
		}
	}

	viper.SetEnvPrefix("CLAUSEWISE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	cfg = loaded
	loadAPIKeysFromEnv()

	return nil
}

// Validate checks values that would otherwise fail deep inside the pipeline.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, %d), got %d",
			c.Chunking.ChunkSize, c.Chunking.ChunkOverlap)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	switch c.Index.Backend {
	case "sqlite", "chromem":
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}
	switch c.Index.Metric {
	case "cosine":
	case "l2":
		if c.Index.Backend == "chromem" {
			return fmt.Errorf("index backend chromem only supports the cosine metric")
		}
	default:
		return fmt.Errorf("unknown index metric %q", c.Index.Metric)
	}
	if c.LLM.MaxSteps <= 0 {
		return fmt.Errorf("llm.max_steps must be positive, got %d", c.LLM.MaxSteps)
	}
	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	d := DefaultConfig()

	viper.SetDefault("debug", false)

	// Storage
	viper.SetDefault("storage.upload_dir", d.Storage.UploadDir)
	viper.SetDefault("storage.index_dir", d.Storage.IndexDir)
	viper.SetDefault("storage.max_file_size", d.Storage.MaxFileSize)

	// Chunking
	viper.SetDefault("chunking.chunk_size", d.Chunking.ChunkSize)
	viper.SetDefault("chunking.chunk_overlap", d.Chunking.ChunkOverlap)

	// Embeddings
	viper.SetDefault("embeddings.provider", d.Embeddings.Provider)
	viper.SetDefault("embeddings.timeout", d.Embeddings.Timeout)
	viper.SetDefault("embeddings.ollama.url", d.Embeddings.Ollama.URL)
	viper.SetDefault("embeddings.ollama.model", d.Embeddings.Ollama.Model)
	viper.SetDefault("embeddings.openai.model", d.Embeddings.OpenAI.Model)

	// Index and search
	viper.SetDefault("index.backend", d.Index.Backend)
	viper.SetDefault("index.metric", d.Index.Metric)
	viper.SetDefault("search.top_k", d.Search.TopK)

	// LLM
	viper.SetDefault("llm.default_model", d.LLM.DefaultModel)
	viper.SetDefault("llm.temperature", d.LLM.Temperature)
	viper.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	viper.SetDefault("llm.max_steps", d.LLM.MaxSteps)
	viper.SetDefault("llm.timeout", d.LLM.Timeout)
	viper.SetDefault("llm.google.base_url", d.LLM.Google.BaseURL)
	viper.SetDefault("llm.groq.base_url", d.LLM.Groq.BaseURL)
	viper.SetDefault("llm.anthropic.base_url", d.LLM.Anthropic.BaseURL)
	viper.SetDefault("llm.ollama.url", d.LLM.Ollama.URL)

	// Web search
	viper.SetDefault("websearch.enabled", d.WebSearch.Enabled)
	viper.SetDefault("websearch.base_url", d.WebSearch.BaseURL)
	viper.SetDefault("websearch.max_results", d.WebSearch.MaxResults)
	viper.SetDefault("websearch.timeout", d.WebSearch.Timeout)

	// Server
	viper.SetDefault("server.addr", d.Server.Addr)
	viper.SetDefault("server.identity_header", d.Server.IdentityHeader)
	viper.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	viper.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	viper.SetDefault("server.chat_rate_per_min", d.Server.ChatRatePerMin)
	viper.SetDefault("server.chat_burst", d.Server.ChatBurst)

	// Watch
	viper.SetDefault("watch.debounce", d.Watch.Debounce)

	viper.SetDefault("ignore", d.Ignore)
}

// findRCFile searches for .clausewise.yaml starting from current directory.
func findRCFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		rcPath := filepath.Join(dir, ".clausewise.yaml")
		if _, err := os.Stat(rcPath); err == nil {
			return rcPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// loadAPIKeysFromEnv fills provider credentials from their conventional variables.
func loadAPIKeysFromEnv() {
	openAIKey := firstEnv("OPENAI_API_KEY", "AUTH_TOKEN")

	if cfg.Embeddings.OpenAI.APIKey == "" {
		cfg.Embeddings.OpenAI.APIKey = openAIKey
	}
	if cfg.LLM.OpenAI.APIKey == "" {
		cfg.LLM.OpenAI.APIKey = openAIKey
	}
	if cfg.LLM.Google.APIKey == "" {
		cfg.LLM.Google.APIKey = firstEnv("GOOGLE_API_KEY", "GEMINI_API_KEY")
	}
	if cfg.LLM.Groq.APIKey == "" {
		cfg.LLM.Groq.APIKey = firstEnv("GROQ_API_KEY")
	}
	if cfg.LLM.Anthropic.APIKey == "" {
		cfg.LLM.Anthropic.APIKey = firstEnv("ANTHROPIC_API_KEY")
	}
	if cfg.WebSearch.APIKey == "" {
		cfg.WebSearch.APIKey = firstEnv("TAVILY_API_KEY")
	}
}

// firstEnv returns the first non-empty variable among keys.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
