// Package config provides configuration loading and structs for the pdfqa server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Extract    ExtractConfig    `yaml:"extract"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Vector     VectorConfig     `yaml:"vector"`
	Keyword    KeywordConfig    `yaml:"keyword"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generation GenerationConfig `yaml:"generation"`
	Watcher    WatcherConfig    `yaml:"watcher"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadMB    int64         `yaml:"max_upload_mb"`
}

// StorageConfig selects the document registry / chat history backend and the upload directory.
type StorageConfig struct {
	Type      string `yaml:"type"` // memory or sqlite
	DSN       string `yaml:"dsn"`
	UploadDir string `yaml:"upload_dir"`
}

// ExtractConfig holds page extraction and vision fallback settings.
type ExtractConfig struct {
	MinPageChars int     `yaml:"min_page_chars"`
	RenderDPI    float64 `yaml:"render_dpi"`
	Concurrency  int     `yaml:"concurrency"`
	VisionRPS    float64 `yaml:"vision_rps"`
	VisionBurst  int     `yaml:"vision_burst"`
}

// ChunkingConfig holds character-based splitter settings.
type ChunkingConfig struct {
	Strategy     string `yaml:"strategy"` // recursive or window
	ChunkSize    int    `yaml:"chunk_size"`
	// ChunkOverlap is nil when unset, so an explicit 0 disables overlap.
	ChunkOverlap *int   `yaml:"chunk_overlap"`
}

// Overlap returns the configured overlap, or 0 when unset.
func (c ChunkingConfig) Overlap() int {
	if c.ChunkOverlap == nil {
		return 0
	}
	return *c.ChunkOverlap
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Type       string        `yaml:"type"` // http, onnx or mock
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	ModelPath  string        `yaml:"model_path"`
	MaxTokens  int           `yaml:"max_tokens"`
	CacheSize  int           `yaml:"cache_size"`
}

// VectorConfig selects and configures the vector store.
type VectorConfig struct {
	Type       string        `yaml:"type"` // qdrant or memory
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	Collection string        `yaml:"collection"`
	Distance   string        `yaml:"distance"`
	Timeout    time.Duration `yaml:"timeout"`
}

// KeywordConfig toggles the lexical fallback index. An empty Path keeps the index in memory.
type KeywordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RetrievalConfig holds query-time settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// GenerationConfig selects and configures the answer and vision models.
type GenerationConfig struct {
	Provider      string        `yaml:"provider"` // openai or ollama
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	VisionModel   string        `yaml:"vision_model"`
	Timeout       time.Duration `yaml:"timeout"`
	Streaming     string        `yaml:"streaming"` // native or simulated
	FragmentSize  int           `yaml:"fragment_size"`
	FragmentDelay time.Duration `yaml:"fragment_delay"`
}

// WatcherConfig holds inbox watch settings.
type WatcherConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Inbox    string        `yaml:"inbox"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads the config file at path, applies defaults and environment overrides, and expands paths.
// A missing file yields the default configuration.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
		configDir = filepath.Dir(path)
	}

	if err := loadDotEnv(configDir); err != nil {
		return nil, err
	}
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	if cfg.Storage.Type == "sqlite" && cfg.Storage.DSN != ":memory:" {
		cfg.Storage.DSN = expandPath(cfg.Storage.DSN, configDir)
	}
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Watcher.Inbox = expandPath(cfg.Watcher.Inbox, configDir)
	cfg.Keyword.Path = expandPath(cfg.Keyword.Path, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if overlap := c.Chunking.Overlap(); overlap < 0 || overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be in [0, chunk_size (%d))", overlap, c.Chunking.ChunkSize)
	}
	switch c.Chunking.Strategy {
	case "recursive", "window":
	default:
		return fmt.Errorf("unknown chunking strategy %q", c.Chunking.Strategy)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("top_k must be positive, got %d", c.Retrieval.TopK)
	}
	switch c.Storage.Type {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	switch c.Vector.Type {
	case "memory", "qdrant":
	default:
		return fmt.Errorf("unknown vector store type %q", c.Vector.Type)
	}
	switch c.Generation.Streaming {
	case "native", "simulated":
	default:
		return fmt.Errorf("unknown streaming mode %q", c.Generation.Streaming)
	}
	return nil
}

// loadDotEnv loads .env from the working directory and, if different, the config directory.
// Variables already set in the environment win.
func loadDotEnv(configDir string) error {
	candidates := []string{".env"}
	if configDir != "." {
		candidates = append(candidates, filepath.Join(configDir, ".env"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with values from well-known environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		cfg.Vector.URL = v
	}
	if v := os.Getenv("QDRANT_COLLECTION"); v != "" {
		cfg.Vector.Collection = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		cfg.Vector.APIKey = v
	}
	if v := os.Getenv("EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("PDFQA_EMBEDDING_URL"); v != "" {
		cfg.Embedding.URL = v
	}
	if v := os.Getenv("PDFQA_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
}

// expandPath makes paths starting with "./" or "../" relative to configDir. Other paths are returned unchanged.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") || path == "." {
		return filepath.Join(configDir, path)
	}
	return path
}
