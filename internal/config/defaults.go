package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 5 * time.Minute
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 64
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "memory"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = ":memory:"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "./data/uploads"
	}
	if cfg.Extract.MinPageChars == 0 {
		cfg.Extract.MinPageChars = 200
	}
	if cfg.Extract.RenderDPI == 0 {
		cfg.Extract.RenderDPI = 150
	}
	if cfg.Extract.Concurrency == 0 {
		cfg.Extract.Concurrency = 4
	}
	if cfg.Extract.VisionRPS == 0 {
		cfg.Extract.VisionRPS = 2
	}
	if cfg.Extract.VisionBurst == 0 {
		cfg.Extract.VisionBurst = 1
	}
	if cfg.Chunking.Strategy == "" {
		cfg.Chunking.Strategy = "recursive"
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1000
	}
	if cfg.Chunking.ChunkOverlap == nil {
		overlap := 100
		cfg.Chunking.ChunkOverlap = &overlap
	}
	if cfg.Embedding.Type == "" {
		cfg.Embedding.Type = "http"
	}
	if cfg.Embedding.URL == "" {
		cfg.Embedding.URL = "http://localhost:11434/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "./data/models/bge-small-en-v1.5.onnx"
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 512
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Vector.Type == "" {
		cfg.Vector.Type = "qdrant"
	}
	if cfg.Vector.URL == "" {
		cfg.Vector.URL = "http://localhost:6333"
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "pdf_chunks"
	}
	if cfg.Vector.Distance == "" {
		cfg.Vector.Distance = "Cosine"
	}
	if cfg.Vector.Timeout == 0 {
		cfg.Vector.Timeout = 30 * time.Second
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 10
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "openai"
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "llama-3.3-70b-versatile"
	}
	if cfg.Generation.VisionModel == "" {
		cfg.Generation.VisionModel = "meta-llama/llama-4-scout-17b-16e-instruct"
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 60 * time.Second
	}
	if cfg.Generation.Streaming == "" {
		cfg.Generation.Streaming = "native"
	}
	if cfg.Generation.FragmentSize == 0 {
		cfg.Generation.FragmentSize = 20
	}
	if cfg.Generation.FragmentDelay == 0 {
		cfg.Generation.FragmentDelay = 20 * time.Millisecond
	}
	if cfg.Watcher.Inbox == "" {
		cfg.Watcher.Inbox = "./data/inbox"
	}
	if cfg.Watcher.Debounce == 0 {
		cfg.Watcher.Debounce = 400 * time.Millisecond
	}
}
