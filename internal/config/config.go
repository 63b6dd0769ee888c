package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pdf-chat/internal/models"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	// ProviderHash is the offline feature-hashing embedder
	ProviderHash = "hash"

	defaultAPIKeyEnv      = "OPENAI_API_KEY"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultChatModel      = "gpt-4o-mini"
	defaultOllamaURL      = "http://localhost:11434"
	defaultTemperature    = 0.7
	defaultBatchSize      = 32
	defaultHashDimensions = 384
	defaultAddr           = ":8080"
	defaultMaxUploadMB    = 50
)

type Config struct {
	LogLevel string       `yaml:"log_level"`
	Server   ServerConfig `yaml:"server"`
	RAG      RAGConfig    `yaml:"rag"`
	EmbedLLM LLMConfig    `yaml:"embed_llm"`
	ChatLLM  LLMConfig    `yaml:"chat_llm"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

type RAGConfig struct {
	ChunkSize             int    `yaml:"chunk_size"`
	ChunkOverlap          *int   `yaml:"chunk_overlap"`
	Separator             string `yaml:"separator"`
	TopK                  int    `yaml:"top_k"`
	CondenseQuestion      *bool  `yaml:"condense_question"`
	ResetHistoryOnProcess *bool  `yaml:"reset_history_on_process"`
	RequestTimeoutSecs    int    `yaml:"request_timeout_secs"`
}

// LLMConfig describes either the embedding or the chat model endpoint.
// Key is never read from the file, it is filled from APIKeyEnv.
type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Key         string   `yaml:"-" json:"-"`
	Temperature *float64 `yaml:"temperature"`
	BatchSize   int      `yaml:"batch_size"`
	Dimensions  int      `yaml:"dimensions"`
}

// Overlap returns the chunk overlap, 0 being a valid setting
func (c RAGConfig) Overlap() int {
	if c.ChunkOverlap == nil {
		return models.DefaultChunkOverlap
	}
	return *c.ChunkOverlap
}

// Condense reports whether follow-up questions are rephrased before retrieval
func (c RAGConfig) Condense() bool {
	return c.CondenseQuestion == nil || *c.CondenseQuestion
}

// ResetHistory reports whether a rebuild of the index clears the chat history
func (c RAGConfig) ResetHistory() bool {
	return c.ResetHistoryOnProcess == nil || *c.ResetHistoryOnProcess
}

// LoadConfig reads the yaml file at path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no file is present
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = models.DefaultChunkSize
	}
	if c.RAG.ChunkOverlap == nil {
		overlap := models.DefaultChunkOverlap
		c.RAG.ChunkOverlap = &overlap
	}
	if c.RAG.Separator == "" {
		c.RAG.Separator = models.DefaultSeparator
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = models.DefaultTopK
	}

	applyLLMDefaults(&c.EmbedLLM, defaultEmbeddingModel)
	if c.EmbedLLM.BatchSize == 0 {
		c.EmbedLLM.BatchSize = defaultBatchSize
	}
	if c.EmbedLLM.Provider == ProviderHash && c.EmbedLLM.Dimensions == 0 {
		c.EmbedLLM.Dimensions = defaultHashDimensions
	}

	applyLLMDefaults(&c.ChatLLM, defaultChatModel)
	if c.ChatLLM.Temperature == nil {
		temperature := defaultTemperature
		c.ChatLLM.Temperature = &temperature
	}
}

func applyLLMDefaults(l *LLMConfig, model string) {
	if l.Provider == "" {
		l.Provider = ProviderOpenAI
	}
	if l.Model == "" && l.Provider == ProviderOpenAI {
		l.Model = model
	}
	if l.Provider == ProviderOllama && l.BaseURL == "" {
		l.BaseURL = defaultOllamaURL
	}
	if l.APIKeyEnv == "" {
		l.APIKeyEnv = defaultAPIKeyEnv
	}
}

// Validate checks the configuration and resolves API credentials from the
// environment. Missing credentials are reported here, at startup, rather than
// on the first call.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if overlap := c.RAG.Overlap(); overlap < 0 || overlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, %d), got %d", c.RAG.ChunkSize, overlap)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK)
	}

	if err := c.EmbedLLM.resolve("embed_llm", true); err != nil {
		return err
	}
	return c.ChatLLM.resolve("chat_llm", false)
}

func (l *LLMConfig) resolve(section string, embedding bool) error {
	switch l.Provider {
	case ProviderOpenAI:
		l.Key = os.Getenv(l.APIKeyEnv)
		if l.Key == "" {
			return fmt.Errorf("%s: missing API key, set %s", section, l.APIKeyEnv)
		}
	case ProviderOllama:
		if l.Model == "" {
			return fmt.Errorf("%s: model is required for the ollama provider", section)
		}
	case ProviderHash:
		if !embedding {
			return fmt.Errorf("%s: provider %q can only embed", section, l.Provider)
		}
	default:
		return fmt.Errorf("%s: unknown provider %q", section, l.Provider)
	}
	return nil
}
