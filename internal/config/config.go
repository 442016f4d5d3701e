package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted in embedding.providers
const (
	ProviderProxy       = "proxy"
	ProviderHuggingFace = "huggingface"
)

// Config holds the application configuration
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Database  DatabaseConfig  `yaml:"database"`
	Search    SearchConfig    `yaml:"search,omitempty"`
	Ingest    IngestConfig    `yaml:"ingest,omitempty"`
	Review    ReviewConfig    `yaml:"review,omitempty"`
	Server    ServerConfig    `yaml:"server,omitempty"`
}

// EmbeddingConfig holds embedding orchestration configuration
type EmbeddingConfig struct {
	// Providers lists remote providers in priority order.
	// Entries without an endpoint are skipped at startup.
	Providers []string `yaml:"providers"`

	Proxy       RemoteConfig `yaml:"proxy"`
	HuggingFace RemoteConfig `yaml:"huggingface"`

	BatchSize         int           `yaml:"batch_size"`
	Retries           int           `yaml:"retries"`
	Backoff           time.Duration `yaml:"backoff"`
	BatchTimeout      time.Duration `yaml:"batch_timeout"`   // Budget for all remote attempts of one batch
	RequestTimeout    time.Duration `yaml:"request_timeout"` // Per HTTP call
	RequestsPerSecond float64       `yaml:"requests_per_second,omitempty"`
	Burst             int           `yaml:"burst,omitempty"`

	// FallbackDim is the dimension of the deterministic local vectors.
	// It must match the remote providers' dimension.
	FallbackDim int `yaml:"fallback_dim"`
}

// RemoteConfig describes one remote embedding endpoint
type RemoteConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key,omitempty"`
}

// Configured reports whether the endpoint is usable
func (r RemoteConfig) Configured() bool {
	return strings.TrimSpace(r.URL) != ""
}

// ChunkingConfig holds chunk window configuration
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	// Path to SQLite database file
	// If empty, uses ~/.docrag/data/docrag.db
	Path string `yaml:"path,omitempty"`
}

// SearchConfig holds search-specific configuration
type SearchConfig struct {
	DefaultTopK    int     `yaml:"default_top_k,omitempty"`
	VectorWeight   float32 `yaml:"vector_weight,omitempty"`
	KeywordWeight  float32 `yaml:"keyword_weight,omitempty"`
	TextIndexDir   string  `yaml:"text_index_dir,omitempty"` // Bleve keyword index, empty disables it
	QueryCacheSize int     `yaml:"query_cache_size,omitempty"`
}

// IngestConfig holds ingestion pipeline configuration
type IngestConfig struct {
	Workers          int      `yaml:"workers,omitempty"`
	QueueSize        int      `yaml:"queue_size,omitempty"`
	MaxDownloadBytes int64    `yaml:"max_download_bytes,omitempty"`
	Include          []string `yaml:"include,omitempty"` // Directory ingest patterns
	Exclude          []string `yaml:"exclude,omitempty"`
}

// ReviewConfig holds CV review configuration
type ReviewConfig struct {
	LLMURL             string        `yaml:"llm_url,omitempty"`
	LLMAPIKey          string        `yaml:"llm_api_key,omitempty"`
	Timeout            time.Duration `yaml:"timeout,omitempty"`
	MaxRecommendations int           `yaml:"max_recommendations,omitempty"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Default returns a configuration with every default applied and no remote provider,
// which runs on the local fallback alone.
func Default() *Config {
	cfg := seed()
	cfg.applyDefaults()
	return cfg
}

// seed returns the values whose zero value is meaningful (retries: 0,
// overlap: 0), so they are set before YAML is decoded on top.
func seed() *Config {
	return &Config{
		Embedding: EmbeddingConfig{Retries: 2},
		Chunking:  ChunkingConfig{Size: 2000, Overlap: 200},
	}
}

// DefaultPath returns ~/.docrag/config/docrag.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".docrag", "config", "docrag.yaml"), nil
}

// Load loads configuration from the default config file
func Load() (*Config, error) {
	configPath, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromFile(configPath)
}

// LoadFromFile loads configuration from a specific file, then applies
// environment overrides, defaults and validation.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			defaultPath, _ := DefaultPath()
			return nil, &ConfigNotFoundError{
				RequestedPath: path,
				DefaultPath:   defaultPath,
			}
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a configuration from YAML bytes
func Parse(data []byte) (*Config, error) {
	return parse(data, os.LookupEnv)
}

// FromEnv builds a configuration from defaults and environment variables only.
// It is used when no config file exists.
func FromEnv() (*Config, error) {
	return parse(nil, os.LookupEnv)
}

func parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg := seed()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ConfigNotFoundError is returned when config file is not found
type ConfigNotFoundError struct {
	RequestedPath string
	DefaultPath   string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found at: %s\n\nDefault location: %s\n\nYou can:\n"+
		"  1. Create the config file at the default location\n"+
		"  2. Specify a custom path with -config flag\n"+
		"  3. Run 'docrag ingest' once to write a template",
		e.RequestedPath, e.DefaultPath)
}

// IsConfigNotFound checks if error is config not found
func IsConfigNotFound(err error) bool {
	_, ok := err.(*ConfigNotFoundError)
	return ok
}

// ApplyEnv overrides file values with environment variables.
// lookup is os.LookupEnv in production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("GEMINI_PROXY_URL", &c.Embedding.Proxy.URL)
	str("GEMINI_PROXY_API_KEY", &c.Embedding.Proxy.APIKey)
	str("HUGGINGFACE_API_URL", &c.Embedding.HuggingFace.URL)
	str("HUGGINGFACE_API_KEY", &c.Embedding.HuggingFace.APIKey)
	str("DATABASE_PATH", &c.Database.Path)
	str("LLM_URL", &c.Review.LLMURL)
	str("LLM_API_KEY", &c.Review.LLMAPIKey)

	for key, dst := range map[string]*int{
		"EMBED_BATCH":        &c.Embedding.BatchSize,
		"EMBED_RETRIES":      &c.Embedding.Retries,
		"FALLBACK_EMBED_DIM": &c.Embedding.FallbackDim,
		"CHUNK_SIZE":         &c.Chunking.Size,
		"CHUNK_OVERLAP":      &c.Chunking.Overlap,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	// EMBED_BACKOFF is expressed in seconds, e.g. "0.5"
	if v, ok := lookup("EMBED_BACKOFF"); ok && strings.TrimSpace(v) != "" {
		secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("EMBED_BACKOFF: %w", err)
		}
		c.Embedding.Backoff = time.Duration(secs * float64(time.Second))
	}

	return nil
}

// expandPath expands ~ and $HOME to the user's home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "$HOME/") || path == "$HOME" {
		homeDir := os.Getenv("HOME")
		if homeDir == "" {
			var err error
			homeDir, err = os.UserHomeDir()
			if err != nil {
				return path
			}
		}
		if path == "$HOME" {
			return homeDir
		}
		return filepath.Join(homeDir, path[6:])
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return homeDir
		}
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if len(c.Embedding.Providers) == 0 {
		c.Embedding.Providers = []string{ProviderProxy, ProviderHuggingFace}
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 16
	}
	if c.Embedding.Backoff == 0 {
		c.Embedding.Backoff = 500 * time.Millisecond
	}
	if c.Embedding.BatchTimeout == 0 {
		c.Embedding.BatchTimeout = 2 * time.Minute
	}
	if c.Embedding.RequestTimeout == 0 {
		c.Embedding.RequestTimeout = 60 * time.Second
	}
	if c.Embedding.Burst == 0 {
		c.Embedding.Burst = 1
	}
	if c.Embedding.FallbackDim == 0 {
		c.Embedding.FallbackDim = 8
	}

	if c.Chunking.Size == 0 {
		c.Chunking.Size = 2000
	}

	if c.Database.Path != "" {
		c.Database.Path = expandPath(c.Database.Path)
	}
	if c.Search.TextIndexDir != "" {
		c.Search.TextIndexDir = expandPath(c.Search.TextIndexDir)
	}

	if c.Search.DefaultTopK == 0 {
		c.Search.DefaultTopK = 5
	}
	if c.Search.VectorWeight == 0 && c.Search.KeywordWeight == 0 {
		c.Search.VectorWeight = 1.0
	}
	if c.Search.QueryCacheSize == 0 {
		c.Search.QueryCacheSize = 256
	}

	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = 2
	}
	if c.Ingest.QueueSize == 0 {
		c.Ingest.QueueSize = 64
	}
	if c.Ingest.MaxDownloadBytes == 0 {
		c.Ingest.MaxDownloadBytes = 50 << 20
	}
	if len(c.Ingest.Include) == 0 {
		c.Ingest.Include = []string{"**/*.pdf", "**/*.txt", "**/*.md"}
	}

	if c.Review.Timeout == 0 {
		c.Review.Timeout = 30 * time.Second
	}
	if c.Review.MaxRecommendations == 0 {
		c.Review.MaxRecommendations = 5
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for _, name := range c.Embedding.Providers {
		switch name {
		case ProviderProxy, ProviderHuggingFace:
		default:
			return fmt.Errorf("unsupported embedding provider: %s", name)
		}
	}

	if c.Embedding.HuggingFace.Configured() && c.Embedding.HuggingFace.APIKey == "" {
		return fmt.Errorf("huggingface provider requires api_key")
	}

	if c.Embedding.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got: %d", c.Embedding.Retries)
	}

	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 256 {
		return fmt.Errorf("batch_size must be between 1 and 256, got: %d", c.Embedding.BatchSize)
	}

	if c.Embedding.FallbackDim < 0 {
		return fmt.Errorf("fallback_dim must not be negative, got: %d", c.Embedding.FallbackDim)
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got: %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, %d), got: %d", c.Chunking.Size, c.Chunking.Overlap)
	}

	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive, got: %d", c.Ingest.Workers)
	}

	return nil
}

// RemoteProviders returns the configured remote providers in priority order
func (c *Config) RemoteProviders() []string {
	return c.Embedding.RemoteProviders()
}

// RemoteProviders returns the provider names that have an endpoint, in priority order
func (e *EmbeddingConfig) RemoteProviders() []string {
	out := make([]string, 0, len(e.Providers))
	for _, name := range e.Providers {
		if r, ok := e.Remote(name); ok && r.Configured() {
			out = append(out, name)
		}
	}
	return out
}

// Remote returns the endpoint settings for a provider name
func (e *EmbeddingConfig) Remote(name string) (RemoteConfig, bool) {
	switch name {
	case ProviderProxy:
		return e.Proxy, true
	case ProviderHuggingFace:
		return e.HuggingFace, true
	}
	return RemoteConfig{}, false
}

// SaveToFile saves the configuration to a specific file
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

const defaultConfigTemplate = `# docrag configuration
#
# Default location: $HOME/.docrag/config/docrag.yaml
# Environment variables (GEMINI_PROXY_URL, HUGGINGFACE_API_URL, HUGGINGFACE_API_KEY,
# EMBED_BATCH, EMBED_RETRIES, EMBED_BACKOFF, FALLBACK_EMBED_DIM, CHUNK_SIZE,
# CHUNK_OVERLAP, DATABASE_PATH, LLM_URL) override the values below.

embedding:
  # Remote providers in priority order. Leave urls empty to run on the
  # deterministic local fallback only.
  providers: [proxy, huggingface]
  proxy:
    url: ""
  huggingface:
    url: ""
    api_key: ""
  batch_size: 16
  retries: 2
  backoff: 500ms
  batch_timeout: 2m
  request_timeout: 60s
  fallback_dim: 8

chunking:
  size: 2000
  overlap: 200

search:
  default_top_k: 5

review:
  llm_url: ""
`

// WriteDefaultTemplate creates a default configuration file if it does not exist.
// It returns true if a file was created, false if it already existed.
func WriteDefaultTemplate(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return false, fmt.Errorf("failed to write config template: %w", err)
	}

	return true, nil
}
