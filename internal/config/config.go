package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Cache    CacheConfig  `yaml:"cache"`
	Ingest   IngestConfig `yaml:"ingest"`
	Store    StoreConfig  `yaml:"store"`
	EmbedLLM LLMConfig    `yaml:"embed_llm"`
	LLM      LLMConfig    `yaml:"llm"`
	Query    QueryConfig  `yaml:"query"`
}

type CacheConfig struct {
	Dir         string `yaml:"dir"`
	MaxMemoryMB int64  `yaml:"max_memory_mb"`
}

type IngestConfig struct {
	DataDir          string `yaml:"data_dir"`
	ExtractionMethod string `yaml:"extraction_method"`
	DPI              int    `yaml:"dpi"`
	MinImageSize     int    `yaml:"min_image_size"`
	MaxWorkers       int    `yaml:"max_workers"`
}

type StoreConfig struct {
	Backend  string         `yaml:"backend"` // chromem | postgres
	Chromem  ChromemConfig  `yaml:"chromem"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type ChromemConfig struct {
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	InMemory      bool   `yaml:"in_memory"`
	EncryptionKey string `yaml:"encryption_key"`
}

type PostgresConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	Key     string `yaml:"key"`
	Model   string `yaml:"model"`
}

type QueryConfig struct {
	TopK             int     `yaml:"top_k"`
	MaxImages        int     `yaml:"max_images"`
	ImageDetail      string  `yaml:"image_detail"`
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float64 `yaml:"temperature"`
	TopP             float64 `yaml:"top_p"`
	FrequencyPenalty float64 `yaml:"frequency_penalty"`
	PresencePenalty  float64 `yaml:"presence_penalty"`
	Seed             *int    `yaml:"seed"`
	UseHistory       bool    `yaml:"use_history"`
	HistoryTurns     int     `yaml:"history_turns"`
}

const (
	defaultMaxMemoryMB  = 500
	defaultMaxWorkers   = 3
	defaultTopK         = 3
	defaultMaxImages    = 5
	defaultMaxTokens    = 2000
	defaultHistoryTurns = 5
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "./image_cache"
	}
	if cfg.Cache.MaxMemoryMB <= 0 {
		cfg.Cache.MaxMemoryMB = defaultMaxMemoryMB
	}
	if cfg.Ingest.MaxWorkers <= 0 {
		cfg.Ingest.MaxWorkers = defaultMaxWorkers
	}
	if cfg.Ingest.MaxWorkers > 5 {
		cfg.Ingest.MaxWorkers = 5
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "chromem"
	}
	if cfg.Store.Chromem.Path == "" {
		cfg.Store.Chromem.Path = "./chromemdb"
	}
	if cfg.Store.Chromem.Collection == "" {
		cfg.Store.Chromem.Collection = "multimodal_rag"
	}
	if cfg.Query.TopK <= 0 {
		cfg.Query.TopK = defaultTopK
	}
	if cfg.Query.MaxImages <= 0 {
		cfg.Query.MaxImages = defaultMaxImages
	}
	if cfg.Query.ImageDetail == "" {
		cfg.Query.ImageDetail = "high"
	}
	if cfg.Query.MaxTokens <= 0 {
		cfg.Query.MaxTokens = defaultMaxTokens
	}
	if cfg.Query.TopP == 0 {
		cfg.Query.TopP = 1.0
	}
	if cfg.Query.HistoryTurns <= 0 {
		cfg.Query.HistoryTurns = defaultHistoryTurns
	}
}

func validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case "chromem", "postgres":
	default:
		return fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
	return nil
}
