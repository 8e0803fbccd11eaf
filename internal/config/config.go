// Package config loads and validates surveychat configuration.
// Configuration comes from a yaml file (surveychat.yaml) with environment
// variable overrides applied on top.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all surveychat configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configures the model used for synthesis and narration.
	LLM LLMConfig `yaml:"llm"`

	// Embedding configures the embedding engine behind retrieval.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Backend configures the SQL execution service.
	Backend BackendConfig `yaml:"backend"`

	// Dataset describes the one fixed table and the fallback heuristics.
	Dataset DatasetConfig `yaml:"dataset"`

	// Retrieval configures the codebook passage store.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Timeouts bound each pipeline stage.
	Timeouts TimeoutConfig `yaml:"timeouts"`

	// Logging configures the categorized debug logs.
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the language model client.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`

	// Retries is the number of additional attempts after a failed call.
	Retries int `yaml:"retries"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // ollama or genai
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
	TaskType       string `yaml:"task_type"`
}

// BackendConfig configures the SQL execution backend.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`
}

// DatasetConfig describes the survey table and the fallback builder's
// tunable word lists. These are configuration data, not code.
type DatasetConfig struct {
	// Table is the one table every query must reference.
	Table string `yaml:"table"`

	// PriorityColumns are well-known columns the fallback builder puts
	// first when they appear in retrieved context.
	PriorityColumns []string `yaml:"priority_columns"`

	// DefaultColumns are used when no candidate survives filtering.
	DefaultColumns []string `yaml:"default_columns"`

	// Stopwords are removed from context tokens before guessing columns.
	Stopwords []string `yaml:"stopwords"`
}

// RetrievalConfig configures the codebook store and search.
type RetrievalConfig struct {
	DatabasePath string `yaml:"database_path"`
	TopK         int    `yaml:"top_k"`
}

// TimeoutConfig bounds each pipeline stage. Values are duration strings.
type TimeoutConfig struct {
	Retrieval string `yaml:"retrieval"`
	Synthesis string `yaml:"synthesis"`
	Execution string `yaml:"execution"`
	Narration string `yaml:"narration"`
}

// LoggingConfig configures the categorized file logs.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Level     string `yaml:"level"`  // debug, info, warn, error
	Format    string `yaml:"format"` // json, text
	Dir       string `yaml:"dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "surveychat",
		Version: "0.3.0",
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			BaseURL:  "https://generativelanguage.googleapis.com/v1beta",
			Timeout:  "90s",
			Retries:  2,
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "RETRIEVAL_QUERY",
		},
		Backend: BackendConfig{
			Timeout: "30s",
		},
		Dataset: DatasetConfig{
			Table:           "survey_responses",
			PriorityColumns: []string{"cntry", "trstprl", "agea", "gndr"},
			DefaultColumns:  []string{"cntry", "agea"},
			Stopwords: []string{
				"the", "a", "an", "and", "or", "of", "in", "on", "for", "to",
				"with", "is", "are", "this", "that", "not", "missing", "value",
				"values", "data", "variable", "variables", "table", "column",
				"columns", "question", "answer", "refusal", "dont", "know",
				"scale", "code", "codes", "respondent", "survey",
			},
		},
		Retrieval: RetrievalConfig{
			DatabasePath: "codebook.db",
			TopK:         4,
		},
		Timeouts: TimeoutConfig{
			Retrieval: "15s",
			Synthesis: "90s",
			Execution: "30s",
			Narration: "90s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Dir:    "logs",
		},
	}
}

// Load reads configuration from a yaml file, applies defaults for unset
// fields, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No file: defaults plus environment.
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variables on top of file values.
// Environment always wins so deployments can keep secrets out of yaml.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
		if c.LLM.Provider == "" {
			c.LLM.Provider = "gemini"
		}
		if c.Embedding.GenAIAPIKey == "" {
			c.Embedding.GenAIAPIKey = v
		}
	}
	if v := os.Getenv("SURVEYCHAT_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("SURVEYCHAT_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("SURVEYCHAT_BACKEND_KEY"); v != "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("OLLAMA_ENDPOINT"); v != "" {
		c.Embedding.OllamaEndpoint = v
	}
	if v := os.Getenv("SURVEYCHAT_DB"); v != "" {
		c.Retrieval.DatabasePath = v
	}
	if os.Getenv("SURVEYCHAT_DEBUG") == "1" {
		c.Logging.DebugMode = true
	}
}

// Validate checks that required fields are set and durations parse.
func (c *Config) Validate() error {
	if c.Dataset.Table == "" {
		return fmt.Errorf("dataset.table is required")
	}
	if len(c.Dataset.DefaultColumns) == 0 {
		return fmt.Errorf("dataset.default_columns must name at least one column")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (set GEMINI_API_KEY)")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive")
	}
	for name, d := range map[string]string{
		"llm.timeout":        c.LLM.Timeout,
		"backend.timeout":    c.Backend.Timeout,
		"timeouts.retrieval": c.Timeouts.Retrieval,
		"timeouts.synthesis": c.Timeouts.Synthesis,
		"timeouts.execution": c.Timeouts.Execution,
		"timeouts.narration": c.Timeouts.Narration,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", name, d, err)
		}
	}
	return nil
}

// Duration parses a duration string, falling back to def on empty or
// malformed values.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
