// Copyright 2025 Plansight
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the module-wide configuration types.
//
// Every config struct follows the same contract: yaml tags for file
// loading, SetDefaults to fill zero values, and Validate to reject
// inconsistent settings before any component is constructed.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the takeoff engine.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`

	// Database configures the relational document store.
	Database DatabaseConfig `yaml:"database,omitempty"`

	// VectorStore configures the vector index backend.
	VectorStore VectorStoreConfig `yaml:"vector_store,omitempty"`

	// Embedder configures the embedding service client.
	Embedder EmbedderConfig `yaml:"embedder,omitempty"`

	// LLMProviders configures the available LLM providers, keyed by name.
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers,omitempty"`

	// Vision configures rasterization for vision extraction.
	Vision VisionConfig `yaml:"vision,omitempty"`

	// KnowledgeBase is the default per-knowledge-base policy.
	KnowledgeBase KnowledgeBasePolicy `yaml:"knowledge_base,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Database.SetDefaults()
	c.VectorStore.SetDefaults()
	c.Embedder.SetDefaults()
	c.Vision.SetDefaults()
	c.KnowledgeBase.SetDefaults()
	for name, p := range c.LLMProviders {
		p.SetDefaults()
		c.LLMProviders[name] = p
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.VectorStore.Validate(); err != nil {
		return fmt.Errorf("vector_store: %w", err)
	}
	if err := c.KnowledgeBase.Validate(); err != nil {
		return fmt.Errorf("knowledge_base: %w", err)
	}
	for name, p := range c.LLMProviders {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("llm_providers.%s: %w", name, err)
		}
	}
	return nil
}

// Load reads a YAML config file, expanding ${ENV} references and
// loading a .env file from the working directory when present.
func Load(path string) (*Config, error) {
	// .env is optional; values already in the environment win.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := expandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := m[2 : len(m)-1]
		return os.Getenv(name)
	})
}

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", levelStr)
	}
}

// BoolPtr returns a pointer to b, for optional config fields.
func BoolPtr(b bool) *bool { return &b }
