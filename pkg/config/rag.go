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

package config

import "fmt"

// RetrievalStrategy selects how a knowledge base answers queries.
type RetrievalStrategy string

const (
	RetrievalSimilarity RetrievalStrategy = "similarity"
	RetrievalMMR        RetrievalStrategy = "mmr"
	RetrievalHybrid     RetrievalStrategy = "hybrid"
	RetrievalReranking  RetrievalStrategy = "reranking"
)

// KnowledgeBasePolicy is the per-knowledge-base chunking and retrieval
// policy.
type KnowledgeBasePolicy struct {
	// ChunkSize is the target chunk size in tokens.
	ChunkSize int `yaml:"chunk_size,omitempty"`

	// ChunkOverlap is the overlap between adjacent text chunks in tokens.
	ChunkOverlap int `yaml:"chunk_overlap,omitempty"`

	// SimilarityTopK is the number of results returned per query.
	SimilarityTopK int `yaml:"similarity_top_k,omitempty"`

	// RerankTopK is the candidate pool size when reranking is requested.
	RerankTopK int `yaml:"rerank_top_k,omitempty"`

	// MMRDiversityBias in [0,1] trades relevance for diversity under MMR.
	MMRDiversityBias float64 `yaml:"mmr_diversity_bias,omitempty"`

	// RetrievalStrategy is one of similarity, mmr, hybrid, reranking.
	RetrievalStrategy RetrievalStrategy `yaml:"retrieval_strategy,omitempty"`
}

// SetDefaults applies default values.
func (p *KnowledgeBasePolicy) SetDefaults() {
	if p.ChunkSize <= 0 {
		p.ChunkSize = 1000
	}
	if p.ChunkOverlap < 0 {
		p.ChunkOverlap = 0
	}
	if p.ChunkOverlap == 0 {
		p.ChunkOverlap = 200
	}
	if p.SimilarityTopK <= 0 {
		p.SimilarityTopK = 5
	}
	if p.RerankTopK <= 0 {
		p.RerankTopK = p.SimilarityTopK * 4
	}
	if p.MMRDiversityBias == 0 {
		p.MMRDiversityBias = 0.3
	}
	if p.RetrievalStrategy == "" {
		p.RetrievalStrategy = RetrievalSimilarity
	}
}

// Validate checks the policy for errors.
func (p *KnowledgeBasePolicy) Validate() error {
	if p.ChunkOverlap >= p.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be less than chunk_size (%d)", p.ChunkOverlap, p.ChunkSize)
	}
	if p.MMRDiversityBias < 0 || p.MMRDiversityBias > 1 {
		return fmt.Errorf("mmr_diversity_bias must be in [0,1], got %g", p.MMRDiversityBias)
	}
	switch p.RetrievalStrategy {
	case RetrievalSimilarity, RetrievalMMR, RetrievalHybrid, RetrievalReranking, "":
	default:
		return fmt.Errorf("invalid retrieval_strategy: %q", p.RetrievalStrategy)
	}
	return nil
}

// VectorStoreConfig configures a vector database backend.
//
// Example YAML:
//
//	vector_store:
//	  type: chromem
//	  persist_path: .takeoff/vectors
//	---
//	vector_store:
//	  type: qdrant
//	  host: qdrant.example.com
//	  port: 6334
//	  api_key: ${QDRANT_API_KEY}
type VectorStoreConfig struct {
	// Type is the backend type: "chromem", "qdrant", "pinecone".
	Type string `yaml:"type"`

	// Host for external backends; for pinecone this is the control-plane
	// host (optional).
	Host string `yaml:"host,omitempty"`

	// Port for external backends.
	Port int `yaml:"port,omitempty"`

	// APIKey for authenticated access.
	APIKey string `yaml:"api_key,omitempty"`

	// EnableTLS enables TLS connections.
	EnableTLS *bool `yaml:"enable_tls,omitempty"`

	// IndexName is the index/collection the engine writes to.
	IndexName string `yaml:"index_name,omitempty"`

	// Dimension is the vector dimension of the index.
	Dimension int `yaml:"dimension,omitempty"`

	// Metric is the distance metric: cosine, euclidean, dot.
	Metric string `yaml:"metric,omitempty"`

	// PersistPath for chromem file persistence.
	PersistPath string `yaml:"persist_path,omitempty"`

	// Timeout per vector operation, in seconds.
	Timeout int `yaml:"timeout,omitempty"`
}

// SetDefaults applies default values.
func (c *VectorStoreConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "chromem"
	}
	if c.IndexName == "" {
		c.IndexName = "takeoff-documents"
	}
	if c.Dimension <= 0 {
		c.Dimension = 1536
	}
	if c.Metric == "" {
		c.Metric = "cosine"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30
	}
}

// Validate checks the configuration for errors.
func (c *VectorStoreConfig) Validate() error {
	switch c.Type {
	case "chromem", "qdrant", "pinecone", "":
	default:
		return fmt.Errorf("unsupported vector store type: %q", c.Type)
	}
	switch c.Metric {
	case "cosine", "euclidean", "dot", "":
	default:
		return fmt.Errorf("unsupported metric: %q", c.Metric)
	}
	if c.Type == "pinecone" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for pinecone")
	}
	return nil
}

// EmbedderConfig configures the embedding service client.
type EmbedderConfig struct {
	// Type is the embedder type: "openai", "ollama".
	Type string `yaml:"type,omitempty"`

	// Model is the embedding model name.
	Model string `yaml:"model,omitempty"`

	// Host overrides the service base URL.
	Host string `yaml:"host,omitempty"`

	// APIKey for authenticated services.
	APIKey string `yaml:"api_key,omitempty"`

	// Dimension of produced vectors.
	Dimension int `yaml:"dimension,omitempty"`

	// BatchSize caps texts per request.
	BatchSize int `yaml:"batch_size,omitempty"`

	// Timeout per embedding batch, in seconds.
	Timeout int `yaml:"timeout,omitempty"`
}

// SetDefaults applies default values.
func (c *EmbedderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "openai"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Dimension <= 0 {
		switch c.Model {
		case "text-embedding-3-large":
			c.Dimension = 3072
		default:
			c.Dimension = 1536
		}
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Timeout <= 0 {
		c.Timeout = 60
	}
}

// LLMProviderConfig configures an LLM provider endpoint.
type LLMProviderConfig struct {
	// Type is the provider envelope: "anthropic" or "openai".
	Type string `yaml:"type"`

	// Model is the default model name.
	Model string `yaml:"model,omitempty"`

	// APIKey authenticates requests.
	APIKey string `yaml:"api_key,omitempty"`

	// Host overrides the API base URL.
	Host string `yaml:"host,omitempty"`

	// MaxTokens caps response length.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Temperature for generation.
	Temperature float64 `yaml:"temperature,omitempty"`

	// Timeout per call, in seconds.
	Timeout int `yaml:"timeout,omitempty"`

	// Vision marks the provider/model as vision capable.
	Vision bool `yaml:"vision,omitempty"`
}

// SetDefaults applies default values.
func (c *LLMProviderConfig) SetDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4000
	}
	if c.Timeout <= 0 {
		c.Timeout = 180
	}
	if c.Host == "" {
		switch c.Type {
		case "anthropic":
			c.Host = "https://api.anthropic.com"
		case "openai":
			c.Host = "https://api.openai.com/v1"
		}
	}
}

// Validate checks the configuration for errors.
func (c *LLMProviderConfig) Validate() error {
	switch c.Type {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unsupported provider type: %q", c.Type)
	}
	return nil
}

// VisionConfig configures rasterization for vision models.
type VisionConfig struct {
	// DPI for page rendering.
	DPI int `yaml:"dpi,omitempty"`

	// MaxWidth and MaxHeight clamp the rendered image, in pixels.
	MaxWidth  int `yaml:"max_width,omitempty"`
	MaxHeight int `yaml:"max_height,omitempty"`

	// Format is "jpeg" or "png".
	Format string `yaml:"format,omitempty"`

	// JPEGQuality in [1,100].
	JPEGQuality int `yaml:"jpeg_quality,omitempty"`

	// MaxPages caps pages per unified extraction.
	MaxPages int `yaml:"max_pages,omitempty"`
}

// SetDefaults applies default values.
func (c *VisionConfig) SetDefaults() {
	if c.DPI <= 0 {
		c.DPI = 300
	}
	if c.MaxWidth <= 0 {
		c.MaxWidth = 4000
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = 4000
	}
	if c.Format == "" {
		c.Format = "jpeg"
	}
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = 85
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 10
	}
}

// DatabaseConfig configures the relational document store.
type DatabaseConfig struct {
	// Driver is "sqlite3" or "postgres".
	Driver string `yaml:"driver,omitempty"`

	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn,omitempty"`
}

// SetDefaults applies default values.
func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite3"
	}
	if c.DSN == "" && c.Driver == "sqlite3" {
		c.DSN = ".takeoff/takeoff.db"
	}
}

// Validate checks the configuration for errors.
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "sqlite3", "postgres", "":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Driver)
	}
	return nil
}
