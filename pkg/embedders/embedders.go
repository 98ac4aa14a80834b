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

// Package embedders provides batch-oriented embedding-service clients.
package embedders

import (
	"context"
	"fmt"

	"github.com/plansight/takeoff/pkg/config"
)

// BatchResult is the outcome of one embedding batch call.
type BatchResult struct {
	Success    bool
	Embeddings [][]float32
	CostUSD    float64
	ModelUsed  string
}

// Embedder produces fixed-dimension embeddings for texts.
type Embedder interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in provider-sized batches, preserving
	// input order.
	EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error)

	// Dimension returns the embedding dimension.
	Dimension() int

	// ModelName returns the embedding model.
	ModelName() string

	// Close releases resources.
	Close() error
}

// New constructs an embedder from config.
func New(cfg config.EmbedderConfig) (Embedder, error) {
	cfg.SetDefaults()
	switch cfg.Type {
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "ollama":
		return NewOllamaEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedder type: %q", cfg.Type)
	}
}

// embeddingPricePerMTokens is the approximate USD price per million
// tokens for known embedding models; telemetry only.
var embeddingPricePerMTokens = map[string]float64{
	"text-embedding-3-small": 0.02,
	"text-embedding-3-large": 0.13,
	"text-embedding-ada-002": 0.10,
}

// estimateEmbeddingCost estimates batch cost from token usage.
func estimateEmbeddingCost(model string, tokens int) float64 {
	price, ok := embeddingPricePerMTokens[model]
	if !ok {
		return 0
	}
	return float64(tokens) / 1e6 * price
}
