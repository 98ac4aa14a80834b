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

package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/plansight/takeoff/pkg/config"
)

// OllamaEmbedder implements Embedder against a local Ollama server.
// Useful for development without external spend.
type OllamaEmbedder struct {
	client    *http.Client
	baseURL   string
	model     string
	dimension int
	batchSize int
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewOllamaEmbedder creates an Ollama embedder from config.
func NewOllamaEmbedder(cfg config.EmbedderConfig) (*OllamaEmbedder, error) {
	cfg.SetDefaults()

	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" || model == "text-embedding-3-small" {
		model = "nomic-embed-text"
	}
	dimension := cfg.Dimension
	if dimension == 1536 {
		dimension = 768 // nomic-embed-text default
	}

	return &OllamaEmbedder{
		client:    &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		batchSize: cfg.BatchSize,
	}, nil
}

// Embed embeds a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("received empty embedding from Ollama")
	}
	return result.Embeddings[0], nil
}

// EmbedBatch embeds texts in batches, preserving input order. Local
// inference has no cost.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error) {
	if len(texts) == 0 {
		return &BatchResult{Success: true, ModelUsed: e.model}, nil
	}

	result := &BatchResult{ModelUsed: e.model, Embeddings: make([][]float32, 0, len(texts))}

	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts[i:end]})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to send request to Ollama: %w", err)
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		var parsed ollamaEmbedResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if resp.StatusCode != http.StatusOK || parsed.Error != "" {
			return nil, fmt.Errorf("Ollama API error (status %d): %s", resp.StatusCode, parsed.Error)
		}

		result.Embeddings = append(result.Embeddings, parsed.Embeddings...)
	}

	result.Success = true
	return result, nil
}

// Dimension returns the embedding dimension.
func (e *OllamaEmbedder) Dimension() int { return e.dimension }

// ModelName returns the embedding model.
func (e *OllamaEmbedder) ModelName() string { return e.model }

// Close releases resources.
func (e *OllamaEmbedder) Close() error { return nil }

// Ensure OllamaEmbedder implements Embedder.
var _ Embedder = (*OllamaEmbedder)(nil)
