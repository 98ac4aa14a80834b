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

// Package vectordb is a thin adapter over pluggable vector databases.
//
// Namespaces partition an index per knowledge base; the namespace is
// always the knowledge-base id. Metadata values are sanitized before
// upsert to the lowest common denominator across backends.
package vectordb

import (
	"context"
	"errors"
	"fmt"

	"github.com/plansight/takeoff/pkg/config"
)

// ErrBackendUnavailable wraps connectivity failures to the vector
// backend. Storage treats it as a warning, not a rollback.
var ErrBackendUnavailable = errors.New("vector backend unavailable")

// UpsertBatchSize caps vectors per backend call.
const UpsertBatchSize = 100

// Vector is one embedding with its metadata.
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// SearchResult is one scored match.
type SearchResult struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]any
	Values   []float32
}

// Stats summarizes an index or one namespace of it.
type Stats struct {
	VectorCount int64
	Dimension   int
	Namespaces  map[string]int64
}

// Store is the pluggable vector database interface.
type Store interface {
	// Initialize ensures the index exists with the declared dimension
	// and metric.
	Initialize(ctx context.Context, createIfAbsent bool) error

	// Upsert writes vectors idempotently by id, in batches of at most
	// UpsertBatchSize. Returns the number of vectors written.
	Upsert(ctx context.Context, vectors []Vector, namespace string) (int, error)

	// Search returns the topK nearest vectors, optionally filtered on
	// metadata.
	Search(ctx context.Context, query []float32, topK int, filter map[string]any, namespace string) ([]SearchResult, error)

	// DeleteIDs removes vectors by id.
	DeleteIDs(ctx context.Context, ids []string, namespace string) error

	// DeleteByFilter removes vectors matching the metadata filter.
	DeleteByFilter(ctx context.Context, filter map[string]any, namespace string) error

	// DeleteNamespace removes every vector in the namespace.
	DeleteNamespace(ctx context.Context, namespace string) error

	// Stats reports vector counts, whole-index when namespace is
	// empty.
	Stats(ctx context.Context, namespace string) (*Stats, error)

	// Close releases resources.
	Close() error
}

// New constructs a store from config.
func New(cfg config.VectorStoreConfig) (Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vector store config: %w", err)
	}

	switch cfg.Type {
	case "chromem":
		return NewChromemStore(cfg)
	case "qdrant":
		return NewQdrantStore(cfg)
	case "pinecone":
		return NewPineconeStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported vector store type: %q", cfg.Type)
	}
}
