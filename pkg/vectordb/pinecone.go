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

package vectordb

import (
	"context"
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/plansight/takeoff/pkg/config"
)

// PineconeStore implements Store over a Pinecone serverless index.
// Pinecone has native namespaces, so the knowledge-base id maps
// directly.
type PineconeStore struct {
	client    *pinecone.Client
	config    config.VectorStoreConfig
	indexName string

	mu        sync.Mutex
	indexHost string

	// writeMu serializes writes through the active index descriptor.
	writeMu sync.Mutex
}

// NewPineconeStore creates a pinecone-backed store.
func NewPineconeStore(cfg config.VectorStoreConfig) (*PineconeStore, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	return &PineconeStore{client: client, config: cfg, indexName: cfg.IndexName}, nil
}

func (s *PineconeStore) metric() pinecone.IndexMetric {
	switch s.config.Metric {
	case "euclidean":
		return pinecone.Euclidean
	case "dot":
		return pinecone.Dotproduct
	default:
		return pinecone.Cosine
	}
}

// Initialize ensures the index exists, creating a serverless index
// when allowed.
func (s *PineconeStore) Initialize(ctx context.Context, createIfAbsent bool) error {
	_, err := s.client.DescribeIndex(ctx, s.indexName)
	if err == nil {
		return nil
	}
	if !createIfAbsent {
		return fmt.Errorf("index %q does not exist: %w", s.indexName, err)
	}

	dimension := int32(s.config.Dimension)
	_, err = s.client.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:      s.indexName,
		Dimension: dimension,
		Metric:    s.metric(),
		Cloud:     pinecone.Aws,
		Region:    "us-east-1",
	})
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// connection opens an index connection scoped to a namespace.
func (s *PineconeStore) connection(ctx context.Context, namespace string) (*pinecone.IndexConnection, error) {
	s.mu.Lock()
	host := s.indexHost
	s.mu.Unlock()

	if host == "" {
		index, err := s.client.DescribeIndex(ctx, s.indexName)
		if err != nil {
			return nil, fmt.Errorf("%w: describe index %s: %v", ErrBackendUnavailable, s.indexName, err)
		}
		s.mu.Lock()
		s.indexHost = index.Host
		host = index.Host
		s.mu.Unlock()
	}

	conn, err := s.client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("%w: index connection: %v", ErrBackendUnavailable, err)
	}
	return conn, nil
}

// Upsert writes vectors in batches of at most UpsertBatchSize.
func (s *PineconeStore) Upsert(ctx context.Context, vectors []Vector, namespace string) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn, err := s.connection(ctx, namespace)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	written := 0
	for start := 0; start < len(vectors); start += UpsertBatchSize {
		end := start + UpsertBatchSize
		if end > len(vectors) {
			end = len(vectors)
		}

		batch := make([]*pinecone.Vector, 0, end-start)
		for _, v := range vectors[start:end] {
			var metadata *pinecone.Metadata
			if len(v.Metadata) > 0 {
				metadata, err = structpb.NewStruct(SanitizeMetadata(v.Metadata))
				if err != nil {
					return written, fmt.Errorf("failed to convert metadata for %s: %w", v.ID, err)
				}
			}
			batch = append(batch, &pinecone.Vector{
				Id:       v.ID,
				Values:   v.Values,
				Metadata: metadata,
			})
		}

		if _, err := conn.UpsertVectors(ctx, batch); err != nil {
			return written, fmt.Errorf("%w: upsert: %v", ErrBackendUnavailable, err)
		}
		written += len(batch)
	}

	return written, nil
}

// Search returns the topK nearest vectors in the namespace.
func (s *PineconeStore) Search(ctx context.Context, query []float32, topK int, filter map[string]any, namespace string) ([]SearchResult, error) {
	conn, err := s.connection(ctx, namespace)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var metadataFilter *pinecone.MetadataFilter
	if len(filter) > 0 {
		metadataFilter, err = structpb.NewStruct(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to convert filter: %w", err)
		}
	}

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          query,
		TopK:            uint32(topK),
		MetadataFilter:  metadataFilter,
		IncludeValues:   true,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrBackendUnavailable, err)
	}

	results := make([]SearchResult, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		if match.Vector == nil {
			continue
		}
		result := SearchResult{
			ID:     match.Vector.Id,
			Score:  match.Score,
			Values: match.Vector.Values,
		}
		if match.Vector.Metadata != nil {
			result.Metadata = match.Vector.Metadata.AsMap()
			if content, ok := result.Metadata["content"].(string); ok {
				result.Content = content
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// DeleteIDs removes vectors by id.
func (s *PineconeStore) DeleteIDs(ctx context.Context, ids []string, namespace string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn, err := s.connection(ctx, namespace)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteVectorsById(ctx, ids); err != nil {
		return fmt.Errorf("%w: delete: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// DeleteByFilter removes vectors matching the metadata filter.
func (s *PineconeStore) DeleteByFilter(ctx context.Context, filter map[string]any, namespace string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn, err := s.connection(ctx, namespace)
	if err != nil {
		return err
	}
	defer conn.Close()

	metadataFilter, err := structpb.NewStruct(filter)
	if err != nil {
		return fmt.Errorf("failed to convert filter: %w", err)
	}
	if err := conn.DeleteVectorsByFilter(ctx, metadataFilter); err != nil {
		return fmt.Errorf("%w: delete by filter: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// DeleteNamespace removes every vector in the namespace.
func (s *PineconeStore) DeleteNamespace(ctx context.Context, namespace string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn, err := s.connection(ctx, namespace)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteAllVectorsInNamespace(ctx); err != nil {
		return fmt.Errorf("%w: delete namespace: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Stats reports vector counts from the index stats endpoint.
func (s *PineconeStore) Stats(ctx context.Context, namespace string) (*Stats, error) {
	conn, err := s.connection(ctx, namespace)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := conn.DescribeIndexStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: stats: %v", ErrBackendUnavailable, err)
	}

	stats := &Stats{
		VectorCount: int64(resp.TotalVectorCount),
		Dimension:   int(resp.Dimension),
		Namespaces:  make(map[string]int64),
	}
	for name, summary := range resp.Namespaces {
		if summary != nil {
			stats.Namespaces[name] = int64(summary.VectorCount)
		}
	}
	if namespace != "" {
		if n, ok := stats.Namespaces[namespace]; ok {
			stats.VectorCount = n
		}
	}
	return stats, nil
}

// Close releases resources; the Pinecone client has no explicit close.
func (s *PineconeStore) Close() error { return nil }

// Ensure PineconeStore implements Store.
var _ Store = (*PineconeStore)(nil)
