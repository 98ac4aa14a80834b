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

	"github.com/qdrant/go-client/qdrant"

	"github.com/plansight/takeoff/pkg/config"
)

// namespaceField is the payload key carrying the namespace; qdrant has
// no native namespaces, so every point is tagged and searches,
// filtered deletes and stats filter on the tag. DeleteIDs selects
// points by id alone.
const namespaceField = "_namespace"

// QdrantStore implements Store over a Qdrant collection.
type QdrantStore struct {
	client    *qdrant.Client
	config    config.VectorStoreConfig
	indexName string

	// writeMu serializes writes: one active index descriptor per
	// knowledge base at a time.
	writeMu sync.Mutex
}

// NewQdrantStore creates a qdrant-backed store.
func NewQdrantStore(cfg config.VectorStoreConfig) (*QdrantStore, error) {
	useTLS := cfg.EnableTLS != nil && *cfg.EnableTLS

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client for %s:%d: %w", host, port, err)
	}

	return &QdrantStore{client: client, config: cfg, indexName: cfg.IndexName}, nil
}

func (s *QdrantStore) distance() qdrant.Distance {
	switch s.config.Metric {
	case "euclidean":
		return qdrant.Distance_Euclid
	case "dot":
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

// Initialize ensures the collection exists with the configured
// dimension and metric.
func (s *QdrantStore) Initialize(ctx context.Context, createIfAbsent bool) error {
	exists, err := s.client.CollectionExists(ctx, s.indexName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if exists {
		return nil
	}
	if !createIfAbsent {
		return fmt.Errorf("collection %q does not exist", s.indexName)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.indexName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.config.Dimension),
			Distance: s.distance(),
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// Upsert writes vectors in batches, tagging each point with its
// namespace.
func (s *QdrantStore) Upsert(ctx context.Context, vectors []Vector, namespace string) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	written := 0
	for start := 0; start < len(vectors); start += UpsertBatchSize {
		end := start + UpsertBatchSize
		if end > len(vectors) {
			end = len(vectors)
		}

		points := make([]*qdrant.PointStruct, 0, end-start)
		for _, v := range vectors[start:end] {
			metadata := SanitizeMetadata(v.Metadata)
			metadata[namespaceField] = namespace

			payload := make(map[string]*qdrant.Value, len(metadata))
			for key, value := range metadata {
				val, err := qdrant.NewValue(value)
				if err != nil {
					return written, fmt.Errorf("failed to convert metadata value for key %s: %w", key, err)
				}
				payload[key] = val
			}

			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(v.ID),
				Vectors: qdrant.NewVectors(v.Values...),
				Payload: payload,
			})
		}

		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.indexName,
			Points:         points,
		}); err != nil {
			return written, fmt.Errorf("%w: upsert: %v", ErrBackendUnavailable, err)
		}
		written += len(points)
	}

	return written, nil
}

// buildFilter combines the namespace tag with the metadata filter.
func (s *QdrantStore) buildFilter(filter map[string]any, namespace string) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter)+1)
	if namespace != "" {
		conditions = append(conditions, qdrant.NewMatch(namespaceField, namespace))
	}
	for key, value := range filter {
		conditions = append(conditions, qdrant.NewMatch(key, fmt.Sprint(value)))
	}
	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

// Search returns the topK nearest points in the namespace.
func (s *QdrantStore) Search(ctx context.Context, query []float32, topK int, filter map[string]any, namespace string) ([]SearchResult, error) {
	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.indexName,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		Filter:         s.buildFilter(filter, namespace),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrBackendUnavailable, err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		result := SearchResult{Score: point.Score}

		if point.Id != nil {
			switch id := point.Id.PointIdOptions.(type) {
			case *qdrant.PointId_Uuid:
				result.ID = id.Uuid
			case *qdrant.PointId_Num:
				result.ID = fmt.Sprintf("%d", id.Num)
			}
		}

		if point.Vectors != nil {
			if v := point.Vectors.GetVector(); v != nil {
				if dense, ok := v.Vector.(*qdrant.VectorOutput_Dense); ok && dense.Dense != nil {
					result.Values = dense.Dense.Data
				}
			}
		}

		metadata := make(map[string]any, len(point.Payload))
		for key, value := range point.Payload {
			if key == namespaceField {
				continue
			}
			metadata[key] = decodeQdrantValue(value)
		}
		result.Metadata = metadata
		if content, ok := metadata["content"].(string); ok {
			result.Content = content
		}

		results = append(results, result)
	}
	return results, nil
}

func decodeQdrantValue(value *qdrant.Value) any {
	switch v := value.Kind.(type) {
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_ListValue:
		if v.ListValue == nil {
			return nil
		}
		list := make([]any, len(v.ListValue.Values))
		for i, item := range v.ListValue.Values {
			list[i] = decodeQdrantValue(item)
		}
		return list
	default:
		return value
	}
}

// DeleteIDs removes points by id.
func (s *QdrantStore) DeleteIDs(ctx context.Context, ids []string, namespace string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.indexName,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("%w: delete: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// DeleteByFilter removes points matching the metadata filter within
// the namespace.
func (s *QdrantStore) DeleteByFilter(ctx context.Context, filter map[string]any, namespace string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.indexName,
		Points:         qdrant.NewPointsSelectorFilter(s.buildFilter(filter, namespace)),
	})
	if err != nil {
		return fmt.Errorf("%w: delete by filter: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// DeleteNamespace removes every point tagged with the namespace.
func (s *QdrantStore) DeleteNamespace(ctx context.Context, namespace string) error {
	return s.DeleteByFilter(ctx, nil, namespace)
}

// Stats reports point counts.
func (s *QdrantStore) Stats(ctx context.Context, namespace string) (*Stats, error) {
	var filter *qdrant.Filter
	if namespace != "" {
		filter = s.buildFilter(nil, namespace)
	}

	exact := true
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.indexName,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: count: %v", ErrBackendUnavailable, err)
	}

	stats := &Stats{
		VectorCount: int64(count),
		Dimension:   s.config.Dimension,
		Namespaces:  make(map[string]int64),
	}
	if namespace != "" {
		stats.Namespaces[namespace] = int64(count)
	}
	return stats, nil
}

// Close closes the underlying client.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
