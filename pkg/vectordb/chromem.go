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
	"os"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/plansight/takeoff/pkg/config"
)

// ChromemStore implements Store over chromem-go, an embedded pure-Go
// vector database. Zero-config; the default for development and tests.
// Namespaces map to chromem collections.
type ChromemStore struct {
	db        *chromem.DB
	indexName string
	dimension int

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// NewChromemStore creates a chromem-backed store, loading persisted
// vectors when a persist path is configured.
func NewChromemStore(cfg config.VectorStoreConfig) (*ChromemStore, error) {
	var db *chromem.DB

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.PersistPath+"/vectors.gob", false)
		if err != nil {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	return &ChromemStore{
		db:          db,
		indexName:   cfg.IndexName,
		dimension:   cfg.Dimension,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// collectionName scopes a namespace under the index.
func (s *ChromemStore) collectionName(namespace string) string {
	if namespace == "" {
		return s.indexName
	}
	return s.indexName + "__" + namespace
}

func (s *ChromemStore) collection(namespace string) (*chromem.Collection, error) {
	name := s.collectionName(namespace)

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	// Embeddings are always pre-computed; the embedding func must
	// never run.
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("vectors must be pre-computed")
	}
	col, err := s.db.GetOrCreateCollection(name, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection %q: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

// Initialize is a no-op beyond collection creation; chromem creates
// collections lazily.
func (s *ChromemStore) Initialize(ctx context.Context, createIfAbsent bool) error {
	if !createIfAbsent {
		return nil
	}
	_, err := s.collection("")
	return err
}

// Upsert writes vectors in batches. Re-upserting an id replaces the
// stored document, so the operation is idempotent.
func (s *ChromemStore) Upsert(ctx context.Context, vectors []Vector, namespace string) (int, error) {
	col, err := s.collection(namespace)
	if err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(vectors); start += UpsertBatchSize {
		end := start + UpsertBatchSize
		if end > len(vectors) {
			end = len(vectors)
		}

		docs := make([]chromem.Document, 0, end-start)
		for _, v := range vectors[start:end] {
			metadata := SanitizeMetadata(v.Metadata)
			strMeta := make(map[string]string, len(metadata))
			content := ""
			for k, val := range metadata {
				if k == "content" {
					if str, ok := val.(string); ok {
						content = str
					}
				}
				strMeta[k] = fmt.Sprint(val)
			}
			docs = append(docs, chromem.Document{
				ID:        v.ID,
				Content:   content,
				Metadata:  strMeta,
				Embedding: v.Values,
			})
		}

		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return written, fmt.Errorf("failed to upsert documents: %w", err)
		}
		written += len(docs)
	}

	return written, nil
}

// Search returns the topK nearest vectors in the namespace.
func (s *ChromemStore) Search(ctx context.Context, query []float32, topK int, filter map[string]any, namespace string) ([]SearchResult, error) {
	col, err := s.collection(namespace)
	if err != nil {
		return nil, err
	}

	if count := col.Count(); count < topK {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	var where map[string]string
	if len(filter) > 0 {
		where = make(map[string]string, len(filter))
		for k, v := range filter {
			where[k] = fmt.Sprint(v)
		}
	}

	results, err := col.QueryEmbedding(ctx, query, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		metadata := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		out = append(out, SearchResult{
			ID:       r.ID,
			Score:    r.Similarity,
			Content:  r.Content,
			Metadata: metadata,
			Values:   r.Embedding,
		})
	}
	return out, nil
}

// DeleteIDs removes vectors by id.
func (s *ChromemStore) DeleteIDs(ctx context.Context, ids []string, namespace string) error {
	col, err := s.collection(namespace)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete ids: %w", err)
	}
	return nil
}

// DeleteByFilter removes vectors matching the metadata filter.
func (s *ChromemStore) DeleteByFilter(ctx context.Context, filter map[string]any, namespace string) error {
	col, err := s.collection(namespace)
	if err != nil {
		return err
	}
	where := make(map[string]string, len(filter))
	for k, v := range filter {
		where[k] = fmt.Sprint(v)
	}
	if err := col.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("failed to delete by filter: %w", err)
	}
	return nil
}

// DeleteNamespace drops the namespace's collection.
func (s *ChromemStore) DeleteNamespace(ctx context.Context, namespace string) error {
	name := s.collectionName(namespace)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to delete namespace: %w", err)
	}
	delete(s.collections, name)
	return nil
}

// Stats reports vector counts.
func (s *ChromemStore) Stats(ctx context.Context, namespace string) (*Stats, error) {
	stats := &Stats{Dimension: s.dimension, Namespaces: make(map[string]int64)}

	if namespace != "" {
		col, err := s.collection(namespace)
		if err != nil {
			return nil, err
		}
		n := int64(col.Count())
		stats.VectorCount = n
		stats.Namespaces[namespace] = n
		return stats, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, col := range s.collections {
		n := int64(col.Count())
		stats.VectorCount += n
		stats.Namespaces[name] = n
	}
	return stats, nil
}

// Close releases resources.
func (s *ChromemStore) Close() error { return nil }

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
