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

package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plansight/takeoff/pkg/chunking"
	"github.com/plansight/takeoff/pkg/config"
	"github.com/plansight/takeoff/pkg/embedders"
	"github.com/plansight/takeoff/pkg/extraction"
	"github.com/plansight/takeoff/pkg/store"
	"github.com/plansight/takeoff/pkg/vectordb"
)

// fakeEmbedder produces deterministic unit vectors.
type fakeEmbedder struct{ fail bool }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	batch, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return batch.Embeddings[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) (*embedders.BatchResult, error) {
	if f.fail {
		return nil, fmt.Errorf("embedding service down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return &embedders.BatchResult{Success: true, Embeddings: out, CostUSD: 0.001, ModelUsed: "fake"}, nil
}

func (f *fakeEmbedder) Dimension() int    { return 3 }
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Close() error      { return nil }

// unreachableVectors simulates a dead vector backend.
type unreachableVectors struct{}

func (unreachableVectors) Initialize(context.Context, bool) error { return vectordb.ErrBackendUnavailable }
func (unreachableVectors) Upsert(context.Context, []vectordb.Vector, string) (int, error) {
	return 0, fmt.Errorf("%w: connection refused", vectordb.ErrBackendUnavailable)
}
func (unreachableVectors) Search(context.Context, []float32, int, map[string]any, string) ([]vectordb.SearchResult, error) {
	return nil, vectordb.ErrBackendUnavailable
}
func (unreachableVectors) DeleteIDs(context.Context, []string, string) error {
	return vectordb.ErrBackendUnavailable
}
func (unreachableVectors) DeleteByFilter(context.Context, map[string]any, string) error {
	return vectordb.ErrBackendUnavailable
}
func (unreachableVectors) DeleteNamespace(context.Context, string) error {
	return vectordb.ErrBackendUnavailable
}
func (unreachableVectors) Stats(context.Context, string) (*vectordb.Stats, error) {
	return nil, vectordb.ErrBackendUnavailable
}
func (unreachableVectors) Close() error { return nil }

func newHarness(t *testing.T, vectors vectordb.Store, embedder embedders.Embedder) (*Orchestrator, *store.Store, string, string) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(config.DatabaseConfig{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	chunker, err := chunking.NewChunker(chunking.ChunkerConfig{Size: 1000, Overlap: 200})
	require.NoError(t, err)

	o, err := New(Deps{Store: s, Chunker: chunker, Embedder: embedder, Vectors: vectors})
	require.NoError(t, err)

	kbID, err := s.CreateKnowledgeBase(ctx, "kb", config.KnowledgeBasePolicy{})
	require.NoError(t, err)
	docID, err := s.CreateDocument(ctx, "doc.pdf", "application/pdf", "", kbID)
	require.NoError(t, err)
	return o, s, kbID, docID
}

func successResponse() *extraction.Response {
	return &extraction.Response{
		Success: true,
		Text:    "Sheet notes and general arrangement.",
		Tables: []extraction.Table{{
			TableType: "schedule",
			Headers:   []string{"MARK", "QTY"},
			Rows:      [][]string{{"C1", "4"}},
			Page:      1,
		}},
	}
}

func TestStoreDocument_AllStages(t *testing.T) {
	ctx := context.Background()
	vectors, err := vectordb.NewChromemStore(config.VectorStoreConfig{IndexName: "idx", Dimension: 3})
	require.NoError(t, err)

	o, s, kbID, docID := newHarness(t, vectors, &fakeEmbedder{})

	result := o.StoreDocument(ctx, docID, successResponse(), kbID)
	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, 2, result.ChunksStored, "one text chunk and one table chunk")
	assert.Equal(t, 2, result.VectorsStored)

	// Chunks carry their vector ids.
	chunks, err := s.GetChunks(ctx, docID)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.NotEmpty(t, c.VectorID)
	}

	// Knowledge-base statistics reconciled.
	kb, err := s.GetKnowledgeBase(ctx, kbID)
	require.NoError(t, err)
	assert.Equal(t, 1, kb.DocumentCount)
	assert.Equal(t, 2, kb.ChunkCount)
}

func TestStoreDocument_VectorBackendUnavailable(t *testing.T) {
	// Extraction and chunks succeed; the vector backend is down. The
	// run stays successful with exactly one warning naming the
	// condition, and the document completes.
	ctx := context.Background()
	o, s, kbID, docID := newHarness(t, unreachableVectors{}, &fakeEmbedder{})

	result := o.StoreDocument(ctx, docID, successResponse(), kbID)

	assert.True(t, result.Success)
	assert.Greater(t, result.ChunksStored, 0)
	assert.Equal(t, 0, result.VectorsStored)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "VectorBackendUnavailable")

	doc, err := s.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, doc.Status)

	// Chunks were not rolled back.
	chunks, err := s.GetChunks(ctx, docID)
	require.NoError(t, err)
	assert.Len(t, chunks, result.ChunksStored)

	kb, err := s.GetKnowledgeBase(ctx, kbID)
	require.NoError(t, err)
	assert.Equal(t, result.ChunksStored, kb.ChunkCount)
}

func TestStoreDocument_EmbeddingFailureIsWarning(t *testing.T) {
	ctx := context.Background()
	vectors, err := vectordb.NewChromemStore(config.VectorStoreConfig{IndexName: "idx", Dimension: 3})
	require.NoError(t, err)

	o, _, kbID, docID := newHarness(t, vectors, &fakeEmbedder{fail: true})

	result := o.StoreDocument(ctx, docID, successResponse(), kbID)
	assert.True(t, result.Success)
	assert.Greater(t, result.ChunksStored, 0)
	assert.Equal(t, 0, result.VectorsStored)
	require.Len(t, result.Warnings, 1)
}

func TestStoreDocument_FailedExtractionPersistsForAudit(t *testing.T) {
	ctx := context.Background()
	vectors, err := vectordb.NewChromemStore(config.VectorStoreConfig{IndexName: "idx", Dimension: 3})
	require.NoError(t, err)

	o, s, kbID, docID := newHarness(t, vectors, &fakeEmbedder{})

	resp := &extraction.Response{Success: false, Error: "ProviderPermanent: 401"}
	result := o.StoreDocument(ctx, docID, resp, kbID)

	assert.True(t, result.Success)
	assert.Zero(t, result.ChunksStored)
	assert.Zero(t, result.VectorsStored)

	doc, err := s.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, doc.Status)
}

func TestDeleteDocument_SoftDeleteAndVectors(t *testing.T) {
	ctx := context.Background()
	vectors, err := vectordb.NewChromemStore(config.VectorStoreConfig{IndexName: "idx", Dimension: 3})
	require.NoError(t, err)

	o, s, kbID, docID := newHarness(t, vectors, &fakeEmbedder{})
	result := o.StoreDocument(ctx, docID, successResponse(), kbID)
	require.True(t, result.Success)

	require.NoError(t, o.DeleteDocument(ctx, docID, kbID))

	doc, err := s.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.False(t, doc.IsActive)

	kb, err := s.GetKnowledgeBase(ctx, kbID)
	require.NoError(t, err)
	assert.Equal(t, 0, kb.DocumentCount)
}
