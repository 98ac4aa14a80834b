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

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plansight/takeoff/pkg/chunking"
	"github.com/plansight/takeoff/pkg/config"
	"github.com/plansight/takeoff/pkg/extraction"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.DatabaseConfig{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedKBAndDocument(t *testing.T, s *Store) (kbID, docID string) {
	t.Helper()
	ctx := context.Background()
	kbID, err := s.CreateKnowledgeBase(ctx, "plans", config.KnowledgeBasePolicy{})
	require.NoError(t, err)
	docID, err = s.CreateDocument(ctx, "sheet.pdf", "application/pdf", "s3://bucket/sheet.pdf", kbID)
	require.NoError(t, err)
	return kbID, docID
}

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, docID := seedKBAndDocument(t, s)

	doc, err := s.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, doc.Status)
	assert.True(t, doc.IsActive)

	require.NoError(t, s.UpdateDocumentStatus(ctx, docID, StatusProcessing, ""))
	require.NoError(t, s.UpdateDocumentStatus(ctx, docID, StatusFailed, "provider exploded"))

	// Transitions are monotone: failed cannot go back to pending,
	// but the retry path failed -> processing is allowed.
	assert.Error(t, s.UpdateDocumentStatus(ctx, docID, StatusPending, ""))
	require.NoError(t, s.UpdateDocumentStatus(ctx, docID, StatusProcessing, ""))
	require.NoError(t, s.UpdateDocumentStatus(ctx, docID, StatusCompleted, ""))

	doc, err = s.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, doc.Status)
}

func TestSoftDeleteAndRestore(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	kbID, docID := seedKBAndDocument(t, s)

	_, err := s.StoreChunks(ctx, docID, []chunking.Chunk{
		{Index: 0, Kind: chunking.KindText, Content: "structural slab detail", TokenCount: 4},
	})
	require.NoError(t, err)

	require.NoError(t, s.SoftDeleteDocument(ctx, docID))

	// Soft-deleted documents drop out of keyword search.
	results, err := s.SearchKeywords(ctx, kbID, "slab", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	chunks, err := s.GetChunks(ctx, docID)
	require.NoError(t, err)
	assert.Empty(t, chunks, "inactive chunks are filtered")

	// Restoring recovers the document unchanged.
	require.NoError(t, s.RestoreDocument(ctx, docID))
	results, err = s.SearchKeywords(ctx, kbID, "slab", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "slab")
}

func TestStoreExtraction_QualityAndStatus(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	kbID, docID := seedKBAndDocument(t, s)

	resp := &extraction.Response{
		Success:  true,
		Text:     "sheet text",
		Tables:   []extraction.Table{{Headers: []string{"A"}, Rows: [][]string{{"1"}}}},
		Warnings: []string{"page 2 parse warning"},
	}

	_, err := s.StoreExtraction(ctx, docID, resp, nil, kbID)
	require.NoError(t, err)

	doc, err := s.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, doc.Status)
	// 0.3 base + 0.2 text + 0.15 tables - 0.1 one warning
	assert.InDelta(t, 0.55, doc.QualityScore, 1e-9)

	loaded, err := s.GetExtraction(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, "sheet text", loaded.Text)
}

func TestStoreExtraction_FailurePersistedForAudit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	kbID, docID := seedKBAndDocument(t, s)

	resp := &extraction.Response{Success: false, Error: "authentication failed"}
	_, err := s.StoreExtraction(ctx, docID, resp, nil, kbID)
	require.NoError(t, err)

	doc, err := s.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, doc.Status)
	assert.Equal(t, 0.0, doc.QualityScore)

	loaded, err := s.GetExtraction(ctx, docID)
	require.NoError(t, err)
	assert.False(t, loaded.Success)
}

func TestQualityScore(t *testing.T) {
	full := &extraction.Response{
		Success:      true,
		Text:         "t",
		Tables:       []extraction.Table{{}},
		LayoutBlocks: []extraction.LayoutBlock{{}},
		Entities:     []extraction.Entity{{}},
		Summary:      "s",
	}
	assert.InDelta(t, 1.0, QualityScore(full), 1e-9)

	// Warnings subtract 0.1 each, capped at 0.3.
	full.Warnings = []string{"a", "b", "c", "d", "e"}
	assert.InDelta(t, 0.7, QualityScore(full), 1e-9)

	assert.Equal(t, 0.0, QualityScore(&extraction.Response{Success: false}))
	assert.InDelta(t, 0.3, QualityScore(&extraction.Response{Success: true}), 1e-9)

	// Only the base term is gated on success: a cancelled run that
	// merged partial text and tables still scores them.
	partial := &extraction.Response{
		Success: false,
		Error:   "Cancelled",
		Text:    "partial text",
		Tables:  []extraction.Table{{}},
	}
	assert.InDelta(t, 0.35, QualityScore(partial), 1e-9)
}

func TestRecordRetrieval_RollingMean(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, docID := seedKBAndDocument(t, s)

	ids, err := s.StoreChunks(ctx, docID, []chunking.Chunk{
		{Index: 0, Kind: chunking.KindText, Content: "c", TokenCount: 1},
	})
	require.NoError(t, err)

	require.NoError(t, s.RecordRetrieval(ctx, ids, []float64{0.8}))
	require.NoError(t, s.RecordRetrieval(ctx, ids, []float64{0.4}))

	chunks, err := s.GetChunks(ctx, docID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 2, chunks[0].RetrievalCount)
	assert.InDelta(t, 0.6, chunks[0].AvgRelevance, 1e-9)
}

func TestKeywordSearchRanking(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	kbID, docID := seedKBAndDocument(t, s)

	_, err := s.StoreChunks(ctx, docID, []chunking.Chunk{
		{Index: 0, Kind: chunking.KindText, Content: "hex bolt schedule with bolt sizes", TokenCount: 6},
		{Index: 1, Kind: chunking.KindTable, Content: "column schedule", TokenCount: 2},
	})
	require.NoError(t, err)

	results, err := s.SearchKeywords(ctx, kbID, "bolt schedule", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// The chunk matching both terms ranks first.
	assert.Contains(t, results[0].Content, "bolt")
	assert.Equal(t, "table", results[1].Metadata["chunk_type"])
}

func TestKnowledgeBaseStatsReconcile(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	kbID, docID := seedKBAndDocument(t, s)

	resp := &extraction.Response{Success: true, Text: "some sheet text to count tokens on"}
	_, err := s.StoreExtraction(ctx, docID, resp, nil, kbID)
	require.NoError(t, err)
	_, err = s.StoreChunks(ctx, docID, []chunking.Chunk{
		{Index: 0, Kind: chunking.KindText, Content: "a", TokenCount: 1},
		{Index: 1, Kind: chunking.KindText, Content: "b", TokenCount: 1},
	})
	require.NoError(t, err)

	require.NoError(t, s.ReconcileKnowledgeBaseStats(ctx, kbID, 0.5))

	kb, err := s.GetKnowledgeBase(ctx, kbID)
	require.NoError(t, err)
	assert.Equal(t, 1, kb.DocumentCount)
	assert.Equal(t, 2, kb.ChunkCount)
	assert.InDelta(t, 0.5, kb.EmbeddingCostUSD, 1e-9)

	// Soft deletion reconciles down to zero.
	require.NoError(t, s.SoftDeleteDocument(ctx, docID))
	require.NoError(t, s.ReconcileKnowledgeBaseStats(ctx, kbID, 0))
	kb, err = s.GetKnowledgeBase(ctx, kbID)
	require.NoError(t, err)
	assert.Equal(t, 0, kb.DocumentCount)
	assert.Equal(t, 0, kb.ChunkCount)
}

func TestEnsureActiveIndex_SingleActive(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	kbID, _ := seedKBAndDocument(t, s)

	first, err := s.EnsureActiveIndex(ctx, kbID, "cosine", 1536)
	require.NoError(t, err)
	assert.Equal(t, IndexActive, first.Status)

	second, err := s.EnsureActiveIndex(ctx, kbID, "cosine", 1536)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "active descriptor is reused")

	// A dimension change on the active descriptor demands a rebuild.
	_, err = s.EnsureActiveIndex(ctx, kbID, "cosine", 768)
	assert.Error(t, err)

	require.NoError(t, s.AddIndexVectors(ctx, first.ID, 42))
	require.NoError(t, s.SetIndexStatus(ctx, first.ID, IndexUpdating))
}

func TestChunkIndexUniqueWithinDocument(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, docID := seedKBAndDocument(t, s)

	// Re-storing replaces the previous chunk set rather than
	// violating the unique index.
	_, err := s.StoreChunks(ctx, docID, []chunking.Chunk{
		{Index: 0, Kind: chunking.KindText, Content: "v1", TokenCount: 1},
	})
	require.NoError(t, err)
	_, err = s.StoreChunks(ctx, docID, []chunking.Chunk{
		{Index: 0, Kind: chunking.KindText, Content: "v2", TokenCount: 1},
		{Index: 1, Kind: chunking.KindText, Content: "v2b", TokenCount: 1},
	})
	require.NoError(t, err)

	chunks, err := s.GetChunks(ctx, docID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "v2", chunks[0].Content)

	doc, err := s.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.ChunkCount)
}
