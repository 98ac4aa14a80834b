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

// Package storage orchestrates the atomic store of extraction output:
// extraction record, chunks, embeddings and vectors.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/plansight/takeoff/pkg/chunking"
	"github.com/plansight/takeoff/pkg/embedders"
	"github.com/plansight/takeoff/pkg/extraction"
	"github.com/plansight/takeoff/pkg/observability"
	"github.com/plansight/takeoff/pkg/store"
	"github.com/plansight/takeoff/pkg/vectordb"
)

// Result reports what a store_document run persisted. Partial
// failures fill Errors and Warnings instead of rolling back completed
// stages.
type Result struct {
	Success       bool     `json:"success"`
	DocumentID    string   `json:"document_id"`
	ExtractionID  string   `json:"extraction_id,omitempty"`
	ChunksStored  int      `json:"chunks_stored"`
	VectorsStored int      `json:"vectors_stored"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	CostUSD       float64  `json:"cost_usd"`
	TimeMS        int64    `json:"processing_time_ms"`
}

// Orchestrator runs the staged document store.
type Orchestrator struct {
	store    *store.Store
	chunker  *chunking.Chunker
	embedder embedders.Embedder
	vectors  vectordb.Store
	metrics  observability.MetricsSink
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Store    *store.Store
	Chunker  *chunking.Chunker
	Embedder embedders.Embedder
	Vectors  vectordb.Store
	Metrics  observability.MetricsSink
}

// New creates a storage orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if deps.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Vectors == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NopSink{}
	}
	return &Orchestrator{
		store:    deps.Store,
		chunker:  deps.Chunker,
		embedder: deps.Embedder,
		vectors:  deps.Vectors,
		metrics:  deps.Metrics,
	}, nil
}

// StoreDocument persists an extraction in stages: (a) extraction
// record, (b) chunk generation, (c) chunk rows, (d) embeddings and
// vector upsert under the knowledge-base namespace.
//
// Chunks are written only when extraction storage succeeded; vectors
// are attempted only when chunks persisted; a vector failure records a
// warning without rolling back chunks. The document is never left
// half-committed.
func (o *Orchestrator) StoreDocument(ctx context.Context, documentID string, resp *extraction.Response, knowledgeBaseID string) *Result {
	start := time.Now()
	result := &Result{
		DocumentID: documentID,
		Errors:     []string{},
		Warnings:   []string{},
		CostUSD:    resp.CostUSD,
	}
	defer func() {
		result.TimeMS = time.Since(start).Milliseconds()
	}()

	// Stage a: extraction record plus document aggregates.
	extractionID, err := o.store.StoreExtraction(ctx, documentID, resp, nil, knowledgeBaseID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("extraction storage failed: %v", err))
		return result
	}
	result.ExtractionID = extractionID

	if !resp.Success {
		// Failed extractions persist for audit; there is nothing to
		// chunk.
		result.Success = true
		return result
	}

	// Stage b: chunk generation.
	chunks := o.chunker.ChunkResponse(resp)
	if len(chunks) == 0 {
		result.Warnings = append(result.Warnings, "no chunks generated from document")
		result.Success = true
		return result
	}

	// Stage c: chunk rows.
	chunkIDs, err := o.store.StoreChunks(ctx, documentID, chunks)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("chunk storage failed: %v", err))
		return result
	}
	result.ChunksStored = len(chunkIDs)

	// Stage d: embeddings and vectors. Failures here degrade to a
	// warning; the chunks stay committed with empty vector ids, and no
	// retry of the vectors is scheduled.
	stored, cost, err := o.storeVectors(ctx, documentID, knowledgeBaseID, chunks, chunkIDs)
	result.VectorsStored = stored
	result.CostUSD += cost
	if err != nil {
		if errors.Is(err, vectordb.ErrBackendUnavailable) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("VectorBackendUnavailable: %v", err))
		} else {
			result.Warnings = append(result.Warnings, fmt.Sprintf("vector storage failed: %v", err))
		}
	}

	if err := o.store.ReconcileKnowledgeBaseStats(ctx, knowledgeBaseID, cost); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("statistics reconciliation failed: %v", err))
	}

	result.Success = true
	slog.Info("Stored document",
		"document", documentID,
		"knowledge_base", knowledgeBaseID,
		"chunks", result.ChunksStored,
		"vectors", result.VectorsStored,
		"warnings", len(result.Warnings))
	return result
}

// storeVectors embeds chunk contents and upserts them under the
// knowledge-base namespace, then records the vector ids on the chunks.
func (o *Orchestrator) storeVectors(ctx context.Context, documentID, knowledgeBaseID string, chunks []chunking.Chunk, chunkIDs []string) (int, float64, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	embedStart := time.Now()
	batch, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: embedding: %v", vectordb.ErrBackendUnavailable, err)
	}
	o.metrics.RecordEmbedding(batch.ModelUsed, len(texts), batch.CostUSD, time.Since(embedStart).Milliseconds())

	if len(batch.Embeddings) != len(chunks) {
		return 0, batch.CostUSD, fmt.Errorf("embedding count mismatch: %d vectors for %d chunks", len(batch.Embeddings), len(chunks))
	}

	vectors := make([]vectordb.Vector, len(chunks))
	for i, c := range chunks {
		metadata := map[string]any{
			"content":     c.Content,
			"document_id": documentID,
			"chunk_index": c.Index,
			"page":        c.Page,
		}
		for k, v := range c.Metadata {
			metadata[k] = v
		}
		vectors[i] = vectordb.Vector{
			ID:       chunkIDs[i],
			Values:   batch.Embeddings[i],
			Metadata: metadata,
		}
	}

	stored, err := o.vectors.Upsert(ctx, vectors, knowledgeBaseID)
	if err != nil {
		return stored, batch.CostUSD, err
	}

	if err := o.store.SetChunkVectorIDs(ctx, chunkIDs, chunkIDs); err != nil {
		return stored, batch.CostUSD, fmt.Errorf("failed to record vector ids: %w", err)
	}
	return stored, batch.CostUSD, nil
}

// DeleteDocument soft-deletes a document and removes its vectors from
// the index. Vector removal failures are logged and leave the soft
// delete in place; the vectors are not removed later.
func (o *Orchestrator) DeleteDocument(ctx context.Context, documentID, knowledgeBaseID string) error {
	if err := o.store.SoftDeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := o.vectors.DeleteByFilter(ctx, map[string]any{"document_id": documentID}, knowledgeBaseID); err != nil {
		slog.Warn("Failed to delete vectors for document",
			"document", documentID,
			"error", err)
	}
	return o.store.ReconcileKnowledgeBaseStats(ctx, knowledgeBaseID, 0)
}
