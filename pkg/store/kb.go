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
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/plansight/takeoff/pkg/config"
)

// KnowledgeBase is a tenant-scoped document container with aggregate
// counters and retrieval policy.
type KnowledgeBase struct {
	ID               string
	Name             string
	DocumentCount    int
	ChunkCount       int
	TokenCount       int
	EmbeddingCostUSD float64
	Policy           config.KnowledgeBasePolicy
	CreatedAt        string
	UpdatedAt        string
}

// IndexStatus is the lifecycle status of a vector index descriptor.
type IndexStatus string

const (
	IndexInitializing IndexStatus = "initializing"
	IndexActive       IndexStatus = "active"
	IndexUpdating     IndexStatus = "updating"
	IndexError        IndexStatus = "error"
	IndexRebuilding   IndexStatus = "rebuilding"
)

// VectorIndex is a vector index descriptor. One descriptor per
// knowledge base is active at a time; writes serialize through it.
type VectorIndex struct {
	ID              string
	KnowledgeBaseID string
	Metric          string
	Dimension       int
	Status          IndexStatus
	VectorCount     int64
}

// CreateKnowledgeBase inserts a knowledge base with the given policy.
func (s *Store) CreateKnowledgeBase(ctx context.Context, name string, policy config.KnowledgeBasePolicy) (string, error) {
	policy.SetDefaults()
	if err := policy.Validate(); err != nil {
		return "", fmt.Errorf("invalid knowledge base policy: %w", err)
	}

	id := uuid.NewString()
	ts := now()
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO knowledge_bases (id, name, chunk_size, chunk_overlap, similarity_top_k, mmr_diversity_bias, retrieval_strategy, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, name, policy.ChunkSize, policy.ChunkOverlap, policy.SimilarityTopK,
		policy.MMRDiversityBias, string(policy.RetrievalStrategy), ts, ts)
	if err != nil {
		return "", fmt.Errorf("failed to create knowledge base: %w", err)
	}
	return id, nil
}

// GetKnowledgeBase loads a knowledge base by id.
func (s *Store) GetKnowledgeBase(ctx context.Context, id string) (*KnowledgeBase, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, name, document_count, chunk_count, token_count, embedding_cost_usd,
		        chunk_size, chunk_overlap, similarity_top_k, mmr_diversity_bias, retrieval_strategy,
		        created_at, updated_at
		 FROM knowledge_bases WHERE id = ?`), id)

	var kb KnowledgeBase
	var strategy string
	err := row.Scan(&kb.ID, &kb.Name, &kb.DocumentCount, &kb.ChunkCount, &kb.TokenCount,
		&kb.EmbeddingCostUSD, &kb.Policy.ChunkSize, &kb.Policy.ChunkOverlap,
		&kb.Policy.SimilarityTopK, &kb.Policy.MMRDiversityBias, &strategy,
		&kb.CreatedAt, &kb.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}
	kb.Policy.RetrievalStrategy = config.RetrievalStrategy(strategy)
	return &kb, nil
}

// ReconcileKnowledgeBaseStats recomputes the aggregate counters from
// the non-deleted documents. Runs after every mutation that changes
// document membership.
func (s *Store) ReconcileKnowledgeBaseStats(ctx context.Context, knowledgeBaseID string, embeddingCostDelta float64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var docs, tokens int
		err := tx.QueryRowContext(ctx, s.rebind(
			`SELECT COUNT(*), COALESCE(SUM(token_count), 0)
			 FROM documents WHERE knowledge_base_id = ? AND is_active = 1`), knowledgeBaseID).
			Scan(&docs, &tokens)
		if err != nil {
			return err
		}

		var chunkCount int
		err = tx.QueryRowContext(ctx, s.rebind(
			`SELECT COUNT(*) FROM chunks c JOIN documents d ON d.id = c.document_id
			 WHERE d.knowledge_base_id = ? AND d.is_active = 1 AND c.is_active = 1`), knowledgeBaseID).
			Scan(&chunkCount)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, s.rebind(
			`UPDATE knowledge_bases
			 SET document_count = ?, chunk_count = ?, token_count = ?,
			     embedding_cost_usd = embedding_cost_usd + ?, updated_at = ?
			 WHERE id = ?`),
			docs, chunkCount, tokens, embeddingCostDelta, now(), knowledgeBaseID)
		return err
	})
}

// EnsureActiveIndex returns the knowledge base's active vector index
// descriptor, creating one only when none is active, so at most one
// stays active. An active descriptor with a different dimension or
// metric is reported as an error requiring a rebuild; it is not
// replaced.
func (s *Store) EnsureActiveIndex(ctx context.Context, knowledgeBaseID, metric string, dimension int) (*VectorIndex, error) {
	var out *VectorIndex
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.rebind(
			`SELECT id, knowledge_base_id, metric, dimension, status, vector_count
			 FROM vector_indexes WHERE knowledge_base_id = ? AND status = ?`),
			knowledgeBaseID, string(IndexActive))

		var vi VectorIndex
		var status string
		err := row.Scan(&vi.ID, &vi.KnowledgeBaseID, &vi.Metric, &vi.Dimension, &status, &vi.VectorCount)
		if err == nil {
			vi.Status = IndexStatus(status)
			if vi.Dimension != dimension || vi.Metric != metric {
				return fmt.Errorf("active index %s has dimension %d/%s, want %d/%s: rebuild required",
					vi.ID, vi.Dimension, vi.Metric, dimension, metric)
			}
			out = &vi
			return nil
		}
		if err != sql.ErrNoRows {
			return err
		}

		ts := now()
		vi = VectorIndex{
			ID:              uuid.NewString(),
			KnowledgeBaseID: knowledgeBaseID,
			Metric:          metric,
			Dimension:       dimension,
			Status:          IndexActive,
		}
		_, err = tx.ExecContext(ctx, s.rebind(
			`INSERT INTO vector_indexes (id, knowledge_base_id, metric, dimension, status, vector_count, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`),
			vi.ID, knowledgeBaseID, metric, dimension, string(IndexActive), ts, ts)
		if err != nil {
			return err
		}
		out = &vi
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetIndexStatus transitions a vector index descriptor.
func (s *Store) SetIndexStatus(ctx context.Context, indexID string, status IndexStatus) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE vector_indexes SET status = ?, updated_at = ? WHERE id = ?`),
		string(status), now(), indexID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddIndexVectors adjusts a descriptor's vector count.
func (s *Store) AddIndexVectors(ctx context.Context, indexID string, delta int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE vector_indexes SET vector_count = vector_count + ?, updated_at = ? WHERE id = ?`),
		delta, now(), indexID)
	return err
}
