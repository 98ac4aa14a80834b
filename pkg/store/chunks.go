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
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/plansight/takeoff/pkg/chunking"
	"github.com/plansight/takeoff/pkg/search"
)

// ChunkRow is a stored chunk.
type ChunkRow struct {
	ID             string
	DocumentID     string
	ChunkIndex     int
	Kind           chunking.Kind
	Content        string
	TokenCount     int
	Page           int
	VectorID       string
	RetrievalCount int
	AvgRelevance   float64
	IsActive       bool
}

// StoreChunks writes a document's chunks in one transaction,
// replacing any previous chunk set. Returns the stored chunk ids in
// chunk order.
func (s *Store) StoreChunks(ctx context.Context, documentID string, chunks []chunking.Chunk) ([]string, error) {
	ids := make([]string, len(chunks))

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(
			`DELETE FROM chunks WHERE document_id = ?`), documentID); err != nil {
			return err
		}

		ts := now()
		for i, c := range chunks {
			id := uuid.NewString()
			ids[i] = id
			_, err := tx.ExecContext(ctx, s.rebind(
				`INSERT INTO chunks (id, document_id, chunk_index, kind, content, token_count, page, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
				id, documentID, c.Index, string(c.Kind), c.Content, c.TokenCount, c.Page, ts)
			if err != nil {
				return fmt.Errorf("failed to store chunk %d: %w", c.Index, err)
			}
		}

		_, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE documents SET chunk_count = ?, updated_at = ? WHERE id = ?`),
			len(chunks), ts, documentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// SetChunkVectorIDs records the vector-store id each chunk embedded
// into. The reference is weak: a missing vector target is tolerated at
// read time.
func (s *Store) SetChunkVectorIDs(ctx context.Context, chunkIDs, vectorIDs []string) error {
	if len(chunkIDs) != len(vectorIDs) {
		return fmt.Errorf("chunk/vector id length mismatch: %d vs %d", len(chunkIDs), len(vectorIDs))
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for i, chunkID := range chunkIDs {
			if _, err := tx.ExecContext(ctx, s.rebind(
				`UPDATE chunks SET vector_id = ? WHERE id = ?`), vectorIDs[i], chunkID); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetChunks loads a document's active chunks ordered by index.
func (s *Store) GetChunks(ctx context.Context, documentID string) ([]ChunkRow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, document_id, chunk_index, kind, content, token_count, page, vector_id, retrieval_count, avg_relevance, is_active
		 FROM chunks WHERE document_id = ? AND is_active = 1 ORDER BY chunk_index`), documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]ChunkRow, error) {
	var out []ChunkRow
	for rows.Next() {
		var c ChunkRow
		var kind string
		var active int
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &kind, &c.Content, &c.TokenCount,
			&c.Page, &c.VectorID, &c.RetrievalCount, &c.AvgRelevance, &active); err != nil {
			return nil, err
		}
		c.Kind = chunking.Kind(kind)
		c.IsActive = active == 1
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecordRetrieval bumps retrieval counts and folds relevance into the
// rolling mean. The whole update happens in one SQL statement per
// chunk, so concurrent queries cannot lose increments.
func (s *Store) RecordRetrieval(ctx context.Context, chunkIDs []string, relevance []float64) error {
	if len(chunkIDs) != len(relevance) {
		return fmt.Errorf("chunk/relevance length mismatch")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for i, id := range chunkIDs {
			_, err := tx.ExecContext(ctx, s.rebind(
				`UPDATE chunks
				 SET avg_relevance = (avg_relevance * retrieval_count + ?) / (retrieval_count + 1),
				     retrieval_count = retrieval_count + 1
				 WHERE id = ?`), relevance[i], id)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SearchKeywords serves the keyword leg of hybrid search with SQL term
// matching over active chunks of the knowledge base. Results rank by
// matched-term count, then by term frequency.
func (s *Store) SearchKeywords(ctx context.Context, knowledgeBaseID, query string, topK int) ([]search.Result, error) {
	terms := keywordTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	conditions := make([]string, len(terms))
	args := []any{knowledgeBaseID}
	for i, term := range terms {
		conditions[i] = "LOWER(c.content) LIKE ?"
		args = append(args, "%"+term+"%")
	}

	q := fmt.Sprintf(
		`SELECT c.id, c.content, c.kind, c.token_count
		 FROM chunks c JOIN documents d ON d.id = c.document_id
		 WHERE d.knowledge_base_id = ? AND d.is_active = 1 AND c.is_active = 1 AND (%s)`,
		strings.Join(conditions, " OR "))

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()

	var results []search.Result
	for rows.Next() {
		var id, content, kind string
		var tokenCount int
		if err := rows.Scan(&id, &content, &kind, &tokenCount); err != nil {
			return nil, err
		}

		lower := strings.ToLower(content)
		matched := 0
		frequency := 0
		for _, term := range terms {
			if n := strings.Count(lower, term); n > 0 {
				matched++
				frequency += n
			}
		}
		score := float64(matched) + float64(frequency)/100

		results = append(results, search.Result{
			ID:      id,
			Score:   score,
			Content: content,
			Metadata: map[string]any{
				"chunk_type":  kind,
				"token_count": tokenCount,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// keywordTerms lowercases and splits a query, dropping one-character
// noise.
func keywordTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

// Ensure Store satisfies the retrieval collaborator contracts.
var (
	_ search.KeywordSearcher = (*Store)(nil)
	_ search.StatsRecorder   = (*Store)(nil)
)
