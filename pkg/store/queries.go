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

	"github.com/plansight/takeoff/pkg/search"
)

// QueryRecord is a persisted retrieval query with its latency split.
type QueryRecord struct {
	ID              string
	KnowledgeBaseID string
	QueryText       string
	Strategy        string
	TopK            int
	EmbeddingMS     int64
	RetrievalMS     int64
	RerankingMS     int64
	TotalMS         int64
	CostUSD         float64
	Feedback        string
	SessionID       string
}

// RecordQuery persists a query and its ranked results in one
// transaction. Returns the query id.
func (s *Store) RecordQuery(ctx context.Context, knowledgeBaseID, text string, result *search.QueryResult, sessionID string) (string, error) {
	queryID := uuid.NewString()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO rag_queries (id, knowledge_base_id, query_text, strategy, top_k, embedding_ms, retrieval_ms, reranking_ms, total_ms, cost_usd, session_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			queryID, knowledgeBaseID, text, string(result.Strategy), len(result.Results),
			result.EmbeddingMS, result.RetrievalMS, result.RerankingMS, result.TotalMS,
			result.CostUSD, sessionID, now())
		if err != nil {
			return fmt.Errorf("failed to record query: %w", err)
		}

		for rank, r := range result.Results {
			var rerankScore any
			if r.RerankApplied {
				rerankScore = r.Score
			}
			relevance := r.Score
			if r.RerankApplied {
				relevance = r.OriginalScore
			}
			_, err := tx.ExecContext(ctx, s.rebind(
				`INSERT INTO rag_query_results (id, query_id, chunk_id, rank, relevance_score, rerank_score)
				 VALUES (?, ?, ?, ?, ?, ?)`),
				uuid.NewString(), queryID, r.ID, rank+1, relevance, rerankScore)
			if err != nil {
				return fmt.Errorf("failed to record query result: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return queryID, nil
}

// SetQueryFeedback attaches human feedback to a query record.
func (s *Store) SetQueryFeedback(ctx context.Context, queryID, feedback string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE rag_queries SET feedback = ? WHERE id = ?`), feedback, queryID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetResultRelevance records a human relevance label on one query
// result.
func (s *Store) SetResultRelevance(ctx context.Context, queryID, chunkID string, relevant bool) error {
	label := 0
	if relevant {
		label = 1
	}
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE rag_query_results SET human_relevance = ? WHERE query_id = ? AND chunk_id = ?`),
		label, queryID, chunkID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetQuery loads a query record by id.
func (s *Store) GetQuery(ctx context.Context, queryID string) (*QueryRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, knowledge_base_id, query_text, strategy, top_k, embedding_ms, retrieval_ms, reranking_ms, total_ms, cost_usd, feedback, session_id
		 FROM rag_queries WHERE id = ?`), queryID)

	var q QueryRecord
	err := row.Scan(&q.ID, &q.KnowledgeBaseID, &q.QueryText, &q.Strategy, &q.TopK,
		&q.EmbeddingMS, &q.RetrievalMS, &q.RerankingMS, &q.TotalMS, &q.CostUSD,
		&q.Feedback, &q.SessionID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load query: %w", err)
	}
	return &q, nil
}
