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

package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plansight/takeoff/pkg/config"
	"github.com/plansight/takeoff/pkg/embedders"
	"github.com/plansight/takeoff/pkg/vectordb"
)

// KeywordSearcher serves the keyword leg of hybrid search. The
// document store implements it with SQL term matching.
type KeywordSearcher interface {
	SearchKeywords(ctx context.Context, knowledgeBaseID, query string, topK int) ([]Result, error)
}

// StatsRecorder persists per-chunk retrieval statistics. Updates must
// avoid lost increments under concurrent queries.
type StatsRecorder interface {
	RecordRetrieval(ctx context.Context, chunkIDs []string, relevance []float64) error
}

// Query is one retrieval request.
type Query struct {
	Text            string
	KnowledgeBaseID string
	Strategy        config.RetrievalStrategy
	TopK            int
	RerankTopK      int
	Filter          map[string]any
	RerankStrategy  RerankStrategy

	// DiversityBias in [0,1] applies under the mmr strategy.
	DiversityBias float64
}

// QueryResult is the outcome of one retrieval request with its latency
// split.
type QueryResult struct {
	Results []Result

	EmbeddingMS int64
	RetrievalMS int64
	RerankingMS int64
	TotalMS     int64

	Strategy config.RetrievalStrategy
	CostUSD  float64
}

// RetrievalService answers queries: embed, search, optionally fuse
// with keyword results, optionally rerank, then update statistics.
type RetrievalService struct {
	embedder embedders.Embedder
	store    vectordb.Store
	keywords KeywordSearcher
	stats    StatsRecorder
	hybrid   HybridConfig
}

// RetrievalServiceDeps wires the service collaborators. Keywords and
// Stats are optional.
type RetrievalServiceDeps struct {
	Embedder embedders.Embedder
	Store    vectordb.Store
	Keywords KeywordSearcher
	Stats    StatsRecorder
	Hybrid   HybridConfig
}

// NewRetrievalService creates a retrieval service.
func NewRetrievalService(deps RetrievalServiceDeps) (*RetrievalService, error) {
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	deps.Hybrid.SetDefaults()

	return &RetrievalService{
		embedder: deps.Embedder,
		store:    deps.Store,
		keywords: deps.Keywords,
		stats:    deps.Stats,
		hybrid:   deps.Hybrid,
	}, nil
}

// Retrieve runs one query. Embedding, retrieval and reranking
// latencies are measured separately.
func (s *RetrievalService) Retrieve(ctx context.Context, q Query) (*QueryResult, error) {
	start := time.Now()
	out := &QueryResult{Strategy: q.Strategy}

	topK := q.TopK
	if topK <= 0 {
		topK = 5
	}
	reranking := q.Strategy == config.RetrievalReranking
	searchK := topK
	if reranking {
		searchK = q.RerankTopK
		if searchK <= 0 {
			searchK = topK * 4
		}
	}
	if q.Strategy == config.RetrievalMMR {
		// MMR needs a candidate pool to diversify over.
		searchK = topK * 4
	}

	embedStart := time.Now()
	queryVector, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}
	out.EmbeddingMS = time.Since(embedStart).Milliseconds()

	searchStart := time.Now()
	vectorResults, err := s.store.Search(ctx, queryVector, searchK, q.Filter, q.KnowledgeBaseID)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	var results []Result
	if q.Strategy == config.RetrievalMMR {
		bias := q.DiversityBias
		if bias == 0 {
			bias = 0.3
		}
		results = MMR(vectorResults, topK, bias)
	} else {
		results = toResults(vectorResults)
	}

	if q.Strategy == config.RetrievalHybrid && s.keywords != nil {
		keywordResults, err := s.keywords.SearchKeywords(ctx, q.KnowledgeBaseID, q.Text, searchK)
		if err != nil {
			slog.Warn("Keyword search failed, continuing with vector results",
				"knowledge_base", q.KnowledgeBaseID,
				"error", err)
		} else {
			results = Fuse(s.hybrid, results, keywordResults)
		}
	}
	out.RetrievalMS = time.Since(searchStart).Milliseconds()

	if reranking {
		rerankStart := time.Now()
		reranker, err := NewReranker(q.RerankStrategy)
		if err != nil {
			return nil, err
		}
		results, err = reranker.Rerank(ctx, q.Text, results, topK)
		if err != nil {
			return nil, fmt.Errorf("reranking failed: %w", err)
		}
		out.RerankingMS = time.Since(rerankStart).Milliseconds()
	}

	if len(results) > topK {
		results = results[:topK]
	}
	out.Results = results
	out.TotalMS = time.Since(start).Milliseconds()

	if s.stats != nil && len(results) > 0 {
		ids := make([]string, len(results))
		relevance := make([]float64, len(results))
		for i, r := range results {
			ids[i] = r.ID
			relevance[i] = r.Score
		}
		if err := s.stats.RecordRetrieval(ctx, ids, relevance); err != nil {
			slog.Warn("Failed to update retrieval statistics", "error", err)
		}
	}

	return out, nil
}

// toResults converts vector search results into the fusion shape.
func toResults(in []vectordb.SearchResult) []Result {
	out := make([]Result, len(in))
	for i, r := range in {
		out[i] = Result{
			ID:       r.ID,
			Score:    float64(r.Score),
			Content:  r.Content,
			Metadata: r.Metadata,
		}
	}
	return out
}
