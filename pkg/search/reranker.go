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
	"sort"
)

// RerankStrategy selects the reranking policy.
type RerankStrategy string

const (
	// RerankSimple boosts scores from chunk metadata and re-sorts.
	RerankSimple RerankStrategy = "simple"

	// RerankCrossEncoder scores query-document pairs with a
	// cross-encoder model. Declared; falls back to simple until a
	// model is wired.
	RerankCrossEncoder RerankStrategy = "cross_encoder"

	// RerankLLM asks an LLM to order results. Declared; falls back to
	// simple until wired.
	RerankLLM RerankStrategy = "llm"
)

// Reranker reorders search results to improve relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []Result, topK int) ([]Result, error)
	Strategy() RerankStrategy
}

// NewReranker creates a reranker for the strategy.
func NewReranker(strategy RerankStrategy) (Reranker, error) {
	switch strategy {
	case RerankSimple, "":
		return &SimpleReranker{}, nil
	case RerankCrossEncoder, RerankLLM:
		// Declared strategies without a backing model run the simple
		// policy.
		return &SimpleReranker{declared: strategy}, nil
	default:
		return nil, fmt.Errorf("unknown rerank strategy: %q", strategy)
	}
}

// SimpleReranker boosts results by chunk metadata:
// tables x1.2, metadata chunks x1.1, and chunks over 500 tokens x1.05.
type SimpleReranker struct {
	declared RerankStrategy
}

// Strategy returns the strategy the reranker was requested as.
func (r *SimpleReranker) Strategy() RerankStrategy {
	if r.declared != "" {
		return r.declared
	}
	return RerankSimple
}

// Rerank applies the metadata boosts and re-sorts.
func (r *SimpleReranker) Rerank(ctx context.Context, query string, results []Result, topK int) ([]Result, error) {
	if len(results) == 0 {
		return nil, nil
	}

	reranked := make([]Result, len(results))
	for i, result := range results {
		score := result.Score

		chunkType, _ := result.Metadata["chunk_type"].(string)
		switch chunkType {
		case "table":
			score *= 1.2
		case "metadata", "drawing_metadata":
			score *= 1.1
		}

		if tokenCount(result.Metadata) > 500 {
			score *= 1.05
		}

		reranked[i] = result
		reranked[i].OriginalScore = result.Score
		reranked[i].Score = score
		reranked[i].RerankApplied = true
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	if topK > 0 && len(reranked) > topK {
		reranked = reranked[:topK]
	}
	return reranked, nil
}

// tokenCount reads the token_count metadata value across the numeric
// types backends return.
func tokenCount(metadata map[string]any) int {
	switch v := metadata["token_count"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		return n
	}
	return 0
}

// Ensure SimpleReranker implements Reranker.
var _ Reranker = (*SimpleReranker)(nil)
