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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func results(ids ...string) []Result {
	out := make([]Result, len(ids))
	for i, id := range ids {
		out[i] = Result{ID: id, Score: 1 - float64(i)*0.1}
	}
	return out
}

func TestRRF_StandardExample(t *testing.T) {
	// Vector [a,b,c], keyword [b,d,a], k=60, 1-indexed ranks:
	//   b = 1/62 + 1/61
	//   a = 1/61 + 1/63
	//   d = 1/62
	//   c = 1/63
	fused := Fuse(HybridConfig{Method: FusionRRF},
		results("a", "b", "c"),
		results("b", "d", "a"))

	require.Len(t, fused, 4)
	assert.Equal(t, "b", fused[0].ID)
	assert.Equal(t, "a", fused[1].ID)
	assert.Equal(t, "d", fused[2].ID)
	assert.Equal(t, "c", fused[3].ID)

	assert.InDelta(t, 1.0/62+1.0/61, fused[0].Score, 1e-12)
	assert.InDelta(t, 1.0/61+1.0/63, fused[1].Score, 1e-12)
	assert.InDelta(t, 1.0/62, fused[2].Score, 1e-12)
	assert.InDelta(t, 1.0/63, fused[3].Score, 1e-12)
}

func TestRRF_IgnoresRawScores(t *testing.T) {
	high := []Result{{ID: "x", Score: 100}}
	low := []Result{{ID: "y", Score: 0.001}, {ID: "x", Score: 0.0001}}

	fused := Fuse(HybridConfig{Method: FusionRRF}, high, low)
	// x appears in both lists; rank-only fusion puts it first despite
	// any raw score.
	assert.Equal(t, "x", fused[0].ID)
}

func TestWeightedFusion(t *testing.T) {
	vector := []Result{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.5}}
	keyword := []Result{{ID: "b", Score: 1.0}, {ID: "c", Score: 0.8}}

	fused := Fuse(HybridConfig{Method: FusionWeighted, VectorWeight: 0.7, KeywordWeight: 0.3},
		vector, keyword)

	require.Len(t, fused, 3)
	// a = 0.63, b = 0.35 + 0.30 = 0.65, c = 0.24
	assert.Equal(t, "b", fused[0].ID)
	assert.InDelta(t, 0.65, fused[0].Score, 1e-12)
	assert.Equal(t, "a", fused[1].ID)
	assert.InDelta(t, 0.63, fused[1].Score, 1e-12)
	assert.Equal(t, "c", fused[2].ID)
}

func TestHybridConfig_Validate(t *testing.T) {
	cfg := HybridConfig{Method: FusionWeighted, VectorWeight: 0.8, KeywordWeight: 0.3}
	assert.Error(t, cfg.Validate())

	cfg = HybridConfig{Method: FusionWeighted, VectorWeight: 0.6, KeywordWeight: 0.4}
	assert.NoError(t, cfg.Validate())

	cfg = HybridConfig{Method: "bm25"}
	assert.Error(t, cfg.Validate())
}

func TestSimpleReranker_TableBoost(t *testing.T) {
	// text 0.80 vs table 0.70: the 1.2x table boost flips the order.
	input := []Result{
		{ID: "text", Score: 0.80, Metadata: map[string]any{"chunk_type": "text", "token_count": 100}},
		{ID: "table", Score: 0.70, Metadata: map[string]any{"chunk_type": "table", "token_count": 100}},
	}

	reranker, err := NewReranker(RerankSimple)
	require.NoError(t, err)
	out, err := reranker.Rerank(context.Background(), "q", input, 10)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "table", out[0].ID)
	assert.InDelta(t, 0.84, out[0].Score, 1e-12)
	assert.InDelta(t, 0.70, out[0].OriginalScore, 1e-12)
	assert.True(t, out[0].RerankApplied)
	assert.Equal(t, "text", out[1].ID)
}

func TestSimpleReranker_MetadataAndTokenBoosts(t *testing.T) {
	input := []Result{
		{ID: "meta", Score: 0.5, Metadata: map[string]any{"chunk_type": "metadata"}},
		{ID: "big", Score: 0.5, Metadata: map[string]any{"chunk_type": "text", "token_count": 600}},
	}

	reranker, _ := NewReranker(RerankSimple)
	out, err := reranker.Rerank(context.Background(), "q", input, 10)
	require.NoError(t, err)

	// metadata: 0.5*1.1 = 0.55; big text: 0.5*1.05 = 0.525
	assert.Equal(t, "meta", out[0].ID)
	assert.InDelta(t, 0.55, out[0].Score, 1e-12)
	assert.InDelta(t, 0.525, out[1].Score, 1e-12)
}

func TestSimpleReranker_TopKTruncates(t *testing.T) {
	input := results("a", "b", "c", "d")
	for i := range input {
		input[i].Metadata = map[string]any{"chunk_type": "text"}
	}

	reranker, _ := NewReranker(RerankSimple)
	out, err := reranker.Rerank(context.Background(), "q", input, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestDeclaredStrategiesFallBackToSimple(t *testing.T) {
	for _, strategy := range []RerankStrategy{RerankCrossEncoder, RerankLLM} {
		r, err := NewReranker(strategy)
		require.NoError(t, err)
		assert.Equal(t, strategy, r.Strategy())

		out, err := r.Rerank(context.Background(), "q", results("a"), 5)
		require.NoError(t, err)
		assert.Len(t, out, 1)
	}
}
