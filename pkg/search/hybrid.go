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

// Package search implements hybrid vector+keyword retrieval with rank
// fusion and pluggable reranking.
package search

import (
	"fmt"
	"sort"
)

// Result is one retrieval candidate flowing through fusion and
// reranking.
type Result struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// OriginalScore preserves the pre-rerank score.
	OriginalScore float64 `json:"original_score,omitempty"`

	// RerankApplied marks results that passed through a reranker.
	RerankApplied bool `json:"rerank_applied,omitempty"`
}

// FusionMethod selects how vector and keyword result lists combine.
type FusionMethod string

const (
	FusionRRF      FusionMethod = "rrf"
	FusionWeighted FusionMethod = "weighted"
)

// RRFConstant is the k in 1/(k+rank); 60 is the standard choice.
const RRFConstant = 60

// HybridConfig configures fusion.
type HybridConfig struct {
	// Method is rrf or weighted.
	Method FusionMethod `yaml:"method,omitempty"`

	// VectorWeight and KeywordWeight apply to weighted fusion and must
	// sum to 1.
	VectorWeight  float64 `yaml:"vector_weight,omitempty"`
	KeywordWeight float64 `yaml:"keyword_weight,omitempty"`
}

// SetDefaults applies default values.
func (c *HybridConfig) SetDefaults() {
	if c.Method == "" {
		c.Method = FusionRRF
	}
	if c.VectorWeight == 0 && c.KeywordWeight == 0 {
		c.VectorWeight = 0.7
		c.KeywordWeight = 0.3
	}
}

// Validate checks the configuration for errors.
func (c *HybridConfig) Validate() error {
	switch c.Method {
	case FusionRRF, FusionWeighted, "":
	default:
		return fmt.Errorf("invalid fusion method: %q", c.Method)
	}
	if c.Method == FusionWeighted {
		if sum := c.VectorWeight + c.KeywordWeight; sum < 0.999 || sum > 1.001 {
			return fmt.Errorf("fusion weights must sum to 1, got %g", sum)
		}
	}
	return nil
}

// Fuse combines vector and keyword result lists into one ranked list.
func Fuse(cfg HybridConfig, vectorResults, keywordResults []Result) []Result {
	cfg.SetDefaults()
	switch cfg.Method {
	case FusionWeighted:
		return weightedFusion(vectorResults, keywordResults, cfg.VectorWeight, cfg.KeywordWeight)
	default:
		return reciprocalRankFusion(vectorResults, keywordResults, RRFConstant)
	}
}

// reciprocalRankFusion scores each id as the sum of 1/(k+rank) over
// the lists it appears in. Rank-only: raw scores do not participate.
func reciprocalRankFusion(vectorResults, keywordResults []Result, k int) []Result {
	type entry struct {
		result Result
		score  float64
		// order keys make ties deterministic: first list, then rank.
		listOrder int
		rank      int
	}

	entries := make(map[string]*entry)
	add := func(results []Result, listOrder int) {
		for rank, r := range results {
			contribution := 1.0 / float64(k+rank+1)
			if e, ok := entries[r.ID]; ok {
				e.score += contribution
				continue
			}
			entries[r.ID] = &entry{result: r, score: contribution, listOrder: listOrder, rank: rank}
		}
	}
	add(vectorResults, 0)
	add(keywordResults, 1)

	fused := make([]*entry, 0, len(entries))
	for _, e := range entries {
		fused = append(fused, e)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		if fused[i].listOrder != fused[j].listOrder {
			return fused[i].listOrder < fused[j].listOrder
		}
		return fused[i].rank < fused[j].rank
	})

	out := make([]Result, len(fused))
	for i, e := range fused {
		r := e.result
		r.Score = e.score
		out[i] = r
	}
	return out
}

// weightedFusion blends the raw scores of both lists.
func weightedFusion(vectorResults, keywordResults []Result, wv, wk float64) []Result {
	type entry struct {
		result Result
		score  float64
		order  int
	}

	entries := make(map[string]*entry)
	order := 0
	for _, r := range vectorResults {
		entries[r.ID] = &entry{result: r, score: wv * r.Score, order: order}
		order++
	}
	for _, r := range keywordResults {
		if e, ok := entries[r.ID]; ok {
			e.score += wk * r.Score
			continue
		}
		entries[r.ID] = &entry{result: r, score: wk * r.Score, order: order}
		order++
	}

	fused := make([]*entry, 0, len(entries))
	for _, e := range entries {
		fused = append(fused, e)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].order < fused[j].order
	})

	out := make([]Result, len(fused))
	for i, e := range fused {
		r := e.result
		r.Score = e.score
		out[i] = r
	}
	return out
}
