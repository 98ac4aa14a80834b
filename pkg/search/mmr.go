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
	"math"

	"github.com/plansight/takeoff/pkg/vectordb"
)

// MMR selects topK results by maximal marginal relevance: each pick
// maximizes (1-bias)*relevance - bias*max-similarity-to-selected.
// bias in [0,1]; 0 reduces to plain similarity ranking. Candidates
// without vectors contribute zero redundancy and rank by score alone.
func MMR(candidates []vectordb.SearchResult, topK int, bias float64) []Result {
	if topK <= 0 || len(candidates) == 0 {
		return nil
	}
	if bias < 0 {
		bias = 0
	}
	if bias > 1 {
		bias = 1
	}

	remaining := make([]vectordb.SearchResult, len(candidates))
	copy(remaining, candidates)

	var selected []vectordb.SearchResult
	for len(selected) < topK && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)

		for i, cand := range remaining {
			redundancy := 0.0
			for _, s := range selected {
				if sim := cosine(cand.Values, s.Values); sim > redundancy {
					redundancy = sim
				}
			}
			score := (1-bias)*float64(cand.Score) - bias*redundancy
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return toResults(selected)
}

// cosine computes cosine similarity; zero when either vector is
// missing.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
