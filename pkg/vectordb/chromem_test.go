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

package vectordb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plansight/takeoff/pkg/config"
)

func newChromem(t *testing.T) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore(config.VectorStoreConfig{
		Type:      "chromem",
		IndexName: "test-index",
		Dimension: 3,
	})
	require.NoError(t, err)
	return s
}

func vec(id string, values []float32) Vector {
	return Vector{
		ID:     id,
		Values: values,
		Metadata: map[string]any{
			"content":  "content of " + id,
			"document": "doc-1",
		},
	}
}

func TestChromem_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t)

	n, err := s.Upsert(ctx, []Vector{
		vec("a", []float32{1, 0, 0}),
		vec("b", []float32{0, 1, 0}),
		vec("c", []float32{0.9, 0.1, 0}),
	}, "kb1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	results, err := s.Search(ctx, []float32{1, 0, 0}, 2, nil, "kb1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.Equal(t, "content of a", results[0].Content)
}

func TestChromem_UpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t)

	vectors := []Vector{vec("a", []float32{1, 0, 0})}
	_, err := s.Upsert(ctx, vectors, "kb1")
	require.NoError(t, err)
	_, err = s.Upsert(ctx, vectors, "kb1")
	require.NoError(t, err)

	stats, err := s.Stats(ctx, "kb1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.VectorCount)
}

func TestChromem_SearchRankStability(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t)

	_, err := s.Upsert(ctx, []Vector{
		vec("a", []float32{1, 0, 0}),
		vec("b", []float32{0.8, 0.2, 0}),
		vec("c", []float32{0.6, 0.4, 0}),
	}, "kb1")
	require.NoError(t, err)

	query := []float32{1, 0, 0}
	first, err := s.Search(ctx, query, 3, nil, "kb1")
	require.NoError(t, err)
	second, err := s.Search(ctx, query, 3, nil, "kb1")
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestChromem_NamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t)

	_, err := s.Upsert(ctx, []Vector{vec("a", []float32{1, 0, 0})}, "kb1")
	require.NoError(t, err)
	_, err = s.Upsert(ctx, []Vector{vec("b", []float32{1, 0, 0})}, "kb2")
	require.NoError(t, err)

	results, err := s.Search(ctx, []float32{1, 0, 0}, 10, nil, "kb1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)

	require.NoError(t, s.DeleteNamespace(ctx, "kb1"))
	stats, err := s.Stats(ctx, "kb2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.VectorCount)
}

func TestChromem_DeleteIDsAndByFilter(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t)

	_, err := s.Upsert(ctx, []Vector{
		vec("a", []float32{1, 0, 0}),
		vec("b", []float32{0, 1, 0}),
	}, "kb1")
	require.NoError(t, err)

	require.NoError(t, s.DeleteIDs(ctx, []string{"a"}, "kb1"))
	stats, err := s.Stats(ctx, "kb1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.VectorCount)

	require.NoError(t, s.DeleteByFilter(ctx, map[string]any{"document": "doc-1"}, "kb1"))
	stats, err = s.Stats(ctx, "kb1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.VectorCount)
}

func TestChromem_EmptyNamespaceSearch(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t)

	results, err := s.Search(ctx, []float32{1, 0, 0}, 5, nil, "missing")
	require.NoError(t, err)
	assert.Empty(t, results)
}
