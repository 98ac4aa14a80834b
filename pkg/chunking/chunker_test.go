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

package chunking

import (
	"strings"
	"testing"

	"github.com/plansight/takeoff/pkg/extraction"
)

func newTestChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := NewChunker(ChunkerConfig{Size: size, Overlap: overlap})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestChunkText_SmallContentSingleChunk(t *testing.T) {
	c := newTestChunker(t, 100, 20)
	chunks := c.ChunkText("a short paragraph")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "a short paragraph" {
		t.Errorf("content changed: %q", chunks[0])
	}
}

func TestChunkText_EmptyContent(t *testing.T) {
	c := newTestChunker(t, 100, 20)
	if chunks := c.ChunkText("   "); chunks != nil {
		t.Errorf("expected nil for empty content, got %v", chunks)
	}
}

func TestChunkText_SplitsOnParagraphs(t *testing.T) {
	c := newTestChunker(t, 30, 5)

	para := strings.Repeat("word ", 20) // ~20 tokens
	text := strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para)

	chunks := c.ChunkText(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if got := c.counter.Count(chunk); got > 2*c.config.Size {
			t.Errorf("chunk %d has %d tokens, far above size", i, got)
		}
	}
}

func TestChunkText_HardSplitOversizeParagraph(t *testing.T) {
	c := newTestChunker(t, 20, 4)

	para := strings.TrimSpace(strings.Repeat("token ", 100))
	chunks := c.ChunkText(para)
	if len(chunks) < 4 {
		t.Fatalf("expected hard split into several chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if got := c.counter.Count(chunk); got > c.config.Size+2 {
			t.Errorf("chunk %d exceeds size: %d tokens", i, got)
		}
	}
}

func TestChunkResponse_KindsAndAtomicity(t *testing.T) {
	c := newTestChunker(t, 1000, 200)

	resp := &extraction.Response{
		Text: "Body text of the drawing sheet.",
		Tables: []extraction.Table{{
			TableType: "schedule",
			Caption:   "FASTENER SCHEDULE",
			Headers:   []string{"MARK", "TYPE", "QTY"},
			Rows:      [][]string{{"A", "HEX BOLT", "15"}},
			Page:      1,
		}},
		VisualElements: &extraction.VisualElements{
			ElementGroups: []extraction.ElementGroup{{
				GroupID:     "group_001",
				ElementType: "HEX_BOLT_M8x20",
				Count:       15,
				Page:        1,
			}},
		},
		DrawingMetadata: &extraction.DrawingMetadata{DrawingNumber: "DWG-1"},
	}

	chunks := c.ChunkResponse(resp)

	kinds := map[Kind]int{}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("chunk %d has index %d", i, chunk.Index)
		}
		kinds[chunk.Kind]++
		if chunk.Metadata["chunk_type"] != string(chunk.Kind) {
			t.Errorf("chunk %d missing chunk_type metadata", i)
		}
	}

	if kinds[KindText] != 1 || kinds[KindTable] != 1 || kinds[KindVisualElementGroup] != 1 || kinds[KindDrawingMetadata] != 1 {
		t.Fatalf("unexpected kind distribution: %v", kinds)
	}

	for _, chunk := range chunks {
		if chunk.Kind == KindTable && !chunk.Kind.Atomic() {
			t.Error("table chunks must be atomic")
		}
	}

	// Table content preserves rows verbatim.
	for _, chunk := range chunks {
		if chunk.Kind == KindTable {
			if !strings.Contains(chunk.Content, "A | HEX BOLT | 15") {
				t.Errorf("table chunk lost row data: %q", chunk.Content)
			}
		}
		if chunk.Kind == KindVisualElementGroup {
			if !strings.Contains(chunk.Content, "15 x HEX_BOLT_M8x20") {
				t.Errorf("group chunk lost description: %q", chunk.Content)
			}
		}
	}
}

func TestKindAtomicity(t *testing.T) {
	atomic := []Kind{KindTable, KindMetadata, KindDrawingMetadata}
	for _, k := range atomic {
		if !k.Atomic() {
			t.Errorf("%s should be atomic", k)
		}
	}
	if KindText.Atomic() {
		t.Error("text chunks are not atomic")
	}
	if KindVisualElementGroup.Atomic() {
		t.Error("visual element groups are not atomic")
	}
}

func TestChunkDeterminism(t *testing.T) {
	c := newTestChunker(t, 50, 10)
	text := strings.TrimSpace(strings.Repeat("alpha beta gamma delta. ", 40))

	first := c.ChunkText(text)
	second := c.ChunkText(text)
	if len(first) != len(second) {
		t.Fatalf("nondeterministic chunk count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}
