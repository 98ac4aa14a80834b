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

// Package chunking turns extraction output into retrieval chunks.
//
// Chunking is deterministic and kind-aware: text splits by token count
// with overlap, preferring paragraph boundaries; tables and drawing
// metadata are atomic and never split; visual-element groups serialize
// into one descriptive chunk per group.
package chunking

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/plansight/takeoff/pkg/extraction"
)

// Kind tags a chunk with its content kind.
type Kind string

const (
	KindText               Kind = "text"
	KindTable              Kind = "table"
	KindMetadata           Kind = "metadata"
	KindVisualElementGroup Kind = "visual_element_group"
	KindDrawingMetadata    Kind = "drawing_metadata"
)

// Atomic reports whether chunks of this kind are never merged or split
// during rechunking.
func (k Kind) Atomic() bool {
	switch k {
	case KindTable, KindMetadata, KindDrawingMetadata:
		return true
	}
	return false
}

// Chunk is one retrieval unit derived from a document.
type Chunk struct {
	Index      int            `json:"chunk_index"`
	Kind       Kind           `json:"kind"`
	Content    string         `json:"content"`
	TokenCount int            `json:"token_count"`
	Page       int            `json:"page,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ChunkerConfig configures chunking behavior.
type ChunkerConfig struct {
	// Size is the target chunk size in tokens.
	Size int `yaml:"size,omitempty"`

	// Overlap is the token overlap between adjacent text chunks.
	Overlap int `yaml:"overlap,omitempty"`

	// Model selects the token-counting encoding.
	Model string `yaml:"model,omitempty"`
}

// SetDefaults applies default values.
func (c *ChunkerConfig) SetDefaults() {
	if c.Size <= 0 {
		c.Size = 1000
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap == 0 {
		c.Overlap = 200
	}
	if c.Model == "" {
		c.Model = "gpt-4o"
	}
}

// Validate checks the configuration for errors.
func (c *ChunkerConfig) Validate() error {
	if c.Overlap >= c.Size {
		return fmt.Errorf("overlap (%d) must be less than size (%d)", c.Overlap, c.Size)
	}
	return nil
}

// Chunker produces kind-aware chunks from an extraction response.
type Chunker struct {
	config  ChunkerConfig
	counter *TokenCounter
}

// NewChunker creates a chunker.
func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunker config: %w", err)
	}

	counter, err := NewTokenCounter(cfg.Model)
	if err != nil {
		return nil, err
	}
	return &Chunker{config: cfg, counter: counter}, nil
}

// ChunkResponse derives all chunks from a unified extraction response.
// Chunk indexes are assigned sequentially in a fixed section order:
// text, tables, visual element groups, drawing metadata.
func (c *Chunker) ChunkResponse(resp *extraction.Response) []Chunk {
	var chunks []Chunk

	for _, part := range c.ChunkText(resp.Text) {
		chunks = append(chunks, Chunk{
			Kind:       KindText,
			Content:    part,
			TokenCount: c.counter.Count(part),
		})
	}

	for _, table := range resp.Tables {
		content := renderTable(table)
		chunks = append(chunks, Chunk{
			Kind:       KindTable,
			Content:    content,
			TokenCount: c.counter.Count(content),
			Page:       table.Page,
			Metadata: map[string]any{
				"table_type": table.TableType,
				"caption":    table.Caption,
			},
		})
	}

	if resp.VisualElements != nil {
		for _, group := range resp.VisualElements.ElementGroups {
			content := renderElementGroup(group)
			chunks = append(chunks, Chunk{
				Kind:       KindVisualElementGroup,
				Content:    content,
				TokenCount: c.counter.Count(content),
				Page:       group.Page,
				Metadata: map[string]any{
					"element_type": group.ElementType,
					"count":        group.Count,
				},
			})
		}
	}

	if resp.DrawingMetadata != nil {
		if content := renderDrawingMetadata(resp.DrawingMetadata); content != "" {
			chunks = append(chunks, Chunk{
				Kind:       KindDrawingMetadata,
				Content:    content,
				TokenCount: c.counter.Count(content),
			})
		}
	}

	for i := range chunks {
		chunks[i].Index = i
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = map[string]any{}
		}
		chunks[i].Metadata["chunk_type"] = string(chunks[i].Kind)
		chunks[i].Metadata["token_count"] = chunks[i].TokenCount
	}
	return chunks
}

// ChunkText splits text into token-bounded pieces with overlap,
// breaking on paragraph boundaries when possible.
func (c *Chunker) ChunkText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if c.counter.Count(text) <= c.config.Size {
		return []string{text}
	}

	paragraphs := strings.Split(text, "\n\n")

	var out []string
	var current []string
	currentTokens := 0
	// fresh marks whether current holds anything beyond overlap seed.
	fresh := false

	flush := func() {
		if len(current) == 0 {
			return
		}
		out = append(out, strings.TrimSpace(strings.Join(current, "\n\n")))
		fresh = false

		// Seed the next chunk with trailing paragraphs up to the
		// overlap budget.
		if c.config.Overlap > 0 {
			var overlap []string
			overlapTokens := 0
			for i := len(current) - 1; i >= 0; i-- {
				pt := c.counter.Count(current[i])
				if overlapTokens+pt > c.config.Overlap {
					break
				}
				overlap = append([]string{current[i]}, overlap...)
				overlapTokens += pt
			}
			current = overlap
			currentTokens = overlapTokens
		} else {
			current = nil
			currentTokens = 0
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		tokens := c.counter.Count(para)

		// A single oversize paragraph splits hard on token boundaries.
		if tokens > c.config.Size {
			flush()
			out = append(out, c.splitHard(para)...)
			current = nil
			currentTokens = 0
			fresh = false
			continue
		}

		if currentTokens+tokens > c.config.Size && len(current) > 0 {
			flush()
		}
		current = append(current, para)
		currentTokens += tokens
		fresh = true
	}

	// A trailing buffer holding only the overlap seed is not a chunk.
	if len(current) > 0 && fresh {
		out = append(out, strings.TrimSpace(strings.Join(current, "\n\n")))
	}

	return out
}

// splitHard splits an oversize paragraph into size-bounded pieces on
// word boundaries.
func (c *Chunker) splitHard(para string) []string {
	words := strings.Fields(para)

	var out []string
	var current []string
	currentTokens := 0

	for _, word := range words {
		tokens := c.counter.Count(word + " ")
		if currentTokens+tokens > c.config.Size && len(current) > 0 {
			out = append(out, strings.Join(current, " "))
			current = nil
			currentTokens = 0
		}
		current = append(current, word)
		currentTokens += tokens
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}
	return out
}

// renderTable serializes a table chunk as caption, header row and
// pipe-joined data rows.
func renderTable(t extraction.Table) string {
	var sb strings.Builder
	if t.Caption != "" {
		sb.WriteString(t.Caption)
		sb.WriteString("\n")
	}
	sb.WriteString(strings.Join(t.Headers, " | "))
	sb.WriteString("\n")
	for _, row := range t.Rows {
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteString("\n")
	}
	if t.Notes != "" {
		sb.WriteString(t.Notes)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// renderElementGroup serializes a visual-element group as a textual
// description: type, count, cluster center and representative
// instances.
func renderElementGroup(g extraction.ElementGroup) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Element group %s: %d x %s", g.GroupID, g.Count, g.ElementType)
	fmt.Fprintf(&sb, " (cluster center %d,%d)", g.ClusterCenter.X, g.ClusterCenter.Y)
	if g.SpatialDescription != "" {
		sb.WriteString("\n")
		sb.WriteString(g.SpatialDescription)
	}
	max := len(g.Elements)
	if max > 5 {
		max = 5
	}
	for _, el := range g.Elements[:max] {
		fmt.Fprintf(&sb, "\n- %s %s at %d,%d", el.Type, el.Subtype, el.CenterPoint.X, el.CenterPoint.Y)
		if el.Label != "" {
			fmt.Fprintf(&sb, " label %s", el.Label)
		}
	}
	return sb.String()
}

// renderDrawingMetadata serializes drawing metadata as one atomic
// chunk.
func renderDrawingMetadata(md *extraction.DrawingMetadata) string {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return ""
	}
	return "Drawing metadata:\n" + string(data)
}
