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

package extraction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsePage(t *testing.T, raw string) pageResult {
	t.Helper()
	var p pageResult
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

func TestMergePage_TextSeparators(t *testing.T) {
	resp := &Response{Success: true}
	m := newMerger(resp)

	m.mergePage(parsePage(t, `{"text": "first page"}`), 1)
	m.mergePage(parsePage(t, `{"text": "second page"}`), 2)

	assert.Equal(t, "first page\n\n--- Page 2 ---\n\nsecond page", resp.Text)
}

func TestMergePage_DrawingMetadataFirstWins(t *testing.T) {
	resp := &Response{Success: true}
	m := newMerger(resp)

	m.mergePage(parsePage(t, `{"drawing_metadata": {"drawing_number": "DWG-1", "scale": ""}}`), 1)
	m.mergePage(parsePage(t, `{"drawing_metadata": {"drawing_number": "DWG-2", "scale": "1:50"}}`), 2)

	require.NotNil(t, resp.DrawingMetadata)
	// First page's number is kept; the missing scale is filled by page 2.
	assert.Equal(t, "DWG-1", resp.DrawingMetadata.DrawingNumber)
	assert.Equal(t, "1:50", resp.DrawingMetadata.Scale)
}

func TestMergePage_TablesAndEntitiesAdoptPage(t *testing.T) {
	resp := &Response{Success: true}
	m := newMerger(resp)

	m.mergePage(parsePage(t, `{
		"tables": [{"table_type": "schedule", "headers": ["A"], "rows": [["1"]]}],
		"entities": [{"type": "part_number", "value": "X-1"}],
		"layout": [{"type": "title", "text": "T", "reading_order": 1}]
	}`), 3)

	require.Len(t, resp.Tables, 1)
	assert.Equal(t, 3, resp.Tables[0].Page)
	require.Len(t, resp.Entities, 1)
	assert.Equal(t, 3, resp.Entities[0].Page)
	require.Len(t, resp.LayoutBlocks, 1)
	assert.Equal(t, 3, resp.LayoutBlocks[0].Page)
}

func TestMergePage_EmptyTableSkipped(t *testing.T) {
	resp := &Response{Success: true}
	m := newMerger(resp)

	m.mergePage(parsePage(t, `{"tables": [{"table_type": "general", "headers": [], "rows": []}]}`), 1)
	assert.Empty(t, resp.Tables)
}

func TestMergeDeterminism_AnyCompletionOrder(t *testing.T) {
	// The unified extractor merges in page order regardless of
	// completion order; simulate by always feeding the merger in page
	// order and asserting the result matches a sequential reference.
	pages := []string{
		`{"text": "page one", "summary": "s1"}`,
		`{"text": "page two", "summary": "s2"}`,
		`{"text": "page three", "summary": "s3"}`,
	}

	build := func() *Response {
		resp := &Response{Success: true}
		m := newMerger(resp)
		for i, raw := range pages {
			m.mergePage(parsePage(t, raw), i+1)
		}
		return resp
	}

	ref := build()
	for i := 0; i < 5; i++ {
		got := build()
		assert.Equal(t, ref.Text, got.Text)
		assert.Equal(t, ref.Summary, got.Summary)
	}
	assert.Equal(t, "Page 1: s1\n\nPage 2: s2\n\nPage 3: s3", ref.Summary)
}

func TestValidateAgainstSchedules_FastenerScenario(t *testing.T) {
	// One-page fastener drawing: a schedule listing 15 M8x20 hex bolts
	// and a drawing group with 15 instances.
	resp := &Response{Success: true}
	m := newMerger(resp)
	m.mergePage(parsePage(t, `{
		"tables": [{
			"table_type": "schedule",
			"caption": "FASTENER SCHEDULE",
			"headers": ["MARK", "TYPE", "SIZE", "QUANTITY", "MATERIAL"],
			"rows": [["A", "HEX BOLT", "M8x20", "15", "Grade 8.8 Steel"]],
			"contains_reference_quantities": true,
			"element_types_to_count": ["HEX BOLT M8x20"]
		}],
		"visual_elements": {
			"element_groups": [{
				"group_id": "group_001",
				"element_type": "HEX_BOLT_M8x20",
				"count": 15,
				"cluster_center": {"x": 450, "y": 300}
			}]
		}
	}`), 1)

	require.Len(t, resp.Tables, 1)
	assert.Equal(t, [][]string{{"A", "HEX BOLT", "M8x20", "15", "Grade 8.8 Steel"}}, resp.Tables[0].Rows)

	validateAgainstSchedules(resp)

	require.NotNil(t, resp.VisualElements)
	require.Len(t, resp.VisualElements.ElementGroups, 1)
	assert.Equal(t, 15, resp.VisualElements.ElementGroups[0].Count)

	check, ok := resp.VisualElements.Validation["HEX_BOLT_M8x20"]
	require.True(t, ok, "expected validation entry, got %v", resp.VisualElements.Validation)
	assert.Equal(t, 15, check.RequiredQuantity)
	assert.Equal(t, 15, check.FoundInDrawing)
	assert.True(t, check.Match)
}

func TestValidateAgainstSchedules_Mismatch(t *testing.T) {
	resp := &Response{
		Success: true,
		Tables: []Table{{
			TableType: "schedule",
			Headers:   []string{"MARK", "TYPE", "SIZE", "QTY"},
			Rows:      [][]string{{"B", "RIVET", "6mm", "8"}},
			Page:      1,
		}},
		VisualElements: &VisualElements{
			ElementGroups: []ElementGroup{{
				GroupID: "g1", ElementType: "RIVET_6mm", Count: 5, Page: 1,
			}},
		},
	}

	validateAgainstSchedules(resp)

	check, ok := resp.VisualElements.Validation["RIVET_6mm"]
	require.True(t, ok)
	assert.Equal(t, 8, check.RequiredQuantity)
	assert.Equal(t, 5, check.FoundInDrawing)
	assert.False(t, check.Match)
	// Validation is a computed property: the run itself stays
	// successful.
	assert.True(t, resp.Success)
}

func TestNormalizeElementType(t *testing.T) {
	assert.Equal(t, normalizeElementType("HEX_BOLT_M8x20"), normalizeElementType("HEX BOLT M8x20"))
	assert.Equal(t, normalizeElementType("hex bolt m8X20"), normalizeElementType("HEX_BOLT_M8x20"))
	assert.NotEqual(t, normalizeElementType("RIVET_6mm"), normalizeElementType("HEX_BOLT"))
}
