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

package drawing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plansight/takeoff/pkg/geometry"
)

func mustCircle(t *testing.T, cx, cy, r float64, page int) *geometry.Circle {
	t.Helper()
	c, err := geometry.NewCircle(geometry.Point{X: cx, Y: cy}, r, geometry.Style{}, page)
	require.NoError(t, err)
	return c
}

func label(text string, x, y, fontSize float64, page int) TextInstance {
	bbox := geometry.NewBoundingBox(x-5, y-4, x+5, y+4)
	return TextInstance{
		Text:       text,
		BBox:       bbox,
		Center:     bbox.Center(),
		FontSize:   fontSize,
		PageNumber: page,
		Confidence: 1,
	}
}

func TestDetectPage_InsideAssociation(t *testing.T) {
	ed := NewElementDetector(ElementDetectorConfig{})
	shape := mustCircle(t, 100, 100, 20, 1)

	page := ed.DetectPage(
		PageShapes{PageNumber: 1, Shapes: []geometry.Shape{shape}},
		[]TextInstance{label("C1", 100, 100, 10, 1)},
	)

	require.Len(t, page.Elements, 1)
	el := page.Elements[0]
	assert.Equal(t, "C1", el.ElementID)
	assert.Equal(t, ElementColumn, el.ElementType)
	assert.Equal(t, PositionInside, el.Associations[0].Position)
	assert.Equal(t, 1.0, el.Confidence)
}

func TestDetectPage_NearConfidenceFalloff(t *testing.T) {
	ed := NewElementDetector(ElementDetectorConfig{})
	shape := mustCircle(t, 100, 100, 10, 1)

	// 5mm outside the circle boundary with a 10mm threshold:
	// confidence = 0.7 * (1 - 0.5) = 0.35, below the 0.5 default floor.
	d := geometry.MMToPoints(5)
	page := ed.DetectPage(
		PageShapes{PageNumber: 1, Shapes: []geometry.Shape{shape}},
		[]TextInstance{label("B2", 100+10+d, 100, 10, 1)},
	)
	assert.Empty(t, page.Elements)

	// 2mm out: confidence = 0.7 * 0.8 = 0.56, kept.
	d = geometry.MMToPoints(2)
	page = ed.DetectPage(
		PageShapes{PageNumber: 1, Shapes: []geometry.Shape{shape}},
		[]TextInstance{label("B2", 100+10+d, 100, 10, 1)},
	)
	require.Len(t, page.Elements, 1)
	assert.InDelta(t, 0.56, page.Elements[0].Confidence, 1e-9)
	assert.Equal(t, PositionNear, page.Elements[0].Associations[0].Position)
}

func TestDetectPage_TextValidity(t *testing.T) {
	ed := NewElementDetector(ElementDetectorConfig{})
	shape := mustCircle(t, 100, 100, 20, 1)

	cases := []struct {
		name string
		text TextInstance
	}{
		{"font too small", label("C1", 100, 100, 6, 1)},
		{"font too large", label("C1", 100, 100, 24, 1)},
		{"contains space", label("SEE NOTE", 100, 100, 10, 1)},
		{"too long", label("ABCDEFGHIJK", 100, 100, 10, 1)},
		{"no pattern match", label("hello", 100, 100, 10, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page := ed.DetectPage(
				PageShapes{PageNumber: 1, Shapes: []geometry.Shape{shape}},
				[]TextInstance{tc.text},
			)
			assert.Empty(t, page.Elements)
		})
	}
}

func TestDetectPage_TieBreaks(t *testing.T) {
	ed := NewElementDetector(ElementDetectorConfig{})
	shape := mustCircle(t, 100, 100, 20, 1)

	// Two inside labels at equal confidence: the smaller font wins.
	page := ed.DetectPage(
		PageShapes{PageNumber: 1, Shapes: []geometry.Shape{shape}},
		[]TextInstance{
			label("W9", 95, 100, 14, 1),
			label("C1", 105, 100, 9, 1),
		},
	)
	require.Len(t, page.Elements, 1)
	assert.Equal(t, "C1", page.Elements[0].ElementID)
	assert.Len(t, page.Elements[0].Associations, 2)

	// Equal confidence and font size: lexicographic order decides.
	page = ed.DetectPage(
		PageShapes{PageNumber: 1, Shapes: []geometry.Shape{shape}},
		[]TextInstance{
			label("F2", 95, 100, 10, 1),
			label("B1", 105, 100, 10, 1),
		},
	)
	require.Len(t, page.Elements, 1)
	assert.Equal(t, "B1", page.Elements[0].ElementID)
}

func TestSummarize_CountsPerIDAndType(t *testing.T) {
	c1 := mustCircle(t, 10, 10, 5, 1)
	pages := []PageElements{
		{PageNumber: 1, Elements: []DetectedElement{
			{ElementID: "C1", ElementType: ElementColumn, Shape: c1, ShapeKind: "circle", PageNumber: 1, Confidence: 1},
			{ElementID: "C1", ElementType: ElementColumn, Shape: c1, ShapeKind: "circle", PageNumber: 1, Confidence: 0.8},
		}},
		{PageNumber: 2, Elements: []DetectedElement{
			{ElementID: "B1", ElementType: ElementBeam, Shape: c1, ShapeKind: "circle", PageNumber: 2, Confidence: 0.9},
		}},
	}

	summary := summarize(pages)
	assert.Equal(t, 3, summary.TotalElements)
	assert.Equal(t, 2, summary.UniqueElementIDs)
	assert.Equal(t, 2, summary.ElementTypes[ElementColumn])
	assert.Equal(t, 1, summary.ElementTypes[ElementBeam])

	require.Len(t, summary.ElementCounts, 2)
	// Sorted by ID: B1 before C1.
	assert.Equal(t, "B1", summary.ElementCounts[0].ElementID)
	assert.Equal(t, "C1", summary.ElementCounts[1].ElementID)
	assert.Equal(t, 2, summary.ElementCounts[1].Count)
}

func TestMatchElementText(t *testing.T) {
	cases := []struct {
		text string
		want ElementType
		ok   bool
	}{
		{"C1", ElementColumn, true},
		{"C12A", ElementColumn, true},
		{"B2", ElementBeam, true},
		{"F10", ElementFooting, true},
		{"M8", ElementBolt, true},
		{"M8x20", ElementBolt, true},
		{"A", ElementGeneric, true},
		{"AB12", ElementGeneric, true},
		{"hello", ElementUnknown, false},
		{"12345", ElementUnknown, false},
	}
	for _, tc := range cases {
		got, ok := MatchElementText(tc.text)
		assert.Equal(t, tc.ok, ok, tc.text)
		assert.Equal(t, tc.want, got, tc.text)
	}
}

func TestTextDeduplication_Idempotent(t *testing.T) {
	te := NewTextExtractor(TextExtractorConfig{DedupTolerance: 2})

	texts := []TextInstance{
		label("C1", 100, 100, 10, 1),
		label("C1", 100.5, 100.5, 10, 1), // overstrike of the first
		label("C1", 200, 100, 10, 1),     // distinct instance
		label("B1", 100, 100, 10, 1),     // same spot, different text
	}

	once := te.deduplicate(append([]TextInstance{}, texts...))
	assert.Len(t, once, 3)

	twice := te.deduplicate(append([]TextInstance{}, once...))
	assert.Equal(t, once, twice)
}
