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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plansight/takeoff/pkg/geometry"
)

// segMM builds a line segment between two points given in millimeters.
func segMM(x0, y0, x1, y1 float64) LineSegment {
	return LineSegment{
		X0: geometry.MMToPoints(x0), Y0: geometry.MMToPoints(y0),
		X1: geometry.MMToPoints(x1), Y1: geometry.MMToPoints(y1),
		LineWidth: 1,
	}
}

// circleSegments approximates a circle of the given diameter (mm) with
// n chords.
func circleSegments(cx, cy, diameter float64, n int) []LineSegment {
	r := diameter / 2
	lines := make([]LineSegment, 0, n)
	for i := 0; i < n; i++ {
		a0 := 2 * math.Pi * float64(i) / float64(n)
		a1 := 2 * math.Pi * float64(i+1) / float64(n)
		lines = append(lines, segMM(
			cx+r*math.Cos(a0), cy+r*math.Sin(a0),
			cx+r*math.Cos(a1), cy+r*math.Sin(a1),
		))
	}
	return lines
}

func TestAnalyzeLines_TinySegmentsStrictBoundary(t *testing.T) {
	// Exactly 70% tiny must NOT take the tiny_segments branch; the
	// threshold is strict.
	var lines []LineSegment
	for i := 0; i < 70; i++ {
		lines = append(lines, segMM(0, float64(i), 2, float64(i))) // 2mm
	}
	for i := 0; i < 30; i++ {
		lines = append(lines, segMM(0, float64(i), 20, float64(i))) // 20mm, medium
	}

	a := AnalyzeLines(lines)
	assert.Equal(t, 70, a.Tiny)
	assert.Equal(t, 30, a.Medium)
	assert.NotEqual(t, StyleTinySegments, a.Style)
	// Neither branch fires at exactly 70%/30%: both thresholds are strict.
	assert.Equal(t, StyleMixed, a.Style)

	// One more tiny line pushes the ratio strictly above 70%.
	lines = append(lines, segMM(0, 200, 1, 200))
	a = AnalyzeLines(lines)
	assert.Equal(t, StyleTinySegments, a.Style)
}

func TestAnalyzeLines_StyleSelection(t *testing.T) {
	// 40% medium -> normal.
	var lines []LineSegment
	for i := 0; i < 6; i++ {
		lines = append(lines, segMM(0, float64(i), 7, float64(i))) // small
	}
	for i := 0; i < 4; i++ {
		lines = append(lines, segMM(0, float64(i), 30, float64(i))) // medium
	}
	assert.Equal(t, StyleNormal, AnalyzeLines(lines).Style)

	// Neither dominated -> mixed.
	lines = lines[:0]
	for i := 0; i < 5; i++ {
		lines = append(lines, segMM(0, float64(i), 2, float64(i))) // tiny
	}
	for i := 0; i < 5; i++ {
		lines = append(lines, segMM(0, float64(i), 70, float64(i))) // large
	}
	assert.Equal(t, StyleMixed, AnalyzeLines(lines).Style)
}

func TestSelectParams_TableAndFineTuning(t *testing.T) {
	p := selectParams(LineAnalysis{Style: StyleTinySegments, Mean: 10})
	assert.InDelta(t, geometry.MMToPoints(20), p.clusterDistance, 1e-9)
	assert.InDelta(t, 0.35, p.circleTolerance, 1e-9)
	assert.Equal(t, 2, p.minLinesPerCluster)
	assert.InDelta(t, 0.5, p.minLengthMM, 1e-9)
	assert.InDelta(t, 100.0, p.maxLengthMM, 1e-9)

	// Mean below 3mm widens the cluster distance by 1.5x.
	p = selectParams(LineAnalysis{Style: StyleNormal, Mean: 2})
	assert.InDelta(t, geometry.MMToPoints(10)*1.5, p.clusterDistance, 1e-9)

	// Mean above 20mm tightens it by 0.7x.
	p = selectParams(LineAnalysis{Style: StyleMixed, Mean: 25})
	assert.InDelta(t, geometry.MMToPoints(15)*0.7, p.clusterDistance, 1e-9)
}

func TestAssemblePage_DetectsCircleFromTinySegments(t *testing.T) {
	// A 15mm circle drawn as 24 short chords, the tiny-segment regime.
	lines := circleSegments(50, 50, 15, 24)
	// Pad with unrelated tiny strokes far away so the page classifies
	// as tiny_segments.
	for i := 0; i < 60; i++ {
		lines = append(lines, segMM(200, float64(200+i*3), 201.5, float64(200+i*3)))
	}

	sa := NewShapeAssembler(ShapeAssemblerConfig{})
	page := sa.AssemblePage(PageVectors{
		Metadata: PageMetadata{PageNumber: 1},
		Lines:    lines,
	})

	require.Equal(t, StyleTinySegments, page.Analysis.Style)

	var circle *geometry.Circle
	for _, s := range page.Shapes {
		if c, ok := s.(*geometry.Circle); ok {
			circle = c
			break
		}
	}
	require.NotNil(t, circle, "expected a circle from chord cluster")
	assert.InDelta(t, 15, circle.DiameterMM(), 1.5)

	// The same drawing forced through the normal style finds no circle:
	// 0.6mm chords fall below the 3mm length filter.
	saNormal := NewShapeAssembler(ShapeAssemblerConfig{Style: StyleNormal})
	pageNormal := saNormal.AssemblePage(PageVectors{
		Metadata: PageMetadata{PageNumber: 1},
		Lines:    circleSegments(50, 50, 15, 24),
	})
	for _, s := range pageNormal.Shapes {
		assert.NotEqual(t, geometry.KindCircle, s.Kind())
	}
}

func TestAssemblePage_DetectsRectangle(t *testing.T) {
	lines := []LineSegment{
		segMM(10, 10, 40, 10),
		segMM(40, 10, 40, 30),
		segMM(40, 30, 10, 30),
		segMM(10, 30, 10, 10),
	}

	sa := NewShapeAssembler(ShapeAssemblerConfig{})
	page := sa.AssemblePage(PageVectors{Metadata: PageMetadata{PageNumber: 2}, Lines: lines})

	var rect *geometry.Rectangle
	for _, s := range page.Shapes {
		if r, ok := s.(*geometry.Rectangle); ok {
			rect = r
			break
		}
	}
	require.NotNil(t, rect, "expected a rectangle")
	assert.Equal(t, 2, rect.PageNumber())
	assert.InDelta(t, 30, geometry.PointsToMM(rect.BBox.Width()), 0.1)
	assert.InDelta(t, 20, geometry.PointsToMM(rect.BBox.Height()), 0.1)
}

func TestAssemblePage_DirectBezierCircleBypassesClustering(t *testing.T) {
	sa := NewShapeAssembler(ShapeAssemblerConfig{})
	page := sa.AssemblePage(PageVectors{
		Metadata: PageMetadata{PageNumber: 1},
		Arcs: []Arc{{
			BBox:       geometry.NewBoundingBox(0, 0, geometry.MMToPoints(10), geometry.MMToPoints(10)),
			CurveCount: 4,
			Center:     geometry.Point{X: geometry.MMToPoints(5), Y: geometry.MMToPoints(5)},
			Aspect:     1.0,
			Kind:       ArcCircle,
			LineWidth:  1,
		}},
	})

	require.Len(t, page.Shapes, 1)
	circle, ok := page.Shapes[0].(*geometry.Circle)
	require.True(t, ok)
	assert.InDelta(t, 10, circle.DiameterMM(), 0.01)
}

func TestClassification_MonotoneUnderGrowth(t *testing.T) {
	// Shape classification monotonicity: adding lines to a recognized
	// circle cluster may demote it to polygon but never to nothing,
	// while the vertex count stays within polygon range.
	sa := NewShapeAssembler(ShapeAssemblerConfig{})
	params := selectParams(LineAnalysis{Style: StyleMixed})

	cluster := circleSegments(20, 20, 12, 8)
	shape := sa.classifyCluster(cluster, params, 1)
	require.NotNil(t, shape)
	require.Equal(t, geometry.KindCircle, shape.Kind())

	// Grow the cluster with crossing diagonals; the coverage ratio
	// leaves the circle band but the cluster still classifies.
	grown := append(append([]LineSegment{}, cluster...),
		segMM(14, 14, 26, 26),
		segMM(14, 26, 26, 14),
		segMM(14, 20, 26, 20),
	)
	shape = sa.classifyCluster(grown, params, 1)
	require.NotNil(t, shape, "grown circle cluster must remain a shape")
}

func TestClusterLines_RespectsMinClusterSize(t *testing.T) {
	params := assemblerParams{
		clusterDistance:    geometry.MMToPoints(10),
		minLinesPerCluster: 2,
		minLengthMM:        0.1,
		maxLengthMM:        500,
	}

	// Two nearby lines cluster; one isolated line is dropped.
	lines := []LineSegment{
		segMM(0, 0, 10, 0),
		segMM(0, 2, 10, 2),
		segMM(500, 500, 510, 500),
	}
	clusters := clusterLines(lines, params)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0], 2)
}
