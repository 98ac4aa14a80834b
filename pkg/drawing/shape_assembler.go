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
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/plansight/takeoff/pkg/geometry"
)

// PageStyle classifies how a page's geometry was exported.
type PageStyle string

const (
	// StyleTinySegments marks pages where most strokes are shorter than
	// 5 mm, typical of CAD exporters that tessellate every symbol.
	StyleTinySegments PageStyle = "tiny_segments"

	// StyleNormal marks pages dominated by medium-length strokes.
	StyleNormal PageStyle = "normal"

	// StyleMixed is everything else.
	StyleMixed PageStyle = "mixed"
)

// LineAnalysis summarizes the length distribution of a page's strokes.
type LineAnalysis struct {
	Total  int
	Tiny   int // < 5 mm
	Small  int // 5-10 mm
	Medium int // 10-50 mm
	Large  int // >= 50 mm
	Mean   float64
	Median float64
	Style  PageStyle
}

func (a LineAnalysis) String() string {
	return fmt.Sprintf("%s (n=%d mean=%.1fmm median=%.1fmm tiny=%d medium=%d)",
		a.Style, a.Total, a.Mean, a.Median, a.Tiny, a.Medium)
}

// assemblerParams are the clustering parameters chosen for a page.
type assemblerParams struct {
	clusterDistance    float64 // points
	circleTolerance    float64
	minLinesPerCluster int
	minLengthMM        float64
	maxLengthMM        float64
}

// ShapeAssemblerConfig configures shape assembly.
type ShapeAssemblerConfig struct {
	// Circle and rectangle size bounds, in millimeters.
	MinCircleDiameterMM float64 `yaml:"min_circle_diameter_mm,omitempty"`
	MaxCircleDiameterMM float64 `yaml:"max_circle_diameter_mm,omitempty"`
	MinRectangleSizeMM  float64 `yaml:"min_rectangle_size_mm,omitempty"`
	MaxRectangleSizeMM  float64 `yaml:"max_rectangle_size_mm,omitempty"`

	// Style forces a page style instead of auto-tuning. Empty means
	// analyze each page.
	Style PageStyle `yaml:"style,omitempty"`
}

// SetDefaults applies default values.
func (c *ShapeAssemblerConfig) SetDefaults() {
	if c.MinCircleDiameterMM <= 0 {
		c.MinCircleDiameterMM = 3
	}
	if c.MaxCircleDiameterMM <= 0 {
		c.MaxCircleDiameterMM = 100
	}
	if c.MinRectangleSizeMM <= 0 {
		c.MinRectangleSizeMM = 3
	}
	if c.MaxRectangleSizeMM <= 0 {
		c.MaxRectangleSizeMM = 300
	}
}

// ShapeAssembler clusters line segments into shapes with auto-tuned
// parameters.
//
// A drawing may use medium-length segments that close cleanly into
// rectangles, or thousands of sub-millimeter strokes. The same
// clustering parameters fail on the opposite regime, so the assembler
// analyzes the length distribution per page and picks parameters before
// clustering.
type ShapeAssembler struct {
	config ShapeAssemblerConfig
}

// NewShapeAssembler creates a shape assembler.
func NewShapeAssembler(cfg ShapeAssemblerConfig) *ShapeAssembler {
	cfg.SetDefaults()
	return &ShapeAssembler{config: cfg}
}

// AssemblePage turns a page's vector content into classified shapes.
// Circles drawn directly as 4-bezier subpaths bypass clustering.
func (sa *ShapeAssembler) AssemblePage(pv PageVectors) PageShapes {
	analysis := AnalyzeLines(pv.Lines)
	if sa.config.Style != "" {
		analysis.Style = sa.config.Style
	}
	params := selectParams(analysis)

	slog.Debug("Assembling page shapes",
		"page", pv.Metadata.PageNumber,
		"analysis", analysis.String(),
		"cluster_distance_mm", geometry.PointsToMM(params.clusterDistance))

	lines := filterByLength(pv.Lines, params.minLengthMM, params.maxLengthMM)
	clusters := clusterLines(lines, params)

	shapes := make([]geometry.Shape, 0, len(clusters))
	for _, cluster := range clusters {
		if shape := sa.classifyCluster(cluster, params, pv.Metadata.PageNumber); shape != nil {
			shapes = append(shapes, shape)
		}
	}

	// Direct bezier circles are already shapes.
	for _, arc := range pv.Arcs {
		if arc.Kind != ArcCircle {
			continue
		}
		diameter := (arc.BBox.Width() + arc.BBox.Height()) / 2
		diameterMM := geometry.PointsToMM(diameter)
		if diameterMM < sa.config.MinCircleDiameterMM || diameterMM > sa.config.MaxCircleDiameterMM {
			continue
		}
		circle, err := geometry.NewCircle(arc.Center, diameter/2, geometry.Style{
			StrokeWidth: arc.LineWidth,
			StrokeColor: arc.Color,
			LineStyle:   geometry.LineSolid,
		}, pv.Metadata.PageNumber)
		if err != nil {
			continue
		}
		shapes = append(shapes, circle)
	}

	return PageShapes{
		PageNumber: pv.Metadata.PageNumber,
		Shapes:     shapes,
		Analysis:   analysis,
	}
}

// AnalyzeLines buckets segment lengths and classifies the page style.
//
// Style selection:
//   - tiny_segments when the tiny bucket is strictly more than 70% of
//     all lines
//   - normal when the medium bucket exceeds 30%
//   - mixed otherwise
func AnalyzeLines(lines []LineSegment) LineAnalysis {
	a := LineAnalysis{Total: len(lines)}
	if len(lines) == 0 {
		a.Style = StyleMixed
		return a
	}

	lengths := make([]float64, len(lines))
	var sum float64
	for i, l := range lines {
		mm := l.LengthMM()
		lengths[i] = mm
		sum += mm
		switch {
		case mm < 5:
			a.Tiny++
		case mm < 10:
			a.Small++
		case mm < 50:
			a.Medium++
		default:
			a.Large++
		}
	}

	a.Mean = sum / float64(len(lines))
	sort.Float64s(lengths)
	mid := len(lengths) / 2
	if len(lengths)%2 == 0 {
		a.Median = (lengths[mid-1] + lengths[mid]) / 2
	} else {
		a.Median = lengths[mid]
	}

	tinyRatio := float64(a.Tiny) / float64(a.Total)
	mediumRatio := float64(a.Medium) / float64(a.Total)

	switch {
	case tinyRatio > 0.70:
		a.Style = StyleTinySegments
	case mediumRatio > 0.30:
		a.Style = StyleNormal
	default:
		a.Style = StyleMixed
	}
	return a
}

// selectParams maps a page style to clustering parameters and applies
// mean-length fine tuning.
func selectParams(a LineAnalysis) assemblerParams {
	var p assemblerParams
	switch a.Style {
	case StyleTinySegments:
		p = assemblerParams{
			clusterDistance:    geometry.MMToPoints(20),
			circleTolerance:    0.35,
			minLinesPerCluster: 2,
			minLengthMM:        0.5,
			maxLengthMM:        100,
		}
	case StyleNormal:
		p = assemblerParams{
			clusterDistance:    geometry.MMToPoints(10),
			circleTolerance:    0.25,
			minLinesPerCluster: 2,
			minLengthMM:        3,
			maxLengthMM:        150,
		}
	default:
		p = assemblerParams{
			clusterDistance:    geometry.MMToPoints(15),
			circleTolerance:    0.30,
			minLinesPerCluster: 2,
			minLengthMM:        1,
			maxLengthMM:        120,
		}
	}

	if a.Mean > 0 && a.Mean < 3 {
		p.clusterDistance *= 1.5
	} else if a.Mean > 20 {
		p.clusterDistance *= 0.7
	}
	return p
}

func filterByLength(lines []LineSegment, minMM, maxMM float64) []LineSegment {
	out := make([]LineSegment, 0, len(lines))
	for _, l := range lines {
		mm := l.LengthMM()
		if mm >= minMM && mm <= maxMM {
			out = append(out, l)
		}
	}
	return out
}

// clusterLines groups lines through a spatial grid. Clusters grow
// iteratively, bounded at 15 iterations: a candidate joins when the
// minimum distance between its endpoints+midpoint and any cluster
// line's endpoints+midpoint is within the cluster distance.
func clusterLines(lines []LineSegment, params assemblerParams) [][]LineSegment {
	if len(lines) == 0 {
		return nil
	}

	gridSize := math.Max(50, params.clusterDistance/2)

	type cell struct{ x, y int }
	grid := make(map[cell][]int)
	var order []cell // deterministic visiting order of occupied cells
	seen := make(map[cell]bool)
	for idx, l := range lines {
		mid := l.Midpoint()
		cx := int(mid.X / gridSize)
		cy := int(mid.Y / gridSize)
		if own := (cell{cx, cy}); !seen[own] {
			seen[own] = true
			order = append(order, own)
		}
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				c := cell{cx + dx, cy + dy}
				grid[c] = append(grid[c], idx)
			}
		}
	}

	var clusters [][]LineSegment
	used := make(map[int]bool, len(lines))

	for _, c := range order {
		indices := grid[c]
		for _, idx := range indices {
			if used[idx] {
				continue
			}

			cluster := []LineSegment{lines[idx]}
			used[idx] = true

			changed := true
			for iter := 0; changed && iter < 15; iter++ {
				changed = false
				for _, other := range indices {
					if used[other] {
						continue
					}
					if lineNearCluster(lines[other], cluster, params.clusterDistance) {
						cluster = append(cluster, lines[other])
						used[other] = true
						changed = true
					}
				}
			}

			if len(cluster) >= params.minLinesPerCluster {
				clusters = append(clusters, cluster)
			}
		}
	}

	return clusters
}

func lineNearCluster(line LineSegment, cluster []LineSegment, distance float64) bool {
	for _, cl := range cluster {
		if lineDistance(line, cl) <= distance {
			return true
		}
	}
	return false
}

// lineDistance is the minimum distance over the endpoints and midpoints
// of both segments.
func lineDistance(a, b LineSegment) float64 {
	pa := [3]geometry.Point{{X: a.X0, Y: a.Y0}, {X: a.X1, Y: a.Y1}, a.Midpoint()}
	pb := [3]geometry.Point{{X: b.X0, Y: b.Y0}, {X: b.X1, Y: b.Y1}, b.Midpoint()}

	min := math.Inf(1)
	for _, p := range pa {
		for _, q := range pb {
			if d := p.DistanceTo(q); d < min {
				min = d
			}
		}
	}
	return min
}

// classifyCluster classifies a cluster in order: circle, rectangle,
// polygon. First match wins. Adding lines to a recognized circle can
// move it to rectangle or polygon, never out of shapehood entirely, as
// long as the vertex count stays in range.
func (sa *ShapeAssembler) classifyCluster(cluster []LineSegment, params assemblerParams, page int) geometry.Shape {
	bbox := clusterBounds(cluster)
	width, height := bbox.Width(), bbox.Height()

	// Below 2 mm in either direction nothing is classifiable.
	minSize := geometry.MMToPoints(2)
	if width < minSize || height < minSize {
		return nil
	}

	style := geometry.Style{
		StrokeWidth: avgLineWidth(cluster),
		StrokeColor: avgColor(cluster),
		LineStyle:   geometry.LineSolid,
	}

	if isCircularCluster(cluster, bbox, params.circleTolerance) {
		diameter := (width + height) / 2
		diameterMM := geometry.PointsToMM(diameter)
		if diameterMM >= sa.config.MinCircleDiameterMM && diameterMM <= sa.config.MaxCircleDiameterMM {
			if c, err := geometry.NewCircle(bbox.Center(), diameter/2, style, page); err == nil {
				return c
			}
		}
	}

	if isRectangularCluster(cluster) {
		widthMM, heightMM := geometry.PointsToMM(width), geometry.PointsToMM(height)
		if widthMM >= sa.config.MinRectangleSizeMM && widthMM <= sa.config.MaxRectangleSizeMM &&
			heightMM >= sa.config.MinRectangleSizeMM && heightMM <= sa.config.MaxRectangleSizeMM {
			if r, err := geometry.NewRectangle(bbox, style, page); err == nil {
				return r
			}
		}
	}

	if len(cluster) >= 3 && len(cluster) <= 20 {
		vertices := extractVertices(cluster)
		if len(vertices) >= 3 && len(vertices) <= 12 {
			if pg, err := geometry.NewPolygon(vertices, style, page); err == nil {
				return pg
			}
		}
	}

	return nil
}

func clusterBounds(cluster []LineSegment) geometry.BoundingBox {
	bbox := geometry.NewBoundingBox(cluster[0].X0, cluster[0].Y0, cluster[0].X1, cluster[0].Y1)
	for _, l := range cluster[1:] {
		bbox = bbox.Union(geometry.NewBoundingBox(l.X0, l.Y0, l.X1, l.Y1))
	}
	return bbox
}

func avgLineWidth(cluster []LineSegment) float64 {
	var sum float64
	for _, l := range cluster {
		sum += l.LineWidth
	}
	return sum / float64(len(cluster))
}

func avgColor(cluster []LineSegment) [3]float64 {
	var c [3]float64
	for _, l := range cluster {
		c[0] += l.Color[0]
		c[1] += l.Color[1]
		c[2] += l.Color[2]
	}
	n := float64(len(cluster))
	return [3]float64{c[0] / n, c[1] / n, c[2] / n}
}

// isCircularCluster accepts clusters whose aspect ratio is near square
// and whose total stroke length is close to the expected perimeter of a
// circle inscribed in the bounds, within the adaptive tolerance.
func isCircularCluster(cluster []LineSegment, bbox geometry.BoundingBox, tolerance float64) bool {
	width, height := bbox.Width(), bbox.Height()
	if width == 0 || height == 0 {
		return false
	}

	aspect := width / height
	if aspect < 0.65 || aspect > 1.35 {
		return false
	}

	var total float64
	for _, l := range cluster {
		total += l.Length()
	}
	expected := math.Pi * (width + height) / 2
	if expected == 0 {
		return false
	}
	coverage := total / expected

	minCoverage := math.Max(0.2, 1-tolerance)
	maxCoverage := math.Min(3.0, 1+2*tolerance)
	return coverage >= minCoverage && coverage <= maxCoverage
}

// isRectangularCluster requires at least one near-horizontal and one
// near-vertical segment.
func isRectangularCluster(cluster []LineSegment) bool {
	horizontal, vertical := 0, 0
	for _, l := range cluster {
		angle := math.Abs(l.Angle())
		switch {
		case angle < 25 || angle > 155:
			horizontal++
		case angle > 65 && angle < 115:
			vertical++
		}
	}
	return horizontal >= 1 && vertical >= 1
}

// extractVertices gathers segment endpoints, deduplicates within a
// 7 pt tolerance and orders them by angle around the centroid.
func extractVertices(cluster []LineSegment) []geometry.Point {
	const tolerance = 7.0

	var vertices []geometry.Point
	add := func(p geometry.Point) {
		for _, v := range vertices {
			if v.DistanceTo(p) < tolerance {
				return
			}
		}
		vertices = append(vertices, p)
	}
	for _, l := range cluster {
		add(geometry.Point{X: l.X0, Y: l.Y0})
		add(geometry.Point{X: l.X1, Y: l.Y1})
	}

	if len(vertices) < 3 {
		return vertices
	}

	var cx, cy float64
	for _, v := range vertices {
		cx += v.X
		cy += v.Y
	}
	cx /= float64(len(vertices))
	cy /= float64(len(vertices))

	sort.Slice(vertices, func(i, j int) bool {
		ai := math.Atan2(vertices[i].Y-cy, vertices[i].X-cx)
		aj := math.Atan2(vertices[j].Y-cy, vertices[j].X-cx)
		return ai < aj
	})
	return vertices
}
