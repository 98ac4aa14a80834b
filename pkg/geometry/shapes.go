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

package geometry

import (
	"fmt"
	"math"
)

// ShapeKind tags a shape variant.
type ShapeKind string

const (
	KindCircle    ShapeKind = "circle"
	KindRectangle ShapeKind = "rectangle"
	KindPolygon   ShapeKind = "polygon"
)

// LineStyle describes how a stroke is drawn.
type LineStyle string

const (
	LineSolid  LineStyle = "solid"
	LineDashed LineStyle = "dashed"
	LineDotted LineStyle = "dotted"
)

// Style carries the stroke attributes a shape was drawn with.
type Style struct {
	StrokeWidth float64    `json:"stroke_width"`
	StrokeColor [3]float64 `json:"stroke_color"`
	Filled      bool       `json:"filled"`
	LineStyle   LineStyle  `json:"line_style"`
}

// InvalidShapeError reports degenerate shape construction input.
type InvalidShapeError struct {
	Kind   ShapeKind
	Reason string
}

func (e *InvalidShapeError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Kind, e.Reason)
}

// Shape is the common interface over the tagged variants. All operations
// are pure.
type Shape interface {
	// Kind returns the variant tag.
	Kind() ShapeKind

	// Center returns the shape anchor point.
	Center() Point

	// BoundingBox returns the axis-aligned bounds.
	BoundingBox() BoundingBox

	// ContainsPoint reports whether p lies inside the shape.
	ContainsPoint(p Point) bool

	// DistanceToPoint returns the distance from the shape boundary to p,
	// zero when p is inside.
	DistanceToPoint(p Point) float64

	// PageNumber returns the 1-indexed page the shape was found on.
	PageNumber() int

	// Style returns the stroke attributes.
	Style() Style
}

// Circle is a circle shape.
type Circle struct {
	CenterPoint Point   `json:"center"`
	Radius      float64 `json:"radius"`
	ShapeStyle  Style   `json:"style"`
	Page        int     `json:"page_number"`
}

// NewCircle constructs a circle, rejecting non-positive radii.
func NewCircle(center Point, radius float64, style Style, page int) (*Circle, error) {
	if radius <= 0 {
		return nil, &InvalidShapeError{Kind: KindCircle, Reason: fmt.Sprintf("radius must be positive, got %g", radius)}
	}
	return &Circle{CenterPoint: center, Radius: radius, ShapeStyle: style, Page: page}, nil
}

func (c *Circle) Kind() ShapeKind { return KindCircle }
func (c *Circle) Center() Point   { return c.CenterPoint }
func (c *Circle) PageNumber() int { return c.Page }
func (c *Circle) Style() Style    { return c.ShapeStyle }

func (c *Circle) BoundingBox() BoundingBox {
	return BoundingBox{
		X0: c.CenterPoint.X - c.Radius,
		Y0: c.CenterPoint.Y - c.Radius,
		X1: c.CenterPoint.X + c.Radius,
		Y1: c.CenterPoint.Y + c.Radius,
	}
}

func (c *Circle) ContainsPoint(p Point) bool {
	return c.CenterPoint.DistanceTo(p) <= c.Radius
}

func (c *Circle) DistanceToPoint(p Point) float64 {
	d := c.CenterPoint.DistanceTo(p) - c.Radius
	if d < 0 {
		return 0
	}
	return d
}

// DiameterMM returns the circle diameter in millimeters.
func (c *Circle) DiameterMM() float64 {
	return PointsToMM(c.Radius * 2)
}

// Rectangle is an axis-aligned rectangle shape.
type Rectangle struct {
	BBox       BoundingBox `json:"bbox"`
	ShapeStyle Style       `json:"style"`
	Page       int         `json:"page_number"`
}

// NewRectangle constructs a rectangle from a bounding box, rejecting
// boxes with zero extent.
func NewRectangle(bbox BoundingBox, style Style, page int) (*Rectangle, error) {
	if bbox.X1 < bbox.X0 || bbox.Y1 < bbox.Y0 {
		return nil, &InvalidShapeError{Kind: KindRectangle, Reason: "coordinates must satisfy x0 <= x1 and y0 <= y1"}
	}
	if bbox.Width() == 0 || bbox.Height() == 0 {
		return nil, &InvalidShapeError{Kind: KindRectangle, Reason: "zero-extent rectangle"}
	}
	return &Rectangle{BBox: bbox, ShapeStyle: style, Page: page}, nil
}

func (r *Rectangle) Kind() ShapeKind          { return KindRectangle }
func (r *Rectangle) Center() Point            { return r.BBox.Center() }
func (r *Rectangle) BoundingBox() BoundingBox { return r.BBox }
func (r *Rectangle) PageNumber() int          { return r.Page }
func (r *Rectangle) Style() Style             { return r.ShapeStyle }

func (r *Rectangle) ContainsPoint(p Point) bool {
	return r.BBox.Contains(p)
}

func (r *Rectangle) DistanceToPoint(p Point) float64 {
	return r.BBox.DistanceToPoint(p)
}

// Polygon is a closed polygon with ordered vertices.
type Polygon struct {
	Vertices   []Point `json:"vertices"`
	ShapeStyle Style   `json:"style"`
	Page       int     `json:"page_number"`
}

// NewPolygon constructs a polygon, requiring at least 3 vertices and no
// zero-length edges.
func NewPolygon(vertices []Point, style Style, page int) (*Polygon, error) {
	if len(vertices) < 3 {
		return nil, &InvalidShapeError{Kind: KindPolygon, Reason: fmt.Sprintf("need at least 3 vertices, got %d", len(vertices))}
	}
	for i := range vertices {
		j := (i + 1) % len(vertices)
		if vertices[i] == vertices[j] {
			return nil, &InvalidShapeError{Kind: KindPolygon, Reason: fmt.Sprintf("zero-length edge at vertex %d", i)}
		}
	}
	vs := make([]Point, len(vertices))
	copy(vs, vertices)
	return &Polygon{Vertices: vs, ShapeStyle: style, Page: page}, nil
}

func (pg *Polygon) Kind() ShapeKind { return KindPolygon }
func (pg *Polygon) PageNumber() int { return pg.Page }
func (pg *Polygon) Style() Style    { return pg.ShapeStyle }

func (pg *Polygon) Center() Point {
	var cx, cy float64
	for _, v := range pg.Vertices {
		cx += v.X
		cy += v.Y
	}
	n := float64(len(pg.Vertices))
	return Point{X: cx / n, Y: cy / n}
}

func (pg *Polygon) BoundingBox() BoundingBox {
	bbox := BoundingBox{X0: pg.Vertices[0].X, Y0: pg.Vertices[0].Y, X1: pg.Vertices[0].X, Y1: pg.Vertices[0].Y}
	for _, v := range pg.Vertices[1:] {
		bbox.X0 = math.Min(bbox.X0, v.X)
		bbox.Y0 = math.Min(bbox.Y0, v.Y)
		bbox.X1 = math.Max(bbox.X1, v.X)
		bbox.Y1 = math.Max(bbox.Y1, v.Y)
	}
	return bbox
}

// ContainsPoint uses the even-odd ray casting rule.
func (pg *Polygon) ContainsPoint(p Point) bool {
	inside := false
	n := len(pg.Vertices)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := pg.Vertices[i], pg.Vertices[j]
		if (vi.Y > p.Y) != (vj.Y > p.Y) &&
			p.X < (vj.X-vi.X)*(p.Y-vi.Y)/(vj.Y-vi.Y)+vi.X {
			inside = !inside
		}
	}
	return inside
}

// DistanceToPoint returns the minimum distance from p to any polygon
// edge, zero when p is inside.
func (pg *Polygon) DistanceToPoint(p Point) float64 {
	if pg.ContainsPoint(p) {
		return 0
	}
	min := math.Inf(1)
	n := len(pg.Vertices)
	for i := 0; i < n; i++ {
		d := distanceToSegment(p, pg.Vertices[i], pg.Vertices[(i+1)%n])
		if d < min {
			min = d
		}
	}
	return min
}

// distanceToSegment returns the distance from p to segment ab.
func distanceToSegment(p, a, b Point) float64 {
	abx, aby := b.X-a.X, b.Y-a.Y
	apx, apy := p.X-a.X, p.Y-a.Y
	lenSq := abx*abx + aby*aby
	if lenSq == 0 {
		return p.DistanceTo(a)
	}
	t := (apx*abx + apy*aby) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return p.DistanceTo(Point{X: a.X + t*abx, Y: a.Y + t*aby})
}

// Ensure the variants implement Shape.
var (
	_ Shape = (*Circle)(nil)
	_ Shape = (*Rectangle)(nil)
	_ Shape = (*Polygon)(nil)
)
