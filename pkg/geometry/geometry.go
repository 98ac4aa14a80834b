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

// Package geometry provides the shape primitives used by the vector
// drawing pipeline: points, bounding boxes and the tagged shape variants
// (circle, rectangle, polygon) with containment and distance operations.
//
// All coordinates are in PDF points. 1 pt = 1/2.834645 mm.
package geometry

import "math"

// PointsPerMM is the number of PDF points per millimeter.
const PointsPerMM = 2.834645

// PointsToMM converts a length in PDF points to millimeters.
func PointsToMM(pts float64) float64 {
	return pts / PointsPerMM
}

// MMToPoints converts a length in millimeters to PDF points.
func MMToPoints(mm float64) float64 {
	return mm * PointsPerMM
}

// Point is a 2D point in page coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the euclidean distance to another point.
func (p Point) DistanceTo(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// BoundingBox is an axis-aligned rectangle with X0 <= X1 and Y0 <= Y1.
type BoundingBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// NewBoundingBox builds a bounding box from two corner points,
// normalizing the coordinate order.
func NewBoundingBox(x0, y0, x1, y1 float64) BoundingBox {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return BoundingBox{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

// Width returns the box width.
func (b BoundingBox) Width() float64 { return b.X1 - b.X0 }

// Height returns the box height.
func (b BoundingBox) Height() float64 { return b.Y1 - b.Y0 }

// Center returns the box center.
func (b BoundingBox) Center() Point {
	return Point{X: (b.X0 + b.X1) / 2, Y: (b.Y0 + b.Y1) / 2}
}

// Contains reports whether the point lies inside the box (inclusive).
func (b BoundingBox) Contains(p Point) bool {
	return p.X >= b.X0 && p.X <= b.X1 && p.Y >= b.Y0 && p.Y <= b.Y1
}

// Union returns the smallest box covering both boxes.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		X0: math.Min(b.X0, o.X0),
		Y0: math.Min(b.Y0, o.Y0),
		X1: math.Max(b.X1, o.X1),
		Y1: math.Max(b.Y1, o.Y1),
	}
}

// DistanceToPoint returns the distance from the box boundary to p,
// zero when p is inside.
func (b BoundingBox) DistanceToPoint(p Point) float64 {
	dx := math.Max(math.Max(b.X0-p.X, 0), p.X-b.X1)
	dy := math.Max(math.Max(b.Y0-p.Y, 0), p.Y-b.Y1)
	return math.Hypot(dx, dy)
}
