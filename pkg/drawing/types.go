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

// Package drawing implements the vector-geometric pipeline: text with
// coordinates, line/arc recovery from PDF drawing operators, adaptive
// shape assembly, and text-to-shape element detection.
package drawing

import (
	"math"

	"github.com/plansight/takeoff/pkg/geometry"
)

// CoordinateOrigin selects the page coordinate system for extracted
// geometry.
type CoordinateOrigin string

const (
	// OriginPDF is the PDF-native system: origin at the bottom-left,
	// Y increasing upward.
	OriginPDF CoordinateOrigin = "pdf"

	// OriginImage is the raster system: origin at the top-left,
	// Y increasing downward.
	OriginImage CoordinateOrigin = "image"
)

// TextInstance is a positioned word on a page.
type TextInstance struct {
	Text       string               `json:"text"`
	BBox       geometry.BoundingBox `json:"bbox"`
	Center     geometry.Point       `json:"center"`
	FontName   string               `json:"font_name"`
	FontSize   float64              `json:"font_size"`
	Bold       bool                 `json:"bold"`
	Italic     bool                 `json:"italic"`
	PageNumber int                  `json:"page_number"`
	Confidence float64              `json:"confidence"`
}

// PageMetadata describes a page's geometry.
type PageMetadata struct {
	PageNumber int     `json:"page_number"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Rotation   int     `json:"rotation"`
}

// PageText is the per-page text extraction result.
type PageText struct {
	Metadata PageMetadata   `json:"metadata"`
	Texts    []TextInstance `json:"text_instances"`
}

// TextResult is the whole-document text extraction result.
type TextResult struct {
	Pages  []PageText `json:"pages"`
	Errors []string   `json:"errors,omitempty"`

	// Engine names the reader that produced the result.
	Engine string `json:"engine"`
}

// LineSegment is a straight stroke recovered from the operator stream.
type LineSegment struct {
	X0, Y0, X1, Y1 float64
	LineWidth      float64
	Color          [3]float64
	Dashed         bool
}

// Length returns the segment length in points.
func (l LineSegment) Length() float64 {
	return math.Hypot(l.X1-l.X0, l.Y1-l.Y0)
}

// LengthMM returns the segment length in millimeters.
func (l LineSegment) LengthMM() float64 {
	return geometry.PointsToMM(l.Length())
}

// Midpoint returns the segment midpoint.
func (l LineSegment) Midpoint() geometry.Point {
	return geometry.Point{X: (l.X0 + l.X1) / 2, Y: (l.Y0 + l.Y1) / 2}
}

// Angle returns the segment angle in degrees in (-180, 180].
func (l LineSegment) Angle() float64 {
	return math.Atan2(l.Y1-l.Y0, l.X1-l.X0) * 180 / math.Pi
}

// ArcKind classifies a bezier subpath.
type ArcKind string

const (
	ArcCircle ArcKind = "circle"
	ArcArc    ArcKind = "arc"
	ArcCurve  ArcKind = "curve"
)

// Arc is a bezier subpath recovered from the operator stream. A subpath
// drawn with exactly 4 bezier curves and a near-square aspect ratio is
// pre-tagged as a circle.
type Arc struct {
	BBox       geometry.BoundingBox
	CurveCount int
	Center     geometry.Point
	Aspect     float64
	Kind       ArcKind
	LineWidth  float64
	Color      [3]float64
}

// PageVectors holds the raw vector content of one page.
type PageVectors struct {
	Metadata PageMetadata
	Lines    []LineSegment
	Arcs     []Arc
}

// PageShapes is the assembled shape set for one page.
type PageShapes struct {
	PageNumber int
	Shapes     []geometry.Shape

	// Analysis records the auto-tuning decision for the page.
	Analysis LineAnalysis
}

// TextPosition classifies where an associated label sits relative to
// its shape.
type TextPosition string

const (
	PositionInside TextPosition = "inside"
	PositionNear   TextPosition = "near"
)

// Association links a text instance to a shape with a confidence.
type Association struct {
	Text       TextInstance   `json:"text"`
	Position   TextPosition   `json:"position"`
	Distance   float64        `json:"distance"`
	Confidence float64        `json:"confidence"`
	Shape      geometry.Shape `json:"-"`
}

// DetectedElement is an engineering element identified on a drawing.
type DetectedElement struct {
	ElementID    string         `json:"element_id"`
	ElementType  ElementType    `json:"element_type"`
	Location     geometry.Point `json:"location"`
	Shape        geometry.Shape `json:"-"`
	ShapeKind    string         `json:"shape_type"`
	PageNumber   int            `json:"page_number"`
	Associations []Association  `json:"associations"`
	Confidence   float64        `json:"confidence"`
}

// ElementOccurrence is one located instance of an element ID.
type ElementOccurrence struct {
	PageNumber int            `json:"page"`
	Location   geometry.Point `json:"location"`
	ShapeKind  string         `json:"shape_type"`
	Confidence float64        `json:"confidence"`
}

// ElementCount aggregates occurrences per element ID.
type ElementCount struct {
	ElementID   string              `json:"element_id"`
	ElementType ElementType         `json:"element_type"`
	Count       int                 `json:"count"`
	Occurrences []ElementOccurrence `json:"occurrences"`
}

// DetectionSummary aggregates a detection run.
type DetectionSummary struct {
	TotalElements    int                 `json:"total_elements"`
	UniqueElementIDs int                 `json:"unique_element_ids"`
	ElementCounts    []ElementCount      `json:"element_counts"`
	ElementTypes     map[ElementType]int `json:"element_types"`
	PagesProcessed   int                 `json:"pages_processed"`
}

// PageElements holds detected elements for one page.
type PageElements struct {
	PageNumber int               `json:"page_number"`
	Elements   []DetectedElement `json:"elements"`
}

// DetectionResult is the whole-document element detection result.
type DetectionResult struct {
	Success    bool             `json:"success"`
	FilePath   string           `json:"file_path"`
	TotalPages int              `json:"total_pages"`
	Pages      []PageElements   `json:"pages"`
	Summary    DetectionSummary `json:"summary"`
	Error      string           `json:"error,omitempty"`
}
