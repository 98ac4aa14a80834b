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

// Package extraction implements unified multi-task vision extraction
// and the rule-based native extractors it falls back to.
package extraction

import (
	"errors"

	"github.com/plansight/takeoff/pkg/llms"
	"github.com/plansight/takeoff/pkg/prompts"
)

// Fatal request errors. Nothing is written when these surface.
var (
	// ErrInputNotFound means the input file path does not exist.
	ErrInputNotFound = errors.New("input not found")

	// ErrInvalidFormat means the input format is not supported.
	ErrInvalidFormat = errors.New("invalid format")
)

// Request describes one unified extraction run.
type Request struct {
	// FilePath is the document to extract.
	FilePath string

	// Tasks are the extraction tasks to perform.
	Tasks []prompts.Task

	// Organization scopes credential resolution.
	Organization string

	// PageRange limits extraction to specific 0-indexed pages.
	PageRange []int

	// MaxPages caps pages processed; 0 uses the configured default.
	MaxPages int

	// QualityPriority trades cost against quality in routing.
	QualityPriority llms.QualityPriority

	// MaxCostUSD is the per-call budget hint passed to the router.
	MaxCostUSD float64

	// SpecializedPrompt is injected into the unified prompt when set.
	SpecializedPrompt string
}

// BoundingBoxPx is a pixel-space bounding box, origin top-left.
type BoundingBoxPx struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PointPx is a pixel-space point.
type PointPx struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// LayoutBlock is one content block found by layout analysis.
type LayoutBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	Position     string        `json:"position,omitempty"`
	BoundingBox  BoundingBoxPx `json:"bounding_box"`
	ReadingOrder int           `json:"reading_order"`
	Page         int           `json:"page"`
}

// Table is a typed table record.
type Table struct {
	TableType   string        `json:"table_type"`
	Caption     string        `json:"caption,omitempty"`
	Headers     []string      `json:"headers"`
	Rows        [][]string    `json:"rows"`
	Position    string        `json:"position,omitempty"`
	BoundingBox BoundingBoxPx `json:"bounding_box"`
	Notes       string        `json:"notes,omitempty"`
	Page        int           `json:"page"`

	// Schedule-reference metadata: schedule/BOM tables list element
	// types whose quantities must reconcile with the drawing.
	ContainsReferenceQuantities bool     `json:"contains_reference_quantities,omitempty"`
	ElementTypesToCount         []string `json:"element_types_to_count,omitempty"`
}

// Entity is one extracted entity.
type Entity struct {
	Type            string        `json:"type"`
	Value           any           `json:"value"`
	Context         string        `json:"context,omitempty"`
	LinkedComponent string        `json:"linked_component,omitempty"`
	BoundingBox     BoundingBoxPx `json:"bounding_box,omitempty"`
	Page            int           `json:"page"`
}

// ElementInstance is one located visual element.
type ElementInstance struct {
	ElementID      string        `json:"element_id"`
	Type           string        `json:"type"`
	Subtype        string        `json:"subtype,omitempty"`
	CenterPoint    PointPx       `json:"center_point"`
	BoundingBox    BoundingBoxPx `json:"bounding_box"`
	Zone           string        `json:"zone,omitempty"`
	Specifications string        `json:"specifications,omitempty"`
	Label          string        `json:"label,omitempty"`
	Rotation       float64       `json:"rotation,omitempty"`
	Page           int           `json:"page"`
}

// ElementGroup groups similar visual elements in proximity.
type ElementGroup struct {
	GroupID            string            `json:"group_id"`
	ElementType        string            `json:"element_type"`
	Count              int               `json:"count"`
	ClusterCenter      PointPx           `json:"cluster_center"`
	SpatialDescription string            `json:"spatial_description,omitempty"`
	Elements           []ElementInstance `json:"elements"`
	Page               int               `json:"page"`
}

// ScheduleCheck is the schedule-vs-drawing reconciliation for one
// element type. A mismatch is a computed property, not a failure.
type ScheduleCheck struct {
	RequiredQuantity int  `json:"required_quantity"`
	FoundInDrawing   int  `json:"found_in_drawing"`
	Match            bool `json:"match"`
}

// VisualElements accumulates element groups and their validation
// against schedule tables.
type VisualElements struct {
	ElementGroups []ElementGroup           `json:"element_groups"`
	Validation    map[string]ScheduleCheck `json:"validation,omitempty"`
}

// DrawingMetadata is the title-block information of a drawing.
type DrawingMetadata struct {
	DrawingNumber          string   `json:"drawing_number,omitempty"`
	Revision               string   `json:"revision,omitempty"`
	SheetNumber            string   `json:"sheet_number,omitempty"`
	DrawingTitle           string   `json:"drawing_title,omitempty"`
	ProjectName            string   `json:"project_name,omitempty"`
	Scale                  string   `json:"scale,omitempty"`
	Units                  string   `json:"units,omitempty"`
	ProjectionType         string   `json:"projection_type,omitempty"`
	Date                   string   `json:"date,omitempty"`
	DrawnBy                string   `json:"drawn_by,omitempty"`
	CheckedBy              string   `json:"checked_by,omitempty"`
	ApprovedBy             string   `json:"approved_by,omitempty"`
	Company                string   `json:"company,omitempty"`
	DrawingStandard        string   `json:"drawing_standard,omitempty"`
	DrawingType            string   `json:"drawing_type,omitempty"`
	Complexity             string   `json:"complexity,omitempty"`
	Purpose                string   `json:"purpose,omitempty"`
	GeneralNotes           []string `json:"general_notes,omitempty"`
	MaterialSpecifications string   `json:"material_specifications,omitempty"`
	ReferenceDrawings      []string `json:"reference_drawings,omitempty"`
}

// Response is the merged result of a unified extraction run.
//
// Every response carries success, cost and timing even on failure
// paths: costs measure what was spent before giving up.
type Response struct {
	Text            string           `json:"text"`
	LayoutBlocks    []LayoutBlock    `json:"layout"`
	Tables          []Table          `json:"tables"`
	Entities        []Entity         `json:"entities"`
	Summary         string           `json:"summary"`
	VisualElements  *VisualElements  `json:"visual_elements,omitempty"`
	DrawingMetadata *DrawingMetadata `json:"drawing_metadata,omitempty"`

	Metadata         map[string]any `json:"metadata,omitempty"`
	CostUSD          float64        `json:"cost_usd"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
	ModelUsed        string         `json:"model_used,omitempty"`
	ProviderUsed     string         `json:"provider_used,omitempty"`
	Success          bool           `json:"success"`
	Error            string         `json:"error,omitempty"`
	Warnings         []string       `json:"warnings"`
}

// pageResult is the parsed JSON of one page, matching the wire format
// of the unified-extractor response. Missing keys are empty, not
// errors.
type pageResult struct {
	Text   string `json:"text"`
	Layout []struct {
		Type         string        `json:"type"`
		Text         string        `json:"text"`
		Position     string        `json:"position"`
		BoundingBox  BoundingBoxPx `json:"bounding_box"`
		ReadingOrder int           `json:"reading_order"`
	} `json:"layout"`
	Tables []struct {
		TableType                   string        `json:"table_type"`
		Caption                     string        `json:"caption"`
		Headers                     []string      `json:"headers"`
		Rows                        [][]string    `json:"rows"`
		Position                    string        `json:"position"`
		BoundingBox                 BoundingBoxPx `json:"bounding_box"`
		Notes                       string        `json:"notes"`
		ContainsReferenceQuantities bool          `json:"contains_reference_quantities"`
		ElementTypesToCount         []string      `json:"element_types_to_count"`
	} `json:"tables"`
	Entities []struct {
		Type            string        `json:"type"`
		Value           any           `json:"value"`
		Context         string        `json:"context"`
		LinkedComponent string        `json:"linked_component"`
		BoundingBox     BoundingBoxPx `json:"bounding_box"`
	} `json:"entities"`
	VisualElements *struct {
		ElementGroups []struct {
			GroupID            string            `json:"group_id"`
			ElementType        string            `json:"element_type"`
			Count              int               `json:"count"`
			ClusterCenter      PointPx           `json:"cluster_center"`
			SpatialDescription string            `json:"spatial_description"`
			Elements           []ElementInstance `json:"elements"`
		} `json:"element_groups"`
	} `json:"visual_elements"`
	DrawingMetadata *DrawingMetadata `json:"drawing_metadata"`
	Summary         string           `json:"summary"`
}
