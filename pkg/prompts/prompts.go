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

// Package prompts declares the closed set of extraction tasks and
// composes their prompt fragments into one multi-task vision prompt
// with a strict JSON output contract.
package prompts

import (
	"fmt"
	"strings"
)

// Task is an extraction task the unified extractor can perform.
type Task string

const (
	TaskText            Task = "text"
	TaskLayout          Task = "layout"
	TaskTables          Task = "tables"
	TaskEntities        Task = "entities"
	TaskSummary         Task = "summary"
	TaskVisualElements  Task = "visual_elements"
	TaskDrawingMetadata Task = "drawing_metadata"
	TaskAll             Task = "all"
)

// AllTasks is every concrete task, in prompt order.
var AllTasks = []Task{
	TaskText,
	TaskLayout,
	TaskTables,
	TaskEntities,
	TaskVisualElements,
	TaskDrawingMetadata,
	TaskSummary,
}

const basePrompt = `Analyze this document image and extract the following information.

IMPORTANT COORDINATE SYSTEM:
- All coordinates are in pixels relative to the image
- Origin (0,0) is at the top-left corner of the image
- X increases from left to right
- Y increases from top to bottom
- Provide exact integer pixel values for all coordinates

`

const textPrompt = `
1. TEXT CONTENT:
   - Extract all visible text in the document
   - Preserve paragraph structure and reading order
   - Include headers, footers, and captions
   - Preserve bullet points and numbered lists
   - DO NOT include text from within tables in this section (tables are extracted separately)
`

const layoutPrompt = `
2. DOCUMENT LAYOUT:
   - Identify all content blocks in the document
   - For each block, specify:
     * Type: title, heading, paragraph, list, table, figure, caption, header, footer, title_block, drawing_area
     * Text content
     * Position: approximate location (top/middle/bottom, left/center/right)
     * Bounding box: {"x": left_px, "y": top_px, "width": width_px, "height": height_px}
     * Reading order: sequence number
   - Distinguish between drawing area and annotation/specification areas
`

const tablesPrompt = `
3. TABLES:
   - Extract all tables with their structure intact
   - For each table, include:
     * Table type: schedule, bill_of_materials, specifications, tolerance_table, general
     * Headers (column names) - preserve exact capitalization and spacing
     * All row data with EXACT values
     * Table caption/title if present
     * Position in document with bounding box coordinates

   CRITICAL PRECISION REQUIREMENTS:
   - Maintain EXACT numerical values (2.50 is not 2.5, preserve all decimal places)
   - Preserve all units with values (25.4mm, 1.5 inches, 15kg - NEVER strip units)
   - Keep part numbers exactly as shown
   - Preserve empty cells vs zero values (they have different meanings)
   - For schedule tables: identify the element types that need to be counted in the drawing
`

const entitiesPrompt = `
4. ENTITIES:
   - Identify key entities in the document
   - For each entity, include:
     * Type: person, organization, location, date, number, monetary value,
       part_number, material_spec, measurement, standard_reference,
       component_type, quantity, tolerance, drawing_number
     * Value: the actual entity text (preserve exactly as written)
     * Context: surrounding text or section
   - quantity entities are integers WITH context, linked to their component
   - Link quantities to their corresponding components
`

const visualElementsPrompt = `
5. VISUAL ELEMENTS (For Drawings and Diagrams):
   - Identify ALL distinct visual elements (symbols, shapes, markers, annotations)
   - For each element instance, provide:
     * element_id, type, subtype
     * bounding_box: EXACT pixel coordinates {"x": left_px, "y": top_px, "width": width_px, "height": height_px}
     * center_point: {"x": center_x_px, "y": center_y_px}
     * zone, specifications, label, rotation

   ELEMENT GROUPING:
   - Group identical/similar elements that are in close proximity
   - For each group: group_id, element_type, count (EXACT integer),
     elements array with coordinates, cluster_center, spatial_description

   COUNTING RULES - CRITICAL:
   - Count ONLY elements visible in the drawing/diagram area
   - DO NOT count elements mentioned in tables, schedules, or text annotations
   - DO NOT count legend symbols or reference examples
   - Provide exact integer counts, NOT estimates or ranges

   VALIDATION AGAINST SCHEDULES:
   - If schedule/BOM tables are present, list the element types they reference
   - These are the elements that MUST be counted in the drawing
`

const drawingMetadataPrompt = `
6. DRAWING METADATA (For Engineering/Technical Drawings):
   - Extract all title block information:
     * drawing_number, revision, sheet_number, drawing_title, project_name
     * scale, units, projection_type, date
     * drawn_by, checked_by, approved_by, company, drawing_standard
   - Extract general notes and specifications:
     * material_specifications, finish_specifications, tolerance_notes
     * reference_drawings
   - Document characteristics:
     * drawing_type: part, assembly, detail, section, schematic, electrical, mechanical
     * complexity: simple, moderate, complex
`

const summaryPrompt = `
7. SUMMARY:
   - Provide a concise summary of the document (3-5 sentences)
   - Capture the main points and purpose of the document
   - For technical drawings: summarize what is depicted, main components, and purpose
`

const outputFormat = `
OUTPUT FORMAT:
Provide a JSON response with the following structure:
{
    "text": "Full extracted text content (excluding table data)...",
    "layout": [
        {"type": "title", "text": "...", "position": "top-center",
         "bounding_box": {"x": 100, "y": 50, "width": 400, "height": 60}, "reading_order": 1}
    ],
    "tables": [
        {"table_type": "schedule", "caption": "FASTENER SCHEDULE",
         "headers": ["MARK", "TYPE", "SIZE", "QUANTITY", "MATERIAL"],
         "rows": [["A", "HEX BOLT", "M8x20", "15", "Grade 8.8 Steel"]],
         "position": "bottom-left",
         "bounding_box": {"x": 50, "y": 1200, "width": 600, "height": 300},
         "contains_reference_quantities": true,
         "element_types_to_count": ["HEX BOLT M8x20"]}
    ],
    "entities": [
        {"type": "part_number", "value": "ABC-123-XY", "context": "..."},
        {"type": "quantity", "value": 15, "context": "M8 hex bolts required per schedule",
         "linked_component": "M8x20 HEX BOLT"}
    ],
    "visual_elements": {
        "element_groups": [
            {"group_id": "group_001", "element_type": "HEX_BOLT_M8x20", "count": 15,
             "cluster_center": {"x": 450, "y": 620},
             "spatial_description": "Cluster of 15 hex bolts across top frame section",
             "elements": [
                 {"element_id": "bolt_001", "type": "bolt", "subtype": "M8_hex_bolt",
                  "center_point": {"x": 420, "y": 580},
                  "bounding_box": {"x": 415, "y": 575, "width": 10, "height": 10},
                  "zone": "top-left", "specifications": "M8x20", "label": "A"}
             ]}
        ]
    },
    "drawing_metadata": {
        "drawing_number": "DWG-12345-A", "revision": "C", "sheet_number": "1 of 1",
        "drawing_title": "...", "scale": "1:10", "units": "mm"
    },
    "summary": "..."
}

CRITICAL REQUIREMENTS:
- Include only the sections that were requested in the analysis
- Ensure all JSON is valid and properly formatted
- All numerical coordinates must be integers (pixel values)
- All counts must be exact integers, never estimates or ranges
- Preserve units with all measurements
- Maintain exact capitalization and formatting for part numbers
- Bounding boxes must use image pixel coordinates (0,0 = top-left of image)
`

var taskFragments = map[Task]string{
	TaskText:            textPrompt,
	TaskLayout:          layoutPrompt,
	TaskTables:          tablesPrompt,
	TaskEntities:        entitiesPrompt,
	TaskVisualElements:  visualElementsPrompt,
	TaskDrawingMetadata: drawingMetadataPrompt,
	TaskSummary:         summaryPrompt,
}

// ExpandAll replaces the ALL pseudo-task with every concrete task.
func ExpandAll(tasks []Task) []Task {
	for _, t := range tasks {
		if t == TaskAll {
			out := make([]Task, len(AllTasks))
			copy(out, AllTasks)
			return out
		}
	}
	return tasks
}

// Contains reports whether the task list includes t after ALL
// expansion.
func Contains(tasks []Task, t Task) bool {
	for _, task := range ExpandAll(tasks) {
		if task == t {
			return true
		}
	}
	return false
}

// BuildUnified composes the requested tasks into a single prompt with
// the strict JSON output contract appended. An optional specialized
// prompt is injected after the coordinate-system preamble.
func BuildUnified(tasks []Task, specialized string) string {
	tasks = ExpandAll(tasks)

	var sb strings.Builder
	sb.WriteString(basePrompt)

	if specialized != "" {
		sb.WriteString(strings.TrimSpace(specialized))
		sb.WriteString("\n\n")
	}

	for _, task := range AllTasks {
		if !containsTask(tasks, task) {
			continue
		}
		sb.WriteString(taskFragments[task])
	}

	sb.WriteString(outputFormat)
	return sb.String()
}

func containsTask(tasks []Task, t Task) bool {
	for _, task := range tasks {
		if task == t {
			return true
		}
	}
	return false
}

// WithImageDimensions appends the image dimensions to a prompt so
// coordinate extraction stays anchored.
func WithImageDimensions(prompt string, width, height int) string {
	return fmt.Sprintf(`%s
IMAGE DIMENSIONS:
- Width: %d pixels
- Height: %d pixels
`, prompt, width, height)
}

// TasksForDocumentType maps a document-type tag to the recommended
// task list.
func TasksForDocumentType(docType string) []Task {
	switch docType {
	case "engineering_drawing":
		return []Task{
			TaskDrawingMetadata,
			TaskVisualElements,
			TaskTables,
			TaskEntities,
			TaskLayout,
			TaskText,
			TaskSummary,
		}
	case "financial":
		return []Task{TaskText, TaskTables, TaskEntities, TaskLayout, TaskSummary}
	case "scientific":
		return []Task{TaskText, TaskLayout, TaskTables, TaskEntities, TaskSummary}
	case "legal":
		return []Task{TaskText, TaskLayout, TaskEntities, TaskSummary}
	default:
		return []Task{TaskText, TaskLayout, TaskSummary}
	}
}
