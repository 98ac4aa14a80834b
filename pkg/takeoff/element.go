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

package takeoff

import (
	"fmt"
	"strconv"
	"strings"
)

// Specifications groups an element's spec fields by section:
// dimensions, reinforcement, concrete, quantity, location, finish.
// The shape of each section is dictated by the element type's schema.
type Specifications map[string]map[string]any

// Notes carries extraction provenance for one element.
type Notes struct {
	SourceReferences   []string `json:"source_references"`
	MissingFields      []string `json:"missing_fields"`
	AssumptionsMade    []string `json:"assumptions_made"`
	ValidationWarnings []string `json:"validation_warnings"`
	Typical            string   `json:"typical,omitempty"`
	Description        string   `json:"description,omitempty"`
}

// Element is one extracted takeoff element.
type Element struct {
	ElementID      string         `json:"element_id"`
	ElementType    string         `json:"element_type"`
	PageNumber     int            `json:"page_number"`
	Confidence     float64        `json:"confidence_score"`
	Specifications Specifications `json:"specifications"`
	Notes          Notes          `json:"extraction_notes"`
	Completeness   float64        `json:"completeness,omitempty"`
}

// ElementFromRow converts a parsed table row into an element,
// returning nil for junk rows. Dimensions become integer millimeters;
// quantities parse as counts or linear meters; reinforcement follows
// the grammar; concrete cover is integer millimeters when purely
// numeric.
func ElementFromRow(row Row) *Element {
	if isJunkRow(row) {
		return nil
	}

	el := &Element{
		ElementID:   cell(row, "ID"),
		ElementType: cell(row, "TYPE"),
		PageNumber:  1,
		Confidence:  1.0,
		Specifications: Specifications{
			"dimensions":    {},
			"reinforcement": {},
			"concrete":      {},
			"quantity":      {},
			"location":      {},
			"finish":        {},
		},
		Notes: Notes{
			SourceReferences:   []string{},
			MissingFields:      []string{},
			AssumptionsMade:    []string{},
			ValidationWarnings: []string{},
		},
	}

	if page := cell(row, "PAGE"); page != "" {
		if n, err := strconv.Atoi(page); err == nil {
			el.PageNumber = n
		}
	}
	el.Notes.SourceReferences = append(el.Notes.SourceReferences, fmt.Sprintf("Page %d", el.PageNumber))

	for col, field := range map[string]string{"WIDTH": "width_mm", "LENGTH": "length_mm", "DEPTH": "depth_mm"} {
		if v := cell(row, col); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				el.Specifications["dimensions"][field] = n
			}
		}
	}

	if qty := cell(row, "QTY"); qty != "" {
		switch {
		case strings.Contains(strings.ToLower(qty), "m"):
			el.Specifications["quantity"]["length"] = qty
			el.Specifications["quantity"]["unit"] = "linear_meters"
		default:
			if n, err := strconv.Atoi(qty); err == nil {
				el.Specifications["quantity"]["count"] = n
				el.Specifications["quantity"]["unit"] = "number"
			} else {
				el.Specifications["quantity"]["value"] = qty
			}
		}
	}

	for col, side := range map[string]string{"TOP_REINF": "top", "BOT_REINF": "bottom", "SIDE_REINF": "side"} {
		if v := cell(row, col); v != "" {
			el.Specifications["reinforcement"][side] = ParseReinforcement(v).asMap()
		}
	}

	if grade := cell(row, "GRADE"); grade != "" {
		el.Specifications["concrete"]["grade"] = grade
	}
	if cover := cell(row, "COVER"); cover != "" {
		if n, err := strconv.Atoi(cover); err == nil {
			el.Specifications["concrete"]["cover_mm"] = n
		} else {
			el.Specifications["concrete"]["cover_description"] = cover
		}
	}

	if finish := cell(row, "FINISH"); finish != "" {
		el.Specifications["finish"]["type"] = finish
	}
	if loc := cell(row, "LOCATION"); loc != "" {
		el.Specifications["location"]["description"] = loc
	}
	if zone := cell(row, "ZONE"); zone != "" {
		el.Specifications["location"]["zone"] = zone
	}
	if level := cell(row, "LEVEL"); level != "" {
		el.Specifications["location"]["level"] = level
	}

	if notes := cell(row, "NOTES"); notes != "" {
		el.Notes.Description = notes
	}
	if typical := cell(row, "TYPICAL"); typical != "" {
		el.Notes.Typical = typical
	}

	// Empty groups are dropped so the schema validator sees only what
	// was actually extracted.
	for group, fields := range el.Specifications {
		if len(fields) == 0 {
			delete(el.Specifications, group)
		}
	}

	return el
}

// FilterDuplicates drops elements whose id was already captured in
// this run.
func FilterDuplicates(elements []*Element, seen map[string]bool) []*Element {
	out := make([]*Element, 0, len(elements))
	for _, el := range elements {
		if el.ElementID == "" || seen[el.ElementID] {
			continue
		}
		seen[el.ElementID] = true
		out = append(out, el)
	}
	return out
}
