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
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// merger accumulates per-page results into one Response. Pages are fed
// in page order regardless of completion order, so the merged output
// is byte-equal to a sequential merge.
type merger struct {
	response *Response
}

func newMerger(resp *Response) *merger {
	return &merger{response: resp}
}

// mergePage folds one parsed page into the response. pageNum is
// 1-indexed.
func (m *merger) mergePage(page pageResult, pageNum int) {
	r := m.response

	if page.Text != "" {
		if r.Text != "" {
			r.Text += fmt.Sprintf("\n\n--- Page %d ---\n\n", pageNum)
		}
		r.Text += page.Text
	}

	for _, b := range page.Layout {
		r.LayoutBlocks = append(r.LayoutBlocks, LayoutBlock{
			Type:         b.Type,
			Text:         b.Text,
			Position:     b.Position,
			BoundingBox:  b.BoundingBox,
			ReadingOrder: b.ReadingOrder,
			Page:         pageNum,
		})
	}

	for _, t := range page.Tables {
		if len(t.Headers) == 0 || len(t.Rows) == 0 {
			continue
		}
		r.Tables = append(r.Tables, Table{
			TableType:                   t.TableType,
			Caption:                     t.Caption,
			Headers:                     t.Headers,
			Rows:                        t.Rows,
			Position:                    t.Position,
			BoundingBox:                 t.BoundingBox,
			Notes:                       t.Notes,
			Page:                        pageNum,
			ContainsReferenceQuantities: t.ContainsReferenceQuantities,
			ElementTypesToCount:         t.ElementTypesToCount,
		})
	}

	for _, e := range page.Entities {
		r.Entities = append(r.Entities, Entity{
			Type:            e.Type,
			Value:           e.Value,
			Context:         e.Context,
			LinkedComponent: e.LinkedComponent,
			BoundingBox:     e.BoundingBox,
			Page:            pageNum,
		})
	}

	if page.VisualElements != nil && len(page.VisualElements.ElementGroups) > 0 {
		if r.VisualElements == nil {
			r.VisualElements = &VisualElements{}
		}
		for _, g := range page.VisualElements.ElementGroups {
			group := ElementGroup{
				GroupID:            g.GroupID,
				ElementType:        g.ElementType,
				Count:              g.Count,
				ClusterCenter:      g.ClusterCenter,
				SpatialDescription: g.SpatialDescription,
				Elements:           g.Elements,
				Page:               pageNum,
			}
			for i := range group.Elements {
				group.Elements[i].Page = pageNum
			}
			r.VisualElements.ElementGroups = append(r.VisualElements.ElementGroups, group)
		}
	}

	// Drawing metadata: the first page that supplies it wins; later
	// pages only contribute fields still missing.
	if page.DrawingMetadata != nil {
		if r.DrawingMetadata == nil {
			md := *page.DrawingMetadata
			r.DrawingMetadata = &md
		} else {
			fillMissingMetadata(r.DrawingMetadata, page.DrawingMetadata)
		}
	}

	if page.Summary != "" {
		if r.Summary != "" {
			r.Summary += fmt.Sprintf("\n\nPage %d: ", pageNum)
		} else {
			r.Summary = fmt.Sprintf("Page %d: ", pageNum)
		}
		r.Summary += page.Summary
	}
}

// fillMissingMetadata copies fields from src into dst where dst is
// still empty.
func fillMissingMetadata(dst, src *DrawingMetadata) {
	fill := func(d *string, s string) {
		if *d == "" {
			*d = s
		}
	}
	fill(&dst.DrawingNumber, src.DrawingNumber)
	fill(&dst.Revision, src.Revision)
	fill(&dst.SheetNumber, src.SheetNumber)
	fill(&dst.DrawingTitle, src.DrawingTitle)
	fill(&dst.ProjectName, src.ProjectName)
	fill(&dst.Scale, src.Scale)
	fill(&dst.Units, src.Units)
	fill(&dst.ProjectionType, src.ProjectionType)
	fill(&dst.Date, src.Date)
	fill(&dst.DrawnBy, src.DrawnBy)
	fill(&dst.CheckedBy, src.CheckedBy)
	fill(&dst.ApprovedBy, src.ApprovedBy)
	fill(&dst.Company, src.Company)
	fill(&dst.DrawingStandard, src.DrawingStandard)
	fill(&dst.DrawingType, src.DrawingType)
	fill(&dst.Complexity, src.Complexity)
	fill(&dst.Purpose, src.Purpose)
	fill(&dst.MaterialSpecifications, src.MaterialSpecifications)
	if len(dst.GeneralNotes) == 0 {
		dst.GeneralNotes = src.GeneralNotes
	}
	if len(dst.ReferenceDrawings) == 0 {
		dst.ReferenceDrawings = src.ReferenceDrawings
	}
}

// validateAgainstSchedules computes the schedule-vs-drawing
// reconciliation. For every schedule table listing element types with
// quantities, the element-group counts are summed per type and compared
// against the required quantity.
func validateAgainstSchedules(r *Response) {
	if r.VisualElements == nil || len(r.Tables) == 0 {
		return
	}

	// Sum found counts per normalized element type.
	found := make(map[string]int)
	for _, g := range r.VisualElements.ElementGroups {
		found[normalizeElementType(g.ElementType)] += g.Count
	}

	validation := make(map[string]ScheduleCheck)
	for _, table := range r.Tables {
		if !isScheduleTable(table) {
			continue
		}
		qtyCol := findQuantityColumn(table.Headers)
		if qtyCol < 0 {
			continue
		}

		for _, row := range table.Rows {
			if qtyCol >= len(row) {
				continue
			}
			required, err := strconv.Atoi(strings.TrimSpace(row[qtyCol]))
			if err != nil {
				continue
			}
			key := scheduleRowKey(table.Headers, row)
			if key == "" {
				continue
			}
			count := found[normalizeElementType(key)]
			validation[key] = ScheduleCheck{
				RequiredQuantity: required,
				FoundInDrawing:   count,
				Match:            required == count,
			}
		}
	}

	if len(validation) > 0 {
		r.VisualElements.Validation = validation
	}
}

// isScheduleTable reports whether a table carries reference
// quantities.
func isScheduleTable(t Table) bool {
	if t.ContainsReferenceQuantities {
		return true
	}
	switch strings.ToLower(t.TableType) {
	case "schedule", "bill_of_materials", "bom":
		return true
	}
	return false
}

// findQuantityColumn locates the quantity header.
func findQuantityColumn(headers []string) int {
	for i, h := range headers {
		switch strings.ToUpper(strings.TrimSpace(h)) {
		case "QUANTITY", "QTY", "COUNT", "NO", "NO.":
			return i
		}
	}
	return -1
}

// scheduleRowKey derives the element-type key for a schedule row by
// joining the type and size columns, e.g. "HEX_BOLT_M8x20".
func scheduleRowKey(headers []string, row []string) string {
	var typ, size string
	for i, h := range headers {
		if i >= len(row) {
			break
		}
		switch strings.ToUpper(strings.TrimSpace(h)) {
		case "TYPE", "DESCRIPTION", "ELEMENT":
			typ = strings.TrimSpace(row[i])
		case "SIZE", "SPEC", "SPECIFICATION":
			size = strings.TrimSpace(row[i])
		}
	}
	if typ == "" {
		return ""
	}
	key := typ
	if size != "" {
		key += " " + size
	}
	return strings.Join(strings.Fields(key), "_")
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

// normalizeElementType canonicalizes element-type keys so
// "HEX_BOLT_M8x20", "hex bolt M8x20" and "HEX BOLT M8X20" compare
// equal.
func normalizeElementType(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToUpper(s), "")
}
