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

// Package takeoff implements the chunked LLM takeoff extraction:
// page-iterated prompts, the pipe-delimited table wire format, the
// reinforcement grammar and the element schema validator.
package takeoff

import (
	"strconv"
	"strings"
)

// TableColumns is the exact 18-column wire contract of the takeoff
// table.
var TableColumns = []string{
	"ID", "TYPE", "PAGE", "WIDTH", "LENGTH", "DEPTH", "QTY",
	"TOP_REINF", "BOT_REINF", "SIDE_REINF", "GRADE", "COVER",
	"FINISH", "LOCATION", "ZONE", "LEVEL", "NOTES", "TYPICAL",
}

// TableHeader is the header row of the wire format.
var TableHeader = strings.Join(TableColumns, "|")

// NoElementsSentinel marks a page with nothing to extract.
const NoElementsSentinel = "NO ELEMENTS"

// Unknown is the cell placeholder for unknown values.
const Unknown = "-"

// Row is one raw table row keyed by column name.
type Row map[string]string

// HasNoElements reports whether a response declares the page empty.
func HasNoElements(text string) bool {
	return strings.Contains(strings.ToUpper(strings.TrimSpace(text)), NoElementsSentinel)
}

// ParseTable reads the pipe-delimited table out of an LLM response.
// The header row is located anywhere in the text; the lines after it
// are data rows. Blank lines, separator lines and continuation
// sentinels are skipped, as are rows with fewer cells than the header.
func ParseTable(text string) []Row {
	lines := strings.Split(strings.TrimSpace(text), "\n")

	headerIndex := -1
	var header []string
	for i, line := range lines {
		if strings.Contains(line, "ID|TYPE") || strings.Contains(strings.ToLower(line), "id|type") {
			header = splitCells(line)
			headerIndex = i
			break
		}
	}
	if headerIndex < 0 {
		return nil
	}

	var rows []Row
	for _, line := range lines[headerIndex+1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "-----") {
			continue
		}
		// CONTINUE: YES/NO is tolerated but ignored in page-iterated
		// mode.
		if strings.Contains(strings.ToUpper(trimmed), "CONTINUE:") {
			continue
		}

		cells := splitCells(line)
		if len(cells) < len(header) {
			continue
		}

		row := make(Row, len(header))
		for i, col := range header {
			row[col] = cells[i]
		}
		rows = append(rows, row)
	}
	return rows
}

// RenderTable writes rows back into the wire format, using the
// canonical column order and "-" for missing cells. ParseTable is its
// inverse for conforming rows.
func RenderTable(rows []Row) string {
	var sb strings.Builder
	sb.WriteString(TableHeader)
	for _, row := range rows {
		sb.WriteString("\n")
		cells := make([]string, len(TableColumns))
		for i, col := range TableColumns {
			value := strings.TrimSpace(row[col])
			if value == "" {
				value = Unknown
			}
			cells[i] = value
		}
		sb.WriteString(strings.Join(cells, "|"))
	}
	return sb.String()
}

func splitCells(line string) []string {
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// cell reads a row value, mapping the unknown placeholder to empty.
func cell(row Row, col string) string {
	v := strings.TrimSpace(row[col])
	if v == Unknown || strings.EqualFold(v, "N/A") {
		return ""
	}
	return v
}

// junkIDPatterns reject placeholder ids the model invents when a page
// has no real schedule.
var junkIDPatterns = []string{
	"example", "sample", "typical", "note", "see", "refer",
	"drawing", "detail", "section", "plan", "elevation",
	"title", "legend", "key", "schedule", "table",
	"xxx", "???", "tbd", "various", "as shown", "as per",
}

// isJunkRow applies the quality rules: reject empty or placeholder
// ids, plain small integers, overlong ids, short or missing types, and
// rows lacking dimension, reinforcement and concrete grade alike.
func isJunkRow(row Row) bool {
	id := cell(row, "ID")
	if id == "" || id == "_" || id == "." {
		return true
	}
	if n, err := strconv.Atoi(id); err == nil && n >= 0 && len(id) <= 3 {
		return true
	}
	if len(id) > 50 {
		return true
	}

	idLower := strings.ToLower(id)
	for _, pattern := range junkIDPatterns {
		if strings.Contains(idLower, pattern) {
			return true
		}
	}

	elementType := cell(row, "TYPE")
	if len(elementType) < 3 {
		return true
	}

	hasDimension := cell(row, "WIDTH") != "" || cell(row, "LENGTH") != "" || cell(row, "DEPTH") != ""
	hasReinforcement := cell(row, "TOP_REINF") != "" || cell(row, "BOT_REINF") != "" || cell(row, "SIDE_REINF") != ""
	hasConcrete := cell(row, "GRADE") != ""

	return !hasDimension && !hasReinforcement && !hasConcrete
}
