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
	"sort"
	"strings"
)

// Schema declares the allowed specification field groups for an
// element type: group name to leaf field names.
type Schema map[string][]string

// reinforcementLeaves are the per-side leaves of a reinforcement
// section.
var reinforcementLeaves = []string{"top", "bottom", "side"}

// elementSchemas keys schemas by normalized element type.
var elementSchemas = map[string]Schema{
	"concrete-column": {
		"dimensions":    {"width_mm", "length_mm", "depth_mm"},
		"reinforcement": reinforcementLeaves,
		"concrete":      {"grade", "cover_mm", "cover_description"},
		"quantity":      {"count", "length", "value", "unit"},
		"location":      {"description", "zone", "level"},
		"finish":        {"type"},
	},
	"beam": {
		"dimensions":    {"width_mm", "length_mm", "depth_mm"},
		"reinforcement": reinforcementLeaves,
		"concrete":      {"grade", "cover_mm", "cover_description"},
		"quantity":      {"count", "length", "value", "unit"},
		"location":      {"description", "zone", "level"},
	},
	"slab": {
		"dimensions":    {"width_mm", "length_mm", "depth_mm"},
		"reinforcement": reinforcementLeaves,
		"concrete":      {"grade", "cover_mm", "cover_description"},
		"quantity":      {"count", "length", "value", "unit"},
		"location":      {"description", "zone", "level"},
		"finish":        {"type"},
	},
	"footing": {
		"dimensions":    {"width_mm", "length_mm", "depth_mm"},
		"reinforcement": reinforcementLeaves,
		"concrete":      {"grade", "cover_mm", "cover_description"},
		"quantity":      {"count", "value", "unit"},
		"location":      {"description", "zone", "level"},
	},
	"wall": {
		"dimensions":    {"width_mm", "length_mm", "depth_mm"},
		"reinforcement": reinforcementLeaves,
		"concrete":      {"grade", "cover_mm", "cover_description"},
		"quantity":      {"count", "length", "value", "unit"},
		"location":      {"description", "zone", "level"},
		"finish":        {"type"},
	},
}

// defaultSchema covers element types without a specific schema.
var defaultSchema = Schema{
	"dimensions":    {"width_mm", "length_mm", "depth_mm"},
	"reinforcement": reinforcementLeaves,
	"concrete":      {"grade", "cover_mm", "cover_description"},
	"quantity":      {"count", "length", "value", "unit"},
	"location":      {"description", "zone", "level"},
	"finish":        {"type"},
}

// SchemaFor resolves the schema for an element type.
func SchemaFor(elementType string) Schema {
	key := strings.ToLower(strings.TrimSpace(elementType))
	key = strings.ReplaceAll(key, " ", "-")
	if schema, ok := elementSchemas[key]; ok {
		return schema
	}
	// Substring hints cover verbose types like "CONCRETE COLUMN 450SQ".
	for name, schema := range elementSchemas {
		if strings.Contains(key, strings.TrimPrefix(name, "concrete-")) {
			return schema
		}
	}
	return defaultSchema
}

// Validate checks an element's specifications against the schema.
// Missing groups are tolerated; unexpected groups and wrong-shape
// sections are errors.
func Validate(specs Specifications, schema Schema) (bool, []string) {
	var errs []string

	groups := make([]string, 0, len(specs))
	for group := range specs {
		groups = append(groups, group)
	}
	sort.Strings(groups)

	for _, group := range groups {
		allowed, ok := schema[group]
		if !ok {
			errs = append(errs, fmt.Sprintf("unexpected group %q", group))
			continue
		}
		fields := specs[group]
		if fields == nil {
			errs = append(errs, fmt.Sprintf("group %q has no fields", group))
			continue
		}

		allowedSet := make(map[string]bool, len(allowed))
		for _, f := range allowed {
			allowedSet[f] = true
		}
		fieldNames := make([]string, 0, len(fields))
		for name := range fields {
			fieldNames = append(fieldNames, name)
		}
		sort.Strings(fieldNames)
		for _, name := range fieldNames {
			if !allowedSet[name] {
				errs = append(errs, fmt.Sprintf("unexpected field %q in group %q", name, group))
			}
		}
	}

	return len(errs) == 0, errs
}

// Sanitize drops every group and field the schema does not declare.
// The result is always a field-wise subset of the input, and every
// surviving field appears in the schema.
func Sanitize(specs Specifications, schema Schema) Specifications {
	clean := make(Specifications, len(specs))
	for group, fields := range specs {
		allowed, ok := schema[group]
		if !ok {
			continue
		}
		allowedSet := make(map[string]bool, len(allowed))
		for _, f := range allowed {
			allowedSet[f] = true
		}

		cleanFields := make(map[string]any)
		for name, value := range fields {
			if allowedSet[name] {
				cleanFields[name] = value
			}
		}
		if len(cleanFields) > 0 {
			clean[group] = cleanFields
		}
	}
	return clean
}

// Completeness counts filled leaf fields over total schema fields,
// in [0, 1]. Exactly 1 means every schema leaf is non-null.
func Completeness(specs Specifications, schema Schema) float64 {
	total := 0
	filled := 0
	for group, leaves := range schema {
		total += len(leaves)
		fields := specs[group]
		if fields == nil {
			continue
		}
		for _, leaf := range leaves {
			if v, ok := fields[leaf]; ok && v != nil {
				filled++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(filled) / float64(total)
}
