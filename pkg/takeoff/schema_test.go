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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaFor(t *testing.T) {
	assert.NotNil(t, SchemaFor("concrete-column"))
	assert.NotNil(t, SchemaFor("CONCRETE COLUMN"))
	// Verbose schedule types resolve by substring.
	colSchema := SchemaFor("COLUMN 450SQ")
	assert.Contains(t, colSchema, "finish")
	// Unknown types get the default schema.
	assert.Equal(t, defaultSchema, SchemaFor("mystery-element"))
}

func TestValidate_MissingGroupsTolerated(t *testing.T) {
	specs := Specifications{
		"dimensions": {"width_mm": 450},
	}
	ok, errs := Validate(specs, SchemaFor("concrete-column"))
	assert.True(t, ok)
	assert.Empty(t, errs)
}

func TestValidate_UnexpectedGroupAndField(t *testing.T) {
	specs := Specifications{
		"dimensions": {"width_mm": 450, "diameter_in": 18},
		"plumbing":   {"pipes": 3},
	}
	ok, errs := Validate(specs, SchemaFor("concrete-column"))
	assert.False(t, ok)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "diameter_in")
	assert.Contains(t, errs[1], "plumbing")
}

func TestValidate_NilGroupIsWrongShape(t *testing.T) {
	specs := Specifications{"dimensions": nil}
	ok, errs := Validate(specs, SchemaFor("concrete-column"))
	assert.False(t, ok)
	assert.Len(t, errs, 1)
}

func TestSanitize_SubsetLaw(t *testing.T) {
	schema := SchemaFor("concrete-column")
	specs := Specifications{
		"dimensions": {"width_mm": 450, "bogus": 1},
		"plumbing":   {"pipes": 3},
		"concrete":   {"grade": "N40"},
	}

	clean := Sanitize(specs, schema)

	// Every surviving field appears in the schema and in the input.
	for group, fields := range clean {
		allowed, ok := schema[group]
		require.True(t, ok, "group %s not in schema", group)
		allowedSet := map[string]bool{}
		for _, f := range allowed {
			allowedSet[f] = true
		}
		for name, value := range fields {
			assert.True(t, allowedSet[name], "field %s.%s not in schema", group, name)
			assert.Equal(t, specs[group][name], value)
		}
	}

	_, hasPlumbing := clean["plumbing"]
	assert.False(t, hasPlumbing)
	_, hasBogus := clean["dimensions"]["bogus"]
	assert.False(t, hasBogus)
	assert.Equal(t, "N40", clean["concrete"]["grade"])
}

func TestCompleteness_Bounds(t *testing.T) {
	schema := Schema{
		"dimensions": {"width_mm", "depth_mm"},
		"concrete":   {"grade"},
	}

	assert.Equal(t, 0.0, Completeness(Specifications{}, schema))

	partial := Specifications{"dimensions": {"width_mm": 1}}
	got := Completeness(partial, schema)
	assert.InDelta(t, 1.0/3, got, 1e-12)

	full := Specifications{
		"dimensions": {"width_mm": 1, "depth_mm": 2},
		"concrete":   {"grade": "N32"},
	}
	assert.Equal(t, 1.0, Completeness(full, schema))

	// Nil values do not count as filled.
	withNil := Specifications{
		"dimensions": {"width_mm": 1, "depth_mm": nil},
		"concrete":   {"grade": "N32"},
	}
	assert.InDelta(t, 2.0/3, Completeness(withNil, schema), 1e-12)
}

func TestParseReinforcement(t *testing.T) {
	bar := ParseReinforcement("N16@200")
	assert.True(t, bar.IsBar())
	assert.Equal(t, "N16", bar.BarSize)
	assert.Equal(t, 200, bar.SpacingMM)
	assert.Equal(t, "both_ways", bar.Direction)

	fabric := ParseReinforcement("SL92")
	assert.False(t, fabric.IsBar())
	assert.Equal(t, "SL92", fabric.FabricType)

	rl := ParseReinforcement("RL1018")
	assert.Equal(t, "RL1018", rl.FabricType)

	// Unrecognized callouts carry through as fabric text.
	other := ParseReinforcement("2 LAYERS SL82")
	assert.Equal(t, "2 LAYERS SL82", other.FabricType)
}
