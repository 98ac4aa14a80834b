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

package vectordb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeMetadata_Primitives(t *testing.T) {
	clean := SanitizeMetadata(map[string]any{
		"s": "text",
		"i": 42,
		"f": 3.14,
		"b": true,
	})
	assert.Equal(t, "text", clean["s"])
	assert.Equal(t, 42, clean["i"])
	assert.Equal(t, 3.14, clean["f"])
	assert.Equal(t, true, clean["b"])
}

func TestSanitizeMetadata_TruncatesLongStrings(t *testing.T) {
	clean := SanitizeMetadata(map[string]any{
		"long": strings.Repeat("x", 5000),
	})
	assert.Len(t, clean["long"], 2000)
}

func TestSanitizeMetadata_CapsLists(t *testing.T) {
	list := make([]any, 150)
	for i := range list {
		list[i] = "item"
	}
	clean := SanitizeMetadata(map[string]any{"list": list})

	got, ok := clean["list"].([]string)
	require.True(t, ok, "lists normalize to []string")
	assert.Len(t, got, 100)
}

func TestSanitizeMetadata_ListItemsBecomeStrings(t *testing.T) {
	clean := SanitizeMetadata(map[string]any{"mixed": []any{1, "two", true}})
	assert.Equal(t, []string{"1", "two", "true"}, clean["mixed"])
}

func TestSanitizeMetadata_FlattensSmallMaps(t *testing.T) {
	clean := SanitizeMetadata(map[string]any{
		"pos": map[string]any{"x": 10, "y": 20},
	})
	assert.Equal(t, 10, clean["pos_x"])
	assert.Equal(t, 20, clean["pos_y"])
	_, hasOriginal := clean["pos"]
	assert.False(t, hasOriginal)
}

func TestSanitizeMetadata_SerializesLargeMaps(t *testing.T) {
	big := map[string]any{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5, "f": 6}
	clean := SanitizeMetadata(map[string]any{"big": big})

	s, ok := clean["big"].(string)
	require.True(t, ok, "large maps serialize to JSON strings")
	assert.Contains(t, s, `"a":1`)
}

func TestSanitizeMetadata_DropsNulls(t *testing.T) {
	clean := SanitizeMetadata(map[string]any{"null": nil, "kept": "v"})
	_, hasNull := clean["null"]
	assert.False(t, hasNull)
	assert.Equal(t, "v", clean["kept"])
}

// Every sanitized value satisfies the backend constraints; the sanitizer
// is idempotent over its own output.
func TestSanitizeMetadata_OutputInvariant(t *testing.T) {
	input := map[string]any{
		"str":    strings.Repeat("y", 3000),
		"nested": map[string]any{"deep": map[string]any{"x": 1}},
		"list":   []any{1, 2, 3},
		"n":      7,
	}
	clean := SanitizeMetadata(input)

	for key, value := range clean {
		switch v := value.(type) {
		case string:
			assert.LessOrEqual(t, len(v), 2000, key)
		case []string:
			assert.LessOrEqual(t, len(v), 100, key)
			for _, item := range v {
				assert.LessOrEqual(t, len(item), 2000, key)
			}
		case bool, int, int32, int64, float32, float64:
		default:
			t.Errorf("key %s has disallowed type %T", key, value)
		}
	}

	again := SanitizeMetadata(clean)
	assert.Equal(t, clean, again)
}
