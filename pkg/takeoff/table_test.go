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

func sampleRow(id string) Row {
	return Row{
		"ID": id, "TYPE": "COLUMN", "PAGE": "3", "WIDTH": "450", "LENGTH": "450",
		"DEPTH": "-", "QTY": "12", "TOP_REINF": "N16@200", "BOT_REINF": "-",
		"SIDE_REINF": "-", "GRADE": "N40", "COVER": "40", "FINISH": "-",
		"LOCATION": "Grid A-C", "ZONE": "-", "LEVEL": "L1", "NOTES": "-", "TYPICAL": "-",
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	rows := []Row{sampleRow("C1"), sampleRow("C2")}

	parsed := ParseTable(RenderTable(rows))
	require.Len(t, parsed, 2)
	for i, row := range rows {
		for _, col := range TableColumns {
			want := row[col]
			if want == "" {
				want = Unknown
			}
			assert.Equal(t, want, parsed[i][col], "row %d column %s", i, col)
		}
	}
}

func TestParseTable_LocatesHeaderAmidProse(t *testing.T) {
	text := "Here are the elements I found:\n\n" +
		TableHeader + "\n" +
		"C1|COLUMN|1|450|450|-|4|N16@200|-|-|N40|40|-|-|-|-|-|-\n" +
		"\nCONTINUE: NO\n"

	rows := ParseTable(text)
	require.Len(t, rows, 1)
	assert.Equal(t, "C1", rows[0]["ID"])
	assert.Equal(t, "N16@200", rows[0]["TOP_REINF"])
}

func TestParseTable_SkipsSeparatorsAndShortRows(t *testing.T) {
	text := TableHeader + "\n" +
		"--------\n" +
		"C1|COLUMN|1|450|450|-|4|N16@200|-|-|N40|40|-|-|-|-|-|-\n" +
		"truncated|row\n"

	rows := ParseTable(text)
	assert.Len(t, rows, 1)
}

func TestParseTable_NoHeader(t *testing.T) {
	assert.Nil(t, ParseTable("nothing that looks like a table"))
}

func TestHasNoElements(t *testing.T) {
	assert.True(t, HasNoElements("NO ELEMENTS"))
	assert.True(t, HasNoElements("  no elements\n"))
	assert.False(t, HasNoElements(TableHeader))
}

func TestIsJunkRow(t *testing.T) {
	cases := []struct {
		name string
		edit func(Row)
		junk bool
	}{
		{"valid row", func(r Row) {}, false},
		{"empty id", func(r Row) { r["ID"] = "" }, true},
		{"dash id", func(r Row) { r["ID"] = "-" }, true},
		{"plain small integer id", func(r Row) { r["ID"] = "7" }, true},
		{"long numeric id ok", func(r Row) { r["ID"] = "10001" }, false},
		{"placeholder id", func(r Row) { r["ID"] = "TYPICAL-1" }, true},
		{"see reference", func(r Row) { r["ID"] = "SEE-NOTE" }, true},
		{"overlong id", func(r Row) {
			id := ""
			for i := 0; i < 60; i++ {
				id += "x"
			}
			r["ID"] = id
		}, true},
		{"short type", func(r Row) { r["TYPE"] = "CO" }, true},
		{"no specs at all", func(r Row) {
			r["WIDTH"], r["LENGTH"], r["DEPTH"] = "-", "-", "-"
			r["TOP_REINF"], r["BOT_REINF"], r["SIDE_REINF"] = "-", "-", "-"
			r["GRADE"] = "-"
		}, true},
		{"reinforcement only", func(r Row) {
			r["WIDTH"], r["LENGTH"], r["DEPTH"] = "-", "-", "-"
			r["GRADE"] = "-"
		}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := sampleRow("C1")
			tc.edit(row)
			assert.Equal(t, tc.junk, isJunkRow(row))
		})
	}
}

func TestElementFromRow(t *testing.T) {
	el := ElementFromRow(sampleRow("C1"))
	require.NotNil(t, el)

	assert.Equal(t, "C1", el.ElementID)
	assert.Equal(t, "COLUMN", el.ElementType)
	assert.Equal(t, 3, el.PageNumber)
	assert.Equal(t, 450, el.Specifications["dimensions"]["width_mm"])
	assert.Equal(t, 12, el.Specifications["quantity"]["count"])
	assert.Equal(t, "number", el.Specifications["quantity"]["unit"])
	assert.Equal(t, "N40", el.Specifications["concrete"]["grade"])
	assert.Equal(t, 40, el.Specifications["concrete"]["cover_mm"])
	assert.Equal(t, "Grid A-C", el.Specifications["location"]["description"])
	assert.Equal(t, "L1", el.Specifications["location"]["level"])

	top, ok := el.Specifications["reinforcement"]["top"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "N16", top["bar_size"])
	assert.Equal(t, 200, top["spacing_mm"])

	// Finish was "-": the empty group is dropped.
	_, hasFinish := el.Specifications["finish"]
	assert.False(t, hasFinish)
}

func TestElementFromRow_LinearMetersAndTextCover(t *testing.T) {
	row := sampleRow("B1")
	row["QTY"] = "36m"
	row["COVER"] = "40 TOP / 50 BOTTOM"

	el := ElementFromRow(row)
	require.NotNil(t, el)
	assert.Equal(t, "36m", el.Specifications["quantity"]["length"])
	assert.Equal(t, "linear_meters", el.Specifications["quantity"]["unit"])
	assert.Equal(t, "40 TOP / 50 BOTTOM", el.Specifications["concrete"]["cover_description"])
}

func TestFilterDuplicates(t *testing.T) {
	seen := map[string]bool{}
	a := &Element{ElementID: "C1"}
	b := &Element{ElementID: "C2"}
	dup := &Element{ElementID: "C1"}

	out := FilterDuplicates([]*Element{a, b}, seen)
	assert.Len(t, out, 2)

	out = FilterDuplicates([]*Element{dup, b}, seen)
	assert.Empty(t, out)
}
