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

package prompts

import (
	"strings"
	"testing"
)

func TestBuildUnified_AllExpands(t *testing.T) {
	prompt := BuildUnified([]Task{TaskAll}, "")

	for _, fragment := range []string{
		"TEXT CONTENT", "DOCUMENT LAYOUT", "TABLES", "ENTITIES",
		"VISUAL ELEMENTS", "DRAWING METADATA", "SUMMARY", "OUTPUT FORMAT",
	} {
		if !strings.Contains(prompt, fragment) {
			t.Errorf("unified prompt missing %q section", fragment)
		}
	}
	if !strings.Contains(prompt, "Origin (0,0) is at the top-left corner") {
		t.Error("coordinate system preamble missing")
	}
}

func TestBuildUnified_SelectedTasksOnly(t *testing.T) {
	prompt := BuildUnified([]Task{TaskTables}, "")
	if !strings.Contains(prompt, "TABLES") {
		t.Error("tables fragment missing")
	}
	if strings.Contains(prompt, "VISUAL ELEMENTS (For Drawings") {
		t.Error("unrequested visual elements fragment present")
	}
}

func TestBuildUnified_SpecializedInjection(t *testing.T) {
	prompt := BuildUnified([]Task{TaskTables}, EngineeringDrawing)
	idx := strings.Index(prompt, "Analyze this engineering drawing")
	tablesIdx := strings.Index(prompt, "3. TABLES")
	if idx < 0 || tablesIdx < 0 || idx > tablesIdx {
		t.Error("specialized prompt must precede task fragments")
	}
}

func TestWithImageDimensions(t *testing.T) {
	prompt := WithImageDimensions("base", 800, 1200)
	if !strings.Contains(prompt, "Width: 800 pixels") || !strings.Contains(prompt, "Height: 1200 pixels") {
		t.Errorf("dimensions missing: %s", prompt)
	}
}

func TestContains(t *testing.T) {
	if !Contains([]Task{TaskAll}, TaskVisualElements) {
		t.Error("ALL should contain every concrete task")
	}
	if Contains([]Task{TaskText}, TaskTables) {
		t.Error("text-only list should not contain tables")
	}
}
