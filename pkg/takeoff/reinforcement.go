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

import "regexp"

// The reinforcement grammar is small and explicit:
//
//	reinforcement = bar | fabric
//	bar           = bar_size "@" spacing      e.g. N16@200
//	bar_size      = letter{1,2} digits{1,3}
//	spacing       = digits{1,4}               millimeters
//	fabric        = "SL" digits | "RL" digits | "F" digits
//
// Anything else is carried as a fabric-type string rather than
// rejected; schedules abbreviate inconsistently.
var (
	barPattern    = regexp.MustCompile(`^([A-Za-z]{1,2}\d{1,3})@(\d{1,4})$`)
	fabricPattern = regexp.MustCompile(`^(SL\d{2,4}|RL\d{3,4}|F\d{2,4})$`)
)

// Reinforcement is one parsed reinforcement callout.
type Reinforcement struct {
	// BarSize and SpacingMM are set for bar@spacing callouts.
	BarSize   string `json:"bar_size,omitempty"`
	SpacingMM int    `json:"spacing_mm,omitempty"`

	// FabricType is set for mesh/fabric callouts.
	FabricType string `json:"fabric_type,omitempty"`

	Direction string `json:"direction"`
}

// ParseReinforcement parses a callout like "N16@200" or "SL92".
func ParseReinforcement(s string) Reinforcement {
	if m := barPattern.FindStringSubmatch(s); m != nil {
		spacing := 0
		for _, r := range m[2] {
			spacing = spacing*10 + int(r-'0')
		}
		return Reinforcement{BarSize: m[1], SpacingMM: spacing, Direction: "both_ways"}
	}
	if fabricPattern.MatchString(s) {
		return Reinforcement{FabricType: s, Direction: "both_ways"}
	}
	return Reinforcement{FabricType: s, Direction: "both_ways"}
}

// IsBar reports whether the callout parsed as bar@spacing.
func (r Reinforcement) IsBar() bool { return r.BarSize != "" }

// asMap converts the reinforcement into a specifications group
// section.
func (r Reinforcement) asMap() map[string]any {
	m := map[string]any{"direction": r.Direction}
	if r.IsBar() {
		m["bar_size"] = r.BarSize
		m["spacing_mm"] = r.SpacingMM
	} else {
		m["fabric_type"] = r.FabricType
	}
	return m
}
