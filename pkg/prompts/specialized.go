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

// EngineeringDrawing is the specialized prompt for engineering and
// technical drawings.
const EngineeringDrawing = `
Analyze this engineering drawing with comprehensive extraction.

ELEMENTS & COUNTS:
- Identify ALL distinct visual elements (bolts, rivets, fasteners, components, symbols)
- For EACH element instance, provide EXACT pixel coordinates (center point and bounding box)
- Count ONLY elements visible in the drawing area (NOT in tables or legends)
- Provide exact integer counts for each element type
- Group similar elements by proximity and type

TABLES & SCHEDULES:
- Extract ALL tables (BOM, schedules, specifications, tolerances)
- Maintain EXACT numerical precision and preserve units with ALL values
- For schedule tables: identify which elements need to be counted in the drawing
- Link schedule quantities to actual element counts for validation

VALIDATION:
- Cross-reference schedule/BOM quantities with actual element counts
- Flag discrepancies between specified and counted quantities
`

// Financial is the specialized prompt for financial documents.
const Financial = `
Analyze this financial document with special attention to:
- Financial tables with numerical data (maintain exact precision)
- Currency values and percentages
- Date ranges and fiscal periods
- Financial metrics and KPIs

Extract all tables with exact numerical precision and maintain decimal places.
Preserve currency symbols and units with all values.
`

// Scientific is the specialized prompt for scientific papers.
const Scientific = `
Analyze this scientific document with special attention to:
- Abstract and conclusions
- Methodology sections
- Results and data tables
- Figures and their captions

Extract tables with precise numerical values and units.
Maintain exact notation for scientific measurements and uncertainties.
`

// Legal is the specialized prompt for legal documents.
const Legal = `
Analyze this legal document with special attention to:
- Parties involved and their roles
- Dates, deadlines, and time periods
- Defined terms and numbered clauses

Preserve the hierarchical structure of sections and subsections.
Maintain exact wording for defined terms and key clauses.
`

// SpecializedFor returns the specialized prompt for a document type,
// empty when none applies.
func SpecializedFor(docType string) string {
	switch docType {
	case "engineering_drawing":
		return EngineeringDrawing
	case "financial":
		return Financial
	case "scientific":
		return Scientific
	case "legal":
		return Legal
	default:
		return ""
	}
}
