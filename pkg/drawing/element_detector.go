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

package drawing

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/plansight/takeoff/pkg/geometry"
)

// ElementDetectorConfig configures text-to-shape element detection.
type ElementDetectorConfig struct {
	// InsideConfidence is assigned when the text center lies inside the
	// shape.
	InsideConfidence float64 `yaml:"inside_confidence,omitempty"`

	// NearThresholdMM is the maximum shape-to-text distance for a NEAR
	// association.
	NearThresholdMM float64 `yaml:"near_threshold_mm,omitempty"`

	// NearConfidenceBase scales NEAR confidence before the distance
	// falloff.
	NearConfidenceBase float64 `yaml:"near_confidence_base,omitempty"`

	// MinFontSize and MaxFontSize bound valid element-label font sizes,
	// in points. Titles and sheet notes fall outside the band.
	MinFontSize float64 `yaml:"min_font_size,omitempty"`
	MaxFontSize float64 `yaml:"max_font_size,omitempty"`

	// MinElementConfidence filters weak detections.
	MinElementConfidence float64 `yaml:"min_element_confidence,omitempty"`
}

// SetDefaults applies default values.
func (c *ElementDetectorConfig) SetDefaults() {
	if c.InsideConfidence <= 0 {
		c.InsideConfidence = 1.0
	}
	if c.NearThresholdMM <= 0 {
		c.NearThresholdMM = 10
	}
	if c.NearConfidenceBase <= 0 {
		c.NearConfidenceBase = 0.7
	}
	if c.MinFontSize <= 0 {
		c.MinFontSize = 8
	}
	if c.MaxFontSize <= 0 {
		c.MaxFontSize = 20
	}
	if c.MinElementConfidence <= 0 {
		c.MinElementConfidence = 0.5
	}
}

// ElementDetector associates text labels with shapes by spatial
// proximity, yielding element occurrences.
type ElementDetector struct {
	config    ElementDetectorConfig
	texts     *TextExtractor
	lines     *LineDetector
	assembler *ShapeAssembler
}

// NewElementDetector creates an element detector with default
// sub-extractors.
func NewElementDetector(cfg ElementDetectorConfig) *ElementDetector {
	cfg.SetDefaults()
	return &ElementDetector{
		config:    cfg,
		texts:     NewTextExtractor(TextExtractorConfig{}),
		lines:     NewLineDetector(LineDetectorConfig{}),
		assembler: NewShapeAssembler(ShapeAssemblerConfig{}),
	}
}

// DetectFile runs the full vector pipeline over the PDF at path.
func (ed *ElementDetector) DetectFile(path string) (*DetectionResult, error) {
	slog.Info("Starting element detection", "file", path)

	vectors, err := ed.lines.ExtractFile(path)
	if err != nil {
		return &DetectionResult{Success: false, FilePath: path, Error: err.Error()}, err
	}
	texts, err := ed.texts.ExtractFile(path)
	if err != nil {
		return &DetectionResult{Success: false, FilePath: path, Error: err.Error()}, err
	}

	result := &DetectionResult{
		Success:    true,
		FilePath:   path,
		TotalPages: len(vectors),
	}

	for i, pv := range vectors {
		shapes := ed.assembler.AssemblePage(pv)

		var pageTexts []TextInstance
		if i < len(texts.Pages) {
			pageTexts = texts.Pages[i].Texts
		}

		page := ed.DetectPage(shapes, pageTexts)
		result.Pages = append(result.Pages, page)
		slog.Debug("Detected page elements",
			"page", page.PageNumber,
			"shapes", len(shapes.Shapes),
			"elements", len(page.Elements))
	}

	result.Summary = summarize(result.Pages)
	slog.Info("Element detection complete",
		"file", path,
		"elements", result.Summary.TotalElements,
		"unique_ids", result.Summary.UniqueElementIDs)
	return result, nil
}

// DetectPage detects elements on a single page from its shapes and
// text instances.
func (ed *ElementDetector) DetectPage(shapes PageShapes, texts []TextInstance) PageElements {
	page := PageElements{PageNumber: shapes.PageNumber}

	for _, shape := range shapes.Shapes {
		associations := ed.findAssociations(shape, texts)
		if len(associations) == 0 {
			continue
		}

		primary := associations[0]
		elementType := ClassifyElement(primary.Text.Text, shape)

		element := DetectedElement{
			ElementID:    primary.Text.Text,
			ElementType:  elementType,
			Location:     shape.Center(),
			Shape:        shape,
			ShapeKind:    string(shape.Kind()),
			PageNumber:   shapes.PageNumber,
			Associations: associations,
			Confidence:   primary.Confidence,
		}

		if element.Confidence >= ed.config.MinElementConfidence {
			page.Elements = append(page.Elements, element)
		}
	}

	return page
}

// findAssociations computes candidate text associations for a shape,
// sorted best-first. Ties resolve to inside-shape placements, then to
// the smaller font (the callout rather than nearby title text), then
// lexicographically.
func (ed *ElementDetector) findAssociations(shape geometry.Shape, texts []TextInstance) []Association {
	threshold := geometry.MMToPoints(ed.config.NearThresholdMM)

	var associations []Association
	for _, text := range texts {
		if !ed.isValidElementText(text) {
			continue
		}

		var assoc Association
		if shape.ContainsPoint(text.Center) {
			assoc = Association{
				Text:       text,
				Position:   PositionInside,
				Distance:   0,
				Confidence: ed.config.InsideConfidence,
				Shape:      shape,
			}
		} else if d := shape.DistanceToPoint(text.Center); d <= threshold {
			assoc = Association{
				Text:       text,
				Position:   PositionNear,
				Distance:   d,
				Confidence: ed.config.NearConfidenceBase * (1 - d/threshold),
				Shape:      shape,
			}
		} else {
			continue
		}

		associations = append(associations, assoc)
	}

	sort.SliceStable(associations, func(i, j int) bool {
		a, b := associations[i], associations[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if (a.Position == PositionInside) != (b.Position == PositionInside) {
			return a.Position == PositionInside
		}
		if a.Text.FontSize != b.Text.FontSize {
			return a.Text.FontSize < b.Text.FontSize
		}
		return a.Text.Text < b.Text.Text
	})

	return associations
}

// isValidElementText checks whether a text instance could be an
// element ID: font size in band, short single token, and matching one
// of the element-ID patterns.
func (ed *ElementDetector) isValidElementText(text TextInstance) bool {
	if text.FontSize < ed.config.MinFontSize || text.FontSize > ed.config.MaxFontSize {
		return false
	}
	s := strings.TrimSpace(text.Text)
	if s == "" || len(s) > 10 || strings.ContainsRune(s, ' ') {
		return false
	}
	_, ok := MatchElementText(s)
	return ok
}

// summarize aggregates per-ID and per-type counts over all pages.
func summarize(pages []PageElements) DetectionSummary {
	summary := DetectionSummary{
		ElementTypes:   make(map[ElementType]int),
		PagesProcessed: len(pages),
	}

	byID := make(map[string][]ElementOccurrence)
	typeByID := make(map[string]ElementType)

	for _, page := range pages {
		for _, el := range page.Elements {
			summary.TotalElements++
			summary.ElementTypes[el.ElementType]++
			byID[el.ElementID] = append(byID[el.ElementID], ElementOccurrence{
				PageNumber: el.PageNumber,
				Location:   el.Location,
				ShapeKind:  el.ShapeKind,
				Confidence: el.Confidence,
			})
			typeByID[el.ElementID] = el.ElementType
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		occ := byID[id]
		summary.ElementCounts = append(summary.ElementCounts, ElementCount{
			ElementID:   id,
			ElementType: typeByID[id],
			Count:       len(occ),
			Occurrences: occ,
		})
	}
	summary.UniqueElementIDs = len(byID)

	return summary
}
