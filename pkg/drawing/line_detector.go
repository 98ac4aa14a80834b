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
	"fmt"
	"log/slog"
	"os"

	"github.com/ledongthuc/pdf"
)

// LineDetectorConfig configures line and arc recovery.
type LineDetectorConfig struct {
	// MinLengthMM and MaxLengthMM bound accepted segment lengths.
	MinLengthMM float64 `yaml:"min_length_mm,omitempty"`
	MaxLengthMM float64 `yaml:"max_length_mm,omitempty"`

	// MinStrokeWidth and MaxStrokeWidth bound accepted stroke widths,
	// in points. Hairline construction guides and heavy borders fall
	// outside the band.
	MinStrokeWidth float64 `yaml:"min_stroke_width,omitempty"`
	MaxStrokeWidth float64 `yaml:"max_stroke_width,omitempty"`

	// IncludeDashed keeps dashed strokes. Dashed lines are usually
	// centerlines or hidden geometry, not element outlines.
	IncludeDashed bool `yaml:"include_dashed,omitempty"`

	// MaxLightness drops strokes lighter than this average RGB value.
	MaxLightness float64 `yaml:"max_lightness,omitempty"`
}

// SetDefaults applies default values.
func (c *LineDetectorConfig) SetDefaults() {
	if c.MinLengthMM <= 0 {
		c.MinLengthMM = 0.05
	}
	if c.MaxLengthMM <= 0 {
		c.MaxLengthMM = 200
	}
	if c.MinStrokeWidth <= 0 {
		c.MinStrokeWidth = 0.5
	}
	if c.MaxStrokeWidth <= 0 {
		c.MaxStrokeWidth = 6
	}
	if c.MaxLightness <= 0 {
		c.MaxLightness = 0.5
	}
}

// LineDetector recovers line segments and bezier arcs from a PDF's
// drawing operators.
type LineDetector struct {
	config LineDetectorConfig
}

// NewLineDetector creates a line detector.
func NewLineDetector(cfg LineDetectorConfig) *LineDetector {
	cfg.SetDefaults()
	return &LineDetector{config: cfg}
}

// ExtractFile recovers per-page vector content from the PDF at path.
func (ld *LineDetector) ExtractFile(path string) ([]PageVectors, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("input not found: %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages := make([]PageVectors, 0, total)

	for pageNum := 1; pageNum <= total; pageNum++ {
		page := reader.Page(pageNum)
		meta := pageMetadata(page, pageNum)

		pv := PageVectors{Metadata: meta}
		if !page.V.IsNull() {
			lines, arcs, err := extractPageVectors(page)
			if err != nil {
				slog.Warn("Failed to scan page content stream",
					"page", pageNum,
					"error", err)
			}
			pv.Lines = ld.filterLines(lines)
			pv.Arcs = ld.filterArcs(arcs)
		}

		slog.Debug("Extracted page vectors",
			"page", pageNum,
			"lines", len(pv.Lines),
			"arcs", len(pv.Arcs))
		pages = append(pages, pv)
	}

	return pages, nil
}

// filterLines applies the length, stroke-width, line-style and
// darkness filters.
func (ld *LineDetector) filterLines(lines []LineSegment) []LineSegment {
	out := make([]LineSegment, 0, len(lines))
	for _, l := range lines {
		lengthMM := l.LengthMM()
		if lengthMM < ld.config.MinLengthMM || lengthMM > ld.config.MaxLengthMM {
			continue
		}
		if l.LineWidth < ld.config.MinStrokeWidth || l.LineWidth > ld.config.MaxStrokeWidth {
			continue
		}
		if l.Dashed && !ld.config.IncludeDashed {
			continue
		}
		if lightness(l.Color) > ld.config.MaxLightness {
			continue
		}
		out = append(out, l)
	}
	return out
}

// filterArcs applies the stroke-width and darkness filters to bezier
// subpaths.
func (ld *LineDetector) filterArcs(arcs []Arc) []Arc {
	out := make([]Arc, 0, len(arcs))
	for _, a := range arcs {
		if a.LineWidth < ld.config.MinStrokeWidth || a.LineWidth > ld.config.MaxStrokeWidth {
			continue
		}
		if lightness(a.Color) > ld.config.MaxLightness {
			continue
		}
		out = append(out, a)
	}
	return out
}

// lightness is the average of the RGB channels; 0 is black, 1 white.
func lightness(color [3]float64) float64 {
	return (color[0] + color[1] + color[2]) / 3
}
