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
	"math"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/plansight/takeoff/pkg/geometry"
)

// TextExtractorConfig configures vector text extraction.
type TextExtractorConfig struct {
	// Origin selects PDF-native or image coordinates for the output.
	Origin CoordinateOrigin `yaml:"origin,omitempty"`

	// WordGapX is the maximum horizontal gap between characters of the
	// same word, in points.
	WordGapX float64 `yaml:"word_gap_x,omitempty"`

	// WordGapY is the maximum vertical gap between characters of the
	// same word, in points.
	WordGapY float64 `yaml:"word_gap_y,omitempty"`

	// DedupTolerance quantizes instance centers for deduplication, in
	// points. Overstruck renderings of the same word collapse to one.
	DedupTolerance float64 `yaml:"dedup_tolerance,omitempty"`
}

// SetDefaults applies default values.
func (c *TextExtractorConfig) SetDefaults() {
	if c.Origin == "" {
		c.Origin = OriginPDF
	}
	if c.WordGapX <= 0 {
		c.WordGapX = 3
	}
	if c.WordGapY <= 0 {
		c.WordGapY = 2
	}
	if c.DedupTolerance <= 0 {
		c.DedupTolerance = 2
	}
}

// TextExtractor recovers positioned words from a PDF's operator stream.
//
// The primary path reads per-glyph positions from the content stream;
// when a page reports zero glyphs the extractor falls back to the
// row-oriented reader. Fallback failures surface as per-page errors on
// a partial result rather than failing the document.
type TextExtractor struct {
	config TextExtractorConfig
}

// NewTextExtractor creates a text extractor.
func NewTextExtractor(cfg TextExtractorConfig) *TextExtractor {
	cfg.SetDefaults()
	return &TextExtractor{config: cfg}
}

// ExtractFile extracts text instances from every page of the PDF at
// path. Empty pages are valid and produce an empty instance list.
func (te *TextExtractor) ExtractFile(path string) (*TextResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("input not found: %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	result := &TextResult{Engine: "glyph"}
	total := reader.NumPage()

	for pageNum := 1; pageNum <= total; pageNum++ {
		page := reader.Page(pageNum)
		meta := pageMetadata(page, pageNum)

		if page.V.IsNull() {
			result.Pages = append(result.Pages, PageText{Metadata: meta})
			continue
		}

		texts, err := te.extractPage(page, meta)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("page %d: %v", pageNum, err))
			texts = nil
		}
		result.Pages = append(result.Pages, PageText{Metadata: meta, Texts: texts})
	}

	return result, nil
}

// extractPage runs the glyph path and falls back to the row reader
// when the primary path panics or reports zero glyphs. Only fallback
// failures surface as per-page errors.
func (te *TextExtractor) extractPage(page pdf.Page, meta PageMetadata) ([]TextInstance, error) {
	glyphs, ok := te.readGlyphs(page)
	if !ok || len(glyphs) == 0 {
		return te.extractPageByRow(page, meta)
	}

	words := te.groupWords(glyphs, meta)
	return te.deduplicate(words), nil
}

// readGlyphs reads per-glyph positions from the content stream. The
// underlying reader panics on malformed pages; a panic here reads as
// "zero glyphs" so the fallback path gets its chance.
func (te *TextExtractor) readGlyphs(page pdf.Page) (glyphs []pdf.Text, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			glyphs = nil
			ok = false
		}
	}()
	return page.Content().Text, true
}

// extractPageByRow is the fallback reader for pages where the glyph
// path panicked or found nothing. Its own panics become per-page
// errors on a partial result.
func (te *TextExtractor) extractPageByRow(page pdf.Page, meta PageMetadata) (texts []TextInstance, err error) {
	defer func() {
		if r := recover(); r != nil {
			texts = nil
			err = fmt.Errorf("text extraction panic: %v", r)
		}
	}()

	rows, err := page.GetTextByRow()
	if err != nil {
		return nil, fmt.Errorf("row reader: %w", err)
	}

	var glyphs []pdf.Text
	for _, row := range rows {
		for _, t := range row.Content {
			glyphs = append(glyphs, t)
		}
	}
	if len(glyphs) == 0 {
		return nil, nil
	}
	return te.deduplicate(te.groupWords(glyphs, meta)), nil
}

// groupWords joins characters into words. A character continues the
// current word when the horizontal gap is at most WordGapX points and
// the vertical gap at most WordGapY points; otherwise a new word starts.
func (te *TextExtractor) groupWords(glyphs []pdf.Text, meta PageMetadata) []TextInstance {
	var words []TextInstance

	var sb strings.Builder
	var x0, y0, x1, y1 float64
	var font string
	var size float64
	started := false

	flush := func() {
		if !started {
			return
		}
		text := strings.TrimSpace(sb.String())
		if text != "" {
			bbox := geometry.NewBoundingBox(x0, y0, x1, y1)
			bbox = te.orient(bbox, meta)
			words = append(words, TextInstance{
				Text:       text,
				BBox:       bbox,
				Center:     bbox.Center(),
				FontName:   font,
				FontSize:   size,
				Bold:       isBoldFont(font),
				Italic:     isItalicFont(font),
				PageNumber: meta.PageNumber,
				Confidence: 1.0,
			})
		}
		sb.Reset()
		started = false
	}

	for _, g := range glyphs {
		if strings.TrimSpace(g.S) == "" {
			flush()
			continue
		}

		gx0, gy0 := g.X, g.Y
		gx1, gy1 := g.X+g.W, g.Y+g.FontSize

		if started {
			hGap := gx0 - x1
			vGap := math.Abs(gy0 - y0)
			if hGap > te.config.WordGapX || hGap < -te.config.WordGapX || vGap > te.config.WordGapY {
				flush()
			}
		}

		if !started {
			x0, y0, x1, y1 = gx0, gy0, gx1, gy1
			font, size = g.Font, g.FontSize
			started = true
		} else {
			x1 = math.Max(x1, gx1)
			y1 = math.Max(y1, gy1)
			x0 = math.Min(x0, gx0)
			y0 = math.Min(y0, gy0)
		}
		sb.WriteString(g.S)
	}
	flush()

	return words
}

// orient converts a PDF-native bounding box to the configured origin.
// The conversion is a pure Y-flip against the page height.
func (te *TextExtractor) orient(bbox geometry.BoundingBox, meta PageMetadata) geometry.BoundingBox {
	if te.config.Origin != OriginImage {
		return bbox
	}
	return geometry.NewBoundingBox(bbox.X0, meta.Height-bbox.Y1, bbox.X1, meta.Height-bbox.Y0)
}

// ToImageCoordinates converts a PDF-native point to image coordinates.
func ToImageCoordinates(p geometry.Point, pageHeight float64) geometry.Point {
	return geometry.Point{X: p.X, Y: pageHeight - p.Y}
}

// ToPDFCoordinates converts an image point back to PDF coordinates.
// The flip is its own inverse.
func ToPDFCoordinates(p geometry.Point, pageHeight float64) geometry.Point {
	return ToImageCoordinates(p, pageHeight)
}

// deduplicate collapses instances whose quantized centers and text are
// equal. Drawing tools overstroke labels for visual weight; a second
// identical instance carries no information.
func (te *TextExtractor) deduplicate(texts []TextInstance) []TextInstance {
	type key struct {
		x, y int64
		text string
	}
	tol := te.config.DedupTolerance

	seen := make(map[key]bool, len(texts))
	out := texts[:0]
	for _, t := range texts {
		k := key{
			x:    int64(math.Round(t.Center.X / tol)),
			y:    int64(math.Round(t.Center.Y / tol)),
			text: t.Text,
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}

// pageMetadata reads the page size and rotation.
func pageMetadata(page pdf.Page, pageNum int) PageMetadata {
	meta := PageMetadata{PageNumber: pageNum}

	if page.V.IsNull() {
		return meta
	}
	box := page.V.Key("MediaBox")
	if box.Kind() == pdf.Array && box.Len() == 4 {
		meta.Width = box.Index(2).Float64() - box.Index(0).Float64()
		meta.Height = box.Index(3).Float64() - box.Index(1).Float64()
	}
	rotate := page.V.Key("Rotate")
	if !rotate.IsNull() {
		meta.Rotation = int(rotate.Int64())
	}
	return meta
}

func isBoldFont(font string) bool {
	f := strings.ToLower(font)
	return strings.Contains(f, "bold") || strings.Contains(f, "black") || strings.Contains(f, "heavy")
}

func isItalicFont(font string) bool {
	f := strings.ToLower(font)
	return strings.Contains(f, "italic") || strings.Contains(f, "oblique")
}
