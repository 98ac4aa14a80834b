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

package extraction

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// RulePage is one page of a rule-based extraction.
type RulePage struct {
	PageNumber  int     `json:"page_number"`
	Text        string  `json:"text"`
	WordCount   int     `json:"word_count"`
	TextDensity float64 `json:"text_density"`

	// ProbablyScanned marks pages whose text density falls below the
	// threshold. Actionable by the caller, not an error.
	ProbablyScanned bool `json:"probably_scanned,omitempty"`
}

// RuleResult is the output of a rule-based (non-LLM) extraction.
type RuleResult struct {
	Text     string            `json:"text"`
	Pages    []RulePage        `json:"pages"`
	Metadata map[string]string `json:"metadata"`

	// IsScanned marks documents where more than half the pages look
	// scanned; OCR would be needed for real content.
	IsScanned bool `json:"is_scanned,omitempty"`

	ProcessingTimeMS int64  `json:"processing_time_ms"`
	Format           string `json:"format"`
}

// RuleExtractorConfig configures the rule-based extractors.
type RuleExtractorConfig struct {
	// MinTextDensity in words per square point below which a PDF page
	// is flagged probably scanned.
	MinTextDensity float64 `yaml:"min_text_density,omitempty"`
}

// SetDefaults applies default values.
func (c *RuleExtractorConfig) SetDefaults() {
	if c.MinTextDensity <= 0 {
		c.MinTextDensity = 0.001
	}
}

// RuleExtractor produces {text, pages, metadata} from native document
// formats without an LLM. Per-format handlers cover PDF, DOCX, XLSX,
// plain text, markdown and CSV.
type RuleExtractor struct {
	config RuleExtractorConfig
}

// NewRuleExtractor creates a rule-based extractor.
func NewRuleExtractor(cfg RuleExtractorConfig) *RuleExtractor {
	cfg.SetDefaults()
	return &RuleExtractor{config: cfg}
}

// SupportedFormats lists the file extensions the extractor handles.
func (re *RuleExtractor) SupportedFormats() []string {
	return []string{".pdf", ".docx", ".xlsx", ".txt", ".md", ".markdown", ".csv"}
}

// Extract dispatches to the per-format handler.
func (re *RuleExtractor) Extract(ctx context.Context, path string) (*RuleResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
	}

	start := time.Now()
	ext := strings.ToLower(filepath.Ext(path))

	var (
		result *RuleResult
		err    error
	)
	switch ext {
	case ".pdf":
		result, err = re.extractPDF(ctx, path)
	case ".docx":
		result, err = re.extractDocx(path)
	case ".xlsx":
		result, err = re.extractXlsx(ctx, path)
	case ".txt":
		result, err = re.extractPlain(path, "text")
	case ".md", ".markdown":
		result, err = re.extractPlain(path, "markdown")
	case ".csv":
		result, err = re.extractCSV(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, ext)
	}
	if err != nil {
		return nil, err
	}

	result.ProcessingTimeMS = time.Since(start).Milliseconds()
	return result, nil
}

// extractPDF reads digital PDF text page by page, estimating per-page
// text density to flag probably-scanned pages.
func (re *RuleExtractor) extractPDF(ctx context.Context, path string) (*RuleResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	result := &RuleResult{
		Format:   "pdf",
		Metadata: map[string]string{"title": filepath.Base(path)},
	}

	total := reader.NumPage()
	result.Metadata["pages"] = fmt.Sprintf("%d", total)

	var parts []string
	lowDensity := 0

	for pageNum := 1; pageNum <= total; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		rp := RulePage{PageNumber: pageNum}

		if !page.V.IsNull() {
			text, err := page.GetPlainText(nil)
			if err == nil {
				rp.Text = strings.TrimSpace(text)
			}

			// Density: words per square point of page area.
			rp.WordCount = len(strings.Fields(rp.Text))
			if box := page.V.Key("MediaBox"); box.Kind() == pdf.Array && box.Len() == 4 {
				w := box.Index(2).Float64() - box.Index(0).Float64()
				h := box.Index(3).Float64() - box.Index(1).Float64()
				if area := w * h; area > 0 {
					rp.TextDensity = float64(rp.WordCount) / area
				}
			}
			if rp.TextDensity < re.config.MinTextDensity {
				rp.ProbablyScanned = true
				lowDensity++
			}
		}

		if rp.Text != "" {
			parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", pageNum, rp.Text))
		}
		result.Pages = append(result.Pages, rp)
	}

	result.Text = strings.Join(parts, "\n\n")
	result.Metadata["word_count"] = fmt.Sprintf("%d", len(strings.Fields(result.Text)))
	if total > 0 && lowDensity*2 > total {
		result.IsScanned = true
	}
	return result, nil
}

// extractDocx reads a word-processor document as one page.
func (re *RuleExtractor) extractDocx(path string) (*RuleResult, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DOCX: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	text := stripXMLTags(content)

	return &RuleResult{
		Format: "docx",
		Text:   text,
		Pages:  []RulePage{{PageNumber: 1, Text: text, WordCount: len(strings.Fields(text))}},
		Metadata: map[string]string{
			"title":      filepath.Base(path),
			"paragraphs": fmt.Sprintf("%d", len(strings.Split(text, "\n\n"))),
		},
	}, nil
}

// extractXlsx reads a spreadsheet, one page per sheet.
func (re *RuleExtractor) extractXlsx(ctx context.Context, path string) (*RuleResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse XLSX: %w", err)
	}
	defer f.Close()

	result := &RuleResult{
		Format:   "xlsx",
		Metadata: map[string]string{"title": filepath.Base(path)},
	}

	sheets := f.GetSheetList()
	result.Metadata["sheets"] = fmt.Sprintf("%d", len(sheets))

	var parts []string
	for i, sheet := range sheets {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("--- Sheet: %s ---\n", sheet))
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " | "))
			if line != "" {
				sb.WriteString(line)
				sb.WriteString("\n")
			}
		}

		text := strings.TrimSpace(sb.String())
		result.Pages = append(result.Pages, RulePage{
			PageNumber: i + 1,
			Text:       text,
			WordCount:  len(strings.Fields(text)),
		})
		parts = append(parts, text)
	}

	result.Text = strings.Join(parts, "\n\n")
	return result, nil
}

// extractPlain reads a text or markdown file as one page.
func (re *RuleExtractor) extractPlain(path, format string) (*RuleResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	text := strings.ToValidUTF8(string(data), "")
	return &RuleResult{
		Format:   format,
		Text:     text,
		Pages:    []RulePage{{PageNumber: 1, Text: text, WordCount: len(strings.Fields(text))}},
		Metadata: map[string]string{"title": filepath.Base(path)},
	}, nil
}

// extractCSV reads a CSV file as one page of pipe-joined rows.
func (re *RuleExtractor) extractCSV(path string) (*RuleResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	var sb strings.Builder
	for _, rec := range records {
		sb.WriteString(strings.Join(rec, " | "))
		sb.WriteString("\n")
	}

	text := strings.TrimSpace(sb.String())
	return &RuleResult{
		Format: "csv",
		Text:   text,
		Pages:  []RulePage{{PageNumber: 1, Text: text, WordCount: len(strings.Fields(text))}},
		Metadata: map[string]string{
			"title": filepath.Base(path),
			"rows":  fmt.Sprintf("%d", len(records)),
		},
	}, nil
}

// stripXMLTags removes markup the docx reader leaves in raw content.
func stripXMLTags(s string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
