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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/plansight/takeoff/internal/retry"
	"github.com/plansight/takeoff/pkg/llms"
	"github.com/plansight/takeoff/pkg/observability"
	"github.com/plansight/takeoff/pkg/progress"
	"github.com/plansight/takeoff/pkg/store"
)

// ExtractorConfig configures chunked takeoff extraction.
type ExtractorConfig struct {
	// MaxOutputTokens caps response length per page.
	MaxOutputTokens int `yaml:"max_output_tokens,omitempty"`

	// MaxPages bounds the number of pages per run.
	MaxPages int `yaml:"max_pages,omitempty"`

	// PageDelay paces requests between pages to respect provider rate
	// limits.
	PageDelay time.Duration `yaml:"page_delay,omitempty"`

	// Trade selects the extraction prompt; only concrete is bundled.
	Trade string `yaml:"trade,omitempty"`
}

// SetDefaults applies default values.
func (c *ExtractorConfig) SetDefaults() {
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 8000
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.PageDelay == 0 {
		c.PageDelay = 2 * time.Second
	}
	if c.Trade == "" {
		c.Trade = "concrete"
	}
}

// RunResult summarizes one extraction run.
type RunResult struct {
	Success          bool     `json:"success"`
	ExtractionID     string   `json:"extraction_id"`
	ElementCount     int      `json:"element_count"`
	PagesProcessed   int      `json:"pages_processed"`
	TotalCostUSD     float64  `json:"total_cost_usd"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
	Warnings         []string `json:"warnings"`
	Error            string   `json:"error,omitempty"`
}

// Extractor runs page-iterated takeoff extraction. An LLM cannot
// reliably emit a whole drawing set's element table in one response,
// so each page is prompted separately; pages run sequentially to keep
// rate limits and aggregate cost predictable.
type Extractor struct {
	config      ExtractorConfig
	router      llms.Router
	providers   *llms.Registry
	credentials llms.CredentialResolver
	store       *store.Store
	metrics     observability.MetricsSink
	progress    progress.Sink
	retryer     *retry.Retryer

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// ExtractorDeps wires the extractor's collaborators.
type ExtractorDeps struct {
	Config      ExtractorConfig
	Router      llms.Router
	Providers   *llms.Registry
	Credentials llms.CredentialResolver
	Store       *store.Store
	Metrics     observability.MetricsSink
	Progress    progress.Sink
}

// NewExtractor creates a chunked takeoff extractor.
func NewExtractor(deps ExtractorDeps) (*Extractor, error) {
	if deps.Router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if deps.Providers == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if deps.Credentials == nil {
		deps.Credentials = llms.EnvCredentialResolver{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NopSink{}
	}
	if deps.Progress == nil {
		deps.Progress = progress.NopSink{}
	}
	deps.Config.SetDefaults()

	return &Extractor{
		config:      deps.Config,
		router:      deps.Router,
		providers:   deps.Providers,
		credentials: deps.Credentials,
		store:       deps.Store,
		metrics:     deps.Metrics,
		progress:    deps.Progress,
		retryer: retry.New(retry.Config{
			BaseDelay: 2 * time.Second,
			Classify:  llms.IsTransient,
		}),
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}, nil
}

// ExtractElements runs takeoff extraction over a document's stored
// pages. pages filters to specific page numbers when non-empty.
func (e *Extractor) ExtractElements(ctx context.Context, documentID string, pages []int, organization string) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{Warnings: []string{}}

	docPages, err := e.store.GetPages(ctx, documentID)
	if err != nil {
		return e.fail(result, start, "", err)
	}
	if len(pages) > 0 {
		wanted := make(map[int]bool, len(pages))
		for _, p := range pages {
			wanted[p] = true
		}
		filtered := docPages[:0]
		for _, p := range docPages {
			if wanted[p.PageNumber] {
				filtered = append(filtered, p)
			}
		}
		docPages = filtered
	}
	if len(docPages) > e.config.MaxPages {
		docPages = docPages[:e.config.MaxPages]
	}
	if len(docPages) == 0 {
		return e.fail(result, start, "", fmt.Errorf("no pages found in document"))
	}

	extractionID, err := e.store.CreateTakeoffExtraction(ctx, documentID)
	if err != nil {
		return e.fail(result, start, "", err)
	}
	result.ExtractionID = extractionID

	decision, err := e.router.RouteRequest(ctx, llms.RouteContext{
		Organization: organization,
		Complexity:   0.8,
		ContentType:  "text",
		Priority:     llms.PriorityQuality,
		MaxTokens:    e.config.MaxOutputTokens,
		EntityType:   "takeoff_" + e.config.Trade + "_extraction",
	})
	if err != nil {
		return e.fail(result, start, extractionID, err)
	}
	if decision == nil {
		return e.fail(result, start, extractionID, llms.ErrNoModelAvailable)
	}
	if _, err := e.credentials.ResolveKey(organization, decision.Provider); err != nil {
		return e.fail(result, start, extractionID, fmt.Errorf("%w: %s", llms.ErrNoCredentials, decision.Provider))
	}
	provider, err := e.providers.Get(decision.Provider)
	if err != nil {
		return e.fail(result, start, extractionID, err)
	}

	slog.Info("Starting page-by-page takeoff extraction",
		"document", documentID,
		"pages", len(docPages),
		"model", decision.Model)

	seen := make(map[string]bool)
	var elements []*Element
	var totalCost float64

	for i, page := range docPages {
		prompt := buildPagePrompt(e.config.Trade, page.PageText, page.PageNumber, len(docPages))

		llmResp, err := retry.DoWithResult(ctx, e.retryer,
			fmt.Sprintf("takeoff_page_%d", page.PageNumber),
			func() (*llms.Response, error) {
				return provider.Generate(ctx, llms.Request{
					Model:       decision.Model,
					Messages:    []llms.Message{llms.TextMessage("user", prompt)},
					MaxTokens:   e.config.MaxOutputTokens,
					Temperature: 0.1,
				})
			})
		if err != nil {
			if llms.IsAuth(err) || errors.Is(err, context.Canceled) {
				return e.fail(result, start, extractionID, err)
			}
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("page %d extraction failed: %v", page.PageNumber, err))
			continue
		}

		totalCost += llmResp.CostUSD
		e.metrics.RecordLLMCall(decision.Provider, decision.Model,
			llmResp.TokensInput, llmResp.TokensOutput, llmResp.CostUSD, llmResp.LatencyMS)

		pageElements := e.parsePage(llmResp.Content, page.PageNumber, result)
		fresh := FilterDuplicates(pageElements, seen)
		if len(fresh) > 0 {
			slog.Debug("Page contributed elements",
				"page", page.PageNumber,
				"new", len(fresh),
				"total", len(elements)+len(fresh))
			elements = append(elements, fresh...)
		}

		result.PagesProcessed++
		e.progress.SendExecutionUpdate(extractionID, "processing",
			100*float64(result.PagesProcessed)/float64(len(docPages)), "")

		// Pace requests between pages.
		if i < len(docPages)-1 && e.config.PageDelay > 0 {
			if err := e.sleep(ctx, e.config.PageDelay); err != nil {
				return e.fail(result, start, extractionID, err)
			}
		}
	}

	rows := e.normalize(elements, result)
	processingMS := time.Since(start).Milliseconds()

	if err := e.store.StoreTakeoffElements(ctx, extractionID, rows, totalCost, processingMS); err != nil {
		return e.fail(result, start, extractionID, err)
	}

	result.Success = true
	result.ElementCount = len(rows)
	result.TotalCostUSD = totalCost
	result.ProcessingTimeMS = processingMS
	e.progress.SendExecutionUpdate(extractionID, "completed", 100, "")

	slog.Info("Takeoff extraction complete",
		"document", documentID,
		"elements", len(rows),
		"pages", result.PagesProcessed,
		"cost_usd", totalCost)
	return result, nil
}

// parsePage turns one page response into elements, honoring the
// NO ELEMENTS sentinel and collecting junk-row rejections as
// warnings.
func (e *Extractor) parsePage(content string, pageNum int, result *RunResult) []*Element {
	if HasNoElements(content) {
		slog.Debug("Page has no elements", "page", pageNum)
		return nil
	}

	rows := ParseTable(content)
	if rows == nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("page %d: no table found in response", pageNum))
		return nil
	}

	elements := make([]*Element, 0, len(rows))
	for _, row := range rows {
		el := ElementFromRow(row)
		if el == nil {
			continue
		}
		if el.PageNumber == 1 && pageNum != 1 && cell(row, "PAGE") == "" {
			el.PageNumber = pageNum
		}
		elements = append(elements, el)
	}
	return elements
}

// normalize validates each element against its type schema, sanitizes
// the specifications and computes completeness, then converts to
// storage rows. Schema violations drop the offending fields and are
// logged in the element's validation warnings.
func (e *Extractor) normalize(elements []*Element, result *RunResult) []store.TakeoffElementRow {
	rows := make([]store.TakeoffElementRow, 0, len(elements))
	for _, el := range elements {
		schema := SchemaFor(el.ElementType)

		if ok, errs := Validate(el.Specifications, schema); !ok {
			el.Notes.ValidationWarnings = append(el.Notes.ValidationWarnings, errs...)
			el.Specifications = Sanitize(el.Specifications, schema)
		}
		el.Completeness = Completeness(el.Specifications, schema)

		specs, err := json.Marshal(el.Specifications)
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("element %s: failed to encode specifications", el.ElementID))
			continue
		}
		notes, err := json.Marshal(el.Notes)
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("element %s: failed to encode notes", el.ElementID))
			continue
		}

		rows = append(rows, store.TakeoffElementRow{
			ElementID:      el.ElementID,
			ElementType:    el.ElementType,
			PageNumber:     el.PageNumber,
			Confidence:     el.Confidence,
			Specifications: string(specs),
			Notes:          string(notes),
			Completeness:   el.Completeness,
		})
	}
	return rows
}

func (e *Extractor) fail(result *RunResult, start time.Time, extractionID string, err error) (*RunResult, error) {
	result.Success = false
	result.Error = err.Error()
	result.ProcessingTimeMS = time.Since(start).Milliseconds()
	if extractionID != "" {
		if ferr := e.store.FailTakeoffExtraction(context.Background(), extractionID, err.Error()); ferr != nil {
			slog.Warn("Failed to mark extraction failed", "extraction", extractionID, "error", ferr)
		}
		e.progress.SendExecutionUpdate(extractionID, "failed", 0, err.Error())
	}
	return result, err
}

// buildPagePrompt builds the page-scoped extraction prompt with the
// table contract.
func buildPagePrompt(trade, pageText string, pageNum, totalPages int) string {
	return fmt.Sprintf(`You are extracting %s elements from one page of an engineering drawing set.

EXTRACTION MODE: Page-by-Page Extraction

Processing Page %d of %d

CRITICAL INSTRUCTIONS:
1. Extract ONLY %s elements that are CLEARLY DEFINED on this page
2. Focus ONLY on elements shown on page %d
3. Include complete specifications for each element
4. If an element spans multiple pages, extract it on the page where it is primarily defined

DO NOT FORCE EXTRACTION:
- If this page contains NO %s elements (title page, notes, general details), respond with ONLY:
NO ELEMENTS
- Only extract elements that have clear specifications (dimensions, reinforcement, concrete grade)
- DO NOT extract placeholder text, labels, or non-element information
- DO NOT invent or guess element data
- Returning zero elements is perfectly acceptable

OUTPUT FORMAT:
Emit a pipe-delimited table with EXACTLY this header:
%s

- One row per element
- Use - for unknown cells
- Dimensions in integer millimeters
- Reinforcement as bar@spacing (e.g. N16@200) or fabric type (e.g. SL92)
- Do not add commentary around the table

PAGE %d CONTENT:
%s`,
		trade, pageNum, totalPages, trade, pageNum, trade, TableHeader, pageNum, pageText)
}
