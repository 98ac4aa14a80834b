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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/plansight/takeoff/internal/retry"
	"github.com/plansight/takeoff/pkg/llms"
	"github.com/plansight/takeoff/pkg/observability"
	"github.com/plansight/takeoff/pkg/prompts"
	"github.com/plansight/takeoff/pkg/raster"
)

// PageRasterizer renders a document into page images.
type PageRasterizer interface {
	ConvertFile(ctx context.Context, path string) ([]raster.PageImage, error)
}

// UnifiedExtractor combines all requested extraction tasks into one
// LLM request per page, avoiding N separate calls per task.
type UnifiedExtractor struct {
	rasterizer  PageRasterizer
	router      llms.Router
	credentials llms.CredentialResolver
	providers   *llms.Registry
	metrics     observability.MetricsSink
	retryer     *retry.Retryer

	// MaxConcurrentPages bounds page-level parallelism. Results merge
	// in page order, so completion order never changes the output.
	MaxConcurrentPages int

	// DefaultMaxPages caps pages per run when the request does not.
	DefaultMaxPages int
}

// UnifiedExtractorDeps wires the extractor's collaborators.
type UnifiedExtractorDeps struct {
	Rasterizer  PageRasterizer
	Router      llms.Router
	Credentials llms.CredentialResolver
	Providers   *llms.Registry
	Metrics     observability.MetricsSink
}

// NewUnifiedExtractor creates a unified extractor.
func NewUnifiedExtractor(deps UnifiedExtractorDeps) (*UnifiedExtractor, error) {
	if deps.Rasterizer == nil {
		return nil, fmt.Errorf("rasterizer is required")
	}
	if deps.Router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if deps.Providers == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if deps.Credentials == nil {
		deps.Credentials = llms.EnvCredentialResolver{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NopSink{}
	}

	return &UnifiedExtractor{
		rasterizer:  deps.Rasterizer,
		router:      deps.Router,
		credentials: deps.Credentials,
		providers:   deps.Providers,
		metrics:     deps.Metrics,
		retryer: retry.New(retry.Config{
			BaseDelay: 2 * time.Second,
			Classify:  llms.IsTransient,
		}),
		MaxConcurrentPages: 4,
		DefaultMaxPages:    10,
	}, nil
}

// Extract performs unified extraction on a document.
//
// Per-page JSON parse failures become warnings; no page's failure
// voids the run. Routing and credential failures are fatal and write
// nothing.
func (ue *UnifiedExtractor) Extract(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp := &Response{Success: true, Warnings: []string{}}

	tasks := req.Tasks
	if len(tasks) == 0 {
		tasks = []prompts.Task{prompts.TaskAll}
	}

	images, err := ue.rasterizer.ConvertFile(ctx, req.FilePath)
	if err != nil {
		return ue.fail(resp, start, err)
	}

	// Filter to the requested page range, then cap the page count.
	if len(req.PageRange) > 0 {
		wanted := make(map[int]bool, len(req.PageRange))
		for _, p := range req.PageRange {
			wanted[p] = true
		}
		filtered := images[:0]
		for i, img := range images {
			if wanted[i] {
				filtered = append(filtered, img)
			}
		}
		images = filtered
	}
	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = ue.DefaultMaxPages
	}
	if len(images) > maxPages {
		images = images[:maxPages]
	}

	if len(images) == 0 {
		// An empty document is a successful, zero-cost run.
		resp.ProcessingTimeMS = time.Since(start).Milliseconds()
		return resp, nil
	}

	decision, err := ue.router.RouteRequest(ctx, llms.RouteContext{
		Organization: req.Organization,
		Complexity:   0.7,
		ContentType:  "vision",
		Priority:     req.QualityPriority,
		MaxTokens:    4000,
		SessionID:    "unified_" + filepath.Base(req.FilePath),
		EntityType:   "unified_extraction",
	})
	if err != nil {
		return ue.fail(resp, start, err)
	}
	if decision == nil {
		return ue.fail(resp, start, fmt.Errorf("%w for vision extraction", llms.ErrNoModelAvailable))
	}

	if _, err := ue.credentials.ResolveKey(req.Organization, decision.Provider); err != nil {
		return ue.fail(resp, start, fmt.Errorf("%w: %s", llms.ErrNoCredentials, decision.Provider))
	}

	provider, err := ue.providers.Get(decision.Provider)
	if err != nil {
		return ue.fail(resp, start, err)
	}

	resp.ModelUsed = decision.Model
	resp.ProviderUsed = decision.Provider
	resp.Metadata = map[string]any{
		"file_path":  req.FilePath,
		"file_name":  filepath.Base(req.FilePath),
		"page_count": len(images),
		"tasks":      taskNames(tasks),
	}

	prompt := prompts.BuildUnified(tasks, req.SpecializedPrompt)

	// Pages run in parallel; merge order is fixed by page number.
	type pageOutcome struct {
		parsed  *pageResult
		warning string
		cost    float64
	}
	outcomes := make([]pageOutcome, len(images))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ue.MaxConcurrentPages)

	for i := range images {
		g.Go(func() error {
			img := images[i]
			pagePrompt := prompts.WithImageDimensions(prompt, img.Width, img.Height)
			message := llms.VisionMessage(pagePrompt, img.Base64(), img.MediaType())

			llmResp, err := retry.DoWithResult(gctx, ue.retryer,
				fmt.Sprintf("unified_extract_page_%d", img.PageNumber),
				func() (*llms.Response, error) {
					return provider.Generate(gctx, llms.Request{
						Model:       decision.Model,
						Messages:    []llms.Message{message},
						MaxTokens:   4000,
						Temperature: 0.1,
					})
				})
			if err != nil {
				if llms.IsAuth(err) || errors.Is(err, context.Canceled) {
					return err
				}
				mu.Lock()
				outcomes[i].warning = fmt.Sprintf("page %d extraction failed: %v", img.PageNumber, err)
				mu.Unlock()
				return nil
			}

			ue.metrics.RecordLLMCall(decision.Provider, decision.Model,
				llmResp.TokensInput, llmResp.TokensOutput, llmResp.CostUSD, llmResp.LatencyMS)

			outcome := pageOutcome{cost: llmResp.CostUSD}
			var parsed pageResult
			if err := json.Unmarshal([]byte(extractJSON(llmResp.Content)), &parsed); err != nil {
				outcome.warning = fmt.Sprintf("failed to parse response for page %d", img.PageNumber)
				slog.Warn("Failed to parse unified extraction response",
					"page", img.PageNumber,
					"error", err)
			} else {
				outcome.parsed = &parsed
			}

			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			return nil
		})
	}

	// Merging runs strictly in page order: for any permutation of
	// completion orders the merged response is identical.
	merge := func() {
		m := newMerger(resp)
		for i, o := range outcomes {
			resp.CostUSD += o.cost
			if o.warning != "" {
				resp.Warnings = append(resp.Warnings, o.warning)
			}
			if o.parsed != nil {
				m.mergePage(*o.parsed, images[i].PageNumber)
			}
		}
	}

	if err := g.Wait(); err != nil {
		// Cancellation returns the partial merge with success=false.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			merge()
			resp.Success = false
			resp.Error = "Cancelled"
			resp.ProcessingTimeMS = time.Since(start).Milliseconds()
			return resp, err
		}
		return ue.fail(resp, start, err)
	}

	merge()

	if prompts.Contains(tasks, prompts.TaskTables) && prompts.Contains(tasks, prompts.TaskVisualElements) {
		validateAgainstSchedules(resp)
	}

	resp.ProcessingTimeMS = time.Since(start).Milliseconds()
	slog.Info("Unified extraction complete",
		"file", req.FilePath,
		"pages", len(images),
		"tables", len(resp.Tables),
		"warnings", len(resp.Warnings),
		"cost_usd", resp.CostUSD)
	return resp, nil
}

// fail finalizes a fatal response.
func (ue *UnifiedExtractor) fail(resp *Response, start time.Time, err error) (*Response, error) {
	resp.Success = false
	resp.Error = err.Error()
	resp.ProcessingTimeMS = time.Since(start).Milliseconds()
	return resp, err
}

// extractJSON strips markdown fences the model may wrap around JSON.
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	// Fall back to the outermost braces when prose surrounds the JSON.
	if !strings.HasPrefix(s, "{") {
		open := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if open >= 0 && end > open {
			s = s[open : end+1]
		}
	}
	return s
}

func taskNames(tasks []prompts.Task) []string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = string(t)
	}
	return names
}
