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

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/plansight/takeoff/pkg/chunking"
	"github.com/plansight/takeoff/pkg/config"
	"github.com/plansight/takeoff/pkg/drawing"
	"github.com/plansight/takeoff/pkg/embedders"
	"github.com/plansight/takeoff/pkg/extraction"
	"github.com/plansight/takeoff/pkg/llms"
	"github.com/plansight/takeoff/pkg/prompts"
	"github.com/plansight/takeoff/pkg/raster"
	"github.com/plansight/takeoff/pkg/search"
	"github.com/plansight/takeoff/pkg/storage"
	"github.com/plansight/takeoff/pkg/store"
	"github.com/plansight/takeoff/pkg/takeoff"
	"github.com/plansight/takeoff/pkg/vectordb"
)

// printJSON renders a command result to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// buildLLMs constructs the provider registry and router from config.
func buildLLMs(cfg *config.Config) (*llms.Registry, llms.Router, error) {
	registry := llms.NewRegistry()
	var models []llms.RoutableModel

	tier := 0
	for name, pc := range cfg.LLMProviders {
		if pc.APIKey == "" {
			pc.APIKey = os.Getenv(strings.ToUpper(pc.Type) + "_API_KEY")
		}
		if pc.APIKey == "" {
			continue
		}
		if _, err := registry.CreateFromConfig(name, pc); err != nil {
			return nil, nil, err
		}
		models = append(models, llms.RoutableModel{
			Provider: name,
			Model:    pc.Model,
			Vision:   pc.Vision,
			Tier:     tier,
		})
		tier++
	}

	if len(models) == 0 {
		return nil, nil, fmt.Errorf("no llm providers configured; set llm_providers in config and provider API keys")
	}
	return registry, llms.NewStaticRouter(models), nil
}

// DetectCmd runs the non-LLM vector pipeline over a PDF.
type DetectCmd struct {
	File          string  `arg:"" help:"PDF drawing to analyze." type:"path"`
	MinConfidence float64 `help:"Minimum element confidence." default:"0.5"`
}

func (c *DetectCmd) Run(rc *runContext) error {
	detector := drawing.NewElementDetector(drawing.ElementDetectorConfig{
		MinElementConfidence: c.MinConfidence,
	})
	result, err := detector.DetectFile(c.File)
	if err != nil {
		return err
	}
	return printJSON(result)
}

// ExtractCmd runs unified vision extraction and prints the merged
// response.
type ExtractCmd struct {
	File     string   `arg:"" help:"Document to extract." type:"path"`
	Tasks    []string `help:"Extraction tasks (text, layout, tables, entities, summary, visual_elements, drawing_metadata, all)." default:"all"`
	DocType  string   `help:"Document type for specialized prompting (engineering_drawing, financial, scientific, legal)."`
	MaxPages int      `help:"Maximum pages to process." default:"10"`
	Priority string   `help:"Quality priority (cost, balanced, quality)." default:"balanced"`
}

func (c *ExtractCmd) Run(rc *runContext) error {
	registry, router, err := buildLLMs(rc.cfg)
	if err != nil {
		return err
	}
	defer registry.Close()

	extractor, err := extraction.NewUnifiedExtractor(extraction.UnifiedExtractorDeps{
		Rasterizer: raster.NewRasterizer(rc.cfg.Vision),
		Router:     router,
		Providers:  registry,
	})
	if err != nil {
		return err
	}

	tasks := make([]prompts.Task, len(c.Tasks))
	for i, t := range c.Tasks {
		tasks[i] = prompts.Task(t)
	}

	resp, err := extractor.Extract(rc.ctx, extraction.Request{
		FilePath:          c.File,
		Tasks:             tasks,
		MaxPages:          c.MaxPages,
		QualityPriority:   llms.QualityPriority(c.Priority),
		SpecializedPrompt: prompts.SpecializedFor(c.DocType),
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

// IngestCmd extracts a document and stores it into a knowledge base:
// extraction record, pages, chunks, embeddings and vectors.
type IngestCmd struct {
	File string `arg:"" help:"Document to ingest." type:"path"`
	KB   string `help:"Knowledge base id (created when empty)."`
}

func (c *IngestCmd) Run(rc *runContext) error {
	s, err := store.Open(rc.cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	kbID := c.KB
	if kbID == "" {
		kbID, err = s.CreateKnowledgeBase(rc.ctx, filepath.Base(c.File), rc.cfg.KnowledgeBase)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "created knowledge base %s\n", kbID)
	}

	vectors, err := vectordb.New(rc.cfg.VectorStore)
	if err != nil {
		return err
	}
	defer vectors.Close()
	if err := vectors.Initialize(rc.ctx, true); err != nil {
		return err
	}
	if _, err := s.EnsureActiveIndex(rc.ctx, kbID, rc.cfg.VectorStore.Metric, rc.cfg.VectorStore.Dimension); err != nil {
		return err
	}

	embedder, err := embedders.New(rc.cfg.Embedder)
	if err != nil {
		return err
	}
	defer embedder.Close()

	chunker, err := chunking.NewChunker(chunking.ChunkerConfig{
		Size:    rc.cfg.KnowledgeBase.ChunkSize,
		Overlap: rc.cfg.KnowledgeBase.ChunkOverlap,
	})
	if err != nil {
		return err
	}

	docID, err := s.CreateDocument(rc.ctx, filepath.Base(c.File), mimeFor(c.File), c.File, kbID)
	if err != nil {
		return err
	}
	if err := s.UpdateDocumentStatus(rc.ctx, docID, store.StatusProcessing, ""); err != nil {
		return err
	}

	// Rule-based extraction feeds stored pages for later takeoff runs.
	rules := extraction.NewRuleExtractor(extraction.RuleExtractorConfig{})
	ruleResult, err := rules.Extract(rc.ctx, c.File)
	if err != nil {
		return err
	}
	pages := make([]store.Page, len(ruleResult.Pages))
	for i, p := range ruleResult.Pages {
		pages[i] = store.Page{
			PageNumber: p.PageNumber,
			PageText:   p.Text,
			WordCount:  p.WordCount,
			TokenCount: chunking.EstimateTokens(p.Text),
		}
	}
	if err := s.StorePages(rc.ctx, docID, pages); err != nil {
		return err
	}

	// Unified vision extraction when providers are configured; the
	// rule-based result serves as the fallback payload.
	resp := ruleResponse(ruleResult)
	if registry, router, err := buildLLMs(rc.cfg); err == nil {
		defer registry.Close()
		extractor, err := extraction.NewUnifiedExtractor(extraction.UnifiedExtractorDeps{
			Rasterizer: raster.NewRasterizer(rc.cfg.Vision),
			Router:     router,
			Providers:  registry,
		})
		if err != nil {
			return err
		}
		visionResp, verr := extractor.Extract(rc.ctx, extraction.Request{
			FilePath:          c.File,
			Tasks:             []prompts.Task{prompts.TaskAll},
			SpecializedPrompt: prompts.EngineeringDrawing,
		})
		if verr == nil {
			resp = visionResp
		} else {
			fmt.Fprintf(os.Stderr, "vision extraction failed, storing rule-based result: %v\n", verr)
		}
	}

	orchestrator, err := storage.New(storage.Deps{
		Store:    s,
		Chunker:  chunker,
		Embedder: embedder,
		Vectors:  vectors,
	})
	if err != nil {
		return err
	}

	result := orchestrator.StoreDocument(rc.ctx, docID, resp, kbID)
	return printJSON(result)
}

// ruleResponse adapts a rule-based result into the extraction response
// shape.
func ruleResponse(r *extraction.RuleResult) *extraction.Response {
	return &extraction.Response{
		Success:          true,
		Text:             r.Text,
		Warnings:         []string{},
		ProcessingTimeMS: r.ProcessingTimeMS,
		Metadata:         map[string]any{"extractor": "rule_based", "format": r.Format, "is_scanned": r.IsScanned},
	}
}

func mimeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	case ".md", ".markdown":
		return "text/markdown"
	default:
		return "text/plain"
	}
}

// TakeoffCmd runs chunked takeoff extraction over a stored document.
type TakeoffCmd struct {
	Document string `help:"Document id with stored pages." required:""`
	Pages    []int  `help:"Specific page numbers to process."`
	Trade    string `help:"Trade to extract." default:"concrete"`
}

func (c *TakeoffCmd) Run(rc *runContext) error {
	s, err := store.Open(rc.cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	registry, router, err := buildLLMs(rc.cfg)
	if err != nil {
		return err
	}
	defer registry.Close()

	extractor, err := takeoff.NewExtractor(takeoff.ExtractorDeps{
		Config:    takeoff.ExtractorConfig{Trade: c.Trade},
		Router:    router,
		Providers: registry,
		Store:     s,
	})
	if err != nil {
		return err
	}

	result, err := extractor.ExtractElements(rc.ctx, c.Document, c.Pages, "")
	if err != nil {
		return err
	}
	return printJSON(result)
}

// QueryCmd queries a knowledge base.
type QueryCmd struct {
	Text     string `arg:"" help:"Query text."`
	KB       string `help:"Knowledge base id." required:""`
	TopK     int    `help:"Results to return." default:"5"`
	Strategy string `help:"Retrieval strategy (similarity, hybrid, reranking)." default:"similarity"`
}

func (c *QueryCmd) Run(rc *runContext) error {
	s, err := store.Open(rc.cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	vectors, err := vectordb.New(rc.cfg.VectorStore)
	if err != nil {
		return err
	}
	defer vectors.Close()

	embedder, err := embedders.New(rc.cfg.Embedder)
	if err != nil {
		return err
	}
	defer embedder.Close()

	service, err := search.NewRetrievalService(search.RetrievalServiceDeps{
		Embedder: embedder,
		Store:    vectors,
		Keywords: s,
		Stats:    s,
	})
	if err != nil {
		return err
	}

	result, err := service.Retrieve(rc.ctx, search.Query{
		Text:            c.Text,
		KnowledgeBaseID: c.KB,
		Strategy:        config.RetrievalStrategy(c.Strategy),
		TopK:            c.TopK,
	})
	if err != nil {
		return err
	}

	if _, err := s.RecordQuery(rc.ctx, c.KB, c.Text, result, ""); err != nil {
		fmt.Fprintf(os.Stderr, "failed to record query: %v\n", err)
	}
	return printJSON(result)
}
