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

// Command takeoff is the CLI for the takeoff extraction engine.
//
// Usage:
//
//	takeoff detect drawing.pdf
//	takeoff extract --tasks all drawing.pdf
//	takeoff ingest --kb <id> drawing.pdf
//	takeoff takeoff --document <id>
//	takeoff query --kb <id> "hex bolt schedule"
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/plansight/takeoff/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Detect  DetectCmd  `cmd:"" help:"Run the vector-geometric element detection pipeline."`
	Extract ExtractCmd `cmd:"" help:"Run unified vision extraction on a document."`
	Ingest  IngestCmd  `cmd:"" help:"Extract a document and store it into a knowledge base."`
	Takeoff TakeoffCmd `cmd:"" help:"Run chunked LLM takeoff extraction over stored pages."`
	Query   QueryCmd   `cmd:"" help:"Query a knowledge base."`

	Config   string `short:"c" help:"Path to config file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

func main() {
	var cli CLI
	parser := kong.Parse(&cli,
		kong.Name("takeoff"),
		kong.Description("Engineering-drawing takeoff and RAG document extraction engine."),
		kong.UsageOnError(),
	)

	level, err := config.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := loadConfig(cli.Config)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := parser.Run(&runContext{ctx: ctx, cfg: cfg}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runContext is passed to every command.
type runContext struct {
	ctx context.Context
	cfg *config.Config
}

// loadConfig reads the config file or falls back to defaults.
func loadConfig(path string) *config.Config {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	cfg := &config.Config{}
	cfg.SetDefaults()
	return cfg
}

// version is set at build time via -ldflags.
var version = "dev"

// VersionCmd shows version information.
type VersionCmd struct{}

func (VersionCmd) Run(rc *runContext) error {
	fmt.Printf("takeoff %s\n", version)
	return nil
}
