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

// Package raster converts PDF pages into encoded images sized for
// vision models.
//
// Rendering shells out to pdftoppm (poppler-utils), the same renderer
// most production pipelines rely on; resizing and encoding happen
// in-process.
package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/plansight/takeoff/pkg/config"
)

// PageImage is one rendered page.
type PageImage struct {
	PageNumber int
	Data       []byte
	Format     string // "jpeg" or "png"
	Width      int
	Height     int
	DPI        int
}

// Base64 returns the image bytes base64 encoded.
func (p PageImage) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Data)
}

// MediaType returns the MIME type of the encoded image.
func (p PageImage) MediaType() string {
	if p.Format == "png" {
		return "image/png"
	}
	return "image/jpeg"
}

// DataURI returns a data URI suitable for openai-style image_url parts.
func (p PageImage) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", p.MediaType(), p.Base64())
}

// Rasterizer renders PDF pages to sized, encoded images.
type Rasterizer struct {
	config config.VisionConfig

	// renderer is swappable for tests.
	renderer func(ctx context.Context, path string, dpi int, dir string) error
}

// NewRasterizer creates a rasterizer.
func NewRasterizer(cfg config.VisionConfig) *Rasterizer {
	cfg.SetDefaults()
	return &Rasterizer{config: cfg, renderer: renderWithPdftoppm}
}

// ConvertFile renders every page of the PDF at path. An empty PDF
// yields an empty slice, not an error.
func (r *Rasterizer) ConvertFile(ctx context.Context, path string) ([]PageImage, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input not found: %s: %w", path, err)
	}

	tmpDir, err := os.MkdirTemp("", "takeoff-raster-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	start := time.Now()
	if err := r.renderer(ctx, path, r.config.DPI, tmpDir); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list rendered pages: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	// pdftoppm zero-pads page numbers, so lexical order is page order.
	sort.Strings(names)

	images := make([]PageImage, 0, len(names))
	for i, name := range names {
		select {
		case <-ctx.Done():
			return images, ctx.Err()
		default:
		}

		img, err := r.processPage(filepath.Join(tmpDir, name), i+1)
		if err != nil {
			return images, fmt.Errorf("page %d: %w", i+1, err)
		}
		images = append(images, img)
	}

	slog.Debug("Rasterized document",
		"file", path,
		"pages", len(images),
		"dpi", r.config.DPI,
		"elapsed", time.Since(start))
	return images, nil
}

// processPage loads a rendered page, resizes it into the configured
// bounds preserving aspect ratio, and encodes it.
func (r *Rasterizer) processPage(path string, pageNum int) (PageImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return PageImage{}, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return PageImage{}, fmt.Errorf("decode: %w", err)
	}

	resized := r.resize(src)
	bounds := resized.Bounds()

	var buf bytes.Buffer
	format := r.config.Format
	switch format {
	case "png":
		if err := png.Encode(&buf, resized); err != nil {
			return PageImage{}, fmt.Errorf("encode png: %w", err)
		}
	default:
		format = "jpeg"
		if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: r.config.JPEGQuality}); err != nil {
			return PageImage{}, fmt.Errorf("encode jpeg: %w", err)
		}
	}

	return PageImage{
		PageNumber: pageNum,
		Data:       buf.Bytes(),
		Format:     format,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		DPI:        r.config.DPI,
	}, nil
}

// resize scales the image down to fit MaxWidth x MaxHeight, preserving
// aspect ratio. Images already inside the bounds pass through.
func (r *Rasterizer) resize(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= r.config.MaxWidth && h <= r.config.MaxHeight {
		return src
	}

	scaleW := float64(r.config.MaxWidth) / float64(w)
	scaleH := float64(r.config.MaxHeight) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}

	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

// renderWithPdftoppm invokes pdftoppm to render each page as a PNG in
// dir.
func renderWithPdftoppm(ctx context.Context, path string, dpi int, dir string) error {
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-r", fmt.Sprintf("%d", dpi),
		path,
		filepath.Join(dir, "page"))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pdftoppm: %w: %s", err, stderr.String())
	}
	return nil
}
