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

// Package llms provides the LLM provider clients and the model-router
// contract the extraction pipeline consumes.
//
// Two message-envelope shapes are supported: anthropic-style image
// blocks with text, and openai-style text with image_url parts. Both
// providers are plain net/http JSON clients.
package llms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for routing and credential resolution.
var (
	// ErrNoModelAvailable is returned when no model satisfies the
	// routing constraints.
	ErrNoModelAvailable = errors.New("no model available")

	// ErrNoCredentials is returned when no API key resolves for the
	// selected provider.
	ErrNoCredentials = errors.New("no credentials for provider")
)

// PartType tags a message content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ContentPart is one part of a multimodal message.
type ContentPart struct {
	Type PartType

	// Text content, for PartText.
	Text string

	// Image content, for PartImage. Base64 data plus media type.
	ImageBase64    string
	ImageMediaType string
}

// Message is a single conversation message.
type Message struct {
	Role  string // "user", "assistant", "system"
	Parts []ContentPart
}

// TextMessage builds a text-only user message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Parts: []ContentPart{{Type: PartText, Text: text}}}
}

// VisionMessage builds a user message pairing one image with a prompt.
func VisionMessage(prompt, imageBase64, mediaType string) Message {
	return Message{Role: "user", Parts: []ContentPart{
		{Type: PartImage, ImageBase64: imageBase64, ImageMediaType: mediaType},
		{Type: PartText, Text: prompt},
	}}
}

// Request is a provider-agnostic generation request.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Response is the normalized provider response.
type Response struct {
	Content      string
	Model        string
	TokensInput  int
	TokensOutput int
	CostUSD      float64
	LatencyMS    int64
	Raw          json.RawMessage
}

// Provider is an LLM endpoint the engine can call.
type Provider interface {
	// Name returns the provider slug ("anthropic", "openai").
	Name() string

	// Generate performs one completion call.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Close releases resources.
	Close() error
}

// ProviderError is a classified provider failure.
type ProviderError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error (status %d, %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
}

// Auth reports whether the failure is an authentication problem.
// Authentication failures are never retried.
func (e *ProviderError) Auth() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// Transient reports whether a retry could succeed: rate limits,
// server errors and timeouts.
func (e *ProviderError) Transient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500 || e.StatusCode == 408
}

// IsTransient reports whether err is a retryable provider failure.
// Unclassified network errors count as transient.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return err != nil
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Auth()
}

// modelPricing is USD per million tokens, input/output. Unknown models
// fall back to a conservative default; costs are telemetry, not
// billing.
type modelPricing struct {
	inPerM  float64
	outPerM float64
}

var pricingTable = map[string]modelPricing{
	"claude-sonnet-4-20250514": {3.00, 15.00},
	"claude-3-5-haiku-latest":  {0.80, 4.00},
	"gpt-4o":                   {2.50, 10.00},
	"gpt-4o-mini":              {0.15, 0.60},
}

var defaultPricing = modelPricing{inPerM: 3.00, outPerM: 15.00}

// EstimateCost returns the USD cost of a call for telemetry.
func EstimateCost(model string, tokensIn, tokensOut int) float64 {
	p, ok := pricingTable[model]
	if !ok {
		p = defaultPricing
	}
	return float64(tokensIn)/1e6*p.inPerM + float64(tokensOut)/1e6*p.outPerM
}
