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

package llms

import (
	"context"
	"os"
	"sort"
	"strings"
)

// QualityPriority trades cost against quality in model routing.
type QualityPriority string

const (
	PriorityCost     QualityPriority = "cost"
	PriorityBalanced QualityPriority = "balanced"
	PriorityQuality  QualityPriority = "quality"
)

// RouteContext carries routing hints. Hints pass through unchanged to
// the router implementation.
type RouteContext struct {
	Organization string
	Complexity   float64
	ContentType  string // "text" or "vision"
	Priority     QualityPriority
	MaxTokens    int
	SessionID    string
	EntityType   string
}

// Decision is a routing outcome.
type Decision struct {
	Provider string
	Model    string
}

// Router selects a provider and model for a request. A nil decision
// with a nil error means nothing qualified.
type Router interface {
	RouteRequest(ctx context.Context, rc RouteContext) (*Decision, error)
}

// CredentialResolver resolves an API key for a provider, optionally
// scoped to an organization.
type CredentialResolver interface {
	ResolveKey(organization, provider string) (string, error)
}

// candidate is one routable model.
type candidate struct {
	provider string
	model    string
	vision   bool
	// tier orders candidates: lower is cheaper.
	tier int
}

// StaticRouter routes over a fixed candidate list ordered by tier.
// cost priority picks the cheapest qualifying model, quality the most
// capable, balanced the middle.
type StaticRouter struct {
	candidates []candidate
}

// NewStaticRouter builds a router over the given provider registry
// contents.
func NewStaticRouter(models []RoutableModel) *StaticRouter {
	cands := make([]candidate, 0, len(models))
	for _, m := range models {
		cands = append(cands, candidate{provider: m.Provider, model: m.Model, vision: m.Vision, tier: m.Tier})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].tier < cands[j].tier })
	return &StaticRouter{candidates: cands}
}

// RoutableModel describes one model a StaticRouter can select.
type RoutableModel struct {
	Provider string
	Model    string
	Vision   bool
	Tier     int
}

// RouteRequest selects a model consistent with the content type and
// priority.
func (r *StaticRouter) RouteRequest(ctx context.Context, rc RouteContext) (*Decision, error) {
	var pool []candidate
	for _, c := range r.candidates {
		if rc.ContentType == "vision" && !c.vision {
			continue
		}
		pool = append(pool, c)
	}
	if len(pool) == 0 {
		return nil, nil
	}

	var pick candidate
	switch rc.Priority {
	case PriorityCost:
		pick = pool[0]
	case PriorityQuality:
		pick = pool[len(pool)-1]
	default:
		pick = pool[len(pool)/2]
	}
	return &Decision{Provider: pick.provider, Model: pick.model}, nil
}

// Ensure StaticRouter implements Router.
var _ Router = (*StaticRouter)(nil)

// EnvCredentialResolver resolves keys from the process environment:
// ANTHROPIC_API_KEY, OPENAI_API_KEY, or <PROVIDER>_API_KEY.
type EnvCredentialResolver struct{}

// ResolveKey returns the key for a provider, or ErrNoCredentials when
// unset.
func (EnvCredentialResolver) ResolveKey(organization, provider string) (string, error) {
	key := os.Getenv(strings.ToUpper(provider) + "_API_KEY")
	if key == "" {
		return "", ErrNoCredentials
	}
	return key, nil
}

// Ensure EnvCredentialResolver implements CredentialResolver.
var _ CredentialResolver = EnvCredentialResolver{}
