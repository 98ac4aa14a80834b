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
	"regexp"

	"github.com/plansight/takeoff/pkg/geometry"
)

// ElementType classifies a detected engineering element.
type ElementType string

const (
	ElementColumn  ElementType = "column"
	ElementBeam    ElementType = "beam"
	ElementFooting ElementType = "footing"
	ElementSlab    ElementType = "slab"
	ElementWall    ElementType = "wall"
	ElementPile    ElementType = "pile"
	ElementBolt    ElementType = "bolt"
	ElementRivet   ElementType = "rivet"
	ElementGeneric ElementType = "generic"
	ElementUnknown ElementType = "unknown"
)

// ElementPattern matches an element-ID label and hints at its type.
type ElementPattern struct {
	Pattern *regexp.Regexp
	Type    ElementType
}

// ElementPatterns is the domain table of element-ID label patterns.
// Structural marks follow the common drafting convention of a trade
// letter plus a sequence number; fastener marks follow metric sizing.
// Order matters: the first matching pattern supplies the type hint.
var ElementPatterns = []ElementPattern{
	{regexp.MustCompile(`^C\d{1,3}[A-Za-z]?$`), ElementColumn},
	{regexp.MustCompile(`^B\d{1,3}[A-Za-z]?$`), ElementBeam},
	{regexp.MustCompile(`^F\d{1,3}[A-Za-z]?$`), ElementFooting},
	{regexp.MustCompile(`^S\d{1,3}[A-Za-z]?$`), ElementSlab},
	{regexp.MustCompile(`^W\d{1,3}[A-Za-z]?$`), ElementWall},
	{regexp.MustCompile(`^P\d{1,3}[A-Za-z]?$`), ElementPile},
	{regexp.MustCompile(`^M\d{1,2}(x\d{1,3})?$`), ElementBolt},
	{regexp.MustCompile(`^R\d{1,3}$`), ElementRivet},
	{regexp.MustCompile(`^[A-Z]{1,2}$`), ElementGeneric},
	{regexp.MustCompile(`^[A-Z]{1,2}\d{1,3}$`), ElementGeneric},
}

// MatchElementText reports whether text matches any element-ID pattern
// and returns the type hint of the first match.
func MatchElementText(text string) (ElementType, bool) {
	for _, p := range ElementPatterns {
		if p.Pattern.MatchString(text) {
			return p.Type, true
		}
	}
	return ElementUnknown, false
}

// ClassifyElement combines the label type hint with the backing shape.
// When the label carries no specific hint the shape geometry decides:
// circles read as fasteners, rectangles as structural sections.
func ClassifyElement(text string, shape geometry.Shape) ElementType {
	hint, ok := MatchElementText(text)
	if ok && hint != ElementGeneric {
		return hint
	}
	if shape != nil {
		switch shape.Kind() {
		case geometry.KindCircle:
			return ElementBolt
		case geometry.KindRectangle:
			return ElementColumn
		}
	}
	if ok {
		return ElementGeneric
	}
	return ElementUnknown
}
