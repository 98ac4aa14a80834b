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
	"io"
	"math"
	"strconv"

	"github.com/ledongthuc/pdf"

	"github.com/plansight/takeoff/pkg/geometry"
)

// matrix is a PDF transformation matrix [a b c d e f].
type matrix struct {
	a, b, c, d, e, f float64
}

var identity = matrix{a: 1, d: 1}

func (m matrix) mul(n matrix) matrix {
	return matrix{
		a: n.a*m.a + n.b*m.c,
		b: n.a*m.b + n.b*m.d,
		c: n.c*m.a + n.d*m.c,
		d: n.c*m.b + n.d*m.d,
		e: n.e*m.a + n.f*m.c + m.e,
		f: n.e*m.b + n.f*m.d + m.f,
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m.a*x + m.c*y + m.e, m.b*x + m.d*y + m.f
}

// graphicsState is the subset of PDF graphics state the detector cares
// about.
type graphicsState struct {
	ctm       matrix
	lineWidth float64
	stroke    [3]float64
	dashed    bool
}

// subpath accumulates one path between m/re and the painting operator.
type subpath struct {
	start      geometry.Point
	current    geometry.Point
	lines      []LineSegment
	curveCount int
	// bounds over every path point including control points
	minX, minY, maxX, maxY float64
	hasPoints              bool
}

func (sp *subpath) grow(x, y float64) {
	if !sp.hasPoints {
		sp.minX, sp.maxX, sp.minY, sp.maxY = x, x, y, y
		sp.hasPoints = true
		return
	}
	sp.minX = math.Min(sp.minX, x)
	sp.maxX = math.Max(sp.maxX, x)
	sp.minY = math.Min(sp.minY, y)
	sp.maxY = math.Max(sp.maxY, y)
}

// pathScanner interprets a page content stream and collects stroked
// line segments and bezier subpaths. Only the operators relevant to
// vector geometry are handled; text and image operators are skipped by
// the tokenizer.
type pathScanner struct {
	state graphicsState
	stack []graphicsState

	subpaths []*subpath
	current  *subpath

	// pendingArrayEmpty remembers whether the last array literal was
	// empty, so the d operator can tell solid from dashed patterns.
	pendingArrayEmpty bool

	lines []LineSegment
	arcs  []Arc
}

func newPathScanner() *pathScanner {
	return &pathScanner{
		state: graphicsState{ctm: identity, lineWidth: 1, stroke: [3]float64{0, 0, 0}},
	}
}

// extractPageVectors scans every content stream of the page.
func extractPageVectors(page pdf.Page) ([]LineSegment, []Arc, error) {
	sc := newPathScanner()

	contents := page.V.Key("Contents")
	streams := make([]pdf.Value, 0, 1)
	if contents.Kind() == pdf.Array {
		for i := 0; i < contents.Len(); i++ {
			streams = append(streams, contents.Index(i))
		}
	} else if !contents.IsNull() {
		streams = append(streams, contents)
	}

	for _, stream := range streams {
		r := stream.Reader()
		data, err := io.ReadAll(r)
		_ = r.Close()
		if err != nil {
			return sc.lines, sc.arcs, err
		}
		sc.scan(data)
	}

	return sc.lines, sc.arcs, nil
}

// scan tokenizes one content stream and feeds operators to the state
// machine. Operand parsing is forgiving: unknown operators clear the
// operand stack and move on.
func (sc *pathScanner) scan(data []byte) {
	var operands []float64
	i := 0
	n := len(data)

	for i < n {
		ch := data[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' || ch == '\f' || ch == 0:
			i++

		case ch == '%': // comment to end of line
			for i < n && data[i] != '\n' {
				i++
			}

		case ch == '(': // literal string, skip with escape handling
			depth := 1
			i++
			for i < n && depth > 0 {
				switch data[i] {
				case '\\':
					i++
				case '(':
					depth++
				case ')':
					depth--
				}
				i++
			}

		case ch == '<':
			if i+1 < n && data[i+1] == '<' { // dictionary, skip to >>
				depth := 1
				i += 2
				for i+1 < n && depth > 0 {
					if data[i] == '<' && data[i+1] == '<' {
						depth++
						i += 2
					} else if data[i] == '>' && data[i+1] == '>' {
						depth--
						i += 2
					} else {
						i++
					}
				}
			} else { // hex string
				for i < n && data[i] != '>' {
					i++
				}
				i++
			}

		case ch == '/': // name, skip
			i++
			for i < n && !isDelim(data[i]) {
				i++
			}

		case ch == '[': // array: dash patterns matter, content does not beyond emptiness
			start := i
			for i < n && data[i] != ']' {
				i++
			}
			sc.pendingArrayEmpty = isEmptyArray(data[start : min(i+1, n)])
			i++

		case ch == ']':
			i++

		case ch == '+' || ch == '-' || ch == '.' || (ch >= '0' && ch <= '9'):
			start := i
			i++
			for i < n && (data[i] == '.' || data[i] == '-' || data[i] == '+' || (data[i] >= '0' && data[i] <= '9')) {
				i++
			}
			if v, err := strconv.ParseFloat(string(data[start:i]), 64); err == nil {
				operands = append(operands, v)
			}

		default: // operator
			start := i
			for i < n && !isDelim(data[i]) {
				i++
			}
			sc.apply(string(data[start:i]), operands)
			operands = operands[:0]
		}
	}
}

func isDelim(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '\f', 0, '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isEmptyArray(tok []byte) bool {
	for _, b := range tok {
		switch b {
		case '[', ']', ' ', '\t', '\r', '\n':
		default:
			return false
		}
	}
	return true
}

// apply executes a single operator.
func (sc *pathScanner) apply(op string, args []float64) {
	switch op {
	case "q":
		sc.stack = append(sc.stack, sc.state)

	case "Q":
		if len(sc.stack) > 0 {
			sc.state = sc.stack[len(sc.stack)-1]
			sc.stack = sc.stack[:len(sc.stack)-1]
		}

	case "cm":
		if len(args) >= 6 {
			sc.state.ctm = sc.state.ctm.mul(matrix{args[0], args[1], args[2], args[3], args[4], args[5]})
		}

	case "w":
		if len(args) >= 1 {
			sc.state.lineWidth = args[0]
		}

	case "d":
		// A non-empty dash array means a dashed pattern.
		sc.state.dashed = !sc.pendingArrayEmpty

	case "RG":
		if len(args) >= 3 {
			sc.state.stroke = [3]float64{args[0], args[1], args[2]}
		}

	case "G":
		if len(args) >= 1 {
			sc.state.stroke = [3]float64{args[0], args[0], args[0]}
		}

	case "K":
		if len(args) >= 4 {
			// Approximate CMYK as RGB for darkness filtering.
			c, m, y, k := args[0], args[1], args[2], args[3]
			sc.state.stroke = [3]float64{(1 - c) * (1 - k), (1 - m) * (1 - k), (1 - y) * (1 - k)}
		}

	case "m":
		if len(args) >= 2 {
			x, y := sc.state.ctm.apply(args[0], args[1])
			sc.startSubpath(x, y)
		}

	case "l":
		if sc.current != nil && len(args) >= 2 {
			x, y := sc.state.ctm.apply(args[0], args[1])
			sc.lineTo(x, y)
		}

	case "c":
		if sc.current != nil && len(args) >= 6 {
			x1, y1 := sc.state.ctm.apply(args[0], args[1])
			x2, y2 := sc.state.ctm.apply(args[2], args[3])
			x3, y3 := sc.state.ctm.apply(args[4], args[5])
			sc.curveTo(x1, y1, x2, y2, x3, y3)
		}

	case "v", "y":
		if sc.current != nil && len(args) >= 4 {
			x1, y1 := sc.state.ctm.apply(args[0], args[1])
			x2, y2 := sc.state.ctm.apply(args[2], args[3])
			sc.curveTo(x1, y1, x2, y2, x2, y2)
		}

	case "re":
		if len(args) >= 4 {
			sc.rect(args[0], args[1], args[2], args[3])
		}

	case "h":
		sc.closeSubpath()

	case "S":
		sc.paint(true)

	case "s":
		sc.closeSubpath()
		sc.paint(true)

	case "B", "B*", "b", "b*":
		sc.paint(true)

	case "f", "f*", "F", "n":
		// Fill or no-op painting: no stroked geometry to keep.
		sc.paint(false)
	}
}

func (sc *pathScanner) startSubpath(x, y float64) {
	sp := &subpath{start: geometry.Point{X: x, Y: y}, current: geometry.Point{X: x, Y: y}}
	sp.grow(x, y)
	sc.subpaths = append(sc.subpaths, sp)
	sc.current = sp
}

func (sc *pathScanner) lineTo(x, y float64) {
	sp := sc.current
	sp.lines = append(sp.lines, LineSegment{
		X0: sp.current.X, Y0: sp.current.Y, X1: x, Y1: y,
		LineWidth: sc.state.lineWidth,
		Color:     sc.state.stroke,
		Dashed:    sc.state.dashed,
	})
	sp.current = geometry.Point{X: x, Y: y}
	sp.grow(x, y)
}

func (sc *pathScanner) curveTo(x1, y1, x2, y2, x3, y3 float64) {
	sp := sc.current
	sp.curveCount++
	sp.grow(x1, y1)
	sp.grow(x2, y2)
	sp.grow(x3, y3)
	sp.current = geometry.Point{X: x3, Y: y3}
}

func (sc *pathScanner) rect(x, y, w, h float64) {
	// A rectangle is four line segments; transform its corners.
	corners := [4][2]float64{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}}
	var tx [4]geometry.Point
	for i, c := range corners {
		px, py := sc.state.ctm.apply(c[0], c[1])
		tx[i] = geometry.Point{X: px, Y: py}
	}
	sp := &subpath{start: tx[0], current: tx[0]}
	for i := 0; i < 4; i++ {
		next := tx[(i+1)%4]
		sp.lines = append(sp.lines, LineSegment{
			X0: sp.current.X, Y0: sp.current.Y, X1: next.X, Y1: next.Y,
			LineWidth: sc.state.lineWidth,
			Color:     sc.state.stroke,
			Dashed:    sc.state.dashed,
		})
		sp.current = next
		sp.grow(next.X, next.Y)
	}
	sp.grow(tx[0].X, tx[0].Y)
	sc.subpaths = append(sc.subpaths, sp)
	sc.current = sp
}

func (sc *pathScanner) closeSubpath() {
	sp := sc.current
	if sp == nil || sp.current == sp.start {
		return
	}
	sp.lines = append(sp.lines, LineSegment{
		X0: sp.current.X, Y0: sp.current.Y, X1: sp.start.X, Y1: sp.start.Y,
		LineWidth: sc.state.lineWidth,
		Color:     sc.state.stroke,
		Dashed:    sc.state.dashed,
	})
	sp.current = sp.start
}

// paint flushes accumulated subpaths. Stroked paths contribute lines
// and arcs; unpainted paths are dropped.
func (sc *pathScanner) paint(stroked bool) {
	if stroked {
		for _, sp := range sc.subpaths {
			sc.lines = append(sc.lines, sp.lines...)
			if sp.curveCount > 0 && sp.hasPoints {
				bbox := geometry.NewBoundingBox(sp.minX, sp.minY, sp.maxX, sp.maxY)
				aspect := 0.0
				if bbox.Height() > 0 {
					aspect = bbox.Width() / bbox.Height()
				}
				sc.arcs = append(sc.arcs, Arc{
					BBox:       bbox,
					CurveCount: sp.curveCount,
					Center:     bbox.Center(),
					Aspect:     aspect,
					Kind:       classifyArc(sp.curveCount, aspect),
					LineWidth:  sc.state.lineWidth,
					Color:      sc.state.stroke,
				})
			}
		}
	}
	sc.subpaths = sc.subpaths[:0]
	sc.current = nil
}

// classifyArc tags a bezier subpath. Circles are typically drawn with
// exactly 4 bezier curves at a near-square aspect ratio.
func classifyArc(curveCount int, aspect float64) ArcKind {
	if curveCount == 4 && aspect >= 0.75 && aspect <= 1.35 {
		return ArcCircle
	}
	if curveCount >= 2 {
		return ArcArc
	}
	return ArcCurve
}
