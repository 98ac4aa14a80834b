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

package geometry

import (
	"errors"
	"math"
	"testing"
)

func TestCircle_InvalidRadius(t *testing.T) {
	_, err := NewCircle(Point{X: 0, Y: 0}, 0, Style{}, 1)
	if err == nil {
		t.Fatal("expected error for zero radius")
	}
	var invalid *InvalidShapeError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidShapeError, got %T", err)
	}
}

func TestCircle_ContainsAndDistance(t *testing.T) {
	c, err := NewCircle(Point{X: 10, Y: 10}, 5, Style{}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !c.ContainsPoint(Point{X: 12, Y: 12}) {
		t.Error("point inside circle not contained")
	}
	if c.ContainsPoint(Point{X: 20, Y: 10}) {
		t.Error("point outside circle reported contained")
	}
	if d := c.DistanceToPoint(Point{X: 11, Y: 10}); d != 0 {
		t.Errorf("distance for inside point = %g, want 0", d)
	}
	if d := c.DistanceToPoint(Point{X: 20, Y: 10}); math.Abs(d-5) > 1e-9 {
		t.Errorf("distance = %g, want 5", d)
	}
}

func TestRectangle_ContainsAndDistance(t *testing.T) {
	r, err := NewRectangle(NewBoundingBox(0, 0, 10, 20), Style{}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !r.ContainsPoint(Point{X: 5, Y: 5}) {
		t.Error("interior point not contained")
	}
	if d := r.DistanceToPoint(Point{X: 13, Y: 24}); math.Abs(d-5) > 1e-9 {
		t.Errorf("corner distance = %g, want 5", d)
	}
	if got := r.Center(); got != (Point{X: 5, Y: 10}) {
		t.Errorf("center = %+v", got)
	}
}

func TestRectangle_ZeroExtent(t *testing.T) {
	if _, err := NewRectangle(NewBoundingBox(3, 3, 3, 9), Style{}, 1); err == nil {
		t.Fatal("expected error for zero-width rectangle")
	}
}

func TestPolygon_Validation(t *testing.T) {
	if _, err := NewPolygon([]Point{{0, 0}, {1, 1}}, Style{}, 1); err == nil {
		t.Fatal("expected error for 2 vertices")
	}
	if _, err := NewPolygon([]Point{{0, 0}, {0, 0}, {1, 1}}, Style{}, 1); err == nil {
		t.Fatal("expected error for zero-length edge")
	}
}

func TestPolygon_ContainsAndDistance(t *testing.T) {
	// 10x10 square as polygon.
	pg, err := NewPolygon([]Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}, Style{}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !pg.ContainsPoint(Point{X: 5, Y: 5}) {
		t.Error("interior point not contained")
	}
	if pg.ContainsPoint(Point{X: 15, Y: 5}) {
		t.Error("exterior point reported contained")
	}
	if d := pg.DistanceToPoint(Point{X: 5, Y: 5}); d != 0 {
		t.Errorf("inside distance = %g, want 0", d)
	}
	if d := pg.DistanceToPoint(Point{X: 15, Y: 5}); math.Abs(d-5) > 1e-9 {
		t.Errorf("edge distance = %g, want 5", d)
	}
}

func TestUnitConversionRoundTrip(t *testing.T) {
	for _, mm := range []float64{0.5, 1, 10, 50, 200} {
		got := PointsToMM(MMToPoints(mm))
		if math.Abs(got-mm) > 1e-9 {
			t.Errorf("round trip %g -> %g", mm, got)
		}
	}
}

func TestBoundingBox_Normalization(t *testing.T) {
	b := NewBoundingBox(10, 20, 0, 5)
	if b.X0 != 0 || b.Y0 != 5 || b.X1 != 10 || b.Y1 != 20 {
		t.Errorf("unexpected normalized box %+v", b)
	}
}
