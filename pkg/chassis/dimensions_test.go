package chassis

import (
	"math"
	"testing"
)

func TestDefaultGeometry(t *testing.T) {
	g := Default()
	if math.Abs(g.WheelCircumCM()-17.5929) > 0.001 {
		t.Fatalf("Unexpected circumference %v", g.WheelCircumCM())
	}
	if d := g.DegreesForDistance(g.WheelCircumCM()); math.Abs(d-360) > 1e-9 {
		t.Fatalf("One circumference should be 360 degrees, got %v", d)
	}
	if d := g.DistanceForDegrees(720); math.Abs(d-2*g.WheelCircumCM()) > 1e-9 {
		t.Fatalf("720 degrees should be two circumferences, got %v", d)
	}
}

func TestNewGeometryRejectsBadDimensions(t *testing.T) {
	for _, dims := range [][2]float64{{0, 10}, {-1, 10}, {5.6, 0}} {
		if _, err := NewGeometry(dims[0], dims[1]); err == nil {
			t.Errorf("Expected error for %v", dims)
		}
	}
}

func TestDegreesForDistance(t *testing.T) {
	g, err := NewGeometry(10, 10)
	if err != nil {
		t.Fatal(err)
	}
	expectDegrees(t, g, 0, 0)
	expectDegrees(t, g, 10*math.Pi, 360)
	expectDegrees(t, g, 5*math.Pi, 180)
	expectDegrees(t, g, -10*math.Pi, -360)
}

func expectDegrees(t *testing.T, g Geometry, cm, expected float64) {
	if d := g.DegreesForDistance(cm); math.Abs(d-expected) > 1e-9 {
		t.Errorf("%v cm: got %v degrees, expected %v", cm, d, expected)
	}
}
