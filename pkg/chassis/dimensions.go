package chassis

import (
	"math"

	"github.com/pkg/errors"
)

const (
	// Standard SPIKE Prime wheel.
	DefaultWheelDiameterCM float64 = 5.6

	// Centre-to-centre distance between the two drive wheels.
	DefaultTrackWidthCM float64 = 11.2
)

// Geometry converts between ground distance and wheel rotation.
type Geometry struct {
	wheelDiameterCM float64
	wheelCircumCM   float64
	trackWidthCM    float64
}

func NewGeometry(wheelDiameterCM, trackWidthCM float64) (Geometry, error) {
	if wheelDiameterCM <= 0 {
		return Geometry{}, errors.Errorf("wheel diameter must be positive, got %v", wheelDiameterCM)
	}
	if trackWidthCM <= 0 {
		return Geometry{}, errors.Errorf("track width must be positive, got %v", trackWidthCM)
	}
	return Geometry{
		wheelDiameterCM: wheelDiameterCM,
		wheelCircumCM:   wheelDiameterCM * math.Pi,
		trackWidthCM:    trackWidthCM,
	}, nil
}

func Default() Geometry {
	g, _ := NewGeometry(DefaultWheelDiameterCM, DefaultTrackWidthCM)
	return g
}

func (g Geometry) WheelDiameterCM() float64 {
	return g.wheelDiameterCM
}

func (g Geometry) WheelCircumCM() float64 {
	return g.wheelCircumCM
}

func (g Geometry) TrackWidthCM() float64 {
	return g.trackWidthCM
}

// DegreesForDistance returns the wheel rotation needed to roll distanceCM.
func (g Geometry) DegreesForDistance(distanceCM float64) float64 {
	return distanceCM / g.wheelCircumCM * 360
}

// DistanceForDegrees is the inverse of DegreesForDistance.
func (g Geometry) DistanceForDegrees(degrees float64) float64 {
	return degrees / 360 * g.wheelCircumCM
}
