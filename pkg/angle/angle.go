// Package angle handles headings reported in a wrapped range.
package angle

import "math"

// PlusMinus180 is an angle in degrees, stored as a value in range (-180, 180].
// All operations clamp their output into range.
type PlusMinus180 struct {
	float64
}

func (a PlusMinus180) Sub(b PlusMinus180) PlusMinus180 {
	return FromFloat(a.float64 - b.float64)
}

// Float returns the angle in degrees, range (-180, 180].
func (a PlusMinus180) Float() float64 {
	return a.float64
}

// FromFloat converts a float of any magnitude to a PlusMinus180 by calculating
// f mod 360 and shifting into range.
func FromFloat(f float64) PlusMinus180 {
	d := math.Mod(f, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return PlusMinus180{d}
}

// Unwrapper turns a sequence of wrapped readings back into an accumulated
// angle.  It assumes less than half a turn between readings.
type Unwrapper struct {
	last  PlusMinus180
	total float64
}

// Update takes the next wrapped reading and returns the accumulated angle.
func (u *Unwrapper) Update(reading float64) float64 {
	r := FromFloat(reading)
	u.total += r.Sub(u.last).Float()
	u.last = r
	return u.total
}

// Reset makes the next reading relative to zero.
func (u *Unwrapper) Reset() {
	*u = Unwrapper{}
}
