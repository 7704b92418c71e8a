// Package sound makes the tones the hub's speaker plays.
package sound

import (
	"math"
	"time"

	"github.com/faiface/beep"
)

const SampleRate = beep.SampleRate(44100)

// NoteFrequency converts a MIDI note number to Hz; note 69 is A4.
func NoteFrequency(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

// Tone is a sine wave of the given frequency and length.
func Tone(sr beep.SampleRate, freq float64, d time.Duration) beep.Streamer {
	var pos int
	sine := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := 0.3 * math.Sin(2*math.Pi*freq*float64(pos)/float64(sr))
			samples[i][0] = v
			samples[i][1] = v
			pos++
		}
		return len(samples), true
	})
	return beep.Take(sr.N(d), sine)
}
