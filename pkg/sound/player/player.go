// Package player plays hub speaker beeps on the host's audio device.
package player

import (
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"go.uber.org/zap"

	"github.com/fllteam24277/basebot/pkg/hardware"
	"github.com/fllteam24277/basebot/pkg/sound"
)

// InitSound starts the player goroutine.  Each beep blocks the player until
// it has finished, like the hub's speaker.  Close the channel to shut down.
func InitSound(logger *zap.SugaredLogger) chan hardware.Beep {
	beeps := make(chan hardware.Beep)
	go func() {
		defer func() {
			recover()
			for b := range beeps {
				logger.Warnf("unable to play note %d", b.Note)
			}
		}()
		err := speaker.Init(sound.SampleRate, sound.SampleRate.N(time.Second/10))
		if err != nil {
			logger.Warnf("failed to open speaker: %v", err)
			for b := range beeps {
				logger.Warnf("unable to play note %d", b.Note)
			}
			return
		}
		for b := range beeps {
			done := make(chan struct{})
			speaker.Play(beep.Seq(
				sound.Tone(sound.SampleRate, sound.NoteFrequency(b.Note), b.Duration),
				beep.Callback(func() { close(done) }),
			))
			<-done
		}
	}()
	return beeps
}
