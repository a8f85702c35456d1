package runtime

import (
	"fmt"
	"time"

	"github.com/loqalabs/dictat/internal/audio"
	"github.com/loqalabs/dictat/internal/audio/portaudio"
	"github.com/loqalabs/dictat/internal/config"
)

// microphoneOpener builds the energy segmenter over the configured source.
func microphoneOpener(cfg config.CaptureConfig) audio.Opener {
	detector := audio.DetectorConfig{
		PauseThreshold: time.Duration(cfg.PauseThresholdMS) * time.Millisecond,
		PreRoll:        time.Duration(cfg.PreRollMS) * time.Millisecond,
		Multiplier:     cfg.EnergyMultiplier,
		MinThreshold:   cfg.MinEnergyThreshold,
	}
	frame := time.Duration(cfg.FrameDurationMS) * time.Millisecond

	return func() (audio.Microphone, error) {
		var (
			src audio.FrameSource
			err error
		)
		switch cfg.Source {
		case "file":
			src, err = audio.OpenWAVSource(cfg.File, frame, cfg.Realtime)
		case "portaudio":
			src, err = portaudio.Open(portaudio.Config{
				Device:        cfg.Device,
				SampleRate:    cfg.SampleRate,
				Channels:      cfg.Channels,
				FrameDuration: frame,
			})
		default:
			err = fmt.Errorf("unsupported capture source %q", cfg.Source)
		}
		if err != nil {
			return nil, err
		}
		return audio.NewEnergyMicrophone(src, detector), nil
	}
}
