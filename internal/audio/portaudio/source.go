// Package portaudio reads live microphone frames through the PortAudio C
// library. Building it requires cgo and the PortAudio headers.
package portaudio

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/loqalabs/dictat/internal/audio"
)

// Config selects the input device and frame layout.
type Config struct {
	Device        string
	SampleRate    int
	Channels      int
	FrameDuration time.Duration
}

// Source is an open PortAudio input stream.
type Source struct {
	stream *portaudio.Stream
	buf    []int16
	format audio.Format
}

// Open initializes PortAudio and starts an input stream. Close releases both.
func Open(cfg Config) (*Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	frames := int(time.Duration(cfg.SampleRate) * cfg.FrameDuration / time.Second)
	if frames <= 0 {
		frames = 512
	}
	buf := make([]int16, frames*cfg.Channels)

	stream, err := openStream(cfg, frames, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	return &Source{
		stream: stream,
		buf:    buf,
		format: audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels},
	}, nil
}

func openStream(cfg Config, frames int, buf []int16) (*portaudio.Stream, error) {
	if cfg.Device == "" {
		stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), frames, buf)
		if err != nil {
			return nil, fmt.Errorf("open default stream: %w", err)
		}
		return stream, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, dev := range devices {
		if dev.MaxInputChannels < cfg.Channels || !strings.Contains(strings.ToLower(dev.Name), strings.ToLower(cfg.Device)) {
			continue
		}
		params := portaudio.LowLatencyParameters(dev, nil)
		params.Input.Channels = cfg.Channels
		params.SampleRate = float64(cfg.SampleRate)
		params.FramesPerBuffer = frames
		stream, err := portaudio.OpenStream(params, buf)
		if err != nil {
			return nil, fmt.Errorf("open stream on %q: %w", dev.Name, err)
		}
		return stream, nil
	}
	return nil, fmt.Errorf("no input device matching %q", cfg.Device)
}

func (s *Source) Format() audio.Format { return s.format }

func (s *Source) ReadFrame() ([]int16, error) {
	// An overflow only means samples were dropped; the buffer is still valid.
	if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, fmt.Errorf("stream read: %w", err)
	}
	return append([]int16(nil), s.buf...), nil
}

func (s *Source) Close() error {
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	termErr := portaudio.Terminate()
	switch {
	case stopErr != nil:
		return fmt.Errorf("stop stream: %w", stopErr)
	case closeErr != nil:
		return fmt.Errorf("close stream: %w", closeErr)
	case termErr != nil:
		return fmt.Errorf("portaudio terminate: %w", termErr)
	}
	return nil
}
