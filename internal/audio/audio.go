// Package audio captures speech from a frame source and segments it into
// utterances using an ambient-noise energy threshold.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrNoSpeech reports that no speech began before the onset timeout. It is an
// expected outcome, not a failure.
var ErrNoSpeech = errors.New("no speech detected")

// CaptureError wraps failures of the underlying capture device.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Format describes interleaved signed 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameDuration returns the playback time of n interleaved samples.
func (f Format) FrameDuration(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return time.Duration(n/f.Channels) * time.Second / time.Duration(f.SampleRate)
}

// Utterance is one silence-delimited speech segment. It is not modified after
// capture.
type Utterance struct {
	SessionID  string
	Sequence   int
	Language   string
	PCM        []byte
	Format     Format
	Duration   time.Duration
	CapturedAt time.Time
}

// Microphone is the capture surface consumed by the capture loop.
type Microphone interface {
	// Calibrate samples ambient noise for d to establish the silence threshold.
	Calibrate(d time.Duration) error
	// Listen blocks until one utterance is captured. It returns ErrNoSpeech when
	// speech does not start within onsetTimeout; phraseTimeLimit caps the
	// utterance length (zero means unbounded).
	Listen(onsetTimeout, phraseTimeLimit time.Duration) (Utterance, error)
	Close() error
}

// Opener acquires a microphone for the duration of one listening session.
type Opener func() (Microphone, error)

// FrameSource delivers raw PCM frames. ReadFrame blocks until a frame is
// available and returns a slice the caller may keep.
type FrameSource interface {
	ReadFrame() ([]int16, error)
	Format() Format
	Close() error
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples decodes little-endian 16-bit PCM.
func BytesToSamples(pcm []byte) ([]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples, nil
}
