package audio

import (
	"errors"
	"math"
	"time"
)

var errEmptyFrame = errors.New("empty frame")

// DetectorConfig tunes speech onset and end detection.
type DetectorConfig struct {
	// PauseThreshold is the run of silence that ends an utterance.
	PauseThreshold time.Duration
	// PreRoll is the audio kept from before the onset frame.
	PreRoll time.Duration
	// Multiplier scales the calibrated ambient energy into the threshold.
	Multiplier float64
	// MinThreshold is the lowest threshold calibration may produce.
	MinThreshold float64
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		PauseThreshold: 800 * time.Millisecond,
		PreRoll:        500 * time.Millisecond,
		Multiplier:     1.5,
		MinThreshold:   300,
	}
}

// EnergyMicrophone segments a FrameSource by RMS energy. Elapsed time is
// measured in captured audio, so replayed sources behave like live ones.
type EnergyMicrophone struct {
	src       FrameSource
	cfg       DetectorConfig
	threshold float64
	now       func() time.Time
}

func NewEnergyMicrophone(src FrameSource, cfg DetectorConfig) *EnergyMicrophone {
	return &EnergyMicrophone{src: src, cfg: cfg, threshold: cfg.MinThreshold, now: time.Now}
}

// Threshold returns the current silence threshold.
func (m *EnergyMicrophone) Threshold() float64 { return m.threshold }

func (m *EnergyMicrophone) Calibrate(d time.Duration) error {
	format := m.src.Format()
	var (
		elapsed time.Duration
		sum     float64
		frames  int
	)
	for elapsed < d {
		frame, err := m.src.ReadFrame()
		if err != nil {
			return &CaptureError{Op: "calibrate", Err: err}
		}
		if len(frame) == 0 {
			return &CaptureError{Op: "calibrate", Err: errEmptyFrame}
		}
		elapsed += format.FrameDuration(len(frame))
		sum += rms(frame)
		frames++
	}
	if frames == 0 {
		return nil
	}
	m.threshold = math.Max(m.cfg.MinThreshold, sum/float64(frames)*m.cfg.Multiplier)
	return nil
}

func (m *EnergyMicrophone) Listen(onsetTimeout, phraseTimeLimit time.Duration) (Utterance, error) {
	format := m.src.Format()
	var (
		waited  time.Duration
		preRoll [][]int16
		preDur  time.Duration
		onset   []int16
	)
	for {
		frame, err := m.src.ReadFrame()
		if err != nil {
			return Utterance{}, &CaptureError{Op: "listen", Err: err}
		}
		if len(frame) == 0 {
			return Utterance{}, &CaptureError{Op: "listen", Err: errEmptyFrame}
		}
		d := format.FrameDuration(len(frame))
		if rms(frame) > m.threshold {
			onset = frame
			break
		}
		waited += d
		if onsetTimeout > 0 && waited >= onsetTimeout {
			return Utterance{}, ErrNoSpeech
		}
		preRoll = append(preRoll, frame)
		preDur += d
		for len(preRoll) > 0 && preDur > m.cfg.PreRoll {
			preDur -= format.FrameDuration(len(preRoll[0]))
			preRoll = preRoll[1:]
		}
	}

	capturedAt := m.now()
	var samples []int16
	for _, f := range preRoll {
		samples = append(samples, f...)
	}
	samples = append(samples, onset...)
	spoken := format.FrameDuration(len(onset))
	var silence time.Duration
	for phraseTimeLimit <= 0 || spoken < phraseTimeLimit {
		frame, err := m.src.ReadFrame()
		if err != nil {
			return Utterance{}, &CaptureError{Op: "listen", Err: err}
		}
		if len(frame) == 0 {
			return Utterance{}, &CaptureError{Op: "listen", Err: errEmptyFrame}
		}
		d := format.FrameDuration(len(frame))
		samples = append(samples, frame...)
		spoken += d
		if rms(frame) > m.threshold {
			silence = 0
			continue
		}
		silence += d
		if silence >= m.cfg.PauseThreshold {
			break
		}
	}

	return Utterance{
		PCM:        samplesToBytes(samples),
		Format:     format,
		Duration:   format.FrameDuration(len(samples)),
		CapturedAt: capturedAt,
	}, nil
}

func (m *EnergyMicrophone) Close() error {
	return m.src.Close()
}

func rms(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
