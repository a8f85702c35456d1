package audio

import (
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes 16-bit little-endian PCM into w as a WAV container.
func WriteWAV(w io.WriteSeeker, pcm []byte, format Format) error {
	samples, err := BytesToSamples(pcm)
	if err != nil {
		return err
	}
	buffer := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate}}
	buffer.Data = make([]int, len(samples))
	for i, s := range samples {
		buffer.Data[i] = int(s)
	}

	enc := wav.NewEncoder(w, format.SampleRate, 16, format.Channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WAVSource replays a WAV file as a FrameSource. When realtime is set each
// frame is paced to its playback duration.
type WAVSource struct {
	file     *os.File
	dec      *wav.Decoder
	format   Format
	shift    int
	buf      *goaudio.IntBuffer
	realtime bool
	sleep    func(time.Duration)
}

func OpenWAVSource(path string, frameDuration time.Duration, realtime bool) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s is not a valid wav file", path)
	}
	if dec.BitDepth == 0 || dec.BitDepth > 32 {
		f.Close()
		return nil, fmt.Errorf("unsupported wav bit depth %d", dec.BitDepth)
	}
	format := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	samples := int(time.Duration(format.SampleRate)*frameDuration/time.Second) * format.Channels
	if samples <= 0 {
		samples = 512 * format.Channels
	}
	return &WAVSource{
		file:     f,
		dec:      dec,
		format:   format,
		shift:    int(dec.BitDepth) - 16,
		buf:      &goaudio.IntBuffer{Data: make([]int, samples), Format: dec.Format()},
		realtime: realtime,
		sleep:    time.Sleep,
	}, nil
}

func (s *WAVSource) Format() Format { return s.format }

func (s *WAVSource) ReadFrame() ([]int16, error) {
	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	if n == 0 {
		return nil, io.EOF
	}
	frame := make([]int16, n)
	for i, v := range s.buf.Data[:n] {
		switch {
		case s.shift > 0:
			v >>= s.shift
		case s.shift < 0:
			v <<= -s.shift
		}
		frame[i] = int16(v)
	}
	if s.realtime {
		s.sleep(s.format.FrameDuration(n))
	}
	return frame, nil
}

func (s *WAVSource) Close() error {
	return s.file.Close()
}
