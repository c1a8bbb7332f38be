package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"
)

// ErrNotWAV is returned when an upload is not a decodable WAV file.
var ErrNotWAV = errors.New("audio: not a valid WAV file")

// DecodeWAV reads a PCM WAV file into a FrozenBuffer. Multi-channel audio
// is downmixed to mono and sample rates other than SampleRate are
// resampled, so the result is always recognizer-ready.
func DecodeWAV(r io.ReadSeeker) (*FrozenBuffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode wav: %w", err)
	}
	if pcm == nil || pcm.Format == nil || len(pcm.Data) == 0 {
		return nil, ErrBufferEmpty
	}

	bits := pcm.SourceBitDepth
	if bits == 0 {
		bits = int(dec.BitDepth)
	}
	if bits == 0 {
		bits = 16
	}
	scale := float64(int(1) << (bits - 1))

	channels := pcm.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm.Data) / channels

	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(pcm.Data[i*channels+ch]) / scale
		}
		samples[i] = float32(sum / float64(channels))
	}

	rate := pcm.Format.SampleRate
	if rate != SampleRate {
		samples, err = resampleTo(samples, rate, SampleRate)
		if err != nil {
			return nil, fmt.Errorf("audio: resample %dHz: %w", rate, err)
		}
	}

	if len(samples) == 0 {
		return nil, ErrBufferEmpty
	}

	return Freeze(samples, SampleRate), nil
}

// resampleTo converts mono samples between rates.
func resampleTo(samples []float32, from, to int) ([]float32, error) {
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, err
	}

	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s)
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, err
	}

	result := make([]float32, len(output))
	for i, s := range output {
		result[i] = float32(s)
	}
	return result, nil
}

// EncodeWAV writes a FrozenBuffer as 16-bit PCM WAV.
func EncodeWAV(w io.WriteSeeker, fb *FrozenBuffer) error {
	samples := fb.Samples()

	enc := wav.NewEncoder(w, fb.SampleRate(), 16, Channels, 1)
	buf := &gaudio.IntBuffer{
		Format: &gaudio.Format{
			NumChannels: Channels,
			SampleRate:  fb.SampleRate(),
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buf.Data[i] = int(clampPCM16(s))
	}

	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// EncodeWAVBytes renders a FrozenBuffer as an in-memory WAV file, for
// HTTP uploads. The wav encoder wants a seeker to patch up chunk sizes,
// hence the seekBuffer.
func EncodeWAVBytes(fb *FrozenBuffer) ([]byte, error) {
	var sb seekBuffer
	if err := EncodeWAV(&sb, fb); err != nil {
		return nil, err
	}
	return sb.buf, nil
}

// seekBuffer is a minimal in-memory io.WriteSeeker.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if need := s.pos + len(p); need > len(s.buf) {
		if need <= cap(s.buf) {
			s.buf = s.buf[:need]
		} else {
			grown := make([]byte, need)
			copy(grown, s.buf)
			s.buf = grown
		}
	}
	copy(s.buf[s.pos:], p)
	s.pos += len(p)
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(s.pos) + offset
	case io.SeekEnd:
		pos = int64(len(s.buf)) + offset
	default:
		return 0, errors.New("audio: bad seek whence")
	}
	if pos < 0 {
		return 0, errors.New("audio: seek before start")
	}
	s.pos = int(pos)
	return pos, nil
}

// SaveDebugCopy writes the utterance to dir with a timestamped name and
// returns the file path. Used when keeping recordings for debugging.
func SaveDebugCopy(dir string, fb *FrozenBuffer) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("recording_%s.wav", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	if err := EncodeWAV(f, fb); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// clampPCM16 converts a float32 sample to int16 with saturation.
func clampPCM16(s float32) int16 {
	v := s * 32767
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}
