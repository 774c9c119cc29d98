// Package audio turns audio files into the mono float32 PCM the engine consumes.
package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// TargetSampleRate is the rate ffmpeg output is converted to.
const TargetSampleRate = 16000

var (
	// ErrTranscoderMissing is returned when a non-WAV file needs ffmpeg and
	// it is not on PATH.
	ErrTranscoderMissing = errors.New("audio: ffmpeg not found (install with: brew install ffmpeg)")
	ErrEmptyAudio        = errors.New("audio: file contains no samples")
)

// ffmpegBinary is resolved through PATH on every call.
var ffmpegBinary = "ffmpeg"

// Clip is decoded mono PCM normalised to [-1, 1].
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Seconds returns the clip length.
func (c Clip) Seconds() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Head returns at most the first d seconds of the clip.
func (c Clip) Head(seconds float64) Clip {
	n := int(seconds * float64(c.SampleRate))
	if n < 0 {
		n = 0
	}
	if n >= len(c.Samples) {
		return c
	}
	return Clip{Samples: c.Samples[:n], SampleRate: c.SampleRate}
}

// Load decodes path. PCM WAV files are read directly at their native rate;
// everything else is transcoded by ffmpeg to 16 kHz mono.
func Load(ctx context.Context, path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if dec.IsValidFile() && dec.WavAudioFormat == 1 {
		return decodeWAV(dec)
	}
	return transcode(ctx, path)
}

// ReadWAV decodes a PCM WAV stream.
func ReadWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("audio: not a valid WAV stream")
	}
	return decodeWAV(dec)
}

func decodeWAV(dec *wav.Decoder) (Clip, error) {
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	samples := mixdown(buf)
	if len(samples) == 0 {
		return Clip{}, ErrEmptyAudio
	}
	return Clip{Samples: samples, SampleRate: int(dec.SampleRate)}, nil
}

// mixdown averages interleaved channels and scales by the source bit depth.
func mixdown(buf *goaudio.IntBuffer) []float32 {
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil
	}
	channels := max(buf.Format.NumChannels, 1)
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	scale := float32(int64(1) << (depth - 1))

	frames := len(buf.Data) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += float32(buf.Data[i*channels+c])
		}
		out[i] = sum / float32(channels) / scale
	}
	return out
}

func transcode(ctx context.Context, path string) (Clip, error) {
	bin, err := exec.LookPath(ffmpegBinary)
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %w", ErrTranscoderMissing, err)
	}

	cmd := exec.CommandContext(ctx, bin,
		"-nostdin",
		"-i", path,
		"-ar", fmt.Sprint(TargetSampleRate),
		"-ac", "1",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: ffmpeg %s: %w: %s", path, err, bytes.TrimSpace(stderr.Bytes()))
	}

	samples := decodePCM16(out)
	if len(samples) == 0 {
		return Clip{}, ErrEmptyAudio
	}
	return Clip{Samples: samples, SampleRate: TargetSampleRate}, nil
}

// decodePCM16 converts little-endian signed 16-bit PCM to float32. A trailing
// odd byte is ignored.
func decodePCM16(raw []byte) []float32 {
	out := make([]float32, len(raw)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return out
}
