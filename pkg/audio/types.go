package audio

import (
	"encoding/binary"
	"time"
)

// Frame is a single chunk of mono PCM audio flowing through the pipeline.
// Frames are the atomic unit of capture — read from the microphone, analysed
// for voice activity and pitch, and forwarded to the transcript provider.
type Frame struct {
	// PCM holds signed 16-bit samples.
	PCM []int16

	// SampleRate in Hz (e.g., 16000 for STT-optimised capture, 48000 for
	// full-quality devices).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.PCM)) * time.Second / time.Duration(f.SampleRate)
}

// Bytes returns the frame's samples as little-endian 16-bit PCM, the wire
// format expected by transcript providers.
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f.PCM)*2)
	for i, s := range f.PCM {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Float64s returns the frame's samples normalised to [-1, 1], the form used
// by the RMS and autocorrelation analysis stages.
func (f Frame) Float64s() []float64 {
	out := make([]float64, len(f.PCM))
	for i, s := range f.PCM {
		out[i] = float64(s) / 32768.0
	}
	return out
}
