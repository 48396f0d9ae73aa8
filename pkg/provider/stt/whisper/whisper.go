// Package whisper implements [stt.Provider] using the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.
//
// whisper.cpp is a batch transcriber, not a streaming one, so each session
// buffers incoming PCM, applies an energy-based silence detector to segment
// utterances, and runs inference when an utterance ends or the buffer grows
// too large. Each flushed utterance is emitted once on Interims and once,
// authoritatively, on Finals.
package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/cadenza-audio/cadenza/pkg/provider/stt"
)

const (
	// silenceRMS is the root-mean-square energy (in 16-bit PCM sample units,
	// full scale 32767) below which a chunk counts as silence. 300 is near
	// the noise floor of a conversational-quality microphone.
	silenceRMS = 300.0

	defaultLanguage     = "en"
	defaultSampleRate   = 16000
	defaultSilenceFlush = 500 * time.Millisecond
	defaultMaxUtterance = 10 * time.Second
)

// Provider implements stt.Provider using a locally loaded whisper.cpp model.
// The model is loaded once and shared across all sessions.
type Provider struct {
	model        whisperlib.Model
	language     string
	sampleRate   int
	silenceFlush time.Duration
	maxUtterance time.Duration
}

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a [Provider].
type Option func(*Provider)

// WithLanguage sets the transcription language code (e.g., "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the expected PCM sample rate in Hz. Must match the
// audio delivered via SendAudio. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithSilenceFlush sets the consecutive-silence duration that ends an
// utterance and triggers inference. Defaults to 500 ms.
func WithSilenceFlush(d time.Duration) Option {
	return func(p *Provider) { p.silenceFlush = d }
}

// WithMaxUtterance sets the maximum buffered utterance length before a forced
// flush. Defaults to 10 s.
func WithMaxUtterance(d time.Duration) Option {
	return func(p *Provider) { p.maxUtterance = d }
}

// New loads the whisper.cpp model at modelPath. The caller must call Close
// when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &Provider{
		model:        model,
		language:     defaultLanguage,
		sampleRate:   defaultSampleRate,
		silenceFlush: defaultSilenceFlush,
		maxUtterance: defaultMaxUtterance,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream opens a new transcription session. Each session creates its own
// whisper.cpp context per inference, so multiple sessions can run
// concurrently against the shared model.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	s := &session{
		model:        p.model,
		language:     lang,
		sampleRate:   sr,
		channels:     ch,
		silenceFlush: p.silenceFlush,
		maxUtterance: p.maxUtterance,

		audioCh:  make(chan []byte, 256),
		interims: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		done:     make(chan struct{}),
		started:  time.Now(),
	}
	s.wg.Add(1)
	go s.processLoop(ctx)
	return s, nil
}

// session is a live whisper transcription session. All mutable state driving
// silence detection and buffering is confined to the processLoop goroutine.
type session struct {
	model        whisperlib.Model
	language     string
	sampleRate   int
	channels     int
	silenceFlush time.Duration
	maxUtterance time.Duration

	audioCh  chan []byte
	interims chan stt.Transcript
	finals   chan stt.Transcript

	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	started time.Time
}

var _ stt.SessionHandle = (*session)(nil)

// SendAudio queues a chunk of raw 16-bit little-endian PCM for analysis.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("whisper: session is closed")
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return errors.New("whisper: session is closed")
	}
}

// Interims returns the interim transcript channel.
func (s *session) Interims() <-chan stt.Transcript { return s.interims }

// Finals returns the final transcript channel.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close terminates the session, flushes pending speech, and closes both
// transcript channels. Safe to call more than once.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// processLoop owns silence detection, utterance buffering, and inference
// dispatch.
func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.interims)
	defer close(s.finals)

	var (
		buffer        []byte
		hadSpeech     bool
		silence       time.Duration
		utteranceFrom time.Duration
	)

	bytesPerSec := s.sampleRate * s.channels * 2
	maxBytes := int(s.maxUtterance.Seconds() * float64(bytesPerSec))

	flush := func() {
		if len(buffer) == 0 || !hadSpeech {
			buffer, hadSpeech, silence = nil, false, 0
			return
		}
		pcm := buffer
		from := utteranceFrom
		buffer, hadSpeech, silence = nil, false, 0

		text, confidence, err := s.infer(pcm)
		if err != nil {
			slog.Error("whisper inference failed", "err", err)
			return
		}
		if text == "" {
			return
		}
		t := stt.Transcript{
			Text:       text,
			Confidence: confidence,
			Timestamp:  from,
			Duration:   time.Duration(len(pcm)) * time.Second / time.Duration(bytesPerSec),
		}
		emit(s.interims, t)
		t.IsFinal = true
		emit(s.finals, t)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-s.done:
			flush()
			return
		case chunk, ok := <-s.audioCh:
			if !ok {
				flush()
				return
			}
			chunkDur := time.Duration(len(chunk)) * time.Second / time.Duration(bytesPerSec)
			if pcm16RMS(chunk) < silenceRMS {
				if hadSpeech {
					silence += chunkDur
					buffer = append(buffer, chunk...)
					if silence >= s.silenceFlush {
						flush()
					}
				}
			} else {
				if !hadSpeech {
					utteranceFrom = time.Since(s.started)
				}
				hadSpeech = true
				silence = 0
				buffer = append(buffer, chunk...)
				if maxBytes > 0 && len(buffer) >= maxBytes {
					flush()
				}
			}
		}
	}
}

// infer runs whisper.cpp on the buffered utterance using a fresh context and
// returns the concatenated text and the mean token probability.
func (s *session) infer(pcm []byte) (string, float64, error) {
	samples := pcmToFloat32Mono(pcm, s.channels)

	wctx, err := s.model.NewContext()
	if err != nil {
		return "", 0, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", s.language, "err", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", 0, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts  []string
		pSum   float64
		pCount int
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", 0, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
		for _, tok := range segment.Tokens {
			pSum += float64(tok.P)
			pCount++
		}
	}

	confidence := 0.0
	if pCount > 0 {
		confidence = pSum / float64(pCount)
	}
	return strings.Join(parts, " "), confidence, nil
}

func emit(ch chan stt.Transcript, t stt.Transcript) {
	select {
	case ch <- t:
	default:
	}
}

// pcm16RMS returns the RMS energy of 16-bit little-endian PCM in sample
// units (full scale 32767).
func pcm16RMS(chunk []byte) float64 {
	n := len(chunk) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(chunk[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// pcmToFloat32Mono converts 16-bit little-endian PCM to float32 samples in
// [-1, 1], averaging channels down to mono.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / 2 / channels
	out := make([]float32, 0, frames)
	for f := 0; f < frames; f++ {
		var acc float64
		for c := 0; c < channels; c++ {
			idx := (f*channels + c) * 2
			acc += float64(int16(binary.LittleEndian.Uint16(pcm[idx:])))
		}
		out = append(out, float32(acc/float64(channels)/32768.0))
	}
	return out
}
