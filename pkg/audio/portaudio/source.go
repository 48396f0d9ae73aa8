// Package portaudio implements [audio.MicrophoneSource] using the PortAudio
// bindings, capturing mono int16 PCM from the default input device.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/cadenza-audio/cadenza/pkg/audio"
)

// Source opens capture streams on the default input device. A Source supports
// one open stream at a time.
type Source struct {
	mu     sync.Mutex
	active bool
}

var _ audio.MicrophoneSource = (*Source)(nil)

// New returns a Source. PortAudio itself is initialised per stream.
func New() *Source { return &Source{} }

// Open starts capturing with the given format. It fails with
// [audio.ErrDeviceBusy] when a stream is already open and with
// [audio.ErrNoInputDevice] when PortAudio cannot provide a default input.
func (s *Source) Open(ctx context.Context, cfg audio.CaptureConfig) (audio.CaptureStream, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("portaudio: invalid capture config %+v", cfg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil, audio.ErrDeviceBusy
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	buf := make([]int16, cfg.FrameSize)
	st, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), cfg.FrameSize, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", audio.ErrNoInputDevice, err)
	}
	if err := st.Start(); err != nil {
		_ = st.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}

	cs := &captureStream{
		owner:  s,
		stream: st,
		buf:    buf,
		rate:   cfg.SampleRate,
		frames: make(chan audio.Frame, 8),
		done:   make(chan struct{}),
	}
	s.active = true

	cs.wg.Add(1)
	go cs.readLoop(ctx)
	return cs, nil
}

func (s *Source) release() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

type captureStream struct {
	owner  *Source
	stream *portaudio.Stream
	buf    []int16
	rate   int

	frames chan audio.Frame
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

var _ audio.CaptureStream = (*captureStream)(nil)

// Frames returns the channel delivering captured audio.
func (c *captureStream) Frames() <-chan audio.Frame { return c.frames }

// readLoop blocks on the device and fans frames out to the consumer. It exits
// on Close, context cancellation, or a device read failure.
func (c *captureStream) readLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.frames)

	start := time.Now()
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := c.stream.Read(); err != nil {
			select {
			case <-c.done:
			default:
				slog.Warn("portaudio read failed, ending capture", "err", err)
			}
			return
		}

		pcm := make([]int16, len(c.buf))
		copy(pcm, c.buf)
		frame := audio.Frame{PCM: pcm, SampleRate: c.rate, Timestamp: time.Since(start)}

		select {
		case c.frames <- frame:
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the device and releases it back to the Source. Safe to call
// more than once.
func (c *captureStream) Close() error {
	var errs []error
	c.once.Do(func() {
		close(c.done)
		if err := c.stream.Abort(); err != nil {
			errs = append(errs, err)
		}
		c.wg.Wait()
		if err := c.stream.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := portaudio.Terminate(); err != nil {
			errs = append(errs, err)
		}
		c.owner.release()
	})
	return errors.Join(errs...)
}
