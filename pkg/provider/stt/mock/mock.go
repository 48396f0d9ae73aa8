// Package mock provides test doubles for the stt package interfaces.
//
// Use [Provider] to verify StartStream configuration and [Session] to push
// scripted transcripts into a pipeline under test:
//
//	sess := mock.NewSession()
//	prov := &mock.Provider{Session: sess}
//	// ... start the pipeline ...
//	sess.PushFinal(stt.Transcript{Text: "hello world", IsFinal: true, Confidence: 0.9})
package mock

import (
	"context"
	"sync"

	"github.com/cadenza-audio/cadenza/pkg/provider/stt"
)

// Provider is a mock implementation of [stt.Provider].
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. If nil, StartStream returns a new
	// default Session each call.
	Session stt.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records the StreamConfig of every call in order.
	StartStreamCalls []stt.StreamConfig

	failNext int
	failErr  error
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, cfg)
	if p.failNext > 0 {
		p.failNext--
		return nil, p.failErr
	}
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// FailStartStreams makes the next n StartStream calls return err before the
// provider resumes handing out sessions.
func (p *Provider) FailStartStreams(n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext, p.failErr = n, err
}

// SetSession replaces the session returned by subsequent StartStream calls.
func (p *Provider) SetSession(s stt.SessionHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Session = s
}

// StartStreamCount returns how many times StartStream has been called.
func (p *Provider) StartStreamCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

var _ stt.Provider = (*Provider)(nil)

// Session is a scriptable [stt.SessionHandle]. Tests feed transcripts through
// PushInterim and PushFinal and inspect submitted audio via SendAudioCalls.
type Session struct {
	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SendAudioCalls records a copy of every chunk passed to SendAudio.
	SendAudioCalls [][]byte

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	interims chan stt.Transcript
	finals   chan stt.Transcript
	closed   bool
}

// NewSession returns an open mock session with buffered transcript channels.
func NewSession() *Session {
	return &Session{
		interims: make(chan stt.Transcript, 16),
		finals:   make(chan stt.Transcript, 16),
	}
}

// SendAudio records the chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, cp)
	return s.SendAudioErr
}

// SendAudioCount returns how many chunks have been submitted so far.
func (s *Session) SendAudioCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// Interims returns the interim transcript channel.
func (s *Session) Interims() <-chan stt.Transcript { return s.interims }

// Finals returns the final transcript channel.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// PushInterim emits an interim transcript to the consumer.
// Returns false if the session is closed.
func (s *Session) PushInterim(t stt.Transcript) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.interims <- t
	return true
}

// PushFinal emits a final transcript to the consumer.
// Returns false if the session is closed.
func (s *Session) PushFinal(t stt.Transcript) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.finals <- t
	return true
}

// Close records the call and closes both transcript channels.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		close(s.interims)
		close(s.finals)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ stt.SessionHandle = (*Session)(nil)
