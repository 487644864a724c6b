// Package session implements the recording lifecycle: Idle → Recording →
// Stopping → Idle, with a device-failure exit back to Idle.
//
// A Session owns exactly one capture stream at a time. Fragments are drained
// from the stream's bounded channel into a capture.Buffer by a single
// goroutine, and an elapsed-time ticker runs alongside it; both touch only the
// session's own buffer and counters.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/capture"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	// ErrInvalidState is returned for operations not valid in the current state.
	ErrInvalidState = errors.New("invalid session state")

	// ErrAlreadyRecording rejects a second Start while a session is active.
	ErrAlreadyRecording = fmt.Errorf("%w: a recording is already in progress", ErrInvalidState)

	// ErrNoSession rejects Stop when nothing is recording.
	ErrNoSession = fmt.Errorf("%w: no recording in progress", ErrInvalidState)
)

// Status is a point-in-time view of the session.
type Status struct {
	State          State     `json:"state"`
	ID             string    `json:"session_id,omitempty"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	Bytes          int       `json:"bytes"`
	Fragments      int       `json:"fragments"`
	LastError      string    `json:"last_error,omitempty"`
}

// Recording is the finalized payload returned by Stop.
type Recording struct {
	ID             string
	StartedAt      time.Time
	EndedAt        time.Time
	ElapsedSeconds int
	MimeType       string
	Fragments      int
	Audio          []byte
}

// Options configures a Session. Zero values get sensible defaults.
type Options struct {
	TickInterval time.Duration    // elapsed-time refresh, default 1s
	Now          func() time.Time // clock, default time.Now
	NewID        func() string    // session ID generator, default uuid
	OnFailure    func(error)      // called after a device failure returned the session to Idle
	Log          zerolog.Logger
}

// Session is the single recording session of the process.
type Session struct {
	device capture.Device
	opts   Options
	log    zerolog.Logger

	mu        sync.Mutex
	state     State
	id        string
	startedAt time.Time
	elapsed   int
	buf       *capture.Buffer
	stream    capture.Stream
	drained   chan struct{}
	quit      chan struct{}
	lastErr   error
}

// New creates an idle session recording from device.
func New(device capture.Device, opts Options) *Session {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	return &Session{
		device: device,
		opts:   opts,
		log:    opts.Log.With().Str("component", "session").Logger(),
		buf:    capture.NewBuffer(),
	}
}

// Start acquires the device and begins recording. It fails with
// ErrAlreadyRecording if a session is active and with capture.ErrCapture if the
// device cannot be acquired; in both cases the session state is unchanged.
func (s *Session) Start(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRecording:
		return s.statusLocked(), ErrAlreadyRecording
	case StateStopping:
		return s.statusLocked(), fmt.Errorf("%w: previous recording is still stopping", ErrInvalidState)
	}

	stream, err := s.device.Acquire(ctx)
	if err != nil {
		if !errors.Is(err, capture.ErrCapture) {
			err = fmt.Errorf("%w: %v", capture.ErrCapture, err)
		}
		s.lastErr = err
		return s.statusLocked(), err
	}

	s.id = s.opts.NewID()
	s.startedAt = s.opts.Now()
	s.elapsed = 0
	s.lastErr = nil
	s.buf = capture.NewBuffer()
	s.stream = stream
	s.drained = make(chan struct{})
	s.quit = make(chan struct{})
	s.state = StateRecording

	go s.drain(stream, s.buf, s.drained)
	go s.tickLoop(s.quit)

	s.log.Info().Str("session_id", s.id).Msg("recording started")
	return s.statusLocked(), nil
}

// Tick recomputes the elapsed time from the wall clock. It only has an effect
// while recording and does not depend on fragment arrival.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return
	}
	s.elapsed = int(s.opts.Now().Sub(s.startedAt) / time.Second)
}

// Stop ends the recording and returns every fragment delivered since Start,
// concatenated in delivery order. Stopping an idle session fails with
// ErrNoSession and has no side effects. If ctx ends before the device has
// flushed, the recording is abandoned and the session returns to Idle.
func (s *Session) Stop(ctx context.Context) (*Recording, error) {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.mu.Unlock()
		return nil, ErrNoSession
	case StateStopping:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: stop already in progress", ErrInvalidState)
	}
	s.state = StateStopping
	stream, drained, id := s.stream, s.drained, s.id
	s.mu.Unlock()

	s.log.Debug().Str("session_id", id).Msg("stopping recording")

	// Stop flushes the device's pending fragment and closes the channel; the
	// drain goroutine finishes once everything has been appended.
	stopErr := stream.Stop()
	select {
	case <-drained:
	case <-ctx.Done():
		err := fmt.Errorf("%w: stop abandoned: %v", capture.ErrCapture, ctx.Err())
		s.mu.Lock()
		s.lastErr = err
		s.teardownLocked()
		s.mu.Unlock()
		s.log.Warn().Err(err).Str("session_id", id).Msg("recording abandoned while waiting for device flush")
		return nil, err
	}
	if stopErr == nil {
		stopErr = stream.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	endedAt := s.opts.Now()
	rec := &Recording{
		ID:             s.id,
		StartedAt:      s.startedAt,
		EndedAt:        endedAt,
		ElapsedSeconds: int(endedAt.Sub(s.startedAt) / time.Second),
		MimeType:       s.device.MimeType(),
		Fragments:      s.buf.Count(),
		Audio:          s.buf.Bytes(),
	}
	s.teardownLocked()

	if stopErr != nil {
		if !errors.Is(stopErr, capture.ErrCapture) {
			stopErr = fmt.Errorf("%w: %v", capture.ErrCapture, stopErr)
		}
		s.lastErr = stopErr
		s.log.Error().Err(stopErr).Str("session_id", rec.ID).Msg("capture failed while stopping")
		return nil, stopErr
	}

	s.log.Info().
		Str("session_id", rec.ID).
		Int("bytes", len(rec.Audio)).
		Int("fragments", rec.Fragments).
		Int("elapsed_s", rec.ElapsedSeconds).
		Msg("recording stopped")
	return rec, nil
}

// Status returns the current state and counters.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Active reports whether a recording is in progress.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateIdle
}

func (s *Session) statusLocked() Status {
	st := Status{State: s.state}
	if s.state != StateIdle {
		st.ID = s.id
		st.StartedAt = s.startedAt
		st.ElapsedSeconds = s.elapsed
		st.Bytes = s.buf.Len()
		st.Fragments = s.buf.Count()
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// teardownLocked stops the ticker and returns the session to Idle.
func (s *Session) teardownLocked() {
	if s.quit != nil {
		close(s.quit)
		s.quit = nil
	}
	s.stream = nil
	s.drained = nil
	// A drain goroutine abandoned by Stop may still hold the old buffer.
	s.buf = capture.NewBuffer()
	s.state = StateIdle
}

func (s *Session) drain(stream capture.Stream, buf *capture.Buffer, drained chan struct{}) {
	for f := range stream.Fragments() {
		buf.Append(f)
	}
	close(drained)

	s.mu.Lock()
	if s.stream != stream || s.state != StateRecording {
		// Ended by Stop.
		s.mu.Unlock()
		return
	}
	err := stream.Err()
	if err == nil {
		err = fmt.Errorf("%w: device stream closed unexpectedly", capture.ErrCapture)
	} else if !errors.Is(err, capture.ErrCapture) {
		err = fmt.Errorf("%w: %v", capture.ErrCapture, err)
	}
	id := s.id
	s.lastErr = err
	s.teardownLocked()
	s.mu.Unlock()

	stream.Stop()
	s.log.Error().Err(err).Str("session_id", id).Msg("capture device failed, recording discarded")
	if s.opts.OnFailure != nil {
		s.opts.OnFailure(err)
	}
}

func (s *Session) tickLoop(quit <-chan struct{}) {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Tick()
		case <-quit:
			return
		}
	}
}
