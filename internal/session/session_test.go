package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/capture"
)

// fakeStream delivers fragments pushed by the test. Stop appends the pending
// fragment (if any) and closes the channel, like a real device flush.
type fakeStream struct {
	out     chan []byte
	pending []byte
	stopErr error
	hang    bool // Stop never flushes

	mu      sync.Mutex
	stopped int
	err     error
	closed  bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{out: make(chan []byte, 32)}
}

func (f *fakeStream) Fragments() <-chan []byte { return f.out }

func (f *fakeStream) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	if !f.closed && !f.hang {
		if len(f.pending) > 0 {
			f.out <- f.pending
		}
		close(f.out)
		f.closed = true
	}
	return f.stopErr
}

func (f *fakeStream) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// fail simulates the device dying mid-recording.
func (f *fakeStream) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	close(f.out)
	f.closed = true
}

type fakeDevice struct {
	streams []*fakeStream
	err     error
}

func (d *fakeDevice) Acquire(ctx context.Context) (capture.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeStream()
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevice) MimeType() string { return "audio/webm" }

func (d *fakeDevice) last() *fakeStream { return d.streams[len(d.streams)-1] }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestSession(dev capture.Device, clock *fakeClock) *Session {
	ids := 0
	return New(dev, Options{
		TickInterval: time.Hour, // tests drive Tick directly
		Now:          clock.Now,
		NewID: func() string {
			ids++
			return "sess-" + string(rune('0'+ids))
		},
		Log: zerolog.Nop(),
	})
}

func TestStop_ConcatenatesAllFragments(t *testing.T) {
	dev := &fakeDevice{}
	clock := &fakeClock{now: time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)}
	s := newTestSession(dev, clock)

	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream := dev.last()
	stream.out <- bytes.Repeat([]byte{'a'}, 100)
	stream.out <- bytes.Repeat([]byte{'b'}, 200)
	stream.out <- bytes.Repeat([]byte{'c'}, 50)
	stream.pending = []byte("tail")

	clock.Advance(7 * time.Second)
	rec, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := append(append(append(bytes.Repeat([]byte{'a'}, 100), bytes.Repeat([]byte{'b'}, 200)...), bytes.Repeat([]byte{'c'}, 50)...), "tail"...)
	if !bytes.Equal(rec.Audio, want) {
		t.Errorf("payload length = %d, want %d (in delivery order)", len(rec.Audio), len(want))
	}
	if rec.Fragments != 4 {
		t.Errorf("Fragments = %d, want 4", rec.Fragments)
	}
	if rec.ElapsedSeconds != 7 {
		t.Errorf("ElapsedSeconds = %d, want 7", rec.ElapsedSeconds)
	}
	if rec.MimeType != "audio/webm" {
		t.Errorf("MimeType = %q", rec.MimeType)
	}
	if stream.stopped != 1 {
		t.Errorf("stream stopped %d times, want 1", stream.stopped)
	}
	if st := s.Status(); st.State != StateIdle {
		t.Errorf("state after Stop = %v, want idle", st.State)
	}
}

func TestStart_WhileRecordingFails(t *testing.T) {
	dev := &fakeDevice{}
	s := newTestSession(dev, &fakeClock{now: time.Unix(0, 0)})

	first, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	dev.last().out <- []byte("x")

	_, err = s.Start(context.Background())
	if !errors.Is(err, ErrAlreadyRecording) || !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Start err = %v, want ErrAlreadyRecording", err)
	}
	if len(dev.streams) != 1 {
		t.Errorf("device acquired %d times, want 1", len(dev.streams))
	}
	st := s.Status()
	if st.State != StateRecording || st.ID != first.ID {
		t.Errorf("existing session altered: %+v", st)
	}

	rec, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if string(rec.Audio) != "x" {
		t.Errorf("payload = %q, want x", rec.Audio)
	}
}

func TestStop_WhileIdleFails(t *testing.T) {
	dev := &fakeDevice{}
	s := newTestSession(dev, &fakeClock{now: time.Unix(0, 0)})

	rec, err := s.Stop(context.Background())
	if !errors.Is(err, ErrNoSession) || !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
	if rec != nil {
		t.Error("expected nil recording")
	}
	if len(dev.streams) != 0 {
		t.Error("Stop from idle touched the device")
	}
	if st := s.Status(); st.State != StateIdle || st.LastError != "" {
		t.Errorf("status changed: %+v", st)
	}
}

func TestStart_DeviceUnavailable(t *testing.T) {
	dev := &fakeDevice{err: errors.New("permission denied")}
	s := newTestSession(dev, &fakeClock{now: time.Unix(0, 0)})

	_, err := s.Start(context.Background())
	if !errors.Is(err, capture.ErrCapture) {
		t.Fatalf("err = %v, want capture.ErrCapture", err)
	}
	if s.Active() {
		t.Error("session should remain idle")
	}
}

func TestTick_AdvancesOnlyWhileRecording(t *testing.T) {
	dev := &fakeDevice{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := newTestSession(dev, clock)

	clock.Advance(5 * time.Second)
	s.Tick()
	if st := s.Status(); st.ElapsedSeconds != 0 {
		t.Errorf("idle elapsed = %d, want 0", st.ElapsedSeconds)
	}

	if _, err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	// No fragment has arrived; elapsed still follows the wall clock.
	clock.Advance(3*time.Second + 400*time.Millisecond)
	s.Tick()
	if st := s.Status(); st.ElapsedSeconds != 3 {
		t.Errorf("elapsed = %d, want 3", st.ElapsedSeconds)
	}

	if _, err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	clock.Advance(10 * time.Second)
	s.Tick()
	if st := s.Status(); st.ElapsedSeconds != 0 {
		t.Errorf("elapsed after stop = %d, want 0", st.ElapsedSeconds)
	}
}

func TestDeviceFailure_ReturnsToIdle(t *testing.T) {
	dev := &fakeDevice{}
	failed := make(chan error, 1)
	s := New(dev, Options{
		TickInterval: time.Hour,
		OnFailure:    func(err error) { failed <- err },
		Log:          zerolog.Nop(),
	})

	if _, err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	dev.last().out <- []byte("partial")
	dev.last().fail(errors.New("device unplugged"))

	select {
	case err := <-failed:
		if !errors.Is(err, capture.ErrCapture) {
			t.Errorf("failure err = %v, want ErrCapture", err)
		}
		if !strings.Contains(err.Error(), "device unplugged") {
			t.Errorf("failure err = %v, want device message kept", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnFailure not called")
	}
	if s.Active() {
		t.Error("session should be idle after device failure")
	}
	if _, err := s.Stop(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Stop after failure err = %v, want ErrNoSession", err)
	}
	if st := s.Status(); st.LastError == "" {
		t.Error("LastError not recorded")
	}
}

func TestStop_StreamErrorIsCaptureError(t *testing.T) {
	dev := &fakeDevice{}
	s := newTestSession(dev, &fakeClock{now: time.Unix(0, 0)})
	if _, err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	dev.last().stopErr = errors.New("release failed")

	_, err := s.Stop(context.Background())
	if !errors.Is(err, capture.ErrCapture) {
		t.Fatalf("err = %v, want ErrCapture", err)
	}
	if s.Active() {
		t.Error("session should be idle after failed stop")
	}
}

func TestStop_ContextCancelledWhileFlushing(t *testing.T) {
	dev := &fakeDevice{}
	s := newTestSession(dev, &fakeClock{now: time.Unix(0, 0)})
	if _, err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	stream := dev.last()
	stream.hang = true
	stream.out <- []byte("late")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	rec, err := s.Stop(ctx)
	if rec != nil {
		t.Errorf("recording = %+v, want nil", rec)
	}
	if !errors.Is(err, capture.ErrCapture) {
		t.Fatalf("err = %v, want ErrCapture", err)
	}
	if s.Active() {
		t.Error("session should be idle after abandoned stop")
	}
	if st := s.Status(); st.LastError == "" {
		t.Error("LastError not recorded")
	}

	// The abandoned stream finishing later must not disturb the next session.
	stream.fail(nil)
	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	dev.last().out <- []byte("fresh")
	rec, err = s.Stop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Audio) != "fresh" {
		t.Errorf("audio = %q, want %q", rec.Audio, "fresh")
	}
}

func TestRestartAfterStop(t *testing.T) {
	dev := &fakeDevice{}
	s := newTestSession(dev, &fakeClock{now: time.Unix(0, 0)})

	if _, err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	dev.last().out <- []byte("first")
	if _, err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	st, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if st.ID != "sess-2" {
		t.Errorf("ID = %q, want sess-2", st.ID)
	}
	dev.last().out <- []byte("second")
	rec, err := s.Stop(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Audio) != "second" {
		t.Errorf("payload = %q, want only the second session's audio", rec.Audio)
	}
}

func TestState_MarshalText(t *testing.T) {
	for st, want := range map[State]string{StateIdle: "idle", StateRecording: "recording", StateStopping: "stopping"} {
		b, _ := st.MarshalText()
		if string(b) != want {
			t.Errorf("%d → %q, want %q", st, b, want)
		}
	}
}
