package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/capture"
	"github.com/snarg/scribe/internal/session"
	"github.com/snarg/scribe/internal/transcribe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanStream struct {
	out  chan []byte
	once sync.Once
}

func (s *chanStream) Fragments() <-chan []byte { return s.out }
func (s *chanStream) Stop() error {
	s.once.Do(func() { close(s.out) })
	return nil
}
func (s *chanStream) Err() error { return nil }

type chanDevice struct {
	stream *chanStream
	err    error
}

func (d *chanDevice) Acquire(context.Context) (capture.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.stream = &chanStream{out: make(chan []byte, 16)}
	return d.stream, nil
}

func (d *chanDevice) MimeType() string { return "audio/webm" }

type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) Notify(m Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Text
	}
	return out
}

func newController(t *testing.T, dev capture.Device) (*Controller, *harness, *recorder) {
	t.Helper()
	h := newHarness(t, 0, "")
	rec := &recorder{}
	sess := session.New(dev, session.Options{TickInterval: time.Hour, Log: zerolog.Nop()})
	c := NewController(ControllerOptions{
		Session:  sess,
		Pipeline: h.pipeline,
		Notifier: Notifiers{rec, LogNotifier{Log: zerolog.Nop()}},
		Log:      zerolog.Nop(),
	})
	return c, h, rec
}

func TestControllerRecordAndTranscribe(t *testing.T) {
	ctx := context.Background()
	dev := &chanDevice{}
	c, h, rec := newController(t, dev)

	st, err := c.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.StateRecording, st.State)
	assert.True(t, c.Recording())

	for _, n := range []int{100, 200, 50} {
		dev.stream.out <- make([]byte, n)
	}

	out, err := c.StopAndTranscribe(ctx)
	require.NoError(t, err)
	require.Len(t, h.provider.calls, 1)
	assert.Len(t, h.provider.calls[0].Audio, 350)
	assert.Equal(t, "audio/webm", h.provider.calls[0].MimeType)
	assert.Equal(t, SourceRecording, out.Source)
	assert.Equal(t, "hello", out.Result.RawText)
	assert.Equal(t, session.StateIdle, c.Status().State)

	assert.Equal(t, []string{MsgRecordingStarted, MsgFinalizing, MsgComplete}, rec.texts())
}

func TestControllerStopWhileIdle(t *testing.T) {
	c, h, rec := newController(t, &chanDevice{})

	out, err := c.StopAndTranscribe(context.Background())
	assert.Nil(t, out)
	assert.ErrorIs(t, err, session.ErrNoSession)
	assert.ErrorIs(t, err, session.ErrInvalidState)
	assert.Empty(t, h.provider.calls)
	assert.Empty(t, rec.texts())
}

func TestControllerDoubleStart(t *testing.T) {
	ctx := context.Background()
	c, _, rec := newController(t, &chanDevice{})

	first, err := c.Start(ctx)
	require.NoError(t, err)
	_, err = c.Start(ctx)
	assert.ErrorIs(t, err, session.ErrAlreadyRecording)
	assert.Equal(t, first.ID, c.Status().ID)
	assert.Equal(t, []string{MsgRecordingStarted}, rec.texts())

	require.NoError(t, c.Discard(ctx))
}

func TestControllerStartCaptureError(t *testing.T) {
	c, _, rec := newController(t, &chanDevice{err: errors.New("permission denied")})

	_, err := c.Start(context.Background())
	assert.ErrorIs(t, err, capture.ErrCapture)
	assert.Equal(t, session.StateIdle, c.Status().State)
	require.Len(t, rec.msgs, 1)
	assert.Equal(t, LevelError, rec.msgs[0].Level)
	assert.Contains(t, rec.msgs[0].Text, MsgStartFailed)
}

func TestControllerFailureMessage(t *testing.T) {
	ctx := context.Background()
	c, h, rec := newController(t, &chanDevice{})
	h.provider.err = &transcribe.ProviderError{Provider: "OpenAI", Message: "Invalid key"}

	_, err := c.Start(ctx)
	require.NoError(t, err)
	_, err = c.StopAndTranscribe(ctx)
	require.Error(t, err)

	texts := rec.texts()
	assert.Equal(t, "Transcription failed: OpenAI API error: Invalid key", texts[len(texts)-1])
}

func TestControllerDiscardAndToggle(t *testing.T) {
	ctx := context.Background()
	c, h, rec := newController(t, &chanDevice{})

	require.NoError(t, c.Toggle(ctx))
	assert.True(t, c.Recording())
	require.NoError(t, c.Discard(ctx))
	assert.False(t, c.Recording())
	assert.Empty(t, h.provider.calls)
	assert.Equal(t, []string{MsgRecordingStarted, MsgDiscarded}, rec.texts())

	assert.ErrorIs(t, c.Discard(ctx), session.ErrNoSession)

	require.NoError(t, c.Toggle(ctx))
	require.NoError(t, c.Toggle(ctx))
	assert.Len(t, h.provider.calls, 1)
}

func TestControllerImport(t *testing.T) {
	c, h, _ := newController(t, &chanDevice{})

	out, err := c.Import(context.Background(), Job{
		Audio:    []byte("ogg audio"),
		MimeType: "audio/ogg",
		Filename: "standup.ogg",
		EndedAt:  ended,
	})
	require.NoError(t, err)
	assert.Equal(t, SourceImport, out.Source)
	assert.NotEmpty(t, out.SessionID)
	assert.Equal(t, "standup.ogg", h.provider.calls[0].Filename)
	assert.Equal(t, "scribed/2025-03-14 0930/transcription.md", out.Note.NotePath)
}
