package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/metrics"
	"github.com/snarg/scribe/internal/session"
)

// Controller is the context object every front end (HTTP, MQTT, TUI, inbox)
// drives. It owns the single recording session and serializes pipeline runs.
type Controller struct {
	session  *session.Session
	pipeline *Pipeline
	notifier Notifier
	now      func() time.Time
	log      zerolog.Logger

	runMu sync.Mutex // one pipeline run at a time
}

// ControllerOptions wires a Controller.
type ControllerOptions struct {
	Session  *session.Session
	Pipeline *Pipeline
	Notifier Notifier
	Log      zerolog.Logger
}

func NewController(opts ControllerOptions) *Controller {
	n := opts.Notifier
	if n == nil {
		n = Notifiers(nil)
	}
	return &Controller{
		session:  opts.Session,
		pipeline: opts.Pipeline,
		notifier: n,
		now:      time.Now,
		log:      opts.Log.With().Str("component", "controller").Logger(),
	}
}

// Start begins a recording.
func (c *Controller) Start(ctx context.Context) (session.Status, error) {
	st, err := c.session.Start(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrInvalidState) {
			metrics.RecordingsTotal.WithLabelValues("capture_failed").Inc()
			c.notify(MsgStartFailed+err.Error(), LevelError)
		}
		return st, err
	}
	metrics.RecordingsTotal.WithLabelValues("started").Inc()
	c.notify(MsgRecordingStarted, LevelInfo)
	return st, nil
}

// StopAndTranscribe ends the recording and runs the pipeline on its audio.
// With no recording in progress it returns session.ErrNoSession and has no
// other effect.
func (c *Controller) StopAndTranscribe(ctx context.Context) (*Outcome, error) {
	rec, err := c.session.Stop(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrInvalidState) {
			c.notify(MsgFailedPrefix+err.Error(), LevelError)
		}
		return nil, err
	}
	metrics.RecordingsTotal.WithLabelValues("saved").Inc()
	metrics.RecordingDuration.Observe(rec.EndedAt.Sub(rec.StartedAt).Seconds())
	c.notify(MsgFinalizing, LevelInfo)

	return c.run(ctx, Job{
		SessionID: rec.ID,
		Source:    SourceRecording,
		Audio:     rec.Audio,
		MimeType:  rec.MimeType,
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
	})
}

// Discard ends the recording and drops its audio.
func (c *Controller) Discard(ctx context.Context) error {
	rec, err := c.session.Stop(ctx)
	if err != nil {
		return err
	}
	metrics.RecordingsTotal.WithLabelValues("discarded").Inc()
	c.log.Info().Str("session_id", rec.ID).Int("bytes", len(rec.Audio)).Msg("recording discarded")
	c.notify(MsgDiscarded, LevelInfo)
	return nil
}

// Toggle starts a recording when idle and stops and transcribes otherwise.
func (c *Controller) Toggle(ctx context.Context) error {
	if c.session.Active() {
		_, err := c.StopAndTranscribe(ctx)
		return err
	}
	_, err := c.Start(ctx)
	return err
}

// Import runs the pipeline on audio that was not recorded by the session.
func (c *Controller) Import(ctx context.Context, job Job) (*Outcome, error) {
	job.Source = SourceImport
	if job.EndedAt.IsZero() {
		job.EndedAt = c.now()
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = job.EndedAt
	}
	c.notify(MsgImporting, LevelInfo)
	return c.run(ctx, job)
}

// Status reports the session state.
func (c *Controller) Status() session.Status { return c.session.Status() }

// CaptureFailed is the session's OnFailure hook: the device died mid-recording
// and the session is already back to Idle.
func (c *Controller) CaptureFailed(err error) {
	metrics.RecordingsTotal.WithLabelValues("capture_failed").Inc()
	c.notify(MsgCaptureLost+err.Error(), LevelError)
}

// Recording, ElapsedSeconds and BufferedBytes satisfy metrics.LiveStats.
func (c *Controller) Recording() bool { return c.session.Active() }
func (c *Controller) ElapsedSeconds() int {
	return c.session.Status().ElapsedSeconds
}
func (c *Controller) BufferedBytes() int { return c.session.Status().Bytes }

// Pipeline exposes the configured pipeline.
func (c *Controller) Pipeline() *Pipeline { return c.pipeline }

func (c *Controller) run(ctx context.Context, job Job) (*Outcome, error) {
	if job.SessionID == "" {
		job.SessionID = uuid.NewString()
	}
	c.runMu.Lock()
	defer c.runMu.Unlock()

	out, err := c.pipeline.Run(ctx, job)
	if err != nil {
		c.notify(MsgFailedPrefix+err.Error(), LevelError)
		return nil, err
	}
	c.notify(MsgComplete, LevelInfo)
	return out, nil
}

func (c *Controller) notify(text string, level Level) {
	c.notifier.Notify(Message{
		Text:  text,
		Level: level,
		State: c.session.Status().State,
		Time:  c.now(),
	})
}
