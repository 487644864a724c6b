package pipeline

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/session"
)

// User-facing status messages.
const (
	MsgRecordingStarted = "Recording started"
	MsgFinalizing       = "Stopping recording... Finalizing transcription..."
	MsgComplete         = "Transcription complete!"
	MsgFailedPrefix     = "Transcription failed: "
	MsgStartFailed      = "Error starting recording: "
	MsgCaptureLost      = "Recording stopped: "
	MsgDiscarded        = "Recording discarded"
	MsgImporting        = "Transcribing imported audio..."
)

// Level separates failures from progress.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Message is one status update shown to the user.
type Message struct {
	Text  string        `json:"message"`
	Level Level         `json:"level"`
	State session.State `json:"state"`
	Time  time.Time     `json:"time"`
}

// Notifier delivers status messages. Implementations must not block.
type Notifier interface {
	Notify(Message)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Message)

func (f NotifierFunc) Notify(m Message) { f(m) }

// Notifiers fans a message out to each non-nil notifier in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(m Message) {
	for _, n := range ns {
		if n != nil {
			n.Notify(m)
		}
	}
}

// LogNotifier writes messages to a logger.
type LogNotifier struct {
	Log zerolog.Logger
}

func (l LogNotifier) Notify(m Message) {
	ev := l.Log.Info()
	if m.Level == LevelError {
		ev = l.Log.Error()
	}
	ev.Str("state", m.State.String()).Msg(m.Text)
}
