package tui

import (
	"time"

	"github.com/snarg/scribe/internal/pipeline"
	"github.com/snarg/scribe/internal/session"
)

// tickMsg refreshes the elapsed display.
type tickMsg time.Time

// StatusMsg carries a pipeline notification into the program.
type StatusMsg struct {
	Message pipeline.Message
}

// startedMsg is the result of starting the recording.
type startedMsg struct {
	Status session.Status
	Err    error
}

// savedMsg is the result of stop and transcribe.
type savedMsg struct {
	Outcome *pipeline.Outcome
	Err     error
}

// discardedMsg is the result of discarding the recording.
type discardedMsg struct {
	Err error
}

// Notifier forwards pipeline messages to a running program. Messages are
// dropped when the buffer is full.
type Notifier struct {
	ch chan pipeline.Message
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan pipeline.Message, 32)}
}

func (n *Notifier) Notify(m pipeline.Message) {
	select {
	case n.ch <- m:
	default:
	}
}
