package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/snarg/scribe/internal/pipeline"
	"github.com/snarg/scribe/internal/session"
)

// Controller is the recording context driven by the modal.
type Controller interface {
	Start(ctx context.Context) (session.Status, error)
	StopAndTranscribe(ctx context.Context) (*pipeline.Outcome, error)
	Discard(ctx context.Context) error
	Status() session.Status
}

// Phase is where the modal is in the recording lifecycle.
type Phase int

const (
	PhaseStarting Phase = iota
	PhaseRecording
	PhaseSaving
	PhaseDone
)

const maxMessages = 6

// Model is the recording modal: "Listening..." with an elapsed clock until
// the user saves or discards.
type Model struct {
	ctx      context.Context
	ctrl     Controller
	notifier *Notifier

	phase    Phase
	elapsed  int
	messages []pipeline.Message
	outcome  *pipeline.Outcome
	err      error
	width    int
}

func New(ctx context.Context, ctrl Controller, notifier *Notifier) Model {
	return Model{ctx: ctx, ctrl: ctrl, notifier: notifier}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(startCmd(m.ctx, m.ctrl), waitForStatus(m.notifier))
}

func startCmd(ctx context.Context, ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		st, err := ctrl.Start(ctx)
		return startedMsg{Status: st, Err: err}
	}
}

func saveCmd(ctx context.Context, ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		out, err := ctrl.StopAndTranscribe(ctx)
		return savedMsg{Outcome: out, Err: err}
	}
}

func discardCmd(ctx context.Context, ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		return discardedMsg{Err: ctrl.Discard(ctx)}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForStatus blocks until the next notification.
func waitForStatus(n *Notifier) tea.Cmd {
	if n == nil {
		return nil
	}
	return func() tea.Msg {
		return StatusMsg{Message: <-n.ch}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case startedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			m.phase = PhaseDone
			return m, tea.Quit
		}
		m.phase = PhaseRecording
		m.elapsed = msg.Status.ElapsedSeconds
		return m, tickCmd()

	case tickMsg:
		if m.phase != PhaseRecording {
			return m, nil
		}
		st := m.ctrl.Status()
		if st.State == session.StateIdle {
			// Capture died; the failure arrives as a StatusMsg.
			m.phase = PhaseDone
			m.err = fmt.Errorf("recording stopped")
			if st.LastError != "" {
				m.err = fmt.Errorf("recording stopped: %s", st.LastError)
			}
			return m, tea.Quit
		}
		m.elapsed = st.ElapsedSeconds
		return m, tickCmd()

	case StatusMsg:
		m.messages = append(m.messages, msg.Message)
		if len(m.messages) > maxMessages {
			m.messages = m.messages[len(m.messages)-maxMessages:]
		}
		return m, waitForStatus(m.notifier)

	case savedMsg:
		m.phase = PhaseDone
		m.outcome = msg.Outcome
		m.err = msg.Err
		return m, tea.Quit

	case discardedMsg:
		m.phase = PhaseDone
		m.err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch m.phase {
	case PhaseRecording:
		switch key {
		case KeyStop, KeyEnter:
			m.phase = PhaseSaving
			return m, saveCmd(m.ctx, m.ctrl)
		case KeyEsc, KeyCtrlC:
			m.phase = PhaseSaving
			return m, discardCmd(m.ctx, m.ctrl)
		}
	case PhaseSaving:
		// The pipeline is writing the note; only a hard interrupt leaves.
		if key == KeyCtrlC {
			return m, tea.Quit
		}
	default:
		if key == KeyCtrlC || key == KeyQuit || key == KeyEsc {
			return m, tea.Quit
		}
	}
	return m, nil
}

// Phase reports the modal phase.
func (m Model) Phase() Phase { return m.phase }

// Outcome is the pipeline result once the note has been saved.
func (m Model) Outcome() *pipeline.Outcome { return m.outcome }

// Err is the error that ended the modal, if any.
func (m Model) Err() error { return m.err }

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("scribe"))
	b.WriteString("\n\n")

	switch m.phase {
	case PhaseStarting:
		b.WriteString(statusStyle.Render("Starting recording..."))
	case PhaseRecording:
		b.WriteString(recordingDotStyle.Render("●"))
		b.WriteString(" Listening...  ")
		b.WriteString(elapsedStyle.Render(FormatElapsed(m.elapsed)))
	case PhaseSaving:
		b.WriteString(statusStyle.Render(pipeline.MsgFinalizing))
	case PhaseDone:
		switch {
		case m.err != nil:
			b.WriteString(errorStyle.Render(m.err.Error()))
		case m.outcome != nil && m.outcome.Note != nil:
			b.WriteString(successStyle.Render(pipeline.MsgComplete))
			b.WriteString("\n")
			b.WriteString(statusStyle.Render(m.outcome.Note.NotePath))
		default:
			b.WriteString(statusStyle.Render(pipeline.MsgDiscarded))
		}
	}

	if len(m.messages) > 0 {
		b.WriteString("\n\n")
		for _, msg := range m.messages {
			line := msg.Time.Format("15:04:05") + "  " + msg.Text
			if msg.Level == pipeline.LevelError {
				b.WriteString(errorStyle.Render(line))
			} else {
				b.WriteString(statusStyle.Render(line))
			}
			b.WriteString("\n")
		}
	}

	if m.phase == PhaseRecording {
		b.WriteString("\n\n")
		b.WriteString(footerKeyStyle.Render("s/enter"))
		b.WriteString(footerDescStyle.Render(" Stop & Save   "))
		b.WriteString(footerKeyStyle.Render("esc"))
		b.WriteString(footerDescStyle.Render(" Discard"))
	}

	return boxStyle.Render(b.String()) + "\n"
}

// FormatElapsed renders seconds as mm:ss. Minutes are not wrapped at 60.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Run shows the modal until the recording is saved or discarded.
func Run(ctx context.Context, ctrl Controller, notifier *Notifier) (Model, error) {
	p := tea.NewProgram(New(ctx, ctrl, notifier), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return Model{}, err
	}
	return final.(Model), nil
}
