package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// stopGrace is how long a capture process gets to finalize its container after
// being interrupted before it is killed.
const stopGrace = 5 * time.Second

// CommandDevice records by running an external program (ffmpeg, arecord,
// parec...) that writes encoded audio to stdout.
type CommandDevice struct {
	name     string
	args     []string
	mimeType string
	interval time.Duration
	queue    int
	log      zerolog.Logger
}

// CommandDeviceOptions configures a CommandDevice.
type CommandDeviceOptions struct {
	Command  string        // whitespace-separated program and arguments
	MimeType string        // e.g. "audio/webm"
	Interval time.Duration // fragment delivery interval
	Queue    int           // fragment channel capacity
	Log      zerolog.Logger
}

// NewCommandDevice parses the command line and returns a device for it.
func NewCommandDevice(opts CommandDeviceOptions) (*CommandDevice, error) {
	fields := strings.Fields(opts.Command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty capture command", ErrCapture)
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Queue <= 0 {
		opts.Queue = 64
	}
	return &CommandDevice{
		name:     fields[0],
		args:     fields[1:],
		mimeType: opts.MimeType,
		interval: opts.Interval,
		queue:    opts.Queue,
		log:      opts.Log.With().Str("component", "capture").Logger(),
	}, nil
}

func (d *CommandDevice) MimeType() string { return d.mimeType }

// Acquire starts the capture process.
func (d *CommandDevice) Acquire(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := exec.LookPath(d.name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}

	// Not bound to ctx: the process outlives the request that started it.
	cmd := exec.Command(path, d.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrCapture, err)
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrCapture, d.name, err)
	}
	d.log.Info().Str("command", d.name).Int("pid", cmd.Process.Pid).Msg("capture started")

	s := &commandStream{
		cmd:      cmd,
		stdout:   stdout,
		stderr:   stderr,
		out:      make(chan []byte, d.queue),
		interval: d.interval,
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
		log:      d.log,
	}
	go s.read()
	go s.deliver()
	return s, nil
}

type commandStream struct {
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   *tailBuffer
	out      chan []byte
	interval time.Duration
	log      zerolog.Logger

	mu       sync.Mutex
	pending  []byte
	stopping bool
	err      error

	readDone chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

func (s *commandStream) Fragments() <-chan []byte { return s.out }

func (s *commandStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *commandStream) read() {
	defer close(s.readDone)
	buf := make([]byte, 32*1024)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.pending = append(s.pending, buf[:n]...)
			s.mu.Unlock()
		}
		if err == nil {
			continue
		}
		s.mu.Lock()
		if !s.stopping {
			if errors.Is(err, io.EOF) {
				s.err = fmt.Errorf("%w: capture process exited: %s", ErrCapture, s.stderr.String())
			} else {
				s.err = fmt.Errorf("%w: read: %v", ErrCapture, err)
			}
		}
		s.mu.Unlock()
		return
	}
}

// deliver moves pending bytes onto the fragment channel every interval and
// once more after the process output is exhausted.
func (s *commandStream) deliver() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.readDone:
			s.flush()
			if err := s.cmd.Wait(); err != nil {
				s.log.Debug().Err(err).Msg("capture process exit")
			}
			close(s.out)
			return
		}
	}
}

func (s *commandStream) flush() {
	s.mu.Lock()
	chunk := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(chunk) > 0 {
		s.out <- chunk
	}
}

// Stop interrupts the capture process so it can finalize the container, waits
// for the remaining output to be delivered, and kills it if it does not exit.
func (s *commandStream) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()

		if err := s.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.log.Debug().Err(err).Msg("interrupt capture process")
		}

		select {
		case <-s.done:
		case <-time.After(stopGrace):
			s.log.Warn().Dur("grace", stopGrace).Msg("capture process did not exit, killing")
			if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				s.stopErr = fmt.Errorf("%w: kill: %v", ErrCapture, err)
			}
			<-s.done
		}
		s.log.Info().Msg("capture stopped")
	})
	return s.stopErr
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}
