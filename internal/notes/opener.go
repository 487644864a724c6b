package notes

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Opener shows a freshly written note to the user.
type Opener interface {
	Open(ctx context.Context, notePath string) error
}

// NopOpener ignores open requests.
type NopOpener struct{}

func (NopOpener) Open(context.Context, string) error { return nil }

// CommandOpener runs an external command (xdg-open, an editor, an obsidian://
// URI handler) with the note's absolute path. A {path} placeholder in the
// command is replaced; otherwise the path is appended as the last argument.
type CommandOpener struct {
	Command string
	Root    string
	Log     zerolog.Logger
}

func (o CommandOpener) Open(ctx context.Context, notePath string) error {
	args := o.Args(notePath)
	if len(args) == 0 {
		return nil
	}
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", notePath, err)
	}
	o.Log.Debug().Strs("args", args).Int("pid", cmd.Process.Pid).Msg("opened note")
	// The viewer outlives the pipeline; reap it in the background.
	go cmd.Wait()
	return nil
}

// Args builds the command line for notePath.
func (o CommandOpener) Args(notePath string) []string {
	fields := strings.Fields(o.Command)
	if len(fields) == 0 {
		return nil
	}
	full := filepath.Join(o.Root, filepath.FromSlash(notePath))
	replaced := false
	for i, f := range fields {
		if strings.Contains(f, "{path}") {
			fields[i] = strings.ReplaceAll(f, "{path}", full)
			replaced = true
		}
	}
	if !replaced {
		fields = append(fields, full)
	}
	return fields
}
