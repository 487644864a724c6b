package notes

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/storage"
	"gopkg.in/yaml.v3"
)

// Default composer settings.
const (
	DefaultFolder          = "scribed"
	DefaultAudioFilename   = "recording.webm"
	DefaultNoteFilename    = "transcription.md"
	DefaultTimestampLayout = "2006-01-02 1504"
)

// ComposerOptions configures where notes are written.
type ComposerOptions struct {
	Folder          string
	AudioFilename   string
	NoteFilename    string
	TimestampLayout string
	Frontmatter     bool
	Log             zerolog.Logger
}

// Meta describes how a transcript was produced. Only used for frontmatter.
type Meta struct {
	Provider      string
	Model         string
	Source        string
	Duration      time.Duration
	PostProcessed bool
}

// Record is the set of vault paths written for one transcription.
type Record struct {
	TimestampLabel string `json:"timestamp_label"`
	FolderPath     string `json:"folder_path"`
	AudioPath      string `json:"audio_path"`
	NotePath       string `json:"note_path"`
	Content        string `json:"-"`
	AudioReused    bool   `json:"audio_reused,omitempty"`
	NoteReused     bool   `json:"note_reused,omitempty"`
}

// Composer persists audio and note content into a vault.
type Composer struct {
	vault storage.Vault
	opts  ComposerOptions
	log   zerolog.Logger
}

// NewComposer fills empty options with defaults.
func NewComposer(vault storage.Vault, opts ComposerOptions) *Composer {
	if opts.Folder == "" {
		opts.Folder = DefaultFolder
	}
	if opts.AudioFilename == "" {
		opts.AudioFilename = DefaultAudioFilename
	}
	if opts.NoteFilename == "" {
		opts.NoteFilename = DefaultNoteFilename
	}
	if opts.TimestampLayout == "" {
		opts.TimestampLayout = DefaultTimestampLayout
	}
	return &Composer{
		vault: vault,
		opts:  opts,
		log:   opts.Log.With().Str("component", "composer").Logger(),
	}
}

// Compose writes audio and the note for a session that completed at at.
// Existing files at the computed paths are reused, never replaced.
func (c *Composer) Compose(ctx context.Context, at time.Time, audio []byte, text string, meta Meta) (*Record, error) {
	label := at.Format(c.opts.TimestampLayout)
	rec := &Record{
		TimestampLabel: label,
		FolderPath:     path.Join(c.opts.Folder, label),
	}
	rec.AudioPath = path.Join(rec.FolderPath, c.opts.AudioFilename)
	rec.NotePath = path.Join(rec.FolderPath, c.opts.NoteFilename)

	if err := ensureFolder(ctx, c.vault, c.opts.Folder); err != nil {
		return nil, err
	}
	if err := ensureFolder(ctx, c.vault, rec.FolderPath); err != nil {
		return nil, err
	}

	reused, err := createBinary(ctx, c.vault, rec.AudioPath, audio)
	if err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}
	rec.AudioReused = reused

	content := NoteContent(label, c.opts.AudioFilename, text)
	if c.opts.Frontmatter {
		fm, err := Frontmatter(at, meta)
		if err != nil {
			return nil, err
		}
		content = fm + content
	}

	reused, err = createText(ctx, c.vault, rec.NotePath, content)
	if err != nil {
		return nil, fmt.Errorf("write note: %w", err)
	}
	rec.NoteReused = reused
	if reused {
		existing, err := c.vault.ReadTextFile(ctx, rec.NotePath)
		if err != nil {
			return nil, fmt.Errorf("read existing note: %w", err)
		}
		content = existing
		c.log.Warn().Str("path", rec.NotePath).Msg("note already exists, reusing")
	}
	rec.Content = content

	c.log.Info().
		Str("note", rec.NotePath).
		Int("audio_bytes", len(audio)).
		Bool("audio_reused", rec.AudioReused).
		Msg("note composed")
	return rec, nil
}

// NoteContent renders the fixed note template.
func NoteContent(label, audioFilename, text string) string {
	return fmt.Sprintf("# Transcription %s\n\n![[%s]]\n\n%s", label, audioFilename, text)
}

type frontmatter struct {
	Created       string `yaml:"created"`
	Source        string `yaml:"source,omitempty"`
	Provider      string `yaml:"provider,omitempty"`
	Model         string `yaml:"model,omitempty"`
	Duration      string `yaml:"duration,omitempty"`
	PostProcessed bool   `yaml:"post_processed"`
}

// Frontmatter renders a YAML properties block, fences included.
func Frontmatter(at time.Time, meta Meta) (string, error) {
	fm := frontmatter{
		Created:       at.Format(time.RFC3339),
		Source:        meta.Source,
		Provider:      meta.Provider,
		Model:         meta.Model,
		PostProcessed: meta.PostProcessed,
	}
	if meta.Duration > 0 {
		fm.Duration = meta.Duration.Round(time.Second).String()
	}
	out, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(out)
	b.WriteString("---\n\n")
	return b.String(), nil
}

// ensureFolder creates p unless it already exists. "." and "" are the vault root.
func ensureFolder(ctx context.Context, v storage.Vault, p string) error {
	if p == "" || p == "." || p == "/" {
		return nil
	}
	ok, err := v.FolderExists(ctx, p)
	if err != nil {
		return fmt.Errorf("check folder %s: %w", p, err)
	}
	if ok {
		return nil
	}
	if err := v.CreateFolder(ctx, p); err != nil {
		return fmt.Errorf("create folder %s: %w", p, err)
	}
	return nil
}

// createBinary reports true when the file already existed.
func createBinary(ctx context.Context, v storage.Vault, p string, data []byte) (bool, error) {
	ok, err := v.FileExists(ctx, p)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	err = v.CreateBinaryFile(ctx, p, data)
	if errors.Is(err, storage.ErrExists) {
		return true, nil
	}
	return false, err
}

func createText(ctx context.Context, v storage.Vault, p, content string) (bool, error) {
	ok, err := v.FileExists(ctx, p)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	err = v.CreateTextFile(ctx, p, content)
	if errors.Is(err, storage.ErrExists) {
		return true, nil
	}
	return false, err
}
