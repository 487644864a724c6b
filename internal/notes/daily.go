package notes

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/storage"
)

// Default linker settings.
const (
	DefaultSection    = "## Meetings"
	DefaultLinkFormat = "- [[{path}|Transcription {time}]]"
	DefaultLinkLayout = "15:04"
)

// DailySettings locates daily notes: Folder relative to the vault root and
// a Go time layout for the file name (without .md).
type DailySettings struct {
	Folder string
	Layout string
}

// DefaultDailySettings is used when the host has no daily-note configuration.
var DefaultDailySettings = DailySettings{Folder: ".", Layout: "2006-01-02"}

// DailyConfigProvider supplies daily-note settings. Implementations return
// DefaultDailySettings when the host feature is disabled.
type DailyConfigProvider interface {
	DailySettings() DailySettings
}

// StaticDailyConfig is a DailyConfigProvider backed by fixed values.
// Empty fields fall back to the defaults.
type StaticDailyConfig struct {
	Enabled bool
	Folder  string
	Layout  string
}

func (s StaticDailyConfig) DailySettings() DailySettings {
	if !s.Enabled {
		return DefaultDailySettings
	}
	out := DailySettings{Folder: s.Folder, Layout: s.Layout}
	if out.Folder == "" {
		out.Folder = DefaultDailySettings.Folder
	}
	if out.Layout == "" {
		out.Layout = DefaultDailySettings.Layout
	}
	return out
}

// LinkerOptions configures daily note linking.
type LinkerOptions struct {
	Section    string
	LinkFormat string
	TimeLayout string
	Config     DailyConfigProvider
	Log        zerolog.Logger
}

// Link describes a back-link written into a daily note.
type Link struct {
	DailyNotePath    string `json:"daily_note_path"`
	TargetPath       string `json:"target_path"`
	DisplayTimestamp string `json:"display_timestamp"`
	Section          string `json:"section"`
	Line             string `json:"line"`
	CreatedNote      bool   `json:"created_note,omitempty"`
}

// Linker inserts back-links into daily notes.
type Linker struct {
	vault storage.Vault
	opts  LinkerOptions
	log   zerolog.Logger
}

func NewLinker(vault storage.Vault, opts LinkerOptions) *Linker {
	if opts.Section == "" {
		opts.Section = DefaultSection
	}
	if opts.LinkFormat == "" {
		opts.LinkFormat = DefaultLinkFormat
	}
	if opts.TimeLayout == "" {
		opts.TimeLayout = DefaultLinkLayout
	}
	if opts.Config == nil {
		opts.Config = StaticDailyConfig{}
	}
	return &Linker{
		vault: vault,
		opts:  opts,
		log:   opts.Log.With().Str("component", "daily-linker").Logger(),
	}
}

// Link adds a link to notePath under the section heading of the daily note
// for at. The daily note and its folder are created when missing.
func (l *Linker) Link(ctx context.Context, notePath string, at time.Time) (*Link, error) {
	settings := l.opts.Config.DailySettings()
	link := &Link{
		DailyNotePath:    DailyNotePath(settings, at),
		TargetPath:       notePath,
		DisplayTimestamp: at.Format(l.opts.TimeLayout),
		Section:          l.opts.Section,
	}
	link.Line = FormatLink(l.opts.LinkFormat, notePath, link.DisplayTimestamp)

	// Layouts may nest, so the note's own folder can sit below settings.Folder.
	if err := ensureFolder(ctx, l.vault, path.Dir(link.DailyNotePath)); err != nil {
		return nil, err
	}
	existed, err := createText(ctx, l.vault, link.DailyNotePath, "")
	if err != nil {
		return nil, fmt.Errorf("create daily note: %w", err)
	}
	link.CreatedNote = !existed

	content, err := l.vault.ReadTextFile(ctx, link.DailyNotePath)
	if err != nil {
		return nil, fmt.Errorf("read daily note: %w", err)
	}
	if err := l.vault.OverwriteTextFile(ctx, link.DailyNotePath, InsertLink(content, l.opts.Section, link.Line)); err != nil {
		return nil, fmt.Errorf("update daily note: %w", err)
	}

	l.log.Info().Str("daily_note", link.DailyNotePath).Str("target", notePath).Msg("daily note linked")
	return link, nil
}

// DailyNotePath returns the vault path of the daily note for at.
func DailyNotePath(s DailySettings, at time.Time) string {
	return path.Join(s.Folder, at.Format(s.Layout)+".md")
}

// FormatLink substitutes {path} and {time} in format.
func FormatLink(format, notePath, timestamp string) string {
	return strings.NewReplacer("{path}", notePath, "{time}", timestamp).Replace(format)
}

// InsertLink places link on the line directly below the first line equal to
// section (after trimming). Without such a line the section is appended to
// the end of content. Existing lines are never changed or removed.
func InsertLink(content, section, link string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != section {
			continue
		}
		out := make([]string, 0, len(lines)+1)
		out = append(out, lines[:i+1]...)
		out = append(out, link)
		out = append(out, lines[i+1:]...)
		return strings.Join(out, "\n")
	}
	if content == "" {
		return section + "\n" + link
	}
	return content + "\n\n" + section + "\n" + link
}
