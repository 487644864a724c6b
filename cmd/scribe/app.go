package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/capture"
	"github.com/snarg/scribe/internal/config"
	"github.com/snarg/scribe/internal/database"
	"github.com/snarg/scribe/internal/metrics"
	"github.com/snarg/scribe/internal/notes"
	"github.com/snarg/scribe/internal/pipeline"
	"github.com/snarg/scribe/internal/session"
	"github.com/snarg/scribe/internal/storage"
	"github.com/snarg/scribe/internal/transcribe"
)

// app holds everything both subcommands share.
type app struct {
	cfg       *config.Config
	vault     storage.Vault
	services  []storage.BackgroundService
	started   bool
	history   database.Store
	ctrl      *pipeline.Controller
	notifiers *pipeline.Notifiers
	log       zerolog.Logger
}

// newApp builds the vault, history store, transcription backend and
// controller. Messages go to the log plus anything later appended to
// app.notifiers.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, notifiers: &pipeline.Notifiers{}, log: log}

	// Vault (local, or tiered with S3 backup)
	vault, services, err := storage.New(cfg.S3, cfg.VaultDir, log.With().Str("component", "storage").Logger())
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	a.vault = vault
	a.services = services
	log.Info().Str("vault", cfg.VaultDir).Str("type", vault.Type()).Msg("vault ready")

	// Session history
	if cfg.DatabaseURL != "" {
		history, err := database.Open(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.history = history
	}

	// Transcription
	popts := transcribe.Options{Timeout: cfg.RequestTimeout}
	provider, err := transcribe.New(transcribe.Kind(cfg.Provider), popts)
	if err != nil {
		a.Close()
		return nil, err
	}
	post := transcribe.NewPostProcessor(transcribe.PostProcessorOptions{
		Enabled: cfg.PostProcessing,
		Options: popts,
		Log:     log,
	})

	// Notes
	composer := notes.NewComposer(vault, notes.ComposerOptions{
		Folder:          cfg.TranscriptionFolder,
		AudioFilename:   cfg.AudioFilename,
		NoteFilename:    cfg.NoteFilename,
		TimestampLayout: cfg.FolderTimestampFormat,
		Frontmatter:     cfg.NoteFrontmatter,
		Log:             log,
	})
	var linker *notes.Linker
	if cfg.DailyNoteLinking {
		linker = notes.NewLinker(vault, notes.LinkerOptions{
			Section:    cfg.DailyNoteSection,
			LinkFormat: cfg.LinkFormat,
			TimeLayout: cfg.LinkTimestampFormat,
			Config: notes.StaticDailyConfig{
				Enabled: cfg.DailyNotes.Enabled,
				Folder:  cfg.DailyNotes.Folder,
				Layout:  cfg.DailyNotes.Format,
			},
			Log: log,
		})
	}
	var opener notes.Opener = notes.NopOpener{}
	if cfg.AutoOpenNote && cfg.OpenCommand != "" {
		opener = notes.CommandOpener{Command: cfg.OpenCommand, Root: cfg.VaultDir, Log: log}
	}

	p := pipeline.New(pipeline.Options{
		Provider:      provider,
		PostProcessor: post,
		Composer:      composer,
		Linker:        linker,
		History:       a.history,
		Opener:        opener,
		Settings: pipeline.Settings{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			SpeakerLabel: cfg.SpeakerLabel,
			AutoOpen:     cfg.AutoOpenNote,
		},
		Log: log,
	})

	// Capture and session
	device, err := capture.NewCommandDevice(capture.CommandDeviceOptions{
		Command:  cfg.CaptureCommand,
		MimeType: cfg.CaptureMimeType,
		Interval: cfg.FragmentInterval,
		Queue:    cfg.FragmentQueue,
		Log:      log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	var ctrl *pipeline.Controller
	sess := session.New(device, session.Options{
		OnFailure: func(err error) { ctrl.CaptureFailed(err) },
		Log:       log.With().Str("component", "session").Logger(),
	})
	notifiers := a.notifiers
	ctrl = pipeline.NewController(pipeline.ControllerOptions{
		Session:  sess,
		Pipeline: p,
		Notifier: pipeline.NotifierFunc(func(m pipeline.Message) { notifiers.Notify(m) }),
		Log:      log,
	})
	a.ctrl = ctrl

	log.Info().
		Str("provider", p.ProviderName()).
		Str("model", p.Model()).
		Bool("post_processing", post.Enabled()).
		Bool("daily_links", linker != nil).
		Msg("pipeline ready")
	return a, nil
}

// addNotifier must be called before any front end starts.
func (a *app) addNotifier(n pipeline.Notifier) {
	*a.notifiers = append(*a.notifiers, n)
}

// registerMetrics exposes live session, backup and pool gauges.
func (a *app) registerMetrics() {
	var backup metrics.BackupStats
	if u := a.backup(); u != nil {
		backup = u
	}
	var pool *pgxpool.Pool
	if pg, ok := a.history.(*database.PostgresStore); ok {
		pool = pg.Pool
	}
	prometheus.MustRegister(metrics.NewCollector(pool, a.ctrl, backup))
}

// backup returns the S3 uploader when the vault is tiered.
func (a *app) backup() *storage.AsyncUploader {
	if tv, ok := a.vault.(*storage.TieredVault); ok {
		return tv.Uploader()
	}
	return nil
}

func (a *app) startServices() {
	for _, s := range a.services {
		s.Start()
	}
	a.started = true
}

// Close discards any live recording, then stops background services and the
// history store.
func (a *app) Close() {
	if a.ctrl != nil && a.ctrl.Recording() {
		if err := a.ctrl.Discard(context.Background()); err != nil {
			a.log.Warn().Err(err).Msg("discard on shutdown failed")
		}
	}
	if a.started {
		for i := len(a.services) - 1; i >= 0; i-- {
			a.services[i].Stop()
		}
	}
	if a.history != nil {
		a.history.Close()
	}
}
