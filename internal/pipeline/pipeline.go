// Package pipeline sequences the stages that turn finished audio into a
// linked note, and owns the recording context shared by every front end.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/database"
	"github.com/snarg/scribe/internal/metrics"
	"github.com/snarg/scribe/internal/notes"
	"github.com/snarg/scribe/internal/transcribe"
)

// Source says where a job's audio came from.
type Source string

const (
	SourceRecording Source = "recording"
	SourceImport    Source = "import"
)

// Job is one audio payload to transcribe and file.
type Job struct {
	SessionID string
	Source    Source
	Audio     []byte
	MimeType  string
	Filename  string
	StartedAt time.Time
	EndedAt   time.Time
}

// Settings are the per-run options read from configuration.
type Settings struct {
	APIKey       string
	BaseURL      string
	Model        string
	SpeakerLabel string
	AutoOpen     bool
}

// Options wires a Pipeline. Linker, History and Opener may be nil.
type Options struct {
	Provider      transcribe.Provider
	PostProcessor *transcribe.PostProcessor
	Composer      *notes.Composer
	Linker        *notes.Linker
	History       database.Store
	Opener        notes.Opener
	Settings      Settings
	Log           zerolog.Logger
}

// Outcome is what a successful run produced.
type Outcome struct {
	SessionID string            `json:"session_id"`
	Source    Source            `json:"source"`
	Provider  string            `json:"provider"`
	Model     string            `json:"model"`
	Result    transcribe.Result `json:"result"`
	Note      *notes.Record     `json:"note"`
	Link      *notes.Link       `json:"link,omitempty"`
	Elapsed   time.Duration     `json:"elapsed_ns"`
}

// Pipeline runs transcribe, post-process, compose, link, record history and
// open, strictly in that order.
type Pipeline struct {
	opts Options
	log  zerolog.Logger
}

func New(opts Options) *Pipeline {
	if opts.Settings.SpeakerLabel == "" {
		opts.Settings.SpeakerLabel = transcribe.DefaultSpeakerLabel
	}
	return &Pipeline{
		opts: opts,
		log:  opts.Log.With().Str("component", "pipeline").Logger(),
	}
}

// ProviderName is the configured backend.
func (p *Pipeline) ProviderName() string { return p.opts.Provider.Name() }

// Model is the model identifier recorded with each note.
func (p *Pipeline) Model() string {
	if p.opts.Provider.Name() == string(transcribe.KindCustom) {
		return transcribe.CustomModel(p.opts.Settings.Model)
	}
	return p.opts.Provider.Model()
}

// Run processes job. Transcription and persistence errors abort the run;
// post-processing, history and open failures do not.
func (p *Pipeline) Run(ctx context.Context, job Job) (*Outcome, error) {
	start := time.Now()
	s := p.opts.Settings
	provider := p.opts.Provider.Name()
	log := p.log.With().Str("session_id", job.SessionID).Str("source", string(job.Source)).Logger()

	out := &Outcome{
		SessionID: job.SessionID,
		Source:    job.Source,
		Provider:  provider,
		Model:     p.Model(),
	}
	fail := func(err error) (*Outcome, error) {
		metrics.PipelineRunsTotal.WithLabelValues(string(job.Source), "failure").Inc()
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("pipeline failed")
		return nil, err
	}

	metrics.AudioBytes.Observe(float64(len(job.Audio)))
	log.Info().Int("bytes", len(job.Audio)).Str("provider", provider).Msg("transcribing")

	// 1. Transcribe
	stageStart := time.Now()
	raw, err := p.opts.Provider.Transcribe(ctx, transcribe.Request{
		Audio:    job.Audio,
		MimeType: job.MimeType,
		Filename: job.Filename,
		APIKey:   s.APIKey,
		BaseURL:  s.BaseURL,
		Model:    s.Model,
	})
	metrics.ObserveStage("transcribe", stageStart)
	if err != nil {
		metrics.TranscriptionsTotal.WithLabelValues(provider, "error").Inc()
		return fail(err)
	}
	metrics.TranscriptionsTotal.WithLabelValues(provider, "ok").Inc()
	out.Result.RawText = raw

	// 2. Post-process (never fails the run)
	if p.opts.PostProcessor.Enabled() && s.APIKey != "" {
		stageStart = time.Now()
		text, ok := p.opts.PostProcessor.Process(ctx, raw, s.APIKey, s.SpeakerLabel)
		metrics.ObserveStage("postprocess", stageStart)
		if ok {
			out.Result.ProcessedText = text
			metrics.PostProcessTotal.WithLabelValues("applied").Inc()
		} else {
			metrics.PostProcessTotal.WithLabelValues("fallback").Inc()
		}
	} else {
		metrics.PostProcessTotal.WithLabelValues("skipped").Inc()
	}

	// 3. Compose note
	stageStart = time.Now()
	rec, err := p.opts.Composer.Compose(ctx, job.EndedAt, job.Audio, out.Result.Text(), notes.Meta{
		Provider:      provider,
		Model:         out.Model,
		Source:        string(job.Source),
		Duration:      job.EndedAt.Sub(job.StartedAt),
		PostProcessed: out.Result.PostProcessed(),
	})
	metrics.ObserveStage("compose", stageStart)
	if err != nil {
		return fail(fmt.Errorf("save note: %w", err))
	}
	out.Note = rec

	// 4. Daily note link
	if p.opts.Linker != nil {
		stageStart = time.Now()
		link, err := p.opts.Linker.Link(ctx, rec.NotePath, job.EndedAt)
		metrics.ObserveStage("daily_link", stageStart)
		if err != nil {
			return fail(fmt.Errorf("link daily note: %w", err))
		}
		out.Link = link
	}

	// 5. History
	if p.opts.History != nil {
		entry := &database.Entry{
			SessionID:       job.SessionID,
			Source:          string(job.Source),
			Provider:        provider,
			Model:           out.Model,
			TimestampLabel:  rec.TimestampLabel,
			NotePath:        rec.NotePath,
			AudioPath:       rec.AudioPath,
			PostProcessed:   out.Result.PostProcessed(),
			AudioBytes:      len(job.Audio),
			DurationSeconds: int(job.EndedAt.Sub(job.StartedAt).Seconds()),
			StartedAt:       job.StartedAt,
			EndedAt:         job.EndedAt,
		}
		if out.Link != nil {
			entry.DailyNotePath = out.Link.DailyNotePath
		}
		if err := p.opts.History.Insert(ctx, entry); err != nil {
			log.Warn().Err(err).Msg("history insert failed")
		}
	}

	// 6. Open
	if s.AutoOpen && p.opts.Opener != nil {
		if err := p.opts.Opener.Open(ctx, rec.NotePath); err != nil {
			log.Warn().Err(err).Str("note", rec.NotePath).Msg("open note failed")
		}
	}

	out.Elapsed = time.Since(start)
	metrics.PipelineRunsTotal.WithLabelValues(string(job.Source), "success").Inc()
	log.Info().
		Str("note", rec.NotePath).
		Bool("post_processed", out.Result.PostProcessed()).
		Dur("elapsed", out.Elapsed).
		Msg("pipeline complete")
	return out, nil
}
