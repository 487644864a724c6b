package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Section headings emitted by the post-processor, in order.
const (
	HeadingTranscript  = "## Transcript"
	HeadingSummary     = "## Summary"
	HeadingActionItems = "## Action Items"

	NoActionItems = "No action items identified."

	DefaultSpeakerLabel = "Me"
)

// PostProcessor rewrites a raw transcript into a speaker-labeled transcript,
// a short summary and an action-item checklist. It never fails: any problem
// yields the raw transcript unchanged.
type PostProcessor struct {
	gen     *generativeClient
	enabled bool
	log     zerolog.Logger
}

// PostProcessorOptions configures a PostProcessor.
type PostProcessorOptions struct {
	Enabled bool
	Options Options // endpoint and timeout of the generative backend
	Log     zerolog.Logger
}

// NewPostProcessor creates a post-processor.
func NewPostProcessor(opts PostProcessorOptions) *PostProcessor {
	return &PostProcessor{
		gen:     newGenerativeClient(opts.Options),
		enabled: opts.Enabled,
		log:     opts.Log.With().Str("component", "postprocess").Logger(),
	}
}

// Enabled reports whether post-processing is switched on.
func (p *PostProcessor) Enabled() bool { return p != nil && p.enabled }

// Process returns the rewritten transcript and true, or rawText and false when
// post-processing is disabled, has no API key, or fails for any reason.
func (p *PostProcessor) Process(ctx context.Context, rawText, apiKey, speakerLabel string) (string, bool) {
	if !p.Enabled() || strings.TrimSpace(apiKey) == "" {
		return rawText, false
	}

	text, err := p.gen.generate(ctx, apiKey, []generatePart{{Text: BuildPrompt(rawText, speakerLabel)}})
	if err != nil {
		ev := p.log.Warn().Err(err)
		var pe *ProviderError
		if errors.As(err, &pe) && pe.Body != "" {
			ev = ev.Str("body", pe.Body)
		}
		ev.Msg("post-processing failed, using raw transcript")
		return rawText, false
	}
	return text, true
}

// BuildPrompt assembles the post-processing instruction for rawText.
func BuildPrompt(rawText, speakerLabel string) string {
	if strings.TrimSpace(speakerLabel) == "" {
		speakerLabel = DefaultSpeakerLabel
	}

	var b strings.Builder
	b.WriteString("You are a transcription post-processor. Given a raw audio transcription:\n\n")
	fmt.Fprintf(&b, "1. Identify the speakers. Label the primary speaker %q when identifiable and everyone else \"Person 1\", \"Person 2\", and so on.\n", speakerLabel)
	fmt.Fprintf(&b, "2. Rewrite the transcript with a speaker label on every turn (e.g. \"%s: Hello there\").\n", speakerLabel)
	b.WriteString("3. Summarize the conversation in 2-3 sentences.\n")
	b.WriteString("4. List any action items as a checklist.\n\n")
	b.WriteString("Reply using exactly this layout:\n\n")
	b.WriteString(HeadingTranscript + "\n[speaker-labeled transcript]\n\n")
	b.WriteString(HeadingSummary + "\n[2-3 sentence summary]\n\n")
	b.WriteString(HeadingActionItems + "\n- [ ] Action item 1\n- [ ] Action item 2\n\n")
	fmt.Fprintf(&b, "If there are no action items, write %q under %s.\n\n", NoActionItems, HeadingActionItems)
	b.WriteString("Raw transcript:\n\n")
	b.WriteString(rawText)
	return b.String()
}
