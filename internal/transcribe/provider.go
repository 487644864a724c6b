package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Kind selects a transcription backend.
type Kind string

const (
	KindOpenAI Kind = "openai" // multipart upload, fixed whisper model
	KindGroq   Kind = "groq"   // not implemented; always rejected
	KindGemini Kind = "gemini" // inline base64 audio to generateContent
	KindCustom Kind = "custom" // OpenAI-compatible endpoint at a caller-supplied URL
)

// Kinds lists every recognized provider value.
var Kinds = []Kind{KindOpenAI, KindGroq, KindGemini, KindCustom}

// Valid reports whether k is a recognized provider value.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Provider is the interface for speech-to-text backends.
type Provider interface {
	// Transcribe converts the request's audio to raw text.
	Transcribe(ctx context.Context, req Request) (string, error)
	Name() string  // "openai", "gemini", ...
	Model() string // model identifier for notes and logs
}

// Request is one transcription call. Build it once and pass it by value.
type Request struct {
	Audio    []byte
	MimeType string // e.g. "audio/webm"
	Filename string // upload filename, default "recording.webm"
	APIKey   string // optional for KindCustom only
	BaseURL  string // KindCustom only
	Model    string // KindCustom only
}

// Result is the transcript produced for one recording.
type Result struct {
	RawText string `json:"raw_text"`
	// ProcessedText is empty unless post-processing ran and succeeded.
	ProcessedText string `json:"processed_text,omitempty"`
}

// Text returns the processed transcript when present, else the raw one.
func (r Result) Text() string {
	if r.ProcessedText != "" {
		return r.ProcessedText
	}
	return r.RawText
}

// PostProcessed reports whether the text was rewritten by the post-processor.
func (r Result) PostProcessed() bool { return r.ProcessedText != "" }

// Options configures provider construction.
type Options struct {
	Timeout    time.Duration // per-request bound; no retries are attempted
	HTTPClient *http.Client  // overrides Timeout when set

	// Endpoint overrides, mainly for tests. Empty means the public default.
	OpenAIURL string
	GeminiURL string
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &http.Client{Timeout: timeout}
}

// New returns the backend for kind. Switching kinds never affects the
// recording session or note composition.
func New(kind Kind, opts Options) (Provider, error) {
	switch kind {
	case KindOpenAI:
		return NewOpenAIClient(opts), nil
	case KindGroq:
		return unsupportedProvider{kind: kind}, nil
	case KindGemini:
		return NewGeminiClient(opts), nil
	case KindCustom:
		return NewCustomClient(opts), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrConfiguration, kind)
	}
}

func uploadFilename(req Request) string {
	if req.Filename != "" {
		return req.Filename
	}
	return "recording.webm"
}

func mimeType(req Request) string {
	if req.MimeType != "" {
		return req.MimeType
	}
	return "audio/webm"
}
