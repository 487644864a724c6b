package transcribe

import (
	"context"
	"net/http"
	"strings"
)

const (
	customDefaultBaseURL = "http://localhost:8000/v1"
	customDefaultModel   = "whisper-1"
)

// CustomClient calls any OpenAI-compatible /audio/transcriptions endpoint,
// typically a self-hosted server. The API key is optional.
type CustomClient struct {
	client *http.Client
}

// NewCustomClient creates a client for caller-supplied endpoints.
func NewCustomClient(opts Options) *CustomClient {
	return &CustomClient{client: opts.client()}
}

func (c *CustomClient) Name() string  { return string(KindCustom) }
func (c *CustomClient) Model() string { return customDefaultModel }

// Transcribe posts to {BaseURL}/audio/transcriptions using req.Model, with
// defaults for both when empty. No Authorization header is sent without a key.
func (c *CustomClient) Transcribe(ctx context.Context, req Request) (string, error) {
	return whisperUpload(ctx, c.client, "Custom", CustomURL(req.BaseURL), req.APIKey, CustomModel(req.Model), req)
}

// CustomURL resolves the transcription endpoint for a base URL.
func CustomURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = customDefaultBaseURL
	}
	return base + "/audio/transcriptions"
}

// CustomModel returns model, or the default model when empty.
func CustomModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return customDefaultModel
}
