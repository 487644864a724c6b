package transcribe

import (
	"context"
	"net/http"
)

const (
	openAIEndpoint = "https://api.openai.com/v1/audio/transcriptions"
	openAIModel    = "whisper-1"
)

// OpenAIClient calls the OpenAI audio transcription API with a fixed model.
// Implements the Provider interface.
type OpenAIClient struct {
	url    string
	client *http.Client
}

// NewOpenAIClient creates an OpenAI transcription client.
func NewOpenAIClient(opts Options) *OpenAIClient {
	url := opts.OpenAIURL
	if url == "" {
		url = openAIEndpoint
	}
	return &OpenAIClient{url: url, client: opts.client()}
}

func (c *OpenAIClient) Name() string  { return string(KindOpenAI) }
func (c *OpenAIClient) Model() string { return openAIModel }

// Transcribe uploads the audio and returns the "text" field of the response.
func (c *OpenAIClient) Transcribe(ctx context.Context, req Request) (string, error) {
	if err := requireKey("OpenAI", req); err != nil {
		return "", err
	}
	return whisperUpload(ctx, c.client, "OpenAI", c.url, req.APIKey, openAIModel, req)
}
