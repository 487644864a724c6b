package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	geminiModel    = "gemini-2.5-flash"
	geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/" + geminiModel + ":generateContent"

	transcribeInstruction = "Transcribe the following audio file exactly as spoken."
)

// generateRequest is the generateContent request body.
type generateRequest struct {
	Contents []generateContent `json:"contents"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generatePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

// generateResponse is the subset of the generateContent response we read.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// firstText returns candidates[0].content.parts[0].text.
func (r generateResponse) firstText() (string, bool) {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	text := r.Candidates[0].Content.Parts[0].Text
	return text, text != ""
}

// generativeClient issues generateContent calls with the key as a query
// parameter. Shared by transcription and post-processing.
type generativeClient struct {
	url    string
	client *http.Client
}

func newGenerativeClient(opts Options) *generativeClient {
	u := opts.GeminiURL
	if u == "" {
		u = geminiEndpoint
	}
	return &generativeClient{url: u, client: opts.client()}
}

// generate sends one content block and returns the first text part. A missing
// text part is a ProviderError, never an empty string.
func (g *generativeClient) generate(ctx context.Context, apiKey string, parts []generatePart) (string, error) {
	payload, err := json.Marshal(generateRequest{Contents: []generateContent{{Parts: parts}}})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	u, err := url.Parse(g.url)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		// The URL carries the key; keep it out of the message.
		if ue, ok := err.(*url.Error); ok {
			err = ue.Err
		}
		return "", transportError("Gemini", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError("Gemini", fmt.Errorf("read response: %w", err))
	}

	if !isSuccess(resp.StatusCode) {
		return "", apiError("Gemini", resp.StatusCode, body)
	}

	var result generateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &ProviderError{
			Provider:   "Gemini",
			StatusCode: resp.StatusCode,
			Message:    "invalid response body",
			Body:       truncate(string(body), 512),
			Err:        err,
		}
	}
	text, ok := result.firstText()
	if !ok {
		return "", &ProviderError{Provider: "Gemini", StatusCode: resp.StatusCode, Message: "no text returned"}
	}
	return text, nil
}

// GeminiClient transcribes by sending the audio inline (base64) to the
// generateContent endpoint with a verbatim-transcription instruction.
type GeminiClient struct {
	gen *generativeClient
}

// NewGeminiClient creates a Gemini transcription client.
func NewGeminiClient(opts Options) *GeminiClient {
	return &GeminiClient{gen: newGenerativeClient(opts)}
}

func (c *GeminiClient) Name() string  { return string(KindGemini) }
func (c *GeminiClient) Model() string { return geminiModel }

func (c *GeminiClient) Transcribe(ctx context.Context, req Request) (string, error) {
	if err := requireKey("Gemini", req); err != nil {
		return "", err
	}
	return c.gen.generate(ctx, req.APIKey, []generatePart{
		{Text: transcribeInstruction},
		{InlineData: &inlineData{
			MimeType: mimeType(req),
			Data:     base64.StdEncoding.EncodeToString(req.Audio),
		}},
	})
}
