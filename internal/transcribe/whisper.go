package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// whisperResponse is the JSON body returned by /v1/audio/transcriptions.
type whisperResponse struct {
	Text *string `json:"text"`
}

// whisperUpload posts audio to an OpenAI-compatible transcription endpoint as
// multipart/form-data with the fields "file" and "model". The bearer header is
// only sent when apiKey is non-empty.
func whisperUpload(ctx context.Context, client *http.Client, provider, url, apiKey, model string, req Request) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// Audio file field, typed with the recording's container
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, uploadFilename(req)))
	h.Set("Content-Type", mimeType(req))
	part, err := w.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}

	if err := w.WriteField("model", model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", transportError(provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(provider, fmt.Errorf("read response: %w", err))
	}

	if !isSuccess(resp.StatusCode) {
		return "", apiError(provider, resp.StatusCode, body)
	}

	var result whisperResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    "invalid response body",
			Body:       truncate(string(body), 512),
			Err:        err,
		}
	}
	if result.Text == nil {
		return "", &ProviderError{Provider: provider, StatusCode: resp.StatusCode, Message: "response has no text field"}
	}
	return *result.Text, nil
}
