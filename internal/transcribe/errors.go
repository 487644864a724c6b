package transcribe

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrConfiguration means a required setting (usually the API key) is
	// missing. It is detected before any network traffic.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnsupportedProvider is returned by backends that exist as a choice
	// but have no implementation.
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// ProviderError is a failed call to a transcription backend: a transport
// failure, a non-success status, or a response without usable text.
type ProviderError struct {
	Provider   string // display name, e.g. "OpenAI"
	StatusCode int    // 0 when no response was received
	Message    string // extracted from the error body when possible
	Body       string // truncated response body for diagnostics
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// requireKey fails fast when a hosted backend has no credential.
func requireKey(provider string, req Request) error {
	if strings.TrimSpace(req.APIKey) == "" {
		return fmt.Errorf("%w: API key is missing for %s", ErrConfiguration, provider)
	}
	return nil
}

// apiError builds a ProviderError from a non-success response. The message is
// taken from a JSON body of the form {"error":{"message":"..."}} and falls back
// to the HTTP status text.
func apiError(provider string, status int, body []byte) *ProviderError {
	var eb struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if len(body) > 0 && json.Unmarshal(body, &eb) == nil && eb.Error != nil {
		msg = eb.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	if msg == "" {
		msg = fmt.Sprintf("status %d", status)
	}
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Message:    msg,
		Body:       truncate(string(body), 512),
	}
}

func transportError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Message: err.Error(), Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }
