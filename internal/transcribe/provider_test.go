package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingServer records how many requests reached it.
func countingServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func threeFragments() []byte {
	var b []byte
	b = append(b, bytes.Repeat([]byte{1}, 100)...)
	b = append(b, bytes.Repeat([]byte{2}, 200)...)
	b = append(b, bytes.Repeat([]byte{3}, 50)...)
	return b
}

func TestOpenAI_UploadsMultipart(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer k1", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Len(t, data, 350)
		assert.Equal(t, "recording.webm", hdr.Filename)
		assert.Equal(t, "audio/webm", hdr.Header.Get("Content-Type"))

		w.Write([]byte(`{"text":"hello"}`))
	})

	p, err := New(KindOpenAI, Options{OpenAIURL: srv.URL})
	require.NoError(t, err)

	text, err := p.Transcribe(context.Background(), Request{Audio: threeFragments(), MimeType: "audio/webm", APIKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, "whisper-1", p.Model())
}

func TestMissingKey_NoNetwork(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"should not happen"}`))
	})
	opts := Options{OpenAIURL: srv.URL, GeminiURL: srv.URL}

	for _, kind := range []Kind{KindOpenAI, KindGroq, KindGemini} {
		t.Run(string(kind), func(t *testing.T) {
			p, err := New(kind, opts)
			require.NoError(t, err)
			_, err = p.Transcribe(context.Background(), Request{Audio: []byte("a"), APIKey: ""})
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
	assert.EqualValues(t, 0, hits.Load(), "no request may be issued without a key")
}

func TestGroq_Unsupported(t *testing.T) {
	p, err := New(KindGroq, Options{})
	require.NoError(t, err)

	_, err = p.Transcribe(context.Background(), Request{Audio: []byte("a"), APIKey: "k"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(Kind("whisperx"), Options{})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.False(t, Kind("whisperx").Valid())
	assert.True(t, KindCustom.Valid())
}

func TestProviderError_Message(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"nested_message", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key"}}`, "Incorrect API key"},
		{"non_json_body", http.StatusInternalServerError, `<html>oops</html>`, "Internal Server Error"},
		{"empty_body", http.StatusBadGateway, ``, "Bad Gateway"},
		{"error_is_string", http.StatusBadRequest, `{"error":"bad"}`, "Bad Request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			p := NewOpenAIClient(Options{OpenAIURL: srv.URL})
			_, err := p.Transcribe(context.Background(), Request{Audio: []byte("a"), APIKey: "k"})

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.wantMsg, pe.Message)
			assert.Equal(t, "OpenAI API error: "+tt.wantMsg, pe.Error())
		})
	}
}

func TestOpenAI_MissingTextField(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"language":"en"}`))
	})
	p := NewOpenAIClient(Options{OpenAIURL: srv.URL})
	_, err := p.Transcribe(context.Background(), Request{Audio: []byte("a"), APIKey: "k"})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
}

func TestTransportFailure_IsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewOpenAIClient(Options{OpenAIURL: url})
	_, err := p.Transcribe(context.Background(), Request{Audio: []byte("a"), APIKey: "k"})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Zero(t, pe.StatusCode)
	assert.NotNil(t, errors.Unwrap(pe))
}

func TestGemini_InlineAudio(t *testing.T) {
	audio := threeFragments()
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var body generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Contents, 1)
		parts := body.Contents[0].Parts
		require.Len(t, parts, 2)
		assert.Equal(t, transcribeInstruction, parts[0].Text)
		require.NotNil(t, parts[1].InlineData)
		assert.Equal(t, "audio/ogg", parts[1].InlineData.MimeType)
		decoded, err := base64.StdEncoding.DecodeString(parts[1].InlineData.Data)
		require.NoError(t, err)
		assert.Equal(t, audio, decoded)

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello from gemini"}]}}]}`))
	})

	p, err := New(KindGemini, Options{GeminiURL: srv.URL})
	require.NoError(t, err)
	text, err := p.Transcribe(context.Background(), Request{Audio: audio, MimeType: "audio/ogg", APIKey: "g-key"})
	require.NoError(t, err)
	assert.Equal(t, "hello from gemini", text)
}

func TestGemini_NoTextIsError(t *testing.T) {
	for name, body := range map[string]string{
		"no_candidates": `{"candidates":[]}`,
		"no_parts":      `{"candidates":[{"content":{"parts":[]}}]}`,
		"empty_text":    `{"candidates":[{"content":{"parts":[{"text":""}]}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			p := NewGeminiClient(Options{GeminiURL: srv.URL})
			text, err := p.Transcribe(context.Background(), Request{Audio: []byte("a"), APIKey: "k"})

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "no text returned", pe.Message)
			assert.Empty(t, text)
		})
	}
}

func TestGemini_ErrorBody(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	})
	p := NewGeminiClient(Options{GeminiURL: srv.URL})
	_, err := p.Transcribe(context.Background(), Request{Audio: []byte("a"), APIKey: "k"})
	assert.EqualError(t, err, "Gemini API error: API key not valid")
}

func TestCustom_DefaultsAndOptionalAuth(t *testing.T) {
	var gotPath, gotAuth, gotModel string
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		r.ParseMultipartForm(1 << 20)
		gotModel = r.FormValue("model")
		w.Write([]byte(`{"text":"local text"}`))
	})

	p, err := New(KindCustom, Options{})
	require.NoError(t, err)

	t.Run("no_key_no_model", func(t *testing.T) {
		text, err := p.Transcribe(context.Background(), Request{Audio: []byte("a"), BaseURL: srv.URL + "/v1/"})
		require.NoError(t, err)
		assert.Equal(t, "local text", text)
		assert.Equal(t, "/v1/audio/transcriptions", gotPath)
		assert.Empty(t, gotAuth, "authorization header must be omitted without a key")
		assert.Equal(t, "whisper-1", gotModel)
	})

	t.Run("key_and_model", func(t *testing.T) {
		_, err := p.Transcribe(context.Background(), Request{Audio: []byte("a"), BaseURL: srv.URL, APIKey: "local", Model: "large-v3"})
		require.NoError(t, err)
		assert.Equal(t, "/audio/transcriptions", gotPath)
		assert.Equal(t, "Bearer local", gotAuth)
		assert.Equal(t, "large-v3", gotModel)
	})
}

func TestCustomURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8000/v1/audio/transcriptions", CustomURL(""))
	assert.Equal(t, "http://gpu:9000/v1/audio/transcriptions", CustomURL("http://gpu:9000/v1/"))
	assert.Equal(t, "whisper-1", CustomModel(" "))
}

func TestResult_Text(t *testing.T) {
	r := Result{RawText: "raw"}
	assert.Equal(t, "raw", r.Text())
	assert.False(t, r.PostProcessed())

	r.ProcessedText = "processed"
	assert.Equal(t, "processed", r.Text())
	assert.True(t, r.PostProcessed())
}
