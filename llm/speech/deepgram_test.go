package speech

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BaSui01/voiceagent/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepgramProvider_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/listen", r.URL.Path)
		assert.Equal(t, "nova-2", r.URL.Query().Get("model"))
		assert.Equal(t, "true", r.URL.Query().Get("smart_format"))
		assert.Equal(t, "Token dg-key", r.Header.Get("Authorization"))
		assert.Equal(t, "audio/webm", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, "RIFFfake", string(data))

		_, _ = w.Write([]byte(`{"metadata":{"request_id":"r","duration":2.0},
			"results":{"channels":[{"alternatives":[{"transcript":"  hello there ","confidence":0.98}]}]}}`))
	}))
	defer server.Close()

	p := NewDeepgramProvider(DeepgramConfig{APIKey: "dg-key", BaseURL: server.URL})
	resp, err := p.Transcribe(context.Background(), &STTRequest{
		Audio:       strings.NewReader("RIFFfake"),
		ContentType: "audio/webm",
	})

	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.InDelta(t, 0.98, resp.Confidence, 1e-9)
	assert.Equal(t, "nova-2", resp.Model)
}

func TestDeepgramProvider_Transcribe_LanguageDetection(t *testing.T) {
	var query url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`{"results":{"channels":[
			{"detected_language":"en","alternatives":[{"transcript":"hola","confidence":0.4}]},
			{"detected_language":"es","alternatives":[{"transcript":" hola amigo ","confidence":0.9},{"transcript":"","confidence":0.99}]}
		]}}`))
	}))
	defer server.Close()

	p := NewDeepgramProvider(DeepgramConfig{APIKey: "k", BaseURL: server.URL + "/"})
	resp, err := p.Transcribe(context.Background(), &STTRequest{Audio: strings.NewReader("x")})
	require.NoError(t, err)
	assert.Equal(t, "true", query.Get("detect_language"))
	assert.Empty(t, query.Get("language"))

	// 跨声道取置信度最高的非空候选
	assert.Equal(t, "hola amigo", resp.Text)
	assert.Equal(t, "es", resp.Language)

	_, err = p.Transcribe(context.Background(), &STTRequest{Audio: strings.NewReader("x"), Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "en", query.Get("language"))
	assert.Empty(t, query.Get("detect_language"))
}

func TestDeepgramProvider_Transcribe_Silence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":""}]}]}}`))
	}))
	defer server.Close()

	p := NewDeepgramProvider(DeepgramConfig{APIKey: "k", BaseURL: server.URL})
	resp, err := p.Transcribe(context.Background(), &STTRequest{Audio: strings.NewReader("x")})
	require.NoError(t, err)
	assert.Empty(t, resp.Text)
}

func TestDeepgramProvider_Transcribe_Validation(t *testing.T) {
	p := NewDeepgramProvider(DeepgramConfig{APIKey: "k"})
	_, err := p.Transcribe(context.Background(), &STTRequest{})
	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, llm.ErrInvalidRequest, llmErr.Code)

	_, err = NewDeepgramProvider(DeepgramConfig{}).Transcribe(context.Background(), &STTRequest{AudioURL: "https://x"})
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, llm.ErrProviderUnavailable, llmErr.Code)
}

func TestDeepgramProvider_Transcribe_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	p := NewDeepgramProvider(DeepgramConfig{APIKey: "k", BaseURL: server.URL})
	_, err := p.Transcribe(context.Background(), &STTRequest{AudioURL: "https://x/a.wav"})
	assert.True(t, llm.IsRetryable(err))
}
