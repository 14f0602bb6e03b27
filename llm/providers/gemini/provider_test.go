package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/BaSui01/voiceagent/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGeminiProvider_Name(t *testing.T) {
	provider := NewGeminiProvider(Config{}, zap.NewNop())
	assert.Equal(t, "gemini", provider.Name())
	assert.Equal(t, DefaultBaseURL, provider.cfg.BaseURL)
}

func TestConvertToGeminiContents(t *testing.T) {
	system, contents := convertToGeminiContents([]llm.Message{
		{Role: llm.RoleSystem, Content: "You are Luna."},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "Hello!"},
		{Role: llm.RoleAssistant, Content: ""},
		{Role: llm.RoleUser, Content: "how are you"},
	})

	require.NotNil(t, system)
	assert.Equal(t, "You are Luna.", system.Parts[0].Text)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "how are you", contents[2].Parts[0].Text)
}

func TestConvertToGeminiContents_MergesSameRole(t *testing.T) {
	system, contents := convertToGeminiContents([]llm.Message{
		{Role: llm.RoleUser, Content: "first"},
		{Role: llm.RoleUser, Content: "second"},
		{Role: llm.RoleAssistant, Content: "ok"},
	})

	assert.Nil(t, system)
	require.Len(t, contents, 2)
	assert.Equal(t, []geminiPart{{Text: "first"}, {Text: "second"}}, contents[0].Parts)
	assert.Equal(t, "model", contents[1].Role)
}

func TestNewGeminiRequest_GenerationConfig(t *testing.T) {
	bare := newGeminiRequest(&llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})
	assert.Nil(t, bare.GenerationConfig)

	tuned := newGeminiRequest(&llm.ChatRequest{MaxTokens: 150, Temperature: 0.7})
	require.NotNil(t, tuned.GenerationConfig)
	assert.Equal(t, 150, tuned.GenerationConfig.MaxOutputTokens)
}

func TestGeminiProvider_Completion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))

		var body geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotNil(t, body.SystemInstruction)
		require.Len(t, body.Contents, 1)

		_ = json.NewEncoder(w).Encode(geminiResponse{
			ResponseID: "r1",
			Candidates: []geminiCandidate{{
				Content:      geminiContent{Role: "model", Parts: []geminiPart{{Text: "Hi "}, {Text: "there"}}},
				FinishReason: "STOP",
			}},
			UsageMetadata: &geminiUsageMetadata{TotalTokenCount: 9},
		})
	}))
	defer server.Close()

	p := NewGeminiProvider(Config{APIKey: "g-key", BaseURL: server.URL}, zap.NewNop())
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "persona"},
			{Role: llm.RoleUser, Content: "hello"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Hi there", resp.FirstContent())
	assert.Equal(t, DefaultModel, resp.Model)
	assert.Equal(t, 9, resp.Usage.TotalTokens)
}

func TestGeminiProvider_Completion_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  llm.ErrorCode
		wantRetry bool
	}{
		{"server error", 503, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`, llm.ErrUpstreamError, true},
		{"bad key", 401, `{"error":{"code":401,"message":"bad key","status":"UNAUTHENTICATED"}}`, llm.ErrUnauthorized, false},
		{"no candidates", 200, `{"candidates":[]}`, llm.ErrMalformedResponse, false},
		{"blocked prompt", 200, `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`, llm.ErrForbidden, false},
		{"truncated body", 200, `{"candidates":[`, llm.ErrUpstreamError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := NewGeminiProvider(Config{APIKey: "k", BaseURL: server.URL}, zap.NewNop())
			_, err := p.Completion(context.Background(), &llm.ChatRequest{
				Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}},
			})
			var llmErr *llm.Error
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tt.wantCode, llmErr.Code)
			assert.Equal(t, tt.wantRetry, llmErr.Retryable)
		})
	}
}

func TestGeminiProvider_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	p := NewGeminiProvider(Config{APIKey: "k", BaseURL: server.URL}, zap.NewNop())
	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}

func TestGeminiProvider_HealthCheck_BadKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	p := NewGeminiProvider(Config{APIKey: "k", BaseURL: server.URL + "/"}, zap.NewNop())
	status, err := p.HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
	assert.Equal(t, "API key not valid (type: INVALID_ARGUMENT)", err.Error())
}

func TestGeminiProvider_Integration(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set, skipping integration test")
	}

	provider := NewGeminiProvider(Config{APIKey: apiKey, Timeout: 30 * time.Second}, zap.NewNop())
	resp, err := provider.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "Say hello in one word."}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.FirstContent())
}
