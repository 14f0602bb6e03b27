package gemini

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceagent/internal/tlsutil"
	"github.com/BaSui01/voiceagent/llm"
	"github.com/BaSui01/voiceagent/llm/providers"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"

	providerName   = "gemini"
	apiVersion     = "v1beta"
	defaultTimeout = 60 * time.Second
)

// Config Gemini 连接参数
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// GeminiProvider 通过 generateContent 接口实现 llm.Provider。
// system 消息映射为 systemInstruction，assistant 映射为 model。
type GeminiProvider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

var _ llm.Provider = (*GeminiProvider)(nil)

func NewGeminiProvider(cfg Config, logger *zap.Logger) *GeminiProvider {
	cfg.BaseURL = strings.TrimRight(cmp.Or(cfg.BaseURL, DefaultBaseURL), "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cmp.Or(cfg.Timeout, defaultTimeout)),
		logger: logger.With(zap.String("provider", providerName)),
	}
}

func (p *GeminiProvider) Name() string { return providerName }

func (p *GeminiProvider) url(path string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.BaseURL, apiVersion, path)
}

// do 发送请求并把非 2xx 响应转换为 *llm.Error；成功时调用方负责关闭 body
func (p *GeminiProvider) do(ctx context.Context, method, url string, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.MapTransportError(err, p.Name())
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer providers.SafeCloseBody(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}
	return resp, nil
}

// HealthCheck 列出模型，不消耗 token
func (p *GeminiProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	resp, err := p.do(ctx, http.MethodGet, p.url("models"), nil)
	status := &llm.HealthStatus{Healthy: err == nil, Latency: time.Since(start)}
	if err != nil {
		return status, err
	}
	providers.SafeCloseBody(resp.Body)
	return status, nil
}

func (p *GeminiProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, p.fail(llm.ErrProviderUnavailable, http.StatusServiceUnavailable, false, "api key not configured")
	}

	payload, err := json.Marshal(newGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}
	model := providers.ChooseModel(req, p.cfg.Model, DefaultModel)

	resp, err := p.do(ctx, http.MethodPost, p.url("models/"+model+":generateContent"), payload)
	if err != nil {
		return nil, err
	}
	defer providers.SafeCloseBody(resp.Body)

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, p.fail(llm.ErrUpstreamError, http.StatusBadGateway, true, "decode gemini response: "+err.Error())
	}
	if len(gr.Candidates) == 0 {
		if fb := gr.PromptFeedback; fb != nil && fb.BlockReason != "" {
			return nil, p.fail(llm.ErrForbidden, http.StatusForbidden, false, "prompt blocked: "+fb.BlockReason)
		}
		return nil, p.fail(llm.ErrMalformedResponse, http.StatusBadGateway, false, "response has no candidates")
	}

	out := gr.toChatResponse(p.Name(), model)
	p.logger.Debug("completion done",
		zap.String("model", model),
		zap.String("finish_reason", out.Choices[0].FinishReason),
		zap.Int("total_tokens", out.Usage.TotalTokens),
	)
	return out, nil
}

func (p *GeminiProvider) fail(code llm.ErrorCode, status int, retryable bool, msg string) *llm.Error {
	return &llm.Error{Code: code, Message: msg, HTTPStatus: status, Retryable: retryable, Provider: p.Name()}
}
