package openaicompat

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
	DefaultBaseURL = "https://api.perplexity.ai"
	DefaultModel   = "sonar"

	defaultName     = "perplexity"
	defaultPath     = "/chat/completions"
	defaultTimeout  = 30 * time.Second
	healthCheckText = "ping"
)

// Config 兼容服务的连接参数。零值即 Perplexity 的 sonar 模型。
type Config struct {
	ProviderName string
	APIKey       string
	BaseURL      string
	DefaultModel string
	// Timeout 为 HTTP 客户端整体超时，默认 30s
	Timeout time.Duration
	// EndpointPath 默认 /chat/completions
	EndpointPath string
}

// Provider 基于 chat completions 接口的 llm.Provider
type Provider struct {
	cfg    Config
	url    string
	client *http.Client
	logger *zap.Logger
}

var _ llm.Provider = (*Provider)(nil)

// New 填充默认值并创建 Provider
func New(cfg Config, logger *zap.Logger) *Provider {
	cfg.ProviderName = cmp.Or(cfg.ProviderName, defaultName)
	cfg.BaseURL = cmp.Or(cfg.BaseURL, DefaultBaseURL)
	cfg.EndpointPath = cmp.Or(cfg.EndpointPath, defaultPath)
	cfg.Timeout = cmp.Or(cfg.Timeout, defaultTimeout)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		url:    strings.TrimRight(cfg.BaseURL, "/") + cfg.EndpointPath,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("provider", cfg.ProviderName)),
	}
}

func (p *Provider) Name() string { return p.cfg.ProviderName }

// HealthCheck 发一个 1 token 的请求；兼容服务不保证有 /models 之类的探活接口
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := p.Completion(ctx, &llm.ChatRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: healthCheckText}},
		MaxTokens: 1,
	})
	return &llm.HealthStatus{Healthy: err == nil, Latency: time.Since(start)}, err
}

// Completion 非流式请求
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, p.fail(llm.ErrProviderUnavailable, http.StatusServiceUnavailable, false, "api key not configured")
	}

	payload, err := json.Marshal(providers.NewOpenAICompatRequest(req, p.cfg.DefaultModel, DefaultModel))
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.MapTransportError(err, p.Name())
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}

	var wire providers.OpenAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		// 截断的响应体多半是连接中途断开
		return nil, p.fail(llm.ErrUpstreamError, http.StatusBadGateway, true, "decode chat response: "+err.Error())
	}
	if len(wire.Choices) == 0 {
		return nil, p.fail(llm.ErrMalformedResponse, http.StatusBadGateway, false, "response has no choices")
	}

	out := providers.ToLLMChatResponse(wire, p.Name())
	p.logger.Debug("completion done",
		zap.String("model", out.Model),
		zap.String("finish_reason", out.Choices[0].FinishReason),
		zap.Int("total_tokens", out.Usage.TotalTokens),
	)
	return out, nil
}

func (p *Provider) fail(code llm.ErrorCode, status int, retryable bool, msg string) *llm.Error {
	return &llm.Error{Code: code, Message: msg, HTTPStatus: status, Retryable: retryable, Provider: p.Name()}
}
