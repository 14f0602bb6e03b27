package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/voiceagent/internal/tlsutil"
	"github.com/BaSui01/voiceagent/llm"
	"github.com/BaSui01/voiceagent/llm/providers"
)

// DeepgramProvider 通过 Deepgram 预录音频接口 (/v1/listen) 识别一段完整录音。
// 流式识别不在此实现：浏览器端每轮上传一段录音，服务端只需最终文本。
type DeepgramProvider struct {
	cfg    DeepgramConfig
	client *http.Client
}

// NewDeepgramProvider 创建 Deepgram STT 提供者，未填写的字段取默认值
func NewDeepgramProvider(cfg DeepgramConfig) *DeepgramProvider {
	def := DefaultDeepgramConfig()
	cfg.BaseURL = strings.TrimRight(firstNonEmpty(cfg.BaseURL, def.BaseURL), "/")
	cfg.Model = firstNonEmpty(cfg.Model, def.Model)
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &DeepgramProvider{cfg: cfg, client: tlsutil.SecureHTTPClient(cfg.Timeout)}
}

func (p *DeepgramProvider) Name() string { return "deepgram" }

// SupportedFormats 浏览器 MediaRecorder 常见的容器格式
func (p *DeepgramProvider) SupportedFormats() []string {
	return []string{"webm", "ogg", "opus", "wav", "mp3", "m4a", "aac", "flac"}
}

type deepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type deepgramResponse struct {
	Metadata struct {
		RequestID string  `json:"request_id"`
		Duration  float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string                `json:"detected_language"`
			Alternatives     []deepgramAlternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// best 返回置信度最高的非空候选及其声道的检测语言
func (r *deepgramResponse) best() (deepgramAlternative, string) {
	var (
		pick deepgramAlternative
		lang string
	)
	for _, ch := range r.Results.Channels {
		for _, alt := range ch.Alternatives {
			if strings.TrimSpace(alt.Transcript) == "" {
				continue
			}
			if pick.Transcript == "" || alt.Confidence > pick.Confidence {
				pick, lang = alt, ch.DetectedLanguage
			}
		}
	}
	pick.Transcript = strings.TrimSpace(pick.Transcript)
	return pick, lang
}

func (p *DeepgramProvider) listenURL(req *STTRequest) string {
	q := url.Values{
		"model":        {firstNonEmpty(req.Model, p.cfg.Model)},
		"smart_format": {"true"},
		"punctuate":    {"true"},
	}
	// 未指定语言时让服务端检测
	if req.Language != "" {
		q.Set("language", req.Language)
	} else {
		q.Set("detect_language", "true")
	}
	return p.cfg.BaseURL + "/v1/listen?" + q.Encode()
}

// requestBody 远程音频以 {"url": ...} 提交，否则直接上传原始字节
func requestBody(req *STTRequest) (io.Reader, string, error) {
	if req.AudioURL == "" {
		return req.Audio, firstNonEmpty(req.ContentType, "audio/wav"), nil
	}
	payload, err := json.Marshal(struct {
		URL string `json:"url"`
	}{req.AudioURL})
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request: %w", err)
	}
	return bytes.NewReader(payload), "application/json", nil
}

// Transcribe 识别一段录音。静音或无法识别时 Text 为空，不返回错误。
func (p *DeepgramProvider) Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error) {
	if req.Audio == nil && req.AudioURL == "" {
		return nil, &llm.Error{
			Code: llm.ErrInvalidRequest, Message: "audio input or URL is required",
			HTTPStatus: http.StatusBadRequest, Provider: p.Name(),
		}
	}
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, &llm.Error{
			Code: llm.ErrProviderUnavailable, Message: "deepgram api key not configured",
			HTTPStatus: http.StatusServiceUnavailable, Provider: p.Name(),
		}
	}

	body, contentType, err := requestBody(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.listenURL(req), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Token "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.MapTransportError(err, p.Name())
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}

	var dg deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&dg); err != nil {
		return nil, fmt.Errorf("failed to decode deepgram response: %w", err)
	}

	alt, lang := dg.best()
	return &STTResponse{
		Provider:   p.Name(),
		Model:      firstNonEmpty(req.Model, p.cfg.Model),
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Language:   firstNonEmpty(lang, req.Language),
		Duration:   time.Duration(dg.Metadata.Duration * float64(time.Second)),
		CreatedAt:  time.Now(),
	}, nil
}
