package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BaSui01/voiceagent/internal/tlsutil"
	"github.com/BaSui01/voiceagent/llm"
	"github.com/BaSui01/voiceagent/llm/providers"
)

// MurfProvider 使用 Murf API 执行 TTS. 合成结果是 Murf 托管的音频 URL.
type MurfProvider struct {
	cfg    MurfConfig
	client *http.Client
}

// NewMurfProvider 创建新的 Murf TTS 供应商.
func NewMurfProvider(cfg MurfConfig) *MurfProvider {
	def := DefaultMurfConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = def.VoiceID
	}
	if cfg.Format == "" {
		cfg.Format = def.Format
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.SampleRate
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = def.Timeout
	}
	return &MurfProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
	}
}

func (p *MurfProvider) Name() string { return "murf" }

func (p *MurfProvider) setHeaders(req *http.Request) {
	req.Header.Set("api-key", p.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
}

type murfGenerateRequest struct {
	VoiceID    string `json:"voiceId"`
	Text       string `json:"text"`
	Format     string `json:"format"`
	SampleRate int    `json:"sampleRate"`
}

type murfGenerateResponse struct {
	AudioFile               string  `json:"audioFile"`
	AudioLengthInSeconds    float64 `json:"audioLengthInSeconds"`
	ConsumedCharacterCount  int     `json:"consumedCharacterCount"`
	RemainingCharacterCount int     `json:"remainingCharacterCount"`
	EncodedAudio            string  `json:"encodedAudio,omitempty"`
}

// Synthesize 调用 POST /v1/speech/generate.
func (p *MurfProvider) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, &llm.Error{
			Code: llm.ErrProviderUnavailable, Message: "murf api key not configured",
			HTTPStatus: http.StatusServiceUnavailable, Provider: p.Name(),
		}
	}

	body := murfGenerateRequest{
		VoiceID:    firstNonEmpty(req.Voice, p.cfg.VoiceID),
		Text:       req.Text,
		Format:     firstNonEmpty(req.Format, p.cfg.Format),
		SampleRate: req.SampleRate,
	}
	if body.SampleRate == 0 {
		body.SampleRate = p.cfg.SampleRate
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/speech/generate", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.MapTransportError(err, p.Name())
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var mResp murfGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&mResp); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrMalformedResponse, Message: fmt.Sprintf("decode murf response: %v", err),
			HTTPStatus: http.StatusBadGateway, Provider: p.Name(),
		}
	}
	if mResp.AudioFile == "" {
		return nil, &llm.Error{
			Code: llm.ErrMalformedResponse, Message: "no audioFile in murf response",
			HTTPStatus: http.StatusBadGateway, Provider: p.Name(),
		}
	}

	charCount := mResp.ConsumedCharacterCount
	if charCount == 0 {
		charCount = utf8.RuneCountInString(req.Text)
	}
	return &TTSResponse{
		Provider:       p.Name(),
		AudioURL:       mResp.AudioFile,
		Format:         strings.ToLower(body.Format),
		Duration:       time.Duration(mResp.AudioLengthInSeconds * float64(time.Second)),
		CharCount:      charCount,
		RemainingChars: mResp.RemainingCharacterCount,
		CreatedAt:      time.Now(),
	}, nil
}

type murfVoice struct {
	VoiceID         string   `json:"voiceId"`
	DisplayName     string   `json:"displayName"`
	Locale          string   `json:"locale"`
	Gender          string   `json:"gender"`
	Accent          string   `json:"accent"`
	Description     string   `json:"description"`
	AvailableStyles []string `json:"availableStyles"`
}

// ListVoices 调用 GET /v1/speech/voices.
func (p *MurfProvider) ListVoices(ctx context.Context) ([]Voice, error) {
	endpoint := fmt.Sprintf("%s/v1/speech/voices", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.MapTransportError(err, p.Name())
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var mVoices []murfVoice
	if err := json.NewDecoder(resp.Body).Decode(&mVoices); err != nil {
		return nil, fmt.Errorf("decode murf voices: %w", err)
	}

	voices := make([]Voice, len(mVoices))
	for i, v := range mVoices {
		voices[i] = Voice{
			ID:          v.VoiceID,
			Name:        v.DisplayName,
			Language:    v.Locale,
			Gender:      strings.ToLower(v.Gender),
			Accent:      v.Accent,
			Description: v.Description,
			Styles:      v.AvailableStyles,
		}
	}
	return voices, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
