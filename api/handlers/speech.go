package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/BaSui01/voiceagent/agent/voice"
	"github.com/BaSui01/voiceagent/api"
	"github.com/BaSui01/voiceagent/llm"
	"github.com/BaSui01/voiceagent/llm/speech"
	"github.com/BaSui01/voiceagent/types"
	"go.uber.org/zap"
)

// DefaultMaxUploadBytes 语音上传默认上限
const DefaultMaxUploadBytes = 10 << 20

// RecognitionRecorder 记录语音识别结果
type RecognitionRecorder interface {
	RecordRecognition(status string)
}

type nopRecognitionRecorder struct{}

func (nopRecognitionRecorder) RecordRecognition(string) {}

// =============================================================================
// 🔊 语音接口 Handler
// =============================================================================

// SpeechHandler 语音合成、声音列表与语音输入处理器
type SpeechHandler struct {
	synthesis *voice.SynthesisDispatcher
	stt       speech.STTProvider
	registry  *voice.Registry
	recorder  RecognitionRecorder
	maxUpload int64
	language  string
	logger    *zap.Logger
}

// SpeechHandlerConfig SpeechHandler 的可选配置
type SpeechHandlerConfig struct {
	// 语音上传上限，<=0 时使用 DefaultMaxUploadBytes
	MaxUploadBytes int64
	// 识别语言 (ISO-639-1)，为空时由服务端检测
	Language string
	Recorder RecognitionRecorder
}

// NewSpeechHandler 创建语音处理器。stt 可为 nil，表示未配置语音识别。
func NewSpeechHandler(synthesis *voice.SynthesisDispatcher, stt speech.STTProvider, registry *voice.Registry, cfg SpeechHandlerConfig, logger *zap.Logger) *SpeechHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecognitionRecorder{}
	}
	return &SpeechHandler{
		synthesis: synthesis,
		stt:       stt,
		registry:  registry,
		recorder:  cfg.Recorder,
		maxUpload: cfg.MaxUploadBytes,
		language:  cfg.Language,
		logger:    logger.With(zap.String("handler", "speech")),
	}
}

// HandleTTS 合成一段文本
// @Summary 语音合成
// @Tags 语音
// @Accept json
// @Produce json
// @Param request body api.TTSRequest true "合成请求"
// @Success 200 {object} api.SpeechInfo "合成结果"
// @Failure 400 {object} Response "文本为空或过长"
// @Failure 502 {object} Response "合成服务失败"
// @Failure 503 {object} Response "合成未配置"
// @Router /api/v1/tts [post]
func (h *SpeechHandler) HandleTTS(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.TTSRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	res := h.synthesis.Synthesize(r.Context(), req.Text)
	if res.Success {
		WriteSuccess(w, api.NewSpeechInfo(res))
		return
	}

	switch res.ErrorDetail {
	case voice.DetailNotConfigured:
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrNotConfigured, res.ErrorDetail, h.logger)
	case voice.DetailEmptyText, voice.DetailTooLong:
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, res.ErrorDetail, h.logger)
	case voice.DetailTimeout:
		WriteErrorMessage(w, http.StatusGatewayTimeout, types.ErrUpstreamTimeout, res.ErrorDetail, h.logger)
	default:
		WriteErrorMessage(w, http.StatusBadGateway, types.ErrUpstreamSynthesis, res.ErrorDetail, h.logger)
	}
}

// HandleVoices 列出合成服务可用的声音
// @Summary 声音列表
// @Tags 语音
// @Produce json
// @Success 200 {object} api.VoicesResponse "声音列表"
// @Failure 502 {object} Response "合成服务失败"
// @Failure 503 {object} Response "合成未配置"
// @Router /api/v1/voices [get]
func (h *SpeechHandler) HandleVoices(w http.ResponseWriter, r *http.Request) {
	provider := h.synthesis.Provider()
	if provider == nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrNotConfigured, voice.DetailNotConfigured, h.logger)
		return
	}

	voices, err := provider.ListVoices(r.Context())
	if err != nil {
		WriteError(w, upstreamError(types.ErrUpstreamSynthesis, err), h.logger)
		return
	}
	WriteSuccess(w, api.VoicesResponse{Provider: provider.Name(), Voices: voices})
}

// HandleVoice 接收一段录音，识别后执行一轮对话。
// 识别结果为空 (静音) 时不创建轮次。
// @Summary 语音对话
// @Tags 语音
// @Accept audio/wav,audio/webm,audio/mpeg
// @Produce json
// @Param session_id query string false "会话 ID"
// @Success 200 {object} api.VoiceTurnResponse "识别与轮次结果"
// @Failure 400 {object} Response "音频为空或 session_id 不合法"
// @Failure 413 {object} Response "音频过大"
// @Failure 502 {object} Response "识别服务失败"
// @Failure 503 {object} Response "识别未配置"
// @Router /api/v1/voice [post]
func (h *SpeechHandler) HandleVoice(w http.ResponseWriter, r *http.Request) {
	if h.stt == nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrNotConfigured, "recognition not configured", h.logger)
		return
	}
	// 先校验会话 ID，避免为注定失败的请求调用识别服务
	sessionID := r.URL.Query().Get("session_id")
	if sessionID != "" && !voice.ValidSessionID(sessionID) {
		WriteError(w, voice.ErrInvalidSessionID, h.logger)
		return
	}

	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteErrorMessage(w, http.StatusRequestEntityTooLarge, types.ErrInvalidRequest, "audio upload too large", h.logger)
			return
		}
		WriteError(w, types.NewError(types.ErrInvalidRequest, "failed to read audio").WithCause(err), h.logger)
		return
	}
	if len(audio) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "audio body is empty", h.logger)
		return
	}

	start := time.Now()
	stt, err := h.stt.Transcribe(r.Context(), &speech.STTRequest{
		Audio:       bytes.NewReader(audio),
		ContentType: r.Header.Get("Content-Type"),
		Language:    h.language,
	})
	if err != nil {
		h.recorder.RecordRecognition("error")
		h.logger.Warn("recognition failed",
			zap.String("provider", h.stt.Name()),
			zap.Int("bytes", len(audio)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		WriteError(w, upstreamError(types.ErrUpstreamRecognition, err), h.logger)
		return
	}

	resp := api.VoiceTurnResponse{Transcript: stt.Text, Confidence: stt.Confidence, Language: stt.Language}
	if stt.Text == "" {
		h.recorder.RecordRecognition("silence")
		WriteSuccess(w, resp)
		return
	}
	h.recorder.RecordRecognition("ok")

	res, err := h.registry.Submit(r.Context(), sessionID, stt.Text)
	if err != nil {
		WriteError(w, ToTypesError(err), h.logger)
		return
	}
	msg := api.NewMessageResponse(res)
	resp.Turn = &msg
	WriteSuccess(w, resp)
}

// upstreamError 把 provider 错误映射为 API 错误，保留可重试标记
func upstreamError(code types.ErrorCode, err error) *types.Error {
	te := types.NewError(code, err.Error()).WithCause(err)
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		te = te.WithRetryable(llmErr.Retryable).WithProvider(llmErr.Provider)
		te.Message = llmErr.Message
		if llm.IsTimeout(llmErr) {
			te = te.WithHTTPStatus(http.StatusGatewayTimeout)
		}
	}
	return te
}
