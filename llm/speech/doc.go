// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 speech 提供语音合成 (TTS) 与语音识别 (STT) 接入层。

# 核心接口

  - TTSProvider：文本转语音接口，包含 Synthesize 与 ListVoices 方法。
  - STTProvider：语音转文本接口，包含 Transcribe 与 SupportedFormats 方法。
  - TTSRequest / TTSResponse：TTS 请求与响应，响应携带托管音频 URL 与字符数。
  - STTRequest / STTResponse：STT 请求与单条最终转写文本。

# 主要能力

  - Murf TTS 适配：MurfProvider 调用 /v1/speech/generate 与 /v1/speech/voices，
    使用 api-key 请求头认证。
  - Deepgram STT 适配：DeepgramProvider 调用预录音频接口 /v1/listen（nova-2）。
  - 错误统一映射为带 Retryable 标记的 llm.Error。
*/
package speech
