package providers

import (
	"cmp"
	"time"

	"github.com/BaSui01/voiceagent/llm"
)

// OpenAI 风格 chat completions 的线上格式，Perplexity 与 OpenAI 共用

type OpenAICompatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAICompatRequest struct {
	Model       string                `json:"model"`
	Messages    []OpenAICompatMessage `json:"messages"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
	Temperature float32               `json:"temperature,omitempty"`
	Stream      bool                  `json:"stream"`
}

type OpenAICompatChoice struct {
	Index        int                 `json:"index"`
	FinishReason string              `json:"finish_reason"`
	Message      OpenAICompatMessage `json:"message"`
}

type OpenAICompatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAICompatResponse struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Choices []OpenAICompatChoice `json:"choices"`
	Usage   *OpenAICompatUsage   `json:"usage,omitempty"`
	Created int64                `json:"created,omitempty"`
}

// NewOpenAICompatRequest 由统一请求构造线上请求，模型按 请求 > 配置 > 兜底 取值
func NewOpenAICompatRequest(req *llm.ChatRequest, configured, fallback string) OpenAICompatRequest {
	out := OpenAICompatRequest{
		Model:       ChooseModel(req, configured, fallback),
		Messages:    make([]OpenAICompatMessage, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for i, m := range req.Messages {
		out.Messages[i] = OpenAICompatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// ToLLMChatResponse 线上响应转为统一响应
func ToLLMChatResponse(oa OpenAICompatResponse, provider string) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		ID:       oa.ID,
		Provider: provider,
		Model:    oa.Model,
		Choices:  make([]llm.ChatChoice, len(oa.Choices)),
	}
	for i, c := range oa.Choices {
		resp.Choices[i] = llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      llm.Message{Role: llm.RoleAssistant, Content: c.Message.Content},
		}
	}
	if u := oa.Usage; u != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	if oa.Created > 0 {
		resp.CreatedAt = time.Unix(oa.Created, 0)
	}
	return resp
}

// ChooseModel 请求指定的模型优先，其次为配置值，最后是服务商默认
func ChooseModel(req *llm.ChatRequest, configured, fallback string) string {
	var requested string
	if req != nil {
		requested = req.Model
	}
	return cmp.Or(requested, configured, fallback)
}
