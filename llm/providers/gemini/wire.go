package gemini

import (
	"strings"

	"github.com/BaSui01/voiceagent/llm"
)

// generateContent 的线上格式

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

// geminiContent role 只有 user 与 model 两种
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

func (c geminiContent) text() string {
	var sb strings.Builder
	for _, part := range c.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// geminiPromptFeedback 提示词被安全策略拦截时 candidates 为空，原因在这里
type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *geminiUsageMetadata  `json:"usageMetadata,omitempty"`
	ModelVersion   string                `json:"modelVersion,omitempty"`
	ResponseID     string                `json:"responseId,omitempty"`
}

func geminiRole(r llm.Role) string {
	if r == llm.RoleAssistant {
		return "model"
	}
	return "user"
}

// convertToGeminiContents 拆出 system 指令；空消息丢弃，同角色的相邻消息合并为一条多 part 内容
func convertToGeminiContents(msgs []llm.Message) (*geminiContent, []geminiContent) {
	var system *geminiContent
	contents := make([]geminiContent, 0, len(msgs))

	for _, m := range msgs {
		part := geminiPart{Text: m.Content}
		switch {
		case m.Role == llm.RoleSystem:
			system = &geminiContent{Parts: []geminiPart{part}}
		case m.Content == "":
		case len(contents) > 0 && contents[len(contents)-1].Role == geminiRole(m.Role):
			last := &contents[len(contents)-1]
			last.Parts = append(last.Parts, part)
		default:
			contents = append(contents, geminiContent{Role: geminiRole(m.Role), Parts: []geminiPart{part}})
		}
	}
	return system, contents
}

func newGeminiRequest(req *llm.ChatRequest) geminiRequest {
	system, contents := convertToGeminiContents(req.Messages)
	out := geminiRequest{Contents: contents, SystemInstruction: system}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		out.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}
	return out
}

func (gr geminiResponse) toChatResponse(provider, model string) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		ID:       gr.ResponseID,
		Provider: provider,
		Model:    model,
		Choices:  make([]llm.ChatChoice, len(gr.Candidates)),
	}
	for i, c := range gr.Candidates {
		resp.Choices[i] = llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      llm.Message{Role: llm.RoleAssistant, Content: c.Content.text()},
		}
	}
	if u := gr.UsageMetadata; u != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return resp
}
