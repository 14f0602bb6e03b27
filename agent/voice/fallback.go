package voice

import (
	"fmt"
	"iter"
	"regexp"
	"strings"
)

// DefaultPersonaName 未配置人设名时兜底回复使用的名字
const DefaultPersonaName = "Luna"

// Match 报告的意图名
const (
	IntentGreeting   = "greeting"
	IntentWellbeing  = "wellbeing"
	IntentIdentity   = "identity"
	IntentCapability = "capability"
	IntentGratitude  = "gratitude"
	IntentFarewell   = "farewell"
	IntentRepeated   = "repeated"
	IntentEcho       = "echo"
)

type intent struct {
	name  string
	re    *regexp.Regexp
	reply string
}

// FallbackResponder 不发任何网络请求，生成预设回复。
// 按顺序取第一个命中的意图，都不命中时使用回显模板。
type FallbackResponder struct {
	persona string
	intents []intent
}

// NewFallbackResponder 为 persona 构建有序意图表
func NewFallbackResponder(persona string) *FallbackResponder {
	persona = strings.TrimSpace(persona)
	if persona == "" {
		persona = DefaultPersonaName
	}
	word := func(alts ...string) *regexp.Regexp {
		return regexp.MustCompile(`\b(?:` + strings.Join(alts, "|") + `)\b`)
	}
	return &FallbackResponder{
		persona: persona,
		intents: []intent{
			{IntentGreeting, word("hello", "hi", "hey"),
				fmt.Sprintf("Hello! I'm %s, your voice assistant. How can I help you today?", persona)},
			{IntentWellbeing, word("how are you"),
				"I'm doing great, thanks for asking! What's on your mind?"},
			{IntentIdentity, word("your name", "who are you"),
				fmt.Sprintf("I'm %s, a friendly voice assistant you can talk to naturally.", persona)},
			{IntentCapability, word("help", "what can you do"),
				"I can have a spoken conversation with you. Ask me anything, or say goodbye when you're done."},
			{IntentGratitude, word("thank", "thanks"),
				"You're most welcome! I'm here whenever you want to chat."},
			{IntentFarewell, word("bye", "goodbye", "see you"),
				"Goodbye! It was wonderful talking with you. Take care!"},
		},
	}
}

// Persona 返回人设名
func (f *FallbackResponder) Persona() string { return f.persona }

// Respond 返回 text 的预设回复。history 仅用于检测重复提问，结果只取决于输入。
func (f *FallbackResponder) Respond(text string, history iter.Seq[Turn]) string {
	reply, _ := f.Match(text, history)
	return reply
}

// Match 同 Respond，并返回命中的意图
func (f *FallbackResponder) Match(text string, history iter.Seq[Turn]) (string, string) {
	lower := strings.ToLower(text)
	for _, in := range f.intents {
		if in.re.MatchString(lower) {
			return in.reply, in.name
		}
	}
	if repeated(lower, history) {
		return "I see you're asking the same question. Could you tell me a bit more about what you're looking for?", IntentRepeated
	}
	return EchoReply(text), IntentEcho
}

// EchoReply 未命中任何意图时的确定性回复
func EchoReply(text string) string {
	return fmt.Sprintf("I heard you say: %s. Could you elaborate?", text)
}

// repeated 最近两条用户发言是否都等于 lower
func repeated(lower string, history iter.Seq[Turn]) bool {
	if history == nil {
		return false
	}
	var last [2]string
	n := 0
	for t := range history {
		last[0], last[1] = last[1], strings.ToLower(t.UserText)
		n++
	}
	return n >= 2 && last[0] == lower && last[1] == lower
}
