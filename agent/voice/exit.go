package voice

import (
	"regexp"
	"strings"
)

// DefaultExitTokens 作为完整单词出现时结束会话
var DefaultExitTokens = []string{"goodbye", "bye"}

// ExitDetector 按单词边界不区分大小写地匹配结束词："ok bye" 命中，"byebye" 不命中
type ExitDetector struct {
	re *regexp.Regexp
}

// NewExitDetector 创建检测器。空白词被忽略，列表为空时使用 DefaultExitTokens。
func NewExitDetector(tokens []string) *ExitDetector {
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(tok))
	}
	if len(quoted) == 0 {
		return NewExitDetector(DefaultExitTokens)
	}
	return &ExitDetector{re: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)}
}

// IsExit text 是否包含作为完整单词的结束词
func (d *ExitDetector) IsExit(text string) bool {
	return d.re.MatchString(text)
}
