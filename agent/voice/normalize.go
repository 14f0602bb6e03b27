package voice

import (
	"strings"

	"github.com/BaSui01/voiceagent/types"
)

// ErrEmptyInput 去除空白后文本为空
var ErrEmptyInput = types.NewError(types.ErrInputEmpty, "input is empty")

// Normalize 去除首尾空白 (含 Unicode 空白)，内部空白、大小写与标点保持不变
func Normalize(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrEmptyInput
	}
	return text, nil
}
