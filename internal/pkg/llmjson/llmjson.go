// Package llmjson 处理 LLM 返回的半结构化 JSON 文本
// LLM 经常把 JSON 包在 markdown 代码块里，或带多余空白，
// 解码前需要先清理这些标记
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyContent 清理后内容为空
var ErrEmptyContent = errors.New("empty content after cleaning")

// 匹配 ```json ... ``` 或 ``` ... ``` 形式的代码块
var fencePattern = regexp.MustCompile(`(?s)^\s*` + "```" + `(?:json)?\s*\n(.*?)\n\s*` + "```" + `\s*$`)

// Clean 清理 LLM 返回的 JSON 内容
// 移除 markdown 代码块标记和首尾空白
func Clean(content string) string {
	content = strings.TrimSpace(content)

	if matches := fencePattern.FindStringSubmatch(content); len(matches) > 1 {
		content = matches[1]
	}

	// 兜底处理不规范的代码块标记（如没有换行的单行 fence）
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	return content
}

// Decode 清理后解码到目标结构
// 解码失败返回错误，dest 的内容不可信
func Decode(content string, dest any) error {
	cleaned := Clean(content)
	if cleaned == "" {
		return ErrEmptyContent
	}

	if err := json.Unmarshal([]byte(cleaned), dest); err != nil {
		return fmt.Errorf("decode llm json: %w", err)
	}
	return nil
}
