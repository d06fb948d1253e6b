package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractor 从某一种响应结构中取文本；matched 表示结构匹配（即使文本为空）
type extractor struct {
	name string
	fn   func(root map[string]any) (text string, matched bool)
}

// extractors 按顺序尝试的响应结构
var extractors = []extractor{
	// OpenAI 兼容模式：choices[0].message.content
	{"choices", func(root map[string]any) (string, bool) {
		return choicesContent(root)
	}},
	// DashScope 原生：output.choices[0].message.content
	{"output.choices", func(root map[string]any) (string, bool) {
		out, ok := root["output"].(map[string]any)
		if !ok {
			return "", false
		}
		return choicesContent(out)
	}},
	// 旧版：output.text 或顶层 text
	{"text", func(root map[string]any) (string, bool) {
		if out, ok := root["output"].(map[string]any); ok {
			if s, ok := out["text"].(string); ok {
				return strings.TrimSpace(s), true
			}
		}
		if s, ok := root["text"].(string); ok {
			return strings.TrimSpace(s), true
		}
		return "", false
	}},
}

// extractText 依次尝试各响应结构，返回第一个非空文本
func extractText(body []byte) (string, error) {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return "", fmt.Errorf("%w: %v: %s", ErrInvalidResponse, err, truncate(string(body), 300))
	}

	var matched []string
	for _, ex := range extractors {
		text, ok := ex.fn(root)
		if !ok {
			continue
		}
		if text != "" {
			return text, nil
		}
		matched = append(matched, ex.name)
	}

	if len(matched) > 0 {
		return "", fmt.Errorf("%w（结构: %s）", ErrEmptyContent, strings.Join(matched, ", "))
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidResponse, truncate(string(body), 300))
}

func choicesContent(node map[string]any) (string, bool) {
	choices, ok := node["choices"].([]any)
	if !ok || len(choices) == 0 {
		return "", false
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return "", false
	}
	msg, ok := choice["message"].(map[string]any)
	if !ok {
		return "", false
	}
	return contentText(msg["content"])
}

// contentText content 可能是字符串，也可能是 [{"text": ...}, {"image": ...}] 形式的分段列表
func contentText(content any) (string, bool) {
	switch c := content.(type) {
	case string:
		return strings.TrimSpace(c), true
	case []any:
		var parts []string
		for _, item := range c {
			part, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if s, ok := part["text"].(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n")), true
	}
	return "", false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
