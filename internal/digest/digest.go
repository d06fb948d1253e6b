// Package digest 解析大模型返回的精华内容并写入文件
package digest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iWorld-y/paper_radar/internal/logger"
	"github.com/iWorld-y/paper_radar/internal/model"
)

const (
	headlineMarker = "【头条新闻"
	titleDelim     = "】"
)

// 核心内容标记，兼容模型偶尔输出的半角冒号
var summaryMarkers = []string{"📝 核心内容：", "📝 核心内容:"}

// ErrEmptyContent 内容为空时不写文件
var ErrEmptyContent = errors.New("内容为空，无法保存")

// Parse 按【头条新闻N】/ 📝 核心内容： 标记拆分出新闻条目。
// 只有同时具备标题和至少一行摘要的条目才会输出；无法识别的行直接忽略
func Parse(raw, newspaper, dateStr string) []model.SummaryRecord {
	var (
		records []model.SummaryRecord
		title   string
		summary []string
	)

	flush := func() {
		if title != "" && len(summary) > 0 {
			records = append(records, model.SummaryRecord{
				Newspaper: newspaper,
				Date:      dateStr,
				Title:     title,
				Summary:   strings.Join(summary, " "),
			})
		}
		title, summary = "", nil
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, headlineMarker) {
			flush()
			if _, t, ok := strings.Cut(line, titleDelim); ok {
				title = strings.TrimSpace(t)
			}
			continue
		}

		if title == "" {
			continue
		}
		for _, m := range summaryMarkers {
			if rest, ok := strings.CutPrefix(line, m); ok {
				if s := strings.TrimSpace(rest); s != "" {
					summary = append(summary, s)
				}
				break
			}
		}
	}
	flush()

	return records
}

// FileName 精华内容文件名：{报纸}_{yyyymmdd}_精华内容.txt
func FileName(newspaper, dateStr string) string {
	return fmt.Sprintf("%s_%s_精华内容.txt", newspaper, dateStr)
}

// WriteFile 将原始文本写入 dir 下的精华内容文件，dir 需事先存在
func WriteFile(dir, newspaper, dateStr, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}

	path := filepath.Join(dir, FileName(newspaper, dateStr))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("保存精华内容失败: %w", err)
	}
	logger.Log.Infof("精华内容已保存到: %s", path)
	return path, nil
}
