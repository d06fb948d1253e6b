// Package dateutil 把日期展开为 URL 模板使用的各种格式
package dateutil

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Fields 模板占位符取值，全部为定长补零字符串
type Fields struct {
	YYYY     string // 2026
	MM       string // 02
	DD       string // 28
	YYMM     string // 202602
	YM       string // 2026-02
	YYYYMMDD string // 20260228
}

// Format 将日期转换为模板替换所需的字段
func Format(t time.Time) Fields {
	return Fields{
		YYYY:     t.Format("2006"),
		MM:       t.Format("01"),
		DD:       t.Format("02"),
		YYMM:     t.Format("200601"),
		YM:       t.Format("2006-01"),
		YYYYMMDD: t.Format("20060102"),
	}
}

// Map 以占位符名为键返回全部字段
func (f Fields) Map() map[string]string {
	return map[string]string{
		"yyyy":     f.YYYY,
		"mm":       f.MM,
		"dd":       f.DD,
		"yymm":     f.YYMM,
		"ym":       f.YM,
		"yyyymmdd": f.YYYYMMDD,
	}
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_]+)\}`)

// Expand 用字段替换模板中的 {yyyy} {mm} 等占位符，出现未知占位符时返回错误
func (f Fields) Expand(tpl string) (string, error) {
	values := f.Map()
	var unknown []string
	out := placeholderRe.ReplaceAllStringFunc(tpl, func(m string) string {
		key := m[1 : len(m)-1]
		if v, ok := values[key]; ok {
			return v
		}
		unknown = append(unknown, m)
		return m
	})
	if len(unknown) > 0 {
		return "", fmt.Errorf("模板 %q 含未知占位符: %s", tpl, strings.Join(unknown, ", "))
	}
	return out, nil
}

// ExpandTemplate 是 Format(t).Expand(tpl) 的简写
func ExpandTemplate(tpl string, t time.Time) (string, error) {
	return Format(t).Expand(tpl)
}

// 日期关键字
const (
	Today           = "today"
	Yesterday       = "yesterday"
	BeforeYesterday = "before-yesterday"
)

// Resolve 解析 --date 参数：today / yesterday / before-yesterday 或 YYYY-MM-DD。
// 晚于今天的日期会被调整为昨天，此时 clamped 为 true
func Resolve(arg string, now time.Time) (date time.Time, clamped bool, err error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch strings.ToLower(strings.TrimSpace(arg)) {
	case Today, "今天":
		return today, false, nil
	case "", Yesterday, "昨天":
		return today.AddDate(0, 0, -1), false, nil
	case BeforeYesterday, "前天":
		return today.AddDate(0, 0, -2), false, nil
	}

	d, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(arg), now.Location())
	if err != nil {
		d, err = time.ParseInLocation("20060102", strings.TrimSpace(arg), now.Location())
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("日期格式错误 %q，请使用 YYYY-MM-DD 或 today/yesterday/before-yesterday", arg)
	}
	if d.After(today) {
		return today.AddDate(0, 0, -1), true, nil
	}
	return d, false, nil
}
