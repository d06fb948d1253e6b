package fetcher

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var pdfHrefRe = regexp.MustCompile(`href="([^"]+\.pdf)"`)

// extractPDFLink 返回版面页中第一个 href="....pdf"；
// 正则匹配不到时（单引号、大写扩展名、带查询参数等）再用 goquery 扫一遍 <a href>
func extractPDFLink(page []byte) (string, bool) {
	if m := pdfHrefRe.FindSubmatch(page); m != nil {
		return string(m[1]), true
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", false
	}
	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		u, err := url.Parse(href)
		if err != nil {
			return true
		}
		if strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
			link = href
			return false
		}
		return true
	})
	return link, link != ""
}

// resolveURL 把版面页中的相对链接解析为绝对地址
func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("解析版面页地址失败: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("解析 PDF 链接 %q 失败: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
