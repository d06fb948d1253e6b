package model

import (
	"fmt"
	"time"
)

// MediaKind 下载文件类型
type MediaKind string

const (
	MediaPDF MediaKind = "pdf"
	MediaJPG MediaKind = "jpg"
)

// SourceKind 报纸来源类型
type SourceKind string

const (
	SourcePDFViaLayout SourceKind = "pdf_via_layout_page"
	SourceDirectImage  SourceKind = "direct_image"
)

// FetchRequest 一次运行的输入：报纸 + 日期
type FetchRequest struct {
	NewspaperName string
	Date          time.Time
}

// DateStr 返回 YYYYMMDD 格式的日期
func (r FetchRequest) DateStr() string {
	return r.Date.Format("20060102")
}

// NewspaperSource 报纸来源的静态描述
type NewspaperSource struct {
	Name              string
	Kind              SourceKind
	URLTemplate       string
	LayoutURLTemplate string
	Description       string
}

// MediaKind 返回该来源下载得到的文件类型
func (s NewspaperSource) MediaKind() MediaKind {
	if s.Kind == SourcePDFViaLayout {
		return MediaPDF
	}
	return MediaJPG
}

// DownloadedArtifact 本地缓存的报纸文件
type DownloadedArtifact struct {
	LocalPath string
	MediaKind MediaKind
	Cached    bool // 命中已有文件，未发起网络请求
}

// EncodedImage 发往大模型的 JPEG（base64）
type EncodedImage struct {
	Base64   string
	ByteSize int // 编码前的 JPEG 字节数
	Width    int
	Height   int
	Quality  int
}

// DataURI 返回 data:image/jpeg;base64,... 形式
func (e *EncodedImage) DataURI() string {
	return "data:image/jpeg;base64," + e.Base64
}

// AnalysisResult 大模型返回的原始文本
type AnalysisResult struct {
	RawText string
}

// SummaryRecord 从大模型回答中解析出的单条新闻
type SummaryRecord struct {
	Newspaper string
	Date      string // YYYYMMDD
	Title     string
	Summary   string
}

func (r SummaryRecord) String() string {
	return fmt.Sprintf("%s %s %s", r.Newspaper, r.Date, r.Title)
}
