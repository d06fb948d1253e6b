package fetcher

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/iWorld-y/paper_radar/internal/dateutil"
	"github.com/iWorld-y/paper_radar/internal/logger"
	"github.com/iWorld-y/paper_radar/internal/model"
)

const (
	chunkSize    = 32 * 1024
	maxPageBytes = 10 << 20
)

// Options 下载器参数
type Options struct {
	Dir            string // 报纸文件缓存目录
	UserAgent      string
	Proxy          string // 为空时使用 HTTP(S)_PROXY 环境变量
	MaxAttempts    int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	ConnectStep    time.Duration // 每次重试额外放宽的连接超时
	ReadStep       time.Duration // 每次重试额外放宽的读超时
	BackoffStep    time.Duration
}

func (o *Options) setDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.ConnectStep <= 0 {
		o.ConnectStep = 5 * time.Second
	}
	if o.ReadStep <= 0 {
		o.ReadStep = 15 * time.Second
	}
	if o.BackoffStep <= 0 {
		o.BackoffStep = 5 * time.Second
	}
}

// Fetcher 负责解析报纸地址并把头版下载到本地缓存
type Fetcher struct {
	opts  Options
	proxy func(*http.Request) (*url.URL, error)
	sleep func(ctx context.Context, d time.Duration) error
}

// New 创建下载器
func New(opts Options) (*Fetcher, error) {
	opts.setDefaults()

	proxy := http.ProxyFromEnvironment
	if opts.Proxy != "" {
		u, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("代理地址 %q 无效: %w", opts.Proxy, err)
		}
		proxy = http.ProxyURL(u)
	}

	return &Fetcher{
		opts:  opts,
		proxy: proxy,
		sleep: sleepCtx,
	}, nil
}

// ArtifactPath 返回 {dir}/{报纸}_{yyyymmdd}.{pdf|jpg}
func (f *Fetcher) ArtifactPath(src model.NewspaperSource, date time.Time) string {
	name := fmt.Sprintf("%s_%s.%s", src.Name, date.Format("20060102"), src.MediaKind())
	return filepath.Join(f.opts.Dir, name)
}

// Fetch 下载指定日期的头版。本地已有文件且 force 为 false 时直接复用，不发起任何请求
func (f *Fetcher) Fetch(ctx context.Context, src model.NewspaperSource, date time.Time, force bool) (*model.DownloadedArtifact, error) {
	path := f.ArtifactPath(src, date)
	artifact := &model.DownloadedArtifact{LocalPath: path, MediaKind: src.MediaKind()}
	log := logger.Log.WithField("newspaper", src.Name)

	if !force {
		if _, err := os.Stat(path); err == nil {
			log.Infof("使用已存在的文件: %s", path)
			artifact.Cached = true
			return artifact, nil
		}
	}

	log.Infof("开始下载 %s (%s) ...", src.Name, date.Format(time.DateOnly))

	target, err := f.resolveTarget(ctx, src, date)
	if err != nil {
		return nil, err
	}

	log.Infof("正在下载: %s", target)
	tmp := path + ".part"
	if err := f.withRetry(ctx, "下载 "+target, func(ctx context.Context, t timeouts) error {
		return f.download(ctx, target, tmp, t)
	}); err != nil {
		return nil, err
	}

	// 校验通过才覆盖正式文件，强制重下失败时旧文件保持不变
	if err := validate(tmp, artifact.MediaKind); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("保存文件失败: %w", err)
	}
	log.Infof("保存路径: %s", path)
	return artifact, nil
}

// resolveTarget 得到最终要下载的文件地址
func (f *Fetcher) resolveTarget(ctx context.Context, src model.NewspaperSource, date time.Time) (string, error) {
	fields := dateutil.Format(date)

	switch src.Kind {
	case model.SourceDirectImage:
		return fields.Expand(src.URLTemplate)

	case model.SourcePDFViaLayout:
		layoutURL, err := fields.Expand(src.LayoutURLTemplate)
		if err != nil {
			return "", err
		}
		logger.Log.Infof("正在获取版面页: %s", layoutURL)

		var page []byte
		if err := f.withRetry(ctx, "获取版面页 "+layoutURL, func(ctx context.Context, t timeouts) error {
			var err error
			page, err = f.getPage(ctx, layoutURL, t)
			return err
		}); err != nil {
			return "", err
		}

		link, ok := extractPDFLink(page)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrNoPDFLink, layoutURL)
		}
		pdfURL, err := resolveURL(layoutURL, link)
		if err != nil {
			return "", err
		}
		logger.Log.Infof("找到 PDF 地址: %s", pdfURL)
		return pdfURL, nil
	}

	return "", fmt.Errorf("不支持的报纸类型: %s", src.Kind)
}

// client 按本次尝试的超时预算构造 http.Client
func (f *Fetcher) client(t timeouts) *http.Client {
	dialer := &net.Dialer{Timeout: t.connect, KeepAlive: 30 * time.Second}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 f.proxy,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   t.connect,
			ResponseHeaderTimeout: t.read,
			ForceAttemptHTTP2:     true,
		},
	}
}

// get 发起 GET，返回 200 响应；body 读取空闲超过 t.read 时中断
func (f *Fetcher) get(ctx context.Context, rawURL string, t timeouts) (*idleReader, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "*/*")

	c := f.client(t)
	resp, err := c.Do(req)
	if err != nil {
		cancel()
		c.CloseIdleConnections()
		return nil, nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		c.CloseIdleConnections()
		return nil, nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	body := newIdleReader(resp.Body, t.read, cancel)
	done := func() {
		body.stop()
		resp.Body.Close()
		cancel()
		c.CloseIdleConnections()
	}
	return body, done, nil
}

func (f *Fetcher) getPage(ctx context.Context, rawURL string, t timeouts) ([]byte, error) {
	body, done, err := f.get(ctx, rawURL, t)
	if err != nil {
		return nil, err
	}
	defer done()

	page, err := io.ReadAll(io.LimitReader(body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	return page, nil
}

// download 以固定大小分块写入临时文件 tmp，由调用方校验后再改名
func (f *Fetcher) download(ctx context.Context, rawURL, tmp string, t timeouts) error {
	body, done, err := f.get(ctx, rawURL, t)
	if err != nil {
		return err
	}
	defer done()

	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("创建文件失败: %w", err)
	}

	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(out, body, buf); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("写入文件失败: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// validate 下载后校验：图片需能完整解码，PDF 只检查大小
func validate(path string, kind model.MediaKind) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: 文件为空", ErrInvalidArtifact)
	}

	if kind == model.MediaPDF {
		logger.Log.Infof("PDF 下载成功！大小：%.2f MB", float64(info.Size())/1024/1024)
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	b := img.Bounds()
	logger.Log.Infof("图片下载成功！格式：%s 尺寸：%dx%d", format, b.Dx(), b.Dy())
	return nil
}

// idleReader 在连续 d 时间没有读到数据时取消请求
type idleReader struct {
	r       io.Reader
	d       time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newIdleReader(r io.Reader, d time.Duration, cancel context.CancelFunc) *idleReader {
	ir := &idleReader{r: r, d: d}
	ir.timer = time.AfterFunc(d, func() {
		ir.expired.Store(true)
		cancel()
	})
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 && !ir.expired.Load() {
		ir.timer.Reset(ir.d)
	}
	if err != nil && err != io.EOF && ir.expired.Load() {
		return n, errors.Join(errReadTimeout, err)
	}
	return n, err
}

func (ir *idleReader) stop() {
	ir.timer.Stop()
}
