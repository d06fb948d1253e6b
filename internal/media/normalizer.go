// Package media 把下载的报纸文件转换为大模型可接受的 JPEG
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/iWorld-y/paper_radar/internal/logger"
	"github.com/iWorld-y/paper_radar/internal/model"
)

// ErrRasterizerMissing 未安装 pdftoppm
var ErrRasterizerMissing = errors.New("未找到 PDF 转图片工具 pdftoppm")

// RasterizerHint 缺少 pdftoppm 时的安装提示
const RasterizerHint = "请安装 poppler：macOS 执行 brew install poppler，Debian/Ubuntu 执行 apt install poppler-utils，或在配置中设置 media.pdftoppm_path"

// Normalizer 负责 PDF 首页栅格化、缩放和 JPEG 压缩
type Normalizer struct {
	profile  Profile
	pdftoppm string
}

// NewNormalizer 创建转换器，pdftoppm 为空时从 PATH 查找
func NewNormalizer(profile Profile, pdftoppm string) *Normalizer {
	if pdftoppm == "" {
		pdftoppm = "pdftoppm"
	}
	return &Normalizer{profile: profile, pdftoppm: pdftoppm}
}

// Normalize 把下载文件转换为 base64 JPEG
func (n *Normalizer) Normalize(ctx context.Context, a *model.DownloadedArtifact) (*model.EncodedImage, error) {
	var (
		img image.Image
		err error
	)
	switch a.MediaKind {
	case model.MediaPDF:
		logger.Log.Infof("正在转换 PDF 首页 (%d DPI)...", n.profile.DPI)
		img, err = n.rasterize(ctx, a.LocalPath)
	case model.MediaJPG:
		img, err = decodeFile(a.LocalPath)
	default:
		err = fmt.Errorf("不支持的文件类型: %s", a.MediaKind)
	}
	if err != nil {
		return nil, err
	}

	return n.Encode(img)
}

// Encode 缩放并压缩为 JPEG；首次编码超过上限时降低质量再编码一次
func (n *Normalizer) Encode(img image.Image) (*model.EncodedImage, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, errors.New("图片尺寸为空")
	}
	rgb := flatten(img, n.profile.MaxDim)
	size := rgb.Bounds().Size()
	if size != b.Size() {
		logger.Log.Infof("图片已缩放: %dx%d -> %dx%d", b.Dx(), b.Dy(), size.X, size.Y)
	}

	quality := n.profile.Quality
	data, err := encodeJPEG(rgb, quality)
	if err != nil {
		return nil, err
	}
	if n.profile.MaxBytes > 0 && len(data) > n.profile.MaxBytes {
		logger.Log.Warnf("图片过大 (%.2f MB)，使用质量 %d 重新压缩", float64(len(data))/1024/1024, n.profile.FallbackQuality)
		quality = n.profile.FallbackQuality
		if data, err = encodeJPEG(rgb, quality); err != nil {
			return nil, err
		}
		if len(data) > n.profile.MaxBytes {
			logger.Log.Warnf("重新压缩后仍有 %.2f MB，接口可能拒绝该请求", float64(len(data))/1024/1024)
		}
	}

	logger.Log.Infof("图片处理完成: %dx%d，%.1f KB，质量 %d", size.X, size.Y, float64(len(data))/1024, quality)
	return &model.EncodedImage{
		Base64:   base64.StdEncoding.EncodeToString(data),
		ByteSize: len(data),
		Width:    size.X,
		Height:   size.Y,
		Quality:  quality,
	}, nil
}

// rasterize 调用 pdftoppm 只渲染第一页
func (n *Normalizer) rasterize(ctx context.Context, pdfPath string) (image.Image, error) {
	bin, err := exec.LookPath(n.pdftoppm)
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %s", ErrRasterizerMissing, n.pdftoppm, RasterizerHint)
	}

	dir, err := os.MkdirTemp("", "paper_radar_page")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	root := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, bin,
		"-f", "1", "-l", "1",
		"-r", strconv.Itoa(n.profile.DPI),
		"-png", "-singlefile",
		pdfPath, root)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm 转换失败: %w: %s", err, bytes.TrimSpace(out))
	}

	return decodeFile(root + ".png")
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("图片解码失败 %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// flatten 按比例缩放到长边不超过 maxDim，并合成到白色背景上去掉透明通道
func flatten(src image.Image, maxDim int) *image.RGBA {
	sb := src.Bounds()
	w, h := fitWithin(sb.Dx(), sb.Dy(), maxDim)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, xdraw.Over, nil)
	}
	return dst
}

// fitWithin 计算等比缩放后的尺寸
func fitWithin(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("JPEG 编码失败: %w", err)
	}
	return buf.Bytes(), nil
}
