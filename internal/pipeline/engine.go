// Package pipeline 串联下载、转换、AI 解析和保存
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/paper_radar/internal/analyzer"
	"github.com/iWorld-y/paper_radar/internal/config"
	"github.com/iWorld-y/paper_radar/internal/digest"
	"github.com/iWorld-y/paper_radar/internal/fetcher"
	"github.com/iWorld-y/paper_radar/internal/logger"
	"github.com/iWorld-y/paper_radar/internal/media"
	"github.com/iWorld-y/paper_radar/internal/model"
)

// Fetcher 下载报纸头版
type Fetcher interface {
	Fetch(ctx context.Context, src model.NewspaperSource, date time.Time, force bool) (*model.DownloadedArtifact, error)
}

// Normalizer 把下载文件转换为 JPEG
type Normalizer interface {
	Normalize(ctx context.Context, a *model.DownloadedArtifact) (*model.EncodedImage, error)
}

// Analyzer 调用大模型
type Analyzer interface {
	Analyze(ctx context.Context, img *model.EncodedImage, newspaper, dateStr string) (*model.AnalysisResult, error)
}

// SummaryStore 摘要入库
type SummaryStore interface {
	InsertBatch(ctx context.Context, recs []model.SummaryRecord) (int, error)
}

// Engine 核心处理引擎，一次处理一份报纸的一天
type Engine struct {
	sources    map[string]model.NewspaperSource
	copyDir    string
	fetcher    Fetcher
	normalizer Normalizer
	analyzer   Analyzer
	store      SummaryStore
}

// NewEngine 创建引擎实例。analyzer 和 store 可以为空：前者只允许仅下载，后者只写文件
func NewEngine(cfg *config.Config, f Fetcher, n Normalizer, a Analyzer, store SummaryStore) (*Engine, error) {
	sources, err := Sources(cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{
		sources:    sources,
		copyDir:    cfg.Paths.CopyFolder,
		fetcher:    f,
		normalizer: n,
		analyzer:   a,
		store:      store,
	}, nil
}

// Sources 将配置中的报纸转换为来源描述
func Sources(cfg *config.Config) (map[string]model.NewspaperSource, error) {
	sources := make(map[string]model.NewspaperSource, len(cfg.Newspapers))
	for name, np := range cfg.Newspapers {
		var kind model.SourceKind
		switch np.Type {
		case config.KindPDFLayout:
			kind = model.SourcePDFViaLayout
		case config.KindDirectImage:
			kind = model.SourceDirectImage
		default:
			return nil, fmt.Errorf("报纸 [%s] 的类型 %q 不受支持", name, np.Type)
		}
		sources[name] = model.NewspaperSource{
			Name:              name,
			Kind:              kind,
			URLTemplate:       np.URLTemplate,
			LayoutURLTemplate: np.LayoutURLTemplate,
			Description:       np.Description,
		}
	}
	return sources, nil
}

// RunOptions 运行选项
type RunOptions struct {
	Force            bool // 忽略已下载的文件
	DownloadOnly     bool
	NoDB             bool
	ProgressCallback func(stage string, progress int)
}

// Result 一次运行的产出
type Result struct {
	RunID      string
	Artifact   *model.DownloadedArtifact
	Analysis   *model.AnalysisResult
	DigestPath string
	Records    []model.SummaryRecord
	Inserted   int
	// Degraded 非空表示解析阶段失败但下载文件已保留，可稍后重试
	Degraded string
}

// Run 执行一次 下载 -> 转换 -> AI 解析 -> 保存
func (e *Engine) Run(ctx context.Context, req model.FetchRequest, opts RunOptions) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	log := logger.Log.WithFields(logrus.Fields{
		"run_id":    res.RunID,
		"newspaper": req.NewspaperName,
		"date":      req.DateStr(),
	})
	progress := func(stage string, p int) {
		log.Debugf("进度 %d%%: %s", p, stage)
		if opts.ProgressCallback != nil {
			opts.ProgressCallback(stage, p)
		}
	}

	src, ok := e.sources[req.NewspaperName]
	if !ok {
		return nil, fmt.Errorf("未配置的报纸: %s", req.NewspaperName)
	}

	progress("downloading", 0)
	artifact, err := e.fetcher.Fetch(ctx, src, req.Date, opts.Force)
	if err != nil {
		if hint := fetcher.Hint(err); hint != "" {
			log.Warnf("💡 %s", hint)
		}
		return nil, fmt.Errorf("下载失败: %w", err)
	}
	res.Artifact = artifact
	log.Infof("文件就绪: %s", artifact.LocalPath)

	if opts.DownloadOnly {
		progress("completed", 100)
		return res, nil
	}
	if e.analyzer == nil {
		return nil, fmt.Errorf("%w: 未初始化 AI 客户端", analyzer.ErrConfig)
	}

	progress("normalizing", 30)
	img, err := e.normalizer.Normalize(ctx, artifact)
	if err != nil {
		if errors.Is(err, media.ErrRasterizerMissing) {
			return nil, err
		}
		return e.degrade(log, res, "图片转换失败", err), nil
	}

	progress("analyzing", 50)
	analysis, err := e.analyzer.Analyze(ctx, img, req.NewspaperName, req.DateStr())
	if err != nil {
		if hint := analyzer.Hint(err); hint != "" {
			log.Warnf("💡 %s", hint)
		}
		if errors.Is(err, analyzer.ErrConfig) || ctx.Err() != nil {
			return nil, err
		}
		return e.degrade(log, res, "AI 解析失败", err), nil
	}
	res.Analysis = analysis

	progress("saving", 85)
	path, err := digest.WriteFile(e.copyDir, req.NewspaperName, req.DateStr(), analysis.RawText)
	if err != nil {
		return nil, err
	}
	res.DigestPath = path

	res.Records = digest.Parse(analysis.RawText, req.NewspaperName, req.DateStr())
	if len(res.Records) == 0 {
		log.Warn("未从 AI 回答中解析出新闻条目，跳过入库")
		progress("completed", 100)
		return res, nil
	}
	log.Infof("解析出 %d 条新闻", len(res.Records))

	if e.store != nil && !opts.NoDB {
		n, err := e.store.InsertBatch(ctx, res.Records)
		if err != nil {
			log.Errorf("保存到数据库失败: %v", err)
		} else {
			res.Inserted = n
			log.Infof("成功保存 %d 条新闻到数据库（%d 条已存在）", n, len(res.Records)-n)
		}
	}

	progress("completed", 100)
	return res, nil
}

func (e *Engine) degrade(log *logrus.Entry, res *Result, stage string, err error) *Result {
	res.Degraded = fmt.Sprintf("%s: %v", stage, err)
	log.Errorf("%s: %v", stage, err)
	log.Warnf("下载文件已保留: %s，可稍后重新运行进行解析", res.Artifact.LocalPath)
	return res
}
