package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/iWorld-y/paper_radar/internal/analyzer"
	"github.com/iWorld-y/paper_radar/internal/config"
	"github.com/iWorld-y/paper_radar/internal/dateutil"
	"github.com/iWorld-y/paper_radar/internal/fetcher"
	"github.com/iWorld-y/paper_radar/internal/logger"
	"github.com/iWorld-y/paper_radar/internal/media"
	"github.com/iWorld-y/paper_radar/internal/model"
	"github.com/iWorld-y/paper_radar/internal/pipeline"
	"github.com/iWorld-y/paper_radar/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := execute(ctx, newRootCmd())
	stop()
	os.Exit(code)
}

// execute 运行命令并返回退出码；panic 时把堆栈写入日志后返回 1
func execute(ctx context.Context, cmd *cobra.Command) (code int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.WithField("stack", string(debug.Stack())).Errorf("程序异常退出: %v", r)
			code = 1
		}
	}()
	if err := cmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

type runFlags struct {
	configPath   string
	newspaper    string
	date         string
	force        bool
	downloadOnly bool
	noDB         bool
}

func newRootCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:          "paper_radar",
		Short:        "下载报纸头版，并用多模态大模型提取精华内容",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}

	cmd.PersistentFlags().StringVar(&f.configPath, "config", "configs/config.yaml", "配置文件路径")
	cmd.Flags().StringVarP(&f.newspaper, "newspaper", "n", "人民日报", "报纸名称（见 list 子命令）")
	cmd.Flags().StringVarP(&f.date, "date", "d", dateutil.Yesterday, "日期：today / yesterday（推荐，报纸已发布）/ before-yesterday / YYYY-MM-DD")
	cmd.Flags().BoolVar(&f.force, "force", false, "忽略已下载的文件，重新下载")
	cmd.Flags().BoolVar(&f.downloadOnly, "download-only", false, "只下载，不调用 AI 解析")
	cmd.Flags().BoolVar(&f.noDB, "no-db", false, "不保存到数据库")

	cmd.AddCommand(newListCmd(&f.configPath))
	return cmd
}

func newListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "列出已配置的报纸",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			printNewspapers(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

// loadConfig 依次加载默认值、配置文件、.env 和环境变量
func loadConfig(path string) (*config.Config, error) {
	config.LoadDotEnv()
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("无法加载配置文件: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, out io.Writer, f runFlags) error {
	// 1. 加载配置
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}

	// 2. 初始化日志
	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File, logger.Options{
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		return fmt.Errorf("无法初始化日志: %w", err)
	}
	logger.Log.Info("启动报纸精华提取...")

	if err := cfg.Validate(!f.downloadOnly); err != nil {
		logger.Log.Errorf("配置错误: %v", err)
		return err
	}
	if _, ok := cfg.Newspapers[f.newspaper]; !ok {
		err := fmt.Errorf("未配置的报纸 %q，可选: %v", f.newspaper, cfg.NewspaperNames())
		logger.Log.Error(err)
		return err
	}

	date, clamped, err := dateutil.Resolve(f.date, time.Now())
	if err != nil {
		logger.Log.Error(err)
		return err
	}
	if clamped {
		logger.Log.Warnf("%s 晚于今天，已自动调整为昨天 %s", f.date, date.Format(time.DateOnly))
	}

	// 3. 初始化目录
	for _, dir := range []string{cfg.Paths.ImageFolder, cfg.Paths.CopyFolder} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建目录 %s 失败: %w", dir, err)
		}
	}

	// 4. 组装各组件
	fet, err := fetcher.New(fetcher.Options{
		Dir:            cfg.Paths.ImageFolder,
		UserAgent:      cfg.Fetch.UserAgent,
		Proxy:          cfg.Fetch.Proxy,
		MaxAttempts:    cfg.Fetch.MaxAttempts,
		ConnectTimeout: time.Duration(cfg.Fetch.ConnectTimeout) * time.Second,
		ReadTimeout:    time.Duration(cfg.Fetch.RequestTimeout) * time.Second,
	})
	if err != nil {
		return err
	}

	profile, err := media.ProfileByName(cfg.Media.Profile)
	if err != nil {
		return err
	}
	logger.Log.Infof("图片预设: %s (%d DPI, 最大 %dpx, 质量 %d)", profile.Name, profile.DPI, profile.MaxDim, profile.Quality)

	var ai pipeline.Analyzer
	if !f.downloadOnly {
		a, err := analyzer.NewFromConfig(ctx, cfg)
		if err != nil {
			return err
		}
		ai = a
	}

	// 数据库可选，连接失败时只保存文件
	var store pipeline.SummaryStore
	if cfg.DB.Driver != "" && !f.noDB && !f.downloadOnly {
		s, err := storage.NewStorage(ctx, cfg.DB)
		if err != nil {
			logger.Log.Errorf("无法连接数据库: %v. 将仅保存文件。", err)
		} else {
			defer s.Close()
			store = s
			logger.Log.Infof("已成功连接到数据库 (%s)", cfg.DB.Driver)
		}
	} else {
		logger.Log.Info("未启用数据库，跳过数据库连接")
	}

	engine, err := pipeline.NewEngine(cfg, fet, media.NewNormalizer(profile, cfg.Media.PdftoppmPath), ai, store)
	if err != nil {
		return err
	}

	// 5. 执行
	res, err := engine.Run(ctx, model.FetchRequest{NewspaperName: f.newspaper, Date: date}, pipeline.RunOptions{
		Force:        f.force,
		DownloadOnly: f.downloadOnly,
		NoDB:         f.noDB,
	})
	if err != nil {
		logger.Log.Errorf("运行失败: %v", err)
		return err
	}

	printResult(out, res)
	return nil
}

func printNewspapers(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "支持的报纸：")
	for i, name := range cfg.NewspaperNames() {
		np := cfg.Newspapers[name]
		fmt.Fprintf(w, "%d. %s (%s) [%s]\n", i+1, name, np.Description, np.Type)
	}
}

const (
	titleWidth   = 40
	summaryWidth = 60
)

func printResult(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "运行编号: %s\n", res.RunID)
	if res.Artifact != nil {
		state := "已下载"
		if res.Artifact.Cached {
			state = "使用已有文件"
		}
		fmt.Fprintf(w, "报纸文件: %s（%s）\n", res.Artifact.LocalPath, state)
	}
	if res.Degraded != "" {
		fmt.Fprintf(w, "⚠️  %s\n下载文件已保留，可稍后重新运行进行解析\n", res.Degraded)
		return
	}
	if res.DigestPath != "" {
		fmt.Fprintf(w, "精华内容: %s\n", res.DigestPath)
	}
	if len(res.Records) > 0 {
		fmt.Fprintf(w, "新闻条目: %d 条，新入库 %d 条\n", len(res.Records), res.Inserted)
		printRecords(w, res.Records)
	}
}

// printRecords 按显示宽度对齐中英文混排的标题
func printRecords(w io.Writer, recs []model.SummaryRecord) {
	fmt.Fprintf(w, "%s  %s  %s\n", runewidth.FillRight("序号", 4), runewidth.FillRight("标题", titleWidth), "摘要")
	for i, r := range recs {
		title := runewidth.FillRight(runewidth.Truncate(r.Title, titleWidth, "…"), titleWidth)
		fmt.Fprintf(w, "%s  %s  %s\n", runewidth.FillRight(fmt.Sprint(i+1), 4), title, runewidth.Truncate(r.Summary, summaryWidth, "…"))
	}
}
