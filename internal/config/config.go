package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// 报纸来源类型
const (
	KindPDFLayout   = "pdf_dynamic" // 先抓版面页，再从中提取 PDF 链接
	KindDirectImage = "jpg"         // 按模板直接下载头版图片
)

// 需要特殊（双语）提示词的外文报纸
const ForeignNewspaper = "纽约时报"

// 被视为"未配置"的占位 API Key
var placeholderKeys = []string{"", "your-dashscope-api-key", "你的API", "sk-xxx"}

// Config 项目配置结构体
type Config struct {
	LLM         LLMConfig            `yaml:"llm"`
	Newspapers  map[string]Newspaper `yaml:"newspapers"`
	Fetch       FetchConfig          `yaml:"fetch"`
	Media       MediaConfig          `yaml:"media"`
	Paths       PathsConfig          `yaml:"paths"`
	Log         LogConfig            `yaml:"log"`
	Concurrency ConcurrencyConfig    `yaml:"concurrency"`
	DB          DBConfig             `yaml:"db"`
}

// LLMConfig 多模态大模型相关配置
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Client      string  `yaml:"client"` // http 或 eino
	Prompt      string  `yaml:"prompt"` // 覆盖默认提示词，支持 {newspaper_name} {date_str}
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TopP        float32 `yaml:"top_p"`
	Timeout     int     `yaml:"timeout"` // 秒
	MaxAttempts int     `yaml:"max_attempts"`
	UserAgent   string  `yaml:"user_agent"`
}

// Newspaper 单份报纸的来源描述
type Newspaper struct {
	Type              string `yaml:"type"`
	URLTemplate       string `yaml:"url_template"`
	LayoutURLTemplate string `yaml:"layout_url_template"`
	Description       string `yaml:"description"`
}

// FetchConfig 下载相关配置
type FetchConfig struct {
	RequestTimeout int    `yaml:"request_timeout"` // 读超时基准，秒
	ConnectTimeout int    `yaml:"connect_timeout"` // 连接超时基准，秒
	MaxAttempts    int    `yaml:"max_attempts"`
	UserAgent      string `yaml:"user_agent"`
	Proxy          string `yaml:"proxy"`
}

// MediaConfig 图片转换相关配置
type MediaConfig struct {
	Profile      string `yaml:"profile"` // conservative 或 legible
	PdftoppmPath string `yaml:"pdftoppm_path"`
}

// PathsConfig 本地目录
type PathsConfig struct {
	ImageFolder string `yaml:"image_folder"`
	CopyFolder  string `yaml:"copy_folder"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // 天
}

// ConcurrencyConfig 调用频率控制配置
type ConcurrencyConfig struct {
	QPS int `yaml:"qps"`
	RPM int `yaml:"rpm"`
}

// DBConfig 数据库相关配置
type DBConfig struct {
	Driver   string `yaml:"driver"` // postgres 或 sqlite3，留空表示不入库
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"` // sqlite3 文件路径
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions",
			Model:       "qwen-vl-plus",
			Client:      "http",
			Temperature: 0.1,
			MaxTokens:   2000,
			TopP:        0.9,
			Timeout:     60,
			MaxAttempts: 3,
			UserAgent:   defaultUserAgent,
		},
		Newspapers: map[string]Newspaper{
			"人民日报": {
				Type:              KindPDFLayout,
				LayoutURLTemplate: "http://paper.people.com.cn/rmrb/pc/layout/{yymm}/{dd}/node_01.html",
				Description:       "人民日报",
			},
			"经济日报": {
				Type:              KindPDFLayout,
				LayoutURLTemplate: "http://paper.ce.cn/jjrb/pc/layout/{yymm}/{dd}/node_01.html",
				Description:       "中国经济日报",
			},
			ForeignNewspaper: {
				Type:        KindDirectImage,
				URLTemplate: "https://static01.nyt.com/images/{yyyy}/{mm}/{dd}/nytfrontpage/scan.jpg",
				Description: "The New York Times",
			},
		},
		Fetch: FetchConfig{
			RequestTimeout: 30,
			ConnectTimeout: 10,
			MaxAttempts:    5,
			UserAgent:      defaultUserAgent,
		},
		Media: MediaConfig{
			Profile: "conservative",
		},
		Paths: PathsConfig{
			ImageFolder: "newspaper_images",
			CopyFolder:  "newspaper_copies",
		},
		Log: LogConfig{
			Level:      "info",
			File:       "logs/paper_radar.log",
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Concurrency: ConcurrencyConfig{
			QPS: 1,
			RPM: 30,
		},
		DB: DBConfig{
			Port: 5432,
			User: "postgres",
			Name: "newspaper_db",
			Path: "newspaper.db",
		},
	}
}

// LoadConfig 从指定路径加载配置，文件中的字段覆盖默认值；文件不存在时仅使用默认值
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	defaults := cfg.Newspapers
	cfg.Newspapers = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	cfg.Newspapers = mergeNewspapers(defaults, cfg.Newspapers)

	return cfg, nil
}

// mergeNewspapers 文件中的报纸按字段覆盖同名默认项，只写部分字段时其余字段沿用默认值
func mergeNewspapers(defaults, file map[string]Newspaper) map[string]Newspaper {
	out := make(map[string]Newspaper, len(defaults)+len(file))
	for name, np := range defaults {
		out[name] = np
	}
	for name, np := range file {
		base := out[name]
		if np.Type != "" {
			base.Type = np.Type
		}
		if np.URLTemplate != "" {
			base.URLTemplate = np.URLTemplate
		}
		if np.LayoutURLTemplate != "" {
			base.LayoutURLTemplate = np.LayoutURLTemplate
		}
		if np.Description != "" {
			base.Description = np.Description
		}
		out[name] = base
	}
	return out
}

// NewspaperNames 返回按名称排序的报纸列表
func (c *Config) NewspaperNames() []string {
	names := make([]string, 0, len(c.Newspapers))
	for name := range c.Newspapers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasAPIKey 判断 API Key 是否已配置且不是占位值
func (c *Config) HasAPIKey() bool {
	return !IsPlaceholderKey(c.LLM.APIKey)
}

// IsPlaceholderKey 判断 key 是否为空或示例占位值
func IsPlaceholderKey(key string) bool {
	key = strings.TrimSpace(key)
	for _, p := range placeholderKeys {
		if key == p {
			return true
		}
	}
	return false
}

// Validate 检查配置是否可用，requireAPIKey 为 false 时允许仅下载
func (c *Config) Validate(requireAPIKey bool) error {
	var errs []error
	if requireAPIKey && !c.HasAPIKey() {
		errs = append(errs, errors.New("未配置 API Key：请复制 .env.example 为 .env 并填写 TONGYI_API_KEY"))
	}
	if len(c.Newspapers) == 0 {
		errs = append(errs, errors.New("未配置任何报纸 (newspapers)"))
	}
	for name, np := range c.Newspapers {
		switch np.Type {
		case KindPDFLayout:
			if np.LayoutURLTemplate == "" {
				errs = append(errs, fmt.Errorf("报纸 [%s] 缺少 layout_url_template", name))
			}
		case KindDirectImage:
			if np.URLTemplate == "" {
				errs = append(errs, fmt.Errorf("报纸 [%s] 缺少 url_template", name))
			}
		default:
			errs = append(errs, fmt.Errorf("报纸 [%s] 的类型 %q 不受支持（可选 %s / %s）", name, np.Type, KindPDFLayout, KindDirectImage))
		}
	}
	switch c.LLM.Client {
	case "", "http", "eino":
	default:
		errs = append(errs, fmt.Errorf("llm.client %q 不受支持（可选 http / eino）", c.LLM.Client))
	}
	switch c.DB.Driver {
	case "", "postgres", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("db.driver %q 不受支持（可选 postgres / sqlite3）", c.DB.Driver))
	}
	return errors.Join(errs...)
}
