package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "qwen-vl-plus", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Fetch.MaxAttempts)
	assert.Contains(t, cfg.Newspapers, "人民日报")
	assert.Contains(t, cfg.Newspapers, ForeignNewspaper)
	assert.Equal(t, "conservative", cfg.Media.Profile)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm:
  model: qwen-vl-max
  max_tokens: 4000
paths:
  image_folder: /tmp/images
db:
  driver: sqlite3
  path: /tmp/summary.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "qwen-vl-max", cfg.LLM.Model)
	assert.Equal(t, 4000, cfg.LLM.MaxTokens)
	// 未出现在文件中的字段保持默认值
	assert.InDelta(t, 0.9, cfg.LLM.TopP, 1e-6)
	assert.Equal(t, "/tmp/images", cfg.Paths.ImageFolder)
	assert.Equal(t, "newspaper_copies", cfg.Paths.CopyFolder)
	assert.Equal(t, "sqlite3", cfg.DB.Driver)
}

func TestLoadConfig_PartialNewspaperKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
newspapers:
  人民日报:
    description: 人民日报海外版
  光明日报:
    type: pdf_dynamic
    layout_url_template: https://epaper.gmw.cn/gmrb/html/{ym}/{dd}/nbs.D110000gmrb_01.htm
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	def := Default().Newspapers["人民日报"]
	np := cfg.Newspapers["人民日报"]
	assert.Equal(t, "人民日报海外版", np.Description)
	assert.Equal(t, def.Type, np.Type)
	assert.Equal(t, def.LayoutURLTemplate, np.LayoutURLTemplate)

	assert.Contains(t, cfg.Newspapers, "光明日报")
	assert.Contains(t, cfg.Newspapers, "经济日报")

	cfg.LLM.APIKey = "sk-real"
	assert.NoError(t, cfg.Validate(true))
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(mapLookup(map[string]string{
		"TONGYI_API_KEY":       "sk-real",
		"AI_TEMPERATURE":       "0.3",
		"AI_MAX_TOKENS":        "1500",
		"REQUEST_TIMEOUT":      "45",
		"COPY_FOLDER":          "out",
		"NYTIMES_URL_TEMPLATE": "https://example.com/{yyyy}{mm}{dd}.jpg",
		"DB_HOST":              "db.local",
	}))
	require.NoError(t, err)

	assert.Equal(t, "sk-real", cfg.LLM.APIKey)
	assert.InDelta(t, 0.3, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, 1500, cfg.LLM.MaxTokens)
	assert.Equal(t, 45, cfg.Fetch.RequestTimeout)
	assert.Equal(t, "out", cfg.Paths.CopyFolder)
	assert.Equal(t, "https://example.com/{yyyy}{mm}{dd}.jpg", cfg.Newspapers[ForeignNewspaper].URLTemplate)
	assert.Equal(t, "postgres", cfg.DB.Driver)
}

func TestApplyEnv_BadNumber(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(mapLookup(map[string]string{"AI_MAX_TOKENS": "lots"}))
	assert.Error(t, err)
	assert.Equal(t, 2000, cfg.LLM.MaxTokens)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *Config)
		requireAPIKey bool
		wantErr       bool
	}{
		{"defaults without key in download mode", func(c *Config) {}, false, false},
		{"missing key", func(c *Config) {}, true, true},
		{"placeholder key", func(c *Config) { c.LLM.APIKey = "your-dashscope-api-key" }, true, true},
		{"real key", func(c *Config) { c.LLM.APIKey = "sk-abc" }, true, false},
		{"unknown kind", func(c *Config) {
			c.Newspapers["x"] = Newspaper{Type: "html"}
		}, false, true},
		{"layout kind without template", func(c *Config) {
			c.Newspapers["x"] = Newspaper{Type: KindPDFLayout}
		}, false, true},
		{"bad client", func(c *Config) { c.LLM.Client = "grpc" }, false, true},
		{"bad driver", func(c *Config) { c.DB.Driver = "mysql" }, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate(tt.requireAPIKey)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewspaperNamesSorted(t *testing.T) {
	names := Default().NewspaperNames()
	require.Len(t, names, 3)
	assert.IsIncreasing(t, names)
}
