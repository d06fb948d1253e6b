package config

import (
	"fmt"
	"strconv"

	"github.com/joho/godotenv"
)

// LookupFunc 与 os.LookupEnv 签名一致，便于测试注入
type LookupFunc func(key string) (string, bool)

// LoadDotEnv 先加载本地 .env（含真实密钥），再用 .env.example 兜底，已存在的变量不会被覆盖
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env", ".env.example"}
	}
	for _, f := range files {
		// 文件不存在属于正常情况
		_ = godotenv.Load(f)
	}
}

// 报纸名与环境变量前缀的对应关系
var newspaperEnvPrefix = map[string]string{
	"人民日报":           "PEOPLE_DAILY",
	"经济日报":           "ECONOMIC_DAILY",
	ForeignNewspaper: "NYTIMES",
}

// ApplyEnv 用环境变量覆盖配置
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var firstErr error
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("环境变量 %s=%q 不是整数", key, v)
			}
			return
		}
		*dst = n
	}
	float := func(key string, dst *float32) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("环境变量 %s=%q 不是数字", key, v)
			}
			return
		}
		*dst = float32(f)
	}

	str("TONGYI_API_KEY", &c.LLM.APIKey)
	str("TONGYI_API_URL", &c.LLM.BaseURL)
	str("AI_MODEL", &c.LLM.Model)
	str("AI_CLIENT", &c.LLM.Client)
	str("AI_ANALYSIS_PROMPT", &c.LLM.Prompt)
	float("AI_TEMPERATURE", &c.LLM.Temperature)
	num("AI_MAX_TOKENS", &c.LLM.MaxTokens)
	float("AI_TOP_P", &c.LLM.TopP)

	num("REQUEST_TIMEOUT", &c.Fetch.RequestTimeout)
	str("USER_AGENT", &c.Fetch.UserAgent)
	str("USER_AGENT", &c.LLM.UserAgent)
	str("HTTPS_PROXY", &c.Fetch.Proxy)
	if c.Fetch.Proxy == "" {
		str("HTTP_PROXY", &c.Fetch.Proxy)
	}

	str("IMAGE_FOLDER", &c.Paths.ImageFolder)
	str("COPY_FOLDER", &c.Paths.CopyFolder)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)

	str("DB_DRIVER", &c.DB.Driver)
	str("DB_HOST", &c.DB.Host)
	num("DB_PORT", &c.DB.Port)
	str("DB_USER", &c.DB.User)
	str("DB_PASSWORD", &c.DB.Password)
	str("DB_NAME", &c.DB.Name)
	str("DB_PATH", &c.DB.Path)
	// 兼容旧配置：只给了 DB_HOST 时默认使用 postgres
	if c.DB.Driver == "" && c.DB.Host != "" {
		c.DB.Driver = "postgres"
	}

	for name, prefix := range newspaperEnvPrefix {
		np, ok := c.Newspapers[name]
		if !ok {
			continue
		}
		str(prefix+"_TYPE", &np.Type)
		str(prefix+"_URL_TEMPLATE", &np.URLTemplate)
		str(prefix+"_LAYOUT_URL", &np.LayoutURLTemplate)
		str(prefix+"_DESC", &np.Description)
		c.Newspapers[name] = np
	}

	return firstErr
}
