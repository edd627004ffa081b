// 包 config 负责加载与校验应用配置：
// 默认值 <- 可选 YAML 文件 <- .env 文件 <- 进程环境变量（后者覆盖前者）。
// 配置以 *Config 显式传给各组件，不使用全局变量。
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string `yaml:"LOG_LEVEL" env:"LOG_LEVEL, overwrite"`
	LogFormat string `yaml:"LOG_FORMAT" env:"LOG_FORMAT, overwrite"` // pretty|json|text
	LogLocale string `yaml:"LOG_LOCALE" env:"LOG_LOCALE, overwrite"` // zh-CN|en
	LogColor  string `yaml:"LOG_COLOR" env:"LOG_COLOR, overwrite"`   // auto|always|never

	HTTP      HTTP      `yaml:"HTTP"`
	Feed      Feed      `yaml:"FEED"`
	WordPress WordPress `yaml:"WORDPRESS"`
}

type HTTP struct {
	Timeout    time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT, overwrite"`
	Retry      int           `yaml:"retry" env:"HTTP_RETRY, overwrite"`
	ProxyHTTP  string        `yaml:"proxy_http" env:"HTTP_PROXY_URL, overwrite"`
	ProxyHTTPS string        `yaml:"proxy_https" env:"HTTPS_PROXY_URL, overwrite"`
	UserAgent  string        `yaml:"user_agent" env:"HTTP_USER_AGENT, overwrite"`
}

type Feed struct {
	// URLTemplate 中的 {page} 会被替换为页码
	URLTemplate string `yaml:"url_template" env:"FEED_URL_TEMPLATE, overwrite"`
	Output      string `yaml:"output" env:"FEED_OUTPUT, overwrite"`
}

type WordPress struct {
	Sites        []string `yaml:"websites" env:"WORDPRESS_WEBSITES, overwrite"`
	DatabaseURL  string   `yaml:"database_url" env:"DATABASE_URL, overwrite"`
	DatabaseName string   `yaml:"database_name" env:"DATABASE_NAME, overwrite"`
	Workers      int      `yaml:"workers" env:"WORDPRESS_WORKERS, overwrite"`
	PageSize     int      `yaml:"page_size" env:"WORDPRESS_PAGE_SIZE, overwrite"`
	StartPage    int      `yaml:"start_page" env:"WORDPRESS_START_PAGE, overwrite"`
	// MaxPages 为每个站点最多抓取的页数，0 表示不限
	MaxPages int `yaml:"max_pages" env:"WORDPRESS_MAX_PAGES, overwrite"`
}

const (
	DefaultFeedTemplate = "https://www.pjd.ma/feed?page={page}"
	DefaultFeedOutput   = "feed_all_pages.json"
	DefaultMaxPages     = 300
)

// Default 返回内置默认配置。
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "pretty",
		LogLocale: "zh-CN",
		LogColor:  "auto",
		HTTP:      HTTP{Timeout: 20 * time.Second},
		Feed:      Feed{URLTemplate: DefaultFeedTemplate, Output: DefaultFeedOutput},
		WordPress: WordPress{
			DatabaseName: "scraped",
			Workers:      10,
			PageSize:     100,
			StartPage:    1,
			MaxPages:     DefaultMaxPages,
		},
	}
}

// Load 读取可选 YAML 文件（path 为空或文件不存在时跳过），再叠加 .env 与环境变量。
// 只有出现的键才会覆盖默认值。
func Load(ctx context.Context, path string) (*Config, error) {
	c := Default()
	if path != "" {
		if err := c.loadYAML(path); err != nil {
			return nil, err
		}
	}
	// .env 不覆盖已存在的环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process(ctx, &c); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) loadYAML(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	return nil
}

// Validate 负责合法性检查与默认值设置。
func (c *Config) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = "pretty"
	}
	if c.LogLocale == "" {
		c.LogLocale = "zh-CN"
	}
	if c.LogColor == "" {
		c.LogColor = "auto"
	}
	if c.HTTP.Timeout < 0 {
		return errors.New("HTTP_TIMEOUT must be >= 0")
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 20 * time.Second
	}
	if c.HTTP.Retry < 0 {
		return errors.New("HTTP_RETRY must be >= 0")
	}
	if c.Feed.URLTemplate == "" {
		c.Feed.URLTemplate = DefaultFeedTemplate
	}
	if c.Feed.Output == "" {
		c.Feed.Output = DefaultFeedOutput
	}

	wp := &c.WordPress
	wp.Sites = SiteList(wp.Sites)
	if wp.DatabaseName == "" {
		wp.DatabaseName = "scraped"
	}
	if wp.Workers < 0 {
		return errors.New("WORDPRESS_WORKERS must be >= 0")
	}
	if wp.Workers == 0 {
		wp.Workers = 10
	}
	if wp.PageSize == 0 {
		wp.PageSize = 100
	}
	if wp.PageSize < 1 || wp.PageSize > 100 {
		return fmt.Errorf("WORDPRESS_PAGE_SIZE must be within [1,100], got %d", wp.PageSize)
	}
	if wp.StartPage == 0 {
		wp.StartPage = 1
	}
	if wp.StartPage < 1 {
		return fmt.Errorf("WORDPRESS_START_PAGE must be >= 1, got %d", wp.StartPage)
	}
	if wp.MaxPages < 0 {
		return fmt.Errorf("WORDPRESS_MAX_PAGES must be >= 0, got %d", wp.MaxPages)
	}
	return nil
}

// SiteList 去掉空白项并按首次出现去重，保持原有顺序。
func SiteList(in []string) []string {
	trimmed := lo.Map(in, func(s string, _ int) string { return strings.TrimSpace(s) })
	return lo.Uniq(lo.Compact(trimmed))
}
