package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFileOrEnv(t *testing.T) {
	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultFeedTemplate, cfg.Feed.URLTemplate)
	assert.Equal(t, DefaultFeedOutput, cfg.Feed.Output)
	assert.Equal(t, 10, cfg.WordPress.Workers)
	assert.Equal(t, 100, cfg.WordPress.PageSize)
	assert.Equal(t, DefaultMaxPages, cfg.WordPress.MaxPages)
	assert.Equal(t, 20*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 0, cfg.HTTP.Retry)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
LOG_LEVEL: debug
HTTP:
  timeout: 5s
WORDPRESS:
  websites: ["https://yaml.example/wp-json/wp/v2/posts"]
  workers: 3
  max_pages: 7
`), 0o644))
	t.Setenv("WORDPRESS_WEBSITES", " https://a.example/wp-json/wp/v2/posts,,https://b.example/wp-json/wp/v2/posts,https://a.example/wp-json/wp/v2/posts ")
	t.Setenv("DATABASE_URL", "mongodb://localhost:27017")
	t.Setenv("WORDPRESS_MAX_PAGES", "0")

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 3, cfg.WordPress.Workers)
	assert.Equal(t, 0, cfg.WordPress.MaxPages)
	assert.Equal(t, "mongodb://localhost:27017", cfg.WordPress.DatabaseURL)
	assert.Equal(t, []string{
		"https://a.example/wp-json/wp/v2/posts",
		"https://b.example/wp-json/wp/v2/posts",
	}, cfg.WordPress.Sites)
}

func TestLoad_MissingYAMLIsIgnored(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.NoError(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("WORDPRESS: [unclosed"), 0o644))
	_, err := Load(context.Background(), path)
	assert.Error(t, err)
}

func TestValidate_Ranges(t *testing.T) {
	cases := map[string]func(c *Config){
		"page size too big":  func(c *Config) { c.WordPress.PageSize = 101 },
		"negative page size": func(c *Config) { c.WordPress.PageSize = -1 },
		"negative workers":   func(c *Config) { c.WordPress.Workers = -2 },
		"negative max pages": func(c *Config) { c.WordPress.MaxPages = -1 },
		"negative retry":     func(c *Config) { c.HTTP.Retry = -1 },
		"bad start page":     func(c *Config) { c.WordPress.StartPage = -3 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestValidate_FillsZeroValues(t *testing.T) {
	var c Config
	require.NoError(t, c.Validate())
	assert.Equal(t, 10, c.WordPress.Workers)
	assert.Equal(t, 1, c.WordPress.StartPage)
	assert.Equal(t, "scraped", c.WordPress.DatabaseName)
	assert.Equal(t, 0, c.WordPress.MaxPages)
}

func TestSiteList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SiteList([]string{" a", "", "b", "a ", "  "}))
	assert.Empty(t, SiteList(nil))
}
